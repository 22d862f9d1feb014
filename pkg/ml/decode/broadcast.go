// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

package decode

import (
	"github.com/dustin/go-humanize"
	"github.com/pkg/errors"
	"k8s.io/klog/v2"

	"github.com/florischabert/translate/pkg/core/tensors"
	"github.com/florischabert/translate/pkg/ml/binding"
)

// BeamAxis is the axis of the encoder outputs, shaped [sourceLength, beam, hiddenSize], that
// is broadcast from 1 to the beam width.
const BeamAxis = 1

// broadcastEncoderOutputs returns a new encoder outputs binding where every encoder_output_<N> tensor
// is replaced by a new tensor with its BeamAxis broadcast from 1 to beamSize. Every other
// tensor is aliased unchanged.
//
// The given binding is not changed: the caller finalizes it once the returned binding replaced it.
func broadcastEncoderOutputs(encoderOutputs *binding.Binding, beamSize int) (*binding.Binding, error) {
	bb := binding.NewBuilder()
	var broadcastBytes uintptr
	for name, t := range encoderOutputs.All() {
		if binding.Classify(name).Kind != binding.KindEncoderOutput {
			bb.Alias(name, t)
			continue
		}
		if t.Rank() <= BeamAxis {
			bb.Discard()
			return nil, errors.Errorf("encoder output %q with shape %s has no beam axis %d to broadcast",
				name, t.Shape(), BeamAxis)
		}
		broadcast, err := tensors.BroadcastAxis(t, BeamAxis, beamSize)
		if err != nil {
			bb.Discard()
			return nil, errors.WithMessagef(err, "broadcasting encoder output %q to beam size %d", name, beamSize)
		}
		broadcastBytes += broadcast.Memory()
		bb.Set(name, broadcast)
	}
	b, err := bb.Build()
	if err != nil {
		return nil, err
	}
	klog.V(2).Infof("encoder outputs broadcast to beam size %d (%s)", beamSize, humanize.Bytes(uint64(broadcastBytes)))
	return b, nil
}
