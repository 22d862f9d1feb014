// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

package decode

import (
	"fmt"

	"github.com/pkg/errors"
)

var (
	// ErrEmptySource is returned by Decoder.Decode when given an empty source sentence.
	ErrEmptySource = errors.New("source token sequence is empty")

	// ErrInvalidConfig is returned (wrapped) by Decoder.Decode for invalid configurations or arguments.
	ErrInvalidConfig = errors.New("invalid decoder configuration")
)

// MissingStepOutputError is returned when a required output is absent from a decoder-step result.
type MissingStepOutputError struct {
	// Name of the missing output.
	Name string

	// Timestep is the value of the `timestep` input of the failing invocation.
	Timestep int
}

// Error implements the error interface.
func (e *MissingStepOutputError) Error() string {
	return fmt.Sprintf("decoder step at timestep %d did not produce required output %q", e.Timestep, e.Name)
}

// MalformedStepOutputError is returned when a required decoder-step output doesn't have the
// expected dtype or shape (beam width, source length).
type MalformedStepOutputError struct {
	Name     string
	Timestep int
	Reason   string
}

// Error implements the error interface.
func (e *MalformedStepOutputError) Error() string {
	return fmt.Sprintf("decoder step at timestep %d produced malformed output %q: %s", e.Timestep, e.Name, e.Reason)
}

// InvocationError is returned when a module reports a failure. It unwraps to the module's error unchanged.
type InvocationError struct {
	// Module is the name of the failing module.
	Module string

	// Timestep of the failing decoder-step invocation, or -1 for the encoder.
	Timestep int

	Err error
}

// Error implements the error interface.
func (e *InvocationError) Error() string {
	if e.Timestep < 0 {
		return fmt.Sprintf("module %q failed: %v", e.Module, e.Err)
	}
	return fmt.Sprintf("module %q failed at timestep %d: %v", e.Module, e.Timestep, e.Err)
}

// Unwrap returns the module's error.
func (e *InvocationError) Unwrap() error { return e.Err }
