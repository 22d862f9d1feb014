// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

package decode

import (
	"context"

	"github.com/florischabert/translate/pkg/ml/binding"
)

// Module is an opaque, pre-compiled inference computation: the encoder or the decoder step.
//
// Run consumes a Binding and produces a new one. The inputs binding is owned by the caller and
// must not be finalized by the module. The returned binding, and every tensor handle in it, is
// owned by the caller: to return an input tensor unchanged, the module must return an alias of it
// (see binding.Builder.Alias).
//
// Run is a blocking call, and it should not be called concurrently on the same module unless
// the implementation says otherwise.
type Module interface {
	// Name of the module, used in logs and errors.
	Name() string

	// Run the module on the given inputs.
	Run(ctx context.Context, inputs *binding.Binding) (*binding.Binding, error)
}

// ModuleFn is the signature of a function implementing Module.Run.
type ModuleFn func(ctx context.Context, inputs *binding.Binding) (*binding.Binding, error)

// funcModule implements Module with a ModuleFn.
type funcModule struct {
	name string
	fn   ModuleFn
}

// NewModule returns a Module with the given name that runs fn.
func NewModule(name string, fn ModuleFn) Module {
	return &funcModule{name: name, fn: fn}
}

// Name implements Module.
func (m *funcModule) Name() string { return m.name }

// Run implements Module.
func (m *funcModule) Run(ctx context.Context, inputs *binding.Binding) (*binding.Binding, error) {
	return m.fn(ctx, inputs)
}
