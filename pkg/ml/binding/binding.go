// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

// Package binding implements Binding, the set of named tensors exchanged with an opaque
// inference module, and the Router that maps a module's output names to the names the next
// module invocation expects.
//
// A Binding owns one handle per tensor it holds: Binding.Finalize releases all of them.
// To place the same tensor in two bindings use Builder.Alias, which stores a new handle
// (tensors.Tensor.Alias) sharing the storage.
//
// Bindings are immutable once built, and they are created fresh for each module invocation.
package binding

import (
	"fmt"
	"iter"
	"strings"

	"github.com/gomlx/exceptions"
	"github.com/pkg/errors"

	"github.com/florischabert/translate/pkg/core/tensors"
	"github.com/florischabert/translate/pkg/support/xslices"
)

// Binding maps unique names to tensors. Order is irrelevant, but enumeration is always
// done in sorted name order, so logs and errors are deterministic.
type Binding struct {
	tensors map[string]*tensors.Tensor
	names   []string
}

// Empty returns a binding with no tensors.
func Empty() *Binding {
	return &Binding{tensors: map[string]*tensors.Tensor{}}
}

// Len returns the number of tensors in the binding.
func (b *Binding) Len() int {
	if b == nil {
		return 0
	}
	return len(b.tensors)
}

// Names returns the sorted names in the binding. The returned slice can be changed.
func (b *Binding) Names() []string {
	if b == nil {
		return nil
	}
	return xslices.Copy(b.names)
}

// Has returns whether the binding holds a tensor under the given name.
func (b *Binding) Has(name string) bool {
	_, found := b.Get(name)
	return found
}

// Get returns the tensor stored under the given name.
//
// The returned handle is owned by the binding: use Alias on it to keep it beyond the binding's lifetime.
func (b *Binding) Get(name string) (t *tensors.Tensor, found bool) {
	if b == nil {
		return nil, false
	}
	t, found = b.tensors[name]
	return
}

// MustGet returns the tensor stored under name, and panics if it is not present.
func (b *Binding) MustGet(name string) *tensors.Tensor {
	t, found := b.Get(name)
	if !found {
		exceptions.Panicf("binding has no tensor named %q (names: %v)", name, b.Names())
	}
	return t
}

// All iterates over the names and tensors of the binding, in sorted name order.
func (b *Binding) All() iter.Seq2[string, *tensors.Tensor] {
	return func(yield func(string, *tensors.Tensor) bool) {
		if b == nil {
			return
		}
		for _, name := range b.names {
			if !yield(name, b.tensors[name]) {
				return
			}
		}
	}
}

// Finalize releases every tensor handle held by the binding. Tensors aliased elsewhere remain valid.
//
// It is safe to call Finalize more than once, or on a nil binding.
func (b *Binding) Finalize() {
	if b == nil {
		return
	}
	for _, t := range b.tensors {
		t.FinalizeAll()
	}
}

// String lists the names and shapes of the tensors in the binding.
func (b *Binding) String() string {
	if b.Len() == 0 {
		return "{}"
	}
	parts := make([]string, 0, b.Len())
	for name, t := range b.All() {
		if t.Ok() {
			parts = append(parts, fmt.Sprintf("%s: %s", name, t.Shape()))
		} else {
			parts = append(parts, fmt.Sprintf("%s: <released>", name))
		}
	}
	return "{" + strings.Join(parts, ", ") + "}"
}

// Builder accumulates named tensors to create a Binding.
//
// The first error (a duplicate name or a nil tensor) is kept and returned by Build, which
// then releases every handle the builder took ownership of.
type Builder struct {
	tensors map[string]*tensors.Tensor
	err     error
}

// NewBuilder returns an empty Builder.
func NewBuilder() *Builder {
	return &Builder{tensors: make(map[string]*tensors.Tensor)}
}

// Set stores t under the given name. The builder takes ownership of the handle t.
func (bb *Builder) Set(name string, t *tensors.Tensor) *Builder {
	if bb.err != nil {
		t.FinalizeAll()
		return bb
	}
	if name == "" {
		bb.err = errors.New("binding tensor name cannot be empty")
	} else if !t.Ok() {
		bb.err = errors.Errorf("binding tensor %q is nil or was released", name)
	} else if _, found := bb.tensors[name]; found {
		bb.err = errors.Errorf("binding tensor %q set more than once", name)
	}
	if bb.err != nil {
		t.FinalizeAll()
		return bb
	}
	bb.tensors[name] = t
	return bb
}

// Alias stores a new handle to the storage of t under the given name. The caller keeps ownership of t.
func (bb *Builder) Alias(name string, t *tensors.Tensor) *Builder {
	if !t.Ok() {
		return bb.Set(name, nil)
	}
	return bb.Set(name, t.Alias())
}

// Has returns whether a tensor was already set with the given name.
func (bb *Builder) Has(name string) bool {
	_, found := bb.tensors[name]
	return found
}

// Build returns the Binding with the tensors set so far.
//
// In case of error, all the tensors handed to the builder are released.
// The Builder should not be used after Build.
func (bb *Builder) Build() (*Binding, error) {
	if bb.err != nil {
		bb.Discard()
		return nil, bb.err
	}
	b := &Binding{tensors: bb.tensors, names: xslices.SortedKeys(bb.tensors)}
	bb.tensors = nil
	return b, nil
}

// Discard releases every handle the builder took ownership of, without building a Binding.
func (bb *Builder) Discard() {
	for _, t := range bb.tensors {
		t.FinalizeAll()
	}
	bb.tensors = nil
}

// FromMap builds a Binding from the given map, taking ownership of all the tensors.
// It's a shortcut to NewBuilder().Set(...).Build().
func FromMap(named map[string]*tensors.Tensor) (*Binding, error) {
	bb := NewBuilder()
	for _, name := range xslices.SortedKeys(named) {
		bb.Set(name, named[name])
	}
	return bb.Build()
}
