// Copyright (c) 2021 by library authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package pod implements zero-copy plain-old-data views: aggregates that
// have no padding and accept every bit pattern of their byte image, so an
// untrusted peer's bytes can be reinterpreted as a typed Go value (and back)
// without a copy and without an intermediate decoder.
//
// A declared aggregate is POD-safe only if every field is itself POD-safe:
// a fixed-width integer, a fixed-size array of POD-safe elements, or an
// Optional[U]. Booleans, floats, strings, slices, pointers, interfaces, and
// enums with reserved bit patterns are never POD-safe and must not be used
// as fields of a type passed to the generic functions in this package.
//
// This package cannot reject a non-POD T at compile time by itself — Go has
// no trait bound expressive enough to say "no padding" — so every wire
// struct declared in pkg/proto carries its own build-time assertion next to
// the declaration:
//
//	type Header struct {
//		Type            uint32
//		Window          uint32
//		UntrustedLength uint32
//	}
//
//	var _ [unsafe.Sizeof(Header{}) - 12]byte // negative length: compile error
//
// The array bound goes negative, and Go refuses to compile, only when
// unsafe.Sizeof is smaller than the literal. A struct that grows past the
// literal, as padding would make it, still compiles: this assertion does not
// detect padding. The wire structs in this module have none because they are
// made only of uint32 fields and byte arrays. AssertSize below checks for an
// exact size at run time, in either direction.
package pod

import (
	"errors"
	"fmt"
	"unsafe"
)

// ErrSizeMismatch is returned by FromBytes when the input slice length does
// not equal the aggregate's size.
var ErrSizeMismatch = errors.New("pod: byte slice length does not match aggregate size")

// AsBytes returns a zero-copy view of v's memory as a byte slice. The slice
// is only valid for as long as v is not moved or freed; callers must not
// retain it past v's lifetime.
func AsBytes[T any](v *T) []byte {
	n := unsafe.Sizeof(*v)
	if n == 0 {
		return nil
	}
	return unsafe.Slice((*byte)(unsafe.Pointer(v)), n)
}

// AsBytesMut is the mutable counterpart of AsBytes; since Go slices are
// always mutable views, it is identical to AsBytes and exists only to match
// the read/write pair callers expect from a POD-cast API.
func AsBytesMut[T any](v *T) []byte { return AsBytes(v) }

// FromBytes reinterprets b as a T. It fails with ErrSizeMismatch when
// len(b) != sizeof(T); every bit pattern of a POD-safe T is otherwise a
// legal value, so there is no further validation to perform here.
func FromBytes[T any](b []byte) (T, error) {
	var zero T
	n := int(unsafe.Sizeof(zero))
	if len(b) != n {
		return zero, ErrSizeMismatch
	}
	if n == 0 {
		return zero, nil
	}
	return *(*T)(unsafe.Pointer(&b[0])), nil
}

// Zeroed returns the zero value of T. Every POD-safe T has a legal zeroed
// default by construction (invariant 3 of the POD constraint).
func Zeroed[T any]() T {
	var v T
	return v
}

// AssertSize panics if sizeof(T) != n. It is the runtime-checkable
// restatement of the build-time array-length assertion each wire struct
// carries next to its declaration (see package doc); tests exercise it so
// the invariant is checked on every supported platform, not just the one
// the code happened to be compiled on.
func AssertSize[T any](n uintptr) {
	var zero T
	if got := unsafe.Sizeof(zero); got != n {
		panic(fmt.Sprintf("pod: %T has size %d, want %d (padding present?)", zero, got, n))
	}
}

// Cursor is an advancing view over a byte slice, used to pull a sequence of
// POD aggregates out of a buffer without re-slicing by hand at each step.
type Cursor struct {
	buf []byte
	off int
}

// NewCursor returns a Cursor positioned at the start of b.
func NewCursor(b []byte) *Cursor {
	return &Cursor{buf: b}
}

// Remaining reports how many unread bytes are left in the cursor.
func (c *Cursor) Remaining() int {
	return len(c.buf) - c.off
}

// Rest returns the unread tail of the cursor without consuming it.
func (c *Cursor) Rest() []byte {
	return c.buf[c.off:]
}

// ReadFrom advances c by sizeof(T) and returns the aggregate at the old
// position if at least sizeof(T) bytes remain; otherwise it leaves c
// unchanged and returns false.
func ReadFrom[T any](c *Cursor) (T, bool) {
	var zero T
	n := int(unsafe.Sizeof(zero))
	if c.Remaining() < n {
		return zero, false
	}
	if n == 0 {
		return zero, true
	}
	v := *(*T)(unsafe.Pointer(&c.buf[c.off]))
	c.off += n
	return v, true
}

// unsignedInt is the set of integer widths permitted as the backing type of
// an Optional niche value (see package doc and spec.md §4.1's "permitted
// leaves").
type unsignedInt interface {
	~uint8 | ~uint16 | ~uint32 | ~uint64
}

// Optional is the POD-safe "nullable nonzero" niche pattern: a plain
// unsigned integer whose zero byte pattern means "absent," presented as a
// small sum-type-shaped API while remaining bit-for-bit identical to the
// underlying integer on the wire.
type Optional[U unsignedInt] struct {
	raw U
}

// Some wraps a present value. Wrapping the zero value panics, since the
// zero pattern is reserved to mean "absent" — a caller that needs to
// represent a legitimate zero must not use this niche for that field.
func Some[U unsignedInt](v U) Optional[U] {
	if v == 0 {
		panic("pod: Some(0) collides with the Optional niche's absent encoding")
	}
	return Optional[U]{raw: v}
}

// None returns the absent value.
func None[U unsignedInt]() Optional[U] {
	return Optional[U]{}
}

// Value reports the wrapped integer and whether it is present.
func (o Optional[U]) Value() (U, bool) {
	if o.raw == 0 {
		var zero U
		return zero, false
	}
	return o.raw, true
}

// Raw returns the underlying wire integer unconditionally, for callers that
// need to forward it verbatim (e.g. re-encoding a body unmodified).
func (o Optional[U]) Raw() U {
	return o.raw
}
