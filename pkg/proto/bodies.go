// Copyright (c) 2021 by library authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package proto

import (
	"unsafe"

	"github.com/QubesOS/qubes-gui-go/pkg/pod"
)

// Fixed-layout body types for every kind in spec.md §6 that carries one.
// Field order matches the wire order given in the spec; every field is a
// uint32 (or a fixed-size byte array), so the natural Go layout already has
// no padding. Each assertion below fails the build if its struct is smaller
// than the stated size; a larger size, such as padding would cause, still
// compiles.

type KeypressBody struct {
	Type    uint32
	X       uint32
	Y       uint32
	State   uint32
	Keycode uint32
}

var _ [unsafe.Sizeof(KeypressBody{}) - 20]struct{}

type ButtonBody struct {
	Type   uint32
	X      uint32
	Y      uint32
	State  uint32
	Button uint32
}

var _ [unsafe.Sizeof(ButtonBody{}) - 20]struct{}

type MotionBody struct {
	X      uint32
	Y      uint32
	State  uint32
	IsHint uint32
}

var _ [unsafe.Sizeof(MotionBody{}) - 16]struct{}

type CrossingBody struct {
	Type   uint32
	X      uint32
	Y      uint32
	State  uint32
	Mode   uint32
	Detail uint32
	Focus  uint32
}

var _ [unsafe.Sizeof(CrossingBody{}) - 28]struct{}

type FocusBody struct {
	Type   uint32 // 9 (FocusIn) or 10 (FocusOut)
	Mode   uint32
	Detail uint32 // 0-7
}

var _ [unsafe.Sizeof(FocusBody{}) - 12]struct{}

// CreateBody is the body of a CREATE message. Parent uses the POD-safe
// nullable-nonzero niche (spec.md §9): 0 on the wire means "no parent."
type CreateBody struct {
	X                uint32
	Y                uint32
	W                uint32
	H                uint32
	Parent           pod.Optional[uint32]
	OverrideRedirect uint32
}

var _ [unsafe.Sizeof(CreateBody{}) - 24]struct{}

// MapBody is the body of a MAP message, sent by either side and forwarded
// verbatim (spec.md §4.4 "framing invariants").
type MapBody struct {
	TransientFor     pod.Optional[uint32]
	OverrideRedirect uint32
}

var _ [unsafe.Sizeof(MapBody{}) - 8]struct{}

type ConfigureBody struct {
	X                uint32
	Y                uint32
	W                uint32
	H                uint32
	OverrideRedirect uint32
}

var _ [unsafe.Sizeof(ConfigureBody{}) - 20]struct{}

type ShmImageBody struct {
	X uint32
	Y uint32
	W uint32
	H uint32
}

var _ [unsafe.Sizeof(ShmImageBody{}) - 16]struct{}

// SetTitleBody is a 128-byte NUL-padded UTF-8 window title.
type SetTitleBody struct {
	Raw [128]byte
}

var _ [unsafe.Sizeof(SetTitleBody{}) - 128]struct{}

// KeymapNotifyBody is a 32-byte keymap bitmap (256 keycodes, 1 bit each).
type KeymapNotifyBody struct {
	Bitmap [32]byte
}

var _ [unsafe.Sizeof(KeymapNotifyBody{}) - 32]struct{}

type WindowHintsBody struct {
	Flags uint32
	MinW  uint32
	MinH  uint32
	MaxW  uint32
	MaxH  uint32
	IncW  uint32
	IncH  uint32
	BaseW uint32
	BaseH uint32
}

var _ [unsafe.Sizeof(WindowHintsBody{}) - 36]struct{}

type WindowFlagsBody struct {
	Set   uint32
	Unset uint32
}

var _ [unsafe.Sizeof(WindowFlagsBody{}) - 8]struct{}

// WindowClassBody carries two 64-byte fixed class/instance name fields, the
// same fixed-array-plus-accessor shape the teacher library uses for
// InquiryResponse's VendorIdent/ProductIdent fields.
type WindowClassBody struct {
	ResClass [64]byte
	ResName  [64]byte
}

var _ [unsafe.Sizeof(WindowClassBody{}) - 128]struct{}

// WindowDumpHeader is the fixed-size header in front of a WINDOW_DUMP
// body's variable-length grant-ID array (spec.md §4.5 step 4).
type WindowDumpHeader struct {
	Type   uint32
	Width  uint32
	Height uint32
	Bpp    uint32
}

var _ [unsafe.Sizeof(WindowDumpHeader{}) - 16]struct{}

type CursorBody struct {
	Cursor uint32
}

var _ [unsafe.Sizeof(CursorBody{}) - 4]struct{}

// Empty-body marker types: each kind with a zero-length body gets its own
// named type (rather than a single shared struct{}) so the KindOf registry
// keeps a 1:1 type<->Kind binding.
type (
	DestroyBody      struct{}
	UnmapBody        struct{}
	CloseBody        struct{}
	ClipboardReqBody struct{}
	DockBody         struct{}
)

// Title decodes the NUL-padded title, trimming the padding.
func (b SetTitleBody) Title() string {
	n := len(b.Raw)
	for i, c := range b.Raw {
		if c == 0 {
			n = i
			break
		}
	}
	return string(b.Raw[:n])
}

// SetTitle encodes s as a NUL-padded title, failing if it (plus the
// terminating NUL the wire format implies) does not fit in 128 bytes.
func (b *SetTitleBody) SetTitle(s string) error {
	if len(s) >= len(b.Raw) {
		return ErrStringTooLong
	}
	var raw [128]byte
	copy(raw[:], s)
	b.Raw = raw
	return nil
}

// ClassName / InstanceName decode WindowClassBody's two NUL-padded fields.
func (b WindowClassBody) ClassName() string    { return nulString(b.ResClass[:]) }
func (b WindowClassBody) InstanceName() string { return nulString(b.ResName[:]) }

func nulString(b []byte) string {
	n := len(b)
	for i, c := range b {
		if c == 0 {
			n = i
			break
		}
	}
	return string(b[:n])
}
