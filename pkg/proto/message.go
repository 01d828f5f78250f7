// Copyright (c) 2021 by library authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package proto

import (
	"reflect"

	"github.com/QubesOS/qubes-gui-go/pkg/pod"
)

// kindRegistry binds every fixed-layout body type declared in this package
// to its wire Kind, so that pkg/msgstream's generic encode/decode helpers
// cannot attach a body to the wrong header: the Kind is derived from the
// Go type, never passed alongside it as an independent, possibly-mismatched
// argument.
var kindRegistry = map[reflect.Type]Kind{}

func register[B any](k Kind) {
	kindRegistry[reflect.TypeOf(*new(B))] = k
}

func init() {
	register[KeypressBody](KindKeypress)
	register[ButtonBody](KindButton)
	register[MotionBody](KindMotion)
	register[CrossingBody](KindCrossing)
	register[FocusBody](KindFocus)
	register[CreateBody](KindCreate)
	register[DestroyBody](KindDestroy)
	register[MapBody](KindMap)
	register[UnmapBody](KindUnmap)
	register[ConfigureBody](KindConfigure)
	register[ShmImageBody](KindShmImage)
	register[CloseBody](KindClose)
	register[ClipboardReqBody](KindClipboardReq)
	register[SetTitleBody](KindSetTitle)
	register[KeymapNotifyBody](KindKeymapNotify)
	register[DockBody](KindDock)
	register[WindowHintsBody](KindWindowHints)
	register[WindowFlagsBody](KindWindowFlags)
	register[WindowClassBody](KindWindowClass)
	register[CursorBody](KindCursor)
	// KindClipboardData and KindWindowDump are variable-length and have no
	// single fixed Go body type to register; callers encode/decode them
	// directly as []byte (see pkg/msgstream).
}

// KindOf reports the wire Kind a fixed-layout body type B is registered
// for.
func KindOf[B any]() (Kind, bool) {
	k, ok := kindRegistry[reflect.TypeOf(*new(B))]
	return k, ok
}

// EncodeBody returns the wire bytes for a fixed-layout body.
func EncodeBody[B any](b *B) []byte {
	return pod.AsBytes(b)
}

// DecodeBody reinterprets raw as a B, failing if the length does not match
// B's size exactly (callers are expected to have already checked the
// length against LengthLimits before calling this).
func DecodeBody[B any](raw []byte) (B, error) {
	return pod.FromBytes[B](raw)
}
