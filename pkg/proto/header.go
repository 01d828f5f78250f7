// Copyright (c) 2021 by library authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package proto

import "unsafe"

// Header is the 12-byte wire envelope in front of every message body
// (spec.md §3). Window 0 means "no window / root."
type Header struct {
	Type            uint32
	Window          uint32
	UntrustedLength uint32
}

var _ [unsafe.Sizeof(Header{}) - 12]struct{}

// Kind returns the message kind this header announces.
func (h Header) Kind() Kind { return Kind(h.Type) }
