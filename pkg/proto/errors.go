// Copyright (c) 2021 by library authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package proto

import "errors"

var (
	// ErrStringTooLong is returned when encoding a string into a
	// fixed-size NUL-padded wire field that cannot hold it.
	ErrStringTooLong = errors.New("proto: string does not fit in fixed-size wire field")

	// ErrInvalidUTF8 is returned by ValidateClipboard for a
	// CLIPBOARD_DATA payload that is not valid UTF-8. SET_TITLE bodies are
	// not checked: SetTitleBody.Title and SetTitle never return it. Per
	// spec.md §7 this is recoverable by the caller; it never poisons a
	// message stream.
	ErrInvalidUTF8 = errors.New("proto: payload is not valid UTF-8")

	// ErrClipboardTooLarge is returned when a CLIPBOARD_DATA payload
	// exceeds MaxClipboard bytes.
	ErrClipboardTooLarge = errors.New("proto: clipboard payload exceeds MaxClipboard")

	// ErrCursorOutOfRange is returned by ParseCursor for a CURSOR body
	// whose value is neither CursorDefault nor in [CursorX11, CursorX11Max].
	ErrCursorOutOfRange = errors.New("proto: X11 cursor code out of range")
)
