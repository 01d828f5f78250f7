// Copyright (c) 2021 by library authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package proto

import "unicode/utf8"

// ValidateClipboard checks a CLIPBOARD_DATA payload against spec.md §6's
// size limit and UTF-8 requirement. The size check runs first, since an
// oversize payload is rejected before the (possibly expensive) UTF-8 scan.
func ValidateClipboard(data []byte) error {
	if len(data) > MaxClipboard {
		return ErrClipboardTooLarge
	}
	if !utf8.Valid(data) {
		return ErrInvalidUTF8
	}
	return nil
}

// ParseCursor decodes a CURSOR body's value: either CursorDefault, or an
// X11-indexed cursor in [CursorX11, CursorX11Max] (spec.md §6). Any other
// value is rejected.
func ParseCursor(b CursorBody) (uint32, error) {
	if b.Cursor == CursorDefault {
		return b.Cursor, nil
	}
	if b.Cursor < CursorX11 || b.Cursor > CursorX11Max {
		return 0, ErrCursorOutOfRange
	}
	return b.Cursor, nil
}
