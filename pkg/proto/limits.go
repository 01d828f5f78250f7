// Copyright (c) 2021 by library authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package proto

import "unsafe"

// Range is an inclusive body-length range in bytes.
type Range struct {
	Min int
	Max int
}

// Contains reports whether n falls within the range.
func (r Range) Contains(n int) bool { return n >= r.Min && n <= r.Max }

func exact(n uintptr) Range { return Range{Min: int(n), Max: int(n)} }

var lengthLimits = map[Kind]Range{
	KindKeypress:      exact(unsafe.Sizeof(KeypressBody{})),
	KindButton:        exact(unsafe.Sizeof(ButtonBody{})),
	KindMotion:        exact(unsafe.Sizeof(MotionBody{})),
	KindCrossing:      exact(unsafe.Sizeof(CrossingBody{})),
	KindFocus:         exact(unsafe.Sizeof(FocusBody{})),
	KindCreate:        exact(unsafe.Sizeof(CreateBody{})),
	KindDestroy:       {Min: 0, Max: 0},
	KindMap:           exact(unsafe.Sizeof(MapBody{})),
	KindUnmap:         {Min: 0, Max: 0},
	KindConfigure:     exact(unsafe.Sizeof(ConfigureBody{})),
	KindShmImage:      exact(unsafe.Sizeof(ShmImageBody{})),
	KindClose:         {Min: 0, Max: 0},
	KindClipboardReq:  {Min: 0, Max: 0},
	KindClipboardData: {Min: 0, Max: MaxClipboard},
	KindSetTitle:      exact(unsafe.Sizeof(SetTitleBody{})),
	KindKeymapNotify:  exact(unsafe.Sizeof(KeymapNotifyBody{})),
	KindDock:          {Min: 0, Max: 0},
	KindWindowHints:   exact(unsafe.Sizeof(WindowHintsBody{})),
	KindWindowFlags:   exact(unsafe.Sizeof(WindowFlagsBody{})),
	KindWindowClass:   exact(unsafe.Sizeof(WindowClassBody{})),
	KindWindowDump:    {Min: int(unsafe.Sizeof(WindowDumpHeader{})), Max: int(unsafe.Sizeof(WindowDumpHeader{})) + 4*int(MaxGrants)},
	KindCursor:        exact(unsafe.Sizeof(CursorBody{})),

	// KindResize, KindMFNDump, and KindExecute are intentionally absent:
	// per spec.md §9 Open Question (a), these deprecated/obsolete kinds
	// are treated as "unknown" on receive (skipped after their announced
	// length is discarded) and are never sent by this module.
}

// LengthLimits returns the inclusive legal body-size range for a known
// kind, or (Range{}, false) for an unrecognized or deliberately-unmodeled
// kind (spec.md §4.2).
func LengthLimits(k Kind) (Range, bool) {
	r, ok := lengthLimits[k]
	return r, ok
}
