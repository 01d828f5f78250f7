// Copyright (c) 2021 by library authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package proto

import "fmt"

// Kind is the wire number of a message, per spec.md §6. It is a closed
// enumeration: encode/decode helpers in this package only know the kinds
// declared below, and pkg/msgstream treats every other value as an unknown
// kind to be skipped rather than an error (spec.md §4.4/§7).
type Kind uint32

const (
	KindKeypress       Kind = 124
	KindButton         Kind = 125
	KindMotion         Kind = 126
	KindCrossing       Kind = 127
	KindFocus          Kind = 128
	KindResize         Kind = 129 // obsolete, see LengthLimits
	KindCreate         Kind = 130
	KindDestroy        Kind = 131
	KindMap            Kind = 132
	KindUnmap          Kind = 133
	KindConfigure      Kind = 134
	KindMFNDump        Kind = 135 // deprecated, see LengthLimits
	KindShmImage       Kind = 136
	KindClose          Kind = 137
	KindExecute        Kind = 138 // deprecated, see LengthLimits
	KindClipboardReq   Kind = 139
	KindClipboardData  Kind = 140
	KindSetTitle       Kind = 141
	KindKeymapNotify   Kind = 142
	KindDock           Kind = 143
	KindWindowHints    Kind = 144
	KindWindowFlags    Kind = 145
	KindWindowClass    Kind = 146
	KindWindowDump     Kind = 147
	KindCursor         Kind = 148
)

var kindNames = map[Kind]string{
	KindKeypress:      "KEYPRESS",
	KindButton:        "BUTTON",
	KindMotion:        "MOTION",
	KindCrossing:      "CROSSING",
	KindFocus:         "FOCUS",
	KindResize:        "RESIZE",
	KindCreate:        "CREATE",
	KindDestroy:       "DESTROY",
	KindMap:           "MAP",
	KindUnmap:         "UNMAP",
	KindConfigure:     "CONFIGURE",
	KindMFNDump:       "MFNDUMP",
	KindShmImage:      "SHMIMAGE",
	KindClose:         "CLOSE",
	KindExecute:       "EXECUTE",
	KindClipboardReq:  "CLIPBOARD_REQ",
	KindClipboardData: "CLIPBOARD_DATA",
	KindSetTitle:      "SET_TITLE",
	KindKeymapNotify:  "KEYMAP_NOTIFY",
	KindDock:          "DOCK",
	KindWindowHints:   "WINDOW_HINTS",
	KindWindowFlags:   "WINDOW_FLAGS",
	KindWindowClass:   "WINDOW_CLASS",
	KindWindowDump:    "WINDOW_DUMP",
	KindCursor:        "CURSOR",
}

// String renders a known kind by name and an unknown one as Kind(N), where
// N is its wire number.
func (k Kind) String() string {
	if name, ok := kindNames[k]; ok {
		return name
	}
	return fmt.Sprintf("Kind(%d)", uint32(k))
}

// Direction describes which side of the connection may originate a kind.
type Direction int

const (
	AgentToDaemon Direction = iota
	DaemonToAgent
	Bidirectional
)

var kindDirections = map[Kind]Direction{
	KindKeypress:      DaemonToAgent,
	KindButton:        DaemonToAgent,
	KindMotion:        DaemonToAgent,
	KindCrossing:      DaemonToAgent,
	KindFocus:         DaemonToAgent,
	KindResize:        DaemonToAgent,
	KindCreate:        AgentToDaemon,
	KindDestroy:       Bidirectional,
	KindMap:           Bidirectional,
	KindUnmap:         AgentToDaemon,
	KindConfigure:     Bidirectional,
	KindMFNDump:       AgentToDaemon,
	KindShmImage:      AgentToDaemon,
	KindClose:         DaemonToAgent,
	KindExecute:       DaemonToAgent,
	KindClipboardReq:  DaemonToAgent,
	KindClipboardData: Bidirectional,
	KindSetTitle:      AgentToDaemon,
	KindKeymapNotify:  DaemonToAgent,
	KindDock:          AgentToDaemon,
	KindWindowHints:   AgentToDaemon,
	KindWindowFlags:   Bidirectional,
	KindWindowClass:   AgentToDaemon,
	KindWindowDump:    AgentToDaemon,
	KindCursor:        AgentToDaemon,
}

// DirectionOf reports the permitted direction of a known kind.
func DirectionOf(k Kind) (Direction, bool) {
	d, ok := kindDirections[k]
	return d, ok
}
