// Copyright (c) 2021 by library authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package msgstream

// State is the message-stream's explicit state, spec.md §3/§4.4. It is an
// enum rather than suspended coroutines: cancellation and re-entry after a
// transport that isn't ready yet are both just "call the public method
// again later," which an enum makes observable and testable without an
// async runtime.
type State int

const (
	Connecting State = iota
	Negotiating
	ReadingHeader
	ReadingBody
	Discard
	Error
)

func (s State) String() string {
	switch s {
	case Connecting:
		return "Connecting"
	case Negotiating:
		return "Negotiating"
	case ReadingHeader:
		return "ReadingHeader"
	case ReadingBody:
		return "ReadingBody"
	case Discard:
		return "Discard"
	case Error:
		return "Error"
	default:
		return "<Unknown>"
	}
}

// Role determines which side of the transport handshake a Stream plays:
// the agent listens and sends its version first, the daemon connects and
// replies with the negotiated XConfVersion (spec.md §6 "Handshake").
type Role int

const (
	RoleAgent Role = iota
	RoleDaemon
)

func (r Role) String() string {
	switch r {
	case RoleAgent:
		return "agent"
	case RoleDaemon:
		return "daemon"
	default:
		return "<Unknown>"
	}
}
