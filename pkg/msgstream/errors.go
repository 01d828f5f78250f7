// Copyright (c) 2021 by library authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package msgstream

import (
	"errors"
	"fmt"
)

// Sentinel errors for the §7 failure taxonomy, mirroring
// pkg/core/session.go's ErrTPerSyncNotSupported/ErrSessionAlreadyClosed
// style: distinct named errors a caller can errors.Is against, rather than
// ad hoc fmt.Errorf strings.
var (
	// ErrFramingViolation covers a known kind whose announced length
	// falls outside proto.LengthLimits. Errors returned by the transport
	// itself (such as a short read) poison the stream as they are, without
	// this sentinel.
	ErrFramingViolation = errors.New("msgstream: framing violation")

	// ErrVersionMismatch is a fatal version disagreement during
	// Negotiating: a different major on either side, or on the agent side
	// a daemon minor the agent does not accept. The underlying
	// *proto.NegotiationError is wrapped alongside it.
	ErrVersionMismatch = errors.New("msgstream: protocol version mismatch")

	// ErrDisconnected is raised when the transport reports
	// StatusDisconnected during an active session.
	ErrDisconnected = errors.New("msgstream: transport disconnected")

	// ErrStreamPoisoned is returned by any call made after the stream
	// has already transitioned to Error.
	ErrStreamPoisoned = errors.New("msgstream: stream is poisoned, drop it")
)

// StreamError wraps a fault with the state the machine was in when it
// happened, mirroring method.ErrMethodStatusInvalidParameter-style typed
// errors that carry context beyond a bare sentinel.
type StreamError struct {
	State State
	Err   error
}

func (e *StreamError) Error() string {
	return fmt.Sprintf("msgstream: in state %s: %v", e.State, e.Err)
}

func (e *StreamError) Unwrap() error { return e.Err }
