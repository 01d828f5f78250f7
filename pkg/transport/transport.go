// Copyright (c) 2021 by library authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package transport declares the contract pkg/msgstream depends on to move
// bytes to and from a peer, without committing to any particular
// transport. A real binding (vchan) is out of scope for this module; what
// matters here is the shape of the dependency, the same way pkg/drive
// depends on a DriveIntf it never implements itself.
package transport

// Status mirrors a connection's coarse state, as reported by the
// underlying transport.
type Status int

const (
	StatusWaiting Status = iota
	StatusConnected
	StatusDisconnected
)

func (s Status) String() string {
	switch s {
	case StatusWaiting:
		return "waiting"
	case StatusConnected:
		return "connected"
	case StatusDisconnected:
		return "disconnected"
	default:
		return "unknown"
	}
}

// Stream is the non-blocking transport contract pkg/msgstream drives. All
// methods except Wait must never block: Send returns an error rather than
// stalling when p does not fit, RecvInto/Discard only ever consume bytes
// already reported by DataReady.
type Stream interface {
	// Status reports the current connection state.
	Status() Status

	// DataReady returns the number of bytes currently available to read
	// without blocking.
	DataReady() int

	// BufferSpace returns the number of bytes that can be queued for
	// send without blocking.
	BufferSpace() int

	// Wait blocks until the transport becomes readable, writable, or
	// its status changes. It is the only method allowed to block.
	Wait() error

	// Send writes p to the transport. It must not block; if fewer than
	// len(p) bytes fit, Send returns an error rather than partially
	// queuing — callers are responsible for chunking against
	// BufferSpace themselves (see msgstream's backpressure queue).
	Send(p []byte) error

	// RecvInto reads exactly len(dst) bytes into dst. The caller must
	// have already confirmed DataReady() >= len(dst).
	RecvInto(dst []byte) error

	// Discard drops the next n ready bytes without copying them out.
	Discard(n int) error

	// Fd returns the underlying file descriptor, for integration with
	// an external poll/epoll loop. -1 if the transport has none.
	Fd() int
}
