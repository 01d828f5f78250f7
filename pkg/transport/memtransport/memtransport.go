// Copyright (c) 2021 by library authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package memtransport is an in-memory, chunkable implementation of
// pkg/transport.Stream, used only by pkg/msgstream's tests to drive the
// chunked-write and backpressure scenarios of spec.md §8 without a real
// vchan binding. It is not part of the module's public surface for
// production use; a real vchan binding is out of scope (spec.md §1).
package memtransport

import (
	"io"
	"sync"

	"github.com/QubesOS/qubes-gui-go/pkg/transport"
)

// MemTransport is one directional end of an in-memory pipe pair. Writes go
// into out, reads come from in; both are plain byte queues guarded by a
// mutex so the two ends of a NewPair() can live on the same goroutine in
// tests.
type MemTransport struct {
	mu     sync.Mutex
	in     []byte
	out    *MemTransport // peer's read queue we append to on Send
	status transport.Status

	// sendLimit caps BufferSpace/Send to simulate a peer that is slow to
	// drain, letting tests exercise pkg/msgstream's backpressure queue.
	// 0 means unlimited.
	sendLimit int
}

// NewPair returns two MemTransports wired so that Send on one makes bytes
// available to RecvInto/DataReady/Discard on the other.
func NewPair() (a, b *MemTransport) {
	a = &MemTransport{status: transport.StatusConnected}
	b = &MemTransport{status: transport.StatusConnected}
	a.out = b
	b.out = a
	return a, b
}

// SetStatus forces the reported Status(), for tests exercising
// Connecting/Disconnected transitions.
func (m *MemTransport) SetStatus(s transport.Status) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.status = s
}

// SetSendLimit bounds how many bytes BufferSpace() reports as available
// and Send() will accept in one call, simulating a peer with a small or
// full inter-VM ring buffer.
func (m *MemTransport) SetSendLimit(n int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.sendLimit = n
}

func (m *MemTransport) Status() transport.Status {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.status
}

func (m *MemTransport) DataReady() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.in)
}

func (m *MemTransport) BufferSpace() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.sendLimit <= 0 {
		return 1 << 30
	}
	return m.sendLimit
}

func (m *MemTransport) Wait() error {
	// Nothing to actually block on in-memory; tests drive the state
	// machine by calling ReadMessage directly after feeding bytes.
	return nil
}

func (m *MemTransport) Send(p []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.sendLimit > 0 && len(p) > m.sendLimit {
		return io.ErrShortWrite
	}
	m.out.appendIn(p)
	return nil
}

func (m *MemTransport) appendIn(p []byte) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.in = append(m.in, p...)
}

func (m *MemTransport) RecvInto(dst []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if len(dst) > len(m.in) {
		return io.ErrUnexpectedEOF
	}
	copy(dst, m.in[:len(dst)])
	m.in = m.in[len(dst):]
	return nil
}

func (m *MemTransport) Discard(n int) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if n > len(m.in) {
		return io.ErrUnexpectedEOF
	}
	m.in = m.in[n:]
	return nil
}

func (m *MemTransport) Fd() int { return -1 }

var _ transport.Stream = (*MemTransport)(nil)
