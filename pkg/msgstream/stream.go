// Copyright (c) 2021 by library authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package msgstream implements the protocol state machine of spec.md §4.4:
// a framed, backpressure-safe, reconnecting reader/writer built on top of
// pkg/transport and pkg/proto. It is the direct generalization of
// pkg/core.Session and pkg/core.plainCom's Send/Receive framing to this
// module's wire format — see SPEC_FULL.md §4.4 for the full grounding.
package msgstream

import (
	"bytes"
	"fmt"

	"github.com/QubesOS/qubes-gui-go/pkg/pod"
	"github.com/QubesOS/qubes-gui-go/pkg/proto"
	"github.com/QubesOS/qubes-gui-go/pkg/transport"
)

// Logger is the minimal logging contract Stream calls at the decision
// points the teacher library logs at operationally (ComID allocation,
// property negotiation, session close): state transitions, negotiated
// version, and reconnects. Satisfied trivially by *log.Logger. A nil
// Logger is valid and silent.
type Logger interface {
	Printf(format string, args ...interface{})
}

// Option configures a Stream at construction time, mirroring
// pkg/core.SessionOpt/ControlSessionOpt's functional-option style.
type Option func(*Stream)

// WithLogger attaches a Logger for diagnostic output.
func WithLogger(l Logger) Option {
	return func(s *Stream) { s.logger = l }
}

// WithLocalXConf sets the screen configuration a daemon-role Stream
// advertises during the handshake. Ignored by an agent-role Stream.
func WithLocalXConf(x proto.XConf) Option {
	return func(s *Stream) { s.localXConf = x }
}

// WithPreferredVersion overrides the major/minor an agent-role Stream
// offers during the handshake. Defaults to
// proto.ProtocolVersionMajor/Minor; exists mainly so tests can exercise
// version-mismatch scenarios deterministically.
func WithPreferredVersion(major, minor uint16) Option {
	return func(s *Stream) { s.preferredVersion = proto.PackVersion(major, minor) }
}

// Stream drives spec.md §4.4's state machine over a transport.Stream. It is
// owned by exactly one thread of control at a time (spec.md §5) and is not
// safe for concurrent use.
type Stream struct {
	t    transport.Stream
	role Role
	logger Logger

	state State
	err   error

	writeQueue bytes.Buffer
	readBuf    []byte

	pendingHeader    proto.Header
	discardRemaining int

	preferredVersion uint32
	localXConf       proto.XConf
	negotiated       proto.XConfVersion

	liveWindows map[uint32]struct{}

	reconnected bool

	sentCount      uint64
	recvCount      uint64
	reconnectCount uint64
}

// New constructs a Stream in the Connecting state over an already-open
// transport. The handshake is driven lazily by the first ReadMessage /
// WriteMessage call, mirroring how core.NewControlSession takes an
// already-open drive.DriveIntf rather than opening the device itself.
func New(t transport.Stream, role Role, opts ...Option) *Stream {
	s := &Stream{
		t:                t,
		role:             role,
		state:            Connecting,
		preferredVersion: proto.PackVersion(proto.ProtocolVersionMajor, proto.ProtocolVersionMinor),
		liveWindows:      make(map[uint32]struct{}),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// State reports the current state machine state.
func (s *Stream) State() State { return s.state }

// Err reports the fault that poisoned the stream, or nil if it is healthy.
func (s *Stream) Err() error { return s.err }

// Negotiated reports the daemon's root screen configuration and agreed
// version, valid once the agent-role Stream has left Negotiating. The
// zero value is returned before that point and is meaningless on the
// daemon side, which never receives its own reply back.
func (s *Stream) Negotiated() proto.XConfVersion { return s.negotiated }

// TakeReconnected reports whether a handshake has completed since the last
// call (covering both the initial connection and any Reconnect), clearing
// the flag. Callers use this to know when to re-create window state.
func (s *Stream) TakeReconnected() bool {
	v := s.reconnected
	s.reconnected = false
	return v
}

// Reconnect drops the current transport, installs t in its place, and
// resets the state machine to Connecting, clearing both the write queue and
// the read buffer. It performs no I/O itself; the next ReadMessage or
// WriteMessage call drives the new handshake, mirroring how
// core.NewControlSession never opens the device itself.
func (s *Stream) Reconnect(t transport.Stream) error {
	s.t = t
	s.state = Connecting
	s.err = nil
	s.writeQueue.Reset()
	s.readBuf = s.readBuf[:0]
	s.pendingHeader = proto.Header{}
	s.discardRemaining = 0
	s.reconnectCount++
	s.logf("reconnecting (attempt %d)", s.reconnectCount)
	return nil
}

// AssertWindowLive panics if w is nonzero and not currently tracked as
// live. Window 0 ("no window / root") is always valid. This is the
// "programming error, asserted" rule of spec.md §3's lifecycle paragraph:
// referencing a window that does not exist on the sender's own bookkeeping
// is a bug in the caller, not a runtime error to recover from.
func (s *Stream) AssertWindowLive(w uint32) {
	if w == 0 {
		return
	}
	if _, ok := s.liveWindows[w]; !ok {
		panic(fmt.Sprintf("msgstream: window %d is not live", w))
	}
}

// AssertWindowNew panics if w is zero (CREATE always needs a real window
// number) or already tracked as live.
func (s *Stream) AssertWindowNew(w uint32) {
	if w == 0 {
		panic("msgstream: CREATE requires a nonzero window")
	}
	if _, ok := s.liveWindows[w]; ok {
		panic(fmt.Sprintf("msgstream: window %d already exists", w))
	}
}

func (s *Stream) applyWindowLifecycle(kind proto.Kind, window uint32) {
	switch kind {
	case proto.KindCreate:
		s.liveWindows[window] = struct{}{}
	case proto.KindDestroy:
		delete(s.liveWindows, window)
	}
}

// WriteMessage encodes header+body and queues it for send. It never
// blocks: bytes that do not fit the transport's current buffer space are
// held in an internal deque and drained by subsequent ReadMessage/
// WriteMessage calls (spec.md §4.4 "Write path"). Sending a CREATE for an
// already-live window, a non-CREATE for a window not yet live, or a body
// whose length violates proto.LengthLimits are all programming errors and
// panic rather than returning an error (spec.md §7 bullet 6).
func (s *Stream) WriteMessage(kind proto.Kind, window uint32, body []byte) error {
	if s.state == Error {
		return &StreamError{State: s.state, Err: ErrStreamPoisoned}
	}
	if limits, known := proto.LengthLimits(kind); known && !limits.Contains(len(body)) {
		panic(fmt.Sprintf("msgstream: kind %s body length %d outside %v", kind, len(body), limits))
	}
	if kind == proto.KindCreate {
		s.AssertWindowNew(window)
	} else if window != 0 {
		s.AssertWindowLive(window)
	}

	header := proto.Header{Type: uint32(kind), Window: window, UntrustedLength: uint32(len(body))}
	wire := make([]byte, 0, 12+len(body))
	wire = append(wire, pod.AsBytes(&header)...)
	wire = append(wire, body...)

	if err := s.queueWrite(wire); err != nil {
		return err
	}
	s.applyWindowLifecycle(kind, window)
	s.sentCount++
	return nil
}

// WriteTyped encodes a fixed-layout body type registered with
// proto.KindOf and writes it. It is a free function, not a method, because
// Go methods cannot carry their own type parameters.
func WriteTyped[B any](s *Stream, window uint32, body B) error {
	kind, ok := proto.KindOf[B]()
	if !ok {
		panic("msgstream: body type has no registered proto.Kind")
	}
	return s.WriteMessage(kind, window, proto.EncodeBody(&body))
}

// ReadMessage flushes pending writes (the peer may have read, freeing
// buffer space) and then drives the state machine as far as currently
// available input allows. It returns a zero Header with a nil body and a
// nil error when no complete message is available yet; the returned body
// slice borrows Stream's internal buffer and is only valid until the next
// ReadMessage call.
func (s *Stream) ReadMessage() (proto.Header, []byte, error) {
	if err := s.flushWrites(); err != nil {
		return proto.Header{}, nil, err
	}
	if s.state == Error {
		return proto.Header{}, nil, &StreamError{State: s.state, Err: ErrStreamPoisoned}
	}

	for {
		switch s.state {
		case Connecting:
			done, err := s.stepConnecting()
			if err != nil {
				return proto.Header{}, nil, err
			}
			if !done {
				return proto.Header{}, nil, nil
			}
		case Negotiating:
			done, err := s.stepNegotiating()
			if err != nil {
				return proto.Header{}, nil, err
			}
			if !done {
				return proto.Header{}, nil, nil
			}
		case ReadingHeader:
			h, body, progressed, err := s.stepReadingHeader()
			if err != nil {
				return proto.Header{}, nil, err
			}
			if body != nil {
				s.applyWindowLifecycle(h.Kind(), h.Window)
				s.recvCount++
				return h, body, nil
			}
			if !progressed {
				return proto.Header{}, nil, nil
			}
		case ReadingBody:
			h, body, progressed, err := s.stepReadingBody()
			if err != nil {
				return proto.Header{}, nil, err
			}
			if body != nil {
				s.applyWindowLifecycle(h.Kind(), h.Window)
				s.recvCount++
				return h, body, nil
			}
			if !progressed {
				return proto.Header{}, nil, nil
			}
		case Discard:
			progressed, err := s.stepDiscard()
			if err != nil {
				return proto.Header{}, nil, err
			}
			if !progressed {
				return proto.Header{}, nil, nil
			}
		case Error:
			return proto.Header{}, nil, &StreamError{State: s.state, Err: ErrStreamPoisoned}
		}
	}
}

func (s *Stream) stepConnecting() (done bool, err error) {
	switch s.t.Status() {
	case transport.StatusWaiting:
		return false, nil
	case transport.StatusDisconnected:
		return false, s.poison(ErrDisconnected)
	}
	// Connected.
	if s.role == RoleAgent {
		if err := s.sendHandshake(pod.AsBytes(&s.preferredVersion)); err != nil {
			return false, err
		}
		s.logf("sent preferred version %08x, entering Negotiating", s.preferredVersion)
	} else {
		s.logf("transport connected, entering Negotiating")
	}
	s.state = Negotiating
	return true, nil
}

func (s *Stream) stepNegotiating() (done bool, err error) {
	if s.role == RoleAgent {
		const xconfVersionSize = 20
		if s.t.DataReady() < xconfVersionSize {
			return false, nil
		}
		buf := make([]byte, xconfVersionSize)
		if err := s.t.RecvInto(buf); err != nil {
			return false, s.poison(err)
		}
		daemon, err := pod.FromBytes[proto.XConfVersion](buf)
		if err != nil {
			return false, s.poison(err)
		}
		if err := proto.NegotiateAgent(daemon); err != nil {
			return false, s.poison(fmt.Errorf("%w: %w", ErrVersionMismatch, err))
		}
		s.negotiated = daemon
		s.state = ReadingHeader
		s.reconnected = true
		major, minor := proto.UnpackVersion(daemon.Version)
		s.logf("negotiated version %d.%d, screen %dx%d depth %d", major, minor, daemon.XConf.Width, daemon.XConf.Height, daemon.XConf.Depth)
		return true, nil
	}

	// Daemon role.
	const versionSize = 4
	if s.t.DataReady() < versionSize {
		return false, nil
	}
	buf := make([]byte, versionSize)
	if err := s.t.RecvInto(buf); err != nil {
		return false, s.poison(err)
	}
	agentVersion, err := pod.FromBytes[uint32](buf)
	if err != nil {
		return false, s.poison(err)
	}
	reply, err := proto.NegotiateDaemonReply(agentVersion, s.localXConf)
	if err != nil {
		return false, s.poison(fmt.Errorf("%w: %w", ErrVersionMismatch, err))
	}
	if err := s.sendHandshake(reply); err != nil {
		return false, err
	}
	s.state = ReadingHeader
	major, minor := proto.UnpackVersion(agentVersion)
	s.logf("agent offered %d.%d, replied, entering ReadingHeader", major, minor)
	return true, nil
}

// stepReadingHeader reads the 12-byte header when enough bytes are ready
// and dispatches based on proto.LengthLimits, per spec.md §4.4. It returns
// progressed=true whenever it advanced the state machine even without
// producing a message (e.g. skipping an unknown zero-length kind), so the
// caller's loop keeps driving.
func (s *Stream) stepReadingHeader() (h proto.Header, body []byte, progressed bool, err error) {
	const headerSize = 12
	if s.t.DataReady() < headerSize {
		return proto.Header{}, nil, false, nil
	}
	buf := make([]byte, headerSize)
	if rerr := s.t.RecvInto(buf); rerr != nil {
		return proto.Header{}, nil, false, s.poison(rerr)
	}
	hdr, ferr := pod.FromBytes[proto.Header](buf)
	if ferr != nil {
		return proto.Header{}, nil, false, s.poison(ferr)
	}
	length := int(hdr.UntrustedLength)
	limits, known := proto.LengthLimits(hdr.Kind())
	if !known {
		if length == 0 {
			// Nothing to skip; stay in ReadingHeader and let the loop
			// try the next header immediately.
			return proto.Header{}, nil, true, nil
		}
		s.discardRemaining = length
		s.state = Discard
		return proto.Header{}, nil, true, nil
	}
	if !limits.Contains(length) {
		return proto.Header{}, nil, false, s.poison(fmt.Errorf("%w: kind %s length %d outside %v", ErrFramingViolation, hdr.Kind(), length, limits))
	}
	if length == 0 {
		return hdr, []byte{}, true, nil
	}
	s.pendingHeader = hdr
	s.readBuf = s.readBuf[:0]
	s.state = ReadingBody
	return proto.Header{}, nil, true, nil
}

func (s *Stream) stepReadingBody() (h proto.Header, body []byte, progressed bool, err error) {
	want := int(s.pendingHeader.UntrustedLength)
	remaining := want - len(s.readBuf)
	ready := s.t.DataReady()
	n := remaining
	if ready < n {
		n = ready
	}
	if n <= 0 {
		return proto.Header{}, nil, false, nil
	}
	chunk := make([]byte, n)
	if rerr := s.t.RecvInto(chunk); rerr != nil {
		return proto.Header{}, nil, false, s.poison(rerr)
	}
	s.readBuf = append(s.readBuf, chunk...)
	if len(s.readBuf) < want {
		return proto.Header{}, nil, true, nil
	}
	h = s.pendingHeader
	body = s.readBuf
	s.pendingHeader = proto.Header{}
	s.state = ReadingHeader
	return h, body, true, nil
}

func (s *Stream) stepDiscard() (progressed bool, err error) {
	ready := s.t.DataReady()
	n := s.discardRemaining
	if ready < n {
		n = ready
	}
	if n <= 0 {
		return false, nil
	}
	if derr := s.t.Discard(n); derr != nil {
		return false, s.poison(derr)
	}
	s.discardRemaining -= n
	if s.discardRemaining == 0 {
		s.state = ReadingHeader
	}
	return true, nil
}

// isHandshaking reports whether the state machine is still in its initial
// Connecting/Negotiating phase, during which application writes must not
// be interleaved on the wire with handshake bytes (spec.md §4.4 "Write
// path").
func (s *Stream) isHandshaking() bool {
	return s.state == Connecting || s.state == Negotiating
}

// queueWrite is the single entry point application writes go through.
// During the handshake it force-queues (spec.md §4.4); otherwise it tries
// to flush the existing queue, then tries a direct send of data, falling
// back to queuing whatever didn't fit.
func (s *Stream) queueWrite(data []byte) error {
	if s.state == Error {
		return &StreamError{State: s.state, Err: ErrStreamPoisoned}
	}
	if s.isHandshaking() {
		s.writeQueue.Write(data)
		return nil
	}
	if err := s.flushWrites(); err != nil {
		return err
	}
	if s.writeQueue.Len() == 0 {
		if space := s.t.BufferSpace(); space >= len(data) {
			if err := s.t.Send(data); err != nil {
				return s.poison(err)
			}
			return nil
		}
	}
	s.writeQueue.Write(data)
	return nil
}

// flushWrites drains as much of the pending write queue as currently fits
// the transport's buffer space, in FIFO order. It is a no-op during the
// handshake (see isHandshaking) so the queue only drains once ReadingHeader
// is reached.
func (s *Stream) flushWrites() error {
	if s.isHandshaking() {
		return nil
	}
	if s.writeQueue.Len() == 0 {
		return nil
	}
	space := s.t.BufferSpace()
	if space <= 0 {
		return nil
	}
	n := space
	if n > s.writeQueue.Len() {
		n = s.writeQueue.Len()
	}
	chunk := s.writeQueue.Next(n)
	if err := s.t.Send(chunk); err != nil {
		return s.poison(err)
	}
	return nil
}

// sendHandshake writes handshake bytes (the agent's offered version, or
// the daemon's XConfVersion/XConf reply) directly, bypassing the
// handshake-phase force-queue rule that applies to application writes,
// since these bytes ARE the handshake. If the transport cannot currently
// accept them (an unusually small buffer_space), they are queued like any
// other write and drained by the normal path once negotiation completes.
func (s *Stream) sendHandshake(data []byte) error {
	if space := s.t.BufferSpace(); space < len(data) {
		s.writeQueue.Write(data)
		return nil
	}
	if err := s.t.Send(data); err != nil {
		return s.poison(err)
	}
	return nil
}

func (s *Stream) poison(err error) error {
	faultState := s.state
	s.state = Error
	s.err = err
	s.logf("poisoned: %v", err)
	return &StreamError{State: faultState, Err: err}
}

func (s *Stream) logf(format string, args ...interface{}) {
	if s.logger != nil {
		s.logger.Printf(format, args...)
	}
}
