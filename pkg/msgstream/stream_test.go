// Copyright (c) 2021 by library authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package msgstream

import (
	"bytes"
	"testing"

	"github.com/QubesOS/qubes-gui-go/pkg/pod"
	"github.com/QubesOS/qubes-gui-go/pkg/proto"
	"github.com/QubesOS/qubes-gui-go/pkg/transport/memtransport"
)

// handshake wires an agent and a daemon Stream over an in-memory pair and
// drives both sides until the handshake completes, returning the streams
// and the raw transports so a test can inject bytes directly as either
// peer when a scenario needs to bypass WriteMessage (e.g. to send an
// unknown or deliberately-oversize kind).
func handshake(t *testing.T) (agent, daemon *Stream, agentTransport, daemonTransport *memtransport.MemTransport) {
	t.Helper()
	at, dt := memtransport.NewPair()
	agent = New(at, RoleAgent)
	daemon = New(dt, RoleDaemon, WithLocalXConf(proto.XConf{Width: 1024, Height: 768, Depth: 24, MemKiB: 4096}))

	for i := 0; i < 4; i++ {
		if _, _, err := agent.ReadMessage(); err != nil {
			t.Fatalf("agent handshake step %d: %v", i, err)
		}
		if _, _, err := daemon.ReadMessage(); err != nil {
			t.Fatalf("daemon handshake step %d: %v", i, err)
		}
		if agent.State() == ReadingHeader && daemon.State() == ReadingHeader {
			break
		}
	}
	if agent.State() != ReadingHeader {
		t.Fatalf("agent did not reach ReadingHeader, stuck in %s (%v)", agent.State(), agent.Err())
	}
	if daemon.State() != ReadingHeader {
		t.Fatalf("daemon did not reach ReadingHeader, stuck in %s (%v)", daemon.State(), daemon.Err())
	}
	if !agent.TakeReconnected() {
		t.Error("agent did not raise reconnected after initial handshake")
	}
	return agent, daemon, at, dt
}

func TestHandshakeNegotiatesVersionAndScreen(t *testing.T) {
	agent, _, _, _ := handshake(t)
	xv := agent.Negotiated()
	major, minor := proto.UnpackVersion(xv.Version)
	if major != proto.ProtocolVersionMajor || minor != proto.ProtocolVersionMinor {
		t.Errorf("negotiated version %d.%d, want %d.%d", major, minor, proto.ProtocolVersionMajor, proto.ProtocolVersionMinor)
	}
	if xv.XConf.Width != 1024 || xv.XConf.Height != 768 {
		t.Errorf("negotiated XConf = %+v, want 1024x768", xv.XConf)
	}
}

func TestHandshakeMajorMismatchIsFatal(t *testing.T) {
	at, dt := memtransport.NewPair()
	agent := New(at, RoleAgent, WithPreferredVersion(2, 0))
	daemon := New(dt, RoleDaemon, WithLocalXConf(proto.XConf{Width: 640, Height: 480, Depth: 24}))

	for i := 0; i < 4; i++ {
		agent.ReadMessage()
		daemon.ReadMessage()
	}
	if daemon.State() != Error {
		t.Fatalf("daemon state = %s, want Error", daemon.State())
	}
	if daemon.Err() == nil {
		t.Fatal("expected a negotiation error, got nil")
	}
}

func TestMinimalWindowScenario(t *testing.T) {
	agent, daemon, _, _ := handshake(t)

	create := proto.CreateBody{X: 50, Y: 400, W: 512, H: 256, OverrideRedirect: 0}
	if err := WriteTyped(agent, 50, create); err != nil {
		t.Fatalf("WriteTyped CREATE: %v", err)
	}
	title := proto.SetTitleBody{}
	if err := title.SetTitle("demo"); err != nil {
		t.Fatal(err)
	}
	if err := WriteTyped(agent, 50, title); err != nil {
		t.Fatalf("WriteTyped SET_TITLE: %v", err)
	}
	if err := WriteTyped(agent, 50, proto.MapBody{}); err != nil {
		t.Fatalf("WriteTyped MAP: %v", err)
	}

	var got []proto.Kind
	for i := 0; i < 3; i++ {
		h, body, err := daemon.ReadMessage()
		if err != nil {
			t.Fatalf("daemon ReadMessage: %v", err)
		}
		if body == nil {
			t.Fatalf("expected message %d, got none", i)
		}
		got = append(got, h.Kind())
		if h.Window != 50 {
			t.Errorf("message %d window = %d, want 50", i, h.Window)
		}
		switch h.Kind() {
		case proto.KindCreate:
			b, err := proto.DecodeBody[proto.CreateBody](body)
			if err != nil || b.W != 512 || b.H != 256 {
				t.Errorf("CREATE body mismatch: %+v, err %v", b, err)
			}
		case proto.KindSetTitle:
			b, err := proto.DecodeBody[proto.SetTitleBody](body)
			if err != nil || b.Title() != "demo" {
				t.Errorf("SET_TITLE body mismatch: %q, err %v", b.Title(), err)
			}
		}
	}
	want := []proto.Kind{proto.KindCreate, proto.KindSetTitle, proto.KindMap}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("message %d kind = %s, want %s", i, got[i], want[i])
		}
	}
}

func TestInputDeliveryPreservesCoordinates(t *testing.T) {
	agent, daemon, _, _ := handshake(t)

	if err := WriteTyped(daemon, 0, proto.MotionBody{X: 10, Y: 20, State: 0, IsHint: 0}); err != nil {
		t.Fatal(err)
	}
	if err := WriteTyped(daemon, 0, proto.ButtonBody{Type: 4, X: 10, Y: 20, State: 0, Button: 1}); err != nil {
		t.Fatal(err)
	}
	if err := WriteTyped(daemon, 0, proto.ButtonBody{Type: 5, X: 10, Y: 20, State: 0, Button: 1}); err != nil {
		t.Fatal(err)
	}

	kinds := []proto.Kind{proto.KindMotion, proto.KindButton, proto.KindButton}
	for i, k := range kinds {
		h, body, err := agent.ReadMessage()
		if err != nil {
			t.Fatalf("message %d: %v", i, err)
		}
		if h.Kind() != k {
			t.Fatalf("message %d kind = %s, want %s", i, h.Kind(), k)
		}
		switch h.Kind() {
		case proto.KindMotion:
			b, _ := proto.DecodeBody[proto.MotionBody](body)
			if b.X != 10 || b.Y != 20 {
				t.Errorf("MOTION coords = (%d,%d), want (10,20)", b.X, b.Y)
			}
		case proto.KindButton:
			b, _ := proto.DecodeBody[proto.ButtonBody](body)
			if b.X != 10 || b.Y != 20 {
				t.Errorf("BUTTON coords = (%d,%d), want (10,20)", b.X, b.Y)
			}
		}
	}
}

func TestUnknownKindIsSkippedNotFatal(t *testing.T) {
	agent, _, _, daemonTransport := handshake(t)

	// A window must be live before CLOSE can reference it; fake that as
	// if a prior CREATE had already been observed.
	agent.liveWindows[1] = struct{}{}

	hdr := proto.Header{Type: 9999, Window: 1, UntrustedLength: 7}
	raw := append(pod.AsBytes(&hdr), []byte{1, 2, 3, 4, 5, 6, 7}...)
	closeHdr := proto.Header{Type: uint32(proto.KindClose), Window: 1, UntrustedLength: 0}
	raw = append(raw, pod.AsBytes(&closeHdr)...)

	if err := daemonTransport.Send(raw); err != nil {
		t.Fatal(err)
	}

	h, body, err := agent.ReadMessage()
	if err != nil {
		t.Fatalf("ReadMessage: %v", err)
	}
	if h.Kind() != proto.KindClose {
		t.Fatalf("got kind %s, want CLOSE", h.Kind())
	}
	if len(body) != 0 {
		t.Errorf("CLOSE body length = %d, want 0", len(body))
	}
}

func TestOutOfRangeBodyLengthTransitionsToError(t *testing.T) {
	agent, _, _, daemonTransport := handshake(t)

	hdr := proto.Header{Type: uint32(proto.KindMotion), Window: 0, UntrustedLength: 5}
	raw := append(pod.AsBytes(&hdr), []byte{1, 2, 3, 4, 5}...)
	if err := daemonTransport.Send(raw); err != nil {
		t.Fatal(err)
	}

	if _, _, err := agent.ReadMessage(); err == nil {
		t.Fatal("expected framing error, got nil")
	}
	if agent.State() != Error {
		t.Fatalf("state = %s, want Error", agent.State())
	}
	if _, _, err := agent.ReadMessage(); err == nil {
		t.Fatal("expected subsequent reads to keep failing")
	}
}

func TestChunkedWriteFramingRobustness(t *testing.T) {
	agent, daemon, agentTransport, _ := handshake(t)
	// 29 bytes divides neither the 12-byte header nor the 140-byte message,
	// so every message reaches the daemon split across several sends.
	agentTransport.SetSendLimit(29)

	title := proto.SetTitleBody{}
	title.SetTitle("x")
	for i := 0; i < 10; i++ {
		if err := WriteTyped(agent, 0, title); err != nil {
			t.Fatalf("write %d: %v", i, err)
		}
	}

	received := 0
	for iterations := 0; received < 10 && iterations < 100; iterations++ {
		agent.ReadMessage() // flushes the next chunk of the queue
		h, body, err := daemon.ReadMessage()
		if err != nil {
			t.Fatalf("read %d: %v", received, err)
		}
		if body == nil {
			continue
		}
		if h.Kind() != proto.KindSetTitle {
			t.Fatalf("kind = %s, want SET_TITLE", h.Kind())
		}
		received++
	}
	if received != 10 {
		t.Fatalf("received %d of 10 messages", received)
	}
}

func TestBackpressureQueueDrainsInOrder(t *testing.T) {
	agent, daemon, agentTransport, _ := handshake(t)
	agentTransport.SetSendLimit(40)

	for i := 0; i < 10; i++ {
		title := proto.SetTitleBody{}
		title.SetTitle(string(rune('a' + i)))
		if err := WriteTyped(agent, 0, title); err != nil {
			t.Fatalf("write %d: %v", i, err)
		}
	}

	var got []string
	for iterations := 0; len(got) < 10 && iterations < 200; iterations++ {
		agentTransport.SetSendLimit(40) // drain in bounded increments
		agent.ReadMessage()             // flushes more of the queue
		h, body, err := daemon.ReadMessage()
		if err != nil {
			t.Fatalf("read: %v", err)
		}
		if body == nil {
			continue
		}
		if h.Kind() != proto.KindSetTitle {
			t.Fatalf("kind = %s", h.Kind())
		}
		b, _ := proto.DecodeBody[proto.SetTitleBody](body)
		got = append(got, b.Title())
	}
	if len(got) != 10 {
		t.Fatalf("received %d of 10 messages", len(got))
	}
	for i, s := range got {
		want := string(rune('a' + i))
		if s != want {
			t.Errorf("message %d = %q, want %q (order corrupted)", i, s, want)
		}
	}
}

func TestClipboardSizeBoundary(t *testing.T) {
	agent, daemon, _, daemonTransport := handshake(t)

	ok := bytes.Repeat([]byte("a"), proto.MaxClipboard)
	if err := agent.WriteMessage(proto.KindClipboardData, 0, ok); err != nil {
		t.Fatalf("exact-boundary clipboard write: %v", err)
	}
	h, body, err := daemon.ReadMessage()
	if err != nil || body == nil || h.Kind() != proto.KindClipboardData || len(body) != proto.MaxClipboard {
		t.Fatalf("expected %d-byte CLIPBOARD_DATA, got %d bytes, err %v", proto.MaxClipboard, len(body), err)
	}

	tooLong := proto.MaxClipboard + 1
	hdr := proto.Header{Type: uint32(proto.KindClipboardData), Window: 0, UntrustedLength: uint32(tooLong)}
	raw := append(pod.AsBytes(&hdr), bytes.Repeat([]byte("b"), tooLong)...)
	if err := daemonTransport.Send(raw); err != nil {
		t.Fatal(err)
	}
	if _, _, err := agent.ReadMessage(); err == nil {
		t.Fatal("expected oversize clipboard payload to fault the stream")
	}
	if agent.State() != Error {
		t.Fatalf("agent state = %s, want Error", agent.State())
	}
}

func TestWriteDuringHandshakeIsQueuedNotSentEarly(t *testing.T) {
	at, dt := memtransport.NewPair()
	agent := New(at, RoleAgent)
	daemon := New(dt, RoleDaemon, WithLocalXConf(proto.XConf{Width: 100, Height: 100, Depth: 24}))

	title := proto.SetTitleBody{}
	title.SetTitle("early")
	if err := agent.WriteMessage(proto.KindSetTitle, 0, pod.AsBytes(&title)); err != nil {
		t.Fatalf("queue during handshake: %v", err)
	}

	// The queued title may arrive in the same ReadMessage call that
	// finishes draining the handshake, so it must be captured as it comes
	// rather than re-read afterward.
	var h proto.Header
	var body []byte
	for i := 0; i < 10 && body == nil; i++ {
		agent.ReadMessage()
		dh, dbody, err := daemon.ReadMessage()
		if err != nil {
			t.Fatalf("daemon ReadMessage: %v", err)
		}
		if dbody != nil {
			h, body = dh, dbody
		}
	}
	if agent.State() != ReadingHeader || daemon.State() != ReadingHeader {
		t.Fatalf("handshake did not complete: agent=%s(%v) daemon=%s(%v)", agent.State(), agent.Err(), daemon.State(), daemon.Err())
	}
	if body == nil || h.Kind() != proto.KindSetTitle {
		t.Fatalf("expected queued SET_TITLE to arrive intact after handshake, got kind %s body %v", h.Kind(), body)
	}
}

func TestAssertWindowLiveAndNewPanic(t *testing.T) {
	agent, _, _, _ := handshake(t)

	t.Run("double create panics", func(t *testing.T) {
		defer func() {
			if recover() == nil {
				t.Fatal("expected panic on double CREATE")
			}
		}()
		create := proto.CreateBody{X: 1, Y: 1, W: 10, H: 10}
		if err := WriteTyped(agent, 7, create); err != nil {
			t.Fatal(err)
		}
		WriteTyped(agent, 7, create)
	})

	t.Run("destroy of unknown window panics", func(t *testing.T) {
		defer func() {
			if recover() == nil {
				t.Fatal("expected panic destroying an unknown window")
			}
		}()
		agent.WriteMessage(proto.KindDestroy, 999, nil)
	})
}

func TestReconnectResetsStateAndRaisesReconnectedOnce(t *testing.T) {
	agent, _, _, _ := handshake(t)
	if agent.TakeReconnected() {
		t.Fatal("reconnected flag should already be consumed")
	}

	at2, dt2 := memtransport.NewPair()
	if err := agent.Reconnect(at2); err != nil {
		t.Fatalf("Reconnect: %v", err)
	}
	if agent.State() != Connecting {
		t.Fatalf("state after Reconnect = %s, want Connecting", agent.State())
	}
	daemon2 := New(dt2, RoleDaemon, WithLocalXConf(proto.XConf{Width: 320, Height: 240, Depth: 24}))

	for i := 0; i < 4; i++ {
		agent.ReadMessage()
		daemon2.ReadMessage()
		if agent.State() == ReadingHeader {
			break
		}
	}
	if agent.State() != ReadingHeader {
		t.Fatalf("agent stuck in %s after reconnect (%v)", agent.State(), agent.Err())
	}
	if !agent.TakeReconnected() {
		t.Error("reconnected flag not raised after successful reconnect handshake")
	}
	if agent.TakeReconnected() {
		t.Error("reconnected flag should clear after being taken once")
	}
}
