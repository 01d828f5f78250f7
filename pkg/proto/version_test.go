// Copyright (c) 2021 by library authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package proto

import (
	"testing"
	"unsafe"
)

func TestPackUnpackVersionRoundTrip(t *testing.T) {
	v := PackVersion(1, 4)
	major, minor := UnpackVersion(v)
	if major != 1 || minor != 4 {
		t.Fatalf("got %d.%d, want 1.4", major, minor)
	}
}

func TestNegotiateAgentAccepts(t *testing.T) {
	xv := XConfVersion{Version: PackVersion(ProtocolVersionMajor, ProtocolVersionMinor)}
	if err := NegotiateAgent(xv); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestNegotiateAgentRejectsOldMinor(t *testing.T) {
	xv := XConfVersion{Version: PackVersion(ProtocolVersionMajor, MinMinorForFullXConf-1)}
	if err := NegotiateAgent(xv); err == nil {
		t.Fatalf("expected error for minor below MinMinorForFullXConf")
	}
}

func TestNegotiateAgentRejectsMajorMismatch(t *testing.T) {
	xv := XConfVersion{Version: PackVersion(ProtocolVersionMajor+1, ProtocolVersionMinor)}
	if err := NegotiateAgent(xv); err == nil {
		t.Fatalf("expected error for major mismatch")
	}
}

func TestNegotiateDaemonReplyFullForNewAgent(t *testing.T) {
	local := XConf{Width: 1024, Height: 768, Depth: 24, MemKiB: 4096}
	reply, err := NegotiateDaemonReply(PackVersion(ProtocolVersionMajor, ProtocolVersionMinor), local)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(reply) != int(unsafe.Sizeof(XConfVersion{})) {
		t.Fatalf("got %d bytes, want %d (full XConfVersion)", len(reply), unsafe.Sizeof(XConfVersion{}))
	}
}

func TestNegotiateDaemonReplyLegacyForOldAgent(t *testing.T) {
	local := XConf{Width: 1024, Height: 768, Depth: 24, MemKiB: 4096}
	reply, err := NegotiateDaemonReply(PackVersion(ProtocolVersionMajor, MinMinorForFullXConf-1), local)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(reply) != int(unsafe.Sizeof(XConf{})) {
		t.Fatalf("got %d bytes, want %d (bare XConf)", len(reply), unsafe.Sizeof(XConf{}))
	}
}

func TestNegotiateDaemonReplyRejectsMajorMismatch(t *testing.T) {
	local := XConf{}
	if _, err := NegotiateDaemonReply(PackVersion(ProtocolVersionMajor+1, 0), local); err == nil {
		t.Fatalf("expected error for major mismatch")
	}
}
