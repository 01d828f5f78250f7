// Copyright (c) 2021 by library authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package proto

import (
	"fmt"
	"unsafe"

	"github.com/QubesOS/qubes-gui-go/pkg/pod"
)

// XConf is the daemon's root-window configuration, sent once at the start
// of a connection before any headered message (spec.md §6 "Handshake").
type XConf struct {
	Width  uint32
	Height uint32
	Depth  uint32
	MemKiB uint32
}

var _ [unsafe.Sizeof(XConf{}) - 16]struct{}

// XConfVersion prefixes XConf with the daemon's packed protocol version.
// Whether a daemon sends this or the bare 16-byte XConf depends on the
// minor version the agent offered during negotiation; see NegotiateAgent
// and NegotiateDaemonReply.
type XConfVersion struct {
	Version uint32
	XConf   XConf
}

var _ [unsafe.Sizeof(XConfVersion{}) - 20]struct{}

// PackVersion combines a major/minor pair into the wire's single u32
// version field: high 16 bits major, low 16 bits minor.
func PackVersion(major, minor uint16) uint32 {
	return uint32(major)<<16 | uint32(minor)
}

// UnpackVersion splits a wire version u32 back into major/minor.
func UnpackVersion(v uint32) (major, minor uint16) {
	return uint16(v >> 16), uint16(v)
}

// NegotiationError reports an incompatible peer protocol version.
type NegotiationError struct {
	OurMajor, OurMinor   uint16
	PeerMajor, PeerMinor uint16
}

func (e *NegotiationError) Error() string {
	return fmt.Sprintf("proto: version negotiation failed: peer is %d.%d, we are %d.%d",
		e.PeerMajor, e.PeerMinor, e.OurMajor, e.OurMinor)
}

// NegotiateAgent validates the daemon's reply during Negotiating on the
// agent side. The agent always waits for the full 20-byte XConfVersion
// before validating: a daemon offering a minor below MinMinorForFullXConf
// is rejected outright, rather than re-read as a bare 16-byte XConf. This
// matches the reference client, which never accepts a pre-negotiation
// (legacy) daemon reply on the agent side.
func NegotiateAgent(daemon XConfVersion) error {
	daemonMajor, daemonMinor := UnpackVersion(daemon.Version)
	if daemonMajor != ProtocolVersionMajor || daemonMinor < MinMinorForFullXConf || daemonMinor > ProtocolVersionMinor {
		return &NegotiationError{
			OurMajor: ProtocolVersionMajor, OurMinor: ProtocolVersionMinor,
			PeerMajor: daemonMajor, PeerMinor: daemonMinor,
		}
	}
	return nil
}

// NegotiateDaemonReply computes the daemon's reply to an agent's offered
// version during Negotiating on the daemon side. It returns the bytes the
// daemon should write to the wire: the full 20-byte XConfVersion once the
// negotiated minor is at least MinMinorForFullXConf, or the bare 16-byte
// XConf for an older agent that does not understand the versioned form.
func NegotiateDaemonReply(agentVersion uint32, local XConf) ([]byte, error) {
	agentMajor, agentMinor := UnpackVersion(agentVersion)
	if agentMajor != ProtocolVersionMajor {
		return nil, &NegotiationError{
			OurMajor: ProtocolVersionMajor, OurMinor: ProtocolVersionMinor,
			PeerMajor: agentMajor, PeerMinor: agentMinor,
		}
	}
	negotiatedMinor := agentMinor
	if negotiatedMinor > ProtocolVersionMinor {
		negotiatedMinor = ProtocolVersionMinor
	}
	if negotiatedMinor >= MinMinorForFullXConf {
		xv := XConfVersion{Version: PackVersion(ProtocolVersionMajor, negotiatedMinor), XConf: local}
		return pod.AsBytes(&xv), nil
	}
	return pod.AsBytes(&local), nil
}
