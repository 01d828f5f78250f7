// Copyright (c) 2021 by library authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package proto catalogs the wire vocabulary of the protocol: the closed
// enumeration of message kinds, the header and per-kind body layouts, and
// the length limits each kind's body must satisfy. It is built entirely on
// pkg/pod so that every type declared here is safe to reinterpret directly
// from untrusted peer bytes.
package proto

import "math"

// Limits and addressing constants from spec.md §6.
const (
	MaxWidth     = 16384
	MaxHeight    = 6144
	PageSize     = 4096
	MaxClipboard = 65000

	CursorDefault uint32 = 0
	CursorX11     uint32 = 0x100
	CursorX11Max  uint32 = 0x19A

	ListeningPort = 6000

	WindowDumpTypeGrantRefs uint32 = 0

	ProtocolVersionMajor uint16 = 1
	ProtocolVersionMinor uint16 = 4

	// MinMinorForFullXConf is the smallest negotiated minor version for
	// which the daemon sends the full XConfVersion (version + 16-byte
	// XConf) rather than the legacy bare XConf during the handshake.
	MinMinorForFullXConf uint16 = 4
)

// MaxGrants is the largest number of page-granular grant references a
// WINDOW_DUMP body can carry: a MaxWidth x MaxHeight x 4-byte-pixel
// framebuffer, rounded up to whole pages.
const MaxGrants = (uint64(MaxWidth)*uint64(MaxHeight)*4 + PageSize - 1) / PageSize

// maxBufBytes is the largest framebuffer byte size this module will ever
// compute (MaxWidth x MaxHeight x 4 bytes/pixel).
const maxBufBytes = uint64(MaxWidth) * uint64(MaxHeight) * 4

// marginMiB must be a non-negative constant: the framebuffer byte-size
// ceiling must leave at least one page of head-room below the u32 range, so
// that grant counts and byte offsets derived from it never wrap. Expressed
// in MiB (rather than bytes) so the array below stays a reasonably sized
// type rather than a multi-gigabyte one.
const marginMiB = (uint64(math.MaxUint32) - uint64(PageSize) - maxBufBytes) / (1024 * 1024)

// A negative marginMiB makes this array length negative, which is a
// compile error: this is the build-time assertion spec.md §4.5 requires
// ("Build-time assertions enforce that MAX_WIDTH x MAX_HEIGHT x 4 cannot
// overflow and stays below u32::MAX - PAGE_SIZE"), following the same
// array-length idiom documented in pkg/pod's package doc.
var _ [marginMiB]struct{}
