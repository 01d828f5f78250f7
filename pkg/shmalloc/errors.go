// Copyright (c) 2021 by library authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package shmalloc

import "errors"

// Sentinel errors for the shared-buffer allocator, mirroring pkg/core's
// ErrNotSupported-style distinct named errors over ad hoc fmt.Errorf
// strings.
var (
	// ErrDimensionsOutOfRange is returned by AllocBuffer for a width or
	// height of zero or greater than proto.MaxWidth/MaxHeight.
	ErrDimensionsOutOfRange = errors.New("shmalloc: width/height outside the permitted range")

	// ErrGrantCountExceeded is returned when the requested framebuffer
	// would need more page-granular grants than proto.MaxGrants allows.
	ErrGrantCountExceeded = errors.New("shmalloc: framebuffer needs more grants than permitted")

	// ErrAllocatorClosed is returned by AllocBuffer once the owning
	// Allocator has been closed.
	ErrAllocatorClosed = errors.New("shmalloc: allocator is closed")

	// ErrBufferClosed is returned by Write on an already-closed Buffer.
	ErrBufferClosed = errors.New("shmalloc: buffer is closed")

	// ErrMisaligned is returned by Write for an offset or length that is
	// not a multiple of 4 bytes.
	ErrMisaligned = errors.New("shmalloc: offset/length must be a multiple of 4 bytes")

	// ErrWriteOutOfRange is returned by Write when offset+len(data) would
	// exceed the buffer's byte size.
	ErrWriteOutOfRange = errors.New("shmalloc: write out of buffer range")

	// ErrGrantDeviceNotConfigured is returned by AllocBuffer when the
	// Allocator was never given a grant device via WithGrantDevice.
	ErrGrantDeviceNotConfigured = errors.New("shmalloc: no grant device configured")
)
