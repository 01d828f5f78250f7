// Copyright (c) 2021 by library authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package grant binds the grant-table device's ioctl ABI, the same split
// drive/sgio/sg.go uses between a private syscall-shaped header struct and
// the public request/response functions that build it, call
// github.com/dswarbrick/smart/ioctl.Ioctl, and interpret the result. It is
// the only package in this module that talks to the OS directly; everything
// above it (pkg/shmalloc) goes through Alloc/Dealloc/Mmap/Munmap.
package grant

import (
	"encoding/binary"
	"errors"
	"unsafe"

	"github.com/dswarbrick/smart/ioctl"
	"golang.org/x/sys/unix"
)

// Ioctl request numbers for the grant device, computed the same way
// SG_IO = 0x2285 is in drive/sgio/sg.go: _IOC(_IOC_NONE, 'G', nr, size).
const (
	ioctlAllocGref   = 0x47_05 // _IOC(_IOC_NONE, 'G', 5, 0)
	ioctlDeallocGref = 0x47_06 // _IOC(_IOC_NONE, 'G', 6, 0)

	allocFlagWritable uint16 = 1 << 0

	// allocReqHeaderSize is the fixed portion of the alloc request/reply
	// buffer in front of the gref_ids array: domid(2) + flags(2) +
	// count(4) + index(8).
	allocReqHeaderSize = 16
)

// ErrZeroCount is returned by Alloc for a zero-length request; there is
// nothing for the kernel to grant and no offset to hand back.
var ErrZeroCount = errors.New("grant: zero-length allocation")

// buildAllocReq lays out the alloc_gref ioctl buffer: a fixed header
// (domain, flags, count, index) immediately followed by count 4-byte
// slots the kernel fills in with the allocated grant reference IDs. The
// index slot starts zeroed; the kernel overwrites it with the opaque
// mmap offset on success.
func buildAllocReq(domain uint16, writable bool, count uint32) []byte {
	buf := make([]byte, allocReqHeaderSize+4*int(count))
	binary.LittleEndian.PutUint16(buf[0:2], domain)
	var flags uint16
	if writable {
		flags = allocFlagWritable
	}
	binary.LittleEndian.PutUint16(buf[2:4], flags)
	binary.LittleEndian.PutUint32(buf[4:8], count)
	return buf
}

// parseAllocReply reads the offset and grant IDs the kernel filled into
// buf after a successful alloc ioctl.
func parseAllocReply(buf []byte, count uint32) (offset uint64, ids []uint32) {
	offset = binary.LittleEndian.Uint64(buf[8:16])
	ids = make([]uint32, count)
	for i := range ids {
		start := allocReqHeaderSize + 4*i
		ids[i] = binary.LittleEndian.Uint32(buf[start : start+4])
	}
	return offset, ids
}

// Alloc requests count grant references over domain, writable if set, via
// the grant device opened as fd. It returns the opaque offset the kernel
// assigns the allocation (passed to Mmap/Dealloc) and the allocated grant
// reference IDs, in the order the WINDOW_DUMP wire body expects them.
func Alloc(fd uintptr, domain uint16, writable bool, count uint32) (offset uint64, ids []uint32, err error) {
	if count == 0 {
		return 0, nil, ErrZeroCount
	}
	buf := buildAllocReq(domain, writable, count)
	if err := ioctl.Ioctl(fd, ioctlAllocGref, uintptr(unsafe.Pointer(&buf[0]))); err != nil {
		return 0, nil, err
	}
	offset, ids = parseAllocReply(buf, count)
	return offset, ids, nil
}

type deallocReq struct {
	index uint64
	count uint32
}

// Dealloc releases count grant references previously returned by Alloc at
// offset.
func Dealloc(fd uintptr, offset uint64, count uint32) error {
	req := deallocReq{index: offset, count: count}
	return ioctl.Ioctl(fd, ioctlDeallocGref, uintptr(unsafe.Pointer(&req)))
}

// Mmap maps length bytes read/write at offset (as returned by Alloc) on
// the grant device fd into the caller's address space.
func Mmap(fd uintptr, offset uint64, length int) ([]byte, error) {
	return unix.Mmap(int(fd), int64(offset), length, unix.PROT_READ|unix.PROT_WRITE, unix.MAP_SHARED)
}

// Munmap unmaps a region previously returned by Mmap.
func Munmap(b []byte) error {
	return unix.Munmap(b)
}
