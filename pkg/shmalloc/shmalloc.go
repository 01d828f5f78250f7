// Copyright (c) 2021 by library authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package shmalloc implements the shared-buffer allocator: a page-granular,
// writable framebuffer whose backing physical pages are exportable to a
// peer VM via pkg/grant, packaged as a ready-to-send WINDOW_DUMP wire body.
// It is the direct generalization of pkg/core.Core's one-long-lived-handle
// pattern to this module's own resource: where Core shares a
// drive.DriveIntf with every ControlSession/Session it creates, an
// Allocator shares a grant-device handle with every Buffer it creates.
package shmalloc

import (
	"encoding/binary"
	"fmt"
	"sync"
	"unsafe"

	"golang.org/x/sys/unix"

	"github.com/QubesOS/qubes-gui-go/pkg/grant"
	"github.com/QubesOS/qubes-gui-go/pkg/pod"
	"github.com/QubesOS/qubes-gui-go/pkg/proto"
)

// Logger is the minimal logging contract Allocator calls at the points the
// teacher logs at operationally (ComID allocation, session close): here,
// grant allocation, a failed release after a failed mmap, and closing the
// device while buffers are still open. A nil Logger is valid and silent.
type Logger interface {
	Printf(format string, args ...interface{})
}

// Option configures an Allocator at construction time, mirroring
// pkg/msgstream.Option's functional-option style.
type Option func(*Allocator)

// WithGrantDevice sets the open grant-device file descriptor Alloc/Dealloc/
// Mmap calls go through. Required; AllocBuffer fails with
// ErrGrantDeviceNotConfigured without it.
func WithGrantDevice(fd uintptr) Option {
	return func(a *Allocator) { a.handle.fd = fd; a.handle.hasFD = true }
}

// WithPeerDomain sets the domain ID buffers are granted to. Defaults to 0.
func WithPeerDomain(domain uint16) Option {
	return func(a *Allocator) { a.handle.domain = domain }
}

// WithLogger attaches a Logger for diagnostic output.
func WithLogger(l Logger) Option {
	return func(a *Allocator) { a.logger = l }
}

// allocatorHandle is the non-owning, ref-counted state an Allocator shares
// with every Buffer it creates — the same weak-reference relationship
// ControlSession.d gives every child Session, adapted with a refcount so
// whichever of Allocator/Buffer is closed first still releases the grants
// exactly once (spec's "Destruction" rule: a live Buffer releases its own
// grants on Close; once the Allocator itself has closed the device, the OS
// has already released anything still outstanding).
type allocatorHandle struct {
	mu       sync.Mutex
	fd       uintptr
	hasFD    bool
	domain   uint16
	alive    bool
	liveBufs int
}

func (h *allocatorHandle) retain() {
	h.mu.Lock()
	h.liveBufs++
	h.mu.Unlock()
}

func (h *allocatorHandle) release() (stillAlive bool) {
	h.mu.Lock()
	h.liveBufs--
	stillAlive = h.alive
	h.mu.Unlock()
	return stillAlive
}

func (h *allocatorHandle) snapshot() (fd uintptr, domain uint16, alive bool) {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.fd, h.domain, h.alive
}

// Allocator is the shared grant-device handle, analogous to Core wrapping a
// drive.DriveIntf: every Buffer it creates borrows the same fd/domain
// without owning them.
type Allocator struct {
	handle *allocatorHandle
	logger Logger
}

// NewAllocator constructs an Allocator. WithGrantDevice must be supplied
// for AllocBuffer to do anything useful; it is a separate option rather
// than a required constructor argument so tests can exercise the
// validation-only paths of AllocBuffer without a real device.
func NewAllocator(opts ...Option) *Allocator {
	a := &Allocator{handle: &allocatorHandle{alive: true}}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

// Close marks the Allocator's handle dead and closes the underlying grant
// device. Any Buffer still open at this point relies on the OS having
// released its grants as a side effect of the device fd closing, per
// spec's drop-order rule; Close only logs if buffers were still live, it
// does not wait for or force their release.
func (a *Allocator) Close() error {
	a.handle.mu.Lock()
	a.handle.alive = false
	live := a.handle.liveBufs
	fd, hasFD := a.handle.fd, a.handle.hasFD
	a.handle.mu.Unlock()
	if live > 0 {
		a.logf("closing grant device with %d buffer(s) still open", live)
	}
	if !hasFD {
		return nil
	}
	return unix.Close(int(fd))
}

func (a *Allocator) logf(format string, args ...interface{}) {
	if a.logger != nil {
		a.logger.Printf(format, args...)
	}
}

// grantCount returns the page-granular grant count a width x height, 4
// bytes/pixel framebuffer needs, and the exact byte size it implies. It is
// the pure formula of spec.md §4.5's constraints, split out so tests can
// exercise it without any OS interaction.
func grantCount(width, height uint32) (byteSize uint64, grants uint64) {
	byteSize = uint64(width) * uint64(height) * 4
	grants = (byteSize + proto.PageSize - 1) / proto.PageSize
	return byteSize, grants
}

// Buffer is a page-granular, writable framebuffer exported to a peer VM.
// It exclusively owns its mapping and its grants; see Close.
type Buffer struct {
	handle *allocatorHandle

	pixels []byte // mmap'd framebuffer; write-only, see Write
	wire   []byte // WindowDumpHeader + grant IDs, ready to send

	offset     uint64
	grantCount uint32
	byteSize   uint64

	mu     sync.Mutex
	closed bool
}

// headerSize is sizeof(proto.WindowDumpHeader), the fixed portion at the
// front of the wire buffer before the grant-ID array.
const headerSize = int(unsafe.Sizeof(proto.WindowDumpHeader{}))

// AllocBuffer implements the four-step construction algorithm of spec.md
// §4.5: size and validate the request, ask pkg/grant for page-granular
// grant references, map them read/write into this process, then overwrite
// the leading header bytes of the wire buffer with the WINDOW_DUMP header
// — the grant IDs parsed out of the allocation reply already sit
// immediately after it in memory, so the whole buffer is the message body
// verbatim.
func (a *Allocator) AllocBuffer(width, height uint32) (*Buffer, error) {
	if width == 0 || width > proto.MaxWidth || height == 0 || height > proto.MaxHeight {
		return nil, ErrDimensionsOutOfRange
	}
	byteSize, grants := grantCount(width, height)
	if grants > proto.MaxGrants {
		return nil, ErrGrantCountExceeded
	}

	fd, domain, alive := a.handle.snapshot()
	if !alive {
		return nil, ErrAllocatorClosed
	}
	if !a.handle.hasFD {
		return nil, ErrGrantDeviceNotConfigured
	}

	pad := (4 - headerSize%4) % 4
	wire := make([]byte, headerSize+pad+4*int(grants))

	offset, ids, err := grant.Alloc(fd, domain, true, uint32(grants))
	if err != nil {
		return nil, fmt.Errorf("shmalloc: grant allocation failed: %w", err)
	}
	for i, id := range ids {
		start := headerSize + pad + 4*i
		binary.LittleEndian.PutUint32(wire[start:start+4], id)
	}

	mapLen := int(grants) * proto.PageSize
	pixels, err := grant.Mmap(fd, offset, mapLen)
	if err != nil {
		if derr := grant.Dealloc(fd, offset, uint32(grants)); derr != nil {
			a.logf("dealloc after failed mmap: %v", derr)
		}
		return nil, fmt.Errorf("shmalloc: mmap failed: %w", err)
	}

	hdr := proto.WindowDumpHeader{Type: proto.WindowDumpTypeGrantRefs, Width: width, Height: height, Bpp: 24}
	copy(wire[:headerSize], pod.AsBytes(&hdr))

	a.handle.retain()
	buf := &Buffer{
		handle:     a.handle,
		pixels:     pixels,
		wire:       wire,
		offset:     offset,
		grantCount: uint32(grants),
		byteSize:   byteSize,
	}
	a.logf("allocated %dx%d buffer: %d grants at offset %d", width, height, grants, offset)
	return buf, nil
}

// Write copies data into the mapped framebuffer at offset. offset and
// len(data) must both be multiples of 4, and offset+len(data) must not
// exceed the buffer's byte size. The peer may modify these same pages at
// any moment without synchronization (spec.md §4.5 "Cross-VM safety"), so
// Buffer never exposes a read path — write-only is the whole contract.
func (b *Buffer) Write(offset int, data []byte) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return ErrBufferClosed
	}
	if offset%4 != 0 || len(data)%4 != 0 {
		return ErrMisaligned
	}
	if offset < 0 || uint64(offset)+uint64(len(data)) > b.byteSize {
		return ErrWriteOutOfRange
	}
	copy(b.pixels[offset:], data)
	return nil
}

// DumpMessage returns the ready-to-send WINDOW_DUMP wire body: the
// WindowDumpHeader followed immediately by the allocated grant IDs.
func (b *Buffer) DumpMessage() []byte {
	return b.wire
}

// Close unmaps the framebuffer, then releases its grants if the owning
// Allocator's handle is still alive — otherwise the OS already released
// them when the Allocator closed the grant device (spec.md §4.5
// "Destruction").
func (b *Buffer) Close() error {
	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return nil
	}
	b.closed = true
	pixels := b.pixels
	b.mu.Unlock()

	var errs []error
	if err := grant.Munmap(pixels); err != nil {
		errs = append(errs, fmt.Errorf("munmap: %w", err))
	}

	stillAlive := b.handle.release()
	if stillAlive {
		fd, _, _ := b.handle.snapshot()
		if err := grant.Dealloc(fd, b.offset, b.grantCount); err != nil {
			errs = append(errs, fmt.Errorf("dealloc: %w", err))
		}
	}
	if len(errs) > 0 {
		return fmt.Errorf("shmalloc: close: %v", errs)
	}
	return nil
}
