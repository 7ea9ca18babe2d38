/*
   x86emu host memory/IO substrate interface.

   Copyright (c) 2026, The x86emu Authors

   Permission is hereby granted, free of charge, to any person obtaining a
   copy of this software and associated documentation files (the "Software"),
   to deal in the Software without restriction, including without limitation
   the rights to use, copy, modify, merge, publish, distribute, sublicense,
   and/or sell copies of the Software, and to permit persons to whom the
   Software is furnished to do so, subject to the following conditions:

   The above copyright notice and this permission notice shall be included in
   all copies or substantial portions of the Software.

   THE SOFTWARE IS PROVIDED "AS IS", WITHOUT WARRANTY OF ANY KIND, EXPRESS OR
   IMPLIED, INCLUDING BUT NOT LIMITED TO THE WARRANTIES OF MERCHANTABILITY,
   FITNESS FOR A PARTICULAR PURPOSE AND NONINFRINGEMENT.  IN NO EVENT SHALL
   THE AUTHORS BE LIABLE FOR ANY CLAIM, DAMAGES OR OTHER LIABILITY, WHETHER
   IN AN ACTION OF CONTRACT, TORT OR OTHERWISE, ARISING FROM, OUT OF OR IN
   CONNECTION WITH THE SOFTWARE OR THE USE OR OTHER DEALINGS IN THE SOFTWARE.

*/

// Package memio implements the segmentation, paging, prefetch-queue, and
// port-dispatch layer. It owns no physical storage itself: raw bytes come
// from a host-supplied Bus, so memory and port callbacks stay external
// collaborators the host is free to implement however it likes.
package memio

// Space identifies which of the host's address spaces a physical access
// targets: user, supervisor, SMM, or ICE.
type Space int

const (
	SpaceUser Space = iota
	SpaceSupervisor
	SpaceSMM
	SpaceICE
)

// Bus is the host-supplied physical memory and port substrate. The core
// never touches storage directly; every fetch, read, and write funnels
// through these four calls, which the host is free to implement however
// it likes (RAM array, MMIO dispatch, shared memory, ...).
//
// Implementations must not mutate guest registers; the callbacks are
// collaborators, not participants in guest state.
type Bus interface {
	MemoryRead(space Space, linear uint64, buf []byte) error
	MemoryWrite(space Space, linear uint64, buf []byte) error
	PortRead(port uint16, buf []byte) error
	PortWrite(port uint16, buf []byte) error
}

// X80Bus is the separate bus a non-emulated (standalone) x80 submachine
// uses: "For a CPU configured with a non-emulated x80,
// separate memory_fetch/read/write and port_read/write for the 8080/Z80 bus."
type X80Bus interface {
	MemoryFetch(addr uint16) (byte, error)
	MemoryRead(addr uint16) (byte, error)
	MemoryWrite(addr uint16, value byte) error
	PortRead(port uint16) (byte, error)
	PortWrite(port uint16, value byte) error
}
