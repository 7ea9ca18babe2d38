/*
   x86emu paging.

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

package memio

import (
	"encoding/binary"
	"testing"

	"github.com/BinaryMelodies/x86emu/family"
)

// ramBus is a flat byte-addressed RAM standing in for the host physical
// memory the page-table walker reads through.
type ramBus struct {
	mem [1 << 20]byte
}

func (r *ramBus) MemoryRead(space Space, linear uint64, buf []byte) error {
	copy(buf, r.mem[linear:])
	return nil
}
func (r *ramBus) MemoryWrite(space Space, linear uint64, buf []byte) error {
	copy(r.mem[linear:], buf)
	return nil
}
func (r *ramBus) PortRead(port uint16, buf []byte) error  { return nil }
func (r *ramBus) PortWrite(port uint16, buf []byte) error { return nil }

func TestShapeSelection(t *testing.T) {
	caps386 := family.DefaultCapabilities(family.Family386)
	if s := Shape(&caps386, false, false, false, false); s != family.PagingNone {
		t.Errorf("paging disabled on 386 = %v, want PagingNone", s)
	}
	if s := Shape(&caps386, true, false, false, false); s != family.Paging2Level32 {
		t.Errorf("386 with paging = %v, want Paging2Level32", s)
	}
	if s := Shape(&caps386, true, true, false, false); s != family.Paging3LevelPAE {
		t.Errorf("PAE enabled = %v, want Paging3LevelPAE", s)
	}
	if s := Shape(&caps386, true, true, true, false); s != family.Paging4LevelLong {
		t.Errorf("long mode = %v, want Paging4LevelLong", s)
	}
	if s := Shape(&caps386, true, true, true, true); s != family.Paging5LevelVA57 {
		t.Errorf("VA57 long mode = %v, want Paging5LevelVA57", s)
	}

	capsV33 := family.DefaultCapabilities(family.FamilyV33)
	if s := Shape(&capsV33, false, false, false, false); s != family.PagingV33Legacy {
		t.Errorf("V33 with paging disabled = %v, want PagingV33Legacy", s)
	}
}

func TestWalkPagingNoneIsIdentity(t *testing.T) {
	caps := family.DefaultCapabilities(family.Family386)
	tr := NewTranslator(&caps, &ramBus{})
	phys, f := tr.Walk(SpaceSupervisor, family.PagingNone, 0, 0x12345, Access{}, false)
	if f != nil {
		t.Fatalf("unexpected fault: %v", f)
	}
	if phys != 0x12345 {
		t.Errorf("identity walk = %#x, want 0x12345", phys)
	}
}

// TestWalk2Level32 builds a one-page directory+table mapping 0x00400000 to
// physical frame 0x300000 and checks the walk resolves it.
func TestWalk2Level32(t *testing.T) {
	caps := family.DefaultCapabilities(family.Family386)
	bus := &ramBus{}
	tr := NewTranslator(&caps, bus)

	const cr3 = 0x1000
	const ptBase = 0x2000
	const frame = 0x300000
	linear := uint64(0x00400000 | 0x123)

	dirIdx := (linear >> 22) & 0x3FF
	binary.LittleEndian.PutUint32(bus.mem[cr3+dirIdx*4:], uint32(ptBase|pteOPresent|pteOWrite|pteOUser))

	tblIdx := (linear >> 12) & 0x3FF
	binary.LittleEndian.PutUint32(bus.mem[ptBase+tblIdx*4:], uint32(frame|pteOPresent|pteOWrite|pteOUser))

	phys, f := tr.Walk(SpaceSupervisor, family.Paging2Level32, cr3, linear, Access{}, false)
	if f != nil {
		t.Fatalf("unexpected fault: %v", f)
	}
	if phys != frame|0x123 {
		t.Errorf("phys = %#x, want %#x", phys, frame|0x123)
	}
}

func TestWalkNotPresentFaults(t *testing.T) {
	caps := family.DefaultCapabilities(family.Family386)
	bus := &ramBus{}
	tr := NewTranslator(&caps, bus)
	// cr3 points at an all-zero table: every directory entry is not-present.
	_, f := tr.Walk(SpaceSupervisor, family.Paging2Level32, 0x1000, 0x00400000, Access{}, false)
	if f == nil {
		t.Fatal("a not-present directory entry must raise #PF")
	}
}

func TestWalkWriteToReadOnlyFaults(t *testing.T) {
	caps := family.DefaultCapabilities(family.Family386)
	bus := &ramBus{}
	tr := NewTranslator(&caps, bus)

	const cr3 = 0x1000
	const ptBase = 0x2000
	linear := uint64(0x00400000)
	dirIdx := (linear >> 22) & 0x3FF
	binary.LittleEndian.PutUint32(bus.mem[cr3+dirIdx*4:], uint32(ptBase|pteOPresent|pteOWrite|pteOUser))
	tblIdx := (linear >> 12) & 0x3FF
	// Table entry present but not writable.
	binary.LittleEndian.PutUint32(bus.mem[ptBase+tblIdx*4:], uint32(0x300000|pteOPresent|pteOUser))

	// A user write always honors the read-only bit.
	_, f := tr.Walk(SpaceUser, family.Paging2Level32, cr3, linear, Access{Write: true, User: true}, false)
	if f == nil {
		t.Fatal("a user write to a read-only page must raise #PF")
	}

	// A supervisor write ignores it while CR0.WP is clear (the reset
	// default) and honors it again once WP is set.
	if _, f := tr.Walk(SpaceSupervisor, family.Paging2Level32, cr3, linear, Access{Write: true}, false); f != nil {
		t.Fatalf("a WP=0 supervisor write to a read-only page must succeed, got %v", f)
	}
	if _, f := tr.Walk(SpaceSupervisor, family.Paging2Level32, cr3, linear, Access{Write: true, WP: true}, false); f == nil {
		t.Fatal("a WP=1 supervisor write to a read-only page must raise #PF")
	}
}

func TestWalkSetsAccessedAndDirty(t *testing.T) {
	caps := family.DefaultCapabilities(family.Family386)
	bus := &ramBus{}
	tr := NewTranslator(&caps, bus)

	const cr3 = 0x1000
	const ptBase = 0x2000
	linear := uint64(0x00400000)
	dirIdx := (linear >> 22) & 0x3FF
	tblIdx := (linear >> 12) & 0x3FF
	binary.LittleEndian.PutUint32(bus.mem[cr3+dirIdx*4:], uint32(ptBase|pteOPresent|pteOWrite))
	binary.LittleEndian.PutUint32(bus.mem[ptBase+tblIdx*4:], uint32(0x300000|pteOPresent|pteOWrite))

	if _, f := tr.Walk(SpaceSupervisor, family.Paging2Level32, cr3, linear, Access{}, false); f != nil {
		t.Fatalf("unexpected fault: %v", f)
	}
	dir := binary.LittleEndian.Uint32(bus.mem[cr3+dirIdx*4:])
	tbl := binary.LittleEndian.Uint32(bus.mem[ptBase+tblIdx*4:])
	if dir&uint32(pteOAccessed) == 0 || tbl&uint32(pteOAccessed) == 0 {
		t.Fatalf("a read walk must set A in every visited entry: dir=%#x tbl=%#x", dir, tbl)
	}
	if tbl&uint32(pteODirty) != 0 {
		t.Fatal("a read walk must not set D")
	}

	if _, f := tr.Walk(SpaceSupervisor, family.Paging2Level32, cr3, linear, Access{Write: true}, false); f != nil {
		t.Fatalf("unexpected fault: %v", f)
	}
	tbl = binary.LittleEndian.Uint32(bus.mem[ptBase+tblIdx*4:])
	if tbl&uint32(pteODirty) == 0 {
		t.Fatal("a write walk must set D in the leaf entry")
	}
}

func TestWalk4LevelLong(t *testing.T) {
	caps := family.DefaultCapabilities(family.FamilyIntel64)
	bus := &ramBus{}
	tr := NewTranslator(&caps, bus)

	const pml4 = 0x1000
	const pdpt = 0x2000
	const pd = 0x3000
	const pt = 0x4000
	const frame = 0x500000
	linear := uint64(0x123456)

	put := func(base uint64, idx uint64, val uint64) {
		binary.LittleEndian.PutUint64(bus.mem[base+idx*8:], val)
	}
	flags := pteOPresent | pteOWrite
	put(pml4, (linear>>39)&0x1FF, pdpt|flags)
	put(pdpt, (linear>>30)&0x1FF, pd|flags)
	put(pd, (linear>>21)&0x1FF, pt|flags)
	put(pt, (linear>>12)&0x1FF, frame|flags)

	phys, f := tr.Walk(SpaceSupervisor, family.Paging4LevelLong, pml4, linear, Access{}, false)
	if f != nil {
		t.Fatalf("unexpected fault: %v", f)
	}
	if phys != frame|(linear&0xFFF) {
		t.Errorf("phys = %#x, want %#x", phys, frame|(linear&0xFFF))
	}
}
