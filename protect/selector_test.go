/*
   x86emu selector load privilege checks.

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

package protect

import (
	"testing"

	"github.com/BinaryMelodies/x86emu/register"
)

// putDataDescriptor writes a present, writable, non-conforming data
// descriptor of the given DPL at table index.
func putDataDescriptor(bus *fakeTableBus, index uint16, dpl uint8) {
	off := uint32(index) * 8
	access := byte(0x90 | (dpl&3)<<5 | 0x2) // P=1 S=1 type=0010 (data, writable)
	copy(bus.mem[off:], []byte{0xFF, 0xFF, 0, 0, 0, access, 0xC0, 0})
}

func putCodeDescriptor(bus *fakeTableBus, index uint16, dpl uint8, conforming bool) {
	off := uint32(index) * 8
	typeField := byte(0xA) // code, non-conforming, readable
	if conforming {
		typeField = 0xE
	}
	access := byte(0x80) | (dpl&3)<<5 | 0x10 | typeField
	copy(bus.mem[off:], []byte{0xFF, 0xFF, 0, 0, 0, access, 0xC0, 0})
}

func TestLoadDataSegmentNullSelectorOK(t *testing.T) {
	bus := newFakeTableBus()
	tables := Tables{GDTLimit: 0xFFFF}
	seg, f := LoadDataSegment(bus, tables, 0, 3, false)
	if f != nil {
		t.Fatalf("a null DS/ES/FS/GS selector must be allowed: %v", f)
	}
	if seg.Selector != 0 {
		t.Errorf("Selector = %#x, want 0", seg.Selector)
	}
}

func TestLoadDataSegmentNullSelectorFaultsForSS(t *testing.T) {
	bus := newFakeTableBus()
	tables := Tables{GDTLimit: 0xFFFF}
	_, f := LoadDataSegment(bus, tables, 0, 3, true)
	if f == nil {
		t.Fatal("a null SS selector must fault")
	}
}

func TestLoadDataSegmentPrivilegeCheck(t *testing.T) {
	bus := newFakeTableBus()
	putDataDescriptor(bus, 1, 0) // DPL 0
	tables := Tables{GDTLimit: 0xFFFF}

	// CPL 3, RPL 3 selecting a DPL-0 data segment: not accessible.
	sel := uint16(1)<<3 | 3
	if _, f := LoadDataSegment(bus, tables, sel, 3, false); f == nil {
		t.Error("CPL 3 / RPL 3 must not reach a DPL-0 data segment")
	}

	putDataDescriptor(bus, 2, 3) // DPL 3
	sel = uint16(2)<<3 | 3
	if _, f := LoadDataSegment(bus, tables, sel, 3, false); f != nil {
		t.Errorf("CPL 3 / RPL 3 on a DPL-3 data segment should succeed: %v", f)
	}
}

func TestLoadDataSegmentSSRequiresExactMatch(t *testing.T) {
	bus := newFakeTableBus()
	putDataDescriptor(bus, 1, 0)
	tables := Tables{GDTLimit: 0xFFFF}

	sel := uint16(1)<<3 | 0
	if _, f := LoadDataSegment(bus, tables, sel, 0, true); f != nil {
		t.Errorf("CPL 0 / RPL 0 / DPL 0 stack load should succeed: %v", f)
	}

	putDataDescriptor(bus, 2, 3)
	sel = uint16(2)<<3 | 3
	if _, f := LoadDataSegment(bus, tables, sel, 0, true); f == nil {
		t.Error("a stack selector must require RPL == CPL == DPL exactly")
	}
}

func TestLoadCodeSegmentNonConformingRequiresExactDPL(t *testing.T) {
	bus := newFakeTableBus()
	putCodeDescriptor(bus, 1, 0, false)
	tables := Tables{GDTLimit: 0xFFFF}

	sel := uint16(1)<<3 | 0
	if _, f := LoadCodeSegment(bus, tables, sel, 0); f != nil {
		t.Errorf("CPL 0 into a DPL-0 non-conforming code segment should succeed: %v", f)
	}
	if _, f := LoadCodeSegment(bus, tables, sel, 3); f == nil {
		t.Error("CPL 3 must not reach a DPL-0 non-conforming code segment directly")
	}
}

func TestLoadCodeSegmentConformingAllowsLowerDPL(t *testing.T) {
	bus := newFakeTableBus()
	putCodeDescriptor(bus, 1, 0, true)
	tables := Tables{GDTLimit: 0xFFFF}

	sel := uint16(1)<<3 | 3
	if _, f := LoadCodeSegment(bus, tables, sel, 3); f != nil {
		t.Errorf("CPL 3 into a conforming DPL-0 code segment should succeed: %v", f)
	}
}

func TestLoadDataSegmentRejectsSystemDescriptor(t *testing.T) {
	bus := newFakeTableBus()
	off := uint32(2) * 8
	copy(bus.mem[off:], []byte{0xFF, 0xFF, 0, 0, 0, 0x82, 0xC0, 0}) // S=0 (system), present
	tables := Tables{GDTLimit: 0xFFFF}
	sel := uint16(2) << 3
	if _, f := LoadDataSegment(bus, tables, sel, 0, false); f == nil {
		t.Error("loading a system descriptor into a data segment register must fault")
	}
}

func TestLoadDataSegmentSetsAccessedBit(t *testing.T) {
	bus := newFakeTableBus()
	putDataDescriptor(bus, 1, 3)
	tables := Tables{GDTLimit: 0xFFFF}

	if bus.mem[1*8+5]&0x01 != 0 {
		t.Fatal("descriptor unexpectedly starts with the accessed bit set")
	}
	sel := uint16(1)<<3 | 3
	seg, f := LoadDataSegment(bus, tables, sel, 3, false)
	if f != nil {
		t.Fatalf("load failed: %v", f)
	}
	if bus.mem[1*8+5]&0x01 == 0 {
		t.Error("a successful load must set the accessed bit in table memory")
	}
	if seg.Access&register.AccessAccessed == 0 {
		t.Error("the cached segment must carry the accessed bit too")
	}
}

func TestLoadCodeSegmentSetsAccessedBit(t *testing.T) {
	bus := newFakeTableBus()
	putCodeDescriptor(bus, 1, 0, false)
	tables := Tables{GDTLimit: 0xFFFF}

	if _, f := LoadCodeSegment(bus, tables, 1<<3, 0); f != nil {
		t.Fatalf("load failed: %v", f)
	}
	if bus.mem[1*8+5]&0x01 == 0 {
		t.Error("a successful code-segment load must set the accessed bit in table memory")
	}
}

// putTSSDescriptor writes a present, available 32-bit TSS descriptor.
func putTSSDescriptor(bus *fakeTableBus, index uint16, busy bool) {
	off := uint32(index) * 8
	access := byte(0x80 | 0x09) // P=1 S=0 type=TSS32 available
	if busy {
		access |= 0x02
	}
	copy(bus.mem[off:], []byte{0x67, 0x00, 0, 0x10, 0, access, 0x00, 0})
}

func TestLoadTRSetsBusyBit(t *testing.T) {
	bus := newFakeTableBus()
	putTSSDescriptor(bus, 1, false)
	tables := Tables{GDTLimit: 0xFFFF}

	seg, f := LoadTR(bus, tables, 1<<3)
	if f != nil {
		t.Fatalf("LTR of an available TSS failed: %v", f)
	}
	if seg.Base != 0x1000 {
		t.Errorf("TR base = %#x, want 0x1000", seg.Base)
	}
	if bus.mem[1*8+5]&0x02 == 0 {
		t.Error("LTR must set the busy bit in the descriptor table")
	}

	// A second LTR of the now-busy TSS must fault.
	if _, f := LoadTR(bus, tables, 1<<3); f == nil {
		t.Error("LTR of an already-busy TSS must raise #GP")
	}
}

func TestLoadTRRejectsLDTSelectorsAndNull(t *testing.T) {
	bus := newFakeTableBus()
	putTSSDescriptor(bus, 1, false)
	tables := Tables{GDTLimit: 0xFFFF, LDTLimit: 0xFFFF}

	if _, f := LoadTR(bus, tables, 0); f == nil {
		t.Error("LTR of a null selector must fault")
	}
	if _, f := LoadTR(bus, tables, 1<<3|0x4); f == nil {
		t.Error("LTR of an LDT-resident selector must fault")
	}
}

// putLDTDescriptor writes a present LDT system descriptor.
func putLDTDescriptor(bus *fakeTableBus, index uint16) {
	off := uint32(index) * 8
	copy(bus.mem[off:], []byte{0x67, 0x00, 0, 0x20, 0, 0x82, 0x00, 0})
}

func TestLoadLDTR(t *testing.T) {
	bus := newFakeTableBus()
	putLDTDescriptor(bus, 2)
	putDataDescriptor(bus, 3, 0)
	tables := Tables{GDTLimit: 0xFFFF}

	seg, f := LoadLDTR(bus, tables, 2<<3)
	if f != nil {
		t.Fatalf("LLDT of an LDT descriptor failed: %v", f)
	}
	if seg.Base != 0x2000 {
		t.Errorf("LDTR base = %#x, want 0x2000", seg.Base)
	}

	// A null selector just leaves the LDTR unusable.
	if _, f := LoadLDTR(bus, tables, 0); f != nil {
		t.Errorf("LLDT of a null selector must succeed: %v", f)
	}

	// A non-LDT system type must fault.
	if _, f := LoadLDTR(bus, tables, 3<<3); f == nil {
		t.Error("LLDT of a data-segment descriptor must raise #GP")
	}
}
