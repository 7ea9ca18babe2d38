/*
   x86emu descriptor parsing.

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

// legacyCodeDescriptor builds an 8-byte descriptor for a present, DPL-0,
// 32-bit, non-conforming, readable code segment with base 0x00100000 and
// limit 0xFFFFF (page-granular).
func legacyCodeDescriptor() []byte {
	return []byte{
		0xFF, 0xFF, // limit low
		0x00, 0x00, 0x10, // base low/mid
		0b1001_1010, // P=1 DPL=00 S=1 type=1010 (code, readable, non-conforming)
		0b1100_1111, // G=1 D=1 L=0 AVL=0 limit high nibble = F
		0x00,        // base high
	}
}

func TestParseLegacyCodeSegment(t *testing.T) {
	d := ParseLegacy(legacyCodeDescriptor())
	if !d.Present || !d.IsCode || d.IsSystem {
		t.Fatalf("decoded flags wrong: %+v", d)
	}
	if d.DPL != 0 {
		t.Errorf("DPL = %d, want 0", d.DPL)
	}
	if d.Base != 0x00100000 {
		t.Errorf("Base = %#x, want 0x00100000", d.Base)
	}
	if d.Limit != 0xFFFFF {
		t.Errorf("Limit = %#x, want 0xFFFFF", d.Limit)
	}
	if !d.Granular || !d.Default32 {
		t.Error("G and D/B bits should both be set")
	}
	if d.Conforming {
		t.Error("type 1010 is non-conforming")
	}
	if !d.Readable {
		t.Error("type 1010 is readable")
	}
}

func TestParseLegacyDataExpandDown(t *testing.T) {
	raw := []byte{
		0xFF, 0xFF,
		0x00, 0x00, 0x00,
		0b1001_0110, // P=1 DPL=0 S=1 type=0110 (data, expand-down, writable)
		0b0100_1111,
		0x00,
	}
	d := ParseLegacy(raw)
	if d.IsCode {
		t.Fatal("type 0110 is a data segment")
	}
	if !d.ExpandDown {
		t.Error("bit 2 of a data-segment type field selects expand-down")
	}
}

func TestParseLongExtendsBase(t *testing.T) {
	raw := make([]byte, 16)
	copy(raw, legacyCodeDescriptor())
	// Upper 32 base bits, little-endian, in the high quadword.
	raw[8], raw[9], raw[10], raw[11] = 0x78, 0x56, 0x34, 0x12
	d := ParseLong(raw)
	if d.Base != 0x1234567800100000 {
		t.Errorf("Base = %#x, want 0x1234567800100000", d.Base)
	}
}

func TestToSegmentRoundTripsAccessWord(t *testing.T) {
	d := ParseLegacy(legacyCodeDescriptor())
	seg := ToSegment(d, 0x08)
	if seg.Selector != 0x08 {
		t.Errorf("Selector = %#x, want 0x08", seg.Selector)
	}
	if !seg.IsCode() {
		t.Error("ToSegment must preserve the executable bit")
	}
	if seg.DPL() != 0 {
		t.Errorf("DPL() = %d, want 0", seg.DPL())
	}
	if seg.Access&register.AccessGranular == 0 {
		t.Error("granular bit must survive into the access word")
	}
}

func TestFetchRejectsOutOfLimitIndex(t *testing.T) {
	bus := newFakeTableBus()
	copy(bus.mem[0:8], legacyCodeDescriptor())
	// Table limit of 7 means only index 0 (bytes 0-7) is valid.
	_, f := Fetch(bus, 0, 7, 1, false, 0x0D)
	if f == nil {
		t.Fatal("an index beyond the table limit must fault")
	}
}

func TestFetchReturnsParsedDescriptor(t *testing.T) {
	bus := newFakeTableBus()
	copy(bus.mem[8:16], legacyCodeDescriptor())
	d, f := Fetch(bus, 0, 0xFFFF, 1, false, 0x0D)
	if f != nil {
		t.Fatalf("unexpected fault: %v", f)
	}
	if !d.IsCode || d.Base != 0x00100000 {
		t.Errorf("Fetch(index=1) decoded wrong descriptor: %+v", d)
	}
}
