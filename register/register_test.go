/*
   x86emu register file.

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

package register

import "testing"

func TestByteAccessorWithoutREX(t *testing.T) {
	b := NewBank()
	b.SetWord(0, 0xABCD) // AX = 0xABCD
	if got := b.GetByte(0); got != 0xCD {
		t.Errorf("AL = %#x, want 0xCD", got)
	}
	if got := b.GetByte(4); got != 0xAB {
		t.Errorf("without REX, index 4 should read AH = 0xAB, got %#x", got)
	}
	b.SetByte(4, 0xFF)
	if got := b.GetWord(0); got != 0xFFCD {
		t.Errorf("writing AH should leave AL untouched: AX = %#x, want 0xFFCD", got)
	}
}

func TestByteAccessorWithREX(t *testing.T) {
	b := NewBank()
	b.REXActive = true
	b.SetWord(4, 0x1234) // SP = 0x1234
	if got := b.GetByte(4); got != 0x34 {
		t.Errorf("with REX, index 4 should read SPL = 0x34, got %#x", got)
	}
	b.SetByte(4, 0x99)
	if got := b.GetWord(4); got != 0x1299 {
		t.Errorf("SPL write should leave the high byte of SP untouched: got %#x, want 0x1299", got)
	}
}

func TestSetDwordZeroExtends(t *testing.T) {
	b := NewBank()
	b.SetQword(0, 0xFFFFFFFFFFFFFFFF)
	b.SetDword(0, 0x12345678)
	if got := b.GetQword(0); got != 0x12345678 {
		t.Errorf("a 32-bit write must zero-extend to 64 bits, got %#x", got)
	}
}

func TestSegmentLoadRealMode(t *testing.T) {
	b := NewBank()
	b.SegmentLoadRealMode(DS, 0x1234, false)
	s := &b.Seg[DS]
	if s.Base != 0x12340 {
		t.Errorf("base = %#x, want 0x12340", s.Base)
	}
	if s.Limit != 0xFFFF {
		t.Errorf("limit = %#x, want 0xFFFF", s.Limit)
	}

	b.SegmentLoadRealMode(DS2, 0x1234, true)
	if got := b.Seg[DS2].Base; got != 0x123400 {
		t.Errorf("V55 DS2 shifts by 8, base = %#x, want 0x123400", got)
	}
}

func TestFlagsRawRoundTrip(t *testing.T) {
	var f Flags
	f.SetRaw(0x246)
	if !f.Test(FlagZF) || !f.Test(FlagPF) {
		t.Fatal("expected ZF and PF set from raw value 0x246")
	}
	f.Set(FlagCF, true)
	if !f.Test(FlagCF) {
		t.Fatal("Set(FlagCF, true) did not set CF")
	}
	f.Set(FlagCF, false)
	if f.Test(FlagCF) {
		t.Fatal("Set(FlagCF, false) did not clear CF")
	}
}

func TestFlagsIOPLField(t *testing.T) {
	var f Flags
	f.SetIOPL(3)
	if got := f.IOPL(); got != 3 {
		t.Errorf("IOPL() = %d, want 3", got)
	}
	f.Set(FlagCF, true)
	if got := f.IOPL(); got != 3 {
		t.Errorf("setting an unrelated flag bit corrupted IOPL: got %d", got)
	}
}

func TestFlagsRBField(t *testing.T) {
	var f Flags
	f.SetRB(0xA)
	if got := f.RB(); got != 0xA {
		t.Errorf("RB() = %#x, want 0xA", got)
	}
}

// TestRegisterBankSwitch checks the V25 ordering rule: the current bank
// must be flushed before RB is updated and the new bank loaded back.
func TestRegisterBankSwitch(t *testing.T) {
	b := NewBank()
	b.SetWord(regAXIndexForTest, 0x1111)
	b.SegmentLoadRealMode(DS, 0x2000, false)
	b.SegmentLoadRealMode(SS, 0x3000, false)

	b.SwitchRegisterBank(1)
	if got := b.Flags.RB(); got != 1 {
		t.Fatalf("RB field = %d, want 1", got)
	}

	// Bank 1 was never populated, so it loads as zero.
	if got := b.GetWord(regAXIndexForTest); got != 0 {
		t.Errorf("fresh bank 1 AX = %#x, want 0", got)
	}

	// Switching back to bank 0 must restore what was flushed out.
	b.SwitchRegisterBank(0)
	if got := b.GetWord(regAXIndexForTest); got != 0x1111 {
		t.Errorf("bank 0 AX after round trip = %#x, want 0x1111", got)
	}
	if got := b.Seg[DS].Selector; got != 0x2000 {
		t.Errorf("bank 0 DS selector after round trip = %#x, want 0x2000", got)
	}
}

const regAXIndexForTest = 0
