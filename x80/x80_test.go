/*
   x86emu x80 submachine: 8080/Z80 register file aliased onto the x86 GPRs.

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

package x80

import "testing"

// fakeHost is a minimal GPRSource standing in for register.Bank, indexed
// the same way (reg, reg+4 = high byte) without importing the register
// package (which would make x80 depend on its own consumer).
type fakeHost struct {
	gpr   [8]uint8 // lo bytes at 0..3 (AX,CX,DX,BX), hi bytes at 4..7
	flags uint8
}

func (h *fakeHost) GetByte(index uint8) uint8 { return h.gpr[index] }
func (h *fakeHost) SetByte(index uint8, v uint8) { h.gpr[index] = v }
func (h *fakeHost) FlagsLow() uint8           { return h.flags }
func (h *fakeHost) SetFlagsLow(v uint8)       { h.flags = v }

// TestEmbeddedAliasing checks the register correspondence: BC/DE/HL
// really are CX/DX/BX, not copies kept in sync with them, and the AF pair
// really is AL plus the FLAGS low byte.
func TestEmbeddedAliasing(t *testing.T) {
	host := &fakeHost{}
	m := NewEmbedded(host, Variant8080)

	m.SetBC(0x1234)
	if host.gpr[hostCX] != 0x34 || host.gpr[hostCX+4] != 0x12 {
		t.Fatalf("SetBC did not write through to host CX: got lo=%#x hi=%#x", host.gpr[hostCX], host.gpr[hostCX+4])
	}

	// Writing the host register directly must be visible through BC,
	// proving it's the same storage rather than a synchronized copy.
	host.gpr[hostCX] = 0xFF
	if got := m.BC() & 0xFF; got != 0xFF {
		t.Fatalf("BC() did not see a direct host write: got %#x", got)
	}

	m.SetAF(0x42A5)
	if host.gpr[hostAX] != 0x42 {
		t.Fatalf("A did not land in host AL: got %#x", host.gpr[hostAX])
	}
	if host.flags != 0xA5 {
		t.Fatalf("F did not land in the host FLAGS low byte: got %#x", host.flags)
	}
}

func TestStandaloneIsolation(t *testing.T) {
	m := NewStandalone(Variant8080)
	m.SetBC(0xBEEF)
	if got := m.BC(); got != 0xBEEF {
		t.Fatalf("standalone BC() = %#x, want 0xBEEF", got)
	}
}

func TestGetSetReg8RoundTrip(t *testing.T) {
	m := NewStandalone(VariantZ80)
	m.SetReg8(PrefixNone, 7, 0x42) // A
	if got := m.GetReg8(PrefixNone, 7); got != 0x42 {
		t.Errorf("A register round trip = %#x, want 0x42", got)
	}
	m.SetReg8(PrefixIX, 4, 0x77) // IXH
	if got := uint8(m.IX >> 8); got != 0x77 {
		t.Errorf("IXH = %#x, want 0x77", got)
	}
	if got := m.GetReg8(PrefixIX, 4); got != 0x77 {
		t.Errorf("GetReg8(IX,4) = %#x, want 0x77", got)
	}
}

func TestExchangeAF(t *testing.T) {
	m := NewStandalone(VariantZ80)
	m.SetAF(0x1111)
	m.AltAF = 0x2222
	m.ExchangeAF()
	if m.AF() != 0x2222 {
		t.Errorf("AF after exchange = %#x, want 0x2222", m.AF())
	}
	if m.AltAF != 0x1111 {
		t.Errorf("AltAF after exchange = %#x, want 0x1111", m.AltAF)
	}
}

func TestExchangeX(t *testing.T) {
	m := NewStandalone(VariantZ80)
	m.SetBC(1)
	m.SetDE(2)
	m.SetHL(3)
	m.AltBC, m.AltDE, m.AltHL = 10, 20, 30
	m.ExchangeX()
	if m.BC() != 10 || m.DE() != 20 || m.HL() != 30 {
		t.Fatalf("EXX did not load the alternate set: BC=%#x DE=%#x HL=%#x", m.BC(), m.DE(), m.HL())
	}
	if m.AltBC != 1 || m.AltDE != 2 || m.AltHL != 3 {
		t.Fatalf("EXX did not save the main set into the alternate: AltBC=%#x AltDE=%#x AltHL=%#x", m.AltBC, m.AltDE, m.AltHL)
	}
}
