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

// Package x80 is the V20/V25/µPD9002 8080-compatible submachine.
// Embedded mode shares the host x86 register.Bank rather than keeping a
// private bank copy in sync with it: BC/DE/HL *are* CX/DX/BX, not copies.
// A standalone (non-embedded, X80Bus-driven) configuration keeps its own
// private register storage instead.
package x80

// Prefix selects which 16-bit index register (none, IX, or IY) an
// instruction's displacement addressing and high/low register fields use.
type Prefix int

const (
	PrefixNone Prefix = iota
	PrefixIX
	PrefixIY
)

// GPRSource is the narrow interface embedded mode needs from the host
// x86 register file: byte-addressable access to the legacy GPRs that
// BC/DE/HL alias onto (CX, DX, BX's register
// correspondence table) plus the two halves of the AF pair, which are
// split across the host — A is AL and F is the low byte of FLAGS, not a
// GPR at all. Indices follow register.Bank's own GetByte/SetByte
// convention: reg selects the GPR (0=AX's family, 1=CX's, 2=DX's,
// 3=BX's) and reg+4 selects that GPR's high byte.
type GPRSource interface {
	GetByte(index uint8) uint8
	SetByte(index uint8, value uint8)
	FlagsLow() uint8
	SetFlagsLow(value uint8)
}

// Host GPR indices the pairs alias onto: BC<->CX, DE<->DX, HL<->BX, and
// A<->AL (hostAX selects AL; F lives in the FLAGS low byte, not a GPR).
const (
	hostCX uint8 = 1
	hostDX uint8 = 2
	hostBX uint8 = 3
	hostAX uint8 = 0
)

// Bank is one register bank of the submachine: IX, IY, SP, PC, and the
// alternate-register-set fields (the primed registers) that a standalone
// (non-aliased) configuration keeps for itself. Embedded configurations
// still use Bank for IX/IY/SP/PC/alternate set — only BC/DE/HL/AF (the
// "main" 8-bit-addressable registers) are aliased to the host.
type Bank struct {
	IX, IY uint16
	SP, PC uint16
	I, R   uint8 // interrupt vector / memory refresh (Z80 only)
	IFF1, IFF2 bool
	IM     int // 0, 1, or 2

	// Alternate set (Z80 EX/EXX target); unused in pure 8080 mode.
	AltBC, AltDE, AltHL, AltAF uint16
}

// Variant distinguishes the 8080 instruction set (V20 emulation mode)
// from the full Z80 set (µPD9002, and standalone Z80 configurations).
type Variant int

const (
	Variant8080 Variant = iota
	VariantZ80
)

// Machine is the submachine's full addressable state: a Bank plus,
// depending on embedding, either a GPRSource alias or a private standalone
// register set.
type Machine struct {
	Bank
	Variant  Variant
	host     GPRSource // non-nil: embedded, BC/DE/HL/AF alias the host GPRs
	stBC, stDE, stHL, stAF uint16 // standalone-only storage

	// Halted latches after a HLT opcode until the next interrupt.
	Halted bool

	// NativeReturn/NativeCall report the V20 RETEM / CALLN opcodes back
	// to the embedding x86 core, which owns the mode flag and the x86
	// side of the transition. Standalone configurations never set them.
	NativeReturn bool
	NativeCall   bool
	NativeVector uint8
}

// NewEmbedded returns a Machine whose BC/DE/HL read and write through to
// the host x86 register.Bank's CX/DX/BX, and whose A/F pair reads and
// writes AL and the FLAGS low byte.
func NewEmbedded(host GPRSource, variant Variant) *Machine {
	return &Machine{host: host, Variant: variant}
}

// NewStandalone returns a Machine with its own private register storage,
// for a non-emulated x80 driven purely through memio.X80Bus.
func NewStandalone(variant Variant) *Machine {
	return &Machine{Variant: variant}
}

// getPair/setPair implement BC/DE/HL/AF access, aliasing the host GPRs in
// embedded mode and the private fields otherwise.
func (m *Machine) getPair(hostReg uint8, priv *uint16) uint16 {
	if m.host != nil {
		hi := m.host.GetByte(hostReg + 4)
		lo := m.host.GetByte(hostReg)
		return uint16(hi)<<8 | uint16(lo)
	}
	return *priv
}

func (m *Machine) setPair(hostReg uint8, priv *uint16, value uint16) {
	if m.host != nil {
		m.host.SetByte(hostReg+4, uint8(value>>8))
		m.host.SetByte(hostReg, uint8(value))
		return
	}
	*priv = value
}

func (m *Machine) BC() uint16 { return m.getPair(hostCX, &m.stBC) }
func (m *Machine) DE() uint16 { return m.getPair(hostDX, &m.stDE) }
func (m *Machine) HL() uint16 { return m.getPair(hostBX, &m.stHL) }

// AF splits across the host in embedded mode: A is AL and F is the low
// byte of FLAGS. In standalone mode AF is one private
// 16-bit pair, A in the high byte as the Z80 convention has it.
func (m *Machine) AF() uint16 {
	if m.host != nil {
		return uint16(m.host.GetByte(hostAX))<<8 | uint16(m.host.FlagsLow())
	}
	return m.stAF
}

func (m *Machine) SetBC(v uint16) { m.setPair(hostCX, &m.stBC, v) }
func (m *Machine) SetDE(v uint16) { m.setPair(hostDX, &m.stDE, v) }
func (m *Machine) SetHL(v uint16) { m.setPair(hostBX, &m.stHL, v) }

func (m *Machine) SetAF(v uint16) {
	if m.host != nil {
		m.host.SetByte(hostAX, uint8(v>>8))
		m.host.SetFlagsLow(uint8(v))
		return
	}
	m.stAF = v
}

// A and F are the halves of AF, used directly by almost every ALU helper.
func (m *Machine) A() uint8      { return uint8(m.AF() >> 8) }
func (m *Machine) SetA(v uint8)  { m.SetAF(uint16(v)<<8 | uint16(m.AF()&0xFF)) }
func (m *Machine) F() uint8      { return uint8(m.AF()) }
func (m *Machine) SetF(v uint8)  { m.SetAF(m.AF()&0xFF00 | uint16(v)) }

// GetReg8 implements x80_register_get8's register-number decode (0=B,
// 1=C, 2=D, 3=E, 4=H/IXH/IYH, 5=L/IXL/IYL, 7=A); number 6 (memory via
// HL/IX+d/IY+d) is the caller's responsibility since it needs a bus read.
func (m *Machine) GetReg8(prefix Prefix, number int) uint8 {
	switch number {
	case 0:
		return uint8(m.BC() >> 8)
	case 1:
		return uint8(m.BC())
	case 2:
		return uint8(m.DE() >> 8)
	case 3:
		return uint8(m.DE())
	case 4:
		switch prefix {
		case PrefixIX:
			return uint8(m.IX >> 8)
		case PrefixIY:
			return uint8(m.IY >> 8)
		default:
			return uint8(m.HL() >> 8)
		}
	case 5:
		switch prefix {
		case PrefixIX:
			return uint8(m.IX)
		case PrefixIY:
			return uint8(m.IY)
		default:
			return uint8(m.HL())
		}
	case 7:
		return uint8(m.AF() >> 8)
	default:
		return 0
	}
}

// SetReg8 is the inverse of GetReg8.
func (m *Machine) SetReg8(prefix Prefix, number int, value uint8) {
	set := func(pair uint16, hi bool) uint16 {
		if hi {
			return pair&0x00FF | uint16(value)<<8
		}
		return pair&0xFF00 | uint16(value)
	}
	switch number {
	case 0:
		m.SetBC(set(m.BC(), true))
	case 1:
		m.SetBC(set(m.BC(), false))
	case 2:
		m.SetDE(set(m.DE(), true))
	case 3:
		m.SetDE(set(m.DE(), false))
	case 4:
		switch prefix {
		case PrefixIX:
			m.IX = set(m.IX, true)
		case PrefixIY:
			m.IY = set(m.IY, true)
		default:
			m.SetHL(set(m.HL(), true))
		}
	case 5:
		switch prefix {
		case PrefixIX:
			m.IX = set(m.IX, false)
		case PrefixIY:
			m.IY = set(m.IY, false)
		default:
			m.SetHL(set(m.HL(), false))
		}
	case 7:
		m.SetAF(set(m.AF(), true))
	}
}

// ExchangeAF implements EX AF,AF' and ExchangeX implements EXX: each swaps
// its part of the main and alternate register sets. In embedded mode this necessarily swaps the
// host x86 GPRs' contents too, since BC/DE/HL/AF are the same storage.
func (m *Machine) ExchangeAF() {
	af := m.AF()
	m.SetAF(m.AltAF)
	m.AltAF = af
}

func (m *Machine) ExchangeX() {
	bc, de, hl := m.BC(), m.DE(), m.HL()
	m.SetBC(m.AltBC)
	m.SetDE(m.AltDE)
	m.SetHL(m.AltHL)
	m.AltBC, m.AltDE, m.AltHL = bc, de, hl
}
