/*
   x86emu x80 interrupt modes (IM0/IM1/IM2) and memory-operand addressing.

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

import "github.com/BinaryMelodies/x86emu/memio"

// Bus is the narrow interface a submachine step needs for memory and
// port access; satisfied directly by memio.X80Bus for standalone mode.
// Embedded mode's host wiring is the cpu package's job (it re-exposes
// host linear memory at the x80's 16-bit addressing width).
type Bus = memio.X80Bus

// MemAddress resolves the address of register number 6 (the
// "(HL)"/"(IX+d)"/"(IY+d)" memory operand) per x80_register_get8/set8's
// case 6; the caller performs the bus read or write.
func (m *Machine) MemAddress(prefix Prefix, displacement int8) uint16 {
	switch prefix {
	case PrefixIX:
		return uint16(int32(m.IX) + int32(displacement))
	case PrefixIY:
		return uint16(int32(m.IY) + int32(displacement))
	default:
		return m.HL()
	}
}

// Push16 implements x80_push16: predecrement SP, then write.
func (m *Machine) Push16(bus Bus, value uint16) error {
	m.SP -= 2
	if err := bus.MemoryWrite(m.SP, byte(value)); err != nil {
		return err
	}
	return bus.MemoryWrite(m.SP+1, byte(value>>8))
}

// Pop16 implements x80_pop16: read, then postincrement SP.
func (m *Machine) Pop16(bus Bus) (uint16, error) {
	lo, err := bus.MemoryRead(m.SP)
	if err != nil {
		return 0, err
	}
	hi, err := bus.MemoryRead(m.SP + 1)
	if err != nil {
		return 0, err
	}
	m.SP += 2
	return uint16(hi)<<8 | uint16(lo), nil
}

// Interrupt delivers a maskable interrupt according to the current
// IM mode:
//
//	IM0: the interrupting device supplies an instruction (typically a
//	     single-byte RST) which the caller has already fetched; this
//	     function only performs the call-like PC push.
//	IM1: always vectors to 0x0038, ignoring the data byte entirely.
//	IM2: the data byte is an index into a 256-byte table pointed to by
//	     register I; the target address is read from that table.
func (m *Machine) Interrupt(bus Bus, data uint8) error {
	if !m.IFF1 {
		return nil
	}
	m.IFF1 = false
	m.IFF2 = false

	switch m.IM {
	case 1:
		if err := m.Push16(bus, m.PC); err != nil {
			return err
		}
		m.PC = 0x0038
	case 2:
		vectorAddr := uint16(m.I)<<8 | uint16(data)
		lo, err := bus.MemoryRead(vectorAddr)
		if err != nil {
			return err
		}
		hi, err := bus.MemoryRead(vectorAddr + 1)
		if err != nil {
			return err
		}
		if err := m.Push16(bus, m.PC); err != nil {
			return err
		}
		m.PC = uint16(hi)<<8 | uint16(lo)
	default:
		// IM0: caller decodes `data` as the injected instruction (usually
		// an RST n, i.e. CALL to 8*n) and pushes PC itself before jumping,
		// since a non-RST injected instruction wouldn't push at all.
	}
	return nil
}

// NMI vectors unconditionally to 0x0066 and clears IFF1 while preserving
// IFF2 for the RETN at the end of the handler to restore.
func (m *Machine) NMI(bus Bus) error {
	m.IFF2 = m.IFF1
	m.IFF1 = false
	if err := m.Push16(bus, m.PC); err != nil {
		return err
	}
	m.PC = 0x0066
	return nil
}
