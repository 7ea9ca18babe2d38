/*
   x86emu x80 submachine stepper: one 8080/Z80 instruction per call.

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

// step.go is the fetch-decode-execute loop of the submachine. The 8080
// base set is decoded by bit pattern (the top two opcode bits select the
// quadrant, the register fields fall out of fixed bit positions); the Z80
// extensions (relative jumps, the exchange set, the CB/ED pages, and the
// DD/FD index prefixes) layer on top when Variant is VariantZ80.
package x80

// F register bit positions, shared by 8080 and Z80. On the 8080 bit 1
// reads as 1 and bits 3/5 as 0; the Z80 stores N at bit 1 and copies of
// result bits 3/5 there instead.
const (
	fC uint8 = 1 << 0
	fN uint8 = 1 << 1
	fP uint8 = 1 << 2 // parity (logic) / overflow (arith, Z80 only)
	fX3 uint8 = 1 << 3
	fH uint8 = 1 << 4
	fX5 uint8 = 1 << 5
	fZ uint8 = 1 << 6
	fS uint8 = 1 << 7
)

func parity8(v uint8) bool {
	v ^= v >> 4
	v ^= v >> 2
	v ^= v >> 1
	return v&1 == 0
}

// szp returns S/Z/P flags for a result byte, plus the 8080's fixed bit 1
// when not running as a Z80.
func (m *Machine) szp(v uint8) uint8 {
	f := v & (fS | fX3 | fX5)
	if v == 0 {
		f |= fZ
	}
	if parity8(v) {
		f |= fP
	}
	if m.Variant == Variant8080 {
		f = f&^(fX3|fX5) | fN // bit 1 reads as 1 on the 8080
	}
	return f
}

func (m *Machine) fetch(bus Bus) (uint8, error) {
	b, err := bus.MemoryFetch(m.PC)
	m.PC++
	return b, err
}

func (m *Machine) fetch16(bus Bus) (uint16, error) {
	lo, err := m.fetch(bus)
	if err != nil {
		return 0, err
	}
	hi, err := m.fetch(bus)
	return uint16(hi)<<8 | uint16(lo), err
}

func (m *Machine) read16(bus Bus, addr uint16) (uint16, error) {
	lo, err := bus.MemoryRead(addr)
	if err != nil {
		return 0, err
	}
	hi, err := bus.MemoryRead(addr + 1)
	return uint16(hi)<<8 | uint16(lo), err
}

func (m *Machine) write16(bus Bus, addr uint16, v uint16) error {
	if err := bus.MemoryWrite(addr, uint8(v)); err != nil {
		return err
	}
	return bus.MemoryWrite(addr+1, uint8(v>>8))
}

// getOperand reads register field r (0..7), resolving field 6 as the
// memory operand through bus.
func (m *Machine) getOperand(bus Bus, prefix Prefix, r int, disp int8) (uint8, error) {
	if r == 6 {
		return bus.MemoryRead(m.MemAddress(prefix, disp))
	}
	return m.GetReg8(prefix, r), nil
}

func (m *Machine) setOperand(bus Bus, prefix Prefix, r int, disp int8, v uint8) error {
	if r == 6 {
		return bus.MemoryWrite(m.MemAddress(prefix, disp), v)
	}
	m.SetReg8(prefix, r, v)
	return nil
}

// pair16 reads register-pair field rp (0=BC 1=DE 2=HL/IX/IY 3=SP).
func (m *Machine) pair16(prefix Prefix, rp int) uint16 {
	switch rp {
	case 0:
		return m.BC()
	case 1:
		return m.DE()
	case 2:
		switch prefix {
		case PrefixIX:
			return m.IX
		case PrefixIY:
			return m.IY
		default:
			return m.HL()
		}
	default:
		return m.SP
	}
}

func (m *Machine) setPair16(prefix Prefix, rp int, v uint16) {
	switch rp {
	case 0:
		m.SetBC(v)
	case 1:
		m.SetDE(v)
	case 2:
		switch prefix {
		case PrefixIX:
			m.IX = v
		case PrefixIY:
			m.IY = v
		default:
			m.SetHL(v)
		}
	default:
		m.SP = v
	}
}

// alu applies ALU selector op (0=ADD 1=ADC 2=SUB 3=SBC 4=AND 5=XOR 6=OR
// 7=CP) between A and v, updating A (except CP) and F.
func (m *Machine) alu(op int, v uint8) {
	a := m.A()
	carry := uint16(0)
	if (op == 1 || op == 3) && m.F()&fC != 0 {
		carry = 1
	}
	switch op {
	case 0, 1: // ADD/ADC
		r := uint16(a) + uint16(v) + carry
		f := m.szp(uint8(r)) &^ (fC | fH | fP | fN)
		if r > 0xFF {
			f |= fC
		}
		if (a&0xF)+(v&0xF)+uint8(carry) > 0xF {
			f |= fH
		}
		if (a^uint8(r))&(v^uint8(r))&0x80 != 0 {
			f |= fP
		} else if m.Variant == Variant8080 {
			// The 8080 keeps P as result parity in arithmetic too.
			if parity8(uint8(r)) {
				f |= fP
			}
		}
		if m.Variant == Variant8080 {
			f |= fN // fixed bit 1
		}
		m.SetA(uint8(r))
		m.SetF(f)
	case 2, 3, 7: // SUB/SBC/CP
		r := uint16(a) - uint16(v) - carry
		f := m.szp(uint8(r)) &^ (fC | fH | fP)
		if m.Variant == VariantZ80 {
			f |= fN
		}
		if r > 0xFF {
			f |= fC
		}
		if (a&0xF)-(v&0xF)-uint8(carry) > 0xF {
			f |= fH
		}
		if (a^v)&(a^uint8(r))&0x80 != 0 {
			f |= fP
		} else if m.Variant == Variant8080 {
			if parity8(uint8(r)) {
				f |= fP
			}
		}
		if op != 7 {
			m.SetA(uint8(r))
		}
		m.SetF(f)
	case 4: // AND
		r := a & v
		f := m.szp(r) | fH
		m.SetA(r)
		m.SetF(f)
	case 5: // XOR
		r := a ^ v
		m.SetA(r)
		m.SetF(m.szp(r))
	case 6: // OR
		r := a | v
		m.SetA(r)
		m.SetF(m.szp(r))
	}
}

// incDec8 is INR/DCR and INC/DEC r: every flag except carry.
func (m *Machine) incDec8(v uint8, dec bool) uint8 {
	var r uint8
	f := m.F() & fC
	if dec {
		r = v - 1
		if m.Variant == VariantZ80 {
			f |= fN
		}
		if v&0xF == 0 {
			f |= fH
		}
		if v == 0x80 {
			f |= fP
		}
	} else {
		r = v + 1
		if v&0xF == 0xF {
			f |= fH
		}
		if v == 0x7F {
			f |= fP
		}
	}
	f |= m.szp(r) &^ (fP | fN)
	if m.Variant == Variant8080 {
		// 8080: P is always parity, even for INR/DCR.
		f = f &^ fP
		if parity8(r) {
			f |= fP
		}
		f |= fN
	}
	m.SetF(f)
	return r
}

// addPair16 is DAD / ADD HL,rp: 16-bit add into HL (or IX/IY), touching
// only carry on the 8080 and carry/half/N on the Z80.
func (m *Machine) addPair16(prefix Prefix, rp int) {
	hl := m.pair16(prefix, 2)
	v := m.pair16(prefix, rp)
	r := uint32(hl) + uint32(v)
	f := m.F() &^ (fC | fN)
	if r > 0xFFFF {
		f |= fC
	}
	if m.Variant == VariantZ80 {
		f &^= fH
		if (hl&0xFFF)+(v&0xFFF) > 0xFFF {
			f |= fH
		}
	}
	m.setPair16(prefix, 2, uint16(r))
	m.SetF(f)
}

// cond evaluates jump/call/return condition field cc (0=NZ 1=Z 2=NC 3=C
// 4=PO 5=PE 6=P 7=M).
func (m *Machine) cond(cc int) bool {
	f := m.F()
	switch cc {
	case 0:
		return f&fZ == 0
	case 1:
		return f&fZ != 0
	case 2:
		return f&fC == 0
	case 3:
		return f&fC != 0
	case 4:
		return f&fP == 0
	case 5:
		return f&fP != 0
	case 6:
		return f&fS == 0
	default:
		return f&fS != 0
	}
}

// StepOne executes one instruction. The Z80 DD/FD prefixes re-enter the
// main decode with the index prefix applied.
func (m *Machine) StepOne(bus Bus) error {
	if m.Halted {
		return nil
	}
	return m.stepPrefixed(bus, PrefixNone)
}

func (m *Machine) stepPrefixed(bus Bus, prefix Prefix) error {
	op, err := m.fetch(bus)
	if err != nil {
		return err
	}
	if m.Variant == VariantZ80 {
		m.R = m.R&0x80 | (m.R+1)&0x7F
		switch op {
		case 0xDD:
			return m.stepPrefixed(bus, PrefixIX)
		case 0xFD:
			return m.stepPrefixed(bus, PrefixIY)
		case 0xCB:
			return m.stepCB(bus, prefix)
		}
	}
	if op == 0xED {
		// The full page on a Z80; on the V20's 8080 mode only the CALLN/
		// RETEM escapes live here (stepED ignores the rest for that
		// variant).
		return m.stepED(bus)
	}

	// The indexed forms of operand field 6 carry a displacement byte the
	// plain forms lack; fetch it once, where the opcode demands it.
	fetchDisp := func(r ...int) (int8, error) {
		if prefix == PrefixNone {
			return 0, nil
		}
		for _, f := range r {
			if f == 6 {
				d, err := m.fetch(bus)
				return int8(d), err
			}
		}
		return 0, nil
	}

	switch {
	case op == 0x00: // NOP
		return nil

	case op == 0x76: // HLT
		m.Halted = true
		return nil

	case op&0xC0 == 0x40: // MOV r,r / LD r,r'
		dst, src := int(op>>3&7), int(op&7)
		disp, err := fetchDisp(dst, src)
		if err != nil {
			return err
		}
		v, err := m.getOperand(bus, prefix, src, disp)
		if err != nil {
			return err
		}
		return m.setOperand(bus, prefix, dst, disp, v)

	case op&0xC0 == 0x80: // ALU A,r
		src := int(op & 7)
		disp, err := fetchDisp(src)
		if err != nil {
			return err
		}
		v, err := m.getOperand(bus, prefix, src, disp)
		if err != nil {
			return err
		}
		m.alu(int(op>>3&7), v)
		return nil
	}

	switch op & 0xC7 {
	case 0x04: // INR r / INC r
		r := int(op >> 3 & 7)
		disp, err := fetchDisp(r)
		if err != nil {
			return err
		}
		v, err := m.getOperand(bus, prefix, r, disp)
		if err != nil {
			return err
		}
		return m.setOperand(bus, prefix, r, disp, m.incDec8(v, false))
	case 0x05: // DCR r / DEC r
		r := int(op >> 3 & 7)
		disp, err := fetchDisp(r)
		if err != nil {
			return err
		}
		v, err := m.getOperand(bus, prefix, r, disp)
		if err != nil {
			return err
		}
		return m.setOperand(bus, prefix, r, disp, m.incDec8(v, true))
	case 0x06: // MVI r,n / LD r,n
		r := int(op >> 3 & 7)
		disp, err := fetchDisp(r)
		if err != nil {
			return err
		}
		v, err := m.fetch(bus)
		if err != nil {
			return err
		}
		return m.setOperand(bus, prefix, r, disp, v)
	case 0xC6: // ALU A,n immediate forms
		v, err := m.fetch(bus)
		if err != nil {
			return err
		}
		m.alu(int(op>>3&7), v)
		return nil
	case 0xC7: // RST n
		if err := m.Push16(bus, m.PC); err != nil {
			return err
		}
		m.PC = uint16(op & 0x38)
		return nil
	case 0xC0: // RET cc
		if m.cond(int(op >> 3 & 7)) {
			pc, err := m.Pop16(bus)
			if err != nil {
				return err
			}
			m.PC = pc
		}
		return nil
	case 0xC2: // JP cc,nn
		addr, err := m.fetch16(bus)
		if err != nil {
			return err
		}
		if m.cond(int(op >> 3 & 7)) {
			m.PC = addr
		}
		return nil
	case 0xC4: // CALL cc,nn
		addr, err := m.fetch16(bus)
		if err != nil {
			return err
		}
		if m.cond(int(op >> 3 & 7)) {
			if err := m.Push16(bus, m.PC); err != nil {
				return err
			}
			m.PC = addr
		}
		return nil
	}

	switch op & 0xCF {
	case 0x01: // LXI rp,nn / LD rp,nn
		v, err := m.fetch16(bus)
		if err != nil {
			return err
		}
		m.setPair16(prefix, int(op>>4&3), v)
		return nil
	case 0x03: // INX rp
		m.setPair16(prefix, int(op>>4&3), m.pair16(prefix, int(op>>4&3))+1)
		return nil
	case 0x0B: // DCX rp
		m.setPair16(prefix, int(op>>4&3), m.pair16(prefix, int(op>>4&3))-1)
		return nil
	case 0x09: // DAD rp / ADD HL,rp
		m.addPair16(prefix, int(op>>4&3))
		return nil
	case 0xC5: // PUSH rp (3 = AF, not SP)
		v := m.pair16(prefix, int(op>>4&3))
		if op>>4&3 == 3 {
			v = m.AF()
		}
		return m.Push16(bus, v)
	case 0xC1: // POP rp (3 = AF)
		v, err := m.Pop16(bus)
		if err != nil {
			return err
		}
		if op>>4&3 == 3 {
			m.SetAF(v)
		} else {
			m.setPair16(prefix, int(op>>4&3), v)
		}
		return nil
	}

	switch op {
	case 0x02, 0x12: // STAX B/D
		addr := m.BC()
		if op == 0x12 {
			addr = m.DE()
		}
		return bus.MemoryWrite(addr, m.A())
	case 0x0A, 0x1A: // LDAX B/D
		addr := m.BC()
		if op == 0x1A {
			addr = m.DE()
		}
		v, err := bus.MemoryRead(addr)
		if err != nil {
			return err
		}
		m.SetA(v)
		return nil
	case 0x22: // SHLD nn / LD (nn),HL
		addr, err := m.fetch16(bus)
		if err != nil {
			return err
		}
		return m.write16(bus, addr, m.pair16(prefix, 2))
	case 0x2A: // LHLD nn / LD HL,(nn)
		addr, err := m.fetch16(bus)
		if err != nil {
			return err
		}
		v, err := m.read16(bus, addr)
		if err != nil {
			return err
		}
		m.setPair16(prefix, 2, v)
		return nil
	case 0x32: // STA nn
		addr, err := m.fetch16(bus)
		if err != nil {
			return err
		}
		return bus.MemoryWrite(addr, m.A())
	case 0x3A: // LDA nn
		addr, err := m.fetch16(bus)
		if err != nil {
			return err
		}
		v, err := bus.MemoryRead(addr)
		if err != nil {
			return err
		}
		m.SetA(v)
		return nil

	case 0x07: // RLC / RLCA
		a := m.A()
		r := a<<1 | a>>7
		m.SetA(r)
		m.setRotateFlags(r, a&0x80 != 0)
		return nil
	case 0x0F: // RRC / RRCA
		a := m.A()
		r := a>>1 | a<<7
		m.SetA(r)
		m.setRotateFlags(r, a&1 != 0)
		return nil
	case 0x17: // RAL / RLA
		a := m.A()
		r := a << 1
		if m.F()&fC != 0 {
			r |= 1
		}
		m.SetA(r)
		m.setRotateFlags(r, a&0x80 != 0)
		return nil
	case 0x1F: // RAR / RRA
		a := m.A()
		r := a >> 1
		if m.F()&fC != 0 {
			r |= 0x80
		}
		m.SetA(r)
		m.setRotateFlags(r, a&1 != 0)
		return nil

	case 0x27: // DAA
		m.daa()
		return nil
	case 0x2F: // CMA / CPL
		m.SetA(^m.A())
		if m.Variant == VariantZ80 {
			m.SetF(m.F() | fH | fN)
		}
		return nil
	case 0x37: // STC / SCF
		m.SetF(m.F()&^(fH|fN) | fC)
		return nil
	case 0x3F: // CMC / CCF
		f := m.F()
		if m.Variant == VariantZ80 {
			f = f &^ (fH | fN)
			if f&fC != 0 {
				f |= fH
			}
		}
		m.SetF(f ^ fC)
		return nil

	case 0xC3: // JMP nn
		addr, err := m.fetch16(bus)
		if err != nil {
			return err
		}
		m.PC = addr
		return nil
	case 0xC9: // RET
		pc, err := m.Pop16(bus)
		if err != nil {
			return err
		}
		m.PC = pc
		return nil
	case 0xCD: // CALL nn
		addr, err := m.fetch16(bus)
		if err != nil {
			return err
		}
		if err := m.Push16(bus, m.PC); err != nil {
			return err
		}
		m.PC = addr
		return nil

	case 0xD3: // OUT n
		port, err := m.fetch(bus)
		if err != nil {
			return err
		}
		return bus.PortWrite(uint16(m.A())<<8|uint16(port), m.A())
	case 0xDB: // IN n
		port, err := m.fetch(bus)
		if err != nil {
			return err
		}
		v, err := bus.PortRead(uint16(m.A())<<8 | uint16(port))
		if err != nil {
			return err
		}
		m.SetA(v)
		return nil

	case 0xE3: // XTHL / EX (SP),HL
		v, err := m.read16(bus, m.SP)
		if err != nil {
			return err
		}
		if err := m.write16(bus, m.SP, m.pair16(prefix, 2)); err != nil {
			return err
		}
		m.setPair16(prefix, 2, v)
		return nil
	case 0xE9: // PCHL / JP (HL)
		m.PC = m.pair16(prefix, 2)
		return nil
	case 0xEB: // XCHG / EX DE,HL
		de, hl := m.DE(), m.HL()
		m.SetDE(hl)
		m.SetHL(de)
		return nil
	case 0xF9: // SPHL / LD SP,HL
		m.SP = m.pair16(prefix, 2)
		return nil

	case 0xF3: // DI
		m.IFF1 = false
		m.IFF2 = false
		return nil
	case 0xFB: // EI
		m.IFF1 = true
		m.IFF2 = true
		return nil
	}

	if m.Variant == VariantZ80 {
		switch op {
		case 0x08: // EX AF,AF'
			m.ExchangeAF()
			return nil
		case 0xD9: // EXX
			m.ExchangeX()
			return nil
		case 0x10: // DJNZ d
			d, err := m.fetch(bus)
			if err != nil {
				return err
			}
			b := uint8(m.BC()>>8) - 1
			m.SetBC(m.BC()&0xFF | uint16(b)<<8)
			if b != 0 {
				m.PC = uint16(int32(m.PC) + int32(int8(d)))
			}
			return nil
		case 0x18: // JR d
			d, err := m.fetch(bus)
			if err != nil {
				return err
			}
			m.PC = uint16(int32(m.PC) + int32(int8(d)))
			return nil
		case 0x20, 0x28, 0x30, 0x38: // JR cc,d
			d, err := m.fetch(bus)
			if err != nil {
				return err
			}
			if m.cond(int(op >> 3 & 3)) {
				m.PC = uint16(int32(m.PC) + int32(int8(d)))
			}
			return nil
		}
	}

	// Everything left over (8080 alternate NOP encodings, Z80 holes) is a
	// NOP, matching the 8086-class "record and continue" temperament the
	// embedded submachine inherits.
	return nil
}

// setRotateFlags applies the rotate-group flag rule: carry from the bit
// rotated out, H/N cleared on the Z80, S/Z/P untouched.
func (m *Machine) setRotateFlags(r uint8, carry bool) {
	f := m.F() &^ (fC | fH | fN)
	if m.Variant == Variant8080 {
		f |= fN // fixed bit 1
	} else {
		f = f&^(fX3|fX5) | r&(fX3|fX5)
	}
	if carry {
		f |= fC
	}
	m.SetF(f)
}

// daa adjusts A after BCD arithmetic, using the Z80 rule (which honors N
// to undo subtractions) and degrading to the 8080's add-only rule when N
// never gets set there.
func (m *Machine) daa() {
	a := m.A()
	f := m.F()
	adj := uint8(0)
	carry := f&fC != 0
	if f&fH != 0 || a&0xF > 9 {
		adj |= 0x06
	}
	if carry || a > 0x99 {
		adj |= 0x60
		carry = true
	}
	if m.Variant == VariantZ80 && f&fN != 0 {
		a -= adj
	} else {
		a += adj
	}
	nf := m.szp(a)&^fC | f&fN
	if carry {
		nf |= fC
	}
	if adj&0x06 != 0 {
		nf |= fH
	}
	m.SetA(a)
	m.SetF(nf)
}

// stepCB handles the Z80 CB page: rotates/shifts and BIT/RES/SET, all on
// the standard register field, with the DDCB/FDCB indexed forms carrying
// their displacement before the final opcode byte.
func (m *Machine) stepCB(bus Bus, prefix Prefix) error {
	var disp int8
	if prefix != PrefixNone {
		d, err := m.fetch(bus)
		if err != nil {
			return err
		}
		disp = int8(d)
	}
	op, err := m.fetch(bus)
	if err != nil {
		return err
	}
	r := int(op & 7)
	if prefix != PrefixNone {
		r = 6 // DDCB/FDCB always operate on (IX+d)/(IY+d)
	}
	v, err := m.getOperand(bus, prefix, r, disp)
	if err != nil {
		return err
	}
	bit := op >> 3 & 7

	switch op >> 6 {
	case 0: // rotate/shift group
		var carry bool
		switch bit {
		case 0: // RLC
			carry = v&0x80 != 0
			v = v<<1 | v>>7
		case 1: // RRC
			carry = v&1 != 0
			v = v>>1 | v<<7
		case 2: // RL
			carry = v&0x80 != 0
			v <<= 1
			if m.F()&fC != 0 {
				v |= 1
			}
		case 3: // RR
			carry = v&1 != 0
			v >>= 1
			if m.F()&fC != 0 {
				v |= 0x80
			}
		case 4: // SLA
			carry = v&0x80 != 0
			v <<= 1
		case 5: // SRA
			carry = v&1 != 0
			v = v&0x80 | v>>1
		case 6: // SLL (undocumented: shifts in a 1)
			carry = v&0x80 != 0
			v = v<<1 | 1
		case 7: // SRL
			carry = v&1 != 0
			v >>= 1
		}
		f := m.szp(v)
		if carry {
			f |= fC
		}
		m.SetF(f)
		return m.setOperand(bus, prefix, r, disp, v)
	case 1: // BIT b,r
		f := m.F()&fC | fH
		if v&(1<<bit) == 0 {
			f |= fZ | fP
		} else if bit == 7 {
			f |= fS
		}
		m.SetF(f)
		return nil
	case 2: // RES b,r
		return m.setOperand(bus, prefix, r, disp, v&^(1<<bit))
	default: // SET b,r
		return m.setOperand(bus, prefix, r, disp, v|1<<bit)
	}
}

// stepED handles the Z80 ED page: the block moves and compares, the
// 16-bit ADC/SBC, interrupt-mode selection, the I/R transfers, and — on
// the V20's emulation mode, where ED is otherwise unused — the CALLN and
// RETEM escapes back to the native x86 side.
func (m *Machine) stepED(bus Bus) error {
	op, err := m.fetch(bus)
	if err != nil {
		return err
	}
	if m.Variant == Variant8080 && op != 0xED && op != 0xFD {
		return nil
	}

	switch op {
	case 0xED: // CALLN n (emulation-mode escape to the native side)
		v, err := m.fetch(bus)
		if err != nil {
			return err
		}
		m.NativeCall = true
		m.NativeVector = v
		return nil
	case 0xFD: // RETEM (return to native mode)
		m.NativeReturn = true
		return nil

	case 0x44: // NEG
		a := m.A()
		m.SetA(0)
		m.alu(2, a) // SUB from the zeroed A
		return nil
	case 0x45, 0x4D: // RETN / RETI
		pc, err := m.Pop16(bus)
		if err != nil {
			return err
		}
		m.PC = pc
		if op == 0x45 {
			m.IFF1 = m.IFF2
		}
		return nil
	case 0x46:
		m.IM = 0
		return nil
	case 0x56:
		m.IM = 1
		return nil
	case 0x5E:
		m.IM = 2
		return nil
	case 0x47: // LD I,A
		m.I = m.A()
		return nil
	case 0x4F: // LD R,A
		m.R = m.A()
		return nil
	case 0x57, 0x5F: // LD A,I / LD A,R
		v := m.I
		if op == 0x5F {
			v = m.R
		}
		m.SetA(v)
		f := m.F()&fC | m.szp(v)&^fP
		if m.IFF2 {
			f |= fP
		}
		m.SetF(f)
		return nil
	}

	switch op & 0xCF {
	case 0x43: // LD (nn),rp
		addr, err := m.fetch16(bus)
		if err != nil {
			return err
		}
		return m.write16(bus, addr, m.pair16(PrefixNone, int(op>>4&3)))
	case 0x4B: // LD rp,(nn)
		addr, err := m.fetch16(bus)
		if err != nil {
			return err
		}
		v, err := m.read16(bus, addr)
		if err != nil {
			return err
		}
		m.setPair16(PrefixNone, int(op>>4&3), v)
		return nil
	case 0x42, 0x4A: // SBC HL,rp / ADC HL,rp
		hl := m.HL()
		v := m.pair16(PrefixNone, int(op>>4&3))
		carry := uint32(0)
		if m.F()&fC != 0 {
			carry = 1
		}
		var r uint32
		var f uint8
		if op&8 == 0 { // SBC
			r = uint32(hl) - uint32(v) - carry
			f = fN
			if (hl^v)&(hl^uint16(r))&0x8000 != 0 {
				f |= fP
			}
			if (hl&0xFFF)-(v&0xFFF)-uint16(carry) > 0xFFF {
				f |= fH
			}
		} else { // ADC
			r = uint32(hl) + uint32(v) + carry
			if (hl^uint16(r))&(v^uint16(r))&0x8000 != 0 {
				f |= fP
			}
			if (hl&0xFFF)+(v&0xFFF)+uint16(carry) > 0xFFF {
				f |= fH
			}
		}
		if r > 0xFFFF {
			f |= fC
		}
		if uint16(r) == 0 {
			f |= fZ
		}
		f |= uint8(r>>8) & fS
		m.SetHL(uint16(r))
		m.SetF(f)
		return nil
	}

	// Block transfer/compare group: LDI/LDD/LDIR/LDDR, CPI/CPD/CPIR/CPDR.
	// Bit 1 set instead selects the I/O block forms (INI/OUTI and
	// friends), which are not modeled.
	if op&0xE6 == 0xA0 {
		delta := uint16(1)
		if op&8 != 0 {
			delta = 0xFFFF // -1
		}
		repeat := op&0x10 != 0
		isCompare := op&1 != 0

		v, err := bus.MemoryRead(m.HL())
		if err != nil {
			return err
		}
		if isCompare {
			a := m.A()
			r := a - v
			f := m.F()&fC | fN | m.szp(r)&^(fP|fC)
			if a&0xF < v&0xF {
				f |= fH
			}
			if m.BC()-1 != 0 {
				f |= fP
			}
			m.SetF(f)
			if repeat && r == 0 {
				repeat = false
			}
		} else {
			if err := bus.MemoryWrite(m.DE(), v); err != nil {
				return err
			}
			m.SetDE(m.DE() + delta)
			f := m.F() &^ (fH | fN | fP)
			if m.BC()-1 != 0 {
				f |= fP
			}
			m.SetF(f)
		}
		m.SetHL(m.HL() + delta)
		m.SetBC(m.BC() - 1)
		if repeat && m.BC() != 0 {
			m.PC -= 2 // re-execute the ED xx pair next step
		}
		return nil
	}

	switch op & 0xC7 {
	case 0x40: // IN r,(C)
		v, err := bus.PortRead(m.BC())
		if err != nil {
			return err
		}
		m.SetF(m.F()&fC | m.szp(v))
		if op>>3&7 != 6 { // IN (C) only sets flags
			m.SetReg8(PrefixNone, int(op>>3&7), v)
		}
		return nil
	case 0x41: // OUT (C),r
		v := uint8(0)
		if op>>3&7 != 6 {
			v = m.GetReg8(PrefixNone, int(op>>3&7))
		}
		return bus.PortWrite(m.BC(), v)
	}

	return nil
}
