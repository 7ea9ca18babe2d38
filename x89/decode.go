/*
   x86emu x89 channel-program decoder: the 16-bit channel instruction set.

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

// decode.go executes channel-program instructions: one 16-bit
// instruction word fetched through RegTP, split into its
// opSize/immSize/regField/baseField bitfields, an addressing-mode byte
// selecting the register-indirect/displacement/indexed/
// indexed-autoincrement forms off bits 1-2, and a big switch on the top
// 6 bits choosing the operation. MOV M,M's two-instruction chained form
// and CALL/SBX are not modeled — see DESIGN.md for the disclosed gap.
package x89

func opSize(ins uint16) uint16   { return ins & 1 }
func immSize(ins uint16) uint16  { return (ins >> 3) & 3 }
func regField(ins uint16) RegNum { return RegNum((ins >> 5) & 7) }
func baseField(ins uint16) uint16 { return (ins >> 8) & 3 }

func (p *Processor) fetch16(bus Bus, channel int) (uint16, error) {
	c := &p.Channel[channel]
	v, err := read16(bus, c.R[RegTP].Address)
	if err != nil {
		return 0, err
	}
	c.R[RegTP].Address = (c.R[RegTP].Address + 2) & 0xFFFFF
	return v, nil
}

func (p *Processor) fetch8(bus Bus, channel int) (uint8, error) {
	c := &p.Channel[channel]
	v, err := read8(bus, c.R[RegTP].Address)
	if err != nil {
		return 0, err
	}
	c.R[RegTP].Address = (c.R[RegTP].Address + 1) & 0xFFFFF
	return v, nil
}

// baseRegister resolves the 2-bit base field of a memory operand: GA, GB,
// GC, or the parameter-block pointer PP (always tag 0, per
// x89_base_register_get).
func (p *Processor) baseRegister(channel int, field uint16) TaggedAddress {
	c := &p.Channel[channel]
	switch field & 3 {
	case 0:
		return c.R[RegGA]
	case 1:
		return c.R[RegGB]
	case 2:
		return c.R[RegGC]
	default:
		return TaggedAddress{Address: c.PP, Tag: 0}
	}
}

// operandAddress decodes the instruction's addressing-mode bits (1-2):
// plain register-indirect, 8-bit displacement, indexed via RegIX, and
// indexed with auto-increment of RegIX by 1 or 2 bytes.
func (p *Processor) operandAddress(bus Bus, channel int, ins uint16) (TaggedAddress, error) {
	addr := p.baseRegister(channel, baseField(ins))
	switch (ins >> 1) & 3 {
	case 0:
		return addr, nil
	case 1:
		disp, err := p.fetch8(bus, channel)
		if err != nil {
			return TaggedAddress{}, err
		}
		addr.Address = (addr.Address + uint32(int32(int8(disp)))) & 0xFFFFF
		return addr, nil
	case 2:
		addr.Address = (addr.Address + uint32(p.Channel[channel].Get16(RegIX))) & 0xFFFFF
		return addr, nil
	default:
		ix := p.Channel[channel].Get16(RegIX)
		addr.Address = (addr.Address + uint32(ix)) & 0xFFFFF
		if ins&1 != 0 {
			ix += 2
		} else {
			ix++
		}
		p.Channel[channel].Set16(RegIX, ix)
		return addr, nil
	}
}

// execOne fetches and executes one channel-program instruction at RegTP.
func (p *Processor) execOne(bus Bus, channel int) error {
	ins, err := p.fetch16(bus, channel)
	if err != nil {
		return err
	}

	addr, err := p.operandAddress(bus, channel, ins)
	if err != nil {
		return err
	}

	var literal int16
	var segment uint16
	switch immSize(ins) {
	case 0:
	case 1:
		v, err := p.fetch8(bus, channel)
		if err != nil {
			return err
		}
		literal = int16(int8(v))
	case 2:
		v, err := p.fetch16(bus, channel)
		if err != nil {
			return err
		}
		literal = int16(v)
		if ins>>10 == 0b000010 {
			seg, err := p.fetch16(bus, channel)
			if err != nil {
				return err
			}
			segment = seg
		}
	case 3:
		seg, err := p.fetch16(bus, channel)
		if err != nil {
			return err
		}
		segment = seg
		v, err := p.fetch16(bus, channel)
		if err != nil {
			return err
		}
		literal = int16(v)
	}

	c := &p.Channel[channel]
	reg := regField(ins)

	switch ins >> 10 {
	case 0b000000:
		switch (ins >> 5) & 7 {
		case 0b000: // NOP
		case 0b010: // SINTR
			if c.PSW&PSWIC != 0 {
				c.PSW |= PSWIS
			}
		case 0b011: // XFER
			c.StartTransfer = true
		case 0b100, 0b101, 0b110, 0b111: // WID
			if ins&0x2000 != 0 {
				c.PSW |= PSWD
			} else {
				c.PSW &^= PSWD
			}
			if ins&0x4000 != 0 {
				c.PSW |= PSWS
			} else {
				c.PSW &^= PSWS
			}
		}
	case 0b000010: // LPDI P, I
		c.R[reg] = TaggedAddress{Address: (uint32(segment)<<4 + uint32(uint16(literal))) & 0xFFFFF, Tag: 0}
	case 0b001000: // ADDI R, I / JMP
		if reg == RegTP {
			c.R[RegTP].Address = (c.R[RegTP].Address + uint32(uint16(literal))) & 0xFFFFF
		} else if opSize(ins) == 0 {
			c.Set32(reg, c.Get32(reg)+uint32(int32(int8(literal))))
		} else {
			c.Set32(reg, c.Get32(reg)+uint32(int32(literal)))
		}
	case 0b001001: // ORI R, I
		if opSize(ins) == 0 {
			c.Set16(reg, c.Get16(reg)|uint16(int8(literal)))
		} else {
			c.Set16(reg, c.Get16(reg)|uint16(literal))
		}
	case 0b001010: // ANDI R, I
		if opSize(ins) == 0 {
			c.Set16(reg, c.Get16(reg)&uint16(int8(literal)))
		} else {
			c.Set16(reg, c.Get16(reg)&uint16(literal))
		}
	case 0b001011: // NOT R
		c.Set16(reg, ^c.Get16(reg))
	case 0b001100: // MOVI R, I
		if opSize(ins) == 0 {
			c.Set16Local(reg, uint16(int8(literal)))
		} else {
			c.Set16Local(reg, uint16(literal))
		}
	case 0b001110: // INC R
		c.Set32(reg, c.Get32(reg)+1)
	case 0b001111: // DEC R
		c.Set32(reg, c.Get32(reg)-1)
	case 0b010000: // JNZ R
		if c.Get16(reg) != 0 {
			c.R[RegTP].Address = (c.R[RegTP].Address + uint32(uint16(literal))) & 0xFFFFF
		}
	case 0b010001: // JZ R
		if c.Get16(reg) == 0 {
			c.R[RegTP].Address = (c.R[RegTP].Address + uint32(uint16(literal))) & 0xFFFFF
		}
	case 0b010010: // HLT
		return p.busyClear(bus, channel)
	case 0b010011: // MOVI M, I
		if opSize(ins) == 0 {
			return write8(bus, addr.Address, uint8(literal))
		}
		return write16(bus, addr.Address, uint16(literal))
	case 0b100000: // MOV R, M
		if opSize(ins) == 0 {
			v, err := read8(bus, addr.Address)
			if err != nil {
				return err
			}
			c.Set16Local(reg, uint16(int16(int8(v))))
		} else {
			v, err := read16(bus, addr.Address)
			if err != nil {
				return err
			}
			c.Set16Local(reg, v)
		}
	case 0b100001: // MOV M, R
		if opSize(ins) == 0 {
			return write8(bus, addr.Address, uint8(c.Get16(reg)))
		}
		return write16(bus, addr.Address, c.Get16(reg))
	case 0b100010: // LPD P, M
		lo, err := read16(bus, addr.Address)
		if err != nil {
			return err
		}
		hi, err := read16(bus, (addr.Address+2)&0xFFFFF)
		if err != nil {
			return err
		}
		c.R[reg] = TaggedAddress{Address: (uint32(hi)<<4 + uint32(lo)) & 0xFFFFF, Tag: 0}
	case 0b100011: // MOVP P, M
		v, err := readAddress(bus, addr.Address)
		if err != nil {
			return err
		}
		c.R[reg] = v
	case 0b100101: // TSL M, I, L
		v, err := read8(bus, addr.Address)
		if err != nil {
			return err
		}
		if v == 0 {
			return write8(bus, addr.Address, uint8(segment))
		}
		c.R[RegTP].Address = (c.R[RegTP].Address + uint32(uint16(literal))) & 0xFFFFF
	case 0b100110: // MOVP M, P
		return writeAddress(bus, addr.Address, c.R[reg])
	}
	return nil
}

// readAddress reads a packed 3-byte tagged address (20-bit address plus a
// 1-bit tag in bit 3 of the high byte), per x89_read_address.
func readAddress(bus Bus, addr uint32) (TaggedAddress, error) {
	data := make([]byte, 3)
	if err := bus.Read(addr, data); err != nil {
		return TaggedAddress{}, err
	}
	return TaggedAddress{
		Address: uint32(data[0]) | uint32(data[1])<<8 | (uint32(data[2])&0xF0)<<12,
		Tag:     (data[2] >> 3) & 1,
	}, nil
}

// writeAddress is the inverse of readAddress, per x89_write_address.
func writeAddress(bus Bus, addr uint32, a TaggedAddress) error {
	data := []byte{
		byte(a.Address),
		byte(a.Address >> 8),
		byte((a.Address>>12)&0xF0) | a.Tag<<3,
	}
	return bus.Write(addr, data)
}
