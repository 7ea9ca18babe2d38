/*
   x86emu data-movement and shift/rotate opcode handlers.

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

// exec_data.go covers the MOV/PUSH/POP/LEA/XCHG forms and the
// 0xD0-D3/0xC0-C1 shift-rotate group.
package cpu

import "github.com/BinaryMelodies/x86emu/trap"

func (inst *Instance) execMovRM(p *parser, width int, toReg bool) *trap.Fault {
	if f := inst.decodeModRM(p); f != nil {
		return f
	}
	if toReg {
		v, f := inst.readRM(p, width)
		if f != nil {
			return f
		}
		inst.writeGPR(p.reg, width, v)
		return nil
	}
	v := inst.readGPR(p.reg, width)
	return inst.writeRM(p, width, v)
}

// execMovImmGroup handles 0xC6/0xC7 (group 11: MOV r/m, imm).
func (inst *Instance) execMovImmGroup(p *parser, opcode byte) *trap.Fault {
	width := 8
	if opcode == 0xC7 {
		width = p.operandSize
	}
	if f := inst.decodeModRM(p); f != nil {
		return f
	}
	immWidth := width
	if immWidth > 32 {
		immWidth = 32
	}
	imm, f := inst.fetchImmediate(p, immWidth)
	if f != nil {
		return f
	}
	return inst.writeRM(p, width, imm&widthMask(width))
}

// execMovRegImm handles 0xB0-0xBF (MOV r, imm), which for 64-bit REX.W
// takes a full 64-bit immediate rather than the sign-extended 32-bit form
// every other ALU opcode uses.
func (inst *Instance) execMovRegImm(p *parser, reg uint8, width int) *trap.Fault {
	n := width / 8
	d, f := inst.fetchBytes(p, n)
	if f != nil {
		return f
	}
	var v uint64
	switch width {
	case 8:
		v = uint64(d[0])
	case 16:
		v = uint64(le16(d))
	case 32:
		v = uint64(le32(d))
	default:
		v = le64(d)
	}
	inst.writeGPR(reg, width, v)
	return nil
}

func (inst *Instance) execLEA(p *parser) *trap.Fault {
	if f := inst.decodeModRM(p); f != nil {
		return f
	}
	if !p.isMem {
		// LEA with a register-direct ModRM byte is undefined on real
		// silicon; treat it as #UD's "EffectiveAddress is
		// defined only for memory operands".
		return &trap.Fault{Kind: trap.KindUndefined, Opcode: p.opcode}
	}
	inst.writeGPR(p.reg, p.operandSize, p.eaOff&widthMask(p.operandSize))
	return nil
}

func (inst *Instance) execXCHG(p *parser, width int) *trap.Fault {
	if f := inst.decodeModRM(p); f != nil {
		return f
	}
	a, f := inst.readRM(p, width)
	if f != nil {
		return f
	}
	b := inst.readGPR(p.reg, width)
	if f := inst.writeRM(p, width, b); f != nil {
		return f
	}
	inst.writeGPR(p.reg, width, a)
	return nil
}

func (inst *Instance) execPushReg(reg uint8, width int) *trap.Fault {
	return inst.pushN(inst.readGPR(reg, width))
}

func (inst *Instance) execPopReg(reg uint8, width int) *trap.Fault {
	v, f := inst.popN()
	if f != nil {
		return f
	}
	inst.writeGPR(reg, width, v)
	return nil
}

func (inst *Instance) execPushImm(p *parser, width int) *trap.Fault {
	immWidth := width
	if immWidth > 32 {
		immWidth = 32
	}
	imm, f := inst.fetchImmediate(p, immWidth)
	if f != nil {
		return f
	}
	return inst.pushN(imm & widthMask(width))
}

// execPushRM and execPopRM handle the PUSH case of the 0xFF group (reg==6)
// and the lone 0x8F (POP r/m, group 1A).
func (inst *Instance) execPushRM(p *parser, width int) *trap.Fault {
	v, f := inst.readRM(p, width)
	if f != nil {
		return f
	}
	return inst.pushN(v)
}

func (inst *Instance) execPopRM(p *parser, width int) *trap.Fault {
	v, f := inst.popN()
	if f != nil {
		return f
	}
	return inst.writeRM(p, width, v)
}

func (inst *Instance) execPushF(p *parser) *trap.Fault {
	width := p.operandSize
	if width == 64 {
		width = 16 // PUSHFQ still pushes a 16/64 image per the real/long split; simplify to 16/32
	}
	if width == 16 {
		return inst.pushN(uint64(inst.Regs.Flags.FlagsImage16(inst.imageCtx())))
	}
	return inst.pushN(uint64(inst.Regs.Flags.FlagsImage32(inst.imageCtx())))
}

func (inst *Instance) execPopF(p *parser) *trap.Fault {
	v, f := inst.popN()
	if f != nil {
		return f
	}
	width := p.operandSize
	if width == 16 {
		inst.Regs.Flags.SetFlagsImage16(inst.imageCtx(), uint16(v))
	} else {
		inst.Regs.Flags.SetFlagsImage32(inst.imageCtx(), uint32(v))
	}
	return nil
}

// execShiftGroup performs one of the eight ModRM.reg-selected shift/rotate
// operations of group 2 (0xD0-D3/0xC0-C1).
func (inst *Instance) execShiftGroup(p *parser, width int, count uint8) *trap.Fault {
	v, f := inst.readRM(p, width)
	if f != nil {
		return f
	}
	mask := widthMask(width)
	bits := uint(width)
	c := uint(count) % 32
	if width != 64 {
		c %= bits
	}
	var res uint64
	var cf, of bool
	switch p.reg & 7 {
	case 0: // ROL
		if c != 0 {
			res = ((v << c) | (v >> (bits - c))) & mask
		} else {
			res = v
		}
		cf = res&1 != 0
		of = (res>>(bits-1))&1 != (cf2bit(cf))
	case 1: // ROR
		if c != 0 {
			res = ((v >> c) | (v << (bits - c))) & mask
		} else {
			res = v
		}
		cf = (res>>(bits-1))&1 != 0
		of = ((res>>(bits-1))&1)^((res>>(bits-2))&1) != 0
	case 2: // RCL
		cfIn := uint64(0)
		if inst.Regs.Flags.Test(0x0001) {
			cfIn = 1
		}
		wide := (v & mask) | (cfIn << bits)
		for i := uint(0); i < c; i++ {
			top := (wide >> bits) & 1
			wide = ((wide << 1) | top) & ((mask << 1) | 1)
		}
		res = wide & mask
		cf = (wide>>bits)&1 != 0
	case 3: // RCR
		cfIn := uint64(0)
		if inst.Regs.Flags.Test(0x0001) {
			cfIn = 1
		}
		wide := (v & mask) | (cfIn << bits)
		for i := uint(0); i < c; i++ {
			bottom := wide & 1
			wide = (wide >> 1) | (bottom << bits)
		}
		res = wide & mask
		cf = (wide>>bits)&1 != 0
	case 4, 6: // SHL/SAL
		if c > 0 {
			res = (v << c) & mask
			cf = c <= bits && (v<<(c-1))&signBit(width) != 0
		} else {
			res = v
		}
		of = (res&signBit(width) != 0) != cf
	case 5: // SHR
		if c > 0 {
			res = (v & mask) >> c
			cf = (v>>(c-1))&1 != 0
		} else {
			res = v
		}
		of = v&signBit(width) != 0
	case 7: // SAR
		sv := int64(signExtend(v, width))
		if c > 0 {
			res = uint64(sv>>c) & mask
			cf = (v>>(c-1))&1 != 0
		} else {
			res = v
		}
		of = false
	}
	if c != 0 {
		inst.Regs.Flags.Set(0x0001, cf)
		inst.Regs.Flags.Set(0x0800, of)
		inst.Regs.Flags.Set(0x0040, res == 0)
		inst.Regs.Flags.Set(0x0080, res&signBit(width) != 0)
		inst.Regs.Flags.Set(0x0004, parity(res))
	}
	return inst.writeRM(p, width, res)
}

func cf2bit(b bool) uint64 {
	if b {
		return 1
	}
	return 0
}
