/*
   x86emu arithmetic/logic opcode handlers.

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

// exec_alu.go covers the arithmetic/logic group: the eight
// ADD/OR/ADC/SBB/AND/SUB/XOR/CMP opcode families (register/memory forms
// plus the 0x80/0x81/0x83 immediate group and the 0xF6/0xF7 unary group),
// and INC/DEC/NOT/NEG, dispatched through a func value per opcode family
// instead of a switch keyed on a raw integer.
package cpu

import "github.com/BinaryMelodies/x86emu/trap"

// aluFamily is one of the eight ADD..CMP opcode groups: apply computes
// the raw (unmasked) result and isSub/storesResult say how to apply it
// to the flags and destination.
type aluFamily struct {
	isSub       bool
	storesResult bool
	useCarryIn  bool
	logic       func(a, b uint64) uint64 // non-nil for AND/OR/XOR
}

var aluFamilies = [8]aluFamily{
	0: {storesResult: true},                     // ADD
	1: {storesResult: true, logic: func(a, b uint64) uint64 { return a | b }},  // OR
	2: {storesResult: true, useCarryIn: true},    // ADC
	3: {isSub: true, storesResult: true, useCarryIn: true}, // SBB
	4: {storesResult: true, logic: func(a, b uint64) uint64 { return a & b }},  // AND
	5: {isSub: true, storesResult: true},         // SUB
	6: {storesResult: true, logic: func(a, b uint64) uint64 { return a ^ b }},  // XOR
	7: {isSub: true, storesResult: false},        // CMP
}

// apply performs one ALU family's operation and updates the flags.
func (inst *Instance) aluApply(fam aluFamily, a, b uint64, width int) uint64 {
	if fam.logic != nil {
		res := fam.logic(a, b) & widthMask(width)
		inst.setLogicFlags(res, width)
		return res
	}
	var carryIn uint64
	if fam.useCarryIn && inst.Regs.Flags.Test(0x0001) {
		carryIn = 1
	}
	var res uint64
	if fam.isSub {
		res = a - b - carryIn
	} else {
		res = a + b + carryIn
	}
	inst.setArithFlags(a, b, res, width, fam.isSub, carryIn)
	return res & widthMask(width)
}

// execALUGroup handles the register/memory encodings of one ALU family:
// opcodes base+0 (Eb,Gb), base+1 (Ev,Gv), base+2 (Gb,Eb), base+3 (Gv,Ev),
// base+4 (AL,ib), base+5 (rAX,iz).
func (inst *Instance) execALUGroup(p *parser, famIdx int, variant byte) *trap.Fault {
	fam := aluFamilies[famIdx]
	switch variant {
	case 0, 1:
		width := 8
		if variant == 1 {
			width = p.operandSize
		}
		if f := inst.decodeModRM(p); f != nil {
			return f
		}
		a, f := inst.readRM(p, width)
		if f != nil {
			return f
		}
		b := inst.readGPR(p.reg, width)
		res := inst.aluApply(fam, a, b, width)
		if fam.storesResult {
			return inst.writeRM(p, width, res)
		}
		return nil
	case 2, 3:
		width := 8
		if variant == 3 {
			width = p.operandSize
		}
		if f := inst.decodeModRM(p); f != nil {
			return f
		}
		a := inst.readGPR(p.reg, width)
		b, f := inst.readRM(p, width)
		if f != nil {
			return f
		}
		res := inst.aluApply(fam, a, b, width)
		if fam.storesResult {
			inst.writeGPR(p.reg, width, res)
		}
		return nil
	case 4, 5:
		width := 8
		if variant == 5 {
			width = p.operandSize
		}
		immWidth := width
		if immWidth > 32 {
			immWidth = 32
		}
		imm, f := inst.fetchImmediate(p, immWidth)
		if f != nil {
			return f
		}
		a := inst.readGPR(regIdxAX, width)
		res := inst.aluApply(fam, a, imm, width)
		if fam.storesResult {
			inst.writeGPR(regIdxAX, width, res)
		}
		return nil
	}
	return nil
}

// fetchImmediate reads an immediate of the given bit width (8/16/32),
// sign-extended to 64 bits when it is later combined with a wider
// destination.
func (inst *Instance) fetchImmediate(p *parser, width int) (uint64, *trap.Fault) {
	n := width / 8
	d, f := inst.fetchBytes(p, n)
	if f != nil {
		return 0, f
	}
	switch width {
	case 8:
		return signExtend(uint64(d[0]), 8), nil
	case 16:
		return signExtend(uint64(le16(d)), 16), nil
	default:
		return signExtend(uint64(le32(d)), 32), nil
	}
}

// execImmediateGroup handles opcodes 0x80/0x81/0x83 (group 1): the ALU
// family comes from ModRM.reg, the operand from ModRM.rm, and the
// immediate is a byte (0x80, 0x83 sign-extended) or operand-sized
// (0x81).
func (inst *Instance) execImmediateGroup(p *parser, opcode byte) *trap.Fault {
	width := 8
	if opcode != 0x80 {
		width = p.operandSize
	}
	if f := inst.decodeModRM(p); f != nil {
		return f
	}
	var imm uint64
	if opcode == 0x81 {
		immWidth := width
		if immWidth > 32 {
			immWidth = 32
		}
		v, f := inst.fetchImmediate(p, immWidth)
		if f != nil {
			return f
		}
		imm = v
	} else {
		d, f := inst.fetchBytes(p, 1)
		if f != nil {
			return f
		}
		imm = signExtend(uint64(d[0]), 8)
	}
	a, f := inst.readRM(p, width)
	if f != nil {
		return f
	}
	fam := aluFamilies[p.reg&7]
	res := inst.aluApply(fam, a, imm, width)
	if fam.storesResult {
		return inst.writeRM(p, width, res)
	}
	return nil
}

// execUnaryGroup handles the 0xF6/0xF7 group: TEST/NOT/NEG/MUL/IMUL/DIV/
// IDIV selected by ModRM.reg.9's arithmetic section.
func (inst *Instance) execUnaryGroup(p *parser, opcode byte) *trap.Fault {
	width := 8
	if opcode == 0xF7 {
		width = p.operandSize
	}
	if f := inst.decodeModRM(p); f != nil {
		return f
	}
	switch p.reg & 7 {
	case 0, 1: // TEST
		immWidth := width
		if immWidth > 16 {
			immWidth = 32
		}
		imm, f := inst.fetchImmediate(p, immWidth)
		if f != nil {
			return f
		}
		a, f := inst.readRM(p, width)
		if f != nil {
			return f
		}
		inst.setLogicFlags(a&imm&widthMask(width), width)
		return nil
	case 2: // NOT
		a, f := inst.readRM(p, width)
		if f != nil {
			return f
		}
		return inst.writeRM(p, width, ^a&widthMask(width))
	case 3: // NEG
		a, f := inst.readRM(p, width)
		if f != nil {
			return f
		}
		res := (0 - a) & widthMask(width)
		inst.setArithFlags(0, a, res, width, true, 0)
		inst.Regs.Flags.Set(0x0001, a != 0)
		return inst.writeRM(p, width, res)
	case 4: // MUL
		a, f := inst.readRM(p, width)
		if f != nil {
			return f
		}
		acc := inst.readGPR(regIdxAX, width)
		full := acc * a
		inst.storeWideResult(width, full)
		overflow := full>>uint(width) != 0
		inst.Regs.Flags.Set(0x0001, overflow)
		inst.Regs.Flags.Set(0x0800, overflow)
		return nil
	case 5: // IMUL (one-operand form)
		a, f := inst.readRM(p, width)
		if f != nil {
			return f
		}
		acc := int64(signExtend(inst.readGPR(regIdxAX, width), width))
		full := acc * int64(signExtend(a, width))
		inst.storeWideResult(width, uint64(full))
		top := full >> uint(width)
		overflow := top != 0 && top != -1
		inst.Regs.Flags.Set(0x0001, overflow)
		inst.Regs.Flags.Set(0x0800, overflow)
		return nil
	case 6: // DIV
		a, f := inst.readRM(p, width)
		if f != nil {
			return f
		}
		if a == 0 {
			return trap.NewException(trap.VecDE, 0, false)
		}
		dividend := inst.loadWideDividend(width)
		q := dividend / a
		r := dividend % a
		if q > widthMask(width) {
			return trap.NewException(trap.VecDE, 0, false)
		}
		inst.storeDivResult(width, q, r)
		return nil
	case 7: // IDIV
		raw, f := inst.readRM(p, width)
		if f != nil {
			return f
		}
		a := int64(signExtend(raw, width))
		if a == 0 {
			return trap.NewException(trap.VecDE, 0, false)
		}
		dividend := int64(inst.loadWideDividend(width))
		if width < 64 {
			dividend = int64(signExtend(uint64(dividend), 2*width))
		}
		q := dividend / a
		r := dividend % a
		if width < 64 && (q < -(int64(1)<<uint(width-1)) || q > int64(1)<<uint(width-1)-1) {
			// quotient does not fit the signed destination width
			return trap.NewException(trap.VecDE, 0, false)
		}
		inst.storeDivResult(width, uint64(q), uint64(r))
		return nil
	}
	return nil
}

// storeWideResult writes a double-width MUL/IMUL product into DX:AX /
// EDX:EAX / RDX:RAX (or just AX for the 8-bit AL*r/m8 = AX case).
func (inst *Instance) storeWideResult(width int, full uint64) {
	if width == 8 {
		inst.writeGPR(regIdxAX, 16, full&0xFFFF)
		return
	}
	inst.writeGPR(regIdxAX, width, full&widthMask(width))
	inst.writeGPR(regIdxDX, width, (full>>uint(width))&widthMask(width))
}

// loadWideDividend reads the DX:AX / EDX:EAX / RDX:RAX dividend pair (or
// just AX for 8-bit divides).
func (inst *Instance) loadWideDividend(width int) uint64 {
	if width == 8 {
		return inst.readGPR(regIdxAX, 16)
	}
	lo := inst.readGPR(regIdxAX, width)
	hi := inst.readGPR(regIdxDX, width)
	return lo | hi<<uint(width)
}

func (inst *Instance) storeDivResult(width int, q, r uint64) {
	if width == 8 {
		inst.writeGPR(regIdxAX, 8, q&0xFF)
		inst.Regs.SetByte(4 /* AH */, uint8(r))
		return
	}
	inst.writeGPR(regIdxAX, width, q&widthMask(width))
	inst.writeGPR(regIdxDX, width, r&widthMask(width))
}

// execIncDecReg handles the one-byte 0x40-0x4F INC/DEC r16/32 forms
// (not valid once REX makes that range a prefix, which parsePrefixes
// already diverts before execute ever sees 0x40-0x4F in 64-bit mode).
func (inst *Instance) execIncDecReg(p *parser, reg uint8, isDec bool) *trap.Fault {
	width := p.operandSize
	before := inst.readGPR(reg, width)
	var after uint64
	if isDec {
		after = (before - 1) & widthMask(width)
	} else {
		after = (before + 1) & widthMask(width)
	}
	inst.incDecFlags(before, after, width, isDec)
	inst.writeGPR(reg, width, after)
	return nil
}

// execIncDecGroup handles the 0xFE (8-bit) and part of the 0xFF group
// (INC/DEC r/m) selected by ModRM.reg == 0/1.
func (inst *Instance) execIncDecGroup(p *parser, width int, isDec bool) *trap.Fault {
	before, f := inst.readRM(p, width)
	if f != nil {
		return f
	}
	var after uint64
	if isDec {
		after = (before - 1) & widthMask(width)
	} else {
		after = (before + 1) & widthMask(width)
	}
	inst.incDecFlags(before, after, width, isDec)
	return inst.writeRM(p, width, after)
}
