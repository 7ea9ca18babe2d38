/*
   x86emu arithmetic flag computation.

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

// flags.go is the single home of the arithmetic flag rules: CF =
// carry from bit N, OF = xor(CF, sign carry), ZF when the result is 0,
// SF = result sign, PF = parity of the low byte, AF = carry from bit 3.
// Every arithmetic/logic opcode handler funnels its result through
// setLogicFlags or setArithFlags here instead of recomputing the bit
// tests inline.
package cpu

import "math/bits"

// widthMask returns the all-ones mask for an N-bit quantity.
func widthMask(width int) uint64 {
	if width >= 64 {
		return ^uint64(0)
	}
	return (uint64(1) << width) - 1
}

func signBit(width int) uint64 { return uint64(1) << (width - 1) }

// parity reports the PF value: even parity (1) over the low 8 bits.
func parity(v uint64) bool {
	return bits.OnesCount8(uint8(v))%2 == 0
}

// setLogicFlags applies AND/OR/XOR/TEST's flag rule: CF=OF=0, AF
// undefined (left untouched here, as real silicon does), ZF/SF/PF from
// the result.
func (inst *Instance) setLogicFlags(result uint64, width int) {
	fl := &inst.Regs.Flags
	fl.Set(0x0001 /* CF */, false)
	fl.Set(0x0800 /* OF */, false)
	fl.Set(0x0040 /* ZF */, result&widthMask(width) == 0)
	fl.Set(0x0080 /* SF */, result&signBit(width) != 0)
	fl.Set(0x0004 /* PF */, parity(result))
}

// setArithFlags applies the documented add/sub carry rule for an
// operation that already knows its raw (unmasked) result plus the two
// operands, covering ADD/ADC/SUB/SBB/CMP/NEG: "a carry if any two of the
// {x, y, ~z} MSBs are set" reduces to the standard XOR formulation used
// here, which is equivalent bit for bit.
func (inst *Instance) setArithFlags(a, b, result uint64, width int, isSub bool, carryIn uint64) {
	fl := &inst.Regs.Flags
	mask := widthMask(width)
	res := result & mask

	var cf bool
	if isSub {
		cf = (a & mask) < (b&mask)+carryIn || (carryIn == 1 && b&mask == mask)
	} else {
		sum := (a & mask) + (b & mask) + carryIn
		cf = sum > mask
	}
	fl.Set(0x0001, cf)

	aSign := a&signBit(width) != 0
	bSign := b&signBit(width) != 0
	rSign := res&signBit(width) != 0
	var of bool
	if isSub {
		of = aSign != bSign && rSign != aSign
	} else {
		of = aSign == bSign && rSign != aSign
	}
	fl.Set(0x0800, of)

	fl.Set(0x0040, res == 0)
	fl.Set(0x0080, rSign)
	fl.Set(0x0004, parity(res))

	var af bool
	if isSub {
		af = (a&0xF) < (b&0xF)+carryIn
	} else {
		af = (a&0xF)+(b&0xF)+carryIn > 0xF
	}
	fl.Set(0x0010, af)
}

// incDecFlags applies INC/DEC's rule: every flag except CF updates as if
// it were ADD/SUB by 1, and CF is left exactly as it was.
func (inst *Instance) incDecFlags(before, result uint64, width int, isDec bool) {
	savedCF := inst.Regs.Flags.Test(0x0001)
	if isDec {
		inst.setArithFlags(before, 1, result, width, true, 0)
	} else {
		inst.setArithFlags(before, 1, result, width, false, 0)
	}
	inst.Regs.Flags.Set(0x0001, savedCF)
}
