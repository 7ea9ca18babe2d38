/*
   x86emu stack push/pop and the xIP accessor.

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

package cpu

import (
	"github.com/BinaryMelodies/x86emu/register"
	"github.com/BinaryMelodies/x86emu/trap"
)

// xip/setXIP read and write the instruction pointer, stored in the GPR
// file's otherwise-unused slot 16 (decode.go's regIdxIP) so every other
// accessor (readGPR/writeGPR, the REX byte-aliasing table) stays a single
// uniform array instead of xIP needing its own special-cased field.
func (inst *Instance) xip() uint64         { return inst.Regs.GetQword(regIdxIP) }
func (inst *Instance) setXIP(v uint64)     { inst.Regs.SetQword(regIdxIP, v) }

// stackWidth returns the push/pop unit size in bytes: 2 for a 16-bit
// stack (SS.B clear), 4 for 32-bit, 8 in 64-bit mode.
func (inst *Instance) stackWidth() int {
	if inst.long64() {
		return 8
	}
	if inst.Regs.Seg[register.SS].Access&register.AccessDefault32 != 0 {
		return 4
	}
	return 2
}

// pushN decrements SP/ESP/RSP by the stack width and stores value;
// popping what was pushed returns it and restores SP/ESP/RSP.
func (inst *Instance) pushN(value uint64) *trap.Fault {
	width := inst.stackWidth()
	sp := inst.Regs.GetQword(regIdxSP) - uint64(width)
	if f := inst.writeMem(register.SS, sp, width, value); f != nil {
		return f
	}
	inst.setSP(sp)
	return nil
}

// popN is the inverse of pushN.
func (inst *Instance) popN() (uint64, *trap.Fault) {
	width := inst.stackWidth()
	sp := inst.Regs.GetQword(regIdxSP)
	v, f := inst.readMem(register.SS, sp, width)
	if f != nil {
		return 0, f
	}
	inst.setSP(sp + uint64(width))
	return v, nil
}

// setSP writes SP/ESP/RSP at the width the current stack-size attribute
// calls for, leaving upper GPR bits alone on a 16/32-bit stack (matching
// real silicon, which never touches RSP's high 32 bits for an ESP-width
// push/pop).
func (inst *Instance) setSP(v uint64) {
	switch inst.stackWidth() {
	case 2:
		inst.Regs.SetWord(regIdxSP, uint16(v))
	case 4:
		inst.Regs.SetDword(regIdxSP, uint32(v))
	default:
		inst.Regs.SetQword(regIdxSP, v)
	}
}
