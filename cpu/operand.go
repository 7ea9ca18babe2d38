/*
   x86emu operand access: register/memory reads and writes at a given width.

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

// operand.go is the funnel every opcode handler in exec_*.go reads and
// writes memory/register operands through: one read and one write entry
// point regardless of addressing mode, layered on memio.Translator +
// memio.PrefetchQueue's split of segmentation, limit, paging, and
// breakpoint checks.
package cpu

import (
	"github.com/BinaryMelodies/x86emu/memio"
	"github.com/BinaryMelodies/x86emu/register"
	"github.com/BinaryMelodies/x86emu/trap"
)

// linearFor resolves a (segment, offset) pair to a checked linear
// address: segment-wrap (pre-286), limit check, and canonical check.
// Paging (if enabled) is applied by readMem/writeMem themselves, since
// only they know the access's R/W/X intent.
func (inst *Instance) linearFor(segIndex int, offset uint64, size int, write, stackAccess bool) (uint64, *trap.Fault) {
	seg := &inst.Regs.Seg[segIndex]
	offset = inst.Mem.WrapOffset(offset)
	if f := inst.Mem.CheckLimit(seg, offset, uint64(size), stackAccess); f != nil {
		return 0, f
	}
	linear, f := inst.Mem.ToLinear(seg, segIndex, offset, stackAccess)
	if f != nil {
		return 0, f
	}
	return linear, nil
}

// translatePaging resolves a linear data address all the way to a
// physical address, walking page tables when CR0.PG is set.
func (inst *Instance) translatePaging(linear uint64, write bool) (uint64, *trap.Fault) {
	if inst.Regs.CR[0]&0x80000000 == 0 {
		return linear, nil
	}
	shape := memio.Shape(&inst.Caps, true, inst.Regs.CR[4]&0x20 != 0, inst.Regs.EFER&0x400 != 0, inst.Regs.CR[4]&(1<<12) != 0)
	acc := memio.Access{
		Write: write,
		User:  inst.Regs.CPL == 3,
		WP:    inst.Regs.CR[0]&0x10000 != 0,
	}
	return inst.Mem.Walk(inst.accessSpace(), shape, inst.Regs.CR[3]&^0xFFF, linear, acc, inst.Regs.CR[4]&0x10 != 0)
}

// checkDataBreakpoints matches DR0..DR3 against a data access range. A
// match only records the hit bits in DR6 and the access completes; no #DB
// is raised for a data breakpoint hit.
func (inst *Instance) checkDataBreakpoints(linear uint64, size int, write bool) {
	kind := 1 // W
	if !write {
		kind = 3 // RW
	}
	if b := memio.MatchLinear(inst.Regs.DR, linear, size, kind); b != 0 {
		inst.Regs.DR[6] |= uint64(b)
	}
}

// readMem reads size bytes (1/2/4/8) from segIndex:offset, as a
// little-endian unsigned integer.
func (inst *Instance) readMem(segIndex int, offset uint64, size int) (uint64, *trap.Fault) {
	linear, f := inst.linearFor(segIndex, offset, size, false, segIndex == register.SS)
	if f != nil {
		return 0, f
	}
	phys, f := inst.translatePaging(linear, false)
	if f != nil {
		return 0, f
	}
	inst.checkDataBreakpoints(linear, size, false)
	buf := make([]byte, size)
	if err := inst.bus.MemoryRead(inst.accessSpace(), phys, buf); err != nil {
		return 0, trap.NewException(trap.VecPF, 0, true)
	}
	var v uint64
	for i := size - 1; i >= 0; i-- {
		v = v<<8 | uint64(buf[i])
	}
	return v, nil
}

// writeMem is the write half of readMem.
func (inst *Instance) writeMem(segIndex int, offset uint64, size int, value uint64) *trap.Fault {
	linear, f := inst.linearFor(segIndex, offset, size, true, segIndex == register.SS)
	if f != nil {
		return f
	}
	phys, f := inst.translatePaging(linear, true)
	if f != nil {
		return f
	}
	inst.checkDataBreakpoints(linear, size, true)
	buf := make([]byte, size)
	for i := 0; i < size; i++ {
		buf[i] = byte(value)
		value >>= 8
	}
	if err := inst.bus.MemoryWrite(inst.accessSpace(), phys, buf); err != nil {
		return trap.NewException(trap.VecPF, memio.PFWrite, true)
	}
	return nil
}

// readGPR/writeGPR read a general register at the given bit width,
// honoring the REX byte-aliasing rule (register.Bank.GetByte already
// implements it).
func (inst *Instance) readGPR(index uint8, width int) uint64 {
	switch width {
	case 8:
		return uint64(inst.Regs.GetByte(index))
	case 16:
		return uint64(inst.Regs.GetWord(index))
	case 32:
		return uint64(inst.Regs.GetDword(index))
	default:
		return inst.Regs.GetQword(index)
	}
}

func (inst *Instance) writeGPR(index uint8, width int, value uint64) {
	switch width {
	case 8:
		inst.Regs.SetByte(index, uint8(value))
	case 16:
		inst.Regs.SetWord(index, uint16(value))
	case 32:
		inst.Regs.SetDword(index, uint32(value))
	default:
		inst.Regs.SetQword(index, value)
	}
}

// readRM/writeRM dispatch a decoded ModRM operand to either the register
// file or memory, depending on p.isMem.
func (inst *Instance) readRM(p *parser, width int) (uint64, *trap.Fault) {
	if !p.isMem {
		return inst.readGPR(p.rm, width), nil
	}
	return inst.readMem(p.eaSeg, p.eaOff, width/8)
}

func (inst *Instance) writeRM(p *parser, width int, value uint64) *trap.Fault {
	if !p.isMem {
		inst.writeGPR(p.rm, width, value)
		return nil
	}
	return inst.writeMem(p.eaSeg, p.eaOff, width/8, value)
}

// signExtend sign-extends a `from`-bit value to 64 bits.
func signExtend(v uint64, from int) uint64 {
	shift := 64 - from
	return uint64(int64(v<<shift) >> shift)
}
