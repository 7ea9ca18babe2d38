/*
   x86emu flag/system opcode handlers: CLC/STC/CLI/STI/..., IN/OUT,
   LGDT/SGDT/LIDT/SIDT, and MOV to/from CR/DR.

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
	"github.com/BinaryMelodies/x86emu/memio"
	"github.com/BinaryMelodies/x86emu/protect"
	"github.com/BinaryMelodies/x86emu/register"
	"github.com/BinaryMelodies/x86emu/smm"
	"github.com/BinaryMelodies/x86emu/trap"
)

func (inst *Instance) checkIOPermission(port uint16, width int) *trap.Fault {
	if inst.Regs.CPL <= inst.Regs.Flags.IOPL() {
		return nil
	}
	return trap.NewException(trap.VecGP, 0, true)
}

// recordIORestart latches the in-flight port instruction's address and
// string registers before the access is issued, so an SMI taken at the
// next instruction boundary can populate the save area's I/O restart
// slots.
func (inst *Instance) recordIORestart() {
	inst.ioTouched = true
	inst.ioRestart.valid = true
	inst.ioRestart.eip = uint32(inst.curParser.xip)
	inst.ioRestart.esi = inst.Regs.GetDword(regIdxSI)
	inst.ioRestart.ecx = inst.Regs.GetDword(regIdxCX)
	inst.ioRestart.edi = inst.Regs.GetDword(regIdxDI)
}

func (inst *Instance) execIn(p *parser, width int, port uint16) *trap.Fault {
	if f := inst.checkIOPermission(port, width); f != nil {
		return f
	}
	inst.recordIORestart()
	buf := make([]byte, width/8)
	if f := inst.Ports.In(port, buf); f != nil {
		return f
	}
	var v uint64
	for i := len(buf) - 1; i >= 0; i-- {
		v = v<<8 | uint64(buf[i])
	}
	inst.writeGPR(regIdxAX, width, v)
	return nil
}

func (inst *Instance) execOut(p *parser, width int, port uint16) *trap.Fault {
	if f := inst.checkIOPermission(port, width); f != nil {
		return f
	}
	inst.recordIORestart()
	v := inst.readGPR(regIdxAX, width)
	buf := make([]byte, width/8)
	for i := 0; i < len(buf); i++ {
		buf[i] = byte(v)
		v >>= 8
	}
	return inst.Ports.Out(port, buf)
}

// execGroup6 handles the 0F 00 system group: SLDT/STR store the live
// selectors, LLDT/LTR establish LDTR/TR through the protect package's
// validation (LTR flips the descriptor's busy bit in table memory), and
// VERR/VERW fold a selector's accessibility into ZF without faulting.
// The whole group is protected-mode only.
func (inst *Instance) execGroup6(p *parser) *trap.Fault {
	if !inst.protected() {
		return &trap.Fault{Kind: trap.KindUndefined, Opcode: p.opcode}
	}
	if f := inst.decodeModRM(p); f != nil {
		return f
	}
	switch p.reg & 7 {
	case 0: // SLDT
		return inst.writeRM(p, 16, uint64(inst.Regs.Seg[register.LDTR].Selector))
	case 1: // STR
		return inst.writeRM(p, 16, uint64(inst.Regs.Seg[register.TR].Selector))
	case 2, 3: // LLDT/LTR
		if inst.Regs.CPL != 0 {
			return trap.NewException(trap.VecGP, 0, true)
		}
		v, f := inst.readRM(p, 16)
		if f != nil {
			return f
		}
		if p.reg&7 == 2 {
			seg, f := protect.LoadLDTR(protectBus{inst}, inst.tables(), uint16(v))
			if f != nil {
				return f
			}
			inst.Regs.Seg[register.LDTR] = seg
			return nil
		}
		seg, f := protect.LoadTR(protectBus{inst}, inst.tables(), uint16(v))
		if f != nil {
			return f
		}
		inst.Regs.Seg[register.TR] = seg
		return nil
	case 4, 5: // VERR/VERW
		v, f := inst.readRM(p, 16)
		if f != nil {
			return f
		}
		inst.Regs.Flags.Set(register.FlagZF, inst.selectorAccessible(uint16(v), p.reg&7 == 5))
		return nil
	}
	return &trap.Fault{Kind: trap.KindUndefined, Opcode: p.opcode}
}

// selectorAccessible is VERR/VERW's test: the selector must name a
// present, privilege-reachable code/data segment that is readable (VERR)
// or writable (VERW). Any failure clears ZF instead of faulting.
func (inst *Instance) selectorAccessible(selector uint16, wantWrite bool) bool {
	d, ok := inst.fetchSelectorDescriptor(selector)
	if !ok || d.IsSystem || !d.Present {
		return false
	}
	rpl := uint8(selector & 3)
	if !(d.IsCode && d.Conforming) {
		if d.DPL < inst.Regs.CPL || d.DPL < rpl {
			return false
		}
	}
	if wantWrite {
		return !d.IsCode && uint8(d.Type)&0x2 != 0
	}
	return !d.IsCode || uint8(d.Type)&0x2 != 0
}

// fetchSelectorDescriptor resolves a selector against GDT/LDT without
// raising guest faults, for the ZF-reporting instructions (LAR/LSL/VERR/
// VERW).
func (inst *Instance) fetchSelectorDescriptor(selector uint16) (protect.Descriptor, bool) {
	if selector&0xFFFC == 0 {
		return protect.Descriptor{}, false
	}
	tables := inst.tables()
	base, limit := tables.GDTBase, tables.GDTLimit
	if selector&0x4 != 0 {
		base, limit = tables.LDTBase, tables.LDTLimit
	}
	d, f := protect.Fetch(protectBus{inst}, base, limit, selector>>3, tables.Long, trap.VecGP)
	if f != nil {
		return protect.Descriptor{}, false
	}
	return d, true
}

// execLARLSL implements LAR (0F 02) and LSL (0F 03): load the selector's
// access word or byte-granular limit into the destination register with
// ZF set, or just clear ZF when the selector is invalid, unreachable, or
// of a type the instruction does not report.
func (inst *Instance) execLARLSL(p *parser, isLSL bool) *trap.Fault {
	if !inst.protected() {
		return &trap.Fault{Kind: trap.KindUndefined, Opcode: p.opcode}
	}
	if f := inst.decodeModRM(p); f != nil {
		return f
	}
	v, f := inst.readRM(p, 16)
	if f != nil {
		return f
	}
	selector := uint16(v)

	d, ok := inst.fetchSelectorDescriptor(selector)
	if !ok || !d.Present || !larLSLTypeValid(d, isLSL) {
		inst.Regs.Flags.Set(register.FlagZF, false)
		return nil
	}
	rpl := uint8(selector & 3)
	if !(d.IsCode && d.Conforming) && (d.DPL < inst.Regs.CPL || d.DPL < rpl) {
		inst.Regs.Flags.Set(register.FlagZF, false)
		return nil
	}

	inst.Regs.Flags.Set(register.FlagZF, true)
	if isLSL {
		limit := uint64(d.Limit)
		if d.Granular {
			limit = limit<<12 | 0xFFF
		}
		inst.writeGPR(p.reg, p.operandSize, limit)
		return nil
	}
	inst.writeGPR(p.reg, p.operandSize, descriptorAccessWord(d))
	return nil
}

// larLSLTypeValid applies the per-instruction system-type allow list:
// LAR reports gates and TSS/LDT types a dispatcher could use, LSL only
// the types that have a limit at all.
func larLSLTypeValid(d protect.Descriptor, isLSL bool) bool {
	if !d.IsSystem {
		return true
	}
	switch d.Type {
	case protect.TypeTSS16Avail, protect.TypeTSS16Busy, protect.TypeLDT,
		protect.TypeTSS32Avail, protect.TypeTSS32Busy:
		return true
	case protect.TypeCallGate16, protect.TypeTaskGate, protect.TypeCallGate32:
		return !isLSL
	}
	return false
}

// descriptorAccessWord rebuilds the masked access image LAR returns:
// the access byte in bits 8-15 and the flags nibble in bits 20-23.
func descriptorAccessWord(d protect.Descriptor) uint64 {
	access := uint64(d.Type) & 0xF
	if !d.IsSystem {
		access |= 0x10
	}
	access |= uint64(d.DPL) << 5
	if d.Present {
		access |= 0x80
	}
	var flags uint64
	if d.Avail {
		flags |= 0x1
	}
	if d.Long {
		flags |= 0x2
	}
	if d.Default32 {
		flags |= 0x4
	}
	if d.Granular {
		flags |= 0x8
	}
	return access<<8 | flags<<20
}

// execSMSW stores the low word of CR0; unlike MOV from CR0 it is legal at
// any privilege level.
func (inst *Instance) execSMSW(p *parser) *trap.Fault {
	return inst.writeRM(p, 16, inst.Regs.CR[0]&0xFFFF)
}

// execLMSW loads CR0's low nibble (PE/MP/EM/TS). Setting PE through LMSW
// works; clearing it does not — only MOV to CR0 can leave protected mode.
func (inst *Instance) execLMSW(p *parser) *trap.Fault {
	if inst.protected() && inst.Regs.CPL != 0 {
		return trap.NewException(trap.VecGP, 0, true)
	}
	v, f := inst.readRM(p, 16)
	if f != nil {
		return f
	}
	pe := inst.Regs.CR[0] & 0x1
	inst.Regs.CR[0] = inst.Regs.CR[0]&^0xF | v&0xF | pe
	return nil
}

// execINVLPG decodes its memory operand and returns; no TLB is modeled,
// so the architectural effect (dropping one translation) is already the
// steady state.
func (inst *Instance) execINVLPG(p *parser) *trap.Fault {
	if inst.Regs.CPL != 0 {
		return trap.NewException(trap.VecGP, 0, true)
	}
	if !p.isMem {
		return &trap.Fault{Kind: trap.KindUndefined, Opcode: p.opcode}
	}
	return nil
}

// execLoadDescriptorTable handles LGDT/LIDT (group 0F 01 /2, /3): reads a
// 6-byte (or 10-byte in 64-bit mode) pseudo-descriptor from memory into
// GDTR/IDTR.
func (inst *Instance) execLoadDescriptorTable(p *parser, isIDT bool) *trap.Fault {
	limitV, f := inst.readMem(p.eaSeg, p.eaOff, 2)
	if f != nil {
		return f
	}
	baseWidth := 4
	if inst.long64() {
		baseWidth = 8
	}
	baseV, f := inst.readMem(p.eaSeg, p.eaOff+2, baseWidth)
	if f != nil {
		return f
	}
	seg := register.GDTR
	if isIDT {
		seg = register.IDTR
	}
	inst.Regs.Seg[seg].Limit = uint32(limitV)
	inst.Regs.Seg[seg].Base = baseV
	return nil
}

func (inst *Instance) execStoreDescriptorTable(p *parser, isIDT bool) *trap.Fault {
	seg := register.GDTR
	if isIDT {
		seg = register.IDTR
	}
	if f := inst.writeMem(p.eaSeg, p.eaOff, 2, uint64(inst.Regs.Seg[seg].Limit)); f != nil {
		return f
	}
	baseWidth := 4
	if inst.long64() {
		baseWidth = 8
	}
	return inst.writeMem(p.eaSeg, p.eaOff+2, baseWidth, inst.Regs.Seg[seg].Base)
}

// execMovCR/execMovFromCR implement 0x0F 0x20-0x23 (MOV r32/64, CRn /
// DRn and back), privileged to CPL0
func (inst *Instance) execMovFromCR(p *parser, crIndex uint8) *trap.Fault {
	if inst.Regs.CPL != 0 {
		return trap.NewException(trap.VecGP, 0, true)
	}
	inst.writeGPR(p.rm, p.operandSize, inst.Regs.CR[crIndex])
	return nil
}

func (inst *Instance) execMovToCR(p *parser, crIndex uint8) *trap.Fault {
	if inst.Regs.CPL != 0 {
		return trap.NewException(trap.VecGP, 0, true)
	}
	inst.Regs.CR[crIndex] = inst.readGPR(p.rm, p.operandSize)
	return nil
}

func (inst *Instance) execMovFromDR(p *parser, drIndex uint8) *trap.Fault {
	if inst.Regs.CPL != 0 {
		return trap.NewException(trap.VecGP, 0, true)
	}
	inst.writeGPR(p.rm, p.operandSize, inst.Regs.DR[drIndex])
	return nil
}

func (inst *Instance) execMovToDR(p *parser, drIndex uint8) *trap.Fault {
	if inst.Regs.CPL != 0 {
		return trap.NewException(trap.VecGP, 0, true)
	}
	inst.Regs.DR[drIndex] = inst.readGPR(p.rm, p.operandSize)
	return nil
}

func (inst *Instance) execFlagBit(mask uint64, value bool) *trap.Fault {
	inst.Regs.Flags.Set(mask, value)
	return nil
}

func (inst *Instance) execCMC() *trap.Fault {
	inst.Regs.Flags.Set(0x0001, !inst.Regs.Flags.Test(0x0001))
	return nil
}

func (inst *Instance) execCLI() *trap.Fault {
	if inst.Regs.CPL > inst.Regs.Flags.IOPL() && !inst.Regs.Flags.Test(register.FlagVM) {
		return trap.NewException(trap.VecGP, 0, true)
	}
	return inst.execFlagBit(register.FlagIF, false)
}

func (inst *Instance) execSTI() *trap.Fault {
	if inst.Regs.CPL > inst.Regs.Flags.IOPL() && !inst.Regs.Flags.Test(register.FlagVM) {
		return trap.NewException(trap.VecGP, 0, true)
	}
	return inst.execFlagBit(register.FlagIF, true)
}

// execRSM implements 0x0F 0xAA (RSM): the exit half of the SMM
// lifecycle, reading back the save-area image enterSMM (step.go) wrote
// and restoring every field the format's Schedule covers.
func (inst *Instance) execRSM() *trap.Fault {
	area := make([]byte, 0x10000)
	if err := inst.bus.MemoryRead(memio.SpaceSMM, inst.smBase(), area); err != nil {
		return trap.NewException(trap.VecGP, 0, true)
	}
	state := smm.Load(inst.Caps.SMM, area)

	inst.Regs.GPR[regIdxAX] = uint64(state.GPR[0])
	inst.Regs.GPR[regIdxCX] = uint64(state.GPR[1])
	inst.Regs.GPR[regIdxDX] = uint64(state.GPR[2])
	inst.Regs.GPR[regIdxBX] = uint64(state.GPR[3])
	inst.Regs.GPR[regIdxSP] = uint64(state.GPR[4])
	inst.Regs.GPR[regIdxBP] = uint64(state.GPR[5])
	inst.Regs.GPR[regIdxSI] = uint64(state.GPR[6])
	inst.Regs.GPR[regIdxDI] = uint64(state.GPR[7])

	inst.Regs.CR[0] = uint64(state.CR0)
	inst.Regs.CR[3] = uint64(state.CR3)
	inst.Regs.CR[4] = uint64(state.CR4)
	inst.Regs.DR[6] = uint64(state.DR6)
	inst.Regs.DR[7] = uint64(state.DR7)
	inst.Regs.Flags.SetRaw(uint64(state.EFLAGS))

	inst.Regs.Seg[register.ES] = segFromSMM(state.ES)
	inst.Regs.Seg[register.CS] = segFromSMM(state.CS)
	inst.Regs.Seg[register.SS] = segFromSMM(state.SS)
	inst.Regs.Seg[register.DS] = segFromSMM(state.DS)
	inst.Regs.Seg[register.FS] = segFromSMM(state.FS)
	inst.Regs.Seg[register.GS] = segFromSMM(state.GS)
	for _, seg := range []int{register.ES, register.CS, register.SS, register.DS, register.FS, register.GS} {
		inst.Regs.Seg[seg].Selector = uint16(inst.Regs.Seg[seg].Base >> 4)
	}

	if state.IORestartValid {
		// The SMM handler left the restart slot armed: resume at the
		// interrupted port instruction with its string registers as they
		// were, so the access is re-issued rather than skipped.
		inst.setXIP(uint64(state.IORestartEIP))
		inst.Regs.SetDword(regIdxSI, state.IORestartESI)
		inst.Regs.SetDword(regIdxCX, state.IORestartECX)
		inst.Regs.SetDword(regIdxDI, state.IORestartEDI)
	} else {
		inst.setXIP(uint64(state.EIP))
	}
	inst.Prefetch.Flush()
	return nil
}

func (inst *Instance) execHLT() *trap.Fault {
	if inst.Regs.CPL != 0 {
		return trap.NewException(trap.VecGP, 0, true)
	}
	return &trap.Fault{Kind: trap.KindHalt}
}
