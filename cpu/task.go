/*
   x86emu task switching: TSS save/load and the busy-bit bookkeeping a
   CALL/INT/JMP through a task gate or an NT=1 IRET both drive.

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

// task.go wires protect.SwitchTask/TSS32 into the live register file: a
// 32-bit-TSS-only task-switch path, reached from a task-gate interrupt
// dispatch, a CALL through a task gate, or an NT=1 IRET return.
package cpu

import (
	"github.com/BinaryMelodies/x86emu/memio"
	"github.com/BinaryMelodies/x86emu/protect"
	"github.com/BinaryMelodies/x86emu/register"
	"github.com/BinaryMelodies/x86emu/trap"
)

// tssDescriptor fetches a TSS selector's GDT descriptor: a TSS is only
// ever installed in the GDT, never the LDT. It returns the TSS's base
// address and the linear address of its access byte, so the caller can
// flip the busy bit in place.
func (inst *Instance) tssDescriptor(tssSelector uint16) (base uint64, accessAddr uint64, f *trap.Fault) {
	tables := inst.tables()
	index := tssSelector >> 3
	desc, f := protect.Fetch(protectBus{inst}, tables.GDTBase, tables.GDTLimit, index, tables.Long, trap.VecGP)
	if f != nil {
		return 0, 0, f
	}
	if !desc.Present {
		return 0, 0, trap.NewException(trap.VecNP, uint64(tssSelector)&0xFFF8, true)
	}
	return desc.Base, tables.GDTBase + uint64(index)*8 + 5, nil
}

// setTSSBusy flips bit 1 of a TSS descriptor's access byte (the
// available/busy half of its type field), matching whatever a real
// processor does to a TSS descriptor's Type nibble on every switch.
func (inst *Instance) setTSSBusy(accessAddr uint64, busy bool) {
	var b [1]byte
	if err := inst.bus.MemoryRead(memio.SpaceSupervisor, accessAddr, b[:]); err != nil {
		return
	}
	if busy {
		b[0] |= 0x02
	} else {
		b[0] &^= 0x02
	}
	inst.bus.MemoryWrite(memio.SpaceSupervisor, accessAddr, b[:])
}

// snapshotTSS reads the outgoing task's existing TSS bytes (to keep its
// static fields: ESP0-2/SS0-2, IOMapBase, LDT) and overlays the dynamic
// fields a task switch actually saves: EIP, EFLAGS, CR3, the GPRs, and
// the segment selectors.
func (inst *Instance) snapshotTSS(trBase uint64) (protect.TSS32, *trap.Fault) {
	raw := make([]byte, 104)
	if err := inst.bus.MemoryRead(inst.accessSpace(), trBase, raw); err != nil {
		return protect.TSS32{}, trap.NewException(trap.VecTS, 0, true)
	}
	t := protect.ReadTSS32(raw)
	r := inst.Regs
	t.CR3 = uint32(r.CR[3])
	t.EIP = uint32(inst.xip())
	t.EFLAGS = uint32(r.Flags.Raw())
	t.EAX, t.ECX, t.EDX, t.EBX = r.GetDword(regIdxAX), r.GetDword(regIdxCX), r.GetDword(regIdxDX), r.GetDword(regIdxBX)
	t.ESP, t.EBP, t.ESI, t.EDI = r.GetDword(regIdxSP), r.GetDword(regIdxBP), r.GetDword(regIdxSI), r.GetDword(regIdxDI)
	t.ES = r.Seg[register.ES].Selector
	t.CS = r.Seg[register.CS].Selector
	t.SS = r.Seg[register.SS].Selector
	t.DS = r.Seg[register.DS].Selector
	t.FS = r.Seg[register.FS].Selector
	t.GS = r.Seg[register.GS].Selector
	return t, nil
}

// switchTask performs the save-outgoing/load-incoming halves of a task
// switch to tssSelector. nested distinguishes a
// CALL/INT/task-gate dispatch (the outgoing task is left marked busy,
// the incoming task's TSS.Link is set to the outgoing selector, and the
// incoming task's NT flag is forced set so a later IRET knows to return
// through the link) from an ordinary JMP-style or IRET-driven switch
// (the outgoing task is marked available again).
//
// Only the 32-bit TSS layout is modeled (see DESIGN.md for the
// 16-bit-TSS scope line).
func (inst *Instance) switchTask(tssSelector uint16, nested bool) *trap.Fault {
	newBase, newAccessAddr, f := inst.tssDescriptor(tssSelector)
	if f != nil {
		return f
	}

	oldSelector := inst.Regs.Seg[register.TR].Selector
	oldBase := inst.Regs.Seg[register.TR].Base
	outgoing, f := inst.snapshotTSS(oldBase)
	if f != nil {
		return f
	}

	incoming, f := protect.SwitchTask(protectBus{inst}, oldBase, outgoing, newBase, !nested)
	if f != nil {
		return f
	}

	if nested {
		incoming.Link = oldSelector
		link := []byte{byte(incoming.Link), byte(incoming.Link >> 8)}
		inst.bus.MemoryWrite(inst.accessSpace(), newBase, link)
	}
	if _, oldAccessAddr, ferr := inst.tssDescriptor(oldSelector); ferr == nil {
		inst.setTSSBusy(oldAccessAddr, nested)
	}
	inst.setTSSBusy(newAccessAddr, true)

	r := inst.Regs
	r.CR[3] = uint64(incoming.CR3)
	r.SetDword(regIdxAX, incoming.EAX)
	r.SetDword(regIdxCX, incoming.ECX)
	r.SetDword(regIdxDX, incoming.EDX)
	r.SetDword(regIdxBX, incoming.EBX)
	r.SetDword(regIdxSP, incoming.ESP)
	r.SetDword(regIdxBP, incoming.EBP)
	r.SetDword(regIdxSI, incoming.ESI)
	r.SetDword(regIdxDI, incoming.EDI)
	inst.setXIP(uint64(incoming.EIP))
	r.Flags.SetRaw(uint64(incoming.EFLAGS))
	r.Flags.Set(register.FlagNT, nested)

	newTables := inst.tables()
	if ldtSeg, lf := protect.LoadDataSegment(protectBus{inst}, newTables, incoming.LDT, 0, false); lf == nil {
		r.Seg[register.LDTR] = ldtSeg
	}
	newTables.LDTBase = r.Seg[register.LDTR].Base
	newTables.LDTLimit = r.Seg[register.LDTR].Limit

	r.Seg[register.TR].Selector = tssSelector
	r.Seg[register.TR].Base = newBase
	r.Seg[register.TR].Limit = 104

	newCPL := uint8(incoming.CS & 3)
	r.CPL = newCPL

	for _, sc := range []struct {
		idx   int
		sel   uint16
		stack bool
	}{
		{register.ES, incoming.ES, false},
		{register.SS, incoming.SS, true},
		{register.DS, incoming.DS, false},
		{register.FS, incoming.FS, false},
		{register.GS, incoming.GS, false},
	} {
		if seg, sf := protect.LoadDataSegment(protectBus{inst}, newTables, sc.sel, newCPL, sc.stack); sf == nil {
			r.Seg[sc.idx] = seg
		}
	}
	if cs, cf := protect.LoadCodeSegment(protectBus{inst}, newTables, incoming.CS, newCPL); cf == nil {
		r.Seg[register.CS] = cs
	}

	inst.Prefetch.Flush()
	return nil
}
