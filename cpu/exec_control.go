/*
   x86emu control-transfer opcode handlers: Jcc/JMP/CALL/RET/LOOP/INT/IRET.

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
	"github.com/BinaryMelodies/x86emu/protect"
	"github.com/BinaryMelodies/x86emu/register"
	"github.com/BinaryMelodies/x86emu/trap"
)

// condTaken evaluates the sixteen Jcc conditions, per the classic 8086
// condition-code table; conditions share the low nibble with SETcc/CMOVcc
// which this core does not separately implement (see DESIGN.md).
func (inst *Instance) condTaken(cc uint8) bool {
	fl := &inst.Regs.Flags
	cf := fl.Test(0x0001)
	zf := fl.Test(0x0040)
	sf := fl.Test(0x0080)
	of := fl.Test(0x0800)
	pf := fl.Test(0x0004)
	switch cc & 0xF {
	case 0x0:
		return of
	case 0x1:
		return !of
	case 0x2:
		return cf
	case 0x3:
		return !cf
	case 0x4:
		return zf
	case 0x5:
		return !zf
	case 0x6:
		return cf || zf
	case 0x7:
		return !cf && !zf
	case 0x8:
		return sf
	case 0x9:
		return !sf
	case 0xA:
		return pf
	case 0xB:
		return !pf
	case 0xC:
		return sf != of
	case 0xD:
		return sf == of
	case 0xE:
		return zf || sf != of
	default:
		return !zf && sf == of
	}
}

func (inst *Instance) execJccShort(p *parser, cc uint8) *trap.Fault {
	d, f := inst.fetchBytes(p, 1)
	if f != nil {
		return f
	}
	if inst.condTaken(cc) {
		p.cur += uint64(int64(int8(d[0])))
	}
	return nil
}

func (inst *Instance) execJccNear(p *parser, cc uint8) *trap.Fault {
	immWidth := p.operandSize
	if immWidth > 32 {
		immWidth = 32
	}
	d, f := inst.fetchBytes(p, immWidth/8)
	if f != nil {
		return f
	}
	var disp int64
	if immWidth == 16 {
		disp = int64(int16(le16(d)))
	} else {
		disp = int64(int32(le32(d)))
	}
	if inst.condTaken(cc) {
		p.cur = uint64(int64(p.cur) + disp)
	}
	return nil
}

func (inst *Instance) execJmpShort(p *parser) *trap.Fault {
	d, f := inst.fetchBytes(p, 1)
	if f != nil {
		return f
	}
	p.cur = uint64(int64(p.cur) + int64(int8(d[0])))
	return nil
}

func (inst *Instance) execJmpNear(p *parser) *trap.Fault {
	immWidth := p.operandSize
	if immWidth > 32 {
		immWidth = 32
	}
	d, f := inst.fetchBytes(p, immWidth/8)
	if f != nil {
		return f
	}
	var disp int64
	if immWidth == 16 {
		disp = int64(int16(le16(d)))
	} else {
		disp = int64(int32(le32(d)))
	}
	p.cur = uint64(int64(p.cur) + disp)
	return nil
}

func (inst *Instance) execCallNear(p *parser) *trap.Fault {
	immWidth := p.operandSize
	if immWidth > 32 {
		immWidth = 32
	}
	d, f := inst.fetchBytes(p, immWidth/8)
	if f != nil {
		return f
	}
	var disp int64
	if immWidth == 16 {
		disp = int64(int16(le16(d)))
	} else {
		disp = int64(int32(le32(d)))
	}
	retAddr := p.cur
	target := uint64(int64(p.cur) + disp)
	if f := inst.pushN(retAddr); f != nil {
		return f
	}
	p.cur = target
	return nil
}

func (inst *Instance) execRetNear(p *parser, popBytes uint16) *trap.Fault {
	addr, f := inst.popN()
	if f != nil {
		return f
	}
	if popBytes != 0 {
		inst.setSP(inst.Regs.GetQword(regIdxSP) + uint64(popBytes))
	}
	p.cur = addr
	return nil
}

func (inst *Instance) execRetFar(p *parser, popBytes uint16) *trap.Fault {
	ip, f := inst.popN()
	if f != nil {
		return f
	}
	cs, f := inst.popN()
	if f != nil {
		return f
	}
	if popBytes != 0 {
		inst.setSP(inst.Regs.GetQword(regIdxSP) + uint64(popBytes))
	}
	if inst.protected() {
		seg, f := inst.loadCodeSegmentChecked(uint16(cs))
		if f != nil {
			return f
		}
		inst.Regs.Seg[register.CS] = seg
	} else {
		inst.Regs.SegmentLoadRealMode(register.CS, uint16(cs), false)
	}
	p.cur = ip
	return nil
}

// execCallFar implements far CALL: an ordinary
// code-segment target pushes CS:IP and loads the new CS, exactly as
// before; a target selector that resolves to a system descriptor is
// either a task gate (switchTask handles it) or a call gate, which
// copies ParamCount words/dwords from the caller's stack onto the
// callee's and pushes old_ss, old_esp, param0, param1, ..., old_cs,
// old_eip in that order when the call gate raises privilege.
func (inst *Instance) execCallFar(p *parser, newCS uint16, newIP uint64) *trap.Fault {
	if inst.protected() && newCS&0xFFFC != 0 {
		tables := inst.tables()
		index := newCS >> 3
		base, limit := tables.GDTBase, tables.GDTLimit
		if newCS&0x4 != 0 {
			base, limit = tables.LDTBase, tables.LDTLimit
		}
		desc, f := protect.Fetch(protectBus{inst}, base, limit, index, tables.Long, trap.VecGP)
		if f != nil {
			return f
		}
		if desc.IsSystem {
			return inst.execCallGate(p, index)
		}
	}

	if f := inst.pushN(uint64(inst.Regs.Seg[register.CS].Selector)); f != nil {
		return f
	}
	if f := inst.pushN(p.cur); f != nil {
		return f
	}
	if inst.protected() {
		seg, f := inst.loadCodeSegmentChecked(newCS)
		if f != nil {
			return f
		}
		inst.Regs.Seg[register.CS] = seg
	} else {
		inst.Regs.SegmentLoadRealMode(register.CS, newCS, false)
	}
	p.cur = newIP
	return nil
}

// execCallGate performs a CALL through a call-gate (or task-gate)
// descriptor at GDT/LDT index.
func (inst *Instance) execCallGate(p *parser, index uint16) *trap.Fault {
	tables := inst.tables()
	gate, f := protect.ResolveGate(protectBus{inst}, tables, index, trap.VecGP)
	if f != nil {
		return f
	}
	if gate.IsTaskGate {
		return inst.switchTask(gate.TaskTSSSelector, true)
	}

	newCS, f := protect.LoadCodeSegment(protectBus{inst}, tables, gate.Selector, inst.Regs.CPL)
	if f != nil {
		return f
	}

	oldCPL := inst.Regs.CPL
	newCPL := newCS.DPL()
	oldCS := inst.Regs.Seg[register.CS].Selector
	oldIP := p.cur

	if newCPL < oldCPL {
		oldSS := inst.Regs.Seg[register.SS].Selector
		oldSP := inst.Regs.GetQword(regIdxSP)

		paramWidth := 4
		if gate.Type == protect.TypeCallGate16 {
			paramWidth = 2
		}
		params := make([]uint64, gate.ParamCount)
		for i := range params {
			v, f := inst.readMem(register.SS, oldSP+uint64(i*paramWidth), paramWidth)
			if f != nil {
				return f
			}
			params[i] = v
		}

		tssRaw := make([]byte, 104)
		if err := inst.bus.MemoryRead(inst.accessSpace(), inst.Regs.Seg[register.TR].Base, tssRaw); err != nil {
			return trap.NewException(trap.VecTS, 0, true)
		}
		tss := protect.ReadTSS32(tssRaw)
		newSS, f := protect.LoadDataSegment(protectBus{inst}, tables, tss.SS0, newCPL, true)
		if f != nil {
			return f
		}
		inst.Regs.CPL = newCPL
		inst.Regs.Seg[register.SS] = newSS
		inst.setSP(uint64(tss.ESP0))

		if f := inst.pushN(uint64(oldSS)); f != nil {
			return f
		}
		if f := inst.pushN(oldSP); f != nil {
			return f
		}
		for _, v := range params {
			if f := inst.pushN(v); f != nil {
				return f
			}
		}
		if f := inst.pushN(uint64(oldCS)); f != nil {
			return f
		}
		if f := inst.pushN(oldIP); f != nil {
			return f
		}
	} else {
		if f := inst.pushN(uint64(oldCS)); f != nil {
			return f
		}
		if f := inst.pushN(oldIP); f != nil {
			return f
		}
	}

	inst.Regs.Seg[register.CS] = newCS
	inst.Regs.Seg[register.CS].Selector = (gate.Selector &^ 3) | uint16(inst.Regs.CPL)
	p.cur = gate.Offset
	inst.Prefetch.Flush()
	return nil
}

// loadCodeSegmentChecked is the thin protect.LoadCodeSegment wrapper
// shared by far CALL/RET.
func (inst *Instance) loadCodeSegmentChecked(selector uint16) (register.Segment, *trap.Fault) {
	return protect.LoadCodeSegment(protectBus{inst}, inst.tables(), selector, inst.Regs.CPL)
}

// readRMSelectorOperand reads the 16-bit selector word immediately past
// a far memory operand (the :seg half of m16:16/m16:32), used by CALL/
// JMP m16:16 far-indirect forms.
func (inst *Instance) readRMSelectorOperand(p *parser, offWidth int) (uint16, *trap.Fault) {
	v, f := inst.readMem(p.eaSeg, p.eaOff+uint64(offWidth/8), 2)
	if f != nil {
		return 0, f
	}
	return uint16(v), nil
}

func (inst *Instance) execLoop(p *parser, cc int) *trap.Fault {
	d, f := inst.fetchBytes(p, 1)
	if f != nil {
		return f
	}
	width := 32
	if p.addressSize == 16 {
		width = 16
	} else if p.addressSize == 64 {
		width = 64
	}
	cx := (inst.readGPR(regIdxCX, width) - 1) & widthMask(width)
	inst.writeGPR(regIdxCX, width, cx)
	take := cx != 0
	switch cc {
	case 1: // LOOPE/LOOPZ
		take = take && inst.Regs.Flags.Test(0x0040)
	case 2: // LOOPNE/LOOPNZ
		take = take && !inst.Regs.Flags.Test(0x0040)
	}
	if take {
		p.cur = uint64(int64(p.cur) + int64(int8(d[0])))
	}
	return nil
}

func (inst *Instance) execJCXZ(p *parser) *trap.Fault {
	d, f := inst.fetchBytes(p, 1)
	if f != nil {
		return f
	}
	width := 32
	if p.addressSize == 16 {
		width = 16
	} else if p.addressSize == 64 {
		width = 64
	}
	if inst.readGPR(regIdxCX, width) == 0 {
		p.cur = uint64(int64(p.cur) + int64(int8(d[0])))
	}
	return nil
}

func (inst *Instance) execIntN(p *parser) (*StepResult, *trap.Fault) {
	d, f := inst.fetchBytes(p, 1)
	if f != nil {
		return nil, f
	}
	r := inst.deliverSoftwareInt(d[0])
	return &r, nil
}

