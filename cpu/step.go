/*
   x86emu Step: the host-facing single-instruction entry point.

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

// step.go ties decode.go/exec.go/interrupt.go together into the
// fetch-decode-execute-catch loop: one Step call executes exactly one
// guest instruction (or delivers exactly one pending
// interrupt/exception) and returns before touching any other guest
// state. Per-step decode state is reset at the top, and whatever the
// execute step raised is caught in one place.
package cpu

import (
	"github.com/BinaryMelodies/x86emu/memio"
	"github.com/BinaryMelodies/x86emu/register"
	"github.com/BinaryMelodies/x86emu/smm"
	"github.com/BinaryMelodies/x86emu/trap"
)

// Step executes exactly one guest instruction, or services exactly one
// pending hardware interrupt/halt condition, and reports what happened.
func (inst *Instance) Step() StepResult {
	inst.faultAcc.Reset()

	if r, ok := inst.serviceHalted(); ok {
		return r
	}
	if r, ok := inst.servicePending(); ok {
		return r
	}
	if inst.emulationActive() {
		return inst.stepEmulation()
	}

	p := newParser(!inst.long64() && inst.Regs.Seg[register.CS].Access&register.AccessDefault32 == 0)
	p.xip = inst.xip()
	p.cur = p.xip
	inst.curParser = *p
	inst.ioTouched = false

	result, f := inst.dispatch(p)
	if !inst.ioTouched {
		// The I/O restart context only survives while the last executed
		// instruction was a port access; anything else invalidates it.
		inst.ioRestart.valid = false
	}
	if f != nil {
		if f.Kind == trap.KindHalt {
			inst.halted = true
			inst.setXIP(p.cur)
			return result0(Halt)
		}
		if f.Kind == trap.KindUndefined {
			if !inst.Caps.UndefinedOpcodeFaults() {
				// 8086-class: record the opcode and leave guest state
				// untouched; xIP stays at the instruction.
				return StepResult{Outcome: Undefined, Opcode: f.Opcode}
			}
			f = trap.NewException(trap.VecUD, 0, false)
		}
		return inst.deliverException(f, true)
	}
	if result != nil {
		return *result
	}

	inst.setXIP(p.cur)
	return result0(Success)
}

func result0(o Outcome) StepResult { return StepResult{Outcome: o} }

// serviceHalted reports whether the core is halted and, if so, whether a
// latched interrupt wakes it: HLT ends when an enabled interrupt, NMI,
// or reset arrives.
func (inst *Instance) serviceHalted() (StepResult, bool) {
	if !inst.halted {
		return StepResult{}, false
	}
	if inst.pendingNMI || inst.pendingSMI || inst.pendingICE ||
		(inst.pendingIntr && inst.Regs.Flags.Test(register.FlagIF)) {
		inst.halted = false
		return inst.servicePendingForced()
	}
	return result0(Halt), true
}

// servicePending delivers one latched HardwareInterrupt call, highest
// priority first (NMI/SMI/ICE ahead of ordinary INTR).
func (inst *Instance) servicePending() (StepResult, bool) {
	if !inst.pendingNMI && !inst.pendingSMI && !inst.pendingICE &&
		!(inst.pendingIntr && inst.Regs.Flags.Test(register.FlagIF)) {
		return StepResult{}, false
	}
	r, _ := inst.servicePendingForced()
	return r, true
}

func (inst *Instance) servicePendingForced() (StepResult, bool) {
	switch {
	case inst.pendingSMI:
		inst.pendingSMI = false
		return inst.enterSMM(), true
	case inst.pendingNMI:
		inst.pendingNMI = false
		if f := inst.deliverRealModeOrProtected(trap.VecNMI); f != nil {
			return inst.deliverException(f, false), true
		}
		return StepResult{Outcome: CPUInterrupt, Vector: trap.VecNMI}, true
	case inst.pendingICE:
		inst.pendingICE = false
		return StepResult{Outcome: ICEInterrupt}, true
	case inst.pendingIntr:
		inst.pendingIntr = false
		v := inst.pendingVector
		if inst.emulationActive() {
			// Interrupts taken in emulation mode follow the submachine's
			// IM0/IM1/IM2 rules, not the x86 IVT.
			return inst.deliverX80Interrupt(v), true
		}
		if f := inst.deliverRealModeOrProtected(v); f != nil {
			return inst.deliverException(f, false), true
		}
		return StepResult{Outcome: IRQ, IRQNumber: int(v)}, true
	}
	return result0(Success), true
}

func (inst *Instance) deliverRealModeOrProtected(vector uint8) *trap.Fault {
	if inst.protected() {
		return inst.deliverProtectedMode(vector, 0, false, false)
	}
	return inst.deliverRealMode(vector)
}

// enterSMM implements the SMI# entry half of the SMM lifecycle: save the
// visible architectural state into the SMM state image (via the smm
// package's per-format Schedule) and transfer control to the SMBASE
// entry point. execRSM in exec_system.go is the exit half.
func (inst *Instance) enterSMM() StepResult {
	state := smm.State{
		GPR: [8]uint32{
			uint32(inst.Regs.GPR[regIdxAX]), uint32(inst.Regs.GPR[regIdxCX]),
			uint32(inst.Regs.GPR[regIdxDX]), uint32(inst.Regs.GPR[regIdxBX]),
			uint32(inst.Regs.GPR[regIdxSP]), uint32(inst.Regs.GPR[regIdxBP]),
			uint32(inst.Regs.GPR[regIdxSI]), uint32(inst.Regs.GPR[regIdxDI]),
		},
		EIP:      uint32(inst.xip()),
		EFLAGS:   uint32(inst.Regs.Flags.Raw()),
		CR0:      uint32(inst.Regs.CR[0]),
		CR3:      uint32(inst.Regs.CR[3]),
		CR4:      uint32(inst.Regs.CR[4]),
		DR6:      uint32(inst.Regs.DR[6]),
		DR7:      uint32(inst.Regs.DR[7]),
		ES:       segToSMM(inst.Regs.Seg[register.ES]),
		CS:       segToSMM(inst.Regs.Seg[register.CS]),
		SS:       segToSMM(inst.Regs.Seg[register.SS]),
		DS:       segToSMM(inst.Regs.Seg[register.DS]),
		FS:       segToSMM(inst.Regs.Seg[register.FS]),
		GS:       segToSMM(inst.Regs.Seg[register.GS]),
		SMBASE:   uint32(inst.smBase()),
		Revision: 0x00020000,
	}
	if inst.ioRestart.valid {
		state.IORestartValid = true
		state.IORestartEIP = inst.ioRestart.eip
		state.IORestartESI = inst.ioRestart.esi
		state.IORestartECX = inst.ioRestart.ecx
		state.IORestartEDI = inst.ioRestart.edi
	}
	area := make([]byte, 0x10000)
	smm.Save(inst.Caps.SMM, state, area)
	inst.bus.MemoryWrite(memio.SpaceSMM, inst.smBase(), area)

	inst.Regs.CR[0] &^= 0x80000000 // paging off on SMM entry
	inst.Regs.Seg[register.CS].Selector = uint16(inst.smBase() >> 4)
	inst.Regs.Seg[register.CS].Base = inst.smBase()
	inst.Regs.Seg[register.CS].Limit = 0xFFFFFFFF
	inst.setXIP(0x8000)
	inst.Prefetch.Flush()
	return StepResult{Outcome: CPUInterrupt, Vector: trap.VecNMI}
}

func (inst *Instance) smBase() uint64 { return 0x30000 }

func segToSMM(s register.Segment) smm.Segment {
	return smm.Segment{Base: uint32(s.Base), Limit: uint32(s.Limit), Access: uint16(s.Access)}
}

func segFromSMM(s smm.Segment) register.Segment {
	return register.Segment{Base: uint64(s.Base), Limit: s.Limit, Access: uint32(s.Access)}
}
