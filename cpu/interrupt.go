/*
   x86emu interrupt/exception delivery: real-mode IVT and protected-mode
   gate dispatch, software INT, IRET, and the host-facing HardwareInterrupt
   entry point.

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

// interrupt.go implements vector dispatch (real-mode IVT, protected-mode
// gate descriptors via the protect package's ResolveGate/
// LoadCodeSegment), the return-semantics flag clearing, and the
// HardwareInterrupt host entry point. Every interrupt path funnels
// through one of two delivery routines, split on real vs. protected
// mode.
package cpu

import (
	"github.com/BinaryMelodies/x86emu/protect"
	"github.com/BinaryMelodies/x86emu/register"
	"github.com/BinaryMelodies/x86emu/trap"
)

// imageCtx builds the register.ImageContext the current instance state
// calls for, shared by every PUSHF/POPF/IRET-adjacent flags access.
func (inst *Instance) imageCtx() register.ImageContext {
	inVM := inst.Regs.Flags.Test(register.FlagVM)
	return register.ImageContext{
		Family:                 inst.Caps.Family,
		CPL:                    inst.Regs.CPL,
		ProtectedOr8086WithVME: inVM,
		RealModeV8086Capable:   inVM,
		VMEActive:              inVM && inst.Regs.CR[4]&0x1 != 0 && inst.Regs.Flags.IOPL() < 3,
	}
}

// protected reports whether the instance is currently in protected mode
// (PE set and not V8086), the fork point between the real-mode IVT path
// and the descriptor-gate path.
func (inst *Instance) protected() bool {
	return inst.Regs.CR[0]&1 != 0 && !inst.Regs.Flags.Test(register.FlagVM)
}

// deliverRealMode performs the classic 4-byte IVT near-call: push FLAGS,
// push CS, push IP, clear IF/TF, load CS:IP from IVT[vector].
func (inst *Instance) deliverRealMode(vector uint8) *trap.Fault {
	buf := make([]byte, 4)
	if err := inst.bus.MemoryRead(inst.accessSpace(), uint64(vector)*4, buf); err != nil {
		return trap.NewException(trap.VecDF, 0, true)
	}
	ip := uint16(buf[0]) | uint16(buf[1])<<8
	cs := uint16(buf[2]) | uint16(buf[3])<<8

	flagsImg := inst.Regs.Flags.FlagsImage16(inst.imageCtx())
	if f := inst.pushN(uint64(flagsImg)); f != nil {
		return f
	}
	if f := inst.pushN(uint64(inst.Regs.Seg[register.CS].Selector)); f != nil {
		return f
	}
	if f := inst.pushN(uint64(uint16(inst.xip()))); f != nil {
		return f
	}

	inst.Regs.Flags.Set(register.FlagIF, false)
	inst.Regs.Flags.Set(register.FlagTF, false)
	inst.Regs.SegmentLoadRealMode(register.CS, cs, false)
	inst.setXIP(uint64(ip))
	inst.Prefetch.Flush()
	return nil
}

// deliverProtectedMode resolves an IDT gate and transfers control
// through it. Only the same-privilege and interrupt/trap-gate cases are
// modeled in depth; a gate that requests a privilege-level change
// borrows SS0:ESP0 out of the current TSS (via protect.ReadTSS32) rather
// than walking the full 16-bit-TSS/64-bit-IST variants.
func (inst *Instance) deliverProtectedMode(vector uint8, errorCode uint64, hasErrorCode bool, isSoftware bool) *trap.Fault {
	tables := inst.tables()
	idt := tables
	idt.GDTBase, idt.GDTLimit = inst.Regs.Seg[register.IDTR].Base, inst.Regs.Seg[register.IDTR].Limit
	gate, f := protect.ResolveGate(protectBus{inst}, idt, uint16(vector), trap.VecGP)
	if f != nil {
		return f
	}
	if gate.IsTaskGate {
		if f := inst.switchTask(gate.TaskTSSSelector, true); f != nil {
			return f
		}
		if hasErrorCode {
			if f := inst.pushN(errorCode); f != nil {
				return f
			}
		}
		return nil
	}

	if isSoftware && gate.DPL < inst.Regs.CPL {
		return trap.NewException(trap.VecGP, uint64(vector)<<3, true)
	}

	newCS, f := protect.LoadCodeSegment(protectBus{inst}, tables, gate.Selector, inst.Regs.CPL)
	if f != nil {
		return f
	}

	oldCPL := inst.Regs.CPL
	newCPL := newCS.DPL()
	changingRings := newCPL < oldCPL

	oldSS := inst.Regs.Seg[register.SS]
	oldSP := inst.Regs.GetQword(regIdxSP)

	if changingRings {
		raw := make([]byte, 104)
		if err := inst.bus.MemoryRead(inst.accessSpace(), inst.Regs.Seg[register.TR].Base, raw); err == nil {
			tss := protect.ReadTSS32(raw)
			newSS, f := protect.LoadDataSegment(protectBus{inst}, tables, tss.SS0, newCPL, true)
			if f == nil {
				inst.Regs.Seg[register.SS] = newSS
				inst.setSP(uint64(tss.ESP0))
			}
		}
		inst.Regs.CPL = newCPL
	}

	flagsImg := inst.Regs.Flags.FlagsImage32(inst.imageCtx())

	push := func(v uint64) *trap.Fault { return inst.pushN(v) }
	if changingRings {
		if f := push(uint64(oldSS.Selector)); f != nil {
			return f
		}
		if f := push(oldSP); f != nil {
			return f
		}
	}
	if f := push(uint64(flagsImg)); f != nil {
		return f
	}
	if f := push(uint64(inst.Regs.Seg[register.CS].Selector)); f != nil {
		return f
	}
	if f := push(inst.xip()); f != nil {
		return f
	}
	if hasErrorCode {
		if f := push(errorCode); f != nil {
			return f
		}
	}

	inst.Regs.Seg[register.CS] = newCS
	inst.Regs.Seg[register.CS].Selector = (gate.Selector &^ 3) | uint16(newCPL)
	inst.setXIP(gate.Offset)
	inst.Prefetch.Flush()

	inst.Regs.Flags.Set(register.FlagTF, false)
	inst.Regs.Flags.Set(register.FlagVM, false)
	inst.Regs.Flags.Set(register.FlagRF, false)
	inst.Regs.Flags.Set(register.FlagNT, false)
	if protect.IsInterruptGate(gate.Type) {
		inst.Regs.Flags.Set(register.FlagIF, false)
	}
	return nil
}

// deliverException is the single catch point: every fallible call
// elsewhere returns a *trap.Fault, and Step funnels whatever it gets
// back through here, which runs it past the double/triple-fault
// accumulator before actually building the guest stack frame.
func (inst *Instance) deliverException(f *trap.Fault, faultRolledBack bool) StepResult {
	delivered := inst.faultAcc.Raise(f)
	if delivered.Kind == trap.KindTripleFault {
		return result(TripleFault)
	}

	if faultRolledBack {
		inst.setXIP(inst.curParser.xip)
	}

	var derr *trap.Fault
	if inst.protected() {
		derr = inst.deliverProtectedMode(delivered.Vector, delivered.ErrorCode, delivered.HasErrorCode, false)
	} else {
		derr = inst.deliverRealMode(delivered.Vector)
	}
	if derr != nil {
		// A fault raised while building the exception frame escalates
		// again through the same accumulator.
		return inst.deliverException(derr, false)
	}
	return StepResult{Outcome: CPUInterrupt, Vector: delivered.Vector}
}

// deliverSoftwareInt implements INT n (opcode 0xCD and friends): IOPL/VME
// redirection in V8086 mode, otherwise ordinary gate/IVT dispatch.
func (inst *Instance) deliverSoftwareInt(vector uint8) StepResult {
	if inst.Regs.Flags.Test(register.FlagVM) && inst.Regs.Flags.IOPL() < 3 {
		if inst.Regs.CR[4]&0x1 != 0 && !inst.vmeRedirectionBitSet(vector) {
			// VME with the vector's redirection bit clear: perform the
			// simulated 16-bit real-mode style frame inside V8086.
			if f := inst.deliverRealMode(vector); f != nil {
				return inst.deliverException(f, false)
			}
			return StepResult{Outcome: CPUInterrupt, Vector: vector}
		}
		// A set redirection bit, or no VME at all, escalates per IOPL.
		return inst.deliverException(trap.NewException(trap.VecGP, 0, true), false)
	}
	if inst.protected() {
		if f := inst.deliverProtectedMode(vector, 0, false, true); f != nil {
			return inst.deliverException(f, false)
		}
		return StepResult{Outcome: CPUInterrupt, Vector: vector}
	}
	if f := inst.deliverRealMode(vector); f != nil {
		return inst.deliverException(f, false)
	}
	return StepResult{Outcome: CPUInterrupt, Vector: vector}
}

// vmeRedirectionBitSet reads the interrupt redirection bitmap out of the
// current TSS: 32 bytes immediately below the I/O permission bitmap whose
// offset the TSS stores at 0x66, one bit per vector. A failure to read
// the bitmap reports the bit as set, which takes the conservative
// escalate-to-#GP path instead of silently simulating the interrupt.
func (inst *Instance) vmeRedirectionBitSet(vector uint8) bool {
	trBase := inst.Regs.Seg[register.TR].Base
	var raw [2]byte
	if err := inst.bus.MemoryRead(inst.accessSpace(), trBase+0x66, raw[:]); err != nil {
		return true
	}
	iobase := uint64(raw[0]) | uint64(raw[1])<<8
	if iobase < 32 {
		return true
	}
	var b [1]byte
	if err := inst.bus.MemoryRead(inst.accessSpace(), trBase+iobase-32+uint64(vector/8), b[:]); err != nil {
		return true
	}
	return b[0]&(1<<(vector%8)) != 0
}

// execIRET implements the 16/32-bit IRET: pop IP/CS/FLAGS (and SP/SS on
// an outer-privilege return), restore CPL from the popped CS selector's
// RPL. In protected mode with NT=1, it instead takes the nested-task
// return path: the link field of the current TSS names the task to
// switch back to, and nothing is popped off the stack at all. The
// VM-reentry-at-CPL-0 case is not modeled; V8086 entry happens through
// task switches only.
func (inst *Instance) execIRET() *trap.Fault {
	if inst.protected() && inst.Regs.Flags.Test(register.FlagNT) {
		raw := make([]byte, 2)
		if err := inst.bus.MemoryRead(inst.accessSpace(), inst.Regs.Seg[register.TR].Base, raw); err != nil {
			return trap.NewException(trap.VecTS, 0, true)
		}
		link := uint16(raw[0]) | uint16(raw[1])<<8
		return inst.switchTask(link, false)
	}

	ip, f := inst.popN()
	if f != nil {
		return f
	}
	cs, f := inst.popN()
	if f != nil {
		return f
	}
	flags, f := inst.popN()
	if f != nil {
		return f
	}

	newCPL := uint8(cs & 3)
	outer := inst.protected() && newCPL > inst.Regs.CPL

	if outer {
		newSP, f := inst.popN()
		if f != nil {
			return f
		}
		newSS, f := inst.popN()
		if f != nil {
			return f
		}
		tables := inst.tables()
		seg, f := protect.LoadDataSegment(protectBus{inst}, tables, uint16(newSS), newCPL, true)
		if f == nil {
			inst.Regs.Seg[register.SS] = seg
			inst.setSP(newSP)
		}
		inst.Regs.CPL = newCPL
	}

	if inst.protected() {
		tables := inst.tables()
		seg, f := protect.LoadCodeSegment(protectBus{inst}, tables, uint16(cs), inst.Regs.CPL)
		if f != nil {
			return f
		}
		inst.Regs.Seg[register.CS] = seg
	} else {
		inst.Regs.SegmentLoadRealMode(register.CS, uint16(cs), false)
	}
	inst.setXIP(ip)

	width := inst.stackWidth()
	if width == 2 {
		inst.Regs.Flags.SetFlagsImage16(inst.imageCtx(), uint16(flags))
	} else {
		inst.Regs.Flags.SetFlagsImage32(inst.imageCtx(), uint32(flags))
	}
	inst.Prefetch.Flush()
	return nil
}

// HardwareInterrupt asserts an external interrupt line. Delivery is only
// permitted between steps, so it mutates a latch the next Step call
// consults rather than delivering the vector synchronously from inside
// the host's call.
func (inst *Instance) HardwareInterrupt(kind HWInterruptKind, data []byte) bool {
	switch kind {
	case HWNMI:
		inst.pendingNMI = true
		return true
	case HWSMI:
		inst.pendingSMI = true
		return true
	case HWIntr:
		if !inst.Regs.Flags.Test(register.FlagIF) {
			return false
		}
		if len(data) == 0 {
			return false
		}
		inst.pendingIntr = true
		inst.pendingVector = data[0]
		return true
	case HWRST55, HWRST65, HWRST75:
		inst.pendingIntr = true
		inst.pendingVector = rstVector(kind)
		return true
	case HWICE:
		inst.pendingICE = true
		return true
	default:
		return false
	}
}

func rstVector(kind HWInterruptKind) uint8 {
	switch kind {
	case HWRST55:
		return 0x2C
	case HWRST65:
		return 0x34
	case HWRST75:
		return 0x3C
	default:
		return 0
	}
}
