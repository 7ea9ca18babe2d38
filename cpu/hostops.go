/*
   x86emu co-processor step entry points: FPUStep, IOPStep, X80Step.

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

// hostops.go carries the three per-tick co-processor entry points
// alongside Step: FPUStep commits whatever the external x87 accepted but
// has not yet written back, IOPStep advances both x89 channels by one
// transfer unit, and X80Step runs one instruction of a standalone
// (non-emulated) 8080/Z80 on its own bus. The host drives each
// independently of Step, one call per tick.
package cpu

import (
	"github.com/BinaryMelodies/x86emu/family"
	"github.com/BinaryMelodies/x86emu/fpu"
	"github.com/BinaryMelodies/x86emu/memio"
)

// FPUStep advances the co-processor by one tick. FPU-less configurations
// return immediately. Integrated FPUs execute eagerly inside Step and have
// nothing queued; for them an unmasked exception surfaces as an IRQ result
// while CR0.NE is clear. External FPUs commit their queued
// environment store here and drop the busy bit that was deferring the
// next ESC instruction; the 8087's out-of-band interrupt line (asserted
// for unmasked exceptions while IEM=0) surfaces as an IRQ result.
func (inst *Instance) FPUStep() StepResult {
	if inst.FPU == nil {
		return result(Success)
	}
	b := inst.FPU

	switch inst.Caps.FPU {
	case family.FPU8087, family.FPU287, family.FPU387, family.FPUIIT3C87:
		if b.Queued.Valid {
			layout := fpu.Env16Real
			if b.Protected {
				layout = fpu.Env16Protected
			}
			if inst.Caps.FPU == family.FPUIIT3C87 {
				layout = fpu.Env3C87
			}
			buf := make([]byte, layout.EnvSize())
			b.StoreEnv(layout, buf)
			if err := inst.bus.MemoryWrite(inst.accessSpace(), b.Queued.Linear, buf); err != nil {
				inst.Log.Warn("fpu queued store failed", "linear", b.Queued.Linear, "err", err)
			}
			b.Queued.Valid = false
		}
		b.Busy = false
	}

	unmasked := b.SW & ^b.CW & 0x3F
	switch {
	case inst.Caps.FPU == family.FPU8087:
		// IEM (CW bit 7) gates the 8087's INT line; no ES bit exists yet.
		if unmasked != 0 && b.CW&0x80 == 0 {
			return StepResult{Outcome: IRQ, IRQNumber: irqFPU}
		}
	case unmasked != 0:
		b.SW |= 0x80 // ES summary bit, 287 and later
		if inst.Caps.FPU == family.FPUIntegrated486Plus && inst.Regs.CR[0]&0x20 == 0 {
			// CR0.NE=0 routes the error through the external FERR# path.
			return StepResult{Outcome: IRQ, IRQNumber: irqFPU}
		}
	}
	return result(Success)
}

// irqFPU is the PC/AT wiring of the co-processor error line.
const irqFPU = 13

// x89Bus adapts the host Bus to the x89's unsegmented 20-bit view of the
// same physical memory.
type x89Bus struct{ inst *Instance }

func (b x89Bus) Read(addr uint32, buf []byte) error {
	return b.inst.bus.MemoryRead(memio.SpaceSupervisor, uint64(addr), buf)
}

func (b x89Bus) Write(addr uint32, buf []byte) error {
	return b.inst.bus.MemoryWrite(memio.SpaceSupervisor, uint64(addr), buf)
}

// IOPStep drives the x89 I/O processor by one unit: each running channel
// either executes one channel-program instruction or moves one transfer
// unit. A host-callback failure is reported to the
// diagnostic log and the tick otherwise discarded; it is never
// translated into a guest exception.
func (inst *Instance) IOPStep() StepResult {
	if inst.X89 == nil {
		return result(Success)
	}
	if err := inst.X89.Step(x89Bus{inst}); err != nil {
		inst.Log.Warn("x89 step aborted by host callback", "err", err)
	}
	return result(Success)
}

// IOPAttention asserts the x89's channel-attention line, running the
// SCB discovery handshake on first touch and the per-channel CCW
// dispatch afterwards. Exposed next to IOPStep because the CA pin is a
// host-visible wire, not something the x86 instruction stream raises.
func (inst *Instance) IOPAttention() bool {
	if inst.X89 == nil {
		return false
	}
	if err := inst.X89.Attention(x89Bus{inst}); err != nil {
		inst.Log.Warn("x89 attention aborted by host callback", "err", err)
		return false
	}
	return true
}

// X80Step runs one instruction of a standalone x80: "the
// last returns immediately unless the x80 is configured as a 'separate'
// (non-emulated) CPU." The separate configuration owns its own bus
// (memio.X80Bus), supplied by the host via SetX80Bus; emulation-mode
// submachines are driven through Step instead.
func (inst *Instance) X80Step() StepResult {
	if inst.X80 == nil || !inst.Caps.Has(family.CapX80Separate) || inst.x80Bus == nil {
		return result(Success)
	}
	if inst.X80.Halted {
		return result(Halt)
	}
	if err := inst.X80.StepOne(inst.x80Bus); err != nil {
		inst.Log.Warn("x80 step aborted by host callback", "err", err)
		return result(Success)
	}
	if inst.X80.Halted {
		return result(Halt)
	}
	return result(Success)
}

// SetX80Bus installs the separate 8080/Z80 bus callbacks for a
// CapX80Separate configuration.
func (inst *Instance) SetX80Bus(bus memio.X80Bus) {
	inst.x80Bus = bus
}

// X80Interrupt delivers a maskable interrupt to a standalone x80 through
// its IM0/IM1/IM2 semantics, reporting whether the line was accepted
// (IFF1 clear rejects it, mirroring hardware_interrupt's contract).
func (inst *Instance) X80Interrupt(data uint8) bool {
	if inst.X80 == nil || inst.x80Bus == nil || !inst.X80.IFF1 {
		return false
	}
	inst.X80.Halted = false
	if err := inst.X80.Interrupt(inst.x80Bus, data); err != nil {
		inst.Log.Warn("x80 interrupt delivery aborted by host callback", "err", err)
		return false
	}
	return true
}
