/*
   x86emu co-processor entry point and emulation-mode tests.

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
	"encoding/binary"
	"testing"

	"github.com/BinaryMelodies/x86emu/family"
	"github.com/BinaryMelodies/x86emu/fpu"
	"github.com/BinaryMelodies/x86emu/register"
)

func TestFPUStepIsImmediateWithoutAnFPU(t *testing.T) {
	inst := New(family.DefaultCapabilities(family.Family8086), &flatBus{})
	inst.Reset(true)
	if r := inst.FPUStep(); r.Outcome != Success {
		t.Fatalf("FPUStep without an FPU = %v, want SUCCESS", r.Outcome)
	}
}

func TestFPUStep8087RaisesIRQOnUnmaskedException(t *testing.T) {
	caps := family.DefaultCapabilities(family.Family8086)
	caps.FPU = family.FPU8087
	inst := New(caps, &flatBus{})
	inst.Reset(true)

	inst.FPU.CW = 0x0300 // all exceptions unmasked, IEM=0
	inst.FPU.SW |= 0x01  // invalid-operation pending

	r := inst.FPUStep()
	if r.Outcome != IRQ || r.IRQNumber != irqFPU {
		t.Fatalf("FPUStep = %v/%d, want IRQ/%d", r.Outcome, r.IRQNumber, irqFPU)
	}

	// Masked again: the line drops.
	inst.FPU.CW = 0x037F
	if r := inst.FPUStep(); r.Outcome != Success {
		t.Fatalf("masked FPUStep = %v, want SUCCESS", r.Outcome)
	}
}

func TestFPUStepCommitsQueuedEnvironmentStore(t *testing.T) {
	bus := &flatBus{}
	caps := family.DefaultCapabilities(family.Family8086)
	caps.FPU = family.FPU8087
	inst := New(caps, bus)
	inst.Reset(true)

	inst.FPU.CW = 0x1234
	inst.FPU.Queued = fpu.QueuedOp{Valid: true, Linear: 0x500}
	inst.FPU.Busy = true

	if r := inst.FPUStep(); r.Outcome != Success {
		t.Fatalf("FPUStep = %v, want SUCCESS", r.Outcome)
	}
	if inst.FPU.Busy || inst.FPU.Queued.Valid {
		t.Fatal("commit did not clear the busy/queued state")
	}
	if got := binary.LittleEndian.Uint16(bus.mem[0x500:]); got != 0x1234 {
		t.Fatalf("committed environment CW = %#x, want 0x1234", got)
	}
}

func TestIOPStepWithoutAnIOPIsImmediate(t *testing.T) {
	inst := New(family.DefaultCapabilities(family.Family8086), &flatBus{})
	inst.Reset(true)
	if r := inst.IOPStep(); r.Outcome != Success {
		t.Fatalf("IOPStep without an x89 = %v, want SUCCESS", r.Outcome)
	}
}

func TestIOPStepIdleChannelsDoNothing(t *testing.T) {
	caps := family.DefaultCapabilities(family.Family8086)
	caps.Flags |= family.CapX89
	inst := New(caps, &flatBus{})
	inst.Reset(true)
	if r := inst.IOPStep(); r.Outcome != Success {
		t.Fatalf("IOPStep with idle channels = %v, want SUCCESS", r.Outcome)
	}
}

// x80TestBus is the separate 8080/Z80 bus for CapX80Separate tests.
type x80TestBus struct {
	mem [0x10000]byte
}

func (b *x80TestBus) MemoryFetch(addr uint16) (byte, error) { return b.mem[addr], nil }
func (b *x80TestBus) MemoryRead(addr uint16) (byte, error)  { return b.mem[addr], nil }
func (b *x80TestBus) MemoryWrite(addr uint16, v byte) error { b.mem[addr] = v; return nil }
func (b *x80TestBus) PortRead(port uint16) (byte, error)    { return 0, nil }
func (b *x80TestBus) PortWrite(port uint16, v byte) error   { return nil }

func TestX80StepOnlyRunsSeparateConfigurations(t *testing.T) {
	// An emulation-mode V20 returns immediately: its submachine is driven
	// through Step, never X80Step.
	inst := New(family.DefaultCapabilities(family.FamilyV20), &flatBus{})
	inst.Reset(true)
	if r := inst.X80Step(); r.Outcome != Success {
		t.Fatalf("X80Step on an emulation-mode part = %v, want SUCCESS", r.Outcome)
	}

	caps := family.DefaultCapabilities(family.Family8086)
	caps.Flags |= family.CapX80Separate
	inst = New(caps, &flatBus{})
	inst.Reset(true)

	bus := &x80TestBus{}
	bus.mem[0] = 0x3E // LD A,0x55
	bus.mem[1] = 0x55
	bus.mem[2] = 0x76 // HALT
	inst.SetX80Bus(bus)

	if r := inst.X80Step(); r.Outcome != Success {
		t.Fatalf("first X80Step = %v, want SUCCESS", r.Outcome)
	}
	if got := inst.X80.A(); got != 0x55 {
		t.Fatalf("standalone x80 A = %#x, want 0x55", got)
	}
	if r := inst.X80Step(); r.Outcome != Halt {
		t.Fatalf("X80Step at HALT = %v, want HALT", r.Outcome)
	}
}

// TestEmulationModeRoundTrip drives the full BRKEM -> 8080 code -> RETEM
// cycle on a V20: the x86 stepper diverts into the
// submachine while MD is clear, the submachine's A is the host's AL, and
// RETEM unwinds the BRKEM frame back into native mode.
func TestEmulationModeRoundTrip(t *testing.T) {
	bus := &flatBus{}
	inst := New(family.DefaultCapabilities(family.FamilyV20), bus)
	inst.Reset(true)
	setRealModeCodeSegment(inst, 0x100)
	inst.Regs.SetQword(regIdxSP, 0x2000)

	// IVT[3] -> 0000:0400, where the 8080 handler body lives.
	binary.LittleEndian.PutUint16(bus.mem[3*4:], 0x0400)
	binary.LittleEndian.PutUint16(bus.mem[3*4+2:], 0x0000)

	// Native side: BRKEM 3.
	copy(bus.mem[0x100:], []byte{0x0F, 0xFF, 0x03})
	// 8080 side (fetched through DS): MVI A,0x42; RETEM.
	copy(bus.mem[0x400:], []byte{0x3E, 0x42, 0xED, 0xFD})

	if r := inst.Step(); r.Outcome != CPUInterrupt {
		t.Fatalf("BRKEM step = %v, want CPU_INTERRUPT", r.Outcome)
	}
	if !inst.emulationActive() {
		t.Fatal("BRKEM did not enter emulation mode")
	}
	if got := inst.xip(); got != 0x400 {
		t.Fatalf("BRKEM vectored to %#x, want 0x400", got)
	}

	if r := inst.Step(); r.Outcome != Success {
		t.Fatalf("emulated MVI step = %v, want SUCCESS", r.Outcome)
	}
	if got := inst.Regs.GetByte(0); got != 0x42 {
		t.Fatalf("emulated MVI A left AL = %#x, want 0x42 (A must alias AL)", got)
	}

	if r := inst.Step(); r.Outcome != Success {
		t.Fatalf("RETEM step = %v, want SUCCESS", r.Outcome)
	}
	if inst.emulationActive() {
		t.Fatal("RETEM did not restore native mode")
	}
	if got := inst.xip(); got != 0x103 {
		t.Fatalf("RETEM resumed at %#x, want 0x103 (after BRKEM)", got)
	}
	if got := inst.Regs.GetQword(regIdxSP); got != 0x2000 {
		t.Fatalf("RETEM left SP at %#x, want 0x2000", got)
	}
}

// TestEmulationInterruptUsesIM1 checks the interrupt translation: a hardware
// interrupt taken while the µPD9002 runs Z80 code vectors through IM1 to
// 0x0038 instead of the x86 IVT.
func TestEmulationInterruptUsesIM1(t *testing.T) {
	bus := &flatBus{}
	inst := New(family.DefaultCapabilities(family.FamilyUPD9002), bus)
	inst.Reset(true)
	setRealModeCodeSegment(inst, 0x100)
	inst.Regs.Flags.Set(register.FlagMD, false) // emulation mode
	inst.Regs.Flags.Set(register.FlagIF, true)  // IFF1 aliases IF
	inst.Regs.SetWord(regIdxBP, 0x3000)         // SP aliases BP
	inst.X80.IM = 1

	if !inst.HardwareInterrupt(HWIntr, []byte{0xFF}) {
		t.Fatal("interrupt line not accepted")
	}
	r := inst.Step()
	if r.Outcome != CPUInterrupt {
		t.Fatalf("interrupt step = %v, want CPU_INTERRUPT", r.Outcome)
	}
	if got := inst.xip(); got != 0x0038 {
		t.Fatalf("IM1 vectored to %#x, want 0x38", got)
	}
	if got := inst.Regs.GetWord(regIdxBP); got != 0x2FFE {
		t.Fatalf("IM1 push left SP (BP) at %#x, want 0x2ffe", got)
	}
	if inst.Regs.Flags.Test(register.FlagIF) {
		t.Fatal("interrupt entry must clear IFF1 (IF)")
	}
}
