/*
   x86emu core instance: the type that wires every other package together.

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

// Package cpu implements the main decoder/executor loop and the
// host-facing Instance API (Reset, Step, FPUStep, IOPStep, X80Step,
// HardwareInterrupt). It owns no concurrency of its own — every entry
// point runs synchronously on the calling goroutine — and wires together
// family (configuration), register (state), memio (address translation),
// protect (privilege checks), trap (fault delivery), fpu/x80/x89
// (co-processors) without duplicating any of their logic.
package cpu

import (
	"io"
	"log/slog"

	"github.com/BinaryMelodies/x86emu/family"
	"github.com/BinaryMelodies/x86emu/fpu"
	"github.com/BinaryMelodies/x86emu/logx"
	"github.com/BinaryMelodies/x86emu/memio"
	"github.com/BinaryMelodies/x86emu/protect"
	"github.com/BinaryMelodies/x86emu/register"
	"github.com/BinaryMelodies/x86emu/trap"
	"github.com/BinaryMelodies/x86emu/x80"
	"github.com/BinaryMelodies/x86emu/x89"
)

// Instance is one emulated CPU core.
type Instance struct {
	Caps family.Capabilities
	Regs *register.Bank

	bus       memio.Bus
	Mem       *memio.Translator
	Prefetch  *memio.PrefetchQueue
	Ports     *memio.PortIO
	faultAcc  trap.Accumulator

	FPU *fpu.Bank
	X80 *x80.Machine
	X89 *x89.Processor

	// x80Bus is the separate 8080/Z80 bus a CapX80Separate configuration
	// steps against; nil for emulation-mode submachines, which address
	// host memory through DS instead (emulation.go).
	x80Bus memio.X80Bus

	// Log receives the core's structured diagnostics (host-callback
	// failures in co-processor steps, capability mismatches). Discards by
	// default; hosts replace it to capture them.
	Log *slog.Logger

	// DebugOutput is a 256-byte scratch sink: writes to the family's
	// debug port land here rather than anywhere guest-addressable, so a
	// host can poll it without wiring a real UART.
	DebugOutput [256]byte
	debugLen    int

	halted bool

	// curParser records the decode state of the instruction currently
	// executing, so a fault raised mid-execute can roll xIP back to the
	// faulting instruction's first byte rather than its partially
	// advanced cursor.
	curParser parser

	// pending* latch a HardwareInterrupt call until the next Step;
	// interrupts are only accepted between instructions.
	pendingNMI    bool
	pendingSMI    bool
	pendingICE    bool
	pendingIntr   bool
	pendingVector uint8

	// ioRestart records the port instruction most recently executed, so
	// an SMI taken at the next instruction boundary can save an I/O
	// restart context and RSM can re-issue the access. ioTouched marks
	// whether the current step performed a port access at all; a step
	// that didn't invalidates the latch.
	ioRestart struct {
		valid          bool
		eip            uint32
		esi, ecx, edi  uint32
	}
	ioTouched bool
}

// New builds an Instance for the given capability table and host bus.
// The returned Instance is not yet reset; call Reset(true) before
// stepping it.
func New(caps family.Capabilities, bus memio.Bus) *Instance {
	inst := &Instance{
		Caps: caps,
		Regs: register.NewBank(),
		bus:  bus,
		Log:  logx.New(io.Discard, nil),
	}
	inst.Mem = memio.NewTranslator(&inst.Caps, bus)
	inst.Prefetch = memio.NewPrefetchQueue(caps.PrefetchQueueSize)
	inst.Ports = &memio.PortIO{Caps: &inst.Caps, Bus: bus}
	if caps.FPU != family.FPUNone {
		inst.FPU = fpu.NewBank()
	}
	if caps.Has(family.CapX80Emulation) {
		inst.X80 = x80.NewEmbedded(&gprAdapter{inst.Regs}, x80VariantFor(caps.Family))
	} else if caps.Has(family.CapX80Separate) {
		inst.X80 = x80.NewStandalone(x80VariantFor(caps.Family))
	}
	if caps.Has(family.CapX89) {
		inst.X89 = &x89.Processor{}
	}
	return inst
}

// x80VariantFor picks the submachine instruction set: only the µPD9002
// carries the full Z80 set; the V20/V25/V55 (and any synthetic separate
// configuration) emulate the 8080.
func x80VariantFor(f family.CPUFamily) x80.Variant {
	if f == family.FamilyUPD9002 {
		return x80.VariantZ80
	}
	return x80.Variant8080
}

// gprAdapter satisfies x80.GPRSource over a *register.Bank: BC/DE/HL
// alias CX/DX/BX byte-for-byte, A is AL, and F is the FLAGS low byte.
type gprAdapter struct {
	b *register.Bank
}

func (g *gprAdapter) GetByte(index uint8) uint8          { return g.b.GetByte(index) }
func (g *gprAdapter) SetByte(index uint8, value uint8)   { g.b.SetByte(index, value) }
func (g *gprAdapter) FlagsLow() uint8                    { return uint8(g.b.Flags.Raw()) }
func (g *gprAdapter) SetFlagsLow(value uint8) {
	g.b.Flags.SetRaw(g.b.Flags.Raw()&^uint64(0xFF) | uint64(value))
}

// Reset installs the architecturally defined CS:xIP entry point and the
// reset values of CR0/EFLAGS/segments. A hard reset additionally clears
// every GPR, the FPU, and the x89; a soft (INIT-style) reset preserves
// GPRs and caches but still reloads CS:IP and flushes the pipeline.
func (inst *Instance) Reset(hard bool) {
	if hard {
		for i := range inst.Regs.GPR {
			inst.Regs.GPR[i] = 0
		}
		if inst.FPU != nil {
			inst.FPU = fpu.NewBank()
		}
		if inst.X89 != nil {
			inst.X89 = &x89.Processor{}
		}
	}

	inst.Regs.CR[0] = 0x60000010 // ET set, PG/PE clear
	inst.Regs.Flags.SetRaw(0x2) // reserved bit 1 always set
	if inst.Caps.Has(family.CapX80Emulation) {
		// Emulation-capable parts come out of reset in native mode.
		inst.Regs.Flags.Set(register.FlagMD, true)
	}
	inst.Regs.CPL = 0

	inst.Regs.Seg[register.CS].Selector = inst.Caps.ResetCS
	inst.Regs.Seg[register.CS].Base = uint64(inst.Caps.ResetCS) << 4
	inst.Regs.Seg[register.CS].Limit = 0xFFFF
	inst.Regs.Seg[register.CS].Access = register.AccessSystem | register.AccessExecutable | register.AccessReadable | register.AccessPresent
	inst.Regs.GPR[regIdxIP] = uint64(inst.Caps.ResetIP)

	for _, seg := range []int{register.DS, register.ES, register.SS, register.FS, register.GS} {
		inst.Regs.Seg[seg].Selector = 0
		inst.Regs.Seg[seg].Base = 0
		inst.Regs.Seg[seg].Limit = 0xFFFF
		inst.Regs.Seg[seg].Access = register.AccessSystem | register.AccessPresent | register.AccessWritable
	}

	inst.Regs.Seg[register.GDTR].Base = 0
	inst.Regs.Seg[register.GDTR].Limit = 0xFFFF
	inst.Regs.Seg[register.IDTR].Base = 0
	inst.Regs.Seg[register.IDTR].Limit = 0xFFFF

	inst.Prefetch.Flush()
	inst.faultAcc.Reset()
	inst.halted = false
}

// tables returns the protect.Tables for the current GDTR/LDTR state.
func (inst *Instance) tables() protect.Tables {
	return protect.Tables{
		GDTBase:  inst.Regs.Seg[register.GDTR].Base,
		GDTLimit: inst.Regs.Seg[register.GDTR].Limit,
		LDTBase:  inst.Regs.Seg[register.LDTR].Base,
		LDTLimit: inst.Regs.Seg[register.LDTR].Limit,
		Long:     inst.Caps.Has(family.CapLM) && inst.Regs.EFER&0x400 != 0,
	}
}

// protectBus adapts Instance's linear memory access to protect.Bus.
type protectBus struct{ inst *Instance }

func (p protectBus) MemoryRead(addr uint64, buf []byte) error {
	return p.inst.bus.MemoryRead(memio.SpaceSupervisor, addr, buf)
}
func (p protectBus) MemoryWrite(addr uint64, buf []byte) error {
	return p.inst.bus.MemoryWrite(memio.SpaceSupervisor, addr, buf)
}

// ReadBytes implements disasm.Reader by reading the linear address
// directly from the user address space; no segment translation is applied.
func (inst *Instance) ReadBytes(linear uint64, n int) ([]byte, error) {
	buf := make([]byte, n)
	err := inst.bus.MemoryRead(memio.SpaceUser, linear, buf)
	return buf, err
}

// WriteDebug appends to the 256-byte debug scratch sink, wrapping at
// capacity (a fixed small sink, not a guest-addressable device).
func (inst *Instance) WriteDebug(b byte) {
	inst.DebugOutput[inst.debugLen%len(inst.DebugOutput)] = b
	inst.debugLen++
}
