/*
   x86emu 8080/Z80 emulation mode: the Step-side divert into the x80
   submachine and the native<->emulation mode transitions.

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

// emulation.go embeds the 8080/Z80 submachine: when the family carries
// it and the MD flag marks emulation mode active, the x86 stepper
// diverts to the x80 decoder. PC/SP/IFF1 alias
// IP/BP/IF, so they are flushed into the submachine before the diverted
// step and flushed back after, the same way register.Bank's V25 bank
// switch flushes before it swaps. BRKEM (0F FF), CALLN (ED ED), and
// RETEM (ED FD) carry control across the mode boundary.
package cpu

import (
	"github.com/BinaryMelodies/x86emu/family"
	"github.com/BinaryMelodies/x86emu/register"
	"github.com/BinaryMelodies/x86emu/trap"
)

// emulationActive reports whether the next Step belongs to the x80
// decoder: submachine present and MD clear (MD=1 is native x86 mode).
func (inst *Instance) emulationActive() bool {
	return inst.X80 != nil && inst.Caps.Has(family.CapX80Emulation) &&
		!inst.Regs.Flags.Test(register.FlagMD)
}

// x80EmbeddedBus exposes the host memory to the submachine at DS-relative
// 16-bit addresses: emulation mode fetches code through DS, and since the
// 8080 has a single address space, data goes through DS too.
type x80EmbeddedBus struct{ inst *Instance }

func (b x80EmbeddedBus) linear(addr uint16) uint64 {
	mask := uint64(1)<<b.inst.Caps.AddrWidth - 1
	return (b.inst.Regs.Seg[register.DS].Base + uint64(addr)) & mask
}

func (b x80EmbeddedBus) MemoryFetch(addr uint16) (byte, error) {
	return b.MemoryRead(addr)
}

func (b x80EmbeddedBus) MemoryRead(addr uint16) (byte, error) {
	buf := make([]byte, 1)
	err := b.inst.bus.MemoryRead(b.inst.accessSpace(), b.linear(addr), buf)
	return buf[0], err
}

func (b x80EmbeddedBus) MemoryWrite(addr uint16, value byte) error {
	return b.inst.bus.MemoryWrite(b.inst.accessSpace(), b.linear(addr), []byte{value})
}

func (b x80EmbeddedBus) PortRead(port uint16) (byte, error) {
	buf := make([]byte, 1)
	err := b.inst.bus.PortRead(port, buf)
	return buf[0], err
}

func (b x80EmbeddedBus) PortWrite(port uint16, value byte) error {
	return b.inst.bus.PortWrite(port, []byte{value})
}

// syncX80In flushes the aliased halves of the submachine state out of the
// x86 register file: PC from xIP, SP from BP, IFF1 from IF.
func (inst *Instance) syncX80In() {
	inst.X80.PC = uint16(inst.xip())
	inst.X80.SP = inst.Regs.GetWord(regIdxBP)
	inst.X80.IFF1 = inst.Regs.Flags.Test(register.FlagIF)
}

// syncX80Out is the reverse flush after a diverted step.
func (inst *Instance) syncX80Out() {
	inst.setXIP(uint64(inst.X80.PC))
	inst.Regs.SetWord(regIdxBP, inst.X80.SP)
	inst.Regs.Flags.Set(register.FlagIF, inst.X80.IFF1)
}

// stepEmulation runs one submachine instruction in place of an x86 one.
func (inst *Instance) stepEmulation() StepResult {
	m := inst.X80
	inst.syncX80In()
	err := m.StepOne(x80EmbeddedBus{inst})
	inst.syncX80Out()
	if err != nil {
		inst.Log.Warn("x80 emulation step aborted by host callback", "err", err)
		return result(Success)
	}

	switch {
	case m.NativeReturn:
		// RETEM: leave emulation mode through the frame BRKEM built. The
		// popped flags image carries the caller's MD=1, so the IRET
		// itself re-enters native mode.
		m.NativeReturn = false
		inst.Regs.Flags.Set(register.FlagMD, true)
		if f := inst.execIRET(); f != nil {
			return inst.deliverException(f, false)
		}
		return result(Success)
	case m.NativeCall:
		// CALLN n: an INT n whose frame records MD=0, so the handler runs
		// native and its IRET drops back into emulation.
		m.NativeCall = false
		r := inst.deliverSoftwareInt(m.NativeVector)
		inst.Regs.Flags.Set(register.FlagMD, true)
		return r
	}

	if m.Halted {
		inst.halted = true
		return result(Halt)
	}
	return result(Success)
}

// deliverX80Interrupt translates a hardware interrupt arriving in
// emulation mode to the submachine's IM0/IM1/IM2 semantics instead of
// the x86 IVT.
func (inst *Instance) deliverX80Interrupt(data uint8) StepResult {
	m := inst.X80
	inst.syncX80In()
	bus := x80EmbeddedBus{inst}
	err := m.Interrupt(bus, data)
	if err == nil && m.IM == 0 && data&0xC7 == 0xC7 {
		// IM0 injects the fetched opcode; an RST n is the only injected
		// form this core accepts, performed as the call it encodes.
		if err = m.Push16(bus, m.PC); err == nil {
			m.PC = uint16(data & 0x38)
		}
	}
	inst.syncX80Out()
	if err != nil {
		inst.Log.Warn("x80 interrupt delivery aborted by host callback", "err", err)
	}
	inst.halted = false
	return StepResult{Outcome: CPUInterrupt, Vector: data}
}

// execBRKEM implements the V20's 0F FF ib emulation-mode entry: an INT
// whose saved PSW records native mode, followed by clearing MD so the
// vectored handler itself is 8080/Z80 code.
func (inst *Instance) execBRKEM(p *parser) (*StepResult, *trap.Fault) {
	if !inst.Caps.Has(family.CapX80Emulation) {
		return nil, &trap.Fault{Kind: trap.KindUndefined, Opcode: p.opcode}
	}
	v, f := inst.fetchByte(p)
	if f != nil {
		return nil, f
	}
	inst.setXIP(p.cur)
	r := inst.deliverSoftwareInt(v)
	inst.Regs.Flags.Set(register.FlagMD, false)
	return &r, nil
}
