/*
   x86emu port dispatch, including the embedded-controller windows.

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

package memio

import (
	"github.com/BinaryMelodies/x86emu/family"
	"github.com/BinaryMelodies/x86emu/trap"
)

// CyrixConfig holds the two-port indexed configuration-register state
// (an open question in the source material: "Cyrix MediaGX/GXm/GX2 MAPEN gating
// modeled as a per-subtype allow-list"). A write to the index port
// latches the register number; the next access to the data port reads
// or writes that register instead of reaching the Bus.
type CyrixConfig struct {
	regs  [256]byte
	index byte
}

// PortIO dispatches guest port accesses, intercepting the Cyrix
// index/data configuration pair before falling through to the host Bus.
// The other embedded-controller windows (the 80186 PCB, the V33
// internal-register block, the V25 IRAM overlay) are not intercepted
// here; accesses to them reach the Bus like any other port.
type PortIO struct {
	Caps   *family.Capabilities
	Bus    Bus
	Cyrix  CyrixConfig
}

// In reads size bytes (1, 2, or 4) from a port, honoring the Cyrix
// indexed-configuration-register pair before falling through to the Bus.
func (p *PortIO) In(port uint16, buf []byte) *trap.Fault {
	if p.Caps.Has(family.CapCyrixConfigRegs) && p.Caps.CyrixAllowConfig {
		if port == p.Caps.CyrixIndexPort && len(buf) == 1 {
			buf[0] = p.Cyrix.index
			return nil
		}
		if port == p.Caps.CyrixDataPort && len(buf) == 1 {
			buf[0] = p.Cyrix.regs[p.Cyrix.index]
			return nil
		}
	}
	if err := p.Bus.PortRead(port, buf); err != nil {
		return trap.NewException(trap.VecGP, 0, true)
	}
	return nil
}

// Out writes size bytes to a port, with the same Cyrix interception as In.
func (p *PortIO) Out(port uint16, buf []byte) *trap.Fault {
	if p.Caps.Has(family.CapCyrixConfigRegs) && p.Caps.CyrixAllowConfig {
		if port == p.Caps.CyrixIndexPort && len(buf) == 1 {
			p.Cyrix.index = buf[0]
			return nil
		}
		if port == p.Caps.CyrixDataPort && len(buf) == 1 {
			p.Cyrix.regs[p.Cyrix.index] = buf[0]
			return nil
		}
	}
	if err := p.Bus.PortWrite(port, buf); err != nil {
		return trap.NewException(trap.VecGP, 0, true)
	}
	return nil
}

// InWindow reports whether a linear address falls inside one of the
// family's memory-mapped embedded-controller windows (186 PCB, V33
// internal registers, V25 IRAM overlay). Addresses inside a window are
// still ordinary memory accesses as far as the Bus is concerned — the
// windows don't change how MemoryRead/MemoryWrite dispatch, since the
// host Bus implementation owns that decode; this just lets the cpu
// package's config layer validate placement.
func InWindow(caps *family.Capabilities, linear uint64) bool {
	switch {
	case caps.PCBWindowBase != 0 && linear >= uint64(caps.PCBWindowBase) && linear < uint64(caps.PCBWindowBase)+0x100:
		return true
	case caps.V33InternalBase != 0 && linear >= uint64(caps.V33InternalBase) && linear < uint64(caps.V33InternalBase)+0x100:
		return true
	case caps.V25IRAMHigh != 0 && linear >= uint64(caps.V25IRAMLow) && linear < uint64(caps.V25IRAMHigh):
		return true
	default:
		return false
	}
}
