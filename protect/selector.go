/*
   x86emu selector load: privilege checks and register.Segment population.

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

package protect

import (
	"github.com/BinaryMelodies/x86emu/register"
	"github.com/BinaryMelodies/x86emu/trap"
)

// Bus is the narrow read interface selector loads and gate/task traversal
// need from the linear address space: just enough to fetch descriptor and
// TSS bytes. The cpu package satisfies this with its protectBus adapter.
type Bus interface {
	MemoryRead(addr uint64, buf []byte) error
	MemoryWrite(addr uint64, buf []byte) error
}

// Tables bundles the GDTR/LDTR base/limit pairs a selector lookup needs.
type Tables struct {
	GDTBase  uint64
	GDTLimit uint32
	LDTBase  uint64
	LDTLimit uint32
	Long     bool
}

// resolveTable picks the GDT or LDT base/limit for a selector's TI bit.
func (t Tables) resolveTable(selector uint16) (base uint64, limit uint32) {
	if selector&0x4 != 0 {
		return t.LDTBase, t.LDTLimit
	}
	return t.GDTBase, t.GDTLimit
}

// markAccessed rewrites a descriptor's access byte with the accessed bit
// set, so descriptor-table memory records every successful load the way
// real silicon does. A bus failure here is ignored: the load has already
// passed all its checks and faulting it now would be worse than a stale
// accessed bit.
func markAccessed(bus Bus, tableBase uint64, index uint16) {
	addr := tableBase + uint64(index)*8 + 5
	var b [1]byte
	if err := bus.MemoryRead(addr, b[:]); err != nil {
		return
	}
	if b[0]&0x01 != 0 {
		return
	}
	b[0] |= 0x01
	bus.MemoryWrite(addr, b[:])
}

// LoadDataSegment implements the privilege checks for MOV-to-segment-
// register on DS/ES/FS/GS/SS. A null selector is valid
// for DS/ES/FS/GS (the segment is simply marked unusable) but faults for
// SS.
func LoadDataSegment(bus Bus, tables Tables, selector uint16, cpl uint8, isStack bool) (register.Segment, *trap.Fault) {
	index := selector >> 3
	rpl := uint8(selector & 0x3)

	if index == 0 && selector&0xFFFC == 0 {
		if isStack {
			return register.Segment{}, trap.NewException(trap.VecGP, 0, true)
		}
		return register.Segment{Selector: selector}, nil
	}

	base, limit := tables.resolveTable(selector)
	errVec := uint8(trap.VecGP)
	d, f := Fetch(bus, base, limit, index, tables.Long, errVec)
	if f != nil {
		return register.Segment{}, f
	}

	if d.IsSystem || (d.IsCode && !d.Readable) {
		return register.Segment{}, trap.NewException(trap.VecGP, uint64(selector)&0xFFF8, true)
	}

	effDPL := d.DPL
	if isStack {
		if rpl != cpl || effDPL != cpl {
			return register.Segment{}, trap.NewException(trap.VecGP, uint64(selector)&0xFFF8, true)
		}
	} else {
		if !d.Conforming {
			maxPriv := rpl
			if cpl > maxPriv {
				maxPriv = cpl
			}
			if maxPriv > effDPL {
				return register.Segment{}, trap.NewException(trap.VecGP, uint64(selector)&0xFFF8, true)
			}
		}
	}

	if !d.Present {
		vec := uint8(trap.VecNP)
		if isStack {
			vec = trap.VecSS
		}
		return register.Segment{}, trap.NewException(vec, uint64(selector)&0xFFF8, true)
	}

	if !d.Accessed {
		markAccessed(bus, base, index)
		d.Accessed = true
	}
	return ToSegment(d, selector), nil
}

// LoadCodeSegment implements the JMP/CALL-direct privilege rule: a
// non-conforming target requires DPL == CPL (after RPL is accounted for
// by the caller, e.g. via a call gate), a conforming target requires
// DPL <= CPL.
func LoadCodeSegment(bus Bus, tables Tables, selector uint16, cpl uint8) (register.Segment, *trap.Fault) {
	index := selector >> 3
	if index == 0 && selector&0xFFFC == 0 {
		return register.Segment{}, trap.NewException(trap.VecGP, 0, true)
	}
	base, limit := tables.resolveTable(selector)
	d, f := Fetch(bus, base, limit, index, tables.Long, trap.VecGP)
	if f != nil {
		return register.Segment{}, f
	}
	if d.IsSystem || !d.IsCode {
		return register.Segment{}, trap.NewException(trap.VecGP, uint64(selector)&0xFFF8, true)
	}
	rpl := uint8(selector & 0x3)
	if d.Conforming {
		if d.DPL > cpl {
			return register.Segment{}, trap.NewException(trap.VecGP, uint64(selector)&0xFFF8, true)
		}
	} else {
		if d.DPL != cpl || rpl > cpl {
			return register.Segment{}, trap.NewException(trap.VecGP, uint64(selector)&0xFFF8, true)
		}
	}
	if !d.Present {
		return register.Segment{}, trap.NewException(trap.VecNP, uint64(selector)&0xFFF8, true)
	}
	if !d.Accessed {
		markAccessed(bus, base, index)
		d.Accessed = true
	}
	return ToSegment(d, selector), nil
}

// LoadLDTR validates an LLDT operand: the selector must name a present
// LDT descriptor in the GDT (the TI bit may not point an LDT lookup at
// the LDT itself). A null selector is accepted and leaves the LDTR
// unusable.
func LoadLDTR(bus Bus, tables Tables, selector uint16) (register.Segment, *trap.Fault) {
	if selector&0xFFFC == 0 {
		return register.Segment{Selector: selector}, nil
	}
	if selector&0x4 != 0 {
		return register.Segment{}, trap.NewException(trap.VecGP, uint64(selector)&0xFFF8, true)
	}
	index := selector >> 3
	d, f := Fetch(bus, tables.GDTBase, tables.GDTLimit, index, tables.Long, trap.VecGP)
	if f != nil {
		return register.Segment{}, f
	}
	if !d.IsSystem || d.Type != TypeLDT {
		return register.Segment{}, trap.NewException(trap.VecGP, uint64(selector)&0xFFF8, true)
	}
	if !d.Present {
		return register.Segment{}, trap.NewException(trap.VecNP, uint64(selector)&0xFFF8, true)
	}
	return ToSegment(d, selector), nil
}

// LoadTR validates an LTR operand: GDT residency, an available (not
// already busy) TSS type, and presence. On success the descriptor's busy
// bit is set in table memory, so a second LTR of the same selector — or a
// task switch targeting it — sees it busy.
func LoadTR(bus Bus, tables Tables, selector uint16) (register.Segment, *trap.Fault) {
	if selector&0xFFFC == 0 || selector&0x4 != 0 {
		return register.Segment{}, trap.NewException(trap.VecGP, uint64(selector)&0xFFF8, true)
	}
	index := selector >> 3
	d, f := Fetch(bus, tables.GDTBase, tables.GDTLimit, index, tables.Long, trap.VecGP)
	if f != nil {
		return register.Segment{}, f
	}
	if !d.IsSystem || (d.Type != TypeTSS16Avail && d.Type != TypeTSS32Avail) {
		return register.Segment{}, trap.NewException(trap.VecGP, uint64(selector)&0xFFF8, true)
	}
	if !d.Present {
		return register.Segment{}, trap.NewException(trap.VecNP, uint64(selector)&0xFFF8, true)
	}

	addr := tables.GDTBase + uint64(index)*8 + 5
	var b [1]byte
	if err := bus.MemoryRead(addr, b[:]); err == nil {
		b[0] |= 0x02
		bus.MemoryWrite(addr, b[:])
	}
	return ToSegment(d, selector), nil
}
