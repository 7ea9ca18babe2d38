/*
   x86emu gate traversal: call/interrupt/trap/task gates.

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
	"github.com/BinaryMelodies/x86emu/trap"
)

// GateTarget is what a call/interrupt/trap gate resolves to: a selector
// and offset pair in the destination code segment, plus the gate's own
// DPL (used by the INT-instruction CPL check) and its paramater count
// (call gates only, for the parameter-copy stack-switch case).
type GateTarget struct {
	Selector   uint16
	Offset     uint64
	DPL        uint8
	ParamCount uint8
	IsTaskGate bool
	TaskTSSSelector uint16
	Type       DescriptorType
}

// ResolveGate reads the gate descriptor at index out of the table given
// by tables.GDTBase/GDTLimit (interrupt delivery passes the IDT there, a
// CALL through a gate the GDT; the LDT fields are not consulted) and
// returns its target, or a #GP/#NP for a malformed/not-present gate.
func ResolveGate(bus Bus, tables Tables, index uint16, errVector uint8) (GateTarget, *trap.Fault) {
	base, limit := tables.GDTBase, tables.GDTLimit
	raw, f := FetchRaw(bus, base, limit, index, tables.Long, errVector)
	if f != nil {
		return GateTarget{}, f
	}
	var g GateFields
	if len(raw) == 16 {
		g = ParseGateLong(raw)
	} else {
		g = ParseGateLegacy(raw)
	}
	access := raw[5]
	isSystem := access&0x10 == 0
	if !isSystem {
		return GateTarget{}, trap.NewException(errVector, uint64(index)<<3, true)
	}
	if g.Type == TypeTaskGate {
		return GateTarget{IsTaskGate: true, DPL: g.DPL, TaskTSSSelector: g.Selector}, nil
	}
	switch g.Type {
	case TypeCallGate16, TypeInterruptGate16, TypeTrapGate16,
		TypeCallGate32, TypeInterruptGate32, TypeTrapGate32:
	default:
		return GateTarget{}, trap.NewException(errVector, uint64(index)<<3, true)
	}
	if !g.Present {
		return GateTarget{}, trap.NewException(trap.VecNP, uint64(index)<<3, true)
	}
	return GateTarget{Selector: g.Selector, Offset: g.Offset, DPL: g.DPL, ParamCount: g.ParamCount, Type: g.Type}, nil
}

// IsInterruptGate reports whether a gate type clears IF on entry (the
// interrupt-gate/trap-gate distinction); both otherwise behave alike.
func IsInterruptGate(t DescriptorType) bool {
	switch t {
	case TypeInterruptGate16, TypeInterruptGate32:
		return true
	default:
		return false
	}
}
