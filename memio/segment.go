/*
   x86emu segmentation: segmented-to-linear translation and limit checks.

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
	"github.com/BinaryMelodies/x86emu/register"
	"github.com/BinaryMelodies/x86emu/trap"
)

// Translator turns segmented (segment, offset) accesses into linear and
// physical reads/writes. It holds no guest state of its own beyond what's
// passed in; everything durable lives in the register.Bank the cpu
// package owns.
type Translator struct {
	Caps *family.Capabilities
	Bus  Bus
}

// NewTranslator builds a Translator bound to a capability table and bus.
func NewTranslator(caps *family.Capabilities, bus Bus) *Translator {
	return &Translator{Caps: caps, Bus: bus}
}

// linearBits returns the linear address width for the translator's family
// (the segment row shows the matching selector:offset widths):
//
//	            8086   V33    V55/286   386/PAE    x64
//	segment     16:16  16:16  16:16     16:32      16:64
//	linear      20     20     24        32/36      64
func (t *Translator) linearBits() uint {
	switch t.Caps.Family {
	case family.Family8086, family.FamilyV20, family.FamilyV60, family.FamilyUPD9002:
		return 20
	case family.FamilyV33:
		return 20
	case family.FamilyV25, family.FamilyV55, family.Family286:
		return 24
	case family.FamilyAMD64, family.FamilyP6Plus, family.FamilyIntel64, family.FamilyExtended:
		return 64
	default:
		if t.Caps.AddrWidth != 0 {
			return t.Caps.AddrWidth
		}
		return 32
	}
}

// is64 reports whether the translator's family uses x86-64-style flat
// addressing, where only FS/GS (and the other non-legacy bases) contribute
// a nonzero segment base and every offset is canonical-checked.
func (t *Translator) is64() bool {
	switch t.Caps.Family {
	case family.FamilyAMD64, family.FamilyP6Plus, family.FamilyIntel64, family.FamilyExtended:
		return true
	default:
		return false
	}
}

// CheckCanonical implements x86_check_canonical_address: in 64-bit mode an
// address must sign-extend from bit 47 (VA57 clear) or bit 56 (VA57 set);
// anything else is non-canonical and raises #GP (general accesses) or #SS
// (stack accesses), per the vector the caller passes in.
func (t *Translator) CheckCanonical(addr uint64, stackAccess bool) *trap.Fault {
	if !t.is64() {
		return nil
	}
	var mask uint64
	if t.Caps.Has(family.CapVA57) {
		mask = 0xFF00000000000000
	} else {
		mask = 0xFFFF800000000000
	}
	top := addr & mask
	if top != 0 && top != mask {
		vec := uint8(trap.VecGP)
		if stackAccess {
			vec = trap.VecSS
		}
		return trap.NewException(vec, 0, true)
	}
	return nil
}

// ToLinear resolves a segment register plus offset to a linear address,
// per x86_memory_segmented_to_linear: in 64-bit mode only FS/GS/the extra
// bases contribute a base (CS/DS/ES/SS are always flat and zero), whereas
// in every earlier mode the base always applies.
func (t *Translator) ToLinear(seg *register.Segment, segIndex int, offset uint64, stackAccess bool) (uint64, *trap.Fault) {
	var linear uint64
	if t.is64() {
		if segIndex == register.FS || segIndex == register.GS {
			linear = seg.Base + offset
		} else {
			linear = offset
		}
		if f := t.CheckCanonical(linear, stackAccess); f != nil {
			return 0, f
		}
		return linear, nil
	}

	linear = seg.Base + offset
	bits := t.linearBits()
	if bits < 64 {
		linear &= (uint64(1) << bits) - 1
	}
	return linear, nil
}

// CheckLimit enforces the segment's limit against an access of the given
// byte count, honoring expand-down segments and the granularity bit. Pre-
// 286 families have no segment limit to check (SegmentWrapFamily handles
// their wraparound rule instead), so this is a no-op for them.
func (t *Translator) CheckLimit(seg *register.Segment, offset uint64, size uint64, stackAccess bool) *trap.Fault {
	if t.Caps.AddrWidth <= 20 && t.Caps.Family != family.Family286 {
		return nil
	}

	limit := uint64(seg.Limit)
	if seg.Access&register.AccessGranular != 0 {
		limit = (limit << 12) | 0xFFF
	}

	last := offset + size - 1
	var bad bool
	if seg.IsExpandDown() {
		// Expand-down: valid range is (limit, max] rather than [0, limit].
		top := uint64(0xFFFF)
		if seg.Access&register.AccessDefault32 != 0 {
			top = 0xFFFFFFFF
		}
		bad = offset <= limit || last > top
	} else {
		bad = last > limit
	}

	if bad {
		vec := uint8(trap.VecGP)
		if stackAccess {
			vec = trap.VecSS
		}
		return trap.NewException(vec, 0, true)
	}
	return nil
}

// WrapOffset applies the pre-286 segment-wrap rule: an
// offset that would carry past 0xFFFF continues at 0 of the same segment
// instead of spilling into the next paragraph.
func (t *Translator) WrapOffset(offset uint64) uint64 {
	if t.Caps.SegmentWrapFamily() {
		return offset & 0xFFFF
	}
	return offset
}
