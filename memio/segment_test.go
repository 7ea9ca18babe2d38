/*
   x86emu segmentation.

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
	"testing"

	"github.com/BinaryMelodies/x86emu/family"
	"github.com/BinaryMelodies/x86emu/register"
)

// TestWrapOffsetPre286 checks the segment-wrap scenario: an 8086-
// class family wraps an offset carry back into the same segment instead of
// spilling into the next paragraph.
func TestWrapOffsetPre286(t *testing.T) {
	caps := family.DefaultCapabilities(family.Family8086)
	tr := NewTranslator(&caps, nil)
	if got := tr.WrapOffset(0x10010); got != 0x0010 {
		t.Errorf("WrapOffset(0x10010) = %#x, want 0x0010", got)
	}
}

func TestWrapOffset286DoesNotWrap(t *testing.T) {
	caps := family.DefaultCapabilities(family.Family286)
	tr := NewTranslator(&caps, nil)
	if got := tr.WrapOffset(0x10010); got != 0x10010 {
		t.Errorf("WrapOffset(0x10010) = %#x, want 0x10010 (no wrap on 286)", got)
	}
}

// TestToLinearRealMode checks the classic real-mode segment:offset formula,
// masked to the family's 20-bit address space.
func TestToLinearRealMode(t *testing.T) {
	caps := family.DefaultCapabilities(family.Family8086)
	tr := NewTranslator(&caps, nil)
	seg := &register.Segment{Base: 0xFFFF0}
	linear, f := tr.ToLinear(seg, register.DS, 0x10, false)
	if f != nil {
		t.Fatalf("unexpected fault: %v", f)
	}
	if linear != 0x00000 {
		t.Errorf("linear = %#x, want 0 (wrapped at the 1MiB boundary)", linear)
	}
}

// TestToLinear64BitOnlyFSGS checks the long-mode rule: CS/DS/ES/SS
// are always flat with a zero base, only FS/GS add their segment base.
func TestToLinear64BitOnlyFSGS(t *testing.T) {
	caps := family.DefaultCapabilities(family.FamilyIntel64)
	tr := NewTranslator(&caps, nil)

	ds := &register.Segment{Base: 0x1000}
	linear, f := tr.ToLinear(ds, register.DS, 0x40, false)
	if f != nil {
		t.Fatalf("unexpected fault: %v", f)
	}
	if linear != 0x40 {
		t.Errorf("DS base must be ignored in 64-bit mode, got linear=%#x", linear)
	}

	fs := &register.Segment{Base: 0x2000}
	linear, f = tr.ToLinear(fs, register.FS, 0x40, false)
	if f != nil {
		t.Fatalf("unexpected fault: %v", f)
	}
	if linear != 0x2040 {
		t.Errorf("FS base must apply in 64-bit mode, got linear=%#x, want 0x2040", linear)
	}
}

func TestCheckCanonicalRejectsNonCanonical(t *testing.T) {
	caps := family.DefaultCapabilities(family.FamilyIntel64)
	tr := NewTranslator(&caps, nil)
	if f := tr.CheckCanonical(0x0000800000000000, false); f == nil {
		t.Error("a non-canonical 64-bit address must fault")
	}
	if f := tr.CheckCanonical(0xFFFF800000000000, false); f != nil {
		t.Errorf("a canonical negative address must not fault, got %v", f)
	}
}

func TestCheckLimitNormalSegment(t *testing.T) {
	caps := family.DefaultCapabilities(family.Family386)
	tr := NewTranslator(&caps, nil)
	seg := &register.Segment{Limit: 0xFFF, Access: register.AccessSystem | register.AccessPresent}

	if f := tr.CheckLimit(seg, 0x500, 4, false); f != nil {
		t.Errorf("in-limit access faulted: %v", f)
	}
	if f := tr.CheckLimit(seg, 0xFFD, 4, false); f == nil {
		t.Error("an access that runs past the limit must fault")
	}
}

func TestCheckLimitGranularScalesBy4KiB(t *testing.T) {
	caps := family.DefaultCapabilities(family.Family386)
	tr := NewTranslator(&caps, nil)
	seg := &register.Segment{Limit: 1, Access: register.AccessSystem | register.AccessPresent | register.AccessGranular}

	// Byte-granular this would fault past limit 1; page-granular the real
	// limit is (1<<12)|0xFFF = 0x1FFF.
	if f := tr.CheckLimit(seg, 0x1000, 4, false); f != nil {
		t.Errorf("granular limit should cover offset 0x1000: %v", f)
	}
}

func TestCheckLimitExpandDown(t *testing.T) {
	caps := family.DefaultCapabilities(family.Family386)
	tr := NewTranslator(&caps, nil)
	seg := &register.Segment{
		Limit:  0x1000,
		Access: register.AccessSystem | register.AccessPresent | register.AccessConforming,
	}
	if !seg.IsExpandDown() {
		t.Fatal("test segment must be expand-down data")
	}

	if f := tr.CheckLimit(seg, 0x1001, 4, false); f != nil {
		t.Errorf("expand-down access just above the limit should be valid: %v", f)
	}
	if f := tr.CheckLimit(seg, 0x0800, 4, false); f == nil {
		t.Error("expand-down access at or below the limit must fault")
	}
}
