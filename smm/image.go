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

// Package smm saves and restores the per-family SMM/ICE state image,
// including the "descriptor cache" encodings for segment registers that
// differ in layout between the 286 LOADALL, 386 LOADALL/ICE, and P5+ SMM
// save areas.
//
// Several of these encodings genuinely cannot round-trip the granularity
// bit, and callers must not assume EncodeSegment/DecodeSegment is
// lossless across a full register.Segment.
package smm

import "github.com/BinaryMelodies/x86emu/family"

// DescriptorCacheLayout is the per-byte-count encoding style a family's
// save area uses for one segment register.
type DescriptorCacheLayout int

const (
	Layout286 DescriptorCacheLayout = iota // 6 bytes: base24, access8, limit16
	Layout386                              // 12 bytes: access16(partial), base32, limit32
	LayoutP5                               // 12 bytes: limit32, base32, access16(partial)
)

// CacheSize returns the byte count of one segment's encoded form.
func (l DescriptorCacheLayout) CacheSize() int {
	switch l {
	case Layout286:
		return 6
	default:
		return 12
	}
}

// LayoutFor picks the descriptor-cache layout for a save format.
func LayoutFor(f family.SMMFormat) DescriptorCacheLayout {
	switch f {
	case family.SMM80386SL, family.SMMCX486SLCE:
		return Layout286
	default:
		return LayoutP5
	}
}

// Segment is the minimal segment-register shape this package encodes;
// kept independent of register.Segment so smm has no dependency on the
// register package and each state image stays self-contained from the
// live register file it snapshots.
type Segment struct {
	Base   uint32
	Limit  uint32
	Access uint16 // only bits that survive the cache encoding
}

// EncodeSegment286 packs a segment into the 6-byte 286 cache format:
// base[0:3], access[3], limit[4:6].
func EncodeSegment286(s Segment, out []byte) {
	out[0] = byte(s.Base)
	out[1] = byte(s.Base >> 8)
	out[2] = byte(s.Base >> 16)
	out[3] = byte(s.Access >> 8)
	out[4] = byte(s.Limit)
	out[5] = byte(s.Limit >> 8)
}

// DecodeSegment286 is the inverse of EncodeSegment286.
func DecodeSegment286(in []byte) Segment {
	return Segment{
		Base:   uint32(in[0]) | uint32(in[1])<<8 | uint32(in[2])<<16,
		Access: uint16(in[3]) << 8,
		Limit:  uint32(in[4]) | uint32(in[5])<<8,
	}
}

// EncodeSegment386 packs the 12-byte 386 LOADALL/ICE cache format. Only
// the upper access byte round-trips: the low access byte and the G flag
// are not stored, and the D/B slot in byte 1 is always written as 0.
func EncodeSegment386(s Segment, out []byte) {
	out[0] = 0
	out[1] = byte((uint32(s.Access) >> 16) & 0x40)
	out[2] = byte(s.Access >> 8)
	out[3] = 0
	out[4] = byte(s.Base)
	out[5] = byte(s.Base >> 8)
	out[6] = byte(s.Base >> 16)
	out[7] = byte(s.Base >> 24)
	out[8] = byte(s.Limit)
	out[9] = byte(s.Limit >> 8)
	out[10] = byte(s.Limit >> 16)
	out[11] = byte(s.Limit >> 24)
}

// DecodeSegment386 is the inverse of EncodeSegment386.
func DecodeSegment386(in []byte) Segment {
	return Segment{
		Access: uint16(in[2])<<8 | uint16(in[1]&0x40)<<16&0xFFFF,
		Base:   uint32(in[4]) | uint32(in[5])<<8 | uint32(in[6])<<16 | uint32(in[7])<<24,
		Limit:  uint32(in[8]) | uint32(in[9])<<8 | uint32(in[10])<<16 | uint32(in[11])<<24,
	}
}

// EncodeSegmentP5 packs the 12-byte P5+ SMM cache format: limit first,
// then base, then a half-populated access word.
func EncodeSegmentP5(s Segment, out []byte) {
	out[0] = byte(s.Limit)
	out[1] = byte(s.Limit >> 8)
	out[2] = byte(s.Limit >> 16)
	out[3] = byte(s.Limit >> 24)
	out[4] = byte(s.Base)
	out[5] = byte(s.Base >> 8)
	out[6] = byte(s.Base >> 16)
	out[7] = byte(s.Base >> 24)
	out[8] = byte(s.Access >> 8)
	out[9] = byte((uint32(s.Access) >> 16) & 0x40)
}

// DecodeSegmentP5 is the inverse of EncodeSegmentP5.
func DecodeSegmentP5(in []byte) Segment {
	return Segment{
		Limit:  uint32(in[0]) | uint32(in[1])<<8 | uint32(in[2])<<16 | uint32(in[3])<<24,
		Base:   uint32(in[4]) | uint32(in[5])<<8 | uint32(in[6])<<16 | uint32(in[7])<<24,
		Access: uint16(in[8])<<8 | uint16(in[9]&0x40)<<16&0xFFFF,
	}
}

// EncodeSegment dispatches to the right layout for a save format.
func EncodeSegment(f family.SMMFormat, s Segment, out []byte) {
	switch LayoutFor(f) {
	case Layout286:
		EncodeSegment286(s, out)
	case Layout386:
		EncodeSegment386(s, out)
	default:
		EncodeSegmentP5(s, out)
	}
}

// DecodeSegment dispatches to the right layout for a save format.
func DecodeSegment(f family.SMMFormat, in []byte) Segment {
	switch LayoutFor(f) {
	case Layout286:
		return DecodeSegment286(in)
	case Layout386:
		return DecodeSegment386(in)
	default:
		return DecodeSegmentP5(in)
	}
}
