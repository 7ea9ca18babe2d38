/*
   x86emu x87 FPU: stack bank, tag word, environment save/restore.

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

// Package fpu implements the x87 stack bank, its TOP-relative register
// addressing and tag word, and the extended-precision conversions the
// load/store forms need. Host floats lack an 80-bit type, so values are
// carried as an explicit (fraction, exponent, sign) triple and the
// conversion helpers assemble and decompose that triple by hand.
package fpu

import "math"

// Extended is an explicit significand/exponent/sign triple standing in
// for the 80-bit extended type on hosts without a native long double.
type Extended struct {
	Fraction uint64 // 64-bit significand, explicit integer bit included
	Exponent uint16 // biased by 0x3FFF
	Sign     bool
}

// Tag values for the x87 tag word, one 2-bit field per stack register.
const (
	TagValid = 0
	TagZero  = 1
	TagSpecial = 2 // NaN, infinity, denormal, or unsupported
	TagEmpty = 3
)

// Bank is the 8-register x87 stack, addressed physically by index but
// read/written by the guest relative to TOP (ST(0)..ST(7)).
type Bank struct {
	Reg  [8]Extended
	Tag  [8]uint8 // TagEmpty..TagValid per physical register
	Top  uint8    // 3-bit TOP field of the status word
	CW   uint16
	SW   uint16 // excluding TOP, which is tracked separately and folded in on read
	FOP  uint16
	FIP  uint64
	FCS  uint16
	FDP  uint64
	FDS  uint16

	// Protected mirrors whether the host x86 was in protected mode when
	// the last FPU instruction ran, selecting the environment layout
	// FSAVE/FSTENV emit.
	Protected bool

	// External (8087/287/387/IIT) co-processors run asynchronously to the
	// CPU: Busy defers the next FPU instruction until the co-processor
	// step commits, and Queued holds the one operation (an environment or
	// state store, on the IIT the two-byte hooked forms) that was accepted
	// but not yet performed. Integrated FPUs never set either.
	Busy   bool
	Queued QueuedOp
}

// QueuedOp is the deferred-commit slot: the operation the external FPU
// accepted from the instruction stream but has not yet written back. The
// segment/offset pair replays the operand address as it was at queue time,
// even if the x86 side has since reloaded the segment.
type QueuedOp struct {
	Valid  bool
	Op     uint16 // 11-bit opcode, as FOP stores it
	Seg    uint16
	Offset uint64
	Linear uint64
}

// NewBank returns a freshly reset FPU bank: CW=0x037F, all tags empty.
func NewBank() *Bank {
	b := &Bank{CW: 0x037F}
	for i := range b.Tag {
		b.Tag[i] = TagEmpty
	}
	return b
}

// phys maps an ST(i) index to its physical register index.
func (b *Bank) phys(st int) int {
	return (int(b.Top) + st) & 7
}

// ST reads ST(i) without affecting TOP or tags.
func (b *Bank) ST(i int) Extended {
	return b.Reg[b.phys(i)]
}

// Push decrements TOP and stores value into the new ST(0), per the
// architecture's stack-push semantics; if the destination register was
// already valid, this raises stack overflow (the caller checks Tag first
// and raises #IS/#MF — Push itself just moves bytes and tags).
func (b *Bank) Push(value Extended) {
	b.Top = (b.Top - 1) & 7
	p := b.phys(0)
	b.Reg[p] = value
	b.Tag[p] = classify(value)
}

// Pop marks ST(0) empty and advances TOP, the mirror of Push.
func (b *Bank) Pop() Extended {
	p := b.phys(0)
	v := b.Reg[p]
	b.Tag[p] = TagEmpty
	b.Top = (b.Top + 1) & 7
	return v
}

// classify derives a tag-word entry from a value's bit pattern.
func classify(v Extended) uint8 {
	if v.Fraction == 0 && v.Exponent == 0 {
		return TagZero
	}
	if v.Exponent == 0x7FFF {
		return TagSpecial
	}
	return TagValid
}

// StatusWord assembles the 16-bit status word, folding in the TOP field.
func (b *Bank) StatusWord() uint16 {
	return (b.SW &^ 0x3800) | uint16(b.Top)<<11
}

// SetStatusWord splits TOP back out of a guest-supplied status word.
func (b *Bank) SetStatusWord(v uint16) {
	b.Top = uint8(v>>11) & 7
	b.SW = v &^ 0x3800
}

// TagWord packs the 8 two-bit tag fields into a 16-bit word, in physical
// register order (not ST-relative), matching the architecture's FNSTENV.
func (b *Bank) TagWord() uint16 {
	var w uint16
	for i, t := range b.Tag {
		w |= uint16(t) << (uint(i) * 2)
	}
	return w
}

// SetTagWord unpacks a 16-bit guest tag word back into per-register tags.
func (b *Bank) SetTagWord(w uint16) {
	for i := range b.Tag {
		b.Tag[i] = uint8(w>>(uint(i)*2)) & 3
	}
}

// ToFloat64 approximates an Extended as a host float64, for arithmetic
// this core implements in terms of Go's math package rather than
// reimplementing 80-bit arithmetic from scratch. Precision beyond 53
// significand bits is lost: extended-precision rounding is not bit-exact
// on hosts without an 80-bit float.
func ToFloat64(e Extended) float64 {
	if e.Fraction == 0 && e.Exponent == 0 {
		if e.Sign {
			return math.Copysign(0, -1)
		}
		return 0
	}
	mantissa := float64(e.Fraction) / (1 << 63)
	exp := int(e.Exponent) - 0x3FFF
	v := math.Ldexp(mantissa, exp)
	if e.Sign {
		v = -v
	}
	return v
}

// FromFloat64 is the inverse of ToFloat64, decomposing a host float64
// into the explicit triple (Go has no native 80-bit type).
func FromFloat64(v float64) Extended {
	if v == 0 {
		return Extended{Sign: math.Signbit(v)}
	}
	frac, exp := math.Frexp(v)
	sign := math.Signbit(v)
	if sign {
		frac = -frac
	}
	fraction := uint64(frac * (1 << 64))
	return Extended{
		Fraction: fraction,
		Exponent: uint16(exp + 0x3FFE),
		Sign:     sign,
	}
}

// From32 converts an IEEE-754 single into Extended. Normals only;
// denormal singles flush through as if zero-exponent normals.
func From32(bits uint32) Extended {
	fraction := (uint64(bits&0x007FFFFF) << 40) | 0x8000000000000000
	exponent := uint16((bits&0x7F800000)>>23) - 127 + 16383
	return Extended{Fraction: fraction, Exponent: exponent, Sign: bits&0x80000000 != 0}
}

// To32 converts an Extended to an IEEE-754 single, the inverse of From32.
func To32(e Extended) uint32 {
	result := uint32((e.Fraction &^ (uint64(1) << 63)) >> 40)
	result |= uint32((int(e.Exponent)-16383+127)&0xFF) << 23
	if e.Sign {
		result |= 0x80000000
	}
	return result
}

// From64 converts an IEEE-754 double into Extended.
func From64(bits uint64) Extended {
	fraction := (bits & 0x000FFFFFFFFFFFFF << 11) | 0x8000000000000000
	exponent := uint16((bits&0x7FF0000000000000)>>52) - 1023 + 16383
	return Extended{Fraction: fraction, Exponent: exponent, Sign: bits&0x8000000000000000 != 0}
}

// To64 converts an Extended to an IEEE-754 double, the inverse of From64.
func To64(e Extended) uint64 {
	result := (e.Fraction &^ (uint64(1) << 63)) >> 11
	result |= uint64((int(e.Exponent)-16383+1023)&0x7FF) << 52
	if e.Sign {
		result |= 0x8000000000000000
	}
	return result
}
