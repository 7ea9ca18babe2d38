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

package fpu

import (
	"math"
	"testing"
)

// TestStackPushPopDuality checks the stack duality: push(v); pop()
// returns v and restores TOP.
func TestStackPushPopDuality(t *testing.T) {
	b := NewBank()
	top0 := b.Top
	v := FromFloat64(3.5)
	b.Push(v)
	if b.Top == top0 {
		t.Fatal("Push did not move TOP")
	}
	got := b.Pop()
	if b.Top != top0 {
		t.Errorf("TOP after push+pop = %d, want %d", b.Top, top0)
	}
	if got != v {
		t.Errorf("Pop() = %+v, want %+v", got, v)
	}
}

func TestTagTransitions(t *testing.T) {
	b := NewBank()
	for i := range b.Tag {
		if b.Tag[i] != TagEmpty {
			t.Fatalf("fresh bank register %d tag = %d, want TagEmpty", i, b.Tag[i])
		}
	}
	b.Push(Extended{})         // zero value
	if b.Tag[b.phys(0)] != TagZero {
		t.Errorf("pushing a zero value should tag TagZero, got %d", b.Tag[b.phys(0)])
	}
	b.Push(FromFloat64(1.25))
	if b.Tag[b.phys(0)] != TagValid {
		t.Errorf("pushing a normal value should tag TagValid, got %d", b.Tag[b.phys(0)])
	}
	b.Push(Extended{Exponent: 0x7FFF, Fraction: 1})
	if b.Tag[b.phys(0)] != TagSpecial {
		t.Errorf("pushing NaN/infinity should tag TagSpecial, got %d", b.Tag[b.phys(0)])
	}
	b.Pop()
	if b.Tag[b.phys(-1)] != TagEmpty {
		t.Error("Pop must mark the vacated slot empty")
	}
}

func TestStatusWordTopRoundTrip(t *testing.T) {
	b := NewBank()
	b.SW = 0x1234
	b.Top = 5
	sw := b.StatusWord()
	b2 := NewBank()
	b2.SetStatusWord(sw)
	if b2.Top != 5 {
		t.Errorf("Top after SetStatusWord = %d, want 5", b2.Top)
	}
	if b2.SW != b.SW {
		t.Errorf("SW after SetStatusWord = %#x, want %#x", b2.SW, b.SW)
	}
}

func TestTagWordRoundTrip(t *testing.T) {
	b := NewBank()
	b.Tag = [8]uint8{TagValid, TagZero, TagSpecial, TagEmpty, TagValid, TagValid, TagZero, TagEmpty}
	w := b.TagWord()
	b2 := NewBank()
	b2.SetTagWord(w)
	if b2.Tag != b.Tag {
		t.Errorf("tag word round trip = %+v, want %+v", b2.Tag, b.Tag)
	}
}

func TestFloat64RoundTrip(t *testing.T) {
	for _, v := range []float64{1.0, -1.0, 0.5, 3.141592653589793, -123456.789} {
		e := FromFloat64(v)
		got := ToFloat64(e)
		if math.Abs(got-v) > 1e-9*math.Abs(v)+1e-12 {
			t.Errorf("FromFloat64/ToFloat64(%v) = %v, too far off", v, got)
		}
	}
}

func TestSingleRoundTrip(t *testing.T) {
	orig := math.Float32bits(2.5)
	got := To32(From32(orig))
	if got != orig {
		t.Errorf("From32/To32(%#x) = %#x", orig, got)
	}
}

func TestDoubleRoundTrip(t *testing.T) {
	orig := math.Float64bits(-7.25)
	got := To64(From64(orig))
	if got != orig {
		t.Errorf("From64/To64(%#x) = %#x", orig, got)
	}
}
