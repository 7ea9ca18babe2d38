/*
   x86emu fault representation and double-fault classification.

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

package trap

import "testing"

// TestDoubleFaultMatrix walks every ordered pair of exception classes and
// checks the escalation outcome against the architectural matrix.
func TestDoubleFaultMatrix(t *testing.T) {
	cases := []struct {
		name     string
		first    uint8
		second   uint8
		wantKind Kind
		wantVec  uint8
	}{
		{"benign then benign", VecBP, VecBP, KindException, VecBP},
		{"contributory then benign", VecGP, VecBP, KindException, VecBP},
		{"contributory then contributory", VecGP, VecTS, KindException, VecDF},
		{"contributory then page-fault", VecGP, VecPF, KindException, VecDF},
		{"page-fault then page-fault", VecPF, VecPF, KindException, VecDF},
		{"page-fault then contributory", VecPF, VecGP, KindException, VecDF},
		{"benign then contributory", VecBP, VecGP, KindException, VecGP},
	}
	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			var acc Accumulator
			acc.Raise(NewException(c.first, 0, false))
			got := acc.Raise(NewException(c.second, 0, false))
			if got.Kind != c.wantKind || got.Vector != c.wantVec {
				t.Errorf("got {%v vec=%#x}, want {%v vec=%#x}", got.Kind, got.Vector, c.wantKind, c.wantVec)
			}
		})
	}
}

// TestTripleFaultEscalation checks that a fault raised while #DF is already
// active always escalates to TRIPLE_FAULT, regardless of its own class.
func TestTripleFaultEscalation(t *testing.T) {
	var acc Accumulator
	acc.Raise(NewException(VecGP, 0, false))
	df := acc.Raise(NewException(VecTS, 0, false))
	if df.Vector != VecDF {
		t.Fatalf("expected #DF escalation first, got vec=%#x", df.Vector)
	}
	triple := acc.Raise(NewException(VecBP, 0, false))
	if triple.Kind != KindTripleFault {
		t.Fatalf("expected triple fault after #DF already active, got %v", triple.Kind)
	}
}

func TestAccumulatorReset(t *testing.T) {
	var acc Accumulator
	acc.Raise(NewException(VecGP, 0, false))
	acc.Raise(NewException(VecTS, 0, false)) // escalates to #DF
	acc.Reset()
	got := acc.Raise(NewException(VecGP, 0, false))
	if got.Vector != VecGP {
		t.Fatalf("accumulator did not reset: got vec=%#x", got.Vector)
	}
}

func TestFaultSpeculate(t *testing.T) {
	f := NewException(VecPF, 0x2, true)
	sp := f.Speculate()
	if sp.Speculative != true {
		t.Fatal("Speculate did not mark the copy speculative")
	}
	if f.Speculative {
		t.Fatal("Speculate mutated the original Fault")
	}
	if sp.Vector != f.Vector || sp.ErrorCode != f.ErrorCode {
		t.Fatal("Speculate lost fields from the original Fault")
	}
}

func TestNewExceptionError(t *testing.T) {
	f := NewException(VecGP, 0x10, true)
	if got := f.Error(); got == "" {
		t.Fatal("Error() returned empty string")
	}
	u := &Fault{Kind: KindUndefined, Opcode: 0xF1}
	if got := u.Error(); got == "" {
		t.Fatal("Error() for undefined opcode returned empty string")
	}
}
