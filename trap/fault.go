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

// Package trap is the exception/interrupt delivery machinery: the
// double/triple-fault classification matrix, real/protected mode vector
// dispatch, and INT N/VME software-interrupt redirection.
//
// Every fallible operation elsewhere in the core (memio, protect, fpu, ...)
// returns a *Fault instead of panicking: one tagged result, propagated by
// ordinary error returns, caught at exactly one point (the cpu package's
// Step).
package trap

import "fmt"

// Vector numbers for the architecturally defined exceptions.
const (
	VecDE  = 0x00 // divide error
	VecDB  = 0x01 // debug
	VecNMI = 0x02
	VecBP  = 0x03
	VecOF  = 0x04
	VecBR  = 0x05 // bound range
	VecUD  = 0x06 // invalid opcode
	VecNM  = 0x07 // device not available
	VecDF  = 0x08 // double fault
	VecTS  = 0x0A // invalid TSS
	VecNP  = 0x0B // segment not present
	VecSS  = 0x0C // stack fault
	VecGP  = 0x0D // general protection
	VecPF  = 0x0E // page fault
	VecMF  = 0x10 // x87 floating point error
	VecAC  = 0x11 // alignment check
	VecMC  = 0x12 // machine check
	VecXM  = 0x13 // SIMD floating point
)

// Class is one of the four exception classes used for double/triple-fault
// escalation.
type Class int

const (
	ClassBenign Class = iota
	ClassContributory
	ClassPageFault
	ClassDoubleFault
)

// classOf returns the class a given vector belongs to, per the standard
// x86 exception class table.
func classOf(vector uint8) Class {
	switch vector {
	case VecPF:
		return ClassPageFault
	case VecDE, VecTS, VecNP, VecSS, VecGP:
		return ClassContributory
	case VecDF:
		return ClassDoubleFault
	default:
		return ClassBenign
	}
}

// Kind distinguishes how a Fault should be delivered.
type Kind int

const (
	KindException Kind = iota // guest architectural exception (fault/trap/abort)
	KindUndefined             // decoder could not match an opcode
	KindHalt                  // HLT executed
	KindTripleFault
)

// Fault is the tagged result threaded through every fallible call. A
// Fault with Speculative set true was raised during the lazy prefetch-queue
// refill and must be swallowed by the caller instead of delivered to the
// guest.
type Fault struct {
	Kind         Kind
	Vector       uint8
	ErrorCode    uint64
	HasErrorCode bool
	Speculative  bool
	Opcode       uint8 // valid when Kind == KindUndefined
}

func (f *Fault) Error() string {
	switch f.Kind {
	case KindUndefined:
		return fmt.Sprintf("undefined opcode 0x%02x", f.Opcode)
	case KindHalt:
		return "halt"
	case KindTripleFault:
		return "triple fault"
	default:
		if f.HasErrorCode {
			return fmt.Sprintf("exception vector 0x%02x error=0x%x", f.Vector, f.ErrorCode)
		}
		return fmt.Sprintf("exception vector 0x%02x", f.Vector)
	}
}

// NewException builds a Fault for a guest architectural exception.
func NewException(vector uint8, errorCode uint64, hasErrorCode bool) *Fault {
	return &Fault{Kind: KindException, Vector: vector, ErrorCode: errorCode, HasErrorCode: hasErrorCode}
}

// Speculate marks a Fault as having been raised during speculative
// prefetch-queue fill; the caller at the fill site swallows it.
func (f *Fault) Speculate() *Fault {
	cp := *f
	cp.Speculative = true
	return &cp
}

// Accumulator tracks the exception class of the step in progress and
// decides whether a newly-raised fault must escalate to #DF or to a
// triple fault:
//
//	"contributory∧contributory or contributory∧page-fault or
//	 page-fault∧page-fault escalate to #DF; anything while #DF is
//	 active escalates to triple fault"
type Accumulator struct {
	current Class
	dfActive bool
}

// Raise records a newly-raised exception against the accumulator and
// returns the Fault that should actually be delivered: either the
// original fault, a #DF, or a triple-fault marker.
func (a *Accumulator) Raise(f *Fault) *Fault {
	cls := classOf(f.Vector)

	if a.dfActive {
		return &Fault{Kind: KindTripleFault}
	}

	escalate := false
	switch {
	case a.current == ClassContributory && cls == ClassContributory:
		escalate = true
	case a.current == ClassContributory && cls == ClassPageFault:
		escalate = true
	case a.current == ClassPageFault && cls == ClassContributory:
		escalate = true
	case a.current == ClassPageFault && cls == ClassPageFault:
		escalate = true
	}

	if escalate {
		a.dfActive = true
		a.current = ClassDoubleFault
		return NewException(VecDF, 0, true)
	}

	if cls != ClassBenign {
		a.current = cls
	}
	return f
}

// Reset clears the accumulator; called at the start of every step.
func (a *Accumulator) Reset() {
	a.current = ClassBenign
	a.dfActive = false
}
