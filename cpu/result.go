/*
   x86emu step result: the discriminated outcome every stepper returns.

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

package cpu

// Outcome discriminates the result of one Step.9 "Step
// result": {SUCCESS, HALT, CPU_INTERRUPT(vector), IRQ(number), UNDEFINED,
// TRIPLE_FAULT, ICE_INTERRUPT}.
type Outcome int

const (
	Success Outcome = iota
	Halt
	CPUInterrupt
	IRQ
	Undefined
	TripleFault
	ICEInterrupt
)

func (o Outcome) String() string {
	switch o {
	case Success:
		return "SUCCESS"
	case Halt:
		return "HALT"
	case CPUInterrupt:
		return "CPU_INTERRUPT"
	case IRQ:
		return "IRQ"
	case Undefined:
		return "UNDEFINED"
	case TripleFault:
		return "TRIPLE_FAULT"
	case ICEInterrupt:
		return "ICE_INTERRUPT"
	default:
		return "UNKNOWN"
	}
}

// StepResult is the value Step/FPUStep/IOPStep/X80Step hand back to the
// host. Vector is valid for CPUInterrupt and ICEInterrupt; IRQNumber for
// IRQ; Opcode for Undefined.
type StepResult struct {
	Outcome   Outcome
	Vector    uint8
	IRQNumber int
	Opcode    uint8
}

func result(o Outcome) StepResult { return StepResult{Outcome: o} }

// HWInterruptKind enumerates the lines HardwareInterrupt can assert:
// INTR, NMI, the 8085-style RST5.5/6.5/7.5 lines, SMI, and ICE.
type HWInterruptKind int

const (
	HWIntr HWInterruptKind = iota
	HWNMI
	HWRST55
	HWRST65
	HWRST75
	HWSMI
	HWICE
)
