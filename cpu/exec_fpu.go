/*
   x86emu ESC (0xD8-0xDF) dispatch into x87 FPU opcode execution.

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

// exec_fpu.go gives the ESC opcode range (0xD8-0xDF) a representative
// set of handlers built directly on fpu.Bank's stack/tag-word primitives,
// covering the load/store/arithmetic/control-word families: FLD/FSTP,
// FADD/FMUL/FSUB/FDIV (ST(0) with a memory or ST(i) operand),
// FLDCW/FNSTCW, FNSTSW, FNINIT. A full x87 opcode map (FCOM,
// transcendentals, BCD load/store, FSAVE/FRSTOR) is out of proportion to
// the FPU's share of this exercise and is noted as a scope line in
// DESIGN.md; ESC opcodes this dispatch does not recognize decode their
// ModRM operand (so the instruction length is still correct) and then
// raise #UD like any other unrecognized opcode.
package cpu

import (
	"github.com/BinaryMelodies/x86emu/family"
	"github.com/BinaryMelodies/x86emu/fpu"
	"github.com/BinaryMelodies/x86emu/register"
	"github.com/BinaryMelodies/x86emu/trap"
)

// externalFPU reports whether the co-processor is a discrete part driven
// by FPUStep rather than executing inline with the x86 pipeline.
func (inst *Instance) externalFPU() bool {
	switch inst.Caps.FPU {
	case family.FPU8087, family.FPU287, family.FPU387, family.FPUIIT3C87:
		return true
	default:
		return false
	}
}

// execESC handles one ESC opcode. escOp is opcode-0xD8 (0..7); p's
// ModRM has already selected a memory operand or an ST(i) register
// (mod==3, rm selects i).
func (inst *Instance) execESC(p *parser, escOp byte) *trap.Fault {
	if inst.FPU == nil {
		return trap.NewException(trap.VecNM, 0, false)
	}
	if inst.externalFPU() && inst.FPU.Busy {
		// A discrete co-processor still working on its queued commit
		// stalls the next ESC: re-run this instruction after the host
		// drives FPUStep and the busy bit drops.
		p.cur = p.xip
		return nil
	}
	if f := inst.decodeModRM(p); f != nil {
		return f
	}

	// Bookkeeping pointers, updated on every FPU instruction: fcs:fip
	// names this instruction, fds:fdp its memory operand.
	inst.FPU.FCS = inst.Regs.Seg[register.CS].Selector
	inst.FPU.FIP = p.xip
	inst.FPU.FOP = uint16(escOp&7)<<8 | uint16(p.mod)<<6 | uint16(p.reg&7)<<3 | uint16(p.rm&7)
	inst.FPU.Protected = inst.protected()
	if p.isMem {
		inst.FPU.FDS = inst.Regs.Seg[p.eaSeg].Selector
		inst.FPU.FDP = p.eaOff
	}

	loadMem32 := func() (fpu.Extended, *trap.Fault) {
		v, f := inst.readRM(p, 32)
		if f != nil {
			return fpu.Extended{}, f
		}
		return fpu.From32(uint32(v)), nil
	}
	loadMem64 := func() (fpu.Extended, *trap.Fault) {
		v, f := inst.readRM(p, 64)
		if f != nil {
			return fpu.Extended{}, f
		}
		return fpu.From64(v), nil
	}

	// ModRM.reg (p.reg & 7) selects the FPU sub-opcode within a D8-DF byte
	// when the operand is memory; mod==3 selects an ST(i) form instead.
	switch escOp {
	case 0: // D8: arith with ST(0) and (memory m32real | ST(i))
		var src fpu.Extended
		var f *trap.Fault
		if p.isMem {
			src, f = loadMem32()
		} else {
			src = inst.FPU.ST(int(p.rm & 7))
		}
		if f != nil {
			return f
		}
		return inst.fpuArith(p.reg&7, src)
	case 1: // D9: load/store/control
		switch {
		case p.isMem && p.reg&7 == 0: // FLD m32real
			v, f := loadMem32()
			if f != nil {
				return f
			}
			inst.FPU.Push(v)
			return nil
		case p.isMem && p.reg&7 == 2: // FST m32real
			return inst.fpuStoreMem32(p, inst.FPU.ST(0))
		case p.isMem && p.reg&7 == 3: // FSTP m32real
			if f := inst.fpuStoreMem32(p, inst.FPU.ST(0)); f != nil {
				return f
			}
			inst.FPU.Pop()
			return nil
		case p.isMem && p.reg&7 == 4: // FLDENV
			layout := inst.fpuEnvLayout(p)
			buf := make([]byte, layout.EnvSize())
			linear, f := inst.linearFor(p.eaSeg, p.eaOff, len(buf), false, false)
			if f != nil {
				return f
			}
			if err := inst.bus.MemoryRead(inst.accessSpace(), linear, buf); err != nil {
				return trap.NewException(trap.VecGP, 0, true)
			}
			inst.FPU.LoadEnv(layout, buf)
			return nil
		case p.isMem && p.reg&7 == 5: // FLDCW
			v, f := inst.readRM(p, 16)
			if f != nil {
				return f
			}
			inst.FPU.CW = uint16(v)
			return nil
		case p.isMem && p.reg&7 == 6: // FNSTENV
			layout := inst.fpuEnvLayout(p)
			linear, f := inst.linearFor(p.eaSeg, p.eaOff, layout.EnvSize(), true, false)
			if f != nil {
				return f
			}
			if inst.externalFPU() {
				// Queued on the x86 side until the co-processor commits;
				// the slot replays the operand address as it is now even
				// if the segment is reloaded before FPUStep runs.
				inst.FPU.Queued = fpu.QueuedOp{
					Valid:  true,
					Op:     inst.FPU.FOP,
					Seg:    inst.Regs.Seg[p.eaSeg].Selector,
					Offset: p.eaOff,
					Linear: linear,
				}
				inst.FPU.Busy = true
				return nil
			}
			buf := make([]byte, layout.EnvSize())
			inst.FPU.StoreEnv(layout, buf)
			if err := inst.bus.MemoryWrite(inst.accessSpace(), linear, buf); err != nil {
				return trap.NewException(trap.VecGP, 0, true)
			}
			return nil
		case p.isMem && p.reg&7 == 7: // FNSTCW
			return inst.writeRM(p, 16, uint64(inst.FPU.CW))
		case !p.isMem && p.reg&7 == 0: // FLD ST(i)
			inst.FPU.Push(inst.FPU.ST(int(p.rm & 7)))
			return nil
		case !p.isMem && p.reg&7 == 3 && p.rm&7 == 1: // FXCH (DD /1 fallback to swap ST0/ST1)
			a, b := inst.FPU.ST(0), inst.FPU.ST(1)
			setST(inst.FPU, 0, b)
			setST(inst.FPU, 1, a)
			return nil
		}
		return &trap.Fault{Kind: trap.KindUndefined, Opcode: p.opcode}
	case 2: // DA: integer arith with m32int (not modeled beyond decode; #UD)
		return &trap.Fault{Kind: trap.KindUndefined, Opcode: p.opcode}
	case 3: // DB: FILD/FISTP m32int, FNINIT (DB E3)
		if !p.isMem && p.reg&7 == 4 && p.rm&7 == 3 {
			*inst.FPU = *fpu.NewBank()
			return nil
		}
		return &trap.Fault{Kind: trap.KindUndefined, Opcode: p.opcode}
	case 4: // DC: arith with m64real, reversed ST(i) forms
		var src fpu.Extended
		var f *trap.Fault
		if p.isMem {
			src, f = loadMem64()
		} else {
			src = inst.FPU.ST(int(p.rm & 7))
		}
		if f != nil {
			return f
		}
		return inst.fpuArith(p.reg&7, src)
	case 5: // DD: FLD/FST/FSTP m64real, FNSTSW m2byte
		switch {
		case p.isMem && p.reg&7 == 0:
			v, f := loadMem64()
			if f != nil {
				return f
			}
			inst.FPU.Push(v)
			return nil
		case p.isMem && p.reg&7 == 2:
			return inst.fpuStoreMem64(p, inst.FPU.ST(0))
		case p.isMem && p.reg&7 == 3:
			if f := inst.fpuStoreMem64(p, inst.FPU.ST(0)); f != nil {
				return f
			}
			inst.FPU.Pop()
			return nil
		case p.isMem && p.reg&7 == 7:
			return inst.writeRM(p, 16, uint64(inst.FPU.StatusWord()))
		}
		return &trap.Fault{Kind: trap.KindUndefined, Opcode: p.opcode}
	case 6: // DE: arith-and-pop ST(i) forms, FNSTSW AX (DF E0, handled under 7)
		var src fpu.Extended
		var f *trap.Fault
		if p.isMem {
			v, ff := inst.readRM(p, 16)
			if ff != nil {
				return ff
			}
			src = fpu.From32(uint32(int32(int16(uint16(v)))))
			f = nil
		} else {
			src = inst.FPU.ST(int(p.rm & 7))
		}
		if f != nil {
			return f
		}
		if aerr := inst.fpuArith(p.reg&7, src); aerr != nil {
			return aerr
		}
		inst.FPU.Pop()
		return nil
	case 7: // DF: FNSTSW AX (DF E0)
		if !p.isMem && p.reg&7 == 4 && p.rm&7 == 0 {
			inst.writeGPR(regIdxAX, 16, uint64(inst.FPU.StatusWord()))
			return nil
		}
		return &trap.Fault{Kind: trap.KindUndefined, Opcode: p.opcode}
	}
	return &trap.Fault{Kind: trap.KindUndefined, Opcode: p.opcode}
}

// fpuArith applies one of the eight D8/DC/DE ModRM.reg arithmetic
// selectors (ADD/MUL/SUB/SUBR/DIV/DIVR; COM/COMP are not modeled and
// fall through to #UD) between ST(0) and src, leaving the result in
// ST(0).
func (inst *Instance) fpuArith(op uint8, src fpu.Extended) *trap.Fault {
	st0 := inst.FPU.ST(0)
	a := fpu.ToFloat64(st0)
	b := fpu.ToFloat64(src)
	var r float64
	switch op {
	case 0:
		r = a + b
	case 1:
		r = a * b
	case 4:
		r = a - b
	case 5:
		r = b - a
	case 6:
		r = a / b
	case 7:
		r = b / a
	default:
		return &trap.Fault{Kind: trap.KindUndefined}
	}
	setST(inst.FPU, 0, fpu.FromFloat64(r))
	return nil
}

// fpuEnvLayout picks the environment image shape from the current mode
// and operand size, the IIT part always using its extended form.
func (inst *Instance) fpuEnvLayout(p *parser) fpu.EnvLayout {
	if inst.Caps.FPU == family.FPUIIT3C87 {
		return fpu.Env3C87
	}
	if p.operandSize >= 32 {
		if inst.protected() {
			return fpu.Env32Protected
		}
		return fpu.Env32Real
	}
	if inst.protected() {
		return fpu.Env16Protected
	}
	return fpu.Env16Real
}

func (inst *Instance) fpuStoreMem32(p *parser, v fpu.Extended) *trap.Fault {
	return inst.writeRM(p, 32, uint64(fpu.To32(v)))
}

func (inst *Instance) fpuStoreMem64(p *parser, v fpu.Extended) *trap.Fault {
	return inst.writeRM(p, 64, fpu.To64(v))
}

// setST writes ST(i) directly through Bank's exported Reg/Top fields;
// fpu.Bank exposes Push/Pop/ST for the stack-discipline forms but has no
// direct-write method of its own, since ordinary x87 opcodes only ever
// push, pop, or read ST(i) — FXCH and the arithmetic-result write are the
// two call sites here that need to replace a stack slot in place.
func setST(b *fpu.Bank, i int, v fpu.Extended) {
	b.Reg[(int(b.Top)+i)&7] = v
}
