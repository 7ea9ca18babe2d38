/*
   x86emu string-instruction opcode handlers (MOVS/CMPS/STOS/LODS/SCAS/
   INS/OUTS), with REP/REPE/REPNE looping.

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

// exec_string.go implements the string ops and their REP loops. A
// REP-prefixed string op executing one element per Step call is
// observably equivalent to one executing the whole count inline, as long
// as an exception encountered partway leaves CX/ESI/EDI/EDX at the
// post-element values and reissues the same prefetched opcode on the
// next Step" — implemented here by letting a REP-prefixed instruction
// run its full count in a single Step (rolling xIP back to the prefix
// byte on a mid-loop fault, via curParser), rather than literally
// re-decoding once per element.
package cpu

import (
	"github.com/BinaryMelodies/x86emu/register"
	"github.com/BinaryMelodies/x86emu/trap"
)

const (
	strRepNone = 0
	strRepZ    = 0xF3
	strRepNZ   = 0xF2
)

func (inst *Instance) stringStep(width int) uint64 {
	if inst.Regs.Flags.Test(0x0400) { // DF
		return ^uint64(0) // -1, added with wraparound
	}
	return 1
}

func (inst *Instance) addrWidth(p *parser) int {
	if p.addressSize == 16 {
		return 16
	}
	if p.addressSize == 64 {
		return 64
	}
	return 32
}

func (inst *Instance) execMOVS(p *parser, width int) *trap.Fault {
	return inst.repLoop(p, func() (bool, *trap.Fault) {
		aw := inst.addrWidth(p)
		si := inst.readGPR(regIdxSI, aw)
		di := inst.readGPR(regIdxDI, aw)
		seg := register.DS
		if p.segOverride >= 0 {
			seg = p.segOverride
		}
		v, f := inst.readMem(seg, si, width/8)
		if f != nil {
			return false, f
		}
		if f := inst.writeMem(register.ES, di, width/8, v); f != nil {
			return false, f
		}
		step := inst.stringStep(width)
		inst.writeGPR(regIdxSI, aw, (si+step*uint64(width/8))&widthMask(aw))
		inst.writeGPR(regIdxDI, aw, (di+step*uint64(width/8))&widthMask(aw))
		return true, nil
	})
}

func (inst *Instance) execSTOS(p *parser, width int) *trap.Fault {
	return inst.repLoop(p, func() (bool, *trap.Fault) {
		aw := inst.addrWidth(p)
		di := inst.readGPR(regIdxDI, aw)
		v := inst.readGPR(regIdxAX, width)
		if f := inst.writeMem(register.ES, di, width/8, v); f != nil {
			return false, f
		}
		step := inst.stringStep(width)
		inst.writeGPR(regIdxDI, aw, (di+step*uint64(width/8))&widthMask(aw))
		return true, nil
	})
}

func (inst *Instance) execLODS(p *parser, width int) *trap.Fault {
	return inst.repLoop(p, func() (bool, *trap.Fault) {
		aw := inst.addrWidth(p)
		seg := register.DS
		if p.segOverride >= 0 {
			seg = p.segOverride
		}
		si := inst.readGPR(regIdxSI, aw)
		v, f := inst.readMem(seg, si, width/8)
		if f != nil {
			return false, f
		}
		inst.writeGPR(regIdxAX, width, v)
		step := inst.stringStep(width)
		inst.writeGPR(regIdxSI, aw, (si+step*uint64(width/8))&widthMask(aw))
		return true, nil
	})
}

func (inst *Instance) execCMPS(p *parser, width int) *trap.Fault {
	return inst.repLoop(p, func() (bool, *trap.Fault) {
		aw := inst.addrWidth(p)
		seg := register.DS
		if p.segOverride >= 0 {
			seg = p.segOverride
		}
		si := inst.readGPR(regIdxSI, aw)
		di := inst.readGPR(regIdxDI, aw)
		a, f := inst.readMem(seg, si, width/8)
		if f != nil {
			return false, f
		}
		b, f := inst.readMem(register.ES, di, width/8)
		if f != nil {
			return false, f
		}
		res := (a - b) & widthMask(width)
		inst.setArithFlags(a, b, res, width, true, 0)
		step := inst.stringStep(width)
		inst.writeGPR(regIdxSI, aw, (si+step*uint64(width/8))&widthMask(aw))
		inst.writeGPR(regIdxDI, aw, (di+step*uint64(width/8))&widthMask(aw))
		return inst.repContinue(p, res == 0), nil
	})
}

func (inst *Instance) execSCAS(p *parser, width int) *trap.Fault {
	return inst.repLoop(p, func() (bool, *trap.Fault) {
		aw := inst.addrWidth(p)
		di := inst.readGPR(regIdxDI, aw)
		a := inst.readGPR(regIdxAX, width)
		b, f := inst.readMem(register.ES, di, width/8)
		if f != nil {
			return false, f
		}
		res := (a - b) & widthMask(width)
		inst.setArithFlags(a, b, res, width, true, 0)
		step := inst.stringStep(width)
		inst.writeGPR(regIdxDI, aw, (di+step*uint64(width/8))&widthMask(aw))
		return inst.repContinue(p, res == 0), nil
	})
}

func (inst *Instance) execINS(p *parser, width int) *trap.Fault {
	return inst.repLoop(p, func() (bool, *trap.Fault) {
		aw := inst.addrWidth(p)
		di := inst.readGPR(regIdxDI, aw)
		port := uint16(inst.readGPR(regIdxDX, 16))
		inst.recordIORestart()
		buf := make([]byte, width/8)
		if f := inst.Ports.In(port, buf); f != nil {
			return false, f
		}
		var v uint64
		for i := len(buf) - 1; i >= 0; i-- {
			v = v<<8 | uint64(buf[i])
		}
		if f := inst.writeMem(register.ES, di, width/8, v); f != nil {
			return false, f
		}
		step := inst.stringStep(width)
		inst.writeGPR(regIdxDI, aw, (di+step*uint64(width/8))&widthMask(aw))
		return true, nil
	})
}

func (inst *Instance) execOUTS(p *parser, width int) *trap.Fault {
	return inst.repLoop(p, func() (bool, *trap.Fault) {
		aw := inst.addrWidth(p)
		seg := register.DS
		if p.segOverride >= 0 {
			seg = p.segOverride
		}
		si := inst.readGPR(regIdxSI, aw)
		port := uint16(inst.readGPR(regIdxDX, 16))
		inst.recordIORestart()
		v, f := inst.readMem(seg, si, width/8)
		if f != nil {
			return false, f
		}
		buf := make([]byte, width/8)
		for i := 0; i < len(buf); i++ {
			buf[i] = byte(v)
			v >>= 8
		}
		if f := inst.Ports.Out(port, buf); f != nil {
			return false, f
		}
		step := inst.stringStep(width)
		inst.writeGPR(regIdxSI, aw, (si+step*uint64(width/8))&widthMask(aw))
		return true, nil
	})
}

// repContinue applies the REPE/REPNE ZF-termination rule to CMPS/SCAS;
// non-comparison string ops ignore the zero flag entirely and always
// continue to repContinue's caller's own CX test.
func (inst *Instance) repContinue(p *parser, zf bool) bool {
	switch p.repPrefix {
	case strRepZ:
		return zf
	case strRepNZ:
		return !zf
	default:
		return true
	}
}

// repLoop runs one bounded iteration per call when unprefixed, or the
// instruction's whole REP count in a single call when prefixed. xip
// rollback on a mid-count fault is handled by the caller (Step), via
// curParser.xip, so the reissued instruction resumes with the updated
// CX/SI/DI/flags rather than restarting the whole count.
func (inst *Instance) repLoop(p *parser, body func() (bool, *trap.Fault)) *trap.Fault {
	if p.repPrefix == strRepNone {
		_, f := body()
		return f
	}
	aw := inst.addrWidth(p)
	for {
		cx := inst.readGPR(regIdxCX, aw)
		if cx == 0 {
			return nil
		}
		cont, f := body()
		cx = (cx - 1) & widthMask(aw)
		inst.writeGPR(regIdxCX, aw, cx)
		if f != nil {
			return f
		}
		if !cont || cx == 0 {
			return nil
		}
	}
}
