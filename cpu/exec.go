/*
   x86emu main opcode dispatcher.

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

// exec.go is the top-level opcode switch: having decoded the prefixes
// and the opcode byte (decode.go), dispatch dispatches to the exec_*.go
// handler for that family. Coverage is representative rather
// than the full multi-thousand-entry x86 opcode map — arithmetic/logic,
// data movement, the shift/rotate and unary/unary-group encodings,
// control transfer (short and near; far forms for the common encodings),
// string ops with REP, INT/IRET/HLT/flag-bit instructions, the minimal
// system instructions (LGDT/SGDT/LIDT/SIDT, MOV CR/DR), and ESC into the
// FPU. Anything this switch does not recognize falls to the family's
// undefined-opcode policy (family.Capabilities.UndefinedOpcodeFaults):
// 8086-class parts report the opcode and continue, everything later
// raises #UD. The per-category gaps are: segment-prefix PUSH/POP forms,
// the DAA/DAS/AAA/AAS quartet, and the vendor-specific NEC INS/EXT, V55
// queue ops, Cyrix BCDFix, and 80386B0 IBTS/XBTS.
package cpu

import (
	"github.com/BinaryMelodies/x86emu/register"
	"github.com/BinaryMelodies/x86emu/trap"
)

// dispatch executes one already-prefix-parsed instruction. A non-nil
// *StepResult return means the instruction completed its own step result
// (INT/IRET handled their own delivery); otherwise the caller treats a
// nil fault as ordinary completion (outcome Success) and a non-nil fault
// as something for the single catch point to deliver.
func (inst *Instance) dispatch(p *parser) (*StepResult, *trap.Fault) {
	b, f := inst.parsePrefixes(p)
	if f != nil {
		return nil, f
	}
	p.opcode = b

	if b == 0x0F {
		b2, f := inst.fetchByte(p)
		if f != nil {
			return nil, f
		}
		return inst.dispatchTwoByte(p, b2)
	}

	if b >= 0xD8 && b <= 0xDF {
		return nil, inst.execESC(p, b-0xD8)
	}

	// ALU group: opcodes 0x00-0x3D's six (Eb,Gb)/(Ev,Gv)/(Gb,Eb)/(Gv,Ev)/
	// (AL,ib)/(rAX,iz) forms per family (ADD/OR/ADC/SBB/AND/SUB/XOR/CMP).
	// 0x06/0x07/... segment PUSH/POP and 0x27/0x2F/0x37/0x3F (DAA/DAS/AAA/
	// AAS) are not modeled; see DESIGN.md.
	if b <= 0x3D && b&7 <= 5 {
		return nil, inst.execALUGroup(p, int(b>>3)&7, b&7)
	}

	switch b {
	case 0x40, 0x41, 0x42, 0x43, 0x44, 0x45, 0x46, 0x47:
		return nil, inst.execIncDecReg(p, b-0x40, false)
	case 0x48, 0x49, 0x4A, 0x4B, 0x4C, 0x4D, 0x4E, 0x4F:
		return nil, inst.execIncDecReg(p, b-0x48, true)
	case 0x50, 0x51, 0x52, 0x53, 0x54, 0x55, 0x56, 0x57:
		reg := b - 0x50
		if p.rexB {
			reg |= 8
		}
		return nil, inst.execPushReg(reg, p.operandSize)
	case 0x58, 0x59, 0x5A, 0x5B, 0x5C, 0x5D, 0x5E, 0x5F:
		reg := b - 0x58
		if p.rexB {
			reg |= 8
		}
		return nil, inst.execPopReg(reg, p.operandSize)
	case 0x68:
		return nil, inst.execPushImm(p, p.operandSize)
	case 0x6A:
		return nil, inst.execPushImm(p, p.operandSize)
	case 0x70, 0x71, 0x72, 0x73, 0x74, 0x75, 0x76, 0x77,
		0x78, 0x79, 0x7A, 0x7B, 0x7C, 0x7D, 0x7E, 0x7F:
		return nil, inst.execJccShort(p, b-0x70)
	case 0x80, 0x81, 0x83:
		return nil, inst.execImmediateGroup(p, b)
	case 0x84: // TEST Eb,Gb
		if f := inst.decodeModRM(p); f != nil {
			return nil, f
		}
		a, f := inst.readRM(p, 8)
		if f != nil {
			return nil, f
		}
		inst.setLogicFlags(a&inst.readGPR(p.reg, 8), 8)
		return nil, nil
	case 0x85: // TEST Ev,Gv
		if f := inst.decodeModRM(p); f != nil {
			return nil, f
		}
		a, f := inst.readRM(p, p.operandSize)
		if f != nil {
			return nil, f
		}
		inst.setLogicFlags(a&inst.readGPR(p.reg, p.operandSize), p.operandSize)
		return nil, nil
	case 0x86:
		return nil, inst.execXCHG(p, 8)
	case 0x87:
		return nil, inst.execXCHG(p, p.operandSize)
	case 0x88:
		return nil, inst.execMovRM(p, 8, false)
	case 0x89:
		return nil, inst.execMovRM(p, p.operandSize, false)
	case 0x8A:
		return nil, inst.execMovRM(p, 8, true)
	case 0x8B:
		return nil, inst.execMovRM(p, p.operandSize, true)
	case 0x8D:
		return nil, inst.execLEA(p)
	case 0x8F:
		if f := inst.decodeModRM(p); f != nil {
			return nil, f
		}
		return nil, inst.execPopRM(p, p.operandSize)
	case 0x90:
		return nil, nil // NOP (also XCHG AX,AX)
	case 0x9C:
		return nil, inst.execPushF(p)
	case 0x9D:
		return nil, inst.execPopF(p)
	case 0xA0, 0xA1, 0xA2, 0xA3:
		return nil, inst.execMoffs(p, b)
	case 0xA4, 0xA5:
		width := 8
		if b == 0xA5 {
			width = p.operandSize
		}
		return nil, inst.execMOVS(p, width)
	case 0xA6, 0xA7:
		width := 8
		if b == 0xA7 {
			width = p.operandSize
		}
		return nil, inst.execCMPS(p, width)
	case 0xA8: // TEST AL,ib
		d, f := inst.fetchBytes(p, 1)
		if f != nil {
			return nil, f
		}
		inst.setLogicFlags(inst.readGPR(regIdxAX, 8)&uint64(d[0]), 8)
		return nil, nil
	case 0xA9: // TEST eAX,iz
		imm, f := inst.fetchImmediate(p, 32)
		if f != nil {
			return nil, f
		}
		inst.setLogicFlags(inst.readGPR(regIdxAX, p.operandSize)&imm, p.operandSize)
		return nil, nil
	case 0xAA, 0xAB:
		width := 8
		if b == 0xAB {
			width = p.operandSize
		}
		return nil, inst.execSTOS(p, width)
	case 0xAC, 0xAD:
		width := 8
		if b == 0xAD {
			width = p.operandSize
		}
		return nil, inst.execLODS(p, width)
	case 0xAE, 0xAF:
		width := 8
		if b == 0xAF {
			width = p.operandSize
		}
		return nil, inst.execSCAS(p, width)
	case 0xB0, 0xB1, 0xB2, 0xB3, 0xB4, 0xB5, 0xB6, 0xB7:
		reg := b - 0xB0
		if p.rexB {
			reg |= 8
		}
		return nil, inst.execMovRegImm(p, reg, 8)
	case 0xB8, 0xB9, 0xBA, 0xBB, 0xBC, 0xBD, 0xBE, 0xBF:
		reg := b - 0xB8
		if p.rexB {
			reg |= 8
		}
		return nil, inst.execMovRegImm(p, reg, p.operandSize)
	case 0xC0, 0xC1:
		width := 8
		if b == 0xC1 {
			width = p.operandSize
		}
		if f := inst.decodeModRM(p); f != nil {
			return nil, f
		}
		d, f := inst.fetchBytes(p, 1)
		if f != nil {
			return nil, f
		}
		return nil, inst.execShiftGroup(p, width, d[0])
	case 0xC2:
		d, f := inst.fetchBytes(p, 2)
		if f != nil {
			return nil, f
		}
		return nil, inst.execRetNear(p, le16(d))
	case 0xC3:
		return nil, inst.execRetNear(p, 0)
	case 0xC6, 0xC7:
		return nil, inst.execMovImmGroup(p, b)
	case 0xC9: // LEAVE
		bp := inst.readGPR(regIdxBP, p.operandSize)
		inst.setSP(bp)
		v, f := inst.popN()
		if f != nil {
			return nil, f
		}
		inst.writeGPR(regIdxBP, p.operandSize, v)
		return nil, nil
	case 0xCA:
		d, f := inst.fetchBytes(p, 2)
		if f != nil {
			return nil, f
		}
		return nil, inst.execRetFar(p, le16(d))
	case 0x9A: // CALL ptr16:16/32 (direct far)
		offWidth := p.operandSize
		if offWidth > 32 {
			offWidth = 32
		}
		od, f := inst.fetchBytes(p, offWidth/8)
		if f != nil {
			return nil, f
		}
		sd, f := inst.fetchBytes(p, 2)
		if f != nil {
			return nil, f
		}
		var off uint64
		if offWidth == 16 {
			off = uint64(le16(od))
		} else {
			off = uint64(le32(od))
		}
		return nil, inst.execCallFar(p, le16(sd), off)
	case 0xCB:
		return nil, inst.execRetFar(p, 0)
	case 0xCC:
		r := inst.deliverSoftwareInt(3)
		return &r, nil
	case 0xCD:
		return inst.execIntN(p)
	case 0xCE: // INTO
		if inst.Regs.Flags.Test(0x0800) {
			r := inst.deliverSoftwareInt(4)
			return &r, nil
		}
		return nil, nil
	case 0xCF:
		if f := inst.execIRET(); f != nil {
			return nil, f
		}
		return &StepResult{Outcome: Success}, nil
	case 0xD0, 0xD1, 0xD2, 0xD3:
		width := 8
		if b == 0xD1 || b == 0xD3 {
			width = p.operandSize
		}
		if f := inst.decodeModRM(p); f != nil {
			return nil, f
		}
		var count uint8 = 1
		if b == 0xD2 || b == 0xD3 {
			count = uint8(inst.readGPR(regIdxCX, 8))
		}
		return nil, inst.execShiftGroup(p, width, count)
	case 0xE2, 0xE1, 0xE0:
		cc := 0
		if b == 0xE1 {
			cc = 1
		} else if b == 0xE0 {
			cc = 2
		}
		return nil, inst.execLoop(p, cc)
	case 0xE3:
		return nil, inst.execJCXZ(p)
	case 0xE4:
		d, f := inst.fetchBytes(p, 1)
		if f != nil {
			return nil, f
		}
		return nil, inst.execIn(p, 8, uint16(d[0]))
	case 0xE5:
		d, f := inst.fetchBytes(p, 1)
		if f != nil {
			return nil, f
		}
		return nil, inst.execIn(p, p.operandSize, uint16(d[0]))
	case 0xE6:
		d, f := inst.fetchBytes(p, 1)
		if f != nil {
			return nil, f
		}
		return nil, inst.execOut(p, 8, uint16(d[0]))
	case 0xE7:
		d, f := inst.fetchBytes(p, 1)
		if f != nil {
			return nil, f
		}
		return nil, inst.execOut(p, p.operandSize, uint16(d[0]))
	case 0xE8:
		return nil, inst.execCallNear(p)
	case 0xE9:
		return nil, inst.execJmpNear(p)
	case 0xEB:
		return nil, inst.execJmpShort(p)
	case 0xEC:
		return nil, inst.execIn(p, 8, uint16(inst.readGPR(regIdxDX, 16)))
	case 0xED:
		return nil, inst.execIn(p, p.operandSize, uint16(inst.readGPR(regIdxDX, 16)))
	case 0xEE:
		return nil, inst.execOut(p, 8, uint16(inst.readGPR(regIdxDX, 16)))
	case 0xEF:
		return nil, inst.execOut(p, p.operandSize, uint16(inst.readGPR(regIdxDX, 16)))
	case 0xF4:
		return nil, inst.execHLT()
	case 0xF5:
		return nil, inst.execCMC()
	case 0xF6, 0xF7:
		return nil, inst.execUnaryGroup(p, b)
	case 0xF8:
		return nil, inst.execFlagBit(register.FlagCF, false)
	case 0xF9:
		return nil, inst.execFlagBit(register.FlagCF, true)
	case 0xFA:
		return nil, inst.execCLI()
	case 0xFB:
		return nil, inst.execSTI()
	case 0xFC:
		return nil, inst.execFlagBit(register.FlagDF, false)
	case 0xFD:
		return nil, inst.execFlagBit(register.FlagDF, true)
	case 0xFE:
		if f := inst.decodeModRM(p); f != nil {
			return nil, f
		}
		return nil, inst.execIncDecGroup(p, 8, p.reg&7 == 1)
	case 0xFF:
		return inst.execGroup5(p)
	case 0x6C, 0x6D:
		width := 8
		if b == 0x6D {
			width = p.operandSize
		}
		return nil, inst.execINS(p, width)
	case 0x6E, 0x6F:
		width := 8
		if b == 0x6F {
			width = p.operandSize
		}
		return nil, inst.execOUTS(p, width)
	}

	return nil, &trap.Fault{Kind: trap.KindUndefined, Opcode: b}
}

// execMoffs handles 0xA0-0xA3: MOV AL/eAX, moffs and the reverse, the
// direct-addressed forms that bypass ModRM entirely.
func (inst *Instance) execMoffs(p *parser, opcode byte) *trap.Fault {
	aw := inst.addrWidth(p)
	d, f := inst.fetchBytes(p, aw/8)
	if f != nil {
		return f
	}
	var off uint64
	if aw == 16 {
		off = uint64(le16(d))
	} else if aw == 32 {
		off = uint64(le32(d))
	} else {
		off = le64(d)
	}
	seg := register.DS
	if p.segOverride >= 0 {
		seg = p.segOverride
	}
	width := 8
	if opcode == 0xA1 || opcode == 0xA3 {
		width = p.operandSize
	}
	if opcode == 0xA0 || opcode == 0xA1 {
		v, f := inst.readMem(seg, off, width/8)
		if f != nil {
			return f
		}
		inst.writeGPR(regIdxAX, width, v)
		return nil
	}
	return inst.writeMem(seg, off, width/8, inst.readGPR(regIdxAX, width))
}

// execGroup5 handles 0xFF: INC/DEC/CALL/JMP/PUSH r/m, selected by
// ModRM.reg.
func (inst *Instance) execGroup5(p *parser) (*StepResult, *trap.Fault) {
	width := p.operandSize
	if f := inst.decodeModRM(p); f != nil {
		return nil, f
	}
	switch p.reg & 7 {
	case 0:
		return nil, inst.execIncDecGroup(p, width, false)
	case 1:
		return nil, inst.execIncDecGroup(p, width, true)
	case 2: // CALL r/m (near, indirect)
		target, f := inst.readRM(p, width)
		if f != nil {
			return nil, f
		}
		if f := inst.pushN(p.cur); f != nil {
			return nil, f
		}
		p.cur = target
		return nil, nil
	case 3: // CALL m16:16/32 (far, indirect)
		if !p.isMem {
			return nil, &trap.Fault{Kind: trap.KindUndefined, Opcode: p.opcode}
		}
		off, f := inst.readRM(p, width)
		if f != nil {
			return nil, f
		}
		sel, f := inst.readRMSelectorOperand(p, width)
		if f != nil {
			return nil, f
		}
		return nil, inst.execCallFar(p, sel, off)
	case 4: // JMP r/m (near, indirect)
		target, f := inst.readRM(p, width)
		if f != nil {
			return nil, f
		}
		p.cur = target
		return nil, nil
	case 6: // PUSH r/m
		return nil, inst.execPushRM(p, width)
	}
	return nil, &trap.Fault{Kind: trap.KindUndefined, Opcode: p.opcode}
}

// dispatchTwoByte handles the 0x0F-prefixed opcode map: near Jcc,
// group 6, group 7 (SGDT/SIDT/LGDT/LIDT/SMSW/LMSW/INVLPG), LAR/LSL,
// INVD/WBINVD, CLTS, UD2, MOV CR/DR, RDTSC, RSM, and BRKEM.
func (inst *Instance) dispatchTwoByte(p *parser, b2 byte) (*StepResult, *trap.Fault) {
	switch {
	case b2 >= 0x80 && b2 <= 0x8F:
		return nil, inst.execJccNear(p, b2-0x80)
	}
	switch b2 {
	case 0x00: // Group 6: SLDT/STR/LLDT/LTR/VERR/VERW
		return nil, inst.execGroup6(p)
	case 0x01:
		if f := inst.decodeModRM(p); f != nil {
			return nil, f
		}
		switch p.reg & 7 {
		case 0, 1: // SGDT/SIDT
			return nil, inst.execStoreDescriptorTable(p, p.reg&7 == 1)
		case 2, 3: // LGDT/LIDT
			return nil, inst.execLoadDescriptorTable(p, p.reg&7 == 3)
		case 4: // SMSW
			return nil, inst.execSMSW(p)
		case 6: // LMSW
			return nil, inst.execLMSW(p)
		case 7: // INVLPG
			return nil, inst.execINVLPG(p)
		}
		return nil, &trap.Fault{Kind: trap.KindUndefined, Opcode: p.opcode}
	case 0x02: // LAR
		return nil, inst.execLARLSL(p, false)
	case 0x03: // LSL
		return nil, inst.execLARLSL(p, true)
	case 0x08, 0x09: // INVD/WBINVD: no cache is modeled, privilege only
		if inst.Regs.CPL != 0 {
			return nil, trap.NewException(trap.VecGP, 0, true)
		}
		return nil, nil
	case 0x06: // CLTS
		if inst.Regs.CPL != 0 {
			return nil, trap.NewException(trap.VecGP, 0, true)
		}
		inst.Regs.CR[0] &^= 0x8
		return nil, nil
	case 0x0B: // UD2
		return nil, &trap.Fault{Kind: trap.KindUndefined, Opcode: p.opcode}
	case 0x20:
		if f := inst.decodeModRM(p); f != nil {
			return nil, f
		}
		return nil, inst.execMovFromCR(p, p.reg&7)
	case 0x21:
		if f := inst.decodeModRM(p); f != nil {
			return nil, f
		}
		return nil, inst.execMovFromDR(p, p.reg&7)
	case 0x22:
		if f := inst.decodeModRM(p); f != nil {
			return nil, f
		}
		return nil, inst.execMovToCR(p, p.reg&7)
	case 0x23:
		if f := inst.decodeModRM(p); f != nil {
			return nil, f
		}
		return nil, inst.execMovToDR(p, p.reg&7)
	case 0x31: // RDTSC
		inst.writeGPR(regIdxAX, 32, 0)
		inst.writeGPR(regIdxDX, 32, 0)
		return nil, nil
	case 0xAA: // RSM
		if inst.Regs.CPL != 0 {
			return nil, trap.NewException(trap.VecGP, 0, true)
		}
		if f := inst.execRSM(); f != nil {
			return nil, f
		}
		return &StepResult{Outcome: Success}, nil
	case 0xFF: // BRKEM ib (NEC emulation-mode entry; #UD elsewhere)
		return inst.execBRKEM(p)
	}
	return nil, &trap.Fault{Kind: trap.KindUndefined, Opcode: p.opcode}
}
