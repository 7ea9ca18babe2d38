/*
   x86emu prefix loop and ModRM/SIB effective-address computation.

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

// decode.go implements the prefix loop, size selection, and ModRM/SIB
// decode: the per-step parser state block plus the effective-address
// table keyed on
// (mod, rm, address_size).
package cpu

import (
	"github.com/BinaryMelodies/x86emu/family"
	"github.com/BinaryMelodies/x86emu/memio"
	"github.com/BinaryMelodies/x86emu/register"
	"github.com/BinaryMelodies/x86emu/trap"
)

// Legacy GPR index aliases, following register.Bank's convention that the
// first 8 GPR slots are AX/CX/DX/BX/SP/BP/SI/DI.
const (
	regIdxAX = 0
	regIdxCX = 1
	regIdxDX = 2
	regIdxBX = 3
	regIdxSP = 4
	regIdxBP = 5
	regIdxSI = 6
	regIdxDI = 7
	regIdxIP = 16 // xIP is stored in the otherwise-unused GPR slot 16
)

// parser is the per-step decode state block: prefix flags, resolved
// operand/address size, and the ModRM/SIB decode outputs. It is
// re-initialized at the start of every Step.9's "Every
// step starts with..." rule.
type parser struct {
	segOverride  int // -1 = none
	rexPresent   bool
	rexW, rexR, rexX, rexB bool
	opSize16Code bool // true if the code segment defaults to 16-bit
	operandSize  int  // 16, 32, or 64
	addressSize  int  // 16, 32, or 64
	lock         bool
	repPrefix    byte // 0, 0xF2, or 0xF3

	xip uint64 // instruction-start xIP, for fault rollback and fcs:fip bookkeeping
	cur uint64 // running fetch cursor (linear offset within CS)

	opcode   byte
	opcodeMap int // 0 = one-byte, 1 = 0x0F, 2 = 0x0F38, 3 = 0x0F3A

	haveModRM bool
	mod, reg, rm uint8
	// Resolved effective address for a memory operand (rm != 3 / SIB path);
	// isMem is false when ModRM selects a register operand.
	isMem   bool
	eaSeg   int
	eaOff   uint64
}

// newParser resets decode state at the top of a step.9:
// "clear override-segment, set destination-segment=ES, set source-
// segment=DS" (the destination/source convention only matters for string
// ops; everything else uses eaSeg directly).
func newParser(defaultOpSize16 bool) *parser {
	p := &parser{segOverride: -1, opSize16Code: defaultOpSize16}
	if defaultOpSize16 {
		p.operandSize, p.addressSize = 16, 16
	} else {
		p.operandSize, p.addressSize = 32, 32
	}
	return p
}

// fetchByte reads the next instruction byte through the prefetch queue,
// falling back to a direct (non-speculative) read on a queue miss, and
// advances the cursor. A fault here is the real, non-speculative kind:
// only faults encountered by the queue's background Fill are swallowed,
// never ones hit by the decoder actually consuming a byte.
func (inst *Instance) fetchByte(p *parser) (byte, *trap.Fault) {
	linear, f := inst.Mem.ToLinear(&inst.Regs.Seg[register.CS], register.CS, p.cur, false)
	if f != nil {
		return 0, f
	}
	if b, ok := inst.Prefetch.Consume(linear); ok {
		p.cur++
		return b, nil
	}
	buf := make([]byte, 1)
	if err := inst.bus.MemoryRead(inst.accessSpace(), linear, buf); err != nil {
		return 0, trap.NewException(trap.VecPF, memoryAccessErrorCode(false, true), true)
	}
	p.cur++
	return buf[0], nil
}

// fetchBytes reads n consecutive instruction bytes (immediates,
// displacements) via repeated fetchByte calls.
func (inst *Instance) fetchBytes(p *parser, n int) ([]byte, *trap.Fault) {
	out := make([]byte, n)
	for i := 0; i < n; i++ {
		b, f := inst.fetchByte(p)
		if f != nil {
			return nil, f
		}
		out[i] = b
	}
	return out, nil
}

func le16(b []byte) uint16 { return uint16(b[0]) | uint16(b[1])<<8 }
func le32(b []byte) uint32 {
	return uint32(b[0]) | uint32(b[1])<<8 | uint32(b[2])<<16 | uint32(b[3])<<24
}
func le64(b []byte) uint64 {
	var v uint64
	for i := 7; i >= 0; i-- {
		v = v<<8 | uint64(b[i])
	}
	return v
}

// accessSpace picks the host memory space for the current privilege mode,
//: "space ∈ {user, supervisor, SMM, ICE} — determined by
// the current privilege/mode, not by the guest instruction."
func (inst *Instance) accessSpace() memio.Space {
	if inst.Regs.CPL == 0 {
		return memio.SpaceSupervisor
	}
	return memio.SpaceUser
}

func memoryAccessErrorCode(write, instruction bool) uint64 {
	var code uint64
	if write {
		code |= memio.PFWrite
	}
	if instruction {
		code |= memio.PFInstruction
	}
	return code
}

// parsePrefixes consumes the legacy-prefix / REX / segment-override bytes
// at the front of an instruction.9: "REX, VEX, EVEX, 0x66,
// 0x67, 0xF0, 0xF2, 0xF3 and NEC-specific segment overrides each toggle
// parser state. VEX/EVEX themselves are decoded far enough to skip their
// bytes, so a guest that issues one reliably gets #UD rather than a
// misdecode.
func (inst *Instance) parsePrefixes(p *parser) (byte, *trap.Fault) {
	for {
		b, f := inst.fetchByte(p)
		if f != nil {
			return 0, f
		}
		switch b {
		case 0x26:
			p.segOverride = register.ES
		case 0x2E:
			p.segOverride = register.CS
		case 0x36:
			p.segOverride = register.SS
		case 0x3E:
			p.segOverride = register.DS
		case 0x64:
			p.segOverride = register.FS
		case 0x65:
			p.segOverride = register.GS
		case 0x66:
			if p.opSize16Code {
				p.operandSize = 32
			} else {
				p.operandSize = 16
			}
		case 0x67:
			if p.addressSize == 16 {
				p.addressSize = 32
			} else {
				p.addressSize = 16
			}
		case 0xF0:
			p.lock = true
		case 0xF2, 0xF3:
			p.repPrefix = b
		default:
			if inst.long64() && b&0xF0 == 0x40 {
				p.rexPresent = true
				p.rexW = b&0x08 != 0
				p.rexR = b&0x04 != 0
				p.rexX = b&0x02 != 0
				p.rexB = b&0x01 != 0
				inst.Regs.REXActive = true
				continue
			}
			if p.rexW {
				p.operandSize = 64
			}
			return b, nil
		}
	}
}

// long64 reports whether the current code segment is running in 64-bit
// mode (CS.L set while EFER.LMA is active), the only context REX bytes
// are recognized in rather than treated as INC/DEC opcodes.
func (inst *Instance) long64() bool {
	return inst.Caps.Has(family.CapLM) &&
		inst.Regs.EFER&0x400 != 0 && inst.Regs.Seg[register.CS].Access&register.AccessLong != 0
}

// modrm16Bases gives the base-register pair and default segment for each
// 16-bit addressing (mod=0, rm) combination, per the classic 8086 EA table.
var modrm16Bases = [8]struct {
	b1, b2 int // GPR indices, -1 if unused
	seg    int
}{
	{regIdxBX, regIdxSI, register.DS},
	{regIdxBX, regIdxDI, register.DS},
	{regIdxBP, regIdxSI, register.SS},
	{regIdxBP, regIdxDI, register.SS},
	{regIdxSI, -1, register.DS},
	{regIdxDI, -1, register.DS},
	{regIdxBP, -1, register.SS},
	{regIdxBX, -1, register.DS},
}

// decodeModRM reads the ModRM byte (and SIB/displacement if present) and
// resolves the effective address ("ModRM/SIB"): "Outputs:
// numeric address_offset, default segment (SS when the base involves
// BP/EBP/RBP otherwise DS), and the register selected in the REG field
// (extended by REX.R)."
func (inst *Instance) decodeModRM(p *parser) *trap.Fault {
	b, f := inst.fetchByte(p)
	if f != nil {
		return f
	}
	p.haveModRM = true
	p.mod = b >> 6
	p.reg = (b >> 3) & 7
	p.rm = b & 7
	if p.rexR {
		p.reg |= 8
	}

	if p.mod == 3 {
		p.isMem = false
		if p.rexB {
			p.rm |= 8
		}
		return nil
	}
	p.isMem = true

	if p.addressSize == 16 {
		return inst.decodeModRM16(p)
	}
	return inst.decodeModRM32(p)
}

func (inst *Instance) decodeModRM16(p *parser) *trap.Fault {
	defSeg := register.DS
	var off uint64

	if p.mod == 0 && p.rm == 6 {
		d, f := inst.fetchBytes(p, 2)
		if f != nil {
			return f
		}
		off = uint64(le16(d))
	} else {
		base := modrm16Bases[p.rm]
		defSeg = base.seg
		off = uint64(inst.Regs.GetWord(uint8(base.b1)))
		if base.b2 >= 0 {
			off += uint64(inst.Regs.GetWord(uint8(base.b2)))
		}
		switch p.mod {
		case 1:
			d, f := inst.fetchBytes(p, 1)
			if f != nil {
				return f
			}
			off += uint64(int64(int8(d[0])))
		case 2:
			d, f := inst.fetchBytes(p, 2)
			if f != nil {
				return f
			}
			off += uint64(int64(int16(le16(d))))
		}
	}

	off &= 0xFFFF
	p.eaSeg = defSeg
	if p.segOverride >= 0 {
		p.eaSeg = p.segOverride
	}
	p.eaOff = off
	return nil
}

func (inst *Instance) decodeModRM32(p *parser) *trap.Fault {
	defSeg := register.DS
	var off uint64
	rm := p.rm

	if rm == 4 {
		// SIB byte.
		sibBuf, f := inst.fetchBytes(p, 1)
		if f != nil {
			return f
		}
		sib := sibBuf[0]
		scale := uint(sib >> 6)
		index := (sib >> 3) & 7
		base := sib & 7
		if p.rexX {
			index |= 8
		}
		if p.rexB {
			base |= 8
		}
		if index != 4 {
			off += inst.Regs.GetQword(index) << scale
		}
		if base&7 == 5 && p.mod == 0 {
			d, f := inst.fetchBytes(p, 4)
			if f != nil {
				return f
			}
			off += uint64(int64(int32(le32(d))))
		} else {
			off += inst.Regs.GetQword(base)
			if base == regIdxSP || base == regIdxBP {
				defSeg = register.SS
			}
		}
	} else {
		if p.rexB {
			rm |= 8
		}
		if rm&7 == 5 && p.mod == 0 {
			// disp32, IP-relative in 64-bit code, absolute otherwise.
			// The RIP base is approximated as the cursor right after the
			// displacement; a trailing immediate (e.g. MOV r/m64, imm32)
			// would architecturally still need to be added, which this
			// decoder does not attempt — see DESIGN.md.
			d, f := inst.fetchBytes(p, 4)
			if f != nil {
				return f
			}
			disp := uint64(int64(int32(le32(d))))
			if inst.long64() {
				off = p.cur + disp
			} else {
				off = disp & 0xFFFFFFFF
			}
			p.eaSeg = register.DS
			if p.segOverride >= 0 {
				p.eaSeg = p.segOverride
			}
			p.eaOff = off
			return nil
		}
		off = inst.Regs.GetQword(rm)
		if rm == regIdxBP {
			defSeg = register.SS
		}
	}

	switch p.mod {
	case 1:
		d, f := inst.fetchBytes(p, 1)
		if f != nil {
			return f
		}
		off += uint64(int64(int8(d[0])))
	case 2:
		d, f := inst.fetchBytes(p, 4)
		if f != nil {
			return f
		}
		off += uint64(int64(int32(le32(d))))
	}

	if p.operandSize != 64 && !inst.long64() {
		off &= 0xFFFFFFFF
	}
	p.eaSeg = defSeg
	if p.segOverride >= 0 {
		p.eaSeg = p.segOverride
	}
	p.eaOff = off
	return nil
}

