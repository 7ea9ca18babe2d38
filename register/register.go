/*
   x86emu register file.

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

// Package register holds the typed GPR, segment, and flag state a guest
// instruction touches, and the accessors the decoder/executor use to read
// and write it. None of this package decides when to fault; callers in
// protect and trap do that.
package register

// Segment register indices: ES, CS, SS, DS, FS, GS, plus the V55-extended
// DS2/DS3, plus GDTR/IDTR/LDTR/TR, plus the FPU data pseudo-segment FDS.
const (
	ES = iota
	CS
	SS
	DS
	FS
	GS
	DS2
	DS3
	GDTR
	IDTR
	LDTR
	TR
	FDS
	NumSegments
)

// Segment is one entry of the segment-register table.
type Segment struct {
	Selector uint16
	Base     uint64
	Limit    uint32
	Access   uint32 // type/DPL/present/etc, raw access-word bits
}

// Access-word bit layout, shared by the 8- and 16-byte descriptor encodings.
const (
	AccessAccessed  uint32 = 1 << 0
	AccessWritable  uint32 = 1 << 1 // data segment only
	AccessReadable  uint32 = 1 << 1 // code segment only (bit is reused)
	AccessConforming uint32 = 1 << 2
	AccessExecutable uint32 = 1 << 3
	AccessSystem     uint32 = 1 << 4 // 0 = system descriptor, 1 = code/data
	AccessDPLShift   uint32 = 5
	AccessDPLMask    uint32 = 3 << AccessDPLShift
	AccessPresent    uint32 = 1 << 7
	AccessAvailable  uint32 = 1 << 12
	AccessLong       uint32 = 1 << 13 // CS.L
	AccessDefault32  uint32 = 1 << 14 // CS.D / SS.B
	AccessGranular   uint32 = 1 << 15 // G: limit scaled by 4KiB
)

// DPL returns the descriptor privilege level encoded in Access.
func (s *Segment) DPL() uint8 {
	return uint8((s.Access & AccessDPLMask) >> AccessDPLShift)
}

// SetDPL rewrites the DPL field of Access.
func (s *Segment) SetDPL(dpl uint8) {
	s.Access = (s.Access &^ AccessDPLMask) | (uint32(dpl&3) << AccessDPLShift)
}

// Present reports the segment-present bit.
func (s *Segment) Present() bool { return s.Access&AccessPresent != 0 }

// IsCode reports whether this is a code segment (system=1, executable=1).
func (s *Segment) IsCode() bool {
	return s.Access&AccessSystem != 0 && s.Access&AccessExecutable != 0
}

// IsData reports whether this is a data segment (system=1, executable=0).
func (s *Segment) IsData() bool {
	return s.Access&AccessSystem != 0 && s.Access&AccessExecutable == 0
}

// IsConforming reports the conforming bit (code segments only).
func (s *Segment) IsConforming() bool {
	return s.IsCode() && s.Access&AccessConforming != 0
}

// IsExpandDown reports the expand-down bit (data segments only; same bit
// position as AccessConforming).
func (s *Segment) IsExpandDown() bool {
	return s.IsData() && s.Access&AccessConforming != 0
}

// IsWritable reports whether a data segment's writable bit is set; it is
// false for every code segment (see IsReadable).
func (s *Segment) IsWritable() bool {
	return s.IsData() && s.Access&AccessWritable != 0
}

// IsReadable reports the readable bit on a code segment.
func (s *Segment) IsReadable() bool {
	return s.IsCode() && s.Access&AccessReadable != 0
}

// Flag bit positions, raw (decomposed) form. Matches the canonical x86
// EFLAGS layout; families that don't implement a bit simply never set it.
const (
	FlagCF   uint64 = 1 << 0
	FlagPF   uint64 = 1 << 2
	FlagAF   uint64 = 1 << 4
	FlagZF   uint64 = 1 << 6
	FlagSF   uint64 = 1 << 7
	FlagTF   uint64 = 1 << 8
	FlagIF   uint64 = 1 << 9
	FlagDF   uint64 = 1 << 10
	FlagOF   uint64 = 1 << 11
	FlagIOPLShift = 12
	FlagIOPLMask uint64 = 3 << FlagIOPLShift
	FlagNT   uint64 = 1 << 14
	FlagRF   uint64 = 1 << 16
	FlagVM   uint64 = 1 << 17
	FlagAC   uint64 = 1 << 18
	FlagVIF  uint64 = 1 << 19
	FlagVIP  uint64 = 1 << 20
	FlagID   uint64 = 1 << 21
	// Vendor-specific, NEC/V-series bits layered outside the canonical
	// 32-bit field. MD is the 8080/Z80 emulation-mode toggle.
	FlagMD   uint64 = 1 << 32
	FlagF0   uint64 = 1 << 33 // NEC F0 "mode" flag
	FlagF1   uint64 = 1 << 34 // NEC F1 "mode" flag
	FlagIBRKShift = 35
	FlagIBRKMask uint64 = 0xF << FlagIBRKShift // in-circuit breakpoint enables
	FlagRBShift  = 39
	FlagRBMask   uint64 = 0xF << FlagRBShift // V25/V55 register-bank select (4 bits)
)

// Flags holds the raw, decomposed condition/control flags. The "image"
// form PUSHF/POPF/IRET see is derived from this by Flags.FlagsImage16/32/64, never
// stored separately.
type Flags struct {
	raw uint64
}

// Raw returns the full raw flag word, vendor bits included.
func (f *Flags) Raw() uint64 { return f.raw }

// SetRaw replaces the full raw flag word.
func (f *Flags) SetRaw(v uint64) { f.raw = v }

// Test reports whether every bit in mask is set.
func (f *Flags) Test(mask uint64) bool { return f.raw&mask == mask }

// Set sets or clears every bit in mask according to v.
func (f *Flags) Set(mask uint64, v bool) {
	if v {
		f.raw |= mask
	} else {
		f.raw &^= mask
	}
}

// IOPL returns the 2-bit I/O privilege level field.
func (f *Flags) IOPL() uint8 { return uint8((f.raw & FlagIOPLMask) >> FlagIOPLShift) }

// SetIOPL rewrites the IOPL field.
func (f *Flags) SetIOPL(v uint8) {
	f.raw = (f.raw &^ FlagIOPLMask) | (uint64(v&3) << FlagIOPLShift)
}

// RB returns the V25/V55 register-bank-select field.
func (f *Flags) RB() uint8 { return uint8((f.raw & FlagRBMask) >> FlagRBShift) }

// SetRB rewrites the register-bank-select field.
func (f *Flags) SetRB(v uint8) {
	f.raw = (f.raw &^ FlagRBMask) | (uint64(v&0xF) << FlagRBShift)
}

// Bank is the complete register file for one CPU instance: general
// registers, segment table, flags, control/debug/test registers, MSRs,
// and the V25/V55 alternate banks.
type Bank struct {
	GPR [32]uint64 // first 8 are the legacy AX/CX/DX/BX/SP/BP/SI/DI aliases

	Seg [NumSegments]Segment
	CPL uint8

	Flags Flags

	CR  [9]uint64 // CR0..CR8
	DR  [8]uint64 // DR0..DR7
	TR3 [5]uint64 // TR3..TR7 at indices 0..4
	XCR0 uint64
	EFER uint64

	MSRTSC        uint64
	MSRSysenterCS uint64
	MSRSysenterESP uint64
	MSRSysenterEIP uint64
	MSRSTAR       uint64
	MSRLSTAR      uint64
	MSRCSTAR      uint64
	MSRFMASK      uint64
	MSRFSBase     uint64
	MSRGSBase     uint64
	MSRKernelGSBase uint64
	MSRBNDCFGS    uint64

	// V25/V25S/V55 register banks: a small table of saved GPR-halves and
	// segment selectors, indexed by the RB field. Bank 0 is the "live"
	// bank mirrored into GPR/Seg above.
	AltBanks [16]AltBank

	// REXActive controls the byte-accessor aliasing rule.
	REXActive bool
}

// AltBank is one V25/V25S/V55 register-bank slot.
type AltBank struct {
	GPR [8]uint16 // AX..DI halves only: V25 banks are 16-bit machines
	DS  uint16
	SS  uint16
}

// NewBank returns a zeroed register file. Guest-visible defaults are
// applied by the higher-level Reset sequence (cpu package), not here,
// since they differ by family.
func NewBank() *Bank {
	return &Bank{}
}

// GetByte implements the REX-aliasing rule: without REX, indices 4..7
// select the HIGH byte of AX..BX; with REX, indices 4..7 select the LOW
// byte of SP/BP/SI/DI.
func (b *Bank) GetByte(index uint8) uint8 {
	if !b.REXActive && index >= 4 && index < 8 {
		return uint8(b.GPR[index-4] >> 8)
	}
	return uint8(b.GPR[index&0x1F])
}

// SetByte is the corresponding write half of GetByte.
func (b *Bank) SetByte(index uint8, v uint8) {
	if !b.REXActive && index >= 4 && index < 8 {
		reg := index - 4
		b.GPR[reg] = (b.GPR[reg] &^ 0xFF00) | uint64(v)<<8
		return
	}
	idx := index & 0x1F
	b.GPR[idx] = (b.GPR[idx] &^ 0xFF) | uint64(v)
}

// GetWord returns the low 16 bits of a GPR.
func (b *Bank) GetWord(index uint8) uint16 {
	return uint16(b.GPR[index&0x1F])
}

// SetWord sets the low 16 bits of a GPR, leaving the rest untouched.
func (b *Bank) SetWord(index uint8, v uint16) {
	idx := index & 0x1F
	b.GPR[idx] = (b.GPR[idx] &^ 0xFFFF) | uint64(v)
}

// GetDword returns the low 32 bits of a GPR.
func (b *Bank) GetDword(index uint8) uint32 {
	return uint32(b.GPR[index&0x1F])
}

// SetDword sets a GPR to v. A 32-bit write zero-extends to the full 64-bit
// register.
func (b *Bank) SetDword(index uint8, v uint32) {
	b.GPR[index&0x1F] = uint64(v)
}

// GetQword returns the full 64-bit GPR.
func (b *Bank) GetQword(index uint8) uint64 {
	return b.GPR[index&0x1F]
}

// SetQword sets the full 64-bit GPR.
func (b *Bank) SetQword(index uint8, v uint64) {
	b.GPR[index&0x1F] = v
}

// SegmentLoadRealMode implements the real-mode load: base = selector<<4 (or <<8
// for V55 DS2/DS3), limit = 0xFFFF, CS access-word forced readable/writable.
func (b *Bank) SegmentLoadRealMode(seg int, selector uint16, isV55Extended bool) {
	shift := uint64(4)
	if isV55Extended && (seg == DS2 || seg == DS3) {
		shift = 8
	}
	s := &b.Seg[seg]
	s.Selector = selector
	s.Base = uint64(selector) << shift
	s.Limit = 0xFFFF
	if seg == CS {
		s.Access = AccessSystem | AccessExecutable | AccessReadable | AccessPresent
	}
}

// SegmentLoadRealModeFull additionally forces limit/access to real-mode
// defaults, used when returning to V8086 mode.
func (b *Bank) SegmentLoadRealModeFull(seg int, selector uint16) {
	s := &b.Seg[seg]
	s.Selector = selector
	s.Base = uint64(selector) << 4
	s.Limit = 0xFFFF
	s.Access = AccessSystem | AccessPresent | AccessWritable
	if seg == CS {
		s.Access = AccessSystem | AccessExecutable | AccessReadable | AccessPresent
	}
}

// StoreRegisterBank flushes the current register bank (GPR halves and
// segment selectors) into AltBanks[rb]. A V25/V55 RB switch must flush the
// current bank before RB is updated and the new bank loaded back.
func (b *Bank) StoreRegisterBank(rb uint8) {
	bank := &b.AltBanks[rb&0xF]
	for i := 0; i < 8; i++ {
		bank.GPR[i] = b.GetWord(uint8(i))
	}
	bank.DS = b.Seg[DS].Selector
	bank.SS = b.Seg[SS].Selector
}

// LoadRegisterBank is the matching load half of a RB switch.
func (b *Bank) LoadRegisterBank(rb uint8) {
	bank := &b.AltBanks[rb&0xF]
	for i := 0; i < 8; i++ {
		b.SetWord(uint8(i), bank.GPR[i])
	}
	b.SegmentLoadRealMode(DS, bank.DS, false)
	b.SegmentLoadRealMode(SS, bank.SS, false)
}

// SwitchRegisterBank performs the full V25/V55 RB structural switch:
// flush current bank, update RB, load the new bank.
func (b *Bank) SwitchRegisterBank(newRB uint8) {
	oldRB := b.Flags.RB()
	b.StoreRegisterBank(oldRB)
	b.Flags.SetRB(newRB)
	b.LoadRegisterBank(newRB)
}
