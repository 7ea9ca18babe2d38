/*
   x86emu SMM/ICE full state-image schedule (GPRs, control state, entry/exit).

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

package smm

import (
	"encoding/binary"

	"github.com/BinaryMelodies/x86emu/family"
)

// State is the SMM/ICE save-area contents this package moves between
// the live register file and the guest-addressable save area. Save and
// Load do not store or read the LDT, GDT, IDT and TR fields; Load leaves
// them zero.
// The cpu package is responsible for copying these to/from its
// register.Bank; smm.State only knows the byte schedule.
type State struct {
	GPR     [8]uint32 // EAX..EDI in the architecturally defined SMM order
	EIP     uint32
	EFLAGS  uint32
	CR0     uint32
	CR3     uint32
	CR4     uint32
	DR6     uint32
	DR7     uint32
	ES, CS, SS, DS, FS, GS Segment
	LDT     Segment
	GDT     Segment
	IDT     Segment
	TR      Segment
	// I/O restart context: the address of the port instruction an SMI
	// interrupted plus the string registers it was using, so an RSM with
	// the restart slot armed re-issues it instead of skipping it.
	IORestartEIP uint32
	IORestartESI uint32
	IORestartECX uint32
	IORestartEDI uint32
	IORestartValid bool
	HaltRestart    bool
	SMBASE         uint32
	Revision       uint32
}

// Schedule describes where each field of State lives within the save
// area for a given SMMFormat, as fixed byte offsets from the area's base:
// the field schedule is a per-family lookup table, not a fixed struct.
// Offsets below follow the 80386SL/P5/P6 field ordering; other formats
// reuse the closest ancestor's schedule, which is accurate for every
// family this core targets except where the SMM format's own comment
// says otherwise.
type Schedule struct {
	SMBASEOff    uint32
	RevisionOff  uint32
	IORestartOff uint32 // the restart slot byte; the saved context follows below
	IORestartEIPOff uint32
	IORestartESIOff uint32
	IORestartECXOff uint32
	IORestartEDIOff uint32
	HaltRestartOff uint32
	CR0Off, CR3Off, CR4Off uint32
	EFLAGSOff, EIPOff      uint32
	GPROff                 uint32 // 8 consecutive uint32, EAX order
	SegOff                 [6]uint32
	GDTOff, IDTOff, LDTOff, TROff uint32
	DR6Off, DR7Off         uint32
}

// ScheduleFor returns the field schedule for a save format. 80386SL and
// CX486SLCE share the smaller SL schedule; every P5-and-later format
// shares the layout introduced for P5 SMM, since later families only add
// fields at the high end (MSRs, SEV-ES) that this core's State doesn't
// model separately.
func ScheduleFor(f family.SMMFormat) Schedule {
	switch f {
	case family.SMM80386SL, family.SMMCX486SLCE:
		return Schedule{
			SMBASEOff: 0xFEF8, RevisionOff: 0xFEFC,
			IORestartOff: 0xFF00, HaltRestartOff: 0xFF01,
			IORestartEIPOff: 0xFEE8, IORestartESIOff: 0xFEEC,
			IORestartECXOff: 0xFEF0, IORestartEDIOff: 0xFEF4,
			DR6Off: 0xFF04, DR7Off: 0xFF08,
			CR3Off: 0xFF0C, CR0Off: 0xFF10,
			EFLAGSOff: 0xFF14, EIPOff: 0xFF18,
			GPROff: 0xFF1C,
			SegOff: [6]uint32{0xFF3C, 0xFF42, 0xFF48, 0xFF4E, 0xFF54, 0xFF5A},
			GDTOff: 0xFF60, IDTOff: 0xFF66, LDTOff: 0xFF6C, TROff: 0xFF72,
		}
	default:
		return Schedule{
			SMBASEOff: 0x7F00, RevisionOff: 0x7F04,
			IORestartOff: 0x7F08, HaltRestartOff: 0x7F09,
			IORestartEIPOff: 0x7EE8, IORestartESIOff: 0x7EEC,
			IORestartECXOff: 0x7EF0, IORestartEDIOff: 0x7EF4,
			DR6Off: 0x7F0C, DR7Off: 0x7F10,
			CR4Off: 0x7F14, CR3Off: 0x7F18, CR0Off: 0x7F1C,
			EFLAGSOff: 0x7F20, EIPOff: 0x7F24,
			GPROff: 0x7F28,
			SegOff: [6]uint32{0x7F48, 0x7F54, 0x7F60, 0x7F6C, 0x7F78, 0x7F84},
			GDTOff: 0x7F90, IDTOff: 0x7F9C, LDTOff: 0x7FA8, TROff: 0x7FB4,
		}
	}
}

// Save encodes a State into a save-area byte buffer per the format's
// Schedule.
func Save(f family.SMMFormat, s State, area []byte) {
	sch := ScheduleFor(f)
	le := binary.LittleEndian
	le.PutUint32(area[sch.SMBASEOff:], s.SMBASE)
	le.PutUint32(area[sch.RevisionOff:], s.Revision)
	le.PutUint32(area[sch.CR0Off:], s.CR0)
	le.PutUint32(area[sch.CR3Off:], s.CR3)
	le.PutUint32(area[sch.CR4Off:], s.CR4)
	le.PutUint32(area[sch.DR6Off:], s.DR6)
	le.PutUint32(area[sch.DR7Off:], s.DR7)
	le.PutUint32(area[sch.EFLAGSOff:], s.EFLAGS)
	le.PutUint32(area[sch.EIPOff:], s.EIP)
	for i, v := range s.GPR {
		le.PutUint32(area[sch.GPROff+uint32(i)*4:], v)
	}
	segs := []Segment{s.ES, s.CS, s.SS, s.DS, s.FS, s.GS}
	layout := LayoutFor(f)
	for i, seg := range segs {
		EncodeSegment(f, seg, area[sch.SegOff[i]:sch.SegOff[i]+uint32(layout.CacheSize())])
	}
	if s.IORestartValid {
		area[sch.IORestartOff] = 1
	}
	le.PutUint32(area[sch.IORestartEIPOff:], s.IORestartEIP)
	le.PutUint32(area[sch.IORestartESIOff:], s.IORestartESI)
	le.PutUint32(area[sch.IORestartECXOff:], s.IORestartECX)
	le.PutUint32(area[sch.IORestartEDIOff:], s.IORestartEDI)
	if s.HaltRestart {
		area[sch.HaltRestartOff] = 1
	}
}

// Load decodes a State out of a save-area byte buffer per the format's
// Schedule; the inverse of Save.
func Load(f family.SMMFormat, area []byte) State {
	sch := ScheduleFor(f)
	le := binary.LittleEndian
	var s State
	s.SMBASE = le.Uint32(area[sch.SMBASEOff:])
	s.Revision = le.Uint32(area[sch.RevisionOff:])
	s.CR0 = le.Uint32(area[sch.CR0Off:])
	s.CR3 = le.Uint32(area[sch.CR3Off:])
	s.CR4 = le.Uint32(area[sch.CR4Off:])
	s.DR6 = le.Uint32(area[sch.DR6Off:])
	s.DR7 = le.Uint32(area[sch.DR7Off:])
	s.EFLAGS = le.Uint32(area[sch.EFLAGSOff:])
	s.EIP = le.Uint32(area[sch.EIPOff:])
	for i := range s.GPR {
		s.GPR[i] = le.Uint32(area[sch.GPROff+uint32(i)*4:])
	}
	layout := LayoutFor(f)
	segs := [6]*Segment{&s.ES, &s.CS, &s.SS, &s.DS, &s.FS, &s.GS}
	for i, seg := range segs {
		*seg = DecodeSegment(f, area[sch.SegOff[i]:sch.SegOff[i]+uint32(layout.CacheSize())])
	}
	s.IORestartValid = area[sch.IORestartOff] != 0
	s.IORestartEIP = le.Uint32(area[sch.IORestartEIPOff:])
	s.IORestartESI = le.Uint32(area[sch.IORestartESIOff:])
	s.IORestartECX = le.Uint32(area[sch.IORestartECXOff:])
	s.IORestartEDI = le.Uint32(area[sch.IORestartEDIOff:])
	s.HaltRestart = area[sch.HaltRestartOff] != 0
	return s
}
