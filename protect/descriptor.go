/*
   x86emu descriptor table parsing: 8-byte legacy and 16-byte long-mode forms.

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

// Package protect implements descriptor parsing, selector load privilege
// checks, gate traversal (call/interrupt/trap/task), task switching, and
// the limit/canonical checks a selector load performs before
// register.Segment is populated.
//
// Descriptor, gate, and task validation all live on one dispatch surface
// keyed off the descriptor type field, which is why DescriptorType below
// carries both the legacy and long-mode type spaces in a single enum
// instead of two.
package protect

import (
	"github.com/BinaryMelodies/x86emu/family"
	"github.com/BinaryMelodies/x86emu/register"
	"github.com/BinaryMelodies/x86emu/trap"
)

// DescriptorType is the raw 4-bit (or 5-bit in IA-32e system space) type
// field of a descriptor.
type DescriptorType uint8

// System descriptor types (S bit clear), shared between legacy and
// long-mode tables except where noted.
const (
	TypeTSS16Avail    DescriptorType = 0x1
	TypeLDT           DescriptorType = 0x2
	TypeTSS16Busy     DescriptorType = 0x3
	TypeCallGate16    DescriptorType = 0x4
	TypeTaskGate      DescriptorType = 0x5
	TypeInterruptGate16 DescriptorType = 0x6
	TypeTrapGate16    DescriptorType = 0x7
	TypeTSS32Avail    DescriptorType = 0x9
	TypeTSS32Busy     DescriptorType = 0xB
	TypeCallGate32    DescriptorType = 0xC
	TypeInterruptGate32 DescriptorType = 0xE
	TypeTrapGate32    DescriptorType = 0xF
	// Long-mode system types reuse 0x9/0xB (TSS) and 0xC/0xE/0xF (gates)
	// but read a 16-byte descriptor; TypeTSS64Avail etc. are aliases kept
	// distinct for readability at call sites.
	TypeTSS64Avail      DescriptorType = 0x9
	TypeTSS64Busy       DescriptorType = 0xB
	TypeCallGate64      DescriptorType = 0xC
	TypeInterruptGate64 DescriptorType = 0xE
	TypeTrapGate64      DescriptorType = 0xF
)

// Descriptor is the decoded form of a GDT/LDT/IDT entry, legacy or
// long-mode. Segment-shaped (S=1) and system-shaped (S=0) descriptors
// share one struct; callers check IsSystem before reading Type.
type Descriptor struct {
	Base     uint64
	Limit    uint32
	Type     DescriptorType
	IsSystem bool // S bit clear: system/gate descriptor
	IsCode   bool
	DPL      uint8
	Present  bool
	Avail    bool // AVL bit
	Long     bool // L bit (64-bit code segment)
	Default32 bool // D/B bit
	Granular bool // G bit
	Conforming bool
	Readable  bool // code: readable: data: writable
	ExpandDown bool
	Accessed  bool
}

// ParseLegacy decodes an 8-byte legacy descriptor as found in a 32-bit or
// earlier GDT/LDT/IDT.
func ParseLegacy(raw []byte) Descriptor {
	limitLow := uint32(raw[0]) | uint32(raw[1])<<8
	baseLow := uint32(raw[2]) | uint32(raw[3])<<8 | uint32(raw[4])<<16
	access := raw[5]
	limitHighFlags := raw[6]
	baseHigh := raw[7]

	limit := limitLow | uint32(limitHighFlags&0xF)<<16
	base := uint64(baseLow) | uint64(baseHigh)<<24

	d := Descriptor{
		Base:       base,
		Limit:      limit,
		DPL:        (access >> 5) & 0x3,
		Present:    access&0x80 != 0,
		IsSystem:   access&0x10 == 0,
		Granular:   limitHighFlags&0x80 != 0,
		Default32:  limitHighFlags&0x40 != 0,
		Long:       limitHighFlags&0x20 != 0,
		Avail:      limitHighFlags&0x10 != 0,
		Accessed:   access&0x01 != 0,
	}
	typeField := access & 0xF
	d.Type = DescriptorType(typeField)
	if !d.IsSystem {
		d.IsCode = typeField&0x8 != 0
		if d.IsCode {
			d.Conforming = typeField&0x4 != 0
			d.Readable = typeField&0x2 != 0
		} else {
			d.ExpandDown = typeField&0x4 != 0
			d.Readable = typeField&0x2 != 0 // data: the writable bit
		}
	}
	return d
}

// ParseLong decodes a 16-byte long-mode system descriptor (TSS64 or
// call/interrupt/trap gate): the low 8 bytes match the legacy layout, the
// high 8 bytes extend Base to 64 bits.
func ParseLong(raw []byte) Descriptor {
	d := ParseLegacy(raw[:8])
	baseUpper := uint64(raw[8]) | uint64(raw[9])<<8 | uint64(raw[10])<<16 | uint64(raw[11])<<24 |
		uint64(raw[12])<<32 | uint64(raw[13])<<40 | uint64(raw[14])<<48 | uint64(raw[15])<<56
	d.Base |= baseUpper << 32
	return d
}

// descriptorSize returns 16 for long-mode system descriptors (TSS/gates
// read through an IA-32e GDT/IDT), 8 otherwise.
func descriptorSize(long bool, isSystem bool) int {
	if long && isSystem {
		return 16
	}
	return 8
}

// Fetch reads and parses the descriptor at index*size within a table
// whose base/limit is given (from GDTR, LDTR, or IDTR), raising #GP (or
// #NP for IDT index range, per caller's vector) if the index lies beyond
// the table limit.
func Fetch(bus interface {
	MemoryRead(addr uint64, buf []byte) error
}, tableBase uint64, tableLimit uint32, selIndex uint16, long bool, errVector uint8) (Descriptor, *trap.Fault) {
	offset := uint32(selIndex) * 8
	if offset+7 > tableLimit {
		return Descriptor{}, trap.NewException(errVector, uint64(selIndex)&0xFFF8, true)
	}
	raw := make([]byte, 8)
	if err := bus.MemoryRead(tableBase+uint64(offset), raw); err != nil {
		return Descriptor{}, trap.NewException(errVector, uint64(selIndex)&0xFFF8, true)
	}
	d := ParseLegacy(raw)
	if long && d.IsSystem {
		raw16 := make([]byte, 16)
		if err := bus.MemoryRead(tableBase+uint64(offset), raw16); err != nil {
			return Descriptor{}, trap.NewException(errVector, uint64(selIndex)&0xFFF8, true)
		}
		d = ParseLong(raw16)
	}
	return d, nil
}

// ToSegment converts a parsed Descriptor plus its originating selector
// into the register.Segment the core's Bank stores, applying the access-
// word encoding register.Segment expects.
func ToSegment(d Descriptor, selector uint16) register.Segment {
	var access uint32
	if d.Present {
		access |= register.AccessPresent
	}
	access |= uint32(d.DPL) << register.AccessDPLShift
	if !d.IsSystem {
		access |= register.AccessSystem
	}
	if d.IsCode {
		access |= register.AccessExecutable
		if d.Conforming {
			access |= register.AccessConforming
		}
		if d.Readable {
			access |= register.AccessWritable
		}
	} else {
		if d.ExpandDown {
			access |= register.AccessConforming // reuses the bit per register.Segment's own convention
		}
		if d.Readable {
			access |= register.AccessWritable
		}
	}
	if d.Granular {
		access |= register.AccessGranular
	}
	if d.Default32 {
		access |= register.AccessDefault32
	}
	if d.Long {
		access |= register.AccessLong
	}
	if d.Accessed {
		access |= register.AccessAccessed
	}
	return register.Segment{
		Selector: selector,
		Base:     d.Base,
		Limit:    d.Limit,
		Access:   access,
	}
}

// defaultAddrWidth picks the descriptor form (8 vs 16 byte) default for a
// family, used when the caller hasn't already negotiated long mode.
func defaultAddrWidth(caps *family.Capabilities) bool {
	return caps.Has(family.CapLM)
}

// GateFields is the subset of a gate descriptor's layout that differs
// from a segment descriptor's: a gate packs a selector and split offset
// where a segment descriptor packs a base and limit, so it needs its own
// decode instead of reusing ParseLegacy's field placement.
type GateFields struct {
	Selector   uint16
	Offset     uint64
	Type       DescriptorType
	DPL        uint8
	Present    bool
	ParamCount uint8
}

// ParseGateLegacy decodes an 8-byte call/interrupt/trap/task gate.
func ParseGateLegacy(raw []byte) GateFields {
	offsetLow := uint16(raw[0]) | uint16(raw[1])<<8
	selector := uint16(raw[2]) | uint16(raw[3])<<8
	paramCount := raw[4] & 0x1F
	access := raw[5]
	offsetHigh := uint16(raw[6]) | uint16(raw[7])<<8
	return GateFields{
		Selector:   selector,
		Offset:     uint64(offsetLow) | uint64(offsetHigh)<<16,
		Type:       DescriptorType(access & 0xF),
		DPL:        (access >> 5) & 0x3,
		Present:    access&0x80 != 0,
		ParamCount: paramCount,
	}
}

// ParseGateLong extends ParseGateLegacy with the upper 32 offset bits a
// 16-byte IA-32e gate carries in its second quadword.
func ParseGateLong(raw []byte) GateFields {
	g := ParseGateLegacy(raw[:8])
	upper := uint64(raw[8]) | uint64(raw[9])<<8 | uint64(raw[10])<<16 | uint64(raw[11])<<24 |
		uint64(raw[12])<<32 | uint64(raw[13])<<40 | uint64(raw[14])<<48 | uint64(raw[15])<<56
	g.Offset |= upper << 32
	return g
}

// FetchRaw reads the raw descriptor bytes at index within a table,
// returning 16 bytes when long is true and the slot is a system
// descriptor, 8 bytes otherwise. Used by gate traversal, which needs the
// gate field layout rather than the segment field layout Fetch assumes.
func FetchRaw(bus interface {
	MemoryRead(addr uint64, buf []byte) error
}, tableBase uint64, tableLimit uint32, index uint16, long bool, errVector uint8) ([]byte, *trap.Fault) {
	offset := uint32(index) * 8
	if offset+7 > tableLimit {
		return nil, trap.NewException(errVector, uint64(index)&0xFFF8, true)
	}
	raw := make([]byte, 8)
	if err := bus.MemoryRead(tableBase+uint64(offset), raw); err != nil {
		return nil, trap.NewException(errVector, uint64(index)&0xFFF8, true)
	}
	if long && raw[5]&0x10 == 0 {
		raw16 := make([]byte, 16)
		if err := bus.MemoryRead(tableBase+uint64(offset), raw16); err != nil {
			return nil, trap.NewException(errVector, uint64(index)&0xFFF8, true)
		}
		return raw16, nil
	}
	return raw, nil
}
