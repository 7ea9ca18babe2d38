/*
   x86emu family capability tables.

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

// Package family centralizes the per-CPU-model capability constants: reset
// vectors, SMM entry points, paging widths, embedded-controller windows and
// the cpuid/capability bit sets. Keeping these in one table, rather than
// sprinkled through the decoder, is what lets the rest of the core dispatch
// on a family value instead of growing switch chains.
package family

// CPUFamily enumerates the members of the x86 lineage this core emulates,
// including the historical relatives and vendor variants.
type CPUFamily int

const (
	Family8086 CPUFamily = iota
	Family186
	FamilyV20
	FamilyV33
	FamilyV60
	FamilyV25
	FamilyV55
	FamilyUPD9002
	Family286
	Family386
	Family486
	Family586
	FamilyP6Plus
	FamilyAMDK5
	FamilyAMDK6
	FamilyAMDK7
	FamilyAMD64
	FamilyCyrix
	FamilyIntel64
	FamilyExtended // superset family used for development/testing
)

// CPUSubtype refines a family, e.g. distinguishing 386-376 from 386-classic
// or the Cyrix MediaGX/GX2/LX/6x86/M2/III variants.
type CPUSubtype int

const (
	SubtypeNone CPUSubtype = iota
	Subtype386_376
	Subtype386Classic
	SubtypeCyrixMediaGX
	SubtypeCyrixGX2
	SubtypeCyrixLX
	SubtypeCyrix6x86
	SubtypeCyrixM2
	SubtypeCyrixIII
)

// FPUType is the co-processor attached to the core, if any.
type FPUType int

const (
	FPUNone FPUType = iota
	FPU8087
	FPU287
	FPU387
	FPUIntegrated486Plus
	FPUIIT3C87
)

// SMMFormat selects the save/restore state-image layout.
type SMMFormat int

const (
	SMMNone SMMFormat = iota
	SMM80386SL
	SMMP5
	SMMP6
	SMMP4
	SMMK5
	SMMK6
	SMMAMD64
	SMMCX486SLCE
	SMM5x86
	SMMM2
	SMMMediaGX
	SMMGX2
)

// PagingShape names the table-walk shape selected by (mode, CR4.PAE,
// EFER.LMA, CR4.VA57).
type PagingShape int

const (
	PagingNone PagingShape = iota
	PagingV33Legacy
	Paging2Level32
	Paging3LevelPAE
	Paging4LevelLong
	Paging5LevelVA57
)

// Capability bits, tested against Capabilities.Flags.
const (
	CapPAE uint64 = 1 << iota
	CapVA57
	CapSEP
	CapNX
	CapLM
	CapMPX
	CapCET
	CapSEVES
	CapAPXF
	CapPSE
	CapVME
	CapX80Emulation // 8080/Z80 submachine present
	CapX80Separate  // x80 runs as its own CPU on its own bus, not in emulation mode
	CapX89          // x89 I/O processor present
	CapCyrixConfigRegs
)

// Capabilities is the immutable, per-instance configuration record of one
// emulated CPU. Every family-specific magic constant used
// elsewhere in the core (reset vectors, SMM bases, controller windows)
// lives here so that family polymorphism is one table lookup, never a
// scattered switch.
type Capabilities struct {
	Family    CPUFamily
	Subtype   CPUSubtype
	FPU       FPUType
	SMM       SMMFormat
	Flags     uint64 // Cap* bits
	AddrWidth uint   // linear address width in bits (20, 24, 32, 36, 64)

	PrefetchQueueSize int // bytes
	MultibyteNOP      bool
	OpcodeTranslation []byte // optional V25-S opcode translation table, len 256 or 0

	// Reset vectors: architecturally defined CS:xIP entry point.
	ResetCS uint16
	ResetIP uint32

	// SMM entry point, relative to the family's save-area base.
	SMMEntryOffset uint32

	// Embedded-controller port/memory windows.
	PCBWindowBase    uint32 // 186 PCB window, 0 if unused
	V33InternalBase  uint32 // V33 internal registers, 0xFF00 typical
	V25IRAMLow       uint32 // V25 IRAM overlay window [low, high)
	V25IRAMHigh      uint32
	CyrixIndexPort   uint16 // 0x22
	CyrixDataPort    uint16 // 0x23
	CyrixAllowConfig bool   // open question 4: subtype allow-list
}

// Has reports whether a capability bit is set.
func (c *Capabilities) Has(bit uint64) bool {
	return c.Flags&bit != 0
}

// DefaultCapabilities returns the default configuration for a family. It
// starts from an 8086-class baseline (20-bit addresses, no FPU, no SMM, a
// 4-byte prefetch queue, reset at 0000:FFF0) and then applies the family's
// own address width, reset vector, prefetch size, FPU, SMM format and
// capability bits.
func DefaultCapabilities(f CPUFamily) Capabilities {
	c := Capabilities{
		Family:            f,
		FPU:               FPUNone,
		SMM:               SMMNone,
		AddrWidth:         20,
		PrefetchQueueSize: 4,
		ResetCS:           0x0000,
		ResetIP:           0xFFF0,
	}

	switch f {
	case Family8086, FamilyV33, FamilyV60:
		c.PrefetchQueueSize = 4
	case FamilyV20, FamilyUPD9002:
		// The two emulation-mode variants: the V20 runs 8080 code, the
		// µPD9002 runs Z80 code, both sharing the x86 GPRs.
		c.PrefetchQueueSize = 4
		c.Flags |= CapX80Emulation
	case Family186:
		c.PrefetchQueueSize = 6
		c.PCBWindowBase = 0xFF00
	case FamilyV25, FamilyV55:
		c.PrefetchQueueSize = 4
		c.V25IRAMLow = 0xFE00
		c.V25IRAMHigh = 0xFFFF
		c.Flags |= CapX80Emulation
	case Family286:
		c.AddrWidth = 24
		c.ResetCS = 0xF000
		c.ResetIP = 0xFFF0
		c.PrefetchQueueSize = 6
	case Family386:
		c.AddrWidth = 32
		c.ResetCS = 0xF000
		c.ResetIP = 0xFFF0
		c.PrefetchQueueSize = 16
		c.SMM = SMM80386SL
		c.SMMEntryOffset = 0x10000
	case Family486:
		c.AddrWidth = 32
		c.ResetCS = 0xF000
		c.ResetIP = 0xFFF0
		c.PrefetchQueueSize = 32
		c.FPU = FPUIntegrated486Plus
	case Family586:
		c.AddrWidth = 32
		c.ResetCS = 0xF000
		c.ResetIP = 0xFFF0
		c.PrefetchQueueSize = 32
		c.FPU = FPUIntegrated486Plus
		c.SMM = SMMP5
		c.SMMEntryOffset = 0x10000
	case FamilyP6Plus, FamilyIntel64:
		c.AddrWidth = 64
		c.ResetCS = 0xF000
		c.ResetIP = 0xFFF0
		c.PrefetchQueueSize = 32
		c.FPU = FPUIntegrated486Plus
		c.SMM = SMMP6
		c.SMMEntryOffset = 0x10000
		c.Flags |= CapPAE | CapLM | CapNX | CapSEP
	case FamilyAMDK5:
		c.AddrWidth = 32
		c.ResetCS = 0xF000
		c.ResetIP = 0xFFF0
		c.FPU = FPUIntegrated486Plus
		c.SMM = SMMK5
	case FamilyAMDK6:
		c.AddrWidth = 32
		c.ResetCS = 0xF000
		c.ResetIP = 0xFFF0
		c.FPU = FPUIntegrated486Plus
		c.SMM = SMMK6
	case FamilyAMD64:
		c.AddrWidth = 64
		c.ResetCS = 0xF000
		c.ResetIP = 0xFFF0
		c.FPU = FPUIntegrated486Plus
		c.SMM = SMMAMD64
		c.Flags |= CapPAE | CapLM | CapNX
	case FamilyCyrix:
		c.AddrWidth = 32
		c.ResetCS = 0xF000
		c.ResetIP = 0xFFF0
		c.FPU = FPUIntegrated486Plus
		c.SMM = SMMM2
		c.CyrixIndexPort = 0x22
		c.CyrixDataPort = 0x23
		c.Flags |= CapCyrixConfigRegs
		c.CyrixAllowConfig = true
	case FamilyExtended:
		c.AddrWidth = 64
		c.ResetCS = 0xF000
		c.ResetIP = 0xFFF0
		c.PrefetchQueueSize = 32
		c.FPU = FPUIntegrated486Plus
		c.SMM = SMMP6
		c.Flags |= CapPAE | CapLM | CapNX | CapSEP | CapVA57 | CapVME | CapPSE
	}
	return c
}

// SegmentWrapFamily reports whether this family follows the pre-286
// "segment-wrap" rule: an access whose offset+count exceeds 0x10000
// continues at offset 0 of the same segment instead of
// faulting or carrying into a higher linear address.
func (c *Capabilities) SegmentWrapFamily() bool {
	switch c.Family {
	case Family8086, FamilyV20, FamilyV33, FamilyV60, FamilyUPD9002:
		return true
	default:
		return false
	}
}

// UndefinedOpcodeFaults reports whether an undefined opcode raises #UD
// (186+) or merely records RESULT_UNDEFINED and continues (8086-class),
// "Undefined opcodes".
func (c *Capabilities) UndefinedOpcodeFaults() bool {
	switch c.Family {
	case Family8086, FamilyV20, FamilyV33, FamilyV60, FamilyUPD9002:
		return false
	default:
		return true
	}
}
