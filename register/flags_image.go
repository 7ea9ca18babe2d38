/*
   x86emu flags image (PUSHF/POPF/IRET view).

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

package register

import "github.com/BinaryMelodies/x86emu/family"

// ImageContext carries the bits of mode the image mask depends on, pulled
// from whatever else the caller already knows about the current CPU state
// (privilege level, paging mode, family), so the helper sees exactly the
// fields it needs instead of the whole register Bank.
type ImageContext struct {
	Family       family.CPUFamily
	CPL          uint8
	ProtectedOr8086WithVME bool // protected mode, or V8086 with CR4.VME
	RealModeV8086Capable   bool // true for 286 in real mode (IOPL/NT quirk)
	VMEActive    bool // V8086 mode with CR4.VME set and IOPL < 3
	MDEnabled    bool // MD_ENABLED capability
}

// flagMDImageBit is where the NEC mode flag sits inside the 16-bit PSW
// image; the raw FlagMD bit lives above bit 31 so it cannot collide with
// the architectural x86 flags.
const flagMDImageBit uint16 = 1 << 15

// FlagsImage16 derives the 16-bit PUSHF/POPF image from the raw flags,
// applying the family's reserved-bit and mode-sensitive masking.
func (f *Flags) FlagsImage16(ctx ImageContext) uint16 {
	v := uint16(f.raw)

	if ctx.ProtectedOr8086WithVME && f.IOPL() < ctx.CPL {
		// IF is hidden behind the virtual-interrupt redirection; the
		// image shows the virtualized IF instead of the real one.
		if f.Test(FlagVIF) {
			v |= uint16(FlagIF)
		} else {
			v &^= uint16(FlagIF)
		}
	}

	if ctx.CPL != 0 || ctx.RealModeV8086Capable {
		v = (v &^ uint16(FlagIOPLMask)) | uint16(uint64(f.IOPL())<<FlagIOPLShift)
	}

	if ctx.Family == family.FamilyV25 {
		v = (v &^ 0xF000) | uint16(f.RB())<<12&0xF000
	} else if ctx.Family == family.FamilyV55 {
		v = (v &^ 0xF000) | uint16(f.RB())<<12&0xF000
	}

	if (ctx.Family == family.FamilyV20 || ctx.Family == family.FamilyUPD9002 || ctx.Family == family.FamilyExtended) && !ctx.MDEnabled {
		// MD occupies bit 15 of the PSW image on the NEC parts; the
		// MD_ENABLED variants hide it from the ordinary image and only
		// expose it through the alternate bank.
		if f.Test(FlagMD) {
			v |= flagMDImageBit
		} else {
			v &^= flagMDImageBit
		}
	}

	v &^= uint16(FlagRF & 0xFFFF)
	return v
}

// FlagsImage32 extends FlagsImage16 with the 32-bit-only bits (VM, VIF,
// VIP, AC).
func (f *Flags) FlagsImage32(ctx ImageContext) uint32 {
	v := (uint32(f.raw) &^ 0xFFFF) | uint32(f.FlagsImage16(ctx))
	v &^= uint32(FlagVM)
	if ctx.VMEActive {
		if f.Test(FlagIF) {
			v |= uint32(FlagVIF)
		} else {
			v &^= uint32(FlagVIF)
		}
	} else {
		v = (v &^ uint32(FlagVIP)) | uint32(f.raw&FlagVIP)
	}
	return v
}

// FlagsImage64 is identical to the 32-bit image; x86-64 RFLAGS carries no
// additional guest-visible bits above bit 31.
func (f *Flags) FlagsImage64(ctx ImageContext) uint64 {
	return uint64(f.FlagsImage32(ctx))
}

// SetFlagsImage16 writes a PUSHF/POPF-shaped 16-bit value back into the
// raw flags, applying the same mode-sensitive corrections in reverse so
// that unprivileged code cannot forge IOPL/IF/NT it doesn't own.
func (f *Flags) SetFlagsImage16(ctx ImageContext, v uint16) {
	prevIF := f.Test(FlagIF)
	prevIOPL := f.IOPL()
	redirectIF := ctx.ProtectedOr8086WithVME && prevIOPL < ctx.CPL

	f.raw = (f.raw &^ 0xFFFF) | uint64(v)
	if ctx.Family == family.FamilyV20 || ctx.Family == family.FamilyUPD9002 || ctx.Family == family.FamilyExtended {
		// MD rides bit 15 of the image on the emulation-capable parts;
		// restoring it here is what lets IRET cross the native/emulation
		// boundary (BRKEM/CALLN frames record the outgoing mode).
		f.Set(FlagMD, v&flagMDImageBit != 0)
	}
	if ctx.CPL != 0 {
		// Guest code below CPL 0 cannot change IOPL through the image;
		// restore the field from the pre-write value.
		f.SetIOPL(prevIOPL)
	}
	if redirectIF {
		// VME redirection: the image's IF bit lands in VIF and the real
		// IF keeps its pre-write value.
		f.Set(FlagVIF, v&uint16(FlagIF) != 0)
		f.Set(FlagIF, prevIF)
	}
}

// SetFlagsImage32 is the 32-bit counterpart of SetFlagsImage16.
func (f *Flags) SetFlagsImage32(ctx ImageContext, v uint32) {
	f.SetFlagsImage16(ctx, uint16(v))
	f.raw = (f.raw &^ uint64(0xFFFF0000)) | uint64(v&0xFFFF0000)
	if ctx.VMEActive {
		f.Set(FlagIF, v&uint32(FlagVIF) != 0)
	}
}
