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

import (
	"testing"

	"github.com/BinaryMelodies/x86emu/family"
)

func TestFlagsImage16MasksIOPLAtCPL3(t *testing.T) {
	var f Flags
	f.SetRaw(0x202) // reserved bit 1 plus IF
	f.SetIOPL(3)

	ctx := ImageContext{Family: family.Family386, CPL: 3}
	img := f.FlagsImage16(ctx)
	if got := (img >> FlagIOPLShift) & 3; got != 3 {
		t.Errorf("image IOPL field = %d, want 3", got)
	}
}

func TestFlagsImage32ClearsVM(t *testing.T) {
	var f Flags
	f.SetRaw(FlagVM | FlagCF)
	ctx := ImageContext{Family: family.Family386}
	img := f.FlagsImage32(ctx)
	if img&uint32(FlagVM) != 0 {
		t.Error("FlagsImage32 must always clear VM in the image per the image-form contract")
	}
	if img&uint32(FlagCF) == 0 {
		t.Error("FlagsImage32 dropped an unrelated set bit (CF)")
	}
}

// TestFlagsImageRoundTrip exercises the IRET-duality property at
// the flags layer: writing an image back with SetFlagsImage16 and reading
// it again returns the same user-writable bits, for a CPL-0 context where
// nothing is redirected or masked away.
func TestFlagsImageRoundTrip(t *testing.T) {
	var f Flags
	ctx := ImageContext{Family: family.Family386, CPL: 0}
	f.SetFlagsImage16(ctx, 0xCD23)
	got := f.FlagsImage16(ctx)
	if got != 0xCD23 {
		t.Errorf("round trip through SetFlagsImage16/FlagsImage16 = %#x, want 0xcd23", got)
	}
}

func TestFlagsImageUnprivilegedCannotForgeIOPL(t *testing.T) {
	var f Flags
	f.SetIOPL(0)
	ctx := ImageContext{Family: family.Family386, CPL: 3}
	// A CPL-3 guest attempts to set IOPL to 3 via the image.
	f.SetFlagsImage16(ctx, 0x3000)
	if got := f.IOPL(); got != 0 {
		t.Errorf("CPL-3 write forged IOPL: got %d, want 0 (unchanged)", got)
	}
}

// TestSetFlagsImageVMERedirectsIF checks the virtual-interrupt write
// path: with IOPL below CPL in a VME-capable context, the image's IF bit
// must land in VIF while the real IF keeps its previous value.
func TestSetFlagsImageVMERedirectsIF(t *testing.T) {
	var f Flags
	f.SetRaw(0x2) // IF clear, IOPL 0
	ctx := ImageContext{Family: family.Family386, CPL: 3, ProtectedOr8086WithVME: true}

	f.SetFlagsImage16(ctx, uint16(FlagIF))
	if !f.Test(FlagVIF) {
		t.Error("the popped IF bit must be redirected into VIF")
	}
	if f.Test(FlagIF) {
		t.Error("the real IF must keep its pre-write value under redirection")
	}

	// And the reverse: clearing IF through the image clears VIF, not IF.
	f.Set(FlagIF, true)
	f.SetIOPL(0)
	f.SetFlagsImage16(ctx, 0)
	if f.Test(FlagVIF) {
		t.Error("a popped clear IF must clear VIF")
	}
	if !f.Test(FlagIF) {
		t.Error("the real IF must survive a redirected clear")
	}
}
