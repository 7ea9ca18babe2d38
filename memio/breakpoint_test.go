/*
   x86emu debug-register breakpoint matching.

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

package memio

import "testing"

func TestMatchLinearExactByteBreakpoint(t *testing.T) {
	var dr [8]uint64
	dr[0] = 0x1000
	dr[7] = 1 << 0 // L0, RW=00 (execute), LEN=00 (1 byte)

	if hit := MatchLinear(dr, 0x1000, 1, BPExecute); hit&1 == 0 {
		t.Error("an execute access at the exact breakpoint address must hit DR0")
	}
	if hit := MatchLinear(dr, 0x1001, 1, BPExecute); hit&1 != 0 {
		t.Error("an access one byte past the breakpoint must not hit")
	}
}

func TestMatchLinearDisabledIfNeitherLNorGSet(t *testing.T) {
	var dr [8]uint64
	dr[1] = 0x2000
	dr[7] = 1 << 20 // RW1=01 (write) set for slot 1, but neither L1 nor G1 enabled

	if hit := MatchLinear(dr, 0x2000, 1, BPWrite); hit != 0 {
		t.Error("a breakpoint with neither L nor G enabled must never match")
	}
}

func TestMatchLinearWidthFromLenField(t *testing.T) {
	var dr [8]uint64
	dr[2] = 0x3000
	// L2 enabled, RW=01 (write) at bits 16+2*4=24..25, LEN=11 (4 bytes) at bits 18+2*4=26..27.
	dr[7] = (1 << 4) | (1 << 24) | (3 << 26)

	if hit := MatchLinear(dr, 0x3002, 1, BPWrite); hit&(1<<2) == 0 {
		t.Error("a write inside the 4-byte watched range must hit DR2")
	}
	if hit := MatchLinear(dr, 0x3004, 1, BPWrite); hit&(1<<2) != 0 {
		t.Error("a write just past the 4-byte watched range must not hit DR2")
	}
}

func TestMatchLinearKindMustMatch(t *testing.T) {
	var dr [8]uint64
	dr[3] = 0x4000
	dr[7] = (1 << 6) | (3 << 28) // L3, RW=11 (read/write) at bits 16+3*4=28..29

	if hit := MatchLinear(dr, 0x4000, 1, BPExecute); hit != 0 {
		t.Error("an execute access must not match a data read/write breakpoint")
	}
	if hit := MatchLinear(dr, 0x4000, 1, BPReadWrite); hit&(1<<3) == 0 {
		t.Error("a read/write access must match an RW=11 breakpoint")
	}
}
