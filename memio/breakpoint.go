/*
   x86emu debug-register (DR0-3) breakpoint matching.

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

// Breakpoint condition types, matching the DR7 LEN/RW field encoding.
const (
	BPExecute = 0
	BPWrite   = 1
	BPIO      = 2
	BPReadWrite = 3
)

// dr7 bit layout helpers.
const (
	dr7LocalShift  = 0 // L0..L3 at bits 0,2,4,6
	dr7GlobalShift = 1 // G0..G3 at bits 1,3,5,7
	dr7RWBase      = 16
	dr7LenBase     = 18
)

// MatchLinear reports which of DR0-3 match a linear access of the given
// size and kind, returning a bitmask with bit i set for DRi. Only slots
// whose L or G enable bit is set in DR7 can match. Matching does not raise
// #DB: the cpu package's caller ORs this into DR6 and does not raise #DB.
func MatchLinear(dr [8]uint64, addr uint64, size int, kind int) uint8 {
	dr7 := dr[7]
	var hit uint8
	for i := 0; i < 4; i++ {
		enabled := dr7&(1<<(uint(i)*2+dr7LocalShift)) != 0 || dr7&(1<<(uint(i)*2+dr7GlobalShift)) != 0
		if !enabled {
			continue
		}
		rw := (dr7 >> (dr7RWBase + uint(i)*4)) & 0x3
		if int(rw) != kind {
			continue
		}
		lenField := (dr7 >> (dr7LenBase + uint(i)*4)) & 0x3
		var width uint64
		switch lenField {
		case 0:
			width = 1
		case 1:
			width = 2
		case 2:
			width = 8
		case 3:
			width = 4
		}
		base := dr[i]
		if addr < base+width && addr+uint64(size) > base {
			hit |= 1 << uint(i)
		}
	}
	return hit
}
