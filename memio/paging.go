/*
   x86emu paging: all table-walk shapes from the V33 legacy scheme to 5-level VA57.

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

import (
	"github.com/BinaryMelodies/x86emu/family"
	"github.com/BinaryMelodies/x86emu/trap"
)

// page table entry bits, shared by every shape below.
const (
	pteOPresent  uint64 = 1 << 0
	pteOWrite    uint64 = 1 << 1
	pteOUser     uint64 = 1 << 2
	pteOAccessed uint64 = 1 << 5
	pteODirty    uint64 = 1 << 6
	pteOPS       uint64 = 1 << 7 // large page
	pteONX       uint64 = 1 << 63
)

// PageFaultErrorBits mirror the standard #PF error code layout: P, W/R,
// U/S, RSVD, I/D.
const (
	PFPresent uint64 = 1 << 0
	PFWrite   uint64 = 1 << 1
	PFUser    uint64 = 1 << 2
	PFReserved uint64 = 1 << 3
	PFInstruction uint64 = 1 << 4
)

// Access describes the kind of access being translated, for permission
// checking and #PF error code construction. WP mirrors CR0.WP: with it
// clear, supervisor writes ignore the entry's read-only bit (the
// hardware default out of reset).
type Access struct {
	Write       bool
	User        bool
	Instruction bool
	WP          bool
}

// readEntry reads page-table entries through the Bus a fixed number of bytes
// at a time; it exists purely to keep Walk's table-shape switch readable.
func (t *Translator) readEntry(space Space, addr uint64, size int) (uint64, *trap.Fault) {
	buf := make([]byte, size)
	if err := t.Bus.MemoryRead(space, addr, buf); err != nil {
		return 0, trap.NewException(trap.VecPF, 0, true)
	}
	var v uint64
	for i := size - 1; i >= 0; i-- {
		v = v<<8 | uint64(buf[i])
	}
	return v, nil
}

// Shape selects the table-walk shape for the translator's family and
// current paging-control bits.
func Shape(caps *family.Capabilities, pagingEnabled, pae, lma, va57 bool) family.PagingShape {
	if !pagingEnabled {
		if caps.Family == family.FamilyV33 {
			return family.PagingV33Legacy
		}
		return family.PagingNone
	}
	switch {
	case lma && va57:
		return family.Paging5LevelVA57
	case lma:
		return family.Paging4LevelLong
	case pae:
		return family.Paging3LevelPAE
	default:
		return family.Paging2Level32
	}
}

// Walk translates a linear address to a physical one according to shape,
// walking the page tables through the Bus and building a #PF with the
// standard error-code bits on any failure. cr3 is the current table-base
// control register value (already masked to its address bits by the
// caller); pse enables 4 MiB large pages in the 2-level shape.
func (t *Translator) Walk(space Space, shape family.PagingShape, cr3 uint64, linear uint64, acc Access, pse bool) (uint64, *trap.Fault) {
	fault := func(present bool) *trap.Fault {
		code := PFUser
		if !acc.User {
			code = 0
		}
		if present {
			code |= PFPresent
		}
		if acc.Write {
			code |= PFWrite
		}
		if acc.Instruction {
			code |= PFInstruction
		}
		return trap.NewException(trap.VecPF, code, true)
	}

	check := func(entry uint64) (ok bool, present bool) {
		present = entry&pteOPresent != 0
		if !present {
			return false, false
		}
		if acc.User && entry&pteOUser == 0 {
			return false, true
		}
		if acc.Write && (acc.User || acc.WP) && entry&pteOWrite == 0 {
			return false, true
		}
		if acc.Instruction && entry&pteONX != 0 {
			return false, true
		}
		return true, true
	}

	switch shape {
	case family.PagingNone:
		return linear, nil

	case family.PagingV33Legacy:
		// A 6-bit directory index into a fixed in-CPU table selects one
		// of 64 14-bit page-frame entries, each frame sized 1<<14 bytes.
		// There is no present/permission bit at all; any directory index
		// resolves.
		dirIndex := (linear >> 14) & 0x3F
		frameTableBase := cr3
		entry, f := t.readEntry(space, frameTableBase+dirIndex*2, 2)
		if f != nil {
			return 0, f
		}
		frame := entry & 0x3F
		return frame<<14 | (linear & 0x3FFF), nil

	case family.Paging2Level32:
		dirIdx := (linear >> 22) & 0x3FF
		dirAddr := cr3 + dirIdx*4
		dirEntry, f := t.readEntry(space, dirAddr, 4)
		if f != nil {
			return 0, f
		}
		ok, present := check(dirEntry)
		if !present {
			return 0, fault(false)
		}
		if pse && dirEntry&pteOPS != 0 {
			if !ok {
				return 0, fault(true)
			}
			t.setEntryBits(space, dirAddr, 4, dirEntry, accessedDirty(acc))
			frame := dirEntry &^ 0x3FFFFF
			return frame | (linear & 0x3FFFFF), nil
		}
		tblIdx := (linear >> 12) & 0x3FF
		tblAddr := (dirEntry &^ 0xFFF) + tblIdx*4
		tblEntry, f := t.readEntry(space, tblAddr, 4)
		if f != nil {
			return 0, f
		}
		ok, present = check(tblEntry)
		if !present {
			return 0, fault(false)
		}
		if !ok {
			return 0, fault(true)
		}
		t.setEntryBits(space, dirAddr, 4, dirEntry, pteOAccessed)
		t.setEntryBits(space, tblAddr, 4, tblEntry, accessedDirty(acc))
		return (tblEntry &^ 0xFFF) | (linear & 0xFFF), nil

	case family.Paging3LevelPAE:
		return t.walkLevels(space, cr3, linear, acc, []uint{30, 21, 12}, []uint{2, 9, 9}, fault, check, pse)

	case family.Paging4LevelLong:
		return t.walkLevels(space, cr3, linear, acc, []uint{39, 30, 21, 12}, []uint{9, 9, 9, 9}, fault, check, pse)

	case family.Paging5LevelVA57:
		return t.walkLevels(space, cr3, linear, acc, []uint{48, 39, 30, 21, 12}, []uint{9, 9, 9, 9, 9}, fault, check, pse)

	default:
		return linear, nil
	}
}

// walkLevels is the shared radix-tree walker for PAE/long-mode/VA57: each
// level consumes bits[i] index bits at shift[i], entries are 8 bytes, and
// the last level before the 4 KiB page may short-circuit to a large page
// when PS is set and the level supports it (2 MiB at the 21-bit level, 1
// GiB at the 30-bit level).
func (t *Translator) walkLevels(space Space, base, linear uint64, acc Access, shifts []uint, bits []uint, fault func(bool) *trap.Fault, check func(uint64) (bool, bool), pse bool) (uint64, *trap.Fault) {
	type visited struct {
		addr  uint64
		entry uint64
	}
	var seen []visited

	// commit sets A in every table entry the successful walk touched, and
	// D in the leaf when the access is a write.
	commit := func(leafAddr, leafEntry uint64) {
		for _, v := range seen {
			t.setEntryBits(space, v.addr, 8, v.entry, pteOAccessed)
		}
		t.setEntryBits(space, leafAddr, 8, leafEntry, accessedDirty(acc))
	}

	addr := base
	for i, shift := range shifts {
		width := bits[i]
		index := (linear >> shift) & ((uint64(1) << width) - 1)
		entryAddr := addr + index*8
		entry, f := t.readEntry(space, entryAddr, 8)
		if f != nil {
			return 0, f
		}
		ok, present := check(entry)
		if !present {
			return 0, fault(false)
		}
		last := i == len(shifts)-1
		if !last && pse && entry&pteOPS != 0 && shift != 12 {
			if !ok {
				return 0, fault(true)
			}
			commit(entryAddr, entry)
			pageMask := (uint64(1) << shift) - 1
			return (entry &^ pageMask) | (linear & pageMask), nil
		}
		if last {
			if !ok {
				return 0, fault(true)
			}
			commit(entryAddr, entry)
			return (entry &^ 0xFFF) | (linear & 0xFFF), nil
		}
		seen = append(seen, visited{entryAddr, entry})
		addr = entry &^ 0xFFF
	}
	return 0, fault(false)
}

// accessedDirty returns the status bits a successful walk folds into its
// leaf entry: A always, plus D for a write.
func accessedDirty(acc Access) uint64 {
	bits := pteOAccessed
	if acc.Write {
		bits |= pteODirty
	}
	return bits
}

// setEntryBits rewrites a table entry with status bits folded in,
// skipping the write when they are already set (the common case after
// the first touch).
func (t *Translator) setEntryBits(space Space, addr uint64, size int, entry uint64, bits uint64) {
	if entry&bits == bits {
		return
	}
	entry |= bits
	buf := make([]byte, size)
	for i := range buf {
		buf[i] = byte(entry >> (8 * i))
	}
	t.Bus.MemoryWrite(space, addr, buf)
}
