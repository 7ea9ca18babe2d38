/*
   x86emu x87 environment save/restore (FLDENV/FSTENV/FSAVE/FRSTOR) and
   the IIT 3C87's extra register banks.

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

package fpu

import "encoding/binary"

// EnvLayout selects which of the five environment-image shapes (16-bit
// real, 16-bit protected, 32-bit real, 32-bit protected, and the IIT
// 3C87's extended form) a save/restore targets.
type EnvLayout int

const (
	Env16Real EnvLayout = iota
	Env16Protected
	Env32Real
	Env32Protected
	Env3C87
)

// EnvSize returns the byte size of the environment-only image (FLDENV/
// FSTENV), excluding the 8-register stack that FSAVE/FRSTOR add.
func (l EnvLayout) EnvSize() int {
	switch l {
	case Env16Real, Env16Protected:
		return 14
	default:
		return 28
	}
}

// StoreEnv writes CW/SW/TW/FIP/FCS(or opcode)/FDP/FDS into buf per
// layout, matching the four standard x87 environment encodings.
func (b *Bank) StoreEnv(layout EnvLayout, buf []byte) {
	le := binary.LittleEndian
	switch layout {
	case Env16Real:
		le.PutUint16(buf[0:], b.CW)
		le.PutUint16(buf[2:], b.StatusWord())
		le.PutUint16(buf[4:], b.TagWord())
		le.PutUint16(buf[6:], uint16(b.FIP))
		buf[8] = byte(b.FOP)
		buf[9] = byte(b.FOP >> 8 & 0x7)
		le.PutUint16(buf[10:], uint16(b.FDP))
		buf[12] = 0
	case Env16Protected:
		le.PutUint16(buf[0:], b.CW)
		le.PutUint16(buf[2:], b.StatusWord())
		le.PutUint16(buf[4:], b.TagWord())
		le.PutUint16(buf[6:], uint16(b.FIP))
		le.PutUint16(buf[8:], b.FCS)
		le.PutUint16(buf[10:], uint16(b.FDP))
		le.PutUint16(buf[12:], b.FDS)
	case Env32Real:
		le.PutUint32(buf[0:], uint32(b.CW))
		le.PutUint32(buf[4:], uint32(b.StatusWord()))
		le.PutUint32(buf[8:], uint32(b.TagWord()))
		le.PutUint32(buf[12:], uint32(b.FIP))
		le.PutUint32(buf[16:], uint32(b.FOP)<<16)
		le.PutUint32(buf[20:], uint32(b.FDP))
	case Env32Protected, Env3C87:
		le.PutUint32(buf[0:], uint32(b.CW))
		le.PutUint32(buf[4:], uint32(b.StatusWord()))
		le.PutUint32(buf[8:], uint32(b.TagWord()))
		le.PutUint32(buf[12:], uint32(b.FIP))
		le.PutUint16(buf[16:], b.FCS)
		le.PutUint16(buf[18:], b.FOP&0x7FF)
		le.PutUint32(buf[20:], uint32(b.FDP))
		le.PutUint16(buf[24:], b.FDS)
	}
}

// LoadEnv is the inverse of StoreEnv.
func (b *Bank) LoadEnv(layout EnvLayout, buf []byte) {
	le := binary.LittleEndian
	switch layout {
	case Env16Real:
		b.CW = le.Uint16(buf[0:])
		b.SetStatusWord(le.Uint16(buf[2:]))
		b.SetTagWord(le.Uint16(buf[4:]))
		b.FIP = uint64(le.Uint16(buf[6:]))
		b.FOP = uint16(buf[8]) | uint16(buf[9]&0x7)<<8
		b.FDP = uint64(le.Uint16(buf[10:]))
	case Env16Protected:
		b.CW = le.Uint16(buf[0:])
		b.SetStatusWord(le.Uint16(buf[2:]))
		b.SetTagWord(le.Uint16(buf[4:]))
		b.FIP = uint64(le.Uint16(buf[6:]))
		b.FCS = le.Uint16(buf[8:])
		b.FDP = uint64(le.Uint16(buf[10:]))
		b.FDS = le.Uint16(buf[12:])
	case Env32Real:
		b.CW = uint16(le.Uint32(buf[0:]))
		b.SetStatusWord(uint16(le.Uint32(buf[4:])))
		b.SetTagWord(uint16(le.Uint32(buf[8:])))
		b.FIP = uint64(le.Uint32(buf[12:]))
		b.FOP = uint16(le.Uint32(buf[16:]) >> 16)
		b.FDP = uint64(le.Uint32(buf[20:]))
	case Env32Protected, Env3C87:
		b.CW = uint16(le.Uint32(buf[0:]))
		b.SetStatusWord(uint16(le.Uint32(buf[4:])))
		b.SetTagWord(uint16(le.Uint32(buf[8:])))
		b.FIP = uint64(le.Uint32(buf[12:]))
		b.FCS = le.Uint16(buf[16:])
		b.FOP = le.Uint16(buf[18:]) & 0x7FF
		b.FDP = uint64(le.Uint32(buf[20:]))
		b.FDS = le.Uint16(buf[24:])
	}
}

// ThreeC87Banks models the IIT 3C87's nonstandard extension: four
// register banks instead of one, selected by a vendor control bit, each
// independently holding its own 8-register stack and tag word. Only the
// active bank participates in ordinary x87 arithmetic; switching banks
// swaps Reg/Tag/Top wholesale, mirroring how the V25/V55 alternate
// register banks swap in register.Bank.SwitchRegisterBank.
type ThreeC87Banks struct {
	Banks  [4]Bank
	Active uint8
}

// Switch flushes the Bank's current stack/tag/top into the active slot
// and loads the target bank's, returning the (now current) *Bank for the
// caller to keep using.
func (t *ThreeC87Banks) Switch(current *Bank, target uint8) *Bank {
	t.Banks[t.Active] = *current
	t.Active = target & 3
	return &t.Banks[t.Active]
}
