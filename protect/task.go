/*
   x86emu task switching via TSS descriptors and task gates.

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

package protect

import (
	"encoding/binary"

	"github.com/BinaryMelodies/x86emu/trap"
)

// TSS32 is the 32-bit task-state segment layout, decoded into fixed
// fields for the save (outgoing task) / load (incoming task) halves of a
// task switch.
type TSS32 struct {
	Link                        uint16
	ESP0, ESP1, ESP2            uint32
	SS0, SS1, SS2               uint16
	CR3                         uint32
	EIP                         uint32
	EFLAGS                      uint32
	EAX, ECX, EDX, EBX          uint32
	ESP, EBP, ESI, EDI          uint32
	ES, CS, SS, DS, FS, GS      uint16
	LDT                         uint16
	IOMapBase                   uint16
}

// ReadTSS32 decodes a 104-byte 32-bit TSS out of raw table bytes.
func ReadTSS32(raw []byte) TSS32 {
	le := binary.LittleEndian
	return TSS32{
		Link: le.Uint16(raw[0:]),
		ESP0: le.Uint32(raw[4:]), SS0: le.Uint16(raw[8:]),
		ESP1: le.Uint32(raw[12:]), SS1: le.Uint16(raw[16:]),
		ESP2: le.Uint32(raw[20:]), SS2: le.Uint16(raw[24:]),
		CR3: le.Uint32(raw[28:]),
		EIP: le.Uint32(raw[32:]), EFLAGS: le.Uint32(raw[36:]),
		EAX: le.Uint32(raw[40:]), ECX: le.Uint32(raw[44:]),
		EDX: le.Uint32(raw[48:]), EBX: le.Uint32(raw[52:]),
		ESP: le.Uint32(raw[56:]), EBP: le.Uint32(raw[60:]),
		ESI: le.Uint32(raw[64:]), EDI: le.Uint32(raw[68:]),
		ES: le.Uint16(raw[72:]), CS: le.Uint16(raw[76:]),
		SS: le.Uint16(raw[80:]), DS: le.Uint16(raw[84:]),
		FS: le.Uint16(raw[88:]), GS: le.Uint16(raw[92:]),
		LDT: le.Uint16(raw[96:]), IOMapBase: le.Uint16(raw[102:]),
	}
}

// WriteTSS32 encodes a TSS32 back to raw bytes, for the save half of a
// task switch.
func WriteTSS32(t TSS32, raw []byte) {
	le := binary.LittleEndian
	le.PutUint16(raw[0:], t.Link)
	le.PutUint32(raw[4:], t.ESP0)
	le.PutUint16(raw[8:], t.SS0)
	le.PutUint32(raw[12:], t.ESP1)
	le.PutUint16(raw[16:], t.SS1)
	le.PutUint32(raw[20:], t.ESP2)
	le.PutUint16(raw[24:], t.SS2)
	le.PutUint32(raw[28:], t.CR3)
	le.PutUint32(raw[32:], t.EIP)
	le.PutUint32(raw[36:], t.EFLAGS)
	le.PutUint32(raw[40:], t.EAX)
	le.PutUint32(raw[44:], t.ECX)
	le.PutUint32(raw[48:], t.EDX)
	le.PutUint32(raw[52:], t.EBX)
	le.PutUint32(raw[56:], t.ESP)
	le.PutUint32(raw[60:], t.EBP)
	le.PutUint32(raw[64:], t.ESI)
	le.PutUint32(raw[68:], t.EDI)
	le.PutUint16(raw[72:], t.ES)
	le.PutUint16(raw[76:], t.CS)
	le.PutUint16(raw[80:], t.SS)
	le.PutUint16(raw[84:], t.DS)
	le.PutUint16(raw[88:], t.FS)
	le.PutUint16(raw[92:], t.GS)
	le.PutUint16(raw[96:], t.LDT)
	le.PutUint16(raw[102:], t.IOMapBase)
}

// SwitchTask performs the save-outgoing/load-incoming halves of a task
// switch through a TSS descriptor: it writes outgoing into the 104-byte
// TSS at outgoingBase and returns the TSS32 read from incomingBase. It
// does not change the busy bit of either TSS descriptor, and iret does
// not alter what it does.
//
// The caller (cpu package) is responsible for reloading register.Bank's
// segment cache from the newly-loaded selectors and for the nested-task
// NT-flag bookkeeping; this function only moves the TSS bytes.
func SwitchTask(bus Bus, outgoingBase uint64, outgoing TSS32, incomingBase uint64, iret bool) (TSS32, *trap.Fault) {
	outRaw := make([]byte, 104)
	WriteTSS32(outgoing, outRaw)
	if err := bus.MemoryWrite(outgoingBase, outRaw); err != nil {
		return TSS32{}, trap.NewException(trap.VecTS, 0, true)
	}

	inRaw := make([]byte, 104)
	if err := bus.MemoryRead(incomingBase, inRaw); err != nil {
		return TSS32{}, trap.NewException(trap.VecTS, 0, true)
	}
	return ReadTSS32(inRaw), nil
}
