/*
   x86emu protect package test support.

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

// fakeTableBus is a flat in-memory address space standing in for the
// linear-address Bus descriptor/gate/TSS lookups read through.
type fakeTableBus struct {
	mem [0x10000]byte
}

func newFakeTableBus() *fakeTableBus {
	return &fakeTableBus{}
}

func (b *fakeTableBus) MemoryRead(addr uint64, buf []byte) error {
	copy(buf, b.mem[addr:])
	return nil
}

func (b *fakeTableBus) MemoryWrite(addr uint64, buf []byte) error {
	copy(b.mem[addr:], buf)
	return nil
}
