/*
   x86emu prefetch queue.

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
	"errors"
	"testing"

	"github.com/BinaryMelodies/x86emu/family"
)

type boundedRAM struct {
	mem      [256]byte
	faultAt  int // -1 disables
}

func (r *boundedRAM) MemoryRead(space Space, linear uint64, buf []byte) error {
	if r.faultAt >= 0 && int(linear)+len(buf) > r.faultAt {
		return errors.New("access beyond fault boundary")
	}
	copy(buf, r.mem[linear:])
	return nil
}
func (r *boundedRAM) MemoryWrite(space Space, linear uint64, buf []byte) error {
	copy(r.mem[linear:], buf)
	return nil
}
func (r *boundedRAM) PortRead(port uint16, buf []byte) error  { return nil }
func (r *boundedRAM) PortWrite(port uint16, buf []byte) error { return nil }

func TestPrefetchDisabledWhenSizeZero(t *testing.T) {
	q := NewPrefetchQueue(0)
	if q.Enabled() {
		t.Fatal("a zero-size queue must report disabled")
	}
}

func TestPrefetchFillAndConsume(t *testing.T) {
	bus := &boundedRAM{faultAt: -1}
	for i := range bus.mem {
		bus.mem[i] = byte(i)
	}
	caps := family.DefaultCapabilities(family.Family8086)
	tr := NewTranslator(&caps, bus)
	q := NewPrefetchQueue(4)

	q.Fill(tr, SpaceUser, 0x10)
	for i := 0; i < 4; i++ {
		b, ok := q.Consume(0x10 + uint64(i))
		if !ok {
			t.Fatalf("byte %d should be queued", i)
		}
		if b != byte(0x10+i) {
			t.Errorf("byte %d = %#x, want %#x", i, b, 0x10+i)
		}
	}
	if _, ok := q.Consume(0x14); ok {
		t.Error("queue should be empty after consuming everything it had")
	}
}

func TestPrefetchFlush(t *testing.T) {
	bus := &boundedRAM{faultAt: -1}
	caps := family.DefaultCapabilities(family.Family8086)
	tr := NewTranslator(&caps, bus)
	q := NewPrefetchQueue(4)
	q.Fill(tr, SpaceUser, 0x10)
	q.Flush()
	if _, ok := q.Consume(0x10); ok {
		t.Error("Flush must discard queued bytes")
	}
}

// TestPrefetchSwallowsSpeculativeFault checks that a background
// fill that runs past an inaccessible boundary must not propagate a fault;
// Consume should simply miss so the decoder re-fetches (and faults for
// real) only when it actually needs that byte.
func TestPrefetchSwallowsSpeculativeFault(t *testing.T) {
	bus := &boundedRAM{faultAt: 2}
	caps := family.DefaultCapabilities(family.Family8086)
	tr := NewTranslator(&caps, bus)
	q := NewPrefetchQueue(4)

	q.Fill(tr, SpaceUser, 0) // would read [0,4) but only [0,2) is legal

	if _, ok := q.Consume(3); ok {
		t.Error("a speculative fill that hit the fault boundary must not have cached byte 3")
	}

	if _, f := tr.FetchSpeculative(SpaceUser, 3, 1); f == nil || !f.Speculative {
		t.Errorf("FetchSpeculative past the boundary must return a speculative fault, got %v", f)
	}
}
