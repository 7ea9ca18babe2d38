/*
   x86emu port dispatch.

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

type fakePortBus struct {
	ports map[uint16]byte
}

func (b *fakePortBus) MemoryRead(space Space, linear uint64, buf []byte) error  { return nil }
func (b *fakePortBus) MemoryWrite(space Space, linear uint64, buf []byte) error { return nil }
func (b *fakePortBus) PortRead(port uint16, buf []byte) error {
	v, ok := b.ports[port]
	if !ok {
		return errors.New("unmapped port")
	}
	buf[0] = v
	return nil
}
func (b *fakePortBus) PortWrite(port uint16, buf []byte) error {
	b.ports[port] = buf[0]
	return nil
}

// TestCyrixIndexedConfigRegs checks that the Cyrix MAPEN-gated indexed
// configuration registers intercept the index/data port pair instead of
// reaching the host Bus.
func TestCyrixIndexedConfigRegs(t *testing.T) {
	caps := family.DefaultCapabilities(family.FamilyCyrix)
	bus := &fakePortBus{ports: map[uint16]byte{}}
	pio := &PortIO{Caps: &caps, Bus: bus}

	if f := pio.Out(caps.CyrixIndexPort, []byte{0x10}); f != nil {
		t.Fatalf("Out(index) faulted: %v", f)
	}
	if f := pio.Out(caps.CyrixDataPort, []byte{0xAB}); f != nil {
		t.Fatalf("Out(data) faulted: %v", f)
	}
	var got [1]byte
	if f := pio.In(caps.CyrixDataPort, got[:]); f != nil {
		t.Fatalf("In(data) faulted: %v", f)
	}
	if got[0] != 0xAB {
		t.Errorf("readback of Cyrix register 0x10 = %#x, want 0xAB", got[0])
	}
	if _, ok := bus.ports[caps.CyrixDataPort]; ok {
		t.Error("Cyrix data-port access must not reach the host bus")
	}
}

func TestPortIOFallsThroughToBus(t *testing.T) {
	caps := family.DefaultCapabilities(family.Family386)
	bus := &fakePortBus{ports: map[uint16]byte{0x3F8: 0x7E}}
	pio := &PortIO{Caps: &caps, Bus: bus}

	var got [1]byte
	if f := pio.In(0x3F8, got[:]); f != nil {
		t.Fatalf("In faulted: %v", f)
	}
	if got[0] != 0x7E {
		t.Errorf("In(0x3F8) = %#x, want 0x7E", got[0])
	}
}

func TestPortIOUnmappedRaisesGP(t *testing.T) {
	caps := family.DefaultCapabilities(family.Family386)
	bus := &fakePortBus{ports: map[uint16]byte{}}
	pio := &PortIO{Caps: &caps, Bus: bus}

	var got [1]byte
	if f := pio.In(0x9999, got[:]); f == nil {
		t.Error("an unmapped port read should surface as a fault (#GP)")
	}
}

func TestInWindow(t *testing.T) {
	caps := family.DefaultCapabilities(family.Family186)
	if caps.PCBWindowBase == 0 {
		t.Skip("this family default has no PCB window configured")
	}
	if !InWindow(&caps, uint64(caps.PCBWindowBase)) {
		t.Error("the PCB window base address must report InWindow")
	}
	if InWindow(&caps, uint64(caps.PCBWindowBase)+0x100) {
		t.Error("0x100 past the window base is out of range")
	}
}
