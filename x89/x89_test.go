/*
   x86emu x89 auxiliary I/O processor.

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

package x89

import "testing"

// fakeBus is a flat 1MiB byte array addressed directly by physical address,
// standing in for the shared system memory the x89 walks without
// segmentation.
type fakeBus struct {
	mem [0x100000]byte
}

func (b *fakeBus) Read(addr uint32, buf []byte) error {
	copy(buf, b.mem[addr:])
	return nil
}

func (b *fakeBus) Write(addr uint32, buf []byte) error {
	copy(b.mem[addr:], buf)
	return nil
}

func (b *fakeBus) putWord(addr uint32, v uint16) {
	b.mem[addr] = byte(v)
	b.mem[addr+1] = byte(v >> 8)
}

func TestChannelRegisterAccessors(t *testing.T) {
	var c Channel
	c.Set16Local(RegGA, 0x1234)
	if c.Get16(RegGA) != 0x1234 {
		t.Errorf("Get16(GA) = %#x, want 0x1234", c.Get16(RegGA))
	}
	if c.R[RegGA].Tag != 1 {
		t.Error("Set16Local on GA must tag local-space")
	}

	c.Set32(RegGA, 0xABCDE)
	if got := c.Get32(RegGA); got != 0xABCDE {
		t.Errorf("Get32(GA) = %#x, want 0xABCDE", got)
	}

	// BC is not pointer-shaped: Get32/Set32 treat it as a plain 16-bit value.
	c.Set32(RegBC, 0x7FFF)
	if got := c.Get32(RegBC); got != 0x7FFF {
		t.Errorf("Get32(BC) = %#x, want 0x7FFF", got)
	}
}

// TestBusySetClear checks x89_channel_busy_set/clear's guest-visible
// channel-program-byte convention (0xFF running, 0x00 idle) stays in sync
// with the Running flag.
func TestBusySetClear(t *testing.T) {
	bus := &fakeBus{}
	p := &Processor{CP: 0x2000}

	if err := p.busySet(bus, 1); err != nil {
		t.Fatalf("busySet: %v", err)
	}
	if !p.Channel[1].Running {
		t.Error("busySet must set Running")
	}
	if got := bus.mem[0x2000+8]; got != 0xFF {
		t.Errorf("CP byte for channel 1 = %#x, want 0xFF", got)
	}

	if err := p.busyClear(bus, 1); err != nil {
		t.Fatalf("busyClear: %v", err)
	}
	if p.Channel[1].Running {
		t.Error("busyClear must clear Running")
	}
	if got := bus.mem[0x2000+8]; got != 0x00 {
		t.Errorf("CP byte for channel 1 = %#x, want 0x00", got)
	}
}

// TestAttentionDiscoversSCB exercises the first-attention handshake: the
// sysbus pointer at 0xFFFF6 and the SCB segment:offset at 0xFFFF8/0xFFFFA
// locate the SCB, whose own fields give SOC and the CP table base.
func TestAttentionDiscoversSCB(t *testing.T) {
	bus := &fakeBus{}

	const scbSeg, scbOff = 0x0100, 0x0010
	const scbPhys = scbSeg<<4 + scbOff
	bus.putWord(0xFFFF6, 0x5555)  // sysbus, not otherwise checked
	bus.putWord(0xFFFF8, scbOff)
	bus.putWord(0xFFFFA, scbSeg)

	const cpSeg, cpOff = 0x0200, 0x0020
	bus.putWord(scbPhys, 0x0001)            // SOC
	bus.putWord(scbPhys+2, cpOff)           // CP offset
	bus.putWord(scbPhys+4, cpSeg)           // CP segment

	p := &Processor{}
	if err := p.Attention(bus); err != nil {
		t.Fatalf("Attention: %v", err)
	}
	if !p.Initialized {
		t.Fatal("Attention must mark the processor initialized after SCB discovery")
	}
	if p.SOC != 1 {
		t.Errorf("SOC = %#x, want 1", p.SOC)
	}
	wantCP := uint32(cpOff) + uint32(cpSeg)<<4
	if p.CP != wantCP {
		t.Errorf("CP = %#x, want %#x", p.CP, wantCP)
	}
	// First attention must also clear channel 0 busy.
	if got := bus.mem[wantCP]; got != 0x00 {
		t.Errorf("channel 0 CP byte after init = %#x, want 0x00", got)
	}
}

// TestDispatchChannelStartLocal checks ccw&7==1 ("start, local-space task
// pointer"): TP is loaded from the task block as a tagged local offset and
// the channel is marked busy.
func TestDispatchChannelStartLocal(t *testing.T) {
	bus := &fakeBus{}
	p := &Processor{CP: 0x3000}

	const pbSeg, pbOff = 0x0400, 0x0008
	bus.putWord(p.CP+2, pbOff)
	bus.putWord(p.CP+4, pbSeg)
	pp := uint32(pbOff) + uint32(pbSeg)<<4
	bus.putWord(pp, 0x0042) // task-block offset

	if err := p.dispatchChannel(bus, 0, 1); err != nil {
		t.Fatalf("dispatchChannel: %v", err)
	}
	c := &p.Channel[0]
	if c.PP != pp {
		t.Errorf("PP = %#x, want %#x", c.PP, pp)
	}
	if c.R[RegTP].Address != 0x0042 || c.R[RegTP].Tag != 1 {
		t.Errorf("TP = %+v, want {0x42 1}", c.R[RegTP])
	}
	if !c.Running {
		t.Error("ccw&7==1 must mark the channel running")
	}
}

// TestDispatchChannelStartSystem checks ccw&7==3 ("start, system-space task
// pointer"): TP combines the task block's offset and segment into a full
// 20-bit system address with Tag 0.
func TestDispatchChannelStartSystem(t *testing.T) {
	bus := &fakeBus{}
	p := &Processor{CP: 0x3000}

	const pbSeg, pbOff = 0x0400, 0x0008
	bus.putWord(p.CP+2, pbOff)
	bus.putWord(p.CP+4, pbSeg)
	pp := uint32(pbOff) + uint32(pbSeg)<<4
	const tbSeg, tbOff = 0x0010, 0x0020
	bus.putWord(pp, tbOff)
	bus.putWord(pp+2, tbSeg)

	if err := p.dispatchChannel(bus, 0, 3); err != nil {
		t.Fatalf("dispatchChannel: %v", err)
	}
	c := &p.Channel[0]
	want := uint32(tbOff) + uint32(tbSeg)<<4
	if c.R[RegTP].Address != want || c.R[RegTP].Tag != 0 {
		t.Errorf("TP = %+v, want {%#x 0}", c.R[RegTP], want)
	}
}

// TestDispatchChannelHalt checks ccw&7==7: halt clears Running and the
// guest-visible busy byte without touching TP.
func TestDispatchChannelHalt(t *testing.T) {
	bus := &fakeBus{}
	p := &Processor{CP: 0x3000}
	p.Channel[0].Running = true
	if err := p.busySet(bus, 0); err != nil {
		t.Fatalf("busySet: %v", err)
	}

	if err := p.dispatchChannel(bus, 0, 7); err != nil {
		t.Fatalf("dispatchChannel: %v", err)
	}
	if p.Channel[0].Running {
		t.Error("ccw&7==7 must halt the channel")
	}
	if got := bus.mem[p.CP]; got != 0x00 {
		t.Errorf("CP byte after halt = %#x, want 0x00", got)
	}
}

// TestDispatchChannelInterruptControl checks the bits-3-4 interrupt-control
// field is applied after the channel-control-word action, for the ccw&7==0
// ("no action") case where it's the only effect.
func TestDispatchChannelInterruptControl(t *testing.T) {
	bus := &fakeBus{}
	p := &Processor{CP: 0x3000}
	p.Channel[0].PSW = PSWIS | PSWIC

	if err := p.dispatchChannel(bus, 0, 0<<0|3<<3); err != nil {
		t.Fatalf("dispatchChannel: %v", err)
	}
	if p.Channel[0].PSW != 0 {
		t.Errorf("interrupt-control field 3 must clear both IS and IC, got %#x", p.Channel[0].PSW)
	}
}
