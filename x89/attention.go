/*
   x86emu x89 attention handshake: SCB discovery and channel-control dispatch.

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

// Attention implements x89_channel_attention: on the first call, it
// discovers the System Configuration Block (fixed at physical 0xFFFF6
// for the sysbus pointer and 0xFFFF8/0xFFFFA for the SCB segment:offset)
// and reads SOC/CP out of it; on every subsequent call it walks both
// channels' 8-byte control blocks in the CP table and dispatches their
// channel-control-word field.
func (p *Processor) Attention(bus Bus) error {
	if !p.Initialized {
		sysbus, err := read16(bus, 0xFFFF6)
		if err != nil {
			return err
		}
		scbOff, err := read16(bus, 0xFFFF8)
		if err != nil {
			return err
		}
		scbSegHi, err := read16(bus, 0xFFFFA)
		if err != nil {
			return err
		}
		scb := uint32(scbOff) + uint32(scbSegHi)<<4

		soc, err := read16(bus, scb)
		if err != nil {
			return err
		}
		cpOff, err := read16(bus, scb+2)
		if err != nil {
			return err
		}
		cpSegHi, err := read16(bus, scb+4)
		if err != nil {
			return err
		}

		p.SysBus = sysbus
		p.SOC = soc
		p.CP = uint32(cpOff) + uint32(cpSegHi)<<4
		p.Initialized = true
		return p.busyClear(bus, 0)
	}

	for ch := 0; ch < 2; ch++ {
		ccw, err := read8(bus, p.CP+uint32(8*ch))
		if err != nil {
			return err
		}
		if err := p.dispatchChannel(bus, ch, ccw); err != nil {
			return err
		}
	}
	return nil
}

// dispatchChannel decodes one channel's control-word bits 0-2 (start/
// continue/halt) and bits 3-4 (interrupt control), matching the switch in
// x89_channel_attention exactly, including its "continue"-on-5/6/7
// short-circuit that skips the interrupt-control bits for those opcodes.
func (p *Processor) dispatchChannel(bus Bus, channel int, ccw uint8) error {
	c := &p.Channel[channel]

	switch ccw & 7 {
	case 0:
		// no channel-control action
	case 1, 3:
		pbOff, err := read16(bus, p.CP+uint32(8*channel)+2)
		if err != nil {
			return err
		}
		pbSeg, err := read16(bus, p.CP+uint32(8*channel)+4)
		if err != nil {
			return err
		}
		c.PP = uint32(pbOff) + uint32(pbSeg)<<4

		tbOff, err := read16(bus, c.PP)
		if err != nil {
			return err
		}
		if ccw&7 == 1 {
			c.R[RegTP] = TaggedAddress{Address: uint32(tbOff), Tag: 1}
		} else {
			tbSeg, err := read16(bus, c.PP+2)
			if err != nil {
				return err
			}
			c.R[RegTP] = TaggedAddress{Address: uint32(tbOff) + uint32(tbSeg)<<4, Tag: 0}
		}
		if err := p.busySet(bus, channel); err != nil {
			return err
		}
	case 5:
		data := make([]byte, 4)
		if err := bus.Read(c.PP, data); err != nil {
			return err
		}
		c.R[RegTP].Address = uint32(data[0]) | uint32(data[1])<<8 | (uint32(data[2])&0xF0)<<12
		c.R[RegTP].Tag = (data[2] >> 3) & 1
		c.PSW = data[3]
		return p.busySet(bus, channel)
	case 6:
		if err := p.busyClear(bus, channel); err != nil {
			return err
		}
		data := make([]byte, 4)
		data[0] = byte(c.R[RegTP].Address)
		data[1] = byte(c.R[RegTP].Address >> 8)
		data[2] = byte((c.R[RegTP].Address>>12)&0xF0) | c.R[RegTP].Tag<<3
		data[3] = c.PSW
		return bus.Write(c.PP, data)
	case 7:
		return p.busyClear(bus, channel)
	}

	switch (ccw >> 3) & 3 {
	case 1:
		c.PSW &^= PSWIS
	case 2:
		c.PSW |= PSWIC
	case 3:
		c.PSW &^= PSWIS
		c.PSW &^= PSWIC
	}
	return nil
}
