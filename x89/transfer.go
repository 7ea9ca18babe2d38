/*
   x86emu x89 transfer engine: the PSW.XF-gated DMA-like unit transfer.

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

// transfer moves one unit (byte or word) of a PSW.XF channel's DMA-like
// copy, the direct port of x89_channel_transfer: it swaps GA/GB for
// source/destination via CC.S, widths come from PSW.D/PSW.S, BC decrements
// every unit and its CC.TBC field chooses what happens when it hits zero,
// CC.F0/CC.F1 post-increment the source/destination pointers, CC.TS and the
// CC.TSH-selected compare-against-RegMC modes can terminate the transfer
// early, and CC.TR reroutes the transferred byte through an index off GC
// before the final write. It reports whether it moved a unit at all (false
// means the caller should fall through to fetching a channel-program
// instruction instead).
func (p *Processor) transfer(bus Bus, channel int) (bool, error) {
	c := &p.Channel[channel]
	if c.PSW&PSWXF == 0 {
		return false, nil
	}

	cc := c.Get16(RegCC)
	gs, gd := RegGA, RegGB
	if cc&ccS != 0 {
		gs, gd = RegGB, RegGA
	}

	dstSize := 1
	if c.PSW&PSWD != 0 {
		dstSize = 2
	}
	srcSize := 1
	if c.PSW&PSWS != 0 {
		srcSize = 2
	}

	if cc&ccTBCMask != 0 {
		if c.Get16(RegBC) == 0 {
			c.PSW &^= PSWXF
			switch (cc & ccTBCMask) >> ccTBCShift {
			case 2:
				c.R[RegTP].Address = (c.R[RegTP].Address + 4) & 0xFFFFF
			case 3:
				c.R[RegTP].Address = (c.R[RegTP].Address + 8) & 0xFFFFF
			}
			return false, nil
		}
	}

	c.Set16(RegBC, c.Get16(RegBC)-1)

	var data uint16
	if srcSize == 1 {
		v, err := read8(bus, c.R[gs].Address)
		if err != nil {
			return false, err
		}
		data = uint16(v)
	} else {
		v, err := read16(bus, c.R[gs].Address)
		if err != nil {
			return false, err
		}
		data = v
	}

	if cc&ccF0 != 0 {
		c.R[gs].Address = (c.R[gs].Address + uint32(srcSize)) & 0xFFFFF
	}

	if cc&ccTS != 0 {
		c.PSW &^= PSWXF
	}

	mc := c.Get16(RegMC)
	match := (data^(mc&0xFF))&((mc>>8)&0xFF) == 0
	switch (cc & ccTSHMask) >> ccTSHShift {
	case 1:
		if match {
			c.PSW &^= PSWXF
		}
	case 2:
		if match {
			c.PSW &^= PSWXF
			c.R[RegTP].Address = (c.R[RegTP].Address + 4) & 0xFFFFF
		}
	case 3:
		if match {
			c.PSW &^= PSWXF
			c.R[RegTP].Address = (c.R[RegTP].Address + 8) & 0xFFFFF
		}
	case 5:
		if !match {
			c.PSW &^= PSWXF
		}
	case 6:
		if !match {
			c.PSW &^= PSWXF
			c.R[RegTP].Address = (c.R[RegTP].Address + 4) & 0xFFFFF
		}
	case 7:
		if !match {
			c.PSW &^= PSWXF
			c.R[RegTP].Address = (c.R[RegTP].Address + 8) & 0xFFFFF
		}
	}

	if cc&ccTR != 0 {
		v, err := read8(bus, (c.R[RegGC].Address+uint32(data&0xFF))&0xFFFFF)
		if err != nil {
			return false, err
		}
		data = uint16(v)
	}

	var err error
	if dstSize == 1 {
		err = write8(bus, c.R[gd].Address, uint8(data))
	} else {
		err = write16(bus, c.R[gd].Address, data)
	}
	if err != nil {
		return false, err
	}
	if cc&ccF1 != 0 {
		c.R[gd].Address = (c.R[gd].Address + uint32(dstSize)) & 0xFFFFF
	}

	return true, nil
}

// Step drives both channels by one unit each: a running channel with
// PSW.XF set moves one transfer unit, otherwise it decodes and executes
// one channel-program instruction. This is the entry point the host
// calls once per its own tick.
func (p *Processor) Step(bus Bus) error {
	for ch := 0; ch < 2; ch++ {
		if !p.Channel[ch].Running {
			continue
		}
		if err := p.stepChannel(bus, ch); err != nil {
			return err
		}
	}
	return nil
}

func (p *Processor) stepChannel(bus Bus, channel int) error {
	did, err := p.transfer(bus, channel)
	if err != nil {
		return err
	}
	if did {
		return nil
	}

	if err := p.execOne(bus, channel); err != nil {
		return err
	}

	c := &p.Channel[channel]
	if c.StartTransfer {
		c.StartTransfer = false
		c.PSW |= PSWXF
	}
	return nil
}
