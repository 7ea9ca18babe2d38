/*
   x86emu x89 auxiliary I/O processor: tagged addresses, two channels,
   the System Configuration Block attention handshake.

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

// Package x89 emulates the Intel 8089 auxiliary I/O processor: two
// DMA-like transfer channels, each with a tagged-pointer register set
// (GA/GB/GC/TP, where the tag bit distinguishes a 20-bit system-space
// pointer from a 16-bit local-space offset) and the System Configuration
// Block attention handshake that starts, continues, and halts them. The
// busy flag is a channel-program byte in guest memory (0xFF busy, 0x00
// clear), and the SCB itself is discovered on the first attention from
// the fixed top-of-memory pointers (sysbus at 0xFFFF6, SCB pointer at
// 0xFFFF8/0xFFFFA).
package x89

// RegNum identifies one of the eight per-channel registers.
type RegNum int

const (
	RegGA RegNum = iota
	RegGB
	RegGC
	RegBC // byte count
	RegTP // task pointer
	RegIX // index
	RegCC // channel control
	RegMC // mask/compare
)

// TaggedAddress is a 20-bit address with the tag bit distinguishing
// system-space (tag 0, full 20-bit segment:offset already combined) from
// local-space (tag 1, a plain 16-bit offset relative to the task's own
// segment), per x89_base_register_get / x89_register_set16_local.
type TaggedAddress struct {
	Address uint32 // low 20 bits significant when Tag==0
	Tag     uint8  // 0 = system space, 1 = local space
}

// Channel is one of the x89's two DMA-like transfer engines.
type Channel struct {
	R             [8]TaggedAddress
	PP            uint32 // parameter block pointer, set by the attention handshake
	PSW           uint8
	Running       bool
	StartTransfer bool // XFER was decoded; the channel program pauses one fetch before PSW.XF goes live
}

// PSW bits. The 8089's published documentation does not pin the internal
// PSW bit positions, so the assignment below is this package's own; only
// the flag semantics are architectural. See DESIGN.md.
const (
	PSWIS uint8 = 1 << 0 // interrupt service
	PSWIC uint8 = 1 << 1 // interrupt control / disarm
	PSWXF uint8 = 1 << 2 // transfer in progress; gates channelTransfer
	PSWD  uint8 = 1 << 3 // destination operand width, 0=byte 1=word
	PSWS  uint8 = 1 << 4 // source operand width, 0=byte 1=word
)

// CC (channel control, register RegCC) bits governing the transfer engine,
// per x89_channel_transfer's field tests. Same caveat as the PSW bits above:
// the bit positions are this package's own assignment.
const (
	ccS        uint16 = 1 << 0 // swap GA/GB as source/destination
	ccTR       uint16 = 1 << 1 // translate-through-GC: index GC with the transferred byte before the write
	ccF0       uint16 = 1 << 2 // post-increment the source pointer
	ccF1       uint16 = 1 << 3 // post-increment the destination pointer
	ccTS       uint16 = 1 << 4 // terminate after this unit unconditionally
	ccTBCShift        = 5
	ccTBCMask  uint16 = 3 << ccTBCShift // BC-exhausted termination mode (0=ignore, 2/3 add 4/8 to TP)
	ccTSHShift        = 7
	ccTSHMask  uint16 = 7 << ccTSHShift // compare-terminate mode against RegMC
)

// Processor is the full x89 state: the System Configuration Block
// pointers discovered on first attention, and the two channels.
type Processor struct {
	Initialized bool
	SysBus      uint16
	SOC         uint16
	CP          uint32 // channel-program-byte table base, full 20-bit address

	Channel [2]Channel
}

// Bus is the narrow external-memory interface the x89 needs: plain
// 8/16/32-bit little-endian reads/writes against the shared system
// address space (the same Bus the host x86 core's memio.Translator
// resolves linear addresses through — the x89 shares physical memory
// with the CPU, it just addresses it without segmentation).
type Bus interface {
	Read(addr uint32, buf []byte) error
	Write(addr uint32, buf []byte) error
}

func read16(b Bus, addr uint32) (uint16, error) {
	buf := make([]byte, 2)
	if err := b.Read(addr, buf); err != nil {
		return 0, err
	}
	return uint16(buf[0]) | uint16(buf[1])<<8, nil
}

func write8(b Bus, addr uint32, v uint8) error {
	return b.Write(addr, []byte{v})
}

func write16(b Bus, addr uint32, v uint16) error {
	return b.Write(addr, []byte{byte(v), byte(v >> 8)})
}

func read8(b Bus, addr uint32) (uint8, error) {
	buf := make([]byte, 1)
	if err := b.Read(addr, buf); err != nil {
		return 0, err
	}
	return buf[0], nil
}

// Get16 reads a channel register as a 16-bit value (low 16 bits of its
// tagged address), per x89_register_get16.
func (c *Channel) Get16(reg RegNum) uint16 {
	return uint16(c.R[reg&7].Address)
}

// Set16 writes the low 16 bits of a register without touching its tag,
// per x89_register_set16.
func (c *Channel) Set16(reg RegNum, value uint16) {
	c.R[reg&7].Address = uint32(int32(int16(value))) & 0xFFFFF
}

// Set16Local writes a register and, for the four pointer-shaped
// registers (GA/GB/GC/TP), also sets its tag to local-space, per
// x89_register_set16_local.
func (c *Channel) Set16Local(reg RegNum, value uint16) {
	c.Set16(reg, value)
	switch reg & 7 {
	case RegGA, RegGB, RegGC, RegTP:
		c.R[reg&7].Tag = 1
	}
}

// Get32 reads a pointer-shaped register as its full 20-bit address
// (masked) or a plain 16-bit value for the non-pointer registers, per
// x89_register_get32.
func (c *Channel) Get32(reg RegNum) uint32 {
	switch reg & 7 {
	case RegGA, RegGB, RegGC, RegTP:
		return c.R[reg&7].Address & 0xFFFFF
	default:
		return uint32(uint16(c.R[reg&7].Address))
	}
}

// Set32 is the inverse of Get32.
func (c *Channel) Set32(reg RegNum, value uint32) {
	switch reg & 7 {
	case RegGA, RegGB, RegGC, RegTP:
		c.R[reg&7].Address = value & 0xFFFFF
	default:
		c.R[reg&7].Address = uint32(int32(int16(uint16(value))))
	}
}

// busyClear marks a channel idle in both its own Running flag and the
// guest-visible channel-program byte, per x89_channel_busy_clear.
func (p *Processor) busyClear(bus Bus, channel int) error {
	if err := write8(bus, p.CP+uint32(8*channel), 0x00); err != nil {
		return err
	}
	p.Channel[channel].Running = false
	return nil
}

// busySet is the inverse of busyClear, per x89_channel_busy_set.
func (p *Processor) busySet(bus Bus, channel int) error {
	if err := write8(bus, p.CP+uint32(8*channel), 0xFF); err != nil {
		return err
	}
	p.Channel[channel].Running = true
	return nil
}
