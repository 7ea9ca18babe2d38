/*
   x86emu disassembly: a thin read-only adapter over x86asm for the host
   debug surface.

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

// Package disasm implements the host-invokable disassemble(instance, pc)
// operation. It is deliberately a read-only adapter: it reads bytes
// through a Reader (the cpu package's linear-memory view) and formats
// them with golang.org/x/arch/x86/x86asm. Nothing here mutates guest
// state, and a host that never disassembles can ignore the package
// entirely.
package disasm

import (
	"fmt"

	"golang.org/x/arch/x86/x86asm"
)

// Reader supplies raw bytes for disassembly; the cpu package's linear
// memory view satisfies this directly.
type Reader interface {
	ReadBytes(linear uint64, n int) ([]byte, error)
}

// Mode selects the x86asm decode mode (16, 32, or 64-bit default
// operand/address size).
type Mode int

const (
	Mode16 Mode = 16
	Mode32 Mode = 32
	Mode64 Mode = 64
)

// Disassemble decodes one instruction at linear address pc and returns
// its GNU-syntax text plus its length, or an error if the bytes at pc
// don't form a valid x86 instruction (x86asm.Decode's own error, passed
// through unwrapped so callers can distinguish a short read from a
// genuinely undecodable byte sequence).
func Disassemble(r Reader, pc uint64, mode Mode) (string, int, error) {
	// x86asm needs up to 15 bytes of lookahead for the longest legal
	// instruction encoding; a short read at the end of mapped memory is
	// fine, Decode will just fail if it actually needed the missing bytes.
	buf, err := r.ReadBytes(pc, 15)
	if err != nil && len(buf) == 0 {
		return "", 0, err
	}
	inst, err := x86asm.Decode(buf, int(mode))
	if err != nil {
		return "", 0, fmt.Errorf("disassemble at 0x%x: %w", pc, err)
	}
	return x86asm.GNUSyntax(inst, pc, nil), inst.Len, nil
}
