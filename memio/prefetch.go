/*
   x86emu prefetch queue: lazy fill with speculative fault swallowing.

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

import "github.com/BinaryMelodies/x86emu/trap"

// PrefetchQueue models the small ring of bytes the decoder reads ahead
// of the instruction pointer on families that implement one. A fill that
// crosses into an inaccessible page
// must not fault the guest until the fetch actually consumes that byte:
// Fill stops silently on a bus error, and Consume then misses so the
// decoder fetches that byte directly, where a fault is real.
type PrefetchQueue struct {
	buf   []byte
	base  uint64 // linear address of buf[0]
	valid int    // number of valid bytes starting at buf[0]
	size  int
}

// NewPrefetchQueue allocates a queue of the given byte capacity. A size of
// 0 disables prefetching outright (the family has none).
func NewPrefetchQueue(size int) *PrefetchQueue {
	return &PrefetchQueue{buf: make([]byte, size), size: size}
}

// Flush discards queued bytes, as happens on any control transfer
// ("a control transfer invalidates it").
func (q *PrefetchQueue) Flush() {
	q.valid = 0
}

// Enabled reports whether this family has a prefetch queue at all.
func (q *PrefetchQueue) Enabled() bool {
	return q.size > 0
}

// Fill tops the queue up to capacity starting at linear, via the bus. A
// bus error while reading ahead leaves the queue as it was and returns
// without raising anything, so no guest exception is raised for bytes not
// yet consumed.
func (q *PrefetchQueue) Fill(t *Translator, space Space, linear uint64) {
	if !q.Enabled() {
		return
	}
	if q.valid == 0 {
		q.base = linear
	}
	want := q.size - q.valid
	if want <= 0 {
		return
	}
	tmp := make([]byte, want)
	if err := t.Bus.MemoryRead(space, q.base+uint64(q.valid), tmp); err != nil {
		// Speculative: silently stop filling; Consume will fetch the byte
		// directly (and fault for real) when the decoder actually needs it.
		return
	}
	copy(q.buf[q.valid:], tmp)
	q.valid += want
}

// Consume returns the next queued byte at linear if present, reporting a
// miss otherwise so the caller falls back to a direct (non-speculative)
// fetch through the Translator, which is allowed to fault.
func (q *PrefetchQueue) Consume(linear uint64) (byte, bool) {
	if !q.Enabled() || q.valid == 0 || linear < q.base {
		return 0, false
	}
	off := linear - q.base
	if off >= uint64(q.valid) {
		return 0, false
	}
	b := q.buf[off]
	// Sliding window: drop everything up through the consumed byte so the
	// next Fill tops up from the new front.
	shift := int(off) + 1
	copy(q.buf, q.buf[shift:q.valid])
	q.valid -= shift
	q.base = linear + 1
	return b, true
}

// FetchSpeculative reads size bytes starting at linear purely to warm the
// queue; any fault is swallowed rather than delivered to the guest.
func (t *Translator) FetchSpeculative(space Space, linear uint64, size int) ([]byte, *trap.Fault) {
	buf := make([]byte, size)
	if err := t.Bus.MemoryRead(space, linear, buf); err != nil {
		return nil, trap.NewException(trap.VecPF, 0, true).Speculate()
	}
	return buf, nil
}
