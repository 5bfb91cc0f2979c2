/*
 * pandos - Flat word-addressed RAM backing the Bus interface.
 *
 * Copyright 2024, Richard Cornwell
 *
 * Permission is hereby granted, free of charge, to any person obtaining a copy
 * of this software and associated documentation files (the "Software"), to deal
 * in the Software without restriction, including without limitation the rights
 * to use, copy, modify, merge, publish, distribute, sublicense, and/or sell
 * copies of the Software, and to permit persons to whom the Software is
 * furnished to do so, subject to the following conditions:
 *
 * The above copyright notice and this permission notice shall be included in
 * all copies or substantial portions of the Software.
 *
 * THE SOFTWARE IS PROVIDED "AS IS", WITHOUT WARRANTY OF ANY KIND, EXPRESS OR
 * IMPLIED, INCLUDING BUT NOT LIMITED TO THE WARRANTIES OF MERCHANTABILITY,
 * FITNESS FOR A PARTICULAR PURPOSE AND NONINFRINGEMENT. IN NO EVENT SHALL THE
 * AUTHORS OR COPYRIGHT HOLDERS BE LIABLE FOR ANY CLAIM, DAMAGES OR OTHER
 * LIABILITY, WHETHER IN AN ACTION OF CONTRACT, TORT OR OTHERWISE, ARISING FROM,
 * OUT OF OR IN CONNECTION WITH THE SOFTWARE OR THE USE OR OTHER DEALINGS IN THE
 * SOFTWARE.
 *
 */

package machine

// ram is a flat array of 32-bit words, generalizing the teacher's
// memory package: where the teacher keys a fixed 4M-word IBM-370
// store, here the store is sized to whatever the boot configuration
// requests and grows no key/protection bits, since this machine has
// no storage-protection feature.
type ram struct {
	words []uint32
}

func newRAM(sizeWords int) *ram {
	return &ram{words: make([]uint32, sizeWords)}
}

func (r *ram) getWord(addr uint32) uint32 {
	idx := addr >> 2
	if int(idx) >= len(r.words) {
		return 0
	}
	return r.words[idx]
}

func (r *ram) putWord(addr uint32, data uint32) {
	idx := addr >> 2
	if int(idx) >= len(r.words) {
		return
	}
	r.words[idx] = data
}

func (r *ram) sizeBytes() uint32 {
	return uint32(len(r.words)) * WordLen
}
