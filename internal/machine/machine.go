/*
 * pandos - BIOS/device contract interfaces.
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

import "github.com/pandos-os/core/internal/pcb"

// CPU is the privileged register/control surface the nucleus drives
// on a single virtual processor. It stands in for the BIOS-provided
// LDST/LDCXT/HALT/WAIT/STCK/LDIT/setTIMER/getPRID primitives spec.md
// §1 treats as external collaborators.
type CPU interface {
	// PRID returns this CPU's zero-based processor id.
	PRID() int

	// LDST resumes execution with the given saved state loaded into
	// every register, never returning to the caller.
	LDST(state *pcb.ProcessState)

	// LDCXT resumes execution at pc with the given stack pointer and
	// status word loaded, used to enter a support-level handler.
	LDCXT(sp, status, pc uint32)

	// HALT stops this CPU permanently.
	HALT()

	// WAIT idles this CPU until the next interrupt.
	WAIT()

	// STCK returns the current time-of-day clock value, in microseconds.
	STCK() uint64

	// LDIT (re)loads the interval timer with the given microsecond
	// interval, used to arm the pseudo-clock.
	LDIT(interval uint32)

	// SetTIMER (re)loads this CPU's process-local timer, in microseconds.
	SetTIMER(ticks uint32)
}

// TLB is the per-CPU translation lookaside buffer contract.
type TLB interface {
	// Probe searches for an entry matching entryHi and returns its
	// index, or ok=false if no entry matches.
	Probe(entryHi uint32) (index int, ok bool)

	// Read returns the entryHi/entryLo pair stored at index.
	Read(index int) (entryHi, entryLo uint32)

	// WriteIndexed overwrites the entry at index (TLBWI).
	WriteIndexed(index int, entryHi, entryLo uint32)

	// WriteRandom overwrites a pseudo-random non-wired entry (TLBWR).
	WriteRandom(entryHi, entryLo uint32)

	// Clear invalidates every entry.
	Clear()
}

// Bus is the raw little-endian word-addressed memory and device
// register window described in spec.md §6.
type Bus interface {
	// ReadWord reads the 32-bit word at addr.
	ReadWord(addr uint32) uint32

	// WriteWord writes val to the 32-bit word at addr.
	WriteWord(addr uint32, val uint32)
}
