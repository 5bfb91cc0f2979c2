/*
 * pandos - Swap pool and swap table (§3, §4.9).
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

// Package vm implements the support level's virtual memory manager:
// the shared swap pool and swap table, and the TLB-invalid exception
// (page fault) handler that pages user data in and out of it. Package
// vm imports package support for the per-U-proc Block/PTE types;
// support never imports vm, so Terminate's swap-cleanup hooks are
// threaded in as plain function values rather than a direct call.
package vm

import (
	"github.com/pandos-os/core/internal/machine"
	"github.com/pandos-os/core/internal/nucleus"
	"github.com/pandos-os/core/internal/support"
)

// SwapPoolBase is the first byte of the swap pool's frames, per §6:
// "swap pool begins at RAMSTART + (32 + N_CPU)*PAGESIZE" - the OS's
// own 32 frames plus one stack page per CPU come first.
const SwapPoolBase = machine.RamStart + (32+machine.NCPU)*machine.PageSize

// SwapPoolSemaphore guards the swap table and every page-table entry
// touched during a fault. It starts at 1 (available): a standard
// binary mutex under this kernel's inverted PASSEREN/VERHOGEN scheme.
var SwapPoolSemaphore int32 = 1

// AsidInSwapPool records which ASID currently holds SwapPoolSemaphore,
// 0 when free, so Terminate can tell whether a terminating U-proc must
// release it on the way out.
var AsidInSwapPool int

// swapEntry is one frame's occupant: which ASID and VPN it holds, and
// a pointer back to the owning page-table entry so PageFaultHandler
// can invalidate it on eviction without a second lookup.
type swapEntry struct {
	asid int // -1 when free
	vpn  int
	pte  *support.PTE
}

// swapTable has one entry per swap-pool frame.
var swapTable [machine.SwapPoolSize]swapEntry

// victimCursor is the round-robin eviction cursor, static across
// faults: concurrent faults from different ASIDs share it, serialized
// by SwapPoolSemaphore. This is an explicit design choice (spec.md's
// open question resolves it this way), not an oversight.
var victimCursor int

// InitSwapStructs resets every swap-table entry to free, mirroring
// initSwapStructs. Called once by the instantiator before any U-proc
// can fault.
func InitSwapStructs() {
	for i := range swapTable {
		swapTable[i] = swapEntry{asid: -1}
	}
	victimCursor = 0
	AsidInSwapPool = 0
}

// FrameAddr returns the RAM address of swap frame i.
func FrameAddr(i int) uint32 {
	return SwapPoolBase + uint32(i)*machine.PageSize
}

// freeOrVictimFrame returns the next frame to use for an incoming
// page: the first free slot found scanning forward from the cursor,
// or the cursor's own slot (necessarily occupied) on wraparound,
// advancing the cursor past whichever slot it returns so the next
// fault starts from there.
func freeOrVictimFrame() int {
	for i := 0; i < machine.SwapPoolSize; i++ {
		idx := (victimCursor + i) % machine.SwapPoolSize
		if swapTable[idx].asid == -1 {
			victimCursor = (idx + 1) % machine.SwapPoolSize
			return idx
		}
	}
	idx := victimCursor
	victimCursor = (victimCursor + 1) % machine.SwapPoolSize
	return idx
}

// InvalidateSwap clears every swap-table entry owned by asid, for
// Terminate (§4.7): a terminating U-proc's frames become free without
// being written back, since the process that owned them is gone.
func InvalidateSwap(asid int) {
	for i := range swapTable {
		if swapTable[i].asid == asid {
			swapTable[i] = swapEntry{asid: -1}
		}
	}
}

// ReleaseSwapIfHolder Vs SwapPoolSemaphore if asid is its current
// holder, for Terminate: a U-proc that dies mid-fault must not leave
// the mutex held forever.
func ReleaseSwapIfHolder(k *nucleus.Kernel, prid int, asid int) {
	if AsidInSwapPool == asid {
		AsidInSwapPool = 0
		k.Verhogen(prid, &SwapPoolSemaphore)
	}
}
