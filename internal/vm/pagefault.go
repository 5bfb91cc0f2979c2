/*
 * pandos - TLB-invalid exception (page fault) handler (§4.9).
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

package vm

import (
	"github.com/pandos-os/core/internal/machine"
	"github.com/pandos-os/core/internal/nucleus"
	"github.com/pandos-os/core/internal/support"
)

// stackVPN is the reserved VPN for the user stack page, mirroring
// nucleus's uTLB-refill computation: the same fold applies here since
// a page fault and a uTLB miss address the same private page table.
const stackVPN = 0xBFFFF

func pageTableIndex(vpn uint32) int {
	if vpn == stackVPN {
		return machine.UserPgTblSize - 1
	}
	return int(vpn & 0xFF)
}

func flashBase(dev int) uint32 {
	return machine.DeviceRegBase + uint32(machine.LineFlash-machine.LineDisk)*machine.DeviceRegSpan + uint32(dev)*machine.DeviceRegWidth
}

// flashIO issues a synchronous flash read or write of one page-sized
// block at frameAddr and reports the resulting device status. The
// simulator's flash device auto-marshals bytes between its own
// backing store and RAM at the data0 address, so no explicit byte
// copy belongs here - see runFlash in package machine.
func flashIO(k *nucleus.Kernel, prid, dev, block int, frameAddr uint32, op uint32) uint32 {
	base := flashBase(dev)
	k.WriteDeviceReg(base+0x8, frameAddr) // data0
	k.DoIO(prid, base+0x4, uint32(block)<<8|op)
	return k.CurrentA0(prid)
}

// Hooks bundles the two swap-pool callbacks support.Terminate needs:
// invalidating a terminated ASID's swap-table entries and releasing
// SwapPoolSemaphore on its behalf if it was mid-fault when it exited.
// Exported so any caller of support.Terminate/ProgramTrapHandler/
// GeneralExceptionHandler (tests, cmd/pandos) can supply them without
// package support importing vm back.
func Hooks(k *nucleus.Kernel, prid int) (invalidateSwap, releaseSwapIfHolder func(asid int)) {
	invalidateSwap = func(asid int) { InvalidateSwap(asid) }
	releaseSwapIfHolder = func(asid int) { ReleaseSwapIfHolder(k, prid, asid) }
	return
}

// PageFaultHandler implements TLB_Handler, the eight-step protocol of
// spec.md §4.9: P the swap-pool mutex, pick a frame (evicting and
// flashing back a dirty victim if none is free), flash the missing
// page in, install it in the swap table and the faulting process's
// own page table, refresh the TLB, V the mutex, and resume the
// faulting instruction. Causes other than the two TLB-invalid ones
// are screened out by TLBException before this runs; a flash transfer
// that does not complete READY terminates the U-proc via
// support.Terminate.
func PageFaultHandler(k *nucleus.Kernel, prid int, b *support.Block) {
	state := b.ExceptionState(support.PgFaultExcept)
	vpn := state.EntryHi >> support.VPNShift
	index := pageTableIndex(vpn)
	dev := b.ASID - 1

	k.Passeren(prid, &SwapPoolSemaphore)
	AsidInSwapPool = b.ASID

	// The fault may already be serviced: another U-proc's fault could
	// have paged this (ASID, VPN) back in while the caller waited on
	// SwapPoolSemaphore, or the TLB entry could simply have been
	// evicted out from under an otherwise-valid page table entry. Either
	// way there is nothing to swap - just refresh the TLB and resume.
	for i := range swapTable {
		entry := &swapTable[i]
		if entry.asid == b.ASID && entry.vpn == int(vpn) && entry.pte.Valid() {
			if tlbIdx, ok := k.TLB(prid).Probe(entry.pte.EntryHi); ok {
				k.TLB(prid).WriteIndexed(tlbIdx, entry.pte.EntryHi, entry.pte.EntryLo)
			} else {
				k.TLB(prid).WriteRandom(entry.pte.EntryHi, entry.pte.EntryLo)
			}
			AsidInSwapPool = 0
			k.Verhogen(prid, &SwapPoolSemaphore)
			k.Resume(prid, *state)
			return
		}
	}

	frame := freeOrVictimFrame()
	victim := &swapTable[frame]

	fail := func() {
		AsidInSwapPool = 0
		k.Verhogen(prid, &SwapPoolSemaphore)
		invalidateSwap, releaseSwapIfHolder := Hooks(k, prid)
		support.Terminate(k, prid, b, invalidateSwap, releaseSwapIfHolder)
	}

	if victim.asid != -1 {
		victim.pte.EntryLo &^= support.EntryLoValid
		if victimTLB, ok := k.TLB(prid).Probe(victim.pte.EntryHi); ok {
			k.TLB(prid).WriteIndexed(victimTLB, victim.pte.EntryHi, victim.pte.EntryLo)
		}
		block := pageTableIndex(uint32(victim.vpn))
		if status := flashIO(k, prid, victim.asid-1, block, FrameAddr(frame), machine.FlashWrite); status != machine.StatusReady {
			fail()
			return
		}
	}

	if status := flashIO(k, prid, dev, index, FrameAddr(frame), machine.FlashRead); status != machine.StatusReady {
		fail()
		return
	}

	entry := &b.PageTable[index]
	entry.EntryLo = FrameAddr(frame)&^0xFFF | support.EntryLoValid | support.EntryLoDirty

	swapTable[frame] = swapEntry{asid: b.ASID, vpn: int(vpn), pte: entry}

	if tlbIdx, ok := k.TLB(prid).Probe(entry.EntryHi); ok {
		k.TLB(prid).WriteIndexed(tlbIdx, entry.EntryHi, entry.EntryLo)
	} else {
		k.TLB(prid).WriteRandom(entry.EntryHi, entry.EntryLo)
	}

	AsidInSwapPool = 0
	k.Verhogen(prid, &SwapPoolSemaphore)

	k.Resume(prid, *state)
}
