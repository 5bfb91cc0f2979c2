/*
 * pandos - Virtual memory manager test suite.
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
	"io"
	"log/slog"
	"testing"

	"github.com/pandos-os/core/internal/machine"
	"github.com/pandos-os/core/internal/nucleus"
	"github.com/pandos-os/core/internal/pcb"
	"github.com/pandos-os/core/internal/support"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newTestKernel(t *testing.T) (*nucleus.Kernel, *machine.Simulator) {
	t.Helper()
	sim := machine.NewSimulator(65536, 1)
	return nucleus.New(sim, testLogger()), sim
}

// flashBacking gives device dev a zero-filled backing store large
// enough for every block this test touches.
func flashBacking(sim *machine.Simulator, dev int) {
	sim.SetFlashBacking(dev, make([]byte, 64*machine.PageSize))
}

// TestPageFaultHandlerFillsFreeFrame covers S4: a fault with free
// frames available pages the block straight in, no eviction, and
// leaves the swap-pool mutex released afterward.
func TestPageFaultHandlerFillsFreeFrame(t *testing.T) {
	k, sim := newTestKernel(t)
	k.Boot(pcb.ProcessState{})
	InitSwapStructs()
	flashBacking(sim, 0) // ASID 1 -> dev 0

	b := support.NewBlock(1)
	entryHi, _, validBefore := b.PageTableEntry(5)
	if validBefore {
		t.Fatalf("page table index 5 valid before any fault, want unmapped")
	}
	state := b.ExceptionState(support.PgFaultExcept)
	state.EntryHi = entryHi

	PageFaultHandler(k, 0, b)

	_, entryLo, valid := b.PageTableEntry(5)
	if !valid {
		t.Fatalf("page table index 5 not valid after page-in")
	}
	if entryLo&support.EntryLoDirty == 0 {
		t.Fatalf("page-in lost the dirty bit: entryLo = %#x", entryLo)
	}
	if swapTable[0].asid != 1 || swapTable[0].vpn != int(entryHi>>support.VPNShift) {
		t.Fatalf("swap frame 0 = %+v, want owned by ASID 1 vpn %d", swapTable[0], entryHi>>support.VPNShift)
	}
	if SwapPoolSemaphore != 1 {
		t.Fatalf("SwapPoolSemaphore = %d after fault, want released back to 1", SwapPoolSemaphore)
	}
	if AsidInSwapPool != 0 {
		t.Fatalf("AsidInSwapPool = %d after fault, want 0", AsidInSwapPool)
	}
}

// TestPageFaultHandlerEvictsRoundRobinVictim covers S5: with every
// frame occupied, the next fault evicts the frame at the round-robin
// cursor, flashes its dirty page back to its own owner's block, clears
// its valid bit, and installs the new page in the freed slot.
func TestPageFaultHandlerEvictsRoundRobinVictim(t *testing.T) {
	k, sim := newTestKernel(t)
	k.Boot(pcb.ProcessState{})
	InitSwapStructs()

	flashBacking(sim, 2) // victim ASID 3 -> dev 2
	flashBacking(sim, 1) // faulting ASID 2 -> dev 1

	victimPTEs := make([]*support.PTE, machine.SwapPoolSize)
	for i := range swapTable {
		pte := &support.PTE{
			EntryHi: uint32(machine.UserCodeBase) + uint32(i)*machine.PageSize + 3<<support.ASIDShift,
			EntryLo: support.EntryLoValid | support.EntryLoDirty,
		}
		victimPTEs[i] = pte
		swapTable[i] = swapEntry{asid: 3, vpn: i, pte: pte}
	}
	victimCursor = 0

	b := support.NewBlock(2)
	entryHi, _, _ := b.PageTableEntry(3)
	state := b.ExceptionState(support.PgFaultExcept)
	state.EntryHi = entryHi

	PageFaultHandler(k, 0, b)

	if victimPTEs[0].EntryLo&support.EntryLoValid != 0 {
		t.Fatalf("evicted victim's valid bit still set: entryLo = %#x", victimPTEs[0].EntryLo)
	}
	if swapTable[0].asid != 2 || swapTable[0].vpn != int(entryHi>>support.VPNShift) {
		t.Fatalf("swap frame 0 = %+v, want reassigned to ASID 2 vpn %d", swapTable[0], entryHi>>support.VPNShift)
	}
	if victimCursor != 1 {
		t.Fatalf("victimCursor = %d after evicting frame 0, want 1", victimCursor)
	}
	_, _, valid := b.PageTableEntry(3)
	if !valid {
		t.Fatalf("faulting process's own page table entry not marked valid after page-in")
	}
	if SwapPoolSemaphore != 1 {
		t.Fatalf("SwapPoolSemaphore = %d after fault, want released back to 1", SwapPoolSemaphore)
	}
}

// TestPageFaultHandlerResidentAndValidSkipsEviction covers step 3 of
// §4.9's protocol: a second fault for an (ASID, VPN) that is already
// resident in the swap table and still marked valid - its TLB entry
// alone went missing - must only refresh the TLB. It must not select
// a frame, evict a victim, or touch flash a second time.
func TestPageFaultHandlerResidentAndValidSkipsEviction(t *testing.T) {
	k, sim := newTestKernel(t)
	k.Boot(pcb.ProcessState{})
	InitSwapStructs()
	flashBacking(sim, 0) // ASID 1 -> dev 0

	b := support.NewBlock(1)
	entryHi, _, _ := b.PageTableEntry(5)
	state := b.ExceptionState(support.PgFaultExcept)
	state.EntryHi = entryHi

	PageFaultHandler(k, 0, b) // first fault pages the block in
	if victimCursor != 1 {
		t.Fatalf("victimCursor = %d after first fault, want 1", victimCursor)
	}

	PageFaultHandler(k, 0, b) // second fault: same (ASID, VPN), still valid

	if victimCursor != 1 {
		t.Fatalf("victimCursor = %d after resident-and-valid fault, want unchanged at 1 (no frame selected)", victimCursor)
	}
	if swapTable[1].asid != -1 {
		t.Fatalf("swapTable[1] = %+v, want still free - the fast path must not consume a frame", swapTable[1])
	}
	if SwapPoolSemaphore != 1 {
		t.Fatalf("SwapPoolSemaphore = %d after resident-and-valid fault, want released back to 1", SwapPoolSemaphore)
	}
	if _, _, valid := b.PageTableEntry(5); !valid {
		t.Fatalf("page table index 5 not valid after resident-and-valid fault")
	}
}

// TestFreeOrVictimFramePrefersFreeSlot covers the cursor's scan-ahead
// behavior directly: a free slot anywhere ahead of the cursor is
// chosen over evicting the cursor's own (occupied) slot.
func TestFreeOrVictimFramePrefersFreeSlot(t *testing.T) {
	InitSwapStructs()
	for i := 0; i < machine.SwapPoolSize; i++ {
		if i != 5 {
			swapTable[i] = swapEntry{asid: 1, vpn: i, pte: &support.PTE{}}
		}
	}
	victimCursor = 0

	frame := freeOrVictimFrame()
	if frame != 5 {
		t.Fatalf("freeOrVictimFrame() = %d, want the one free slot at 5", frame)
	}
}

// TestTLBExceptionRoutesOnCause covers TLBException's cause gate: a
// genuine TLB-invalid cause goes to PageFaultHandler and pages the
// block in, while any other cause reaching this path terminates the
// process instead of being treated as a fault.
func TestTLBExceptionRoutesOnCause(t *testing.T) {
	k, sim := newTestKernel(t)
	k.Boot(pcb.ProcessState{})
	InitSwapStructs()
	flashBacking(sim, 0) // ASID 1 -> dev 0

	b := support.NewBlock(1)
	entryHi, _, _ := b.PageTableEntry(5)
	state := b.ExceptionState(support.PgFaultExcept)
	state.EntryHi = entryHi
	state.Cause = machine.ExcTLBInvalidStore

	TLBException(k, 0, b)

	if _, _, valid := b.PageTableEntry(5); !valid {
		t.Fatalf("page table index 5 not valid after a genuine TLB-invalid-store fault")
	}
}

// TestTLBExceptionTerminatesOnOtherCause covers the same gate's
// default branch: this simulator models no read-only bit, so a TLB
// exception carrying neither load nor store cause (e.g. an
// address-error kind misrouted here) cannot be serviced and the
// process is terminated rather than silently paged in.
func TestTLBExceptionTerminatesOnOtherCause(t *testing.T) {
	k, _ := newTestKernel(t)
	k.Boot(pcb.ProcessState{})
	InitSwapStructs()
	support.MasterSemaphore = 0 // Terminate's final V must not block this call

	b := support.NewBlock(1)
	state := b.ExceptionState(support.PgFaultExcept)
	state.Cause = machine.ExcSyscallBreak // not ExcTLBInvalidLoad/Store

	TLBException(k, 0, b)

	if got := k.ProcessCount(); got != 0 {
		t.Fatalf("ProcessCount() after non-TLB cause = %d, want 0 (terminated)", got)
	}
}

// TestInvalidateSwapClearsOwnedEntriesOnly covers Terminate's cleanup
// hook: only the terminating ASID's frames are freed.
func TestInvalidateSwapClearsOwnedEntriesOnly(t *testing.T) {
	InitSwapStructs()
	swapTable[0] = swapEntry{asid: 3, vpn: 0, pte: &support.PTE{}}
	swapTable[1] = swapEntry{asid: 4, vpn: 0, pte: &support.PTE{}}

	InvalidateSwap(3)

	if swapTable[0].asid != -1 {
		t.Fatalf("swapTable[0].asid = %d after InvalidateSwap(3), want -1 (freed)", swapTable[0].asid)
	}
	if swapTable[1].asid != 4 {
		t.Fatalf("swapTable[1].asid = %d after InvalidateSwap(3), want untouched 4", swapTable[1].asid)
	}
}

// TestReleaseSwapIfHolderOnlyReleasesCurrentHolder covers the
// ASID-match guard: ReleaseSwapIfHolder is a no-op for a process that
// was never holding the mutex.
func TestReleaseSwapIfHolderOnlyReleasesCurrentHolder(t *testing.T) {
	k, _ := newTestKernel(t)
	k.Boot(pcb.ProcessState{})
	SwapPoolSemaphore = 0
	AsidInSwapPool = 7

	ReleaseSwapIfHolder(k, 0, 3) // not the holder
	if SwapPoolSemaphore != 0 {
		t.Fatalf("SwapPoolSemaphore = %d, want untouched 0 for a non-holder", SwapPoolSemaphore)
	}

	ReleaseSwapIfHolder(k, 0, 7) // the actual holder
	if SwapPoolSemaphore != 1 {
		t.Fatalf("SwapPoolSemaphore = %d after releasing the true holder, want 1", SwapPoolSemaphore)
	}
	if AsidInSwapPool != 0 {
		t.Fatalf("AsidInSwapPool = %d after release, want 0", AsidInSwapPool)
	}
}
