/*
 * pandos - Support-level instantiator (§4.6): the "test" process.
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

package support

import (
	"github.com/pandos-os/core/internal/machine"
	"github.com/pandos-os/core/internal/nucleus"
	"github.com/pandos-os/core/internal/pcb"
)

// ASIDShift and VPNShift position the ASID and VPN fields within
// EntryHi, matching the reference machine's bit layout.
const (
	ASIDShift = 6
	VPNShift  = 12
)

// Symbolic handler entry points. Nothing in this simulator executes
// at these addresses - LDCXT only records them for inspection - so
// any distinct values would do; these mirror the reference binary's
// handler symbols closely enough to read sensibly in a trace.
const (
	generalHandlerPC = 0x90000000
	pgFaultHandlerPC = 0x90001000
)

// MasterSemaphore is V'd once by every U-proc that terminates, and
// PASSEREN'd once per U-proc by the instantiator, so it blocks until
// all eight have exited. It starts at 0: the instantiator's first
// wait always blocks until the first termination.
var MasterSemaphore int32

// NewBlock fabricates the support structure for a fresh U-proc of the
// given ASID (1..8): an empty page table pre-filled with every
// mapping's ASID/VPN but no valid bit (no page is resident yet), and
// the two handler contexts pointed at this package's handlers running
// on their own private kernel-mode stacks.
func NewBlock(asid int) *Block {
	b := &Block{ASID: asid}

	for i := 0; i < machine.UserPgTblSize-1; i++ {
		b.PageTable[i] = PTE{
			EntryHi: uint32(machine.UserCodeBase + i*machine.PageSize + asid<<ASIDShift),
			EntryLo: EntryLoDirty,
		}
	}
	b.PageTable[machine.UserPgTblSize-1] = PTE{
		EntryHi: uint32(machine.UserStackPage + asid<<ASIDShift),
		EntryLo: EntryLoDirty,
	}

	// Stack-pointer values are synthetic: this simulator has no address
	// space backing them, only the bookkeeping ExceptionContext/LDCXT
	// need, so each Block gets two values distinct by ASID and handler.
	b.exceptContexts[GeneralExcept] = exceptContext{
		PC:     generalHandlerPC,
		Status: 0,
		SP:     uint32(0x90010000 + asid*0x1000),
	}
	b.exceptContexts[PgFaultExcept] = exceptContext{
		PC:     pgFaultHandlerPC,
		Status: 0,
		SP:     uint32(0x90020000 + asid*0x1000),
	}
	return b
}

// initState fabricates a U-proc's initial processor state: PC at the
// user start address, SP at the user stack top, status userStatus
// (interrupts unmasked and user mode; it sets no processor-local-timer
// enable bit), and EntryHi carrying the ASID.
func initState(asid int) pcb.ProcessState {
	return pcb.ProcessState{
		PC:      machine.UserStartAddr,
		EntryHi: uint32(asid << ASIDShift),
		Status:  userStatus,
		GPR:     [pcb.GPRLen]uint32{RegSP: machine.UserStackTop},
	}
}

// RegSP is the stack-pointer slot in a ProcessState's GPR array,
// matching nucleus.RegSP.
const RegSP = 2

// Status bits for a fresh U-proc: every interrupt line unmasked,
// previous-interrupt-enabled, and user mode - IMON | IEPON | USERPON.
const userStatus = 0x0000FF00 | 0x4 | 0x8

// Instantiator is package support's "test" process: it brings up the
// swap pool, fabricates and CREATEPROCESSes the eight U-procs, then
// blocks on the master semaphore once per U-proc before terminating
// itself. initSwap is called first so vmSupport's swap table exists
// before any U-proc can fault.
func Instantiator(k *nucleus.Kernel, prid int, initSwap func()) {
	initSwap()

	for asid := 1; asid <= machine.UProcMax; asid++ {
		state := initState(asid)
		supp := NewBlock(asid)
		k.CreateProcess(prid, state, supp)
	}

	for i := 0; i < machine.UProcMax; i++ {
		k.Passeren(prid, &MasterSemaphore)
	}

	k.TermProcess(prid, 0)
	k.Schedule(prid)
}
