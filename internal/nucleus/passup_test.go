/*
 * pandos - Pass-up test suite.
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

package nucleus

import (
	"testing"

	"github.com/pandos-os/core/internal/machine"
	"github.com/pandos-os/core/internal/pcb"
)

// fakeSupport is a minimal SupportContext double, good enough to
// assert PassUp's bookkeeping without pulling in package support.
type fakeSupport struct {
	states   [2]pcb.ProcessState
	contexts [2][3]uint32 // sp, status, pc
}

func (f *fakeSupport) ExceptionState(kind int) *pcb.ProcessState { return &f.states[kind] }

func (f *fakeSupport) ExceptionContext(kind int) (sp, status, pc uint32) {
	c := f.contexts[kind]
	return c[0], c[1], c[2]
}

func (f *fakeSupport) PageTableEntry(index int) (entryHi, entryLo uint32, valid bool) {
	return 0, 0, false
}

// TestPassUpCopiesStateAndResumesHandlerContext covers §7's pass-up
// path: the caller's saved state lands in the support structure's
// exceptState[kind] tagged with cause, and the caller itself is
// resumed at the handler's SP/status/PC - it is not rescheduled or
// removed from its CPU's running slot.
func TestPassUpCopiesStateAndResumesHandlerContext(t *testing.T) {
	k, sim := newTestKernel(t, 1)
	k.Boot(pcb.ProcessState{PC: 0x800000B0, EntryHi: 0xBFFFF000})

	sup := &fakeSupport{}
	sup.contexts[GeneralExcept] = [3]uint32{0x90010000, 0x4, 0x90000000}
	k.current[0].Support = sup

	ok := k.PassUp(0, GeneralExcept, machine.ExcSyscallUser)
	if !ok {
		t.Fatalf("PassUp reported false with a valid support structure")
	}

	saved := sup.ExceptionState(GeneralExcept)
	if saved.PC != 0x800000B0 || saved.EntryHi != 0xBFFFF000 {
		t.Fatalf("saved exception state = %+v, want the caller's pre-trap state", saved)
	}
	if saved.Cause != machine.ExcSyscallUser {
		t.Fatalf("saved Cause = %#x, want %#x", saved.Cause, machine.ExcSyscallUser)
	}

	if k.current[0] == nil {
		t.Fatalf("PassUp must leave the process in its CPU's running slot")
	}
	got := k.current[0].State
	if got.PC != 0x90000000 || got.Status != 0x4 || got.GPR[RegSP] != 0x90010000 {
		t.Fatalf("resumed state = %+v, want the handler's SP/status/PC", got)
	}
	if _, halted, waiting := sim.CPUSnapshot(0); halted || waiting {
		t.Fatalf("CPU 0 halted=%v waiting=%v, want still running", halted, waiting)
	}
}

// TestHandleProgramTrapNoSupportTerminates covers the "no support
// structure" branch: a process with no pass-up target is terminated
// and the CPU rescheduled rather than left spinning on a trap it
// cannot forward.
func TestHandleProgramTrapNoSupportTerminates(t *testing.T) {
	k, _ := newTestKernel(t, 1)
	k.Boot(pcb.ProcessState{})

	k.HandleProgramTrap(0, machine.ExcSyscallBreak)

	if got := k.ProcessCount(); got != 0 {
		t.Fatalf("ProcessCount() after terminate-on-trap = %d, want 0", got)
	}
}

// TestHandleTLBExceptionPassesUpWithSupport covers the pass-up branch
// for a TLB-invalid exception: the process survives, now resumed at
// its page-fault handler context, and the saved state carries the
// cause that triggered it.
func TestHandleTLBExceptionPassesUpWithSupport(t *testing.T) {
	k, _ := newTestKernel(t, 1)
	k.Boot(pcb.ProcessState{EntryHi: 0x80003000})

	sup := &fakeSupport{}
	sup.contexts[PgFaultExcept] = [3]uint32{0x90020000, 0x4, 0x90001000}
	k.current[0].Support = sup

	k.HandleTLBException(0, machine.ExcTLBInvalidLoad)

	if got := k.ProcessCount(); got != 1 {
		t.Fatalf("ProcessCount() after pass-up = %d, want 1 (process survives)", got)
	}
	saved := sup.ExceptionState(PgFaultExcept)
	if saved.EntryHi != 0x80003000 || saved.Cause != machine.ExcTLBInvalidLoad {
		t.Fatalf("saved page-fault state = %+v, want the faulting EntryHi/Cause", saved)
	}
	if k.current[0].State.PC != 0x90001000 {
		t.Fatalf("resumed PC = %#x, want the page-fault handler's PC", k.current[0].State.PC)
	}
}
