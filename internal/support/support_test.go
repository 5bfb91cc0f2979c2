/*
 * pandos - Support-level test suite.
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
	"io"
	"log/slog"
	"testing"

	"github.com/pandos-os/core/internal/machine"
	"github.com/pandos-os/core/internal/nucleus"
	"github.com/pandos-os/core/internal/pcb"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newTestKernel(t *testing.T, numCPU int) (*nucleus.Kernel, *machine.Simulator) {
	t.Helper()
	sim := machine.NewSimulator(4096, numCPU)
	return nucleus.New(sim, testLogger()), sim
}

// fakeMem is a flat byte array standing in for a U-proc's own address
// space, since this simulator has no TLB-backed RAM behind user
// virtual addresses for the support level to walk directly.
type fakeMem struct {
	base uint32
	buf  [256]byte
}

func (m *fakeMem) ReadByte(virt uint32) byte     { return m.buf[virt-m.base] }
func (m *fakeMem) WriteByte(virt uint32, b byte) { m.buf[virt-m.base] = b }

// TestNewBlockPageTableStartsInvalid covers §4.6: every page-table
// entry is fabricated with the dirty bit set but not the valid bit, so
// the very first reference to any page is a genuine fault.
func TestNewBlockPageTableStartsInvalid(t *testing.T) {
	b := NewBlock(3)
	for i := 0; i < machine.UserPgTblSize; i++ {
		_, entryLo, valid := b.PageTableEntry(i)
		if valid {
			t.Fatalf("page table index %d valid at creation, want unmapped", i)
		}
		if entryLo&EntryLoDirty == 0 {
			t.Fatalf("page table index %d missing dirty bit", i)
		}
	}
}

// TestWritePrinterTransmitsUntilNUL covers syscall 3: each non-NUL
// byte at virt triggers one DOIO, and the count returned stops at the
// first NUL rather than running the full requested length.
func TestWritePrinterTransmitsUntilNUL(t *testing.T) {
	k, _ := newTestKernel(t, 1)
	k.Boot(pcb.ProcessState{})

	b := NewBlock(1)
	mem := &fakeMem{base: machine.UserCodeBase}
	copy(mem.buf[:], "hi\x00tail")

	n := WritePrinter(k, 0, b, mem.ReadByte, machine.UserCodeBase, 8)
	if n != 2 {
		t.Fatalf("WritePrinter returned %d, want 2 (stopped at NUL)", n)
	}
}

// TestWriteTerminalReturnsTransmittedCount covers the success path of
// syscall 4: every character completes with CharTransm, and the count
// returned stops at the first NUL. The negated-status failure path is
// not exercised here, since the scripted backend's transmit always
// completes with CharTransm.
func TestWriteTerminalReturnsTransmittedCount(t *testing.T) {
	k, sim := newTestKernel(t, 1)
	k.Boot(pcb.ProcessState{})

	b := NewBlock(1)
	mem := &fakeMem{base: machine.UserCodeBase}
	copy(mem.buf[:], "ok\x00")

	n := WriteTerminal(k, 0, b, mem.ReadByte, machine.UserCodeBase, 8)
	if n != 2 {
		t.Fatalf("WriteTerminal returned %d, want 2", n)
	}
	if got := string(sim.TerminalBackend(0).Written()); got != "ok" {
		t.Fatalf("terminal received %q, want %q", got, "ok")
	}
}

// TestReadTerminalStopsAtNewlineAndNULTerminates covers syscall 5: a
// fed '\n' ends the read without being counted or copied in, and the
// destination gets a NUL terminator one byte past the last character.
func TestReadTerminalStopsAtNewlineAndNULTerminates(t *testing.T) {
	k, sim := newTestKernel(t, 1)
	k.Boot(pcb.ProcessState{})
	sim.TerminalBackend(0).Feed('h', 'i', '\n')

	b := NewBlock(1)
	mem := &fakeMem{base: machine.UserStackPage}

	n := ReadTerminal(k, 0, b, mem.WriteByte, machine.UserStackPage)
	if n != 2 {
		t.Fatalf("ReadTerminal returned %d, want 2", n)
	}
	if mem.buf[0] != 'h' || mem.buf[1] != 'i' || mem.buf[2] != 0 {
		t.Fatalf("buffer = %q, want \"hi\\x00...\"", mem.buf[:3])
	}
}

// TestTerminateReleasesMasterSemaphoreAndDeviceMutexes covers syscall
// 2: every device mutex the ASID left held is released, the master
// semaphore is V'd once, and the process itself is gone afterward.
func TestTerminateReleasesMasterSemaphoreAndDeviceMutexes(t *testing.T) {
	k, _ := newTestKernel(t, 1)
	k.Boot(pcb.ProcessState{})

	b := NewBlock(2)
	idx := deviceMutexIndex(linePrinter, b.ASID-1)
	k.Passeren(0, &deviceMutex[idx]) // simulate the ASID holding its printer mutex
	MasterSemaphore = 0

	var invalidated, released bool
	Terminate(k, 0, b, func(asid int) { invalidated = asid == b.ASID }, func(asid int) { released = asid == b.ASID })

	if deviceMutex[idx] != 1 {
		t.Fatalf("printer mutex = %d after Terminate, want released back to 1", deviceMutex[idx])
	}
	if MasterSemaphore != 1 {
		t.Fatalf("MasterSemaphore = %d after Terminate, want 1 (V'd once)", MasterSemaphore)
	}
	if !invalidated || !released {
		t.Fatalf("invalidateSwap/releaseSwapIfHolder not called with this ASID")
	}
	if got := k.ProcessCount(); got != 0 {
		t.Fatalf("ProcessCount() after Terminate = %d, want 0", got)
	}
}

// TestSyscallHandlerInvalidAddressTerminates covers the WRITEPRINTER/
// WRITETERMINAL validity check: a buffer outside the user's code/data
// or stack region is fatal, exactly like an unrecognized syscall
// number would be in the reference.
func TestSyscallHandlerInvalidAddressTerminates(t *testing.T) {
	k, _ := newTestKernel(t, 1)
	k.Boot(pcb.ProcessState{})

	MasterSemaphore = 0 // Terminate's final V must not block this standalone call
	b := NewBlock(4)
	state := b.ExceptionState(GeneralExcept)
	state.GPR[nucleus.RegA0] = machine.SysWritePrinter
	state.GPR[nucleus.RegA1] = 0 // well outside the user address space
	state.GPR[nucleus.RegA2] = 4
	state.Cause = machine.ExcSyscallUser

	mem := &fakeMem{base: machine.UserCodeBase}
	SyscallHandler(k, 0, b, mem, func(int) {}, func(int) {})

	if got := k.ProcessCount(); got != 0 {
		t.Fatalf("ProcessCount() after invalid-address WRITEPRINTER = %d, want 0 (terminated)", got)
	}
}

// TestGeneralExceptionHandlerRoutesSyscallVsTrap covers the dispatch
// on Cause: ExcSyscallUser goes to SyscallHandler, anything else is a
// program trap and is fatal.
func TestGeneralExceptionHandlerRoutesSyscallVsTrap(t *testing.T) {
	k, _ := newTestKernel(t, 1)
	k.Boot(pcb.ProcessState{})

	MasterSemaphore = 0 // the program-trap path also terminates via Terminate
	b := NewBlock(5)
	state := b.ExceptionState(GeneralExcept)
	state.GPR[nucleus.RegA0] = machine.SysTerminate
	state.Cause = 0 // not ExcSyscallUser: should be treated as a program trap, not TERMINATE

	mem := &fakeMem{base: machine.UserCodeBase}
	GeneralExceptionHandler(k, 0, b, mem, func(int) {}, func(int) {})

	if got := k.ProcessCount(); got != 0 {
		t.Fatalf("ProcessCount() after non-syscall cause = %d, want 0 (program trap terminates)", got)
	}
}
