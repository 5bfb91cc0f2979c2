/*
 * pandos - Nucleus: boot wiring and the shared kernel state.
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

// Package nucleus implements the privileged kernel core: boot
// wiring, the symmetric scheduler, the ten nucleus syscalls, the
// interrupt handler, and the uTLB-refill handler. Every entry point
// acquires the single global lock on entry and releases it before any
// call that can suspend the caller, per the concurrency model.
package nucleus

import (
	"log/slog"
	"sync"

	"github.com/pandos-os/core/internal/asl"
	"github.com/pandos-os/core/internal/machine"
	"github.com/pandos-os/core/internal/pcb"
)

// SupportContext is the pass-up surface a PCB's Support field must
// implement for the nucleus to forward program traps and TLB
// exceptions to the support level. Package support's Block implements
// it; the nucleus never imports package support, so the dependency
// runs support -> nucleus, never the reverse.
type SupportContext interface {
	// ExceptionState returns the saved-state slot to fill for the given
	// kind (0 = page fault, 1 = general exception) before passing up.
	ExceptionState(kind int) *pcb.ProcessState

	// ExceptionContext returns the stack pointer, status, and PC to
	// resume at for the given kind.
	ExceptionContext(kind int) (sp, status, pc uint32)

	// PageTableEntry returns the page-table entry at index, and
	// whether it is currently marked valid.
	PageTableEntry(index int) (entryHi, entryLo uint32, valid bool)
}

// Kernel holds every piece of shared nucleus state: the PCB pool, the
// active semaphore list, the ready queue, the device semaphore table,
// the process count, and the per-CPU bookkeeping the scheduler and
// syscall layer need. One Kernel instance exists per boot.
type Kernel struct {
	mu sync.Mutex // the global lock (§5)

	pool *pcb.Pool
	asl  *asl.ASL
	ready pcb.ProcQueue

	current []*pcb.PCB // per-CPU running process, nil when idle
	lastTOD []uint64   // per-CPU STCK snapshot at last dispatch

	deviceSem [machine.NumDeviceSem]int32

	procCount int

	cpus []machine.CPU
	tlbs []machine.TLB
	bus  machine.Bus

	log *slog.Logger
}

// New builds a Kernel wired to the given machine: one CPU/TLB per
// virtual processor plus the shared bus, and a logger for nucleus
// diagnostics (grounded on the teacher's slog-based logger.go).
func New(sim *machine.Simulator, log *slog.Logger) *Kernel {
	n := sim.NumCPU()
	k := &Kernel{
		pool:    pcb.NewPool(),
		asl:     asl.New(),
		current: make([]*pcb.PCB, n),
		lastTOD: make([]uint64, n),
		bus:     sim,
		log:     log,
	}
	for i := 0; i < n; i++ {
		k.cpus = append(k.cpus, sim.CPU(i))
		k.tlbs = append(k.tlbs, sim.TLB(i))
	}
	// Every device semaphore, including the pseudo-clock, starts at 0:
	// the first PASSEREN/CLOCKWAIT on a fresh semaphore always blocks.
	sim.SetInterruptSink(k)
	return k
}

// ProcessCount returns the number of live (non-terminated) processes,
// for tests and the monitor console.
func (k *Kernel) ProcessCount() int {
	k.mu.Lock()
	defer k.mu.Unlock()
	return k.procCount
}

// Boot installs the first PCB (the "test" process) on CPU 0's ready
// queue and runs the scheduler on every configured CPU. first carries
// the caller-supplied initial state (PC/SP/status) for the boot
// process; the nucleus does not itself know how to construct a user
// program image, matching spec.md's "user-level programs... are out
// of scope."
func (k *Kernel) Boot(first pcb.ProcessState) {
	k.mu.Lock()
	root, ok := k.pool.Alloc()
	if !ok {
		k.mu.Unlock()
		panic("nucleus: pcb pool exhausted during boot")
	}
	root.State = first
	k.procCount++
	k.ready.Insert(root)
	k.mu.Unlock()

	for i := range k.cpus {
		k.Schedule(i)
	}
}

// DeviceSemaphore exposes one entry of the device semaphore table by
// index, for the support level's per-ASID device mutex bookkeeping
// and for tests asserting invariant 2.
func (k *Kernel) DeviceSemaphore(idx int) *int32 {
	return &k.deviceSem[idx]
}

// WriteDeviceReg writes a device data register directly, bypassing
// the semaphore/DOIO protocol: data0/data1 are plain memory-mapped
// storage, not command triggers, so filling them in ahead of the
// command write that actually starts the device is not a suspension
// point.
func (k *Kernel) WriteDeviceReg(addr, val uint32) {
	k.bus.WriteWord(addr, val)
}

// TLB exposes one CPU's translation lookaside buffer, for the support
// level's page-fault handler (package vm) to probe and update
// directly, the same way TLBRefill does internally.
func (k *Kernel) TLB(prid int) machine.TLB {
	return k.tlbs[prid]
}

// Resume reloads prid's running process with state and dispatches it
// via LDST, for a support-level handler that has finished repairing
// whatever fault brought it in (page fault, syscall, program trap) and
// wants its U-proc to continue from the saved exception state, exactly
// as the reference's LDST(savedExceptState) retries the faulting
// instruction.
func (k *Kernel) Resume(prid int, state pcb.ProcessState) {
	k.mu.Lock()
	caller := k.current[prid]
	caller.State = state
	k.mu.Unlock()
	k.cpus[prid].LDST(&caller.State)
}

// NumCPU returns the number of virtual processors this Kernel was
// built with, for the monitor console's per-CPU status display.
func (k *Kernel) NumCPU() int {
	return len(k.cpus)
}

// CPUStatus reports the PID and saved PC of whatever process currently
// occupies prid's running slot, for the monitor console's ps command.
// running is false when the CPU is idle.
func (k *Kernel) CPUStatus(prid int) (pid int, pc uint32, running bool) {
	k.mu.Lock()
	defer k.mu.Unlock()
	p := k.current[prid]
	if p == nil {
		return 0, 0, false
	}
	return p.PID, p.State.PC, true
}

// CurrentA0 returns the a0 register of whatever process currently
// occupies prid's running slot. Support-level code calls this
// immediately after DoIO returns to read back the device status
// DeviceInterrupt placed there. This only reads back the calling
// process's own result because this simulator completes one DOIO at
// a time: nothing else can have claimed prid between the two calls.
func (k *Kernel) CurrentA0(prid int) uint32 {
	k.mu.Lock()
	defer k.mu.Unlock()
	return k.current[prid].State.GPR[RegA0]
}
