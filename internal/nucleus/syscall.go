/*
 * pandos - Nucleus (M-mode) syscalls.
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
	"github.com/pandos-os/core/internal/machine"
	"github.com/pandos-os/core/internal/pcb"
	"github.com/pandos-os/core/util/debug"
)

// deviceSemIndexForAddr maps a DOIO command address to its entry in
// the device semaphore table, per the formula in §4.4.
func (k *Kernel) deviceSemIndexForAddr(addr uint32) int {
	line, dev, off := machine.DecodeDeviceAddr(addr)
	return machine.DeviceSemIndex(line, dev, off)
}

// Register slots used to pass syscall arguments and return values, a
// RISC-V-flavored a0..a3 convention over the flat GPR array.
const (
	RegSP = 2
	RegA0 = 4
	RegA1 = 5
	RegA2 = 6
	RegA3 = 7
)

// CreateProcess implements syscall -1: allocate a PCB, copy state,
// link it as a child of the caller, insert it onto the ready queue,
// and return the new pid, or -1 if the pool is exhausted. Gated by
// checkSyscall: a user-mode caller or an out-of-range code never
// reaches createProcess at all.
func (k *Kernel) CreateProcess(prid int, state pcb.ProcessState, supp any) int {
	if !k.checkSyscall(prid, machine.SysCreateProcess) {
		return -1
	}
	return k.createProcess(prid, state, supp)
}

func (k *Kernel) createProcess(prid int, state pcb.ProcessState, supp any) int {
	k.mu.Lock()
	defer k.mu.Unlock()

	child, ok := k.pool.Alloc()
	if !ok {
		return -1
	}
	child.State = state
	child.Support = supp
	pcb.InsertChild(k.current[prid], child)
	k.ready.Insert(child)
	k.procCount++
	return child.PID
}

// TermProcess implements syscall -2. pid 0 means the caller itself.
// Every PCB in the victim's subtree is recursively detached from the
// process tree, pulled out of whatever queue holds it, and returned
// to the free pool. The caller (whoever issued the syscall) must
// reschedule afterward; TermProcess does not call Schedule itself so
// that terminating a process other than the caller does not disturb
// the caller's own dispatch.
//
// Gated by checkSyscall. HandleProgramTrap and HandleTLBException call
// termProcess directly instead: that cleanup is the nucleus's own act
// of killing a support-less process after a failed pass-up, not a new
// syscall issued by the (possibly still user-mode) victim.
func (k *Kernel) TermProcess(prid int, pid int) {
	if !k.checkSyscall(prid, machine.SysTermProcess) {
		return
	}
	k.termProcess(prid, pid)
}

func (k *Kernel) termProcess(prid int, pid int) {
	k.mu.Lock()
	defer k.mu.Unlock()

	var victim *pcb.PCB
	if pid == 0 {
		victim = k.current[prid]
	} else {
		victim = k.findPCB(pid)
	}
	if victim == nil {
		return
	}
	k.terminateSubtree(victim)
}

// terminateSubtree recursively frees p and every descendant, depth
// first, matching terminateProcessSubTree's child-then-sibling order.
func (k *Kernel) terminateSubtree(p *pcb.PCB) {
	for !pcb.EmptyChild(p) {
		child := pcb.RemoveChild(p)
		k.terminateSubtree(child)
	}

	pcb.OutChild(p)
	k.ready.Out(p.PID)
	if p.SemAddr != nil {
		k.asl.OutBlocked(p)
	}
	for i, cur := range k.current {
		if cur == p {
			k.current[i] = nil
		}
	}
	k.procCount--
	k.pool.Free(p)
}

// findPCB locates a live PCB by pid: the per-CPU running slots, the
// ready queue, then every semaphore's blocked queue.
func (k *Kernel) findPCB(pid int) *pcb.PCB {
	for _, cur := range k.current {
		if cur != nil && cur.PID == pid {
			return cur
		}
	}
	// terminateSubtree unconditionally calls k.ready.Out/k.asl.OutBlocked
	// on whatever it's given, so removing the PCB here and handing it
	// back is safe: those calls become no-ops when they run again.
	if p := k.ready.Out(pid); p != nil {
		return p
	}
	return k.asl.OutBlockedPID(pid)
}

// blockCaller is the common "save state, account CPU time, skip the
// trapping instruction, park on sem, release, reschedule" sequence
// shared by Passeren and Verhogen when they must suspend the caller.
func (k *Kernel) blockCaller(prid int, sem *int32) {
	caller := k.current[prid]
	caller.CPUTime += k.elapsed(prid)
	caller.State.PC += 4
	k.current[prid] = nil
	if !k.asl.InsertBlocked(sem, caller) {
		panic("nucleus: ASL descriptor pool exhausted")
	}
	k.mu.Unlock()
	k.Schedule(prid)
}

// Passeren implements syscall -3. This kernel's semaphores are binary
// and the two primitives are deliberately asymmetric around which
// value blocks: PASSEREN blocks the caller when *sem == 0; otherwise
// it hands the availability it represents to the first waiter (or, if
// none, resets *sem to 0).
func (k *Kernel) Passeren(prid int, sem *int32) {
	if !k.checkSyscall(prid, machine.SysPasseren) {
		return
	}
	k.passeren(prid, sem)
}

func (k *Kernel) passeren(prid int, sem *int32) {
	k.mu.Lock()
	if *sem == 0 {
		debug.Tracef("nucleus", debug.Syscall, "cpu %d PASSEREN blocks on %p", prid, sem)
		k.blockCaller(prid, sem)
		return
	}
	if woken := k.asl.RemoveBlocked(sem); woken != nil {
		k.ready.Insert(woken)
	} else {
		*sem = 0
	}
	k.mu.Unlock()
}

// Verhogen implements syscall -4: the mirror image of Passeren,
// blocking the caller when *sem == 1, otherwise waking a waiter or
// resetting *sem to 1.
func (k *Kernel) Verhogen(prid int, sem *int32) {
	if !k.checkSyscall(prid, machine.SysVerhogen) {
		return
	}
	k.verhogen(prid, sem)
}

func (k *Kernel) verhogen(prid int, sem *int32) {
	k.mu.Lock()
	if *sem == 1 {
		k.blockCaller(prid, sem)
		return
	}
	if woken := k.asl.RemoveBlocked(sem); woken != nil {
		k.ready.Insert(woken)
	} else {
		*sem = 1
	}
	k.mu.Unlock()
}

// elapsed returns the microseconds since the caller on prid was last
// dispatched, per the per-CPU TOD snapshot taken by the scheduler.
func (k *Kernel) elapsed(prid int) uint64 {
	return k.cpus[prid].STCK() - k.lastTOD[prid]
}

// DoIO implements syscall -5: block the caller on the corresponding
// device semaphore, unconditionally and regardless of its current
// value, then write cmdVal to cmdAddr. The V comes from the interrupt
// handler when the device completes, which restores the semaphore to
// 1 as it wakes the caller.
//
// The caller is parked on the semaphore before the command is written
// deliberately: this simulator has no true asynchrony, so a command
// can complete and call back into DeviceInterrupt before WriteWord
// returns, and that callback must find the waiter already queued. That
// same reentrancy means DeviceInterrupt may itself redispatch CPU 0
// before control returns here, so DoIO only reschedules prid when
// nothing has claimed it in the meantime.
func (k *Kernel) DoIO(prid int, cmdAddr uint32, cmdVal uint32) {
	if !k.checkSyscall(prid, machine.SysDoIO) {
		return
	}
	k.doIO(prid, cmdAddr, cmdVal)
}

func (k *Kernel) doIO(prid int, cmdAddr uint32, cmdVal uint32) {
	k.mu.Lock()
	idx := k.deviceSemIndexForAddr(cmdAddr)

	caller := k.current[prid]
	caller.CPUTime += k.elapsed(prid)
	caller.State.PC += 4
	k.current[prid] = nil
	if !k.asl.InsertBlocked(&k.deviceSem[idx], caller) {
		panic("nucleus: ASL descriptor pool exhausted")
	}
	k.mu.Unlock()

	k.bus.WriteWord(cmdAddr, cmdVal)

	k.mu.Lock()
	dispatched := k.current[prid] != nil
	k.mu.Unlock()
	if !dispatched {
		k.Schedule(prid)
	}
}

// GetTime implements syscall -6: accumulated CPU time plus time
// elapsed since the caller's last dispatch.
func (k *Kernel) GetTime(prid int) uint64 {
	if !k.checkSyscall(prid, machine.SysGetTime) {
		return 0
	}
	k.mu.Lock()
	defer k.mu.Unlock()
	return k.current[prid].CPUTime + k.elapsed(prid)
}

// ClockWait implements syscall -7: PASSEREN on the pseudo-clock
// semaphore, the last entry of the device semaphore table. Gated in
// its own right rather than falling through to Passeren's gate, so the
// cause recorded on a violation reflects the syscall actually issued.
func (k *Kernel) ClockWait(prid int) {
	if !k.checkSyscall(prid, machine.SysClockWait) {
		return
	}
	k.passeren(prid, &k.deviceSem[len(k.deviceSem)-1])
}

// GetSupportPtr implements syscall -8.
func (k *Kernel) GetSupportPtr(prid int) any {
	if !k.checkSyscall(prid, machine.SysGetSupportPtr) {
		return nil
	}
	k.mu.Lock()
	defer k.mu.Unlock()
	return k.current[prid].Support
}

// GetProcessID implements syscall -9. parentFlag == 0 returns the
// caller's own pid, non-zero returns the caller's parent's pid (0 if
// the caller has no parent).
func (k *Kernel) GetProcessID(prid int, parentFlag int) int {
	if !k.checkSyscall(prid, machine.SysGetProcessID) {
		return 0
	}
	k.mu.Lock()
	defer k.mu.Unlock()
	caller := k.current[prid]
	if parentFlag == 0 {
		return caller.PID
	}
	if caller.Parent == nil {
		return 0
	}
	return caller.Parent.PID
}
