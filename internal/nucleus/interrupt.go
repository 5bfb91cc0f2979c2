/*
 * pandos - Interrupt handler: timers and device completions.
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
	"github.com/pandos-os/core/util/debug"
)

// Kernel implements machine.InterruptSink: the simulator calls these
// directly in place of raising a CAUSE register and trapping into a
// real exception vector.

// CPUTimerExpired handles a process-local timer expiry (CAUSE line
// LineCPUTimer): re-arm, requeue the running process at the ready
// queue's tail, and reschedule.
func (k *Kernel) CPUTimerExpired(prid int) {
	k.mu.Lock()
	p := k.current[prid]
	if p == nil {
		k.mu.Unlock()
		return
	}
	p.CPUTime += k.elapsed(prid)
	k.current[prid] = nil
	k.ready.Insert(p)
	k.mu.Unlock()

	k.cpus[prid].SetTIMER(machine.TimeSlice)
	k.Schedule(prid)
}

// PseudoClockTick handles the system timer (LineTimer): reload the
// interval timer, drain every pseudo-clock waiter onto the ready
// queue in FIFO order without touching the semaphore's integer value
// (S6's batched-wakeup semantics), then resume whatever CPU 0 was
// running or reschedule it.
func (k *Kernel) PseudoClockTick() {
	k.cpus[0].LDIT(machine.PSecond)

	k.mu.Lock()
	sem := &k.deviceSem[machine.PseudoClockSem]
	for {
		w := k.asl.RemoveBlocked(sem)
		if w == nil {
			break
		}
		k.ready.Insert(w)
	}
	cur := k.current[0]
	k.mu.Unlock()

	if cur != nil {
		k.cpus[0].LDST(&cur.State)
		return
	}
	k.Schedule(0)
}

// DeviceInterrupt handles a device completion on the given interrupt
// line and device number. Unlike the reference machine, this
// simulator services one command to completion before the next can
// start, so there is never more than one pending device bit to
// arbitrate when this fires — "identify the highest-priority device"
// collapses to "this one." Terminal devices still carry the
// transmit-before-receive priority rule spec.md requires, since a
// terminal can independently latch both a recv and a transmit
// completion before either is ACKed.
func (k *Kernel) DeviceInterrupt(line, dev int) {
	k.mu.Lock()

	var status uint32
	var semIdx int
	if line == machine.LineTerminal {
		base := uint32(machine.TerminalWinLo) + uint32(dev)*machine.DeviceRegWidth
		recvStatus := k.bus.ReadWord(base + 0x0)
		transmStatus := k.bus.ReadWord(base + 0x8)
		if transmStatus&0xFF == machine.CharTransm {
			status = transmStatus
			k.bus.WriteWord(base+0x8, machine.StatusAck)
			semIdx = machine.DeviceSemIndex(line, dev, 0xC)
		} else {
			status = recvStatus
			k.bus.WriteWord(base+0x0, machine.StatusAck)
			semIdx = machine.DeviceSemIndex(line, dev, 0x0)
		}
	} else {
		base := uint32(machine.DeviceRegBase) +
			uint32(line-machine.LineDisk)*machine.DeviceRegSpan +
			uint32(dev)*machine.DeviceRegWidth
		status = k.bus.ReadWord(base + 0x0)
		k.bus.WriteWord(base+0x4, machine.StatusAck)
		semIdx = machine.DeviceSemIndex(line, dev, 0x4)
	}

	sem := &k.deviceSem[semIdx]
	p := k.asl.RemoveBlocked(sem)
	if p != nil {
		p.State.GPR[RegA0] = status
		*sem = 1
		k.ready.Insert(p)
		debug.Tracef("nucleus", debug.Interrupt, "line %d dev %d woke pid %d status %#x", line, dev, p.PID, status)
	}
	cur := k.current[0]
	k.mu.Unlock()

	if cur != nil {
		k.cpus[0].LDST(&cur.State)
		return
	}
	k.Schedule(0)
}
