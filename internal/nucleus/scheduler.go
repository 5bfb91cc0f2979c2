/*
 * pandos - Per-CPU dispatcher.
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

// Schedule runs on CPU prid whenever it has no running process. It
// must be called with k.mu unlocked; it acquires the lock itself and
// releases it before WAIT/LDST, per §5's "release before any call
// that suspends the caller."
func (k *Kernel) Schedule(prid int) {
	k.mu.Lock()

	if k.ready.Empty() {
		if k.procCount == 0 {
			debug.Tracef("nucleus", debug.Scheduler, "cpu %d halting, no processes left", prid)
			k.mu.Unlock()
			k.cpus[prid].HALT()
			return
		}
		// Enable interrupts with the machine-timer source masked, drop
		// the task-priority register to idle-accept, release, and WAIT.
		k.mu.Unlock()
		k.cpus[prid].WAIT()
		return
	}

	p := k.ready.Remove()
	k.current[prid] = p
	k.lastTOD[prid] = k.cpus[prid].STCK()
	k.cpus[prid].SetTIMER(machine.TimeSlice)
	k.mu.Unlock()

	debug.Tracef("nucleus", debug.Scheduler, "cpu %d dispatching pid %d", prid, p.PID)
	k.cpus[prid].LDST(&p.State)
}
