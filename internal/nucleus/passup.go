/*
 * pandos - Exception pass-up to the support level.
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

import "github.com/pandos-os/core/util/debug"

// Exception kinds indexing a support structure's two saved states and
// two contexts, per the data model in §3.
const (
	PgFaultExcept = 0
	GeneralExcept = 1
)

// PassUp copies the caller's saved state into its support structure's
// exceptState[kind], tags it with cause, and resumes the support
// level's handler context (stack pointer, status, PC) via LDCXT. It
// reports false, doing nothing, if the caller has no support
// structure - the caller must then terminate the process itself,
// mirroring handleProgramTrap/handleTLBException's "no support ⇒
// terminateProcess" branch.
//
// This simulator has no instruction-level executor, so LDCXT only
// records the resumed context for inspection; it does not itself
// invoke the support level's handler function. Tests and the support
// package call the corresponding handler directly, exactly as
// syscalls are invoked as direct Go calls rather than trapped
// instructions elsewhere in this kernel.
// PassUp leaves the caller in its CPU's running slot: the process
// itself survives a pass-up, now executing the support level's
// handler at a new SP/status/PC, exactly as LDCXT would resume it on
// real hardware.
func (k *Kernel) PassUp(prid int, kind int, cause uint32) bool {
	k.mu.Lock()
	defer k.mu.Unlock()

	caller := k.current[prid]
	sup, ok := caller.Support.(SupportContext)
	if !ok {
		return false
	}

	state := caller.State
	state.Cause = cause
	*sup.ExceptionState(kind) = state

	sp, status, pc := sup.ExceptionContext(kind)
	caller.State.PC = pc
	caller.State.Status = status
	caller.State.GPR[RegSP] = sp
	debug.Tracef("nucleus", debug.PassUp, "cpu %d pid %d passed up kind %d cause %#x", prid, caller.PID, kind, cause)
	k.cpus[prid].LDCXT(sp, status, pc)
	return true
}

// HandleProgramTrap implements the program-trap branch of §7's error
// taxonomy: pass up to GENERALEXCEPT, or terminate and reschedule if
// there is no support structure.
func (k *Kernel) HandleProgramTrap(prid int, cause uint32) {
	if k.PassUp(prid, GeneralExcept, cause) {
		return
	}
	k.termProcess(prid, 0)
	k.Schedule(prid)
}

// HandleTLBException implements the TLB-exception branch: pass up to
// PGFAULTEXCEPT, or terminate and reschedule if there is no support
// structure.
func (k *Kernel) HandleTLBException(prid int, cause uint32) {
	if k.PassUp(prid, PgFaultExcept, cause) {
		return
	}
	k.termProcess(prid, 0)
	k.Schedule(prid)
}
