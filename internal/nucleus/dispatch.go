/*
 * pandos - Nucleus syscall privilege and code-range gate.
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

import "github.com/pandos-os/core/internal/machine"

// Mode is the privilege level a nucleus syscall's caller runs in,
// derived from the USERPON bit of its saved Status register.
type Mode int

const (
	MMode Mode = iota
	UMode
)

// StatusUserMode is the Status register's USERPON bit (see
// support's userStatus): set for a U-proc's saved state, clear for the
// boot process and for a support-level handler context - both of
// which are entitled to issue nucleus syscalls directly.
const StatusUserMode = 0x8

// callerMode reports the privilege level of whatever process currently
// occupies prid's running slot.
func (k *Kernel) callerMode(prid int) Mode {
	k.mu.Lock()
	defer k.mu.Unlock()
	caller := k.current[prid]
	if caller == nil || caller.State.Status&StatusUserMode == 0 {
		return MMode
	}
	return UMode
}

// checkSyscall is the privilege and code-range gate every nucleus
// syscall entry point runs before touching any kernel state: the
// caller must be in machine mode, and code must be one of the ten
// assigned nucleus syscall numbers (SysYield..SysCreateProcess). A
// user-mode caller is converted into a privileged-instruction trap; an
// out-of-range code into a program trap - both routed through
// HandleProgramTrap, so a caller with no support structure simply
// terminates instead, per §7's error taxonomy. It reports whether the
// caller may proceed.
func (k *Kernel) checkSyscall(prid int, code int32) bool {
	if k.callerMode(prid) != MMode {
		k.HandleProgramTrap(prid, machine.ExcPrivilegedInstr)
		return false
	}
	if code < machine.SysYield || code > machine.SysCreateProcess {
		k.HandleProgramTrap(prid, machine.ExcReservedSyscall)
		return false
	}
	return true
}
