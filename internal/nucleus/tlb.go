/*
 * pandos - uTLB-refill handler.
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

// StackVPN is the reserved VPN for the user stack page, mapped to
// page-table index UserPgTblSize-1 regardless of its numeric value.
const StackVPN = 0xBFFFF

// pageTableIndex mirrors uTLB_RefillHandler's index computation:
// the stack VPN always maps to the last page-table slot; every other
// VPN maps to its low byte, since this kernel's user address space
// never spans more entries than that.
func pageTableIndex(vpn uint32) int {
	if vpn == StackVPN {
		return machine.UserPgTblSize - 1
	}
	return int(vpn & 0xFF)
}

// TLBRefill is invoked when a running process's CPU takes a TLB miss
// for an address its private page table does in fact map (the BIOS
// pass-up only reaches here in that case; an unmapped address is a
// TLB-invalid exception routed to the support level's page-fault
// handler instead, see package vm). It is re-entrant across CPUs: it
// touches only the per-process support structure and that CPU's own
// TLB, never the global lock.
func (k *Kernel) TLBRefill(prid int) {
	caller := k.current[prid]
	sup, ok := caller.Support.(SupportContext)
	if !ok {
		panic("nucleus: TLB refill on a process with no support structure")
	}

	vpn := caller.State.EntryHi >> 12
	idx := pageTableIndex(vpn)
	entryHi, entryLo, _ := sup.PageTableEntry(idx)

	k.tlbs[prid].WriteRandom(entryHi, entryLo)
	k.cpus[prid].LDST(&caller.State)
}
