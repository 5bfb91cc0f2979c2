/*
 * pandos - Support structure: per-U-proc extension of a PCB.
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

// Package support implements the support level: the per-U-proc
// extension of a PCB (the "support structure"), the test/instantiator
// that brings up eight user processes over package nucleus, and the
// support-level syscall and exception handlers U-procs trap into.
// Package support imports package nucleus; nucleus never imports
// support, so the pass-up contract runs one way only, through the
// nucleus.SupportContext interface.
package support

import (
	"github.com/pandos-os/core/internal/machine"
	"github.com/pandos-os/core/internal/pcb"
)

// PageTableEntry bit layout within EntryLo, matching the reference
// machine's DIRTYON/VALIDON bits.
const (
	EntryLoDirty = 0x400
	EntryLoValid = 0x200
)

// Exception kinds, matching nucleus.PgFaultExcept/GeneralExcept.
const (
	PgFaultExcept = 0
	GeneralExcept = 1
)

// PTE is one entry of a U-proc's private page table.
type PTE struct {
	EntryHi uint32
	EntryLo uint32
}

// Valid reports whether the entry's valid bit is set.
func (e PTE) Valid() bool { return e.EntryLo&EntryLoValid != 0 }

// exceptContext is a saved handler entry point: the stack pointer,
// status, and PC LDCXT should resume at, matching the reference's
// context_t.
type exceptContext struct {
	SP     uint32
	Status uint32
	PC     uint32
}

// Block is the support structure for one U-proc: its ASID, its two
// saved exception states and two handler contexts (index 0 = page
// fault, 1 = general), its private page table, and the two
// kernel-mode stacks its handlers run on. It implements
// nucleus.SupportContext.
type Block struct {
	ASID int

	exceptStates   [2]pcb.ProcessState
	exceptContexts [2]exceptContext

	PageTable [machine.UserPgTblSize]PTE

	// stackGen and stackTLB back the two handler contexts' stack
	// pointers; they are never indexed directly by this package, only
	// their top addresses handed out via ExceptionContext.
	stackGen [512]uint32
	stackTLB [512]uint32
}

// ExceptionState implements nucleus.SupportContext.
func (b *Block) ExceptionState(kind int) *pcb.ProcessState {
	return &b.exceptStates[kind]
}

// ExceptionContext implements nucleus.SupportContext.
func (b *Block) ExceptionContext(kind int) (sp, status, pc uint32) {
	c := b.exceptContexts[kind]
	return c.SP, c.Status, c.PC
}

// PageTableEntry implements nucleus.SupportContext.
func (b *Block) PageTableEntry(index int) (entryHi, entryLo uint32, valid bool) {
	e := b.PageTable[index]
	return e.EntryHi, e.EntryLo, e.Valid()
}
