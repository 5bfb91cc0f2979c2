/*
 * pandos - Active semaphore list.
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

// Package asl implements the active semaphore list: a pool of semaphore
// descriptors, each owning a FIFO of blocked PCBs, indexed by the
// address of the integer semaphore it represents.
package asl

import "github.com/pandos-os/core/internal/pcb"

// MaxDescs bounds the number of semaphores that can have blocked
// processes at once. It equals pcb.MaxProc: at most one descriptor is
// ever needed per blocked process.
const MaxDescs = pcb.MaxProc

// semd is one active-semaphore descriptor: the semaphore's address,
// the FIFO of PCBs blocked on it, and a next pointer used both for the
// free list and for the ordered list of in-use descriptors.
type semd struct {
	key   *int32
	procs pcb.ProcQueue
	next  *semd
}

// ASL is the pool of semaphore descriptors plus the ordered list of
// descriptors currently in use. The active list is kept sorted by
// insertion order (deterministic FIFO-at-tail, see DESIGN.md) rather
// than by semaphore address, since nothing in the spec depends on
// address ordering and FIFO is trivially reproducible in tests.
type ASL struct {
	descs  [MaxDescs]semd
	free   *semd
	active *semd // head of the ordered, in-use list
	tail   *semd // tail of the ordered, in-use list
}

// New builds an ASL with every descriptor on the free list.
func New() *ASL {
	a := &ASL{}
	for i := range a.descs {
		a.descs[i].next = a.free
		a.free = &a.descs[i]
	}
	return a
}

func (a *ASL) find(key *int32) *semd {
	for s := a.active; s != nil; s = s.next {
		if s.key == key {
			return s
		}
	}
	return nil
}

// InsertBlocked adds p to the FIFO blocked on the semaphore at key,
// allocating a fresh descriptor if key has no waiters yet. ok is false
// iff the descriptor pool is exhausted; under MAXPROC >= the number of
// semaphores that can simultaneously have waiters this cannot happen
// in a correctly configured kernel (see DESIGN.md), so callers treat
// a false return as an unreachable, fatal condition.
func (a *ASL) InsertBlocked(key *int32, p *pcb.PCB) (ok bool) {
	s := a.find(key)
	if s == nil {
		if a.free == nil {
			return false
		}
		s = a.free
		a.free = s.next
		s.key = key
		s.next = nil
		s.procs = pcb.ProcQueue{}

		if a.tail != nil {
			a.tail.next = s
		} else {
			a.active = s
		}
		a.tail = s
	}
	s.procs.Insert(p)
	p.SemAddr = key
	return true
}

// RemoveBlocked pops and returns the PCB at the head of the FIFO
// blocked on key, or nil if key has no waiters. When the FIFO becomes
// empty the descriptor is unlinked from the active list and returned
// to the free list.
func (a *ASL) RemoveBlocked(key *int32) *pcb.PCB {
	s := a.find(key)
	if s == nil {
		return nil
	}
	p := s.procs.Remove()
	if p != nil {
		p.SemAddr = nil
	}
	if s.procs.Empty() {
		a.unlink(s)
	}
	return p
}

// OutBlocked removes a specific PCB from the FIFO it is blocked on
// (identified by p.SemAddr) and returns it, or nil if p is not blocked
// on any semaphore known to this ASL.
func (a *ASL) OutBlocked(p *pcb.PCB) *pcb.PCB {
	if p.SemAddr == nil {
		return nil
	}
	s := a.find(p.SemAddr)
	if s == nil {
		return nil
	}
	s.procs.OutPCB(p)
	p.SemAddr = nil
	if s.procs.Empty() {
		a.unlink(s)
	}
	return p
}

// HeadBlocked returns, without removing it, the PCB at the head of the
// FIFO blocked on key, or nil if key has no waiters.
func (a *ASL) HeadBlocked(key *int32) *pcb.PCB {
	s := a.find(key)
	if s == nil {
		return nil
	}
	return s.procs.Head()
}

// OutBlockedPID scans every semaphore's FIFO for a PCB with the given
// pid, removes it if found, and returns it. Used when terminating a
// process subtree: a victim may be blocked on any semaphore, not just
// the one its immediate parent expects.
func (a *ASL) OutBlockedPID(pid int) *pcb.PCB {
	for s := a.active; s != nil; s = s.next {
		if p := s.procs.Out(pid); p != nil {
			p.SemAddr = nil
			if s.procs.Empty() {
				a.unlink(s)
			}
			return p
		}
	}
	return nil
}

func (a *ASL) unlink(s *semd) {
	var prev *semd
	for cur := a.active; cur != nil; cur = cur.next {
		if cur == s {
			break
		}
		prev = cur
	}
	if prev != nil {
		prev.next = s.next
	} else {
		a.active = s.next
	}
	if a.tail == s {
		a.tail = prev
	}
	s.key = nil
	s.next = a.free
	a.free = s
}
