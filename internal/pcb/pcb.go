/*
 * pandos - Process control block pool and process-tree primitives.
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

// Package pcb implements the fixed-size process control block arena and
// the intrusive queue / process-tree primitives built on top of it.
package pcb

// MaxProc bounds the number of process control blocks the kernel can
// have allocated at once, statically, as a single nucleus-wide pool.
const MaxProc = 20

// GPRLen is the number of general registers saved in a ProcessState,
// sized so the whole state is STATESIZE (0x8C) bytes: 5 control words
// plus GPRLen data words.
const GPRLen = 30

// ProcessState is the saved processor state for one process: all
// general registers, program counter, status, cause, and the two
// registers the support level needs to resume address translation
// (EntryHi) and to re-enable interrupts after a TLB refill (MIE).
type ProcessState struct {
	GPR     [GPRLen]uint32
	EntryHi uint32
	Cause   uint32
	Status  uint32
	PC      uint32
	MIE     uint32
}

// PCB is a process control block. Its queue link (qPrev/qNext) is
// valid iff it is on exactly one of {ready queue, a semaphore's
// blocked queue}; a PCB in a per-CPU "running" slot has a nil queue
// link. The sibling link forms a doubly linked list of children
// rooted at p_parent, independent of the queue link, so a PCB can be
// both a child in the process tree and a member of a queue at once.
type PCB struct {
	State ProcessState

	Parent   *PCB
	child    *PCB // head of this PCB's child list
	childTl  *PCB // tail of this PCB's child list
	sibPrev  *PCB
	sibNext  *PCB

	qPrev *PCB
	qNext *PCB

	CPUTime uint64 // accumulated CPU time in microseconds
	SemAddr *int32 // non-nil iff blocked on this semaphore
	PID     int

	// Support holds the per-process support structure pointer for user
	// processes, nil for pure kernel processes. The pcb package does not
	// know the concrete type; package support stores a *support.Block
	// here and type-asserts it back out.
	Support any
}

// Pool is the static arena of MaxProc PCBs plus its free list.
type Pool struct {
	arena   [MaxProc]PCB
	free    *PCB
	nextPID int
}

// NewPool builds a pool with every PCB on the free list, mirroring
// initPcbs: every slot starts free, pid assignment starts at 1 and is
// never reused within the pool's lifetime.
func NewPool() *Pool {
	p := &Pool{nextPID: 1}
	for i := range p.arena {
		p.arena[i].qNext = p.free
		p.free = &p.arena[i]
	}
	return p
}

// Alloc removes a PCB from the free list, clears it, and returns it.
// ok is false iff the pool is exhausted.
func (p *Pool) Alloc() (pcb *PCB, ok bool) {
	if p.free == nil {
		return nil, false
	}
	pcb = p.free
	p.free = pcb.qNext
	pid := p.nextPID
	p.nextPID++
	*pcb = PCB{PID: pid}
	return pcb, true
}

// Free returns a PCB to the pool's free list. The caller must have
// already detached it from every queue and from the process tree.
func (p *Pool) Free(pcb *PCB) {
	pcb.qNext = p.free
	pcb.qPrev = nil
	p.free = pcb
}

// ProcQueue is a FIFO of PCBs linked through their queue fields. The
// zero value is an empty queue.
type ProcQueue struct {
	head *PCB
	tail *PCB
}

// Empty reports whether the queue holds no PCBs.
func (q *ProcQueue) Empty() bool {
	return q.head == nil
}

// Insert appends p to the tail of the queue.
func (q *ProcQueue) Insert(p *PCB) {
	p.qNext = nil
	p.qPrev = q.tail
	if q.tail != nil {
		q.tail.qNext = p
	} else {
		q.head = p
	}
	q.tail = p
}

// Head returns the PCB at the front of the queue without removing it,
// or nil if the queue is empty.
func (q *ProcQueue) Head() *PCB {
	return q.head
}

// Remove pops and returns the PCB at the front of the queue, or nil
// if the queue is empty.
func (q *ProcQueue) Remove() *PCB {
	p := q.head
	if p == nil {
		return nil
	}
	q.head = p.qNext
	if q.head != nil {
		q.head.qPrev = nil
	} else {
		q.tail = nil
	}
	p.qNext = nil
	p.qPrev = nil
	return p
}

// Out removes the PCB with the given pid from anywhere in the queue
// and returns it, or nil if no such PCB is present.
func (q *ProcQueue) Out(pid int) *PCB {
	for p := q.head; p != nil; p = p.qNext {
		if p.PID != pid {
			continue
		}
		q.unlink(p)
		return p
	}
	return nil
}

// OutPCB removes a specific PCB from the queue it is linked into. It
// is the caller's responsibility to pass the queue p actually lives
// in; used by the nucleus when terminating a specific, already
// identified PCB rather than searching by pid.
func (q *ProcQueue) OutPCB(p *PCB) {
	q.unlink(p)
}

func (q *ProcQueue) unlink(p *PCB) {
	if p.qPrev != nil {
		p.qPrev.qNext = p.qNext
	} else if q.head == p {
		q.head = p.qNext
	}
	if p.qNext != nil {
		p.qNext.qPrev = p.qPrev
	} else if q.tail == p {
		q.tail = p.qPrev
	}
	p.qNext = nil
	p.qPrev = nil
}

// EmptyChild reports whether p has no children.
func EmptyChild(p *PCB) bool {
	return p.child == nil
}

// InsertChild makes p a child of parent, appended after parent's
// existing children (FIFO order, matching insertProcQ's ordering for
// the sibling list).
func InsertChild(parent, p *PCB) {
	if parent == nil || p == nil {
		return
	}
	p.Parent = parent
	p.sibNext = nil
	p.sibPrev = parent.childTl
	if parent.childTl != nil {
		parent.childTl.sibNext = p
	} else {
		parent.child = p
	}
	parent.childTl = p
}

// RemoveChild detaches and returns the earliest-inserted child of p,
// or nil if p has no children.
func RemoveChild(p *PCB) *PCB {
	child := p.child
	if child == nil {
		return nil
	}
	return OutChild(child)
}

// OutChild detaches p from its parent's child list (wherever in the
// list it sits) and returns p, or nil if p has no parent.
func OutChild(p *PCB) *PCB {
	parent := p.Parent
	if parent == nil {
		return nil
	}
	if p.sibPrev != nil {
		p.sibPrev.sibNext = p.sibNext
	} else {
		parent.child = p.sibNext
	}
	if p.sibNext != nil {
		p.sibNext.sibPrev = p.sibPrev
	} else {
		parent.childTl = p.sibPrev
	}
	p.sibPrev = nil
	p.sibNext = nil
	p.Parent = nil
	return p
}
