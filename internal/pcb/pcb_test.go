package pcb

import "testing"

func TestPoolAllocFree(t *testing.T) {
	p := NewPool()

	var got []*PCB
	for i := 0; i < MaxProc; i++ {
		b, ok := p.Alloc()
		if !ok {
			t.Fatalf("alloc %d: expected success, got exhaustion", i)
		}
		got = append(got, b)
	}

	if _, ok := p.Alloc(); ok {
		t.Fatalf("expected pool exhaustion after allocating %d PCBs", MaxProc)
	}

	seen := make(map[int]bool)
	for _, b := range got {
		if seen[b.PID] {
			t.Fatalf("duplicate pid %d handed out", b.PID)
		}
		seen[b.PID] = true
	}

	freedPID := got[0].PID
	p.Free(got[0])
	b, ok := p.Alloc()
	if !ok {
		t.Fatalf("expected alloc to succeed after a free")
	}
	if b.PID == freedPID {
		t.Fatalf("pids must not be reused: got %d again", b.PID)
	}
}

func TestProcQueueFIFO(t *testing.T) {
	p := NewPool()
	var q ProcQueue

	if !q.Empty() {
		t.Fatalf("new queue should be empty")
	}

	var pcbs []*PCB
	for i := 0; i < 3; i++ {
		b, _ := p.Alloc()
		pcbs = append(pcbs, b)
		q.Insert(b)
	}

	if q.Empty() {
		t.Fatalf("queue with 3 inserts should not be empty")
	}
	if h := q.Head(); h != pcbs[0] {
		t.Fatalf("head = %v, want first inserted %v", h, pcbs[0])
	}

	for i, want := range pcbs {
		got := q.Remove()
		if got != want {
			t.Fatalf("remove %d = %v, want %v", i, got, want)
		}
	}
	if !q.Empty() {
		t.Fatalf("queue should be empty after draining all inserts")
	}
	if q.Remove() != nil {
		t.Fatalf("remove on empty queue must return nil")
	}
}

func TestProcQueueOutByPID(t *testing.T) {
	p := NewPool()
	var q ProcQueue

	a, _ := p.Alloc()
	b, _ := p.Alloc()
	c, _ := p.Alloc()
	q.Insert(a)
	q.Insert(b)
	q.Insert(c)

	got := q.Out(b.PID)
	if got != b {
		t.Fatalf("Out(%d) = %v, want %v", b.PID, got, b)
	}

	if got := q.Remove(); got != a {
		t.Fatalf("remove after Out = %v, want %v", got, a)
	}
	if got := q.Remove(); got != c {
		t.Fatalf("remove after Out = %v, want %v", got, c)
	}
	if !q.Empty() {
		t.Fatalf("queue should be drained")
	}

	if q.Out(999) != nil {
		t.Fatalf("Out on missing pid must return nil")
	}
}

func TestChildTreeFIFOTieBreak(t *testing.T) {
	p := NewPool()
	parent, _ := p.Alloc()

	if !EmptyChild(parent) {
		t.Fatalf("freshly allocated PCB should have no children")
	}

	var kids []*PCB
	for i := 0; i < 3; i++ {
		c, _ := p.Alloc()
		InsertChild(parent, c)
		kids = append(kids, c)
	}

	if EmptyChild(parent) {
		t.Fatalf("parent with 3 children reports empty")
	}

	// RemoveChild must always hand back the earliest-inserted surviving
	// child, matching the original removeChild tie-break rule.
	for i, want := range kids {
		got := RemoveChild(parent)
		if got != want {
			t.Fatalf("RemoveChild %d = %v, want %v", i, got, want)
		}
		if got.Parent != nil {
			t.Fatalf("RemoveChild must detach the child from its parent")
		}
	}
	if !EmptyChild(parent) {
		t.Fatalf("parent should have no children left")
	}
	if RemoveChild(parent) != nil {
		t.Fatalf("RemoveChild on childless parent must return nil")
	}
}

func TestOutChildMidList(t *testing.T) {
	p := NewPool()
	parent, _ := p.Alloc()

	a, _ := p.Alloc()
	b, _ := p.Alloc()
	c, _ := p.Alloc()
	InsertChild(parent, a)
	InsertChild(parent, b)
	InsertChild(parent, c)

	if got := OutChild(b); got != b {
		t.Fatalf("OutChild(b) = %v, want b", got)
	}

	if got := RemoveChild(parent); got != a {
		t.Fatalf("RemoveChild = %v, want a", got)
	}
	if got := RemoveChild(parent); got != c {
		t.Fatalf("RemoveChild = %v, want c", got)
	}
	if !EmptyChild(parent) {
		t.Fatalf("parent should be childless")
	}
}

func TestOutChildNoParent(t *testing.T) {
	p := NewPool()
	b, _ := p.Alloc()
	if OutChild(b) != nil {
		t.Fatalf("OutChild on a parentless PCB must return nil")
	}
}
