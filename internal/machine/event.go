/*
 * pandos - Delta-time event scheduler for the software simulator.
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

package machine

// eventCallback fires when an event's delta time reaches zero.
type eventCallback = func(arg int)

// event is one entry in the delta-time sorted event list: the number
// of microseconds after the previous event in the list before this
// one fires, which device it belongs to (for CancelEvent), the
// callback, and an integer argument threaded through to it.
type event struct {
	delta int
	owner int // opaque device/line identifier, 0 if unused
	cb    eventCallback
	arg   int
	prev  *event
	next  *event
}

// eventList is an instance of the delta-time sorted intrusive list;
// unlike the teacher's package-level list, each Simulator owns one so
// that independent simulators (e.g. one per test) never share state.
type eventList struct {
	head *event
	tail *event
}

// add schedules cb to fire in `us` microseconds (immediately if 0),
// preserving relative ordering by rewriting deltas exactly the way
// the reference event scheduler does.
func (l *eventList) add(owner int, cb eventCallback, us int, arg int) {
	if us <= 0 {
		cb(arg)
		return
	}

	ev := &event{delta: us, owner: owner, cb: cb, arg: arg}

	cur := l.head
	if cur == nil {
		l.head = ev
		l.tail = ev
		return
	}

	for cur != nil {
		if ev.delta <= cur.delta {
			cur.delta -= ev.delta
			ev.prev = cur.prev
			ev.next = cur
			cur.prev = ev
			if ev.prev != nil {
				ev.prev.next = ev
			} else {
				l.head = ev
			}
			return
		}
		ev.delta -= cur.delta
		cur = cur.next
	}

	ev.prev = l.tail
	l.tail.next = ev
	l.tail = ev
}

// cancel removes the first event matching owner/arg, if any.
func (l *eventList) cancel(owner int, arg int) {
	for cur := l.head; cur != nil; cur = cur.next {
		if cur.owner != owner || cur.arg != arg {
			continue
		}
		if cur.next != nil {
			cur.next.delta += cur.delta
			cur.next.prev = cur.prev
		} else {
			l.tail = cur.prev
		}
		if cur.prev != nil {
			cur.prev.next = cur.next
		} else {
			l.head = cur.next
		}
		return
	}
}

// advance moves the clock forward by us microseconds, firing every
// event whose delta reaches zero or below, in order.
func (l *eventList) advance(us int) {
	cur := l.head
	if cur == nil {
		return
	}
	cur.delta -= us
	for cur != nil && cur.delta <= 0 {
		cb, arg := cur.cb, cur.arg
		l.head = cur.next
		if l.head != nil {
			l.head.prev = nil
		} else {
			l.tail = nil
		}
		cb(arg)
		cur = l.head
	}
}
