/*
 * pandos - Terminal transports: attached tty, single-key capture, scripted.
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

import (
	"os"
	"sync"

	"github.com/eiannone/keyboard"
	"golang.org/x/term"
)

// scriptedTerminal is the headless backend used by tests: bytes to
// deliver to READTERMINAL are queued in, bytes written by
// WRITETERMINAL are captured out. It needs no third-party dependency,
// matching how the test suite must run without a real tty.
type scriptedTerminal struct {
	mu  sync.Mutex
	in  []byte
	out []byte
}

func newScriptedTerminal() *scriptedTerminal {
	return &scriptedTerminal{}
}

// Feed queues bytes for the next receive() calls, in order.
func (s *scriptedTerminal) Feed(b ...byte) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.in = append(s.in, b...)
}

// Written returns every byte transmitted so far.
func (s *scriptedTerminal) Written() []byte {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]byte, len(s.out))
	copy(out, s.out)
	return out
}

func (s *scriptedTerminal) transmit(b byte) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.out = append(s.out, b)
}

func (s *scriptedTerminal) receive() (byte, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.in) == 0 {
		return 0, false
	}
	b := s.in[0]
	s.in = s.in[1:]
	return b, true
}

// attachedTerminal puts the host terminal into raw mode and threads
// real stdin/stdout through the simulated transmit/receive registers,
// so WRITETERMINAL/READTERMINAL syscalls interact with an actual
// terminal. Grounded on the raw-mode tty handling used to drive
// character-oriented simulated devices in the broader example pack.
type attachedTerminal struct {
	oldState *term.State
	fd       int
}

func newAttachedTerminal() (*attachedTerminal, error) {
	fd := int(os.Stdin.Fd())
	old, err := term.MakeRaw(fd)
	if err != nil {
		return nil, err
	}
	return &attachedTerminal{oldState: old, fd: fd}, nil
}

func (t *attachedTerminal) Close() error {
	return term.Restore(t.fd, t.oldState)
}

func (t *attachedTerminal) transmit(b byte) {
	_, _ = os.Stdout.Write([]byte{b})
}

func (t *attachedTerminal) receive() (byte, bool) {
	buf := make([]byte, 1)
	n, err := os.Stdin.Read(buf)
	if err != nil || n == 0 {
		return 0, false
	}
	return buf[0], true
}

// singleKeyTerminal uses keyboard.GetSingleKey for unbuffered,
// per-keystroke delivery, matching the per-character RECEIVECHAR
// semantics more directly than line-buffered stdin.
type singleKeyTerminal struct{}

func newSingleKeyTerminal() (*singleKeyTerminal, error) {
	if err := keyboard.Open(); err != nil {
		return nil, err
	}
	return &singleKeyTerminal{}, nil
}

func (t *singleKeyTerminal) Close() error {
	return keyboard.Close()
}

func (t *singleKeyTerminal) transmit(b byte) {
	_, _ = os.Stdout.Write([]byte{b})
}

func (t *singleKeyTerminal) receive() (byte, bool) {
	r, _, err := keyboard.GetSingleKey()
	if err != nil {
		return 0, false
	}
	return byte(r), true
}
