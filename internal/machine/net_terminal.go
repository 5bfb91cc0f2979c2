/*
 * pandos - Terminal transport: one TCP connection per terminal device.
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
	"bufio"
	"log/slog"
	"net"
)

// netTerminal bridges one U-proc's terminal device to a single raw TCP
// connection: bytes written to the connection become RECEIVETERMINAL
// input, bytes from TRANSMITTERMINAL go out on the wire. Grounded on
// the teacher's telnet/listener.go accept loop, stripped of its 3270
// screen/session-multiplexing layer since this kernel's terminal line
// is a plain character device, one line per ASID, not a shared
// multiplexed front end.
type netTerminal struct {
	listener net.Listener
	conn     net.Conn
	reader   *bufio.Reader
	shutdown chan struct{}
}

// newNetTerminal opens a listener on addr (e.g. "127.0.0.1:2023") and
// accepts exactly one connection in the background; until a client
// connects, receive() reports no data available and transmit()
// silently drops output, the same "nothing attached yet" behavior a
// detached teacher device has.
func newNetTerminal(addr string, log *slog.Logger) (*netTerminal, error) {
	l, err := net.Listen("tcp", addr)
	if err != nil {
		return nil, err
	}
	t := &netTerminal{listener: l, shutdown: make(chan struct{})}
	go t.acceptLoop(log)
	return t, nil
}

func (t *netTerminal) acceptLoop(log *slog.Logger) {
	for {
		conn, err := t.listener.Accept()
		if err != nil {
			select {
			case <-t.shutdown:
				return
			default:
				continue
			}
		}
		log.Info("pandos: terminal client connected", "remote", conn.RemoteAddr())
		t.conn = conn
		t.reader = bufio.NewReader(conn)
	}
}

func (t *netTerminal) Close() error {
	close(t.shutdown)
	return t.listener.Close()
}

func (t *netTerminal) transmit(b byte) {
	if t.conn == nil {
		return
	}
	_, _ = t.conn.Write([]byte{b})
}

func (t *netTerminal) receive() (byte, bool) {
	if t.reader == nil {
		return 0, false
	}
	b, err := t.reader.ReadByte()
	if err != nil {
		return 0, false
	}
	return b, true
}
