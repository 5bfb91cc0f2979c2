/*
 * pandos - Simulator test suite: RAM, flash, and terminal device registers.
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
	"io"
	"log/slog"
	"net"
	"testing"
	"time"
)

func TestRAMRegisters(t *testing.T) {
	sim := NewSimulator(256, 1)

	if got := sim.ReadWord(RamBaseReg); got != RamStart {
		t.Errorf("RamBaseReg = %#x, want %#x", got, uint32(RamStart))
	}
	if got, want := sim.ReadWord(RamSizeReg), uint32(256*WordLen); got != want {
		t.Errorf("RamSizeReg = %d, want %d", got, want)
	}

	sim.WriteWord(RamStart+4, 0x12345678)
	if got := sim.ReadWord(RamStart + 4); got != 0x12345678 {
		t.Errorf("RAM round trip = %#x, want %#x", got, 0x12345678)
	}
}

func flashRegBase(dev int) uint32 {
	return uint32(DeviceRegBase) + uint32(LineFlash-LineDisk)*DeviceRegSpan + uint32(dev)*DeviceRegWidth
}

func TestFlashReadWrite(t *testing.T) {
	sim := NewSimulator(4096, 1)

	backing := make([]byte, PageSize)
	backing[0], backing[1], backing[2], backing[3] = 0xDE, 0xAD, 0xBE, 0xEF
	sim.SetFlashBacking(0, backing)

	base := flashRegBase(0)
	frameAddr := uint32(RamStart)
	sim.WriteWord(base+0x8, frameAddr) // data0: frame address
	sim.WriteWord(base+0x4, FlashRead) // block 0, op READ

	if status := sim.ReadWord(base + 0x0); status != StatusReady {
		t.Fatalf("flash read status = %d, want %d", status, StatusReady)
	}
	if got, want := sim.ReadWord(frameAddr), uint32(0xDEADBEEF); got != want {
		t.Errorf("flash read frame word = %#x, want %#x", got, want)
	}

	sim.WriteWord(base+0x4, StatusAck) // ack to clear status before next command

	sim.WriteWord(frameAddr, 0xCAFEBABE)
	sim.WriteWord(base+0x4, FlashWrite) // block 0, op WRITE

	if status := sim.ReadWord(base + 0x0); status != StatusReady {
		t.Fatalf("flash write status = %d, want %d", status, StatusReady)
	}
	if got, want := beUint32(backing), uint32(0xCAFEBABE); got != want {
		t.Errorf("flash backing word = %#x, want %#x", got, want)
	}
}

func TestFlashOutOfRangeBlock(t *testing.T) {
	sim := NewSimulator(4096, 1)
	sim.SetFlashBacking(0, make([]byte, PageSize))

	base := flashRegBase(0)
	sim.WriteWord(base+0x8, uint32(RamStart))
	sim.WriteWord(base+0x4, (uint32(7)<<8)|FlashRead) // block 7 doesn't exist in a 1-page backing store

	if status := sim.ReadWord(base + 0x0); status == StatusReady {
		t.Errorf("out-of-range block returned StatusReady, want an error status")
	}
}

func terminalRegAddr(dev int, off uint32) uint32 {
	return uint32(TerminalWinLo) + uint32(dev)*DeviceRegWidth + off
}

func TestScriptedTerminalRoundTrip(t *testing.T) {
	sim := NewSimulator(1024, 1)
	backend := sim.TerminalBackend(0)
	backend.Feed('H')

	sim.WriteWord(terminalRegAddr(0, 0x4), TermRecvCmd)
	status := sim.ReadWord(terminalRegAddr(0, 0x0))
	if status&0xFF != CharRecv {
		t.Fatalf("recv status = %#x, want low byte %d", status, CharRecv)
	}
	if got := byte(status >> 8); got != 'H' {
		t.Errorf("received byte = %q, want %q", got, 'H')
	}

	sim.WriteWord(terminalRegAddr(0, 0x0), StatusAck)
	if got := sim.ReadWord(terminalRegAddr(0, 0x0)); got != 0 {
		t.Errorf("recv status after ack = %#x, want 0", got)
	}

	sim.WriteWord(terminalRegAddr(0, 0xC), (uint32('X')<<8)|uint32(TermTransmCmd))
	transmStatus := sim.ReadWord(terminalRegAddr(0, 0x8))
	if transmStatus&0xFF != CharTransm {
		t.Fatalf("transmit status = %#x, want low byte %d", transmStatus, CharTransm)
	}
	if written := backend.Written(); len(written) != 1 || written[0] != 'X' {
		t.Errorf("Written() = %v, want [X]", written)
	}
}

// TestNetTerminalLoopback dials the listener a net terminal backend
// opens, feeds it a byte over the wire, and confirms it surfaces
// through the same READTERMINAL/WRITETERMINAL register protocol the
// scripted backend does, then checks the reverse direction.
func TestNetTerminalLoopback(t *testing.T) {
	sim := NewSimulator(1024, 1)
	log := slog.New(slog.NewTextHandler(io.Discard, nil))

	if err := sim.AttachNetTerminal(0, "127.0.0.1:0", log); err != nil {
		t.Fatalf("AttachNetTerminal: %v", err)
	}
	td := sim.lines[4][0].(*terminalDevice)
	nt := td.backend.(*netTerminal)
	defer nt.Close()

	conn, err := net.Dial("tcp", nt.listener.Addr().String())
	if err != nil {
		t.Fatalf("Dial: %v", err)
	}
	defer conn.Close()

	if _, err := conn.Write([]byte{'Z'}); err != nil {
		t.Fatalf("conn.Write: %v", err)
	}

	var status uint32
	for i := 0; i < 50; i++ {
		sim.WriteWord(terminalRegAddr(0, 0x4), TermRecvCmd)
		status = sim.ReadWord(terminalRegAddr(0, 0x0))
		if status != 0 {
			break
		}
		time.Sleep(2 * time.Millisecond)
	}
	if status&0xFF != CharRecv {
		t.Fatalf("recv status = %#x after polling, want low byte %d", status, CharRecv)
	}
	if got := byte(status >> 8); got != 'Z' {
		t.Errorf("received byte = %q, want %q", got, 'Z')
	}

	sim.WriteWord(terminalRegAddr(0, 0xC), (uint32('Q')<<8)|uint32(TermTransmCmd))

	conn.SetReadDeadline(time.Now().Add(time.Second))
	buf := make([]byte, 1)
	if _, err := conn.Read(buf); err != nil {
		t.Fatalf("conn.Read: %v", err)
	}
	if buf[0] != 'Q' {
		t.Errorf("transmitted byte = %q, want %q", buf[0], 'Q')
	}
}
