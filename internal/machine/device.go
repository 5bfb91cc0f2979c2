/*
 * pandos - Device contract and register windows for the software simulator.
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

// device is a single simulated peripheral attached to one interrupt
// line. It generalizes the teacher's Device interface (StartIO/
// StartCmd/HaltIO/InitDev/Shutdown/Debug) to the spec's register
// layout. Every command completes synchronously inside the WriteWord
// that issued it: non-terminal commands through serviceSimple, terminal
// transmit/receive through serviceTerminalTransm/serviceTerminalRecv
// (a receive with no byte available simply stays pending until the
// command is written again).
type device interface {
	// command handles a command-register write; it returns the status
	// byte to latch immediately if the operation is synchronous, or 0
	// with async=true if completion will arrive later via a callback
	// that the device itself schedules on the owning simulator's clock.
	command(sim *Simulator, line, dev int, cmd uint32) (status uint32, async bool)

	// data0/data1 let the simulator service ReadWord/WriteWord on the
	// device's data registers without a type switch per device kind.
	readData(reg int) uint32
	writeData(reg int, val uint32)
}

// registers of a non-terminal device: status, command, data0, data1.
type simpleDevice struct {
	kind    string // "disk", "flash", "ethernet", "printer"
	status  uint32
	data0   uint32
	data1   uint32
	backing []byte // flash backing store, nil for other kinds
}

func (d *simpleDevice) readData(reg int) uint32 {
	switch reg {
	case 0:
		return d.data0
	case 1:
		return d.data1
	}
	return 0
}

func (d *simpleDevice) writeData(reg int, val uint32) {
	switch reg {
	case 0:
		d.data0 = val
	case 1:
		d.data1 = val
	}
}

func (d *simpleDevice) command(sim *Simulator, line, dev int, cmd uint32) (uint32, bool) {
	switch d.kind {
	case "flash":
		return d.flashCommand(cmd), false
	case "printer":
		return StatusReady, false
	default:
		return StatusReady, false
	}
}

// flashCommand services (block<<8)|op against the backing store,
// treating data0 as the frame address the op moves bytes to/from.
// It only computes the status; frame contents live in sim RAM, and
// Simulator.runFlash moves the bytes once this returns READY.
func (d *simpleDevice) flashCommand(cmd uint32) uint32 {
	op := cmd & 0xFF
	block := (cmd >> 8) & 0xFFFFFF
	if d.backing == nil {
		return StatusReady // uninitialized backing reads as zero-filled
	}
	blockBytes := int(block) * PageSize
	if blockBytes < 0 || blockBytes+PageSize > len(d.backing) {
		return 2 // out-of-range block: non-READY status
	}
	switch op {
	case FlashRead, FlashWrite:
		return StatusReady
	default:
		return 2
	}
}

// terminalDevice models one terminal's four registers: recv status/
// command and transmit status/command. Its actual byte transport is
// provided by a terminalBackend (attached, single-key, or scripted).
type terminalDevice struct {
	recvStatus   uint32
	recvCmd      uint32
	transmStatus uint32
	transmCmd    uint32
	backend      terminalBackend
}

func (d *terminalDevice) readData(reg int) uint32 { return 0 }
func (d *terminalDevice) writeData(reg int, val uint32) {}

// command satisfies the device interface; terminal command registers
// are serviced by Simulator.serviceTerminalTransm/serviceTerminalRecv,
// never through this method.
func (d *terminalDevice) command(sim *Simulator, line, dev int, cmd uint32) (uint32, bool) {
	return 0, false
}

// terminalBackend delivers/receives single bytes for a terminalDevice.
// Transports (attached tty, single-key capture, scripted fixture) all
// implement this.
type terminalBackend interface {
	transmit(b byte)
	receive() (b byte, ok bool)
}
