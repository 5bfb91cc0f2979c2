/*
 * pandos - Software simulator backing the CPU/TLB/Bus contracts.
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
	"log/slog"
	"sync"

	"github.com/pandos-os/core/internal/pcb"
)

// InterruptSink receives interrupt notifications raised by the
// simulator's clock and devices. The nucleus implements this; the
// machine package never imports the nucleus, so the dependency runs
// one way only, exactly as the BIOS/device layer is a collaborator
// external to the core in spec.md §1.
type InterruptSink interface {
	// CPUTimerExpired fires when CPU prid's process-local timer reaches
	// zero.
	CPUTimerExpired(prid int)

	// PseudoClockTick fires every PSecond microseconds, on CPU 0's clock.
	PseudoClockTick()

	// DeviceInterrupt fires when a device completes an operation; line
	// is 3..7, dev is 0..UProcMax-1.
	DeviceInterrupt(line, dev int)
}

// tlbEntry is one simulated TLB row.
type tlbEntry struct {
	valid   bool
	entryHi uint32
	entryLo uint32
}

// simTLB is a per-CPU TLB with UserPgTblSize+a few wired rows, enough
// to exercise TLBP/TLBWI/TLBWR semantics without modeling a real
// hardware-sized TLB.
type simTLB struct {
	mu      sync.Mutex
	entries []tlbEntry
	next    int // TLBWR cursor
}

func newTLB(size int) *simTLB {
	return &simTLB{entries: make([]tlbEntry, size)}
}

func (t *simTLB) Probe(entryHi uint32) (int, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	for i, e := range t.entries {
		if e.valid && e.entryHi == entryHi {
			return i, true
		}
	}
	return 0, false
}

func (t *simTLB) Read(index int) (uint32, uint32) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if index < 0 || index >= len(t.entries) {
		return 0, 0
	}
	e := t.entries[index]
	return e.entryHi, e.entryLo
}

func (t *simTLB) WriteIndexed(index int, entryHi, entryLo uint32) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if index < 0 || index >= len(t.entries) {
		return
	}
	t.entries[index] = tlbEntry{valid: true, entryHi: entryHi, entryLo: entryLo}
}

func (t *simTLB) WriteRandom(entryHi, entryLo uint32) {
	t.mu.Lock()
	defer t.mu.Unlock()
	idx := t.next
	t.next = (t.next + 1) % len(t.entries)
	t.entries[idx] = tlbEntry{valid: true, entryHi: entryHi, entryLo: entryLo}
}

func (t *simTLB) Clear() {
	t.mu.Lock()
	defer t.mu.Unlock()
	for i := range t.entries {
		t.entries[i] = tlbEntry{}
	}
}

// simCPU is one virtual processor. Unlike a real CPU it does not
// fetch/decode instructions: LDST/LDCXT latch the resumed state for
// inspection (by tests and by the scheduler's own bookkeeping) since
// the nucleus itself runs as ordinary Go code on the goroutine
// standing in for this CPU, calling back into the Simulator for every
// privileged operation.
type simCPU struct {
	prid   int
	sim    *Simulator
	mu     sync.Mutex
	halted bool
	waitMu sync.Mutex
	wait   bool
	last   pcb.ProcessState
}

func (c *simCPU) PRID() int { return c.prid }

func (c *simCPU) LDST(state *pcb.ProcessState) {
	c.mu.Lock()
	c.last = *state
	c.mu.Unlock()
	c.waitMu.Lock()
	c.wait = false
	c.waitMu.Unlock()
}

func (c *simCPU) LDCXT(sp, status, pc uint32) {
	c.mu.Lock()
	c.last.GPR[2] = sp // stack-pointer slot (nucleus.RegSP)
	c.last.Status = status
	c.last.PC = pc
	c.mu.Unlock()
}

func (c *simCPU) HALT() {
	c.mu.Lock()
	c.halted = true
	c.mu.Unlock()
}

func (c *simCPU) WAIT() {
	c.waitMu.Lock()
	c.wait = true
	c.waitMu.Unlock()
}

func (c *simCPU) STCK() uint64 {
	return c.sim.now()
}

func (c *simCPU) LDIT(interval uint32) {
	c.sim.armPseudoClock(interval)
}

func (c *simCPU) SetTIMER(ticks uint32) {
	c.sim.armProcTimer(c.prid, ticks)
}

// Snapshot reports the state most recently handed to LDST/LDCXT and
// whether the CPU is currently halted or parked in WAIT, for tests
// asserting scheduler dispatch without a real instruction stream.
func (c *simCPU) Snapshot() (state pcb.ProcessState, halted, waiting bool) {
	c.mu.Lock()
	state, halted = c.last, c.halted
	c.mu.Unlock()
	c.waitMu.Lock()
	waiting = c.wait
	c.waitMu.Unlock()
	return
}

// Simulator is the concrete BIOS/device stand-in: RAM, per-CPU TLBs,
// the interrupt routing table, the task priority register, the
// device register windows of spec.md §6, and the delta-time event
// list driving the pseudo-clock, per-CPU process timers, and
// asynchronous device completions.
type Simulator struct {
	mu sync.Mutex

	ram  *ram
	cpus []*simCPU
	tlbs []*simTLB

	irt [IRTCount]uint32
	tpr uint32

	clockUS uint64
	events  eventList

	lines [5][UProcMax]device // index 0 = line 3 (disk) .. index 4 = line 7 (terminal)

	sink InterruptSink
}

// NewSimulator builds a Simulator with ramWords words of RAM and the
// given number of CPUs (1..NCPU).
func NewSimulator(ramWords, numCPU int) *Simulator {
	if numCPU < 1 {
		numCPU = 1
	}
	if numCPU > NCPU {
		numCPU = NCPU
	}
	s := &Simulator{ram: newRAM(ramWords)}
	for i := 0; i < numCPU; i++ {
		s.cpus = append(s.cpus, &simCPU{prid: i, sim: s})
		s.tlbs = append(s.tlbs, newTLB(UserPgTblSize+2))
	}
	for line := range s.lines {
		for dev := range s.lines[line] {
			s.lines[line][dev] = &simpleDevice{}
		}
	}
	// Terminal line (index 4, interrupt line 7) devices carry a
	// scripted backend by default; AttachNetTerminal is the only call
	// that replaces one.
	for dev := 0; dev < UProcMax; dev++ {
		s.lines[4][dev] = &terminalDevice{backend: newScriptedTerminal()}
	}
	return s
}

// SetInterruptSink registers the nucleus callback surface. Must be
// called once before any clock/device activity occurs.
func (s *Simulator) SetInterruptSink(sink InterruptSink) {
	s.mu.Lock()
	s.sink = sink
	s.mu.Unlock()
}

// CPU returns the CPU interface for virtual processor prid.
func (s *Simulator) CPU(prid int) CPU { return s.cpus[prid] }

// TLB returns the TLB interface for virtual processor prid.
func (s *Simulator) TLB(prid int) TLB { return s.tlbs[prid] }

// NumCPU returns how many CPUs this simulator was built with.
func (s *Simulator) NumCPU() int { return len(s.cpus) }

// CPUSnapshot exposes virtual processor prid's last dispatched state
// and halted/waiting flags, for tests.
func (s *Simulator) CPUSnapshot(prid int) (pcb.ProcessState, bool, bool) {
	return s.cpus[prid].Snapshot()
}

// SetFlashBacking installs the backing store for the flash device at
// dev (= ASID-1) on line 4, seeding it from a boot-time flash
// manifest entry.
func (s *Simulator) SetFlashBacking(dev int, data []byte) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.lines[1][dev] = &simpleDevice{kind: "flash", backing: data}
}

// TerminalBackend returns the scriptedTerminal backing dev on the
// terminal line, for tests to feed/inspect bytes. Panics if a
// non-scripted transport was installed for dev.
func (s *Simulator) TerminalBackend(dev int) *scriptedTerminal {
	s.mu.Lock()
	defer s.mu.Unlock()
	td := s.lines[4][dev].(*terminalDevice)
	return td.backend.(*scriptedTerminal)
}

// AttachNetTerminal replaces dev's terminal backend with a TCP
// listener on addr, for boot configurations that want a real network
// client driving a U-proc's console instead of the scripted or
// locally-attached transports.
func (s *Simulator) AttachNetTerminal(dev int, addr string, log *slog.Logger) error {
	nt, err := newNetTerminal(addr, log)
	if err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.lines[4][dev] = &terminalDevice{backend: nt}
	return nil
}

func (s *Simulator) now() uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.clockUS
}

func (s *Simulator) armPseudoClock(interval uint32) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.events.cancel(pseudoClockOwner, 0)
	s.events.add(pseudoClockOwner, func(int) {
		if s.sink != nil {
			s.sink.PseudoClockTick()
		}
	}, int(interval), 0)
}

func (s *Simulator) armProcTimer(prid int, ticks uint32) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.events.cancel(procTimerOwner, prid)
	s.events.add(procTimerOwner, func(arg int) {
		if s.sink != nil {
			s.sink.CPUTimerExpired(arg)
		}
	}, int(ticks), prid)
}

const (
	pseudoClockOwner = 1
	procTimerOwner   = 2
	deviceOwner      = 3
)

// Advance moves the simulated clock forward by us microseconds,
// firing every event (pseudo-clock, process timers, async device
// completions) whose time has come, in delta order. The monitor's
// advance command drives this directly since there is no real wall
// clock driving instruction fetch here.
func (s *Simulator) Advance(us int) {
	s.mu.Lock()
	s.clockUS += uint64(us)
	s.mu.Unlock()

	s.mu.Lock()
	s.events.advance(us)
	s.mu.Unlock()
}

// ReadWord implements Bus over the full memory map: RAM, bus
// registers, the device-bit words, the device register windows, the
// IRT, and the TPR.
func (s *Simulator) ReadWord(addr uint32) uint32 {
	s.mu.Lock()
	defer s.mu.Unlock()
	switch {
	case addr == RamSizeReg:
		return s.ram.sizeBytes()
	case addr == RamBaseReg:
		return RamStart
	case addr == TODLoReg:
		return uint32(s.clockUS)
	case addr >= DeviceBitsBase && addr < DeviceBitsBase+5*WordLen:
		return s.deviceBitsWord(int((addr - DeviceBitsBase) / WordLen))
	case addr >= DeviceRegBase && addr < TerminalWinHi:
		return s.readDeviceReg(addr)
	case addr >= IRTBase && addr < IRTBase+IRTCount*WordLen:
		return s.irt[(addr-IRTBase)/WordLen]
	case addr == TPRReg:
		return s.tpr
	case addr >= RamStart:
		return s.ram.getWord(addr - RamStart)
	}
	return 0
}

// WriteWord implements Bus's write half, symmetric to ReadWord.
func (s *Simulator) WriteWord(addr uint32, val uint32) {
	s.mu.Lock()
	defer s.mu.Unlock()
	switch {
	case addr >= DeviceRegBase && addr < TerminalWinHi:
		s.writeDeviceReg(addr, val)
	case addr >= IRTBase && addr < IRTBase+IRTCount*WordLen:
		s.irt[(addr-IRTBase)/WordLen] = val
	case addr == TPRReg:
		s.tpr = val
	case addr >= RamStart:
		s.ram.putWord(addr-RamStart, val)
	}
}

// deviceBitsWord reports, for interrupt line index (0 => line 3 ..
// 4 => line 7), which devices currently have a latched, un-ACKed
// completion status as a bitmask.
func (s *Simulator) deviceBitsWord(lineIdx int) uint32 {
	var bits uint32
	for dev := 0; dev < UProcMax; dev++ {
		switch d := s.lines[lineIdx][dev].(type) {
		case *simpleDevice:
			if d.status != 0 {
				bits |= 1 << uint(dev)
			}
		case *terminalDevice:
			if d.recvStatus != 0 || d.transmStatus != 0 {
				bits |= 1 << uint(dev)
			}
		}
	}
	return bits
}

func lineDevFromAddr(addr uint32) (line, dev int, off uint32, terminal bool) {
	line, dev, off = DecodeDeviceAddr(addr)
	terminal = line == LineTerminal
	return line, dev, off, terminal
}

func (s *Simulator) readDeviceReg(addr uint32) uint32 {
	line, dev, off, terminal := lineDevFromAddr(addr)
	idx := line - LineDisk
	if idx < 0 || idx >= 5 || dev < 0 || dev >= UProcMax {
		return 0
	}
	if terminal {
		td, ok := s.lines[idx][dev].(*terminalDevice)
		if !ok {
			return 0
		}
		switch off {
		case 0x0:
			return td.recvStatus
		case 0x4:
			return td.recvCmd
		case 0x8:
			return td.transmStatus
		case 0xC:
			return td.transmCmd
		}
		return 0
	}
	sd, ok := s.lines[idx][dev].(*simpleDevice)
	if !ok {
		return 0
	}
	switch off {
	case 0x0:
		return sd.status
	case 0x4:
		return 0 // command register reads back as 0 once issued
	case 0x8:
		return sd.data0
	case 0xC:
		return sd.data1
	}
	return 0
}

func (s *Simulator) writeDeviceReg(addr uint32, val uint32) {
	line, dev, off, terminal := lineDevFromAddr(addr)
	idx := line - LineDisk
	if idx < 0 || idx >= 5 || dev < 0 || dev >= UProcMax {
		return
	}
	if terminal {
		td, ok := s.lines[idx][dev].(*terminalDevice)
		if !ok {
			return
		}
		switch off {
		case 0x4: // recv command
			td.recvCmd = val
			s.serviceTerminalRecv(idx, dev, td, val)
		case 0xC: // transmit command
			td.transmCmd = val
			s.serviceTerminalTransm(idx, dev, td, val)
		case 0x0:
			if val == StatusAck {
				td.recvStatus = 0
			}
		case 0x8:
			if val == StatusAck {
				td.transmStatus = 0
			}
		}
		return
	}
	sd, ok := s.lines[idx][dev].(*simpleDevice)
	if !ok {
		return
	}
	switch off {
	case 0x4:
		if val == StatusAck {
			sd.status = 0
			return
		}
		s.serviceSimple(idx, dev, sd, val)
	case 0x8:
		sd.data0 = val
	case 0xC:
		sd.data1 = val
	}
}

// serviceSimple runs a non-terminal device's command synchronously
// (flash and printer complete within the same tick in this
// simulator) and raises its interrupt line.
func (s *Simulator) serviceSimple(idx, dev int, sd *simpleDevice, cmd uint32) {
	if sd.kind == "flash" {
		s.runFlash(sd, cmd)
	} else {
		sd.status = StatusReady
	}
	if s.sink != nil {
		sink, line := s.sink, idx+LineDisk
		s.mu.Unlock()
		sink.DeviceInterrupt(line, dev)
		s.mu.Lock()
	}
}

// runFlash performs the data movement for a flash command: op 2
// reads PageSize bytes starting at block*PageSize in the backing
// store into RAM at data0; op 3 writes RAM at data0 back to the
// block.
func (s *Simulator) runFlash(sd *simpleDevice, cmd uint32) {
	status := sd.flashCommand(cmd)
	sd.status = status
	if status != StatusReady {
		return
	}
	op := cmd & 0xFF
	block := int((cmd >> 8) & 0xFFFFFF)
	frameAddr := sd.data0
	blockOff := block * PageSize
	for i := 0; i < PageSize/WordLen; i++ {
		ramAddr := frameAddr + uint32(i*WordLen) - RamStart
		bOff := blockOff + i*WordLen
		switch op {
		case FlashRead:
			var w uint32
			if bOff+4 <= len(sd.backing) {
				w = beUint32(sd.backing[bOff:])
			}
			s.ram.putWord(ramAddr, w)
		case FlashWrite:
			if bOff+4 <= len(sd.backing) {
				putBeUint32(sd.backing[bOff:], s.ram.getWord(ramAddr))
			}
		}
	}
}

func beUint32(b []byte) uint32 {
	return uint32(b[0])<<24 | uint32(b[1])<<16 | uint32(b[2])<<8 | uint32(b[3])
}

func putBeUint32(b []byte, v uint32) {
	b[0] = byte(v >> 24)
	b[1] = byte(v >> 16)
	b[2] = byte(v >> 8)
	b[3] = byte(v)
}

func (s *Simulator) serviceTerminalTransm(idx, dev int, td *terminalDevice, cmd uint32) {
	ch := byte(cmd >> 8)
	td.backend.transmit(ch)
	td.transmStatus = CharTransm
	if s.sink != nil {
		sink := s.sink
		s.mu.Unlock()
		sink.DeviceInterrupt(LineTerminal, dev)
		s.mu.Lock()
	}
}

func (s *Simulator) serviceTerminalRecv(idx, dev int, td *terminalDevice, cmd uint32) {
	b, ok := td.backend.receive()
	if !ok {
		return // no byte available yet; a real transport would complete later
	}
	td.recvStatus = CharRecv | (uint32(b) << 8)
	if s.sink != nil {
		sink := s.sink
		s.mu.Unlock()
		sink.DeviceInterrupt(LineTerminal, dev)
		s.mu.Lock()
	}
}
