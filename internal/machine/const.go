/*
 * pandos - Machine constants: memory map, register windows, device codes.
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

// Package machine defines the BIOS/device contract the nucleus and
// support level run against, plus a software Simulator implementing
// that contract well enough to drive the kernel end to end.
package machine

// Core sizing constants, unchanged names from the reference machine.
const (
	PageSize      = 4096
	WordLen       = 4
	MaxProc       = 20
	NCPU          = 8
	UProcMax      = 8
	UserPgTblSize = 32
	SwapPoolSize  = 2 * UProcMax // 16
	TimeSlice     = 5000         // microseconds, one scheduling quantum
	PSecond       = 100000       // microseconds, pseudo-clock tick interval
	MaxStrLen     = 128
	StateSize     = 0x8C
)

// Memory map.
const (
	BiosDataPage = 0x0FFFF000

	BusRegBase   = 0x10000000
	RamBaseReg   = BusRegBase + 0x00
	RamSizeReg   = BusRegBase + 0x04
	TODLoReg     = BusRegBase + 0x1C
	IntervalReg  = BusRegBase + 0x20
	TimeScaleReg = BusRegBase + 0x24

	DeviceBitsBase = 0x10000040 // 5 words, one per interrupt line 3..7

	DeviceRegBase  = 0x10000054
	DeviceRegSpan  = 0x80 // per interrupt line
	DeviceRegWidth = 0x10 // per device within a line

	TerminalWinLo = 0x10000254
	TerminalWinHi = 0x10000354 // exclusive

	IRTBase  = 0x10000300
	IRTCount = 48
	TPRReg   = 0x10000408

	RamStart = 0x20000000

	UserCodeBase  = 0x80000000
	UserCodeLimit = 0x8001E000 // VPN 0..29
	UserStackPage = 0xBFFFF000 // VPN 0xBFFFF, page-table index 31
	UserStartAddr = 0x800000B0
	UserStackTop  = 0xC0000000
)

// Interrupt lines, as extracted from CAUSE.
const (
	LineCPUTimer = 1
	LineTimer    = 2
	LineDisk     = 3
	LineFlash    = 4
	LineEthernet = 5
	LinePrinter  = 6
	LineTerminal = 7
)

// Device status / command codes.
const (
	StatusReady = 1
	StatusOK    = 5
	CharRecv    = 5
	CharTransm  = 5
	StatusAck   = 1

	FlashRead  = 2
	FlashWrite = 3

	PrintChr = 2

	TermRecvCmd  = 2
	TermTransmCmd = 2
)

// NumDeviceSem is the size of the device semaphore table: 8 devices ×
// 4 non-terminal interrupt lines, plus 8 terminal-transmit and 8
// terminal-receive entries, plus one pseudo-clock entry at the end.
const NumDeviceSem = 4*UProcMax + UProcMax + UProcMax + 1 // 49

// PseudoClockSem is the index of the pseudo-clock semaphore in the
// device semaphore table.
const PseudoClockSem = NumDeviceSem - 1 // 48

// Nucleus syscall codes (negative, privileged).
const (
	SysCreateProcess  = -1
	SysTermProcess    = -2
	SysPasseren       = -3
	SysVerhogen       = -4
	SysDoIO           = -5
	SysGetTime        = -6
	SysClockWait      = -7
	SysGetSupportPtr  = -8
	SysGetProcessID   = -9
	SysYield          = -10
)

// Support-level (user-mode passed-up) syscall codes (positive).
const (
	SysTerminate     = 2
	SysWritePrinter  = 3
	SysWriteTerminal = 4
	SysReadTerminal  = 5
)

// CAUSE exception codes relevant to pass-up routing.
const (
	ExcTLBInvalidLoad  = 25
	ExcTLBInvalidStore = 26
	ExcSyscallUser     = 8
	ExcSyscallBreak    = 11

	// ExcPrivilegedInstr is the program-trap cause recorded when a
	// user-mode process attempts a nucleus syscall (codes -1..-10):
	// those are privileged instructions on real hardware.
	ExcPrivilegedInstr = 2

	// ExcReservedSyscall is the program-trap cause recorded when a
	// machine-mode caller issues a SYSCALL with a code outside the ten
	// assigned nucleus syscall numbers.
	ExcReservedSyscall = 10
)

// DeviceSemIndex computes the device-semaphore-table index for a
// command register address, per the terminal-window and non-terminal
// formulas. cmdOffset is the byte offset of the register within its
// device's register block (0x0, 0x4, 0x8, 0xC).
func DeviceSemIndex(line, dev int, cmdOffset uint32) int {
	if line == LineTerminal {
		base := (LineTerminal - LineDisk) * UProcMax // 4*8 = 32
		off := 0
		if cmdOffset == 0xC {
			off = 1
		}
		return base + dev*2 + off
	}
	return (line-LineDisk)*UProcMax + dev
}

// DecodeDeviceAddr splits a device-register address into its
// interrupt line, device number, and byte offset within the device's
// register block, per the memory map in §6: the terminal window
// `[0x10000254, 0x10000354)` uses 0x10-byte device blocks of four
// registers; other lines use the `0x10000054 + (L-3)*0x80 + D*0x10`
// layout.
func DecodeDeviceAddr(addr uint32) (line, dev int, cmdOffset uint32) {
	if addr >= TerminalWinLo && addr < TerminalWinHi {
		rel := addr - TerminalWinLo
		return LineTerminal, int(rel / DeviceRegWidth), rel % DeviceRegWidth
	}
	rel := addr - DeviceRegBase
	line = LineDisk + int(rel/DeviceRegSpan)
	rem := rel % DeviceRegSpan
	return line, int(rem / DeviceRegWidth), rem % DeviceRegWidth
}
