/*
 * pandos - Support-level syscall and exception handlers (§4.7).
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

package support

import (
	"github.com/pandos-os/core/internal/machine"
	"github.com/pandos-os/core/internal/nucleus"
)

// Synthetic interrupt-line numbers for per-ASID device-mutex indexing
// only (§5's "dual discipline": these are distinct from the nucleus's
// 49-entry DOIO device semaphore table). The reference extends lines
// 3..8 to give the terminal's two subdevices independent mutexes.
const (
	lineDisk           = machine.LineDisk     // 3
	lineFlash          = machine.LineFlash    // 4
	lineEthernet       = machine.LineEthernet // 5
	linePrinter        = machine.LinePrinter  // 6
	lineTermTransmit   = machine.LineTerminal // 7
	lineTermReceive    = machine.LineTerminal + 1
	numDeviceMutexLine = lineTermReceive - lineDisk + 1 // 6
)

// deviceMutex holds one per-ASID-per-device mutex per (synthetic
// line, device) pair, serializing a U-proc's own access to "its"
// device ahead of the nucleus-level DOIO block. All start at 1
// (available), a standard binary mutex under this kernel's inverted
// PASSEREN/VERHOGEN convention.
var deviceMutex [numDeviceMutexLine * machine.UProcMax]int32

func init() {
	for i := range deviceMutex {
		deviceMutex[i] = 1
	}
}

func deviceMutexIndex(line, dev int) int {
	return (line-lineDisk)*machine.UProcMax + dev
}

// isValidAddress reports whether [virt, virt+length) lies entirely
// within the user code/data region or the user stack page, and length
// is within MaxStrLen, per sysSupport.c's _is_valid_address.
func isValidAddress(virt uint32, length int) bool {
	if length < 0 || length > machine.MaxStrLen {
		return false
	}
	end := virt + uint32(length)
	inTextData := virt >= machine.UserCodeBase && end <= machine.UserCodeLimit
	inStack := virt >= machine.UserStackPage && end <= machine.UserStackTop
	return inTextData || inStack
}

// printerBase and terminalBase compute a device's register-window
// base address, per §6's memory map.
func printerBase(dev int) uint32 {
	return machine.DeviceRegBase + uint32(linePrinter-machine.LineDisk)*machine.DeviceRegSpan + uint32(dev)*machine.DeviceRegWidth
}

func terminalBase(dev int) uint32 {
	return machine.TerminalWinLo + uint32(dev)*machine.DeviceRegWidth
}

// Terminate implements syscall 2 TERMINATE: release every device
// mutex this ASID holds, invalidate its swap entries, release the
// swap-pool semaphore if it is the current holder, V the master
// semaphore, and terminate. invalidateSwap and releaseSwapIfHolder are
// supplied by package vm to avoid an import cycle (vm already imports
// support for Block/PTE).
func Terminate(k *nucleus.Kernel, prid int, b *Block, invalidateSwap func(asid int), releaseSwapIfHolder func(asid int)) {
	for line := lineDisk; line <= lineTermReceive; line++ {
		idx := deviceMutexIndex(line, b.ASID-1)
		if deviceMutex[idx] == 0 {
			k.Verhogen(prid, &deviceMutex[idx])
		}
	}

	invalidateSwap(b.ASID)
	releaseSwapIfHolder(b.ASID)

	k.Verhogen(prid, &MasterSemaphore)
	k.TermProcess(prid, 0)
	k.Schedule(prid)
}

// WritePrinter implements syscall 3 WRITEPRINTER(virt, len): write up
// to len characters at virt to this ASID's printer, one DOIO per
// character, returning the count transmitted or the negated device
// status on the first failure. Callers (SyscallHandler) validate virt
// and len before calling; WritePrinter does not repeat that check.
func WritePrinter(k *nucleus.Kernel, prid int, b *Block, readByte func(virt uint32) byte, virt uint32, length int) int {
	dev := b.ASID - 1
	idx := deviceMutexIndex(linePrinter, dev)
	k.Passeren(prid, &deviceMutex[idx])
	defer k.Verhogen(prid, &deviceMutex[idx])

	base := printerBase(dev)
	transmitted := 0
	for i := 0; i < length; i++ {
		ch := readByte(virt + uint32(i))
		if ch == 0 {
			break
		}
		transmitted++
		k.WriteDeviceReg(base+0x8, uint32(ch)) // data0
		k.DoIO(prid, base+0x4, machine.PrintChr)
		status := k.CurrentA0(prid)
		if status != machine.StatusReady {
			return -int(status)
		}
	}
	return transmitted
}

// WriteTerminal implements syscall 4 WRITETERMINAL(virt, len): same
// protocol on the terminal-transmit subdevice, command PRINTCHR |
// (ch<<8), success coded as status&0xFF == CHARTRANSM.
func WriteTerminal(k *nucleus.Kernel, prid int, b *Block, readByte func(virt uint32) byte, virt uint32, length int) int {
	dev := b.ASID - 1
	idx := deviceMutexIndex(lineTermTransmit, dev)
	k.Passeren(prid, &deviceMutex[idx])
	defer k.Verhogen(prid, &deviceMutex[idx])

	base := terminalBase(dev)
	transmitted := 0
	for i := 0; i < length; i++ {
		ch := readByte(virt + uint32(i))
		if ch == 0 {
			break
		}
		transmitted++
		cmd := uint32(machine.TermTransmCmd) | uint32(ch)<<8
		k.DoIO(prid, base+0xC, cmd)
		status := k.CurrentA0(prid)
		if status&0xFF != machine.CharTransm {
			return -int(status)
		}
	}
	return transmitted
}

// ReadTerminal implements syscall 5 READTERMINAL(virt): read
// characters one at a time from this ASID's terminal until '\n' or
// '\r', storing a NUL terminator via writeByte and returning the
// count of characters read (not including the terminator).
func ReadTerminal(k *nucleus.Kernel, prid int, b *Block, writeByte func(virt uint32, ch byte), virt uint32) int {
	dev := b.ASID - 1
	idx := deviceMutexIndex(lineTermReceive, dev)
	k.Passeren(prid, &deviceMutex[idx])
	defer k.Verhogen(prid, &deviceMutex[idx])

	base := terminalBase(dev)
	received := 0
	for {
		k.DoIO(prid, base+0x4, machine.TermRecvCmd)
		status := k.CurrentA0(prid)
		if status&0xFF != machine.CharRecv {
			return -int(status)
		}
		ch := byte(status >> 8)
		if ch == '\n' || ch == '\r' {
			writeByte(virt+uint32(received), 0)
			return received
		}
		writeByte(virt+uint32(received), ch)
		received++
	}
}

// Memory is the byte-addressable view of a U-proc's data/stack region
// that WritePrinter/WriteTerminal/ReadTerminal read and write through.
// This simulator has no TLB-backed user address space, so SyscallHandler
// takes the mapping explicitly rather than walking the page table
// itself. The caller supplies the implementation (the tests use a flat
// in-memory buffer); no implementation over the swap-pool frames exists
// in this tree.
type Memory interface {
	ReadByte(virt uint32) byte
	WriteByte(virt uint32, b byte)
}

// SyscallHandler implements syscallHandler: dispatch on the a0 of the
// caller's saved GENERALEXCEPT state, write the result back into a0,
// advance past the trapping instruction, and resume. Dispatch that
// terminates (TERMINATE, or an invalid-buffer WRITEPRINTER/WRITETERMINAL)
// does not return to the a0/PC bookkeeping below - the process is gone.
func SyscallHandler(k *nucleus.Kernel, prid int, b *Block, mem Memory, invalidateSwap func(asid int), releaseSwapIfHolder func(asid int)) {
	state := b.ExceptionState(GeneralExcept)
	virt := state.GPR[nucleus.RegA1]
	length := int(int32(state.GPR[nucleus.RegA2]))

	switch state.GPR[nucleus.RegA0] {
	case machine.SysTerminate:
		Terminate(k, prid, b, invalidateSwap, releaseSwapIfHolder)
		return
	case machine.SysWritePrinter:
		if !isValidAddress(virt, length) {
			Terminate(k, prid, b, invalidateSwap, releaseSwapIfHolder)
			return
		}
		state.GPR[nucleus.RegA0] = uint32(WritePrinter(k, prid, b, mem.ReadByte, virt, length))
	case machine.SysWriteTerminal:
		if !isValidAddress(virt, length) {
			Terminate(k, prid, b, invalidateSwap, releaseSwapIfHolder)
			return
		}
		state.GPR[nucleus.RegA0] = uint32(WriteTerminal(k, prid, b, mem.ReadByte, virt, length))
	case machine.SysReadTerminal:
		state.GPR[nucleus.RegA0] = uint32(ReadTerminal(k, prid, b, mem.WriteByte, virt))
	}

	state.PC += 4
	k.Resume(prid, *state)
}

// ProgramTrapHandler implements programTrapExceptionHandler: every
// program trap is fatal to the U-proc.
func ProgramTrapHandler(k *nucleus.Kernel, prid int, b *Block, invalidateSwap func(asid int), releaseSwapIfHolder func(asid int)) {
	Terminate(k, prid, b, invalidateSwap, releaseSwapIfHolder)
}

// GeneralExceptionHandler implements generalExceptionHandler: inspect
// the cause of the saved GENERALEXCEPT state and route to the syscall
// handler or the program-trap handler.
func GeneralExceptionHandler(k *nucleus.Kernel, prid int, b *Block, mem Memory, invalidateSwap func(asid int), releaseSwapIfHolder func(asid int)) {
	state := b.ExceptionState(GeneralExcept)
	if state.Cause == machine.ExcSyscallUser {
		SyscallHandler(k, prid, b, mem, invalidateSwap, releaseSwapIfHolder)
		return
	}
	ProgramTrapHandler(k, prid, b, invalidateSwap, releaseSwapIfHolder)
}
