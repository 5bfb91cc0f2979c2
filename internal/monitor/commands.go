/*
 * pandos - Kernel monitor command table.
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

package monitor

import (
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/pandos-os/core/internal/support"
	"github.com/pandos-os/core/internal/vm"
)

type command struct {
	name    string
	min     int // minimum unambiguous prefix length, matching parser.go's matchCommand
	process func(c *Console, args []string) (quit bool, err error)
}

var commandTable = []command{
	{name: "help", min: 1, process: (*Console).cmdHelp},
	{name: "quit", min: 1, process: (*Console).cmdQuit},
	{name: "ps", min: 2, process: (*Console).cmdPS},
	{name: "semaphores", min: 3, process: (*Console).cmdSemaphores},
	{name: "advance", min: 2, process: (*Console).cmdAdvance},
}

// matchCommand reports whether name is an unambiguous prefix of the
// candidate, at least min characters long, the same rule parser.go's
// matchCommand applies to the teacher's device commands.
func matchCommand(candidate command, name string) bool {
	if len(name) < candidate.min || len(name) > len(candidate.name) {
		return false
	}
	return candidate.name[:len(name)] == name
}

func matchList(name string) []command {
	if name == "" {
		return nil
	}
	var match []command
	for _, cmd := range commandTable {
		if matchCommand(cmd, name) {
			match = append(match, cmd)
		}
	}
	return match
}

// process executes one command line, returning true when the operator
// asked to quit.
func (c *Console) process(line string) (bool, error) {
	fields := strings.Fields(line)
	if len(fields) == 0 {
		return false, nil
	}
	name, args := strings.ToLower(fields[0]), fields[1:]

	match := matchList(name)
	switch len(match) {
	case 0:
		return false, errors.New("command not found: " + name)
	case 1:
		return match[0].process(c, args)
	default:
		return false, errors.New("ambiguous command: " + name)
	}
}

// completeCmd offers every command name whose prefix matches partial,
// for the liner tab-completer.
func completeCmd(partial string) []string {
	name := strings.ToLower(strings.TrimLeft(partial, " "))
	var out []string
	for _, cmd := range commandTable {
		if strings.HasPrefix(cmd.name, name) {
			out = append(out, cmd.name)
		}
	}
	return out
}

func (c *Console) cmdHelp(_ []string) (bool, error) {
	fmt.Fprintln(c.Out, "commands: help, quit, ps, semaphores, advance <microseconds>")
	return false, nil
}

func (c *Console) cmdQuit(_ []string) (bool, error) {
	return true, nil
}

// cmdPS reports, per CPU, whichever process currently occupies that
// CPU's running slot, and the nucleus-wide live process count.
func (c *Console) cmdPS(_ []string) (bool, error) {
	for prid := 0; prid < c.Kernel.NumCPU(); prid++ {
		pid, pc, running := c.Kernel.CPUStatus(prid)
		if !running {
			fmt.Fprintf(c.Out, "cpu %d: idle\n", prid)
			continue
		}
		fmt.Fprintf(c.Out, "cpu %d: pid %d pc %#x\n", prid, pid, pc)
	}
	fmt.Fprintf(c.Out, "processes: %d\n", c.Kernel.ProcessCount())
	return false, nil
}

// cmdSemaphores reports the two cross-U-proc semaphores support and vm
// keep as package-level state: the instantiator's master rendezvous
// and the swap pool mutex plus its current holder.
func (c *Console) cmdSemaphores(_ []string) (bool, error) {
	fmt.Fprintf(c.Out, "master semaphore: %d\n", support.MasterSemaphore)
	fmt.Fprintf(c.Out, "swap pool semaphore: %d (held by asid %d)\n", vm.SwapPoolSemaphore, vm.AsidInSwapPool)
	return false, nil
}

// cmdAdvance moves the simulated clock forward, firing whatever
// pseudo-clock, process-timer, or device-completion events have come
// due - the operator's substitute for a real-time driving loop, since
// nothing here advances the clock on its own.
func (c *Console) cmdAdvance(args []string) (bool, error) {
	if len(args) != 1 {
		return false, errors.New("advance requires one argument: microseconds")
	}
	us, err := strconv.Atoi(args[0])
	if err != nil || us < 0 {
		return false, errors.New("advance requires a non-negative integer: " + args[0])
	}
	c.Sim.Advance(us)
	return false, nil
}
