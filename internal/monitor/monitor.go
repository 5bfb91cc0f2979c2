/*
 * pandos - Kernel monitor console.
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

// Package monitor implements the operator's console: a liner-driven
// read-eval-print loop over the running Kernel and Simulator, grounded
// on the teacher's command/reader.ConsoleReader. Unlike the teacher's
// console, this kernel has no attachable devices to name at the
// prompt - its commands are all introspection and clock control, since
// this machine has no instruction-level executor for a user program to
// single-step.
package monitor

import (
	"errors"
	"fmt"
	"io"
	"log/slog"

	"github.com/peterh/liner"

	"github.com/pandos-os/core/internal/machine"
	"github.com/pandos-os/core/internal/nucleus"
)

// Console owns the kernel and simulator a monitor session drives.
type Console struct {
	Kernel *nucleus.Kernel
	Sim    *machine.Simulator
	Out    io.Writer
	Log    *slog.Logger
}

// New builds a Console over an already-booted kernel.
func New(k *nucleus.Kernel, sim *machine.Simulator, out io.Writer, log *slog.Logger) *Console {
	return &Console{Kernel: k, Sim: sim, Out: out, Log: log}
}

// Run drives the prompt loop until the operator quits or aborts with
// Ctrl-C, mirroring ConsoleReader's liner setup exactly: history,
// tab completion, and ErrPromptAborted as the clean-exit signal.
func (c *Console) Run() {
	line := liner.NewLiner()
	defer line.Close()

	line.SetCtrlCAborts(true)
	line.SetCompleter(func(partial string) []string {
		return completeCmd(partial)
	})

	for {
		command, err := line.Prompt("pandos> ")
		if err == nil {
			line.AppendHistory(command)
			quit, perr := c.process(command)
			if perr != nil {
				fmt.Fprintln(c.Out, "Error: "+perr.Error())
			}
			if quit {
				return
			}
			continue
		}

		if errors.Is(err, liner.ErrPromptAborted) {
			return
		}
		c.Log.Error("monitor: error reading line: " + err.Error())
		return
	}
}
