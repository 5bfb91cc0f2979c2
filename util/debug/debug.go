/*
 * pandos - Masked debug tracing.
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

// Package debug implements the same masked-tracing idea as the
// teacher's util/debug: a module tag, a bit checked against a runtime
// mask, and a formatted line written to a file - adapted from the
// teacher's per-device/per-channel debug file (registered through the
// old config file's DEBUGFILE directive) to this kernel's single
// boot-config "debug <mask>" directive and module-tagged callers,
// since this kernel has no channels or attachable devices to tag
// output by. The nucleus is the only package that calls Tracef; the
// Support and VM bits have no callers.
package debug

import (
	"fmt"
	"io"
	"os"
)

// Bits identify which subsystem a trace line comes from; callers pass
// one of these as Tracef's bit argument, which is ANDed against the
// active mask set by Init.
const (
	Scheduler = 1 << iota
	Syscall
	Interrupt
	PassUp
	Support
	VM
)

var (
	active int
	out    io.Writer = os.Stderr
)

// Init sets the active debug mask (normally BootConfig.DebugMask) and
// the destination for trace output. Passing a nil file leaves traces
// going to stderr.
func Init(mask int, file *os.File) {
	active = mask
	if file != nil {
		out = file
	}
}

// Tracef writes a trace line tagged with module when bit is set in the
// mask Init was given; otherwise it is a no-op; module names the
// calling package (e.g. "nucleus", "support", "vm").
func Tracef(module string, bit int, format string, args ...any) {
	if active&bit == 0 {
		return
	}
	fmt.Fprintf(out, module+": "+format+"\n", args...)
}

// Active reports whether any trace bit is set, for util/logger to
// decide whether slog Debug-level lines should also echo to stderr
// alongside this package's own trace lines.
func Active() bool {
	return active != 0
}
