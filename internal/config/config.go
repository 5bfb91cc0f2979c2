/*
 * pandos - Boot configuration file parser.
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

// Package config parses the kernel boot configuration file: a small
// line-oriented grammar in the style of the teacher's configparser
// (one directive per line, '#' comments, whitespace-separated
// fields), generalized from per-device model lines to the handful of
// boot-time knobs this kernel needs.
package config

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
)

// BootConfig holds every boot-time knob the kernel reads before
// bringing up the nucleus.
type BootConfig struct {
	NumCPU     int    // 1..8, default 8
	LogFile    string // "logfile" directive; cmd/pandos takes its log file from -l, not from here
	DebugMask  int    // bitmask consumed by util/debug
	FlashManifest string // path to the YAML flash manifest, "" = none
}

// Default returns the configuration used when no config file is given.
func Default() *BootConfig {
	return &BootConfig{NumCPU: 8}
}

// Load reads and parses a boot configuration file. Recognized
// directives, one per line:
//
//	cpus <1..8>
//	logfile <path>
//	debug <mask>
//	flash <path-to-manifest.yaml>
//
// Unknown directives are a parse error, matching the teacher's
// parser's strictness about malformed option lines.
func Load(path string) (*BootConfig, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("config: open %s: %w", path, err)
	}
	defer f.Close()
	return parse(f, path)
}

func parse(r io.Reader, path string) (*BootConfig, error) {
	cfg := Default()
	sc := bufio.NewScanner(r)
	lineNo := 0
	for sc.Scan() {
		lineNo++
		line := sc.Text()
		if i := strings.IndexByte(line, '#'); i >= 0 {
			line = line[:i]
		}
		fields := strings.Fields(line)
		if len(fields) == 0 {
			continue
		}
		if err := applyDirective(cfg, fields); err != nil {
			return nil, fmt.Errorf("config: %s:%d: %w", path, lineNo, err)
		}
	}
	if err := sc.Err(); err != nil {
		return nil, fmt.Errorf("config: %s: %w", path, err)
	}
	return cfg, nil
}

func applyDirective(cfg *BootConfig, fields []string) error {
	directive := strings.ToLower(fields[0])
	rest := fields[1:]
	switch directive {
	case "cpus":
		if len(rest) != 1 {
			return fmt.Errorf("cpus: expected one argument, got %d", len(rest))
		}
		n, err := strconv.Atoi(rest[0])
		if err != nil {
			return fmt.Errorf("cpus: %w", err)
		}
		if n < 1 || n > 8 {
			return fmt.Errorf("cpus: %d out of range [1,8]", n)
		}
		cfg.NumCPU = n
	case "logfile":
		if len(rest) != 1 {
			return fmt.Errorf("logfile: expected one argument, got %d", len(rest))
		}
		cfg.LogFile = rest[0]
	case "debug":
		if len(rest) != 1 {
			return fmt.Errorf("debug: expected one argument, got %d", len(rest))
		}
		mask, err := strconv.ParseInt(rest[0], 0, 64)
		if err != nil {
			return fmt.Errorf("debug: %w", err)
		}
		cfg.DebugMask = int(mask)
	case "flash":
		if len(rest) != 1 {
			return fmt.Errorf("flash: expected one argument, got %d", len(rest))
		}
		cfg.FlashManifest = rest[0]
	default:
		return fmt.Errorf("unrecognized directive %q", fields[0])
	}
	return nil
}
