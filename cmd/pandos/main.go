/*
 * pandos - Kernel boot entry point.
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

package main

import (
	"io"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	getopt "github.com/pborman/getopt/v2"

	"github.com/pandos-os/core/internal/config"
	"github.com/pandos-os/core/internal/machine"
	"github.com/pandos-os/core/internal/monitor"
	"github.com/pandos-os/core/internal/nucleus"
	"github.com/pandos-os/core/internal/pcb"
	"github.com/pandos-os/core/internal/support"
	"github.com/pandos-os/core/internal/vm"
	"github.com/pandos-os/core/util/debug"
	"github.com/pandos-os/core/util/logger"
)

// ramWords sizes the simulated RAM generously enough to hold every
// CPU's stack page, the eight U-proc code/data pages (one modeled),
// and the shared swap pool, per §3's memory map.
const ramWords = 65536

func main() {
	optConfig := getopt.StringLong("config", 'c', "", "Boot configuration file")
	optLogFile := getopt.StringLong("log", 'l', "", "Log file")
	optHelp := getopt.BoolLong("help", 'h', "Help")
	getopt.Parse()

	if *optHelp {
		getopt.Usage()
		os.Exit(0)
	}

	var file *os.File
	var out io.Writer
	if *optLogFile != "" {
		f, err := os.Create(*optLogFile)
		if err != nil {
			slog.Error("pandos: create log file: " + err.Error())
			os.Exit(1)
		}
		file = f
		out = f
	}
	programLevel := new(slog.LevelVar)
	programLevel.Set(slog.LevelDebug)
	handler := logger.NewHandler(out, &slog.HandlerOptions{Level: programLevel, AddSource: false}, false)
	log := slog.New(handler)
	slog.SetDefault(log)

	cfg := config.Default()
	if *optConfig != "" {
		loaded, err := config.Load(*optConfig)
		if err != nil {
			log.Error("pandos: " + err.Error())
			os.Exit(1)
		}
		cfg = loaded
	}
	debug.Init(cfg.DebugMask, file)
	handler.SetDebug(debug.Active())

	log.Info("pandos booting", "cpus", cfg.NumCPU)

	sim := machine.NewSimulator(ramWords, cfg.NumCPU)

	if cfg.FlashManifest != "" {
		manifest, err := config.LoadFlashManifest(cfg.FlashManifest)
		if err != nil {
			log.Error("pandos: " + err.Error())
			os.Exit(1)
		}
		for _, entry := range manifest.Devices {
			backing, err := entry.Backing(machine.PageSize)
			if err != nil {
				log.Error("pandos: " + err.Error())
				os.Exit(1)
			}
			sim.SetFlashBacking(entry.ASID-1, backing)
		}
	}

	k := nucleus.New(sim, log)
	k.Boot(pcb.ProcessState{})

	go support.Instantiator(k, 0, vm.InitSwapStructs)

	console := monitor.New(k, sim, os.Stdout, log)

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigChan
		log.Info("pandos: received shutdown signal")
		os.Exit(0)
	}()

	console.Run()
	log.Info("pandos: monitor exited, shutting down")
}
