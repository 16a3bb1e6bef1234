// SPDX-License-Identifier: GPL-3.0
// Copyright 2024 Pete Heist

// Command sceasim runs one real-time media transport simulation: a
// bandwidth-variable, lossy bottleneck link between a video sender and a
// video receiver, under a chosen congestion-control strategy.
package main

import (
	"flag"
	"log"
	"net/http"
	"os"
	"runtime"
	"runtime/pprof"
	"time"

	"github.com/sceasim/sceasim/config"
	"github.com/sceasim/sceasim/internal/sim"
	"github.com/sceasim/sceasim/internal/simmetrics"
	"github.com/sceasim/sceasim/internal/units"
)

const (
	profileCPU    = false
	profileMemory = false
	runDuration   = 30 * time.Second
)

func main() {
	log.SetFlags(0)

	cc := flag.String("cc", "gcc", "congestion controller: oracle|salsify|gcc|fbra")
	trace := flag.String("trace", "", "bandwidth-trace CSV path")
	codecTable := flag.String("codec-table", "", "codec lookup-table CSV path (required unless an external codec is wired in)")
	outDir := flag.String("out", "./sceasim-out", "output directory (created if missing; the run writes no CSV logs into it)")
	metricsAddr := flag.String("metrics-addr", "", "if set, serve live Prometheus metrics on this address (e.g. :9090)")
	flag.Parse()

	opts := config.Options{
		Strategy:       *cc,
		TracePath:      *trace,
		CodecTablePath: *codecTable,
		OutputDir:      *outDir,
	}
	cfg, err := config.Resolve(opts)
	if err != nil {
		log.Fatal(err)
	}

	if *metricsAddr != "" {
		reg := simmetrics.New()
		cfg.Metrics = reg
		mux := http.NewServeMux()
		mux.Handle("/metrics", reg.Handler())
		go func() {
			log.Println(http.ListenAndServe(*metricsAddr, mux))
		}()
	}

	if profileCPU {
		f, err := os.Create("sceasim-cpu.prof")
		if err != nil {
			log.Fatal(err)
		}
		pprof.StartCPUProfile(f)
		defer pprof.StopCPUProfile()
	}

	s, err := sim.New(cfg)
	if err != nil {
		log.Fatal(err)
	}
	s.Run(units.DurationFromStd(runDuration))

	if profileMemory {
		f, err := os.Create("sceasim-mem.prof")
		if err != nil {
			log.Fatal(err)
		}
		defer f.Close()
		runtime.GC()
		if err := pprof.WriteHeapProfile(f); err != nil {
			log.Fatal(err)
		}
	}
}
