// SPDX-License-Identifier: GPL-3.0
// Copyright 2024 Pete Heist

// Package config resolves the simulator's five external options (spec.md
// section 6's Invocation) into the internal/sim.Config the core needs,
// reading the bandwidth trace and codec lookup table from disk via
// internal/csvlog.
package config

import (
	"fmt"
	"os"

	"github.com/sceasim/sceasim/internal/csvlog"
	"github.com/sceasim/sceasim/internal/sim"
)

// Options is the CLI-facing configuration: congestion-controller name,
// bandwidth-trace file path, an optional codec lookup-table path, the
// output directory for CSV logs, and an optional external codec capability
// standing in for a foreign-runtime encoder/decoder.
type Options struct {
	Strategy      string
	TracePath     string
	CodecTablePath string
	OutputDir     string
	ExternalCodec ExternalCodec
}

// ExternalCodec is the optional capability spec.md section 4.4 describes.
// When it is set, Resolve skips reading the codec table; the resulting
// sim.Config has no field for it, so the simulation never calls its
// Encode or Decode, and the video sender and receiver are built with an
// empty codec table.
type ExternalCodec interface {
	Encode(targetBytes int64, frameID int64) (size int64, modelID int)
	Decode(frameID int64, lossRate float64, modelID int) (psnr, ssim float64)
}

// Resolve validates Options and builds a sim.Config from it, reading and
// parsing the trace and (if no external codec was supplied) the codec
// table from disk. Every failure here is a configuration error: spec.md
// section 7 requires these to fail fast at startup.
func Resolve(opts Options) (sim.Config, error) {
	var cfg sim.Config

	switch sim.Strategy(opts.Strategy) {
	case sim.StrategyOracle, sim.StrategySalsify, sim.StrategyGCC, sim.StrategyFBRA:
		cfg.Strategy = sim.Strategy(opts.Strategy)
	default:
		return cfg, fmt.Errorf("config: unknown congestion controller %q", opts.Strategy)
	}

	if cfg.Strategy == sim.StrategySalsify {
		cfg.Variant = sim.VariantSalsify
	} else {
		cfg.Variant = sim.VariantRTP
	}

	if opts.TracePath == "" {
		return cfg, fmt.Errorf("config: missing bandwidth trace path")
	}
	traceF, err := os.Open(opts.TracePath)
	if err != nil {
		return cfg, fmt.Errorf("config: opening trace: %w", err)
	}
	defer traceF.Close()
	traceRows, err := csvlog.ReadTrace(traceF)
	if err != nil {
		return cfg, fmt.Errorf("config: parsing trace: %w", err)
	}
	fwd := csvlog.BuildLinkConfig(traceRows)
	cfg.LinkFwd = fwd
	cfg.LinkRev = fwd

	if opts.ExternalCodec == nil {
		if opts.CodecTablePath == "" {
			return cfg, fmt.Errorf("config: missing codec lookup table (no external codec supplied)")
		}
		codecF, err := os.Open(opts.CodecTablePath)
		if err != nil {
			return cfg, fmt.Errorf("config: opening codec table: %w", err)
		}
		defer codecF.Close()
		codecRows, err := csvlog.ReadCodecTable(codecF)
		if err != nil {
			return cfg, fmt.Errorf("config: parsing codec table: %w", err)
		}
		cfg.CodecTable = csvlog.BuildCodecTable(codecRows)
	}

	if opts.OutputDir == "" {
		return cfg, fmt.Errorf("config: missing output directory")
	}
	if err := os.MkdirAll(opts.OutputDir, 0o755); err != nil {
		return cfg, fmt.Errorf("config: creating output directory: %w", err)
	}

	return cfg, nil
}
