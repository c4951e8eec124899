// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

package main

import (
	"flag"
	"log"
	"time"

	"github.com/relabs-tech/spectrometer_viewer/internal/app"
	"github.com/relabs-tech/spectrometer_viewer/internal/config"
)

func main() {
	configPath := flag.String("config", "", "path to configuration file (built-in defaults when empty)")
	count := flag.Int("n", 0, "number of scans to read, 0 for no limit")
	interval := flag.Duration("interval", 500*time.Millisecond, "pause between scans")
	flag.Parse()

	log.Println("starting spectrometer probe (connect and dump raw scans)")

	// Load configuration
	if err := config.InitGlobal(*configPath); err != nil {
		log.Fatalf("failed to load config: %v", err)
	}

	if err := app.RunProbe(*count, *interval); err != nil {
		log.Fatalf("fatal: %v", err)
	}
}
