// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

package main

import (
	"flag"
	"log"

	"github.com/relabs-tech/spectrometer_viewer/internal/app"
	"github.com/relabs-tech/spectrometer_viewer/internal/config"
)

func main() {
	configPath := flag.String("config", "", "path to configuration file (built-in defaults when empty)")
	flag.Parse()

	log.Println("starting spectrometer viewer (web shell, tick loop)")

	// Load configuration
	if err := config.InitGlobal(*configPath); err != nil {
		log.Fatalf("failed to load config: %v", err)
	}

	log.Println("Note: the device is only opened when the operator presses Connect")

	if err := app.RunViewer(); err != nil {
		log.Fatalf("fatal: %v", err)
	}
}
