// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

package app

import (
	"context"
	"fmt"
	"io"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/relabs-tech/spectrometer_viewer/internal/config"
	"github.com/relabs-tech/spectrometer_viewer/internal/device"
)

// RunProbe is the bring-up tool: it connects to the first instrument, prints
// its calibration and then one raw scan summary per interval. count <= 0
// keeps going until interrupted.
func RunProbe(count int, interval time.Duration) error {
	cfg := config.Get()

	probe, err := device.NewProber(cfg)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	return probeDevice(ctx, os.Stdout, device.NewConnection(probe), cfg.IntegrationTimeMicros, count, interval)
}

func probeDevice(ctx context.Context, w io.Writer, conn *device.Connection, integrationMicros, count int, interval time.Duration) error {
	dev, err := conn.Connect(integrationMicros)
	if err != nil {
		return err
	}
	defer conn.Close()

	wl := dev.Wavelengths
	fmt.Fprintf(w, "model:       %s\n", dev.Model)
	fmt.Fprintf(w, "pixels:      %d\n", len(wl))
	fmt.Fprintf(w, "wavelengths: %.3f .. %.3f nm\n", wl[0], wl[len(wl)-1])
	fmt.Fprintf(w, "integration: %d us\n", dev.IntegrationMicros)

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for n := 1; count <= 0 || n <= count; n++ {
		scan, err := conn.AcquireScan()
		if err != nil {
			log.Printf("probe: scan %d: %v", n, err)
		} else {
			lo, hi := scan[0], scan[0]
			for _, v := range scan {
				lo = min(lo, v)
				hi = max(hi, v)
			}
			fmt.Fprintf(w, "scan %4d: min=%.1f max=%.1f first=%v\n", n, lo, hi, scan[:min(4, len(scan))])
		}

		if count > 0 && n == count {
			break
		}
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
		}
	}
	return nil
}
