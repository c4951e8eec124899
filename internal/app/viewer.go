// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

package app

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/relabs-tech/spectrometer_viewer/internal/capture"
	"github.com/relabs-tech/spectrometer_viewer/internal/config"
	"github.com/relabs-tech/spectrometer_viewer/internal/device"
)

// RunViewer wires the session, the tick loop and every enabled sink, then
// serves the web shell until interrupted.
func RunViewer() error {
	cfg := config.Get()

	probe, err := device.NewProber(cfg)
	if err != nil {
		return err
	}
	conn := device.NewConnection(probe)
	defer conn.Close()

	session := capture.NewSession(conn, capture.Options{
		IntegrationMicros: cfg.IntegrationTimeMicros,
		ScansToAverage:    cfg.ScansToAverage,
		ExportDir:         cfg.ExportDir,
	})
	sched := capture.NewScheduler(session, time.Duration(cfg.TickInterval)*time.Millisecond)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	hub := NewHub(ctx, sched)
	sched.AddSink(hub)
	statusSinks := []func(string){hub.BroadcastStatus}

	// --- MQTT mirror (optional) ---
	if cfg.MQTTEnabled {
		client, err := connectMQTT(cfg.MQTTBroker, cfg.MQTTClientIDViewer)
		if err != nil {
			return err
		}
		defer client.Disconnect(250)

		pub := NewMQTTPublisher(client, cfg)
		sched.AddSink(pub)
		statusSinks = append(statusSinks, pub.PublishStatus)
		pub.PublishStatus(session.Status())

		if err := SubscribeCommands(ctx, client, cfg.TopicCommand, sched); err != nil {
			return err
		}
	}

	// --- OLED panel (optional, a missing panel is not fatal) ---
	if cfg.DisplayEnabled {
		panel, err := OpenPanel(cfg)
		if err != nil {
			log.Printf("WARNING: display disabled: %v", err)
		} else {
			defer panel.Close()
			sched.AddSink(panel)
			statusSinks = append(statusSinks, panel.SetStatus)
			panel.SetStatus(session.Status())
			go panel.Run(ctx, time.Duration(cfg.DisplayUpdateInterval)*time.Millisecond)
		}
	}

	session.OnStatus = func(status string) {
		for _, sink := range statusSinks {
			sink(status)
		}
	}

	schedDone := make(chan struct{})
	go func() {
		defer close(schedDone)
		sched.Run(ctx)
	}()

	server := &http.Server{
		Addr:    fmt.Sprintf(":%d", cfg.WebServerPort),
		Handler: NewWebHandler(sched, hub, cfg.WebRoot),
	}
	serverErr := make(chan error, 1)
	go func() {
		log.Printf("web server listening on %s, serving %s", server.Addr, cfg.WebRoot)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverErr <- err
		}
	}()

	select {
	case <-ctx.Done():
		log.Println("viewer: shutting down")
	case err = <-serverErr:
		log.Printf("viewer: web server error: %v", err)
		stop()
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Printf("viewer: web server shutdown: %v", err)
	}
	hub.Close()
	<-schedDone

	return err
}
