package main

import (
	"flag"
	"log"

	"github.com/relabs-tech/spectrometer_viewer/internal/app"
	"github.com/relabs-tech/spectrometer_viewer/internal/capture"
	"github.com/relabs-tech/spectrometer_viewer/internal/config"
)

func main() {
	configPath := flag.String("config", "", "path to configuration file (built-in defaults when empty)")
	action := flag.String("action", "", "send one command (connect, start, stop, export, ...) and exit")
	value := flag.String("value", "", "numeric value for set_integration_time / set_scans_to_average")
	path := flag.String("path", "", "destination for export, on the viewer host")
	flag.Parse()

	// Load configuration
	if err := config.InitGlobal(*configPath); err != nil {
		log.Fatalf("failed to load config: %v", err)
	}

	if *action != "" {
		cmd := capture.Command{Action: capture.Action(*action), Value: *value, Path: *path}
		if err := app.SendCommandMQTT(cmd); err != nil {
			log.Fatalf("fatal: %v", err)
		}
		return
	}

	log.Println("starting spectrometer console (MQTT subscriber)")

	if err := app.RunConsoleMQTT(); err != nil {
		log.Fatalf("fatal: %v", err)
	}
}
