package app

import (
	"encoding/json"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"

	mqtt "github.com/eclipse/paho.mqtt.golang"

	"github.com/relabs-tech/spectrometer_viewer/internal/capture"
	"github.com/relabs-tech/spectrometer_viewer/internal/config"
	"github.com/relabs-tech/spectrometer_viewer/internal/spectrum"
)

// RunConsoleMQTT prints every spectrum and status line the viewer publishes
// until interrupted.
func RunConsoleMQTT() error {
	cfg := config.Get()

	client, err := connectMQTT(cfg.MQTTBroker, cfg.MQTTClientIDConsole)
	if err != nil {
		return err
	}
	defer client.Disconnect(250)

	// Subscribe to status
	statusToken := client.Subscribe(cfg.TopicStatus, 0, func(_ mqtt.Client, msg mqtt.Message) {
		fmt.Printf("[STAT] %s\n", msg.Payload())
	})
	statusToken.Wait()
	if statusToken.Error() != nil {
		return statusToken.Error()
	}
	log.Printf("console: subscribed to %s", cfg.TopicStatus)

	// Subscribe to spectra
	spectrumToken := client.Subscribe(cfg.TopicSpectrum, 0, func(_ mqtt.Client, msg mqtt.Message) {
		var s spectrum.Spectrum
		if err := json.Unmarshal(msg.Payload(), &s); err != nil {
			log.Printf("console: spectrum unmarshal error: %v", err)
			return
		}
		fmt.Println(summarizeSpectrum(&s))
	})
	spectrumToken.Wait()
	if spectrumToken.Error() != nil {
		return spectrumToken.Error()
	}
	log.Printf("console: subscribed to %s", cfg.TopicSpectrum)

	// Wait for Ctrl+C
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	<-sigCh

	log.Println("console: shutting down")
	return nil
}

// SendCommandMQTT publishes one operator command to the viewer and returns
// once the broker has it.
func SendCommandMQTT(cmd capture.Command) error {
	cfg := config.Get()

	client, err := connectMQTT(cfg.MQTTBroker, cfg.MQTTClientIDConsole)
	if err != nil {
		return err
	}
	defer client.Disconnect(250)

	payload, err := json.Marshal(cmd)
	if err != nil {
		return fmt.Errorf("marshal command: %w", err)
	}

	token := client.Publish(cfg.TopicCommand, 1, false, payload)
	token.Wait()
	if token.Error() != nil {
		return fmt.Errorf("publish %s: %w", cfg.TopicCommand, token.Error())
	}
	log.Printf("console: sent %s to %s", payload, cfg.TopicCommand)
	return nil
}

func summarizeSpectrum(s *spectrum.Spectrum) string {
	if s.Empty() || len(s.Wavelengths) != s.Len() {
		return "[SPEC] empty"
	}

	lo, hi, sum := s.Intensities[0], s.Intensities[0], 0.0
	for _, v := range s.Intensities {
		lo = min(lo, v)
		hi = max(hi, v)
		sum += v
	}

	return fmt.Sprintf(
		"[SPEC] %s  px=%d  %.2f-%.2f nm  scans=%d  min=%.1f max=%.1f mean=%.1f",
		s.Time.Format("15:04:05.000"), s.Len(),
		s.Wavelengths[0], s.Wavelengths[len(s.Wavelengths)-1],
		s.Scans, lo, hi, sum/float64(s.Len()),
	)
}
