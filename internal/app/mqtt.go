package app

import (
	"context"
	"encoding/json"
	"fmt"
	"log"

	mqtt "github.com/eclipse/paho.mqtt.golang"

	"github.com/relabs-tech/spectrometer_viewer/internal/capture"
	"github.com/relabs-tech/spectrometer_viewer/internal/config"
	"github.com/relabs-tech/spectrometer_viewer/internal/spectrum"
)

// Controller is the command side of a running scheduler.
type Controller interface {
	Do(ctx context.Context, cmd capture.Command) (capture.Result, error)
	Latest() *spectrum.Spectrum
}

func connectMQTT(broker, clientID string) (mqtt.Client, error) {
	opts := mqtt.NewClientOptions().
		AddBroker(broker).
		SetClientID(clientID).
		SetAutoReconnect(true)

	client := mqtt.NewClient(opts)
	if token := client.Connect(); token.Wait() && token.Error() != nil {
		return nil, fmt.Errorf("mqtt connect %s: %w", broker, token.Error())
	}
	log.Printf("mqtt: connected to broker at %s as %s", broker, clientID)
	return client, nil
}

// MQTTPublisher mirrors the session to a broker: every averaged spectrum and
// every status line is published retained, so late subscribers see the
// current state immediately.
type MQTTPublisher struct {
	client        mqtt.Client
	topicSpectrum string
	topicStatus   string
}

func NewMQTTPublisher(client mqtt.Client, cfg *config.Config) *MQTTPublisher {
	return &MQTTPublisher{
		client:        client,
		topicSpectrum: cfg.TopicSpectrum,
		topicStatus:   cfg.TopicStatus,
	}
}

// Render implements capture.RenderSink. It never waits for the broker.
func (p *MQTTPublisher) Render(s *spectrum.Spectrum) {
	payload, err := json.Marshal(s)
	if err != nil {
		log.Printf("mqtt: spectrum marshal error: %v", err)
		return
	}
	p.publish(p.topicSpectrum, payload)
}

func (p *MQTTPublisher) PublishStatus(status string) {
	p.publish(p.topicStatus, []byte(status))
}

func (p *MQTTPublisher) publish(topic string, payload []byte) {
	token := p.client.Publish(topic, 0, true, payload)
	go func() {
		<-token.Done()
		if err := token.Error(); err != nil {
			log.Printf("mqtt: publish %s error: %v", topic, err)
		}
	}()
}

// commandQueueSize bounds how many received commands may wait behind a
// running one before the client's router is held up.
const commandQueueSize = 64

// SubscribeCommands executes JSON commands received on topic through ctrl,
// one at a time and in arrival order.
func SubscribeCommands(ctx context.Context, client mqtt.Client, topic string, ctrl Controller) error {
	queue := make(chan capture.Command, commandQueueSize)

	token := client.Subscribe(topic, 1, func(_ mqtt.Client, msg mqtt.Message) {
		var cmd capture.Command
		if err := json.Unmarshal(msg.Payload(), &cmd); err != nil {
			log.Printf("mqtt: command unmarshal error: %v", err)
			return
		}

		select {
		case queue <- cmd:
		case <-ctx.Done():
		}
	})
	token.Wait()
	if token.Error() != nil {
		return fmt.Errorf("mqtt subscribe %s: %w", topic, token.Error())
	}
	log.Printf("mqtt: subscribed to %s", topic)

	go runCommands(ctx, queue, ctrl)
	return nil
}

func runCommands(ctx context.Context, queue <-chan capture.Command, ctrl Controller) {
	for {
		select {
		case <-ctx.Done():
			return
		case cmd := <-queue:
			res, err := ctrl.Do(ctx, cmd)
			if err != nil {
				log.Printf("mqtt: command %s failed: %v", cmd.Action, err)
				continue
			}
			log.Printf("mqtt: command %s done, state %s", cmd.Action, res.State)
		}
	}
}
