package server

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/charmbracelet/log"
	mqtt "github.com/eclipse/paho.mqtt.golang"
)

// Change actions carried by events.
const (
	ActionCreated = "created"
	ActionUpdated = "updated"
	ActionDeleted = "deleted"
)

// Event announces a change to one record.
type Event struct {
	Resource string    `json:"resource"`
	Action   string    `json:"action"`
	ID       int64     `json:"id"`
	Record   any       `json:"record,omitempty"`
	At       time.Time `json:"at"`
}

// Events delivers change events to other clients.
type Events interface {
	Publish(ctx context.Context, e Event) error
	Close()
}

// NewEvents connects to the MQTT broker in cfg, or returns a publisher
// that drops everything when no broker is configured.
func NewEvents(cfg MQTTConfig) (Events, error) {
	if cfg.Broker == "" {
		return nopEvents{}, nil
	}

	opts := mqtt.NewClientOptions()
	opts.AddBroker(cfg.Broker)
	opts.SetClientID(cfg.ClientID)
	opts.SetConnectTimeout(cfg.Timeout)
	opts.SetAutoReconnect(true)
	opts.OnConnect = func(mqtt.Client) {
		log.Info("connected to MQTT broker", "broker", cfg.Broker)
	}
	opts.OnConnectionLost = func(_ mqtt.Client, err error) {
		log.Warn("MQTT connection lost", "broker", cfg.Broker, "error", err)
	}

	client := mqtt.NewClient(opts)
	token := client.Connect()
	if !token.WaitTimeout(cfg.Timeout) {
		return nil, fmt.Errorf("timed out connecting to MQTT broker %s", cfg.Broker)
	}
	if err := token.Error(); err != nil {
		return nil, fmt.Errorf("failed to connect to MQTT broker: %w", err)
	}
	return newMQTTEvents(client, cfg.Topic, cfg.Timeout), nil
}

// publisher is the part of mqtt.Client used for events.
type publisher interface {
	Publish(topic string, qos byte, retained bool, payload any) mqtt.Token
	Disconnect(quiesce uint)
}

// MQTTEvents publishes each event as JSON on <topic>/<resource>/<action>.
type MQTTEvents struct {
	client  publisher
	topic   string
	timeout time.Duration
}

func newMQTTEvents(client publisher, topic string, timeout time.Duration) *MQTTEvents {
	return &MQTTEvents{client: client, topic: topic, timeout: timeout}
}

// Topic returns the topic e is published on.
func (m *MQTTEvents) Topic(e Event) string {
	return m.topic + "/" + e.Resource + "/" + e.Action
}

func (m *MQTTEvents) Publish(ctx context.Context, e Event) error {
	payload, err := json.Marshal(e)
	if err != nil {
		return err
	}
	token := m.client.Publish(m.Topic(e), 1, false, payload)
	select {
	case <-token.Done():
	case <-ctx.Done():
		return ctx.Err()
	case <-time.After(m.timeout):
		return fmt.Errorf("timed out publishing to %s", m.Topic(e))
	}
	if err := token.Error(); err != nil {
		return fmt.Errorf("failed to publish to %s: %w", m.Topic(e), err)
	}
	return nil
}

func (m *MQTTEvents) Close() {
	m.client.Disconnect(250)
}

type nopEvents struct{}

func (nopEvents) Publish(context.Context, Event) error { return nil }
func (nopEvents) Close()                               {}
