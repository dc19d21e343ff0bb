// Package telemetry publishes cycle reports to an MQTT broker.
package telemetry

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/cenkalti/backoff/v4"
	mqtt "github.com/eclipse/paho.mqtt.golang"

	"binwatch/internal/types"
)

const (
	defaultConnectRetries = 5
	publishTimeout        = 2 * time.Second
	disconnectQuiesceMS   = 250
)

// Publisher sends cycle reports somewhere.
type Publisher interface {
	Publish(ctx context.Context, report types.CycleReport) error
	Close()
}

// Nop is a Publisher that drops every report.
type Nop struct{}

func (Nop) Publish(context.Context, types.CycleReport) error { return nil }
func (Nop) Close()                                           {}

// Client is the subset of mqtt.Client used by MQTTPublisher.
type Client interface {
	Connect() mqtt.Token
	IsConnected() bool
	Publish(topic string, qos byte, retained bool, payload interface{}) mqtt.Token
	Disconnect(quiesce uint)
}

// MQTTConfig configures an MQTTPublisher.
type MQTTConfig struct {
	BrokerURL string
	Topic     string
	ClientID  string
	Username  string
	Password  types.SecretString
	// ConnectRetries bounds the initial connection attempts.
	ConnectRetries int
	Logger         *slog.Logger
	// NewClient overrides client construction, for tests.
	NewClient func(*mqtt.ClientOptions) Client
}

// MQTTPublisher publishes JSON cycle reports at QoS 0.
type MQTTPublisher struct {
	client Client
	topic  string
	logger *slog.Logger
}

// NewMQTTPublisher connects to the broker, retrying with exponential backoff.
func NewMQTTPublisher(ctx context.Context, cfg MQTTConfig) (*MQTTPublisher, error) {
	if cfg.ConnectRetries <= 0 {
		cfg.ConnectRetries = defaultConnectRetries
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	if cfg.NewClient == nil {
		cfg.NewClient = func(o *mqtt.ClientOptions) Client { return mqtt.NewClient(o) }
	}

	opts := mqtt.NewClientOptions()
	opts.AddBroker(cfg.BrokerURL)
	opts.SetClientID(cfg.ClientID)
	opts.SetUsername(cfg.Username)
	opts.SetPassword(cfg.Password.Unmask())
	opts.SetCleanSession(true)
	opts.SetAutoReconnect(true)
	opts.SetConnectTimeout(5 * time.Second)

	bo := backoff.NewExponentialBackOff()
	bo.MaxElapsedTime = 10 * time.Second

	var client Client
	err := backoff.Retry(func() error {
		client = cfg.NewClient(opts)
		token := client.Connect()
		if token.Wait() && token.Error() != nil {
			cfg.Logger.WarnContext(ctx, "mqtt connect failed", "broker", cfg.BrokerURL, "error", token.Error())
			return token.Error()
		}
		return nil
	}, backoff.WithContext(backoff.WithMaxRetries(bo, uint64(cfg.ConnectRetries-1)), ctx))
	if err != nil {
		return nil, fmt.Errorf("could not establish MQTT connection after retries: %w", err)
	}

	cfg.Logger.InfoContext(ctx, "connected to mqtt broker", "broker", cfg.BrokerURL, "topic", cfg.Topic)
	return &MQTTPublisher{client: client, topic: cfg.Topic, logger: cfg.Logger}, nil
}

// Publish sends report to the configured topic.
func (p *MQTTPublisher) Publish(ctx context.Context, report types.CycleReport) error {
	payload, err := json.Marshal(report)
	if err != nil {
		return fmt.Errorf("marshal cycle report: %w", err)
	}

	token := p.client.Publish(p.topic, 0, false, payload)
	if !token.WaitTimeout(publishTimeout) {
		return fmt.Errorf("publish to %s timed out", p.topic)
	}
	if err := token.Error(); err != nil {
		return fmt.Errorf("publish to %s: %w", p.topic, err)
	}
	p.logger.DebugContext(ctx, "cycle report published", "topic", p.topic, "cycle_id", report.CycleID)
	return nil
}

// Close disconnects from the broker.
func (p *MQTTPublisher) Close() {
	if p.client.IsConnected() {
		p.client.Disconnect(disconnectQuiesceMS)
		p.logger.Info("mqtt connection closed")
	}
}
