package handoff

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"

	"github.com/junsooki/framereel/internal/drafts"
)

// MQTTConfig configures the MQTT handoff.
type MQTTConfig struct {
	Broker   string
	Topic    string
	ClientID string
	QoS      byte
	Timeout  time.Duration
}

// MQTT publishes each draft to a topic watched by the posting service.
type MQTT struct {
	cfg    MQTTConfig
	client mqtt.Client

	mu        sync.RWMutex
	connected bool
	published uint64
	errors    uint64
}

// Payload is the JSON body published for a draft.
type Payload struct {
	DraftID        string    `json:"draft_id"`
	AssetReference string    `json:"asset_reference"`
	Source         string    `json:"source"`
	Dimension      int       `json:"dimension"`
	ExpiresAt      time.Time `json:"expires_at"`
}

func NewMQTT(cfg MQTTConfig) *MQTT {
	if cfg.Timeout <= 0 {
		cfg.Timeout = 5 * time.Second
	}
	return &MQTT{cfg: cfg}
}

// Connect establishes the broker connection. Reconnects are left to the
// paho client.
func (m *MQTT) Connect(ctx context.Context) error {
	opts := mqtt.NewClientOptions()
	opts.AddBroker(fmt.Sprintf("tcp://%s", m.cfg.Broker))
	opts.SetClientID(m.cfg.ClientID)
	opts.SetAutoReconnect(true)
	opts.SetConnectRetry(true)
	opts.SetConnectRetryInterval(2 * time.Second)
	opts.SetMaxReconnectInterval(30 * time.Second)

	opts.OnConnect = func(c mqtt.Client) {
		m.mu.Lock()
		m.connected = true
		m.mu.Unlock()
		slog.Info("handoff mqtt connected", "broker", m.cfg.Broker, "client_id", m.cfg.ClientID)
	}
	opts.OnConnectionLost = func(c mqtt.Client, err error) {
		m.mu.Lock()
		m.connected = false
		m.mu.Unlock()
		slog.Warn("handoff mqtt connection lost", "broker", m.cfg.Broker, "error", err)
	}

	m.client = mqtt.NewClient(opts)
	token := m.client.Connect()

	select {
	case <-token.Done():
	case <-ctx.Done():
		return ctx.Err()
	case <-time.After(m.cfg.Timeout):
		return fmt.Errorf("handoff mqtt connect: timeout after %v", m.cfg.Timeout)
	}
	if err := token.Error(); err != nil {
		return fmt.Errorf("handoff mqtt connect: %w", err)
	}
	return nil
}

// Deliver publishes d without waiting for the broker acknowledgement.
func (m *MQTT) Deliver(ctx context.Context, d drafts.Draft) error {
	if m.client == nil {
		return fmt.Errorf("handoff mqtt: not connected")
	}
	payload, err := encodePayload(d)
	if err != nil {
		return err
	}
	if !m.Connected() {
		slog.Warn("handoff mqtt publishing while disconnected", "draft_id", d.ID)
	}

	token := m.client.Publish(m.cfg.Topic, m.cfg.QoS, false, payload)
	go func() {
		if !token.WaitTimeout(m.cfg.Timeout) {
			m.recordError()
			slog.Warn("handoff mqtt publish timed out", "draft_id", d.ID, "topic", m.cfg.Topic)
			return
		}
		if err := token.Error(); err != nil {
			m.recordError()
			slog.Error("handoff mqtt publish failed", "draft_id", d.ID, "topic", m.cfg.Topic, "error", err)
			return
		}
		m.mu.Lock()
		m.published++
		m.mu.Unlock()
		slog.Info("handoff mqtt published", "draft_id", d.ID, "topic", m.cfg.Topic)
	}()
	return nil
}

// Connected reports whether the broker connection is up.
func (m *MQTT) Connected() bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.connected
}

// Stats returns published and failed publish counts.
func (m *MQTT) Stats() (published, failed uint64) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.published, m.errors
}

func (m *MQTT) Close() {
	if m.client != nil {
		m.client.Disconnect(250)
	}
}

func (m *MQTT) recordError() {
	m.mu.Lock()
	m.errors++
	m.mu.Unlock()
}

func encodePayload(d drafts.Draft) ([]byte, error) {
	data, err := json.Marshal(Payload{
		DraftID:        d.ID,
		AssetReference: d.AssetReference,
		Source:         d.Source,
		Dimension:      d.Dimension,
		ExpiresAt:      d.ExpiresAt,
	})
	if err != nil {
		return nil, fmt.Errorf("handoff mqtt: encode draft %s: %w", d.ID, err)
	}
	return data, nil
}
