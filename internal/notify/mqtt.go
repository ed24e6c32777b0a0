package notify

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	pahomqtt "github.com/eclipse/paho.mqtt.golang"

	"github.com/BrandonDHaskell/Portunus/biogate/internal/config"
	"github.com/BrandonDHaskell/Portunus/biogate/internal/portunus/types"
)

const (
	connectTimeout = 10 * time.Second
	publishTimeout = 5 * time.Second
	keepAlive      = 60 * time.Second
	quiesceMillis  = 250
)

var (
	ErrConnectionFailed = errors.New("mqtt connection failed")
	ErrPublishFailed    = errors.New("mqtt publish failed")
)

// publisher is the part of pahomqtt.Client the notifier needs.
type publisher interface {
	Publish(topic string, qos byte, retained bool, payload interface{}) pahomqtt.Token
}

// MQTT publishes access events as JSON to
// <prefix>/access/<device>/<outcome>.
type MQTT struct {
	client pahomqtt.Client
	pub    publisher
	prefix string
	qos    byte
}

// Payload is the JSON body published for each event.
type Payload struct {
	EventID    string `json:"event_id"`
	SubjectID  string `json:"subject_id,omitempty"`
	DeviceID   string `json:"device_id"`
	Direction  string `json:"direction"`
	Outcome    string `json:"outcome"`
	OccurredAt string `json:"occurred_at"`
}

// ConnectMQTT dials the broker described by cfg.
func ConnectMQTT(cfg config.MQTTConfig) (*MQTT, error) {
	opts := pahomqtt.NewClientOptions()
	opts.AddBroker(cfg.Broker)
	opts.SetClientID(cfg.ClientID)
	if cfg.Username != "" {
		opts.SetUsername(cfg.Username)
		opts.SetPassword(cfg.Password)
	}
	opts.SetCleanSession(true)
	opts.SetAutoReconnect(true)
	opts.SetConnectTimeout(connectTimeout)
	opts.SetKeepAlive(keepAlive)

	client := pahomqtt.NewClient(opts)
	token := client.Connect()
	if !token.WaitTimeout(connectTimeout) {
		return nil, fmt.Errorf("%w: timeout after %v", ErrConnectionFailed, connectTimeout)
	}
	if err := token.Error(); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrConnectionFailed, err)
	}

	m := newMQTT(client, cfg.TopicPrefix, cfg.QoS)
	m.client = client
	return m, nil
}

func newMQTT(pub publisher, prefix string, qos int) *MQTT {
	if qos < 0 || qos > 2 {
		qos = 1
	}
	return &MQTT{pub: pub, prefix: strings.TrimSuffix(prefix, "/"), qos: byte(qos)}
}

// Topic returns the topic an event is published on.
func Topic(prefix string, ev types.AccessEvent) string {
	device := ev.DeviceID
	if device == "" {
		device = "default"
	}
	// MQTT wildcards and separators are not valid inside a topic level.
	device = strings.NewReplacer("/", "_", "+", "_", "#", "_").Replace(device)

	return fmt.Sprintf("%s/access/%s/%s", strings.TrimSuffix(prefix, "/"), device, ev.Outcome)
}

// NewPayload builds the published body for ev.
func NewPayload(ev types.AccessEvent) Payload {
	return Payload{
		EventID:    ev.ID,
		SubjectID:  ev.SubjectID,
		DeviceID:   ev.DeviceID,
		Direction:  string(ev.Direction),
		Outcome:    string(ev.Outcome),
		OccurredAt: ev.OccurredAt.UTC().Format(time.RFC3339Nano),
	}
}

func (m *MQTT) Publish(ctx context.Context, ev types.AccessEvent) error {
	body, err := json.Marshal(NewPayload(ev))
	if err != nil {
		return fmt.Errorf("Publish: %w", err)
	}

	token := m.pub.Publish(Topic(m.prefix, ev), m.qos, false, body)

	select {
	case <-token.Done():
	case <-ctx.Done():
		return fmt.Errorf("%w: %w", ErrPublishFailed, ctx.Err())
	case <-time.After(publishTimeout):
		return fmt.Errorf("%w: timeout after %v", ErrPublishFailed, publishTimeout)
	}
	if err := token.Error(); err != nil {
		return fmt.Errorf("%w: %w", ErrPublishFailed, err)
	}
	return nil
}

// Close disconnects from the broker.  It is a no-op for notifiers not
// created by ConnectMQTT.
func (m *MQTT) Close() {
	if m.client != nil {
		m.client.Disconnect(quiesceMillis)
	}
}
