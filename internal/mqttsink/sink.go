// Package mqttsink republishes acquisition events on an MQTT broker so other
// devices can follow the classified movements.
package mqttsink

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"sync/atomic"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"

	"github.com/banshee-data/emgfes/internal/acquisition"
	"github.com/banshee-data/emgfes/internal/monitoring"
)

// DefaultTopicPrefix is used when Options.TopicPrefix is empty.
const DefaultTopicPrefix = "emgfes"

const publishTimeout = 2 * time.Second

// Options configures the broker connection.
type Options struct {
	Broker      string // host:port or a full tcp:// URL
	ClientID    string
	TopicPrefix string
	QoS         byte
}

// Sink publishes each event as JSON to <prefix>/<kind>.
type Sink struct {
	client mqtt.Client
	prefix string
	qos    byte

	published atomic.Uint64
	failed    atomic.Uint64
}

// Connect dials the broker. The client reconnects on its own afterwards.
func Connect(o Options) (*Sink, error) {
	broker := o.Broker
	if !strings.Contains(broker, "://") {
		broker = "tcp://" + broker
	}
	opts := mqtt.NewClientOptions()
	opts.AddBroker(broker)
	opts.SetClientID(o.ClientID)
	opts.SetAutoReconnect(true)
	opts.SetConnectRetry(true)
	opts.SetConnectRetryInterval(2 * time.Second)
	opts.SetMaxReconnectInterval(30 * time.Second)
	opts.OnConnect = func(mqtt.Client) {
		monitoring.Logf("mqtt: connected to %s", broker)
	}
	opts.OnConnectionLost = func(_ mqtt.Client, err error) {
		monitoring.Logf("mqtt: connection to %s lost, reconnecting: %v", broker, err)
	}

	client := mqtt.NewClient(opts)
	token := client.Connect()
	if !token.WaitTimeout(5 * time.Second) {
		return nil, fmt.Errorf("mqtt connection to %s timed out", broker)
	}
	if err := token.Error(); err != nil {
		return nil, fmt.Errorf("mqtt connection to %s failed: %w", broker, err)
	}
	return New(client, o.TopicPrefix, o.QoS), nil
}

// New wraps an existing client.
func New(client mqtt.Client, prefix string, qos byte) *Sink {
	if prefix == "" {
		prefix = DefaultTopicPrefix
	}
	return &Sink{client: client, prefix: strings.TrimSuffix(prefix, "/"), qos: qos}
}

// Topic returns the topic events of kind are published on.
func (s *Sink) Topic(kind acquisition.EventKind) string {
	return s.prefix + "/" + string(kind)
}

// Publish sends one event and waits for the broker to accept it.
func (s *Sink) Publish(e acquisition.Event) error {
	payload, err := json.Marshal(e)
	if err != nil {
		s.failed.Add(1)
		return fmt.Errorf("failed to marshal event: %w", err)
	}
	// label state is retained so late subscribers see the current movement
	retained := e.Kind == acquisition.EventLabel || e.Kind == acquisition.EventState
	token := s.client.Publish(s.Topic(e.Kind), s.qos, retained, payload)
	if !token.WaitTimeout(publishTimeout) {
		s.failed.Add(1)
		return fmt.Errorf("publish to %s timed out", s.Topic(e.Kind))
	}
	if err := token.Error(); err != nil {
		s.failed.Add(1)
		return fmt.Errorf("publish to %s failed: %w", s.Topic(e.Kind), err)
	}
	s.published.Add(1)
	return nil
}

// Run forwards hub events until ctx is done or the hub closes. A slow
// broker only costs this subscriber events; the acquisition worker is never
// held up.
func (s *Sink) Run(ctx context.Context, hub *acquisition.Hub) {
	id, events := hub.Subscribe()
	defer hub.Unsubscribe(id)

	throttle := monitoring.NewThrottle(5 * time.Second)
	for {
		select {
		case <-ctx.Done():
			return
		case e, ok := <-events:
			if !ok {
				return
			}
			if err := s.Publish(e); err != nil {
				throttle.Logf("mqtt: %v", err)
			}
		}
	}
}

// Stats returns the number of events published and failed.
func (s *Sink) Stats() (published, failed uint64) {
	return s.published.Load(), s.failed.Load()
}

// Close disconnects from the broker.
func (s *Sink) Close() {
	s.client.Disconnect(250)
}
