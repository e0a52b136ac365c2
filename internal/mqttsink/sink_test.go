package mqttsink

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/banshee-data/emgfes/internal/acquisition"
	"github.com/banshee-data/emgfes/internal/classifier"
)

type fakeToken struct {
	err      error
	complete bool
}

func (t *fakeToken) Wait() bool                       { return t.complete }
func (t *fakeToken) WaitTimeout(time.Duration) bool   { return t.complete }
func (t *fakeToken) Error() error                     { return t.err }
func (t *fakeToken) Done() <-chan struct{} {
	ch := make(chan struct{})
	close(ch)
	return ch
}

type message struct {
	topic    string
	retained bool
	payload  []byte
}

// fakeClient records publishes. Methods the sink does not use panic via the
// nil embedded interface.
type fakeClient struct {
	mqtt.Client

	mu           sync.Mutex
	messages     []message
	err          error
	timeout      bool
	disconnected bool
}

func (c *fakeClient) Publish(topic string, _ byte, retained bool, payload interface{}) mqtt.Token {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.err == nil && !c.timeout {
		c.messages = append(c.messages, message{topic, retained, payload.([]byte)})
	}
	return &fakeToken{err: c.err, complete: !c.timeout}
}

func (c *fakeClient) Disconnect(uint) {
	c.mu.Lock()
	c.disconnected = true
	c.mu.Unlock()
}

func (c *fakeClient) Messages() []message {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]message(nil), c.messages...)
}

func TestPublishTopicsAndPayload(t *testing.T) {
	t.Parallel()

	client := &fakeClient{}
	s := New(client, "lab/arm/", 1)

	l := classifier.Label{Index: 1, Name: "Middle"}
	require.NoError(t, s.Publish(acquisition.Event{Kind: acquisition.EventLabel, Label: &l, Name: "Middle", Index: 1}))
	require.NoError(t, s.Publish(acquisition.Event{Kind: acquisition.EventReplay, Name: "Nada"}))

	msgs := client.Messages()
	require.Len(t, msgs, 2)
	assert.Equal(t, "lab/arm/label", msgs[0].topic)
	assert.True(t, msgs[0].retained)
	assert.Equal(t, "lab/arm/replay", msgs[1].topic)
	assert.False(t, msgs[1].retained)

	var got acquisition.Event
	require.NoError(t, json.Unmarshal(msgs[0].payload, &got))
	require.NotNil(t, got.Label)
	assert.Equal(t, "Middle", got.Label.Name)

	published, failed := s.Stats()
	assert.Equal(t, uint64(2), published)
	assert.Zero(t, failed)
}

func TestPublishFailures(t *testing.T) {
	t.Parallel()

	client := &fakeClient{err: errors.New("not authorised")}
	s := New(client, "", 0)
	assert.Equal(t, "emgfes/state", s.Topic(acquisition.EventState))
	assert.ErrorContains(t, s.Publish(acquisition.Event{Kind: acquisition.EventState}), "not authorised")

	client.mu.Lock()
	client.err, client.timeout = nil, true
	client.mu.Unlock()
	assert.ErrorContains(t, s.Publish(acquisition.Event{Kind: acquisition.EventState}), "timed out")

	_, failed := s.Stats()
	assert.Equal(t, uint64(2), failed)
}

func TestRunForwardsHubEvents(t *testing.T) {
	t.Parallel()

	client := &fakeClient{}
	s := New(client, "emg", 0)
	hub := acquisition.NewHub(4)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		defer close(done)
		s.Run(ctx, hub)
	}()
	require.Eventually(t, func() bool { return hub.Subscribers() == 1 }, time.Second, time.Millisecond)

	hub.Publish(acquisition.Event{Kind: acquisition.EventState, State: acquisition.StateRunning})
	require.Eventually(t, func() bool { return len(client.Messages()) == 1 }, time.Second, time.Millisecond)

	cancel()
	<-done
	assert.Zero(t, hub.Subscribers())

	s.Close()
	assert.True(t, client.disconnected)
}
