package notify

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	pahomqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/BrandonDHaskell/Portunus/biogate/internal/portunus/types"
)

type fakeToken struct {
	done chan struct{}
	err  error
}

func newToken(err error, complete bool) *fakeToken {
	t := &fakeToken{done: make(chan struct{}), err: err}
	if complete {
		close(t.done)
	}
	return t
}

func (t *fakeToken) Wait() bool                     { <-t.done; return true }
func (t *fakeToken) WaitTimeout(time.Duration) bool { return true }
func (t *fakeToken) Done() <-chan struct{}          { return t.done }
func (t *fakeToken) Error() error                   { return t.err }

type published struct {
	topic   string
	qos     byte
	payload []byte
}

type fakePublisher struct {
	token pahomqtt.Token
	got   []published
}

func (f *fakePublisher) Publish(topic string, qos byte, _ bool, payload interface{}) pahomqtt.Token {
	f.got = append(f.got, published{topic: topic, qos: qos, payload: payload.([]byte)})
	return f.token
}

func sampleEvent() types.AccessEvent {
	return types.AccessEvent{
		ID:         "ev-1",
		SubjectID:  "alice",
		DeviceID:   "front-door",
		Direction:  types.DirectionEntry,
		Outcome:    types.OutcomeGranted,
		OccurredAt: time.Date(2026, 3, 1, 8, 0, 0, 0, time.UTC),
	}
}

// ═══════════════════════════════════════════════════════════════════════════
// Topic
// ═══════════════════════════════════════════════════════════════════════════

func TestTopic(t *testing.T) {
	ev := sampleEvent()
	assert.Equal(t, "biogate/access/front-door/granted", Topic("biogate", ev))
	assert.Equal(t, "biogate/access/front-door/granted", Topic("biogate/", ev))

	ev.DeviceID = ""
	ev.Outcome = types.OutcomeDenied
	assert.Equal(t, "site/access/default/denied", Topic("site", ev))

	ev.DeviceID = "lobby/#1"
	assert.Equal(t, "site/access/lobby__1/denied", Topic("site", ev))
}

// ═══════════════════════════════════════════════════════════════════════════
// Publish
// ═══════════════════════════════════════════════════════════════════════════

func TestPublish_SendsJSONPayload(t *testing.T) {
	pub := &fakePublisher{token: newToken(nil, true)}
	m := newMQTT(pub, "biogate", 1)

	require.NoError(t, m.Publish(context.Background(), sampleEvent()))
	require.Len(t, pub.got, 1)
	assert.Equal(t, "biogate/access/front-door/granted", pub.got[0].topic)
	assert.Equal(t, byte(1), pub.got[0].qos)

	var p Payload
	require.NoError(t, json.Unmarshal(pub.got[0].payload, &p))
	assert.Equal(t, "ev-1", p.EventID)
	assert.Equal(t, "alice", p.SubjectID)
	assert.Equal(t, "entry", p.Direction)
	assert.Equal(t, "granted", p.Outcome)
	assert.Equal(t, "2026-03-01T08:00:00Z", p.OccurredAt)
}

func TestPublish_BrokerError(t *testing.T) {
	pub := &fakePublisher{token: newToken(errors.New("not authorized"), true)}
	m := newMQTT(pub, "biogate", 0)

	err := m.Publish(context.Background(), sampleEvent())
	assert.ErrorIs(t, err, ErrPublishFailed)
}

func TestPublish_ContextCancelled(t *testing.T) {
	pub := &fakePublisher{token: newToken(nil, false)}
	m := newMQTT(pub, "biogate", 1)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err := m.Publish(ctx, sampleEvent())
	assert.ErrorIs(t, err, ErrPublishFailed)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestNewMQTT_ClampsQoS(t *testing.T) {
	m := newMQTT(&fakePublisher{}, "x", 7)
	assert.Equal(t, byte(1), m.qos)
}

func TestNop(t *testing.T) {
	var n Notifier = Nop{}
	assert.NoError(t, n.Publish(context.Background(), sampleEvent()))
}
