package emitter

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type doneToken struct{ err error }

func (t doneToken) Wait() bool                     { return true }
func (t doneToken) WaitTimeout(time.Duration) bool { return true }
func (t doneToken) Done() <-chan struct{} {
	c := make(chan struct{})
	close(c)
	return c
}
func (t doneToken) Error() error { return t.err }

type message struct {
	topic   string
	payload []byte
}

type fakeBroker struct {
	mu   sync.Mutex
	msgs []message
	err  error
}

func (b *fakeBroker) Publish(topic string, qos byte, retained bool, payload interface{}) mqtt.Token {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.msgs = append(b.msgs, message{topic: topic, payload: payload.([]byte)})
	return doneToken{err: b.err}
}

func (b *fakeBroker) count() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.msgs)
}

func run(t *testing.T, e *MQTTEmitter) {
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() { _ = e.Run(ctx); close(done) }()
	t.Cleanup(func() { cancel(); <-done })
}

func TestEmitPublishesJSON(t *testing.T) {
	b := &fakeBroker{}
	e := NewWithPublisher(b, "lab/ptycho", zerolog.Nop())
	run(t, e)

	id := NewRunID()
	_, err := uuid.Parse(id)
	require.NoError(t, err)

	e.Emit(Event{RunID: id, Kind: "frame", OK: true, Detail: map[string]any{"x": 3}})
	require.Eventually(t, func() bool { return b.count() == 1 }, time.Second, time.Millisecond)

	b.mu.Lock()
	msg := b.msgs[0]
	b.mu.Unlock()
	assert.Equal(t, "lab/ptycho/frame", msg.topic)
	var ev Event
	require.NoError(t, json.Unmarshal(msg.payload, &ev))
	assert.Equal(t, id, ev.RunID)
	assert.True(t, ev.OK)
	assert.False(t, ev.Time.IsZero())
	require.Eventually(t, func() bool { return e.Stats().Published == 1 }, time.Second, time.Millisecond)
}

func TestPublishErrorsCounted(t *testing.T) {
	b := &fakeBroker{err: errors.New("not authorised")}
	e := NewWithPublisher(b, "t", zerolog.Nop())
	run(t, e)
	e.Emit(Event{Kind: "idle"})
	require.Eventually(t, func() bool { return e.Stats().Errors == 1 }, time.Second, time.Millisecond)
}

func TestEmitDropsWhenFull(t *testing.T) {
	e := NewWithPublisher(&fakeBroker{}, "t", zerolog.Nop())
	for i := 0; i < queueSize+5; i++ {
		e.Emit(Event{Kind: "frame"})
	}
	assert.Equal(t, uint64(5), e.Stats().Dropped)
}

func TestNilEmitterIsSafe(t *testing.T) {
	var e *MQTTEmitter
	e.Emit(Event{Kind: "frame"})
}

func TestNotConnected(t *testing.T) {
	e := NewMQTTEmitter(Config{Broker: "localhost:1883"}, zerolog.Nop())
	assert.Error(t, e.publish(Event{Kind: "frame"}))
	assert.Equal(t, uint64(1), e.Stats().Errors)
}
