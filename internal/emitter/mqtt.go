// Package emitter publishes run audit events (run start, frames, camera
// faults, idle transitions) to an MQTT broker.
package emitter

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"sync"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

const queueSize = 256

// Publisher is the part of mqtt.Client the emitter uses.
type Publisher interface {
	Publish(topic string, qos byte, retained bool, payload interface{}) mqtt.Token
}

type Event struct {
	RunID  string         `json:"run_id"`
	Kind   string         `json:"kind"`
	Time   time.Time      `json:"time"`
	OK     bool           `json:"ok"`
	Detail map[string]any `json:"detail,omitempty"`
}

// NewRunID returns a fresh identifier for one illumination run.
func NewRunID() string { return uuid.New().String() }

type Config struct {
	Broker   string
	ClientID string
	Topic    string
}

// MQTTEmitter queues events from the control loop and publishes them from
// its own goroutine, so a slow broker never stalls a frame.
type MQTTEmitter struct {
	cfg    Config
	client Publisher
	log    zerolog.Logger
	queue  chan Event

	mu        sync.RWMutex
	published uint64
	dropped   uint64
	errors    uint64
	connected bool
}

func NewMQTTEmitter(cfg Config, logger zerolog.Logger) *MQTTEmitter {
	if cfg.Topic == "" {
		cfg.Topic = "ptycho/events"
	}
	return &MQTTEmitter{cfg: cfg, log: logger, queue: make(chan Event, queueSize)}
}

// NewWithPublisher uses an existing client.
func NewWithPublisher(p Publisher, topic string, logger zerolog.Logger) *MQTTEmitter {
	e := NewMQTTEmitter(Config{Topic: topic}, logger)
	e.client = p
	e.connected = true
	return e
}

// Connect establishes the broker connection with auto-reconnect.
func (e *MQTTEmitter) Connect(ctx context.Context) error {
	broker := e.cfg.Broker
	if !strings.Contains(broker, "://") {
		broker = "tcp://" + broker
	}
	opts := mqtt.NewClientOptions()
	opts.AddBroker(broker)
	opts.SetClientID(e.cfg.ClientID)
	opts.SetAutoReconnect(true)
	opts.SetConnectRetry(true)
	opts.SetConnectRetryInterval(2 * time.Second)
	opts.SetMaxReconnectInterval(30 * time.Second)
	opts.OnConnect = func(mqtt.Client) {
		e.setConnected(true)
		e.log.Info().Str("broker", broker).Msg("mqtt connection established")
	}
	opts.OnConnectionLost = func(_ mqtt.Client, err error) {
		e.setConnected(false)
		e.log.Warn().Err(err).Str("broker", broker).Msg("mqtt connection lost, will auto-reconnect")
	}

	client := mqtt.NewClient(opts)
	token := client.Connect()
	select {
	case <-token.Done():
	case <-time.After(5 * time.Second):
		return fmt.Errorf("mqtt connection timeout")
	case <-ctx.Done():
		return ctx.Err()
	}
	if err := token.Error(); err != nil {
		return fmt.Errorf("mqtt connection failed: %w", err)
	}
	e.mu.Lock()
	e.client = client
	e.connected = true
	e.mu.Unlock()
	return nil
}

// Emit queues ev without blocking; events are dropped when the queue is
// full.
func (e *MQTTEmitter) Emit(ev Event) {
	if e == nil {
		return
	}
	if ev.Time.IsZero() {
		ev.Time = time.Now()
	}
	select {
	case e.queue <- ev:
	default:
		e.mu.Lock()
		e.dropped++
		e.mu.Unlock()
	}
}

// Run publishes queued events until ctx is done.
func (e *MQTTEmitter) Run(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			return nil
		case ev := <-e.queue:
			if err := e.publish(ev); err != nil {
				e.log.Debug().Err(err).Str("kind", ev.Kind).Msg("event not published")
			}
		}
	}
}

func (e *MQTTEmitter) publish(ev Event) error {
	e.mu.RLock()
	client, connected := e.client, e.connected
	e.mu.RUnlock()
	if client == nil || !connected {
		e.countError()
		return fmt.Errorf("mqtt not connected")
	}
	payload, err := json.Marshal(ev)
	if err != nil {
		e.countError()
		return fmt.Errorf("failed to marshal event: %w", err)
	}
	topic := fmt.Sprintf("%s/%s", e.cfg.Topic, ev.Kind)
	token := client.Publish(topic, 0, false, payload)
	if !token.WaitTimeout(2 * time.Second) {
		e.countError()
		return fmt.Errorf("publish timeout")
	}
	if err := token.Error(); err != nil {
		e.countError()
		return fmt.Errorf("publish failed: %w", err)
	}
	e.mu.Lock()
	e.published++
	e.mu.Unlock()
	return nil
}

type Stats struct {
	Published uint64 `json:"published"`
	Dropped   uint64 `json:"dropped"`
	Errors    uint64 `json:"errors"`
	Connected bool   `json:"connected"`
}

func (e *MQTTEmitter) Stats() Stats {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return Stats{Published: e.published, Dropped: e.dropped, Errors: e.errors, Connected: e.connected}
}

func (e *MQTTEmitter) setConnected(v bool) {
	e.mu.Lock()
	e.connected = v
	e.mu.Unlock()
}

func (e *MQTTEmitter) countError() {
	e.mu.Lock()
	e.errors++
	e.mu.Unlock()
}
