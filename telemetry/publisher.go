package telemetry

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	kafkago "github.com/segmentio/kafka-go"

	"github.com/soocke/can-bot-go/config"
)

// Publisher sends one encoded telemetry message.
type Publisher interface {
	Publish(ctx context.Context, runID, kind string, payload []byte) error
	Close() error
}

// Topic builds the MQTT topic for a message: <prefix>/<run>/<kind>.
func Topic(prefix, runID, kind string) string {
	return strings.TrimSuffix(prefix, "/") + "/" + runID + "/" + kind
}

// MQTTPublisher publishes with QoS 1 to a broker.
type MQTTPublisher struct {
	mu     sync.RWMutex
	prefix string
	conn   mqtt.Client
}

// NewMQTTPublisher connects to the configured broker.
func NewMQTTPublisher(cfg config.MQTTConfig) (*MQTTPublisher, error) {
	broker := fmt.Sprintf("tcp://%s:%d", cfg.Broker, cfg.Port)
	opts := mqtt.NewClientOptions().
		AddBroker(broker).
		SetClientID(cfg.ClientID).
		SetAutoReconnect(true).
		SetConnectRetry(true).
		SetConnectRetryInterval(5 * time.Second).
		SetConnectTimeout(10 * time.Second)

	client := mqtt.NewClient(opts)
	token := client.Connect()
	if !token.WaitTimeout(15 * time.Second) {
		return nil, fmt.Errorf("mqtt connect %s: timed out", broker)
	}
	if err := token.Error(); err != nil {
		return nil, fmt.Errorf("mqtt connect: %w", err)
	}
	return newMQTTPublisher(client, cfg.Topic), nil
}

func newMQTTPublisher(client mqtt.Client, prefix string) *MQTTPublisher {
	return &MQTTPublisher{prefix: prefix, conn: client}
}

// Publish waits for the broker acknowledgement until ctx is done. While the
// client reconnects a QoS 1 token stays pending, so ctx bounds the wait.
func (p *MQTTPublisher) Publish(ctx context.Context, runID, kind string, payload []byte) error {
	p.mu.RLock()
	defer p.mu.RUnlock()
	if p.conn == nil || !p.conn.IsConnected() {
		return errors.New("mqtt not connected")
	}
	token := p.conn.Publish(Topic(p.prefix, runID, kind), 1, false, payload)
	select {
	case <-token.Done():
		return token.Error()
	case <-ctx.Done():
		return fmt.Errorf("mqtt publish %s: %w", kind, ctx.Err())
	}
}

func (p *MQTTPublisher) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.conn != nil {
		p.conn.Disconnect(1000)
		p.conn = nil
	}
	return nil
}

// KafkaPublisher writes messages keyed by run id to a single topic.
type KafkaPublisher struct {
	w *kafkago.Writer
}

// NewKafkaPublisher returns an asynchronous writer; delivery failures are
// reported to the writer's completion callback, not to Publish.
func NewKafkaPublisher(cfg config.KafkaConfig) *KafkaPublisher {
	return &KafkaPublisher{w: &kafkago.Writer{
		Addr:         kafkago.TCP(cfg.Brokers...),
		Topic:        cfg.Topic,
		Balancer:     &kafkago.Hash{},
		RequiredAcks: kafkago.RequireOne,
		Async:        true,
	}}
}

func (p *KafkaPublisher) Publish(ctx context.Context, runID, kind string, payload []byte) error {
	return p.w.WriteMessages(ctx, kafkago.Message{
		Key:     []byte(runID),
		Value:   payload,
		Headers: []kafkago.Header{{Key: "kind", Value: []byte(kind)}},
	})
}

func (p *KafkaPublisher) Close() error { return p.w.Close() }

var (
	_ Publisher = (*MQTTPublisher)(nil)
	_ Publisher = (*KafkaPublisher)(nil)
)
