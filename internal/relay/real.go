package relay

import (
	"errors"
	"fmt"
	"sync"
	"time"

	paho "github.com/eclipse/paho.mqtt.golang"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/sweeney/tigerwatch/internal/live"
	"github.com/sweeney/tigerwatch/internal/ring"
)

// DefaultBufferSize is the number of messages held while the broker is
// unreachable.
const DefaultBufferSize = 256

const (
	connectTimeout = 10 * time.Second
	publishTimeout = 5 * time.Second
)

// Options configures a RealPublisher.
type Options struct {
	Broker     string // e.g. tcp://localhost:1883
	ClientID   string // defaults to tigerwatch-<uuid>
	BufferSize int
	Logger     *zap.Logger
}

// message is a serialized MQTT message kept for replay after reconnection.
type message struct {
	topic    string
	qos      byte
	retained bool
	payload  []byte
}

// broker is the subset of the MQTT client the publisher needs.
type broker interface {
	connected() bool
	publish(m message) error
	disconnect()
}

// RealPublisher publishes to an actual MQTT broker. Messages published while
// disconnected are buffered and replayed, oldest first, on reconnect.
type RealPublisher struct {
	broker broker
	logger *zap.Logger

	mu        sync.Mutex
	buffer    *ring.Buffer[message]
	connected bool // at least one connection has been made
}

// NewRealPublisher creates a publisher connected to the configured broker.
func NewRealPublisher(opts Options) (*RealPublisher, error) {
	if opts.Broker == "" {
		return nil, errors.New("relay: broker address required")
	}
	if opts.ClientID == "" {
		opts.ClientID = "tigerwatch-" + uuid.NewString()
	}
	p := newPublisher(nil, opts.BufferSize, opts.Logger)

	will, err := FormatSystemPayload(SystemEvent{Timestamp: time.Now(), Event: "OFFLINE"})
	if err != nil {
		return nil, fmt.Errorf("format will: %w", err)
	}

	clientOpts := paho.NewClientOptions().
		AddBroker(opts.Broker).
		SetClientID(opts.ClientID).
		SetAutoReconnect(true).
		SetConnectRetry(true).
		SetConnectRetryInterval(5*time.Second).
		SetBinaryWill(TopicSystem, will, 1, true).
		SetOnConnectHandler(func(paho.Client) { p.onConnect() }).
		SetConnectionLostHandler(func(_ paho.Client, err error) {
			p.logger.Warn("mqtt connection lost", zap.Error(err))
		})

	client := paho.NewClient(clientOpts)
	p.broker = pahoBroker{client: client}

	// With connect retry the token only completes once a connection is
	// made; until then messages are buffered.
	token := client.Connect()
	if token.WaitTimeout(connectTimeout) {
		if err := token.Error(); err != nil {
			return nil, fmt.Errorf("connect to broker: %w", err)
		}
	} else {
		p.logger.Warn("broker unreachable, buffering until connected", zap.String("broker", opts.Broker))
	}
	return p, nil
}

func newPublisher(b broker, bufferSize int, logger *zap.Logger) *RealPublisher {
	if bufferSize <= 0 {
		bufferSize = DefaultBufferSize
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &RealPublisher{
		broker: b,
		logger: logger.Named("relay"),
		buffer: ring.New[message](bufferSize),
	}
}

// Publish relays a live event on its per-type topic.
func (p *RealPublisher) Publish(event live.Event) error {
	payload, err := FormatPayload(event)
	if err != nil {
		return fmt.Errorf("format payload: %w", err)
	}
	// QoS 0 (at-most-once), not retained
	return p.send(message{topic: EventTopic(event.Type), qos: 0, payload: payload})
}

// PublishSystem sends a console lifecycle event.
func (p *RealPublisher) PublishSystem(event SystemEvent) error {
	payload, err := FormatSystemPayload(event)
	if err != nil {
		return fmt.Errorf("format system payload: %w", err)
	}
	// QoS 1 so lifecycle transitions are not lost
	return p.send(message{topic: TopicSystem, qos: 1, retained: event.Retained, payload: payload})
}

// IsConnected reports whether the broker connection is up.
func (p *RealPublisher) IsConnected() bool {
	return p.broker.connected()
}

// Buffered returns the number of messages waiting for a connection.
func (p *RealPublisher) Buffered() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.buffer.Len()
}

// Close disconnects from the broker.
func (p *RealPublisher) Close() error {
	p.broker.disconnect()
	return nil
}

func (p *RealPublisher) send(m message) error {
	if !p.broker.connected() {
		p.enqueue(m)
		return nil
	}
	if err := p.broker.publish(m); err != nil {
		p.enqueue(m)
		return fmt.Errorf("publish %s: %w", m.topic, err)
	}
	return nil
}

func (p *RealPublisher) enqueue(m message) {
	p.mu.Lock()
	dropped := p.buffer.Push(m)
	size := p.buffer.Cap()
	p.mu.Unlock()
	if dropped {
		p.logger.Warn("buffer full, dropping oldest", zap.Int("capacity", size))
	}
}

// onConnect replays buffered messages. After the first connection it also
// announces the reconnect.
func (p *RealPublisher) onConnect() {
	p.mu.Lock()
	reconnect := p.connected
	p.connected = true
	pending := p.buffer.Drain()
	p.mu.Unlock()

	if reconnect {
		p.logger.Info("mqtt reconnected", zap.Int("buffered", len(pending)))
		payload, err := FormatSystemPayload(SystemEvent{Timestamp: time.Now(), Event: "RECONNECTED"})
		if err == nil {
			pending = append([]message{{topic: TopicSystem, qos: 1, payload: payload}}, pending...)
		}
	}

	for i, m := range pending {
		if err := p.broker.publish(m); err != nil {
			p.logger.Warn("replay failed", zap.String("topic", m.topic), zap.Error(err))
			p.mu.Lock()
			for _, rest := range pending[i:] {
				p.buffer.Push(rest)
			}
			p.mu.Unlock()
			return
		}
	}
}

type pahoBroker struct {
	client paho.Client
}

func (b pahoBroker) connected() bool {
	return b.client.IsConnected()
}

func (b pahoBroker) publish(m message) error {
	token := b.client.Publish(m.topic, m.qos, m.retained, m.payload)
	if !token.WaitTimeout(publishTimeout) {
		return fmt.Errorf("publish timeout")
	}
	return token.Error()
}

func (b pahoBroker) disconnect() {
	b.client.Disconnect(1000) // 1 second timeout
}
