package mqtt

import (
	"fmt"
	"sync"
	"time"

	paho "github.com/eclipse/paho.mqtt.golang"
	"github.com/google/uuid"
	"github.com/sweeney/warning-panel/internal/panel"
	"go.uber.org/zap"
)

// DefaultBufferSize is how many publishes are held while disconnected.
const DefaultBufferSize = 256

// Options configures a RealClient.
type Options struct {
	Broker     string
	BufferSize int

	// OnCommand is called for every valid message on TopicCommands, from a
	// paho goroutine.
	OnCommand func(Command)

	// OnConnectionChange is called with true on every (re)connect and false
	// when the connection is lost.
	OnConnectionChange func(connected bool)
}

// RealClient publishes to and receives commands from an actual MQTT broker.
// Publishes made while the connection is down are buffered and replayed on
// reconnect.
type RealClient struct {
	client paho.Client
	log    *zap.Logger
	opts   Options

	mu        sync.Mutex
	buf       *outbox
	connected bool // has connected at least once
	ready     bool // connected and the buffer is drained; publishes go out directly
}

func newRealClient(opts Options, log *zap.Logger) *RealClient {
	if log == nil {
		log = zap.NewNop()
	}
	if opts.BufferSize <= 0 {
		opts.BufferSize = DefaultBufferSize
	}
	return &RealClient{
		log:  log.Named("mqtt"),
		opts: opts,
		buf:  newOutbox(opts.BufferSize),
	}
}

// NewRealClient creates a client for the given broker and starts connecting.
// An unreachable broker is not fatal: the client keeps retrying in the
// background and buffers publishes until it gets through.
func NewRealClient(opts Options, log *zap.Logger) (*RealClient, error) {
	c := newRealClient(opts, log)

	will, err := FormatSystemPayload(SystemEvent{Timestamp: time.Now(), Event: "OFFLINE"})
	if err != nil {
		return nil, fmt.Errorf("format will payload: %w", err)
	}

	clientID := "warning-panel-" + uuid.NewString()[:8]
	pahoOpts := paho.NewClientOptions().
		AddBroker(opts.Broker).
		SetClientID(clientID).
		SetAutoReconnect(true).
		SetConnectRetry(true).
		SetConnectRetryInterval(5*time.Second).
		SetWill(TopicSystem, string(will), 1, true).
		SetOnConnectHandler(c.handleConnect).
		SetConnectionLostHandler(c.handleConnectionLost)

	c.client = paho.NewClient(pahoOpts)
	c.log.Info("connecting", zap.String("broker", opts.Broker), zap.String("client_id", clientID))

	token := c.client.Connect()
	if !token.WaitTimeout(10 * time.Second) {
		c.log.Warn("broker not reachable yet, buffering until connected", zap.String("broker", opts.Broker))
		return c, nil
	}
	if err := token.Error(); err != nil {
		return nil, fmt.Errorf("connect to broker: %w", err)
	}
	return c, nil
}

func (c *RealClient) handleConnect(client paho.Client) {
	c.mu.Lock()
	reconnect := c.connected
	c.connected = true
	c.mu.Unlock()

	c.log.Info("connected", zap.Bool("reconnect", reconnect))

	token := client.Subscribe(TopicCommands, 1, c.handleMessage)
	if !token.WaitTimeout(5 * time.Second) {
		c.log.Error("subscribe timeout", zap.String("topic", TopicCommands))
	} else if err := token.Error(); err != nil {
		c.log.Error("subscribe failed", zap.String("topic", TopicCommands), zap.Error(err))
	}

	c.replay()

	if reconnect {
		event := SystemEvent{Timestamp: time.Now(), Event: "RECONNECTED", Retained: true}
		if err := c.PublishSystem(event); err != nil {
			c.log.Warn("publish reconnected", zap.Error(err))
		}
	}
	if c.opts.OnConnectionChange != nil {
		c.opts.OnConnectionChange(true)
	}
}

// replay sends buffered messages oldest first. Publishes keep going to the
// buffer until it is empty, so nothing overtakes an older message.
func (c *RealClient) replay() {
	replayed, dropped := 0, 0
	for {
		c.mu.Lock()
		pending, n := c.buf.drain()
		dropped += n
		if len(pending) == 0 {
			c.ready = true
			c.mu.Unlock()
			break
		}
		c.mu.Unlock()

		for _, msg := range pending {
			if err := c.send(msg); err != nil {
				c.log.Warn("replay failed", zap.String("topic", msg.topic), zap.Error(err))
			}
		}
		replayed += len(pending)
	}
	if replayed > 0 {
		c.log.Info("replayed buffered messages", zap.Int("count", replayed), zap.Int("dropped", dropped))
	}
}

func (c *RealClient) handleConnectionLost(_ paho.Client, err error) {
	c.mu.Lock()
	c.ready = false
	c.mu.Unlock()
	c.log.Warn("connection lost", zap.Error(err))
	if c.opts.OnConnectionChange != nil {
		c.opts.OnConnectionChange(false)
	}
}

func (c *RealClient) handleMessage(_ paho.Client, msg paho.Message) {
	cmd, err := ParseCommand(msg.Payload())
	if err != nil {
		c.log.Warn("ignoring command", zap.String("topic", msg.Topic()), zap.ByteString("payload", msg.Payload()), zap.Error(err))
		return
	}
	c.log.Debug("command", zap.Ints("channels", cmd.Channels), zap.String("event", cmd.Event))
	if c.opts.OnCommand != nil {
		c.opts.OnCommand(cmd)
	}
}

// publish sends msg now, or buffers it until the connection is up and
// earlier buffered messages have been replayed.
func (c *RealClient) publish(msg bufferedMsg) error {
	c.mu.Lock()
	if !c.ready || !c.client.IsConnectionOpen() {
		if c.buf.push(msg) {
			c.log.Warn("buffer full, dropping oldest transitions", zap.Int("capacity", c.buf.capacity))
		}
		c.mu.Unlock()
		return nil
	}
	c.mu.Unlock()
	return c.send(msg)
}

func (c *RealClient) send(msg bufferedMsg) error {
	token := c.client.Publish(msg.topic, msg.qos, msg.retained, msg.payload)
	if !token.WaitTimeout(5 * time.Second) {
		return fmt.Errorf("publish %s: timeout", msg.topic)
	}
	if err := token.Error(); err != nil {
		return fmt.Errorf("publish %s: %w", msg.topic, err)
	}
	return nil
}

// PublishTransition sends a channel transition to the MQTT broker.
func (c *RealClient) PublishTransition(tr panel.Transition) error {
	payload, err := FormatPayload(tr)
	if err != nil {
		return fmt.Errorf("format payload: %w", err)
	}
	// QoS 0 (at-most-once), not retained
	return c.publish(bufferedMsg{topic: TopicEvents, payload: payload})
}

// PublishSystem sends a system lifecycle event to the MQTT broker.
func (c *RealClient) PublishSystem(event SystemEvent) error {
	payload, err := FormatSystemPayload(event)
	if err != nil {
		return fmt.Errorf("format system payload: %w", err)
	}
	// QoS 1 (at-least-once): shutdown events must get through
	return c.publish(bufferedMsg{topic: TopicSystem, payload: payload, qos: 1, retained: event.Retained})
}

// IsConnected reports whether the connection to the broker is up.
func (c *RealClient) IsConnected() bool {
	return c.client.IsConnectionOpen()
}

// Buffered returns the number of publishes waiting for a connection.
func (c *RealClient) Buffered() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.buf.len()
}

// Close disconnects from the broker.
func (c *RealClient) Close() error {
	c.client.Disconnect(1000) // 1 second timeout
	return nil
}
