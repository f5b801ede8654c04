package mqtt

import (
	"errors"
	"fmt"
	"sync"
	"time"

	paho "github.com/eclipse/paho.mqtt.golang"
	"go.uber.org/zap"
)

// BufferSize is the number of messages kept while disconnected.
const BufferSize = 100

// Options configures a RealClient.
type Options struct {
	Broker   string
	ClientID string
	Topics   Topics
	Logger   *zap.Logger

	// OnConnectionChange, if set, is called with the new connection state.
	OnConnectionChange func(connected bool)
}

type subscription struct {
	qos     byte
	handler Handler
}

// RealClient talks to an actual MQTT broker. It announces availability with
// a retained online/offline message (the latter as last will), buffers
// publishes while disconnected and restores subscriptions on reconnect.
type RealClient struct {
	client paho.Client
	topics Topics
	log    *zap.Logger
	notify func(bool)

	mu   sync.Mutex
	buf  *ringBuffer
	subs map[string]subscription
}

// NewRealClient creates a client and starts connecting in the background.
func NewRealClient(o Options) (*RealClient, error) {
	if o.Broker == "" {
		return nil, errors.New("mqtt: no broker configured")
	}
	if o.Logger == nil {
		o.Logger = zap.NewNop()
	}

	c := &RealClient{
		topics: o.Topics,
		log:    o.Logger,
		notify: o.OnConnectionChange,
		buf:    newRingBuffer(BufferSize),
		subs:   make(map[string]subscription),
	}

	opts := paho.NewClientOptions().
		AddBroker(o.Broker).
		SetClientID(o.ClientID).
		SetAutoReconnect(true).
		SetConnectRetry(true).
		SetConnectRetryInterval(5 * time.Second).
		SetOrderMatters(false).
		SetWill(o.Topics.Available, Offline, 1, true).
		SetOnConnectHandler(func(paho.Client) {
			// Publishing waits for acks, which must not happen on paho's
			// callback goroutine.
			go c.resume()
		}).
		SetConnectionLostHandler(func(_ paho.Client, err error) {
			c.log.Warn("mqtt connection lost", zap.Error(err))
			c.setConnected(false)
		})

	c.client = paho.NewClient(opts)
	c.client.Connect()
	return c, nil
}

func (c *RealClient) setConnected(connected bool) {
	if c.notify != nil {
		c.notify(connected)
	}
}

// resume runs after every (re)connect.
func (c *RealClient) resume() {
	c.log.Info("mqtt connected")
	c.setConnected(true)

	if err := c.publish(c.topics.Available, 1, true, []byte(Online)); err != nil {
		c.log.Warn("publish availability", zap.Error(err))
	}

	c.mu.Lock()
	subs := make(map[string]subscription, len(c.subs))
	for t, s := range c.subs {
		subs[t] = s
	}
	pending := c.buf.drainAll()
	c.mu.Unlock()

	for topic, s := range subs {
		if err := c.subscribe(topic, s); err != nil {
			c.log.Error("resubscribe", zap.String("topic", topic), zap.Error(err))
		}
	}

	if len(pending) > 0 {
		c.log.Info("replaying buffered messages", zap.Int("count", len(pending)))
	}
	for _, m := range pending {
		if err := c.publish(m.topic, m.qos, m.retained, m.payload); err != nil {
			c.log.Warn("replay publish", zap.String("topic", m.topic), zap.Error(err))
		}
	}
}

// Publish sends a message, or buffers it while the connection is down.
func (c *RealClient) Publish(topic string, qos byte, retained bool, payload []byte) error {
	if !c.client.IsConnectionOpen() {
		c.mu.Lock()
		overflow := c.buf.push(bufferedMsg{topic: topic, payload: payload, qos: qos, retained: retained})
		c.mu.Unlock()
		if overflow {
			c.log.Warn("mqtt buffer full, dropping oldest", zap.Int("capacity", BufferSize))
		}
		return nil
	}
	return c.publish(topic, qos, retained, payload)
}

func (c *RealClient) publish(topic string, qos byte, retained bool, payload []byte) error {
	token := c.client.Publish(topic, qos, retained, payload)
	if !token.WaitTimeout(5 * time.Second) {
		return fmt.Errorf("publish %s: timeout", topic)
	}
	if err := token.Error(); err != nil {
		return fmt.Errorf("publish %s: %w", topic, err)
	}
	return nil
}

// Subscribe registers handler for topic, now if connected and again on
// every reconnect.
func (c *RealClient) Subscribe(topic string, qos byte, handler Handler) error {
	s := subscription{qos: qos, handler: handler}
	c.mu.Lock()
	c.subs[topic] = s
	c.mu.Unlock()

	if !c.client.IsConnectionOpen() {
		return nil
	}
	return c.subscribe(topic, s)
}

func (c *RealClient) subscribe(topic string, s subscription) error {
	token := c.client.Subscribe(topic, s.qos, func(_ paho.Client, m paho.Message) {
		s.handler(m.Topic(), m.Payload())
	})
	if !token.WaitTimeout(5 * time.Second) {
		return fmt.Errorf("subscribe %s: timeout", topic)
	}
	if err := token.Error(); err != nil {
		return fmt.Errorf("subscribe %s: %w", topic, err)
	}
	return nil
}

// IsConnected reports whether the broker connection is up.
func (c *RealClient) IsConnected() bool {
	return c.client.IsConnectionOpen()
}

// Close announces offline and disconnects from the broker.
func (c *RealClient) Close() error {
	if c.client.IsConnectionOpen() {
		if err := c.publish(c.topics.Available, 1, true, []byte(Offline)); err != nil {
			c.log.Warn("publish availability", zap.Error(err))
		}
	}
	c.client.Disconnect(1000) // 1 second timeout
	return nil
}
