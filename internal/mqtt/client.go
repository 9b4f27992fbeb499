package mqtt

import (
	"errors"
	"log"
	"os"
	"sync"
	"time"

	paho "github.com/eclipse/paho.mqtt.golang"

	"github.com/AaronLay10/SentientRenderer/internal/events"
)

const (
	operationTimeout = 10 * time.Second
	qos              = 1
)

// Transport is the part of the MQTT client used by publishers and subscribers.
type Transport interface {
	Subscribe(topic string, handler paho.MessageHandler) error
	Publish(topic string, retained bool, payload []byte) error
	IsConnected() bool
}

// Client wraps the Paho MQTT client for the renderer service.
type Client struct {
	client   paho.Client
	clientID string
	topics   Topics
	mu       sync.Mutex

	subMu     sync.Mutex
	subs      map[string]paho.MessageHandler
	onConnect []func()
}

// ErrNotConnected is returned by Publish while the broker is unreachable.
var ErrNotConnected = errors.New("mqtt: not connected")

// BrokerURL returns the MQTT broker URL from env or default.
func BrokerURL() string {
	if url := os.Getenv("MQTT_URL"); url != "" {
		return url
	}
	return "tcp://localhost:1883"
}

// NewClient creates a new MQTT client but does not connect. The broker marks
// the renderer offline on topics.Status() if the connection drops.
func NewClient(clientID string, topics Topics) *Client {
	c := &Client{
		clientID: clientID,
		topics:   topics,
		subs:     make(map[string]paho.MessageHandler),
	}

	opts := paho.NewClientOptions().
		AddBroker(BrokerURL()).
		SetClientID(clientID).
		SetAutoReconnect(true).
		SetConnectRetry(true).
		SetConnectRetryInterval(5 * time.Second).
		SetKeepAlive(30 * time.Second).
		SetCleanSession(true).
		SetWill(topics.Status(), string(statusPayload(clientID, false, "unexpected_disconnect")), qos, true).
		SetOnConnectHandler(func(paho.Client) { c.handleConnect() }).
		SetConnectionLostHandler(func(_ paho.Client, err error) { c.handleConnectionLost(err) })

	c.client = paho.NewClient(opts)
	return c
}

// Connect attempts to connect to the broker.
// Returns an error if connection fails, but does not block indefinitely.
func (c *Client) Connect() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	token := c.client.Connect()
	if !token.WaitTimeout(operationTimeout) {
		return &ConnectTimeoutError{}
	}
	return token.Error()
}

// Subscribe subscribes to a topic with the given handler. Subscriptions are
// restored after a reconnect.
func (c *Client) Subscribe(topic string, handler paho.MessageHandler) error {
	c.subMu.Lock()
	c.subs[topic] = handler
	c.subMu.Unlock()

	return c.subscribe(topic, handler)
}

func (c *Client) subscribe(topic string, handler paho.MessageHandler) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	token := c.client.Subscribe(topic, qos, handler)
	if !token.WaitTimeout(operationTimeout) {
		return &SubscribeTimeoutError{Topic: topic}
	}
	return token.Error()
}

// Publish publishes payload on topic at QoS 1. It fails fast with
// ErrNotConnected instead of queueing while disconnected.
func (c *Client) Publish(topic string, retained bool, payload []byte) error {
	if !c.client.IsConnected() {
		return ErrNotConnected
	}
	token := c.client.Publish(topic, qos, retained, payload)
	if !token.WaitTimeout(operationTimeout) {
		return &PublishTimeoutError{Topic: topic}
	}
	return token.Error()
}

// Disconnect publishes a graceful offline status and disconnects.
func (c *Client) Disconnect() {
	if c.client.IsConnected() {
		if err := c.Publish(c.topics.Status(), true, statusPayload(c.clientID, false, "shutdown")); err != nil {
			log.Printf("mqtt: failed to publish offline status: %v", err)
		}
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	c.client.Disconnect(1000)
}

// OnConnect registers fn to run after every (re)connect, once subscriptions
// are restored. fn runs on a paho goroutine.
func (c *Client) OnConnect(fn func()) {
	c.subMu.Lock()
	defer c.subMu.Unlock()
	c.onConnect = append(c.onConnect, fn)
}

// IsConnected returns true if the client is connected.
func (c *Client) IsConnected() bool {
	return c.client.IsConnected()
}

func (c *Client) handleConnect() {
	events.Emit("info", "renderer.connected", "", map[string]interface{}{
		"broker":    BrokerURL(),
		"client_id": c.clientID,
	})

	// paho calls this on its own goroutine, so waiting on tokens is safe.
	c.subMu.Lock()
	subs := make(map[string]paho.MessageHandler, len(c.subs))
	for t, h := range c.subs {
		subs[t] = h
	}
	hooks := append([]func(){}, c.onConnect...)
	c.subMu.Unlock()

	for topic, handler := range subs {
		if err := c.subscribe(topic, handler); err != nil {
			log.Printf("mqtt: failed to restore subscription %s: %v", topic, err)
		}
	}
	if err := c.Publish(c.topics.Status(), true, statusPayload(c.clientID, true, "")); err != nil {
		log.Printf("mqtt: failed to publish online status: %v", err)
	}
	for _, fn := range hooks {
		fn()
	}
}

func (c *Client) handleConnectionLost(err error) {
	log.Printf("mqtt: connection lost: %v", err)
	events.Emit("warn", "renderer.disconnected", "connection lost", map[string]interface{}{
		"broker": BrokerURL(),
		"error":  err.Error(),
	})
}

// ConnectTimeoutError indicates connection timed out.
type ConnectTimeoutError struct{}

func (e *ConnectTimeoutError) Error() string {
	return "mqtt connect timeout"
}

// SubscribeTimeoutError indicates subscription timed out.
type SubscribeTimeoutError struct {
	Topic string
}

func (e *SubscribeTimeoutError) Error() string {
	return "mqtt subscribe timeout: " + e.Topic
}

// PublishTimeoutError indicates a publish was not acknowledged in time.
type PublishTimeoutError struct {
	Topic string
}

func (e *PublishTimeoutError) Error() string {
	return "mqtt publish timeout: " + e.Topic
}

// StartWithRetry connects and subscribes the replies handler, logging errors but not crashing.
// Returns true if connected, false otherwise. With connect retry enabled paho keeps
// trying in the background and the subscription is restored once it succeeds.
func (c *Client) StartWithRetry(topic string, handler paho.MessageHandler) bool {
	c.subMu.Lock()
	c.subs[topic] = handler
	c.subMu.Unlock()

	if err := c.Connect(); err != nil {
		log.Printf("mqtt: failed to connect to %s: %v", BrokerURL(), err)
		return false
	}

	if err := c.subscribe(topic, handler); err != nil {
		log.Printf("mqtt: failed to subscribe to %s: %v", topic, err)
		return false
	}

	log.Printf("mqtt: connected and subscribed to %s", topic)
	return true
}
