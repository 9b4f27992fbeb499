package mqtt

import (
	"errors"
	"sync"

	paho "github.com/eclipse/paho.mqtt.golang"
)

type published struct {
	topic    string
	retained bool
	payload  []byte
}

// mockTransport records publishes and lets tests push messages to subscribers.
type mockTransport struct {
	mu            sync.Mutex
	subscriptions map[string]paho.MessageHandler
	published     []published
	connected     bool
	failPublish   bool
}

func newMockTransport() *mockTransport {
	return &mockTransport{
		subscriptions: make(map[string]paho.MessageHandler),
		connected:     true,
	}
}

func (m *mockTransport) Subscribe(topic string, handler paho.MessageHandler) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.subscriptions[topic] = handler
	return nil
}

func (m *mockTransport) Publish(topic string, retained bool, payload []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if !m.connected {
		return ErrNotConnected
	}
	if m.failPublish {
		return errors.New("publish timeout")
	}
	m.published = append(m.published, published{topic: topic, retained: retained, payload: payload})
	return nil
}

func (m *mockTransport) IsConnected() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.connected
}

func (m *mockTransport) setConnected(connected bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.connected = connected
}

func (m *mockTransport) take() []published {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := m.published
	m.published = nil
	return out
}

func (m *mockTransport) simulateMessage(topic string, payload []byte) bool {
	m.mu.Lock()
	handler, ok := m.subscriptions[topic]
	m.mu.Unlock()
	if ok {
		handler(nil, &mockMessage{topic: topic, payload: payload})
	}
	return ok
}

type mockMessage struct {
	topic   string
	payload []byte
}

func (m *mockMessage) Duplicate() bool   { return false }
func (m *mockMessage) Qos() byte         { return 1 }
func (m *mockMessage) Retained() bool    { return false }
func (m *mockMessage) Topic() string     { return m.topic }
func (m *mockMessage) MessageID() uint16 { return 0 }
func (m *mockMessage) Payload() []byte   { return m.payload }
func (m *mockMessage) Ack()              {}
