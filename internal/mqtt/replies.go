package mqtt

import (
	"bytes"
	"encoding/json"
	"fmt"

	paho "github.com/eclipse/paho.mqtt.golang"

	"github.com/AaronLay10/SentientRenderer/internal/events"
	sc "github.com/AaronLay10/SentientRenderer/internal/scenecontrol"
)

// Inbox receives decoded renderer notifications. Implementations must be safe
// to call from the MQTT client goroutine.
type Inbox interface {
	DeliverReply(r sc.Reply)
	DeliverTableUpdate(u sc.TableUpdate)
}

// ReplySubscriber decodes the replies topic into scene replies and scene table
// updates. A message is one JSON object or an array of them.
type ReplySubscriber struct {
	transport Transport
	topic     string
	inbox     Inbox
}

// NewReplySubscriber creates a subscriber for topics.Replies().
func NewReplySubscriber(transport Transport, topics Topics, inbox Inbox) *ReplySubscriber {
	return &ReplySubscriber{transport: transport, topic: topics.Replies(), inbox: inbox}
}

// Topic returns the subscribed topic.
func (s *ReplySubscriber) Topic() string {
	return s.topic
}

// Start subscribes to the replies topic.
func (s *ReplySubscriber) Start() error {
	return s.transport.Subscribe(s.topic, s.Handler())
}

// Handler returns the paho handler for the replies topic.
func (s *ReplySubscriber) Handler() paho.MessageHandler {
	return func(_ paho.Client, msg paho.Message) {
		if err := s.HandlePayload(msg.Payload()); err != nil {
			events.Emit("warn", "renderer.reply_invalid", err.Error(), map[string]interface{}{
				"topic": msg.Topic(),
			})
		}
	}
}

type envelope struct {
	Type string `json:"type"`
}

// HandlePayload decodes payload and delivers every message in it. Messages
// before an invalid one are still delivered.
func (s *ReplySubscriber) HandlePayload(payload []byte) error {
	trimmed := bytes.TrimSpace(payload)
	if len(trimmed) > 0 && trimmed[0] == '[' {
		var batch []json.RawMessage
		if err := json.Unmarshal(trimmed, &batch); err != nil {
			return fmt.Errorf("invalid reply batch: %w", err)
		}
		for i, raw := range batch {
			if err := s.handleOne(raw); err != nil {
				return fmt.Errorf("batch[%d]: %w", i, err)
			}
		}
		return nil
	}
	return s.handleOne(trimmed)
}

func (s *ReplySubscriber) handleOne(raw []byte) error {
	var env envelope
	if err := json.Unmarshal(raw, &env); err != nil {
		return fmt.Errorf("invalid reply JSON: %w", err)
	}
	if env.Type == "" {
		return fmt.Errorf("reply type is required")
	}

	if sc.IsTableUpdate(env.Type) {
		var u sc.TableUpdate
		if err := json.Unmarshal(raw, &u); err != nil {
			return fmt.Errorf("invalid %s: %w", env.Type, err)
		}
		s.inbox.DeliverTableUpdate(u)
		return nil
	}

	var r sc.Reply
	if err := json.Unmarshal(raw, &r); err != nil {
		return fmt.Errorf("invalid %s: %w", env.Type, err)
	}
	s.inbox.DeliverReply(r)
	return nil
}
