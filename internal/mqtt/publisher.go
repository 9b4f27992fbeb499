package mqtt

import (
	"encoding/json"
	"log"
	"time"

	sc "github.com/AaronLay10/SentientRenderer/internal/scenecontrol"
)

// Reference notification types on the events topic.
const (
	NoteReferenceStateChanged = "reference_state_changed"
	NoteReferenceFlushed      = "reference_flushed"
	NoteReferenceDataLinked   = "reference_data_linked"
	NoteReferenceDataUnlinked = "reference_data_unlinked"
)

// EventPublisher publishes scene events and master-scoped reference
// notifications on the events topic.
type EventPublisher struct {
	transport Transport
	topic     string
}

var _ sc.EventSender = (*EventPublisher)(nil)

// NewEventPublisher creates a publisher for topics.Events().
func NewEventPublisher(transport Transport, topics Topics) *EventPublisher {
	return &EventPublisher{transport: transport, topic: topics.Events()}
}

func (p *EventPublisher) publish(fields map[string]interface{}) {
	if !p.transport.IsConnected() {
		return
	}
	fields["ts"] = time.Now().UTC().Format(time.RFC3339Nano)
	b, err := json.Marshal(fields)
	if err != nil {
		log.Printf("mqtt: failed to encode event: %v", err)
		return
	}
	if err := p.transport.Publish(p.topic, false, b); err != nil {
		log.Printf("mqtt: failed to publish event %v: %v", fields["type"], err)
	}
}

// PublishEvent publishes a client-facing scene event.
func (p *EventPublisher) PublishEvent(e sc.Event) {
	p.publish(e.Fields())
}

func (p *EventPublisher) SendSceneStateChanged(master, ref sc.SceneID, state sc.SceneState) {
	p.publish(map[string]interface{}{
		"type":            NoteReferenceStateChanged,
		"master_scene_id": uint64(master),
		"scene_id":        uint64(ref),
		"state":           state.String(),
	})
}

func (p *EventPublisher) SendSceneFlushed(master, ref sc.SceneID, version sc.SceneVersionTag) {
	p.publish(map[string]interface{}{
		"type":            NoteReferenceFlushed,
		"master_scene_id": uint64(master),
		"scene_id":        uint64(ref),
		"version":         uint64(version),
	})
}

func (p *EventPublisher) SendDataLinked(master, providerScene sc.SceneID, providerID sc.DataSlotID, consumerScene sc.SceneID, consumerID sc.DataSlotID, ok bool) {
	p.publish(map[string]interface{}{
		"type":              NoteReferenceDataLinked,
		"master_scene_id":   uint64(master),
		"provider_scene_id": uint64(providerScene),
		"provider_id":       uint32(providerID),
		"consumer_scene_id": uint64(consumerScene),
		"consumer_id":       uint32(consumerID),
		"ok":                ok,
	})
}

func (p *EventPublisher) SendDataUnlinked(master, consumerScene sc.SceneID, consumerID sc.DataSlotID, ok bool) {
	p.publish(map[string]interface{}{
		"type":              NoteReferenceDataUnlinked,
		"master_scene_id":   uint64(master),
		"consumer_scene_id": uint64(consumerScene),
		"consumer_id":       uint32(consumerID),
		"ok":                ok,
	})
}
