package scenecontrol

import "fmt"

// EventType identifies the kind of a renderer event.
type EventType int

const (
	EventSceneStateChanged EventType = iota
	EventScenePublished
	EventSceneUnpublished
	EventSceneFlushed
	EventSceneExpired
	EventSceneRecoveredFromExpiration
	EventDataLinked
	EventDataLinkFailed
	EventDataUnlinked
	EventDataUnlinkFailed
	EventDataProviderCreated
	EventDataProviderDestroyed
	EventDataConsumerCreated
	EventDataConsumerDestroyed
	EventSceneAssignedToBuffer
	EventSceneAssignToBufferFailed
	EventBufferLinked
	EventBufferLinkFailed
)

var eventTypeNames = [...]string{
	EventSceneStateChanged:            "scene_state_changed",
	EventScenePublished:               "scene_published",
	EventSceneUnpublished:             "scene_unpublished",
	EventSceneFlushed:                 "scene_flushed",
	EventSceneExpired:                 "scene_expired",
	EventSceneRecoveredFromExpiration: "scene_recovered_from_expiration",
	EventDataLinked:                   "data_linked",
	EventDataLinkFailed:               "data_link_failed",
	EventDataUnlinked:                 "data_unlinked",
	EventDataUnlinkFailed:             "data_unlink_failed",
	EventDataProviderCreated:          "data_provider_created",
	EventDataProviderDestroyed:        "data_provider_destroyed",
	EventDataConsumerCreated:          "data_consumer_created",
	EventDataConsumerDestroyed:        "data_consumer_destroyed",
	EventSceneAssignedToBuffer:        "scene_assigned_to_buffer",
	EventSceneAssignToBufferFailed:    "scene_assign_to_buffer_failed",
	EventBufferLinked:                 "buffer_linked",
	EventBufferLinkFailed:             "buffer_link_failed",
}

func (t EventType) String() string {
	if t < 0 || int(t) >= len(eventTypeNames) {
		return fmt.Sprintf("EventType(%d)", int(t))
	}
	return eventTypeNames[t]
}

// MarshalText implements encoding.TextMarshaler.
func (t EventType) MarshalText() ([]byte, error) {
	return []byte(t.String()), nil
}

// ParseEventType parses the wire name of an event type.
func ParseEventType(s string) (EventType, error) {
	for i, name := range eventTypeNames {
		if s == name {
			return EventType(i), nil
		}
	}
	return 0, fmt.Errorf("unknown event type: %q", s)
}

// Event is a renderer event delivered to clients once per tick.
// Only the fields relevant to Type are set.
type Event struct {
	Type    EventType  `json:"type"`
	SceneID SceneID    `json:"scene_id,omitempty"`
	State   SceneState `json:"state"`

	ProviderSceneID SceneID    `json:"provider_scene_id,omitempty"`
	ProviderID      DataSlotID `json:"provider_id,omitempty"`
	ConsumerSceneID SceneID    `json:"consumer_scene_id,omitempty"`
	ConsumerID      DataSlotID `json:"consumer_id,omitempty"`

	Version SceneVersionTag `json:"version,omitempty"`
}

// Fields renders the event as an event-log field map.
func (e Event) Fields() map[string]interface{} {
	f := map[string]interface{}{
		"type": e.Type.String(),
	}
	if e.SceneID != InvalidSceneID {
		f["scene_id"] = uint64(e.SceneID)
	}
	switch e.Type {
	case EventSceneStateChanged:
		f["state"] = e.State.String()
	case EventSceneFlushed:
		f["version"] = uint64(e.Version)
	case EventDataLinked, EventDataLinkFailed:
		f["provider_scene_id"] = uint64(e.ProviderSceneID)
		f["provider_id"] = uint32(e.ProviderID)
		f["consumer_scene_id"] = uint64(e.ConsumerSceneID)
		f["consumer_id"] = uint32(e.ConsumerID)
	case EventDataUnlinked, EventDataUnlinkFailed, EventBufferLinked, EventBufferLinkFailed:
		f["consumer_scene_id"] = uint64(e.ConsumerSceneID)
		f["consumer_id"] = uint32(e.ConsumerID)
	}
	return f
}
