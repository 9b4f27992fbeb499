package scenecontrol

import (
	"fmt"

	"github.com/AaronLay10/SentientRenderer/internal/events"
)

// ReplyType names a notification sent by the renderer.
type ReplyType string

const (
	ReplyScenePublished            ReplyType = "scene_published"
	ReplySceneUnpublished          ReplyType = "scene_unpublished"
	ReplySceneSubscribed           ReplyType = "scene_subscribed"
	ReplySceneSubscribeFailed      ReplyType = "scene_subscribe_failed"
	ReplySceneUnsubscribed         ReplyType = "scene_unsubscribed"
	ReplySceneUnsubscribedIndirect ReplyType = "scene_unsubscribed_indirect"
	ReplySceneUnsubscribeFailed    ReplyType = "scene_unsubscribe_failed"
	ReplySceneMapped               ReplyType = "scene_mapped"
	ReplySceneMapFailed            ReplyType = "scene_map_failed"
	ReplySceneUnmapped             ReplyType = "scene_unmapped"
	ReplySceneUnmappedIndirect     ReplyType = "scene_unmapped_indirect"
	ReplySceneUnmapFailed          ReplyType = "scene_unmap_failed"
	ReplySceneShown                ReplyType = "scene_shown"
	ReplySceneShowFailed           ReplyType = "scene_show_failed"
	ReplySceneHidden               ReplyType = "scene_hidden"
	ReplySceneHiddenIndirect       ReplyType = "scene_hidden_indirect"
	ReplySceneHideFailed           ReplyType = "scene_hide_failed"
	ReplyDataLinked                ReplyType = "data_linked"
	ReplyDataLinkFailed            ReplyType = "data_link_failed"
	ReplyDataUnlinked              ReplyType = "data_unlinked"
	ReplyDataUnlinkFailed          ReplyType = "data_unlink_failed"
	ReplySceneFlushed              ReplyType = "scene_flushed"
	ReplySceneExpired              ReplyType = "scene_expired"
	ReplySceneRecoveredFromExpiry  ReplyType = "scene_recovered_from_expiration"
	ReplyDataProviderCreated       ReplyType = "data_provider_created"
	ReplyDataProviderDestroyed     ReplyType = "data_provider_destroyed"
	ReplyDataConsumerCreated       ReplyType = "data_consumer_created"
	ReplyDataConsumerDestroyed     ReplyType = "data_consumer_destroyed"
	ReplySceneAssignedToBuffer     ReplyType = "scene_assigned_to_buffer"
	ReplySceneAssignToBufferFailed ReplyType = "scene_assign_to_buffer_failed"
	ReplyBufferLinked              ReplyType = "buffer_linked"
	ReplyBufferLinkFailed          ReplyType = "buffer_link_failed"
)

// Reply is one notification from the renderer.
type Reply struct {
	Type    ReplyType `json:"type"`
	SceneID SceneID   `json:"scene_id,omitempty"`

	ProviderSceneID SceneID    `json:"provider_scene_id,omitempty"`
	ProviderID      DataSlotID `json:"provider_id,omitempty"`
	ConsumerSceneID SceneID    `json:"consumer_scene_id,omitempty"`
	ConsumerID      DataSlotID `json:"consumer_id,omitempty"`

	Version SceneVersionTag `json:"version,omitempty"`
}

type stateReply struct {
	handle func(*ControlLogic, SceneID, EventResult)
	result EventResult
}

var stateReplies = map[ReplyType]stateReply{
	ReplySceneSubscribed:           {(*ControlLogic).SceneSubscribed, ResultOK},
	ReplySceneSubscribeFailed:      {(*ControlLogic).SceneSubscribed, ResultFailed},
	ReplySceneUnsubscribed:         {(*ControlLogic).SceneUnsubscribed, ResultOK},
	ReplySceneUnsubscribedIndirect: {(*ControlLogic).SceneUnsubscribed, ResultIndirect},
	ReplySceneUnsubscribeFailed:    {(*ControlLogic).SceneUnsubscribed, ResultFailed},
	ReplySceneMapped:               {(*ControlLogic).SceneMapped, ResultOK},
	ReplySceneMapFailed:            {(*ControlLogic).SceneMapped, ResultFailed},
	ReplySceneUnmapped:             {(*ControlLogic).SceneUnmapped, ResultOK},
	ReplySceneUnmappedIndirect:     {(*ControlLogic).SceneUnmapped, ResultIndirect},
	ReplySceneUnmapFailed:          {(*ControlLogic).SceneUnmapped, ResultFailed},
	ReplySceneShown:                {(*ControlLogic).SceneShown, ResultOK},
	ReplySceneShowFailed:           {(*ControlLogic).SceneShown, ResultFailed},
	ReplySceneHidden:               {(*ControlLogic).SceneHidden, ResultOK},
	ReplySceneHiddenIndirect:       {(*ControlLogic).SceneHidden, ResultIndirect},
	ReplySceneHideFailed:           {(*ControlLogic).SceneHidden, ResultFailed},
}

// passThrough lists replies that become client events without touching scene state.
var passThrough = map[ReplyType]EventType{
	ReplyDataProviderCreated:       EventDataProviderCreated,
	ReplyDataProviderDestroyed:     EventDataProviderDestroyed,
	ReplyDataConsumerCreated:       EventDataConsumerCreated,
	ReplyDataConsumerDestroyed:     EventDataConsumerDestroyed,
	ReplySceneAssignedToBuffer:     EventSceneAssignedToBuffer,
	ReplySceneAssignToBufferFailed: EventSceneAssignToBufferFailed,
	ReplyBufferLinked:              EventBufferLinked,
	ReplyBufferLinkFailed:          EventBufferLinkFailed,
}

// HandleReply dispatches a renderer notification to the matching handler.
func (l *ControlLogic) HandleReply(r Reply) error {
	if sr, ok := stateReplies[r.Type]; ok {
		sr.handle(l, r.SceneID, sr.result)
		return nil
	}
	if t, ok := passThrough[r.Type]; ok {
		l.events = append(l.events, Event{
			Type:            t,
			SceneID:         r.SceneID,
			ProviderSceneID: r.ProviderSceneID,
			ProviderID:      r.ProviderID,
			ConsumerSceneID: r.ConsumerSceneID,
			ConsumerID:      r.ConsumerID,
		})
		return nil
	}

	switch r.Type {
	case ReplyScenePublished:
		l.ScenePublished(r.SceneID)
	case ReplySceneUnpublished:
		l.SceneUnpublished(r.SceneID)
	case ReplyDataLinked, ReplyDataLinkFailed:
		l.DataLinked(r.ProviderSceneID, r.ProviderID, r.ConsumerSceneID, r.ConsumerID, r.Type == ReplyDataLinked)
	case ReplyDataUnlinked, ReplyDataUnlinkFailed:
		l.DataUnlinked(r.ConsumerSceneID, r.ConsumerID, r.Type == ReplyDataUnlinked)
	case ReplySceneFlushed:
		l.SceneFlushed(r.SceneID, r.Version)
	case ReplySceneExpired:
		l.SceneExpired(r.SceneID)
	case ReplySceneRecoveredFromExpiry:
		l.SceneRecoveredFromExpiration(r.SceneID)
	default:
		events.Emit("warn", "scene.reply_ignored", "unknown reply type", map[string]interface{}{
			"scene_id": uint64(r.SceneID),
			"reply":    string(r.Type),
		})
		return fmt.Errorf("unknown reply type: %q", r.Type)
	}
	return nil
}
