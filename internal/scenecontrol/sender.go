package scenecontrol

import "github.com/AaronLay10/SentientRenderer/internal/events"

// EmitSender records master-scoped reference notifications in the event log and
// hands them on to Next when set.
type EmitSender struct {
	Next EventSender
}

func (s EmitSender) SendSceneStateChanged(master, ref SceneID, state SceneState) {
	events.Emit("info", "scene_reference.state_changed", "", map[string]interface{}{
		"master_scene_id": uint64(master),
		"scene_id":        uint64(ref),
		"state":           state.String(),
	})
	if s.Next != nil {
		s.Next.SendSceneStateChanged(master, ref, state)
	}
}

func (s EmitSender) SendSceneFlushed(master, ref SceneID, version SceneVersionTag) {
	events.Emit("info", "scene_reference.flushed", "", map[string]interface{}{
		"master_scene_id": uint64(master),
		"scene_id":        uint64(ref),
		"version":         uint64(version),
	})
	if s.Next != nil {
		s.Next.SendSceneFlushed(master, ref, version)
	}
}

func (s EmitSender) SendDataLinked(master, providerScene SceneID, providerID DataSlotID, consumerScene SceneID, consumerID DataSlotID, ok bool) {
	level := "info"
	if !ok {
		level = "error"
	}
	events.Emit(level, "scene_reference.data_linked", "", map[string]interface{}{
		"master_scene_id":   uint64(master),
		"provider_scene_id": uint64(providerScene),
		"provider_id":       uint32(providerID),
		"consumer_scene_id": uint64(consumerScene),
		"consumer_id":       uint32(consumerID),
		"ok":                ok,
	})
	if s.Next != nil {
		s.Next.SendDataLinked(master, providerScene, providerID, consumerScene, consumerID, ok)
	}
}

func (s EmitSender) SendDataUnlinked(master, consumerScene SceneID, consumerID DataSlotID, ok bool) {
	level := "info"
	if !ok {
		level = "error"
	}
	events.Emit(level, "scene_reference.data_unlinked", "", map[string]interface{}{
		"master_scene_id":   uint64(master),
		"consumer_scene_id": uint64(consumerScene),
		"consumer_id":       uint32(consumerID),
		"ok":                ok,
	})
	if s.Next != nil {
		s.Next.SendDataUnlinked(master, consumerScene, consumerID, ok)
	}
}
