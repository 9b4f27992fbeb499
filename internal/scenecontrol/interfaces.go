package scenecontrol

// DataLinker links and unlinks data slots across scenes.
type DataLinker interface {
	LinkData(providerScene SceneID, providerID DataSlotID, consumerScene SceneID, consumerID DataSlotID)
	UnlinkData(consumerScene SceneID, consumerID DataSlotID)
}

// SceneStateControl is the command sink the control logic drives the renderer through.
// Every method except AssignSceneToDisplayBuffer is answered asynchronously by a reply.
type SceneStateControl interface {
	DataLinker

	SubscribeScene(id SceneID)
	UnsubscribeScene(id SceneID, indirect bool)
	MapScene(id SceneID, display DisplayHandle)
	UnmapScene(id SceneID)
	ShowScene(id SceneID)
	HideScene(id SceneID)
	AssignSceneToDisplayBuffer(id SceneID, buffer OffscreenBufferHandle, renderOrder int32) bool
}

// SceneLogic is the request surface of ControlLogic used by ReferenceLogic.
type SceneLogic interface {
	SetSceneState(id SceneID, state SceneState)
	SetSceneMapping(id SceneID, display DisplayHandle)
	SetSceneDisplayBufferAssignment(id SceneID, buffer OffscreenBufferHandle, renderOrder int32)
	SceneInfo(id SceneID) SceneInfo
}

// EventSender delivers master-scoped notifications about referenced scenes.
type EventSender interface {
	SendSceneStateChanged(master, ref SceneID, state SceneState)
	SendSceneFlushed(master, ref SceneID, version SceneVersionTag)
	SendDataLinked(master, providerScene SceneID, providerID DataSlotID, consumerScene SceneID, consumerID DataSlotID, ok bool)
	SendDataUnlinked(master, consumerScene SceneID, consumerID DataSlotID, ok bool)
}

// SceneReference is one entry of a master scene's reference table.
type SceneReference struct {
	Handle             ReferenceHandle `json:"handle" yaml:"handle"`
	SceneID            SceneID         `json:"scene_id" yaml:"scene_id"`
	RequestedState     SceneState      `json:"requested_state" yaml:"requested_state"`
	RenderOrder        int32           `json:"render_order" yaml:"render_order"`
	FlushNotifications bool            `json:"flush_notifications" yaml:"flush_notifications"`
}

// RendererScenes is a read-only view of the scenes the renderer currently holds.
type RendererScenes interface {
	HasScene(id SceneID) bool
	// SceneIDs returns all scene ids in ascending order.
	SceneIDs() []SceneID
	// SceneReferences returns the allocated references of master ordered by handle.
	SceneReferences(master SceneID) []SceneReference
	SceneReference(master SceneID, handle ReferenceHandle) (SceneReference, bool)
	LastAppliedVersion(id SceneID) SceneVersionTag
}
