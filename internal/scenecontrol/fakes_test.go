package scenecontrol

import "fmt"

// fakeControl records every command as a short string.
type fakeControl struct {
	commands    []string
	assignFails bool
	outstanding map[SceneID]Command
	overlap     bool // a command arrived while another was outstanding
}

func newFakeControl() *fakeControl {
	return &fakeControl{outstanding: make(map[SceneID]Command)}
}

func (f *fakeControl) track(id SceneID, cmd Command) {
	if f.outstanding[id] != CommandNone {
		f.overlap = true
	}
	f.outstanding[id] = cmd
}

// reply clears the outstanding command of a scene, as the renderer answering it would.
func (f *fakeControl) reply(id SceneID) Command {
	cmd := f.outstanding[id]
	delete(f.outstanding, id)
	return cmd
}

func (f *fakeControl) SubscribeScene(id SceneID) {
	f.track(id, CommandSubscribe)
	f.commands = append(f.commands, fmt.Sprintf("subscribe %d", id))
}

func (f *fakeControl) UnsubscribeScene(id SceneID, indirect bool) {
	f.track(id, CommandUnsubscribe)
	f.commands = append(f.commands, fmt.Sprintf("unsubscribe %d", id))
}

func (f *fakeControl) MapScene(id SceneID, display DisplayHandle) {
	f.track(id, CommandMap)
	f.commands = append(f.commands, fmt.Sprintf("map %d display=%d", id, display))
}

func (f *fakeControl) UnmapScene(id SceneID) {
	f.track(id, CommandUnmap)
	f.commands = append(f.commands, fmt.Sprintf("unmap %d", id))
}

func (f *fakeControl) ShowScene(id SceneID) {
	f.track(id, CommandShow)
	f.commands = append(f.commands, fmt.Sprintf("show %d", id))
}

func (f *fakeControl) HideScene(id SceneID) {
	f.track(id, CommandHide)
	f.commands = append(f.commands, fmt.Sprintf("hide %d", id))
}

func (f *fakeControl) AssignSceneToDisplayBuffer(id SceneID, buffer OffscreenBufferHandle, renderOrder int32) bool {
	f.commands = append(f.commands, fmt.Sprintf("assign %d buffer=%d order=%d", id, buffer, renderOrder))
	return !f.assignFails
}

func (f *fakeControl) LinkData(providerScene SceneID, providerID DataSlotID, consumerScene SceneID, consumerID DataSlotID) {
	f.commands = append(f.commands, fmt.Sprintf("link %d:%d -> %d:%d", providerScene, providerID, consumerScene, consumerID))
}

func (f *fakeControl) UnlinkData(consumerScene SceneID, consumerID DataSlotID) {
	f.commands = append(f.commands, fmt.Sprintf("unlink %d:%d", consumerScene, consumerID))
}

func (f *fakeControl) take() []string {
	out := f.commands
	f.commands = nil
	return out
}

// fakeLogic records the requests ReferenceLogic makes and answers SceneInfo from them.
type fakeLogic struct {
	infos    map[SceneID]SceneInfo
	requests []string
}

func newFakeLogic() *fakeLogic {
	return &fakeLogic{infos: make(map[SceneID]SceneInfo)}
}

func (f *fakeLogic) SetSceneState(id SceneID, state SceneState) {
	info := f.infos[id]
	info.TargetState = state
	f.infos[id] = info
	f.requests = append(f.requests, fmt.Sprintf("state %d %s", id, state))
}

func (f *fakeLogic) SetSceneMapping(id SceneID, display DisplayHandle) {
	info := f.infos[id]
	info.Display = display
	info.Buffer = InvalidBuffer
	info.RenderOrder = 0
	f.infos[id] = info
	f.requests = append(f.requests, fmt.Sprintf("mapping %d display=%d", id, display))
}

func (f *fakeLogic) SetSceneDisplayBufferAssignment(id SceneID, buffer OffscreenBufferHandle, renderOrder int32) {
	info := f.infos[id]
	info.Buffer = buffer
	info.RenderOrder = renderOrder
	f.infos[id] = info
	f.requests = append(f.requests, fmt.Sprintf("assignment %d buffer=%d order=%d", id, buffer, renderOrder))
}

func (f *fakeLogic) SceneInfo(id SceneID) SceneInfo {
	return f.infos[id]
}

func (f *fakeLogic) take() []string {
	out := f.requests
	f.requests = nil
	return out
}

// fakeSender records master-scoped notifications.
type fakeSender struct {
	sent []string
}

func (f *fakeSender) SendSceneStateChanged(master, ref SceneID, state SceneState) {
	f.sent = append(f.sent, fmt.Sprintf("state master=%d ref=%d %s", master, ref, state))
}

func (f *fakeSender) SendSceneFlushed(master, ref SceneID, version SceneVersionTag) {
	f.sent = append(f.sent, fmt.Sprintf("flushed master=%d ref=%d version=%d", master, ref, version))
}

func (f *fakeSender) SendDataLinked(master, providerScene SceneID, providerID DataSlotID, consumerScene SceneID, consumerID DataSlotID, ok bool) {
	f.sent = append(f.sent, fmt.Sprintf("linked master=%d %d:%d -> %d:%d ok=%t", master, providerScene, providerID, consumerScene, consumerID, ok))
}

func (f *fakeSender) SendDataUnlinked(master, consumerScene SceneID, consumerID DataSlotID, ok bool) {
	f.sent = append(f.sent, fmt.Sprintf("unlinked master=%d %d:%d ok=%t", master, consumerScene, consumerID, ok))
}

func (f *fakeSender) take() []string {
	out := f.sent
	f.sent = nil
	return out
}

func equalStrings(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}
