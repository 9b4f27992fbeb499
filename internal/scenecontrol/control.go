package scenecontrol

import (
	"sort"

	"github.com/AaronLay10/SentientRenderer/internal/events"
)

// SceneInfo is the requested target and mapping of a scene.
type SceneInfo struct {
	TargetState SceneState            `json:"target_state"`
	Display     DisplayHandle         `json:"display"`
	Buffer      OffscreenBufferHandle `json:"buffer"`
	RenderOrder int32                 `json:"render_order"`
}

// SceneStatus is a snapshot of one scene record, for status queries.
type SceneStatus struct {
	SceneID      SceneID       `json:"scene_id"`
	State        SceneState    `json:"state"`
	CurrentState InternalState `json:"current_state"`
	TargetState  InternalState `json:"target_state"`
	Waiting      Command       `json:"waiting"`
	SceneInfo
}

type mapping struct {
	display     DisplayHandle
	buffer      OffscreenBufferHandle
	renderOrder int32
}

type sceneRecord struct {
	current InternalState
	target  InternalState
	waiting Command
	mapping mapping
}

// ControlLogic drives every scene from its current state toward its requested
// target, one renderer command at a time. It is not safe for concurrent use.
type ControlLogic struct {
	control SceneStateControl
	scenes  map[SceneID]*sceneRecord
	events  []Event
}

// NewControlLogic creates a control logic issuing commands to control.
func NewControlLogic(control SceneStateControl) *ControlLogic {
	return &ControlLogic{
		control: control,
		scenes:  make(map[SceneID]*sceneRecord),
	}
}

func (l *ControlLogic) record(id SceneID) *sceneRecord {
	rec, ok := l.scenes[id]
	if !ok {
		rec = &sceneRecord{current: StateUnpublished, target: StatePublished}
		l.scenes[id] = rec
	}
	return rec
}

// SetSceneState requests the public target state of a scene.
// Requesting the state the scene is already in keeps it where it is.
func (l *ControlLogic) SetSceneState(id SceneID, state SceneState) {
	rec := l.record(id)
	if rec.current >= StatePublished && rec.current.Public() == state {
		rec.target = rec.current
	} else {
		rec.target = targetFor(state)
	}
	l.goToTargetState(id)
}

// SetSceneMapping requests the display of a scene and resets its buffer assignment.
func (l *ControlLogic) SetSceneMapping(id SceneID, display DisplayHandle) {
	rec := l.record(id)
	rec.mapping = mapping{display: display}
}

// SetSceneDisplayBufferAssignment requests the buffer and render order of a scene.
// An already assigned scene is reassigned immediately.
func (l *ControlLogic) SetSceneDisplayBufferAssignment(id SceneID, buffer OffscreenBufferHandle, renderOrder int32) {
	rec := l.record(id)
	rec.mapping.buffer = buffer
	rec.mapping.renderOrder = renderOrder

	if rec.current >= StateMappedAndAssigned && rec.target >= StateMapped {
		l.issue(id, CommandAssign, rec)
	}
}

// SceneInfo returns the requested target and mapping of a scene.
func (l *ControlLogic) SceneInfo(id SceneID) SceneInfo {
	rec, ok := l.scenes[id]
	if !ok {
		return SceneInfo{TargetState: Unavailable}
	}
	return SceneInfo{
		TargetState: rec.target.Public(),
		Display:     rec.mapping.display,
		Buffer:      rec.mapping.buffer,
		RenderOrder: rec.mapping.renderOrder,
	}
}

// SceneStatus returns a snapshot of one scene record.
func (l *ControlLogic) SceneStatus(id SceneID) (SceneStatus, bool) {
	rec, ok := l.scenes[id]
	if !ok {
		return SceneStatus{}, false
	}
	return l.status(id, rec), true
}

// Scenes returns snapshots of all known scenes ordered by id.
func (l *ControlLogic) Scenes() []SceneStatus {
	out := make([]SceneStatus, 0, len(l.scenes))
	for _, id := range l.sortedIDs() {
		out = append(out, l.status(id, l.scenes[id]))
	}
	return out
}

func (l *ControlLogic) status(id SceneID, rec *sceneRecord) SceneStatus {
	return SceneStatus{
		SceneID:      id,
		State:        rec.current.Public(),
		CurrentState: rec.current,
		TargetState:  rec.target,
		Waiting:      rec.waiting,
		SceneInfo:    l.SceneInfo(id),
	}
}

func (l *ControlLogic) sortedIDs() []SceneID {
	ids := make([]SceneID, 0, len(l.scenes))
	for id := range l.scenes {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids
}

// ConsumeEvents appends all pending events to out and clears the queue.
func (l *ControlLogic) ConsumeEvents(out []Event) []Event {
	out = append(out, l.events...)
	l.events = l.events[:0]
	return out
}

// ScenePublished handles a scene becoming available for subscription.
func (l *ControlLogic) ScenePublished(id SceneID) {
	rec := l.record(id)
	if rec.current != StateUnpublished {
		l.warnIgnored(id, "published", rec, "scene already published")
		return
	}
	l.setCurrentState(id, rec, StatePublished)
	l.events = append(l.events, Event{Type: EventScenePublished, SceneID: id})
	events.Emit("info", "scene.published", "", map[string]interface{}{"scene_id": uint64(id)})
	l.goToTargetState(id)
}

// SceneUnpublished handles a scene being withdrawn by its producer.
// Whatever command was outstanding will never be answered meaningfully.
func (l *ControlLogic) SceneUnpublished(id SceneID) {
	rec := l.record(id)
	if rec.current != StatePublished {
		l.warnIgnored(id, "unpublished", rec, "scene not in published state")
		return
	}
	rec.waiting = CommandNone
	l.setCurrentState(id, rec, StateUnpublished)
	l.events = append(l.events, Event{Type: EventSceneUnpublished, SceneID: id})
	events.Emit("info", "scene.unpublished", "", map[string]interface{}{"scene_id": uint64(id)})
}

// SceneSubscribed handles the reply to a subscribe command.
func (l *ControlLogic) SceneSubscribed(id SceneID, result EventResult) {
	l.handleReply(id, CommandSubscribe, result)
}

// SceneUnsubscribed handles the reply to an unsubscribe command, or an unsubscription
// caused by the renderer itself when result is ResultIndirect.
func (l *ControlLogic) SceneUnsubscribed(id SceneID, result EventResult) {
	l.handleReply(id, CommandUnsubscribe, result)
}

// SceneMapped handles the reply to a map command.
func (l *ControlLogic) SceneMapped(id SceneID, result EventResult) {
	l.handleReply(id, CommandMap, result)
}

// SceneUnmapped handles the reply to an unmap command, or an indirect unmap.
func (l *ControlLogic) SceneUnmapped(id SceneID, result EventResult) {
	l.handleReply(id, CommandUnmap, result)
}

// SceneShown handles the reply to a show command.
func (l *ControlLogic) SceneShown(id SceneID, result EventResult) {
	l.handleReply(id, CommandShow, result)
}

// SceneHidden handles the reply to a hide command, or an indirect hide.
func (l *ControlLogic) SceneHidden(id SceneID, result EventResult) {
	l.handleReply(id, CommandHide, result)
}

// DataLinked forwards the outcome of a data link.
func (l *ControlLogic) DataLinked(providerScene SceneID, providerID DataSlotID, consumerScene SceneID, consumerID DataSlotID, ok bool) {
	t := EventDataLinked
	if !ok {
		t = EventDataLinkFailed
	}
	l.events = append(l.events, Event{
		Type:            t,
		ProviderSceneID: providerScene,
		ProviderID:      providerID,
		ConsumerSceneID: consumerScene,
		ConsumerID:      consumerID,
	})
}

// DataUnlinked forwards the outcome of a data unlink.
func (l *ControlLogic) DataUnlinked(consumerScene SceneID, consumerID DataSlotID, ok bool) {
	t := EventDataUnlinked
	if !ok {
		t = EventDataUnlinkFailed
	}
	l.events = append(l.events, Event{
		Type:            t,
		ConsumerSceneID: consumerScene,
		ConsumerID:      consumerID,
	})
}

// SceneFlushed forwards a flush applied by the renderer.
func (l *ControlLogic) SceneFlushed(id SceneID, version SceneVersionTag) {
	l.events = append(l.events, Event{Type: EventSceneFlushed, SceneID: id, Version: version})
}

// SceneExpired forwards a scene exceeding its content expiration.
func (l *ControlLogic) SceneExpired(id SceneID) {
	l.events = append(l.events, Event{Type: EventSceneExpired, SceneID: id})
}

// SceneRecoveredFromExpiration forwards a scene no longer being expired.
func (l *ControlLogic) SceneRecoveredFromExpiration(id SceneID) {
	l.events = append(l.events, Event{Type: EventSceneRecoveredFromExpiration, SceneID: id})
}

func (l *ControlLogic) handleReply(id SceneID, cmd Command, result EventResult) {
	rec := l.record(id)
	outcome := replyOutcomes[cmd]

	if result == ResultIndirect {
		if !outcome.indirect {
			events.Emit("error", "scene.reply_ignored", "indirect result for a forward command", map[string]interface{}{
				"scene_id": uint64(id),
				"reply":    cmd.String(),
			})
			return
		}
		// The renderer did this on its own; an outstanding command stays outstanding.
		l.setCurrentState(id, rec, outcome.to)
		return
	}

	if rec.waiting != cmd {
		l.warnIgnored(id, cmd.String(), rec, "reply does not match the command waiting for reply")
		return
	}
	rec.waiting = CommandNone

	if result == ResultOK {
		l.setCurrentState(id, rec, outcome.to)
	} else {
		events.Emit("error", "scene.command_failed", "", map[string]interface{}{
			"scene_id": uint64(id),
			"command":  cmd.String(),
			"state":    rec.current.String(),
		})
	}
	l.goToTargetState(id)
}

func (l *ControlLogic) goToTargetState(id SceneID) {
	rec := l.record(id)
	if rec.current == rec.target || rec.waiting != CommandNone {
		return
	}

	t := transitions[rec.current]
	e := t.forward
	if rec.target < rec.current {
		e = t.backward
	}
	if !e.valid() {
		return
	}

	if e.cmd == CommandAssign {
		if l.issue(id, CommandAssign, rec) {
			l.setCurrentState(id, rec, e.to)
			l.goToTargetState(id)
		}
		return
	}

	rec.waiting = e.cmd
	l.issue(id, e.cmd, rec)
}

// issue sends cmd to the renderer. Only the assignment reports a result.
func (l *ControlLogic) issue(id SceneID, cmd Command, rec *sceneRecord) bool {
	fields := map[string]interface{}{
		"scene_id": uint64(id),
		"command":  cmd.String(),
	}
	ok := true
	switch cmd {
	case CommandSubscribe:
		l.control.SubscribeScene(id)
	case CommandUnsubscribe:
		l.control.UnsubscribeScene(id, false)
	case CommandMap:
		fields["display"] = uint32(rec.mapping.display)
		l.control.MapScene(id, rec.mapping.display)
	case CommandUnmap:
		l.control.UnmapScene(id)
	case CommandShow:
		l.control.ShowScene(id)
	case CommandHide:
		l.control.HideScene(id)
	case CommandAssign:
		fields["buffer"] = uint32(rec.mapping.buffer)
		fields["render_order"] = rec.mapping.renderOrder
		ok = l.control.AssignSceneToDisplayBuffer(id, rec.mapping.buffer, rec.mapping.renderOrder)
		fields["ok"] = ok
	}
	events.Emit("info", "scene.command", "", fields)
	return ok
}

func (l *ControlLogic) setCurrentState(id SceneID, rec *sceneRecord, state InternalState) {
	previous := rec.current.Public()
	rec.current = state
	// A target kept from a no-op request holds only while the scene stays there.
	if canonical := targetFor(rec.target.Public()); rec.target != canonical && state != rec.target {
		rec.target = canonical
	}
	if state.Public() == previous {
		return
	}
	l.events = append(l.events, Event{Type: EventSceneStateChanged, SceneID: id, State: state.Public()})
	events.Emit("info", "scene.state_changed", "", map[string]interface{}{
		"scene_id": uint64(id),
		"state":    state.Public().String(),
		"previous": previous.String(),
	})
}

func (l *ControlLogic) warnIgnored(id SceneID, reply string, rec *sceneRecord, msg string) {
	events.Emit("warn", "scene.reply_ignored", msg, map[string]interface{}{
		"scene_id": uint64(id),
		"reply":    reply,
		"waiting":  rec.waiting.String(),
		"state":    rec.current.String(),
	})
}
