package scenecontrol

import (
	"sort"

	"github.com/AaronLay10/SentientRenderer/internal/events"
)

type masterScene struct {
	pendingActions    []Action
	references        map[SceneID]ReferenceHandle
	flushNotified     map[SceneID]struct{}
	expired           map[SceneID]struct{}
	reportedAsExpired bool
	destroyed         bool
}

func newMasterScene() *masterScene {
	return &masterScene{
		references:    make(map[SceneID]ReferenceHandle),
		flushNotified: make(map[SceneID]struct{}),
		expired:       make(map[SceneID]struct{}),
	}
}

// ReferenceLogic makes scenes referenced by a master scene follow the master's
// mapping and target state, runs the master's queued data-link actions and turns
// renderer events about referenced scenes into master-scoped notifications.
// It is not safe for concurrent use.
type ReferenceLogic struct {
	scenes RendererScenes
	logic  SceneLogic
	linker DataLinker
	sender EventSender

	masters map[SceneID]*masterScene
	owners  map[SceneID]SceneID // referenced scene -> master

	expirationChanged []SceneID
}

// NewReferenceLogic creates a reference logic.
func NewReferenceLogic(scenes RendererScenes, logic SceneLogic, linker DataLinker, sender EventSender) *ReferenceLogic {
	return &ReferenceLogic{
		scenes:  scenes,
		logic:   logic,
		linker:  linker,
		sender:  sender,
		masters: make(map[SceneID]*masterScene),
		owners:  make(map[SceneID]SceneID),
	}
}

func (l *ReferenceLogic) master(id SceneID) *masterScene {
	m, ok := l.masters[id]
	if !ok {
		m = newMasterScene()
		l.masters[id] = m
	}
	return m
}

// AddActions queues actions on a master scene. They run on the next Update.
func (l *ReferenceLogic) AddActions(master SceneID, actions []Action) {
	m := l.master(master)
	m.pendingActions = append(m.pendingActions, actions...)
}

// PendingActions returns the number of actions queued on a master scene.
func (l *ReferenceLogic) PendingActions(master SceneID) int {
	if m, ok := l.masters[master]; ok {
		return len(m.pendingActions)
	}
	return 0
}

// HasAnyReferencedScenes returns true if any master scene is still alive.
func (l *ReferenceLogic) HasAnyReferencedScenes() bool {
	for _, m := range l.masters {
		if !m.destroyed {
			return true
		}
	}
	return false
}

// Masters returns the ids of all live master scenes in ascending order.
func (l *ReferenceLogic) Masters() []SceneID {
	var ids []SceneID
	for _, id := range l.sortedMasters() {
		if !l.masters[id].destroyed {
			ids = append(ids, id)
		}
	}
	return ids
}

// Update propagates master state onto references and runs queued actions.
// Call it once per tick.
func (l *ReferenceLogic) Update() {
	l.updateReferencedScenes()
	l.cleanupDestroyedMasterScenes()
	l.cleanupReleasedReferences()
	l.executePendingActions()
}

func (l *ReferenceLogic) updateReferencedScenes() {
	for _, masterID := range l.scenes.SceneIDs() {
		refs := l.scenes.SceneReferences(masterID)
		if len(refs) == 0 {
			continue
		}

		m := l.master(masterID)
		m.destroyed = false
		masterInfo := l.logic.SceneInfo(masterID)

		for _, ref := range refs {
			l.adopt(masterID, m, ref)
			refInfo := l.logic.SceneInfo(ref.SceneID)

			if masterInfo.Display != InvalidDisplay {
				order := masterInfo.RenderOrder + ref.RenderOrder
				if refInfo.Display != masterInfo.Display {
					l.logic.SetSceneMapping(ref.SceneID, masterInfo.Display)
					l.logic.SetSceneDisplayBufferAssignment(ref.SceneID, masterInfo.Buffer, order)
				} else if refInfo.Buffer != masterInfo.Buffer || refInfo.RenderOrder != order {
					l.logic.SetSceneDisplayBufferAssignment(ref.SceneID, masterInfo.Buffer, order)
				}
			}

			target := ref.RequestedState
			if masterInfo.TargetState < target {
				target = masterInfo.TargetState
			}
			if refInfo.TargetState != target {
				l.logic.SetSceneState(ref.SceneID, target)
			}

			l.updateFlushNotifications(masterID, m, ref)
		}
	}
}

// adopt records ref as belonging to master, taking it away from a previous master.
func (l *ReferenceLogic) adopt(masterID SceneID, m *masterScene, ref SceneReference) {
	if prev, ok := l.owners[ref.SceneID]; ok && prev != masterID {
		if pm, ok := l.masters[prev]; ok {
			l.forget(prev, pm, ref.SceneID)
		}
	}
	l.owners[ref.SceneID] = masterID
	m.references[ref.SceneID] = ref.Handle
}

func (l *ReferenceLogic) forget(masterID SceneID, m *masterScene, refID SceneID) {
	delete(m.references, refID)
	delete(m.flushNotified, refID)
	delete(m.expired, refID)
	l.markExpirationChanged(masterID)
}

func (l *ReferenceLogic) updateFlushNotifications(masterID SceneID, m *masterScene, ref SceneReference) {
	_, notified := m.flushNotified[ref.SceneID]
	switch {
	case ref.FlushNotifications && !notified:
		m.flushNotified[ref.SceneID] = struct{}{}
		if v := l.scenes.LastAppliedVersion(ref.SceneID); v != InvalidVersionTag {
			l.sender.SendSceneFlushed(masterID, ref.SceneID, v)
		}
	case !ref.FlushNotifications && notified:
		delete(m.flushNotified, ref.SceneID)
	}
}

func (l *ReferenceLogic) cleanupDestroyedMasterScenes() {
	for _, masterID := range l.sortedMasters() {
		m := l.masters[masterID]
		if m.destroyed || l.scenes.HasScene(masterID) {
			continue
		}

		for _, refID := range sortedRefs(m.references) {
			if l.scenes.HasScene(refID) {
				l.logic.SetSceneState(refID, Unavailable)
			}
		}

		events.Emit("info", "scene_reference.master_destroyed", "", map[string]interface{}{
			"master_scene_id":   uint64(masterID),
			"references":        len(m.references),
			"discarded_actions": len(m.pendingActions),
		})

		m.pendingActions = nil
		m.flushNotified = make(map[SceneID]struct{})
		m.expired = make(map[SceneID]struct{})
		m.reportedAsExpired = false
		m.destroyed = true
	}
}

func (l *ReferenceLogic) cleanupReleasedReferences() {
	for _, masterID := range l.sortedMasters() {
		m := l.masters[masterID]
		if m.destroyed {
			continue
		}
		for _, refID := range sortedRefs(m.references) {
			handle := m.references[refID]
			if ref, ok := l.scenes.SceneReference(masterID, handle); ok && ref.SceneID == refID {
				continue
			}

			l.forget(masterID, m, refID)
			if l.owners[refID] == masterID {
				delete(l.owners, refID)
			}

			kept := m.pendingActions[:0]
			for _, a := range m.pendingActions {
				if !a.uses(handle) {
					kept = append(kept, a)
				}
			}
			m.pendingActions = kept
		}
	}
}

func (l *ReferenceLogic) executePendingActions() {
	for _, masterID := range l.sortedMasters() {
		m := l.masters[masterID]
		if m.destroyed || len(m.pendingActions) == 0 {
			continue
		}
		for _, a := range m.pendingActions {
			l.execute(masterID, a)
		}
		m.pendingActions = nil
	}
}

func (l *ReferenceLogic) execute(masterID SceneID, a Action) {
	consumer, ok := l.resolve(masterID, a.ConsumerScene)
	if !ok {
		l.actionError(masterID, a, a.ConsumerScene)
		return
	}

	switch a.Type {
	case ActionLinkData:
		provider, ok := l.resolve(masterID, a.ProviderScene)
		if !ok {
			l.actionError(masterID, a, a.ProviderScene)
			return
		}
		l.linker.LinkData(provider, a.ProviderID, consumer, a.ConsumerID)
		events.Emit("info", "scene_reference.action", "", map[string]interface{}{
			"master_scene_id":   uint64(masterID),
			"action":            a.Type.String(),
			"provider_scene_id": uint64(provider),
			"provider_id":       uint32(a.ProviderID),
			"consumer_scene_id": uint64(consumer),
			"consumer_id":       uint32(a.ConsumerID),
		})
	case ActionUnlinkData:
		l.linker.UnlinkData(consumer, a.ConsumerID)
		events.Emit("info", "scene_reference.action", "", map[string]interface{}{
			"master_scene_id":   uint64(masterID),
			"action":            a.Type.String(),
			"consumer_scene_id": uint64(consumer),
			"consumer_id":       uint32(a.ConsumerID),
		})
	}
}

func (l *ReferenceLogic) resolve(masterID SceneID, handle ReferenceHandle) (SceneID, bool) {
	if handle == SelfReference {
		return masterID, true
	}
	ref, ok := l.scenes.SceneReference(masterID, handle)
	if !ok {
		return InvalidSceneID, false
	}
	return ref.SceneID, true
}

func (l *ReferenceLogic) actionError(masterID SceneID, a Action, handle ReferenceHandle) {
	events.Emit("error", "scene_reference.action", "unknown reference handle", map[string]interface{}{
		"master_scene_id": uint64(masterID),
		"action":          a.Type.String(),
		"handle":          uint32(handle),
	})
}

// ExtractAndSendSceneReferenceEvents removes the events about referenced scenes
// from evts and sends them through the event sender as notifications of their
// master. Masters whose references became expired or all recovered get an
// EventSceneExpired or EventSceneRecoveredFromExpiration appended. The returned
// slice shares evts' backing array.
func (l *ReferenceLogic) ExtractAndSendSceneReferenceEvents(evts []Event) []Event {
	kept := evts[:0]
	for _, e := range evts {
		if !l.route(e) {
			kept = append(kept, e)
		}
	}

	for _, masterID := range l.expirationChanged {
		m, ok := l.masters[masterID]
		if !ok {
			continue
		}
		anyExpired := len(m.expired) > 0
		switch {
		case anyExpired && !m.reportedAsExpired:
			m.reportedAsExpired = true
			kept = append(kept, Event{Type: EventSceneExpired, SceneID: masterID})
			events.Emit("warn", "scene_reference.master_expired", "", map[string]interface{}{
				"master_scene_id": uint64(masterID),
				"expired":         len(m.expired),
			})
		case !anyExpired && m.reportedAsExpired:
			m.reportedAsExpired = false
			kept = append(kept, Event{Type: EventSceneRecoveredFromExpiration, SceneID: masterID})
			events.Emit("info", "scene_reference.master_recovered", "", map[string]interface{}{
				"master_scene_id": uint64(masterID),
			})
		}
	}
	l.expirationChanged = l.expirationChanged[:0]

	return kept
}

// route handles e if it concerns a referenced scene and reports whether it did.
func (l *ReferenceLogic) route(e Event) bool {
	switch e.Type {
	case EventSceneStateChanged:
		masterID, m, ok := l.findMaster(e.SceneID)
		if !ok {
			return false
		}
		l.sender.SendSceneStateChanged(masterID, e.SceneID, e.State)
		if e.State == Unavailable {
			delete(m.expired, e.SceneID)
			l.markExpirationChanged(masterID)
		}
		return true

	case EventSceneFlushed:
		masterID, m, ok := l.findMaster(e.SceneID)
		if !ok {
			return false
		}
		if _, notify := m.flushNotified[e.SceneID]; notify {
			l.sender.SendSceneFlushed(masterID, e.SceneID, e.Version)
		}
		return true

	case EventDataLinked, EventDataLinkFailed:
		masterID, _, ok := l.findMaster(e.ProviderSceneID)
		if !ok {
			masterID, _, ok = l.findMaster(e.ConsumerSceneID)
		}
		if !ok {
			return false
		}
		l.sender.SendDataLinked(masterID, e.ProviderSceneID, e.ProviderID, e.ConsumerSceneID, e.ConsumerID, e.Type == EventDataLinked)
		return true

	case EventDataUnlinked, EventDataUnlinkFailed:
		masterID, _, ok := l.findMaster(e.ConsumerSceneID)
		if !ok {
			return false
		}
		l.sender.SendDataUnlinked(masterID, e.ConsumerSceneID, e.ConsumerID, e.Type == EventDataUnlinked)
		return true

	case EventSceneExpired, EventSceneRecoveredFromExpiration:
		masterID, m, ok := l.findMaster(e.SceneID)
		if !ok {
			return false
		}
		if e.Type == EventSceneExpired {
			m.expired[e.SceneID] = struct{}{}
		} else {
			delete(m.expired, e.SceneID)
		}
		l.markExpirationChanged(masterID)
		return true

	case EventSceneAssignedToBuffer, EventSceneAssignToBufferFailed,
		EventDataProviderCreated, EventDataProviderDestroyed,
		EventDataConsumerCreated, EventDataConsumerDestroyed:
		_, _, ok := l.findMaster(e.SceneID)
		return ok

	case EventBufferLinked, EventBufferLinkFailed:
		_, _, ok := l.findMaster(e.ConsumerSceneID)
		return ok

	default:
		return false
	}
}

func (l *ReferenceLogic) findMaster(refID SceneID) (SceneID, *masterScene, bool) {
	if refID == InvalidSceneID {
		return InvalidSceneID, nil, false
	}
	masterID, ok := l.owners[refID]
	if !ok {
		return InvalidSceneID, nil, false
	}
	m, ok := l.masters[masterID]
	if !ok {
		return InvalidSceneID, nil, false
	}
	return masterID, m, true
}

func (l *ReferenceLogic) markExpirationChanged(masterID SceneID) {
	for _, id := range l.expirationChanged {
		if id == masterID {
			return
		}
	}
	l.expirationChanged = append(l.expirationChanged, masterID)
}

func (l *ReferenceLogic) sortedMasters() []SceneID {
	ids := make([]SceneID, 0, len(l.masters))
	for id := range l.masters {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids
}

func sortedRefs(refs map[SceneID]ReferenceHandle) []SceneID {
	ids := make([]SceneID, 0, len(refs))
	for id := range refs {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids
}
