package scenecontrol

import (
	"fmt"
	"sort"
	"sync"
)

// ReferenceHandle indexes a master scene's reference table.
// SelfReference stands for the master scene itself.
type ReferenceHandle uint32

// SelfReference is the zero ReferenceHandle.
const SelfReference ReferenceHandle = 0

// TableUpdateType names a change to the renderer's scene table.
type TableUpdateType string

const (
	UpdateSceneReceived       TableUpdateType = "scene_received"
	UpdateSceneDestroyed      TableUpdateType = "scene_destroyed"
	UpdateReferenceAllocated  TableUpdateType = "reference_allocated"
	UpdateReferenceChanged    TableUpdateType = "reference_changed"
	UpdateReferenceReleased   TableUpdateType = "reference_released"
	UpdateSceneVersionApplied TableUpdateType = "scene_version_applied"
)

// IsTableUpdate reports whether a wire type name is a scene table update.
func IsTableUpdate(t string) bool {
	switch TableUpdateType(t) {
	case UpdateSceneReceived, UpdateSceneDestroyed, UpdateReferenceAllocated,
		UpdateReferenceChanged, UpdateReferenceReleased, UpdateSceneVersionApplied:
		return true
	}
	return false
}

// TableUpdate is one change to the scene table, as reported by the renderer.
type TableUpdate struct {
	Type      TableUpdateType `json:"type"`
	SceneID   SceneID         `json:"scene_id"`
	Reference SceneReference  `json:"reference"`
	Version   SceneVersionTag `json:"version,omitempty"`
}

type tableScene struct {
	version    SceneVersionTag
	references map[ReferenceHandle]SceneReference
}

// SceneTable holds the scenes the renderer has received and their reference tables.
type SceneTable struct {
	mu     sync.RWMutex
	scenes map[SceneID]*tableScene
}

// NewSceneTable creates an empty scene table.
func NewSceneTable() *SceneTable {
	return &SceneTable{
		scenes: make(map[SceneID]*tableScene),
	}
}

// AddScene records a scene received by the renderer. Adding a known scene is a no-op.
func (t *SceneTable) AddScene(id SceneID) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if _, ok := t.scenes[id]; !ok {
		t.scenes[id] = &tableScene{references: make(map[ReferenceHandle]SceneReference)}
	}
}

// RemoveScene forgets a scene and its reference table.
func (t *SceneTable) RemoveScene(id SceneID) {
	t.mu.Lock()
	defer t.mu.Unlock()
	delete(t.scenes, id)
}

// SetReference allocates or updates a reference of master.
func (t *SceneTable) SetReference(master SceneID, ref SceneReference) error {
	if ref.Handle == SelfReference {
		return fmt.Errorf("scene %d: reference handle must not be zero", master)
	}
	if ref.SceneID == InvalidSceneID || ref.SceneID == master {
		return fmt.Errorf("scene %d: invalid referenced scene %d", master, ref.SceneID)
	}

	t.mu.Lock()
	defer t.mu.Unlock()
	s, ok := t.scenes[master]
	if !ok {
		return fmt.Errorf("scene %d: not received", master)
	}
	s.references[ref.Handle] = ref
	return nil
}

// ReleaseReference removes a reference of master.
func (t *SceneTable) ReleaseReference(master SceneID, handle ReferenceHandle) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if s, ok := t.scenes[master]; ok {
		delete(s.references, handle)
	}
}

// SetLastAppliedVersion records the version of the last flush applied to a scene.
func (t *SceneTable) SetLastAppliedVersion(id SceneID, version SceneVersionTag) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if s, ok := t.scenes[id]; ok {
		s.version = version
	}
}

// Apply applies a renderer table update.
func (t *SceneTable) Apply(u TableUpdate) error {
	switch u.Type {
	case UpdateSceneReceived:
		t.AddScene(u.SceneID)
	case UpdateSceneDestroyed:
		t.RemoveScene(u.SceneID)
	case UpdateReferenceAllocated, UpdateReferenceChanged:
		return t.SetReference(u.SceneID, u.Reference)
	case UpdateReferenceReleased:
		t.ReleaseReference(u.SceneID, u.Reference.Handle)
	case UpdateSceneVersionApplied:
		t.SetLastAppliedVersion(u.SceneID, u.Version)
	default:
		return fmt.Errorf("unknown table update: %q", u.Type)
	}
	return nil
}

// HasScene returns true if the renderer holds the scene.
func (t *SceneTable) HasScene(id SceneID) bool {
	t.mu.RLock()
	defer t.mu.RUnlock()
	_, ok := t.scenes[id]
	return ok
}

// SceneIDs returns all held scene ids in ascending order.
func (t *SceneTable) SceneIDs() []SceneID {
	t.mu.RLock()
	defer t.mu.RUnlock()
	ids := make([]SceneID, 0, len(t.scenes))
	for id := range t.scenes {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids
}

// SceneReferences returns the references of master ordered by handle.
func (t *SceneTable) SceneReferences(master SceneID) []SceneReference {
	t.mu.RLock()
	defer t.mu.RUnlock()
	s, ok := t.scenes[master]
	if !ok || len(s.references) == 0 {
		return nil
	}
	refs := make([]SceneReference, 0, len(s.references))
	for _, ref := range s.references {
		refs = append(refs, ref)
	}
	sort.Slice(refs, func(i, j int) bool { return refs[i].Handle < refs[j].Handle })
	return refs
}

// SceneReference returns one reference of master.
func (t *SceneTable) SceneReference(master SceneID, handle ReferenceHandle) (SceneReference, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	s, ok := t.scenes[master]
	if !ok {
		return SceneReference{}, false
	}
	ref, ok := s.references[handle]
	return ref, ok
}

// LastAppliedVersion returns the version of the last flush applied to a scene.
func (t *SceneTable) LastAppliedVersion(id SceneID) SceneVersionTag {
	t.mu.RLock()
	defer t.mu.RUnlock()
	if s, ok := t.scenes[id]; ok {
		return s.version
	}
	return InvalidVersionTag
}
