package renderer

import (
	"sort"

	"github.com/AaronLay10/SentientRenderer/internal/config"
	"github.com/AaronLay10/SentientRenderer/internal/events"
	sc "github.com/AaronLay10/SentientRenderer/internal/scenecontrol"
	"github.com/AaronLay10/SentientRenderer/internal/storage"
)

// DefaultRestoreLimit is the default number of events to load for restore.
const DefaultRestoreLimit = 1000

// RestoreRequests loads recorded scene requests from the event store and
// folds them into the last request per scene, ordered by scene id.
// Returns nil if store is nil. The count is the number of rows read.
func RestoreRequests(store storage.Store, limit int) ([]SceneRequest, int, error) {
	if store == nil {
		return nil, 0, nil
	}
	if limit <= 0 {
		limit = DefaultRestoreLimit
	}

	rows, err := store.Query(limit)
	if err != nil {
		return nil, 0, err
	}
	if len(rows) == 0 {
		return nil, 0, nil
	}

	// Query returns newest first.
	for i, j := 0, len(rows)-1; i < j; i, j = i+1, j-1 {
		rows[i], rows[j] = rows[j], rows[i]
	}

	folded := make(map[sc.SceneID]*SceneRequest)
	for _, row := range rows {
		if row.Event != "scene.requested" {
			continue
		}
		id, ok := uintField(row.Fields, "scene_id")
		if !ok || id == 0 {
			continue
		}
		sceneID := sc.SceneID(id)
		req, ok := folded[sceneID]
		if !ok {
			req = &SceneRequest{SceneID: sceneID}
			folded[sceneID] = req
		}

		if s, ok := row.Fields["state"].(string); ok {
			if state, err := sc.ParseSceneState(s); err == nil {
				req.State = &state
			}
		}
		display, hasDisplay := uintField(row.Fields, "display")
		buffer, hasBuffer := uintField(row.Fields, "buffer")
		order, _ := intField(row.Fields, "render_order")
		if hasDisplay && hasBuffer {
			req.Mapping = &Mapping{
				Display:     sc.DisplayHandle(display),
				Buffer:      sc.OffscreenBufferHandle(buffer),
				RenderOrder: int32(order),
			}
		}
	}

	out := make([]SceneRequest, 0, len(folded))
	for _, req := range folded {
		out = append(out, *req)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].SceneID < out[j].SceneID })
	return out, len(rows), nil
}

// ConfigRequests converts the scenes of renderer.yaml into requests. A scene
// without a display keeps its current mapping.
func ConfigRequests(scenes []config.SceneConfig) []SceneRequest {
	out := make([]SceneRequest, 0, len(scenes))
	for _, s := range scenes {
		state := s.State
		req := SceneRequest{SceneID: s.ID, State: &state}
		if s.Display != sc.InvalidDisplay {
			req.Mapping = &Mapping{Display: s.Display, Buffer: s.Buffer, RenderOrder: s.RenderOrder}
		}
		out = append(out, req)
	}
	return out
}

// ApplyRestored applies restored requests without recording them again.
// It must run before Run starts.
func (l *Loop) ApplyRestored(reqs []SceneRequest) int {
	applied := 0
	for _, req := range reqs {
		if err := l.Apply(req, "restore", false); err == nil {
			applied++
		}
	}
	return applied
}

// EmitStartupRestore emits the system.startup_restore event.
func EmitStartupRestore(restored, rows int, rendererID string) {
	events.Emit("info", "system.startup_restore", "", map[string]interface{}{
		"restored":    restored,
		"rows":        rows,
		"renderer_id": rendererID,
	})
}

func uintField(fields map[string]interface{}, key string) (uint64, bool) {
	switch v := fields[key].(type) {
	case float64:
		if v < 0 {
			return 0, false
		}
		return uint64(v), true
	case uint64:
		return v, true
	case uint32:
		return uint64(v), true
	case int:
		if v < 0 {
			return 0, false
		}
		return uint64(v), true
	case int64:
		if v < 0 {
			return 0, false
		}
		return uint64(v), true
	}
	return 0, false
}

func intField(fields map[string]interface{}, key string) (int64, bool) {
	switch v := fields[key].(type) {
	case float64:
		return int64(v), true
	case int:
		return int64(v), true
	case int32:
		return int64(v), true
	case int64:
		return v, true
	case uint32:
		return int64(v), true
	}
	return 0, false
}
