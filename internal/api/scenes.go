package api

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/AaronLay10/SentientRenderer/internal/events"
	"github.com/AaronLay10/SentientRenderer/internal/renderer"
	sc "github.com/AaronLay10/SentientRenderer/internal/scenecontrol"
)

const maxBodyBytes = 64 << 10

// SceneResponse is the status of one scene. TargetState is the public state
// the scene is being driven to.
type SceneResponse struct {
	SceneID      sc.SceneID               `json:"scene_id"`
	State        sc.SceneState            `json:"state"`
	TargetState  sc.SceneState            `json:"target_state"`
	CurrentState sc.InternalState         `json:"current_state"`
	Waiting      sc.Command               `json:"waiting"`
	Display      sc.DisplayHandle         `json:"display"`
	Buffer       sc.OffscreenBufferHandle `json:"buffer"`
	RenderOrder  int32                    `json:"render_order"`
	References   []sc.SceneReference      `json:"references,omitempty"`
}

func sceneResponse(s sc.SceneStatus, refs []sc.SceneReference) SceneResponse {
	return SceneResponse{
		SceneID:      s.SceneID,
		State:        s.State,
		TargetState:  s.SceneInfo.TargetState,
		CurrentState: s.CurrentState,
		Waiting:      s.Waiting,
		Display:      s.Display,
		Buffer:       s.Buffer,
		RenderOrder:  s.RenderOrder,
		References:   refs,
	}
}

type StateRequest struct {
	State string `json:"state"`
}

type MappingRequest struct {
	Display     *uint32 `json:"display"`
	Buffer      uint32  `json:"buffer"`
	RenderOrder int32   `json:"render_order"`
}

type OperatorResponse struct {
	OK    bool   `json:"ok"`
	Error string `json:"error,omitempty"`
}

// sceneContext returns the controller and a bounded context, or writes 503.
func sceneContext(w http.ResponseWriter, r *http.Request) (Controller, context.Context, context.CancelFunc, bool) {
	c := getController()
	if c == nil {
		writeError(w, http.StatusServiceUnavailable, "renderer loop not running")
		return nil, nil, nil, false
	}
	ctx, cancel := context.WithTimeout(r.Context(), requestTimeout)
	return c, ctx, cancel, true
}

func sceneIDParam(w http.ResponseWriter, r *http.Request) (sc.SceneID, bool) {
	id, err := strconv.ParseUint(chi.URLParam(r, "id"), 10, 64)
	if err != nil || id == 0 {
		writeError(w, http.StatusBadRequest, "invalid scene id")
		return 0, false
	}
	return sc.SceneID(id), true
}

func decodeBody(w http.ResponseWriter, r *http.Request, v interface{}) bool {
	if err := json.NewDecoder(io.LimitReader(r.Body, maxBodyBytes)).Decode(v); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON")
		return false
	}
	return true
}

func loopError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, renderer.ErrInvalidScene):
		writeError(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, context.DeadlineExceeded), errors.Is(err, context.Canceled):
		writeError(w, http.StatusServiceUnavailable, "renderer loop busy")
	default:
		writeError(w, http.StatusInternalServerError, err.Error())
	}
}

func listScenesHandler(w http.ResponseWriter, r *http.Request) {
	c, ctx, cancel, ok := sceneContext(w, r)
	if !ok {
		return
	}
	defer cancel()

	scenes, err := c.Scenes(ctx)
	if err != nil {
		loopError(w, err)
		return
	}
	out := make([]SceneResponse, 0, len(scenes))
	for _, s := range scenes {
		out = append(out, sceneResponse(s, nil))
	}
	writeJSON(w, http.StatusOK, out)
}

func getSceneHandler(w http.ResponseWriter, r *http.Request) {
	id, ok := sceneIDParam(w, r)
	if !ok {
		return
	}
	c, ctx, cancel, ok := sceneContext(w, r)
	if !ok {
		return
	}
	defer cancel()

	s, found, err := c.Scene(ctx, id)
	if err != nil {
		loopError(w, err)
		return
	}
	if !found {
		writeError(w, http.StatusNotFound, "scene not found")
		return
	}
	writeJSON(w, http.StatusOK, sceneResponse(s, c.References(id)))
}

func setSceneStateHandler(w http.ResponseWriter, r *http.Request) {
	id, ok := sceneIDParam(w, r)
	if !ok {
		return
	}
	var req StateRequest
	if !decodeBody(w, r, &req) {
		return
	}
	state, err := sc.ParseSceneState(req.State)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	c, ctx, cancel, ok := sceneContext(w, r)
	if !ok {
		return
	}
	defer cancel()

	events.Emit("info", "operator.request", "", map[string]interface{}{
		"scene_id": uint64(id),
		"state":    state.String(),
		"role":     string(roleFrom(r)),
	})
	if err := c.Request(ctx, renderer.SceneRequest{SceneID: id, State: &state}, "api"); err != nil {
		loopError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, OperatorResponse{OK: true})
}

func setSceneMappingHandler(w http.ResponseWriter, r *http.Request) {
	id, ok := sceneIDParam(w, r)
	if !ok {
		return
	}
	var req MappingRequest
	if !decodeBody(w, r, &req) {
		return
	}
	if req.Display == nil {
		writeError(w, http.StatusBadRequest, "display required")
		return
	}

	c, ctx, cancel, ok := sceneContext(w, r)
	if !ok {
		return
	}
	defer cancel()

	m := &renderer.Mapping{
		Display:     sc.DisplayHandle(*req.Display),
		Buffer:      sc.OffscreenBufferHandle(req.Buffer),
		RenderOrder: req.RenderOrder,
	}
	events.Emit("info", "operator.request", "", map[string]interface{}{
		"scene_id":     uint64(id),
		"display":      *req.Display,
		"buffer":       req.Buffer,
		"render_order": req.RenderOrder,
		"role":         string(roleFrom(r)),
	})
	if err := c.Request(ctx, renderer.SceneRequest{SceneID: id, Mapping: m}, "api"); err != nil {
		loopError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, OperatorResponse{OK: true})
}

func sceneActionsHandler(w http.ResponseWriter, r *http.Request) {
	id, ok := sceneIDParam(w, r)
	if !ok {
		return
	}
	body, err := io.ReadAll(io.LimitReader(r.Body, maxBodyBytes))
	if err != nil {
		writeError(w, http.StatusBadRequest, "unreadable body")
		return
	}
	actions, err := sc.ParseActions(body)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if len(actions) == 0 {
		writeError(w, http.StatusBadRequest, "no actions")
		return
	}

	c, ctx, cancel, ok := sceneContext(w, r)
	if !ok {
		return
	}
	defer cancel()

	events.Emit("info", "operator.request", "", map[string]interface{}{
		"scene_id": uint64(id),
		"actions":  len(actions),
		"role":     string(roleFrom(r)),
	})
	if err := c.QueueActions(ctx, id, actions); err != nil {
		loopError(w, err)
		return
	}
	writeJSON(w, http.StatusAccepted, OperatorResponse{OK: true})
}
