package influxdb

import (
	"time"

	"github.com/influxdata/influxdb-client-go/v2/api/write"

	"github.com/AaronLay10/SentientRenderer/internal/scenecontrol"
)

// Measurement names.
const (
	MeasurementSceneState = "scene_state"
	MeasurementLoop       = "renderer_loop"
)

// LoopStats summarises one loop tick.
type LoopStats struct {
	Duration time.Duration
	Replies  int // renderer notifications drained
	Events   int // events emitted after reference extraction
	Scenes   int // known scenes
	Masters  int // live master scenes
}

// WriteSceneState records a public state change of a scene.
func (c *Client) WriteSceneState(id scenecontrol.SceneID, state, previous scenecontrol.SceneState, ts time.Time) {
	if !c.IsConnected() {
		return
	}
	c.writeAPI.WritePoint(sceneStatePoint(c.rendererID, id, state, previous, ts))
}

// WriteLoopStats records the statistics of one tick.
func (c *Client) WriteLoopStats(stats LoopStats, ts time.Time) {
	if !c.IsConnected() {
		return
	}
	c.writeAPI.WritePoint(loopPoint(c.rendererID, stats, ts))
}

func sceneStatePoint(rendererID string, id scenecontrol.SceneID, state, previous scenecontrol.SceneState, ts time.Time) *write.Point {
	return write.NewPoint(
		MeasurementSceneState,
		map[string]string{
			"renderer_id": rendererID,
			"state":       state.String(),
		},
		map[string]interface{}{
			"scene_id": int64(id),
			"level":    int64(state),
			"previous": int64(previous),
		},
		ts,
	)
}

func loopPoint(rendererID string, stats LoopStats, ts time.Time) *write.Point {
	return write.NewPoint(
		MeasurementLoop,
		map[string]string{
			"renderer_id": rendererID,
		},
		map[string]interface{}{
			"tick_us": stats.Duration.Microseconds(),
			"replies": int64(stats.Replies),
			"events":  int64(stats.Events),
			"scenes":  int64(stats.Scenes),
			"masters": int64(stats.Masters),
		},
		ts,
	)
}
