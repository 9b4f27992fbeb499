// Package renderer runs the scene control core on a single goroutine. Renderer
// notifications, API requests and reference propagation all happen in Tick.
package renderer

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/AaronLay10/SentientRenderer/internal/events"
	sc "github.com/AaronLay10/SentientRenderer/internal/scenecontrol"
	"github.com/AaronLay10/SentientRenderer/internal/storage/influxdb"
)

// ErrInvalidScene is returned for requests naming the zero scene id.
var ErrInvalidScene = errors.New("invalid scene id")

// EventPublisher receives the client-facing events of every tick.
type EventPublisher interface {
	PublishEvent(e sc.Event)
}

// Mapping is a requested display and buffer assignment.
type Mapping struct {
	Display     sc.DisplayHandle         `json:"display"`
	Buffer      sc.OffscreenBufferHandle `json:"buffer"`
	RenderOrder int32                    `json:"render_order"`
}

// SceneRequest is a request for one scene. Nil parts are left unchanged.
type SceneRequest struct {
	SceneID sc.SceneID
	State   *sc.SceneState
	Mapping *Mapping
}

// Stats is a snapshot of the loop, refreshed every tick.
type Stats struct {
	Ticks   uint64
	Replies uint64
	Scenes  map[sc.SceneState]int
	Masters int
}

type inbound struct {
	reply  *sc.Reply
	update *sc.TableUpdate
}

type call struct {
	fn   func()
	done chan struct{}
}

// Loop owns the scene table, the control logic and the reference logic.
type Loop struct {
	table     *sc.SceneTable
	logic     *sc.ControlLogic
	refs      *sc.ReferenceLogic
	publisher EventPublisher
	influx    *influxdb.Client
	interval  time.Duration

	mu    sync.Mutex
	inbox []inbound

	calls chan call

	evts       []sc.Event
	lastPublic map[sc.SceneID]sc.SceneState

	statsMu sync.RWMutex
	stats   Stats
}

// Options configures a Loop. Publisher and Influx may be nil.
type Options struct {
	Control   sc.SceneStateControl
	Sender    sc.EventSender
	Publisher EventPublisher
	Influx    *influxdb.Client
	Interval  time.Duration
}

// NewLoop builds the core around opts.Control. Reference notifications go
// to the event log and then to opts.Sender.
func NewLoop(opts Options) *Loop {
	table := sc.NewSceneTable()
	logic := sc.NewControlLogic(opts.Control)
	interval := opts.Interval
	if interval <= 0 {
		interval = 16 * time.Millisecond
	}
	return &Loop{
		table:      table,
		logic:      logic,
		refs:       sc.NewReferenceLogic(table, logic, opts.Control, sc.EmitSender{Next: opts.Sender}),
		publisher:  opts.Publisher,
		influx:     opts.Influx,
		interval:   interval,
		calls:      make(chan call, 64),
		lastPublic: make(map[sc.SceneID]sc.SceneState),
		stats:      Stats{Scenes: map[sc.SceneState]int{}},
	}
}

// DeliverReply queues a renderer notification for the next tick.
func (l *Loop) DeliverReply(r sc.Reply) {
	l.mu.Lock()
	l.inbox = append(l.inbox, inbound{reply: &r})
	l.mu.Unlock()
}

// DeliverTableUpdate queues a scene table update for the next tick.
func (l *Loop) DeliverTableUpdate(u sc.TableUpdate) {
	l.mu.Lock()
	l.inbox = append(l.inbox, inbound{update: &u})
	l.mu.Unlock()
}

// Run ticks until ctx is done.
func (l *Loop) Run(ctx context.Context) {
	events.Emit("info", "loop.started", "", map[string]interface{}{
		"interval_ms": l.interval.Milliseconds(),
	})

	ticker := time.NewTicker(l.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			l.statsMu.RLock()
			ticks := l.stats.Ticks
			l.statsMu.RUnlock()
			events.Emit("info", "loop.stopped", "", map[string]interface{}{"ticks": ticks})
			return
		case <-ticker.C:
			l.Tick()
		}
	}
}

// Do runs fn on the loop goroutine during the next tick and waits for it.
// If ctx ends first, fn may still run later.
func (l *Loop) Do(ctx context.Context, fn func()) error {
	c := call{fn: fn, done: make(chan struct{})}
	select {
	case l.calls <- c:
	case <-ctx.Done():
		return ctx.Err()
	}
	select {
	case <-c.done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Tick runs one iteration. It must only be called from one goroutine.
func (l *Loop) Tick() {
	start := time.Now()

	replies := l.drainInbox()
	l.runCalls()

	l.refs.Update()

	l.evts = l.logic.ConsumeEvents(l.evts[:0])
	l.evts = l.refs.ExtractAndSendSceneReferenceEvents(l.evts)
	for _, e := range l.evts {
		l.dispatch(e, start)
	}

	l.updateStats(replies)
	if replies > 0 || len(l.evts) > 0 {
		l.influx.WriteLoopStats(influxdb.LoopStats{
			Duration: time.Since(start),
			Replies:  replies,
			Events:   len(l.evts),
			Scenes:   len(l.lastPublic),
			Masters:  len(l.refs.Masters()),
		}, start)
	}
}

func (l *Loop) drainInbox() int {
	l.mu.Lock()
	pending := l.inbox
	l.inbox = nil
	l.mu.Unlock()

	for _, in := range pending {
		if in.update != nil {
			if err := l.table.Apply(*in.update); err != nil {
				events.Emit("error", "renderer.table_update", err.Error(), map[string]interface{}{
					"type":     string(in.update.Type),
					"scene_id": uint64(in.update.SceneID),
				})
			}
			continue
		}
		// Unknown replies are logged by the control logic.
		_ = l.logic.HandleReply(*in.reply)
	}
	return len(pending)
}

func (l *Loop) runCalls() {
	for {
		select {
		case c := <-l.calls:
			c.fn()
			close(c.done)
		default:
			return
		}
	}
}

func (l *Loop) dispatch(e sc.Event, ts time.Time) {
	if e.Type == sc.EventSceneStateChanged {
		previous := l.lastPublic[e.SceneID]
		l.lastPublic[e.SceneID] = e.State
		l.influx.WriteSceneState(e.SceneID, e.State, previous, ts)
	}
	if l.publisher != nil {
		l.publisher.PublishEvent(e)
	}
}

func (l *Loop) updateStats(replies int) {
	counts := make(map[sc.SceneState]int)
	for _, s := range l.logic.Scenes() {
		counts[s.State]++
	}
	masters := len(l.refs.Masters())

	l.statsMu.Lock()
	l.stats.Ticks++
	l.stats.Replies += uint64(replies)
	l.stats.Scenes = counts
	l.stats.Masters = masters
	l.statsMu.Unlock()
}

// Stats returns the snapshot taken at the end of the last tick.
func (l *Loop) Stats() Stats {
	l.statsMu.RLock()
	defer l.statsMu.RUnlock()
	s := l.stats
	s.Scenes = make(map[sc.SceneState]int, len(l.stats.Scenes))
	for k, v := range l.stats.Scenes {
		s.Scenes[k] = v
	}
	return s
}

// Apply applies a request directly. Use it only before Run starts or from
// inside Do. When record is set the request is written to the event log as
// scene.requested so it can be restored.
func (l *Loop) Apply(req SceneRequest, source string, record bool) error {
	if req.SceneID == sc.InvalidSceneID {
		return ErrInvalidScene
	}

	fields := map[string]interface{}{
		"scene_id": uint64(req.SceneID),
		"source":   source,
	}
	if m := req.Mapping; m != nil {
		l.logic.SetSceneMapping(req.SceneID, m.Display)
		l.logic.SetSceneDisplayBufferAssignment(req.SceneID, m.Buffer, m.RenderOrder)
		fields["display"] = uint32(m.Display)
		fields["buffer"] = uint32(m.Buffer)
		fields["render_order"] = m.RenderOrder
	}
	if req.State != nil {
		l.logic.SetSceneState(req.SceneID, *req.State)
		fields["state"] = req.State.String()
	}

	if record {
		events.Emit("info", "scene.requested", "", fields)
	}
	return nil
}

// Request applies req on the loop goroutine and records it.
func (l *Loop) Request(ctx context.Context, req SceneRequest, source string) error {
	if req.SceneID == sc.InvalidSceneID {
		return ErrInvalidScene
	}
	var err error
	if doErr := l.Do(ctx, func() { err = l.Apply(req, source, true) }); doErr != nil {
		return doErr
	}
	return err
}

// Scenes returns the status of all known scenes.
func (l *Loop) Scenes(ctx context.Context) ([]sc.SceneStatus, error) {
	var out []sc.SceneStatus
	err := l.Do(ctx, func() { out = l.logic.Scenes() })
	return out, err
}

// Scene returns the status of one scene.
func (l *Loop) Scene(ctx context.Context, id sc.SceneID) (sc.SceneStatus, bool, error) {
	var (
		out sc.SceneStatus
		ok  bool
	)
	err := l.Do(ctx, func() { out, ok = l.logic.SceneStatus(id) })
	return out, ok, err
}

// QueueActions queues data-link actions on a master scene.
func (l *Loop) QueueActions(ctx context.Context, master sc.SceneID, actions []sc.Action) error {
	if master == sc.InvalidSceneID {
		return ErrInvalidScene
	}
	if len(actions) == 0 {
		return fmt.Errorf("no actions")
	}
	return l.Do(ctx, func() { l.refs.AddActions(master, actions) })
}

// References returns the reference table of a master scene, as last reported by the renderer.
func (l *Loop) References(master sc.SceneID) []sc.SceneReference {
	return l.table.SceneReferences(master)
}

// KnownScenes returns the ids of all scenes the renderer holds.
func (l *Loop) KnownScenes() []sc.SceneID {
	return l.table.SceneIDs()
}
