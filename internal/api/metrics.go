package api

import (
	"fmt"
	"io"
	"net/http"
	"os"
	"sync"
	"time"

	"github.com/AaronLay10/SentientRenderer/internal/events"
	sc "github.com/AaronLay10/SentientRenderer/internal/scenecontrol"
	"github.com/AaronLay10/SentientRenderer/internal/version"
)

var metricsState = &MetricsState{}

// MetricsState holds runtime metrics for the /metrics endpoint.
type MetricsState struct {
	mu         sync.RWMutex
	startTime  time.Time
	rendererID string
}

// InitMetrics initializes the metrics system. Must be called at startup.
func InitMetrics() {
	metricsState.mu.Lock()
	defer metricsState.mu.Unlock()
	metricsState.startTime = time.Now()
}

// SetRendererID sets the renderer id for metrics labels and alerts.
func SetRendererID(id string) {
	metricsState.mu.Lock()
	defer metricsState.mu.Unlock()
	metricsState.rendererID = id
}

// GetRendererID returns the current renderer id.
func GetRendererID() string {
	metricsState.mu.RLock()
	defer metricsState.mu.RUnlock()
	return metricsState.rendererID
}

func boolGauge(b bool) int {
	if b {
		return 1
	}
	return 0
}

func writeMetric(w io.Writer, name, mtype, help string, value interface{}, labels string) {
	fmt.Fprintf(w, "# HELP %s %s\n", name, help)
	fmt.Fprintf(w, "# TYPE %s %s\n", name, mtype)
	fmt.Fprintf(w, "%s{%s} %v\n", name, labels, value)
}

// metricsHandler returns Prometheus-compatible metrics in text format.
func metricsHandler(w http.ResponseWriter, r *http.Request) {
	metricsState.mu.RLock()
	startTime := metricsState.startTime
	rendererID := metricsState.rendererID
	metricsState.mu.RUnlock()

	readiness.mu.RLock()
	loopReady := readiness.loopReady
	mqttConnected := readiness.mqttConnected
	storeConnected := readiness.storeConnected
	readiness.mu.RUnlock()

	hostname, _ := os.Hostname()
	if hostname == "" {
		hostname = "unknown"
	}
	labels := fmt.Sprintf(`renderer="%s",instance="%s",version="%s"`, rendererID, hostname, version.Version)

	w.Header().Set("Content-Type", "text/plain; version=0.0.4; charset=utf-8")

	writeMetric(w, "sentient_renderer_uptime_seconds", "gauge",
		"Number of seconds since the renderer service started", time.Since(startTime).Seconds(), labels)
	writeMetric(w, "sentient_renderer_loop_running", "gauge",
		"Whether the tick loop is running (1) or not (0)", boolGauge(loopReady), labels)
	writeMetric(w, "sentient_renderer_events_total", "counter",
		"Total number of events emitted since startup", events.TotalCount(), labels)
	writeMetric(w, "sentient_renderer_events_dropped_total", "counter",
		"Events dropped for slow subscribers", events.DroppedCount(), labels)
	writeMetric(w, "sentient_renderer_mqtt_connected", "gauge",
		"Whether the MQTT broker is connected (1) or not (0)", boolGauge(mqttConnected), labels)
	writeMetric(w, "sentient_renderer_store_connected", "gauge",
		"Whether the event store is available (1) or not (0)", boolGauge(storeConnected), labels)
	writeMetric(w, "sentient_renderer_ws_clients", "gauge",
		"Number of active WebSocket client connections", events.SubscriberCount(), labels)

	c := getController()
	if c == nil {
		return
	}
	stats := c.Stats()

	writeMetric(w, "sentient_renderer_ticks_total", "counter",
		"Number of loop ticks since startup", stats.Ticks, labels)
	writeMetric(w, "sentient_renderer_replies_total", "counter",
		"Number of renderer notifications handled", stats.Replies, labels)
	writeMetric(w, "sentient_renderer_masters", "gauge",
		"Number of live master scenes with references", stats.Masters, labels)

	fmt.Fprintf(w, "# HELP sentient_renderer_scenes Number of scenes per public state\n")
	fmt.Fprintf(w, "# TYPE sentient_renderer_scenes gauge\n")
	for _, s := range []sc.SceneState{sc.Unavailable, sc.Available, sc.Ready, sc.Rendered} {
		fmt.Fprintf(w, "sentient_renderer_scenes{%s,state=\"%s\"} %d\n", labels, s, stats.Scenes[s])
	}
}
