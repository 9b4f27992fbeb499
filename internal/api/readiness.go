package api

import (
	"net/http"
	"sync"
)

// readinessState tracks the dependencies /ready reports on.
type readinessState struct {
	mu             sync.RWMutex
	loopReady      bool
	mqttConnected  bool
	mqttOptional   bool
	storeConnected bool
	storeOptional  bool
}

var readiness = &readinessState{}

// SetLoopReady marks the tick loop as running.
func SetLoopReady(ready bool) {
	readiness.mu.Lock()
	readiness.loopReady = ready
	readiness.mu.Unlock()
}

// SetMQTTConnected records the broker connection state.
func SetMQTTConnected(connected bool) {
	readiness.mu.Lock()
	readiness.mqttConnected = connected
	readiness.mu.Unlock()
}

// SetStoreConnected records the event store state. optional is set when
// the renderer runs without persistence.
func SetStoreConnected(connected, optional bool) {
	readiness.mu.Lock()
	readiness.storeConnected = connected
	readiness.storeOptional = optional
	readiness.mu.Unlock()
}

// CheckStatus is the state of one readiness check.
type CheckStatus struct {
	Status   string `json:"status"`
	Optional bool   `json:"optional,omitempty"`
}

type ReadinessResponse struct {
	Ready       bool                   `json:"ready"`
	Checks      map[string]CheckStatus `json:"checks"`
	NotReadyMsg string                 `json:"message,omitempty"`
}

func check(ok, optional bool) CheckStatus {
	switch {
	case ok:
		return CheckStatus{Status: "ok", Optional: optional}
	case optional:
		return CheckStatus{Status: "unavailable", Optional: true}
	default:
		return CheckStatus{Status: "not_ready"}
	}
}

func readyHandler(w http.ResponseWriter, r *http.Request) {
	readiness.mu.RLock()
	checks := map[string]CheckStatus{
		"loop":  check(readiness.loopReady, false),
		"mqtt":  check(readiness.mqttConnected, readiness.mqttOptional),
		"store": check(readiness.storeConnected, readiness.storeOptional),
	}
	readiness.mu.RUnlock()

	resp := ReadinessResponse{Ready: true, Checks: checks}
	for _, name := range []string{"loop", "mqtt", "store"} {
		if checks[name].Status == "not_ready" {
			resp.Ready = false
			resp.NotReadyMsg = name + " not ready"
			break
		}
	}

	status := http.StatusOK
	if !resp.Ready {
		status = http.StatusServiceUnavailable
	}
	writeJSON(w, status, resp)
}
