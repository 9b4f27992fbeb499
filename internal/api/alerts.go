package api

import (
	"bytes"
	"context"
	"encoding/json"
	"log"
	"net/http"
	"os"
	"sync"
	"time"
)

// Alert severity levels
const (
	SeverityCritical = "critical"
	SeverityWarning  = "warning"
	SeverityInfo     = "info"
)

// Alert event types
const (
	AlertMQTTDisconnected = "mqtt_disconnected"
	AlertStoreUnavailable = "store_unavailable"
)

// AlertPayload is the JSON structure sent to the webhook.
type AlertPayload struct {
	RendererID string                 `json:"renderer_id"`
	Event      string                 `json:"event"`
	Timestamp  string                 `json:"timestamp"`
	Severity   string                 `json:"severity"`
	Message    string                 `json:"message,omitempty"`
	Details    map[string]interface{} `json:"details,omitempty"`
}

// connectionAlert raises an alert once a connection has been down for delay
// and a recovery alert when it comes back.
type connectionAlert struct {
	event    string
	severity string
	name     string
	delay    time.Duration

	down      bool
	downSince time.Time
	alerted   bool
}

// check records the current state and returns the alert to send, if any.
func (a *connectionAlert) check(connected bool, now time.Time) *AlertPayload {
	if connected {
		recovered := a.down && a.alerted
		a.down = false
		a.downSince = time.Time{}
		a.alerted = false
		if !recovered {
			return nil
		}
		return &AlertPayload{
			Event:    a.event,
			Severity: SeverityInfo,
			Message:  a.name + " connection restored",
			Details:  map[string]interface{}{"recovered_at": now.UTC().Format(time.RFC3339)},
		}
	}

	if !a.down {
		a.down = true
		a.downSince = now
	}
	if a.alerted || now.Sub(a.downSince) < a.delay {
		return nil
	}
	a.alerted = true
	return &AlertPayload{
		Event:    a.event,
		Severity: a.severity,
		Message:  a.name + " unavailable",
		Details: map[string]interface{}{
			"disconnected_since":   a.downSince.UTC().Format(time.RFC3339),
			"disconnected_seconds": int(now.Sub(a.downSince).Seconds()),
		},
	}
}

var (
	alertMu     sync.Mutex
	webhookURL  string
	mqttAlert   = &connectionAlert{event: AlertMQTTDisconnected, severity: SeverityWarning, name: "MQTT broker", delay: 30 * time.Second}
	storeAlert  = &connectionAlert{event: AlertStoreUnavailable, severity: SeverityCritical, name: "event store", delay: 5 * time.Second}
	alertClient = &http.Client{Timeout: 10 * time.Second}
)

func envDuration(name string, def time.Duration) time.Duration {
	if s := os.Getenv(name); s != "" {
		if d, err := time.ParseDuration(s); err == nil {
			return d
		}
	}
	return def
}

// InitAlerts initializes the alert system from environment variables.
func InitAlerts() {
	alertMu.Lock()
	defer alertMu.Unlock()

	webhookURL = os.Getenv("SENTIENT_ALERT_WEBHOOK_URL")
	mqttAlert.delay = envDuration("SENTIENT_MQTT_ALERT_DELAY", 30*time.Second)
	storeAlert.delay = envDuration("SENTIENT_STORE_ALERT_DELAY", 5*time.Second)
	mqttAlert.down, mqttAlert.alerted = false, false
	storeAlert.down, storeAlert.alerted = false, false

	if webhookURL != "" {
		log.Printf("Alerts enabled: webhook URL configured (mqtt_delay=%s, store_delay=%s)",
			mqttAlert.delay, storeAlert.delay)
	}
}

// GetAlertWebhookURL returns the configured webhook URL.
func GetAlertWebhookURL() string {
	alertMu.Lock()
	defer alertMu.Unlock()
	return webhookURL
}

// SendAlert sends an alert to the configured webhook (best-effort, non-blocking).
// Without a webhook the alert is logged.
func SendAlert(p AlertPayload) {
	url := GetAlertWebhookURL()
	if url == "" {
		log.Printf("[ALERT] %s severity=%s msg=%q details=%v", p.Event, p.Severity, p.Message, p.Details)
		return
	}

	p.RendererID = GetRendererID()
	if p.RendererID == "" {
		p.RendererID = "unknown"
	}
	if p.Timestamp == "" {
		p.Timestamp = time.Now().UTC().Format(time.RFC3339)
	}
	go sendWebhook(url, p)
}

func sendWebhook(url string, payload AlertPayload) {
	body, err := json.Marshal(payload)
	if err != nil {
		log.Printf("alert: failed to marshal payload: %v", err)
		return
	}

	resp, err := alertClient.Post(url, "application/json", bytes.NewReader(body))
	if err != nil {
		log.Printf("alert: webhook POST failed: %v", err)
		return
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		log.Printf("alert: webhook returned status %d", resp.StatusCode)
	}
}

// CheckAndAlert evaluates the connection states and sends due alerts.
func CheckAndAlert(mqttConnected, storeConnected bool, now time.Time) {
	alertMu.Lock()
	var due []*AlertPayload
	if p := mqttAlert.check(mqttConnected, now); p != nil {
		due = append(due, p)
	}
	if p := storeAlert.check(storeConnected, now); p != nil {
		due = append(due, p)
	}
	alertMu.Unlock()

	for _, p := range due {
		SendAlert(*p)
	}
}

// StartAlertMonitor checks the readiness state every interval until ctx is done.
// An optional store is never alerted on.
func StartAlertMonitor(ctx context.Context, interval time.Duration) {
	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()

		for {
			select {
			case <-ctx.Done():
				return
			case now := <-ticker.C:
				readiness.mu.RLock()
				mqttConnected := readiness.mqttConnected
				storeConnected := readiness.storeConnected || readiness.storeOptional
				readiness.mu.RUnlock()

				CheckAndAlert(mqttConnected, storeConnected, now)
			}
		}
	}()
}
