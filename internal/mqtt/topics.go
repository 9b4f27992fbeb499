package mqtt

import (
	"encoding/json"
	"time"
)

// Topics builds the topic names of one renderer under a prefix.
type Topics struct {
	Prefix     string
	RendererID string
}

func (t Topics) base() string {
	return t.Prefix + "/" + t.RendererID
}

// Commands carries scene commands to the renderer.
func (t Topics) Commands() string { return t.base() + "/commands" }

// Replies carries renderer notifications and scene table updates.
func (t Topics) Replies() string { return t.base() + "/replies" }

// Events carries client-facing scene events and reference notifications.
func (t Topics) Events() string { return t.base() + "/events" }

// Status carries the retained online/offline status of the service.
func (t Topics) Status() string { return t.base() + "/status" }

type status struct {
	Status    string `json:"status"`
	ClientID  string `json:"client_id"`
	Reason    string `json:"reason,omitempty"`
	Timestamp string `json:"timestamp"`
}

func statusPayload(clientID string, online bool, reason string) []byte {
	s := status{
		Status:    "offline",
		ClientID:  clientID,
		Reason:    reason,
		Timestamp: time.Now().UTC().Format(time.RFC3339),
	}
	if online {
		s.Status = "online"
	}
	b, _ := json.Marshal(s)
	return b
}
