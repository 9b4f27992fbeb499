// Package storage defines the persisted event record shared by the event store backends.
package storage

import (
	"encoding/json"
	"fmt"
	"time"
)

// Query limits applied by every backend.
const (
	DefaultQueryLimit = 200
	MaxQueryLimit     = 10000
)

// Record is an event as stored by a backend.
type Record struct {
	EventID    int64                  `json:"event_id"`
	Timestamp  time.Time              `json:"ts"`
	Level      string                 `json:"level"`
	Event      string                 `json:"event"`
	Message    *string                `json:"msg,omitempty"`
	Fields     map[string]interface{} `json:"fields,omitempty"`
	RendererID string                 `json:"renderer_id"`
	SessionID  *string                `json:"session_id,omitempty"`
}

// Store persists events and returns the most recent ones.
type Store interface {
	Append(ts time.Time, level, event, msg string, fields map[string]interface{}, sessionID string) error
	// Query returns up to limit records, newest first.
	Query(limit int) ([]Record, error)
	Close() error
}

// ClampLimit applies the default and maximum query limits.
func ClampLimit(limit int) int {
	if limit <= 0 {
		return DefaultQueryLimit
	}
	if limit > MaxQueryLimit {
		return MaxQueryLimit
	}
	return limit
}

// EncodeFields marshals event fields for a JSON column. Nil fields encode as nil.
func EncodeFields(fields map[string]interface{}) ([]byte, error) {
	if fields == nil {
		return nil, nil
	}
	b, err := json.Marshal(fields)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal fields: %w", err)
	}
	return b, nil
}

// DecodeFields unmarshals a JSON column into r.Fields.
func (r *Record) DecodeFields(b []byte) error {
	if len(b) == 0 {
		return nil
	}
	if err := json.Unmarshal(b, &r.Fields); err != nil {
		return fmt.Errorf("failed to unmarshal fields: %w", err)
	}
	return nil
}

// Optional returns nil for an empty string.
func Optional(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}
