package events

import (
	"encoding/json"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/AaronLay10/SentientRenderer/internal/storage"
)

var buffer = NewRingBuffer(256)

var (
	store         storage.Store
	storeMu       sync.RWMutex
	storeErrorLog bool
	sessionID     string

	total atomic.Uint64
)

// SetStore sets the event store used for persistence. nil disables persistence.
func SetStore(s storage.Store) {
	storeMu.Lock()
	store = s
	storeErrorLog = false
	storeMu.Unlock()
}

// GetStore returns the current event store (for API queries and restore).
func GetStore() storage.Store {
	storeMu.RLock()
	defer storeMu.RUnlock()
	return store
}

// SetSession tags every persisted event with id, the current process run.
func SetSession(id string) {
	storeMu.Lock()
	sessionID = id
	storeMu.Unlock()
}

type Event struct {
	Timestamp string                 `json:"ts"`
	Level     string                 `json:"level"`
	Name      string                 `json:"event"`
	Message   string                 `json:"msg,omitempty"`
	Fields    map[string]interface{} `json:"fields,omitempty"`
}

func Emit(level, name, msg string, fields map[string]interface{}) ([]byte, error) {
	if err := Validate(name); err != nil {
		return nil, err
	}

	ts := time.Now().UTC()
	e := Event{
		Timestamp: ts.Format(time.RFC3339Nano),
		Level:     level,
		Name:      name,
		Message:   msg,
		Fields:    fields,
	}

	buffer.Add(e)
	total.Add(1)

	storeMu.RLock()
	s := store
	session := sessionID
	storeMu.RUnlock()

	if s != nil {
		if err := s.Append(ts, level, name, msg, fields, session); err != nil {
			reportStoreError(err)
		}
	}

	broadcast(e)

	b, err := json.Marshal(e)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal event: %w", err)
	}

	return b, nil
}

// reportStoreError records the first persistence failure as system.error.
// It goes straight to the ring buffer: Emit would try the store again.
func reportStoreError(err error) {
	storeMu.Lock()
	if storeErrorLog {
		storeMu.Unlock()
		return
	}
	storeErrorLog = true
	storeMu.Unlock()

	e := Event{
		Timestamp: time.Now().UTC().Format(time.RFC3339Nano),
		Level:     "error",
		Name:      "system.error",
		Message:   "event store append failed",
		Fields: map[string]interface{}{
			"error": err.Error(),
		},
	}
	buffer.Add(e)
	total.Add(1)
	broadcast(e)
}

// StoreErrorLogged reports whether a persistence failure has been seen since the store was set.
func StoreErrorLogged() bool {
	storeMu.RLock()
	defer storeMu.RUnlock()
	return storeErrorLog
}

func Snapshot() []Event {
	return buffer.Snapshot()
}

// TotalCount returns the number of events emitted since startup.
func TotalCount() uint64 {
	return total.Load()
}

// Clear resets the event buffer. Used for testing.
func Clear() {
	buffer.Clear()
}
