package events

import (
	"errors"
	"testing"
	"time"

	"github.com/AaronLay10/SentientRenderer/internal/storage"
)

func TestSubscribeUnsubscribe(t *testing.T) {
	initial := SubscriberCount()

	sub1 := Subscribe()
	sub2 := Subscribe()
	if SubscriberCount() != initial+2 {
		t.Errorf("expected %d subscribers, got %d", initial+2, SubscriberCount())
	}

	Unsubscribe(sub1)
	if SubscriberCount() != initial+1 {
		t.Errorf("expected %d subscribers after unsubscribe, got %d", initial+1, SubscriberCount())
	}

	Unsubscribe(sub2)
	Unsubscribe(sub2)
	if SubscriberCount() != initial {
		t.Errorf("expected %d subscribers after all unsubscribed, got %d", initial, SubscriberCount())
	}
}

func TestBroadcastToSubscribers(t *testing.T) {
	sub1 := Subscribe()
	sub2 := Subscribe()
	defer Unsubscribe(sub1)
	defer Unsubscribe(sub2)

	Emit("info", "scene.state_changed", "", map[string]interface{}{"scene_id": uint64(7), "state": "ready"})

	for i, sub := range []Subscriber{sub1, sub2} {
		select {
		case e := <-sub:
			if e.Name != "scene.state_changed" {
				t.Errorf("sub%d: expected 'scene.state_changed', got '%s'", i+1, e.Name)
			}
			if e.Fields["scene_id"] != uint64(7) {
				t.Errorf("sub%d: expected scene_id 7, got '%v'", i+1, e.Fields["scene_id"])
			}
		case <-time.After(100 * time.Millisecond):
			t.Errorf("sub%d: timeout waiting for broadcast event", i+1)
		}
	}
}

func TestSlowSubscriberDropsEvents(t *testing.T) {
	sub := Subscribe()
	defer Unsubscribe(sub)

	before := DroppedCount()
	for i := 0; i < cap(sub)+5; i++ {
		Emit("debug", "loop.tick", "", nil)
	}
	if got := DroppedCount() - before; got != 5 {
		t.Errorf("expected 5 dropped deliveries, got %d", got)
	}
}

func TestRecentEvents(t *testing.T) {
	Clear()

	for i := 0; i < 10; i++ {
		Emit("info", "scene.command", "", map[string]interface{}{"i": i})
	}

	recent := RecentEvents(5)
	if len(recent) != 5 {
		t.Fatalf("expected 5 recent events, got %d", len(recent))
	}
	if recent[0].Fields["i"] != 5 {
		t.Errorf("expected first recent event i=5, got %v", recent[0].Fields["i"])
	}

	if all := RecentEvents(100); len(all) != 10 {
		t.Errorf("expected 10 events when requesting 100, got %d", len(all))
	}
	if zero := RecentEvents(0); len(zero) != 10 {
		t.Errorf("expected 10 events when requesting 0, got %d", len(zero))
	}
}

func TestRingBufferWraps(t *testing.T) {
	rb := NewRingBuffer(3)
	for _, name := range []string{"a", "b", "c", "d"} {
		rb.Add(Event{Name: name})
	}
	snap := rb.Snapshot()
	if rb.Len() != 3 || snap[0].Name != "b" || snap[2].Name != "d" {
		t.Errorf("unexpected snapshot %+v", snap)
	}
	rb.Clear()
	if rb.Len() != 0 || len(rb.Snapshot()) != 0 {
		t.Error("expected empty buffer after clear")
	}
}

func TestUnknownEventRejected(t *testing.T) {
	before := TotalCount()
	if _, err := Emit("info", "scene.solved", "", nil); err == nil {
		t.Error("expected error for unknown event")
	}
	if TotalCount() != before {
		t.Error("rejected event must not be counted")
	}
	if _, err := Emit("info", "system.startup", "", nil); err != nil {
		t.Errorf("unexpected error: %v", err)
	}
	if TotalCount() != before+1 {
		t.Errorf("expected count %d, got %d", before+1, TotalCount())
	}
}

type memoryStore struct {
	records []storage.Record
	err     error
}

func (m *memoryStore) Append(ts time.Time, level, event, msg string, fields map[string]interface{}, sessionID string) error {
	if m.err != nil {
		return m.err
	}
	m.records = append(m.records, storage.Record{
		Timestamp: ts,
		Level:     level,
		Event:     event,
		Message:   storage.Optional(msg),
		Fields:    fields,
		SessionID: storage.Optional(sessionID),
	})
	return nil
}

func (m *memoryStore) Query(limit int) ([]storage.Record, error) { return m.records, nil }
func (m *memoryStore) Close() error                               { return nil }

func TestEmitPersistsToStore(t *testing.T) {
	s := &memoryStore{}
	SetStore(s)
	SetSession("run-1")
	defer SetStore(nil)
	defer SetSession("")

	Emit("info", "scene.requested", "", map[string]interface{}{"scene_id": uint64(3)})

	if len(s.records) != 1 {
		t.Fatalf("expected 1 persisted record, got %d", len(s.records))
	}
	r := s.records[0]
	if r.Event != "scene.requested" || r.SessionID == nil || *r.SessionID != "run-1" {
		t.Errorf("unexpected record %+v", r)
	}
	if GetStore() != storage.Store(s) {
		t.Error("GetStore returned a different store")
	}
}

func TestStoreFailureReportedOnce(t *testing.T) {
	Clear()
	SetStore(&memoryStore{err: errors.New("disk full")})
	defer SetStore(nil)

	Emit("info", "scene.command", "", nil)
	Emit("info", "scene.command", "", nil)

	var errorsSeen int
	for _, e := range Snapshot() {
		if e.Name == "system.error" {
			errorsSeen++
			if e.Fields["error"] != "disk full" {
				t.Errorf("unexpected error field %v", e.Fields["error"])
			}
		}
	}
	if errorsSeen != 1 {
		t.Errorf("expected one system.error, got %d", errorsSeen)
	}
	if !StoreErrorLogged() {
		t.Error("expected store error flag")
	}
}

func TestCloseAllSubscribers(t *testing.T) {
	CloseAllSubscribers()

	sub1 := Subscribe()
	sub2 := Subscribe()
	if SubscriberCount() != 2 {
		t.Errorf("expected 2 subscribers, got %d", SubscriberCount())
	}

	CloseAllSubscribers()

	_, ok1 := <-sub1
	_, ok2 := <-sub2
	if ok1 || ok2 {
		t.Error("expected all channels to be closed")
	}
	if SubscriberCount() != 0 {
		t.Errorf("expected 0 subscribers after CloseAllSubscribers, got %d", SubscriberCount())
	}

	Unsubscribe(sub1)
}
