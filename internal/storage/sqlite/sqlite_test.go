package sqlite

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/AaronLay10/SentientRenderer/internal/storage"
)

var _ storage.Store = (*Client)(nil)

func openTest(t *testing.T, rendererID string, path string) *Client {
	t.Helper()
	c, err := Open(path, rendererID)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	t.Cleanup(func() { c.Close() })
	return c
}

func TestAppendAndQuery(t *testing.T) {
	c := openTest(t, "renderer-1", filepath.Join(t.TempDir(), "data", "events.db"))

	base := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)
	for i := 0; i < 5; i++ {
		fields := map[string]interface{}{"scene_id": i}
		if err := c.Append(base.Add(time.Duration(i)*time.Second), "info", "scene.requested", "", fields, ""); err != nil {
			t.Fatalf("append %d: %v", i, err)
		}
	}
	if err := c.Append(base.Add(time.Minute), "error", "system.error", "boom", nil, "s1"); err != nil {
		t.Fatalf("append: %v", err)
	}

	records, err := c.Query(3)
	if err != nil {
		t.Fatalf("query: %v", err)
	}
	if len(records) != 3 {
		t.Fatalf("expected 3 records, got %d", len(records))
	}

	newest := records[0]
	if newest.Event != "system.error" || newest.Message == nil || *newest.Message != "boom" {
		t.Errorf("unexpected newest record %+v", newest)
	}
	if newest.SessionID == nil || *newest.SessionID != "s1" {
		t.Errorf("expected session s1, got %v", newest.SessionID)
	}
	if newest.Fields != nil {
		t.Errorf("expected nil fields, got %v", newest.Fields)
	}
	if !newest.Timestamp.Equal(base.Add(time.Minute)) {
		t.Errorf("expected ts %v, got %v", base.Add(time.Minute), newest.Timestamp)
	}

	if records[1].Fields["scene_id"] != float64(4) || records[2].Fields["scene_id"] != float64(3) {
		t.Errorf("expected newest first, got %v then %v", records[1].Fields, records[2].Fields)
	}
	if records[1].Message != nil {
		t.Errorf("empty message must be stored as null")
	}
}

func TestQueryIsScopedToRenderer(t *testing.T) {
	path := filepath.Join(t.TempDir(), "events.db")
	a := openTest(t, "a", path)
	if err := a.Append(time.Now(), "info", "loop.started", "", nil, ""); err != nil {
		t.Fatalf("append: %v", err)
	}
	a.Close()

	b := openTest(t, "b", path)
	records, err := b.Query(0)
	if err != nil {
		t.Fatalf("query: %v", err)
	}
	if len(records) != 0 {
		t.Errorf("expected no records for renderer b, got %d", len(records))
	}
}
