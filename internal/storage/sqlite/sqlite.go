// Package sqlite stores renderer events in a local SQLite file, for renderers
// running without a Postgres server.
package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "github.com/mattn/go-sqlite3" // SQLite driver

	"github.com/AaronLay10/SentientRenderer/internal/storage"
)

const (
	dirPermissions  = 0750
	filePermissions = 0600

	busyTimeoutMillis = 5000
	connectionTimeout = 5 * time.Second
)

// Client is an event store backed by SQLite.
type Client struct {
	db         *sql.DB
	path       string
	rendererID string
}

// Open opens or creates the database at path.
func Open(path, rendererID string) (*Client, error) {
	if err := os.MkdirAll(filepath.Dir(path), dirPermissions); err != nil {
		return nil, fmt.Errorf("creating database directory: %w", err)
	}

	connStr := fmt.Sprintf("file:%s?_busy_timeout=%d&_journal_mode=WAL&_synchronous=NORMAL", path, busyTimeoutMillis)
	db, err := sql.Open("sqlite3", connStr)
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}

	// SQLite only supports one writer.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	ctx, cancel := context.WithTimeout(context.Background(), connectionTimeout)
	defer cancel()
	if err := db.PingContext(ctx); err != nil {
		db.Close() //nolint:errcheck
		return nil, fmt.Errorf("verifying database connection: %w", err)
	}

	c := &Client{db: db, path: path, rendererID: rendererID}
	if err := c.createTable(); err != nil {
		db.Close() //nolint:errcheck
		return nil, fmt.Errorf("creating renderer_events table: %w", err)
	}

	_ = os.Chmod(path, filePermissions) //nolint:errcheck

	return c, nil
}

func (c *Client) createTable() error {
	_, err := c.db.Exec(`
		CREATE TABLE IF NOT EXISTS renderer_events (
			event_id    INTEGER PRIMARY KEY AUTOINCREMENT,
			ts          DATETIME NOT NULL,
			level       TEXT NOT NULL,
			event       TEXT NOT NULL,
			msg         TEXT,
			fields      TEXT,
			renderer_id TEXT NOT NULL,
			session_id  TEXT
		);
		CREATE INDEX IF NOT EXISTS idx_renderer_events_ts ON renderer_events(ts DESC);
	`)
	return err
}

// Append inserts an event.
func (c *Client) Append(ts time.Time, level, event, msg string, fields map[string]interface{}, sessionID string) error {
	fieldsJSON, err := storage.EncodeFields(fields)
	if err != nil {
		return err
	}
	var fieldsText *string
	if fieldsJSON != nil {
		s := string(fieldsJSON)
		fieldsText = &s
	}

	_, err = c.db.Exec(
		`INSERT INTO renderer_events (ts, level, event, msg, fields, renderer_id, session_id)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`,
		ts.UTC(), level, event, storage.Optional(msg), fieldsText, c.rendererID, storage.Optional(sessionID),
	)
	return err
}

// Query returns the last N events of this renderer, newest first.
func (c *Client) Query(limit int) ([]storage.Record, error) {
	rows, err := c.db.Query(
		`SELECT event_id, ts, level, event, msg, fields, renderer_id, session_id
		 FROM renderer_events
		 WHERE renderer_id = ?
		 ORDER BY ts DESC, event_id DESC
		 LIMIT ?`,
		c.rendererID, storage.ClampLimit(limit),
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var records []storage.Record
	for rows.Next() {
		var r storage.Record
		var msg, fields, sessionID sql.NullString
		if err := rows.Scan(&r.EventID, &r.Timestamp, &r.Level, &r.Event, &msg, &fields, &r.RendererID, &sessionID); err != nil {
			return nil, err
		}
		if msg.Valid {
			r.Message = &msg.String
		}
		if sessionID.Valid {
			r.SessionID = &sessionID.String
		}
		if fields.Valid {
			if err := r.DecodeFields([]byte(fields.String)); err != nil {
				return nil, err
			}
		}
		records = append(records, r)
	}
	return records, rows.Err()
}

// Path returns the database file path.
func (c *Client) Path() string {
	return c.path
}

// Close closes the database.
func (c *Client) Close() error {
	if c.db == nil {
		return nil
	}
	if err := c.db.Close(); err != nil {
		return fmt.Errorf("closing database: %w", err)
	}
	return nil
}
