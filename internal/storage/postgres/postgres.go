package postgres

import (
	"database/sql"
	"fmt"
	"os"
	"time"

	_ "github.com/lib/pq"

	"github.com/AaronLay10/SentientRenderer/internal/storage"
)

// Client manages the Postgres connection for event storage.
type Client struct {
	db         *sql.DB
	rendererID string
}

// New creates a new Postgres client using environment variables.
func New(rendererID string) (*Client, error) {
	host := getEnv("PGHOST", "127.0.0.1")
	port := getEnv("PGPORT", "5432")
	user := getEnv("PGUSER", "sentient")
	dbname := getEnv("PGDATABASE", "sentient")
	password := os.Getenv("PGPASSWORD")

	var connStr string
	if password != "" {
		connStr = fmt.Sprintf("host=%s port=%s user=%s password=%s dbname=%s sslmode=disable",
			host, port, user, password, dbname)
	} else {
		connStr = fmt.Sprintf("host=%s port=%s user=%s dbname=%s sslmode=disable",
			host, port, user, dbname)
	}

	db, err := sql.Open("postgres", connStr)
	if err != nil {
		return nil, fmt.Errorf("failed to open postgres: %w", err)
	}

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ping postgres: %w", err)
	}

	client := &Client{
		db:         db,
		rendererID: rendererID,
	}

	if err := client.createTable(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to create renderer_events table: %w", err)
	}

	return client, nil
}

func getEnv(key, defaultVal string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return defaultVal
}

func (c *Client) createTable() error {
	query := `
		CREATE TABLE IF NOT EXISTS renderer_events (
			event_id    BIGSERIAL PRIMARY KEY,
			ts          TIMESTAMPTZ NOT NULL,
			level       TEXT NOT NULL,
			event       TEXT NOT NULL,
			msg         TEXT,
			fields      JSONB,
			renderer_id TEXT NOT NULL,
			session_id  TEXT
		);
		CREATE INDEX IF NOT EXISTS idx_renderer_events_ts ON renderer_events(ts DESC);
		CREATE INDEX IF NOT EXISTS idx_renderer_events_renderer ON renderer_events(renderer_id, event);
	`
	_, err := c.db.Exec(query)
	return err
}

// Append inserts an event into the database.
func (c *Client) Append(ts time.Time, level, event, msg string, fields map[string]interface{}, sessionID string) error {
	fieldsJSON, err := storage.EncodeFields(fields)
	if err != nil {
		return err
	}

	query := `
		INSERT INTO renderer_events (ts, level, event, msg, fields, renderer_id, session_id)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
	`
	_, err = c.db.Exec(query, ts, level, event, storage.Optional(msg), fieldsJSON, c.rendererID, storage.Optional(sessionID))
	return err
}

// Query returns the last N events of this renderer in descending order by timestamp.
func (c *Client) Query(limit int) ([]storage.Record, error) {
	query := `
		SELECT event_id, ts, level, event, msg, fields, renderer_id, session_id
		FROM renderer_events
		WHERE renderer_id = $1
		ORDER BY ts DESC, event_id DESC
		LIMIT $2
	`
	rows, err := c.db.Query(query, c.rendererID, storage.ClampLimit(limit))
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var records []storage.Record
	for rows.Next() {
		var r storage.Record
		var fieldsJSON []byte
		var msg, sessionID sql.NullString

		if err := rows.Scan(&r.EventID, &r.Timestamp, &r.Level, &r.Event, &msg, &fieldsJSON, &r.RendererID, &sessionID); err != nil {
			return nil, err
		}

		if msg.Valid {
			r.Message = &msg.String
		}
		if sessionID.Valid {
			r.SessionID = &sessionID.String
		}
		if err := r.DecodeFields(fieldsJSON); err != nil {
			return nil, err
		}

		records = append(records, r)
	}

	return records, rows.Err()
}

// Close closes the database connection.
func (c *Client) Close() error {
	if c.db != nil {
		return c.db.Close()
	}
	return nil
}
