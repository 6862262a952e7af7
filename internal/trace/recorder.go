package trace

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	json "github.com/goccy/go-json"
	"github.com/rs/zerolog/log"
	_ "modernc.org/sqlite"

	"github.com/thebtf/lobbywatch/internal/privacy"
)

// Direction tells which way a frame travelled.
type Direction string

const (
	DirectionInbound  Direction = "in"
	DirectionOutbound Direction = "out"
)

const schema = `
CREATE TABLE IF NOT EXISTS frames (
	id          INTEGER PRIMARY KEY AUTOINCREMENT,
	direction   TEXT NOT NULL,
	type        TEXT,
	session_id  TEXT,
	payload     TEXT NOT NULL,
	recorded_at INTEGER NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_frames_session ON frames(session_id);
`

// Frame is one recorded WebSocket frame.
type Frame struct {
	ID         int64
	Direction  Direction
	Type       string
	SessionID  string
	Payload    string
	RecordedAt time.Time
}

// Recorder stores every frame in a SQLite database after redaction.
// Write failures are logged and never reach the transport.
type Recorder struct {
	db *sql.DB
}

// OpenRecorder opens (or creates) the trace database at path.
// Use ":memory:" for a throwaway recorder.
func OpenRecorder(path string) (*Recorder, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open trace database: %w", err)
	}
	// A single connection keeps :memory: databases shared and serializes writes.
	db.SetMaxOpenConns(1)

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("trace database ping failed: %w", err)
	}
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to create trace schema: %w", err)
	}
	return &Recorder{db: db}, nil
}

// Inbound records a frame received from the backend.
func (r *Recorder) Inbound(raw []byte) {
	r.record(DirectionInbound, raw)
}

// Outbound records a frame sent to the backend.
func (r *Recorder) Outbound(raw []byte) {
	r.record(DirectionOutbound, raw)
}

func (r *Recorder) record(dir Direction, raw []byte) {
	typ, sid := peek(raw)
	payload := privacy.Redact(raw)
	const q = `INSERT INTO frames (direction, type, session_id, payload, recorded_at) VALUES (?, ?, ?, ?, ?)`
	if _, err := r.db.Exec(q, string(dir), nullString(typ), nullString(sid), string(payload), time.Now().UnixMilli()); err != nil {
		log.Warn().Err(err).Str("direction", string(dir)).Msg("Failed to record frame")
	}
}

// Recent returns up to limit frames, newest first.
func (r *Recorder) Recent(ctx context.Context, limit int) ([]Frame, error) {
	const q = `SELECT id, direction, type, session_id, payload, recorded_at FROM frames ORDER BY id DESC LIMIT ?`
	rows, err := r.db.QueryContext(ctx, q, limit)
	if err != nil {
		return nil, fmt.Errorf("query failed: %w", err)
	}
	defer rows.Close()
	return scanFrames(rows)
}

// BySession returns the frames tagged with sessionID in recording order.
func (r *Recorder) BySession(ctx context.Context, sessionID string) ([]Frame, error) {
	const q = `SELECT id, direction, type, session_id, payload, recorded_at FROM frames WHERE session_id = ? ORDER BY id`
	rows, err := r.db.QueryContext(ctx, q, sessionID)
	if err != nil {
		return nil, fmt.Errorf("query failed: %w", err)
	}
	defer rows.Close()
	return scanFrames(rows)
}

// Close closes the database.
func (r *Recorder) Close() error {
	return r.db.Close()
}

func scanFrames(rows *sql.Rows) ([]Frame, error) {
	var frames []Frame
	for rows.Next() {
		var (
			f        Frame
			dir      string
			typ, sid sql.NullString
			at       int64
		)
		if err := rows.Scan(&f.ID, &dir, &typ, &sid, &f.Payload, &at); err != nil {
			return nil, fmt.Errorf("scan failed: %w", err)
		}
		f.Direction = Direction(dir)
		f.Type = typ.String
		f.SessionID = sid.String
		f.RecordedAt = time.UnixMilli(at)
		frames = append(frames, f)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows iteration error: %w", err)
	}
	return frames, nil
}

// peek extracts the type and sessionId of a frame without validating it.
func peek(raw []byte) (string, string) {
	var head struct {
		Type      string `json:"type"`
		SessionID string `json:"sessionId"`
	}
	if err := json.Unmarshal(raw, &head); err != nil {
		return "", ""
	}
	return head.Type, head.SessionID
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}
