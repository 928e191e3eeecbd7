// Package store caches server state in a local SQLite database so
// session lists, transcripts, and mission summaries stay browsable and
// searchable without a round trip.
package store

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"github.com/agime-dev/agimectl/internal/api"
	"github.com/agime-dev/agimectl/internal/mission"
	"github.com/agime-dev/agimectl/internal/transcript"
)

// Store provides SQLite-backed caching of sessions and missions.
type Store struct {
	db *sql.DB
}

// CachedSession is one locally cached session snapshot.
type CachedSession struct {
	SessionID    string
	AgentID      string
	Title        string
	Preview      string
	IsProcessing bool
	TotalTokens  int64
	UpdatedAt    time.Time
	FetchedAt    time.Time
}

// SearchHit is one transcript message matching a search term.
type SearchHit struct {
	SessionID string
	Role      string
	Content   string
	CreatedAt time.Time
}

// Open opens the SQLite database at dbPath and creates tables if they
// don't exist.
func Open(dbPath string) (*Store, error) {
	db, err := sql.Open("sqlite3", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	if err := createTables(db); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("create tables: %w", err)
	}

	return &Store{db: db}, nil
}

// Close closes the database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

func createTables(db *sql.DB) error {
	schema := `
	CREATE TABLE IF NOT EXISTS sessions (
		session_id TEXT PRIMARY KEY,
		agent_id TEXT NOT NULL DEFAULT '',
		title TEXT NOT NULL DEFAULT '',
		preview TEXT NOT NULL DEFAULT '',
		is_processing INTEGER NOT NULL DEFAULT 0,
		total_tokens INTEGER NOT NULL DEFAULT 0,
		updated_at DATETIME,
		fetched_at DATETIME
	);

	CREATE TABLE IF NOT EXISTS messages (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		session_id TEXT NOT NULL,
		seq INTEGER NOT NULL,
		role TEXT NOT NULL,
		content TEXT NOT NULL,
		thinking TEXT NOT NULL DEFAULT '',
		tool_calls TEXT NOT NULL DEFAULT '[]',
		created_at DATETIME,
		FOREIGN KEY (session_id) REFERENCES sessions(session_id)
	);

	CREATE INDEX IF NOT EXISTS idx_messages_session ON messages(session_id, seq);

	CREATE TABLE IF NOT EXISTS missions (
		mission_id TEXT PRIMARY KEY,
		goal TEXT NOT NULL DEFAULT '',
		status TEXT NOT NULL,
		execution_mode TEXT NOT NULL DEFAULT '',
		total_pivots INTEGER NOT NULL DEFAULT 0,
		total_abandoned INTEGER NOT NULL DEFAULT 0,
		fetched_at DATETIME
	);
	`
	_, err := db.Exec(schema)
	return err
}

// SaveSession upserts a server snapshot and replaces the cached
// transcript with its normalized form.
func (s *Store) SaveSession(snap *api.SessionSnapshot) error {
	now := time.Now()

	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	_, err = tx.Exec(
		`INSERT INTO sessions (session_id, agent_id, title, preview, is_processing, total_tokens, updated_at, fetched_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		 ON CONFLICT(session_id) DO UPDATE SET
			agent_id = excluded.agent_id,
			title = excluded.title,
			preview = excluded.preview,
			is_processing = excluded.is_processing,
			total_tokens = excluded.total_tokens,
			updated_at = excluded.updated_at,
			fetched_at = excluded.fetched_at`,
		snap.SessionID, snap.AgentID, snap.Title, snap.LastMessagePreview, snap.IsProcessing, snap.TotalTokens, snap.UpdatedAt, now,
	)
	if err != nil {
		return fmt.Errorf("upsert session: %w", err)
	}

	if _, err := tx.Exec(`DELETE FROM messages WHERE session_id = ?`, snap.SessionID); err != nil {
		return fmt.Errorf("clear messages: %w", err)
	}

	for i, msg := range transcript.Normalize([]byte(snap.MessagesJSON)) {
		calls, err := json.Marshal(msg.ToolCalls)
		if err != nil {
			return fmt.Errorf("encode tool calls: %w", err)
		}
		_, err = tx.Exec(
			`INSERT INTO messages (session_id, seq, role, content, thinking, tool_calls, created_at)
			 VALUES (?, ?, ?, ?, ?, ?, ?)`,
			snap.SessionID, i, string(msg.Role), msg.Content, msg.Thinking, string(calls), msg.CreatedAt,
		)
		if err != nil {
			return fmt.Errorf("insert message: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit: %w", err)
	}
	return nil
}

// GetSession retrieves a cached session by id. Returns nil when the
// session has never been cached.
func (s *Store) GetSession(id string) (*CachedSession, error) {
	row := s.db.QueryRow(
		`SELECT session_id, agent_id, title, preview, is_processing, total_tokens, updated_at, fetched_at
		 FROM sessions WHERE session_id = ?`,
		id,
	)

	var cs CachedSession
	err := row.Scan(&cs.SessionID, &cs.AgentID, &cs.Title, &cs.Preview, &cs.IsProcessing, &cs.TotalTokens, &cs.UpdatedAt, &cs.FetchedAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("scan session: %w", err)
	}

	return &cs, nil
}

// ListSessions returns the most recently updated cached sessions.
func (s *Store) ListSessions(limit int) ([]CachedSession, error) {
	rows, err := s.db.Query(
		`SELECT session_id, agent_id, title, preview, is_processing, total_tokens, updated_at, fetched_at
		 FROM sessions
		 ORDER BY updated_at DESC
		 LIMIT ?`,
		limit,
	)
	if err != nil {
		return nil, fmt.Errorf("query sessions: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var sessions []CachedSession
	for rows.Next() {
		var cs CachedSession
		if err := rows.Scan(&cs.SessionID, &cs.AgentID, &cs.Title, &cs.Preview, &cs.IsProcessing, &cs.TotalTokens, &cs.UpdatedAt, &cs.FetchedAt); err != nil {
			return nil, fmt.Errorf("scan session: %w", err)
		}
		sessions = append(sessions, cs)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate rows: %w", err)
	}

	return sessions, nil
}

// DeleteSession removes a session and its cached transcript.
func (s *Store) DeleteSession(id string) error {
	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.Exec(`DELETE FROM messages WHERE session_id = ?`, id); err != nil {
		return fmt.Errorf("delete messages: %w", err)
	}
	if _, err := tx.Exec(`DELETE FROM sessions WHERE session_id = ?`, id); err != nil {
		return fmt.Errorf("delete session: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit: %w", err)
	}
	return nil
}

// GetMessages retrieves the cached transcript for a session, in order.
func (s *Store) GetMessages(sessionID string) ([]*transcript.Message, error) {
	rows, err := s.db.Query(
		`SELECT role, content, thinking, tool_calls, created_at
		 FROM messages
		 WHERE session_id = ?
		 ORDER BY seq ASC`,
		sessionID,
	)
	if err != nil {
		return nil, fmt.Errorf("query messages: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var messages []*transcript.Message
	for rows.Next() {
		var (
			msg   transcript.Message
			role  string
			calls string
		)
		if err := rows.Scan(&role, &msg.Content, &msg.Thinking, &calls, &msg.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan message: %w", err)
		}
		msg.Role = transcript.Role(role)
		if err := json.Unmarshal([]byte(calls), &msg.ToolCalls); err != nil {
			return nil, fmt.Errorf("decode tool calls: %w", err)
		}
		messages = append(messages, &msg)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate rows: %w", err)
	}

	return messages, nil
}

// SearchMessages finds cached transcript messages containing the term,
// newest sessions first.
func (s *Store) SearchMessages(term string, limit int) ([]SearchHit, error) {
	rows, err := s.db.Query(
		`SELECT m.session_id, m.role, m.content, m.created_at
		 FROM messages m
		 JOIN sessions s ON s.session_id = m.session_id
		 WHERE m.content LIKE '%' || ? || '%'
		 ORDER BY s.updated_at DESC, m.seq ASC
		 LIMIT ?`,
		term, limit,
	)
	if err != nil {
		return nil, fmt.Errorf("query search: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var hits []SearchHit
	for rows.Next() {
		var hit SearchHit
		if err := rows.Scan(&hit.SessionID, &hit.Role, &hit.Content, &hit.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan search hit: %w", err)
		}
		hits = append(hits, hit)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate rows: %w", err)
	}

	return hits, nil
}

// SaveMission upserts a mission summary.
func (s *Store) SaveMission(m *mission.Mission) error {
	_, err := s.db.Exec(
		`INSERT INTO missions (mission_id, goal, status, execution_mode, total_pivots, total_abandoned, fetched_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?)
		 ON CONFLICT(mission_id) DO UPDATE SET
			goal = excluded.goal,
			status = excluded.status,
			execution_mode = excluded.execution_mode,
			total_pivots = excluded.total_pivots,
			total_abandoned = excluded.total_abandoned,
			fetched_at = excluded.fetched_at`,
		m.MissionID, m.Goal, string(m.Status), string(m.ExecutionMode), m.TotalPivots, m.TotalAbandoned, time.Now(),
	)
	if err != nil {
		return fmt.Errorf("upsert mission: %w", err)
	}
	return nil
}

// ListMissions returns cached mission summaries, most recently fetched
// first.
func (s *Store) ListMissions(limit int) ([]mission.Mission, error) {
	rows, err := s.db.Query(
		`SELECT mission_id, goal, status, execution_mode, total_pivots, total_abandoned
		 FROM missions
		 ORDER BY fetched_at DESC
		 LIMIT ?`,
		limit,
	)
	if err != nil {
		return nil, fmt.Errorf("query missions: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var missions []mission.Mission
	for rows.Next() {
		var (
			m      mission.Mission
			status string
			mode   string
		)
		if err := rows.Scan(&m.MissionID, &m.Goal, &status, &mode, &m.TotalPivots, &m.TotalAbandoned); err != nil {
			return nil, fmt.Errorf("scan mission: %w", err)
		}
		m.Status = mission.Status(status)
		m.ExecutionMode = mission.ExecutionMode(mode)
		missions = append(missions, m)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate rows: %w", err)
	}

	return missions, nil
}
