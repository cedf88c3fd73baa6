package memory

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite"

	"github.com/hollisdev/ember/pkg/brain"
)

// EventArchive keeps every conversation turn that falls out of the rolling
// history, so consolidation can truncate aggressively without losing the raw
// record.
type EventArchive struct {
	db *sql.DB
}

func NewEventArchive(workspace string) (*EventArchive, error) {
	path := filepath.Join(workspace, "state", "archive.db")
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("create archive dir: %w", err)
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open archive db: %w", err)
	}
	// Single shared connection avoids SQLite writer lock contention between
	// the loop and the dormant consolidator.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	a := &EventArchive{db: db}
	if err := a.init(); err != nil {
		_ = db.Close()
		return nil, err
	}
	return a, nil
}

func (a *EventArchive) init() error {
	stmts := []string{
		`PRAGMA journal_mode=WAL;`,
		`PRAGMA synchronous=NORMAL;`,
		`PRAGMA busy_timeout=5000;`,
		`CREATE TABLE IF NOT EXISTS events (
			id TEXT PRIMARY KEY,
			session_key TEXT NOT NULL,
			seq INTEGER NOT NULL,
			role TEXT NOT NULL,
			content TEXT NOT NULL,
			tool_name TEXT NOT NULL DEFAULT '',
			created_at_ms INTEGER NOT NULL
		);`,
		`CREATE INDEX IF NOT EXISTS events_session_idx ON events(session_key, created_at_ms DESC, seq DESC);`,
	}
	for _, stmt := range stmts {
		if _, err := a.db.Exec(stmt); err != nil {
			return fmt.Errorf("init archive schema: %w", err)
		}
	}
	return nil
}

func (a *EventArchive) Close() error {
	if a == nil || a.db == nil {
		return nil
	}
	return a.db.Close()
}

// Append stores a batch of history messages for one session.
func (a *EventArchive) Append(ctx context.Context, sessionKey string, messages []brain.Message) error {
	if len(messages) == 0 {
		return nil
	}

	tx, err := a.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin archive tx: %w", err)
	}
	defer tx.Rollback()

	now := time.Now().UnixMilli()
	for i, msg := range messages {
		content := msg.Content
		toolName := msg.ToolName
		if msg.ToolCall != nil {
			toolName = msg.ToolCall.Name
		}
		_, err := tx.ExecContext(ctx,
			`INSERT INTO events (id, session_key, seq, role, content, tool_name, created_at_ms)
			 VALUES (?, ?, ?, ?, ?, ?, ?)`,
			uuid.NewString(), sessionKey, i, msg.Role, content, toolName, now)
		if err != nil {
			return fmt.Errorf("insert archive event: %w", err)
		}
	}
	return tx.Commit()
}

// ArchivedEvent is one stored turn.
type ArchivedEvent struct {
	Role      string
	Content   string
	ToolName  string
	CreatedAt time.Time
}

// Recent returns the latest events for a session, oldest first.
func (a *EventArchive) Recent(ctx context.Context, sessionKey string, limit int) ([]ArchivedEvent, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := a.db.QueryContext(ctx,
		`SELECT role, content, tool_name, created_at_ms FROM events
		 WHERE session_key = ?
		 ORDER BY created_at_ms DESC, seq DESC LIMIT ?`,
		sessionKey, limit)
	if err != nil {
		return nil, fmt.Errorf("query archive events: %w", err)
	}
	defer rows.Close()

	var out []ArchivedEvent
	for rows.Next() {
		var ev ArchivedEvent
		var ms int64
		if err := rows.Scan(&ev.Role, &ev.Content, &ev.ToolName, &ms); err != nil {
			return nil, fmt.Errorf("scan archive event: %w", err)
		}
		ev.CreatedAt = time.UnixMilli(ms)
		out = append(out, ev)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	// Reverse to chronological order.
	for i, j := 0, len(out)-1; i < j; i, j = i+1, j-1 {
		out[i], out[j] = out[j], out[i]
	}
	return out, nil
}

// Count returns the number of archived events for a session.
func (a *EventArchive) Count(ctx context.Context, sessionKey string) (int, error) {
	var n int
	err := a.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM events WHERE session_key = ?`, sessionKey).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("count archive events: %w", err)
	}
	return n, nil
}
