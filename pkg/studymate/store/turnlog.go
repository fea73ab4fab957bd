// Package store – turnlog.go persists resolved turns for audit and
// analytics, the way the original deployment logged every message.
package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/studymate-ai/studymate/pkg/studymate/resolver"
)

// TurnLog appends resolved turns to the turns table. It implements
// resolver.TurnLogger.
type TurnLog struct {
	db *sql.DB
}

// NewTurnLog creates a turn log over an open database handle.
func NewTurnLog(db *sql.DB) *TurnLog {
	return &TurnLog{db: db}
}

// Append writes one turn. Image/voice payloads are not stored, only the
// text and the resolution.
func (l *TurnLog) Append(ctx context.Context, turn resolver.Turn) error {
	delegated := 0
	if turn.Delegated {
		delegated = 1
	}
	_, err := l.db.ExecContext(ctx, `
		INSERT INTO turns (id, student_id, media_kind, message_text, intent, result_type, content, delegated, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		turn.ID,
		turn.Message.SenderID,
		string(turn.Message.Kind),
		turn.Message.Text,
		string(turn.Intent),
		string(turn.Output.Type),
		turn.Output.Content,
		delegated,
		time.Now().UTC().Format(time.RFC3339),
	)
	if err != nil {
		return fmt.Errorf("append turn: %w", err)
	}
	return nil
}

// Recent returns the newest n turns for a student, most recent first.
func (l *TurnLog) Recent(ctx context.Context, studentID string, n int) ([]resolver.Turn, error) {
	rows, err := l.db.QueryContext(ctx, `
		SELECT id, media_kind, message_text, intent, result_type, content, delegated
		FROM turns WHERE student_id = ?
		ORDER BY created_at DESC LIMIT ?`, studentID, n)
	if err != nil {
		return nil, fmt.Errorf("query turns: %w", err)
	}
	defer rows.Close()

	var turns []resolver.Turn
	for rows.Next() {
		var (
			t         resolver.Turn
			kind      string
			intent    string
			resType   string
			delegated int
		)
		if err := rows.Scan(&t.ID, &kind, &t.Message.Text, &intent, &resType, &t.Output.Content, &delegated); err != nil {
			return nil, fmt.Errorf("scan turn: %w", err)
		}
		t.Message.SenderID = studentID
		t.Message.Kind = resolver.MediaKind(kind)
		t.Intent = resolver.Intent(intent)
		t.Output.Type = resolver.ResultType(resType)
		t.Delegated = delegated == 1
		turns = append(turns, t)
	}
	return turns, rows.Err()
}
