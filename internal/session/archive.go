package session

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

// Archive persists finished and in-flight dialogue turns to PostgreSQL for
// long-term history. The hot session state stays in the Store; the archive is
// write-mostly and safe to skip entirely: a nil *Archive is a no-op, so the
// engine never branches on whether archiving is configured.
type Archive struct {
	db *sql.DB
}

// NewArchive creates an archive. Returns nil when db is nil.
func NewArchive(db *sql.DB) *Archive {
	if db == nil {
		return nil
	}
	return &Archive{db: db}
}

// EnsureSession creates the dialogue row if it does not exist yet and bumps
// its activity timestamp otherwise.
func (a *Archive) EnsureSession(ctx context.Context, sessionID string) error {
	if a == nil || a.db == nil {
		return nil
	}

	var existingID uuid.UUID
	err := a.db.QueryRowContext(ctx,
		`SELECT id FROM dialogues WHERE session_id = $1`,
		sessionID,
	).Scan(&existingID)

	if err == nil {
		_, err = a.db.ExecContext(ctx,
			`UPDATE dialogues SET updated_at = $1 WHERE id = $2`,
			time.Now().UTC(), existingID,
		)
		return err
	}
	if err != sql.ErrNoRows {
		return fmt.Errorf("session: failed to check archived dialogue: %w", err)
	}

	now := time.Now().UTC()
	_, err = a.db.ExecContext(ctx, `
		INSERT INTO dialogues (id, session_id, status, started_at, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6)
	`, uuid.New(), sessionID, "active", now, now, now)

	if err != nil {
		// Another turn may have inserted the row concurrently.
		if strings.Contains(err.Error(), "duplicate key") {
			return nil
		}
		return fmt.Errorf("session: failed to archive dialogue: %w", err)
	}
	return nil
}

// AppendTurn persists one inbound/outbound message pair.
func (a *Archive) AppendTurn(ctx context.Context, sessionID string, userText, replyText string) error {
	if a == nil || a.db == nil {
		return nil
	}
	if err := a.EnsureSession(ctx, sessionID); err != nil {
		return err
	}

	now := time.Now().UTC()
	for _, msg := range []struct {
		role string
		text string
	}{
		{RoleUser, userText},
		{RoleAssistant, replyText},
	} {
		if strings.TrimSpace(msg.text) == "" {
			continue
		}
		_, err := a.db.ExecContext(ctx, `
			INSERT INTO dialogue_messages (id, session_id, role, content, created_at)
			VALUES ($1, $2, $3, $4, $5)
		`, uuid.New(), sessionID, msg.role, msg.text, now)
		if err != nil {
			return fmt.Errorf("session: failed to archive message: %w", err)
		}
	}
	return nil
}

// MarkClosed records the terminal outcome of a dialogue.
func (a *Archive) MarkClosed(ctx context.Context, sessionID string, bookingState BookingState, bookingRef string) error {
	if a == nil || a.db == nil {
		return nil
	}

	now := time.Now().UTC()
	_, err := a.db.ExecContext(ctx, `
		UPDATE dialogues SET
			status = 'closed',
			booking_state = $1,
			booking_reference = $2,
			ended_at = $3,
			updated_at = $3
		WHERE session_id = $4 AND ended_at IS NULL
	`, string(bookingState), bookingRef, now, sessionID)

	if err != nil {
		return fmt.Errorf("session: failed to close archived dialogue: %w", err)
	}
	return nil
}
