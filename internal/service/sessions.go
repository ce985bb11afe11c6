package service

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/go-sql-driver/mysql"
	"github.com/mattn/go-sqlite3"

	"zufan/internal/models"
)

// ErrForbidden marks access to a session owned by a different user.
var ErrForbidden = errors.New("forbidden")

// ErrDuplicate marks an insert with an id that is already taken.
var ErrDuplicate = errors.New("duplicate id")

func isDuplicateKey(err error) bool {
	var sqliteErr sqlite3.Error
	if errors.As(err, &sqliteErr) {
		return sqliteErr.Code == sqlite3.ErrConstraint
	}
	var mysqlErr *mysql.MySQLError
	if errors.As(err, &mysqlErr) {
		return mysqlErr.Number == 1062
	}
	return false
}

// Sessions implements the authenticated session store: the server-side
// half of chat persistence. Session and message ids are allocated by
// the client, so inserts take them verbatim.
type Sessions struct {
	db *sql.DB
}

func NewSessions(db *sql.DB) *Sessions {
	return &Sessions{db: db}
}

// ListSessions returns the user's session summaries ordered by last activity.
func (s *Sessions) ListSessions(ctx context.Context, userID string) ([]models.SessionSummary, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, title, created_at, updated_at FROM chat_sessions WHERE user_id = ? ORDER BY updated_at DESC`,
		userID,
	)
	if err != nil {
		return nil, fmt.Errorf("list sessions: %w", err)
	}
	defer rows.Close()

	var sessions []models.SessionSummary
	for rows.Next() {
		var sum models.SessionSummary
		if err := rows.Scan(&sum.ID, &sum.Title, &sum.CreatedAt, &sum.UpdatedAt); err != nil {
			return nil, fmt.Errorf("scan session: %w", err)
		}
		sessions = append(sessions, sum)
	}
	return sessions, rows.Err()
}

// GetSession returns one session and its ordered messages. Returns
// sql.ErrNoRows when the session does not exist and ErrForbidden when
// it belongs to someone else.
func (s *Sessions) GetSession(ctx context.Context, userID, sessionID string) (*models.Session, error) {
	session, err := s.lookupOwned(ctx, userID, sessionID)
	if err != nil {
		return nil, err
	}

	rows, err := s.db.QueryContext(ctx,
		`SELECT id, role, content, citations, created_at FROM chat_messages WHERE session_id = ? ORDER BY created_at ASC`,
		sessionID,
	)
	if err != nil {
		return nil, fmt.Errorf("list messages: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var (
			m         models.Message
			citations sql.NullString
		)
		if err := rows.Scan(&m.ID, &m.Role, &m.Content, &citations, &m.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan message: %w", err)
		}
		if citations.Valid && citations.String != "" {
			if err := json.Unmarshal([]byte(citations.String), &m.Citations); err != nil {
				// keep the message; a bad citations blob should not hide the text
				log.Printf("decode citations for message %s: %v", m.ID, err)
			}
		}
		session.Messages = append(session.Messages, m)
	}
	return session, rows.Err()
}

// CreateSession stores a new session under the client-allocated id.
func (s *Sessions) CreateSession(ctx context.Context, userID, sessionID, title string) (*models.Session, error) {
	sessionID = strings.TrimSpace(sessionID)
	title = strings.TrimSpace(title)
	if sessionID == "" || title == "" {
		return nil, errors.New("title and id are required")
	}
	now := time.Now().UTC()
	if _, err := s.db.ExecContext(ctx,
		`INSERT INTO chat_sessions (id, user_id, title, created_at, updated_at) VALUES (?, ?, ?, ?, ?)`,
		sessionID, userID, title, now, now,
	); err != nil {
		if isDuplicateKey(err) {
			return nil, ErrDuplicate
		}
		return nil, fmt.Errorf("create session: %w", err)
	}
	return &models.Session{ID: sessionID, UserID: userID, Title: title, CreatedAt: now, UpdatedAt: now}, nil
}

// DeleteSession removes a session and all of its messages.
func (s *Sessions) DeleteSession(ctx context.Context, userID, sessionID string) error {
	if _, err := s.lookupOwned(ctx, userID, sessionID); err != nil {
		return err
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer func() {
		if err != nil {
			tx.Rollback()
		}
	}()

	if _, err = tx.ExecContext(ctx, `DELETE FROM chat_messages WHERE session_id = ?`, sessionID); err != nil {
		return fmt.Errorf("delete messages: %w", err)
	}
	if _, err = tx.ExecContext(ctx, `DELETE FROM chat_sessions WHERE id = ?`, sessionID); err != nil {
		return fmt.Errorf("delete session: %w", err)
	}
	if err = tx.Commit(); err != nil {
		return fmt.Errorf("commit delete session: %w", err)
	}
	return nil
}

// AddMessage appends a message to an owned session and touches the
// session's updated_at timestamp.
func (s *Sessions) AddMessage(ctx context.Context, userID, sessionID string, msg models.Message) (*models.Message, error) {
	if msg.ID == "" || msg.Role == "" || msg.Content == "" {
		return nil, errors.New("message id, role, and content are required")
	}
	if _, err := s.lookupOwned(ctx, userID, sessionID); err != nil {
		return nil, err
	}

	var citations sql.NullString
	if len(msg.Citations) > 0 {
		encoded, err := json.Marshal(msg.Citations)
		if err != nil {
			return nil, fmt.Errorf("encode citations: %w", err)
		}
		citations = sql.NullString{String: string(encoded), Valid: true}
	}

	now := time.Now().UTC()
	if _, err := s.db.ExecContext(ctx,
		`INSERT INTO chat_messages (id, session_id, role, content, citations, created_at) VALUES (?, ?, ?, ?, ?, ?)`,
		msg.ID, sessionID, msg.Role, msg.Content, citations, now,
	); err != nil {
		if isDuplicateKey(err) {
			return nil, ErrDuplicate
		}
		return nil, fmt.Errorf("insert message: %w", err)
	}
	if _, err := s.db.ExecContext(ctx, `UPDATE chat_sessions SET updated_at = ? WHERE id = ?`, now, sessionID); err != nil {
		return nil, fmt.Errorf("touch session: %w", err)
	}
	msg.CreatedAt = now
	return &msg, nil
}

func (s *Sessions) lookupOwned(ctx context.Context, userID, sessionID string) (*models.Session, error) {
	var session models.Session
	err := s.db.QueryRowContext(ctx,
		`SELECT id, user_id, title, created_at, updated_at FROM chat_sessions WHERE id = ?`,
		sessionID,
	).Scan(&session.ID, &session.UserID, &session.Title, &session.CreatedAt, &session.UpdatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, err
		}
		return nil, fmt.Errorf("get session: %w", err)
	}
	if session.UserID != userID {
		return nil, ErrForbidden
	}
	return &session, nil
}
