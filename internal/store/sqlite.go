package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"github.com/zhouzirui/campus-assistant/backend/internal/model/chat"
	"github.com/zhouzirui/campus-assistant/backend/internal/model/knowledge"
)

// SQLiteStore persists sessions and logs in a SQLite database.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLiteStore opens dsn and runs migrations.
func NewSQLiteStore(dsn string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite3", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	// A single connection keeps ":memory:" databases shared and serialises writers.
	db.SetMaxOpenConns(1)

	store := &SQLiteStore{db: db}
	if err := store.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to migrate database: %w", err)
	}
	return store, nil
}

func (s *SQLiteStore) migrate() error {
	migrations := []string{
		`CREATE TABLE IF NOT EXISTS chat_sessions (
			session_token TEXT PRIMARY KEY,
			id TEXT NOT NULL UNIQUE,
			current_menu TEXT NOT NULL,
			menu_stack TEXT NOT NULL,
			conversation_history TEXT NOT NULL,
			created_at INTEGER NOT NULL,
			updated_at INTEGER NOT NULL
		)`,
		`CREATE TABLE IF NOT EXISTS chat_messages (
			seq INTEGER PRIMARY KEY AUTOINCREMENT,
			id TEXT NOT NULL UNIQUE,
			session_token TEXT NOT NULL,
			type TEXT NOT NULL,
			content TEXT NOT NULL,
			options TEXT,
			timestamp INTEGER NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS idx_chat_messages_session ON chat_messages(session_token, seq)`,
	}

	for _, m := range migrations {
		if _, err := s.db.Exec(m); err != nil {
			return fmt.Errorf("migration failed: %w\n%s", err, m)
		}
	}
	return nil
}

// GetSession implements Store.
func (s *SQLiteStore) GetSession(ctx context.Context, token string) (*chat.Session, error) {
	var (
		session            chat.Session
		stack, history     string
		createdAt, updated int64
	)
	err := s.db.QueryRowContext(ctx,
		`SELECT id, session_token, current_menu, menu_stack, conversation_history, created_at, updated_at
		 FROM chat_sessions WHERE session_token = ?`, token).
		Scan(&session.ID, &session.SessionToken, &session.CurrentMenu, &stack, &history, &createdAt, &updated)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("query session: %w", err)
	}

	if err := json.Unmarshal([]byte(stack), &session.MenuStack); err != nil {
		return nil, fmt.Errorf("decode menu stack: %w", err)
	}
	if err := json.Unmarshal([]byte(history), &session.ConversationHistory); err != nil {
		return nil, fmt.Errorf("decode conversation history: %w", err)
	}
	if session.MenuStack == nil {
		session.MenuStack = []string{}
	}
	if session.ConversationHistory == nil {
		session.ConversationHistory = []chat.Message{}
	}
	session.CreatedAt = fromUnixNano(createdAt)
	session.UpdatedAt = fromUnixNano(updated)
	return &session, nil
}

// CreateSession implements Store.
func (s *SQLiteStore) CreateSession(ctx context.Context, session *chat.Session) error {
	stack, history, err := encodeSessionLists(session)
	if err != nil {
		return err
	}

	res, err := s.db.ExecContext(ctx,
		`INSERT OR IGNORE INTO chat_sessions
		 (session_token, id, current_menu, menu_stack, conversation_history, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`,
		session.SessionToken, session.ID, session.CurrentMenu, stack, history,
		session.CreatedAt.UnixNano(), session.UpdatedAt.UnixNano())
	if err != nil {
		return fmt.Errorf("insert session: %w", err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return ErrAlreadyExists
	}
	return nil
}

// UpdateSession implements Store.
func (s *SQLiteStore) UpdateSession(ctx context.Context, session *chat.Session) error {
	stack, history, err := encodeSessionLists(session)
	if err != nil {
		return err
	}

	res, err := s.db.ExecContext(ctx,
		`UPDATE chat_sessions
		 SET current_menu = ?, menu_stack = ?, conversation_history = ?, updated_at = ?
		 WHERE session_token = ?`,
		session.CurrentMenu, stack, history, session.UpdatedAt.UnixNano(), session.SessionToken)
	if err != nil {
		return fmt.Errorf("update session: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("update session: %w", err)
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

// AppendMessage implements Store.
func (s *SQLiteStore) AppendMessage(ctx context.Context, message *chat.Message) error {
	var options sql.NullString
	if len(message.Options) > 0 {
		raw, err := json.Marshal(message.Options)
		if err != nil {
			return fmt.Errorf("encode options: %w", err)
		}
		options = sql.NullString{String: string(raw), Valid: true}
	}

	_, err := s.db.ExecContext(ctx,
		`INSERT INTO chat_messages (id, session_token, type, content, options, timestamp)
		 VALUES (?, ?, ?, ?, ?, ?)`,
		message.ID, message.SessionToken, string(message.Type), message.Content, options,
		message.Timestamp.UnixNano())
	if err != nil {
		return fmt.Errorf("insert message: %w", err)
	}
	return nil
}

// ListMessages implements Store.
func (s *SQLiteStore) ListMessages(ctx context.Context, token string) ([]chat.Message, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, session_token, type, content, options, timestamp
		 FROM chat_messages WHERE session_token = ? ORDER BY seq ASC`, token)
	if err != nil {
		return nil, fmt.Errorf("query messages: %w", err)
	}
	defer rows.Close()

	messages := make([]chat.Message, 0)
	for rows.Next() {
		var (
			m       chat.Message
			msgType string
			options sql.NullString
			ts      int64
		)
		if err := rows.Scan(&m.ID, &m.SessionToken, &msgType, &m.Content, &options, &ts); err != nil {
			return nil, fmt.Errorf("scan message: %w", err)
		}
		m.Type = chat.MessageType(msgType)
		m.Timestamp = fromUnixNano(ts)
		if options.Valid {
			var opts []knowledge.MenuOption
			if err := json.Unmarshal([]byte(options.String), &opts); err != nil {
				return nil, fmt.Errorf("decode options: %w", err)
			}
			m.Options = opts
		}
		messages = append(messages, m)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate messages: %w", err)
	}
	return messages, nil
}

// Close implements Store.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

func encodeSessionLists(session *chat.Session) (string, string, error) {
	stack := session.MenuStack
	if stack == nil {
		stack = []string{}
	}
	history := session.ConversationHistory
	if history == nil {
		history = []chat.Message{}
	}

	rawStack, err := json.Marshal(stack)
	if err != nil {
		return "", "", fmt.Errorf("encode menu stack: %w", err)
	}
	rawHistory, err := json.Marshal(history)
	if err != nil {
		return "", "", fmt.Errorf("encode conversation history: %w", err)
	}
	return string(rawStack), string(rawHistory), nil
}

func fromUnixNano(n int64) time.Time {
	return time.Unix(0, n).UTC()
}
