// Package store defines the persistence capabilities behind sessions and
// message logs, with in-memory, Redis and SQLite implementations.
package store

import (
	"context"
	"errors"

	"github.com/zhouzirui/campus-assistant/backend/internal/model/chat"
)

var (
	ErrNotFound      = errors.New("store: not found")
	ErrAlreadyExists = errors.New("store: already exists")
	ErrInvalidDriver = errors.New("store: unknown driver")
	ErrInvalidConfig = errors.New("store: invalid configuration")
	ErrClosed        = errors.New("store: closed")
)

// Store is the capability set the chat service needs from persistence.
type Store interface {
	// GetSession returns the session for token, or nil when none exists.
	GetSession(ctx context.Context, token string) (*chat.Session, error)

	// CreateSession persists a new session. ErrAlreadyExists when the token is taken.
	CreateSession(ctx context.Context, session *chat.Session) error

	// UpdateSession replaces a stored session. ErrNotFound when the token is unknown.
	UpdateSession(ctx context.Context, session *chat.Session) error

	// AppendMessage adds a message to the end of its session's log.
	AppendMessage(ctx context.Context, message *chat.Message) error

	// ListMessages returns the log in insertion order; empty for unknown tokens.
	ListMessages(ctx context.Context, token string) ([]chat.Message, error)

	// Close releases the underlying resources.
	Close() error
}
