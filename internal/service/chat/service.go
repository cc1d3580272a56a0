package chat

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/zhouzirui/campus-assistant/backend/internal/model/chat"
	"github.com/zhouzirui/campus-assistant/backend/internal/model/knowledge"
	"github.com/zhouzirui/campus-assistant/backend/internal/store"
)

// ErrSessionNotFound is returned when an operation needs an existing session.
var ErrSessionNotFound = errors.New("session not found")

// ValidationError reports a missing or malformed client-supplied field.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	return e.Message
}

func invalid(field, message string) error {
	return &ValidationError{Field: field, Message: message}
}

// IsValidation reports whether err is a ValidationError.
func IsValidation(err error) bool {
	var v *ValidationError
	return errors.As(err, &v)
}

// normalizeToken is applied by every entry point so that a token is stored and
// looked up under the same key.
func normalizeToken(token string) string {
	return strings.TrimSpace(token)
}

// MenuLookup is the part of the knowledge base the service validates against.
type MenuLookup interface {
	HasMenu(id string) bool
}

// Service owns session state and the per-session message log.
type Service struct {
	store store.Store
	menus MenuLookup
	now   func() time.Time
}

// NewService wires the service to a store. menus may be nil to skip menu validation.
func NewService(st store.Store, menus MenuLookup) *Service {
	return &Service{
		store: st,
		menus: menus,
		now:   func() time.Time { return time.Now().UTC() },
	}
}

// GetOrCreateSession returns the session for token, creating it at the root menu on first contact.
func (s *Service) GetOrCreateSession(ctx context.Context, token string) (chat.Session, error) {
	token = normalizeToken(token)
	if token == "" {
		return chat.Session{}, invalid("sessionToken", "Session token is required")
	}

	existing, err := s.store.GetSession(ctx, token)
	if err != nil {
		return chat.Session{}, fmt.Errorf("load session: %w", err)
	}
	if existing != nil {
		return *existing, nil
	}

	now := s.now()
	session := chat.Session{
		ID:                  uuid.NewString(),
		SessionToken:        token,
		CurrentMenu:         knowledge.RootMenuID,
		MenuStack:           []string{},
		ConversationHistory: []chat.Message{},
		CreatedAt:           now,
		UpdatedAt:           now,
	}

	err = s.store.CreateSession(ctx, &session)
	if errors.Is(err, store.ErrAlreadyExists) {
		// Lost a race with another request for the same token; theirs wins.
		existing, err = s.store.GetSession(ctx, token)
		if err != nil {
			return chat.Session{}, fmt.Errorf("load session: %w", err)
		}
		if existing == nil {
			return chat.Session{}, fmt.Errorf("session %q vanished after conflict", token)
		}
		return *existing, nil
	}
	if err != nil {
		return chat.Session{}, fmt.Errorf("create session: %w", err)
	}
	return session, nil
}

// GetSession retrieves a session by token.
func (s *Service) GetSession(ctx context.Context, token string) (chat.Session, error) {
	session, err := s.store.GetSession(ctx, normalizeToken(token))
	if err != nil {
		return chat.Session{}, fmt.Errorf("load session: %w", err)
	}
	if session == nil {
		return chat.Session{}, ErrSessionNotFound
	}
	return *session, nil
}

// UpdateSession applies patch to an existing session. Unknown tokens are never created.
func (s *Service) UpdateSession(ctx context.Context, token string, patch chat.SessionPatch) (chat.Session, error) {
	if err := s.validatePatch(patch); err != nil {
		return chat.Session{}, err
	}

	session, err := s.GetSession(ctx, token)
	if err != nil {
		return chat.Session{}, err
	}

	patch.Apply(&session)
	session.UpdatedAt = s.now()

	if err := s.store.UpdateSession(ctx, &session); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return chat.Session{}, ErrSessionNotFound
		}
		return chat.Session{}, fmt.Errorf("update session: %w", err)
	}
	return session, nil
}

func (s *Service) validatePatch(patch chat.SessionPatch) error {
	if s.menus == nil {
		return nil
	}
	if patch.CurrentMenu != nil && !s.menus.HasMenu(*patch.CurrentMenu) {
		return invalid("currentMenu", fmt.Sprintf("Unknown menu %q", *patch.CurrentMenu))
	}
	if patch.MenuStack != nil {
		for _, id := range *patch.MenuStack {
			if !s.menus.HasMenu(id) {
				return invalid("menuStack", fmt.Sprintf("Unknown menu %q in menu stack", id))
			}
		}
	}
	return nil
}

// AppendMessage stores message at the end of its session's log, assigning id and timestamp.
func (s *Service) AppendMessage(ctx context.Context, message chat.Message) (chat.Message, error) {
	message.SessionToken = normalizeToken(message.SessionToken)
	if message.SessionToken == "" {
		return chat.Message{}, invalid("sessionToken", "Session token is required")
	}
	if !message.Type.Valid() {
		return chat.Message{}, invalid("type", fmt.Sprintf("Message type must be %q or %q", chat.MessageTypeUser, chat.MessageTypeBot))
	}
	if strings.TrimSpace(message.Content) == "" {
		return chat.Message{}, invalid("content", "Message content is required")
	}

	message.ID = uuid.NewString()
	message.Timestamp = s.now()
	message = message.Clone()

	if err := s.store.AppendMessage(ctx, &message); err != nil {
		return chat.Message{}, fmt.Errorf("append message: %w", err)
	}
	return message, nil
}

// ListMessages returns a session's log in insertion order; unknown tokens yield an empty list.
func (s *Service) ListMessages(ctx context.Context, token string) ([]chat.Message, error) {
	messages, err := s.store.ListMessages(ctx, normalizeToken(token))
	if err != nil {
		return nil, fmt.Errorf("list messages: %w", err)
	}
	if messages == nil {
		messages = []chat.Message{}
	}
	return messages, nil
}
