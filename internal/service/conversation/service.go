package conversation

import (
	"context"
	"fmt"

	"github.com/zhouzirui/campus-assistant/backend/internal/logging"
	"github.com/zhouzirui/campus-assistant/backend/internal/model/chat"
	chatService "github.com/zhouzirui/campus-assistant/backend/internal/service/chat"
)

// Turn is what one visitor action produced, after persistence.
type Turn struct {
	Session    chat.Session   `json:"session"`
	Messages   []chat.Message `json:"messages"`
	Breadcrumb []string       `json:"breadcrumb"`
}

// Service runs the engine against stored sessions and records both sides of each exchange.
type Service struct {
	engine *Engine
	chats  *chatService.Service
}

// NewService wires the engine to session and message persistence.
func NewService(engine *Engine, chats *chatService.Service) *Service {
	return &Service{engine: engine, chats: chats}
}

// Engine returns the underlying state machine.
func (s *Service) Engine() *Engine {
	return s.engine
}

// Start opens (or resumes) a conversation. A new conversation gets the welcome message;
// the returned turn carries the whole history.
func (s *Service) Start(ctx context.Context, token string) (Turn, error) {
	session, err := s.chats.GetOrCreateSession(ctx, token)
	if err != nil {
		return Turn{}, err
	}

	history, err := s.chats.ListMessages(ctx, session.SessionToken)
	if err != nil {
		return Turn{}, err
	}

	if len(history) == 0 {
		welcome := s.engine.Welcome()
		stored, err := s.chats.AppendMessage(ctx, chat.Message{
			SessionToken: session.SessionToken,
			Type:         chat.MessageTypeBot,
			Content:      welcome.Content,
			Options:      welcome.Options,
		})
		if err != nil {
			return Turn{}, err
		}
		history = append(history, stored)
		logger := logging.Ctx(ctx)
		logger.Debug().Str(logging.FieldSession, session.SessionToken).Msg("conversation started")
	}

	return Turn{
		Session:    session,
		Messages:   history,
		Breadcrumb: s.engine.Breadcrumb(stateOf(session)),
	}, nil
}

// Handle applies action to the session identified by token, persisting the visitor's
// message, the bot's reply and the new navigation state.
func (s *Service) Handle(ctx context.Context, token string, action Action) (Turn, error) {
	if !action.Valid() {
		return Turn{}, &chatService.ValidationError{
			Field:   "type",
			Message: fmt.Sprintf("Unknown action type %q", action.Type),
		}
	}

	session, err := s.chats.GetOrCreateSession(ctx, token)
	if err != nil {
		return Turn{}, err
	}

	before := stateOf(session)
	reply := s.engine.Handle(before, action)

	logger := logging.Ctx(ctx)
	logger.Debug().
		Str(logging.FieldSession, session.SessionToken).
		Str(logging.FieldAction, string(action.Type)).
		Str("from", before.CurrentMenu).
		Str("to", reply.State.CurrentMenu).
		Bool("answered", reply.Bot != nil).
		Msg("conversation transition")

	messages := make([]chat.Message, 0, 2)
	if reply.UserText != "" {
		stored, err := s.chats.AppendMessage(ctx, chat.Message{
			SessionToken: session.SessionToken,
			Type:         chat.MessageTypeUser,
			Content:      reply.UserText,
		})
		if err != nil {
			return Turn{}, err
		}
		messages = append(messages, stored)
	}
	if reply.Bot != nil {
		stored, err := s.chats.AppendMessage(ctx, chat.Message{
			SessionToken: session.SessionToken,
			Type:         chat.MessageTypeBot,
			Content:      reply.Bot.Content,
			Options:      reply.Bot.Options,
		})
		if err != nil {
			return Turn{}, err
		}
		messages = append(messages, stored)
	}

	if !reply.State.Equal(before) {
		current := reply.State.CurrentMenu
		stack := append([]string{}, reply.State.Stack...)
		session, err = s.chats.UpdateSession(ctx, session.SessionToken, chat.SessionPatch{
			CurrentMenu: &current,
			MenuStack:   &stack,
		})
		if err != nil {
			return Turn{}, err
		}
	}

	return Turn{
		Session:    session,
		Messages:   messages,
		Breadcrumb: s.engine.Breadcrumb(reply.State),
	}, nil
}

func stateOf(session chat.Session) State {
	return State{CurrentMenu: session.CurrentMenu, Stack: session.MenuStack}
}
