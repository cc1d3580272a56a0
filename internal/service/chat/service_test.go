package chat_test

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	model "github.com/zhouzirui/campus-assistant/backend/internal/model/chat"
	"github.com/zhouzirui/campus-assistant/backend/internal/model/knowledge"
	chat "github.com/zhouzirui/campus-assistant/backend/internal/service/chat"
	"github.com/zhouzirui/campus-assistant/backend/internal/store"
)

func newService() *chat.Service {
	return chat.NewService(store.NewMemoryStore(), knowledge.Default())
}

func strPtr(s string) *string { return &s }

func TestGetOrCreateSessionIsIdempotent(t *testing.T) {
	svc := newService()
	ctx := context.Background()

	first, err := svc.GetOrCreateSession(ctx, "token-a")
	require.NoError(t, err)
	second, err := svc.GetOrCreateSession(ctx, "token-a")
	require.NoError(t, err)
	other, err := svc.GetOrCreateSession(ctx, "token-b")
	require.NoError(t, err)

	assert.Equal(t, first.ID, second.ID)
	assert.NotEqual(t, first.ID, other.ID)
	assert.Equal(t, knowledge.RootMenuID, first.CurrentMenu)
	assert.Empty(t, first.MenuStack)
	assert.NotNil(t, first.MenuStack)
}

func TestGetOrCreateSessionRequiresToken(t *testing.T) {
	svc := newService()

	_, err := svc.GetOrCreateSession(context.Background(), "   ")
	require.Error(t, err)
	assert.True(t, chat.IsValidation(err))
}

func TestGetOrCreateSessionDoesNotResetState(t *testing.T) {
	svc := newService()
	ctx := context.Background()

	_, err := svc.GetOrCreateSession(ctx, "tok")
	require.NoError(t, err)
	_, err = svc.UpdateSession(ctx, "tok", model.SessionPatch{CurrentMenu: strPtr("admissions")})
	require.NoError(t, err)

	again, err := svc.GetOrCreateSession(ctx, "tok")
	require.NoError(t, err)
	assert.Equal(t, "admissions", again.CurrentMenu)
}

func TestUpdateSessionUnknownToken(t *testing.T) {
	svc := newService()
	ctx := context.Background()

	_, err := svc.UpdateSession(ctx, "missing", model.SessionPatch{CurrentMenu: strPtr("main")})
	assert.True(t, errors.Is(err, chat.ErrSessionNotFound))

	_, err = svc.GetSession(ctx, "missing")
	assert.ErrorIs(t, err, chat.ErrSessionNotFound, "update must not create a record")
}

func TestUpdateSessionAppliesPartialFields(t *testing.T) {
	svc := newService()
	ctx := context.Background()

	created, err := svc.GetOrCreateSession(ctx, "tok")
	require.NoError(t, err)

	stack := []string{"admissions"}
	updated, err := svc.UpdateSession(ctx, "tok", model.SessionPatch{
		CurrentMenu: strPtr("academics"),
		MenuStack:   &stack,
	})
	require.NoError(t, err)

	assert.Equal(t, created.ID, updated.ID)
	assert.Equal(t, "academics", updated.CurrentMenu)
	assert.Equal(t, []string{"admissions"}, updated.MenuStack)
	assert.False(t, updated.UpdatedAt.Before(created.UpdatedAt))
	assert.True(t, updated.CreatedAt.Equal(created.CreatedAt))

	// Only the stack changes; current menu is kept.
	empty := []string{}
	again, err := svc.UpdateSession(ctx, "tok", model.SessionPatch{MenuStack: &empty})
	require.NoError(t, err)
	assert.Equal(t, "academics", again.CurrentMenu)
	assert.Empty(t, again.MenuStack)
}

func TestUpdateSessionRejectsUnknownMenu(t *testing.T) {
	svc := newService()
	ctx := context.Background()

	_, err := svc.GetOrCreateSession(ctx, "tok")
	require.NoError(t, err)

	_, err = svc.UpdateSession(ctx, "tok", model.SessionPatch{CurrentMenu: strPtr("library")})
	assert.True(t, chat.IsValidation(err))

	stack := []string{"main", "nowhere"}
	_, err = svc.UpdateSession(ctx, "tok", model.SessionPatch{MenuStack: &stack})
	assert.True(t, chat.IsValidation(err))
}

func TestAppendAndListMessagesInOrder(t *testing.T) {
	svc := newService()
	ctx := context.Background()

	contents := []string{"hello", "Here are the options", "fees please"}
	types := []model.MessageType{model.MessageTypeUser, model.MessageTypeBot, model.MessageTypeUser}
	for i := range contents {
		stored, err := svc.AppendMessage(ctx, model.Message{
			SessionToken: "tok",
			Type:         types[i],
			Content:      contents[i],
		})
		require.NoError(t, err)
		assert.NotEmpty(t, stored.ID)
		assert.False(t, stored.Timestamp.IsZero())
	}

	messages, err := svc.ListMessages(ctx, "tok")
	require.NoError(t, err)
	require.Len(t, messages, 3)
	for i, m := range messages {
		assert.Equal(t, contents[i], m.Content)
		assert.Equal(t, types[i], m.Type)
	}
}

func TestListMessagesUnknownToken(t *testing.T) {
	svc := newService()

	messages, err := svc.ListMessages(context.Background(), "nobody")
	require.NoError(t, err)
	assert.NotNil(t, messages)
	assert.Empty(t, messages)
}

func TestAppendMessageValidation(t *testing.T) {
	svc := newService()
	ctx := context.Background()

	cases := map[string]model.Message{
		"missing token": {Type: model.MessageTypeUser, Content: "hi"},
		"bad type":      {SessionToken: "tok", Type: "system", Content: "hi"},
		"empty content": {SessionToken: "tok", Type: model.MessageTypeBot, Content: "  "},
	}
	for name, msg := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := svc.AppendMessage(ctx, msg)
			assert.True(t, chat.IsValidation(err), "got %v", err)
		})
	}
}

func TestStoreFailuresAreNotValidation(t *testing.T) {
	st := store.NewMemoryStore()
	svc := chat.NewService(st, nil)
	require.NoError(t, st.Close())

	_, err := svc.GetOrCreateSession(context.Background(), "tok")
	require.Error(t, err)
	assert.False(t, chat.IsValidation(err))
	assert.ErrorIs(t, err, store.ErrClosed)
}

func TestTokenIsTrimmedEverywhere(t *testing.T) {
	svc := newService()
	ctx := context.Background()

	created, err := svc.GetOrCreateSession(ctx, " tok ")
	require.NoError(t, err)
	assert.Equal(t, "tok", created.SessionToken)

	_, err = svc.AppendMessage(ctx, model.Message{SessionToken: " tok ", Type: model.MessageTypeUser, Content: "hi"})
	require.NoError(t, err)

	messages, err := svc.ListMessages(ctx, " tok ")
	require.NoError(t, err)
	assert.Len(t, messages, 1)

	got, err := svc.GetSession(ctx, " tok ")
	require.NoError(t, err)
	assert.Equal(t, created.ID, got.ID)

	updated, err := svc.UpdateSession(ctx, " tok ", model.SessionPatch{CurrentMenu: strPtr("campus")})
	require.NoError(t, err)
	assert.Equal(t, "campus", updated.CurrentMenu)
	assert.Equal(t, "tok", updated.SessionToken)
}

// racingStore lets another writer create the session between the service's
// lookup and its insert.
type racingStore struct {
	store.Store
	winner model.Session
}

func (s *racingStore) CreateSession(ctx context.Context, _ *model.Session) error {
	winner := s.winner
	if err := s.Store.CreateSession(ctx, &winner); err != nil {
		return err
	}
	return store.ErrAlreadyExists
}

func TestGetOrCreateSessionLostRaceReturnsStoredSession(t *testing.T) {
	st := &racingStore{
		Store: store.NewMemoryStore(),
		winner: model.Session{
			ID:           "winner-id",
			SessionToken: "tok",
			CurrentMenu:  knowledge.RootMenuID,
			MenuStack:    []string{},
		},
	}
	svc := chat.NewService(st, knowledge.Default())

	session, err := svc.GetOrCreateSession(context.Background(), "tok")
	require.NoError(t, err)
	assert.Equal(t, "winner-id", session.ID)
}

type conflictStore struct {
	store.Store
}

func (conflictStore) CreateSession(context.Context, *model.Session) error {
	return store.ErrAlreadyExists
}

func TestGetOrCreateSessionConflictWithoutSession(t *testing.T) {
	svc := chat.NewService(conflictStore{Store: store.NewMemoryStore()}, nil)

	_, err := svc.GetOrCreateSession(context.Background(), "tok")
	require.Error(t, err)
	assert.False(t, chat.IsValidation(err))
}
