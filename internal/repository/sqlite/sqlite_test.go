package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/businessly/businessly/internal/entities"
	"github.com/businessly/businessly/internal/infrastructure"
)

func openTestDB(t *testing.T) *sql.DB {
	t.Helper()
	db, err := infrastructure.OpenSQLite(context.Background(), filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return db
}

// steppedClock makes every call return a later instant.
func steppedClock(t *testing.T) {
	t.Helper()
	var mu sync.Mutex
	base := time.Date(2024, 3, 1, 10, 0, 0, 0, time.UTC)
	clock = func() time.Time {
		mu.Lock()
		defer mu.Unlock()
		base = base.Add(time.Second)
		return base
	}
	t.Cleanup(func() { clock = time.Now })
}

func seedOwnerAndBot(t *testing.T, db *sql.DB, username, token string) (*entities.User, *entities.Bot) {
	t.Helper()
	ctx := context.Background()
	user := &entities.User{Username: username, PasswordHash: "hash", Role: entities.RoleOwner}
	require.NoError(t, NewUserRepository(db).Create(ctx, user))

	bot := &entities.Bot{
		UserID:              user.ID,
		Token:               token,
		TelegramBotID:       "1001",
		Username:            "cafe_bot",
		Name:                "Cafe",
		BusinessDescription: "Кофейня у дома",
	}
	require.NoError(t, NewBotRepository(db).Create(ctx, bot))
	return user, bot
}

func TestUserRepository(t *testing.T) {
	db := openTestDB(t)
	repo := NewUserRepository(db)
	ctx := context.Background()

	u := &entities.User{Username: "anna", PasswordHash: "h", Role: entities.RoleOwner}
	require.NoError(t, repo.Create(ctx, u))
	assert.NotZero(t, u.ID)

	got, err := repo.GetByUsername(ctx, "anna")
	require.NoError(t, err)
	assert.Equal(t, u.ID, got.ID)
	assert.Equal(t, "h", got.PasswordHash)

	missing, err := repo.GetByUsername(ctx, "nobody")
	require.NoError(t, err)
	assert.Nil(t, missing)

	require.ErrorIs(t, repo.Create(ctx, &entities.User{Username: "anna", PasswordHash: "x"}), entities.ErrUsernameTaken)
}

func TestBotRepository(t *testing.T) {
	db := openTestDB(t)
	ctx := context.Background()
	user, bot := seedOwnerAndBot(t, db, "owner", "token-1")
	repo := NewBotRepository(db)

	found, err := repo.FindByToken(ctx, "token-1")
	require.NoError(t, err)
	require.NotNil(t, found)
	assert.Equal(t, bot.ID, found.ID)
	assert.False(t, found.IsActive)

	none, err := repo.FindByToken(ctx, "unknown")
	require.NoError(t, err)
	assert.Nil(t, none)

	exists, err := repo.TokenExists(ctx, "token-1")
	require.NoError(t, err)
	assert.True(t, exists)

	dup := &entities.Bot{UserID: user.ID, Token: "token-1", Name: "x", BusinessDescription: "y"}
	require.ErrorIs(t, repo.Create(ctx, dup), entities.ErrDuplicateToken)

	require.NoError(t, repo.SetActive(ctx, bot.ID, true))
	got, err := repo.GetForOwner(ctx, bot.ID, user.ID)
	require.NoError(t, err)
	assert.True(t, got.IsActive)

	other, err := repo.GetForOwner(ctx, bot.ID, user.ID+100)
	require.NoError(t, err)
	assert.Nil(t, other)

	got.Name = "Cafe 2"
	got.BusinessDescription = "Новое описание бизнеса"
	require.NoError(t, repo.Update(ctx, got))
	reread, err := repo.Get(ctx, bot.ID)
	require.NoError(t, err)
	assert.Equal(t, "Cafe 2", reread.Name)

	require.ErrorIs(t, repo.SetActive(ctx, 9999, true), entities.ErrBotNotFound)
}

func TestBotRepositoryListAndCascade(t *testing.T) {
	db := openTestDB(t)
	ctx := context.Background()
	user, bot := seedOwnerAndBot(t, db, "owner", "token-1")
	convs := NewConversationRepository(db)
	msgs := NewMessageRepository(db)
	bots := NewBotRepository(db)

	conv, _, err := convs.ResolveOrCreate(ctx, bot.ID, 42, entities.Participant{})
	require.NoError(t, err)
	_, _, err = convs.ResolveOrCreate(ctx, bot.ID, 43, entities.Participant{})
	require.NoError(t, err)
	require.NoError(t, msgs.Append(ctx, &entities.Message{ConversationID: conv.ID, Origin: entities.OriginCustomer, Content: "hi"}))

	list, err := bots.ListByOwner(ctx, user.ID)
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Equal(t, 2, list[0].ConversationsCount)

	n, err := bots.CountConversations(ctx, bot.ID)
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	require.NoError(t, bots.Delete(ctx, bot.ID))
	gone, err := convs.Get(ctx, conv.ID)
	require.NoError(t, err)
	assert.Nil(t, gone)

	history, err := msgs.Recent(ctx, conv.ID, 10)
	require.NoError(t, err)
	assert.Empty(t, history)
}

func TestConversationResolveOrCreate(t *testing.T) {
	db := openTestDB(t)
	ctx := context.Background()
	_, bot := seedOwnerAndBot(t, db, "owner", "token-1")
	repo := NewConversationRepository(db)

	p := entities.Participant{UserID: 5, Username: "ivan", FirstName: "Иван", LastName: "Петров"}
	conv, created, err := repo.ResolveOrCreate(ctx, bot.ID, 42, p)
	require.NoError(t, err)
	assert.True(t, created)
	assert.Equal(t, entities.ControlAutomated, conv.ControlMode)
	assert.Equal(t, p, conv.Participant)
	assert.True(t, conv.IsActive)

	again, created, err := repo.ResolveOrCreate(ctx, bot.ID, 42, entities.Participant{UserID: 5})
	require.NoError(t, err)
	assert.False(t, created)
	assert.Equal(t, conv.ID, again.ID)
	assert.Equal(t, "ivan", again.Participant.Username)
}

func TestConversationResolveOrCreateConcurrent(t *testing.T) {
	db := openTestDB(t)
	ctx := context.Background()
	_, bot := seedOwnerAndBot(t, db, "owner", "token-1")
	repo := NewConversationRepository(db)

	const n = 10
	ids := make([]int64, n)
	var createdCount int32
	var mu sync.Mutex
	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			conv, created, err := repo.ResolveOrCreate(ctx, bot.ID, 77, entities.Participant{})
			if !assert.NoError(t, err) {
				return
			}
			ids[i] = conv.ID
			if created {
				mu.Lock()
				createdCount++
				mu.Unlock()
			}
		}(i)
	}
	wg.Wait()

	assert.EqualValues(t, 1, createdCount)
	for _, id := range ids {
		assert.Equal(t, ids[0], id)
	}
	count, err := NewBotRepository(db).CountConversations(ctx, bot.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, count)
}

func TestConversationControlMode(t *testing.T) {
	db := openTestDB(t)
	ctx := context.Background()
	_, bot := seedOwnerAndBot(t, db, "owner", "token-1")
	repo := NewConversationRepository(db)

	conv, _, err := repo.ResolveOrCreate(ctx, bot.ID, 42, entities.Participant{})
	require.NoError(t, err)

	changed, err := repo.TransitionControlMode(ctx, conv.ID, entities.ControlAutomated, entities.ControlManual)
	require.NoError(t, err)
	assert.True(t, changed)

	changed, err = repo.TransitionControlMode(ctx, conv.ID, entities.ControlAutomated, entities.ControlManual)
	require.NoError(t, err)
	assert.False(t, changed)

	mode, err := repo.GetControlMode(ctx, conv.ID)
	require.NoError(t, err)
	assert.Equal(t, entities.ControlManual, mode)

	require.NoError(t, repo.SetControlMode(ctx, conv.ID, entities.ControlAutomated))
	mode, err = repo.GetControlMode(ctx, conv.ID)
	require.NoError(t, err)
	assert.Equal(t, entities.ControlAutomated, mode)

	_, err = repo.GetControlMode(ctx, 9999)
	require.ErrorIs(t, err, entities.ErrConversationNotFound)
	require.ErrorIs(t, repo.SetControlMode(ctx, 9999, entities.ControlManual), entities.ErrConversationNotFound)
	require.Error(t, repo.SetControlMode(ctx, conv.ID, "robot"))
}

func TestConversationListForOwner(t *testing.T) {
	steppedClock(t)
	db := openTestDB(t)
	ctx := context.Background()
	user, bot := seedOwnerAndBot(t, db, "owner", "token-1")
	_, otherBot := seedOwnerAndBot(t, db, "other", "token-2")
	repo := NewConversationRepository(db)
	msgs := NewMessageRepository(db)

	first, _, err := repo.ResolveOrCreate(ctx, bot.ID, 1, entities.Participant{})
	require.NoError(t, err)
	second, _, err := repo.ResolveOrCreate(ctx, bot.ID, 2, entities.Participant{})
	require.NoError(t, err)
	_, _, err = repo.ResolveOrCreate(ctx, otherBot.ID, 3, entities.Participant{})
	require.NoError(t, err)

	require.NoError(t, msgs.Append(ctx, &entities.Message{ConversationID: second.ID, Origin: entities.OriginCustomer, Content: "old"}))
	require.NoError(t, msgs.Append(ctx, &entities.Message{ConversationID: first.ID, Origin: entities.OriginCustomer, Content: "newest"}))

	list, err := repo.ListForOwner(ctx, user.ID, 0)
	require.NoError(t, err)
	require.Len(t, list, 2)
	assert.Equal(t, first.ID, list[0].ID)
	assert.Equal(t, "newest", list[0].LastMessage)
	require.NotNil(t, list[0].LastMessageAt)
	assert.Equal(t, second.ID, list[1].ID)

	filtered, err := repo.ListForOwner(ctx, user.ID, otherBot.ID)
	require.NoError(t, err)
	assert.Empty(t, filtered)

	owned, err := repo.GetForOwner(ctx, first.ID, user.ID)
	require.NoError(t, err)
	require.NotNil(t, owned)
	foreign, err := repo.GetForOwner(ctx, first.ID, user.ID+100)
	require.NoError(t, err)
	assert.Nil(t, foreign)
}

func TestMessageRecentWindow(t *testing.T) {
	steppedClock(t)
	db := openTestDB(t)
	ctx := context.Background()
	_, bot := seedOwnerAndBot(t, db, "owner", "token-1")
	conv, _, err := NewConversationRepository(db).ResolveOrCreate(ctx, bot.ID, 1, entities.Participant{})
	require.NoError(t, err)
	repo := NewMessageRepository(db)

	for i := 0; i < 25; i++ {
		origin := entities.OriginCustomer
		if i%2 == 1 {
			origin = entities.OriginAssistant
		}
		remote := int64(100 + i)
		require.NoError(t, repo.Append(ctx, &entities.Message{
			ConversationID:    conv.ID,
			Origin:            origin,
			Content:           fmt.Sprintf("m%02d", i),
			TelegramMessageID: &remote,
		}))
	}

	recent, err := repo.Recent(ctx, conv.ID, 20)
	require.NoError(t, err)
	require.Len(t, recent, 20)
	assert.Equal(t, "m05", recent[0].Content)
	assert.Equal(t, "m24", recent[19].Content)
	for i := 1; i < len(recent); i++ {
		assert.False(t, recent[i].CreatedAt.Before(recent[i-1].CreatedAt))
	}
	require.NotNil(t, recent[19].TelegramMessageID)
	assert.Equal(t, int64(124), *recent[19].TelegramMessageID)
}

func TestMessageSameInstantOrderedByID(t *testing.T) {
	fixed := time.Date(2024, 3, 1, 10, 0, 0, 0, time.UTC)
	clock = func() time.Time { return fixed }
	t.Cleanup(func() { clock = time.Now })

	db := openTestDB(t)
	ctx := context.Background()
	_, bot := seedOwnerAndBot(t, db, "owner", "token-1")
	conv, _, err := NewConversationRepository(db).ResolveOrCreate(ctx, bot.ID, 1, entities.Participant{})
	require.NoError(t, err)
	repo := NewMessageRepository(db)

	for _, c := range []string{"a", "b", "c"} {
		require.NoError(t, repo.Append(ctx, &entities.Message{ConversationID: conv.ID, Origin: entities.OriginOwner, Content: c}))
	}
	recent, err := repo.Recent(ctx, conv.ID, 2)
	require.NoError(t, err)
	require.Len(t, recent, 2)
	assert.Equal(t, "b", recent[0].Content)
	assert.Equal(t, "c", recent[1].Content)
	assert.Nil(t, recent[0].TelegramMessageID)
}
