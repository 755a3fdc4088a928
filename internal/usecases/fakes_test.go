package usecases

import (
	"context"
	"errors"
	"sort"
	"sync"
	"time"

	"github.com/businessly/businessly/internal/entities"
)

// memStore is an in-memory stand-in for every repository port.
type memStore struct {
	mu            sync.Mutex
	nextID        int64
	users         map[string]*entities.User
	bots          map[int64]*entities.Bot
	conversations map[int64]*entities.Conversation
	messages      []entities.Message

	appendErr error
	// onModeRead runs after the nth control mode read.
	onModeRead func(id int64, n int)
	modeReads  int
}

func newMemStore() *memStore {
	return &memStore{
		users:         map[string]*entities.User{},
		bots:          map[int64]*entities.Bot{},
		conversations: map[int64]*entities.Conversation{},
	}
}

func (s *memStore) id() int64 {
	s.nextID++
	return s.nextID
}

func (s *memStore) Create(_ context.Context, user *entities.User) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.users[user.Username]; ok {
		return entities.ErrUsernameTaken
	}
	user.ID = s.id()
	user.CreatedAt = time.Now()
	cp := *user
	s.users[user.Username] = &cp
	return nil
}

func (s *memStore) GetByUsername(_ context.Context, username string) (*entities.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	u, ok := s.users[username]
	if !ok {
		return nil, nil
	}
	cp := *u
	return &cp, nil
}

type memBots struct{ *memStore }

func (b memBots) Create(_ context.Context, bot *entities.Bot) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	for _, existing := range b.bots {
		if existing.Token == bot.Token {
			return entities.ErrDuplicateToken
		}
	}
	bot.ID = b.id()
	bot.CreatedAt = time.Now()
	bot.UpdatedAt = bot.CreatedAt
	cp := *bot
	b.bots[bot.ID] = &cp
	return nil
}

func (b memBots) FindByToken(_ context.Context, token string) (*entities.Bot, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	for _, bot := range b.bots {
		if bot.Token == token {
			cp := *bot
			return &cp, nil
		}
	}
	return nil, nil
}

func (b memBots) Get(_ context.Context, id int64) (*entities.Bot, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	bot, ok := b.bots[id]
	if !ok {
		return nil, nil
	}
	cp := *bot
	return &cp, nil
}

func (b memBots) GetForOwner(ctx context.Context, id, userID int64) (*entities.Bot, error) {
	bot, err := b.Get(ctx, id)
	if bot == nil || err != nil || bot.UserID != userID {
		return nil, err
	}
	return bot, nil
}

func (b memBots) ListByOwner(_ context.Context, userID int64) ([]entities.BotSummary, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	var out []entities.BotSummary
	for _, bot := range b.bots {
		if bot.UserID != userID {
			continue
		}
		n := 0
		for _, c := range b.conversations {
			if c.BotID == bot.ID {
				n++
			}
		}
		out = append(out, entities.BotSummary{Bot: *bot, ConversationsCount: n})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (b memBots) TokenExists(ctx context.Context, token string) (bool, error) {
	bot, err := b.FindByToken(ctx, token)
	return bot != nil, err
}

func (b memBots) Update(_ context.Context, bot *entities.Bot) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	existing, ok := b.bots[bot.ID]
	if !ok {
		return entities.ErrBotNotFound
	}
	existing.Name = bot.Name
	existing.BusinessDescription = bot.BusinessDescription
	existing.UpdatedAt = time.Now()
	bot.UpdatedAt = existing.UpdatedAt
	return nil
}

func (b memBots) SetActive(_ context.Context, id int64, active bool) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	bot, ok := b.bots[id]
	if !ok {
		return entities.ErrBotNotFound
	}
	bot.IsActive = active
	return nil
}

func (b memBots) Delete(_ context.Context, id int64) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	delete(b.bots, id)
	for cid, c := range b.conversations {
		if c.BotID == id {
			delete(b.conversations, cid)
		}
	}
	return nil
}

func (b memBots) CountConversations(_ context.Context, botID int64) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	n := 0
	for _, c := range b.conversations {
		if c.BotID == botID {
			n++
		}
	}
	return n, nil
}

type memConversations struct{ *memStore }

func (c memConversations) ResolveOrCreate(_ context.Context, botID, chatID int64, p entities.Participant) (*entities.Conversation, bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, conv := range c.conversations {
		if conv.BotID == botID && conv.ChatID == chatID {
			cp := *conv
			return &cp, false, nil
		}
	}
	now := time.Now()
	conv := &entities.Conversation{
		ID: c.id(), BotID: botID, ChatID: chatID, Participant: p,
		ControlMode: entities.ControlAutomated, IsActive: true, CreatedAt: now, UpdatedAt: now,
	}
	c.conversations[conv.ID] = conv
	cp := *conv
	return &cp, true, nil
}

func (c memConversations) Get(_ context.Context, id int64) (*entities.Conversation, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	conv, ok := c.conversations[id]
	if !ok {
		return nil, nil
	}
	cp := *conv
	return &cp, nil
}

func (c memConversations) GetForOwner(ctx context.Context, id, userID int64) (*entities.Conversation, error) {
	conv, err := c.Get(ctx, id)
	if conv == nil || err != nil {
		return nil, err
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if bot, ok := c.bots[conv.BotID]; !ok || bot.UserID != userID {
		return nil, nil
	}
	return conv, nil
}

func (c memConversations) ListForOwner(_ context.Context, userID, botID int64) ([]entities.ConversationSummary, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	var out []entities.ConversationSummary
	for _, conv := range c.conversations {
		bot, ok := c.bots[conv.BotID]
		if !ok || bot.UserID != userID || (botID != 0 && conv.BotID != botID) {
			continue
		}
		s := entities.ConversationSummary{Conversation: *conv}
		for i := len(c.messages) - 1; i >= 0; i-- {
			if c.messages[i].ConversationID == conv.ID {
				at := c.messages[i].CreatedAt
				s.LastMessage = c.messages[i].Content
				s.LastMessageAt = &at
				break
			}
		}
		out = append(out, s)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID > out[j].ID })
	return out, nil
}

func (c memConversations) GetControlMode(_ context.Context, id int64) (entities.ControlMode, error) {
	c.mu.Lock()
	c.modeReads++
	n, hook := c.modeReads, c.onModeRead
	conv, ok := c.conversations[id]
	var mode entities.ControlMode
	if ok {
		mode = conv.ControlMode
	}
	c.mu.Unlock()
	if !ok {
		return "", entities.ErrConversationNotFound
	}
	if hook != nil {
		hook(id, n)
	}
	return mode, nil
}

func (c memConversations) TransitionControlMode(_ context.Context, id int64, from, to entities.ControlMode) (bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	conv, ok := c.conversations[id]
	if !ok || conv.ControlMode != from {
		return false, nil
	}
	conv.ControlMode = to
	return true, nil
}

func (c memConversations) SetControlMode(_ context.Context, id int64, mode entities.ControlMode) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	conv, ok := c.conversations[id]
	if !ok {
		return entities.ErrConversationNotFound
	}
	conv.ControlMode = mode
	return nil
}

func (c memConversations) mode(id int64) entities.ControlMode {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.conversations[id].ControlMode
}

type memMessages struct{ *memStore }

func (m memMessages) Append(_ context.Context, msg *entities.Message) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.appendErr != nil && msg.Origin != entities.OriginCustomer {
		return m.appendErr
	}
	msg.ID = m.id()
	msg.CreatedAt = time.Now()
	m.messages = append(m.messages, *msg)
	return nil
}

func (m memMessages) Recent(_ context.Context, conversationID int64, limit int) ([]entities.Message, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var all []entities.Message
	for _, msg := range m.messages {
		if msg.ConversationID == conversationID {
			all = append(all, msg)
		}
	}
	if len(all) > limit {
		all = all[len(all)-limit:]
	}
	return all, nil
}

func (m memMessages) byOrigin(convID int64, origin entities.Origin) []entities.Message {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []entities.Message
	for _, msg := range m.messages {
		if msg.ConversationID == convID && msg.Origin == origin {
			out = append(out, msg)
		}
	}
	return out
}

type sentMessage struct {
	Token   string
	ChatID  int64
	Text    string
	ReplyTo int64
}

type fakeChannel struct {
	mu         sync.Mutex
	sent       []sentMessage
	composing  int
	nextID     int64
	sendErr    error
	identity   *entities.BotIdentity
	validErr   error
	webhookErr error
	registered []string
	removed    []string
}

func (f *fakeChannel) ValidateToken(_ context.Context, _ string) (*entities.BotIdentity, error) {
	if f.validErr != nil {
		return nil, f.validErr
	}
	return f.identity, nil
}

func (f *fakeChannel) RegisterWebhook(_ context.Context, token string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.webhookErr != nil {
		return f.webhookErr
	}
	f.registered = append(f.registered, token)
	return nil
}

func (f *fakeChannel) UnregisterWebhook(_ context.Context, token string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.removed = append(f.removed, token)
	return nil
}

func (f *fakeChannel) SendMessage(_ context.Context, token string, chatID int64, text string, replyTo int64) (*entities.Delivery, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.sendErr != nil {
		return nil, f.sendErr
	}
	f.nextID++
	f.sent = append(f.sent, sentMessage{Token: token, ChatID: chatID, Text: text, ReplyTo: replyTo})
	return &entities.Delivery{MessageID: 500 + f.nextID}, nil
}

func (f *fakeChannel) SendComposing(_ context.Context, _ string, _ int64) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.composing++
	return errors.New("typing unavailable")
}

func (f *fakeChannel) sentTexts() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []string
	for _, s := range f.sent {
		out = append(out, s.Text)
	}
	return out
}

type fakeEngine struct {
	mu       sync.Mutex
	result   entities.Generation
	err      error
	requests []entities.GenerationRequest
	block    chan struct{}
}

func (f *fakeEngine) Generate(ctx context.Context, req entities.GenerationRequest) (entities.Generation, error) {
	f.mu.Lock()
	f.requests = append(f.requests, req)
	block := f.block
	f.mu.Unlock()
	if block != nil {
		select {
		case <-block:
		case <-ctx.Done():
			return entities.Generation{}, ctx.Err()
		}
	}
	return f.result, f.err
}

func (f *fakeEngine) CheckHealth(context.Context) bool { return f.err == nil }

func (f *fakeEngine) lastRequest() entities.GenerationRequest {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.requests[len(f.requests)-1]
}

type fakeDispatcher struct {
	mu     sync.Mutex
	events []entities.InboundEvent
	err    error
}

func (f *fakeDispatcher) Dispatch(_ context.Context, evt entities.InboundEvent) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.events = append(f.events, evt)
	return f.err
}

type mutexLocker struct {
	mu    sync.Mutex
	locks int
}

func (l *mutexLocker) Lock(_ context.Context, _ int64) (func(), error) {
	l.mu.Lock()
	l.locks++
	return l.mu.Unlock, nil
}
