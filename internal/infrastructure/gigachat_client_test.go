package infrastructure

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/businessly/businessly/internal/entities"
)

type gigaChatStub struct {
	server     *httptest.Server
	oauthCalls int32
	chatCalls  int32
	reply      string
	chatStatus int
	lastChat   chatRequest
	lastAuth   string
}

func newGigaChatStub(t *testing.T) *gigaChatStub {
	t.Helper()
	s := &gigaChatStub{chatStatus: http.StatusOK, reply: "Да, мы работаем с 9 до 18."}
	mux := http.NewServeMux()
	mux.HandleFunc("/oauth", func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&s.oauthCalls, 1)
		assert.Equal(t, "Basic auth-key", r.Header.Get("Authorization"))
		assert.NotEmpty(t, r.Header.Get("RqUID"))
		assert.NoError(t, r.ParseForm())
		assert.Equal(t, "GIGACHAT_API_PERS", r.PostForm.Get("scope"))
		w.Header().Set("Content-Type", "application/json")
		fmt.Fprintf(w, `{"access_token":"access-%d","expires_at":0}`, atomic.LoadInt32(&s.oauthCalls))
	})
	mux.HandleFunc("/api/v1/chat/completions", func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&s.chatCalls, 1)
		s.lastAuth = r.Header.Get("Authorization")
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&s.lastChat))
		if s.chatStatus != http.StatusOK {
			http.Error(w, "upstream broke", s.chatStatus)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]any{
			"choices": []map[string]any{{"message": map[string]string{"role": "assistant", "content": s.reply}}},
		})
	})
	s.server = httptest.NewServer(mux)
	t.Cleanup(s.server.Close)
	return s
}

func (s *gigaChatStub) client() *GigaChatClient {
	return NewGigaChatClient(GigaChatConfig{
		AuthKey:  "auth-key",
		Scope:    "GIGACHAT_API_PERS",
		OAuthURL: s.server.URL + "/oauth",
		APIURL:   s.server.URL + "/api/v1",
	}, nil)
}

func TestGigaChatGenerate(t *testing.T) {
	stub := newGigaChatStub(t)
	client := stub.client()

	history := []entities.Message{
		{Origin: entities.OriginCustomer, Content: "Здравствуйте"},
		{Origin: entities.OriginAssistant, Content: "Добрый день!"},
		{Origin: entities.OriginOwner, Content: "Это владелец"},
	}
	gen, err := client.Generate(context.Background(), entities.GenerationRequest{
		CustomerText:    "Вы работаете в субботу?",
		BusinessProfile: "Пекарня на Ленина, 5",
		History:         history,
	})
	require.NoError(t, err)
	assert.Equal(t, "Да, мы работаем с 9 до 18.", gen.Reply)
	assert.InDelta(t, 0.8, gen.Confidence, 1e-9)

	assert.Equal(t, "Bearer access-1", stub.lastAuth)
	assert.Equal(t, "GigaChat", stub.lastChat.Model)
	assert.InDelta(t, 0.7, stub.lastChat.Temperature, 1e-9)
	assert.Equal(t, 500, stub.lastChat.MaxTokens)

	msgs := stub.lastChat.Messages
	require.Len(t, msgs, 5)
	assert.Equal(t, "system", msgs[0].Role)
	assert.Contains(t, msgs[0].Content, "Пекарня на Ленина, 5")
	assert.Contains(t, msgs[0].Content, "[UNSURE]")
	assert.Equal(t, "user", msgs[1].Role)
	assert.Equal(t, "assistant", msgs[2].Role)
	assert.Equal(t, "assistant", msgs[3].Role)
	assert.Equal(t, chatMessage{Role: "user", Content: "Вы работаете в субботу?"}, msgs[4])

	_, err = client.Generate(context.Background(), entities.GenerationRequest{CustomerText: "ещё"})
	require.NoError(t, err)
	assert.EqualValues(t, 1, atomic.LoadInt32(&stub.oauthCalls))
	assert.EqualValues(t, 2, atomic.LoadInt32(&stub.chatCalls))
}

func TestGigaChatGenerateUnsure(t *testing.T) {
	stub := newGigaChatStub(t)
	stub.reply = "[UNSURE] возможно, уточните в поддержке"

	gen, err := stub.client().Generate(context.Background(), entities.GenerationRequest{CustomerText: "?"})
	require.NoError(t, err)
	assert.Equal(t, "возможно, уточните в поддержке", gen.Reply)
	assert.InDelta(t, 0.3, gen.Confidence, 1e-9)
}

func TestGigaChatGenerateBareMarker(t *testing.T) {
	stub := newGigaChatStub(t)
	stub.reply = "  [UNSURE]  "

	gen, err := stub.client().Generate(context.Background(), entities.GenerationRequest{CustomerText: "?"})
	require.NoError(t, err)
	assert.Empty(t, gen.Reply)
	assert.InDelta(t, 0.3, gen.Confidence, 1e-9)
}

func TestGigaChatGenerateEmptyReply(t *testing.T) {
	stub := newGigaChatStub(t)
	stub.reply = "   "

	_, err := stub.client().Generate(context.Background(), entities.GenerationRequest{CustomerText: "?"})
	require.ErrorContains(t, err, "empty reply")
}

func TestGigaChatGenerateUpstreamError(t *testing.T) {
	stub := newGigaChatStub(t)
	stub.chatStatus = http.StatusInternalServerError

	_, err := stub.client().Generate(context.Background(), entities.GenerationRequest{CustomerText: "?"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "500")
}

func TestGigaChatUnauthorizedDropsLease(t *testing.T) {
	stub := newGigaChatStub(t)
	stub.chatStatus = http.StatusUnauthorized
	client := stub.client()

	_, err := client.Generate(context.Background(), entities.GenerationRequest{CustomerText: "?"})
	require.Error(t, err)
	assert.True(t, client.lease.ExpiresAt().IsZero())
}

func TestGigaChatTrimsPromptHistory(t *testing.T) {
	var history []entities.Message
	for i := 0; i < 20; i++ {
		history = append(history, entities.Message{Origin: entities.OriginCustomer, Content: fmt.Sprintf("m%d", i)})
	}
	msgs := buildPrompt(entities.GenerationRequest{CustomerText: "now", History: history})
	require.Len(t, msgs, 12)
	assert.Equal(t, "m10", msgs[1].Content)
	assert.Equal(t, "m19", msgs[10].Content)
	assert.Equal(t, "now", msgs[11].Content)
}

func TestGigaChatCheckHealth(t *testing.T) {
	stub := newGigaChatStub(t)
	assert.True(t, stub.client().CheckHealth(context.Background()))

	down := NewGigaChatClient(GigaChatConfig{OAuthURL: stub.server.URL + "/missing"}, nil)
	assert.False(t, down.CheckHealth(context.Background()))
}

func TestGigaChatEmptyChoices(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if strings.HasSuffix(r.URL.Path, "/oauth") {
			fmt.Fprint(w, `{"access_token":"a"}`)
			return
		}
		fmt.Fprint(w, `{"choices":[]}`)
	}))
	defer srv.Close()

	client := NewGigaChatClient(GigaChatConfig{OAuthURL: srv.URL + "/oauth", APIURL: srv.URL}, nil)
	_, err := client.Generate(context.Background(), entities.GenerationRequest{CustomerText: "?"})
	require.ErrorContains(t, err, "no choices")
}
