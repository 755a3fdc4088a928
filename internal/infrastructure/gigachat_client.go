package infrastructure

import (
	"bytes"
	"context"
	"crypto/tls"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/businessly/businessly/internal/entities"
	"github.com/businessly/businessly/internal/logger"
)

const (
	gigaChatTemperature    = 0.7
	gigaChatMaxTokens      = 500
	gigaChatRequestTimeout = 60 * time.Second
	promptHistoryWindow    = 10
	maxErrorBodyBytes      = 512
)

const systemPromptTemplate = `Ты — AI-консультант для бизнеса. Отвечай профессионально и дружелюбно.

Описание бизнеса:
%s

Правила:
1. Отвечай только на вопросы, связанные с этим бизнесом
2. Если не знаешь точного ответа, честно скажи об этом
3. Если вопрос требует участия владельца, укажи это
4. Отвечай кратко и по делу
5. Используй вежливый тон

Если ты НЕ УВЕРЕН в ответе или вопрос слишком сложный, начни ответ с [UNSURE].`

type GigaChatConfig struct {
	AuthKey            string
	Scope              string
	OAuthURL           string
	APIURL             string
	Model              string
	InsecureSkipVerify bool
}

// GigaChatClient is the automated response engine backed by the GigaChat
// chat completions API.
type GigaChatClient struct {
	cfg        GigaChatConfig
	httpClient *http.Client
	lease      *CredentialLease
	logger     *slog.Logger
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatRequest struct {
	Model       string        `json:"model"`
	Messages    []chatMessage `json:"messages"`
	Temperature float64       `json:"temperature"`
	MaxTokens   int           `json:"max_tokens"`
}

type chatResponse struct {
	Choices []struct {
		Message chatMessage `json:"message"`
	} `json:"choices"`
}

type oauthResponse struct {
	AccessToken string `json:"access_token"`
	ExpiresAt   int64  `json:"expires_at"`
}

func NewGigaChatClient(cfg GigaChatConfig, log *slog.Logger, opts ...LeaseOption) *GigaChatClient {
	if cfg.Model == "" {
		cfg.Model = "GigaChat"
	}
	transport := http.DefaultTransport.(*http.Transport).Clone()
	if cfg.InsecureSkipVerify {
		transport.TLSClientConfig = &tls.Config{InsecureSkipVerify: true} //nolint:gosec // upstream uses a non-public CA
	}

	c := &GigaChatClient{
		cfg:        cfg,
		httpClient: &http.Client{Transport: transport},
		logger:     logger.Component(log, "gigachat"),
	}
	c.lease = NewCredentialLease(c.fetchAccessToken, opts...)
	return c
}

// Generate asks the model for a reply to text in the context of the business
// profile and recent history.
func (c *GigaChatClient) Generate(ctx context.Context, req entities.GenerationRequest) (entities.Generation, error) {
	token, err := c.lease.Token(ctx)
	if err != nil {
		return entities.Generation{}, fmt.Errorf("gigachat auth: %w", err)
	}

	body, err := json.Marshal(chatRequest{
		Model:       c.cfg.Model,
		Messages:    buildPrompt(req),
		Temperature: gigaChatTemperature,
		MaxTokens:   gigaChatMaxTokens,
	})
	if err != nil {
		return entities.Generation{}, err
	}

	ctx, cancel := context.WithTimeout(ctx, gigaChatRequestTimeout)
	defer cancel()

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, strings.TrimRight(c.cfg.APIURL, "/")+"/chat/completions", bytes.NewReader(body))
	if err != nil {
		return entities.Generation{}, err
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Accept", "application/json")
	httpReq.Header.Set("Authorization", "Bearer "+token)

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return entities.Generation{}, fmt.Errorf("gigachat completion: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusUnauthorized {
		c.lease.Invalidate()
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return entities.Generation{}, statusError("gigachat completion", resp)
	}

	var out chatResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return entities.Generation{}, fmt.Errorf("gigachat completion: decode: %w", err)
	}
	if len(out.Choices) == 0 {
		return entities.Generation{}, errors.New("gigachat completion: no choices")
	}

	reply, confidence := ScoreReply(out.Choices[0].Message.Content)
	// A bare uncertainty marker is a low-confidence answer, not a failure.
	if reply == "" && confidence != UncertainConfidence {
		return entities.Generation{}, errors.New("gigachat completion: empty reply")
	}
	c.logger.Debug("reply generated", slog.Float64("confidence", confidence), slog.Int("history", len(req.History)))
	return entities.Generation{Reply: reply, Confidence: confidence}, nil
}

// CheckHealth reports whether a credential lease can be obtained.
func (c *GigaChatClient) CheckHealth(ctx context.Context) bool {
	if _, err := c.lease.Token(ctx); err != nil {
		c.logger.Warn("health check failed", slog.Any("error", err))
		return false
	}
	return true
}

func (c *GigaChatClient) fetchAccessToken(ctx context.Context) (string, error) {
	form := url.Values{"scope": {c.cfg.Scope}}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.cfg.OAuthURL, strings.NewReader(form.Encode()))
	if err != nil {
		return "", err
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.Header.Set("Accept", "application/json")
	req.Header.Set("RqUID", uuid.NewString())
	req.Header.Set("Authorization", "Basic "+c.cfg.AuthKey)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("gigachat oauth: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return "", statusError("gigachat oauth", resp)
	}

	var out oauthResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return "", fmt.Errorf("gigachat oauth: decode: %w", err)
	}
	c.logger.Info("access token acquired")
	return out.AccessToken, nil
}

// buildPrompt assembles the chat messages sent to the model: the system
// instruction, the tail of the history and the current customer text.
func buildPrompt(req entities.GenerationRequest) []chatMessage {
	history := req.History
	if len(history) > promptHistoryWindow {
		history = history[len(history)-promptHistoryWindow:]
	}

	messages := make([]chatMessage, 0, len(history)+2)
	messages = append(messages, chatMessage{
		Role:    "system",
		Content: fmt.Sprintf(systemPromptTemplate, req.BusinessProfile),
	})
	for _, m := range history {
		role := "assistant"
		if m.Origin == entities.OriginCustomer {
			role = "user"
		}
		messages = append(messages, chatMessage{Role: role, Content: m.Content})
	}
	messages = append(messages, chatMessage{Role: "user", Content: req.CustomerText})
	return messages
}

func statusError(op string, resp *http.Response) error {
	snippet, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBodyBytes))
	return fmt.Errorf("%s: unexpected status %d: %s", op, resp.StatusCode, strings.TrimSpace(string(snippet)))
}
