// Package gemini implements both model stages of the pipeline on the Google
// GenAI API: the lightweight intent router and the tool-calling composer.
package gemini

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"regexp"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"
	"google.golang.org/genai"

	"github.com/xenonwellz/autoplybot/internal/utils"
)

// Default models for the two pipeline stages: routing rides a cheap fast
// model, drafting a stronger one.
const (
	DefaultLightModel = "gemini-2.5-flash"
	DefaultHeavyModel = "gemini-2.5-pro"
)

const (
	defaultMaxRetries = 2
	retryBaseDelay    = 2 * time.Second
	// Quota errors sometimes ask for a delay longer than a chat turn is
	// worth waiting; give up instead.
	maxRetryAfter = 30 * time.Second
)

var retryAfterRe = regexp.MustCompile(`retry after (\d+)`)

// chatSession is the slice of *genai.Chat the package depends on.
type chatSession interface {
	SendMessage(ctx context.Context, parts ...genai.Part) (*genai.GenerateContentResponse, error)
}

// chatCreator abstracts the genai chat factory so tests can substitute it.
type chatCreator interface {
	Create(ctx context.Context, model string, config *genai.GenerateContentConfig, history []*genai.Content) (chatSession, error)
}

type genaiChats struct {
	client *genai.Client
}

func (g *genaiChats) Create(ctx context.Context, model string, config *genai.GenerateContentConfig, history []*genai.Content) (chatSession, error) {
	return g.client.Chats.Create(ctx, model, config, history)
}

// Generator wraps the Google GenAI client for a single model.
type Generator struct {
	chats      chatCreator
	model      string
	maxRetries int
	logger     *zap.Logger
	baseDelay  time.Duration
}

// NewGenerator creates a Generator configured for the Gemini API backend.
// An empty model falls back to the light model.
func NewGenerator(ctx context.Context, apiKey, model string, maxRetries int, logger *zap.Logger) (*Generator, error) {
	apiKey = strings.TrimSpace(apiKey)
	if apiKey == "" {
		return nil, errors.New("gemini api key is required")
	}

	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  apiKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, fmt.Errorf("create genai client: %w", err)
	}

	if model = strings.TrimSpace(model); model == "" {
		model = DefaultLightModel
	}
	if maxRetries <= 0 {
		maxRetries = defaultMaxRetries
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	return &Generator{
		chats:      &genaiChats{client: client},
		model:      model,
		maxRetries: maxRetries,
		logger:     logger,
		baseDelay:  retryBaseDelay,
	}, nil
}

// GenerateContent sends a single message under the given system instruction
// and returns the flattened text of the first response.
func (g *Generator) GenerateContent(ctx context.Context, system, message string) (string, error) {
	if g == nil || g.chats == nil {
		return "", errors.New("gemini generator is not initialized")
	}

	message = strings.TrimSpace(message)
	if message == "" {
		return "", errors.New("message must not be empty")
	}

	config := &genai.GenerateContentConfig{
		SystemInstruction: systemContent(system),
	}

	var lastErr error
	for attempt := 1; attempt <= g.maxRetries; attempt++ {
		chat, err := g.chats.Create(ctx, g.model, config, nil)
		if err != nil {
			return "", fmt.Errorf("create chat session: %w", err)
		}

		resp, err := chat.SendMessage(ctx, genai.Part{Text: message})
		if err == nil {
			return flattenText(resp)
		}

		lastErr = err
		if !g.shouldRetry(err, attempt) {
			break
		}

		if waitErr := utils.WaitFor(ctx, g.baseDelay*time.Duration(attempt)); waitErr != nil {
			return "", waitErr
		}
	}

	return "", fmt.Errorf("generate content: %w", lastErr)
}

func (g *Generator) shouldRetry(err error, attempt int) bool {
	if attempt >= g.maxRetries {
		return false
	}

	var apiErr genai.APIError
	if !errors.As(err, &apiErr) {
		return false
	}

	if apiErr.Code == http.StatusTooManyRequests {
		if delay, ok := retryAfterDelay(apiErr.Message); ok && delay > maxRetryAfter {
			g.logger.Debug("not retrying, quota delay too long",
				zap.Duration("retry_after", delay),
			)
			return false
		}
		return true
	}

	if apiErr.Code >= http.StatusInternalServerError {
		g.logger.Debug("retrying after temporary api error",
			zap.Int("code", apiErr.Code),
			zap.String("status", apiErr.Status),
			zap.Int("attempt", attempt),
		)
		return true
	}

	return false
}

func retryAfterDelay(message string) (time.Duration, bool) {
	m := retryAfterRe.FindStringSubmatch(strings.ToLower(message))
	if m == nil {
		return 0, false
	}
	seconds, err := strconv.Atoi(m[1])
	if err != nil {
		return 0, false
	}
	return time.Duration(seconds) * time.Second, true
}

// Model returns the configured model name.
func (g *Generator) Model() string {
	if g == nil {
		return ""
	}
	return g.model
}

func systemContent(system string) *genai.Content {
	if strings.TrimSpace(system) == "" {
		return nil
	}
	return &genai.Content{Parts: []*genai.Part{{Text: system}}}
}

func flattenText(resp *genai.GenerateContentResponse) (string, error) {
	if resp == nil {
		return "", errors.New("gemini api returned empty response")
	}

	var builder strings.Builder
	for _, candidate := range resp.Candidates {
		if candidate == nil || candidate.Content == nil {
			continue
		}
		for _, part := range candidate.Content.Parts {
			if part == nil {
				continue
			}
			text := strings.TrimSpace(part.Text)
			if text == "" {
				continue
			}
			if builder.Len() > 0 {
				builder.WriteString("\n")
			}
			builder.WriteString(text)
		}
	}

	output := strings.TrimSpace(builder.String())
	if output == "" {
		return "", errors.New("gemini api returned empty response")
	}

	return output, nil
}
