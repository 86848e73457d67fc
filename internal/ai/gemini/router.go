package gemini

import (
	"context"
	"encoding/json"
	"strings"
	"unicode/utf8"

	_ "embed"

	"go.uber.org/zap"

	"github.com/xenonwellz/autoplybot/internal/ai"
	"github.com/xenonwellz/autoplybot/internal/history"
	"github.com/xenonwellz/autoplybot/internal/textutil"
)

//go:embed router_prompt.md
var routerPrompt string

const (
	// Shown when the routing call itself fails. The user always gets an
	// answer, never an error.
	fallbackApology = "I'm sorry, I encountered an issue. Could you please try again?"
	fallbackEmpty   = "I'm here to help! Could you please tell me more about what you need?"

	defaultMaxLogLength = 200
)

type contentGenerator interface {
	GenerateContent(ctx context.Context, system, message string) (string, error)
	Model() string
}

// Router classifies inbound messages with the light model. Route is total:
// any model, transport or parse failure degrades to a conversational intent.
type Router struct {
	generator contentGenerator
	logger    *zap.Logger
	maxLogLen int
}

func NewRouter(generator contentGenerator, maxLogLength int, logger *zap.Logger) *Router {
	if maxLogLength <= 0 {
		maxLogLength = defaultMaxLogLength
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Router{generator: generator, logger: logger, maxLogLen: maxLogLength}
}

// routerReply is the rigid two-shape contract the model is instructed to emit.
type routerReply struct {
	Intent         string `json:"intent"`
	Response       string `json:"response"`
	JobDescription string `json:"jobDescription"`
	RecipientEmail string `json:"recipientEmail"`
}

func (r *Router) Route(ctx context.Context, message, cvText string, hist []history.Message) *ai.Intent {
	prompt := buildRouterMessage(message, hist)
	system := buildRouterSystem(cvText)

	r.logger.Debug("router request",
		zap.String("model", r.generator.Model()),
		zap.Int("prompt_length", utf8.RuneCountInString(prompt)),
		zap.String("prompt_preview", textutil.TruncateForLog(prompt, r.maxLogLen)),
	)

	raw, err := r.generator.GenerateContent(ctx, system, prompt)
	if err != nil {
		r.logger.Warn("router call failed, degrading to conversation", zap.Error(err))
		return &ai.Intent{Kind: ai.IntentConversation, Response: fallbackApology}
	}

	r.logger.Debug("router response",
		zap.Int("response_length", utf8.RuneCountInString(raw)),
		zap.String("response_preview", textutil.TruncateForLog(raw, r.maxLogLen)),
	)

	return parseIntent(raw)
}

func buildRouterSystem(cvText string) string {
	var b strings.Builder
	b.WriteString(routerPrompt)
	if strings.TrimSpace(cvText) != "" {
		b.WriteString("\n\nUser's CV content:\n")
		b.WriteString(cvText)
	} else {
		b.WriteString("\n\nNOTE: The user has NOT uploaded a CV yet. If they ask about their CV or try to apply, remind them to upload it first.")
	}
	return b.String()
}

func buildRouterMessage(message string, hist []history.Message) string {
	var b strings.Builder
	if len(hist) > 0 {
		b.WriteString("Previous conversation:\n")
		for _, m := range hist {
			b.WriteString(m.ContextLine())
			b.WriteString("\n")
		}
		b.WriteString("\n")
	}
	b.WriteString("User message: ")
	b.WriteString(message)
	b.WriteString("\n\nRespond with the appropriate JSON format:")
	return b.String()
}

// parseIntent is a parse-or-default function: whatever the model produced,
// the result is a well-formed intent. Unparseable output is never treated as
// an application, since that branch can end in an email being drafted.
func parseIntent(raw string) *ai.Intent {
	text := strings.TrimSpace(raw)
	if text == "" {
		return &ai.Intent{Kind: ai.IntentConversation, Response: fallbackEmpty}
	}

	object, ok := firstJSONObject(text)
	if !ok {
		return &ai.Intent{Kind: ai.IntentConversation, Response: textutil.StripMarkdown(text)}
	}

	var reply routerReply
	if err := json.Unmarshal([]byte(object), &reply); err != nil {
		return &ai.Intent{Kind: ai.IntentConversation, Response: textutil.StripMarkdown(text)}
	}

	if reply.Intent == "job_application" && strings.TrimSpace(reply.JobDescription) != "" {
		return &ai.Intent{
			Kind:           ai.IntentJobApplication,
			JobDescription: strings.TrimSpace(reply.JobDescription),
			RecipientEmail: strings.TrimSpace(reply.RecipientEmail),
		}
	}

	response := strings.TrimSpace(reply.Response)
	if response == "" {
		response = text
	}
	return &ai.Intent{Kind: ai.IntentConversation, Response: textutil.StripMarkdown(response)}
}

// firstJSONObject extracts the first well-formed top-level JSON object from
// text that may carry leading or trailing model commentary.
func firstJSONObject(text string) (string, bool) {
	start := strings.IndexByte(text, '{')
	if start == -1 {
		return "", false
	}

	depth := 0
	inString := false
	escaped := false
	for i := start; i < len(text); i++ {
		c := text[i]
		if inString {
			switch {
			case escaped:
				escaped = false
			case c == '\\':
				escaped = true
			case c == '"':
				inString = false
			}
			continue
		}
		switch c {
		case '"':
			inString = true
		case '{':
			depth++
		case '}':
			depth--
			if depth == 0 {
				return text[start : i+1], true
			}
		}
	}

	return "", false
}
