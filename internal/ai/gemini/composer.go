package gemini

import (
	"context"
	"fmt"
	"strings"

	_ "embed"

	"go.uber.org/zap"
	"google.golang.org/genai"

	"github.com/xenonwellz/autoplybot/internal/ai"
	"github.com/xenonwellz/autoplybot/internal/ai/draft"
	"github.com/xenonwellz/autoplybot/internal/history"
	"github.com/xenonwellz/autoplybot/internal/textutil"
)

//go:embed composer_prompt.md
var composerPrompt string

// maxSteps caps the agentic loop: at most this many model turns, tool
// responses included, per generation request.
const maxSteps = 5

// Composer drafts application emails with the heavy model and the
// generate_email tool. The tool formats; the model only decides when to call
// it and with which facts from the CV.
type Composer struct {
	chats  chatCreator
	model  string
	logger *zap.Logger
}

func NewComposer(generator *Generator, logger *zap.Logger) *Composer {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Composer{
		chats:  generator.chats,
		model:  generator.model,
		logger: logger,
	}
}

func (c *Composer) Compose(ctx context.Context, req ai.ComposeRequest) (*ai.ComposeResult, error) {
	if strings.TrimSpace(req.CVText) == "" {
		return nil, fmt.Errorf("cv text is required for application generation")
	}

	config := &genai.GenerateContentConfig{
		SystemInstruction: systemContent(composerPrompt + "\n\nUser's CV content:\n" + req.CVText),
		Tools: []*genai.Tool{{
			FunctionDeclarations: []*genai.FunctionDeclaration{draft.Declaration()},
		}},
	}

	chat, err := c.chats.Create(ctx, c.model, config, historyContents(req.History))
	if err != nil {
		return nil, fmt.Errorf("create chat session: %w", err)
	}

	parts := []genai.Part{{Text: applicationPrompt(req)}}

	var (
		narration strings.Builder
		lastDraft *ai.EmailDraft
	)

	for step := 0; step < maxSteps; step++ {
		resp, err := chat.SendMessage(ctx, parts...)
		if err != nil {
			return nil, fmt.Errorf("generate application: %w", err)
		}

		text, calls := splitResponse(resp)
		if text != "" {
			if narration.Len() > 0 {
				narration.WriteString("\n")
			}
			narration.WriteString(text)
		}

		if len(calls) == 0 {
			break
		}

		parts = parts[:0]
		for _, call := range calls {
			parts = append(parts, genai.Part{
				FunctionResponse: c.executeTool(call, &lastDraft),
			})
		}
	}

	response := textutil.StripMarkdown(narration.String())
	if response == "" && lastDraft != nil {
		response = "I have drafted your application email. Please review the preview."
	}

	return &ai.ComposeResult{Response: response, Draft: lastDraft}, nil
}

// executeTool runs a single tool invocation. Unknown tools and bad arguments
// are reported back to the model rather than failing the generation.
func (c *Composer) executeTool(call *genai.FunctionCall, lastDraft **ai.EmailDraft) *genai.FunctionResponse {
	if call.Name != draft.ToolName {
		c.logger.Warn("model invoked unknown tool", zap.String("tool", call.Name))
		return &genai.FunctionResponse{
			Name:     call.Name,
			Response: map[string]any{"error": "unknown tool"},
		}
	}

	in, err := draft.DecodeArgs(call.Args)
	if err != nil {
		c.logger.Warn("invalid tool arguments", zap.Error(err))
		return &genai.FunctionResponse{
			Name:     call.Name,
			Response: map[string]any{"error": err.Error()},
		}
	}

	out := draft.Compose(in)
	*lastDraft = &ai.EmailDraft{
		Subject:        out.Subject,
		Body:           out.Body,
		RecipientEmail: strings.TrimSpace(in.RecipientEmail),
	}

	c.logger.Debug("drafting tool invoked",
		zap.String("subject", out.Subject),
		zap.String("recipient", (*lastDraft).RecipientEmail),
	)

	return &genai.FunctionResponse{
		Name: call.Name,
		Response: map[string]any{
			"subject": out.Subject,
			"body":    out.Body,
		},
	}
}

func applicationPrompt(req ai.ComposeRequest) string {
	if strings.TrimSpace(req.RecipientEmail) != "" {
		return fmt.Sprintf("Generate a job application email for this position. Send to: %s\n\nJob Description:\n%s",
			req.RecipientEmail, req.JobDescription)
	}
	return fmt.Sprintf("Generate a job application email for this position. Ask the user for the recipient email after generating.\n\nJob Description:\n%s",
		req.JobDescription)
}

func historyContents(hist []history.Message) []*genai.Content {
	contents := make([]*genai.Content, 0, len(hist))
	for _, m := range hist {
		role := genai.RoleUser
		if m.Role == history.RoleAssistant {
			role = genai.RoleModel
		}
		contents = append(contents, &genai.Content{
			Role:  role,
			Parts: []*genai.Part{{Text: m.TimedContent()}},
		})
	}
	return contents
}

func splitResponse(resp *genai.GenerateContentResponse) (string, []*genai.FunctionCall) {
	if resp == nil {
		return "", nil
	}

	var (
		texts []string
		calls []*genai.FunctionCall
	)
	for _, candidate := range resp.Candidates {
		if candidate == nil || candidate.Content == nil {
			continue
		}
		for _, part := range candidate.Content.Parts {
			if part == nil {
				continue
			}
			if part.FunctionCall != nil {
				calls = append(calls, part.FunctionCall)
			}
			if text := strings.TrimSpace(part.Text); text != "" {
				texts = append(texts, text)
			}
		}
	}

	return strings.Join(texts, "\n"), calls
}
