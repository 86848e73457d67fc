package gemini

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"go.uber.org/zap"

	"github.com/xenonwellz/autoplybot/internal/ai"
	"github.com/xenonwellz/autoplybot/internal/history"
)

type stubGenerator struct {
	response    string
	err         error
	lastSystem  string
	lastMessage string
}

func (s *stubGenerator) GenerateContent(_ context.Context, system, message string) (string, error) {
	s.lastSystem = system
	s.lastMessage = message
	if s.err != nil {
		return "", s.err
	}
	return s.response, nil
}

func (s *stubGenerator) Model() string { return "stub-model" }

func TestRouteJobApplication(t *testing.T) {
	t.Parallel()

	stub := &stubGenerator{response: `{"intent": "job_application", "jobDescription": "Go developer at Acme", "recipientEmail": "jobs@acme.example"}`}
	router := NewRouter(stub, 0, zap.NewNop())

	intent := router.Route(context.Background(), "please apply to this", "my cv text", nil)

	if intent.Kind != ai.IntentJobApplication {
		t.Fatalf("expected job application intent, got %s", intent.Kind)
	}
	if intent.JobDescription != "Go developer at Acme" {
		t.Fatalf("unexpected job description: %q", intent.JobDescription)
	}
	if intent.RecipientEmail != "jobs@acme.example" {
		t.Fatalf("unexpected recipient: %q", intent.RecipientEmail)
	}
}

func TestRouteConversation(t *testing.T) {
	t.Parallel()

	stub := &stubGenerator{response: `{"intent": "conversation", "response": "Hello! How can I help?"}`}
	router := NewRouter(stub, 0, zap.NewNop())

	intent := router.Route(context.Background(), "hi", "cv", nil)

	if intent.Kind != ai.IntentConversation {
		t.Fatalf("expected conversation intent, got %s", intent.Kind)
	}
	if intent.Response != "Hello! How can I help?" {
		t.Fatalf("unexpected response: %q", intent.Response)
	}
}

func TestRouteExtractsJSONFromCommentary(t *testing.T) {
	t.Parallel()

	stub := &stubGenerator{response: "Sure, here you go:\n" +
		`{"intent": "conversation", "response": "Your CV mentions Go and Postgres."}` +
		"\nLet me know if you need more."}
	router := NewRouter(stub, 0, zap.NewNop())

	intent := router.Route(context.Background(), "what's on my cv?", "cv", nil)

	if intent.Kind != ai.IntentConversation {
		t.Fatalf("expected conversation intent, got %s", intent.Kind)
	}
	if intent.Response != "Your CV mentions Go and Postgres." {
		t.Fatalf("unexpected response: %q", intent.Response)
	}
}

func TestRouteDegradesOnGarbledOutput(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name     string
		response string
	}{
		{name: "no json at all", response: "I think you want to chat."},
		{name: "broken json", response: `{"intent": "conversation", "response": `},
		{name: "empty output", response: ""},
		{name: "application without description", response: `{"intent": "job_application", "jobDescription": ""}`},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			stub := &stubGenerator{response: tc.response}
			router := NewRouter(stub, 0, zap.NewNop())

			intent := router.Route(context.Background(), "msg", "cv", nil)

			if intent == nil {
				t.Fatal("route must always return an intent")
			}
			if intent.Kind != ai.IntentConversation {
				t.Fatalf("garbled output must degrade to conversation, got %s", intent.Kind)
			}
			if intent.Response == "" {
				t.Fatal("degraded intent must still carry a response")
			}
		})
	}
}

func TestRouteDegradesOnTransportFailure(t *testing.T) {
	t.Parallel()

	stub := &stubGenerator{err: errors.New("connection refused")}
	router := NewRouter(stub, 0, zap.NewNop())

	intent := router.Route(context.Background(), "hi", "cv", nil)

	if intent.Kind != ai.IntentConversation {
		t.Fatalf("expected conversation intent, got %s", intent.Kind)
	}
	if intent.Response != fallbackApology {
		t.Fatalf("expected fixed apology, got %q", intent.Response)
	}
}

func TestRouteSystemMentionsMissingCV(t *testing.T) {
	t.Parallel()

	stub := &stubGenerator{response: `{"intent": "conversation", "response": "ok"}`}
	router := NewRouter(stub, 0, zap.NewNop())

	router.Route(context.Background(), "hi there", "", nil)

	if !strings.Contains(stub.lastSystem, "NOT uploaded a CV") {
		t.Fatalf("system instruction must flag the missing CV, got: %s", stub.lastSystem)
	}

	router.Route(context.Background(), "hi there", "ten years of Go", nil)
	if !strings.Contains(stub.lastSystem, "ten years of Go") {
		t.Fatalf("system instruction must embed the CV text, got: %s", stub.lastSystem)
	}
}

func TestRouteIncludesHistoryWithTimestamps(t *testing.T) {
	t.Parallel()

	stub := &stubGenerator{response: `{"intent": "conversation", "response": "ok"}`}
	router := NewRouter(stub, 0, zap.NewNop())

	hist := []history.Message{{
		Role:      history.RoleUser,
		Content:   "earlier question",
		Timestamp: time.Date(2025, time.June, 1, 9, 30, 0, 0, time.UTC),
	}}

	router.Route(context.Background(), "follow-up", "cv", hist)

	if !strings.Contains(stub.lastMessage, "Previous conversation:") {
		t.Fatalf("expected history block, got: %s", stub.lastMessage)
	}
	if !strings.Contains(stub.lastMessage, "user: [Jun 1, 2025 09:30] earlier question") {
		t.Fatalf("expected rendered history line, got: %s", stub.lastMessage)
	}
}

func TestFirstJSONObjectHandlesNestedBraces(t *testing.T) {
	t.Parallel()

	text := `prefix {"a": {"b": "c}"}, "d": 1} suffix {"ignored": true}`
	object, ok := firstJSONObject(text)
	if !ok {
		t.Fatal("expected an object")
	}
	if object != `{"a": {"b": "c}"}, "d": 1}` {
		t.Fatalf("unexpected object: %s", object)
	}
}
