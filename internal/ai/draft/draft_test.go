package draft

import (
	"strings"
	"testing"
)

func TestComposeSubject(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		input   Input
		subject string
	}{
		{
			name:    "title only",
			input:   Input{JobTitle: "Backend Engineer"},
			subject: "Application for Backend Engineer Position",
		},
		{
			name:    "title and company",
			input:   Input{JobTitle: "SRE", CompanyName: "Acme"},
			subject: "Application for SRE at Acme",
		},
		{
			name:    "neither",
			input:   Input{},
			subject: "Job Application",
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			out := Compose(tc.input)
			if out.Subject != tc.subject {
				t.Fatalf("subject = %q, want %q", out.Subject, tc.subject)
			}
		})
	}
}

func TestComposeBodyGreetingAndOpening(t *testing.T) {
	t.Parallel()

	withCompany := Compose(Input{CompanyName: "Acme", JobTitle: "SRE"})
	if !strings.HasPrefix(withCompany.Body, "Dear Acme Hiring Team,") {
		t.Fatalf("expected company greeting, got %q", withCompany.Body)
	}
	if !strings.Contains(withCompany.Body, "interest in the SRE position.") {
		t.Fatalf("expected title opening, got %q", withCompany.Body)
	}

	bare := Compose(Input{})
	if !strings.HasPrefix(bare.Body, "Dear Hiring Manager,") {
		t.Fatalf("expected default greeting, got %q", bare.Body)
	}
	if !strings.Contains(bare.Body, "open position at your company.") {
		t.Fatalf("expected default opening, got %q", bare.Body)
	}
	if !strings.HasSuffix(bare.Body, "Best regards") {
		t.Fatalf("expected fixed closing, got %q", bare.Body)
	}
}

func TestDecodeArgs(t *testing.T) {
	t.Parallel()

	in, err := DecodeArgs(map[string]any{
		"jobDescription": "We need a Go developer",
		"cvText":         "Five years of Go",
		"recipientEmail": "jobs@acme.example",
		"jobTitle":       "Go Developer",
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if in.RecipientEmail != "jobs@acme.example" {
		t.Fatalf("unexpected recipient: %q", in.RecipientEmail)
	}
	if in.CompanyName != "" {
		t.Fatalf("expected empty company, got %q", in.CompanyName)
	}
	if in.JobTitle != "Go Developer" {
		t.Fatalf("unexpected title: %q", in.JobTitle)
	}
}

func TestDecodeArgsRejectsWrongTypes(t *testing.T) {
	t.Parallel()

	_, err := DecodeArgs(map[string]any{
		"jobDescription": 42,
	})
	if err == nil {
		t.Fatal("expected decode error for non-string argument")
	}
}
