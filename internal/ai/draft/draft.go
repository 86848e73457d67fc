// Package draft is the email drafting tool exposed to the generation model.
// It is a pure template: the model decides when to call it and with which
// extracted facts, the tool only formats.
package draft

import (
	"fmt"

	"github.com/mitchellh/mapstructure"
	"google.golang.org/genai"
)

// ToolName is the function name declared to the model.
const ToolName = "generate_email"

// Input are the arguments of a drafting tool call.
type Input struct {
	JobDescription string `mapstructure:"jobDescription"`
	CVText         string `mapstructure:"cvText"`
	RecipientEmail string `mapstructure:"recipientEmail"`
	CompanyName    string `mapstructure:"companyName"`
	JobTitle       string `mapstructure:"jobTitle"`
}

// Output is the formatted email.
type Output struct {
	Subject string
	Body    string
}

// Declaration describes the tool to the genai function-calling API.
func Declaration() *genai.FunctionDeclaration {
	return &genai.FunctionDeclaration{
		Name:        ToolName,
		Description: "Generate a job application email based on the job description and candidate CV. Returns email subject and body in plain text.",
		Parameters: &genai.Schema{
			Type: genai.TypeObject,
			Properties: map[string]*genai.Schema{
				"jobDescription": {
					Type:        genai.TypeString,
					Description: "The full job description or posting text",
				},
				"cvText": {
					Type:        genai.TypeString,
					Description: "The full extracted text from the candidate CV",
				},
				"recipientEmail": {
					Type:        genai.TypeString,
					Description: "The email address to send the application to",
				},
				"companyName": {
					Type:        genai.TypeString,
					Description: "The name of the company, if known",
				},
				"jobTitle": {
					Type:        genai.TypeString,
					Description: "The job title, if known",
				},
			},
			Required: []string{"jobDescription", "cvText", "recipientEmail"},
		},
	}
}

// DecodeArgs converts raw function-call arguments into an Input.
func DecodeArgs(args map[string]any) (Input, error) {
	var in Input
	if err := mapstructure.Decode(args, &in); err != nil {
		return Input{}, fmt.Errorf("decode %s arguments: %w", ToolName, err)
	}
	return in, nil
}

// Compose formats the application email deterministically.
func Compose(in Input) Output {
	return Output{
		Subject: subject(in.JobTitle, in.CompanyName),
		Body:    body(in.JobTitle, in.CompanyName),
	}
}

func subject(jobTitle, companyName string) string {
	switch {
	case jobTitle != "" && companyName != "":
		return fmt.Sprintf("Application for %s at %s", jobTitle, companyName)
	case jobTitle != "":
		return fmt.Sprintf("Application for %s Position", jobTitle)
	default:
		return "Job Application"
	}
}

func body(jobTitle, companyName string) string {
	greeting := "Dear Hiring Manager,"
	if companyName != "" {
		greeting = fmt.Sprintf("Dear %s Hiring Team,", companyName)
	}

	opening := "I am writing to express my strong interest in the open position at your company."
	if jobTitle != "" {
		opening = fmt.Sprintf("I am writing to express my strong interest in the %s position.", jobTitle)
	}

	return greeting + "\n\n" +
		opening + "\n\n" +
		"Based on the role requirements and my background, I believe I would be an excellent fit for this opportunity.\n\n" +
		"I have attached my CV for your review and would welcome the opportunity to discuss how my experience aligns with your needs.\n\n" +
		"Thank you for considering my application. I look forward to hearing from you.\n\n" +
		"Best regards"
}
