package main

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"
)

const defaultTriageModel = "claude-sonnet-4-5-20250929"

const triageSystemPrompt = `You are a triage assistant for a 1C technical support desk.
Given a support ticket, respond with a single JSON object and nothing else:
{"category": "<short problem category in Russian>", "severity": "низкая|средняя|высокая", "summary": "<one sentence in Russian>"}`

// TriageHint is the model's guess at category and severity for a fresh
// ticket, attached to the admin notification. Advisory only; it never
// affects the ticket itself.
type TriageHint struct {
	Category string `json:"category"`
	Severity string `json:"severity"`
	Summary  string `json:"summary"`
}

func (h TriageHint) Line() string {
	return fmt.Sprintf("Триаж: категория «%s», серьёзность «%s». %s", h.Category, h.Severity, h.Summary)
}

func TriageTicket(cfg Config, t Ticket) (TriageHint, error) {
	userPrompt := fmt.Sprintf(
		"Заявка #%d\nКонфигурация: %s\nОрганизация и отдел: %s\nОписание: %s",
		t.ID, t.Config, t.OrgDept, t.Description)

	client := anthropic.NewClient(option.WithAPIKey(cfg.AnthropicAPIKey))

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	message, err := client.Messages.New(ctx, anthropic.MessageNewParams{
		Model:     anthropic.Model(cfg.TriageModel),
		MaxTokens: 256,
		System: []anthropic.TextBlockParam{
			{Text: triageSystemPrompt},
		},
		Messages: []anthropic.MessageParam{
			anthropic.NewUserMessage(anthropic.NewTextBlock(userPrompt)),
		},
	})
	if err != nil {
		return TriageHint{}, fmt.Errorf("Anthropic API error: %w", err)
	}

	for _, block := range message.Content {
		if block.Type == "text" {
			log.Printf("triage response ticket=%d size=%d tokens_in=%d tokens_out=%d",
				t.ID, len(block.Text), message.Usage.InputTokens, message.Usage.OutputTokens)
			return parseTriageHint(block.Text)
		}
	}
	return TriageHint{}, fmt.Errorf("no text content in Anthropic response")
}

// parseTriageHint tolerates code fences and prose around the JSON
// object.
func parseTriageHint(text string) (TriageHint, error) {
	start := strings.Index(text, "{")
	end := strings.LastIndex(text, "}")
	if start < 0 || end <= start {
		return TriageHint{}, fmt.Errorf("no JSON object in triage response")
	}
	var hint TriageHint
	if err := json.Unmarshal([]byte(text[start:end+1]), &hint); err != nil {
		return TriageHint{}, fmt.Errorf("triage response parse: %w", err)
	}
	if hint.Category == "" && hint.Summary == "" {
		return TriageHint{}, fmt.Errorf("empty triage response")
	}
	return hint, nil
}
