package main

import (
	"strings"
	"testing"
)

func TestParseTriageHint(t *testing.T) {
	hint, err := parseTriageHint(`{"category": "зарплата", "severity": "высокая", "summary": "Не считается отпуск."}`)
	if err != nil {
		t.Fatalf("parseTriageHint failed: %v", err)
	}
	if hint.Category != "зарплата" || hint.Severity != "высокая" {
		t.Errorf("hint = %+v", hint)
	}
}

func TestParseTriageHintWithFences(t *testing.T) {
	text := "Вот результат:\n```json\n{\"category\": \"печать\", \"severity\": \"низкая\", \"summary\": \"Принтер.\"}\n```\n"
	hint, err := parseTriageHint(text)
	if err != nil {
		t.Fatalf("parseTriageHint failed: %v", err)
	}
	if hint.Category != "печать" {
		t.Errorf("hint = %+v", hint)
	}
}

func TestParseTriageHintRejectsGarbage(t *testing.T) {
	for _, text := range []string{"", "нет JSON", "{broken", `{"category": "", "summary": ""}`} {
		if _, err := parseTriageHint(text); err == nil {
			t.Errorf("parseTriageHint(%q) accepted", text)
		}
	}
}

func TestTriageHintLine(t *testing.T) {
	line := TriageHint{Category: "обмен", Severity: "средняя", Summary: "Ошибка обмена."}.Line()
	for _, want := range []string{"Триаж", "обмен", "средняя", "Ошибка обмена."} {
		if !strings.Contains(line, want) {
			t.Errorf("line %q missing %q", line, want)
		}
	}
}
