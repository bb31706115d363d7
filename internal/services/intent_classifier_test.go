package services

import (
	"context"
	"errors"
	"reflect"
	"testing"

	types "github.com/fintly/advisor-backend/internal/domain/chat"
)

func TestClassifyParsesRankedIntents(t *testing.T) {
	llm := &fakeLLM{
		jsonFn: func(schemaName, user string) (map[string]any, error) {
			return map[string]any{
				"intents":  []any{"stock_analysis", "news_update", "stock_analysis"},
				"entities": []any{"AAPL", "Apple", "aapl", "", "MSFT"},
				"language": "EN",
			}, nil
		},
	}
	c := NewIntentClassifier(llm, testLogger(t))

	got := c.Classify(context.Background(), "how is Apple doing today?")
	if got == nil {
		t.Fatal("Classify returned nil for healthy backend")
	}
	wantIntents := []types.Intent{types.IntentStockAnalysis, types.IntentNewsUpdate}
	if !reflect.DeepEqual(got.Intents, wantIntents) {
		t.Fatalf("intents=%v, want %v", got.Intents, wantIntents)
	}
	// "aapl" duplicates "AAPL" case-insensitively.
	wantEntities := []string{"AAPL", "Apple", "MSFT"}
	if !reflect.DeepEqual(got.Entities, wantEntities) {
		t.Fatalf("entities=%v, want %v", got.Entities, wantEntities)
	}
	if got.Language != "en" {
		t.Fatalf("language=%q, want en", got.Language)
	}
}

func TestClassifyFallsBackToGeneralAdvice(t *testing.T) {
	llm := &fakeLLM{
		jsonFn: func(schemaName, user string) (map[string]any, error) {
			return map[string]any{
				"intents":  []any{"not_a_real_intent"},
				"entities": []any{},
				"language": "sv",
			}, nil
		},
	}
	c := NewIntentClassifier(llm, testLogger(t))

	got := c.Classify(context.Background(), "hjälp mig")
	if got == nil {
		t.Fatal("Classify returned nil")
	}
	if len(got.Intents) != 1 || got.Intents[0] != types.IntentGeneralAdvice {
		t.Fatalf("intents=%v, want [general_advice]", got.Intents)
	}
}

func TestClassifyReturnsNilOnBackendError(t *testing.T) {
	llm := &fakeLLM{
		jsonFn: func(schemaName, user string) (map[string]any, error) {
			return nil, errors.New("backend unreachable")
		},
	}
	c := NewIntentClassifier(llm, testLogger(t))

	if got := c.Classify(context.Background(), "anything"); got != nil {
		t.Fatalf("Classify=%v, want nil on backend error", got)
	}
}

func TestClassifyCapsEntities(t *testing.T) {
	llm := &fakeLLM{
		jsonFn: func(schemaName, user string) (map[string]any, error) {
			return map[string]any{
				"intents":  []any{"market_analysis"},
				"entities": []any{"a", "b", "c", "d", "e", "f", "g", "h"},
				"language": "en",
			}, nil
		},
	}
	c := NewIntentClassifier(llm, testLogger(t))

	got := c.Classify(context.Background(), "compare everything")
	if got == nil {
		t.Fatal("Classify returned nil")
	}
	if len(got.Entities) != types.MaxDetectedEntities {
		t.Fatalf("entities=%d, want %d", len(got.Entities), types.MaxDetectedEntities)
	}
}
