package services

import (
	"context"
	"strings"

	types "github.com/fintly/advisor-backend/internal/domain/chat"
	"github.com/fintly/advisor-backend/internal/clients/openai"
	"github.com/fintly/advisor-backend/internal/platform/logger"
)

const classifierSystemPrompt = `You classify utterances sent to a financial assistant.
Return the ranked intents (most likely first), any ticker symbols, company or
instrument names mentioned (entities), and the utterance language as a
two-letter ISO 639-1 code.`

// IntentClassifier calls the language-model backend to produce ranked
// intents, entities and detected language for an utterance.
type IntentClassifier struct {
	llm openai.Client
	log *logger.Logger
}

func NewIntentClassifier(llm openai.Client, log *logger.Logger) *IntentClassifier {
	return &IntentClassifier{
		llm: llm,
		log: log.With("service", "IntentClassifier"),
	}
}

func classifierSchema() map[string]any {
	intentValues := make([]string, 0, len(types.AllIntents))
	for _, it := range types.AllIntents {
		intentValues = append(intentValues, string(it))
	}
	return map[string]any{
		"type": "object",
		"properties": map[string]any{
			"intents": map[string]any{
				"type":     "array",
				"items":    map[string]any{"type": "string", "enum": intentValues},
				"minItems": 1,
			},
			"entities": map[string]any{
				"type":     "array",
				"items":    map[string]any{"type": "string"},
				"maxItems": types.MaxDetectedEntities,
			},
			"language": map[string]any{
				"type":      "string",
				"minLength": 2,
				"maxLength": 2,
			},
		},
		"required":             []string{"intents", "entities", "language"},
		"additionalProperties": false,
	}
}

// Classify returns nil on any failure. Callers treat nil as "use plan
// defaults"; classification errors are never propagated to the user.
func (c *IntentClassifier) Classify(ctx context.Context, utterance string) *types.IntentDetectionResult {
	utterance = strings.TrimSpace(utterance)
	if utterance == "" {
		return nil
	}

	obj, err := c.llm.GenerateJSON(ctx, classifierSystemPrompt, utterance, "intent_detection", classifierSchema())
	if err != nil {
		c.log.Warn("classification failed; falling back to plan defaults", "error", err)
		return nil
	}

	result := &types.IntentDetectionResult{
		Intents:  parseIntents(obj["intents"]),
		Entities: parseEntities(obj["entities"]),
		Language: parseLanguage(obj["language"]),
	}
	return result
}

func parseIntents(v any) []types.Intent {
	items, _ := v.([]any)
	out := make([]types.Intent, 0, len(items))
	seen := map[types.Intent]bool{}
	for _, item := range items {
		s, _ := item.(string)
		intent, ok := types.ParseIntent(s)
		if !ok || seen[intent] {
			continue
		}
		seen[intent] = true
		out = append(out, intent)
	}
	if len(out) == 0 {
		out = append(out, types.IntentGeneralAdvice)
	}
	return out
}

func parseEntities(v any) []string {
	items, _ := v.([]any)
	out := make([]string, 0, len(items))
	seen := map[string]bool{}
	for _, item := range items {
		s, _ := item.(string)
		s = strings.TrimSpace(s)
		key := strings.ToLower(s)
		if s == "" || seen[key] {
			continue
		}
		seen[key] = true
		out = append(out, s)
		if len(out) == types.MaxDetectedEntities {
			break
		}
	}
	return out
}

func parseLanguage(v any) string {
	s, _ := v.(string)
	s = strings.ToLower(strings.TrimSpace(s))
	if len(s) != 2 {
		return "en"
	}
	return s
}
