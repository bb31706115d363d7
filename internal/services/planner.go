package services

import (
	"context"
	"fmt"
	"strings"

	types "github.com/fintly/advisor-backend/internal/domain/chat"
	"github.com/fintly/advisor-backend/internal/clients/openai"
	"github.com/fintly/advisor-backend/internal/platform/logger"
)

const plannerSystemPrompt = `You plan how a financial assistant should answer.
Decide which intents apply, whether live market or news data is required, and
if so compose one bounded search query. Be generous with realtime data: any
question about current market state, a named instrument, or recent news needs
it. If the user has uploaded documents and asks about them, the primary intent
is document_summary. If the question concerns the user's own holdings or
performance, profile context is required.`

// PlanInput carries everything the planner call needs.
type PlanInput struct {
	Utterance            string
	History              []openai.ChatTurn
	HasPortfolio         bool
	HasUploadedDocuments bool
}

// Planner produces a full ConversationPlan with a single schema-constrained
// call to the language-model backend.
type Planner struct {
	llm openai.Client
	log *logger.Logger
}

func NewPlanner(llm openai.Client, log *logger.Logger) *Planner {
	return &Planner{
		llm: llm,
		log: log.With("service", "Planner"),
	}
}

func plannerSchema() map[string]any {
	intentValues := make([]string, 0, len(types.AllIntents))
	for _, it := range types.AllIntents {
		intentValues = append(intentValues, string(it))
	}
	return map[string]any{
		"type": "object",
		"properties": map[string]any{
			"primary_intent": map[string]any{"type": "string", "enum": intentValues},
			"secondary_intents": map[string]any{
				"type":  "array",
				"items": map[string]any{"type": "string", "enum": intentValues},
			},
			"needs_realtime_data": map[string]any{"type": "boolean"},
			"search_query":        map[string]any{"type": []string{"string", "null"}},
			"search_topic": map[string]any{
				"type": "string",
				"enum": []string{string(types.TopicNews), string(types.TopicFinance), string(types.TopicGeneral)},
			},
			"search_depth": map[string]any{
				"type": "string",
				"enum": []string{string(types.DepthBasic), string(types.DepthAdvanced)},
			},
			"search_days": map[string]any{"type": "integer", "minimum": 1, "maximum": 30},
			"detected_entities": map[string]any{
				"type":     "array",
				"items":    map[string]any{"type": "string"},
				"maxItems": types.MaxDetectedEntities,
			},
			"requires_profile_context": map[string]any{"type": "boolean"},
			"reasoning":                map[string]any{"type": "string"},
		},
		"required": []string{
			"primary_intent", "needs_realtime_data", "search_query",
			"requires_profile_context", "reasoning",
		},
		"additionalProperties": false,
	}
}

// Plan never fails: any backend error or malformed output yields the
// deterministic fallback plan.
func (p *Planner) Plan(ctx context.Context, in PlanInput) types.ConversationPlan {
	utterance := strings.TrimSpace(in.Utterance)
	if utterance == "" {
		return types.FallbackPlan()
	}

	obj, err := p.llm.GenerateJSON(ctx, plannerSystemPrompt, plannerUserPrompt(in), "conversation_plan", plannerSchema())
	if err != nil {
		p.log.Warn("planner call failed; using fallback plan", "error", err)
		return types.FallbackPlan()
	}

	plan, err := planFromObject(obj)
	if err != nil {
		p.log.Warn("planner output malformed; using fallback plan", "error", err)
		return types.FallbackPlan()
	}
	return plan
}

func plannerUserPrompt(in PlanInput) string {
	var b strings.Builder
	if len(in.History) > 0 {
		b.WriteString("Recent conversation:\n")
		for _, turn := range in.History {
			b.WriteString(turn.Role)
			b.WriteString(": ")
			b.WriteString(turn.Content)
			b.WriteString("\n")
		}
		b.WriteString("\n")
	}
	fmt.Fprintf(&b, "User has a portfolio: %t. User has uploaded documents: %t.\n\n", in.HasPortfolio, in.HasUploadedDocuments)
	b.WriteString("Utterance: ")
	b.WriteString(strings.TrimSpace(in.Utterance))
	return b.String()
}

func planFromObject(obj map[string]any) (types.ConversationPlan, error) {
	primaryRaw, _ := obj["primary_intent"].(string)
	primary, ok := types.ParseIntent(primaryRaw)
	if !ok {
		return types.ConversationPlan{}, fmt.Errorf("unknown primary intent %q", primaryRaw)
	}

	needsRealtime, _ := obj["needs_realtime_data"].(bool)
	query, _ := obj["search_query"].(string)
	query = strings.TrimSpace(query)

	plan := types.ConversationPlan{
		PrimaryIntent:     primary,
		NeedsRealtimeData: needsRealtime,
		DetectedEntities:  parseEntities(obj["detected_entities"]),
	}

	if items, ok := obj["secondary_intents"].([]any); ok {
		for _, item := range items {
			s, _ := item.(string)
			if intent, ok := types.ParseIntent(s); ok && intent != primary {
				plan.SecondaryIntents = append(plan.SecondaryIntents, intent)
			}
		}
	}

	if requires, ok := obj["requires_profile_context"].(bool); ok {
		plan.RequiresProfileContext = requires
	}
	if reasoning, ok := obj["reasoning"].(string); ok {
		plan.Reasoning = strings.TrimSpace(reasoning)
	}

	// Search parameters only exist on realtime plans; the query invariant is
	// enforced here, not left to the model.
	if needsRealtime {
		if query == "" {
			return types.ConversationPlan{}, fmt.Errorf("realtime plan missing search query")
		}
		plan.SearchQuery = query
		plan.SearchTopic = parseTopic(obj["search_topic"])
		plan.SearchDepth = parseDepth(obj["search_depth"])
		plan.SearchDays = clampSearchDays(obj["search_days"])
	}

	if !plan.Valid() {
		return types.ConversationPlan{}, fmt.Errorf("plan violates search-query invariant")
	}
	return plan, nil
}

func parseTopic(v any) types.SearchTopic {
	s, _ := v.(string)
	switch types.SearchTopic(strings.TrimSpace(strings.ToLower(s))) {
	case types.TopicNews:
		return types.TopicNews
	case types.TopicFinance:
		return types.TopicFinance
	default:
		return types.TopicGeneral
	}
}

func parseDepth(v any) types.SearchDepth {
	s, _ := v.(string)
	if types.SearchDepth(strings.TrimSpace(strings.ToLower(s))) == types.DepthAdvanced {
		return types.DepthAdvanced
	}
	return types.DepthBasic
}

func clampSearchDays(v any) int {
	f, ok := v.(float64)
	if !ok {
		return 0
	}
	days := int(f)
	if days < 1 {
		return 1
	}
	if days > 30 {
		return 30
	}
	return days
}
