package chat

import "strings"

// Intent is the closed classification set for user utterances.
type Intent string

const (
	IntentStockAnalysis         Intent = "stock_analysis"
	IntentPortfolioOptimization Intent = "portfolio_optimization"
	IntentBuySellDecisions      Intent = "buy_sell_decisions"
	IntentMarketAnalysis        Intent = "market_analysis"
	IntentGeneralNews           Intent = "general_news"
	IntentNewsUpdate            Intent = "news_update"
	IntentGeneralAdvice         Intent = "general_advice"
	IntentDocumentSummary       Intent = "document_summary"
	IntentPredictionAnalysis    Intent = "prediction_analysis"
)

var AllIntents = []Intent{
	IntentStockAnalysis,
	IntentPortfolioOptimization,
	IntentBuySellDecisions,
	IntentMarketAnalysis,
	IntentGeneralNews,
	IntentNewsUpdate,
	IntentGeneralAdvice,
	IntentDocumentSummary,
	IntentPredictionAnalysis,
}

func ParseIntent(s string) (Intent, bool) {
	candidate := Intent(strings.TrimSpace(strings.ToLower(s)))
	for _, it := range AllIntents {
		if it == candidate {
			return it, true
		}
	}
	return "", false
}

const MaxDetectedEntities = 6

// IntentDetectionResult is the classifier output. Intents is ordered and
// never empty (falls back to general_advice); Entities is deduplicated and
// capped at MaxDetectedEntities.
type IntentDetectionResult struct {
	Intents  []Intent `json:"intents"`
	Entities []string `json:"entities"`
	Language string   `json:"language"`
}

type SearchTopic string

const (
	TopicNews    SearchTopic = "news"
	TopicFinance SearchTopic = "finance"
	TopicGeneral SearchTopic = "general"
)

type SearchDepth string

const (
	DepthBasic    SearchDepth = "basic"
	DepthAdvanced SearchDepth = "advanced"
)

// ConversationPlan is the planner's structured decision about how a reply
// should be produced. SearchQuery is non-empty iff NeedsRealtimeData.
type ConversationPlan struct {
	PrimaryIntent          Intent      `json:"primary_intent"`
	SecondaryIntents       []Intent    `json:"secondary_intents,omitempty"`
	NeedsRealtimeData      bool        `json:"needs_realtime_data"`
	SearchQuery            string      `json:"search_query,omitempty"`
	SearchTopic            SearchTopic `json:"search_topic,omitempty"`
	SearchDepth            SearchDepth `json:"search_depth,omitempty"`
	SearchDays             int         `json:"search_days,omitempty"`
	DetectedEntities       []string    `json:"detected_entities,omitempty"`
	RequiresProfileContext bool        `json:"requires_profile_context"`
	Reasoning              string      `json:"reasoning,omitempty"`
}

// Valid reports whether the plan satisfies the search-query invariant.
func (p ConversationPlan) Valid() bool {
	if p.NeedsRealtimeData {
		return strings.TrimSpace(p.SearchQuery) != ""
	}
	return strings.TrimSpace(p.SearchQuery) == ""
}

const fallbackReasoning = "fallback"

// FallbackPlan is the deterministic plan used when the planner call fails.
func FallbackPlan() ConversationPlan {
	return ConversationPlan{
		PrimaryIntent:          IntentGeneralAdvice,
		NeedsRealtimeData:      false,
		RequiresProfileContext: true,
		Reasoning:              fallbackReasoning,
	}
}

// IsFallback reports whether the plan is the deterministic fallback rather
// than a real planner decision.
func (p ConversationPlan) IsFallback() bool {
	return p.Reasoning == fallbackReasoning
}

// ProfileUpdateIntent is a detected "change my profile" command. It is only
// ever a proposal: applying it requires explicit user confirmation.
type ProfileUpdateIntent struct {
	Updates map[string]string `json:"updates"`
	Summary string            `json:"summary"`
}
