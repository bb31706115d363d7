package services

import (
	"context"
	"fmt"
	"net/url"
	"strings"
	"time"

	types "github.com/fintly/advisor-backend/internal/domain/chat"
	"github.com/fintly/advisor-backend/internal/clients/search"
	"github.com/fintly/advisor-backend/internal/platform/logger"
)

const (
	// Default recency window when the plan does not specify one.
	defaultRecencyWindow = 36 * time.Hour
	defaultMaxResults    = 6
	minMaxResults        = 3
	maxSnippetLen        = 300
	maxContextBlockLen   = 4000
	augmentationTimeout  = 10 * time.Second
)

// AugmentedContext is the composed realtime block handed to the streaming
// backend, plus the reference list surfaced to the client.
type AugmentedContext struct {
	ContextBlock string
	References   []types.Reference
}

// Augmenter issues one external search call per plan and formats the result.
// It degrades to an empty context on any failure; it never blocks a send.
type Augmenter struct {
	search search.Client
	log    *logger.Logger
}

func NewAugmenter(searchClient search.Client, log *logger.Logger) *Augmenter {
	return &Augmenter{
		search: searchClient,
		log:    log.With("service", "Augmenter"),
	}
}

func (a *Augmenter) Augment(ctx context.Context, plan types.ConversationPlan) AugmentedContext {
	if !plan.NeedsRealtimeData || strings.TrimSpace(plan.SearchQuery) == "" {
		return AugmentedContext{}
	}

	ctx, cancel := context.WithTimeout(ctx, augmentationTimeout)
	defer cancel()

	window := defaultRecencyWindow
	days := 0
	if plan.SearchDays > 0 {
		window = time.Duration(plan.SearchDays) * 24 * time.Hour
		days = plan.SearchDays
	}

	resp, err := a.search.Search(ctx, search.Request{
		Query:       plan.SearchQuery,
		Topic:       string(plan.SearchTopic),
		SearchDepth: string(plan.SearchDepth),
		Days:        days,
		MaxResults:  maxResultsForPlan(plan),
	})
	if err != nil {
		a.log.Warn("search augmentation failed; degrading to empty context", "error", err)
		return AugmentedContext{}
	}

	cutoff := time.Now().Add(-window)
	kept := make([]search.Result, 0, len(resp.Results))
	for _, r := range resp.Results {
		if strings.TrimSpace(r.URL) == "" {
			continue
		}
		// Items without a parseable timestamp are kept.
		if ts, ok := parsePublishedDate(r.PublishedDate); ok && ts.Before(cutoff) {
			continue
		}
		kept = append(kept, r)
	}
	if len(kept) == 0 {
		return AugmentedContext{}
	}

	return AugmentedContext{
		ContextBlock: formatContextBlock(kept),
		References:   formatReferences(kept),
	}
}

// maxResultsForPlan derives the result bound from the plan's search depth.
func maxResultsForPlan(plan types.ConversationPlan) int {
	if plan.SearchDepth == types.DepthBasic {
		return minMaxResults
	}
	return defaultMaxResults
}

func parsePublishedDate(s string) (time.Time, bool) {
	s = strings.TrimSpace(s)
	if s == "" {
		return time.Time{}, false
	}
	for _, layout := range []string{
		time.RFC3339,
		"2006-01-02 15:04:05",
		"2006-01-02",
	} {
		if ts, err := time.Parse(layout, s); err == nil {
			return ts, true
		}
	}
	return time.Time{}, false
}

func formatContextBlock(results []search.Result) string {
	var b strings.Builder
	b.WriteString("Live market context:\n")
	for i, r := range results {
		snippet := strings.TrimSpace(r.Content)
		if len(snippet) > maxSnippetLen {
			snippet = snippet[:maxSnippetLen] + "…"
		}
		entry := fmt.Sprintf("%d. %s", i+1, strings.TrimSpace(r.Title))
		if r.PublishedDate != "" {
			entry += " (" + r.PublishedDate + ")"
		}
		entry += "\n" + snippet + "\n"
		if b.Len()+len(entry) > maxContextBlockLen {
			break
		}
		b.WriteString(entry)
	}
	return strings.TrimRight(b.String(), "\n")
}

func formatReferences(results []search.Result) []types.Reference {
	refs := make([]types.Reference, 0, len(results))
	for _, r := range results {
		refs = append(refs, types.Reference{
			Headline:    strings.TrimSpace(r.Title),
			Source:      hostOf(r.URL),
			URL:         r.URL,
			PublishedAt: r.PublishedDate,
		})
	}
	return refs
}

func hostOf(raw string) string {
	u, err := url.Parse(raw)
	if err != nil || u.Host == "" {
		return ""
	}
	return strings.TrimPrefix(u.Host, "www.")
}
