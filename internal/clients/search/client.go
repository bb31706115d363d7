package search

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/fintly/advisor-backend/internal/platform/logger"
)

// Request mirrors the provider's search parameters.
type Request struct {
	Query       string `json:"query"`
	Topic       string `json:"topic,omitempty"`
	SearchDepth string `json:"search_depth,omitempty"`
	Days        int    `json:"days,omitempty"`
	MaxResults  int    `json:"max_results,omitempty"`
}

type Result struct {
	Title         string  `json:"title"`
	Content       string  `json:"content"`
	URL           string  `json:"url"`
	PublishedDate string  `json:"published_date,omitempty"`
	Score         float64 `json:"score,omitempty"`
}

type Response struct {
	Results []Result `json:"results"`
}

// Client is the external search provider. Exactly one call is issued per
// conversation plan; failures degrade to empty context upstream.
type Client interface {
	Search(ctx context.Context, req Request) (*Response, error)
}

type client struct {
	log        *logger.Logger
	baseURL    string
	apiKey     string
	httpClient *http.Client
}

func NewClient(log *logger.Logger) (Client, error) {
	if log == nil {
		return nil, fmt.Errorf("logger required")
	}
	apiKey := strings.TrimSpace(os.Getenv("SEARCH_API_KEY"))
	if apiKey == "" {
		return nil, fmt.Errorf("missing SEARCH_API_KEY")
	}
	baseURL := strings.TrimSpace(os.Getenv("SEARCH_BASE_URL"))
	if baseURL == "" {
		baseURL = "https://api.tavily.com"
	}
	return &client{
		log:        log.With("client", "SearchClient"),
		baseURL:    strings.TrimRight(baseURL, "/"),
		apiKey:     apiKey,
		httpClient: &http.Client{Timeout: 15 * time.Second},
	}, nil
}

func (c *client) Search(ctx context.Context, req Request) (*Response, error) {
	if strings.TrimSpace(req.Query) == "" {
		return nil, fmt.Errorf("missing query")
	}

	var buf bytes.Buffer
	if err := json.NewEncoder(&buf).Encode(req); err != nil {
		return nil, err
	}

	httpReq, err := http.NewRequestWithContext(ctx, "POST", c.baseURL+"/search", &buf)
	if err != nil {
		return nil, err
	}
	httpReq.Header.Set("Authorization", "Bearer "+c.apiKey)
	httpReq.Header.Set("Content-Type", "application/json")

	started := time.Now()
	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, fmt.Errorf("search http %d: %s", resp.StatusCode, string(raw))
	}

	var out Response
	if err := json.Unmarshal(raw, &out); err != nil {
		return nil, fmt.Errorf("search decode error: %w", err)
	}

	c.log.Debug("search completed",
		"results", len(out.Results),
		"elapsed_ms", time.Since(started).Milliseconds(),
	)
	return &out, nil
}
