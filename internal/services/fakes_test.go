package services

import (
	"context"
	"sync"

	"github.com/fintly/advisor-backend/internal/clients/openai"
	"github.com/fintly/advisor-backend/internal/clients/search"
)

type fakeLLM struct {
	mu        sync.Mutex
	jsonFn    func(schemaName string, user string) (map[string]any, error)
	jsonCalls []string

	streamChunks [][]byte
	streamErr    error
	streamCalls  int
	streamReqs   []openai.ChatRequest
}

func (f *fakeLLM) GenerateJSON(ctx context.Context, system, user, schemaName string, schema map[string]any) (map[string]any, error) {
	f.mu.Lock()
	f.jsonCalls = append(f.jsonCalls, schemaName)
	fn := f.jsonFn
	f.mu.Unlock()
	if fn == nil {
		return nil, context.Canceled
	}
	return fn(schemaName, user)
}

func (f *fakeLLM) StreamChat(ctx context.Context, req openai.ChatRequest, onChunk func([]byte) error) error {
	f.mu.Lock()
	f.streamCalls++
	f.streamReqs = append(f.streamReqs, req)
	chunks := f.streamChunks
	f.mu.Unlock()
	for _, chunk := range chunks {
		if err := onChunk(chunk); err != nil {
			return err
		}
	}
	return f.streamErr
}

type fakeSearch struct {
	mu    sync.Mutex
	resp  *search.Response
	err   error
	calls []search.Request
}

func (f *fakeSearch) Search(ctx context.Context, req search.Request) (*search.Response, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, req)
	if f.err != nil {
		return nil, f.err
	}
	return f.resp, nil
}
