package app

import (
	"github.com/fintly/advisor-backend/internal/clients/openai"
	redisclient "github.com/fintly/advisor-backend/internal/clients/redis"
	"github.com/fintly/advisor-backend/internal/clients/search"
	"github.com/fintly/advisor-backend/internal/platform/logger"
)

type Clients struct {
	OpenAI openai.Client
	Search search.Client
	Usage  redisclient.UsageStore
	Bus    redisclient.EventBus
}

func wireClients(log *logger.Logger) (Clients, error) {
	llm, err := openai.NewClient(log)
	if err != nil {
		return Clients{}, err
	}
	searchClient, err := search.NewClient(log)
	if err != nil {
		return Clients{}, err
	}
	usage, err := redisclient.NewUsageStore(log)
	if err != nil {
		return Clients{}, err
	}
	bus, err := redisclient.NewEventBus(log)
	if err != nil {
		// Single-instance deployments run without the fan-out bus.
		log.Warn("event bus unavailable; running without cross-instance fan-out", "error", err)
		bus = nil
	}
	return Clients{
		OpenAI: llm,
		Search: searchClient,
		Usage:  usage,
		Bus:    bus,
	}, nil
}
