package app

import (
	"github.com/fintly/advisor-backend/internal/platform/logger"
	"github.com/fintly/advisor-backend/internal/services"
	"github.com/fintly/advisor-backend/internal/sse"
)

type Services struct {
	Chat     *services.ChatService
	Profiles *services.ProfileService
	Quota    *services.QuotaService
	Notifier *services.Notifier
}

func wireServices(log *logger.Logger, clients Clients, repos Repos, hub *sse.Hub) (Services, error) {
	heuristic, err := services.NewHeuristicMatcher(log)
	if err != nil {
		return Services{}, err
	}

	profiles := services.NewProfileService(repos.Profiles, log)
	quota := services.NewQuotaService(clients.Usage, log)
	notifier := services.NewNotifier(hub, clients.Bus, log)
	reconciler := services.NewReconciler(services.NewHistoryLoader(repos.Messages), log)

	chat := services.NewChatService(services.ChatServiceDeps{
		Sessions:   repos.Sessions,
		Messages:   repos.Messages,
		Profiles:   profiles,
		Quota:      quota,
		Heuristic:  heuristic,
		Classifier: services.NewIntentClassifier(clients.OpenAI, log),
		Planner:    services.NewPlanner(clients.OpenAI, log),
		Augmenter:  services.NewAugmenter(clients.Search, log),
		LLM:        clients.OpenAI,
		Reconciler: reconciler,
		Notifier:   notifier,
	}, log)

	return Services{
		Chat:     chat,
		Profiles: profiles,
		Quota:    quota,
		Notifier: notifier,
	}, nil
}
