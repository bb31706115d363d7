package app

import (
	"github.com/fintly/advisor-backend/internal/handlers"
	"github.com/fintly/advisor-backend/internal/platform/logger"
	"github.com/fintly/advisor-backend/internal/sse"
)

type Handlers struct {
	Session *handlers.SessionHandler
	Chat    *handlers.ChatHandler
	Profile *handlers.ProfileHandler
	Usage   *handlers.UsageHandler
	SSE     *handlers.SSEHandler
}

func wireHandlers(log *logger.Logger, svcs Services, hub *sse.Hub) Handlers {
	return Handlers{
		Session: handlers.NewSessionHandler(svcs.Chat),
		Chat:    handlers.NewChatHandler(svcs.Chat),
		Profile: handlers.NewProfileHandler(svcs.Profiles),
		Usage:   handlers.NewUsageHandler(svcs.Quota),
		SSE:     handlers.NewSSEHandler(log, hub),
	}
}
