package app

import (
	"gorm.io/gorm"

	chatrepo "github.com/fintly/advisor-backend/internal/data/repos/chat"
	"github.com/fintly/advisor-backend/internal/platform/logger"
)

type Repos struct {
	Sessions chatrepo.SessionRepo
	Messages chatrepo.MessageRepo
	Profiles chatrepo.ProfileRepo
}

func wireRepos(db *gorm.DB, log *logger.Logger) Repos {
	return Repos{
		Sessions: chatrepo.NewSessionRepo(db, log),
		Messages: chatrepo.NewMessageRepo(db, log),
		Profiles: chatrepo.NewProfileRepo(db, log),
	}
}
