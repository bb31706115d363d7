package app

import (
	"github.com/fintly/advisor-backend/internal/platform/envutil"
)

type Config struct {
	Port         string
	Environment  string
	JWTSecretKey string
	CORSOrigins  []string
}

func LoadConfig() Config {
	return Config{
		Port:         envutil.Str("PORT", "8080"),
		Environment:  envutil.Str("APP_ENV", "development"),
		JWTSecretKey: envutil.Str("JWT_SECRET_KEY", "defaultsecret"),
		CORSOrigins: []string{
			envutil.Str("CORS_ORIGIN", "http://localhost:3000"),
		},
	}
}
