package app

import (
	"github.com/solvegraph/solvegraph-backend/internal/platform/envutil"
)

type Config struct {
	Port        string
	LogMode     string
	ServiceName string
	Environment string
	Version     string

	JWTSecretKey string

	EmbeddingDimensions int
	ChatHistoryLength   int
}

func LoadConfig() Config {
	return Config{
		Port:        envutil.String("PORT", "8080"),
		LogMode:     envutil.String("LOG_MODE", "development"),
		ServiceName: envutil.String("SERVICE_NAME", "solvegraph-backend"),
		Environment: envutil.String("APP_ENV", "development"),
		Version:     envutil.String("APP_VERSION", "dev"),

		JWTSecretKey: envutil.String("JWT_SECRET_KEY", "defaultsecret"),

		EmbeddingDimensions: envutil.Int("EMBEDDING_DIMENSIONS", 384),
		ChatHistoryLength:   envutil.Int("CHAT_HISTORY_LENGTH", 20),
	}
}
