package logger

import (
	"log/slog"
	"os"
	"strings"
)

type Backend string

const (
	BackendStd Backend = "std" // text handler, удобно в dev
	BackendZap Backend = "zap" // JSON через slog-zap, prod
)

type Env string

const (
	EnvDev  Env = "dev"
	EnvProd Env = "prod"
)

type Config struct {
	// Метаданные для логгера
	Service    string
	Version    string
	InstanceID string

	// Управление выводом
	Level   slog.Level
	Env     Env
	Backend Backend // default: zap для prod, std для dev
	Debug   bool

	AddSource bool
}

func DetectEnv() Env {
	raw := strings.ToLower(strings.TrimSpace(os.Getenv("APP_ENV")))
	switch raw {
	case "prod", "production":
		return EnvProd
	default:
		return EnvDev
	}
}
