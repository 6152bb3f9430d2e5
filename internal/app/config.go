package app

import (
	"github.com/bitskyai/producer-agent/internal/platform/envutil"
	"github.com/bitskyai/producer-agent/internal/platform/logger"
)

// Config is the process-level wiring configuration: where to read the
// config file and preferences from, and what address to bind the
// operational HTTP surface on. The producer's own runtime configuration
// (base URL, security key, global id) is resolved separately by
// internal/config.Resolver.
type Config struct {
	ConfigFile string
	PublicDir  string
	HTTPAddr   string
	LogMode    string
}

func LoadConfig(log *logger.Logger) Config {
	return Config{
		ConfigFile: envutil.String("PRODUCER_CONFIG_FILE", ""),
		PublicDir:  envutil.String("PRODUCER_PUBLIC_DIR", "./public"),
		HTTPAddr:   envutil.String("PRODUCER_HTTP_ADDR", ":8088"),
		LogMode:    envutil.String("LOG_MODE", "development"),
	}
}
