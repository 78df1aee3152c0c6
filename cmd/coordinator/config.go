package main

import (
	"log/slog"
	"time"

	"github.com/fastprodman/realmpay/internal/config"
)

type coordinatorConfig struct {
	Env             string        `env:"APP_ENV" envDefault:"PROD"`
	LogLevel        slog.Level    `env:"LOG_LEVEL" envDefault:"INFO"`
	HTTPPort        uint16        `env:"HTTP_PORT" envDefault:"8080"`
	RealmListenAddr string        `env:"REALM_LISTEN_ADDR" envDefault:":2086"`
	ShutdownTimeout time.Duration `env:"SHUTDOWN_TIMEOUT" envDefault:"15s"`

	Postgres   config.PostgresConfig
	PayService config.PayServiceConfig
}
