package config

import "time"

type PostgresConfig struct {
	DSN             string        `env:"PG_DSN"`
	MaxOpenConns    int           `env:"PG_MAX_OPEN_CONNS" envDefault:"16"`
	MaxIdleConns    int           `env:"PG_MAX_IDLE_CONNS" envDefault:"8"`
	ConnMaxIdleTime time.Duration `env:"PG_CONN_MAX_IDLE_TIME" envDefault:"5m"`
	ConnMaxLifetime time.Duration `env:"PG_CONN_MAX_LIFETIME" envDefault:"30m"`
}

// PayServiceConfig identifies this operator towards the payment service.
type PayServiceConfig struct {
	URL      string `env:"PAYSERVE_URL"`
	Symbol   string `env:"PAYSERVE_SYMBOL"`
	Wallet   string `env:"PAYSERVE_WALLET"`
	Password string `env:"PAYSERVE_PASSWORD"`
}
