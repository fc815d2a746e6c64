package database

import (
	"database/sql"
	"fmt"
	"net"
	"net/url"
	"strconv"

	_ "github.com/jackc/pgx/v5/stdlib"

	"github.com/rzpsarthak13/entity-mapper/internal/core"
)

func init() {
	RegisterBackend(postgresBackend{})
}

type postgresBackend struct{}

func (postgresBackend) Type() string          { return "postgresql" }
func (postgresBackend) Dialect() core.Dialect { return core.PostgreSQL }

func (postgresBackend) Validate(cfg Config) error {
	if cfg.DSN != "" {
		return nil
	}
	if cfg.Host == "" {
		return fmt.Errorf("database.host is required for postgresql")
	}
	if cfg.Database == "" {
		return fmt.Errorf("database.database is required for postgresql")
	}
	return nil
}

// PostgresDSN renders a postgres:// URL for the pgx stdlib driver.
func PostgresDSN(cfg Config) string {
	if cfg.DSN != "" {
		return cfg.DSN
	}
	port := cfg.Port
	if port == 0 {
		port = 5432
	}
	sslMode := cfg.SSLMode
	if sslMode == "" {
		sslMode = "disable"
	}

	q := url.Values{}
	q.Set("sslmode", sslMode)
	if cfg.ConnectionTimeout > 0 {
		q.Set("connect_timeout", strconv.Itoa(int(cfg.ConnectionTimeout.Seconds())))
	}
	u := url.URL{
		Scheme:   "postgres",
		Host:     net.JoinHostPort(cfg.Host, strconv.Itoa(port)),
		Path:     "/" + cfg.Database,
		RawQuery: q.Encode(),
	}
	if cfg.Username != "" {
		u.User = url.UserPassword(cfg.Username, cfg.Password)
	}
	return u.String()
}

func (postgresBackend) Open(cfg Config) (*sql.DB, error) {
	return sql.Open("pgx", PostgresDSN(cfg))
}
