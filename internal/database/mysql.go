package database

import (
	"database/sql"
	"fmt"
	"net"
	"strconv"

	"github.com/go-sql-driver/mysql"

	"github.com/rzpsarthak13/entity-mapper/internal/core"
)

func init() {
	RegisterBackend(mysqlBackend{})
}

type mysqlBackend struct{}

func (mysqlBackend) Type() string          { return "mysql" }
func (mysqlBackend) Dialect() core.Dialect { return core.MySQL }

func (mysqlBackend) Validate(cfg Config) error {
	if cfg.DSN != "" {
		return nil
	}
	if cfg.Host == "" {
		return fmt.Errorf("database.host is required for mysql")
	}
	if cfg.Database == "" {
		return fmt.Errorf("database.database is required for mysql")
	}
	return nil
}

// MySQLDSN renders the driver DSN. Timestamps are parsed into time.Time and
// read back in UTC.
func MySQLDSN(cfg Config) string {
	if cfg.DSN != "" {
		return cfg.DSN
	}
	port := cfg.Port
	if port == 0 {
		port = 3306
	}
	mc := mysql.NewConfig()
	mc.User = cfg.Username
	mc.Passwd = cfg.Password
	mc.Net = "tcp"
	mc.Addr = net.JoinHostPort(cfg.Host, strconv.Itoa(port))
	mc.DBName = cfg.Database
	mc.ParseTime = true
	mc.Timeout = cfg.ConnectionTimeout
	return mc.FormatDSN()
}

func (mysqlBackend) Open(cfg Config) (*sql.DB, error) {
	return sql.Open("mysql", MySQLDSN(cfg))
}
