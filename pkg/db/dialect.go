package db

import (
	"fmt"

	"github.com/franqio/royaltyd/internal/config"
	"gorm.io/driver/mysql"
	"gorm.io/driver/postgres"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
)

// Dialect builds the gorm dialector for DB_TYPE. Postgres is the
// deployment target and the only dialect the embedded migrations run
// against; mysql and sqlite exist for local development, sqlite with a
// file database next to the binary so royaltyd runs with zero setup.
// Connection time zone is forced to UTC everywhere since due dates and
// event timestamps are compared in UTC.
func Dialect(cfg config.Config) (gorm.Dialector, error) {
	switch cfg.DBType {
	case "mysql":
		return mysql.Open(fmt.Sprintf("%s:%s@tcp(%s:%s)/%s?charset=utf8mb4&parseTime=True&loc=UTC",
			cfg.DBUser,
			cfg.DBPassword,
			cfg.DBHost,
			cfg.DBPort,
			cfg.DBName,
		)), nil
	case "postgres":
		return postgres.Open(fmt.Sprintf("host=%s user=%s password=%s dbname=%s port=%s sslmode=%s TimeZone=UTC",
			cfg.DBHost,
			cfg.DBUser,
			cfg.DBPassword,
			cfg.DBName,
			cfg.DBPort,
			cfg.DBSSLMode,
		)), nil
	case "sqlite":
		return sqlite.Open("royaltyd.db"), nil
	default:
		return nil, fmt.Errorf("unsupported db type %q", cfg.DBType)
	}
}
