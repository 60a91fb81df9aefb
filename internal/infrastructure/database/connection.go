// Package database holds the process-wide connection to the account
// directory store.
package database

import (
	"fmt"
	"strings"
	"sync"
	"time"

	"gorm.io/driver/mysql"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"github.com/codedrop-io/codedrop/internal/shared/config"
	"github.com/codedrop-io/codedrop/internal/shared/logger"
)

const slowQueryThreshold = 200 * time.Millisecond

var (
	db   *gorm.DB
	dbMu sync.RWMutex
)

// Open connects to the configured driver and verifies the connection.
// mysql serves production; sqlite serves development and tests and is
// limited to a single connection.
func Open(cfg *config.DatabaseConfig, log logger.Interface) (*gorm.DB, error) {
	dialector, err := dialectorFor(cfg)
	if err != nil {
		return nil, err
	}

	conn, err := gorm.Open(dialector, &gorm.Config{
		Logger: gormlogger.New(&queryLog{log: log}, gormlogger.Config{
			SlowThreshold:             slowQueryThreshold,
			LogLevel:                  gormlogger.Warn,
			IgnoreRecordNotFoundError: true,
		}),
		PrepareStmt: true,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	sqlDB, err := conn.DB()
	if err != nil {
		return nil, fmt.Errorf("failed to get underlying sql.DB: %w", err)
	}
	if cfg.Driver == "sqlite" {
		sqlDB.SetMaxOpenConns(1)
	} else {
		sqlDB.SetMaxIdleConns(cfg.MaxIdleConns)
		sqlDB.SetMaxOpenConns(cfg.MaxOpenConns)
		sqlDB.SetConnMaxLifetime(time.Duration(cfg.ConnMaxLifetime) * time.Minute)
	}
	if err := sqlDB.Ping(); err != nil {
		_ = sqlDB.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	log.Infow("database connection established", "driver", cfg.Driver, "database", cfg.Database)
	return conn, nil
}

func dialectorFor(cfg *config.DatabaseConfig) (gorm.Dialector, error) {
	switch cfg.Driver {
	case "sqlite":
		return sqlite.Open(cfg.GetDSN()), nil
	case "mysql", "":
		return mysql.New(mysql.Config{
			DSN:                       cfg.GetDSN(),
			SkipInitializeWithVersion: true,
		}), nil
	default:
		return nil, fmt.Errorf("unsupported database driver: %s", cfg.Driver)
	}
}

// Init opens the process-wide connection returned by Get.
func Init(cfg *config.DatabaseConfig, log logger.Interface) error {
	conn, err := Open(cfg, log)
	if err != nil {
		return err
	}
	dbMu.Lock()
	db = conn
	dbMu.Unlock()
	return nil
}

func Get() *gorm.DB {
	dbMu.RLock()
	defer dbMu.RUnlock()
	return db
}

// Close releases the process-wide connection. Closing twice is a no-op.
func Close() error {
	dbMu.Lock()
	conn := db
	db = nil
	dbMu.Unlock()

	if conn == nil {
		return nil
	}
	sqlDB, err := conn.DB()
	if err != nil {
		return fmt.Errorf("failed to get underlying sql.DB: %w", err)
	}
	if err := sqlDB.Close(); err != nil {
		return fmt.Errorf("failed to close database connection: %w", err)
	}
	return nil
}

// queryLog routes gorm's printf-style output into the structured logger.
type queryLog struct {
	log logger.Interface
}

func (q *queryLog) Printf(format string, args ...interface{}) {
	msg := fmt.Sprintf(format, args...)
	lower := strings.ToLower(msg)

	switch {
	case strings.Contains(lower, "information_schema.schemata"), strings.Contains(lower, "select version()"):
		return
	case strings.Contains(lower, "slow sql"):
		q.log.Warnw("slow query", "details", msg)
	case strings.Contains(lower, "error"):
		q.log.Errorw("database error", "details", msg)
	default:
		q.log.Debugw("database query", "details", msg)
	}
}
