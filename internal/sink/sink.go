// Package sink persists exported datasets into a SQL warehouse and keeps a journal of
// export runs.
package sink

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/rs/zerolog/log"
	"gorm.io/driver/mysql"
	"gorm.io/driver/postgres"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/youpoison/YM-Logs-API/internal/dataset"
	"github.com/youpoison/YM-Logs-API/internal/failure"
)

// DefaultBatchSize is the number of rows per INSERT statement.
const DefaultBatchSize = 500

// maxBindParams bounds the placeholders of one INSERT: SQLite allows 32766 by
// default, PostgreSQL and MySQL 65535.
const maxBindParams = 32766

// ErrTableExists means the destination table is already present.
var ErrTableExists = errors.New("table already exists")

// Dialect names a supported database.
type Dialect string

const (
	SQLite   Dialect = "sqlite"
	Postgres Dialect = "postgres"
	MySQL    Dialect = "mysql"
)

// Config describes the warehouse connection.
type Config struct {
	Dialect   Dialect
	DSN       string
	BatchSize int
	Pool      PoolConfig
}

// Store writes datasets with the "fail if exists" policy.
type Store struct {
	db        *gorm.DB
	batchSize int
}

// Open connects to the warehouse and migrates the run journal.
func Open(ctx context.Context, cfg Config) (*Store, error) {
	if cfg.DSN == "" {
		return nil, failure.New(failure.Config, "open sink", errors.New("DB_DSN is not set"))
	}

	var dialector gorm.Dialector
	pool := cfg.Pool
	if pool == (PoolConfig{}) {
		pool = DefaultPoolConfig()
	}
	switch cfg.Dialect {
	case SQLite, "":
		dialector = sqlite.Open(cfg.DSN)
		// every connection to an in-memory database is a separate database
		pool.MaxOpenConns = 1
	case Postgres:
		dialector = postgres.Open(cfg.DSN)
	case MySQL:
		dialector = mysql.Open(cfg.DSN)
	default:
		return nil, failure.New(failure.Config, "open sink", fmt.Errorf("unsupported DB_DIALECT %q", cfg.Dialect))
	}

	db, err := gorm.Open(dialector, &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		return nil, failure.New(failure.Config, "open sink", fmt.Errorf("failed to connect to %s: %w", cfg.Dialect, err))
	}
	if err := configurePool(db, pool); err != nil {
		return nil, err
	}

	s := New(db, cfg.BatchSize)
	if err := s.Migrate(ctx); err != nil {
		return nil, err
	}
	log.Debug().Str("dialect", string(cfg.Dialect)).Msg("Warehouse connected")
	return s, nil
}

// New wraps an open connection. A non-positive batchSize selects DefaultBatchSize.
func New(db *gorm.DB, batchSize int) *Store {
	if batchSize <= 0 {
		batchSize = DefaultBatchSize
	}
	return &Store{db: db, batchSize: batchSize}
}

// Migrate creates the run journal table.
func (s *Store) Migrate(ctx context.Context) error {
	if err := s.db.WithContext(ctx).AutoMigrate(&ExportRun{}); err != nil {
		return fmt.Errorf("failed to migrate run journal: %w", err)
	}
	return nil
}

// Close releases the connection pool.
func (s *Store) Close() error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

// Exists reports whether table is present.
func (s *Store) Exists(ctx context.Context, table string) (bool, error) {
	return s.db.WithContext(ctx).Migrator().HasTable(table), nil
}

// Write creates table with one TEXT column per dataset column and inserts every row in
// a single transaction. An existing table is a configuration error and nothing is
// written.
func (s *Store) Write(ctx context.Context, table string, ds *dataset.Dataset) error {
	if len(ds.Columns) == 0 {
		return failure.New(failure.Unclassified, "write "+table, errors.New("dataset has no columns"))
	}
	exists, err := s.Exists(ctx, table)
	if err != nil {
		return err
	}
	if exists {
		return failure.New(failure.Config, "write "+table, fmt.Errorf("%s: %w", table, ErrTableExists))
	}

	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Exec(s.createTableSQL(table, ds.Columns)).Error; err != nil {
			return fmt.Errorf("failed to create table: %w", err)
		}
		if ds.Len() == 0 {
			return nil
		}
		rows := make([]map[string]any, 0, ds.Len())
		for _, r := range ds.Rows {
			m := make(map[string]any, len(ds.Columns))
			for i, c := range ds.Columns {
				m[c] = r[i]
			}
			rows = append(rows, m)
		}
		if err := tx.Table(table).CreateInBatches(rows, s.batchFor(len(ds.Columns))).Error; err != nil {
			return fmt.Errorf("failed to insert rows: %w", err)
		}
		return nil
	})
	if err != nil {
		return failure.New(failure.Unclassified, "write "+table, err)
	}

	log.Info().Str("table", table).Int("rows", ds.Len()).Msg("Dataset written")
	return nil
}

// batchFor caps the batch so that one INSERT binds at most maxBindParams values.
func (s *Store) batchFor(columns int) int {
	return max(1, min(s.batchSize, maxBindParams/columns))
}

func (s *Store) createTableSQL(table string, columns []string) string {
	var b strings.Builder
	b.WriteString("CREATE TABLE ")
	s.db.Dialector.QuoteTo(&b, table)
	b.WriteString(" (")
	for i, c := range columns {
		if i > 0 {
			b.WriteString(", ")
		}
		s.db.Dialector.QuoteTo(&b, c)
		b.WriteString(" TEXT")
	}
	b.WriteString(")")
	return b.String()
}
