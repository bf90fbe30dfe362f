package postgres

import (
	"context"
	"database/sql"
	"fmt"
	"sync"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/jackc/pgx/v5/stdlib"

	"github.com/dtroode/audience-server/database"
)

type Connection struct {
	*pgxpool.Pool

	sqlOnce sync.Once
	sqlDB   *sql.DB
}

func NewConection(ctx context.Context, dsn string) (*Connection, error) {
	conf, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to parse postgres dsn: %w", err)
	}

	pool, err := pgxpool.NewWithConfig(ctx, conf)
	if err != nil {
		return nil, fmt.Errorf("failed to open connection pool: %w", err)
	}

	if err := database.Migrate(ctx, dsn); err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to initialize database: %w", err)
	}

	return &Connection{
		Pool: pool,
	}, nil
}

// SQLDB returns a database/sql handle sharing the pool.
func (s *Connection) SQLDB() *sql.DB {
	s.sqlOnce.Do(func() {
		s.sqlDB = stdlib.OpenDBFromPool(s.Pool)
	})
	return s.sqlDB
}

func (s *Connection) Close() error {
	if s.sqlDB != nil {
		_ = s.sqlDB.Close()
	}
	if s.Pool != nil {
		s.Pool.Close()
	}
	return nil
}

func (s *Connection) Ping(ctx context.Context) error {
	if s.Pool == nil {
		return fmt.Errorf("connection pool is nil")
	}
	if err := s.Pool.Ping(ctx); err != nil {
		return classify(err)
	}
	return nil
}
