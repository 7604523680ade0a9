// Package database opens the ClickHouse connection used by the remote data
// store and the migrator.
package database

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/ClickHouse/clickhouse-go/v2"
	"go.uber.org/zap"
)

type Options struct {
	// DSN is either host:port or a full clickhouse:// URL.
	DSN             string
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
	DialTimeout     time.Duration
	Username        string
	Password        string
	Database        string
}

type Database struct {
	conn   clickhouse.Conn
	logger *zap.Logger
}

func clickhouseOptions(opts Options) (*clickhouse.Options, error) {
	if strings.HasPrefix(opts.DSN, "clickhouse://") {
		parsed, err := clickhouse.ParseDSN(opts.DSN)
		if err != nil {
			return nil, fmt.Errorf("parse clickhouse dsn: %w", err)
		}
		return parsed, nil
	}

	dialTimeout := opts.DialTimeout
	if dialTimeout == 0 {
		dialTimeout = 30 * time.Second
	}
	host, _, _ := strings.Cut(opts.DSN, "?")
	return &clickhouse.Options{
		Protocol: clickhouse.Native,
		Addr:     []string{host},
		Settings: clickhouse.Settings{
			"max_execution_time": 60,
		},
		Auth: clickhouse.Auth{
			Database: opts.Database,
			Username: opts.Username,
			Password: opts.Password,
		},
		DialTimeout:     dialTimeout,
		MaxOpenConns:    opts.MaxOpenConns,
		MaxIdleConns:    opts.MaxIdleConns,
		ConnMaxLifetime: opts.ConnMaxLifetime,
	}, nil
}

func New(ctx context.Context, opts Options, logger *zap.Logger) (*Database, error) {
	chOpts, err := clickhouseOptions(opts)
	if err != nil {
		return nil, err
	}

	conn, err := clickhouse.Open(chOpts)
	if err != nil {
		return nil, fmt.Errorf("failed to create clickhouse connection: %w", err)
	}

	if err := conn.Ping(ctx); err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("failed to ping clickhouse: %w", err)
	}

	logger.Info("Connected to ClickHouse",
		zap.Strings("addr", chOpts.Addr),
		zap.String("database", chOpts.Auth.Database))

	return &Database{
		conn:   conn,
		logger: logger,
	}, nil
}

func (db *Database) Close() error {
	return db.conn.Close()
}

func (db *Database) Conn() clickhouse.Conn {
	return db.conn
}
