package database

import (
	"context"
	"database/sql"
	_ "embed"
	"strings"
	"time"

	"github.com/go-sql-driver/mysql"
	"github.com/pkg/errors"
	"go.uber.org/zap"

	"github.com/01moynul/storefront-api/internal/config"
)

//go:embed schema.sql
var schema string

const pingTimeout = 5 * time.Second

// OpenDB creates and configures the primary connection pool from config
// and verifies it with a ping.
func OpenDB(ctx context.Context, cfg config.DBConfig, log *zap.Logger) (*sql.DB, error) {
	// 1. Open a new connection pool.
	dsn, err := NormalizeDSN(cfg.DSN)
	if err != nil {
		return nil, err
	}
	db, err := sql.Open("mysql", dsn)
	if err != nil {
		return nil, errors.Wrap(err, "open mysql pool")
	}

	// 2. Configure the connection pool settings.
	Configure(db, cfg)

	// 3. Ping the database to verify the connection.
	pingCtx, cancel := context.WithTimeout(ctx, pingTimeout)
	defer cancel()
	if err := db.PingContext(pingCtx); err != nil {
		db.Close()
		return nil, errors.Wrap(err, "ping mysql")
	}

	log.Info("database connection pool established",
		zap.Int("max_open_conns", cfg.MaxOpenConns),
		zap.Int("max_idle_conns", cfg.MaxIdleConns),
		zap.Duration("conn_max_lifetime", cfg.ConnMaxLifetime),
	)
	return db, nil
}

// NormalizeDSN forces parseTime so DATETIME columns scan into time.Time, and
// pins the connection location to UTC.
func NormalizeDSN(dsn string) (string, error) {
	cfg, err := mysql.ParseDSN(dsn)
	if err != nil {
		return "", errors.Wrap(err, "parse DB_DSN_PRIMARY")
	}
	cfg.ParseTime = true
	cfg.Loc = time.UTC
	return cfg.FormatDSN(), nil
}

// Configure applies the pool limits from config.
func Configure(db *sql.DB, cfg config.DBConfig) {
	db.SetMaxOpenConns(cfg.MaxOpenConns)
	db.SetMaxIdleConns(cfg.MaxIdleConns)
	db.SetConnMaxLifetime(cfg.ConnMaxLifetime)
}

// Migrate creates the tables if they do not exist yet.
// Statements run one by one since the driver does not enable multiStatements by default.
func Migrate(ctx context.Context, db *sql.DB, log *zap.Logger) error {
	stmts := Statements()
	for i, stmt := range stmts {
		if _, err := db.ExecContext(ctx, stmt); err != nil {
			return errors.Wrapf(err, "migrate: statement %d", i+1)
		}
	}
	log.Info("database schema is up to date", zap.Int("statements", len(stmts)))
	return nil
}

// Statements splits the embedded schema into executable statements.
func Statements() []string {
	var out []string
	for _, part := range strings.Split(schema, ";") {
		if stmt := strings.TrimSpace(part); stmt != "" {
			out = append(out, stmt)
		}
	}
	return out
}
