// Package repo implements the data persistence layer for the relay's domain
// entities, backed by GORM over SQLite. This file contains database
// bootstrapping helpers (pure-Go driver) and schema migrations; the other
// files hold thin, context-aware repository functions per table.
package repo

import (
	"time"

	sqlite "github.com/glebarez/sqlite"
	"gorm.io/gorm"
	"gorm.io/plugin/opentelemetry/tracing"

	"github.com/linkrelay/go-link-relay/internal/domain"
	"github.com/linkrelay/go-link-relay/internal/sysutil"
)

// ErrNotFound is returned when a requested record does not exist. It aliases
// gorm.ErrRecordNotFound for consistent checks across services.
var ErrNotFound = gorm.ErrRecordNotFound

// OpenSQLite opens (or creates) the relay database and applies PRAGMAs.
// Failure here is the one fatal startup condition of the whole service.
func OpenSQLite(path string) (*gorm.DB, error) {
	// Create the parent directory up front; the driver's own failure mode
	// for a missing directory is an unhelpful "out of memory (14)".
	if err := sysutil.EnsureDataDir(path); err != nil {
		return nil, err
	}

	db, err := gorm.Open(sqlite.Open(path), &gorm.Config{})
	if err != nil {
		return nil, err
	}

	// PRAGMAs: WAL keeps the queue worker and retry worker from blocking
	// each other on the shared file.
	db.Exec("PRAGMA journal_mode=WAL;")
	db.Exec("PRAGMA synchronous=NORMAL;")
	db.Exec("PRAGMA busy_timeout=5000;")

	// Pool
	if sqlDB, err := db.DB(); err == nil {
		sqlDB.SetMaxOpenConns(10)
		sqlDB.SetMaxIdleConns(10)
		sqlDB.SetConnMaxIdleTime(5 * time.Minute)
		sqlDB.SetConnMaxLifetime(30 * time.Minute)
	}

	// Trace queries alongside the service spans.
	if err := db.Use(tracing.NewPlugin(tracing.WithoutMetrics())); err != nil {
		return nil, err
	}

	return db, nil
}

// AutoMigrate creates or updates the three relay tables.
func AutoMigrate(db *gorm.DB) error {
	return db.AutoMigrate(
		&domain.ProcessedMessage{},
		&domain.PendingForward{},
		&domain.JoinedChannel{},
	)
}
