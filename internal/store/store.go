// © 2025 TGMF. All rights reserved.
// Use of this source code is governed by the ISC
// license that can be found in the LICENSE.md file.

// Package store implements a key-value store backed in-memory, by a JSON file
// or by a SQL database.
package store

import (
	"context"
	"fmt"
	"strings"
	"time"
)

// Store is a generic interface for a key-value store.
type Store interface {
	// Get retrieves a value for a given key.
	// It must return (nil, nil) if the key is not found.
	Get(ctx context.Context, key string) ([]byte, error)
	// Set stores a value for a given key.
	Set(ctx context.Context, key string, value []byte) error
	// Close closes the store and releases any resources.
	Close() error
}

// Open creates a [Store] based on the provided DSN.
//
// Supported DSN forms:
//
//	mem://                          in-memory store
//	file://relative/path.json       JSON file store
//	sqlite://path/to/db.sqlite      SQLite store
//	postgres://user@host/db         PostgreSQL store
//
// An empty DSN opens an in-memory store.
func Open(ctx context.Context, dsn string, ttl time.Duration) (Store, error) {
	switch {
	case dsn == "", dsn == "mem://":
		return NewMemStore(ctx, ttl), nil
	case strings.HasPrefix(dsn, "file://"):
		return NewJSONFile(ctx, strings.TrimPrefix(dsn, "file://"), ttl)
	case strings.HasPrefix(dsn, "sqlite://"):
		return NewSQLiteStore(ctx, strings.TrimPrefix(dsn, "sqlite://"), ttl)
	case strings.HasPrefix(dsn, "postgres://"), strings.HasPrefix(dsn, "postgresql://"):
		return NewPostgresStore(ctx, dsn, ttl)
	}
	return nil, fmt.Errorf("store: unsupported DSN %q", dsn)
}
