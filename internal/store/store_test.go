// © 2025 TGMF. All rights reserved.
// Use of this source code is governed by the ISC
// license that can be found in the LICENSE.md file.

package store

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/tgmf/BCloyaltybot/internal/testutil"
)

func TestMemStore(t *testing.T) {
	s := NewMemStore(t.Context(), time.Minute)
	testStore(t, s)
}

func TestJSONFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "store.json")
	s, err := NewJSONFile(t.Context(), path, time.Minute)
	if err != nil {
		t.Fatal(err)
	}
	testStore(t, s)
}

func TestJSONFilePersistence(t *testing.T) {
	ctx := t.Context()
	path := filepath.Join(t.TempDir(), "store.json")

	s, err := NewJSONFile(ctx, path, time.Minute)
	if err != nil {
		t.Fatal(err)
	}
	if err := s.Set(ctx, "key", []byte("value")); err != nil {
		t.Fatal(err)
	}

	// Reopen and check the value survived.
	s2, err := NewJSONFile(ctx, path, time.Minute)
	if err != nil {
		t.Fatal(err)
	}
	got, err := s2.Get(ctx, "key")
	if err != nil {
		t.Fatal(err)
	}
	testutil.AssertEqual(t, string(got), "value")
}

func TestSQLiteStore(t *testing.T) {
	path := filepath.Join(t.TempDir(), "store.db")
	s, err := NewSQLiteStore(t.Context(), path, time.Minute)
	if err != nil {
		t.Fatal(err)
	}
	defer s.Close()
	testStore(t, s)
}

func TestPostgresStore(t *testing.T) {
	databaseURL := os.Getenv("DATABASE_URL")
	if databaseURL == "" {
		t.Skip("DATABASE_URL is not set")
	}

	ctx := context.Background()
	s, err := NewPostgresStore(ctx, databaseURL, time.Minute)
	if err != nil {
		t.Fatal(err)
	}
	defer s.Close()

	// Clean up the table before running the test.
	if _, err := s.pool.Exec(ctx, "DELETE FROM kv"); err != nil {
		t.Fatal(err)
	}

	testStore(t, s)
}

func testStore(t *testing.T, s Store) {
	ctx := context.Background()

	if err := s.Set(ctx, "key1", []byte("value1")); err != nil {
		t.Fatal(err)
	}
	if err := s.Set(ctx, "key2", []byte("value2")); err != nil {
		t.Fatal(err)
	}

	v, err := s.Get(ctx, "key1")
	if err != nil {
		t.Fatal(err)
	}
	testutil.AssertEqual(t, string(v), "value1")

	// Overwrite an existing key.
	if err := s.Set(ctx, "key1", []byte("updated")); err != nil {
		t.Fatal(err)
	}
	v, err = s.Get(ctx, "key1")
	if err != nil {
		t.Fatal(err)
	}
	testutil.AssertEqual(t, string(v), "updated")

	// Non-existent key returns (nil, nil).
	v, err = s.Get(ctx, "key3")
	if err != nil {
		t.Fatal(err)
	}
	if v != nil {
		t.Errorf("got %q, want nil", v)
	}
}

func TestMemStoreExpiry(t *testing.T) {
	ctx := t.Context()
	s := NewMemStore(ctx, 10*time.Millisecond)

	if err := s.Set(ctx, "key", []byte("value")); err != nil {
		t.Fatal(err)
	}
	time.Sleep(20 * time.Millisecond)

	v, err := s.Get(ctx, "key")
	if err != nil {
		t.Fatal(err)
	}
	if v != nil {
		t.Errorf("expired key should return nil, got %q", v)
	}
}

func TestOpen(t *testing.T) {
	ctx := t.Context()
	dir := t.TempDir()

	cases := map[string]struct {
		dsn     string
		want    any
		wantErr bool
	}{
		"empty":       {dsn: "", want: &MemStore{}},
		"mem":         {dsn: "mem://", want: &MemStore{}},
		"file":        {dsn: "file://" + filepath.Join(dir, "s.json"), want: &JSONFile{}},
		"sqlite":      {dsn: "sqlite://" + filepath.Join(dir, "s.db"), want: &SQLiteStore{}},
		"unsupported": {dsn: "redis://localhost", wantErr: true},
	}

	for name, tc := range cases {
		t.Run(name, func(t *testing.T) {
			s, err := Open(ctx, tc.dsn, time.Minute)
			if tc.wantErr {
				if err == nil {
					t.Fatal("want error, got nil")
				}
				return
			}
			if err != nil {
				t.Fatal(err)
			}
			defer s.Close()
			if got, want := typeName(s), typeName(tc.want); got != want {
				t.Errorf("got %s, want %s", got, want)
			}
		})
	}
}

func typeName(v any) string {
	switch v.(type) {
	case *MemStore:
		return "mem"
	case *JSONFile:
		return "jsonfile"
	case *SQLiteStore:
		return "sqlite"
	case *PostgresStore:
		return "postgres"
	}
	return "unknown"
}
