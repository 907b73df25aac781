package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/2beens/gymsheets/internal/telemetry/tracing"

	"go.opentelemetry.io/otel/attribute"
	_ "modernc.org/sqlite"
)

var _ KVStore = (*SQLiteStore)(nil)

// SQLiteStore is a KVStore persisted in a single sqlite file. A size quota
// mimics the storage allowance the browser profile used to impose: a Set that
// would push the total stored bytes over the quota fails with ErrQuotaExceeded
// instead of silently growing the file.
type SQLiteStore struct {
	db         *sql.DB
	quotaBytes int64
}

// OpenSQLiteStore opens (or creates) the store database at dir/store.db.
// A quota of <= 0 means unlimited.
func OpenSQLiteStore(dir string, quotaBytes int64) (*SQLiteStore, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("creating store dir %s: %w", dir, err)
	}

	dbPath := filepath.Join(dir, "store.db")
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("opening store db: %w", err)
	}

	_, err = db.Exec(`CREATE TABLE IF NOT EXISTS kv_entries (
		key        TEXT PRIMARY KEY,
		value      TEXT NOT NULL,
		updated_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP
	)`)
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("creating kv table: %w", err)
	}

	return &SQLiteStore{
		db:         db,
		quotaBytes: quotaBytes,
	}, nil
}

func (s *SQLiteStore) Get(ctx context.Context, key string) (_ string, err error) {
	ctx, span := tracing.GlobalTracer.Start(ctx, "store.sqlite.get")
	defer func() {
		tracing.EndSpanWithErrCheck(span, err)
	}()
	span.SetAttributes(attribute.String("key", key))

	var value string
	err = s.db.QueryRowContext(ctx, `SELECT value FROM kv_entries WHERE key = ?`, key).Scan(&value)
	if errors.Is(err, sql.ErrNoRows) {
		return "", ErrKeyNotFound
	}
	if err != nil {
		return "", err
	}
	return value, nil
}

func (s *SQLiteStore) Set(ctx context.Context, key, value string) (err error) {
	ctx, span := tracing.GlobalTracer.Start(ctx, "store.sqlite.set")
	defer func() {
		tracing.EndSpanWithErrCheck(span, err)
	}()
	span.SetAttributes(attribute.String("key", key))

	if s.quotaBytes > 0 {
		used, err := s.usedBytesWithout(ctx, key)
		if err != nil {
			return fmt.Errorf("check used bytes: %w", err)
		}
		if used+int64(len(key)+len(value)) > s.quotaBytes {
			return ErrQuotaExceeded
		}
	}

	_, err = s.db.ExecContext(
		ctx,
		`INSERT INTO kv_entries (key, value, updated_at) VALUES (?, ?, CURRENT_TIMESTAMP)
			ON CONFLICT(key) DO UPDATE SET value = excluded.value, updated_at = CURRENT_TIMESTAMP`,
		key, value,
	)
	return err
}

func (s *SQLiteStore) Delete(ctx context.Context, key string) (err error) {
	ctx, span := tracing.GlobalTracer.Start(ctx, "store.sqlite.delete")
	defer func() {
		tracing.EndSpanWithErrCheck(span, err)
	}()
	span.SetAttributes(attribute.String("key", key))

	_, err = s.db.ExecContext(ctx, `DELETE FROM kv_entries WHERE key = ?`, key)
	return err
}

func (s *SQLiteStore) Keys(ctx context.Context, prefix string) (_ []string, err error) {
	ctx, span := tracing.GlobalTracer.Start(ctx, "store.sqlite.keys")
	defer func() {
		tracing.EndSpanWithErrCheck(span, err)
	}()

	rows, err := s.db.QueryContext(
		ctx,
		`SELECT key FROM kv_entries WHERE key LIKE ? || '%' ORDER BY key`,
		prefix,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	keys := make([]string, 0)
	for rows.Next() {
		var key string
		if err := rows.Scan(&key); err != nil {
			return nil, err
		}
		keys = append(keys, key)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	return keys, nil
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// usedBytesWithout returns the total stored bytes, not counting the entry
// about to be overwritten.
func (s *SQLiteStore) usedBytesWithout(ctx context.Context, key string) (int64, error) {
	var used sql.NullInt64
	err := s.db.QueryRowContext(
		ctx,
		`SELECT SUM(LENGTH(key) + LENGTH(value)) FROM kv_entries WHERE key != ?`,
		key,
	).Scan(&used)
	if err != nil {
		return 0, err
	}
	return used.Int64, nil
}
