// Package source bulk-loads records from a PostgreSQL table shaped
//
//	CREATE TABLE records (id TEXT PRIMARY KEY, fields JSONB NOT NULL);
//
// into the database. Rows are paged by primary key inside one snapshot.
package source

import (
	"bytes"
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"log/slog"
	"regexp"
	"time"

	"github.com/Adithya-Monish-Kumar-K/Sharded-Field-Index/internal/value"
	apperrors "github.com/Adithya-Monish-Kumar-K/Sharded-Field-Index/pkg/errors"
)

var identPattern = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*(\.[A-Za-z_][A-Za-z0-9_]*)?$`)

// Snapshotter is satisfied by *postgres.Client.
type Snapshotter interface {
	Snapshot(ctx context.Context, fn func(tx *sql.Tx) error) error
}

// Indexer is the write surface of *database.Database.
type Indexer interface {
	AddRecord(ctx context.Context, id string, fields map[string]value.Value) error
}

type Loader struct {
	db        Snapshotter
	table     string
	batchSize int
	logger    *slog.Logger
}

func NewLoader(db Snapshotter, table string, batchSize int) (*Loader, error) {
	if !identPattern.MatchString(table) {
		return nil, apperrors.Newf(apperrors.ErrInvalidConfig, "source.new", "invalid table name %q", table)
	}
	if batchSize <= 0 {
		batchSize = 1000
	}
	return &Loader{
		db:        db,
		table:     table,
		batchSize: batchSize,
		logger:    slog.Default().With("component", "source"),
	}, nil
}

// Load indexes every row and returns the number of records written. A row
// whose fields fail to decode aborts the load.
func (l *Loader) Load(ctx context.Context, into Indexer) (int, error) {
	start := time.Now()
	query := fmt.Sprintf(`SELECT id, fields FROM %s WHERE id > $1 ORDER BY id LIMIT $2`, l.table)
	total := 0

	err := l.db.Snapshot(ctx, func(tx *sql.Tx) error {
		after := ""
		for {
			n, last, err := l.loadBatch(ctx, tx, query, after, into)
			if err != nil {
				return err
			}
			total += n
			if n < l.batchSize {
				return nil
			}
			after = last
			l.logger.Debug("batch loaded", "records", total, "last_id", last)
		}
	})
	if err != nil {
		return total, fmt.Errorf("loading records from %s: %w", l.table, err)
	}
	l.logger.Info("bulk load complete",
		"table", l.table,
		"records", total,
		"duration_ms", time.Since(start).Milliseconds(),
	)
	return total, nil
}

func (l *Loader) loadBatch(ctx context.Context, tx *sql.Tx, query, after string, into Indexer) (int, string, error) {
	rows, err := tx.QueryContext(ctx, query, after, l.batchSize)
	if err != nil {
		return 0, "", fmt.Errorf("querying batch after %q: %w", after, err)
	}
	defer rows.Close()

	n := 0
	last := after
	for rows.Next() {
		var id string
		var raw []byte
		if err := rows.Scan(&id, &raw); err != nil {
			return n, last, fmt.Errorf("scanning row: %w", err)
		}
		fields, err := DecodeFields(raw)
		if err != nil {
			return n, last, fmt.Errorf("record %s: %w", id, err)
		}
		if err := into.AddRecord(ctx, id, fields); err != nil {
			return n, last, err
		}
		n++
		last = id
	}
	if err := rows.Err(); err != nil {
		return n, last, fmt.Errorf("iterating rows: %w", err)
	}
	return n, last, nil
}

// DecodeFields parses a JSONB object of scalar values. SQL NULL and JSON
// null both decode to an empty field set.
func DecodeFields(raw []byte) (map[string]value.Value, error) {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 || bytes.Equal(raw, []byte("null")) {
		return map[string]value.Value{}, nil
	}
	var fields map[string]value.Value
	if err := json.Unmarshal(raw, &fields); err != nil {
		return nil, apperrors.Newf(apperrors.ErrInvalidInput, "source.decode", "decoding fields: %v", err)
	}
	return fields, nil
}
