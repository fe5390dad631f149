// Package sqlite stores events in a single-file SQLite database for local runs.
package sqlite

import (
	"context"
	"database/sql"
	_ "embed"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	_ "github.com/mattn/go-sqlite3"

	"github.com/V4T54L/agenda-ingest/internal/domain"
)

//go:embed schema.sql
var schemaSQL string

const insertEventQuery = `
	INSERT INTO scanned_events (
		uid, title, category, description, organizer, pricing, website, image_path, tags,
		begin_date, end_date, start_time, end_time,
		location_name, address, zipcode, city, state, country,
		latitude, longitude, display_name, place_id, source, raw_json
	) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	ON CONFLICT (uid) DO NOTHING`

// Open creates or opens the database at path (":memory:" for tests).
// SQLite allows one writer, so the pool is limited to a single connection.
func Open(path string) (*sql.DB, error) {
	if path != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			return nil, fmt.Errorf("ensure data dir: %w", err)
		}
	}

	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	for _, pragma := range []string{
		"PRAGMA journal_mode = WAL",
		"PRAGMA synchronous = NORMAL",
		"PRAGMA busy_timeout = 5000",
	} {
		if _, err := db.Exec(pragma); err != nil {
			_ = db.Close()
			return nil, fmt.Errorf("failed to execute %q: %w", pragma, err)
		}
	}

	if err := db.Ping(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping sqlite: %w", err)
	}
	return db, nil
}

// EventRepository implements domain.EventRepository on SQLite.
type EventRepository struct {
	db     *sql.DB
	logger *slog.Logger
}

func NewEventRepository(db *sql.DB, logger *slog.Logger) *EventRepository {
	return &EventRepository{db: db, logger: logger.With("component", "sqlite_event_repository")}
}

func (r *EventRepository) EnsureSchema(ctx context.Context) error {
	if _, err := r.db.ExecContext(ctx, schemaSQL); err != nil {
		return fmt.Errorf("failed to apply schema: %w", err)
	}
	return nil
}

func (r *EventRepository) ExistingUIDs(ctx context.Context) (map[string]struct{}, error) {
	rows, err := r.db.QueryContext(ctx, `SELECT uid FROM scanned_events`)
	if err != nil {
		return nil, fmt.Errorf("failed to load existing uids: %w", err)
	}
	defer rows.Close()

	uids := make(map[string]struct{})
	for rows.Next() {
		var uid string
		if err := rows.Scan(&uid); err != nil {
			return nil, err
		}
		uids[uid] = struct{}{}
	}
	return uids, rows.Err()
}

// Upsert follows the same per-record savepoint scheme as the Postgres repository.
func (r *EventRepository) Upsert(ctx context.Context, events []*domain.Event) (int, error) {
	if len(events) == 0 {
		return 0, nil
	}

	txn, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, err
	}
	defer txn.Rollback()

	stmt, err := txn.PrepareContext(ctx, insertEventQuery)
	if err != nil {
		return 0, fmt.Errorf("failed to prepare insert: %w", err)
	}
	defer stmt.Close()

	inserted := 0
	for _, e := range events {
		args, err := eventArgs(e)
		if err != nil {
			r.logger.Error("Failed to encode event, skipping", "uid", e.UID, "error", err)
			continue
		}
		if _, err := txn.ExecContext(ctx, `SAVEPOINT event_insert`); err != nil {
			return 0, err
		}
		res, err := stmt.ExecContext(ctx, args...)
		if err != nil {
			r.logger.Error("Failed to insert event, skipping", "uid", e.UID, "error", err)
			if _, err := txn.ExecContext(ctx, `ROLLBACK TO SAVEPOINT event_insert`); err != nil {
				return 0, err
			}
		} else if n, err := res.RowsAffected(); err == nil {
			inserted += int(n)
		}
		if _, err := txn.ExecContext(ctx, `RELEASE SAVEPOINT event_insert`); err != nil {
			return 0, err
		}
	}

	if err := txn.Commit(); err != nil {
		return 0, err
	}
	return inserted, nil
}

// findByUID loads one stored event, or nil when absent.
func (r *EventRepository) findByUID(ctx context.Context, uid string) (*domain.Event, error) {
	row := r.db.QueryRowContext(ctx, `
		SELECT uid, title, COALESCE(city, ''), COALESCE(zipcode, ''), COALESCE(begin_date, ''),
		       COALESCE(start_time, ''), COALESCE(tags, ''), latitude, longitude, source
		FROM scanned_events WHERE uid = ?`, uid)

	var (
		e               domain.Event
		beginDate, tags string
		lat, lon        sql.NullFloat64
		source          string
	)
	err := row.Scan(&e.UID, &e.Title, &e.City, &e.PostalCode, &beginDate, &e.StartTime, &tags, &lat, &lon, &source)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	if beginDate != "" {
		d, err := domain.ParseISODate(beginDate)
		if err != nil {
			return nil, fmt.Errorf("stored begin_date %q: %w", beginDate, err)
		}
		e.BeginDate = &d
	}
	if tags != "" {
		if err := json.Unmarshal([]byte(tags), &e.Tags); err != nil {
			return nil, fmt.Errorf("stored tags: %w", err)
		}
	}
	if lat.Valid && lon.Valid {
		e.Latitude, e.Longitude = &lat.Float64, &lon.Float64
	}
	e.Source = domain.SourceKind(source)
	return &e, nil
}

func eventArgs(e *domain.Event) ([]any, error) {
	var tags any
	if len(e.Tags) > 0 {
		b, err := json.Marshal(e.Tags)
		if err != nil {
			return nil, err
		}
		tags = string(b)
	}
	var raw any
	if len(e.Raw) > 0 {
		raw = string(e.Raw)
	}
	return []any{
		e.UID, e.Title, nullString(e.Category), nullString(e.Description), nullString(e.Organizer),
		nullString(e.Pricing), nullString(e.Website), nullString(e.ImagePath), tags,
		e.BeginDate, e.EndDate, nullString(e.StartTime), nullString(e.EndTime),
		nullString(e.LocationName), nullString(e.Address), nullString(e.PostalCode), nullString(e.City),
		nullString(e.State), nullString(e.Country),
		e.Latitude, e.Longitude, nullString(e.DisplayName), nullString(e.PlaceID), string(e.Source), raw,
	}, nil
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}
