package postgres

import (
	"context"
	"database/sql"
	_ "embed"
	"fmt"
	"log/slog"

	"github.com/lib/pq"

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
	) VALUES (
		$1, $2, $3, $4, $5, $6, $7, $8, $9,
		$10, $11, $12, $13,
		$14, $15, $16, $17, $18, $19,
		$20, $21, $22, $23, $24, $25
	)
	ON CONFLICT (uid) DO NOTHING`

// EventRepository implements domain.EventRepository for PostgreSQL.
type EventRepository struct {
	db     *sql.DB
	logger *slog.Logger
}

// NewEventRepository creates a new PostgreSQL event repository.
func NewEventRepository(db *sql.DB, logger *slog.Logger) *EventRepository {
	return &EventRepository{db: db, logger: logger.With("component", "postgres_event_repository")}
}

// Open connects to dsn and verifies the connection.
func Open(ctx context.Context, dsn string) (*sql.DB, error) {
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open postgres: %w", err)
	}
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to connect to postgres: %w", err)
	}
	return db, nil
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

// Upsert inserts every event whose uid is not stored yet and returns how many rows were
// added. Each record runs under its own savepoint so one bad record is logged and skipped
// without aborting the rest. An error is returned only when the batch as a whole fails.
func (r *EventRepository) Upsert(ctx context.Context, events []*domain.Event) (int, error) {
	if len(events) == 0 {
		return 0, nil
	}

	txn, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, err
	}
	defer txn.Rollback() // Rollback is a no-op if Commit() is called

	stmt, err := txn.PrepareContext(ctx, insertEventQuery)
	if err != nil {
		return 0, fmt.Errorf("failed to prepare insert: %w", err)
	}
	defer stmt.Close()

	inserted := 0
	for _, e := range events {
		if _, err := txn.ExecContext(ctx, `SAVEPOINT event_insert`); err != nil {
			return 0, err
		}
		res, err := stmt.ExecContext(ctx, eventArgs(e)...)
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

func eventArgs(e *domain.Event) []any {
	var raw any
	if len(e.Raw) > 0 {
		raw = string(e.Raw)
	}
	return []any{
		e.UID, e.Title, nullString(e.Category), nullString(e.Description), nullString(e.Organizer),
		nullString(e.Pricing), nullString(e.Website), nullString(e.ImagePath), pq.Array(e.Tags),
		e.BeginDate, e.EndDate, nullString(e.StartTime), nullString(e.EndTime),
		nullString(e.LocationName), nullString(e.Address), nullString(e.PostalCode), nullString(e.City),
		nullString(e.State), nullString(e.Country),
		e.Latitude, e.Longitude, nullString(e.DisplayName), nullString(e.PlaceID), string(e.Source), raw,
	}
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}
