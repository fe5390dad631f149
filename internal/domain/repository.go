package domain

import "context"

// EventRepository is the durable store of canonical events.
type EventRepository interface {
	// ExistingUIDs loads every stored uid. Used as a pre-filter only.
	ExistingUIDs(ctx context.Context) (map[string]struct{}, error)

	// Upsert inserts each event unless its uid is already stored and returns how many
	// rows were actually inserted. A failing record is logged and skipped; an error is
	// returned only when the batch as a whole could not be attempted.
	Upsert(ctx context.Context, events []*Event) (int, error)

	// EnsureSchema creates the events table and its indexes when missing.
	EnsureSchema(ctx context.Context) error
}

// GeocodeCache maps address keys to previously computed provider answers.
type GeocodeCache interface {
	// Lookup returns nil on a miss.
	Lookup(ctx context.Context, key string) (*CacheEntry, error)
	StoreFound(ctx context.Context, key string, result *GeocodeResult) error
	StoreNotFound(ctx context.Context, key string) error
}

// Geocoder resolves a free-text address through an external provider.
type Geocoder interface {
	Geocode(ctx context.Context, addr Address) GeocodeOutcome
}

// SpoolRepository is the write-ahead spool for batches that could not be stored.
type SpoolRepository interface {
	// Write appends a batch of events to the spool.
	Write(ctx context.Context, events []*Event) error

	// Replay reads spooled batches in write order and hands each to handler.
	Replay(ctx context.Context, handler func(events []*Event) error) error

	// Truncate removes replayed segments.
	Truncate(ctx context.Context) error
}
