// Package spool keeps event batches on local disk when the database rejects a whole
// batch, so the next run can hand them to storage again.
package spool

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/V4T54L/agenda-ingest/internal/domain"
)

const (
	segmentPrefix = "spool-"
	segmentSuffix = ".jsonl"
	filePerm      = 0644
	maxLineBytes  = 64 << 20
)

type record struct {
	BatchID   string          `json:"batch_id"`
	SpooledAt time.Time       `json:"spooled_at"`
	Events    []*domain.Event `json:"events"`
}

// Repository implements domain.SpoolRepository as JSON-lines segment files.
// Each line holds one batch. Segments rotate at maxSegmentSize and writes are
// refused once the directory would exceed maxTotalSize.
type Repository struct {
	dir            string
	maxSegmentSize int64
	maxTotalSize   int64
	logger         *slog.Logger

	mu          sync.Mutex
	current     *os.File
	currentSize int64
	totalSize   int64
	seq         int
}

func NewRepository(dir string, maxSegmentSize, maxTotalSize int64, logger *slog.Logger) (*Repository, error) {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create spool directory %s: %w", dir, err)
	}
	r := &Repository{
		dir:            dir,
		maxSegmentSize: maxSegmentSize,
		maxTotalSize:   maxTotalSize,
		logger:         logger.With("component", "spool_repository"),
	}
	total, err := r.diskUsage()
	if err != nil {
		return nil, err
	}
	r.totalSize = total
	return r, nil
}

// Write appends one batch and fsyncs it.
func (r *Repository) Write(ctx context.Context, events []*domain.Event) error {
	if len(events) == 0 {
		return nil
	}
	r.mu.Lock()
	defer r.mu.Unlock()

	data, err := json.Marshal(record{BatchID: uuid.NewString(), SpooledAt: time.Now().UTC(), Events: events})
	if err != nil {
		return fmt.Errorf("failed to marshal batch for spool: %w", err)
	}
	data = append(data, '\n')

	if r.maxTotalSize > 0 && r.totalSize+int64(len(data)) > r.maxTotalSize {
		return fmt.Errorf("spool max total size exceeded (%d + %d > %d)", r.totalSize, len(data), r.maxTotalSize)
	}

	if r.current == nil || (r.maxSegmentSize > 0 && r.currentSize >= r.maxSegmentSize) {
		if err := r.rotate(); err != nil {
			return err
		}
	}

	n, err := r.current.Write(data)
	r.currentSize += int64(n)
	r.totalSize += int64(n)
	if err != nil {
		return fmt.Errorf("failed to write to spool segment: %w", err)
	}
	if err := r.current.Sync(); err != nil {
		return fmt.Errorf("failed to sync spool segment: %w", err)
	}
	r.logger.Warn("Spooled batch to disk", "events", len(events), "spool_bytes", r.totalSize)
	return nil
}

// Pending reports whether any spooled batch is waiting.
func (r *Repository) Pending() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.totalSize > 0
}

// Replay hands every spooled batch to handler in write order and stops at the first
// handler error. Unreadable lines are logged and skipped.
func (r *Repository) Replay(ctx context.Context, handler func(events []*domain.Event) error) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.closeCurrent()

	segments, err := r.sortedSegments()
	if err != nil {
		return err
	}
	if len(segments) == 0 {
		return nil
	}
	r.logger.Info("Replaying spooled batches", "segment_count", len(segments))

	for _, path := range segments {
		if err := r.replaySegment(ctx, path, handler); err != nil {
			return err
		}
	}
	return nil
}

func (r *Repository) replaySegment(ctx context.Context, path string, handler func(events []*domain.Event) error) error {
	file, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("failed to open segment %s for replay: %w", path, err)
	}
	defer file.Close()

	scanner := bufio.NewScanner(file)
	scanner.Buffer(make([]byte, 0, 64*1024), maxLineBytes)
	for scanner.Scan() {
		if err := ctx.Err(); err != nil {
			return err
		}
		var rec record
		if err := json.Unmarshal(scanner.Bytes(), &rec); err != nil {
			r.logger.Warn("Failed to unmarshal spooled batch, skipping", "path", path, "error", err)
			continue
		}
		if err := handler(rec.Events); err != nil {
			return fmt.Errorf("replay handler failed for batch %s: %w", rec.BatchID, err)
		}
	}
	if err := scanner.Err(); err != nil {
		return fmt.Errorf("error scanning segment %s: %w", path, err)
	}
	return nil
}

// Truncate removes every segment.
func (r *Repository) Truncate(ctx context.Context) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.closeCurrent()

	segments, err := r.sortedSegments()
	if err != nil {
		return err
	}
	var firstErr error
	for _, path := range segments {
		if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
			r.logger.Error("Failed to remove spool segment", "path", path, "error", err)
			if firstErr == nil {
				firstErr = err
			}
		}
	}
	total, err := r.diskUsage()
	if err != nil {
		return err
	}
	r.totalSize = total
	return firstErr
}

// Close closes the open segment, if any.
func (r *Repository) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.current == nil {
		return nil
	}
	err := r.current.Close()
	r.current = nil
	return err
}

func (r *Repository) closeCurrent() {
	if r.current == nil {
		return
	}
	if err := r.current.Close(); err != nil {
		r.logger.Error("Failed to close spool segment", "error", err)
	}
	r.current = nil
	r.currentSize = 0
}

func (r *Repository) rotate() error {
	r.closeCurrent()

	r.seq++
	name := fmt.Sprintf("%s%020d-%06d%s", segmentPrefix, time.Now().UnixNano(), r.seq, segmentSuffix)
	path := filepath.Join(r.dir, name)
	f, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, filePerm)
	if err != nil {
		return fmt.Errorf("failed to create spool segment %s: %w", path, err)
	}
	r.current = f
	r.currentSize = 0
	return nil
}

func (r *Repository) sortedSegments() ([]string, error) {
	entries, err := os.ReadDir(r.dir)
	if err != nil {
		return nil, fmt.Errorf("failed to read spool directory: %w", err)
	}
	var segments []string
	for _, entry := range entries {
		name := entry.Name()
		if !entry.IsDir() && strings.HasPrefix(name, segmentPrefix) && strings.HasSuffix(name, segmentSuffix) {
			segments = append(segments, filepath.Join(r.dir, name))
		}
	}
	sort.Strings(segments)
	return segments, nil
}

func (r *Repository) diskUsage() (int64, error) {
	segments, err := r.sortedSegments()
	if err != nil {
		return 0, err
	}
	var total int64
	for _, path := range segments {
		info, err := os.Stat(path)
		if err != nil {
			return 0, err
		}
		total += info.Size()
	}
	return total, nil
}
