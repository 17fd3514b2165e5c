package s3blob

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"time"

	"github.com/alanyoungcy/swapd/internal/domain"
)

// largeArchiveThreshold switches uploads to the multipart path.
const largeArchiveThreshold = 8 * 1024 * 1024

// EventArchiveStore is the narrow read interface the archiver needs: events
// of terminal orders older than the cutoff. The Postgres event store
// satisfies it.
type EventArchiveStore interface {
	ListBefore(ctx context.Context, before time.Time) ([]domain.LifecycleEvent, error)
}

// BlobWriter is the upload surface the archiver writes through.
type BlobWriter interface {
	Put(ctx context.Context, path string, data io.Reader, contentType string) error
	PutMultipart(ctx context.Context, path string, data io.Reader, partSize int64) error
}

// Archiver offloads old lifecycle event rows to object storage as JSONL.
// Only events of orders that reached a terminal status are archived; rows of
// in-flight orders always stay in the primary store.
//
// Deletion of archived rows is intentionally not performed here. That is a
// separate, explicit step to be run after the archive has been verified.
type Archiver struct {
	writer BlobWriter
	events EventArchiveStore
	logger *slog.Logger
}

// NewArchiver creates an Archiver over the given writer and event store.
func NewArchiver(writer BlobWriter, events EventArchiveStore, logger *slog.Logger) *Archiver {
	return &Archiver{
		writer: writer,
		events: events,
		logger: logger.With(slog.String("component", "archiver")),
	}
}

// ArchiveEvents uploads all archivable events older than the cutoff to
// archive/events/YYYY-MM.jsonl and returns the number of archived rows.
func (a *Archiver) ArchiveEvents(ctx context.Context, before time.Time) (int64, error) {
	events, err := a.events.ListBefore(ctx, before)
	if err != nil {
		return 0, fmt.Errorf("s3blob: archive events query: %w", err)
	}
	if len(events) == 0 {
		return 0, nil
	}

	buf, err := marshalJSONL(events)
	if err != nil {
		return 0, fmt.Errorf("s3blob: archive events marshal: %w", err)
	}

	path := archivePath("events", before)
	reader := bytes.NewReader(buf)
	if len(buf) > largeArchiveThreshold {
		err = a.writer.PutMultipart(ctx, path, reader, 0)
	} else {
		err = a.writer.Put(ctx, path, reader, "application/x-ndjson")
	}
	if err != nil {
		return 0, fmt.Errorf("s3blob: archive events upload: %w", err)
	}

	count := int64(len(events))
	a.logger.InfoContext(ctx, "events archived",
		slog.String("path", path),
		slog.Int64("count", count),
		slog.String("before", before.Format(time.RFC3339)),
	)
	return count, nil
}

// Run archives on a fixed interval until the context is cancelled. cutoffAge
// is how old an event must be before it is eligible.
func (a *Archiver) Run(ctx context.Context, interval, cutoffAge time.Duration) error {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			if _, err := a.ArchiveEvents(ctx, time.Now().Add(-cutoffAge)); err != nil {
				a.logger.ErrorContext(ctx, "archive run failed",
					slog.String("error", err.Error()),
				)
			}
		}
	}
}

// archivePath builds the S3 key for an archive file, partitioned by the
// year-month of the cutoff time.
//
//	archive/events/2026-08.jsonl
func archivePath(kind string, before time.Time) string {
	return fmt.Sprintf("archive/%s/%s.jsonl", kind, before.Format("2006-01"))
}

// marshalJSONL serialises records as newline-delimited JSON, one compact
// object per line.
func marshalJSONL[T any](records []T) ([]byte, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)

	for i, rec := range records {
		if err := enc.Encode(rec); err != nil {
			return nil, fmt.Errorf("jsonl encode record %d: %w", i, err)
		}
	}
	return buf.Bytes(), nil
}
