package s3blob

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/mozoqr/waiterpush/internal/domain"
)

const defaultArchiveBatch = 5000

// DeliveryArchiveStore is the part of the delivery store the archiver needs.
type DeliveryArchiveStore interface {
	ListBefore(ctx context.Context, before time.Time, limit int) ([]domain.DeliveryRecord, error)
	DeleteBefore(ctx context.Context, before time.Time) (int64, error)
}

// ArchiverConfig tunes an Archiver.
type ArchiverConfig struct {
	Prefix    string // key prefix, default "archive"
	BatchSize int
}

// Archiver implements domain.Archiver. Records older than the cutoff are
// written as JSONL objects and deleted from the store only after the object
// is confirmed to exist.
type Archiver struct {
	writer  domain.BlobWriter
	checker domain.BlobChecker
	store   DeliveryArchiveStore
	cfg     ArchiverConfig
	now     func() time.Time
	logger  *slog.Logger
}

// NewArchiver creates an Archiver.
func NewArchiver(writer domain.BlobWriter, checker domain.BlobChecker, store DeliveryArchiveStore, cfg ArchiverConfig, logger *slog.Logger) *Archiver {
	if cfg.Prefix == "" {
		cfg.Prefix = "archive"
	}
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = defaultArchiveBatch
	}
	return &Archiver{
		writer:  writer,
		checker: checker,
		store:   store,
		cfg:     cfg,
		now:     time.Now,
		logger:  logger.With(slog.String("component", "archiver")),
	}
}

// ArchiveDeliveries archives and deletes delivery records created before
// the cutoff, returning how many rows were removed from the store.
//
// When a batch is full, only rows strictly older than its last record are
// deleted; rows sharing that timestamp are picked up again by the next batch.
func (a *Archiver) ArchiveDeliveries(ctx context.Context, before time.Time) (int64, error) {
	runAt := a.now().UTC()
	var total int64

	for batch := 0; ; batch++ {
		recs, err := a.store.ListBefore(ctx, before, a.cfg.BatchSize)
		if err != nil {
			return total, fmt.Errorf("s3blob: archive deliveries query: %w", err)
		}
		if len(recs) == 0 {
			return total, nil
		}

		full := len(recs) >= a.cfg.BatchSize
		cut := before
		if full {
			cut = recs[len(recs)-1].CreatedAt
		}

		path := archivePath(a.cfg.Prefix, before, runAt, batch)
		if err := a.upload(ctx, path, recs); err != nil {
			return total, err
		}

		deleted, err := a.store.DeleteBefore(ctx, cut)
		if err != nil {
			return total, fmt.Errorf("s3blob: archive deliveries delete: %w", err)
		}
		total += deleted

		a.logger.InfoContext(ctx, "delivery batch archived",
			slog.String("path", path),
			slog.Int("records", len(recs)),
			slog.Int64("deleted", deleted),
		)

		if !full {
			return total, nil
		}
		if deleted == 0 {
			a.logger.WarnContext(ctx, "archive batch made no progress, stopping",
				slog.String("cut", cut.Format(time.RFC3339Nano)),
			)
			return total, nil
		}
	}
}

func (a *Archiver) upload(ctx context.Context, path string, recs []domain.DeliveryRecord) error {
	buf, err := marshalJSONL(recs)
	if err != nil {
		return fmt.Errorf("s3blob: archive deliveries marshal: %w", err)
	}
	if err := a.writer.Put(ctx, path, bytes.NewReader(buf), "application/x-ndjson"); err != nil {
		return fmt.Errorf("s3blob: archive deliveries upload: %w", err)
	}

	if a.checker == nil {
		return nil
	}
	ok, err := a.checker.Exists(ctx, path)
	if err != nil {
		return fmt.Errorf("s3blob: archive deliveries verify: %w", err)
	}
	if !ok {
		return fmt.Errorf("s3blob: archive deliveries verify %s: %w", path, domain.ErrNotFound)
	}
	return nil
}

// archivePath partitions archives by the cutoff month:
//
//	archive/deliveries/2026-10/20261019T030000Z-000.jsonl
func archivePath(prefix string, before, runAt time.Time, batch int) string {
	return fmt.Sprintf("%s/deliveries/%s/%s-%03d.jsonl",
		prefix, before.UTC().Format("2006-01"), runAt.Format("20060102T150405Z"), batch)
}

func marshalJSONL[T any](items []T) ([]byte, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	for i := range items {
		if err := enc.Encode(items[i]); err != nil {
			return nil, err
		}
	}
	return buf.Bytes(), nil
}

var _ domain.Archiver = (*Archiver)(nil)
