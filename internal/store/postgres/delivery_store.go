package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/mozoqr/waiterpush/internal/domain"
)

// DeliveryStore implements domain.DeliveryStore on the deliveries table.
type DeliveryStore struct {
	pool *pgxpool.Pool
}

// NewDeliveryStore creates a DeliveryStore backed by the given pool.
func NewDeliveryStore(pool *pgxpool.Pool) *DeliveryStore {
	return &DeliveryStore{pool: pool}
}

const deliveryColumns = `id, message_id, outcome, call_id, table_label, call_type,
	channel_id, notification_id, title, created_at`

// Record inserts rec.
func (s *DeliveryStore) Record(ctx context.Context, rec domain.DeliveryRecord) error {
	const query = `INSERT INTO deliveries (` + deliveryColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)`

	createdAt := rec.CreatedAt
	if createdAt.IsZero() {
		createdAt = time.Now().UTC()
	}
	_, err := s.pool.Exec(ctx, query,
		rec.ID, rec.MessageID, string(rec.Outcome), rec.CallID, rec.TableLabel, rec.Type,
		rec.ChannelID, rec.NotificationID, rec.Title, createdAt,
	)
	if err != nil {
		return fmt.Errorf("postgres: record delivery %s: %w", rec.ID, err)
	}
	return nil
}

// List returns records newest first, filtered and paginated by opts.
func (s *DeliveryStore) List(ctx context.Context, opts domain.ListOpts) ([]domain.DeliveryRecord, error) {
	query, args := buildListQuery(opts)
	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("postgres: list deliveries: %w", err)
	}
	return collectDeliveries(rows)
}

// ListBefore returns up to limit records created before the cutoff, oldest
// first.
func (s *DeliveryStore) ListBefore(ctx context.Context, before time.Time, limit int) ([]domain.DeliveryRecord, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT `+deliveryColumns+` FROM deliveries
		 WHERE created_at < $1 ORDER BY created_at ASC LIMIT $2`,
		before, limit,
	)
	if err != nil {
		return nil, fmt.Errorf("postgres: list deliveries before %s: %w", before.Format(time.RFC3339), err)
	}
	return collectDeliveries(rows)
}

// DeleteBefore removes records created before the cutoff and returns how
// many were deleted.
func (s *DeliveryStore) DeleteBefore(ctx context.Context, before time.Time) (int64, error) {
	tag, err := s.pool.Exec(ctx, `DELETE FROM deliveries WHERE created_at < $1`, before)
	if err != nil {
		return 0, fmt.Errorf("postgres: delete deliveries before %s: %w", before.Format(time.RFC3339), err)
	}
	return tag.RowsAffected(), nil
}

// buildListQuery renders the filtered select for List.
func buildListQuery(opts domain.ListOpts) (string, []any) {
	query := `SELECT ` + deliveryColumns + ` FROM deliveries WHERE 1=1`
	args := []any{}
	argIdx := 1

	if opts.Since != nil {
		query += fmt.Sprintf(" AND created_at >= $%d", argIdx)
		args = append(args, *opts.Since)
		argIdx++
	}
	if opts.Until != nil {
		query += fmt.Sprintf(" AND created_at <= $%d", argIdx)
		args = append(args, *opts.Until)
		argIdx++
	}

	query += " ORDER BY created_at DESC"

	if opts.Limit > 0 {
		query += fmt.Sprintf(" LIMIT $%d", argIdx)
		args = append(args, opts.Limit)
		argIdx++
	}
	if opts.Offset > 0 {
		query += fmt.Sprintf(" OFFSET $%d", argIdx)
		args = append(args, opts.Offset)
	}
	return query, args
}

func collectDeliveries(rows pgx.Rows) ([]domain.DeliveryRecord, error) {
	defer rows.Close()

	var out []domain.DeliveryRecord
	for rows.Next() {
		var (
			rec     domain.DeliveryRecord
			outcome string
		)
		if err := rows.Scan(&rec.ID, &rec.MessageID, &outcome, &rec.CallID, &rec.TableLabel,
			&rec.Type, &rec.ChannelID, &rec.NotificationID, &rec.Title, &rec.CreatedAt); err != nil {
			return nil, fmt.Errorf("postgres: scan delivery: %w", err)
		}
		rec.Outcome = domain.Outcome(outcome)
		out = append(out, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("postgres: iterate deliveries: %w", err)
	}
	return out, nil
}

var _ domain.DeliveryStore = (*DeliveryStore)(nil)
