package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/mozoqr/waiterpush/internal/domain"
)

// ChannelRegistry implements domain.ChannelRegistry on the
// notification_channels table.
type ChannelRegistry struct {
	pool *pgxpool.Pool
}

// NewChannelRegistry creates a ChannelRegistry backed by the given pool.
func NewChannelRegistry(pool *pgxpool.Pool) *ChannelRegistry {
	return &ChannelRegistry{pool: pool}
}

const channelColumns = `id, name, description, importance, vibration, lights, light_color`

// GetChannel returns the channel with id, or nil when it does not exist.
func (r *ChannelRegistry) GetChannel(ctx context.Context, id string) (*domain.Channel, error) {
	row := r.pool.QueryRow(ctx,
		`SELECT `+channelColumns+` FROM notification_channels WHERE id = $1`, id)

	ch, err := scanChannel(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("postgres: get channel %s: %w", id, err)
	}
	return &ch, nil
}

// CreateChannel inserts ch. An existing row with the same id is left as is.
func (r *ChannelRegistry) CreateChannel(ctx context.Context, ch domain.Channel) error {
	const query = `
		INSERT INTO notification_channels (` + channelColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		ON CONFLICT (id) DO NOTHING`

	_, err := r.pool.Exec(ctx, query,
		ch.ID, ch.Name, ch.Description, ch.Importance.String(),
		ch.Vibration, ch.Lights, ch.LightColor,
	)
	if err != nil {
		return fmt.Errorf("postgres: create channel %s: %w", ch.ID, err)
	}
	return nil
}

// ListChannels returns every registered channel ordered by id.
func (r *ChannelRegistry) ListChannels(ctx context.Context) ([]domain.Channel, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT `+channelColumns+` FROM notification_channels ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("postgres: list channels: %w", err)
	}
	defer rows.Close()

	var out []domain.Channel
	for rows.Next() {
		ch, err := scanChannel(rows)
		if err != nil {
			return nil, fmt.Errorf("postgres: scan channel: %w", err)
		}
		out = append(out, ch)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("postgres: iterate channels: %w", err)
	}
	return out, nil
}

func scanChannel(row pgx.Row) (domain.Channel, error) {
	var (
		ch         domain.Channel
		importance string
	)
	if err := row.Scan(&ch.ID, &ch.Name, &ch.Description, &importance,
		&ch.Vibration, &ch.Lights, &ch.LightColor); err != nil {
		return domain.Channel{}, err
	}
	ch.Importance = domain.ParseImportance(importance)
	return ch, nil
}

var _ domain.ChannelRegistry = (*ChannelRegistry)(nil)
