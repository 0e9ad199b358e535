package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"

	"example.com/attendance/internal/domain"
)

const checkpointCols = `id, name, description, latitude, longitude, radius_meters, active, created_at, updated_at`

func scanCheckpoint(row pgx.Row) (*domain.Checkpoint, error) {
	var cp domain.Checkpoint
	if err := row.Scan(&cp.ID, &cp.Name, &cp.Description, &cp.Center.Latitude, &cp.Center.Longitude,
		&cp.RadiusMeters, &cp.Active, &cp.CreatedAt, &cp.UpdatedAt); err != nil {
		return nil, err
	}
	cp.CreatedAt = cp.CreatedAt.UTC()
	cp.UpdatedAt = cp.UpdatedAt.UTC()
	return &cp, nil
}

// GetCheckpoint implements domain.CheckpointStore.
func (r *Repository) GetCheckpoint(ctx context.Context, id string) (*domain.Checkpoint, error) {
	cp, err := scanCheckpoint(r.pool.QueryRow(ctx, `SELECT `+checkpointCols+` FROM checkpoints WHERE id=$1`, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("get checkpoint: %w", err)
	}
	return cp, nil
}

// ListCheckpoints implements domain.CheckpointStore, newest first.
func (r *Repository) ListCheckpoints(ctx context.Context, includeInactive bool) ([]domain.Checkpoint, error) {
	query := `SELECT ` + checkpointCols + ` FROM checkpoints`
	if !includeInactive {
		query += ` WHERE active`
	}
	query += ` ORDER BY created_at DESC, id DESC`

	rows, err := r.pool.Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("list checkpoints: %w", err)
	}
	defer rows.Close()

	results := make([]domain.Checkpoint, 0)
	for rows.Next() {
		cp, err := scanCheckpoint(rows)
		if err != nil {
			return nil, fmt.Errorf("scan checkpoint: %w", err)
		}
		results = append(results, *cp)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list checkpoints: %w", err)
	}
	return results, nil
}

// CreateCheckpoint implements domain.CheckpointStore.
func (r *Repository) CreateCheckpoint(ctx context.Context, cp domain.Checkpoint) error {
	_, err := r.pool.Exec(ctx,
		`INSERT INTO checkpoints (`+checkpointCols+`) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9)`,
		cp.ID, cp.Name, cp.Description, cp.Center.Latitude, cp.Center.Longitude,
		cp.RadiusMeters, cp.Active, cp.CreatedAt, cp.UpdatedAt,
	)
	if err != nil {
		return mapError("create checkpoint", err)
	}
	return nil
}

// UpdateCheckpoint implements domain.CheckpointStore.
func (r *Repository) UpdateCheckpoint(ctx context.Context, cp domain.Checkpoint) error {
	tag, err := r.pool.Exec(ctx,
		`UPDATE checkpoints SET name=$2, description=$3, latitude=$4, longitude=$5, radius_meters=$6, active=$7, updated_at=$8
         WHERE id=$1`,
		cp.ID, cp.Name, cp.Description, cp.Center.Latitude, cp.Center.Longitude,
		cp.RadiusMeters, cp.Active, cp.UpdatedAt,
	)
	if err != nil {
		return mapError("update checkpoint", err)
	}
	if tag.RowsAffected() == 0 {
		return domain.NewError(domain.KindNotFound, "checkpoint not found")
	}
	return nil
}

// DeleteCheckpoint implements domain.CheckpointStore. Sessions go with it via ON DELETE CASCADE.
func (r *Repository) DeleteCheckpoint(ctx context.Context, id string) error {
	if _, err := r.pool.Exec(ctx, `DELETE FROM checkpoints WHERE id=$1`, id); err != nil {
		return mapError("delete checkpoint", err)
	}
	return nil
}
