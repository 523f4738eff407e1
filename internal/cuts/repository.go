package cuts

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/videohub/backend/internal/models"
)

type Repository struct {
	db *pgxpool.Pool
}

func NewRepository(db *pgxpool.Pool) *Repository {
	return &Repository{db: db}
}

const cutColumns = `id, live_id, initial_time, final_time, COALESCE(description,''), state, created_by, created_at, updated_at`

func scanCut(row pgx.Row) (*models.LiveVideoCut, error) {
	var c models.LiveVideoCut
	err := row.Scan(&c.ID, &c.LiveID, &c.InitialTime, &c.FinalTime, &c.Description,
		&c.State, &c.CreatedBy, &c.CreatedAt, &c.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	return &c, nil
}

func (r *Repository) Create(ctx context.Context, c *models.LiveVideoCut) error {
	const q = `
		INSERT INTO live_video_cuts (live_id, initial_time, final_time, description, state, created_by)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING id, created_at, updated_at`
	return r.db.QueryRow(ctx, q, c.LiveID, c.InitialTime, c.FinalTime, c.Description, c.State, c.CreatedBy).
		Scan(&c.ID, &c.CreatedAt, &c.UpdatedAt)
}

func (r *Repository) GetByID(ctx context.Context, id uuid.UUID) (*models.LiveVideoCut, error) {
	q := `SELECT ` + cutColumns + ` FROM live_video_cuts WHERE id = $1`
	return scanCut(r.db.QueryRow(ctx, q, id))
}

func (r *Repository) ListByLive(ctx context.Context, liveID uuid.UUID) ([]models.LiveVideoCut, error) {
	q := `SELECT ` + cutColumns + ` FROM live_video_cuts WHERE live_id = $1 ORDER BY initial_time`
	rows, err := r.db.Query(ctx, q, liveID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []models.LiveVideoCut
	for rows.Next() {
		var c models.LiveVideoCut
		if err := rows.Scan(&c.ID, &c.LiveID, &c.InitialTime, &c.FinalTime, &c.Description,
			&c.State, &c.CreatedBy, &c.CreatedAt, &c.UpdatedAt); err != nil {
			return nil, err
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

// CountOverlapping counts cuts on the live video intersecting the
// half-open interval [initial, final), excluding one cut by id.
func (r *Repository) CountOverlapping(ctx context.Context, liveID uuid.UUID, initial, final time.Time, exclude uuid.UUID) (int, error) {
	const q = `
		SELECT COUNT(*) FROM live_video_cuts
		WHERE live_id = $1 AND id <> $2 AND initial_time < $4 AND final_time > $3`
	var n int
	err := r.db.QueryRow(ctx, q, liveID, exclude, initial, final).Scan(&n)
	return n, err
}

// UpdateInterval rewrites a scheduled cut's interval and description.
func (r *Repository) UpdateInterval(ctx context.Context, id uuid.UUID, initial, final time.Time, description string) error {
	const q = `
		UPDATE live_video_cuts SET initial_time = $2, final_time = $3, description = $4, updated_at = NOW()
		WHERE id = $1 AND state = 'scheduled'`
	tag, err := r.db.Exec(ctx, q, id, initial, final, description)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return models.ErrTransitionNotAllowed
	}
	return nil
}

// Transition atomically moves the cut to target if its current state is
// one of sources.
func (r *Repository) Transition(ctx context.Context, id uuid.UUID, target models.CutState, sources []models.CutState) (models.CutState, error) {
	srcs := make([]string, len(sources))
	for i, s := range sources {
		srcs[i] = string(s)
	}
	const q = `
		UPDATE live_video_cuts c SET state = $1, updated_at = NOW()
		FROM (SELECT id, state AS prev FROM live_video_cuts WHERE id = $2 AND state = ANY($3) FOR UPDATE) cur
		WHERE c.id = cur.id
		RETURNING cur.prev`
	var prev models.CutState
	err := r.db.QueryRow(ctx, q, target, id, srcs).Scan(&prev)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return "", models.ErrTransitionNotAllowed
		}
		return "", err
	}
	return prev, nil
}

// DueForExecution returns scheduled cuts whose interval has begun.
func (r *Repository) DueForExecution(ctx context.Context, now time.Time) ([]models.LiveVideoCut, error) {
	q := `SELECT ` + cutColumns + ` FROM live_video_cuts WHERE state = 'scheduled' AND initial_time <= $1 ORDER BY initial_time`
	return r.list(ctx, q, now)
}

// DueForPerform returns executing cuts whose interval has ended.
func (r *Repository) DueForPerform(ctx context.Context, now time.Time) ([]models.LiveVideoCut, error) {
	q := `SELECT ` + cutColumns + ` FROM live_video_cuts WHERE state = 'executing' AND final_time <= $1 ORDER BY final_time`
	return r.list(ctx, q, now)
}

func (r *Repository) list(ctx context.Context, q string, args ...interface{}) ([]models.LiveVideoCut, error) {
	rows, err := r.db.Query(ctx, q, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []models.LiveVideoCut
	for rows.Next() {
		var c models.LiveVideoCut
		if err := rows.Scan(&c.ID, &c.LiveID, &c.InitialTime, &c.FinalTime, &c.Description,
			&c.State, &c.CreatedBy, &c.CreatedAt, &c.UpdatedAt); err != nil {
			return nil, err
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

// Delete removes a cut while it is still scheduled.
func (r *Repository) Delete(ctx context.Context, id uuid.UUID) error {
	const q = `DELETE FROM live_video_cuts WHERE id = $1 AND state = 'scheduled'`
	tag, err := r.db.Exec(ctx, q, id)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("cut %s not found or not scheduled", id)
	}
	return nil
}
