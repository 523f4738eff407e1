package media

import (
	"context"
	"errors"
	"fmt"

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

const mediaColumns = `id, video_id, name, organization_id, created_by, media_type, protocol_type,
	state, COALESCE(metadata, '{}'::jsonb), storage, duration, created_at, updated_at`

func scanMedia(row pgx.Row) (*models.Media, error) {
	var m models.Media
	err := row.Scan(&m.ID, &m.VideoID, &m.Name, &m.OrganizationID, &m.CreatedBy,
		&m.MediaType, &m.Protocol, &m.State, &m.Metadata, &m.Storage, &m.Duration,
		&m.CreatedAt, &m.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	return &m, nil
}

func (r *Repository) Create(ctx context.Context, m *models.Media) error {
	const q = `
		INSERT INTO media (name, organization_id, created_by, media_type, protocol_type, state)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING id, video_id, created_at, updated_at`
	return r.db.QueryRow(ctx, q, m.Name, m.OrganizationID, m.CreatedBy,
		m.MediaType, m.Protocol, m.State).
		Scan(&m.ID, &m.VideoID, &m.CreatedAt, &m.UpdatedAt)
}

func (r *Repository) GetByVideoID(ctx context.Context, videoID uuid.UUID) (*models.Media, error) {
	q := `SELECT ` + mediaColumns + ` FROM media WHERE video_id = $1`
	return scanMedia(r.db.QueryRow(ctx, q, videoID))
}

func (r *Repository) ListByOrganization(ctx context.Context, orgID uuid.UUID, limit, offset int) ([]models.Media, error) {
	q := `SELECT ` + mediaColumns + ` FROM media
		WHERE organization_id = $1
		ORDER BY created_at DESC
		LIMIT $2 OFFSET $3`
	rows, err := r.db.Query(ctx, q, orgID, limit, offset)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []models.Media
	for rows.Next() {
		var m models.Media
		if err := rows.Scan(&m.ID, &m.VideoID, &m.Name, &m.OrganizationID, &m.CreatedBy,
			&m.MediaType, &m.Protocol, &m.State, &m.Metadata, &m.Storage, &m.Duration,
			&m.CreatedAt, &m.UpdatedAt); err != nil {
			return nil, err
		}
		out = append(out, m)
	}
	return out, rows.Err()
}

// Transition atomically moves the media to target if its current state
// is one of sources, and reports the previous state. The compare and
// swap runs inside the UPDATE so concurrent transitions cannot both
// win.
func (r *Repository) Transition(ctx context.Context, videoID uuid.UUID, target models.MediaState, sources []models.MediaState) (models.MediaState, error) {
	srcs := make([]string, len(sources))
	for i, s := range sources {
		srcs[i] = string(s)
	}
	const q = `
		UPDATE media m SET state = $1, updated_at = NOW()
		FROM (SELECT id, state AS prev FROM media WHERE video_id = $2 AND state = ANY($3) FOR UPDATE) cur
		WHERE m.id = cur.id
		RETURNING cur.prev`
	var prev models.MediaState
	err := r.db.QueryRow(ctx, q, target, videoID, srcs).Scan(&prev)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return "", models.ErrTransitionNotAllowed
		}
		return "", err
	}
	return prev, nil
}

// Revert undoes a transition whose side effect failed, restoring the
// previous state without consulting the transition table.
func (r *Repository) Revert(ctx context.Context, videoID uuid.UUID, from, to models.MediaState) error {
	const q = `UPDATE media SET state = $1, updated_at = NOW() WHERE video_id = $2 AND state = $3`
	_, err := r.db.Exec(ctx, q, to, videoID, from)
	return err
}

func (r *Repository) SetMetadata(ctx context.Context, videoID uuid.UUID, key, value string) error {
	const q = `
		UPDATE media SET metadata = COALESCE(metadata, '{}'::jsonb) || jsonb_build_object($2::text, $3::text),
			updated_at = NOW()
		WHERE video_id = $1`
	tag, err := r.db.Exec(ctx, q, videoID, key, value)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("media %s not found", videoID)
	}
	return nil
}

func (r *Repository) DeleteMetadata(ctx context.Context, videoID uuid.UUID, key string) error {
	const q = `
		UPDATE media SET metadata = COALESCE(metadata, '{}'::jsonb) - $2::text, updated_at = NOW()
		WHERE video_id = $1`
	_, err := r.db.Exec(ctx, q, videoID, key)
	return err
}

func (r *Repository) ClearMetadata(ctx context.Context, videoID uuid.UUID) error {
	const q = `UPDATE media SET metadata = '{}'::jsonb, updated_at = NOW() WHERE video_id = $1`
	_, err := r.db.Exec(ctx, q, videoID)
	return err
}

// SetResult records the transcode outcome alongside the finished media.
func (r *Repository) SetResult(ctx context.Context, videoID uuid.UUID, durationSec int, storageBytes int64) error {
	const q = `UPDATE media SET duration = $2, storage = $3, updated_at = NOW() WHERE video_id = $1`
	_, err := r.db.Exec(ctx, q, videoID, durationSec, storageBytes)
	return err
}

func (r *Repository) Delete(ctx context.Context, videoID uuid.UUID) error {
	const q = `DELETE FROM media WHERE video_id = $1`
	tag, err := r.db.Exec(ctx, q, videoID)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("media %s not found", videoID)
	}
	return nil
}
