package live

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

const liveColumns = `id, video_id, name, organization_id, created_by, state,
	COALESCE(input_state, '{}'), COALESCE(ml_input_id,''), COALESCE(ml_input_url,''),
	COALESCE(ml_channel_arn,''), COALESCE(sns_topic_arn,''), COALESCE(cf_id,''), COALESCE(cf_domain,''),
	geolocation_type, COALESCE(geolocation_countries, '{}'), created_at, updated_at`

func scanLive(row pgx.Row) (*models.LiveVideo, error) {
	var l models.LiveVideo
	err := row.Scan(&l.ID, &l.VideoID, &l.Name, &l.OrganizationID, &l.CreatedBy, &l.State,
		&l.InputState, &l.MLInputID, &l.MLInputURL,
		&l.MLChannelARN, &l.SNSTopicARN, &l.CFID, &l.CFDomain,
		&l.GeolocationType, &l.GeolocationCountries, &l.CreatedAt, &l.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	return &l, nil
}

func (r *Repository) Create(ctx context.Context, l *models.LiveVideo) error {
	const q = `
		INSERT INTO live_videos (name, organization_id, created_by, state, geolocation_type)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING id, video_id, created_at, updated_at`
	return r.db.QueryRow(ctx, q, l.Name, l.OrganizationID, l.CreatedBy, l.State, l.GeolocationType).
		Scan(&l.ID, &l.VideoID, &l.CreatedAt, &l.UpdatedAt)
}

func (r *Repository) GetByVideoID(ctx context.Context, videoID uuid.UUID) (*models.LiveVideo, error) {
	q := `SELECT ` + liveColumns + ` FROM live_videos WHERE video_id = $1`
	return scanLive(r.db.QueryRow(ctx, q, videoID))
}

// GetByChannelARN resolves the live video an alert's channel belongs to.
func (r *Repository) GetByChannelARN(ctx context.Context, channelARN string) (*models.LiveVideo, error) {
	q := `SELECT ` + liveColumns + ` FROM live_videos WHERE ml_channel_arn = $1`
	return scanLive(r.db.QueryRow(ctx, q, channelARN))
}

func (r *Repository) ListByOrganization(ctx context.Context, orgID uuid.UUID) ([]models.LiveVideo, error) {
	q := `SELECT ` + liveColumns + ` FROM live_videos WHERE organization_id = $1 ORDER BY created_at DESC`
	rows, err := r.db.Query(ctx, q, orgID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []models.LiveVideo
	for rows.Next() {
		var l models.LiveVideo
		if err := rows.Scan(&l.ID, &l.VideoID, &l.Name, &l.OrganizationID, &l.CreatedBy, &l.State,
			&l.InputState, &l.MLInputID, &l.MLInputURL,
			&l.MLChannelARN, &l.SNSTopicARN, &l.CFID, &l.CFDomain,
			&l.GeolocationType, &l.GeolocationCountries, &l.CreatedAt, &l.UpdatedAt); err != nil {
			return nil, err
		}
		out = append(out, l)
	}
	return out, rows.Err()
}

// Transition atomically moves the live video to target if its current
// state is one of sources, and reports the previous state. Concurrent
// transitions race on the row lock; the loser gets
// ErrTransitionNotAllowed and must not run the side effect.
func (r *Repository) Transition(ctx context.Context, videoID uuid.UUID, target models.LiveState, sources []models.LiveState) (models.LiveState, error) {
	srcs := make([]string, len(sources))
	for i, s := range sources {
		srcs[i] = string(s)
	}
	const q = `
		UPDATE live_videos lv SET state = $1, updated_at = NOW()
		FROM (SELECT id, state AS prev FROM live_videos WHERE video_id = $2 AND state = ANY($3) FOR UPDATE) cur
		WHERE lv.id = cur.id
		RETURNING cur.prev`
	var prev models.LiveState
	err := r.db.QueryRow(ctx, q, target, videoID, srcs).Scan(&prev)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return "", models.ErrTransitionNotAllowed
		}
		return "", err
	}
	return prev, nil
}

// Revert undoes a transition whose side effect failed.
func (r *Repository) Revert(ctx context.Context, videoID uuid.UUID, from, to models.LiveState) error {
	const q = `UPDATE live_videos SET state = $1, updated_at = NOW() WHERE video_id = $2 AND state = $3`
	_, err := r.db.Exec(ctx, q, to, videoID, from)
	return err
}

// SetChannelResources records the provisioned input and channel handles.
func (r *Repository) SetChannelResources(ctx context.Context, videoID uuid.UUID, inputID, inputURL, channelARN string) error {
	const q = `
		UPDATE live_videos SET ml_input_id = $2, ml_input_url = $3, ml_channel_arn = $4, updated_at = NOW()
		WHERE video_id = $1`
	tag, err := r.db.Exec(ctx, q, videoID, inputID, inputURL, channelARN)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("live video %s not found", videoID)
	}
	return nil
}

// SetTopicARN records the alert topic provisioned for the channel.
func (r *Repository) SetTopicARN(ctx context.Context, videoID uuid.UUID, topicARN string) error {
	const q = `UPDATE live_videos SET sns_topic_arn = $2, updated_at = NOW() WHERE video_id = $1`
	_, err := r.db.Exec(ctx, q, videoID, topicARN)
	return err
}

// SetDistribution records the delivery distribution.
func (r *Repository) SetDistribution(ctx context.Context, videoID uuid.UUID, cfID, cfDomain string) error {
	const q = `UPDATE live_videos SET cf_id = $2, cf_domain = $3, updated_at = NOW() WHERE video_id = $1`
	_, err := r.db.Exec(ctx, q, videoID, cfID, cfDomain)
	return err
}

// SetInputState replaces the active alert set.
func (r *Repository) SetInputState(ctx context.Context, videoID uuid.UUID, alerts []string) error {
	const q = `UPDATE live_videos SET input_state = $2, updated_at = NOW() WHERE video_id = $1`
	if alerts == nil {
		alerts = []string{}
	}
	_, err := r.db.Exec(ctx, q, videoID, alerts)
	return err
}

// SetGeoRestriction updates the delivery geo policy.
func (r *Repository) SetGeoRestriction(ctx context.Context, videoID uuid.UUID, geoType models.GeoType, countries []string) error {
	const q = `
		UPDATE live_videos SET geolocation_type = $2, geolocation_countries = $3, updated_at = NOW()
		WHERE video_id = $1`
	if countries == nil {
		countries = []string{}
	}
	_, err := r.db.Exec(ctx, q, videoID, string(geoType), countries)
	return err
}

func (r *Repository) Delete(ctx context.Context, videoID uuid.UUID) error {
	const q = `DELETE FROM live_videos WHERE video_id = $1`
	tag, err := r.db.Exec(ctx, q, videoID)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("live video %s not found", videoID)
	}
	return nil
}
