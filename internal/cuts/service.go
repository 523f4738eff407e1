package cuts

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/videohub/backend/internal/models"
)

var ErrNotFound = errors.New("cut not found")

// Store is the persistence surface the service needs.
type Store interface {
	Create(ctx context.Context, c *models.LiveVideoCut) error
	GetByID(ctx context.Context, id uuid.UUID) (*models.LiveVideoCut, error)
	ListByLive(ctx context.Context, liveID uuid.UUID) ([]models.LiveVideoCut, error)
	CountOverlapping(ctx context.Context, liveID uuid.UUID, initial, final time.Time, exclude uuid.UUID) (int, error)
	UpdateInterval(ctx context.Context, id uuid.UUID, initial, final time.Time, description string) error
	Transition(ctx context.Context, id uuid.UUID, target models.CutState, sources []models.CutState) (models.CutState, error)
	DueForExecution(ctx context.Context, now time.Time) ([]models.LiveVideoCut, error)
	DueForPerform(ctx context.Context, now time.Time) ([]models.LiveVideoCut, error)
	Delete(ctx context.Context, id uuid.UUID) error
}

// LiveController is the slice of the live video service a cut drives.
// Start and stop are idempotent, so the cut does not inspect the live
// state before calling.
type LiveController interface {
	Get(ctx context.Context, videoID uuid.UUID) (*models.LiveVideo, error)
	Start(ctx context.Context, videoID uuid.UUID) (*models.LiveVideo, error)
	Stop(ctx context.Context, videoID uuid.UUID) (*models.LiveVideo, error)
}

type Service struct {
	store  Store
	lives  LiveController
	now    func() time.Time
	logger *zap.Logger
}

func NewService(store Store, lives LiveController, logger *zap.Logger) *Service {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Service{store: store, lives: lives, now: time.Now, logger: logger}
}

type CutInput struct {
	InitialTime time.Time
	FinalTime   time.Time
	Description string
	CreatedBy   *uuid.UUID
}

// Create schedules a cut on the live video.
func (s *Service) Create(ctx context.Context, liveID uuid.UUID, in CutInput) (*models.LiveVideoCut, error) {
	if _, err := s.lives.Get(ctx, liveID); err != nil {
		return nil, err
	}
	initial, final, err := ValidateInterval(ctx, s.store, liveID,
		in.InitialTime, in.FinalTime, uuid.Nil, models.CutScheduled, s.now())
	if err != nil {
		return nil, err
	}
	c := &models.LiveVideoCut{
		LiveID:      liveID,
		InitialTime: initial,
		FinalTime:   final,
		Description: in.Description,
		State:       models.CutScheduled,
		CreatedBy:   in.CreatedBy,
	}
	if err := s.store.Create(ctx, c); err != nil {
		return nil, fmt.Errorf("create cut: %w", err)
	}
	s.logger.Info("cut scheduled",
		zap.String("cut_id", c.ID.String()),
		zap.String("live_id", liveID.String()),
		zap.Time("initial_time", initial),
		zap.Time("final_time", final))
	return c, nil
}

func (s *Service) Get(ctx context.Context, id uuid.UUID) (*models.LiveVideoCut, error) {
	c, err := s.store.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if c == nil {
		return nil, ErrNotFound
	}
	return c, nil
}

func (s *Service) ListByLive(ctx context.Context, liveID uuid.UUID) ([]models.LiveVideoCut, error) {
	return s.store.ListByLive(ctx, liveID)
}

// Update rewrites a cut's interval. Only scheduled cuts are editable.
func (s *Service) Update(ctx context.Context, id uuid.UUID, in CutInput) (*models.LiveVideoCut, error) {
	c, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if c.State != models.CutScheduled {
		return nil, models.ErrTransitionNotAllowed
	}
	initial, final, err := ValidateInterval(ctx, s.store, c.LiveID,
		in.InitialTime, in.FinalTime, id, c.State, s.now())
	if err != nil {
		return nil, err
	}
	if err := s.store.UpdateInterval(ctx, id, initial, final, in.Description); err != nil {
		return nil, err
	}
	return s.Get(ctx, id)
}

// Delete removes a cut. Only scheduled cuts are deletable.
func (s *Service) Delete(ctx context.Context, id uuid.UUID) error {
	c, err := s.Get(ctx, id)
	if err != nil {
		return err
	}
	if c.State != models.CutScheduled {
		return models.ErrTransitionNotAllowed
	}
	return s.store.Delete(ctx, id)
}

func (s *Service) transition(ctx context.Context, id uuid.UUID, event models.CutEvent) error {
	sources, target, ok := models.CutEdge(event)
	if !ok {
		return models.ErrTransitionNotAllowed
	}
	_, err := s.store.Transition(ctx, id, target, sources)
	return err
}

// Execute begins the cut: the cut claims the transition, then stops the
// live channel. A concurrent sweep that loses the claim does nothing.
func (s *Service) Execute(ctx context.Context, c *models.LiveVideoCut) error {
	if err := s.transition(ctx, c.ID, models.CutEventExecute); err != nil {
		if errors.Is(err, models.ErrTransitionNotAllowed) {
			return nil
		}
		return err
	}
	if _, err := s.lives.Stop(ctx, c.LiveID); err != nil && !errors.Is(err, models.ErrTransitionNotAllowed) {
		return fmt.Errorf("stop live for cut %s: %w", c.ID, err)
	}
	s.logger.Info("cut executing", zap.String("cut_id", c.ID.String()), zap.String("live_id", c.LiveID.String()))
	return nil
}

// Perform ends the cut and resumes the live channel.
func (s *Service) Perform(ctx context.Context, c *models.LiveVideoCut) error {
	if err := s.transition(ctx, c.ID, models.CutEventPerform); err != nil {
		if errors.Is(err, models.ErrTransitionNotAllowed) {
			return nil
		}
		return err
	}
	if _, err := s.lives.Start(ctx, c.LiveID); err != nil && !errors.Is(err, models.ErrTransitionNotAllowed) {
		return fmt.Errorf("start live for cut %s: %w", c.ID, err)
	}
	s.logger.Info("cut performed", zap.String("cut_id", c.ID.String()), zap.String("live_id", c.LiveID.String()))
	return nil
}

// Sweep advances every due cut. A failing cut is logged and skipped so
// one bad channel cannot stall the rest of the schedule.
func (s *Service) Sweep(ctx context.Context, now time.Time) {
	due, err := s.store.DueForExecution(ctx, now)
	if err != nil {
		s.logger.Error("load due cuts failed", zap.Error(err))
	} else {
		for i := range due {
			if err := s.Execute(ctx, &due[i]); err != nil {
				s.logger.Error("execute cut failed", zap.String("cut_id", due[i].ID.String()), zap.Error(err))
			}
		}
	}

	ended, err := s.store.DueForPerform(ctx, now)
	if err != nil {
		s.logger.Error("load ended cuts failed", zap.Error(err))
		return
	}
	for i := range ended {
		if err := s.Perform(ctx, &ended[i]); err != nil {
			s.logger.Error("perform cut failed", zap.String("cut_id", ended[i].ID.String()), zap.Error(err))
		}
	}
}
