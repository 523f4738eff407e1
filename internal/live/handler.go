package live

import (
	"errors"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/videohub/backend/internal/middleware"
	"github.com/videohub/backend/internal/models"
	"github.com/videohub/backend/pkg/cloud"
	"github.com/videohub/backend/pkg/response"
)

// Handler handles live video HTTP endpoints.
type Handler struct {
	svc    *Service
	logger *zap.Logger
}

// NewHandler creates a live video handler.
func NewHandler(svc *Service, logger *zap.Logger) *Handler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Handler{svc: svc, logger: logger}
}

// CreateRequest is the body for POST /live.
type CreateRequest struct {
	Name string `json:"name" binding:"required"`
}

// Create handles POST /live. Provisions the channel, input, alert
// plumbing, and delivery distribution.
func (h *Handler) Create(c *gin.Context) {
	var req CreateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, "invalid request: "+err.Error())
		return
	}
	orgID := c.MustGet(middleware.ContextOrgID).(uuid.UUID)
	userID := c.MustGet(middleware.ContextUserID).(uuid.UUID)

	l, err := h.svc.Create(c.Request.Context(), orgID, CreateInput{Name: req.Name, CreatedBy: &userID})
	if err != nil {
		h.logger.Error("create live failed", zap.Error(err), zap.String("organization_id", orgID.String()))
		response.Internal(c, "failed to create live video")
		return
	}
	response.Created(c, l)
}

// List handles GET /live for the caller's organization.
func (h *Handler) List(c *gin.Context) {
	orgID := c.MustGet(middleware.ContextOrgID).(uuid.UUID)
	list, err := h.svc.List(c.Request.Context(), orgID)
	if err != nil {
		response.Internal(c, "failed to list live videos")
		return
	}
	response.OK(c, list)
}

// Get handles GET /live/:video_id.
func (h *Handler) Get(c *gin.Context) {
	l, ok := h.loadOwned(c)
	if !ok {
		return
	}
	response.OK(c, gin.H{"live_video": l, "playback_url": PlaybackURL(l)})
}

// Start handles POST /live/:video_id/start.
func (h *Handler) Start(c *gin.Context) {
	l, ok := h.loadOwned(c)
	if !ok {
		return
	}
	out, err := h.svc.Start(c.Request.Context(), l.VideoID)
	if err != nil {
		if errors.Is(err, models.ErrTransitionNotAllowed) {
			response.Conflict(c, "live video cannot start from its current state")
			return
		}
		if errors.Is(err, cloud.ErrChannelNotFound) {
			response.NotFound(c, "live channel no longer exists")
			return
		}
		h.logger.Error("start live failed", zap.Error(err), zap.String("video_id", l.VideoID.String()))
		response.Internal(c, "failed to start live video")
		return
	}
	response.Accepted(c, out)
}

// Stop handles POST /live/:video_id/stop.
func (h *Handler) Stop(c *gin.Context) {
	l, ok := h.loadOwned(c)
	if !ok {
		return
	}
	out, err := h.svc.Stop(c.Request.Context(), l.VideoID)
	if err != nil {
		if errors.Is(err, models.ErrTransitionNotAllowed) {
			response.Conflict(c, "live video cannot stop from its current state")
			return
		}
		if errors.Is(err, cloud.ErrChannelNotFound) {
			response.NotFound(c, "live channel no longer exists")
			return
		}
		h.logger.Error("stop live failed", zap.Error(err), zap.String("video_id", l.VideoID.String()))
		response.Internal(c, "failed to stop live video")
		return
	}
	response.Accepted(c, out)
}

// Delete handles DELETE /live/:video_id. The channel must be off.
func (h *Handler) Delete(c *gin.Context) {
	l, ok := h.loadOwned(c)
	if !ok {
		return
	}
	if err := h.svc.Delete(c.Request.Context(), l.VideoID); err != nil {
		if errors.Is(err, models.ErrTransitionNotAllowed) {
			response.Conflict(c, "live video must be off before deletion")
			return
		}
		h.logger.Error("delete live failed", zap.Error(err), zap.String("video_id", l.VideoID.String()))
		response.Internal(c, "failed to delete live video")
		return
	}
	response.Accepted(c, gin.H{"video_id": l.VideoID, "state": models.LiveDeleting})
}

// GeoRequest is the body for PUT /live/:video_id/geolocation.
type GeoRequest struct {
	Type      string   `json:"geolocation_type" binding:"required"`
	Countries []string `json:"geolocation_countries"`
}

// UpdateGeo handles PUT /live/:video_id/geolocation.
func (h *Handler) UpdateGeo(c *gin.Context) {
	l, ok := h.loadOwned(c)
	if !ok {
		return
	}
	var req GeoRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, "invalid request: "+err.Error())
		return
	}
	out, err := h.svc.UpdateGeoRestriction(c.Request.Context(), l.VideoID, models.GeoType(req.Type), req.Countries)
	if err != nil {
		if errors.Is(err, ErrInvalidGeo) {
			response.BadRequest(c, err.Error())
			return
		}
		h.logger.Error("update geo failed", zap.Error(err), zap.String("video_id", l.VideoID.String()))
		response.Internal(c, "failed to update geo restriction")
		return
	}
	response.OK(c, out)
}

// loadOwned parses :video_id and enforces tenant ownership.
func (h *Handler) loadOwned(c *gin.Context) (*models.LiveVideo, bool) {
	videoID, err := uuid.Parse(c.Param("video_id"))
	if err != nil {
		response.BadRequest(c, "invalid video id")
		return nil, false
	}
	l, err := h.svc.Get(c.Request.Context(), videoID)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			response.NotFound(c, "live video not found")
		} else {
			response.Internal(c, "failed to load live video")
		}
		return nil, false
	}
	orgID := c.MustGet(middleware.ContextOrgID).(uuid.UUID)
	if l.OrganizationID != orgID {
		response.NotFound(c, "live video not found")
		return nil, false
	}
	return l, true
}
