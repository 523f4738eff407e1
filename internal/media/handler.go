package media

import (
	"errors"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/videohub/backend/internal/middleware"
	"github.com/videohub/backend/internal/models"
	"github.com/videohub/backend/pkg/response"
)

// Handler handles media HTTP endpoints.
type Handler struct {
	svc    *Service
	orgs   OrgStore
	logger *zap.Logger
}

// NewHandler creates a media handler.
func NewHandler(svc *Service, orgs OrgStore, logger *zap.Logger) *Handler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Handler{svc: svc, orgs: orgs, logger: logger}
}

// CreateRequest is the body for POST /media.
type CreateRequest struct {
	Name      string `json:"name" binding:"required"`
	MediaType string `json:"media_type" binding:"required"`
	Protocol  string `json:"protocol_type" binding:"required"`
}

// Create handles POST /media. Returns the new asset and a presigned
// upload URL for its source file.
func (h *Handler) Create(c *gin.Context) {
	var req CreateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, "invalid request: "+err.Error())
		return
	}
	orgID := c.MustGet(middleware.ContextOrgID).(uuid.UUID)
	userID := c.MustGet(middleware.ContextUserID).(uuid.UUID)

	res, err := h.svc.Create(c.Request.Context(), orgID, CreateInput{
		Name:      req.Name,
		MediaType: req.MediaType,
		Protocol:  req.Protocol,
		CreatedBy: &userID,
	})
	if err != nil {
		switch {
		case errors.Is(err, ErrInvalidType), errors.Is(err, ErrInvalidProto):
			response.BadRequest(c, err.Error())
		case errors.Is(err, ErrUploadsOff):
			response.Forbidden(c, err.Error())
		default:
			h.logger.Error("create media failed", zap.Error(err), zap.String("organization_id", orgID.String()))
			response.Internal(c, "failed to create media")
		}
		return
	}
	response.Created(c, gin.H{"media": res.Media, "upload_url": res.UploadURL})
}

// List handles GET /media for the caller's organization.
func (h *Handler) List(c *gin.Context) {
	orgID := c.MustGet(middleware.ContextOrgID).(uuid.UUID)
	list, err := h.svc.List(c.Request.Context(), orgID, intQuery(c, "limit", 50), intQuery(c, "offset", 0))
	if err != nil {
		response.Internal(c, "failed to list media")
		return
	}
	response.OK(c, list)
}

// Get handles GET /media/:video_id. Finished assets include their
// playback URL.
func (h *Handler) Get(c *gin.Context) {
	m, ok := h.loadOwned(c)
	if !ok {
		return
	}
	body := gin.H{"media": m}
	if m.State == models.MediaFinished {
		org, err := h.orgs.GetByID(c.Request.Context(), m.OrganizationID)
		if err == nil && org != nil {
			body["playback_url"] = PlaybackURL(m, org)
		}
	}
	response.OK(c, body)
}

// Queue handles POST /media/:video_id/queue, the upload-complete
// notification.
func (h *Handler) Queue(c *gin.Context) {
	m, ok := h.loadOwned(c)
	if !ok {
		return
	}
	out, err := h.svc.Queue(c.Request.Context(), m.VideoID)
	if err != nil {
		if errors.Is(err, models.ErrTransitionNotAllowed) {
			response.Conflict(c, "media is not waiting for a file")
			return
		}
		h.logger.Error("queue media failed", zap.Error(err), zap.String("video_id", m.VideoID.String()))
		response.Internal(c, "failed to queue media")
		return
	}
	response.Accepted(c, out)
}

// QueueFail handles POST /media/:video_id/queue_fail, reported when the
// source upload was abandoned.
func (h *Handler) QueueFail(c *gin.Context) {
	m, ok := h.loadOwned(c)
	if !ok {
		return
	}
	out, err := h.svc.MarkQueueFailed(c.Request.Context(), m.VideoID)
	if err != nil {
		if errors.Is(err, models.ErrTransitionNotAllowed) {
			response.Conflict(c, "media is not waiting for a file")
			return
		}
		h.logger.Error("queue_fail failed", zap.Error(err), zap.String("video_id", m.VideoID.String()))
		response.Internal(c, "failed to update media")
		return
	}
	response.OK(c, out)
}

// Reprocess handles POST /media/:video_id/reprocess.
func (h *Handler) Reprocess(c *gin.Context) {
	m, ok := h.loadOwned(c)
	if !ok {
		return
	}
	out, err := h.svc.Reprocess(c.Request.Context(), m.VideoID)
	if err != nil {
		if errors.Is(err, models.ErrTransitionNotAllowed) {
			response.Conflict(c, "media cannot be reprocessed in its current state")
			return
		}
		h.logger.Error("reprocess media failed", zap.Error(err), zap.String("video_id", m.VideoID.String()))
		response.Internal(c, "failed to reprocess media")
		return
	}
	response.Accepted(c, out)
}

// Delete handles DELETE /media/:video_id.
func (h *Handler) Delete(c *gin.Context) {
	m, ok := h.loadOwned(c)
	if !ok {
		return
	}
	if err := h.svc.Delete(c.Request.Context(), m.VideoID); err != nil {
		h.logger.Error("delete media failed", zap.Error(err), zap.String("video_id", m.VideoID.String()))
		response.Internal(c, "failed to delete media")
		return
	}
	response.NoContent(c)
}

// loadOwned parses :video_id and enforces tenant ownership.
func (h *Handler) loadOwned(c *gin.Context) (*models.Media, bool) {
	videoID, err := uuid.Parse(c.Param("video_id"))
	if err != nil {
		response.BadRequest(c, "invalid video id")
		return nil, false
	}
	m, err := h.svc.Get(c.Request.Context(), videoID)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			response.NotFound(c, "media not found")
		} else {
			response.Internal(c, "failed to load media")
		}
		return nil, false
	}
	orgID := c.MustGet(middleware.ContextOrgID).(uuid.UUID)
	if m.OrganizationID != orgID {
		response.NotFound(c, "media not found")
		return nil, false
	}
	return m, true
}

func intQuery(c *gin.Context, name string, def int) int {
	if s := c.Query(name); s != "" {
		if n, err := strconv.Atoi(s); err == nil {
			return n
		}
	}
	return def
}
