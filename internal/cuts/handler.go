package cuts

import (
	"errors"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/videohub/backend/internal/middleware"
	"github.com/videohub/backend/internal/models"
	"github.com/videohub/backend/pkg/response"
)

// Handler handles cut HTTP endpoints.
type Handler struct {
	svc    *Service
	lives  LiveController
	logger *zap.Logger
}

// NewHandler creates a cuts handler.
func NewHandler(svc *Service, lives LiveController, logger *zap.Logger) *Handler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Handler{svc: svc, lives: lives, logger: logger}
}

// CutRequest is the body for POST and PUT cut endpoints.
type CutRequest struct {
	InitialTime time.Time `json:"initial_time" binding:"required"`
	FinalTime   time.Time `json:"final_time" binding:"required"`
	Description string    `json:"description"`
}

// Create handles POST /live/:video_id/cuts.
func (h *Handler) Create(c *gin.Context) {
	liveID, ok := h.ownedLive(c)
	if !ok {
		return
	}
	var req CutRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, "invalid request: "+err.Error())
		return
	}
	userID := c.MustGet(middleware.ContextUserID).(uuid.UUID)

	cut, err := h.svc.Create(c.Request.Context(), liveID, CutInput{
		InitialTime: req.InitialTime,
		FinalTime:   req.FinalTime,
		Description: req.Description,
		CreatedBy:   &userID,
	})
	if err != nil {
		h.writeCutErr(c, err, "failed to create cut")
		return
	}
	response.Created(c, cut)
}

// List handles GET /live/:video_id/cuts.
func (h *Handler) List(c *gin.Context) {
	liveID, ok := h.ownedLive(c)
	if !ok {
		return
	}
	list, err := h.svc.ListByLive(c.Request.Context(), liveID)
	if err != nil {
		response.Internal(c, "failed to list cuts")
		return
	}
	response.OK(c, list)
}

// Update handles PUT /cuts/:id.
func (h *Handler) Update(c *gin.Context) {
	cut, ok := h.ownedCut(c)
	if !ok {
		return
	}
	var req CutRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, "invalid request: "+err.Error())
		return
	}
	out, err := h.svc.Update(c.Request.Context(), cut.ID, CutInput{
		InitialTime: req.InitialTime,
		FinalTime:   req.FinalTime,
		Description: req.Description,
	})
	if err != nil {
		h.writeCutErr(c, err, "failed to update cut")
		return
	}
	response.OK(c, out)
}

// Delete handles DELETE /cuts/:id.
func (h *Handler) Delete(c *gin.Context) {
	cut, ok := h.ownedCut(c)
	if !ok {
		return
	}
	if err := h.svc.Delete(c.Request.Context(), cut.ID); err != nil {
		h.writeCutErr(c, err, "failed to delete cut")
		return
	}
	response.NoContent(c)
}

func (h *Handler) writeCutErr(c *gin.Context, err error, fallback string) {
	switch {
	case errors.Is(err, ErrInvalidInterval), errors.Is(err, ErrPastStart):
		response.BadRequest(c, err.Error())
	case errors.Is(err, ErrCutOverlap):
		response.Conflict(c, err.Error())
	case errors.Is(err, models.ErrTransitionNotAllowed):
		response.Conflict(c, "cut is no longer editable")
	case errors.Is(err, ErrNotFound):
		response.NotFound(c, "cut not found")
	default:
		h.logger.Error(fallback, zap.Error(err))
		response.Internal(c, fallback)
	}
}

// ownedLive parses :video_id and enforces tenant ownership of the live
// video the cut belongs to.
func (h *Handler) ownedLive(c *gin.Context) (uuid.UUID, bool) {
	liveID, err := uuid.Parse(c.Param("video_id"))
	if err != nil {
		response.BadRequest(c, "invalid video id")
		return uuid.Nil, false
	}
	l, err := h.lives.Get(c.Request.Context(), liveID)
	if err != nil || l == nil {
		response.NotFound(c, "live video not found")
		return uuid.Nil, false
	}
	orgID := c.MustGet(middleware.ContextOrgID).(uuid.UUID)
	if l.OrganizationID != orgID {
		response.NotFound(c, "live video not found")
		return uuid.Nil, false
	}
	return liveID, true
}

// ownedCut parses :id and enforces tenant ownership via the parent live
// video.
func (h *Handler) ownedCut(c *gin.Context) (*models.LiveVideoCut, bool) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		response.BadRequest(c, "invalid cut id")
		return nil, false
	}
	cut, err := h.svc.Get(c.Request.Context(), id)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			response.NotFound(c, "cut not found")
		} else {
			response.Internal(c, "failed to load cut")
		}
		return nil, false
	}
	l, err := h.lives.Get(c.Request.Context(), cut.LiveID)
	if err != nil || l == nil {
		response.NotFound(c, "cut not found")
		return nil, false
	}
	orgID := c.MustGet(middleware.ContextOrgID).(uuid.UUID)
	if l.OrganizationID != orgID {
		response.NotFound(c, "cut not found")
		return nil, false
	}
	return cut, true
}
