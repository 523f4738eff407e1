package organizations

import (
	"context"
	"regexp"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/videohub/backend/internal/models"
	"github.com/videohub/backend/pkg/response"
)

// Bucket names follow S3 rules: lowercase alphanumeric, dots and
// hyphens, 3-63 chars.
var bucketRegex = regexp.MustCompile(`^[a-z0-9][a-z0-9.-]{1,61}[a-z0-9]$`)

// Distributor provisions the organization's CDN distribution.
type Distributor interface {
	CreateDistribution(ctx context.Context, bucket, originPath string, defaultTTL, maxTTL int64) (id, domain string, err error)
}

// Handler handles organization HTTP endpoints.
type Handler struct {
	repo   *Repository
	cdn    Distributor
	logger *zap.Logger
}

// NewHandler creates an organizations handler.
func NewHandler(repo *Repository, cdn Distributor, logger *zap.Logger) *Handler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Handler{repo: repo, cdn: cdn, logger: logger}
}

// CreateOrganizationRequest is the body for POST /organizations.
type CreateOrganizationRequest struct {
	Name          string `json:"name" binding:"required"`
	BucketName    string `json:"bucket_name" binding:"required"`
	UploadEnabled *bool  `json:"upload_enabled"`
}

// Create handles POST /organizations (admin only). Provisions the
// organization's CDN distribution over its bucket.
func (h *Handler) Create(c *gin.Context) {
	var req CreateOrganizationRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, "invalid request: "+err.Error())
		return
	}
	if !bucketRegex.MatchString(req.BucketName) {
		response.BadRequest(c, "invalid bucket name")
		return
	}

	org := &models.Organization{
		Name:          req.Name,
		BucketName:    req.BucketName,
		UploadEnabled: true,
	}
	if req.UploadEnabled != nil {
		org.UploadEnabled = *req.UploadEnabled
	}
	if err := h.repo.Create(c.Request.Context(), org); err != nil {
		h.logger.Error("create organization failed", zap.Error(err), zap.String("name", req.Name))
		response.Internal(c, "failed to create organization")
		return
	}

	if h.cdn != nil {
		cfID, cfDomain, err := h.cdn.CreateDistribution(c.Request.Context(), org.BucketName, "", 86400, 31536000)
		if err != nil {
			h.logger.Error("create distribution failed", zap.Error(err), zap.String("organization_id", org.ID.String()))
		} else {
			if err := h.repo.SetDistribution(c.Request.Context(), org.ID, cfID, cfDomain); err != nil {
				h.logger.Error("save distribution failed", zap.Error(err), zap.String("organization_id", org.ID.String()))
			} else {
				org.CFID, org.CFDomain = cfID, cfDomain
			}
		}
	}

	response.Created(c, org)
}

// List handles GET /organizations (admin only).
func (h *Handler) List(c *gin.Context) {
	list, err := h.repo.List(c.Request.Context())
	if err != nil {
		response.Internal(c, "failed to list organizations")
		return
	}
	response.OK(c, list)
}

// Get handles GET /organizations/:id.
func (h *Handler) Get(c *gin.Context) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		response.BadRequest(c, "invalid organization id")
		return
	}
	org, err := h.repo.GetByID(c.Request.Context(), id)
	if err != nil {
		response.Internal(c, "failed to load organization")
		return
	}
	if org == nil {
		response.NotFound(c, "organization not found")
		return
	}
	response.OK(c, org)
}

// SetUploadEnabledRequest is the body for PATCH /organizations/:id/uploads.
type SetUploadEnabledRequest struct {
	Enabled *bool `json:"enabled" binding:"required"`
}

// SetUploadEnabled handles PATCH /organizations/:id/uploads (admin only).
func (h *Handler) SetUploadEnabled(c *gin.Context) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		response.BadRequest(c, "invalid organization id")
		return
	}
	var req SetUploadEnabledRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, "invalid request: "+err.Error())
		return
	}
	if err := h.repo.SetUploadEnabled(c.Request.Context(), id, *req.Enabled); err != nil {
		response.Internal(c, "failed to update organization")
		return
	}
	response.OK(c, gin.H{"id": id, "upload_enabled": *req.Enabled})
}
