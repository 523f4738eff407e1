package models

import (
	"time"

	"github.com/google/uuid"
)

// Organization represents a tenant. BucketName is the org's dedicated S3
// bucket; all media objects and live channel output land under it.
type Organization struct {
	ID            uuid.UUID `json:"id"`
	Name          string    `json:"name"`
	BucketName    string    `json:"bucket_name"`
	UploadEnabled bool      `json:"upload_enabled"`
	CFID          string    `json:"cf_id"`
	CFDomain      string    `json:"cf_domain"`
	CreatedAt     time.Time `json:"created_at"`
	UpdatedAt     time.Time `json:"updated_at"`
}
