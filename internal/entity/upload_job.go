package entity

import (
	"time"

	"github.com/google/uuid"

	"github.com/ocreceipt/ocreceipt/constants"
)

// UploadJob represents one submitted file's processing lifecycle.
// It is created at intake and mutated only by the worker that owns it.
type UploadJob struct {
	ID               uuid.UUID           `json:"id"`
	Status           constants.JobStatus `json:"status"`
	OriginalFilename string              `json:"original_filename"`
	StoredKey        string              `json:"-"`
	ContentType      string              `json:"content_type"`
	ReceiptID        *uuid.UUID          `json:"receipt_id,omitempty"`
	ErrorMessage     *string             `json:"error_message,omitempty"`
	CreatedAt        time.Time           `json:"created_at"`
	UpdatedAt        time.Time           `json:"updated_at"`
}
