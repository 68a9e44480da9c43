package entity

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Receipt is the durable outcome of a completed upload job.
type Receipt struct {
	ID             uuid.UUID        `json:"id"`
	Merchant       *string          `json:"merchant,omitempty"`
	PurchaseDate   *time.Time       `json:"purchase_date,omitempty"`
	TotalAmount    *decimal.Decimal `json:"total_amount,omitempty"`
	SalesTaxAmount *decimal.Decimal `json:"sales_tax_amount,omitempty"`
	Confidence     float64          `json:"confidence"`
	NeedsReview    bool             `json:"needs_review"`
	RawText        string           `json:"raw_text,omitempty"`
	StoredKey      string           `json:"-"`
	CreatedAt      time.Time        `json:"created_at"`
	UpdatedAt      time.Time        `json:"updated_at"`
}
