package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/ocreceipt/ocreceipt/internal/common"
	"github.com/ocreceipt/ocreceipt/internal/entity"
)

const dateOnly = "2006-01-02"

// ListFilter narrows List. Zero values mean "no constraint".
type ListFilter struct {
	NeedsReview *bool
	From        *time.Time
	To          *time.Time
	Merchant    string
	Limit       int
}

type ReceiptRepository interface {
	Create(ctx context.Context, rec *entity.Receipt) error
	GetByID(ctx context.Context, id uuid.UUID) (*entity.Receipt, error)
	List(ctx context.Context, f ListFilter) ([]*entity.Receipt, error)
	// Update overwrites the mutable fields: merchant, purchase date, amounts,
	// and the review flag. Confidence and raw text are recognition outputs
	// and never change after creation.
	Update(ctx context.Context, rec *entity.Receipt) error
	SetNeedsReview(ctx context.Context, id uuid.UUID, needsReview bool) error
}

type receiptRepository struct {
	db     *sql.DB
	logger *slog.Logger
}

func NewReceiptRepository(db *sql.DB, logger *slog.Logger) ReceiptRepository {
	return &receiptRepository{db: db, logger: logger}
}

func (r *receiptRepository) Create(ctx context.Context, rec *entity.Receipt) error {
	now := time.Now().UTC()
	rec.CreatedAt = now
	rec.UpdatedAt = now

	_, err := r.db.ExecContext(ctx, `
		INSERT INTO receipts (id, merchant, purchase_date, total_amount, sales_tax_amount, confidence, needs_review, raw_text, stored_key, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $10)
	`, rec.ID.String(), nullStr(rec.Merchant), nullDate(rec.PurchaseDate),
		nullDec(rec.TotalAmount), nullDec(rec.SalesTaxAmount),
		rec.Confidence, boolToInt(rec.NeedsReview), rec.RawText, rec.StoredKey, fmtTime(now))
	if err != nil {
		r.logger.Error("failed to insert receipt", "receipt_id", rec.ID, "error", err)
		return common.WrapError(err, "insert receipt")
	}
	return nil
}

func (r *receiptRepository) GetByID(ctx context.Context, id uuid.UUID) (*entity.Receipt, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT id, merchant, purchase_date, total_amount, sales_tax_amount, confidence, needs_review, raw_text, stored_key, created_at, updated_at
		FROM receipts WHERE id = $1
	`, id.String())
	if err != nil {
		return nil, common.WrapError(err, "query receipt")
	}
	defer func() { _ = rows.Close() }()

	if !rows.Next() {
		if err := rows.Err(); err != nil {
			return nil, common.WrapError(err, "query receipt")
		}
		return nil, common.ErrNotFound
	}
	return scanReceipt(rows)
}

func (r *receiptRepository) List(ctx context.Context, f ListFilter) ([]*entity.Receipt, error) {
	var (
		where []string
		args  []any
	)
	arg := func(v any) string {
		args = append(args, v)
		return fmt.Sprintf("$%d", len(args))
	}

	if f.NeedsReview != nil {
		where = append(where, "needs_review = "+arg(boolToInt(*f.NeedsReview)))
	}
	if f.From != nil {
		where = append(where, "purchase_date >= "+arg(f.From.Format(dateOnly)))
	}
	if f.To != nil {
		where = append(where, "purchase_date <= "+arg(f.To.Format(dateOnly)))
	}
	if f.Merchant != "" {
		where = append(where, "LOWER(merchant) LIKE "+arg("%"+strings.ToLower(f.Merchant)+"%"))
	}

	query := `SELECT id, merchant, purchase_date, total_amount, sales_tax_amount, confidence, needs_review, raw_text, stored_key, created_at, updated_at FROM receipts`
	if len(where) > 0 {
		query += " WHERE " + strings.Join(where, " AND ")
	}
	query += " ORDER BY created_at DESC"
	if f.Limit > 0 {
		query += " LIMIT " + arg(f.Limit)
	}

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, common.WrapError(err, "list receipts")
	}
	defer func() { _ = rows.Close() }()

	var out []*entity.Receipt
	for rows.Next() {
		rec, err := scanReceipt(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, rec)
	}
	return out, rows.Err()
}

func (r *receiptRepository) Update(ctx context.Context, rec *entity.Receipt) error {
	rec.UpdatedAt = time.Now().UTC()
	res, err := r.db.ExecContext(ctx, `
		UPDATE receipts SET merchant = $1, purchase_date = $2, total_amount = $3, sales_tax_amount = $4, needs_review = $5, updated_at = $6
		WHERE id = $7
	`, nullStr(rec.Merchant), nullDate(rec.PurchaseDate), nullDec(rec.TotalAmount), nullDec(rec.SalesTaxAmount),
		boolToInt(rec.NeedsReview), fmtTime(rec.UpdatedAt), rec.ID.String())
	if err != nil {
		return common.WrapError(err, "update receipt")
	}
	return requireRow(res)
}

func (r *receiptRepository) SetNeedsReview(ctx context.Context, id uuid.UUID, needsReview bool) error {
	res, err := r.db.ExecContext(ctx, `
		UPDATE receipts SET needs_review = $1, updated_at = $2 WHERE id = $3
	`, boolToInt(needsReview), fmtTime(time.Now().UTC()), id.String())
	if err != nil {
		return common.WrapError(err, "set needs_review")
	}
	return requireRow(res)
}

func requireRow(res sql.Result) error {
	n, err := res.RowsAffected()
	if err != nil {
		return common.WrapError(err, "rows affected")
	}
	if n == 0 {
		return common.ErrNotFound
	}
	return nil
}

func scanReceipt(rows *sql.Rows) (*entity.Receipt, error) {
	var (
		rec                        entity.Receipt
		rawID                      string
		merchant, date, total, tax sql.NullString
		needsReview                int
		createdAt, updatedAt       string
	)
	err := rows.Scan(&rawID, &merchant, &date, &total, &tax,
		&rec.Confidence, &needsReview, &rec.RawText, &rec.StoredKey, &createdAt, &updatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, common.ErrNotFound
	}
	if err != nil {
		return nil, common.WrapError(err, "scan receipt")
	}

	if rec.ID, err = uuid.Parse(rawID); err != nil {
		return nil, common.WrapError(err, "parse receipt id")
	}
	if merchant.Valid {
		rec.Merchant = &merchant.String
	}
	if date.Valid && date.String != "" {
		t, err := time.Parse(dateOnly, date.String)
		if err != nil {
			return nil, common.WrapError(err, "parse purchase date")
		}
		rec.PurchaseDate = &t
	}
	if rec.TotalAmount, err = decPtr(total); err != nil {
		return nil, err
	}
	if rec.SalesTaxAmount, err = decPtr(tax); err != nil {
		return nil, err
	}
	rec.NeedsReview = needsReview != 0
	rec.CreatedAt = parseTime(createdAt)
	rec.UpdatedAt = parseTime(updatedAt)
	return &rec, nil
}

func decPtr(v sql.NullString) (*decimal.Decimal, error) {
	if !v.Valid || v.String == "" {
		return nil, nil
	}
	d, err := decimal.NewFromString(v.String)
	if err != nil {
		return nil, common.WrapError(err, "parse amount")
	}
	return &d, nil
}

func nullStr(v *string) any {
	if v == nil {
		return nil
	}
	return *v
}

func nullDate(v *time.Time) any {
	if v == nil {
		return nil
	}
	return v.Format(dateOnly)
}

func nullDec(v *decimal.Decimal) any {
	if v == nil {
		return nil
	}
	return v.String()
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
