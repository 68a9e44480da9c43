package repository

import (
	"context"
	"database/sql"
	"log/slog"
	"strings"
	"time"
	"unicode"

	"github.com/ocreceipt/ocreceipt/internal/common"
)

// MerchantRepository records every merchant name confirmed by a user or a
// completed extraction. The accumulated set feeds back into matching, so
// recognition of repeat merchants improves over time.
type MerchantRepository interface {
	Upsert(ctx context.Context, display string) error
	ListNames(ctx context.Context) ([]string, error)
}

type merchantRepository struct {
	db     *sql.DB
	logger *slog.Logger
}

func NewMerchantRepository(db *sql.DB, logger *slog.Logger) MerchantRepository {
	return &merchantRepository{db: db, logger: logger}
}

func (r *merchantRepository) Upsert(ctx context.Context, display string) error {
	display = strings.TrimSpace(display)
	key := merchantKey(display)
	if key == "" {
		return common.ErrInvalidInput
	}

	_, err := r.db.ExecContext(ctx, `
		INSERT INTO merchants (name_key, display, seen_count, updated_at)
		VALUES ($1, $2, 1, $3)
		ON CONFLICT (name_key) DO UPDATE SET
			seen_count = merchants.seen_count + 1,
			display    = excluded.display,
			updated_at = excluded.updated_at
	`, key, display, fmtTime(time.Now().UTC()))
	if err != nil {
		r.logger.Error("failed to upsert merchant", "merchant", display, "error", err)
		return common.WrapError(err, "upsert merchant")
	}
	return nil
}

func (r *merchantRepository) ListNames(ctx context.Context) ([]string, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT display FROM merchants ORDER BY seen_count DESC, name_key ASC
	`)
	if err != nil {
		return nil, common.WrapError(err, "list merchants")
	}
	defer func() { _ = rows.Close() }()

	var names []string
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, common.WrapError(err, "scan merchant name")
		}
		names = append(names, name)
	}
	return names, rows.Err()
}

// merchantKey folds a display name to lowercase alphanumerics so spelling
// and punctuation variants land on the same row.
func merchantKey(s string) string {
	var b strings.Builder
	for _, r := range strings.ToLower(s) {
		if unicode.IsLetter(r) || unicode.IsDigit(r) {
			b.WriteRune(r)
		}
	}
	return b.String()
}
