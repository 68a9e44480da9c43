// Package export produces XLSX workbooks from stored receipts.
package export

import (
	"bytes"
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/xuri/excelize/v2"

	"github.com/ocreceipt/ocreceipt/internal/repository"
)

type Service struct {
	receipts repository.ReceiptRepository
	logger   *slog.Logger
}

func NewService(receipts repository.ReceiptRepository, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{receipts: receipts, logger: logger}
}

// ExportXLSX renders the receipts matching the filter as a workbook.
func (s *Service) ExportXLSX(ctx context.Context, filter repository.ListFilter) ([]byte, error) {
	start := time.Now()

	recs, err := s.receipts.List(ctx, filter)
	if err != nil {
		return nil, fmt.Errorf("query receipts: %w", err)
	}

	f := excelize.NewFile()
	const sheet = "Receipts"
	index, err := f.NewSheet(sheet)
	if err != nil {
		return nil, err
	}
	f.SetActiveSheet(index)
	if err := f.DeleteSheet("Sheet1"); err != nil {
		return nil, err
	}

	headers := []string{
		"Purchase Date",
		"Merchant",
		"Total",
		"Sales Tax",
		"Confidence",
		"Needs Review",
	}
	for i, h := range headers {
		cell, _ := excelize.CoordinatesToCellName(i+1, 1)
		_ = f.SetCellValue(sheet, cell, h)
	}

	row := 2
	for _, r := range recs {
		write := func(col int, v any) {
			cell, _ := excelize.CoordinatesToCellName(col, row)
			_ = f.SetCellValue(sheet, cell, v)
		}

		if r.PurchaseDate != nil {
			write(1, r.PurchaseDate.Format("2006-01-02"))
		}
		if r.Merchant != nil {
			write(2, *r.Merchant)
		}
		if r.TotalAmount != nil {
			write(3, r.TotalAmount.String())
		}
		if r.SalesTaxAmount != nil {
			write(4, r.SalesTaxAmount.String())
		}
		write(5, r.Confidence)
		write(6, r.NeedsReview)
		row++
	}

	var buf bytes.Buffer
	if err := f.Write(&buf); err != nil {
		return nil, fmt.Errorf("write workbook: %w", err)
	}

	s.logger.Info("exported receipts", "count", len(recs), "duration_ms", time.Since(start).Milliseconds())
	return buf.Bytes(), nil
}
