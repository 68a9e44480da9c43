package extract

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func mustDecimal(t *testing.T, s string) decimal.Decimal {
	t.Helper()
	d, err := decimal.NewFromString(s)
	require.NoError(t, err)
	return d
}

func TestExtractTotalSimple(t *testing.T) {
	fields := New(nil).Extract("TOTAL $12.34")
	require.NotNil(t, fields.Total)
	assert.True(t, fields.Total.Equal(mustDecimal(t, "12.34")))
}

func TestExtractSkipsSubtotalLine(t *testing.T) {
	text := "Subtotal $10.00\nTotal $12.34\nHST $2.34"
	fields := New(nil).Extract(text)

	require.NotNil(t, fields.Total)
	assert.True(t, fields.Total.Equal(mustDecimal(t, "12.34")))

	require.NotNil(t, fields.SalesTax)
	assert.True(t, fields.SalesTax.Equal(mustDecimal(t, "2.34")))
}

func TestExtractIgnoresTaxRateWithoutAmount(t *testing.T) {
	fields := New(nil).Extract("Tax Rate: 8.00 %\nTotal $20.00")
	assert.Nil(t, fields.SalesTax)
	require.NotNil(t, fields.Total)
	assert.True(t, fields.Total.Equal(mustDecimal(t, "20.00")))
}

func TestExtractTaxLineRightmostAmount(t *testing.T) {
	fields := New(nil).Extract("Total $108.00\nTax 8.00 % $8.00")
	require.NotNil(t, fields.SalesTax)
	assert.True(t, fields.SalesTax.Equal(mustDecimal(t, "8.00")))
}

func TestExtractDropsImplausibleTax(t *testing.T) {
	// Tax larger than a quarter of the total is a misread line item.
	fields := New(nil).Extract("Total $10.00\nTax $9.99")
	assert.Nil(t, fields.SalesTax)
}

func TestExtractInfersTaxFromSubtotal(t *testing.T) {
	fields := New(nil).Extract("Subtotal $10.00\nTotal $11.30")
	require.NotNil(t, fields.SalesTax)
	assert.True(t, fields.SalesTax.Equal(mustDecimal(t, "1.30")))
}

func TestExtractNumericDateMonthFirst(t *testing.T) {
	fields := New(nil).Extract("03/14/2024 Purchase")
	require.NotNil(t, fields.PurchaseDate)
	assert.Equal(t, time.Date(2024, time.March, 14, 0, 0, 0, 0, time.UTC), *fields.PurchaseDate)
}

func TestExtractDateSwapsWhenMonthImpossible(t *testing.T) {
	fields := New(nil).Extract("Date: 25/03/2024")
	require.NotNil(t, fields.PurchaseDate)
	assert.Equal(t, time.Date(2024, time.March, 25, 0, 0, 0, 0, time.UTC), *fields.PurchaseDate)
}

func TestExtractPrefersKeywordedDateLine(t *testing.T) {
	text := "Printed 01/02/2024\nPurchase date: 2024-03-14"
	fields := New(nil).Extract(text)
	require.NotNil(t, fields.PurchaseDate)
	assert.Equal(t, time.Date(2024, time.March, 14, 0, 0, 0, 0, time.UTC), *fields.PurchaseDate)
}

func TestExtractRejectsOverflowDate(t *testing.T) {
	fields := New(nil).Extract("Date: 2024-02-31")
	assert.Nil(t, fields.PurchaseDate)
}

func TestExtractMerchantSkipsFurniture(t *testing.T) {
	text := "RECEIPT\nAcme Hardware\n123 Main St\nTotal $5.00"
	fields := New(nil).Extract(text)
	require.NotNil(t, fields.Merchant)
	assert.Equal(t, "Acme Hardware", *fields.Merchant)
}

func TestExtractMerchantStripsTrailingStoreNumber(t *testing.T) {
	fields := New(nil).Extract("Taco Bell 027825\nTotal $8.50")
	require.NotNil(t, fields.Merchant)
	assert.Equal(t, "Taco Bell", *fields.Merchant)
}

func TestExtractMerchantPrefersKnownSet(t *testing.T) {
	ex := New([]string{"Home Depot"})
	fields := ex.Extract("THE HOME DEPOT #4512\nTotal $42.00")
	require.NotNil(t, fields.Merchant)
	assert.Equal(t, "Home Depot", *fields.Merchant)
}

func TestExtractDigitFixesInAmounts(t *testing.T) {
	// OCR letter confusions only apply while parsing numbers.
	fields := New(nil).Extract("Total $1O.5O")
	require.NotNil(t, fields.Total)
	assert.True(t, fields.Total.Equal(mustDecimal(t, "10.50")))
}

func TestExtractDeterministic(t *testing.T) {
	text := "Acme Hardware\nDate: 03/14/2024\nSubtotal $10.00\nHST $1.30\nTotal $11.30"
	ex := New([]string{"Acme Hardware"})

	first := ex.Extract(text)
	for i := 0; i < 5; i++ {
		again := ex.Extract(text)
		assert.Equal(t, first, again)
	}
	assert.Equal(t, 4, first.ResolvedCount())
}

func TestExtractEmptyText(t *testing.T) {
	fields := New(nil).Extract("")
	assert.Zero(t, fields.ResolvedCount())
}

func TestFindLineWithValue(t *testing.T) {
	lines := Lines("Acme Hardware\nSubtotal $10.00\nTotal: $12.34")

	idx, ok := FindLineWithValue(lines, "12.34")
	require.True(t, ok)
	assert.Equal(t, 2, idx)

	_, ok = FindLineWithValue(lines, "99.99")
	assert.False(t, ok)

	_, ok = FindLineWithValue(lines, "")
	assert.False(t, ok)
}
