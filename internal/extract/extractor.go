// Package extract turns recognized receipt text into structured fields.
// Everything here is pure: identical text and an identical known-merchant
// set always yield identical candidates.
package extract

import (
	"sort"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// Fields holds the candidate values pulled out of one recognition pass.
// A nil field is not an error; it just costs confidence.
type Fields struct {
	PurchaseDate *time.Time
	Merchant     *string
	Total        *decimal.Decimal
	SalesTax     *decimal.Decimal
}

// ResolvedCount reports how many of the four fields resolved.
func (f Fields) ResolvedCount() int {
	n := 0
	if f.PurchaseDate != nil {
		n++
	}
	if f.Merchant != nil {
		n++
	}
	if f.Total != nil {
		n++
	}
	if f.SalesTax != nil {
		n++
	}
	return n
}

// amountRule pairs a line predicate with the token extractor to run on a
// matching line. Rules are evaluated in fixed order, first hit wins, which
// keeps each field's policy testable on its own.
type amountRule struct {
	name    string
	match   func(line string) bool
	extract func(line string) (decimal.Decimal, bool)
}

var totalRules = []amountRule{
	{name: "total-line", match: isTotalLine, extract: firstAmount},
}

var taxRules = []amountRule{
	{name: "tax-line", match: isTaxLine, extract: rightmostAmount},
}

func isTotalLine(line string) bool {
	low := strings.ToLower(line)
	if strings.Contains(low, "subtotal") || strings.Contains(low, "sub total") || strings.Contains(low, "tax") {
		return false
	}
	return strings.Contains(low, "total") ||
		strings.Contains(low, "amount due") ||
		strings.Contains(low, "balance due")
}

func isTaxLine(line string) bool {
	low := strings.ToLower(line)
	return strings.Contains(low, "tax") ||
		strings.Contains(low, "hst") ||
		strings.Contains(low, "gst") ||
		strings.Contains(low, "vat")
}

func isSubtotalLine(line string) bool {
	low := strings.ToLower(line)
	return strings.Contains(low, "subtotal") || strings.Contains(low, "sub total")
}

// Sales tax above this fraction of the total is a misread (usually a rate or
// a line item), not a tax amount.
var maxTaxFraction = decimal.NewFromFloat(0.25)

// Extractor matches fields over recognized text. The known-merchant set is
// consumed, not owned, here; it only biases the merchant heuristic.
type Extractor struct {
	known []knownMerchant
}

// New builds an extractor. The merchant list may be nil.
func New(knownMerchants []string) *Extractor {
	known := make([]knownMerchant, 0, len(knownMerchants))
	seen := map[string]struct{}{}
	for _, name := range knownMerchants {
		key := normalizeForMatch(name)
		if key == "" {
			continue
		}
		if _, dup := seen[key]; dup {
			continue
		}
		seen[key] = struct{}{}
		known = append(known, knownMerchant{key: key, display: strings.TrimSpace(name)})
	}
	// Longest keys first so "homedepotpro" beats "homedepot"; ties by key to
	// stay order-independent of the input slice.
	sort.Slice(known, func(i, j int) bool {
		if len(known[i].key) != len(known[j].key) {
			return len(known[i].key) > len(known[j].key)
		}
		return known[i].key < known[j].key
	})
	return &Extractor{known: known}
}

// Extract runs every field matcher over the text's lines.
func (e *Extractor) Extract(text string) Fields {
	lines := Lines(text)

	fields := Fields{
		Total:    matchAmount(lines, totalRules),
		SalesTax: matchAmount(lines, taxRules),
	}

	// Guardrail: a tax amount out of proportion to the total is a misread.
	if fields.SalesTax != nil && fields.Total != nil {
		if fields.SalesTax.IsNegative() || fields.SalesTax.GreaterThan(fields.Total.Mul(maxTaxFraction)) {
			fields.SalesTax = nil
		}
	}

	// Missing tax can still be inferred from total - subtotal when the
	// difference is plausible.
	if fields.SalesTax == nil && fields.Total != nil {
		if subtotal := matchAmount(lines, []amountRule{{name: "subtotal-line", match: isSubtotalLine, extract: rightmostAmount}}); subtotal != nil {
			delta := fields.Total.Sub(*subtotal)
			if !delta.IsNegative() && !delta.GreaterThan(fields.Total.Mul(maxTaxFraction)) && delta.IsPositive() {
				fields.SalesTax = &delta
			}
		}
	}

	fields.PurchaseDate = matchDate(lines)
	fields.Merchant = e.merchantCandidate(lines)

	return fields
}

// matchAmount scans top-to-bottom with the given rules; the first line that
// both matches a rule and yields a token wins.
func matchAmount(lines []string, rules []amountRule) *decimal.Decimal {
	for _, rule := range rules {
		for _, line := range lines {
			if !rule.match(line) {
				continue
			}
			if v, ok := rule.extract(line); ok {
				return &v
			}
		}
	}
	return nil
}

// matchDate prefers lines that announce themselves as dates, then falls back
// to any line with a parseable date.
func matchDate(lines []string) *time.Time {
	for _, keyworded := range []bool{true, false} {
		for _, line := range lines {
			if hasDateKeyword(line) != keyworded {
				continue
			}
			if t, ok := parseDateLine(line); ok {
				return &t
			}
		}
	}
	return nil
}
