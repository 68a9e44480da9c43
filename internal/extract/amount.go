package extract

import (
	"regexp"
	"strings"

	"github.com/shopspring/decimal"
)

var (
	// A monetary-looking token: optional currency sign, digits with optional
	// thousands separators, mandatory cents. An optional trailing % marks the
	// token as a rate, not an amount.
	reAmountToken = regexp.MustCompile(`(\$?\s*[0-9][0-9,]*\.[0-9]{2})(\s*%)?`)

	// "12,34" with nothing after: comma used as the decimal separator.
	reCommaCents = regexp.MustCompile(`([0-9]),([0-9]{2})\b`)
)

type amountCandidate struct {
	value    decimal.Decimal
	percent  bool
	currency bool
	start    int
}

func amountCandidates(line string) []amountCandidate {
	normalized := normalizeDigits(line)
	normalized = reCommaCents.ReplaceAllString(normalized, "$1.$2")

	var out []amountCandidate
	for _, m := range reAmountToken.FindAllStringSubmatchIndex(normalized, -1) {
		token := normalized[m[2]:m[3]]
		percent := m[4] >= 0

		numeric := strings.NewReplacer("$", "", " ", "", ",", "").Replace(token)
		value, err := decimal.NewFromString(numeric)
		if err != nil || value.IsNegative() {
			continue
		}
		out = append(out, amountCandidate{
			value:    value,
			percent:  percent,
			currency: strings.Contains(token, "$"),
			start:    m[0],
		})
	}
	return out
}

// firstAmount returns the first non-rate monetary token on the line.
func firstAmount(line string) (decimal.Decimal, bool) {
	for _, c := range amountCandidates(line) {
		if c.percent {
			continue
		}
		return c.value, true
	}
	return decimal.Decimal{}, false
}

// rightmostAmount returns the rightmost non-rate token, preferring
// currency-marked ones. Tax lines read right-to-left: the amount column sits
// after the label and any rate disclosure.
func rightmostAmount(line string) (decimal.Decimal, bool) {
	candidates := amountCandidates(line)

	filtered := candidates[:0:0]
	for _, c := range candidates {
		if !c.percent {
			filtered = append(filtered, c)
		}
	}
	if len(filtered) == 0 {
		return decimal.Decimal{}, false
	}

	withCurrency := filtered[:0:0]
	for _, c := range filtered {
		if c.currency {
			withCurrency = append(withCurrency, c)
		}
	}
	if len(withCurrency) > 0 {
		filtered = withCurrency
	}

	best := filtered[0]
	for _, c := range filtered[1:] {
		if c.start > best.start {
			best = c
		}
	}
	return best.value, true
}
