package extract

import (
	"regexp"
	"strings"
	"unicode"
)

// Lines near the top that are receipt furniture rather than a business name.
var merchantBlacklist = []string{
	"invoice", "receipt", "order", "store", "thank", "date", "time",
	"cashier", "join", "earn", "points", "rewards", "welcome",
}

// Trailing store numbers like "Taco Bell 027825".
var reTrailingStoreNo = regexp.MustCompile(`\s+[0-9]{4,8}$`)

const merchantScanWindow = 12

type knownMerchant struct {
	key     string // normalizeForMatch form
	display string
}

// merchantCandidate picks a merchant name from the top of the receipt.
// Known merchants win over the positional heuristic; both passes are
// deterministic, first match taking it.
func (e *Extractor) merchantCandidate(lines []string) *string {
	top := lines
	if len(top) > merchantScanWindow {
		top = top[:merchantScanWindow]
	}

	for _, line := range top {
		key := normalizeForMatch(line)
		if key == "" {
			continue
		}
		for _, known := range e.known {
			if strings.Contains(key, known.key) {
				name := known.display
				return &name
			}
		}
	}

	for _, line := range top {
		low := strings.ToLower(line)
		if containsAny(low, merchantBlacklist) {
			continue
		}
		if countAlpha(line) < 3 {
			continue
		}
		digits := countDigits(line)
		if digits > 8 {
			continue
		}

		if digits > 4 {
			candidate := strings.TrimSpace(reTrailingStoreNo.ReplaceAllString(line, ""))
			if candidate != "" && countAlpha(candidate) >= 3 {
				name := truncate(candidate, 200)
				return &name
			}
			continue
		}

		name := truncate(line, 200)
		return &name
	}

	// Fall back to the first line that carries any letters at all.
	for _, line := range top {
		if countAlpha(line) > 0 {
			name := truncate(line, 200)
			return &name
		}
	}
	return nil
}

func containsAny(s string, tokens []string) bool {
	for _, t := range tokens {
		if strings.Contains(s, t) {
			return true
		}
	}
	return false
}

func countAlpha(s string) int {
	n := 0
	for _, r := range s {
		if unicode.IsLetter(r) {
			n++
		}
	}
	return n
}

func countDigits(s string) int {
	n := 0
	for _, r := range s {
		if unicode.IsDigit(r) {
			n++
		}
	}
	return n
}

func truncate(s string, max int) string {
	if len(s) <= max {
		return s
	}
	return s[:max]
}
