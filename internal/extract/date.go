package extract

import (
	"regexp"
	"strconv"
	"strings"
	"time"
)

var (
	reISODate     = regexp.MustCompile(`\b(\d{4})-(\d{1,2})-(\d{1,2})\b`)
	reNumericDate = regexp.MustCompile(`\b(\d{1,2})[/-](\d{1,2})[/-](\d{2,4})\b`)
	reMonthDate   = regexp.MustCompile(`(?i)\b(jan|feb|mar|apr|may|jun|jul|aug|sep|oct|nov|dec)[a-z]*\s+(\d{1,2}),?\s+(\d{2,4})\b`)

	monthIndex = map[string]time.Month{
		"jan": time.January, "feb": time.February, "mar": time.March,
		"apr": time.April, "may": time.May, "jun": time.June,
		"jul": time.July, "aug": time.August, "sep": time.September,
		"oct": time.October, "nov": time.November, "dec": time.December,
	}

	dateKeywords = []string{"date", "purchase", "transaction"}
)

// parseDateLine finds the first parseable date on a line. ISO wins over
// numeric month-first; month-name forms are a last resort.
func parseDateLine(line string) (time.Time, bool) {
	candidate := normalizeDigits(line)

	if m := reISODate.FindStringSubmatch(candidate); m != nil {
		if t, ok := buildDate(atoi(m[1]), atoi(m[2]), atoi(m[3])); ok {
			return t, true
		}
	}

	if m := reNumericDate.FindStringSubmatch(candidate); m != nil {
		month, day, year := atoi(m[1]), atoi(m[2]), atoi(m[3])
		// Month-first by default; swap when the first field cannot be a month.
		if month > 12 && day <= 12 {
			month, day = day, month
		}
		if t, ok := buildDate(expandYear(year), month, day); ok {
			return t, true
		}
	}

	if m := reMonthDate.FindStringSubmatch(candidate); m != nil {
		month := monthIndex[strings.ToLower(m[1])]
		if t, ok := buildDate(expandYear(atoi(m[3])), int(month), atoi(m[2])); ok {
			return t, true
		}
	}

	return time.Time{}, false
}

func hasDateKeyword(line string) bool {
	low := strings.ToLower(line)
	for _, k := range dateKeywords {
		if strings.Contains(low, k) {
			return true
		}
	}
	return false
}

func buildDate(year, month, day int) (time.Time, bool) {
	if year < 2000 || year > 2100 || month < 1 || month > 12 || day < 1 || day > 31 {
		return time.Time{}, false
	}
	t := time.Date(year, time.Month(month), day, 0, 0, 0, 0, time.UTC)
	// Reject normalized overflow like Feb 31.
	if t.Day() != day || t.Month() != time.Month(month) {
		return time.Time{}, false
	}
	return t, true
}

func expandYear(y int) int {
	if y < 100 {
		return 2000 + y
	}
	return y
}

func atoi(s string) int {
	n, _ := strconv.Atoi(s)
	return n
}
