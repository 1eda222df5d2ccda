// Package normalize converts displayed text (abbreviated counts, post
// dates) into values. Parsing never fails a session: unparseable text
// yields a null value and the raw text travels with the record untouched.
package normalize

import (
	"strconv"
	"strings"

	"github.com/trendlens/tiktok-crawler/internal/crawl"
)

// suffixFactors maps the platform's count abbreviations to powers of ten.
var suffixFactors = map[byte]float64{
	'K': 1e3,
	'M': 1e6,
	'B': 1e9,
}

// ParseCount converts a displayed count such as "1.5M" or "12,345" to an
// integer. The second return is false when the text has no recognizable
// numeric content.
func ParseCount(raw string) (int64, bool) {
	s := strings.TrimSpace(raw)
	if s == "" {
		return 0, false
	}

	factor := 1.0
	if last := s[len(s)-1]; last >= 'A' {
		if f, ok := suffixFactors[upperByte(last)]; ok {
			factor = f
			s = strings.TrimSpace(s[:len(s)-1])
		}
	}
	s = strings.ReplaceAll(s, ",", "")
	if s == "" {
		return 0, false
	}

	if factor == 1 {
		n, err := strconv.ParseInt(s, 10, 64)
		if err != nil {
			return 0, false
		}
		return n, true
	}
	f, err := strconv.ParseFloat(s, 64)
	if err != nil || f < 0 {
		return 0, false
	}
	return int64(f * factor), true
}

// Count wraps ParseCount into the raw-plus-parsed pair stored on records.
func Count(raw string) crawl.Count {
	c := crawl.Count{Text: raw}
	if v, ok := ParseCount(raw); ok {
		c.Value = &v
	}
	return c
}

func upperByte(b byte) byte {
	if b >= 'a' && b <= 'z' {
		return b - ('a' - 'A')
	}
	return b
}
