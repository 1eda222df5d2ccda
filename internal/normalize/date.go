package normalize

import (
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/trendlens/tiktok-crawler/internal/crawl"
)

// absoluteLayouts are tried in order against absolute post dates. The
// platform renders same-year dates without the year ("3-24").
var absoluteLayouts = []string{
	"2006-1-2",
	"2006/1/2",
	"1-2",
}

// relativePattern matches offsets like "3d ago", "2 weeks ago", "5h".
var relativePattern = regexp.MustCompile(`^(\d+)\s*([a-zA-Z]+)\.?(?:\s+ago)?$`)

// relativeUnits maps recognized unit tokens to their duration. Localized
// day words (and bare ambiguous "day" markers some locales render) are
// deliberately not in this set and degrade to a null parsed value; that
// gap is tracked, not papered over here.
var relativeUnits = map[string]time.Duration{
	"s":       time.Second,
	"sec":     time.Second,
	"second":  time.Second,
	"seconds": time.Second,
	"m":       time.Minute,
	"min":     time.Minute,
	"minute":  time.Minute,
	"minutes": time.Minute,
	"h":       time.Hour,
	"hr":      time.Hour,
	"hour":    time.Hour,
	"hours":   time.Hour,
	"d":       24 * time.Hour,
	"w":       7 * 24 * time.Hour,
	"week":    7 * 24 * time.Hour,
	"weeks":   7 * 24 * time.Hour,
}

// ParseTime converts a displayed post date, absolute or relative, into a
// time. Relative offsets resolve against capture, which also supplies the
// year for year-less absolute dates.
func ParseTime(raw string, capture time.Time) (time.Time, bool) {
	s := strings.TrimSpace(raw)
	if s == "" {
		return time.Time{}, false
	}

	if m := relativePattern.FindStringSubmatch(s); m != nil {
		n, err := strconv.Atoi(m[1])
		if err != nil {
			return time.Time{}, false
		}
		unit, ok := relativeUnits[strings.ToLower(m[2])]
		if !ok {
			return time.Time{}, false
		}
		return capture.Add(-time.Duration(n) * unit), true
	}

	for _, layout := range absoluteLayouts {
		t, err := time.ParseInLocation(layout, s, capture.Location())
		if err != nil {
			continue
		}
		if t.Year() == 0 {
			t = t.AddDate(capture.Year(), 0, 0)
		}
		return t, true
	}
	return time.Time{}, false
}

// Timestamp wraps ParseTime into the raw-plus-parsed pair stored on records.
func Timestamp(raw string, capture time.Time) crawl.Timestamp {
	ts := crawl.Timestamp{Text: raw}
	if v, ok := ParseTime(raw, capture); ok {
		ts.Value = &v
	}
	return ts
}
