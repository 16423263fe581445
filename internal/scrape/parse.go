package scrape

import (
	"regexp"
	"strings"

	"schedbot/internal/schedule"
)

const (
	maxSubject = 150
	maxRoom    = 100
)

var (
	timeRangeRe = regexp.MustCompile(`\d{1,2}:\d{2}\s*[-–]\s*\d{1,2}:\d{2}`)
	dashRe      = regexp.MustCompile(`\s*[–-]\s*`)
	spaceRe     = regexp.MustCompile(`\s+`)
	showDateRe  = regexp.MustCompile(`show_date=\d{4}-\d{2}-\d{2}`)
	anyDateRe   = regexp.MustCompile(`show_date=[^&#]*`)
)

// ParseTitle reads an event title of the form
//
//	09:00 – 10:30
//	Subject
//	Room line...
//
// and reports false for anything that does not start with a time range.
func ParseTitle(title string) (schedule.Entry, bool) {
	var lines []string
	for _, l := range strings.Split(title, "\n") {
		if l = strings.TrimSpace(l); l != "" {
			lines = append(lines, l)
		}
	}
	if len(lines) < 2 || !timeRangeRe.MatchString(lines[0]) {
		return schedule.Entry{}, false
	}
	t := dashRe.ReplaceAllString(lines[0], "-")
	t = spaceRe.ReplaceAllString(t, "")
	return schedule.Entry{
		Time:    t,
		Subject: truncateRunes(lines[1], maxSubject),
		Room:    truncateRunes(strings.Join(lines[2:], ", "), maxRoom),
	}, true
}

// ParseTitles keeps the entries that parse, in page order.
func ParseTitles(titles []string) []schedule.Entry {
	out := make([]schedule.Entry, 0, len(titles))
	for _, t := range titles {
		if e, ok := ParseTitle(t); ok {
			out = append(out, e)
		}
	}
	return out
}

// RewriteShowDate points a calendar URL at date, replacing an existing
// show_date parameter or appending one.
func RewriteShowDate(src, date string) string {
	repl := "show_date=" + date
	if loc := showDateRe.FindStringIndex(src); loc != nil {
		return src[:loc[0]] + repl + src[loc[1]:]
	}
	if loc := anyDateRe.FindStringIndex(src); loc != nil {
		return src[:loc[0]] + repl + src[loc[1]:]
	}
	sep := "&"
	if !strings.Contains(src, "?") {
		sep = "?"
	}
	return src + sep + repl
}

func truncateRunes(s string, n int) string {
	if len(s) <= n {
		return s
	}
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n])
}
