package recurrence

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
)

var (
	reEveryMinute = regexp.MustCompile(`^каждую\s+минуту$`)
	reEveryN      = regexp.MustCompile(`^кажд(?:ую|ые)\s+(\d{1,3})\s+мин(?:уту|уты|ут)?\.?$`)
	reDaily24     = regexp.MustCompile(`^(?:ежедневно\s+)?(\d{1,2}):(\d{2})$`)
	reDaily12     = regexp.MustCompile(`^(?:ежедневно\s+)?(\d{1,2})(?::(\d{2}))?\s*(am|pm)$`)
)

// Parse normalizes a user-entered repeat schedule into a cron spec.
//
// Accepted forms:
//
//	"cron: */15 * * * *"   raw cron pass-through (validated)
//	"каждую минуту"        -> */1 * * * *
//	"каждые N минут"       -> */N * * * *
//	"ежедневно 09:30"      -> 30 9 * * *
//	"09:30"                -> 30 9 * * *   (daily)
//	"7:10 pm" / "7 pm"     -> 12-hour forms, daily
func Parse(raw string) (Spec, error) {
	src := strings.ToLower(strings.TrimSpace(raw))
	src = strings.Join(strings.Fields(src), " ")

	if rest, ok := strings.CutPrefix(src, "cron:"); ok {
		return Cron(strings.TrimSpace(rest))
	}

	if reEveryMinute.MatchString(src) {
		return Cron("*/1 * * * *")
	}

	if m := reEveryN.FindStringSubmatch(src); m != nil {
		n, _ := strconv.Atoi(m[1])
		if n < 1 {
			return Spec{}, fmt.Errorf("repeat interval must be at least one minute")
		}
		return Cron(fmt.Sprintf("*/%d * * * *", n))
	}

	if m := reDaily24.FindStringSubmatch(src); m != nil {
		hh, _ := strconv.Atoi(m[1])
		mm, _ := strconv.Atoi(m[2])
		if hh > 23 || mm > 59 {
			return Spec{}, fmt.Errorf("invalid time %q", raw)
		}
		return Cron(fmt.Sprintf("%d %d * * *", mm, hh))
	}

	if m := reDaily12.FindStringSubmatch(src); m != nil {
		hh, _ := strconv.Atoi(m[1])
		mm := 0
		if m[2] != "" {
			mm, _ = strconv.Atoi(m[2])
		}
		if hh < 1 || hh > 12 || mm > 59 {
			return Spec{}, fmt.Errorf("invalid time %q", raw)
		}
		return Cron(fmt.Sprintf("%d %d * * *", mm, Apply12h(hh, m[3])))
	}

	return Spec{}, fmt.Errorf("unrecognized repeat schedule %q", raw)
}

// Apply12h converts a 12-hour clock reading to a 24-hour one.
func Apply12h(hh int, ampm string) int {
	if hh == 12 {
		hh = 0
	}
	if strings.EqualFold(ampm, "pm") {
		hh += 12
	}
	return hh
}
