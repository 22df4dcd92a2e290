package bot

import (
	"errors"
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"

	"remindly/internal/recurrence"
)

// ErrBadOnceTime is returned for one-off time inputs that match no known
// form. The reply text lives in texts.go.
var ErrBadOnceTime = errors.New("unrecognized one-off time")

var (
	rePlusN      = regexp.MustCompile(`^\+?\s*(\d{1,3})$`)
	reInMinutes  = regexp.MustCompile(`^через\s+(\d{1,3})\s*мин(?:уту|уты|ут)?\.?$`)
	reInHours    = regexp.MustCompile(`^через\s+(\d{1,2})\s*час(?:а|ов)?$`)
	reTomorrow24 = regexp.MustCompile(`^завтра\s+(\d{1,2}):(\d{2})$`)
	reTomorrow12 = regexp.MustCompile(`^завтра\s+(\d{1,2})(?::(\d{2}))?\s*(am|pm)$`)
	reClock12    = regexp.MustCompile(`^(\d{1,2})(?::(\d{2}))?\s*(am|pm)$`)
	reClock24    = regexp.MustCompile(`^(\d{1,2}):(\d{2})$`)
)

// ParseOnceWhen interprets a user-entered one-off time relative to now
// (which must already be in the chat's timezone). Returns the resolved
// moment and a human confirmation like "через 15 минут" or "завтра в 09:00".
//
// Accepted forms:
//
//	+15 / 15                  minutes from now
//	через N минут             minutes from now
//	через N часов             hours from now
//	завтра 09:00 / завтра 7 pm
//	14:30 / 7:10 pm           today, or tomorrow if already passed
func ParseOnceWhen(raw string, now time.Time) (time.Time, string, error) {
	src := strings.ToLower(strings.TrimSpace(raw))
	src = strings.Join(strings.Fields(src), " ")

	if m := rePlusN.FindStringSubmatch(src); m != nil {
		n, _ := strconv.Atoi(m[1])
		return inMinutes(now, n)
	}
	if m := reInMinutes.FindStringSubmatch(src); m != nil {
		n, _ := strconv.Atoi(m[1])
		return inMinutes(now, n)
	}
	if m := reInHours.FindStringSubmatch(src); m != nil {
		n, _ := strconv.Atoi(m[1])
		if n < 1 {
			return time.Time{}, "", ErrBadOnceTime
		}
		when := now.Add(time.Duration(n) * time.Hour)
		return when, fmt.Sprintf("через %d %s", n, pluralizeHourAcc(n)), nil
	}

	if m := reTomorrow24.FindStringSubmatch(src); m != nil {
		hh, _ := strconv.Atoi(m[1])
		mm, _ := strconv.Atoi(m[2])
		return tomorrowAt(now, hh, mm)
	}
	if m := reTomorrow12.FindStringSubmatch(src); m != nil {
		hh, mm, ok := clock12(m)
		if !ok {
			return time.Time{}, "", ErrBadOnceTime
		}
		return tomorrowAt(now, hh, mm)
	}

	if m := reClock12.FindStringSubmatch(src); m != nil {
		hh, mm, ok := clock12(m)
		if !ok {
			return time.Time{}, "", ErrBadOnceTime
		}
		return todayOrTomorrow(now, hh, mm)
	}
	if m := reClock24.FindStringSubmatch(src); m != nil {
		hh, _ := strconv.Atoi(m[1])
		mm, _ := strconv.Atoi(m[2])
		return todayOrTomorrow(now, hh, mm)
	}

	return time.Time{}, "", ErrBadOnceTime
}

func inMinutes(now time.Time, n int) (time.Time, string, error) {
	if n < 1 {
		return time.Time{}, "", ErrBadOnceTime
	}
	when := now.Add(time.Duration(n) * time.Minute)
	return when, fmt.Sprintf("через %d %s", n, pluralizeMinuteAcc(n)), nil
}

func pluralizeHourAcc(n int) string {
	if n100 := n % 100; n100 >= 11 && n100 <= 14 {
		return "часов"
	}
	switch n % 10 {
	case 1:
		return "час"
	case 2, 3, 4:
		return "часа"
	default:
		return "часов"
	}
}

func clock12(m []string) (hh, mm int, ok bool) {
	hh, _ = strconv.Atoi(m[1])
	if m[2] != "" {
		mm, _ = strconv.Atoi(m[2])
	}
	if hh < 1 || hh > 12 || mm > 59 {
		return 0, 0, false
	}
	return recurrence.Apply12h(hh, m[3]), mm, true
}

func tomorrowAt(now time.Time, hh, mm int) (time.Time, string, error) {
	if hh > 23 || mm > 59 {
		return time.Time{}, "", ErrBadOnceTime
	}
	d := now.AddDate(0, 0, 1)
	when := time.Date(d.Year(), d.Month(), d.Day(), hh, mm, 0, 0, now.Location())
	return when, when.Format("завтра в 15:04"), nil
}

func todayOrTomorrow(now time.Time, hh, mm int) (time.Time, string, error) {
	if hh > 23 || mm > 59 {
		return time.Time{}, "", ErrBadOnceTime
	}
	when := time.Date(now.Year(), now.Month(), now.Day(), hh, mm, 0, 0, now.Location())
	if !when.After(now) {
		when = when.AddDate(0, 0, 1)
		return when, when.Format("завтра в 15:04"), nil
	}
	return when, when.Format("сегодня в 15:04"), nil
}
