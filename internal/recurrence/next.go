package recurrence

import (
	"time"

	"github.com/robfig/cron/v3"
)

// cronParser accepts standard five-field expressions plus @-descriptors
// (@daily, @every 10m).
var cronParser = cron.NewParser(cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor)

// Next returns the earliest occurrence strictly after the given instant,
// evaluated in loc. The second result is false when the spec is exhausted
// (a once-spec already in the past) or invalid.
//
// Two calls with equal inputs return equal results; callers may recompute
// freely after restarts.
func Next(s Spec, after time.Time, loc *time.Location) (time.Time, bool) {
	if loc == nil {
		loc = time.UTC
	}
	switch s.Kind {
	case KindOnce:
		if s.At.After(after) {
			return s.At.UTC(), true
		}
		return time.Time{}, false
	case KindCron:
		return nextCron(s.Expr, after, loc)
	case KindPreset:
		exprs, err := resolvePreset(s.Preset)
		if err != nil {
			return time.Time{}, false
		}
		var best time.Time
		for _, expr := range exprs {
			t, ok := nextCron(expr, after, loc)
			if !ok {
				continue
			}
			if best.IsZero() || t.Before(best) {
				best = t
			}
		}
		return best, !best.IsZero()
	default:
		return time.Time{}, false
	}
}

func nextCron(expr string, after time.Time, loc *time.Location) (time.Time, bool) {
	sched, err := cronParser.Parse(expr)
	if err != nil {
		return time.Time{}, false
	}
	// Schedule.Next is strictly-after and returns the zero time when no
	// activation exists within its search horizon.
	t := sched.Next(after.In(loc))
	if t.IsZero() {
		return time.Time{}, false
	}
	return t.UTC(), true
}
