// Package recurrence computes occurrence times for reminders.
//
// The engine is pure: given a schedule spec, a reference instant and a
// timezone it returns the next occurrence without touching storage or the
// wall clock. Cron expressions are evaluated in the chat's local timezone,
// so "every day at 09:00" stays at 09:00 local across DST transitions
// (spring-forward gaps are skipped, fall-back times fire once).
package recurrence

import (
	"fmt"
	"time"
)

type Kind string

const (
	// KindOnce fires exactly once at an absolute instant.
	KindOnce Kind = "once"
	// KindCron repeats per a five-field cron expression.
	KindCron Kind = "cron"
	// KindPreset is a named schedule resolved to cron expressions.
	KindPreset Kind = "preset"
)

// Spec is a tagged schedule variant. Exactly one payload field is
// meaningful for a given Kind.
type Spec struct {
	Kind   Kind
	At     time.Time // KindOnce: absolute instant (UTC)
	Expr   string    // KindCron: five-field cron expression
	Preset string    // KindPreset: preset name, e.g. "tournament"
}

// Once returns a spec firing exactly once at the given instant.
func Once(at time.Time) Spec {
	return Spec{Kind: KindOnce, At: at.UTC()}
}

// Cron returns a validated cron spec.
func Cron(expr string) (Spec, error) {
	if _, err := cronParser.Parse(expr); err != nil {
		return Spec{}, fmt.Errorf("invalid cron expression %q: %w", expr, err)
	}
	return Spec{Kind: KindCron, Expr: expr}, nil
}

// Validate reports whether the spec is well-formed. It is the same check
// creation paths run, exposed for stored specs read back from disk.
func (s Spec) Validate() error {
	switch s.Kind {
	case KindOnce:
		if s.At.IsZero() {
			return fmt.Errorf("once spec has no instant")
		}
		return nil
	case KindCron:
		if _, err := cronParser.Parse(s.Expr); err != nil {
			return fmt.Errorf("invalid cron expression %q: %w", s.Expr, err)
		}
		return nil
	case KindPreset:
		if _, err := resolvePreset(s.Preset); err != nil {
			return err
		}
		return nil
	default:
		return fmt.Errorf("unknown schedule kind %q", s.Kind)
	}
}
