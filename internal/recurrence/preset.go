package recurrence

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

// PresetTournament fires five minutes before each tournament start
// (starts at 14/16/18/20/22/00 local time).
const PresetTournament = "tournament"

var tournamentSlotExprs = []string{
	"55 13 * * *",
	"55 15 * * *",
	"55 17 * * *",
	"55 19 * * *",
	"55 21 * * *",
	"55 23 * * *",
}

// resolvePreset maps a preset name to the cron expressions it schedules.
//
// Supported:
//
//	tournament        six fixed pre-tournament slots
//	daily@HH:MM       every day at HH:MM
//	weekdays@HH:MM    Monday..Friday at HH:MM
//	sunday@HH:MM      Sunday at HH:MM
func resolvePreset(name string) ([]string, error) {
	name = strings.TrimSpace(strings.ToLower(name))
	if name == PresetTournament {
		return tournamentSlotExprs, nil
	}

	base, hhmm, ok := strings.Cut(name, "@")
	if !ok {
		return nil, fmt.Errorf("unknown preset %q", name)
	}
	hh, mm, err := parseHHMM(hhmm)
	if err != nil {
		return nil, fmt.Errorf("preset %q: %w", name, err)
	}
	switch base {
	case "daily":
		return []string{fmt.Sprintf("%d %d * * *", mm, hh)}, nil
	case "weekdays":
		return []string{fmt.Sprintf("%d %d * * 1-5", mm, hh)}, nil
	case "sunday":
		return []string{fmt.Sprintf("%d %d * * 0", mm, hh)}, nil
	default:
		return nil, fmt.Errorf("unknown preset %q", name)
	}
}

// NewPreset returns a validated preset spec.
func NewPreset(name string) (Spec, error) {
	if _, err := resolvePreset(name); err != nil {
		return Spec{}, err
	}
	return Spec{Kind: KindPreset, Preset: strings.TrimSpace(strings.ToLower(name))}, nil
}

// UpcomingTournamentSlots returns the next n tournament slot instants
// strictly after the given time, in chronological order.
func UpcomingTournamentSlots(after time.Time, loc *time.Location, n int) []time.Time {
	spec := Spec{Kind: KindPreset, Preset: PresetTournament}
	out := make([]time.Time, 0, n)
	cur := after
	for len(out) < n {
		t, ok := Next(spec, cur, loc)
		if !ok {
			break
		}
		out = append(out, t)
		cur = t
	}
	return out
}

func parseHHMM(s string) (int, int, error) {
	hs, ms, ok := strings.Cut(strings.TrimSpace(s), ":")
	if !ok {
		return 0, 0, fmt.Errorf("expected HH:MM, got %q", s)
	}
	hh, err := strconv.Atoi(hs)
	if err != nil || hh < 0 || hh > 23 {
		return 0, 0, fmt.Errorf("invalid hour in %q", s)
	}
	mm, err := strconv.Atoi(ms)
	if err != nil || mm < 0 || mm > 59 {
		return 0, 0, fmt.Errorf("invalid minute in %q", s)
	}
	return hh, mm, nil
}
