package recurrence

import (
	"testing"
)

func TestParseRepeatVariants(t *testing.T) {
	t.Parallel()
	tests := []struct {
		name string
		raw  string
		expr string
	}{
		{name: "every minute", raw: "каждую минуту", expr: "*/1 * * * *"},
		{name: "every n minutes", raw: "каждые 15 минут", expr: "*/15 * * * *"},
		{name: "every n accusative", raw: "каждую 1 минуту", expr: "*/1 * * * *"},
		{name: "daily explicit", raw: "ежедневно 09:30", expr: "30 9 * * *"},
		{name: "bare hhmm", raw: "14:00", expr: "0 14 * * *"},
		{name: "twelve hour pm", raw: "7:10 pm", expr: "10 19 * * *"},
		{name: "twelve hour bare", raw: "7 pm", expr: "0 19 * * *"},
		{name: "twelve hour noon", raw: "12:00 pm", expr: "0 12 * * *"},
		{name: "twelve hour midnight", raw: "12:00 am", expr: "0 0 * * *"},
		{name: "daily twelve hour", raw: "ежедневно 7 am", expr: "0 7 * * *"},
		{name: "raw cron", raw: "cron: */5 * * * *", expr: "*/5 * * * *"},
		{name: "mixed case spacing", raw: "  КАЖДЫЕ  2  МИНУТЫ ", expr: "*/2 * * * *"},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			got, err := Parse(tt.raw)
			if err != nil {
				t.Fatalf("Parse(%q) error: %v", tt.raw, err)
			}
			if got.Kind != KindCron {
				t.Fatalf("Kind = %v, want %v", got.Kind, KindCron)
			}
			if got.Expr != tt.expr {
				t.Fatalf("Expr = %q, want %q", got.Expr, tt.expr)
			}
		})
	}
}

func TestParseRepeatInvalid(t *testing.T) {
	t.Parallel()
	bad := []string{
		"",
		"not a schedule",
		"25:00",
		"12:99",
		"каждые 0 минут",
		"cron: not a cron",
		"cron: 60 25 * * *",
		"13 pm",
	}
	for _, raw := range bad {
		if _, err := Parse(raw); err == nil {
			t.Fatalf("Parse(%q): expected error", raw)
		}
	}
}

func TestPresetResolution(t *testing.T) {
	t.Parallel()
	tests := []struct {
		name   string
		preset string
		exprs  []string
	}{
		{name: "daily", preset: "daily@09:30", exprs: []string{"30 9 * * *"}},
		{name: "weekdays", preset: "weekdays@08:00", exprs: []string{"0 8 * * 1-5"}},
		{name: "sunday", preset: "sunday@12:00", exprs: []string{"0 12 * * 0"}},
	}
	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			got, err := resolvePreset(tt.preset)
			if err != nil {
				t.Fatalf("resolvePreset(%q) error: %v", tt.preset, err)
			}
			if len(got) != len(tt.exprs) {
				t.Fatalf("exprs = %v, want %v", got, tt.exprs)
			}
			for i := range got {
				if got[i] != tt.exprs[i] {
					t.Fatalf("exprs[%d] = %q, want %q", i, got[i], tt.exprs[i])
				}
			}
		})
	}

	if exprs, err := resolvePreset("tournament"); err != nil || len(exprs) != 6 {
		t.Fatalf("tournament preset: exprs=%v err=%v", exprs, err)
	}

	if _, err := resolvePreset("hourly@xx"); err == nil {
		t.Fatal("expected error for unknown preset")
	}
	if _, err := resolvePreset("daily@24:00"); err == nil {
		t.Fatal("expected error for invalid preset time")
	}
}
