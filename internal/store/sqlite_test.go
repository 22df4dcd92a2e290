package store

import (
	"context"
	"errors"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"remindly/internal/recurrence"
	logx "remindly/pkg/logx"
)

func newTestStore(t *testing.T) Store {
	t.Helper()
	st, err := Open(Config{
		Path:      filepath.Join(t.TempDir(), "test.db"),
		DefaultTZ: "UTC",
	}, logx.Nop())
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	t.Cleanup(func() { _ = st.Close() })
	return st
}

func seedChat(t *testing.T, st Store, chatID int64) {
	t.Helper()
	if err := st.UpsertChat(context.Background(), Chat{ChatID: chatID, Title: "test"}); err != nil {
		t.Fatalf("UpsertChat: %v", err)
	}
}

func TestCreateReminderComputesNextAt(t *testing.T) {
	t.Parallel()
	st := newTestStore(t)
	ctx := context.Background()
	seedChat(t, st, 1)

	now := time.Date(2024, 6, 1, 10, 0, 0, 0, time.UTC)
	spec, err := recurrence.Cron("30 12 * * *")
	if err != nil {
		t.Fatalf("Cron: %v", err)
	}

	created, err := st.CreateReminder(ctx, Reminder{ChatID: 1, Text: "standup", Spec: spec}, now)
	if err != nil {
		t.Fatalf("CreateReminder: %v", err)
	}
	if created.ID == "" {
		t.Fatal("expected generated id")
	}

	got, err := st.GetReminder(ctx, created.ID)
	if err != nil {
		t.Fatalf("GetReminder: %v", err)
	}
	want := time.Date(2024, 6, 1, 12, 30, 0, 0, time.UTC)
	if got.NextAt == nil || !got.NextAt.Equal(want) {
		t.Fatalf("NextAt = %v, want %v", got.NextAt, want)
	}
	if got.Paused || got.ClaimedUntil != nil || got.LastFiredAt != nil {
		t.Fatalf("unexpected scheduling state: %+v", got)
	}
}

func TestCreateReminderValidation(t *testing.T) {
	t.Parallel()
	st := newTestStore(t)
	ctx := context.Background()
	seedChat(t, st, 1)
	now := time.Date(2024, 6, 1, 10, 0, 0, 0, time.UTC)

	var ve *ValidationError

	_, err := st.CreateReminder(ctx, Reminder{ChatID: 1, Text: " ", Spec: recurrence.Once(now.Add(time.Hour))}, now)
	if !errors.As(err, &ve) {
		t.Fatalf("empty text: expected ValidationError, got %v", err)
	}

	_, err = st.CreateReminder(ctx, Reminder{ChatID: 1, Text: "x", Spec: recurrence.Once(now.Add(-time.Hour))}, now)
	if !errors.As(err, &ve) {
		t.Fatalf("past once: expected ValidationError, got %v", err)
	}

	bad := recurrence.Spec{Kind: recurrence.KindCron, Expr: "not a cron"}
	_, err = st.CreateReminder(ctx, Reminder{ChatID: 1, Text: "x", Spec: bad}, now)
	if !errors.As(err, &ve) {
		t.Fatalf("bad cron: expected ValidationError, got %v", err)
	}
}

func TestClaimDueBasics(t *testing.T) {
	t.Parallel()
	st := newTestStore(t)
	ctx := context.Background()
	seedChat(t, st, 1)

	base := time.Date(2024, 6, 1, 10, 0, 0, 0, time.UTC)
	due, err := st.CreateReminder(ctx, Reminder{ChatID: 1, Text: "due", Spec: recurrence.Once(base.Add(time.Minute))}, base)
	if err != nil {
		t.Fatalf("CreateReminder: %v", err)
	}
	notDue, err := st.CreateReminder(ctx, Reminder{ChatID: 1, Text: "later", Spec: recurrence.Once(base.Add(time.Hour))}, base)
	if err != nil {
		t.Fatalf("CreateReminder: %v", err)
	}

	// Nothing due yet: no claims, no state change.
	got, err := st.ClaimDue(ctx, base, 10, time.Minute)
	if err != nil {
		t.Fatalf("ClaimDue: %v", err)
	}
	if len(got) != 0 {
		t.Fatalf("claimed %d reminders before due time", len(got))
	}

	now := base.Add(2 * time.Minute)
	got, err = st.ClaimDue(ctx, now, 10, time.Minute)
	if err != nil {
		t.Fatalf("ClaimDue: %v", err)
	}
	if len(got) != 1 || got[0].ID != due.ID {
		t.Fatalf("claimed %v, want [%s]", got, due.ID)
	}
	if got[0].ClaimedUntil == nil || !got[0].ClaimedUntil.Equal(now.Add(time.Minute)) {
		t.Fatalf("ClaimedUntil = %v, want %v", got[0].ClaimedUntil, now.Add(time.Minute))
	}

	// Already claimed: a second scan within the lease gets nothing.
	got, err = st.ClaimDue(ctx, now.Add(time.Second), 10, time.Minute)
	if err != nil {
		t.Fatalf("ClaimDue: %v", err)
	}
	if len(got) != 0 {
		t.Fatalf("double claim: %v", got)
	}

	// Lease expiry frees the claim (crashed claimer).
	got, err = st.ClaimDue(ctx, now.Add(2*time.Minute), 10, time.Minute)
	if err != nil {
		t.Fatalf("ClaimDue: %v", err)
	}
	if len(got) != 1 || got[0].ID != due.ID {
		t.Fatalf("expired lease reclaim: %v", got)
	}

	_ = notDue
}

func TestClaimDueConcurrentClaimers(t *testing.T) {
	t.Parallel()
	st := newTestStore(t)
	ctx := context.Background()
	seedChat(t, st, 1)

	base := time.Date(2024, 6, 1, 10, 0, 0, 0, time.UTC)
	const total = 40
	for i := 0; i < total; i++ {
		if _, err := st.CreateReminder(ctx, Reminder{
			ChatID: 1, Text: "n", Spec: recurrence.Once(base.Add(time.Duration(i+1) * time.Second)),
		}, base); err != nil {
			t.Fatalf("CreateReminder: %v", err)
		}
	}

	now := base.Add(time.Hour)
	var (
		mu      sync.Mutex
		claimed = map[string]int{}
		wg      sync.WaitGroup
	)
	for w := 0; w < 8; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for {
				got, err := st.ClaimDue(ctx, now, 7, time.Minute)
				if err != nil {
					t.Errorf("ClaimDue: %v", err)
					return
				}
				if len(got) == 0 {
					return
				}
				mu.Lock()
				for _, r := range got {
					claimed[r.ID]++
				}
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	if len(claimed) != total {
		t.Fatalf("claimed %d distinct reminders, want %d", len(claimed), total)
	}
	for id, n := range claimed {
		if n != 1 {
			t.Fatalf("reminder %s claimed %d times", id, n)
		}
	}
}

func TestRescheduleOnceTerminal(t *testing.T) {
	t.Parallel()
	st := newTestStore(t)
	ctx := context.Background()
	seedChat(t, st, 1)

	base := time.Date(2024, 6, 1, 10, 0, 0, 0, time.UTC)
	r, err := st.CreateReminder(ctx, Reminder{ChatID: 1, Text: "x", Spec: recurrence.Once(base.Add(time.Minute))}, base)
	if err != nil {
		t.Fatalf("CreateReminder: %v", err)
	}

	fire := base.Add(2 * time.Minute)
	if err := st.Reschedule(ctx, r.ID, fire); err != nil {
		t.Fatalf("Reschedule: %v", err)
	}

	got, err := st.GetReminder(ctx, r.ID)
	if err != nil {
		t.Fatalf("GetReminder: %v", err)
	}
	if got.NextAt != nil {
		t.Fatalf("NextAt = %v, want nil (terminal)", got.NextAt)
	}
	if got.LastFiredAt == nil || !got.LastFiredAt.Equal(fire) {
		t.Fatalf("LastFiredAt = %v, want %v", got.LastFiredAt, fire)
	}
	if got.ClaimedUntil != nil {
		t.Fatal("claim not cleared")
	}

	// Terminal reminders never come back in scans.
	due, err := st.ClaimDue(ctx, fire.Add(time.Hour), 10, time.Minute)
	if err != nil {
		t.Fatalf("ClaimDue: %v", err)
	}
	if len(due) != 0 {
		t.Fatalf("terminal reminder claimed: %v", due)
	}
}

func TestRescheduleRecurringIdempotent(t *testing.T) {
	t.Parallel()
	st := newTestStore(t)
	ctx := context.Background()
	seedChat(t, st, 1)

	base := time.Date(2024, 6, 1, 10, 0, 0, 0, time.UTC)
	spec, _ := recurrence.Cron("0 12 * * *")
	r, err := st.CreateReminder(ctx, Reminder{ChatID: 1, Text: "x", Spec: spec}, base)
	if err != nil {
		t.Fatalf("CreateReminder: %v", err)
	}

	fire := time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)
	if err := st.Reschedule(ctx, r.ID, fire); err != nil {
		t.Fatalf("Reschedule: %v", err)
	}
	first, err := st.GetReminder(ctx, r.ID)
	if err != nil {
		t.Fatalf("GetReminder: %v", err)
	}

	// Same input, same row.
	if err := st.Reschedule(ctx, r.ID, fire); err != nil {
		t.Fatalf("Reschedule (repeat): %v", err)
	}
	second, err := st.GetReminder(ctx, r.ID)
	if err != nil {
		t.Fatalf("GetReminder: %v", err)
	}

	want := time.Date(2024, 6, 2, 12, 0, 0, 0, time.UTC)
	if first.NextAt == nil || !first.NextAt.Equal(want) {
		t.Fatalf("NextAt = %v, want %v", first.NextAt, want)
	}
	if second.NextAt == nil || !second.NextAt.Equal(*first.NextAt) {
		t.Fatalf("reschedule not idempotent: %v vs %v", second.NextAt, first.NextAt)
	}
}

func TestPausedExcludedFromClaims(t *testing.T) {
	t.Parallel()
	st := newTestStore(t)
	ctx := context.Background()
	seedChat(t, st, 1)

	base := time.Date(2024, 6, 1, 10, 0, 0, 0, time.UTC)
	spec, _ := recurrence.Cron("*/5 * * * *")
	r, err := st.CreateReminder(ctx, Reminder{ChatID: 1, Text: "x", Spec: spec}, base)
	if err != nil {
		t.Fatalf("CreateReminder: %v", err)
	}

	if err := st.SetPaused(ctx, r.ID, true, base); err != nil {
		t.Fatalf("SetPaused: %v", err)
	}
	got, err := st.GetReminder(ctx, r.ID)
	if err != nil {
		t.Fatalf("GetReminder: %v", err)
	}
	if !got.Paused || got.NextAt != nil {
		t.Fatalf("pause state: paused=%v next=%v", got.Paused, got.NextAt)
	}

	due, err := st.ClaimDue(ctx, base.Add(24*time.Hour), 10, time.Minute)
	if err != nil {
		t.Fatalf("ClaimDue: %v", err)
	}
	if len(due) != 0 {
		t.Fatalf("paused reminder claimed: %v", due)
	}

	// Resume recomputes the next occurrence from now.
	resumeAt := base.Add(time.Hour)
	if err := st.SetPaused(ctx, r.ID, false, resumeAt); err != nil {
		t.Fatalf("SetPaused(resume): %v", err)
	}
	got, err = st.GetReminder(ctx, r.ID)
	if err != nil {
		t.Fatalf("GetReminder: %v", err)
	}
	if got.Paused || got.NextAt == nil || !got.NextAt.After(resumeAt) {
		t.Fatalf("resume state: paused=%v next=%v", got.Paused, got.NextAt)
	}
}

func TestDeleteCascadesRuns(t *testing.T) {
	t.Parallel()
	st := newTestStore(t)
	ctx := context.Background()
	seedChat(t, st, 1)

	base := time.Date(2024, 6, 1, 10, 0, 0, 0, time.UTC)
	r, err := st.CreateReminder(ctx, Reminder{ChatID: 1, Text: "x", Spec: recurrence.Once(base.Add(time.Minute))}, base)
	if err != nil {
		t.Fatalf("CreateReminder: %v", err)
	}
	if err := st.RecordRun(ctx, Run{ReminderID: r.ID, FiredAt: base, Status: RunOK}); err != nil {
		t.Fatalf("RecordRun: %v", err)
	}

	if err := st.DeleteReminder(ctx, r.ID); err != nil {
		t.Fatalf("DeleteReminder: %v", err)
	}
	if _, err := st.GetReminder(ctx, r.ID); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
	runs, err := st.ListRuns(ctx, r.ID, 10)
	if err != nil {
		t.Fatalf("ListRuns: %v", err)
	}
	if len(runs) != 0 {
		t.Fatalf("runs survived delete: %v", runs)
	}

	if err := st.DeleteReminder(ctx, r.ID); !errors.Is(err, ErrNotFound) {
		t.Fatalf("double delete: expected ErrNotFound, got %v", err)
	}
}

func TestSyncTournamentReminders(t *testing.T) {
	t.Parallel()
	st := newTestStore(t)
	ctx := context.Background()
	seedChat(t, st, 1)
	seedChat(t, st, 2)

	if err := st.SetTournamentSubscription(ctx, 1, true); err != nil {
		t.Fatalf("SetTournamentSubscription: %v", err)
	}

	now := time.Date(2024, 6, 1, 10, 0, 0, 0, time.UTC)
	if err := st.SyncTournamentReminders(ctx, now); err != nil {
		t.Fatalf("Sync: %v", err)
	}
	// Idempotent.
	if err := st.SyncTournamentReminders(ctx, now); err != nil {
		t.Fatalf("Sync (repeat): %v", err)
	}

	sub, err := st.ListChatReminders(ctx, 1)
	if err != nil {
		t.Fatalf("ListChatReminders: %v", err)
	}
	var feed []Reminder
	for _, r := range sub {
		if r.Category == CategoryTournament {
			feed = append(feed, r)
		}
	}
	if len(feed) != 1 {
		t.Fatalf("subscribed chat has %d feed reminders, want 1", len(feed))
	}
	if feed[0].NextAt == nil || !feed[0].NextAt.After(now) {
		t.Fatalf("feed NextAt = %v", feed[0].NextAt)
	}

	other, err := st.ListChatReminders(ctx, 2)
	if err != nil {
		t.Fatalf("ListChatReminders: %v", err)
	}
	if len(other) != 0 {
		t.Fatalf("unsubscribed chat has reminders: %v", other)
	}

	// Unsubscribing removes the feed on the next sync.
	if err := st.SetTournamentSubscription(ctx, 1, false); err != nil {
		t.Fatalf("SetTournamentSubscription(off): %v", err)
	}
	if err := st.SyncTournamentReminders(ctx, now); err != nil {
		t.Fatalf("Sync (after unsubscribe): %v", err)
	}
	sub, err = st.ListChatReminders(ctx, 1)
	if err != nil {
		t.Fatalf("ListChatReminders: %v", err)
	}
	if len(sub) != 0 {
		t.Fatalf("feed survived unsubscribe: %v", sub)
	}
}

func TestSetChatTZValidation(t *testing.T) {
	t.Parallel()
	st := newTestStore(t)
	ctx := context.Background()
	seedChat(t, st, 1)

	var ve *ValidationError
	if err := st.SetChatTZ(ctx, 1, "Mars/Olympus"); !errors.As(err, &ve) {
		t.Fatalf("expected ValidationError, got %v", err)
	}
	if err := st.SetChatTZ(ctx, 1, "Asia/Yekaterinburg"); err != nil {
		t.Fatalf("SetChatTZ: %v", err)
	}
	c, err := st.GetChat(ctx, 1)
	if err != nil {
		t.Fatalf("GetChat: %v", err)
	}
	if c.TZ != "Asia/Yekaterinburg" {
		t.Fatalf("TZ = %q", c.TZ)
	}
}

func TestRecordRunStampsCreatedAt(t *testing.T) {
	t.Parallel()
	st := newTestStore(t)
	ctx := context.Background()
	seedChat(t, st, 1)

	base := time.Date(2024, 6, 1, 10, 0, 0, 0, time.UTC)
	r, err := st.CreateReminder(ctx, Reminder{ChatID: 1, Text: "x", Spec: recurrence.Once(base.Add(time.Minute))}, base)
	if err != nil {
		t.Fatalf("CreateReminder: %v", err)
	}
	if err := st.RecordRun(ctx, Run{ReminderID: r.ID, FiredAt: base, Status: RunOK}); err != nil {
		t.Fatalf("RecordRun: %v", err)
	}
	stamped := base.Add(time.Hour)
	if err := st.RecordRun(ctx, Run{ReminderID: r.ID, FiredAt: base.Add(time.Minute), Status: RunError, Detail: "boom", CreatedAt: stamped}); err != nil {
		t.Fatalf("RecordRun: %v", err)
	}

	runs, err := st.ListRuns(ctx, r.ID, 10)
	if err != nil {
		t.Fatalf("ListRuns: %v", err)
	}
	if len(runs) != 2 {
		t.Fatalf("len(runs) = %d", len(runs))
	}
	for _, run := range runs {
		if run.CreatedAt.IsZero() {
			t.Fatalf("run %d has zero created_at", run.ID)
		}
	}
	if !runs[0].CreatedAt.Equal(stamped) {
		t.Fatalf("created_at = %v, want %v", runs[0].CreatedAt, stamped)
	}
}

func TestQuietHoursRoundTrip(t *testing.T) {
	t.Parallel()
	st := newTestStore(t)
	ctx := context.Background()

	w, err := st.GetQuietHours(ctx, 10)
	if err != nil {
		t.Fatalf("GetQuietHours: %v", err)
	}
	if w != nil {
		t.Fatalf("expected no window, got %+v", w)
	}

	if err := st.SetQuietHours(ctx, 10, &QuietWindow{From: 23, To: 8}); err != nil {
		t.Fatalf("SetQuietHours: %v", err)
	}
	w, err = st.GetQuietHours(ctx, 10)
	if err != nil {
		t.Fatalf("GetQuietHours: %v", err)
	}
	if w == nil || w.From != 23 || w.To != 8 {
		t.Fatalf("window = %+v", w)
	}

	if err := st.SetQuietHours(ctx, 10, &QuietWindow{From: 9, To: 18}); err != nil {
		t.Fatalf("SetQuietHours: %v", err)
	}
	w, _ = st.GetQuietHours(ctx, 10)
	if w == nil || w.From != 9 {
		t.Fatalf("window after update = %+v", w)
	}

	if err := st.SetQuietHours(ctx, 10, nil); err != nil {
		t.Fatalf("SetQuietHours(nil): %v", err)
	}
	w, _ = st.GetQuietHours(ctx, 10)
	if w != nil {
		t.Fatalf("window survived clear: %+v", w)
	}

	var ve *ValidationError
	if err := st.SetQuietHours(ctx, 10, &QuietWindow{From: 25, To: 8}); !errors.As(err, &ve) {
		t.Fatalf("expected ValidationError, got %v", err)
	}
}

func TestQuietWindowContains(t *testing.T) {
	t.Parallel()
	cases := []struct {
		w    QuietWindow
		hour int
		want bool
	}{
		{QuietWindow{From: 10, To: 20}, 10, true},
		{QuietWindow{From: 10, To: 20}, 19, true},
		{QuietWindow{From: 10, To: 20}, 20, false},
		{QuietWindow{From: 10, To: 20}, 9, false},
		{QuietWindow{From: 23, To: 8}, 23, true},
		{QuietWindow{From: 23, To: 8}, 3, true},
		{QuietWindow{From: 23, To: 8}, 8, false},
		{QuietWindow{From: 23, To: 8}, 12, false},
		{QuietWindow{From: 5, To: 5}, 5, false},
	}
	for _, tc := range cases {
		if got := tc.w.Contains(tc.hour); got != tc.want {
			t.Errorf("%+v.Contains(%d) = %v, want %v", tc.w, tc.hour, got, tc.want)
		}
	}
}

func TestChatRoles(t *testing.T) {
	t.Parallel()
	st := newTestStore(t)
	ctx := context.Background()
	seedChat(t, st, 1)

	ok, err := st.HasEditorRole(ctx, 1, 42)
	if err != nil {
		t.Fatalf("HasEditorRole: %v", err)
	}
	if ok {
		t.Fatal("role granted out of nowhere")
	}

	if err := st.GrantRole(ctx, 1, 42, ""); err != nil {
		t.Fatalf("GrantRole: %v", err)
	}
	if err := st.GrantRole(ctx, 1, 7, RoleEditor); err != nil {
		t.Fatalf("GrantRole: %v", err)
	}

	ok, err = st.HasEditorRole(ctx, 1, 42)
	if err != nil {
		t.Fatalf("HasEditorRole: %v", err)
	}
	if !ok {
		t.Fatal("editor role not visible after grant")
	}

	roles, err := st.ListRoles(ctx, 1)
	if err != nil {
		t.Fatalf("ListRoles: %v", err)
	}
	if len(roles) != 2 || roles[0].UserID != 7 || roles[1].UserID != 42 {
		t.Fatalf("roles = %+v", roles)
	}
	if roles[1].Role != RoleEditor {
		t.Fatalf("default role = %q", roles[1].Role)
	}

	if err := st.RevokeRole(ctx, 1, 42); err != nil {
		t.Fatalf("RevokeRole: %v", err)
	}
	ok, _ = st.HasEditorRole(ctx, 1, 42)
	if ok {
		t.Fatal("role survived revoke")
	}
	roles, _ = st.ListRoles(ctx, 1)
	if len(roles) != 1 {
		t.Fatalf("roles after revoke = %+v", roles)
	}
}
