package bot

import (
	"context"
	"errors"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"remindly/internal/eventbus"
	"remindly/internal/store"
	"remindly/internal/transport"
	logx "remindly/pkg/logx"
)

type sentMsg struct {
	ChatID int64
	Text   string
	Opt    *transport.SendOptions
}

type fakeAdapter struct {
	mu      sync.Mutex
	sent    []sentMsg
	edits   []sentMsg
	answers []string
}

func (f *fakeAdapter) Start(context.Context, chan<- transport.Update) error { return nil }
func (f *fakeAdapter) Stop(context.Context) error                           { return nil }

func (f *fakeAdapter) SendText(_ context.Context, to transport.ChatTarget, text string, opt *transport.SendOptions) (transport.MessageRef, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.sent = append(f.sent, sentMsg{ChatID: to.ChatID, Text: text, Opt: opt})
	return transport.MessageRef{ChatID: to.ChatID, MessageID: len(f.sent)}, nil
}

func (f *fakeAdapter) EditText(_ context.Context, ref transport.MessageRef, text string, opt *transport.SendOptions) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.edits = append(f.edits, sentMsg{ChatID: ref.ChatID, Text: text, Opt: opt})
	return nil
}

func (f *fakeAdapter) AnswerCallback(_ context.Context, _ string, text string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.answers = append(f.answers, text)
	return nil
}

func (f *fakeAdapter) lastSent(t *testing.T) sentMsg {
	t.Helper()
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.sent) == 0 {
		t.Fatal("nothing was sent")
	}
	return f.sent[len(f.sent)-1]
}

func newTestService(t *testing.T) (*Service, *fakeAdapter, store.Store) {
	t.Helper()
	st, err := store.Open(store.Config{
		Path:      filepath.Join(t.TempDir(), "bot.db"),
		DefaultTZ: "UTC",
	}, logx.Nop())
	if err != nil {
		t.Fatalf("store.Open: %v", err)
	}
	t.Cleanup(func() { _ = st.Close() })

	fa := &fakeAdapter{}
	svc := New(Config{DefaultTZ: "UTC", TournamentTZ: "UTC"}, fa, st, eventbus.New(), logx.Nop())
	svc.now = func() time.Time { return time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC) }
	return svc, fa, st
}

func msg(chatID, fromID int64, text string, group bool) transport.Message {
	return transport.Message{ChatID: chatID, FromID: fromID, Text: text, IsGroup: group}
}

func TestAddWizardCreatesOnceReminder(t *testing.T) {
	t.Parallel()
	svc, fa, st := newTestService(t)
	ctx := context.Background()

	svc.handleMessage(ctx, msg(1, 10, "/add", false))
	if got := fa.lastSent(t).Text; got != msgEnterText {
		t.Fatalf("expected text prompt, got %q", got)
	}

	svc.handleMessage(ctx, msg(1, 10, "полить цветы", false))
	if got := fa.lastSent(t).Text; got != msgWhenOnce {
		t.Fatalf("expected time prompt, got %q", got)
	}

	svc.handleMessage(ctx, msg(1, 10, "через 30 минут", false))
	if got := fa.lastSent(t).Text; !strings.Contains(got, "Напоминание создано") {
		t.Fatalf("expected creation confirmation, got %q", got)
	}

	items, err := st.ListChatReminders(ctx, 1)
	if err != nil {
		t.Fatalf("ListChatReminders: %v", err)
	}
	if len(items) != 1 {
		t.Fatalf("expected 1 reminder, got %d", len(items))
	}
	r := items[0]
	if r.Text != "полить цветы" {
		t.Errorf("text = %q", r.Text)
	}
	want := svc.now().Add(30 * time.Minute)
	if r.NextAt == nil || !r.NextAt.Equal(want) {
		t.Errorf("next_at = %v, want %v", r.NextAt, want)
	}
}

func TestAddWizardRejectsBadTime(t *testing.T) {
	t.Parallel()
	svc, fa, _ := newTestService(t)
	ctx := context.Background()

	svc.handleMessage(ctx, msg(1, 10, "/add", false))
	svc.handleMessage(ctx, msg(1, 10, "текст", false))
	svc.handleMessage(ctx, msg(1, 10, "когда-нибудь", false))
	if got := fa.lastSent(t).Text; got != msgBadOnceTime {
		t.Fatalf("expected bad-time reply, got %q", got)
	}

	// The wizard stays on the time step and accepts a correction.
	svc.handleMessage(ctx, msg(1, 10, "14:30", false))
	if got := fa.lastSent(t).Text; !strings.Contains(got, "Напоминание создано") {
		t.Fatalf("expected creation confirmation, got %q", got)
	}
}

func TestAddRepeatArgsForm(t *testing.T) {
	t.Parallel()
	svc, fa, st := newTestService(t)
	ctx := context.Background()

	svc.handleMessage(ctx, msg(2, 10, "/add_repeat daily 10:00 Собрание", false))
	if got := fa.lastSent(t).Text; !strings.Contains(got, "Повторяющееся напоминание создано") {
		t.Fatalf("unexpected reply %q", got)
	}

	items, err := st.ListChatReminders(ctx, 2)
	if err != nil || len(items) != 1 {
		t.Fatalf("expected 1 reminder, got %d (err %v)", len(items), err)
	}
	if items[0].Text != "Собрание" {
		t.Errorf("text = %q", items[0].Text)
	}
	if !items[0].Recurring() {
		t.Error("expected a recurring reminder")
	}
}

func TestAddRepeatCronForm(t *testing.T) {
	t.Parallel()
	svc, fa, st := newTestService(t)
	ctx := context.Background()

	svc.handleMessage(ctx, msg(2, 10, `/add_repeat cron "*/15 * * * *" Пульс-чек`, false))
	if got := fa.lastSent(t).Text; !strings.Contains(got, "*/15 * * * *") {
		t.Fatalf("unexpected reply %q", got)
	}

	items, _ := st.ListChatReminders(ctx, 2)
	if len(items) != 1 || items[0].Spec.Expr != "*/15 * * * *" {
		t.Fatalf("unexpected reminders %+v", items)
	}
}

func TestListSendsCards(t *testing.T) {
	t.Parallel()
	svc, fa, st := newTestService(t)
	ctx := context.Background()

	svc.handleMessage(ctx, msg(3, 10, "/add_repeat daily 08:00 Зарядка", false))
	fa.mu.Lock()
	fa.sent = nil
	fa.mu.Unlock()

	svc.handleMessage(ctx, msg(3, 10, "/list", false))
	last := fa.lastSent(t)
	if !strings.Contains(last.Text, "Зарядка") {
		t.Fatalf("card text = %q", last.Text)
	}
	if last.Opt == nil || last.Opt.ReplyMarkupAdapter == nil {
		t.Fatal("expected an inline keyboard on the card")
	}

	items, _ := st.ListChatReminders(ctx, 3)
	if !strings.Contains(last.Text, shortID(items[0].ID)) {
		t.Errorf("card does not show the reminder id: %q", last.Text)
	}
}

func TestCallbackPauseAndResume(t *testing.T) {
	t.Parallel()
	svc, fa, st := newTestService(t)
	ctx := context.Background()

	svc.handleMessage(ctx, msg(4, 10, "/add_repeat daily 08:00 Стендап", false))
	items, _ := st.ListChatReminders(ctx, 4)
	id := items[0].ID

	svc.handleCallback(ctx, transport.Callback{
		ID: "cb1", FromID: 10, ChatID: 4, MessageID: 1, Data: "r:pause:" + id,
	})
	r, err := st.GetReminder(ctx, id)
	if err != nil {
		t.Fatalf("GetReminder: %v", err)
	}
	if !r.Paused {
		t.Fatal("expected reminder to be paused")
	}
	fa.mu.Lock()
	if len(fa.edits) == 0 || len(fa.answers) == 0 {
		t.Fatal("expected a card refresh and a callback answer")
	}
	if got := fa.answers[len(fa.answers)-1]; got != msgPaused {
		t.Errorf("answer = %q", got)
	}
	fa.mu.Unlock()

	svc.handleCallback(ctx, transport.Callback{
		ID: "cb2", FromID: 10, ChatID: 4, MessageID: 1, Data: "r:resume:" + id,
	})
	r, _ = st.GetReminder(ctx, id)
	if r.Paused {
		t.Fatal("expected reminder to be resumed")
	}
}

func TestCallbackShiftOnceOnly(t *testing.T) {
	t.Parallel()
	svc, fa, st := newTestService(t)
	ctx := context.Background()

	svc.handleMessage(ctx, msg(5, 10, "/add_repeat daily 08:00 Повторка", false))
	items, _ := st.ListChatReminders(ctx, 5)

	svc.handleCallback(ctx, transport.Callback{
		ID: "cb", FromID: 10, ChatID: 5, MessageID: 1, Data: "r:shift15:" + items[0].ID,
	})
	fa.mu.Lock()
	defer fa.mu.Unlock()
	if got := fa.answers[len(fa.answers)-1]; got != msgOnceOnly {
		t.Fatalf("answer = %q, want once-only alert", got)
	}
}

func TestCallbackShift15MovesOnce(t *testing.T) {
	t.Parallel()
	svc, _, st := newTestService(t)
	ctx := context.Background()

	svc.handleMessage(ctx, msg(6, 10, "/add", false))
	svc.handleMessage(ctx, msg(6, 10, "Разовое", false))
	svc.handleMessage(ctx, msg(6, 10, "+30", false))
	items, _ := st.ListChatReminders(ctx, 6)
	id := items[0].ID
	before := *items[0].NextAt

	svc.handleCallback(ctx, transport.Callback{
		ID: "cb", FromID: 10, ChatID: 6, MessageID: 1, Data: "r:shift15:" + id,
	})
	r, _ := st.GetReminder(ctx, id)
	if r.NextAt == nil || !r.NextAt.Equal(before.Add(15*time.Minute)) {
		t.Fatalf("next_at = %v, want %v", r.NextAt, before.Add(15*time.Minute))
	}
}

func TestDeleteByPrefix(t *testing.T) {
	t.Parallel()
	svc, fa, st := newTestService(t)
	ctx := context.Background()

	svc.handleMessage(ctx, msg(7, 10, "/add_repeat daily 08:00 Под снос", false))
	items, _ := st.ListChatReminders(ctx, 7)
	id := items[0].ID

	svc.handleMessage(ctx, msg(7, 10, "/delete "+id[:8], false))
	if _, err := st.GetReminder(ctx, id); !errors.Is(err, store.ErrNotFound) {
		t.Fatalf("expected reminder to be gone, err = %v", err)
	}
	if got := fa.lastSent(t).Text; !strings.Contains(got, "Удалил напоминание") {
		t.Errorf("reply = %q", got)
	}
}

func TestTournamentCommandsAreAdminGated(t *testing.T) {
	t.Parallel()
	svc, fa, st := newTestService(t)
	ctx := context.Background()

	// Private chat: rejected outright.
	svc.handleMessage(ctx, msg(8, 10, "/subscribe_tournaments", false))
	if got := fa.lastSent(t).Text; got != msgGroupOnly {
		t.Fatalf("reply = %q, want group-only notice", got)
	}

	// Group chat without admin rights: rejected.
	svc.handleMessage(ctx, msg(-100, 10, "/subscribe_tournaments", true))
	if got := fa.lastSent(t).Text; got != msgAdminOnly {
		t.Fatalf("reply = %q, want admin-only notice", got)
	}

	// Owner bypass: subscription goes through and materializes the feed.
	svc.cfg.Owners = []int64{10}
	svc.handleMessage(ctx, msg(-100, 10, "/subscribe_tournaments", true))
	if got := fa.lastSent(t).Text; got != msgTourneyOn {
		t.Fatalf("reply = %q", got)
	}
	c, err := st.GetChat(ctx, -100)
	if err != nil || !c.TournamentSubscribed {
		t.Fatalf("expected subscribed chat, got %+v (err %v)", c, err)
	}
	items, _ := st.ListChatReminders(ctx, -100)
	if len(items) != 1 || items[0].Category != store.CategoryTournament {
		t.Fatalf("expected one tournament feed reminder, got %+v", items)
	}
}

func TestQuietCommandManagesWindow(t *testing.T) {
	t.Parallel()
	svc, fa, st := newTestService(t)
	ctx := context.Background()

	svc.handleMessage(ctx, msg(8, 10, "/quiet 23-8", false))
	if got := fa.lastSent(t).Text; got != msgQuietSet(23, 8) {
		t.Fatalf("reply = %q", got)
	}
	w, err := st.GetQuietHours(ctx, 10)
	if err != nil {
		t.Fatalf("GetQuietHours: %v", err)
	}
	if w == nil || w.From != 23 || w.To != 8 {
		t.Fatalf("window = %+v", w)
	}

	svc.handleMessage(ctx, msg(8, 10, "/quiet off", false))
	if got := fa.lastSent(t).Text; got != msgQuietOff {
		t.Fatalf("reply = %q", got)
	}
	if w, _ := st.GetQuietHours(ctx, 10); w != nil {
		t.Fatalf("window survived /quiet off: %+v", w)
	}

	svc.handleMessage(ctx, msg(8, 10, "/quiet вечером", false))
	if got := fa.lastSent(t).Text; got != msgQuietUsage {
		t.Fatalf("reply = %q", got)
	}
	svc.handleMessage(ctx, msg(8, 10, "/quiet 25-8", false))
	if got := fa.lastSent(t).Text; got != msgQuietUsage {
		t.Fatalf("reply = %q", got)
	}
}

func TestRoleCommands(t *testing.T) {
	t.Parallel()
	svc, fa, st := newTestService(t)
	ctx := context.Background()

	// Grants are admin-gated; listing is open to everyone.
	svc.handleMessage(ctx, msg(-100, 10, "/role grant 42 editor", true))
	if got := fa.lastSent(t).Text; got != msgAdminOnly {
		t.Fatalf("reply = %q, want admin-only notice", got)
	}
	svc.handleMessage(ctx, msg(-100, 10, "/role list", true))
	if got := fa.lastSent(t).Text; got != msgRolesEmpty {
		t.Fatalf("reply = %q", got)
	}

	svc.cfg.Owners = []int64{10}
	svc.handleMessage(ctx, msg(-100, 10, "/role grant abc", true))
	if got := fa.lastSent(t).Text; got != msgRoleBadTarget {
		t.Fatalf("reply = %q", got)
	}
	svc.handleMessage(ctx, msg(-100, 10, "/role grant 42", true))
	if got := fa.lastSent(t).Text; got != msgRoleGranted(store.RoleEditor, 42) {
		t.Fatalf("reply = %q", got)
	}
	ok, err := st.HasEditorRole(ctx, -100, 42)
	if err != nil || !ok {
		t.Fatalf("HasEditorRole = %v, %v", ok, err)
	}

	svc.handleMessage(ctx, msg(-100, 10, "/role list", true))
	got := fa.lastSent(t).Text
	if !strings.Contains(got, msgRolesHeader) || !strings.Contains(got, msgRoleLine(store.ChatRole{ChatID: -100, UserID: 42, Role: store.RoleEditor})) {
		t.Fatalf("reply = %q", got)
	}

	svc.handleMessage(ctx, msg(-100, 10, "/role revoke 42", true))
	if got := fa.lastSent(t).Text; got != msgRoleRevoked(42) {
		t.Fatalf("reply = %q", got)
	}
	if ok, _ := st.HasEditorRole(ctx, -100, 42); ok {
		t.Fatal("role survived revoke")
	}

	svc.handleMessage(ctx, msg(-100, 10, "/role", true))
	if got := fa.lastSent(t).Text; got != msgRoleUsage {
		t.Fatalf("reply = %q", got)
	}
}

func TestAddRepeatRequiresEditorInGroups(t *testing.T) {
	t.Parallel()
	svc, fa, st := newTestService(t)
	ctx := context.Background()

	svc.handleMessage(ctx, msg(-100, 42, "/add_repeat каждый день 09:00 зарядка", true))
	if got := fa.lastSent(t).Text; got != msgNoEditorRights {
		t.Fatalf("reply = %q, want editor-rights notice", got)
	}
	if items, _ := st.ListChatReminders(ctx, -100); len(items) != 0 {
		t.Fatalf("reminder created without rights: %+v", items)
	}

	if err := st.GrantRole(ctx, -100, 42, store.RoleEditor); err != nil {
		t.Fatalf("GrantRole: %v", err)
	}
	svc.handleMessage(ctx, msg(-100, 42, "/add_repeat каждый день 09:00 зарядка", true))
	if got := fa.lastSent(t).Text; !strings.Contains(got, "Повторяющееся напоминание создано") {
		t.Fatalf("reply = %q", got)
	}
	items, _ := st.ListChatReminders(ctx, -100)
	if len(items) != 1 {
		t.Fatalf("expected one reminder, got %+v", items)
	}
}

func TestScheduleListsUpcomingSlots(t *testing.T) {
	t.Parallel()
	svc, fa, _ := newTestService(t)
	ctx := context.Background()

	svc.handleMessage(ctx, msg(9, 10, "/schedule", false))
	got := fa.lastSent(t).Text
	if !strings.Contains(got, msgScheduleHeader) {
		t.Fatalf("reply = %q", got)
	}
	// now is 12:00 UTC; the first feed slot fires 13:55, start 14:00.
	if !strings.Contains(got, "старт 01.06 14:00 — напоминание в 13:55") {
		t.Errorf("missing first slot line in %q", got)
	}
	if n := strings.Count(got, "• старт"); n != 6 {
		t.Errorf("expected 6 slot lines, got %d", n)
	}
}

func TestEditWizardUpdatesText(t *testing.T) {
	t.Parallel()
	svc, _, st := newTestService(t)
	ctx := context.Background()

	svc.handleMessage(ctx, msg(11, 10, "/add_repeat daily 08:00 Старый текст", false))
	items, _ := st.ListChatReminders(ctx, 11)
	id := items[0].ID

	svc.handleCallback(ctx, transport.Callback{
		ID: "cb", FromID: 10, ChatID: 11, MessageID: 1, Data: "r:edit:" + id,
	})
	svc.handleMessage(ctx, msg(11, 10, "Новый текст", false))

	r, err := st.GetReminder(ctx, id)
	if err != nil {
		t.Fatalf("GetReminder: %v", err)
	}
	if r.Text != "Новый текст" {
		t.Fatalf("text = %q", r.Text)
	}
}
