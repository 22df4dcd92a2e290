package scheduler

import (
	"context"
	"sync"
	"testing"
	"time"

	"remindly/internal/store"
	logx "remindly/pkg/logx"
)

type fakeClaimer struct {
	mu        sync.Mutex
	batches   [][]store.Reminder
	calls     int
	failFor   int
	released  []string
	syncs     int
	chatLists int
}

func (f *fakeClaimer) ClaimDue(ctx context.Context, now time.Time, limit int, lease time.Duration) ([]store.Reminder, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	if f.calls <= f.failFor {
		return nil, store.ErrUnavailable
	}
	if len(f.batches) == 0 {
		return nil, nil
	}
	b := f.batches[0]
	f.batches = f.batches[1:]
	return b, nil
}

func (f *fakeClaimer) ReleaseClaim(ctx context.Context, id string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.released = append(f.released, id)
	return nil
}

func (f *fakeClaimer) SyncTournamentReminders(ctx context.Context, now time.Time) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.syncs++
	return nil
}

func (f *fakeClaimer) TournamentChats(ctx context.Context) ([]store.Chat, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.chatLists++
	return []store.Chat{{ChatID: 1, TournamentSubscribed: true}}, nil
}

type fakeDeliverer struct {
	mu        sync.Mutex
	delivered []string
	notify    chan string
	block     <-chan struct{}
}

func (f *fakeDeliverer) Deliver(ctx context.Context, r store.Reminder) error {
	if f.block != nil {
		select {
		case <-f.block:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	f.mu.Lock()
	f.delivered = append(f.delivered, r.ID)
	f.mu.Unlock()
	if f.notify != nil {
		f.notify <- r.ID
	}
	return nil
}

func reminders(ids ...string) []store.Reminder {
	out := make([]store.Reminder, 0, len(ids))
	for _, id := range ids {
		out = append(out, store.Reminder{ID: id, ChatID: 1})
	}
	return out
}

func TestTickClaimsAndDelivers(t *testing.T) {
	t.Parallel()
	cl := &fakeClaimer{batches: [][]store.Reminder{reminders("a", "b", "c")}}
	dl := &fakeDeliverer{notify: make(chan string, 8)}
	svc := New(Config{TickInterval: 10 * time.Millisecond, Workers: 2}, cl, dl, nil, logx.Nop())

	if err := svc.Start(context.Background()); err != nil {
		t.Fatalf("Start: %v", err)
	}
	defer func() {
		ctx, cancel := context.WithTimeout(context.Background(), time.Second)
		defer cancel()
		_ = svc.Stop(ctx)
	}()

	got := map[string]bool{}
	deadline := time.After(3 * time.Second)
	for len(got) < 3 {
		select {
		case id := <-dl.notify:
			got[id] = true
		case <-deadline:
			t.Fatalf("delivered %v, want a/b/c", got)
		}
	}
}

func TestBackoffRecoversAfterStoreFailure(t *testing.T) {
	t.Parallel()
	cl := &fakeClaimer{failFor: 2, batches: [][]store.Reminder{reminders("x")}}
	dl := &fakeDeliverer{notify: make(chan string, 1)}
	svc := New(Config{TickInterval: 5 * time.Millisecond, Workers: 1}, cl, dl, nil, logx.Nop())

	if err := svc.Start(context.Background()); err != nil {
		t.Fatalf("Start: %v", err)
	}
	defer func() {
		ctx, cancel := context.WithTimeout(context.Background(), time.Second)
		defer cancel()
		_ = svc.Stop(ctx)
	}()

	select {
	case id := <-dl.notify:
		if id != "x" {
			t.Fatalf("delivered %q", id)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("never recovered from store failure")
	}

	cl.mu.Lock()
	calls := cl.calls
	cl.mu.Unlock()
	if calls < 3 {
		t.Fatalf("calls = %d, want failed scans plus recovery", calls)
	}
}

func TestStopReleasesQueuedClaims(t *testing.T) {
	t.Parallel()
	block := make(chan struct{})
	cl := &fakeClaimer{batches: [][]store.Reminder{reminders("a", "b", "c", "d")}}
	dl := &fakeDeliverer{block: block}
	svc := New(Config{TickInterval: 5 * time.Millisecond, Workers: 1, BatchLimit: 10}, cl, dl, nil, logx.Nop())

	if err := svc.Start(context.Background()); err != nil {
		t.Fatalf("Start: %v", err)
	}

	// Give the scan a moment to claim and enqueue.
	time.Sleep(100 * time.Millisecond)

	ctx, cancel := context.WithTimeout(context.Background(), 200*time.Millisecond)
	defer cancel()
	if err := svc.Stop(ctx); err != nil {
		t.Fatalf("Stop: %v", err)
	}

	cl.mu.Lock()
	released := len(cl.released)
	cl.mu.Unlock()
	if released == 0 {
		t.Fatal("expected queued claims to be released on stop")
	}
}

func TestTournamentSyncRuns(t *testing.T) {
	t.Parallel()
	cl := &fakeClaimer{}
	dl := &fakeDeliverer{}
	svc := New(Config{
		TickInterval:           time.Hour, // keep the scan loop quiet
		TournamentSyncInterval: 10 * time.Millisecond,
	}, cl, dl, nil, logx.Nop())

	if err := svc.Start(context.Background()); err != nil {
		t.Fatalf("Start: %v", err)
	}

	deadline := time.After(3 * time.Second)
	for {
		cl.mu.Lock()
		n := cl.syncs
		cl.mu.Unlock()
		if n >= 2 {
			break
		}
		select {
		case <-deadline:
			t.Fatalf("syncs = %d, want >= 2", n)
		case <-time.After(5 * time.Millisecond):
		}
	}

	cl.mu.Lock()
	lists := cl.chatLists
	cl.mu.Unlock()
	if lists == 0 {
		t.Fatal("expected the subscriber listing to follow each sync")
	}

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	if err := svc.Stop(ctx); err != nil {
		t.Fatalf("Stop: %v", err)
	}
}
