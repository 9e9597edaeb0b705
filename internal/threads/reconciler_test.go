package threads_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"activitychat/internal/domain"
	"activitychat/internal/realtime"
	"activitychat/internal/threads"
)

const (
	waitFor = 2 * time.Second
	tick    = 10 * time.Millisecond
)

type fakeSource struct {
	mu      sync.Mutex
	records []domain.ThreadRecord
	err     error
	calls   int
	gate    chan struct{}
}

func (f *fakeSource) FetchThreads(ctx context.Context, userID string) ([]domain.ThreadRecord, error) {
	f.mu.Lock()
	f.calls++
	gate := f.gate
	f.mu.Unlock()

	if gate != nil {
		select {
		case <-gate:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return nil, f.err
	}
	return append([]domain.ThreadRecord(nil), f.records...), nil
}

func (f *fakeSource) set(err error, records ...domain.ThreadRecord) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.err = err
	f.records = records
}

func (f *fakeSource) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

type staticSession struct {
	userID string
}

func (s staticSession) CurrentSession(context.Context) (threads.Session, error) {
	if s.userID == "" {
		return threads.Session{}, threads.ErrNoSession
	}
	return threads.Session{UserID: s.userID}, nil
}

// recordingSubscriber hands out broker subscriptions and remembers them.
type recordingSubscriber struct {
	*realtime.Broker
	mu   sync.Mutex
	subs map[string]realtime.Subscription
}

func (r *recordingSubscriber) Subscribe(ctx context.Context, spec realtime.Spec, fn func(realtime.Change)) (realtime.Subscription, error) {
	sub, err := r.Broker.Subscribe(ctx, spec, fn)
	if err == nil {
		r.mu.Lock()
		r.subs[spec.Table] = sub
		r.mu.Unlock()
	}
	return sub, err
}

func (r *recordingSubscriber) get(table string) realtime.Subscription {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.subs[table]
}

func rec(chatID, eventID, status string, content string, sec int64) domain.ThreadRecord {
	r := domain.ThreadRecord{
		ChatID: chatID,
		Events: []domain.EventSummary{{ID: eventID, Name: "event " + eventID, ActivityType: "food", Status: status}},
	}
	if content != "" {
		r.Messages = []domain.MessagePreview{{Content: content, CreatedAt: time.Unix(sec, 0).UTC()}}
	}
	return r
}

func ids(ts []threads.Thread) []string {
	out := make([]string, 0, len(ts))
	for _, t := range ts {
		out = append(out, t.ChatID)
	}
	return out
}

func publish(t *testing.T, b *realtime.Broker, table string, kind realtime.Kind, row any) {
	t.Helper()
	c, err := realtime.NewChange(table, kind, row)
	require.NoError(t, err)
	b.Publish(c)
}

func listIs(r *threads.Reconciler, want ...string) func() bool {
	return func() bool {
		got := ids(r.Threads())
		if len(got) != len(want) {
			return false
		}
		for i := range got {
			if got[i] != want[i] {
				return false
			}
		}
		return true
	}
}

func start(t *testing.T, src *fakeSource, sub realtime.Subscriber, userID string) *threads.Reconciler {
	t.Helper()
	r := threads.New(src, sub, staticSession{userID: userID})
	r.Start(context.Background())
	t.Cleanup(r.Close)
	return r
}

func TestReconcilerAppliesLiveMessages(t *testing.T) {
	broker := realtime.NewBroker()
	src := &fakeSource{}
	src.set(nil, rec("A", "eA", domain.StatusPending, "a", 10), rec("B", "eB", domain.StatusPending, "b", 5))

	r := start(t, src, broker, "u1")
	require.Eventually(t, listIs(r, "A", "B"), waitFor, tick)
	assert.Equal(t, 3, broker.Len())

	publish(t, broker, realtime.TableMessages, realtime.KindInsert, domain.Message{
		ID: "m1", ChatID: "B", Content: "hello", CreatedAt: time.Unix(20, 0).UTC(),
	})
	require.Eventually(t, listIs(r, "B", "A"), waitFor, tick)
	assert.Equal(t, "hello", r.Threads()[0].LastMessageText)

	publish(t, broker, realtime.TableMessages, realtime.KindInsert, domain.Message{
		ID: "m2", ChatID: "C", Content: "unknown", CreatedAt: time.Unix(30, 0).UTC(),
	})
	assert.Never(t, func() bool { return len(r.Threads()) != 2 }, 100*time.Millisecond, tick)
}

func TestReconcilerReloadsOnMembership(t *testing.T) {
	broker := realtime.NewBroker()
	src := &fakeSource{}
	src.set(nil, rec("A", "eA", domain.StatusPending, "a", 10))

	r := start(t, src, broker, "u1")
	require.Eventually(t, listIs(r, "A"), waitFor, tick)

	src.set(nil, rec("A", "eA", domain.StatusPending, "a", 10), rec("C", "eC", domain.StatusPending, "c", 15))
	publish(t, broker, realtime.TableChatParticipants, realtime.KindInsert, domain.ChatParticipant{ChatID: "C", UserID: "u2"})
	assert.Never(t, func() bool { return src.callCount() > 1 }, 100*time.Millisecond, tick)

	publish(t, broker, realtime.TableChatParticipants, realtime.KindInsert, domain.ChatParticipant{ChatID: "C", UserID: "u1"})
	require.Eventually(t, listIs(r, "C", "A"), waitFor, tick)
}

func TestReconcilerKeepsListWhenReloadFails(t *testing.T) {
	broker := realtime.NewBroker()
	src := &fakeSource{}
	src.set(nil, rec("A", "eA", domain.StatusPending, "a", 10), rec("B", "eB", domain.StatusPending, "b", 5))

	r := start(t, src, broker, "u1")
	require.Eventually(t, listIs(r, "A", "B"), waitFor, tick)

	src.set(errors.New("backend unavailable"))
	publish(t, broker, realtime.TableChatParticipants, realtime.KindInsert, domain.ChatParticipant{ChatID: "C", UserID: "u1"})
	require.Eventually(t, func() bool { return src.callCount() == 2 }, waitFor, tick)

	assert.Never(t, func() bool { return !listIs(r, "A", "B")() }, 150*time.Millisecond, tick)
	assert.Equal(t, 2, src.callCount(), "failed loads are not retried")
}

func TestReconcilerRemovesCompletedEvent(t *testing.T) {
	broker := realtime.NewBroker()
	src := &fakeSource{}
	src.set(nil, rec("A", "eA", domain.StatusPending, "a", 10), rec("B", "eB", domain.StatusPending, "b", 5))

	r := start(t, src, broker, "u1")
	require.Eventually(t, listIs(r, "A", "B"), waitFor, tick)

	publish(t, broker, realtime.TableEvents, realtime.KindUpdate, domain.Event{ID: "eA", Status: domain.StatusCompleted})
	require.Eventually(t, listIs(r, "B"), waitFor, tick)

	src.set(nil, rec("A", "eA", domain.StatusPending, "a", 10), rec("B", "eB", domain.StatusPending, "b", 5))
	publish(t, broker, realtime.TableEvents, realtime.KindUpdate, domain.Event{ID: "eA", Status: domain.StatusPending})
	require.Eventually(t, listIs(r, "A", "B"), waitFor, tick)
}

func TestReconcilerWatchDeliversLatestList(t *testing.T) {
	broker := realtime.NewBroker()
	src := &fakeSource{}
	src.set(nil, rec("A", "eA", domain.StatusPending, "a", 10))

	r := threads.New(src, broker, staticSession{userID: "u1"})
	updates, stop := r.Watch()
	defer stop()
	r.Start(context.Background())
	defer r.Close()

	select {
	case list := <-updates:
		if len(list) == 0 {
			// The reset notification may come first.
			list = <-updates
		}
		assert.Equal(t, []string{"A"}, ids(list))
	case <-time.After(waitFor):
		t.Fatal("no update delivered")
	}

	stop()
	for range updates {
	}
	stop()
}

func TestReconcilerLoadingOnlyBeforeFirstList(t *testing.T) {
	broker := realtime.NewBroker()
	src := &fakeSource{gate: make(chan struct{})}
	src.set(nil, rec("A", "eA", domain.StatusPending, "a", 10))

	r := start(t, src, broker, "u1")
	require.Eventually(t, r.Loading, waitFor, tick)

	close(src.gate)
	require.Eventually(t, listIs(r, "A"), waitFor, tick)
	assert.False(t, r.Loading())

	r.Refresh()
	require.Eventually(t, func() bool { return src.callCount() == 2 }, waitFor, tick)
	assert.False(t, r.Loading())
}

func TestReconcilerCloseDropsLateResults(t *testing.T) {
	broker := realtime.NewBroker()
	src := &fakeSource{gate: make(chan struct{})}
	src.set(nil, rec("A", "eA", domain.StatusPending, "a", 10))

	r := threads.New(src, broker, staticSession{userID: "u1"})
	updates, _ := r.Watch()
	r.Start(context.Background())
	require.Eventually(t, func() bool { return src.callCount() == 1 }, waitFor, tick)

	r.Close()
	close(src.gate)

	<-r.Done()
	assert.Empty(t, r.Threads())
	assert.Equal(t, 0, broker.Len())
	for range updates {
	}
}

func TestReconcilerStopsWithContext(t *testing.T) {
	broker := realtime.NewBroker()
	src := &fakeSource{}

	ctx, cancel := context.WithCancel(context.Background())
	r := threads.New(src, broker, staticSession{userID: "u1"})
	r.Start(ctx)
	require.Eventually(t, func() bool { return broker.Len() == 3 }, waitFor, tick)

	cancel()
	select {
	case <-r.Done():
	case <-time.After(waitFor):
		t.Fatal("reconciler did not stop")
	}
	assert.Eventually(t, func() bool { return broker.Len() == 0 }, waitFor, tick)
}

func TestReconcilerResubscribesOnRefresh(t *testing.T) {
	sub := &recordingSubscriber{Broker: realtime.NewBroker(), subs: make(map[string]realtime.Subscription)}
	src := &fakeSource{}
	src.set(nil, rec("A", "eA", domain.StatusPending, "a", 10), rec("B", "eB", domain.StatusPending, "b", 5))

	r := start(t, src, sub, "u1")
	require.Eventually(t, listIs(r, "A", "B"), waitFor, tick)

	sub.get(realtime.TableMessages).Unsubscribe()
	require.Equal(t, 2, sub.Len())

	r.Refresh()
	require.Eventually(t, func() bool { return sub.Len() == 3 }, waitFor, tick)

	publish(t, sub.Broker, realtime.TableMessages, realtime.KindInsert, domain.Message{
		ChatID: "B", Content: "back", CreatedAt: time.Unix(50, 0).UTC(),
	})
	require.Eventually(t, listIs(r, "B", "A"), waitFor, tick)
}

func TestReconcilerWithoutSession(t *testing.T) {
	broker := realtime.NewBroker()
	src := &fakeSource{}

	r := start(t, src, broker, "")
	r.Refresh()
	assert.Never(t, func() bool { return src.callCount() > 0 || broker.Len() > 0 }, 100*time.Millisecond, tick)
	assert.Empty(t, r.Threads())
	assert.False(t, r.Loading())
}
