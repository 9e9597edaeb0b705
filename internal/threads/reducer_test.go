package threads

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"activitychat/internal/domain"
)

func at(sec int64) time.Time {
	return time.Unix(sec, 0).UTC()
}

func record(chatID, eventID, status string, msgs ...domain.MessagePreview) domain.ThreadRecord {
	return domain.ThreadRecord{
		ChatID:   chatID,
		Events:   []domain.EventSummary{{ID: eventID, Name: "event " + eventID, ActivityType: "hiking", Status: status}},
		Messages: msgs,
	}
}

func msg(content string, sec int64) domain.MessagePreview {
	return domain.MessagePreview{Content: content, CreatedAt: at(sec)}
}

func chatIDs(ts []Thread) []string {
	ids := make([]string, 0, len(ts))
	for _, t := range ts {
		ids = append(ids, t.ChatID)
	}
	return ids
}

// loaded returns a state for user u1 after one successful load of records.
func loaded(t *testing.T, records ...domain.ThreadRecord) State {
	t.Helper()
	s, effects := Reduce(State{}, RefreshRequested{UserID: "u1"})
	require.Len(t, effects, 2)
	load, ok := effects[0].(LoadThreads)
	require.True(t, ok)
	assert.Equal(t, "u1", load.UserID)
	assert.True(t, s.Loading())

	threads, hidden := Build(records)
	s, _ = Reduce(s, LoadFinished{Gen: load.Gen, Threads: threads, Hidden: hidden})
	require.True(t, s.Loaded)
	assert.False(t, s.Loading())
	return s
}

func assertInvariants(t *testing.T, s State) {
	t.Helper()
	assert.True(t, Sorted(s.Threads), "list not sorted: %v", chatIDs(s.Threads))
	seen := make(map[string]bool)
	for _, th := range s.Threads {
		assert.False(t, seen[th.ChatID], "duplicate chat %s", th.ChatID)
		seen[th.ChatID] = true
	}
}

func loadEffect(t *testing.T, effects []Effect) LoadThreads {
	t.Helper()
	for _, e := range effects {
		if l, ok := e.(LoadThreads); ok {
			return l
		}
	}
	t.Fatalf("no load effect in %v", effects)
	return LoadThreads{}
}

func hasLoad(effects []Effect) bool {
	for _, e := range effects {
		if _, ok := e.(LoadThreads); ok {
			return true
		}
	}
	return false
}

func TestBuildDefaultsAndOrder(t *testing.T) {
	threads, hidden := Build([]domain.ThreadRecord{
		record("b", "eb", domain.StatusPending, msg("old", 5)),
		{ChatID: "empty"},
		record("a", "ea", domain.StatusPending, msg("first", 3), msg("newest", 10), msg("middle", 7)),
		record("done", "ed", domain.StatusCompleted, msg("bye", 100)),
		record("a", "ea", domain.StatusPending, msg("dup", 50)),
	})

	assert.Equal(t, []string{"a", "b", "empty"}, chatIDs(threads))
	assert.Equal(t, map[string]struct{}{"ed": {}}, hidden)

	assert.Equal(t, "newest", threads[0].LastMessageText)
	assert.Equal(t, at(10), threads[0].LastMessageTime)
	assert.Equal(t, "ea", threads[0].EventID)

	empty := threads[2]
	assert.Equal(t, DefaultEventName, empty.EventName)
	assert.Equal(t, DefaultActivityType, empty.ActivityType)
	assert.Equal(t, PlaceholderPreview, empty.LastMessageText)
	assert.Equal(t, Epoch, empty.LastMessageTime)
	assert.False(t, empty.HasMessages())
}

func TestBuildTiesBreakByChatID(t *testing.T) {
	threads, _ := Build([]domain.ThreadRecord{
		record("c", "e3", domain.StatusPending, msg("x", 5)),
		record("a", "e1", domain.StatusPending, msg("y", 5)),
		{ChatID: "z"},
		{ChatID: "m"},
	})
	assert.Equal(t, []string{"a", "c", "m", "z"}, chatIDs(threads))
}

func TestLoadOrdersByRecency(t *testing.T) {
	s := loaded(t,
		record("B", "eB", domain.StatusPending, msg("b", 5)),
		record("A", "eA", domain.StatusPending, msg("a", 10)),
	)
	assert.Equal(t, []string{"A", "B"}, chatIDs(s.Threads))
	assertInvariants(t, s)
}

func TestMessageMovesThreadToTop(t *testing.T) {
	s := loaded(t,
		record("A", "eA", domain.StatusPending, msg("a", 10)),
		record("B", "eB", domain.StatusPending, msg("b", 5)),
	)

	s, effects := Reduce(s, MessageInserted{ChatID: "B", Content: "hi", CreatedAt: at(20)})
	assert.Equal(t, []Effect{Notify{}}, effects)
	assert.Equal(t, []string{"B", "A"}, chatIDs(s.Threads))
	assert.Equal(t, "hi", s.Threads[0].LastMessageText)
	assertInvariants(t, s)
}

func TestMessageForUnknownChatIsDropped(t *testing.T) {
	s := loaded(t,
		record("A", "eA", domain.StatusPending, msg("a", 10)),
		record("B", "eB", domain.StatusPending, msg("b", 5)),
	)

	next, effects := Reduce(s, MessageInserted{ChatID: "C", Content: "?", CreatedAt: at(30)})
	assert.Empty(t, effects)
	assert.Equal(t, s.Threads, next.Threads)
}

func TestMessageApplicationIsIdempotent(t *testing.T) {
	s := loaded(t,
		record("A", "eA", domain.StatusPending, msg("a", 10)),
		record("B", "eB", domain.StatusPending, msg("b", 5)),
	)
	m := MessageInserted{ChatID: "B", Content: "again", CreatedAt: at(15)}

	once, _ := Reduce(s, m)
	twice, effects := Reduce(once, m)
	assert.Equal(t, once.Threads, twice.Threads)
	assert.Empty(t, effects)
}

func TestOlderMessageDoesNotRegressPreview(t *testing.T) {
	s := loaded(t, record("A", "eA", domain.StatusPending, msg("a", 10)))

	s, _ = Reduce(s, MessageInserted{ChatID: "A", Content: "newer", CreatedAt: at(30)})
	s, effects := Reduce(s, MessageInserted{ChatID: "A", Content: "late", CreatedAt: at(20)})
	assert.Empty(t, effects)
	assert.Equal(t, "newer", s.Threads[0].LastMessageText)
	assert.Equal(t, at(30), s.Threads[0].LastMessageTime)
}

func TestPlaceholderSortsLast(t *testing.T) {
	s := loaded(t,
		domain.ThreadRecord{ChatID: "empty", Events: []domain.EventSummary{{ID: "e0"}}},
		record("A", "eA", domain.StatusPending, msg("a", 1)),
	)
	assert.Equal(t, []string{"A", "empty"}, chatIDs(s.Threads))

	s, _ = Reduce(s, MessageInserted{ChatID: "empty", Content: "first", CreatedAt: at(2)})
	assert.Equal(t, []string{"empty", "A"}, chatIDs(s.Threads))
}

func TestMessageBeforeFirstLoadIsDropped(t *testing.T) {
	s, _ := Reduce(State{}, RefreshRequested{UserID: "u1"})
	next, effects := Reduce(s, MessageInserted{ChatID: "A", Content: "early", CreatedAt: at(1)})
	assert.Empty(t, effects)
	assert.Empty(t, next.Threads)
	assert.False(t, next.Loaded)
}

func TestMembershipTriggersLoadAndFailureKeepsList(t *testing.T) {
	s := loaded(t,
		record("A", "eA", domain.StatusPending, msg("a", 10)),
		record("B", "eB", domain.StatusPending, msg("b", 5)),
	)
	before := s.Threads

	s, effects := Reduce(s, MembershipCreated{ChatID: "C"})
	load := loadEffect(t, effects)
	assert.False(t, s.Loading(), "reloads are silent once a list exists")

	s, effects = Reduce(s, LoadFinished{Gen: load.Gen, Err: errors.New("network down")})
	require.Len(t, effects, 1)
	assert.IsType(t, ReportError{}, effects[0])
	assert.Equal(t, before, s.Threads)
	assert.False(t, hasLoad(effects), "failed loads are not retried")
}

func TestMembershipBeforeFirstLoadRequestsLoad(t *testing.T) {
	s, effects := Reduce(State{}, RefreshRequested{UserID: "u1"})
	first := loadEffect(t, effects)

	s, effects = Reduce(s, MembershipCreated{ChatID: "C"})
	second := loadEffect(t, effects)
	assert.Greater(t, second.Gen, first.Gen)
	assert.True(t, s.Loading())
}

func TestFirstLoadFailureClearsLoading(t *testing.T) {
	s, effects := Reduce(State{}, RefreshRequested{UserID: "u1"})
	load := loadEffect(t, effects)
	require.True(t, s.Loading())

	s, effects = Reduce(s, LoadFinished{Gen: load.Gen, Err: errors.New("boom")})
	assert.False(t, s.Loading())
	assert.False(t, s.Loaded)
	assert.Contains(t, effects, Effect(Notify{}))
}

func TestCompletedThreadsNeverAppearAfterLoad(t *testing.T) {
	s := loaded(t,
		record("A", "eA", domain.StatusCompleted, msg("a", 10)),
		record("B", "eB", domain.StatusPending, msg("b", 5)),
	)
	assert.Equal(t, []string{"B"}, chatIDs(s.Threads))
	assert.True(t, s.Hidden("eA"))
}

func TestStaleGenerationIsIgnored(t *testing.T) {
	s, effects := Reduce(State{}, RefreshRequested{UserID: "u1"})
	first := loadEffect(t, effects)
	s, effects = Reduce(s, RefreshRequested{UserID: "u1"})
	second := loadEffect(t, effects)

	newer, _ := Build([]domain.ThreadRecord{record("A", "eA", domain.StatusPending, msg("new", 20))})
	s, _ = Reduce(s, LoadFinished{Gen: second.Gen, Threads: newer})

	older, _ := Build([]domain.ThreadRecord{record("B", "eB", domain.StatusPending, msg("old", 10))})
	s, effects = Reduce(s, LoadFinished{Gen: first.Gen, Threads: older})
	assert.Empty(t, effects)
	assert.Equal(t, []string{"A"}, chatIDs(s.Threads))
}

func TestRebuildKeepsNewerInMemoryPreview(t *testing.T) {
	s := loaded(t,
		record("A", "eA", domain.StatusPending, msg("a", 10)),
		record("B", "eB", domain.StatusPending, msg("b", 5)),
	)

	s, effects := Reduce(s, MembershipCreated{ChatID: "C"})
	load := loadEffect(t, effects)

	// Arrives while the rebuild is in flight.
	s, _ = Reduce(s, MessageInserted{ChatID: "B", Content: "live", CreatedAt: at(40)})

	fetched, hidden := Build([]domain.ThreadRecord{
		record("A", "eA", domain.StatusPending, msg("a", 10)),
		record("B", "eB", domain.StatusPending, msg("b", 5)),
		record("C", "eC", domain.StatusPending, msg("c", 30)),
	})
	s, _ = Reduce(s, LoadFinished{Gen: load.Gen, Threads: fetched, Hidden: hidden})

	assert.Equal(t, []string{"B", "C", "A"}, chatIDs(s.Threads))
	assert.Equal(t, "live", s.Threads[0].LastMessageText)
	assertInvariants(t, s)
}

func TestCompletedStatusRemovesThreadByEventID(t *testing.T) {
	s := loaded(t,
		record("A", "eA", domain.StatusPending, msg("a", 10)),
		record("B", "eB", domain.StatusPending, msg("b", 5)),
	)

	next, effects := Reduce(s, EventStatusChanged{EventID: "A", Status: domain.StatusCompleted})
	assert.Empty(t, effects, "a chat id never matches an event id")
	assert.Len(t, next.Threads, 2)

	next, effects = Reduce(s, EventStatusChanged{EventID: "eA", Status: domain.StatusCompleted})
	assert.Equal(t, []Effect{Notify{}}, effects)
	assert.Equal(t, []string{"B"}, chatIDs(next.Threads))
	assert.True(t, next.Hidden("eA"))

	// Reduce does not touch its input.
	assert.Len(t, s.Threads, 2)
}

func TestReopenHiddenEventTriggersReload(t *testing.T) {
	s := loaded(t,
		record("A", "eA", domain.StatusCompleted, msg("a", 10)),
		record("B", "eB", domain.StatusPending, msg("b", 5)),
	)

	_, effects := Reduce(s, EventStatusChanged{EventID: "eB", Status: domain.StatusPending})
	assert.False(t, hasLoad(effects), "event eB was never hidden")

	s, effects = Reduce(s, EventStatusChanged{EventID: "eA", Status: domain.StatusPending})
	load := loadEffect(t, effects)
	assert.False(t, s.Hidden("eA"))

	fetched, hidden := Build([]domain.ThreadRecord{
		record("A", "eA", domain.StatusPending, msg("a", 10)),
		record("B", "eB", domain.StatusPending, msg("b", 5)),
	})
	s, effects = Reduce(s, LoadFinished{Gen: load.Gen, Threads: fetched, Hidden: hidden})
	assert.Equal(t, []string{"A", "B"}, chatIDs(s.Threads))
	assert.False(t, hasLoad(effects))
}

func TestForeignEventStatusChangesAreIgnored(t *testing.T) {
	s := loaded(t, record("A", "eA", domain.StatusPending, msg("a", 10)))

	s, effects := Reduce(s, EventStatusChanged{EventID: "stranger", Status: domain.StatusCompleted})
	assert.Empty(t, effects)
	assert.False(t, s.Hidden("stranger"))

	s, effects = Reduce(s, EventStatusChanged{EventID: "stranger", Status: domain.StatusPending})
	assert.Empty(t, effects, "reopening an event outside the list must not reload")
	assert.Equal(t, []string{"A"}, chatIDs(s.Threads))
}

func TestStatusBeforeFirstLoadFiltersIt(t *testing.T) {
	s, effects := Reduce(State{}, RefreshRequested{UserID: "u1"})
	load := loadEffect(t, effects)

	s, effects = Reduce(s, EventStatusChanged{EventID: "eA", Status: domain.StatusCompleted})
	assert.Empty(t, effects)

	// The fetch started before the event and still sees it pending.
	fetched, hidden := Build([]domain.ThreadRecord{
		record("A", "eA", domain.StatusPending, msg("a", 10)),
		record("B", "eB", domain.StatusPending, msg("b", 5)),
	})
	s, _ = Reduce(s, LoadFinished{Gen: load.Gen, Threads: fetched, Hidden: hidden})
	assert.Equal(t, []string{"B"}, chatIDs(s.Threads))
	assert.True(t, s.Hidden("eA"))
}

func TestReopenDuringLoadReloadsAgain(t *testing.T) {
	s, effects := Reduce(State{}, RefreshRequested{UserID: "u1"})
	load := loadEffect(t, effects)

	s, _ = Reduce(s, EventStatusChanged{EventID: "eA", Status: domain.StatusPending})

	fetched, hidden := Build([]domain.ThreadRecord{record("A", "eA", domain.StatusCompleted, msg("a", 10))})
	s, effects = Reduce(s, LoadFinished{Gen: load.Gen, Threads: fetched, Hidden: hidden})
	again := loadEffect(t, effects)
	assert.Greater(t, again.Gen, load.Gen)
	assert.Empty(t, s.Threads)

	fetched, hidden = Build([]domain.ThreadRecord{record("A", "eA", domain.StatusPending, msg("a", 10))})
	s, effects = Reduce(s, LoadFinished{Gen: again.Gen, Threads: fetched, Hidden: hidden})
	assert.False(t, hasLoad(effects))
	assert.Equal(t, []string{"A"}, chatIDs(s.Threads))
}

func TestSessionChangeResetsState(t *testing.T) {
	s := loaded(t, record("A", "eA", domain.StatusPending, msg("a", 10)))

	s, effects := Reduce(s, RefreshRequested{UserID: "u2"})
	load := loadEffect(t, effects)
	assert.Equal(t, "u2", load.UserID)
	assert.Empty(t, s.Threads)
	assert.True(t, s.Loading())

	s, effects = Reduce(s, RefreshRequested{})
	assert.Equal(t, []Effect{Notify{}}, effects)
	assert.Empty(t, s.UserID)

	// The u2 load finishing after sign-out is stale.
	fetched, _ := Build([]domain.ThreadRecord{record("X", "eX", domain.StatusPending)})
	s, _ = Reduce(s, LoadFinished{Gen: load.Gen, Threads: fetched})
	assert.Empty(t, s.Threads)
}

func TestInvariantsHoldAcrossEventSequence(t *testing.T) {
	s := loaded(t,
		record("A", "eA", domain.StatusPending, msg("a", 10)),
		record("B", "eB", domain.StatusPending, msg("b", 5)),
		domain.ThreadRecord{ChatID: "C", Events: []domain.EventSummary{{ID: "eC"}}},
		record("D", "eD", domain.StatusPending, msg("d", 10)),
	)

	events := []Event{
		MessageInserted{ChatID: "C", Content: "c1", CreatedAt: at(10)},
		MessageInserted{ChatID: "B", Content: "b1", CreatedAt: at(12)},
		MessageInserted{ChatID: "B", Content: "b0", CreatedAt: at(11)},
		EventStatusChanged{EventID: "eD", Status: domain.StatusCompleted},
		MessageInserted{ChatID: "D", Content: "gone", CreatedAt: at(50)},
		MessageInserted{ChatID: "A", Content: "a1", CreatedAt: at(12)},
		MembershipCreated{ChatID: "E"},
		MessageInserted{ChatID: "nope", Content: "?", CreatedAt: at(99)},
	}
	for _, ev := range events {
		s, _ = Reduce(s, ev)
		assertInvariants(t, s)
	}
	assert.Equal(t, []string{"A", "B", "C"}, chatIDs(s.Threads))
}
