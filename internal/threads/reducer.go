package threads

import (
	"maps"
	"slices"
	"time"

	"activitychat/internal/domain"
)

// Event is an input to Reduce.
type Event interface {
	isEvent()
}

// RefreshRequested asks for a fresh load for UserID. An empty UserID means
// there is no session and the list is cleared.
type RefreshRequested struct {
	UserID string
}

// LoadFinished carries the result of the load with generation Gen.
type LoadFinished struct {
	Gen     uint64
	Threads []Thread
	Hidden  map[string]struct{}
	Err     error
}

// MessageInserted is a new message in some chat.
type MessageInserted struct {
	ChatID    string
	Content   string
	CreatedAt time.Time
}

// MembershipCreated is a new chat membership of the current user.
type MembershipCreated struct {
	ChatID string
}

// EventStatusChanged is an update of an event's status.
type EventStatusChanged struct {
	EventID string
	Status  string
}

func (RefreshRequested) isEvent()   {}
func (LoadFinished) isEvent()       {}
func (MessageInserted) isEvent()    {}
func (MembershipCreated) isEvent()  {}
func (EventStatusChanged) isEvent() {}

// Effect is an action Reduce asks its caller to perform.
type Effect interface {
	isEffect()
}

// LoadThreads starts a fetch whose result must come back as LoadFinished
// with the same Gen.
type LoadThreads struct {
	Gen    uint64
	UserID string
}

// Notify publishes the new list to observers.
type Notify struct{}

// ReportError logs a failed load. The list is left as it was.
type ReportError struct {
	Gen uint64
	Err error
}

func (LoadThreads) isEffect() {}
func (Notify) isEffect()      {}
func (ReportError) isEffect() {}

// statusOverride is a status seen live while the load with generation gen
// was the newest issued. Loads with a generation up to gen may predate it.
type statusOverride struct {
	status string
	gen    uint64
}

// State is the reconciler's state. The zero value is an empty, unloaded list.
// Reduce never mutates the State it is given.
type State struct {
	UserID  string
	Threads []Thread
	Loaded  bool

	issued   uint64
	finished uint64
	applied  uint64

	// hidden holds ids of events whose threads are left out as completed.
	hidden    map[string]struct{}
	overrides map[string]statusOverride
}

// Loading reports whether no list exists yet and a load is in flight.
func (s State) Loading() bool {
	return !s.Loaded && s.issued > s.finished
}

// Hidden reports whether the event's thread is left out as completed.
func (s State) Hidden(eventID string) bool {
	_, ok := s.hidden[eventID]
	return ok
}

func (s State) clone() State {
	s.Threads = slices.Clone(s.Threads)
	s.hidden = maps.Clone(s.hidden)
	s.overrides = maps.Clone(s.overrides)
	return s
}

func (s *State) issueLoad() Effect {
	s.issued++
	return LoadThreads{Gen: s.issued, UserID: s.UserID}
}

func (s *State) hide(eventID string) {
	if s.hidden == nil {
		s.hidden = make(map[string]struct{})
	}
	s.hidden[eventID] = struct{}{}
}

func (s *State) removeEvent(eventID string) bool {
	before := len(s.Threads)
	s.Threads = slices.DeleteFunc(s.Threads, func(t Thread) bool { return t.EventID == eventID })
	return len(s.Threads) != before
}

// Reduce applies ev to s and returns the next state and the effects to run.
func Reduce(s State, ev Event) (State, []Effect) {
	switch ev := ev.(type) {
	case RefreshRequested:
		return reduceRefresh(s, ev)
	case LoadFinished:
		return reduceLoad(s, ev)
	case MessageInserted:
		return reduceMessage(s, ev)
	case MembershipCreated:
		if s.UserID == "" {
			return s, nil
		}
		next := s.clone()
		return next, []Effect{next.issueLoad()}
	case EventStatusChanged:
		return reduceStatus(s, ev)
	}
	return s, nil
}

func reduceRefresh(s State, ev RefreshRequested) (State, []Effect) {
	if ev.UserID != s.UserID {
		// A different session starts from an empty list. Generations keep
		// counting so results for the old user are stale.
		next := State{UserID: ev.UserID, issued: s.issued, finished: s.issued, applied: s.issued}
		if ev.UserID == "" {
			return next, []Effect{Notify{}}
		}
		return next, []Effect{next.issueLoad(), Notify{}}
	}
	if s.UserID == "" {
		return s, nil
	}
	next := s.clone()
	return next, []Effect{next.issueLoad()}
}

func reduceLoad(s State, ev LoadFinished) (State, []Effect) {
	next := s.clone()
	wasLoading := next.Loading()
	if ev.Gen > next.finished {
		next.finished = ev.Gen
	}
	if ev.Gen <= next.applied || ev.Gen > next.issued {
		return next, loadingChanged(wasLoading, next)
	}
	if ev.Err != nil {
		effects := []Effect{ReportError{Gen: ev.Gen, Err: ev.Err}}
		return next, append(effects, loadingChanged(wasLoading, next)...)
	}

	var effects []Effect
	threads := slices.Clone(ev.Threads)
	hidden := maps.Clone(ev.Hidden)
	if hidden == nil {
		hidden = make(map[string]struct{})
	}

	// Live status changes the fetch may not have seen win over its rows.
	reload := false
	for id, o := range next.overrides {
		if o.gen < ev.Gen {
			delete(next.overrides, id)
			continue
		}
		if o.status == domain.StatusCompleted {
			threads = slices.DeleteFunc(threads, func(t Thread) bool { return t.EventID == id })
			hidden[id] = struct{}{}
		} else if _, ok := hidden[id]; ok {
			delete(hidden, id)
			reload = true
		}
	}

	// Keep in-memory previews that are newer than the fetched ones.
	for i, t := range threads {
		if j := indexOf(next.Threads, t.ChatID); j >= 0 {
			cur := next.Threads[j]
			if cur.LastMessageTime.After(t.LastMessageTime) {
				threads[i].LastMessageText = cur.LastMessageText
				threads[i].LastMessageTime = cur.LastMessageTime
			}
		}
	}
	sortThreads(threads)

	next.Threads = threads
	next.hidden = hidden
	next.applied = ev.Gen
	next.Loaded = true
	effects = append(effects, Notify{})
	if reload {
		effects = append(effects, next.issueLoad())
	}
	return next, effects
}

func loadingChanged(was bool, s State) []Effect {
	if was != s.Loading() {
		return []Effect{Notify{}}
	}
	return nil
}

func reduceMessage(s State, ev MessageInserted) (State, []Effect) {
	if !s.Loaded {
		return s, nil
	}
	i := indexOf(s.Threads, ev.ChatID)
	if i < 0 {
		return s, nil
	}
	cur := s.Threads[i]
	if ev.CreatedAt.Before(cur.LastMessageTime) {
		return s, nil
	}
	if cur.LastMessageText == ev.Content && cur.LastMessageTime.Equal(ev.CreatedAt) {
		return s, nil
	}
	next := s.clone()
	next.Threads[i].LastMessageText = ev.Content
	next.Threads[i].LastMessageTime = ev.CreatedAt
	sortThreads(next.Threads)
	return next, []Effect{Notify{}}
}

func reduceStatus(s State, ev EventStatusChanged) (State, []Effect) {
	if ev.EventID == "" || s.UserID == "" {
		return s, nil
	}
	next := s.clone()
	if next.overrides == nil {
		next.overrides = make(map[string]statusOverride)
	}
	next.overrides[ev.EventID] = statusOverride{status: ev.Status, gen: next.issued}

	if ev.Status == domain.StatusCompleted {
		// Events outside the list stay unknown. A load in flight is
		// covered by the override.
		if next.removeEvent(ev.EventID) {
			next.hide(ev.EventID)
			return next, []Effect{Notify{}}
		}
		return next, nil
	}

	if _, ok := next.hidden[ev.EventID]; ok {
		delete(next.hidden, ev.EventID)
		return next, []Effect{next.issueLoad()}
	}
	return next, nil
}
