package threads

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"sync"
	"time"

	"github.com/golang/glog"

	"activitychat/internal/domain"
	"activitychat/internal/realtime"
)

// ErrNoSession is returned by a SessionSource when nobody is signed in.
var ErrNoSession = errors.New("threads: no session")

// Session is the signed-in user.
type Session struct {
	UserID      string
	AccessToken string
}

// SessionSource returns the current session, or ErrNoSession.
type SessionSource interface {
	CurrentSession(ctx context.Context) (Session, error)
}

// Source fetches a user's memberships joined to their events and messages.
type Source interface {
	FetchThreads(ctx context.Context, userID string) ([]domain.ThreadRecord, error)
}

const (
	eventBuffer  = 64
	fetchTimeout = 30 * time.Second
)

// Reconciler owns one user's thread list. A single goroutine applies every
// load result and notification through Reduce.
type Reconciler struct {
	source   Source
	sub      realtime.Subscriber
	sessions SessionSource

	events    chan Event
	refreshMu sync.Mutex
	subs      *subscriptions

	mu       sync.RWMutex
	threads  []Thread
	loading  bool
	watchers map[int]chan []Thread
	nextW    int
	closed   bool

	startOnce sync.Once
	ctx       context.Context
	cancel    context.CancelFunc
	wg        sync.WaitGroup
	done      chan struct{}
}

// New returns an idle reconciler. Start begins loading and subscribing.
func New(source Source, sub realtime.Subscriber, sessions SessionSource) *Reconciler {
	ctx, cancel := context.WithCancel(context.Background())
	r := &Reconciler{
		source:   source,
		sub:      sub,
		sessions: sessions,
		events:   make(chan Event, eventBuffer),
		watchers: make(map[int]chan []Thread),
		ctx:      ctx,
		cancel:   cancel,
		done:     make(chan struct{}),
	}
	r.subs = &subscriptions{r: r}
	return r
}

// Start runs the reconciler until ctx is cancelled or Close is called, and
// performs the first load.
func (r *Reconciler) Start(ctx context.Context) {
	r.startOnce.Do(func() {
		go func() {
			select {
			case <-ctx.Done():
				r.Close()
			case <-r.ctx.Done():
			}
		}()
		go r.run()
		r.Refresh()
	})
}

// Refresh reloads the list and re-establishes any subscription that ended.
func (r *Reconciler) Refresh() {
	r.spawn(func() { r.refresh(r.ctx) })
}

// spawn runs fn on a goroutine that Close waits for.
func (r *Reconciler) spawn(fn func()) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closed {
		return
	}
	r.wg.Add(1)
	go func() {
		defer r.wg.Done()
		fn()
	}()
}

func (r *Reconciler) refresh(ctx context.Context) {
	r.refreshMu.Lock()
	defer r.refreshMu.Unlock()

	sess, err := r.sessions.CurrentSession(ctx)
	switch {
	case errors.Is(err, ErrNoSession):
		r.subs.closeAll()
		r.post(RefreshRequested{})
		return
	case err != nil:
		if ctx.Err() == nil {
			glog.Errorf("threads: get session: %v", err)
		}
		return
	}

	r.subs.ensure(ctx, sess.UserID)
	r.post(RefreshRequested{UserID: sess.UserID})
}

// Threads returns a snapshot of the list.
func (r *Reconciler) Threads() []Thread {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return slices.Clone(r.threads)
}

// Loading reports whether the first load is still in flight.
func (r *Reconciler) Loading() bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.loading
}

// Watch returns a channel that receives the latest list after every change.
// Slow readers only see the newest list. The returned func stops the watch.
func (r *Reconciler) Watch() (<-chan []Thread, func()) {
	ch := make(chan []Thread, 1)

	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closed {
		close(ch)
		return ch, func() {}
	}
	id := r.nextW
	r.nextW++
	r.watchers[id] = ch

	var once sync.Once
	return ch, func() {
		once.Do(func() {
			r.mu.Lock()
			defer r.mu.Unlock()
			if w, ok := r.watchers[id]; ok {
				delete(r.watchers, id)
				close(w)
			}
		})
	}
}

// Close stops the reconciler, its subscriptions and any in-flight load. No
// load result is applied after Close returns.
func (r *Reconciler) Close() {
	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		return
	}
	r.closed = true
	r.mu.Unlock()

	r.cancel()
	r.subs.closeAll()
	r.wg.Wait()

	r.mu.Lock()
	for id, w := range r.watchers {
		delete(r.watchers, id)
		close(w)
	}
	r.mu.Unlock()

	// Never started: nothing else closes done.
	r.startOnce.Do(func() { close(r.done) })
}

// Done is closed once the reconciler has stopped.
func (r *Reconciler) Done() <-chan struct{} {
	return r.done
}

func (r *Reconciler) post(ev Event) {
	select {
	case r.events <- ev:
	case <-r.ctx.Done():
	}
}

func (r *Reconciler) run() {
	defer close(r.done)

	var state State
	for {
		select {
		case <-r.ctx.Done():
			return
		case ev := <-r.events:
			next, effects := Reduce(state, ev)
			state = next
			for _, eff := range effects {
				r.execute(state, eff)
			}
		}
	}
}

func (r *Reconciler) execute(s State, eff Effect) {
	switch eff := eff.(type) {
	case LoadThreads:
		r.setLoading(s.Loading())
		r.spawn(func() { r.load(eff) })
	case ReportError:
		glog.Errorf("threads: load #%d: %v", eff.Gen, eff.Err)
	case Notify:
		r.publish(s)
	}
}

func (r *Reconciler) load(eff LoadThreads) {
	ctx, cancel := context.WithTimeout(r.ctx, fetchTimeout)
	defer cancel()

	records, err := r.source.FetchThreads(ctx, eff.UserID)
	if r.ctx.Err() != nil {
		return
	}
	if err != nil {
		r.post(LoadFinished{Gen: eff.Gen, Err: fmt.Errorf("fetch threads: %w", err)})
		return
	}
	threads, hidden := Build(records)
	glog.V(1).Infof("threads: load #%d: %d threads, %d hidden", eff.Gen, len(threads), len(hidden))
	r.post(LoadFinished{Gen: eff.Gen, Threads: threads, Hidden: hidden})
}

func (r *Reconciler) publish(s State) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closed || r.ctx.Err() != nil {
		return
	}
	r.threads = slices.Clone(s.Threads)
	r.loading = s.Loading()
	for _, w := range r.watchers {
		select {
		case <-w:
		default:
		}
		w <- slices.Clone(s.Threads)
	}
}

func (r *Reconciler) setLoading(v bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.loading = v
}

// subscriptions holds the three live feeds for the current user.
type subscriptions struct {
	r *Reconciler

	mu     sync.Mutex
	userID string
	active map[string]realtime.Subscription
	closed bool
}

type feed struct {
	name string
	spec func(userID string) realtime.Spec
	fn   func(r *Reconciler, c realtime.Change)
}

var feeds = []feed{
	{
		name: "messages",
		spec: func(string) realtime.Spec {
			return realtime.Spec{Table: realtime.TableMessages, Kind: realtime.KindInsert}
		},
		fn: func(r *Reconciler, c realtime.Change) {
			var m domain.Message
			if err := c.Decode(&m); err != nil {
				glog.Warningf("threads: decode message change: %v", err)
				return
			}
			r.post(MessageInserted{ChatID: m.ChatID, Content: m.Content, CreatedAt: m.CreatedAt})
		},
	},
	{
		name: "memberships",
		spec: func(userID string) realtime.Spec {
			return realtime.Spec{
				Table:  realtime.TableChatParticipants,
				Kind:   realtime.KindInsert,
				Filter: &realtime.Filter{Column: "user_id", Value: userID},
			}
		},
		fn: func(r *Reconciler, c realtime.Change) {
			var p domain.ChatParticipant
			if err := c.Decode(&p); err != nil {
				glog.Warningf("threads: decode membership change: %v", err)
				return
			}
			r.post(MembershipCreated{ChatID: p.ChatID})
		},
	},
	{
		name: "event status",
		spec: func(string) realtime.Spec {
			return realtime.Spec{Table: realtime.TableEvents, Kind: realtime.KindUpdate}
		},
		fn: func(r *Reconciler, c realtime.Change) {
			var e domain.Event
			if err := c.Decode(&e); err != nil {
				glog.Warningf("threads: decode event change: %v", err)
				return
			}
			r.post(EventStatusChanged{EventID: e.ID, Status: e.Status})
		},
	},
}

// ensure subscribes every feed that is missing or has ended. Switching users
// drops the old user's feeds first.
func (s *subscriptions) ensure(ctx context.Context, userID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return
	}
	if userID != s.userID {
		s.unsubscribeLocked()
		s.userID = userID
	}
	if s.active == nil {
		s.active = make(map[string]realtime.Subscription)
	}

	for _, f := range feeds {
		if sub, ok := s.active[f.name]; ok {
			select {
			case <-sub.Done():
				glog.Warningf("threads: %s subscription ended, resubscribing", f.name)
			default:
				continue
			}
		}
		fn := f.fn
		sub, err := s.r.sub.Subscribe(ctx, f.spec(userID), func(c realtime.Change) { fn(s.r, c) })
		if err != nil {
			delete(s.active, f.name)
			if ctx.Err() == nil {
				glog.Errorf("threads: subscribe %s: %v", f.name, err)
			}
			continue
		}
		s.active[f.name] = sub
	}
}

func (s *subscriptions) closeAll() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.unsubscribeLocked()
	s.userID = ""
	if s.r.ctx.Err() != nil {
		s.closed = true
	}
}

func (s *subscriptions) unsubscribeLocked() {
	for name, sub := range s.active {
		sub.Unsubscribe()
		delete(s.active, name)
	}
}
