package realtime

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"
)

// Kind is the kind of row change.
type Kind string

const (
	KindInsert Kind = "INSERT"
	KindUpdate Kind = "UPDATE"
	KindDelete Kind = "DELETE"
	KindAny    Kind = "*"
)

// Table names that carry change notifications.
const (
	TableMessages         = "messages"
	TableChatParticipants = "chat_participants"
	TableEvents           = "events"
	TableEventAttendees   = "event_attendees"
	TablePosts            = "user_media"
	TablePostLikes        = "post_likes"
)

// ErrClosed is returned when subscribing to a closed broker or client.
var ErrClosed = errors.New("realtime: closed")

// Record is a row as a JSON object.
type Record map[string]any

// Change is one inserted, updated or deleted row.
type Change struct {
	Table      string    `json:"table"`
	Kind       Kind      `json:"kind"`
	New        Record    `json:"new,omitempty"`
	Old        Record    `json:"old,omitempty"`
	CommitTime time.Time `json:"commit_time"`
}

// NewChange renders row (any JSON-encodable value) as the change's new record.
// For deletes the row becomes the old record.
func NewChange(table string, kind Kind, row any) (Change, error) {
	rec, err := toRecord(row)
	if err != nil {
		return Change{}, fmt.Errorf("encode %s row: %w", table, err)
	}
	c := Change{Table: table, Kind: kind, CommitTime: time.Now().UTC()}
	if kind == KindDelete {
		c.Old = rec
	} else {
		c.New = rec
	}
	return c, nil
}

// Decode decodes the change's row into v: the new record, or the old one for
// deletes.
func (c Change) Decode(v any) error {
	rec := c.New
	if c.Kind == KindDelete {
		rec = c.Old
	}
	b, err := json.Marshal(rec)
	if err != nil {
		return err
	}
	return json.Unmarshal(b, v)
}

func (c Change) row() Record {
	if c.Kind == KindDelete {
		return c.Old
	}
	return c.New
}

func toRecord(row any) (Record, error) {
	if rec, ok := row.(Record); ok {
		return rec, nil
	}
	b, err := json.Marshal(row)
	if err != nil {
		return nil, err
	}
	var rec Record
	if err := json.Unmarshal(b, &rec); err != nil {
		return nil, err
	}
	return rec, nil
}

// Filter is an equality predicate on one column, written as "column=eq.value".
type Filter struct {
	Column string
	Value  string
}

// ParseFilter parses "column=eq.value". An empty string yields a nil filter.
func ParseFilter(s string) (*Filter, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil, nil
	}
	col, rest, ok := strings.Cut(s, "=")
	if !ok || col == "" {
		return nil, fmt.Errorf("invalid filter %q", s)
	}
	op, val, ok := strings.Cut(rest, ".")
	if !ok || op != "eq" {
		return nil, fmt.Errorf("unsupported filter operator in %q", s)
	}
	return &Filter{Column: col, Value: val}, nil
}

func (f Filter) String() string {
	return f.Column + "=eq." + f.Value
}

func (f Filter) matches(rec Record) bool {
	v, ok := rec[f.Column]
	if !ok || v == nil {
		return false
	}
	return fmt.Sprint(v) == f.Value
}

// Spec selects the changes a subscriber receives.
type Spec struct {
	Table  string
	Kind   Kind
	Filter *Filter
}

// Matches reports whether c is selected by the spec.
func (s Spec) Matches(c Change) bool {
	if s.Table != c.Table {
		return false
	}
	if s.Kind != "" && s.Kind != KindAny && s.Kind != c.Kind {
		return false
	}
	if s.Filter != nil && !s.Filter.matches(c.row()) {
		return false
	}
	return true
}

func (s Spec) String() string {
	kind := s.Kind
	if kind == "" {
		kind = KindAny
	}
	if s.Filter == nil {
		return fmt.Sprintf("%s:%s", s.Table, kind)
	}
	return fmt.Sprintf("%s:%s:%s", s.Table, kind, s.Filter)
}

// Subscription is a live change subscription.
type Subscription interface {
	// Unsubscribe stops delivery. It is safe to call more than once.
	Unsubscribe()
	// Done is closed once the subscription has ended, whether through
	// Unsubscribe or because its transport failed.
	Done() <-chan struct{}
}

// Subscriber is the change-subscription primitive.
type Subscriber interface {
	Subscribe(ctx context.Context, spec Spec, fn func(Change)) (Subscription, error)
}

// Publisher accepts committed changes.
type Publisher interface {
	Publish(c Change)
}
