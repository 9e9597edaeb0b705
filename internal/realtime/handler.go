package realtime

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/golang/glog"
	"github.com/gorilla/websocket"
)

const (
	sendBuffer   = 64
	writeTimeout = 10 * time.Second
	authzTimeout = 5 * time.Second
)

// Frame types on the realtime socket.
const (
	FrameSubscribe   = "subscribe"
	FrameUnsubscribe = "unsubscribe"
	FrameSubscribed  = "subscribed"
	FrameChange      = "change"
	FrameError       = "error"
)

// Frame is one JSON message on the realtime socket.
type Frame struct {
	Type    string  `json:"type"`
	Ref     string  `json:"ref,omitempty"`
	Table   string  `json:"table,omitempty"`
	Event   Kind    `json:"event,omitempty"`
	Filter  string  `json:"filter,omitempty"`
	Change  *Change `json:"change,omitempty"`
	Message string  `json:"message,omitempty"`
}

// Authenticator resolves a bearer token to a user id.
type Authenticator func(ctx context.Context, token string) (string, error)

// Authorizer reports whether the user may receive the change.
type Authorizer func(ctx context.Context, userID string, c Change) bool

type wsAuthError struct {
	status int
	msg    string
}

func (e wsAuthError) Error() string {
	return e.msg
}

func normalizeAllowedOrigins(origins []string) map[string]struct{} {
	res := make(map[string]struct{}, len(origins))
	for _, origin := range origins {
		o := strings.TrimSpace(strings.ToLower(origin))
		if o != "" {
			res[o] = struct{}{}
		}
	}
	return res
}

// makeCheckOrigin admits non-browser clients, which send no Origin header, and
// browser clients whose origin is on the allow list.
func makeCheckOrigin(allowedOrigins []string) func(r *http.Request) bool {
	allowed := normalizeAllowedOrigins(allowedOrigins)

	return func(r *http.Request) bool {
		origin := strings.TrimSpace(strings.ToLower(r.Header.Get("Origin")))
		if origin == "" {
			return true
		}
		if _, ok := allowed[origin]; ok {
			return true
		}

		u, err := url.Parse(origin)
		if err != nil || u.Scheme == "" || u.Host == "" {
			return false
		}
		normalized := strings.ToLower(fmt.Sprintf("%s://%s", u.Scheme, u.Host))
		_, ok := allowed[normalized]
		return ok
	}
}

func extractToken(r *http.Request) (string, error) {
	authHeader := strings.TrimSpace(r.Header.Get("Authorization"))
	if strings.HasPrefix(strings.ToLower(authHeader), "bearer ") {
		token := strings.TrimSpace(authHeader[len("Bearer "):])
		if token != "" {
			return token, nil
		}
	}

	protocolHeader := r.Header.Get("Sec-WebSocket-Protocol")
	if protocolHeader != "" {
		parts := strings.Split(protocolHeader, ",")
		for i := range parts {
			parts[i] = strings.TrimSpace(parts[i])
		}
		if len(parts) >= 2 && strings.EqualFold(parts[0], "bearer") && parts[1] != "" {
			return parts[1], nil
		}
	}

	return "", wsAuthError{status: http.StatusUnauthorized, msg: "missing bearer token"}
}

// MakeHandler returns the HTTP handler for the realtime endpoint. After a
// bearer-token handshake the client sends subscribe/unsubscribe frames and
// receives change frames for every matching change it is authorized to see.
func MakeHandler(broker *Broker, authn Authenticator, authz Authorizer, allowedOrigins []string) http.HandlerFunc {
	checkOrigin := makeCheckOrigin(allowedOrigins)
	upgrader := websocket.Upgrader{
		CheckOrigin:  checkOrigin,
		Subprotocols: []string{"bearer"},
	}

	return func(w http.ResponseWriter, r *http.Request) {
		if !checkOrigin(r) {
			http.Error(w, "origin not allowed", http.StatusForbidden)
			return
		}

		token, err := extractToken(r)
		if err != nil {
			var authErr wsAuthError
			if errors.As(err, &authErr) {
				http.Error(w, authErr.msg, authErr.status)
				return
			}
			http.Error(w, "unauthorized", http.StatusUnauthorized)
			return
		}
		userID, err := authn(r.Context(), token)
		if err != nil || userID == "" {
			http.Error(w, "invalid token", http.StatusUnauthorized)
			return
		}

		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}

		// The request context is not tied to the hijacked connection.
		ctx, cancel := context.WithCancel(context.Background())
		s := &session{
			userID:  userID,
			conn:    conn,
			broker:  broker,
			authz:   authz,
			send:    make(chan Frame, sendBuffer),
			pending: make(chan pendingChange, sendBuffer),
			subs:    make(map[string]Subscription),
			ctx:     ctx,
			cancel:  cancel,
		}
		glog.V(1).Infof("realtime: user %s connected", userID)
		go s.writeLoop()
		go s.authorizeLoop()
		s.readLoop()
		glog.V(1).Infof("realtime: user %s disconnected", userID)
	}
}

type session struct {
	userID  string
	conn    *websocket.Conn
	broker  *Broker
	authz   Authorizer
	send    chan Frame
	pending chan pendingChange
	subs    map[string]Subscription
	ctx     context.Context
	cancel  context.CancelFunc
}

// pendingChange is a matched change waiting for the authorization check.
type pendingChange struct {
	ref    string
	change Change
}

func (s *session) readLoop() {
	defer func() {
		s.cancel()
		for _, sub := range s.subs {
			sub.Unsubscribe()
		}
		s.conn.Close()
	}()

	for {
		var f Frame
		if err := s.conn.ReadJSON(&f); err != nil {
			return
		}
		switch f.Type {
		case FrameSubscribe:
			s.subscribe(f)
		case FrameUnsubscribe:
			if sub, ok := s.subs[f.Ref]; ok {
				sub.Unsubscribe()
				delete(s.subs, f.Ref)
			}
		default:
			glog.Warningf("realtime: unknown frame type %q from user %s", f.Type, s.userID)
			s.enqueue(Frame{Type: FrameError, Ref: f.Ref, Message: "unknown frame type"})
		}
	}
}

func (s *session) subscribe(f Frame) {
	if f.Ref == "" || f.Table == "" {
		s.enqueue(Frame{Type: FrameError, Ref: f.Ref, Message: "subscribe requires ref and table"})
		return
	}
	if _, dup := s.subs[f.Ref]; dup {
		s.enqueue(Frame{Type: FrameError, Ref: f.Ref, Message: "ref already in use"})
		return
	}
	filter, err := ParseFilter(f.Filter)
	if err != nil {
		s.enqueue(Frame{Type: FrameError, Ref: f.Ref, Message: err.Error()})
		return
	}

	ref := f.Ref
	spec := Spec{Table: f.Table, Kind: f.Event, Filter: filter}
	sub, err := s.broker.Subscribe(s.ctx, spec, func(c Change) {
		s.deliver(pendingChange{ref: ref, change: c})
	})
	if err != nil {
		s.enqueue(Frame{Type: FrameError, Ref: ref, Message: err.Error()})
		return
	}
	s.subs[ref] = sub
	s.enqueue(Frame{Type: FrameSubscribed, Ref: ref})
}

// deliver runs on the publisher's goroutine. The authorization check happens
// later in authorizeLoop.
func (s *session) deliver(p pendingChange) {
	select {
	case s.pending <- p:
	case <-s.ctx.Done():
	default:
		s.overflow()
	}
}

func (s *session) authorizeLoop() {
	for {
		select {
		case <-s.ctx.Done():
			return
		case p := <-s.pending:
			if !s.authorized(p.change) {
				continue
			}
			change := p.change
			s.enqueue(Frame{Type: FrameChange, Ref: p.ref, Change: &change})
		}
	}
}

func (s *session) authorized(c Change) bool {
	if s.authz == nil {
		return true
	}
	ctx, cancel := context.WithTimeout(s.ctx, authzTimeout)
	defer cancel()
	return s.authz(ctx, s.userID, c)
}

// enqueue never blocks: a client that cannot keep up is disconnected.
func (s *session) enqueue(f Frame) {
	select {
	case s.send <- f:
	case <-s.ctx.Done():
	default:
		s.overflow()
	}
}

func (s *session) overflow() {
	glog.Warningf("realtime: send buffer full for user %s, closing", s.userID)
	s.cancel()
	s.conn.Close()
}

func (s *session) writeLoop() {
	for {
		select {
		case <-s.ctx.Done():
			return
		case f := <-s.send:
			_ = s.conn.SetWriteDeadline(time.Now().Add(writeTimeout))
			if err := s.conn.WriteJSON(f); err != nil {
				glog.V(1).Infof("realtime: write to user %s: %v", s.userID, err)
				s.cancel()
				s.conn.Close()
				return
			}
		}
	}
}
