package realtime

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"sync"

	"github.com/golang/glog"
	"github.com/gorilla/websocket"
)

// Client is a Subscriber backed by a realtime socket. All subscriptions share
// one connection. When the connection fails every subscription ends (its Done
// channel closes); the next Subscribe dials a fresh connection.
type Client struct {
	url    string
	dialer *websocket.Dialer

	mu     sync.Mutex
	token  string
	conn   *clientConn
	closed bool
}

var _ Subscriber = (*Client)(nil)

// SetToken replaces the bearer token used for the next dial. An open
// connection keeps the token it was authenticated with.
func (c *Client) SetToken(token string) {
	c.mu.Lock()
	c.token = token
	c.mu.Unlock()
}

// NewClient returns a client for the realtime endpoint at url (ws:// or wss://).
func NewClient(url, token string) *Client {
	return &Client{
		url:    url,
		token:  token,
		dialer: websocket.DefaultDialer,
	}
}

// Subscribe registers fn for changes matching spec and waits for the server to
// acknowledge the subscription.
func (c *Client) Subscribe(ctx context.Context, spec Spec, fn func(Change)) (Subscription, error) {
	cc, err := c.connection(ctx)
	if err != nil {
		return nil, err
	}
	return cc.subscribe(ctx, spec, fn)
}

// Close closes the connection and ends every subscription.
func (c *Client) Close() error {
	c.mu.Lock()
	cc := c.conn
	c.conn = nil
	c.closed = true
	c.mu.Unlock()

	if cc != nil {
		cc.shutdown(ErrClosed)
	}
	return nil
}

func (c *Client) connection(ctx context.Context) (*clientConn, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return nil, ErrClosed
	}
	if c.conn != nil {
		select {
		case <-c.conn.done:
			c.conn = nil
		default:
			return c.conn, nil
		}
	}

	header := http.Header{}
	header.Set("Authorization", "Bearer "+c.token)
	ws, resp, err := c.dialer.DialContext(ctx, c.url, header)
	if err != nil {
		if resp != nil {
			return nil, fmt.Errorf("dial realtime: %s: %w", resp.Status, err)
		}
		return nil, fmt.Errorf("dial realtime: %w", err)
	}

	cc := &clientConn{
		ws:      ws,
		subs:    make(map[string]*clientSub),
		pending: make(map[string]chan error),
		done:    make(chan struct{}),
	}
	go cc.readLoop()
	c.conn = cc
	return cc, nil
}

type clientConn struct {
	ws      *websocket.Conn
	writeMu sync.Mutex

	mu      sync.Mutex
	nextRef uint64
	subs    map[string]*clientSub
	pending map[string]chan error
	err     error
	done    chan struct{}
	once    sync.Once
}

type clientSub struct {
	ref  string
	conn *clientConn
	fn   func(Change)
	done chan struct{}
	once sync.Once
}

func (s *clientSub) Done() <-chan struct{} {
	return s.done
}

func (s *clientSub) Unsubscribe() {
	s.conn.mu.Lock()
	_, live := s.conn.subs[s.ref]
	delete(s.conn.subs, s.ref)
	delete(s.conn.pending, s.ref)
	s.conn.mu.Unlock()

	if live {
		if err := s.conn.write(Frame{Type: FrameUnsubscribe, Ref: s.ref}); err != nil {
			glog.V(1).Infof("realtime: unsubscribe %s: %v", s.ref, err)
		}
	}
	s.end()
}

func (s *clientSub) end() {
	s.once.Do(func() { close(s.done) })
}

func (cc *clientConn) write(f Frame) error {
	cc.writeMu.Lock()
	defer cc.writeMu.Unlock()
	return cc.ws.WriteJSON(f)
}

func (cc *clientConn) subscribe(ctx context.Context, spec Spec, fn func(Change)) (Subscription, error) {
	ack := make(chan error, 1)

	cc.mu.Lock()
	if cc.err != nil {
		err := cc.err
		cc.mu.Unlock()
		return nil, err
	}
	cc.nextRef++
	ref := strconv.FormatUint(cc.nextRef, 10)
	sub := &clientSub{ref: ref, conn: cc, fn: fn, done: make(chan struct{})}
	cc.subs[ref] = sub
	cc.pending[ref] = ack
	cc.mu.Unlock()

	f := Frame{Type: FrameSubscribe, Ref: ref, Table: spec.Table, Event: spec.Kind}
	if spec.Filter != nil {
		f.Filter = spec.Filter.String()
	}
	if err := cc.write(f); err != nil {
		cc.drop(ref)
		return nil, fmt.Errorf("send subscribe: %w", err)
	}

	select {
	case err := <-ack:
		if err != nil {
			cc.drop(ref)
			return nil, err
		}
		return sub, nil
	case <-cc.done:
		cc.drop(ref)
		return nil, cc.failure()
	case <-ctx.Done():
		sub.Unsubscribe()
		return nil, ctx.Err()
	}
}

func (cc *clientConn) drop(ref string) {
	cc.mu.Lock()
	sub := cc.subs[ref]
	delete(cc.subs, ref)
	delete(cc.pending, ref)
	cc.mu.Unlock()
	if sub != nil {
		sub.end()
	}
}

func (cc *clientConn) failure() error {
	cc.mu.Lock()
	defer cc.mu.Unlock()
	if cc.err == nil {
		return ErrClosed
	}
	return cc.err
}

func (cc *clientConn) readLoop() {
	for {
		var f Frame
		if err := cc.ws.ReadJSON(&f); err != nil {
			cc.shutdown(fmt.Errorf("realtime connection lost: %w", err))
			return
		}

		switch f.Type {
		case FrameSubscribed, FrameError:
			cc.mu.Lock()
			ack, ok := cc.pending[f.Ref]
			delete(cc.pending, f.Ref)
			cc.mu.Unlock()
			if ok {
				if f.Type == FrameError {
					ack <- errors.New(f.Message)
				} else {
					ack <- nil
				}
			} else if f.Type == FrameError {
				glog.Warningf("realtime: server error on ref %q: %s", f.Ref, f.Message)
			}
		case FrameChange:
			if f.Change == nil {
				continue
			}
			cc.mu.Lock()
			sub := cc.subs[f.Ref]
			cc.mu.Unlock()
			if sub != nil {
				sub.fn(*f.Change)
			}
		}
	}
}

func (cc *clientConn) shutdown(err error) {
	cc.once.Do(func() {
		cc.mu.Lock()
		cc.err = err
		subs := cc.subs
		cc.subs = make(map[string]*clientSub)
		cc.pending = make(map[string]chan error)
		cc.mu.Unlock()

		cc.ws.Close()
		close(cc.done)
		for _, s := range subs {
			s.end()
		}
	})
}
