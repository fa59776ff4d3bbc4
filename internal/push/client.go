// Package push receives server push events over a WebSocket and fans
// them out to per-event-type handlers.
package push

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/url"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/net/websocket"
	"golang.org/x/time/rate"

	"tecky-admin/internal/events"
	"tecky-admin/internal/logger"
)

var ErrClosed = errors.New("push: client closed")

// Handlers maps an event type to the callback for its data. Callbacks run
// on the client's read goroutine in delivery order and must not block.
type Handlers map[string]func(data json.RawMessage)

type Options struct {
	// Origin sent with the handshake. Defaults to the server's http(s) URL.
	Origin string
	// ReconnectEvery is the minimum spacing between dial attempts.
	ReconnectEvery time.Duration
	// OnReconnect runs after every successful re-dial (not the first
	// connect). Events sent while disconnected are lost, so this is where
	// callers resync.
	OnReconnect func()
	Logger      *zap.Logger
}

type Client struct {
	url    string
	origin string
	lim    *rate.Limiter
	log    *zap.Logger

	onReconnect func()

	mu      sync.Mutex
	subs    map[uint64]Handlers
	nextSub uint64
	conn    *websocket.Conn
	cancel  context.CancelFunc
	done    chan struct{}
	running bool
	closed  bool
}

func New(url string, opts Options) *Client {
	every := opts.ReconnectEvery
	if every <= 0 {
		every = 3 * time.Second
	}
	origin := opts.Origin
	if origin == "" {
		origin = httpOrigin(url)
	}
	log := opts.Logger
	if log == nil {
		log = zap.NewNop()
	}
	return &Client{
		url:         url,
		origin:      origin,
		lim:         rate.NewLimiter(rate.Every(every), 1),
		log:         log.With(logger.Component("push")),
		onReconnect: opts.OnReconnect,
		subs:        make(map[uint64]Handlers),
	}
}

func httpOrigin(wsURL string) string {
	u, err := url.Parse(wsURL)
	if err != nil || u.Host == "" {
		return "http://localhost"
	}
	scheme := "http"
	if u.Scheme == "wss" {
		scheme = "https"
	}
	return scheme + "://" + u.Host
}

// Subscribe registers h until the returned function is called. The
// returned function is safe to call more than once.
func (c *Client) Subscribe(h Handlers) (unsubscribe func()) {
	c.mu.Lock()
	id := c.nextSub
	c.nextSub++
	c.subs[id] = h
	c.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			c.mu.Lock()
			delete(c.subs, id)
			c.mu.Unlock()
		})
	}
}

// Connect dials the server and starts delivering events. A failed first
// dial is returned; later disconnects are retried until Close.
func (c *Client) Connect(ctx context.Context) error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return ErrClosed
	}
	if c.running {
		c.mu.Unlock()
		return nil
	}
	c.running = true
	runCtx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	c.cancel = cancel
	c.done = done
	c.mu.Unlock()

	// Close aborts a dial in progress
	dialCtx, stopDial := context.WithCancel(ctx)
	unhook := context.AfterFunc(runCtx, stopDial)
	conn, err := c.dial(dialCtx)
	unhook()
	stopDial()
	if err == nil && !c.setConn(conn) {
		err = ErrClosed
	}
	if err != nil {
		cancel()
		close(done)
		c.mu.Lock()
		c.running = false
		c.cancel = nil
		c.done = nil
		c.mu.Unlock()
		return err
	}

	c.log.Info("connected", zap.String("url", c.url))
	go c.run(runCtx, conn, done)
	return nil
}

// Close disconnects and stops reconnecting. It waits for the read loop so
// no handler runs after Close returns.
func (c *Client) Close() error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil
	}
	c.closed = true
	cancel, conn, done := c.cancel, c.conn, c.done
	c.conn = nil
	c.mu.Unlock()

	if cancel != nil {
		cancel()
	}
	if conn != nil {
		_ = conn.Close()
	}
	if done != nil {
		<-done
	}
	return nil
}

func (c *Client) dial(ctx context.Context) (*websocket.Conn, error) {
	if err := c.lim.Wait(ctx); err != nil {
		return nil, err
	}
	cfg, err := websocket.NewConfig(c.url, c.origin)
	if err != nil {
		return nil, fmt.Errorf("push: %w", err)
	}
	conn, err := cfg.DialContext(ctx)
	if err != nil {
		return nil, fmt.Errorf("push: dial %s: %w", c.url, err)
	}
	return conn, nil
}

// setConn installs conn unless the client was closed meanwhile.
func (c *Client) setConn(conn *websocket.Conn) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		_ = conn.Close()
		return false
	}
	c.conn = conn
	return true
}

func (c *Client) run(ctx context.Context, conn *websocket.Conn, done chan struct{}) {
	defer close(done)
	for {
		err := c.readLoop(conn)
		_ = conn.Close()
		if ctx.Err() != nil {
			return
		}
		c.log.Warn("disconnected; reconnecting", logger.Err(err))

		for {
			conn, err = c.dial(ctx)
			if err == nil {
				break
			}
			if ctx.Err() != nil {
				return
			}
			c.log.Warn("reconnect failed", logger.Err(err))
		}
		if !c.setConn(conn) {
			return
		}
		c.log.Info("reconnected")
		if c.onReconnect != nil {
			c.onReconnect()
		}
	}
}

func (c *Client) readLoop(conn *websocket.Conn) error {
	for {
		var msg []byte
		if err := websocket.Message.Receive(conn, &msg); err != nil {
			return err
		}
		ev, err := events.Decode(msg)
		if err != nil {
			c.log.Warn("bad push message", logger.Err(err))
			continue
		}
		c.dispatch(ev)
	}
}

func (c *Client) dispatch(ev events.Event) {
	if ev.Type == events.TypePing {
		return
	}
	c.mu.Lock()
	var fns []func(json.RawMessage)
	for _, h := range c.subs {
		if fn := h[ev.Type]; fn != nil {
			fns = append(fns, fn)
		}
	}
	c.mu.Unlock()

	for _, fn := range fns {
		fn(ev.Data)
	}
}
