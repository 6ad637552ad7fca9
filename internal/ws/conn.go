package ws

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

const (
	writeWait        = 10 * time.Second
	handshakeTimeout = 10 * time.Second
	readLimit        = 4096
)

// State is the connection lifecycle phase. StateFailed is terminal: retries
// are exhausted and recovery needs external intervention.
type State int32

const (
	StateDisconnected State = iota
	StateConnecting
	StateConnected
	StateReconnecting
	StateFailed
)

func (s State) String() string {
	switch s {
	case StateDisconnected:
		return "disconnected"
	case StateConnecting:
		return "connecting"
	case StateConnected:
		return "connected"
	case StateReconnecting:
		return "reconnecting"
	case StateFailed:
		return "failed"
	default:
		return "unknown"
	}
}

var (
	ErrNotConnected   = errors.New("not connected")
	ErrConnectionLost = errors.New("connection lost")
	ErrConnClosed     = errors.New("connection closed")
)

// ackResult is what a pending request resolves to: either the server's ack or
// a transport-level error.
type ackResult struct {
	ack AckBody
	err error
}

// Options configures a Conn. Zero values fall back to the defaults below.
type Options struct {
	URL        string        // ws:// or wss:// endpoint
	MaxRetries int           // reconnect attempts before StateFailed
	RetryDelay time.Duration // fixed delay between attempts
}

const (
	defaultMaxRetries = 5
	defaultRetryDelay = 2 * time.Second
)

// Conn owns the single long-lived socket shared by every view in the process.
// It alone mutates the underlying transport: reconnection never belongs to
// consumers. Push events flow into the Mux; acked requests are correlated by
// the seq field of the envelope.
type Conn struct {
	opts Options
	mux  *Mux

	mu     sync.Mutex // guards ws, state, hooks
	ws     *websocket.Conn
	state  State
	hooks  map[int]func() // run after every successful redial
	hookID int

	writeMu sync.Mutex // serializes frame writes

	seq       uint64
	pendingMu sync.Mutex
	pending   map[uint64]chan ackResult

	done     chan struct{}
	doneOnce sync.Once
}

func NewConn(opts Options, mux *Mux) *Conn {
	if opts.MaxRetries <= 0 {
		opts.MaxRetries = defaultMaxRetries
	}
	if opts.RetryDelay <= 0 {
		opts.RetryDelay = defaultRetryDelay
	}
	return &Conn{
		opts:    opts,
		mux:     mux,
		hooks:   make(map[int]func()),
		pending: make(map[uint64]chan ackResult),
		done:    make(chan struct{}),
	}
}

// Subscribe registers sub for push events scoped to artworkID.
func (c *Conn) Subscribe(artworkID string, sub *Subscriber) {
	c.mux.Subscribe(artworkID, sub)
}

// Unsubscribe removes sub; no callbacks fire on it afterwards.
func (c *Conn) Unsubscribe(artworkID string, sub *Subscriber) {
	c.mux.Unsubscribe(artworkID, sub)
}

// State reports the current lifecycle phase. Consumers poll it; only the Conn
// itself changes it.
func (c *Conn) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// OnReconnect registers fn to run after every successful redial, before the
// reader resumes. Sessions use it to re-join their rooms, since the server
// forgets memberships when the old socket drops. The returned func
// unregisters the hook.
func (c *Conn) OnReconnect(fn func()) (unregister func()) {
	c.mu.Lock()
	c.hookID++
	id := c.hookID
	c.hooks[id] = fn
	c.mu.Unlock()

	return func() {
		c.mu.Lock()
		delete(c.hooks, id)
		c.mu.Unlock()
	}
}

// Connect establishes the transport. Idempotent: while a connection is live or
// being established this is a no-op, so racing views cost one dial total. An
// unreachable or refusing server is retried with the same fixed delay and
// bounded count as a dropped socket; exhaustion is terminal StateFailed.
func (c *Conn) Connect(ctx context.Context) error {
	c.mu.Lock()
	switch c.state {
	case StateConnecting, StateConnected, StateReconnecting:
		c.mu.Unlock()
		return nil
	}
	c.state = StateConnecting
	c.mu.Unlock()

	ws, err := c.dial(ctx)
	for attempt := 1; err != nil && attempt <= c.opts.MaxRetries; attempt++ {
		zap.L().Warn("ws.connect_attempt",
			zap.Int("attempt", attempt),
			zap.Int("max", c.opts.MaxRetries),
			zap.Error(err))
		select {
		case <-c.done:
			c.setState(StateDisconnected)
			return ErrConnClosed
		case <-ctx.Done():
			c.setState(StateDisconnected)
			return ctx.Err()
		case <-time.After(c.opts.RetryDelay):
		}
		ws, err = c.dial(ctx)
	}
	if err != nil {
		zap.L().Error("ws.connect_exhausted", zap.Int("max", c.opts.MaxRetries))
		c.setState(StateFailed)
		return err
	}

	if _, ok := c.install(ws); !ok {
		_ = ws.Close()
		return ErrConnClosed
	}
	go c.readLoop(ws)
	return nil
}

// Close tears the connection down for good. Pending requests fail with
// ErrConnClosed; no reconnect is attempted.
func (c *Conn) Close() error {
	c.doneOnce.Do(func() { close(c.done) })

	c.mu.Lock()
	ws := c.ws
	c.ws = nil
	c.state = StateDisconnected
	c.mu.Unlock()

	c.failPending(ErrConnClosed)
	if ws != nil {
		return ws.Close()
	}
	return nil
}

// Emit sends a fire-and-forget envelope.
func (c *Conn) Emit(event string, body any) error {
	return c.writeEnvelope(Envelope{Event: event}, body)
}

// Request sends an acked envelope and waits for the matching "<event>-ack"
// reply. The wait is bounded by ctx; losing the connection fails the request
// immediately rather than leaving the caller hanging on a dead socket.
func (c *Conn) Request(ctx context.Context, event string, body any) (AckBody, error) {
	c.pendingMu.Lock()
	c.seq++
	seq := c.seq
	ch := make(chan ackResult, 1)
	c.pending[seq] = ch
	c.pendingMu.Unlock()

	if err := c.writeEnvelope(Envelope{Event: event, Seq: seq}, body); err != nil {
		c.dropPending(seq)
		return AckBody{}, err
	}

	select {
	case res := <-ch:
		return res.ack, res.err
	case <-ctx.Done():
		c.dropPending(seq)
		return AckBody{}, ctx.Err()
	case <-c.done:
		c.dropPending(seq)
		return AckBody{}, ErrConnClosed
	}
}

// ---------------------------------------------------------------------------
//  Private helpers
// ---------------------------------------------------------------------------

func (c *Conn) dial(ctx context.Context) (*websocket.Conn, error) {
	dialer := websocket.Dialer{HandshakeTimeout: handshakeTimeout}
	ws, _, err := dialer.DialContext(ctx, c.opts.URL, nil)
	if err != nil {
		return nil, err
	}
	ws.SetReadLimit(readLimit)
	return ws, nil
}

// install makes ws the live socket and returns the reconnect hooks to run.
// When Close raced the dial it returns ok=false and leaves the Conn torn down;
// the caller must discard ws instead of resurrecting a closed connection.
func (c *Conn) install(ws *websocket.Conn) (hooks []func(), ok bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	select {
	case <-c.done:
		return nil, false
	default:
	}
	c.ws = ws
	c.state = StateConnected
	hooks = make([]func(), 0, len(c.hooks))
	for _, fn := range c.hooks {
		hooks = append(hooks, fn)
	}
	return hooks, true
}

func (c *Conn) setState(s State) {
	c.mu.Lock()
	old := c.state
	c.state = s
	c.mu.Unlock()
	if old != s {
		zap.L().Debug("ws.state", zap.Stringer("from", old), zap.Stringer("to", s))
	}
}

func (c *Conn) writeEnvelope(env Envelope, body any) error {
	if body != nil {
		raw, err := json.Marshal(body)
		if err != nil {
			return err
		}
		env.Body = raw
	}

	c.mu.Lock()
	ws := c.ws
	state := c.state
	c.mu.Unlock()
	if ws == nil || state != StateConnected {
		return ErrNotConnected
	}

	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	_ = ws.SetWriteDeadline(time.Now().Add(writeWait))
	return ws.WriteJSON(env)
}

func (c *Conn) readLoop(ws *websocket.Conn) {
	for {
		_, raw, err := ws.ReadMessage()
		if err != nil {
			select {
			case <-c.done:
				return
			default:
			}
			zap.L().Warn("ws.read", zap.Error(err))
			c.reconnect()
			return
		}

		var env Envelope
		if err := json.Unmarshal(raw, &env); err != nil {
			zap.L().Warn("ws.bad_frame", zap.Error(err))
			continue
		}
		c.route(env)
	}
}

func (c *Conn) route(env Envelope) {
	switch {
	case env.Seq != 0 && strings.HasSuffix(env.Event, AckSuffix):
		var ack AckBody
		if err := json.Unmarshal(env.Body, &ack); err != nil {
			zap.L().Warn("ws.bad_ack", zap.Error(err))
			return
		}
		c.resolvePending(env.Seq, ack)

	case env.Event == EventNewBid:
		var ev NewBidEvent
		if err := json.Unmarshal(env.Body, &ev); err != nil {
			zap.L().Warn("ws.bad_event", zap.String("event", env.Event), zap.Error(err))
			return
		}
		c.mux.DispatchNewBid(ev)

	case env.Event == EventAuctionEnded:
		var ev AuctionEndedEvent
		if err := json.Unmarshal(env.Body, &ev); err != nil {
			zap.L().Warn("ws.bad_event", zap.String("event", env.Event), zap.Error(err))
			return
		}
		c.mux.DispatchAuctionEnded(ev)

	case env.Event == EventError:
		// Out-of-band server error: logged only, no UI action defined.
		var eb ErrorBody
		_ = json.Unmarshal(env.Body, &eb)
		zap.L().Warn("ws.server_error", zap.String("message", eb.Message))

	default:
		zap.L().Debug("ws.unknown_event", zap.String("event", env.Event))
	}
}

// reconnect redials with a fixed delay up to MaxRetries. In-flight requests
// fail immediately: their acks died with the old socket.
func (c *Conn) reconnect() {
	c.setState(StateReconnecting)
	c.failPending(ErrConnectionLost)

	for attempt := 1; attempt <= c.opts.MaxRetries; attempt++ {
		select {
		case <-c.done:
			c.setState(StateDisconnected)
			return
		case <-time.After(c.opts.RetryDelay):
		}

		ctx, cancel := context.WithTimeout(context.Background(), handshakeTimeout)
		ws, err := c.dial(ctx)
		cancel()
		if err != nil {
			zap.L().Warn("ws.reconnect_attempt",
				zap.Int("attempt", attempt),
				zap.Int("max", c.opts.MaxRetries),
				zap.Error(err))
			continue
		}

		hooks, ok := c.install(ws)
		if !ok {
			_ = ws.Close()
			return
		}

		zap.L().Info("ws.reconnected", zap.Int("attempt", attempt))
		for _, fn := range hooks {
			fn()
		}
		go c.readLoop(ws)
		return
	}

	zap.L().Error("ws.reconnect_exhausted", zap.Int("max", c.opts.MaxRetries))
	c.setState(StateFailed)
}

func (c *Conn) resolvePending(seq uint64, ack AckBody) {
	c.pendingMu.Lock()
	ch, ok := c.pending[seq]
	delete(c.pending, seq)
	c.pendingMu.Unlock()
	if ok {
		ch <- ackResult{ack: ack}
	} else {
		zap.L().Debug("ws.stale_ack", zap.Uint64("seq", seq))
	}
}

func (c *Conn) dropPending(seq uint64) {
	c.pendingMu.Lock()
	delete(c.pending, seq)
	c.pendingMu.Unlock()
}

func (c *Conn) failPending(err error) {
	c.pendingMu.Lock()
	for seq, ch := range c.pending {
		delete(c.pending, seq)
		ch <- ackResult{err: err}
	}
	c.pendingMu.Unlock()
}
