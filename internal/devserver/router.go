package devserver

import (
	"context"
	"encoding/json"
	"errors"
	"sync"

	"auctionsync/internal/ws"
)

// ConnContext is the per-socket state handlers see.
type ConnContext struct {
	Peer   *peer
	Server *Server
}

// internal (untyped) handler signature.
type rawHandler func(ctx context.Context, c *ConnContext, body json.RawMessage) error

// router keeps a map[event]handler for client-emitted frames.
type router struct {
	mu       sync.RWMutex
	handlers map[string]rawHandler
}

func newRouter() *router { return &router{handlers: make(map[string]rawHandler)} }

// register binds an event to a strongly-typed handler. A nil error becomes a
// success ack when the frame carried a seq.
func register[Req any](
	r *router,
	event string,
	h func(ctx context.Context, c *ConnContext, req Req) error,
) {
	if event == "" {
		panic("devserver router: empty event")
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	r.handlers[event] = func(ctx context.Context, c *ConnContext, body json.RawMessage) error {
		var req Req
		if len(body) > 0 {
			if err := json.Unmarshal(body, &req); err != nil {
				return err
			}
		}
		return h(ctx, c, req)
	}
}

// dispatch is called by the server's reader loop.
func (r *router) dispatch(ctx context.Context, c *ConnContext, env ws.Envelope) error {
	r.mu.RLock()
	h, ok := r.handlers[env.Event]
	r.mu.RUnlock()
	if !ok {
		return errors.New("unknown_event")
	}
	return h(ctx, c, env.Body)
}
