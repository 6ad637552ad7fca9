package devserver

import (
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

const writeWait = 10 * time.Second

// peer is one connected client socket. Gorilla sockets tolerate a single
// writer, and a peer gets writes from its reader loop (acks, error frames),
// from room broadcasts, and from the clock-driven auction end, so every write
// funnels through the mutex here.
type peer struct {
	mu   sync.Mutex
	sock *websocket.Conn
}

func (p *peer) send(v any) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	_ = p.sock.SetWriteDeadline(time.Now().Add(writeWait))
	return p.sock.WriteJSON(v)
}

// sendFrame writes an already-marshaled frame, so broadcasts marshal once per
// room rather than once per peer.
func (p *peer) sendFrame(frame []byte) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	_ = p.sock.SetWriteDeadline(time.Now().Add(writeWait))
	return p.sock.WriteMessage(websocket.TextMessage, frame)
}

// room is the set of peers watching one artwork.
type room struct {
	mu    sync.RWMutex
	peers map[*peer]struct{}
}

func newRoom() *room { return &room{peers: map[*peer]struct{}{}} }

func (r *room) add(p *peer) {
	r.mu.Lock()
	r.peers[p] = struct{}{}
	r.mu.Unlock()
}

// remove drops p from the room without closing it: the same socket may still
// be a member of other rooms.
func (r *room) remove(p *peer) {
	r.mu.Lock()
	delete(r.peers, p)
	r.mu.Unlock()
}

func (r *room) broadcast(frame []byte) {
	// Snapshot under the read lock; the I/O happens outside it.
	r.mu.RLock()
	peers := make([]*peer, 0, len(r.peers))
	for p := range r.peers {
		peers = append(peers, p)
	}
	r.mu.RUnlock()

	for _, p := range peers {
		if err := p.sendFrame(frame); err != nil {
			r.remove(p)
		}
	}
}
