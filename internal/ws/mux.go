package ws

import (
	"sync"

	"go.uber.org/zap"
)

// Subscriber receives push events for one artwork. Callbacks run on the
// connection's reader goroutine in arrival order; they must not block.
type Subscriber struct {
	OnNewBid       func(NewBidEvent)
	OnAuctionEnded func(AuctionEndedEvent)
}

// Mux routes push events to the subscribers registered for their artwork id.
// The transport multiplexes every auction over one connection, so filtering
// here is structural: an event whose artwork id has no subscriber is dropped.
type Mux struct {
	mu   sync.RWMutex
	subs map[string]map[*Subscriber]struct{} // artworkID -> subscriber set
}

func NewMux() *Mux { return &Mux{subs: make(map[string]map[*Subscriber]struct{})} }

// Subscribe registers sub for events scoped to artworkID.
func (m *Mux) Subscribe(artworkID string, sub *Subscriber) {
	m.mu.Lock()
	set, ok := m.subs[artworkID]
	if !ok {
		set = make(map[*Subscriber]struct{})
		m.subs[artworkID] = set
	}
	set[sub] = struct{}{}
	m.mu.Unlock()
}

// Unsubscribe removes sub. After it returns no further callbacks fire on sub.
func (m *Mux) Unsubscribe(artworkID string, sub *Subscriber) {
	m.mu.Lock()
	if set, ok := m.subs[artworkID]; ok {
		delete(set, sub)
		if len(set) == 0 {
			delete(m.subs, artworkID)
		}
	}
	m.mu.Unlock()
}

// DispatchNewBid fans a bid event out to the artwork's subscribers.
func (m *Mux) DispatchNewBid(ev NewBidEvent) {
	for _, sub := range m.snapshot(ev.ArtworkID) {
		if sub.OnNewBid != nil {
			sub.OnNewBid(ev)
		}
	}
}

// DispatchAuctionEnded fans the terminal event out to the artwork's subscribers.
func (m *Mux) DispatchAuctionEnded(ev AuctionEndedEvent) {
	for _, sub := range m.snapshot(ev.ArtworkID) {
		if sub.OnAuctionEnded != nil {
			sub.OnAuctionEnded(ev)
		}
	}
}

// snapshot copies the subscriber set so callbacks run outside the lock.
func (m *Mux) snapshot(artworkID string) []*Subscriber {
	m.mu.RLock()
	defer m.mu.RUnlock()

	set, ok := m.subs[artworkID]
	if !ok {
		zap.L().Debug("ws.event_unscoped", zap.String("artwork_id", artworkID))
		return nil
	}
	out := make([]*Subscriber, 0, len(set))
	for sub := range set {
		out = append(out, sub)
	}
	return out
}
