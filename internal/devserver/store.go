package devserver

import (
	"errors"
	"sync"
	"time"

	"auctionsync/internal/ws"

	"github.com/jonboulle/clockwork"
)

// Rejection reasons surfaced verbatim in the placeBid ack.
var (
	ErrArtworkNotFound  = errors.New("artwork not found")
	ErrAuctionNotActive = errors.New("Auction is not active")
	ErrBidTooLow        = errors.New("Bid must be higher than the current bid")
)

// Artwork is one auctioned item with its live bid state.
type Artwork struct {
	ID             string
	StartsAt       time.Time
	EndsAt         time.Time
	HighBid        float64
	HighBidderID   string
	HighBidderName string
	Ended          bool
}

// store holds auction state in memory. The dev server is a single-process
// fixture: no persistence, no cross-instance fan-out.
type store struct {
	mu       sync.Mutex
	clock    clockwork.Clock
	artworks map[string]*Artwork
}

func newStore(clock clockwork.Clock) *store {
	return &store{clock: clock, artworks: make(map[string]*Artwork)}
}

func (s *store) create(a Artwork) {
	s.mu.Lock()
	s.artworks[a.ID] = &a
	s.mu.Unlock()
}

func (s *store) get(id string) (Artwork, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	a, ok := s.artworks[id]
	if !ok {
		return Artwork{}, false
	}
	return *a, true
}

// placeBid validates and applies a bid, returning the broadcast event. Bids
// are accepted under the lock, so acceptance order is broadcast order.
func (s *store) placeBid(id, callerID string, amount float64) (ws.NewBidEvent, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	a, ok := s.artworks[id]
	if !ok {
		return ws.NewBidEvent{}, ErrArtworkNotFound
	}
	now := s.clock.Now()
	if a.Ended || now.Before(a.StartsAt) || !now.Before(a.EndsAt) {
		return ws.NewBidEvent{}, ErrAuctionNotActive
	}
	if amount <= a.HighBid {
		return ws.NewBidEvent{}, ErrBidTooLow
	}

	a.HighBid = amount
	a.HighBidderID = callerID
	a.HighBidderName = callerID // dev fixture: identity doubles as display name

	return ws.NewBidEvent{
		ArtworkID:  id,
		BidderID:   callerID,
		BidderName: a.HighBidderName,
		BidAmount:  amount,
		Timestamp:  now.Unix(),
	}, nil
}

// end marks the auction finished and returns the terminal event. Idempotent:
// the second call reports ok=false and nothing is broadcast again.
func (s *store) end(id string) (ws.AuctionEndedEvent, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	a, ok := s.artworks[id]
	if !ok || a.Ended {
		return ws.AuctionEndedEvent{}, false
	}
	a.Ended = true

	ev := ws.AuctionEndedEvent{ArtworkID: id}
	if a.HighBidderID != "" {
		ev.Winner = &ws.Winner{
			BidderID:   a.HighBidderID,
			BidderName: a.HighBidderName,
			Amount:     a.HighBid,
		}
	}
	return ev, true
}
