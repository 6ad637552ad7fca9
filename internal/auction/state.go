package auction

import (
	"sync"

	"auctionsync/internal/ws"
)

// BidState is the caller-side merge policy for one artwork's bid stream: the
// current highest bid advances only monotonically, and never after the
// authoritative end signal. The session relays events; this decides what they
// mean for the view.
type BidState struct {
	mu sync.RWMutex

	highBid    float64
	highBidder string

	ended  bool
	winner *ws.Winner
}

// NewBidState seeds the tracker from the REST snapshot fetched before any
// socket event arrives. bidderName may be empty when there are no bids yet.
func NewBidState(currentBid float64, bidderName string) *BidState {
	return &BidState{highBid: currentBid, highBidder: bidderName}
}

// ApplyBid folds a newBid event in. It reports whether the event advanced the
// highest bid: stale deliveries (late re-orders, bids at or below the current
// high, anything after the auction ended) are absorbed without effect.
func (b *BidState) ApplyBid(ev ws.NewBidEvent) bool {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.ended {
		return false
	}
	if ev.BidAmount <= b.highBid {
		return false
	}
	b.highBid = ev.BidAmount
	b.highBidder = ev.BidderName
	return true
}

// ApplyEnded records the terminal outcome. First signal wins; repeats are
// ignored.
func (b *BidState) ApplyEnded(ev ws.AuctionEndedEvent) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.ended {
		return
	}
	b.ended = true
	b.winner = ev.Winner
}

// Highest returns the current highest bid and bidder name.
func (b *BidState) Highest() (float64, string) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.highBid, b.highBidder
}

// Ended reports whether the auction is over and, if so, the winner (nil when
// it closed without bids).
func (b *BidState) Ended() (bool, *ws.Winner) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.ended, b.winner
}
