package auction

import (
	"testing"

	"auctionsync/internal/ws"

	"github.com/stretchr/testify/assert"
)

func TestBidState_MonotonicHighestBid(t *testing.T) {
	st := NewBidState(100, "seed bidder")

	assert.True(t, st.ApplyBid(ws.NewBidEvent{ArtworkID: "A1", BidderName: "u2", BidAmount: 150}))
	assert.False(t, st.ApplyBid(ws.NewBidEvent{ArtworkID: "A1", BidderName: "u3", BidAmount: 150}), "equal bid must not advance")
	assert.False(t, st.ApplyBid(ws.NewBidEvent{ArtworkID: "A1", BidderName: "u4", BidAmount: 120}), "lower bid must not advance")

	high, bidder := st.Highest()
	assert.Equal(t, 150.0, high)
	assert.Equal(t, "u2", bidder)
}

func TestBidState_AfterEndGuard(t *testing.T) {
	st := NewBidState(0, "")

	assert.True(t, st.ApplyBid(ws.NewBidEvent{ArtworkID: "A1", BidderName: "u9", BidAmount: 900}))
	st.ApplyEnded(ws.AuctionEndedEvent{
		ArtworkID: "A1",
		Winner:    &ws.Winner{BidderID: "u9", BidderName: "u9", Amount: 900},
	})

	// A delayed newBid arriving after the authoritative end is stale: it must
	// not advance the highest bid.
	assert.False(t, st.ApplyBid(ws.NewBidEvent{ArtworkID: "A1", BidderName: "u10", BidAmount: 1500}))

	high, bidder := st.Highest()
	assert.Equal(t, 900.0, high)
	assert.Equal(t, "u9", bidder)

	ended, winner := st.Ended()
	assert.True(t, ended)
	assert.Equal(t, 900.0, winner.Amount)
}

func TestBidState_EndWithoutWinner(t *testing.T) {
	st := NewBidState(0, "")
	st.ApplyEnded(ws.AuctionEndedEvent{ArtworkID: "A1", Winner: nil})

	ended, winner := st.Ended()
	assert.True(t, ended)
	assert.Nil(t, winner, "no-bid auctions end with a nil winner")

	// Repeated end signals are absorbed.
	st.ApplyEnded(ws.AuctionEndedEvent{
		ArtworkID: "A1",
		Winner:    &ws.Winner{BidderID: "late", Amount: 1},
	})
	_, winner = st.Ended()
	assert.Nil(t, winner, "first end signal wins")
}
