package ws

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestMux_FiltersByArtworkID(t *testing.T) {
	mux := NewMux()

	var got []NewBidEvent
	sub := &Subscriber{OnNewBid: func(ev NewBidEvent) { got = append(got, ev) }}
	mux.Subscribe("A1", sub)

	ev := NewBidEvent{ArtworkID: "A1", BidderID: "u1", BidderName: "User One", BidAmount: 500, Timestamp: 1700000000}
	mux.DispatchNewBid(ev)
	mux.DispatchNewBid(NewBidEvent{ArtworkID: "A2", BidAmount: 900})

	assert.Len(t, got, 1, "expected only the A1 event to be delivered")
	assert.Equal(t, ev, got[0], "expected the exact payload to be relayed")
}

func TestMux_NoSubscriberDiscards(t *testing.T) {
	mux := NewMux()

	// No matching room joined: the event is multiplexing noise, not an error.
	assert.NotPanics(t, func() {
		mux.DispatchNewBid(NewBidEvent{ArtworkID: "A1", BidAmount: 100})
		mux.DispatchAuctionEnded(AuctionEndedEvent{ArtworkID: "A1"})
	})
}

func TestMux_UnsubscribeStopsDelivery(t *testing.T) {
	mux := NewMux()

	var bids, ends int
	sub := &Subscriber{
		OnNewBid:       func(NewBidEvent) { bids++ },
		OnAuctionEnded: func(AuctionEndedEvent) { ends++ },
	}
	mux.Subscribe("A1", sub)
	mux.DispatchNewBid(NewBidEvent{ArtworkID: "A1", BidAmount: 100})

	mux.Unsubscribe("A1", sub)
	mux.DispatchNewBid(NewBidEvent{ArtworkID: "A1", BidAmount: 200})
	mux.DispatchAuctionEnded(AuctionEndedEvent{ArtworkID: "A1"})

	assert.Equal(t, 1, bids, "expected no bid deliveries after unsubscribe")
	assert.Zero(t, ends, "expected no end deliveries after unsubscribe")
}

func TestMux_OrderPreservedPerArtwork(t *testing.T) {
	mux := NewMux()

	var amounts []float64
	mux.Subscribe("A1", &Subscriber{OnNewBid: func(ev NewBidEvent) { amounts = append(amounts, ev.BidAmount) }})

	for _, amt := range []float64{100, 250, 175} {
		mux.DispatchNewBid(NewBidEvent{ArtworkID: "A1", BidAmount: amt})
	}

	// Arrival order, no reordering and no dedup: merge policy is the caller's.
	assert.Equal(t, []float64{100, 250, 175}, amounts)
}

func TestMux_MultipleSubscribersSameArtwork(t *testing.T) {
	mux := NewMux()

	var a, b int
	subA := &Subscriber{OnNewBid: func(NewBidEvent) { a++ }}
	subB := &Subscriber{OnNewBid: func(NewBidEvent) { b++ }}
	mux.Subscribe("A1", subA)
	mux.Subscribe("A1", subB)

	mux.DispatchNewBid(NewBidEvent{ArtworkID: "A1", BidAmount: 100})
	mux.Unsubscribe("A1", subA)
	mux.DispatchNewBid(NewBidEvent{ArtworkID: "A1", BidAmount: 200})

	assert.Equal(t, 1, a)
	assert.Equal(t, 2, b)
}
