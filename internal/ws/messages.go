package ws

import "encoding/json"

// Envelope wraps every WS frame.
type Envelope struct {
	Event string          `json:"event"`          // e.g. "placeBid"
	Seq   uint64          `json:"seq,omitempty"`  // correlation id for acked requests
	Body  json.RawMessage `json:"body,omitempty"` // arbitrary JSON object
}

// Client-emitted events.
const (
	EventJoinAuction  = "joinAuction"
	EventLeaveAuction = "leaveAuction"
	EventPlaceBid     = "placeBid"
)

// Server-pushed events.
const (
	EventNewBid       = "newBid"
	EventAuctionEnded = "auctionEnded"
	EventError        = "error"
)

// AckSuffix marks the one-shot reply to a client request, e.g. "placeBid-ack".
const AckSuffix = "-ack"

// ──────────────────────────── Request / Response DTOs ─────────────────────────

// JoinRequest is the body for "joinAuction" and "leaveAuction".
type JoinRequest struct {
	ArtworkID      string `json:"artworkId"`
	CallerIdentity string `json:"callerIdentity"`
}

// BidRequest is the body for "placeBid".
type BidRequest struct {
	ArtworkID      string  `json:"artworkId"`
	CallerIdentity string  `json:"callerIdentity"`
	BidAmount      float64 `json:"bidAmount" validate:"gt=0"`
}

// AckBody is the single acknowledgement for an acked request.
type AckBody struct {
	Success bool   `json:"success"`
	Error   string `json:"error,omitempty"`
}

// ErrorBody is pushed out-of-band for failures with no pending request.
type ErrorBody struct {
	Message string `json:"message"`
}

// ─────────────────────────────── Push events ─────────────────────────────────

// NewBidEvent is the broadcast of an accepted bid. Immutable once received;
// per-artwork emission order is preserved by the transport.
type NewBidEvent struct {
	ArtworkID  string  `json:"artworkId"`
	BidderID   string  `json:"bidderId"`
	BidderName string  `json:"bidderName"`
	BidAmount  float64 `json:"bidAmount"`
	Timestamp  int64   `json:"timestamp"` // unix seconds, server clock
}

// Winner identifies the highest bidder at close.
type Winner struct {
	BidderID   string  `json:"bidderId"`
	BidderName string  `json:"bidderName"`
	Amount     float64 `json:"amount"`
}

// AuctionEndedEvent is terminal for an artwork's room. Winner is nil when the
// auction closed with no bids.
type AuctionEndedEvent struct {
	ArtworkID string  `json:"artworkId"`
	Winner    *Winner `json:"winner"`
}
