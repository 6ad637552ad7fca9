package auction

import (
	"context"
	"errors"
	"sync"
	"time"

	"auctionsync/internal/ws"

	"go.uber.org/zap"
)

var (
	// ErrNotAuthenticated mirrors the message shown to the user when a bid or
	// join is attempted without a resolved identity.
	ErrNotAuthenticated = errors.New("User not authenticated")
	ErrNoArtwork        = errors.New("missing artwork id")
	ErrNotJoined        = errors.New("no active room membership")
)

// BidRejectedError carries the server's rejection reason from the placeBid
// acknowledgement (bid too low, auction inactive, insufficient funds, ...).
type BidRejectedError struct {
	Reason string
}

func (e *BidRejectedError) Error() string {
	if e.Reason == "" {
		return "Failed to place bid"
	}
	return e.Reason
}

// Transport is the slice of the shared connection a session needs. *ws.Conn
// satisfies it; tests substitute a fake.
type Transport interface {
	Emit(event string, body any) error
	Request(ctx context.Context, event string, body any) (ws.AckBody, error)
	Subscribe(artworkID string, sub *ws.Subscriber)
	Unsubscribe(artworkID string, sub *ws.Subscriber)
	OnReconnect(fn func()) (unregister func())
}

// Config describes one view's interest in one auction.
type Config struct {
	ArtworkID      string
	CallerIdentity string

	// OnNewBid and OnAuctionEnded relay raw events; merge policy (monotonic
	// highest bid, after-end guard) belongs to the caller, typically BidState.
	OnNewBid       func(ws.NewBidEvent)
	OnAuctionEnded func(ws.AuctionEndedEvent)

	// AckTimeout bounds the wait for join and bid acknowledgements.
	AckTimeout time.Duration
}

const defaultAckTimeout = 5 * time.Second

// Session is one view's membership in one auction room. It holds at most one
// active membership at a time: retargeting leaves the old room with the old
// ids before joining the new one. All methods are safe for concurrent use.
type Session struct {
	tr  Transport
	cfg Config

	// joined, and the ids the current membership was acquired with. Leave
	// must use these, not cfg, so a racing retarget releases the right room.
	joined    bool
	curArt    string
	curCaller string
	sub       *ws.Subscriber
	unhook    func()

	mu sync.Mutex // held across join/leave sequencing
}

func NewSession(tr Transport, cfg Config) *Session {
	if cfg.AckTimeout <= 0 {
		cfg.AckTimeout = defaultAckTimeout
	}
	return &Session{tr: tr, cfg: cfg}
}

// Join acquires the room membership. Both ids must be non-empty: joining a
// room as an anonymous caller would make later bid attribution ambiguous, so
// the precondition fails locally with no network traffic. Joining while
// already joined is a no-op.
func (s *Session) Join(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.joinLocked(ctx)
}

// Leave releases the membership: unsubscribe first so no event callback can
// fire after this returns, then emit leaveAuction with the ids used at join.
// Idempotent.
func (s *Session) Leave() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.leaveLocked()
}

// Retarget switches the session to a new artwork or caller. The old room is
// released with the old ids before the new one is joined; the two memberships
// are never held simultaneously.
func (s *Session) Retarget(ctx context.Context, artworkID, callerIdentity string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.leaveLocked(); err != nil {
		return err
	}
	s.cfg.ArtworkID = artworkID
	s.cfg.CallerIdentity = callerIdentity
	return s.joinLocked(ctx)
}

// PlaceBid submits a bid and waits for the server's one-shot acknowledgement.
// A nil return means accepted for processing only: local bid state advances
// when (and if) the corresponding newBid broadcast arrives. The ack may land
// before, after, or never relative to that broadcast.
func (s *Session) PlaceBid(ctx context.Context, amount float64) error {
	s.mu.Lock()
	if s.cfg.CallerIdentity == "" {
		s.mu.Unlock()
		return ErrNotAuthenticated
	}
	if !s.joined {
		s.mu.Unlock()
		return ErrNotJoined
	}
	req := ws.BidRequest{
		ArtworkID:      s.curArt,
		CallerIdentity: s.curCaller,
		BidAmount:      amount,
	}
	s.mu.Unlock()

	ctx, cancel := context.WithTimeout(ctx, s.cfg.AckTimeout)
	defer cancel()

	ack, err := s.tr.Request(ctx, ws.EventPlaceBid, req)
	if err != nil {
		return err
	}
	if !ack.Success {
		return &BidRejectedError{Reason: ack.Error}
	}
	return nil
}

// Close releases the membership and detaches the session from the shared
// connection. Views defer it on every exit path.
func (s *Session) Close() error {
	return s.Leave()
}

// ---------------------------------------------------------------------------
//  Private helpers
// ---------------------------------------------------------------------------

func (s *Session) joinLocked(ctx context.Context) error {
	if s.joined {
		return nil
	}
	if s.cfg.CallerIdentity == "" {
		return ErrNotAuthenticated
	}
	if s.cfg.ArtworkID == "" {
		return ErrNoArtwork
	}

	art, caller := s.cfg.ArtworkID, s.cfg.CallerIdentity
	sub := &ws.Subscriber{
		OnNewBid:       s.cfg.OnNewBid,
		OnAuctionEnded: s.cfg.OnAuctionEnded,
	}

	// Subscribe before the join round-trip: a bid broadcast in the gap
	// between the ack and a later subscription would be lost for good.
	s.tr.Subscribe(art, sub)

	ctx, cancel := context.WithTimeout(ctx, s.cfg.AckTimeout)
	defer cancel()
	ack, err := s.tr.Request(ctx, ws.EventJoinAuction, ws.JoinRequest{
		ArtworkID:      art,
		CallerIdentity: caller,
	})
	if err == nil && !ack.Success {
		if ack.Error == "" {
			ack.Error = "join rejected"
		}
		err = errors.New(ack.Error)
	}
	if err != nil {
		s.tr.Unsubscribe(art, sub)
		return err
	}

	s.joined = true
	s.curArt = art
	s.curCaller = caller
	s.sub = sub
	s.unhook = s.tr.OnReconnect(s.rejoin)
	return nil
}

func (s *Session) leaveLocked() error {
	if !s.joined {
		return nil
	}

	s.tr.Unsubscribe(s.curArt, s.sub)
	if s.unhook != nil {
		s.unhook()
		s.unhook = nil
	}

	err := s.tr.Emit(ws.EventLeaveAuction, ws.JoinRequest{
		ArtworkID:      s.curArt,
		CallerIdentity: s.curCaller,
	})
	if err != nil && !errors.Is(err, ws.ErrNotConnected) {
		zap.L().Warn("session.leave", zap.String("artwork_id", s.curArt), zap.Error(err))
	}

	s.joined = false
	s.curArt = ""
	s.curCaller = ""
	s.sub = nil
	return nil
}

// rejoin re-emits joinAuction after a redial. The server scopes listeners by
// the ids in the join call and forgot them with the old socket; the room
// registration server-side is a set, so a duplicate join is harmless.
func (s *Session) rejoin() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.joined {
		return
	}
	if err := s.tr.Emit(ws.EventJoinAuction, ws.JoinRequest{
		ArtworkID:      s.curArt,
		CallerIdentity: s.curCaller,
	}); err != nil {
		zap.L().Warn("session.rejoin", zap.String("artwork_id", s.curArt), zap.Error(err))
	}
}
