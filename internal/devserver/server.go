package devserver

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"

	"auctionsync/internal/artwork"
	"auctionsync/internal/ws"

	ginzap "github.com/gin-contrib/zap"
	"github.com/gin-gonic/gin"
	"github.com/go-playground/validator/v10"
	"github.com/gorilla/websocket"
	"github.com/jonboulle/clockwork"
	"go.uber.org/zap"
)

const dispatchTimeout = 1900 * time.Millisecond

// Server is an in-memory reference peer for the auction sync protocol: the
// /ws endpoint speaks the envelope protocol, the /api routes seed and expose
// artwork snapshots. It is a dev/test fixture, not an auction engine.
type Server struct {
	hub      *hub
	router   *router
	store    *store
	clock    clockwork.Clock
	validate *validator.Validate
	upgrader websocket.Upgrader
}

func NewServer(clock clockwork.Clock) *Server {
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	s := &Server{
		hub:      newHub(),
		router:   newRouter(),
		store:    newStore(clock),
		clock:    clock,
		validate: validator.New(),
		upgrader: websocket.Upgrader{CheckOrigin: func(*http.Request) bool { return true }}, // dev-only
	}
	s.registerHandlers()
	return s
}

// Handler returns the full HTTP handler (WS + REST) for tests and embedding.
func (s *Server) Handler() http.Handler {
	gin.SetMode(gin.ReleaseMode)
	engine := gin.New()
	engine.Use(ginzap.RecoveryWithZap(zap.L(), true))

	engine.GET("/ws", s.handleWs)
	engine.GET("/api/artworks/:id", s.handleGetArtwork)
	engine.POST("/api/artworks", s.handleCreateArtwork)
	return engine
}

// Start serves on the given port until the listener fails.
func (s *Server) Start(port uint16) error {
	ln, err := net.Listen("tcp", fmt.Sprintf(":%d", port))
	if err != nil {
		return err
	}
	srv := http.Server{Handler: s.Handler()}
	return srv.Serve(ln)
}

// SeedArtwork registers an artwork and schedules its end-of-auction event.
func (s *Server) SeedArtwork(a Artwork) {
	s.store.create(a)
	s.clock.AfterFunc(a.EndsAt.Sub(s.clock.Now()), func() { s.endAuction(a.ID) })
}

// ---------------------------------------------------------------------------
//  WS side
// ---------------------------------------------------------------------------

func (s *Server) registerHandlers() {
	register(s.router, ws.EventJoinAuction,
		func(ctx context.Context, cc *ConnContext, req ws.JoinRequest) error {
			if req.ArtworkID == "" || req.CallerIdentity == "" {
				return errors.New("artworkId and callerIdentity are required")
			}
			s.hub.join(req.ArtworkID, cc.Peer)
			return nil
		},
	)

	register(s.router, ws.EventLeaveAuction,
		func(ctx context.Context, cc *ConnContext, req ws.JoinRequest) error {
			if req.ArtworkID == "" {
				return errors.New("artworkId is required")
			}
			s.hub.leave(req.ArtworkID, cc.Peer)
			return nil
		},
	)

	register(s.router, ws.EventPlaceBid,
		func(ctx context.Context, cc *ConnContext, req ws.BidRequest) error {
			if req.CallerIdentity == "" {
				return errors.New("callerIdentity is required")
			}
			if err := s.validate.Struct(req); err != nil {
				return ErrBidTooLow
			}
			ev, err := s.store.placeBid(req.ArtworkID, req.CallerIdentity, req.BidAmount)
			if err != nil {
				return err
			}
			s.hub.broadcast(ev.ArtworkID, mustEnvelope(ws.EventNewBid, ev))
			return nil
		},
	)
}

func (s *Server) handleWs(ginCtx *gin.Context) {
	sock, err := s.upgrader.Upgrade(ginCtx.Writer, ginCtx.Request, nil)
	if err != nil {
		zap.L().Warn("ws.accept", zap.Error(err))
		return
	}
	sock.SetReadLimit(4096)

	go s.reader(&peer{sock: sock})
}

func (s *Server) reader(p *peer) {
	defer func() {
		s.hub.drop(p)
		p.sock.Close()
	}()

	cc := &ConnContext{Peer: p, Server: s}

	for {
		_, raw, err := p.sock.ReadMessage()
		if err != nil {
			return // client closed or errored
		}

		var env ws.Envelope
		if err := json.Unmarshal(raw, &env); err != nil {
			_ = p.send(errorFrame("malformed frame"))
			continue
		}

		ctx, cancel := context.WithTimeout(context.Background(), dispatchTimeout)
		err = s.router.dispatch(ctx, cc, env)
		cancel()

		// Acked request -> {"event":"<evt>-ack","seq":n,"body":{success,error?}}
		if env.Seq != 0 {
			ack := ws.AckBody{Success: err == nil}
			if err != nil {
				ack.Error = err.Error()
			}
			_ = p.send(ws.Envelope{
				Event: env.Event + ws.AckSuffix,
				Seq:   env.Seq,
				Body:  mustMarshal(ack),
			})
			continue
		}

		// Fire-and-forget failure -> out-of-band error frame.
		if err != nil {
			_ = p.send(errorFrame(err.Error()))
		}
	}
}

func (s *Server) endAuction(artworkID string) {
	ev, ok := s.store.end(artworkID)
	if !ok {
		return
	}
	zap.L().Info("devserver.auction_ended",
		zap.String("artwork_id", artworkID),
		zap.Bool("has_winner", ev.Winner != nil))
	s.hub.broadcast(artworkID, mustEnvelope(ws.EventAuctionEnded, ev))
}

// ---------------------------------------------------------------------------
//  REST side
// ---------------------------------------------------------------------------

type createArtworkRequest struct {
	ArtworkID        string    `json:"artworkId"        binding:"required"`
	AuctionStartTime time.Time `json:"auctionStartTime" binding:"required"`
	AuctionEndTime   time.Time `json:"auctionEndTime"   binding:"required"`
	CurrentBid       float64   `json:"currentBid"`
}

func (s *Server) handleCreateArtwork(ginCtx *gin.Context) {
	var req createArtworkRequest
	if err := ginCtx.ShouldBindJSON(&req); err != nil {
		ginCtx.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	s.SeedArtwork(Artwork{
		ID:       req.ArtworkID,
		StartsAt: req.AuctionStartTime,
		EndsAt:   req.AuctionEndTime,
		HighBid:  req.CurrentBid,
	})
	ginCtx.Status(http.StatusCreated)
}

func (s *Server) handleGetArtwork(ginCtx *gin.Context) {
	a, ok := s.store.get(ginCtx.Param("id"))
	if !ok {
		ginCtx.JSON(http.StatusNotFound, gin.H{"error": "artwork not found"})
		return
	}
	ginCtx.JSON(http.StatusOK, artwork.Snapshot{
		ArtworkID:         a.ID,
		AuctionStartTime:  a.StartsAt,
		AuctionEndTime:    a.EndsAt,
		CurrentBid:        a.HighBid,
		CurrentBidderName: a.HighBidderName,
	})
}

// ---------------------------------------------------------------------------
//  Helpers
// ---------------------------------------------------------------------------

func mustMarshal(v any) json.RawMessage {
	raw, err := json.Marshal(v)
	if err != nil {
		panic(err)
	}
	return raw
}

func errorFrame(msg string) ws.Envelope {
	return ws.Envelope{Event: ws.EventError, Body: mustMarshal(ws.ErrorBody{Message: msg})}
}

func mustEnvelope(event string, body any) []byte {
	raw, err := json.Marshal(ws.Envelope{Event: event, Body: mustMarshal(body)})
	if err != nil {
		panic(err)
	}
	return raw
}
