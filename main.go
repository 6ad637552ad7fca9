package main

import (
	"auctionsync/internal/artwork"
	"auctionsync/internal/auction"
	"auctionsync/internal/config"
	"auctionsync/internal/countdown"
	"auctionsync/internal/ws"
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/jonboulle/clockwork"
	"go.uber.org/zap"
)

var (
	Log, _ = zap.NewDevelopment()
)

func main() {
	defer Log.Sync()
	zap.ReplaceGlobals(Log)

	bidAmount := flag.Float64("bid", 0, "place one bid at this amount after joining")
	flag.Parse()

	// 1. Load configuration
	cfg, err := config.LoadConfig()
	if err != nil {
		Log.Fatal("Failed to load configuration", zap.Error(err))
	}
	if cfg.ArtworkID == "" || cfg.CallerIdentity == "" {
		Log.Fatal("ARTWORK_ID and CALLER_IDENTITY are required")
	}
	Log.Debug("Configuration loaded successfully", zap.Any("config", cfg))

	// 2. Context with signal handling
	ctx, stop := signal.NotifyContext(context.Background(),
		os.Interrupt, syscall.SIGINT, syscall.SIGTERM,
	)
	defer stop()

	// 3. Seed state from the REST layer before any socket event arrives
	snap, err := artwork.NewClient(cfg.ServerRestURL).Get(ctx, cfg.ArtworkID)
	if err != nil {
		Log.Fatal("Failed to fetch artwork snapshot", zap.Error(err))
	}
	bidState := auction.NewBidState(snap.CurrentBid, snap.CurrentBidderName)

	// 4. Shared connection (one per process)
	conn := ws.NewConn(ws.Options{
		URL:        cfg.ServerWsURL,
		MaxRetries: cfg.ReconnectMaxRetries,
		RetryDelay: cfg.ReconnectDelay,
	}, ws.NewMux())
	if err := conn.Connect(ctx); err != nil {
		Log.Fatal("Failed to connect", zap.Error(err))
	}
	defer conn.Close()

	// 5. Local countdown, overridden by the authoritative end event
	cd := countdown.New(snap.AuctionStartTime, snap.AuctionEndTime,
		cfg.CountdownTick, clockwork.NewRealClock())

	// 6. Room membership + event application
	sess := auction.NewSession(conn, auction.Config{
		ArtworkID:      cfg.ArtworkID,
		CallerIdentity: cfg.CallerIdentity,
		AckTimeout:     cfg.BidAckTimeout,
		OnNewBid: func(ev ws.NewBidEvent) {
			if bidState.ApplyBid(ev) {
				fmt.Printf("new high bid: %.2f by %s\n", ev.BidAmount, ev.BidderName)
			}
		},
		OnAuctionEnded: func(ev ws.AuctionEndedEvent) {
			bidState.ApplyEnded(ev)
			cd.ForceEnd()
			if ev.Winner != nil {
				fmt.Printf("auction ended, winner: %s at %.2f\n", ev.Winner.BidderName, ev.Winner.Amount)
			} else {
				fmt.Println("auction ended with no bids")
			}
		},
	})
	if err := sess.Join(ctx); err != nil {
		Log.Fatal("Failed to join auction", zap.Error(err))
	}
	defer sess.Close()

	high, bidder := bidState.Highest()
	if bidder != "" {
		fmt.Printf("current high bid: %.2f by %s\n", high, bidder)
	}

	// 7. Optional one-shot bid from the command line
	if *bidAmount > 0 {
		if err := sess.PlaceBid(ctx, *bidAmount); err != nil {
			Log.Warn("Bid rejected", zap.Error(err))
		} else {
			fmt.Println("bid accepted for processing")
		}
	}

	// 8. Tick until the auction ends or we are interrupted
	cd.Run(ctx, func(phase countdown.Phase, display string) {
		fmt.Printf("\r%-24s", display)
		if phase == countdown.PhaseEnded {
			fmt.Println()
		}
	})
}
