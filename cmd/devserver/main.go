package main

import (
	"auctionsync/internal/config"
	"auctionsync/internal/devserver"
	"time"

	"github.com/jonboulle/clockwork"
	"go.uber.org/zap"
)

var (
	Log, _ = zap.NewDevelopment()
)

// Runs the in-memory reference server with one demo artwork so the watcher
// client has something to join out of the box.
func main() {
	defer Log.Sync()
	zap.ReplaceGlobals(Log)

	cfg, err := config.LoadConfig()
	if err != nil {
		Log.Fatal("Failed to load configuration", zap.Error(err))
	}

	srv := devserver.NewServer(clockwork.NewRealClock())
	srv.SeedArtwork(devserver.Artwork{
		ID:       "demo",
		StartsAt: time.Now(),
		EndsAt:   time.Now().Add(10 * time.Minute),
	})
	Log.Info("devserver listening", zap.Uint16("port", cfg.HttpServerPort))

	if err := srv.Start(cfg.HttpServerPort); err != nil {
		Log.Fatal("Failed to start server", zap.Error(err))
	}
}
