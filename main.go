package main

import (
	"context"
	"flag"
	"io"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/ethereum/go-ethereum/common"
)

func main() {
	fv := registerFlags()
	flag.Parse()

	cfg := loadConfig(*fv.configPath)
	fv.applyTo(&cfg)

	// Log to both stdout and a file so a crashed session can be reconstructed.
	logFile, err := os.OpenFile("werewolfchain.log", os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0644)
	if err != nil {
		log.Fatal("Failed to open log file:", err)
	}
	defer logFile.Close()
	log.SetOutput(io.MultiWriter(os.Stdout, logFile))

	if cfg.Dev {
		cfg.LogDebug = true
	}
	if err := InitAppLogger(cfg.toLogConfig()); err != nil {
		log.Fatal("Failed to initialize logger:", err)
	}
	defer CloseAppLogger()
	if appLogger.IsEnabled() {
		log.Println("Extended logging enabled")
	}

	if cfg.Game == "" {
		log.Fatal("No game contract address configured (-game or GAME_ADDRESS)")
	}
	if !common.IsHexAddress(cfg.Game) {
		log.Fatalf("Invalid game contract address: %q", cfg.Game)
	}
	if cfg.PrivateKey == "" {
		log.Fatal("No account key configured (-private-key or PRIVATE_KEY)")
	}
	gameAddr := common.HexToAddress(cfg.Game)

	store, err := OpenSecretStore(cfg.DB)
	if err != nil {
		log.Fatal("Failed to open secret store:", err)
	}
	defer store.Close()
	appLogger.SetStore(store)
	LogDBState("after open")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	session, err := Connect(ctx, cfg.RPCURL, cfg.PrivateKey, cfg.ChainID)
	if err != nil {
		log.Fatal("Failed to connect to chain:", err)
	}
	defer session.Close()
	log.Printf("Connected to %s as %s (chain %s), game %s",
		cfg.RPCURL, session.Account().Hex(), session.ChainID(), gameAddr.Hex())

	game := NewGameClient(session, gameAddr)
	night := NewNightLog()
	hub := newHub()
	narrator := NewNarrator(cfg, hub)

	reader := NewReader(game, session.Account(), time.Duration(cfg.PollMs)*time.Millisecond, func(snap *ChainSnapshot) {
		night.ObserveDay(snap.DayCount)
		hub.SendSnapshot(snap)
	})

	watcher := NewWatcher(session.Client(), gameAddr, session.Account(), night, store,
		reader.Snapshot,
		func(ev GameEvent) {
			hub.SendEvent(ev)
			narrator.ObserveEvent(ev)
		})

	actions := NewActions(ctx, game, store, night, reader.Snapshot, func(ctx context.Context) {
		if _, err := reader.Refresh(ctx); err != nil {
			DebugLog("main.refresh", "forced refresh failed: %v", err)
		}
	})

	go hub.run()
	defer hub.stop()
	reader.Start(ctx)
	defer reader.Stop()
	// The backfill needs day and phase to place a restored night resolution,
	// so make sure one snapshot exists before the watcher starts.
	if _, err := reader.Refresh(ctx); err != nil {
		log.Printf("Initial chain read failed, continuing: %v", err)
	}
	watcher.Start(ctx)
	defer watcher.Stop()

	srv := &Server{
		cfg:      cfg,
		session:  session,
		game:     game,
		store:    store,
		reader:   reader,
		night:    night,
		actions:  actions,
		hub:      hub,
		narrator: narrator,
	}
	mux := http.NewServeMux()
	srv.routes(mux)

	httpServer := &http.Server{Addr: cfg.Addr, Handler: mux}
	go func() {
		log.Println("Server starting on", cfg.Addr)
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal("Server failed:", err)
		}
	}()

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, os.Interrupt, syscall.SIGTERM)
	<-sig
	log.Println("Shutting down")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		log.Printf("Shutdown: %v", err)
	}
}
