package main

import (
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/parleychat/parley/internal/config"
	"github.com/parleychat/parley/internal/filecodec"
	"github.com/parleychat/parley/internal/hub"
	"github.com/parleychat/parley/internal/model"
	"github.com/parleychat/parley/internal/router"
	"github.com/parleychat/parley/internal/server"
	"github.com/parleychat/parley/internal/service/auth"
	"github.com/parleychat/parley/internal/service/channel"
	"github.com/parleychat/parley/internal/service/message"
	"github.com/parleychat/parley/internal/store"
)

func main() {
	log.Println("Starting Parley chat server...")

	cfg := config.Load()

	if err := os.MkdirAll(cfg.DataDir, 0o755); err != nil {
		log.Fatalf("Failed to create data directory %s: %v", cfg.DataDir, err)
	}

	users := store.NewTable(filepath.Join(cfg.DataDir, "users.json"), model.UserKey)
	channels := store.NewTable(filepath.Join(cfg.DataDir, "channels.json"), model.ChannelKey)
	messages := store.NewTable(filepath.Join(cfg.DataDir, "messages.json"), model.MessageKey)

	h := hub.New(hub.Config{
		SweepInterval:      cfg.SweepInterval,
		MaxMessageSize:     cfg.MaxMessageSize,
		RateBurst:          cfg.RateBurst,
		RateRefillInterval: cfg.RateRefillInterval,
	})

	authSvc := auth.New(users, channels, h, cfg.SelfDestructHorizon)
	channelSvc := channel.New(users, channels, h)
	messageSvc := message.New(users, channels, messages, h, filecodec.TreeCodec{})
	router.New(h, authSvc, channelSvc, messageSvc)

	go h.Run()
	log.Println("Hub started and ready to manage WebSocket connections")

	srv := server.New(cfg, h)
	httpServer := server.CreateServer(cfg.Addr, srv.Routes())

	errCh := make(chan error, 1)
	go func() {
		errCh <- server.StartServer(httpServer)
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)

	select {
	case err := <-errCh:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatalf("Server failed: %v", err)
		}
	case sig := <-stop:
		log.Printf("Received signal %s, shutting down...", sig)
	}

	if err := server.ShutdownServer(httpServer, cfg.ShutdownTimeout); err != nil {
		log.Printf("HTTP shutdown incomplete: %v", err)
	}
	if err := h.Shutdown(cfg.ShutdownTimeout); err != nil {
		log.Printf("Hub shutdown incomplete: %v", err)
	}
}
