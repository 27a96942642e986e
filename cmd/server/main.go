package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/quangtn/roomcast/internal/chat"
	"github.com/quangtn/roomcast/internal/protocol"
	"github.com/quangtn/roomcast/internal/server"
)

func main() {
	log.Println("Starting roomcast server...")

	cfg, err := server.NewConfigFromEnv()
	if err != nil {
		log.Fatalf("Invalid configuration: %v", err)
	}

	registry := chat.NewRegistry(cfg.Rooms, cfg.MaxMessagesPerRoom)
	lobby := protocol.NewLobbyRegistry(cfg.MaxMessagesPerRoom)

	chatHub := server.NewHub(cfg)
	lobbyHub := server.NewHub(cfg)
	hubs := []*server.Hub{chatHub, lobbyHub}

	protocol.NewHandler(registry, chatHub).Register(chatHub)
	protocol.NewSingleRoomHandler(lobby, lobbyHub).Register(lobbyHub)

	// The online counter spans both endpoints: every connection counts from
	// the moment it connects, before any room is joined.
	counter := &chat.OnlineCounter{}
	broadcastCount := func(count int) {
		ev := protocol.OnlineCountUpdateEvent(count)
		for _, h := range hubs {
			h.SendToAll(ev)
		}
	}
	for _, h := range hubs {
		h.OnConnect(func(string) { broadcastCount(counter.Increment()) })
		h.OnDisconnect(func(string) { broadcastCount(counter.Decrement()) })
	}

	for _, h := range hubs {
		go h.Run()
	}
	log.Printf("Hubs started; rooms: %v", registry.Rooms())

	mux := server.SetupRoutes(chatHub, lobbyHub)
	srv := server.CreateServer(cfg.Port, mux)

	go func() {
		if err := server.StartServer(srv); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatalf("Server error: %v", err)
		}
	}()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	<-ctx.Done()

	log.Println("Shutdown signal received")
	if err := server.ShutdownServer(srv, 10*time.Second); err != nil {
		log.Printf("HTTP shutdown: %v", err)
	}
	for _, h := range hubs {
		if err := h.Shutdown(5 * time.Second); err != nil {
			log.Printf("Hub shutdown: %v", err)
		}
	}
}
