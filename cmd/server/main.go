package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	goruntime "runtime"
	"syscall"
	"time"

	"github.com/Netflix/go-env"
	"github.com/dgraph-io/badger/v4"
	"github.com/joho/godotenv"

	"chat-relay/infrastructure/rest"
	"chat-relay/infrastructure/ws"
	"chat-relay/internal"
	"chat-relay/presence"
	"chat-relay/repositories"
	"chat-relay/runtime"
	"chat-relay/runtime/workers"
	"chat-relay/storage"
)

// Exit codes to provide meaningful status to the operating system or a
// service manager.
const (
	exitOK      = 0
	exitRuntime = 1
	exitConfig  = 2
)

func main() {
	// main is a thin wrapper: call run() and hand the OS the exit code.
	code, err := run()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Relay terminated with error: %v\n", err)
	}
	os.Exit(code)
}

// run initializes all components, manages the server lifecycle, and
// centralizes error reporting, so deferred cleanups (database close)
// always execute before the process exits.
func run() (int, error) {
	// 1. Configuration & logger
	_ = godotenv.Load()
	var config internal.Config
	if _, err := env.UnmarshalFromEnviron(&config); err != nil {
		return exitConfig, fmt.Errorf("config error: %w", err)
	}
	perRoomTyping, err := config.TypingPerRoom()
	if err != nil {
		return exitConfig, err
	}

	logger := internal.GetLoggerFromString(config.LogLevel)
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// 2. Database (BadgerDB)
	db, err := badger.Open(badger.DefaultOptions(config.BadgerFilepath).
		WithLoggingLevel(badger.WARNING))
	if err != nil {
		return exitRuntime, fmt.Errorf("database opening failed: %w", err)
	}
	defer func() {
		logger.Info("Closing BadgerDB...")
		_ = db.Close()
	}()

	if logger.Enabled(ctx, slog.LevelDebug) {
		url := fmt.Sprintf("http://localhost:%d/inspect", config.DebugPort)
		logger.Info("Debug Badger inspector available", "url", url)
		internal.StartDebugServer(db, config.DebugPort, "/inspect", internal.ChatMapper, debugStats)
	}

	// 3. Stores and coordination state
	rooms := repositories.NewRoomRepository(db, logger)
	messages := repositories.NewMessageRepository(db, logger, config.HistoryLimit)
	blobs, err := storage.NewDiskBlobStore(config.UploadDir, logger)
	if err != nil {
		return exitRuntime, err
	}

	tracker := presence.NewTracker(perRoomTyping)
	orchestrator := runtime.NewOrchestrator(logger, workers.NewSupervisor(logger),
		runtime.NewRegistry(), tracker, rooms, messages, config.EventBufferSize)

	orchestratorDone := make(chan struct{})
	go func() {
		defer close(orchestratorDone)
		_ = orchestrator.Start(ctx)
	}()

	// 4. HTTP + WebSocket surface
	wsHandler := ws.NewHandler(orchestrator, logger, ws.Options{
		SendBufferSize: config.SendBufferSize,
		MaxMessageSize: config.MaxMessageSize,
		PongTimeout:    config.PongTimeout,
		WriteTimeout:   config.WriteTimeout,
	})
	gateway := rest.NewGateway(rooms, messages, blobs, orchestrator, logger, config.MaxUploadSize)

	server := &http.Server{
		Addr:    fmt.Sprintf("%s:%d", config.Host, config.Port),
		Handler: rest.Routes(gateway, wsHandler, blobs),
	}

	serverErr := make(chan error, 1)
	go func() {
		logger.Info("Relay listening", "addr", server.Addr, "typingPerRoom", perRoomTyping)
		serverErr <- server.ListenAndServe()
	}()

	// 5. Wait for shutdown signal or server failure
	select {
	case err := <-serverErr:
		orchestrator.Stop()
		return exitRuntime, fmt.Errorf("http server failed: %w", err)
	case <-ctx.Done():
	}

	logger.Info("Shutting down...")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil && !errors.Is(err, context.DeadlineExceeded) {
		logger.Warn("HTTP shutdown incomplete", "error", err)
	}

	orchestrator.Stop()
	<-orchestratorDone
	return exitOK, nil
}

func debugStats() map[string]any {
	var mem goruntime.MemStats
	goruntime.ReadMemStats(&mem)
	return map[string]any{
		"Goroutines": goruntime.NumGoroutine(),
		"AllocMB":    mem.Alloc / 1024 / 1024,
		"Time":       time.Now().Format(time.RFC822),
	}
}
