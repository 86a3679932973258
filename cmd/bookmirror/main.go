package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"bookmirror/internal/book"
	"bookmirror/internal/config"
	"bookmirror/internal/feed"
	"bookmirror/internal/server"

	"github.com/joho/godotenv"
)

func main() {
	_ = godotenv.Load() // best-effort: .env is optional

	path := "config.yaml"
	if len(os.Args) > 1 {
		path = os.Args[1]
	}
	cfg, err := config.Load(path)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load %s: %v\n", path, err)
		os.Exit(1)
	}

	logger := config.NewLogger(cfg.LogLevel)

	logger.Info("bookmirror starting",
		slog.Int("port", cfg.Port),
		slog.String("symbol", cfg.Symbol),
		slog.String("binance_ws_url", cfg.BinanceWSURL),
	)

	// Shared book state
	ob := book.New(cfg.Symbol)

	// Binance feed
	fd := feed.NewBinanceFeed(
		cfg.BinanceWSURL,
		cfg.Symbol,
		cfg.FeedBuffer,
		time.Duration(cfg.ReconnectMaxSeconds)*time.Second,
		logger,
	)

	// HTTP server + WS hub
	srv := server.NewHTTPServer(cfg, ob, fd, logger)

	// Context & signals
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Start feed (connect loop)
	go fd.Run(ctx, func(connected bool) {
		srv.BroadcastStatus()
	})

	// Pipe feed -> book -> hub
	go func() {
		for {
			select {
			case upd, ok := <-fd.Updates():
				if !ok {
					return
				}
				if err := ob.Apply(upd); err != nil {
					// Non-fatal: drop the update, keep the book serving.
					logger.Warn("update dropped",
						slog.Uint64("update_id", upd.UpdateID()),
						slog.String("err", err.Error()),
					)
					continue
				}
				srv.BroadcastTick()
			case err := <-fd.Errors():
				if err != nil {
					logger.Warn("feed error", slog.String("err", err.Error()))
					srv.BroadcastError(err.Error())
				}
			case <-ctx.Done():
				return
			}
		}
	}()

	// HTTP serving
	httpSrv := &http.Server{
		Addr:    fmt.Sprintf(":%d", cfg.Port),
		Handler: srv.Router(),
	}

	done := make(chan struct{})
	go func() {
		logger.Info("HTTP server listening", slog.Int("port", cfg.Port))
		if err := httpSrv.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
			logger.Error("http server failed", slog.String("err", err.Error()))
			cancel()
		}
		close(done)
	}()

	// Graceful shutdown
	sigc := make(chan os.Signal, 1)
	signal.Notify(sigc, syscall.SIGINT, syscall.SIGTERM)
	select {
	case <-sigc:
	case <-ctx.Done():
	}

	logger.Info("shutting down...")
	shCtx, shCancel := context.WithTimeout(context.Background(), 8*time.Second)
	defer shCancel()

	_ = httpSrv.Shutdown(shCtx)
	fd.Close()
	<-done
	logger.Info("bye")
}
