package main

import (
	"context"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/dgallion1/legalparse/internal/api"
	"github.com/dgallion1/legalparse/internal/config"
	"github.com/dgallion1/legalparse/internal/grammar"
	"github.com/dgallion1/legalparse/internal/hierarchy"
	"github.com/dgallion1/legalparse/internal/pathstore"
	"github.com/dgallion1/legalparse/internal/pipeline"
)

func main() {
	log := slog.New(slog.NewJSONHandler(os.Stdout, nil))

	cfg := config.Load()
	if err := cfg.Validate(); err != nil {
		log.Error("invalid configuration", "error", err)
		os.Exit(1)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	g := grammar.Default()
	if cfg.GrammarFile != "" {
		var err error
		if g, err = grammar.LoadFile(cfg.GrammarFile); err != nil {
			log.Error("loading grammar", "file", cfg.GrammarFile, "error", err)
			os.Exit(1)
		}
	}
	parser, err := hierarchy.New(g,
		hierarchy.WithLogger(log.With("component", "hierarchy")),
		hierarchy.WithMaxLines(cfg.MaxLines),
	)
	if err != nil {
		log.Error("building parser", "error", err)
		os.Exit(1)
	}

	// Persistence: remote pathstore when configured, otherwise in-process.
	var store pathstore.Store
	var ps *pathstore.Client
	if cfg.PathstoreURL != "" {
		ps = pathstore.NewClient(cfg.PathstoreURL, cfg.PathstoreAPIKey)
		store = ps
	} else {
		log.Warn("PATHSTORE_URL not set, storing acts in memory")
		store = pathstore.NewMemoryStore()
	}

	orch := pipeline.NewOrchestrator(cfg, parser, store, log)
	orch.Start(ctx)

	srv := api.NewServer(orch, log, cfg)

	httpServer := &http.Server{
		Addr:         ":" + cfg.Port,
		Handler:      srv,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 120 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	// Graceful shutdown.
	go func() {
		sigCh := make(chan os.Signal, 1)
		signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
		<-sigCh
		log.Info("shutting down...")

		orch.Stop()

		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer shutdownCancel()
		httpServer.Shutdown(shutdownCtx)

		if ps != nil {
			ps.Close()
		}
	}()

	log.Info("starting legalparse", "port", cfg.Port, "grammar", g.Name())
	if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		log.Error("server error", "error", err)
		os.Exit(1)
	}
}
