// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

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

	"github.com/spf13/cobra"

	"github.com/AleutianAI/salespilot/pkg/logging"
	"github.com/AleutianAI/salespilot/services/salesbot/bot"
	"github.com/AleutianAI/salespilot/services/salesbot/compact"
	"github.com/AleutianAI/salespilot/services/salesbot/config"
	"github.com/AleutianAI/salespilot/services/salesbot/embed"
	"github.com/AleutianAI/salespilot/services/salesbot/handlers"
	"github.com/AleutianAI/salespilot/services/salesbot/kb"
	"github.com/AleutianAI/salespilot/services/salesbot/llm"
	"github.com/AleutianAI/salespilot/services/salesbot/observability"
	"github.com/AleutianAI/salespilot/services/salesbot/routes"
	"github.com/AleutianAI/salespilot/services/salesbot/session"
)

const serviceVersion = "0.3.0"

func runServe(cmd *cobra.Command, args []string) error {
	st := config.LoadSettings()
	if logLevel != "" {
		st.LogLevel = logLevel
	}
	if logDir != "" {
		st.LogDir = logDir
	}

	logger := logging.New(logging.Config{
		Level:   logging.ParseLevel(st.LogLevel),
		LogDir:  st.LogDir,
		Service: "salesbot",
		JSON:    jsonLogs,
	})
	defer logger.Close()
	slg := logger.Slog()
	slog.SetDefault(slg)

	shutdownMetrics, err := observability.Init("salespilot", serviceVersion)
	if err != nil {
		return fmt.Errorf("init telemetry: %w", err)
	}

	deps, cleanup, err := buildDeps(st, slg)
	if err != nil {
		return err
	}
	defer cleanup()

	buffer, err := session.OpenBuffer(st.SnapshotBufferPath, slg)
	if err != nil {
		return fmt.Errorf("open snapshot buffer: %w", err)
	}
	defer buffer.Close()

	locks, err := session.NewLockManager(st.SessionLockDir, slg)
	if err != nil {
		return fmt.Errorf("lock manager: %w", err)
	}

	// External snapshot tier: SQL when DB_PATH is set (with the
	// profile projection), Badger otherwise.
	var (
		snapStore session.SnapshotStore
		profiles  handlers.ProfileReader
	)
	if st.DBPath != "" {
		store, err := session.OpenSQLStore(st.DBPath, slg)
		if err != nil {
			return fmt.Errorf("open conversation store: %w", err)
		}
		defer store.Close()
		snapStore = store
		profiles = store
	} else {
		store, err := session.OpenBadgerStore(session.DefaultBadgerConfig(st.SnapshotStoreDir))
		if err != nil {
			return fmt.Errorf("open snapshot store: %w", err)
		}
		defer store.Close()
		snapStore = store
		slg.Info("DB_PATH not set, using badger snapshot store; profile endpoint disabled")
	}

	mgrCfg := session.DefaultManagerConfig()
	mgrCfg.FlushHour = st.FlushHour
	mgrCfg.RequireClientID = st.RequireClientID
	mgr := session.NewManager(mgrCfg, deps, nil, buffer, snapStore, locks, slg)

	h := handlers.New(mgr, profiles, deps.LLM, serviceVersion, slg)
	engine := routes.New(h, st.APIKey, slg)

	addr := listenAddr
	if addr == "" {
		addr = ":" + st.Port
	}
	srv := &http.Server{
		Addr:              addr,
		Handler:           engine,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		slg.Info("salespilot listening", "addr", srv.Addr, "version", serviceVersion)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt, syscall.SIGTERM)
	select {
	case err := <-errCh:
		return fmt.Errorf("http server: %w", err)
	case sig := <-stop:
		slg.Info("shutting down", "signal", sig.String())
	}

	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		slg.Error("http shutdown", "error", err)
	}
	if err := shutdownMetrics(ctx); err != nil {
		slg.Error("telemetry shutdown", "error", err)
	}
	return nil
}

// buildDeps wires the pipeline dependencies: the LLM backend is
// required, the embedder and knowledge base degrade to disabled or
// static when unconfigured.
func buildDeps(st config.Settings, slg *slog.Logger) (bot.Deps, func(), error) {
	backend, err := llm.NewOpenAIBackend(llm.OpenAIBackendConfig{
		BaseURL: st.LLMBaseURL,
		APIKey:  st.LLMAPIKey,
		Model:   st.LLMModel,
		Logger:  slg,
	})
	if err != nil {
		return bot.Deps{}, nil, fmt.Errorf("llm backend: %w", err)
	}
	client := llm.NewClient(backend, llm.DefaultRetryConfig(), llm.DefaultBreakerConfig(), slg)

	var embedder embed.Embedder
	if embedURL := os.Getenv("EMBED_SERVER_URL"); embedURL != "" {
		embedder, err = embed.NewOllamaEmbedder(embedURL, st.EmbedderModel)
		if err != nil {
			return bot.Deps{}, nil, fmt.Errorf("embedder: %w", err)
		}
	} else {
		slg.Info("EMBED_SERVER_URL not set, semantic tiers disabled")
	}

	flags := config.NewFlags(slg)
	cleanup := func() {}
	if overrides := st.FlagOverridesPath; overrides != "" {
		stopWatch, err := flags.WatchOverrides(overrides)
		if err != nil {
			slg.Warn("cannot watch flag overrides", "file", overrides, "error", err)
		} else {
			cleanup = func() {
				if err := stopWatch(); err != nil {
					slg.Warn("flag watcher shutdown", "error", err)
				}
			}
		}
	}

	return bot.Deps{
		Flags:      flags,
		Thresholds: config.DefaultFrustrationThresholds(),
		LLM:        client,
		Embedder:   embedder,
		Retriever:  kb.NewStatic(),
		Compactor:  compact.New(client, backend.ModelName(), slg),
		Logger:     slg,
	}, cleanup, nil
}
