// Command oddscache runs the sports-odds edge cache and fan-out layer.
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/oddscache/oddscache/internal/cachecore"
	"github.com/oddscache/oddscache/internal/coalescer"
	"github.com/oddscache/oddscache/internal/config"
	"github.com/oddscache/oddscache/internal/edge"
	"github.com/oddscache/oddscache/internal/hotkeys"
	"github.com/oddscache/oddscache/internal/provider"
	"github.com/oddscache/oddscache/internal/scheduler"
	"github.com/oddscache/oddscache/internal/workerpool"
)

const (
	appName = "oddscache"
	version = "v1.0.0"
)

func main() {
	zerolog.TimeFieldFormat = time.RFC3339
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.Kitchen})

	rootCmd := &cobra.Command{
		Use:     appName,
		Short:   "real-time sports-odds edge cache and fan-out layer",
		Version: version,
		RunE:    runServe,
	}

	statsCmd := &cobra.Command{
		Use:   "stats",
		Short: "print a one-shot /stats snapshot from a running instance",
		RunE:  runStats,
	}
	statsCmd.Flags().String("addr", "http://localhost:8080", "base URL of a running oddscache instance")

	rootCmd.AddCommand(statsCmd)

	if err := rootCmd.Execute(); err != nil {
		log.Fatal().Err(err).Msg("oddscache exited with error")
	}
}

func runServe(cmd *cobra.Command, args []string) error {
	cfg := config.Load()

	cache := buildCacheStore(cfg)

	shared := coalescer.New()
	hot := hotkeys.New(cache, cfg.OddsHotTTL)
	client := provider.New(provider.Config{
		BaseURL:        cfg.ProviderBaseURL,
		RequestsPerSec: cfg.ProviderRequestsSec,
		Burst:          cfg.ProviderBurst,
		GetTimeout:     cfg.RequestTimeout,
		PostTimeout:    cfg.PostTimeout,
	})

	pool := workerpool.New(workerpool.Config{
		MaxConcurrency: cfg.MaxConcurrency,
		OddsTTL:        cfg.CacheTTL.Odds,
		CallTimeout:    cfg.RequestTimeout,
	}, cache, shared, client)

	sched := scheduler.New(cfg, cache, hot, pool, client)

	handler := edge.New(cfg, cache, shared, hot, client, pool, sched)

	router := mux.NewRouter()
	handler.Routes(router)
	router.Handle("/metrics", promhttp.Handler())

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sched.Start(ctx)
	log.Info().Str("version", version).Msg("oddscache scheduler started")

	srv := &http.Server{Addr: cfg.HTTPAddr, Handler: router}
	go func() {
		log.Info().Str("addr", cfg.HTTPAddr).Msg("oddscache http server listening")
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Error().Err(err).Msg("http server error")
		}
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	<-sigCh

	log.Info().Msg("shutting down")
	sched.Stop()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	return srv.Shutdown(shutdownCtx)
}

func buildCacheStore(cfg config.Config) cachecore.Store {
	if cfg.CacheEnabled {
		return cachecore.NewRedisCacheStore(cfg.CacheBackendURL)
	}
	return cachecore.NewMemoryCacheStore(cfg.StaleMultiplier)
}

func runStats(cmd *cobra.Command, args []string) error {
	addr, _ := cmd.Flags().GetString("addr")
	resp, err := http.Get(addr + "/stats")
	if err != nil {
		return fmt.Errorf("fetch stats: %w", err)
	}
	defer resp.Body.Close()

	var v interface{}
	if err := json.NewDecoder(resp.Body).Decode(&v); err != nil {
		return fmt.Errorf("decode stats: %w", err)
	}
	out, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return err
	}
	fmt.Println(string(out))
	return nil
}
