// Command gatecache runs the gateway cache as a reverse proxy in front of
// a single upstream.
package main

import (
	"context"
	"errors"
	"net/http"
	"net/http/httputil"
	"net/url"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"

	"github.com/sandrolain/gatecache"
	"github.com/sandrolain/gatecache/diskstore"
	promcollector "github.com/sandrolain/gatecache/metrics/prometheus"
)

type config struct {
	ListenAddr  string        `env:"LISTEN_ADDR" envDefault:":8080"`
	UpstreamURL string        `env:"UPSTREAM_URL,required"`
	Store       string        `env:"STORE" envDefault:"memory"`
	DataDir     string        `env:"DATA_DIR" envDefault:"./gatecache-data"`
	DefaultTTL  time.Duration `env:"DEFAULT_TTL" envDefault:"0"`
	Verbose     bool          `env:"VERBOSE" envDefault:"false"`
	MetricsAddr string        `env:"METRICS_ADDR"`
	Passphrase  string        `env:"ENTITY_PASSPHRASE"`
}

func main() {
	log := zerolog.New(os.Stderr).With().Timestamp().Logger()

	var cfg config
	if err := env.Parse(&cfg); err != nil {
		log.Fatal().Err(err).Msg("configuration error")
	}

	upstream, err := url.Parse(cfg.UpstreamURL)
	if err != nil {
		log.Fatal().Err(err).Str("upstream", cfg.UpstreamURL).Msg("invalid upstream URL")
	}

	opts := []gatecache.Option{
		gatecache.WithVerbose(cfg.Verbose),
		gatecache.WithDefaultTTL(cfg.DefaultTTL),
	}

	switch cfg.Store {
	case "memory":
		// defaults
	case "disk":
		opts = append(opts,
			gatecache.WithMetaStore(diskstore.NewMetaStore(cfg.DataDir)),
			gatecache.WithEntityStore(diskstore.NewEntityStore(cfg.DataDir)),
		)
	default:
		log.Fatal().Str("store", cfg.Store).Msg("unknown store, expected memory or disk")
	}

	if cfg.Passphrase != "" {
		opts = append(opts, gatecache.WithEntityEncryption(cfg.Passphrase))
	}

	if cfg.MetricsAddr != "" {
		opts = append(opts, gatecache.WithCollector(promcollector.NewCollector()))
		go func() {
			mux := http.NewServeMux()
			mux.Handle("/metrics", promhttp.Handler())
			log.Info().Str("addr", cfg.MetricsAddr).Msg("metrics listening")
			if err := http.ListenAndServe(cfg.MetricsAddr, mux); err != nil && !errors.Is(err, http.ErrServerClosed) {
				log.Error().Err(err).Msg("metrics server failed")
			}
		}()
	}

	proxy := httputil.NewSingleHostReverseProxy(upstream)
	gw, err := gatecache.New(gatecache.HandlerOrigin(proxy), opts...)
	if err != nil {
		log.Fatal().Err(err).Msg("gateway setup failed")
	}

	server := &http.Server{
		Addr:              cfg.ListenAddr,
		Handler:           gw.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	go func() {
		log.Info().
			Str("addr", cfg.ListenAddr).
			Str("upstream", upstream.String()).
			Str("store", cfg.Store).
			Msg("gateway listening")
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal().Err(err).Msg("server failed")
		}
	}()

	<-ctx.Done()
	log.Info().Msg("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("shutdown failed")
	}
}
