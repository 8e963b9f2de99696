// Command server runs the core replication and query engine: it loads
// configuration from the environment, opens the PostgreSQL store,
// applies embedded migrations, and serves the HTTP surface until
// an interrupt or TERM signal arrives.
package main

import (
	"context"
	"encoding/base64"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/futo-org/polycentric-sub000/internal/auth"
	"github.com/futo-org/polycentric-sub000/internal/config"
	"github.com/futo-org/polycentric-sub000/internal/database"
	"github.com/futo-org/polycentric-sub000/internal/httpapi"
	"github.com/futo-org/polycentric-sub000/internal/ingest"
	"github.com/futo-org/polycentric-sub000/internal/logging"
	"github.com/futo-org/polycentric-sub000/internal/model"
	"github.com/futo-org/polycentric-sub000/internal/moderation"
	"github.com/futo-org/polycentric-sub000/internal/query"
	"github.com/futo-org/polycentric-sub000/internal/sink"
	"github.com/futo-org/polycentric-sub000/internal/store/postgres"
)

// version is overridden at build time via -ldflags "-X main.version=...".
var version = "dev"

func main() {
	cfg, err := config.Load()
	if err != nil {
		logging.NewDefault().WithField("error", err).Fatal("load configuration")
	}

	log := logging.New(logging.Config{Level: cfg.Logging.Level, Format: cfg.Logging.Format})

	rootCtx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	db, err := database.Open(rootCtx, cfg.Database.DSN)
	if err != nil {
		log.WithField("error", err).Fatal("connect to postgres")
	}
	defer db.Close()
	database.ConfigurePool(db, cfg.Database.MaxOpenConns, cfg.Database.MaxIdleConns)

	store := postgres.New(db)

	if cfg.Database.MigrateOnStart {
		if err := postgres.ApplyMigrations(rootCtx, db); err != nil {
			log.WithField("error", err).Fatal("apply migrations")
		}
	}

	sinkPool := buildSinkPool(cfg, log)
	var sinkForIngest ingest.Sink
	if sinkPool != nil {
		go sinkPool.Run(rootCtx)
		sinkForIngest = sinkPool
	}

	ingestEngine := ingest.New(store, sinkForIngest, log)

	authMgr := buildAuthManager(cfg, log)

	modFilter := &moderation.StoreFilter{Store: store}
	queryEngine := query.New(store, modFilter)

	if cfg.Moderation.Enabled {
		csam, tag := buildClassifiers(cfg)
		coordinator := moderation.New(store, csam, tag, cfg.Moderation.BatchSize, parseDurationOr(cfg.Moderation.PollInterval, 2*time.Second), log)
		go coordinator.Run(rootCtx)
	}

	server := httpapi.New(ingestEngine, queryEngine, store, authMgr, log, version)

	httpServer := &http.Server{
		Addr:              cfg.Server.Addr,
		Handler:           server,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		<-rootCtx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := httpServer.Shutdown(shutdownCtx); err != nil {
			log.WithField("error", err).Warn("http shutdown")
		}
	}()

	log.WithField("addr", cfg.Server.Addr).Info("listening")
	if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		log.WithField("error", err).Fatal("http server")
	}
}

// buildSinkPool wires the external sink adapter against whatever
// targets are configured; a deployment with neither URL set runs
// without a sink.
func buildSinkPool(cfg *config.Config, log *logging.Logger) *sink.Pool {
	var targets []sink.Target
	if cfg.Sink.SearchIndexURL != "" {
		targets = append(targets, sink.NewSearchIndexTarget(cfg.Sink.SearchIndexURL))
	}
	if cfg.Sink.PeerServerURL != "" {
		targets = append(targets, sink.NewPeerServerTarget(cfg.Sink.PeerServerURL))
	}
	if len(targets) == 0 {
		return nil
	}
	return sink.NewPool(targets, cfg.Sink.MaxConcurrency, 50, 1000, log)
}

// buildAuthManager decodes the configured admin public keys and builds
// the challenge-sign-redeem manager gating /purge and /censor. Returns
// nil (administrative endpoints disabled) if no secret is configured.
func buildAuthManager(cfg *config.Config, log *logging.Logger) *auth.Manager {
	if cfg.Auth.ChallengeSecret == "" {
		log.Warn("AUTH_CHALLENGE_SECRET unset; administrative endpoints disabled")
		return nil
	}

	var adminKeys []model.PublicKey
	for _, raw := range cfg.Auth.AdminPublicKeysB64 {
		if raw == "" {
			continue
		}
		decoded, err := base64.URLEncoding.DecodeString(raw)
		if err != nil {
			log.WithField("error", err).Warn("skipping malformed admin key")
			continue
		}
		key, err := model.DecodePublicKey(decoded)
		if err != nil {
			log.WithField("error", err).Warn("skipping malformed admin key")
			continue
		}
		adminKeys = append(adminKeys, key)
	}

	ttl := time.Duration(cfg.Auth.ChallengeTTLSeconds) * time.Second
	return auth.NewManager([]byte(cfg.Auth.ChallengeSecret), ttl, adminKeys)
}

// buildClassifiers wires the configured moderation providers; an
// unconfigured tag endpoint is skipped (CSAM-only moderation), and an
// unconfigured CSAM endpoint leaves the coordinator without a CSAM
// classifier entirely, since moderation as a whole is opt-in.
func buildClassifiers(cfg *config.Config) (moderation.CSAMClassifier, moderation.TagClassifier) {
	var csam moderation.CSAMClassifier
	if cfg.Moderation.AzureCSAMEndpoint != "" {
		csam = moderation.NewAzureCSAMClassifier(cfg.Moderation.AzureCSAMEndpoint, cfg.Moderation.AzureCSAMKey, nil)
	}
	var tag moderation.TagClassifier
	if cfg.Moderation.AzureTagEndpoint != "" {
		tag = moderation.NewAzureContentSafety(cfg.Moderation.AzureTagEndpoint, cfg.Moderation.AzureTagKey, nil)
	}
	return csam, tag
}

func parseDurationOr(s string, fallback time.Duration) time.Duration {
	d, err := time.ParseDuration(s)
	if err != nil || d <= 0 {
		return fallback
	}
	return d
}
