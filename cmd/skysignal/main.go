// Command skysignal runs the aviation intelligence hub: feed adapters,
// the normalization pipeline, aircraft and HFGCS trackers, the EAM
// pipeline, the WebSocket broadcast hub, and the REST API, all in one
// process.
//
// Configuration is environment-driven; every tunable is listed in
// internal/config/defaults.go and resolves as
// runtime override > environment > default.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	charmlog "github.com/charmbracelet/log"

	"skysignal/internal/api"
	"skysignal/internal/config"
	"skysignal/internal/eam"
	"skysignal/internal/events"
	"skysignal/internal/hfgcs"
	"skysignal/internal/hub"
	"skysignal/internal/ingest"
	signalmsg "skysignal/internal/signal"
	"skysignal/internal/sources"
	"skysignal/internal/storage"
	"skysignal/internal/tracker"
)

const shutdownGrace = 10 * time.Second

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "skysignal: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	cfg, err := config.New(config.Defaults())
	if err != nil {
		return err
	}

	logger := charmlog.NewWithOptions(os.Stderr, charmlog.Options{
		ReportTimestamp: true,
	})
	if lvl, err := charmlog.ParseLevel(cfg.String("log", "level")); err == nil {
		logger.SetLevel(lvl)
	}
	logger.Info("starting", "env", cfg.String("server", "node_env"))

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Persistence: embedded state store, optional archive and central.
	db, err := storage.Open(ctx, storage.Config{
		SQLitePath:        cfg.String("storage", "sqlite_path"),
		ClickHouseEnabled: cfg.Bool("storage", "clickhouse_enabled"),
		ClickHouse: storage.ClickHouseConfig{
			Host:     cfg.String("storage", "clickhouse_host"),
			Port:     cfg.Int("storage", "clickhouse_port"),
			Database: cfg.String("storage", "clickhouse_database"),
			User:     cfg.String("storage", "clickhouse_user"),
			Password: cfg.String("storage", "clickhouse_password"),
		},
		PostgresEnabled: cfg.Bool("storage", "postgres_enabled"),
		Postgres: storage.PostgresConfig{
			Host:     cfg.String("storage", "postgres_host"),
			Port:     cfg.Int("storage", "postgres_port"),
			Database: cfg.String("storage", "postgres_database"),
			User:     cfg.String("storage", "postgres_user"),
			Password: cfg.String("storage", "postgres_password"),
		},
	})
	if err != nil {
		return err
	}
	defer db.Close()

	var syncer *storage.Syncer
	if db.Central != nil {
		syncer = storage.NewSyncer(db.StateDB, db.Central,
			time.Duration(cfg.Int("storage", "sync_interval_seconds"))*time.Second, logger)
		syncer.Start()
		defer syncer.Stop()
	}

	// Broadcast hub.
	var origins []string
	if raw := strings.TrimSpace(cfg.String("server", "allowed_origins")); raw != "" {
		for _, o := range strings.Split(raw, ",") {
			if o = strings.TrimSpace(o); o != "" {
				origins = append(origins, o)
			}
		}
	}
	broadcast := hub.New(hub.Config{
		BroadcastInterval: time.Duration(cfg.Int("hub", "broadcast_interval_ms")) * time.Millisecond,
		BatchLimit:        cfg.Int("hub", "batch_limit"),
		QueueWarn:         cfg.Int("hub", "queue_warn_threshold"),
		QueueHardLimit:    cfg.Int("hub", "queue_hard_limit"),
		BackpressureBytes: int64(cfg.Int("hub", "backpressure_bytes")),
		HeartbeatInterval: time.Duration(cfg.Int("hub", "heartbeat_seconds")) * time.Second,
		AllowedOrigins:    origins,
	}, logger)
	broadcast.Start()
	defer broadcast.Stop()

	// Watched-aircraft config and tracker.
	watchCfg, err := hfgcs.LoadConfig(cfg.String("hfgcs", "config_file"))
	if err != nil {
		return err
	}
	watch := hfgcs.NewTracker(hfgcs.TrackerConfig{
		TTL: time.Duration(cfg.Int("hfgcs", "ttl_seconds")) * time.Second,
	}, watchCfg, db, broadcast.Publish, logger)
	watch.Start()
	defer watch.Stop()

	// Aircraft tracker.
	tracks := tracker.New(tracker.Config{
		TrackTTL:       time.Duration(cfg.Int("tracker", "track_ttl_seconds")) * time.Second,
		EvictInterval:  time.Duration(cfg.Int("tracker", "evict_interval_seconds")) * time.Second,
		MaxTrackPoints: cfg.Int("tracker", "max_track_points"),
	}, db, func(tr signalmsg.Track) {
		broadcast.Publish(events.New(events.TypeAircraftLost, tr))
	}, logger)
	tracks.Start()
	defer tracks.Stop()

	// EAM pipeline.
	eams := eam.New(eam.Config{
		Window:             time.Duration(cfg.Int("eam", "window_seconds")) * time.Second,
		PromotionThreshold: cfg.Float("eam", "promotion_threshold"),
		DedupeDepth:        cfg.Int("eam", "dedupe_depth"),
		DedupeWindow:       time.Duration(cfg.Int("eam", "dedupe_window_seconds")) * time.Second,
	}, db, broadcast.Publish, logger)
	eams.Start()
	defer eams.Stop()

	// Normalization: the single dispatch point from adapters to
	// trackers, persistence, and the hub.
	proc := ingest.New(ingest.Config{}, db, watchCfg.ContainsHex,
		func(msg *signalmsg.Message) {
			tracks.Upsert(msg)
			watch.HandleMessage(msg)
			switch msg.Source.Type {
			case signalmsg.SourceADSB:
				broadcast.PublishADSB(msg)
			default:
				broadcast.Publish(events.New(events.TypeACARS, msg))
			}
		},
		eams.HandleSegment,
		logger)

	// Feed adapters.
	mgr := sources.NewManager(logger)

	adsb := sources.NewADSBPoller(sources.ADSBConfig{
		BaseURL:      cfg.String("adsb", "base_url"),
		APIKey:       cfg.String("adsb", "api_key"),
		Lat:          cfg.Float("adsb", "default_lat"),
		Lon:          cfg.Float("adsb", "default_lon"),
		DistNM:       cfg.Int("adsb", "default_dist"),
		PollInterval: time.Duration(cfg.Int("adsb", "poll_interval")) * time.Second,
	}, proc.Process, logger)
	if err := mgr.Register(adsb.Name(), adsb, cfg.Bool("adsb", "enabled")); err != nil {
		return err
	}

	acars := sources.NewACARSWSClient(sources.ACARSWSConfig{
		Endpoints:   jsonStringList(cfg, "acars", "endpoints"),
		MaxAttempts: cfg.Int("acars", "max_attempts"),
	}, proc.Process, logger)
	if err := mgr.Register(acars.Name(), acars, cfg.Bool("acars", "enabled")); err != nil {
		return err
	}

	natsFeed := sources.NewNATSFeed(sources.NATSFeedConfig{
		URL:     cfg.String("natsacars", "url"),
		Subject: cfg.String("natsacars", "subject"),
	}, proc.Process, logger)
	if err := mgr.Register(natsFeed.Name(), natsFeed, cfg.Bool("natsacars", "enabled")); err != nil {
		return err
	}

	eamAPI := sources.NewEAMAPIPoller(sources.EAMAPIConfig{
		BaseURL:      cfg.String("eam_watch", "base_url"),
		APIToken:     cfg.String("eam_watch", "api_token"),
		PollInterval: time.Duration(cfg.Int("eam_watch", "poll_interval")) * time.Second,
		InitialLimit: cfg.Int("eam_watch", "initial_limit"),
	}, proc.Process, logger)
	if err := mgr.Register(eamAPI.Name(), eamAPI, cfg.Bool("eam_watch", "enabled")); err != nil {
		return err
	}

	mgr.StartEnabled()
	defer mgr.StopAll()

	// REST surface and push channel.
	srv := api.New(api.Config{
		Port: cfg.Int("server", "port"),
	}, db, tracks, watch, broadcast, mgr, logger)

	errCh := make(chan error, 1)
	go func() { errCh <- srv.Run() }()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	logger.Info("shutting down")

	// Force exit if a component wedges during teardown.
	timer := time.AfterFunc(shutdownGrace, func() {
		logger.Error("shutdown deadline exceeded; exiting")
		os.Exit(1)
	})
	defer timer.Stop()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownGrace/2)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Warn("http shutdown", "err", err)
	}
	return nil
}

// jsonStringList reads a JSON-schema key that should hold a string
// array, tolerating a single bare string.
func jsonStringList(cfg *config.Registry, category, name string) []string {
	raw, err := cfg.Get(category, name)
	if err != nil {
		return nil
	}
	switch v := raw.(type) {
	case []any:
		var out []string
		for _, e := range v {
			if s, ok := e.(string); ok && s != "" {
				out = append(out, s)
			}
		}
		return out
	case string:
		if v == "" || v == "[]" {
			return nil
		}
		return []string{v}
	}
	return nil
}
