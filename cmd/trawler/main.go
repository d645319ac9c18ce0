package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog"

	"github.com/trawler/trawler/internal/api"
	"github.com/trawler/trawler/internal/config"
	"github.com/trawler/trawler/internal/database"
	"github.com/trawler/trawler/internal/indexer"
	"github.com/trawler/trawler/internal/indexer/cookiestore"
	"github.com/trawler/trawler/internal/indexer/defs/htmlsite"
	"github.com/trawler/trawler/internal/indexer/defs/torznab"
	"github.com/trawler/trawler/internal/indexer/httpexec"
	"github.com/trawler/trawler/internal/indexer/search"
	"github.com/trawler/trawler/internal/indexer/session"
	"github.com/trawler/trawler/internal/indexer/types"
	"github.com/trawler/trawler/internal/logger"
)

func main() {
	// Local development convenience; missing .env files are fine.
	_ = godotenv.Load()

	configPath := flag.String("config", "", "Path to config file")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
		os.Exit(1)
	}

	log := logger.New(logger.Config{
		Level:      cfg.Logging.Level,
		Format:     cfg.Logging.Format,
		Path:       cfg.Logging.Path,
		MaxSizeMB:  cfg.Logging.MaxSizeMB,
		MaxBackups: cfg.Logging.MaxBackups,
		MaxAgeDays: cfg.Logging.MaxAgeDays,
		Compress:   cfg.Logging.Compress,
	})
	defer log.Close()

	log.Info().Str("logLevel", cfg.Logging.Level).Msg("starting trawler")

	if err := os.MkdirAll(filepath.Dir(cfg.Database.Path), 0755); err != nil {
		log.Fatal().Err(err).Msg("failed to create data directory")
	}

	db, err := database.New(cfg.Database.Path)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to open database")
	}
	defer db.Close()

	if err := db.Migrate(); err != nil {
		log.Fatal().Err(err).Msg("failed to run migrations")
	}

	store := cookiestore.New(db.Conn(), log.Logger)

	registry := indexer.NewRegistry()
	for _, ic := range cfg.Indexers {
		engine, err := buildEngine(cfg, ic, store, log.Logger)
		if err != nil {
			log.Error().Err(err).Str("indexer", ic.Name).Msg("skipping indexer")
			continue
		}
		if err := registry.Add(engine); err != nil {
			log.Error().Err(err).Msg("skipping indexer")
			continue
		}
		log.Info().
			Str("indexer", engine.Name()).
			Str("protocol", string(engine.Protocol())).
			Msg("indexer configured")
	}
	log.Info().Int("count", registry.Len()).Msg("indexers loaded")

	server := api.NewServer(db, registry, cfg, log.Logger)

	errCh := make(chan error, 1)
	go func() {
		errCh <- server.Start()
	}()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	select {
	case err := <-errCh:
		if err != nil {
			log.Fatal().Err(err).Msg("server failed")
		}
	case <-ctx.Done():
		log.Info().Msg("shutting down")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			log.Error().Err(err).Msg("shutdown did not complete cleanly")
		}
	}
}

// buildEngine wires one configured indexer: definition, executor,
// session manager, and engine.
func buildEngine(cfg *config.Config, ic config.IndexerConfig, store session.Store, log zerolog.Logger) (*indexer.Engine, error) {
	execCfg := httpexec.Config{
		RequestInterval: time.Duration(cfg.Limits.RequestIntervalSeconds) * time.Second,
		QueryLimit:      cfg.Limits.QueriesPerHour,
		QueryPeriod:     time.Hour,
		GrabLimit:       cfg.Limits.GrabsPerHour,
		GrabPeriod:      time.Hour,
	}

	switch ic.Type {
	case "torznab":
		if ic.Name == "" || ic.URL == "" {
			return nil, fmt.Errorf("torznab indexers need a name and url")
		}
		def := torznab.New(torznab.Settings{
			Name:    ic.Name,
			BaseURL: ic.URL,
			APIKey:  ic.APIKey,
		}, torznab.DefaultCapabilities())

		exec := httpexec.NewExecutor(ic.Name, execCfg, log)
		return indexer.NewEngine(def, exec, nil, search.Options{}, log), nil

	case "definition", "":
		if ic.Definition == "" {
			return nil, fmt.Errorf("definition indexers need a definition file")
		}
		spec, err := htmlsite.ParseFile(filepath.Join(cfg.Definitions.Dir, ic.Definition))
		if err != nil {
			return nil, err
		}
		if spec.RequestDelay > 0 {
			execCfg.RequestInterval = time.Duration(spec.RequestDelay * float64(time.Second))
		}

		// The executor is built after the session manager, so the site's
		// fetch hook closes over the variable rather than the value.
		var exec *httpexec.Executor
		fetch := func(ctx context.Context, req *types.Request) (*types.Response, error) {
			return exec.Download(ctx, req)
		}

		site, err := htmlsite.New(spec, ic.Settings, fetch)
		if err != nil {
			return nil, err
		}

		var sess *session.Manager
		opts := []httpexec.Option{}
		if flow := site.LoginFlow(); flow != nil {
			exchange, err := session.NewExchange(spec.BaseURL, log)
			if err != nil {
				return nil, err
			}
			sessOpts := []session.Option{session.WithStore(store)}
			if check := site.LoginCheck(); check != nil {
				sessOpts = append(sessOpts, session.WithLoginCheck(check))
			}
			sess = session.NewManager(site.Name(), flow, exchange, log, sessOpts...)
			opts = append(opts, httpexec.WithAuthHook(sess))
		}

		exec = httpexec.NewExecutor(site.Name(), execCfg, log, opts...)
		return indexer.NewEngine(site, exec, sess, search.Options{}, log), nil

	default:
		return nil, fmt.Errorf("unknown indexer type %q", ic.Type)
	}
}
