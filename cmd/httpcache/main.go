package main

import (
	"context"
	"errors"
	"flag"
	"io"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/always-cache/httpcache"
	"github.com/always-cache/httpcache/cache"
	"github.com/always-cache/httpcache/internal/config"
	"github.com/always-cache/httpcache/internal/server"
	cachekey "github.com/always-cache/httpcache/pkg/cache-key"
	"github.com/always-cache/httpcache/pkg/refresh"

	"github.com/hibiken/asynq"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

var (
	// CLI flags
	configFlag         string
	listenFlag         string
	originFlag         string
	hostFlag           string
	verbosityTraceFlag bool
	logFilenameFlag    string

	// this is set by goreleaser
	version string
)

func init() {
	flag.StringVar(&configFlag, "config", "", "Config file (yaml); HTTPCACHE_* environment variables take precedence")
	flag.StringVar(&listenFlag, "listen", "", "Address of the admin API (overrides config)")
	flag.StringVar(&originFlag, "origin", "", "Origin URL that refresh jobs revalidate against")
	flag.StringVar(&hostFlag, "host", "", "Hostname of origin, if the origin URL is an IP address")
	flag.BoolVar(&verbosityTraceFlag, "vv", false, "Verbosity: trace logging")
	flag.StringVar(&logFilenameFlag, "log-file", "", "Log file to use (in addition to stdout)")

	if version == "" {
		version = "DEV"
	}
}

func main() {
	flag.Parse()

	cfg, err := config.Load(configFlag)
	if err != nil {
		log.Fatal().Err(err).Msg("Could not load config")
	}

	// set log level
	logLevel := cfg.LogLevel()
	if verbosityTraceFlag {
		logLevel = zerolog.TraceLevel
	}

	// set up log output to stdout
	// also output to logfile if specified
	logFilename := cfg.Log.File
	if logFilenameFlag != "" {
		logFilename = logFilenameFlag
	}
	logOutputs := make([]io.Writer, 0)
	logOutputs = append(logOutputs, zerolog.ConsoleWriter{Out: os.Stdout})
	if logFilename != "" {
		if logFileOutput, err := os.OpenFile(logFilename, os.O_APPEND|os.O_WRONLY|os.O_CREATE, 0644); err != nil {
			log.Fatal().Err(err).Msg("Cannot open log file")
		} else {
			logOutputs = append(logOutputs, logFileOutput)
		}
	}
	multiWriter := zerolog.MultiLevelWriter(logOutputs...)
	log.Logger = log.Level(logLevel).Output(multiWriter).
		With().Str("version", version).Logger()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	provider, err := cache.Open(ctx, cfg.Storage.Provider, cfg.Storage.DSN)
	if err != nil {
		log.Fatal().Err(err).Str("provider", cfg.Storage.Provider).Msg("Could not open cache storage")
	}
	keyer := cachekey.New(cfg.Namespace)

	storeConfig := httpcache.Config{
		Provider: provider,
		Keyer:    keyer,
		Policy:   cfg.CachePolicy(),
		Rules:    cfg.Rules,
		Logger:   &log.Logger,
	}

	var (
		refreshClient *refresh.Client
		worker        *asynq.Server
	)
	if cfg.HasRefresh() {
		refreshClient = refresh.NewClient(cfg.Refresh.RedisAddr, keyer, log.Logger)
		refreshClient.Timeout = cfg.RefreshTimeout()
		storeConfig.Refresher = refreshClient
	}
	store := httpcache.New(storeConfig)
	defer store.Close()

	if refreshClient != nil {
		defer refreshClient.Close()
		if originFlag == "" {
			log.Warn().Msg("No origin specified, refresh jobs are queued but not processed here")
		} else {
			fetcher, err := newOriginFetcher(originFlag, hostFlag)
			if err != nil {
				log.Fatal().Err(err).Msg("Could not parse origin url")
			}
			worker = refresh.NewServer(cfg.Refresh.RedisAddr, cfg.Refresh.Concurrency, log.Logger)
			mux := asynq.NewServeMux()
			refresh.NewWorker(store, fetcher, log.Logger).Register(mux)
			if err := worker.Start(mux); err != nil {
				log.Fatal().Err(err).Msg("Could not start refresh worker")
			}
			log.Info().Msgf("Refreshing from %s (with hostname '%s')", originFlag, hostFlag)
		}
	}

	var sweeperDone <-chan struct{}
	if interval := cfg.SweepInterval(); interval > 0 {
		sweeperDone = store.StartSweeper(ctx, interval, cfg.SweepCeiling())
	}

	listen := cfg.Server.Listen
	if listenFlag != "" {
		listen = listenFlag
	}
	admin := &http.Server{
		Addr: listen,
		Handler: server.New(server.Options{
			Store:        store,
			Logger:       log.Logger,
			SweepCeiling: cfg.SweepCeiling(),
		}),
	}
	go func() {
		log.Info().Msgf("Serving admin API on %s with %s storage", listen, cfg.Storage.Provider)
		if err := admin.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal().Err(err).Msg("Admin API failed")
		}
	}()

	<-ctx.Done()
	log.Info().Msg("Shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := admin.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("Could not shut down admin API")
	}
	if worker != nil {
		worker.Shutdown()
	}
	if sweeperDone != nil {
		<-sweeperDone
	}
}
