package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"server/internal/adapter/repo"
	"server/internal/dispatch"
	"server/internal/fileproxy"
	"server/internal/http/handlers"
	"server/internal/http/httpapi"
	"server/internal/infra"
	"server/internal/infra/geoip"
	"server/internal/middleware"
	"server/internal/runner"
	"server/internal/storage"
)

func main() {
	// .env is optional; real deployments set the environment directly.
	_ = godotenv.Load()

	cfg, err := infra.LoadConfig()
	if err != nil {
		panic(err)
	}
	logger := infra.NewLogger(cfg.AppEnv)

	ctx := context.Background()
	dbpool, err := infra.NewDBPool(ctx, cfg)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to connect database")
	}
	defer dbpool.Close()

	store, err := storage.NewFileStore(cfg.UploadDir)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to open upload store")
	}
	signer, err := fileproxy.NewSigner(cfg.FileProxySecret)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to build file signer")
	}

	client, err := runner.NewClient(runner.Options{
		BaseURL: cfg.RunnerBaseURL,
		Token:   cfg.RunnerToken,
		Logger:  &logger,
	})
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to build runner client")
	}
	guard := runner.NewGuard(runner.GuardOptions{
		Health: client,
		Waker:  runner.FileWaker{Dir: cfg.RunnerWakeDir},
		Logger: &logger,
	})
	dispatcher := dispatch.NewDispatcher(dispatch.Options{
		Guard:         guard,
		Client:        client,
		Store:         store,
		Signer:        signer,
		AppBaseURL:    cfg.AppBaseURL,
		RunnerBaseURL: cfg.RunnerBaseURL,
		Logger:        &logger,
	})

	var country middleware.CountryLookup
	resolver, err := geoip.NewResolver(cfg.GeoIPDBPath)
	if err != nil {
		logger.Warn().Err(err).Msg("geoip disabled")
	} else if resolver != nil {
		country = resolver.CountryCode
	}

	app := &handlers.App{
		Config:       cfg,
		Logger:       logger,
		Users:        repo.NewUserRepository(dbpool),
		Jobs:         repo.NewJobRepository(dbpool),
		Ledger:       repo.NewLedger(dbpool),
		Dispatcher:   dispatcher,
		Signer:       signer,
		Store:        store,
		FileProxy:    fileproxy.NewHandler(store.BasePath(), signer, &logger),
		RunnerHealth: client,
		HTTPClient:   &http.Client{Timeout: 30 * time.Second},
	}

	router := httpapi.NewRouter(httpapi.Options{
		App:     app,
		Logger:  logger,
		Country: country,
	})

	server := infra.NewHTTPServer(cfg, router)

	go func() {
		logger.Info().Msgf("API listening on :%s", cfg.Port)
		if err := server.Start(); err != nil && err != http.ErrServerClosed {
			logger.Fatal().Err(err).Msg("http server failed")
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)
	<-stop

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.HTTPIdleTimeout)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error().Err(err).Msg("failed to shutdown server")
	}
	logger.Info().Msg("server stopped")
}
