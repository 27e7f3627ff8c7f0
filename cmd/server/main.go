// Package main is the entry point for the Trackfolio reconciliation engine.
// The application ingests broker transaction exports into an immutable
// ledger, replays that ledger into current positions, and serves
// currency-normalized portfolio views over HTTP.
//
// The application follows a layered architecture:
// - Domain layer is pure (no infrastructure dependencies)
// - Repository pattern for data access
// - Service layer for business logic
// - HTTP handlers for API endpoints
package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/AxelFooley/trackfolio/internal/clientdata"
	"github.com/AxelFooley/trackfolio/internal/clients/exchangerate"
	"github.com/AxelFooley/trackfolio/internal/clients/prices"
	"github.com/AxelFooley/trackfolio/internal/config"
	"github.com/AxelFooley/trackfolio/internal/database"
	"github.com/AxelFooley/trackfolio/internal/domain"
	"github.com/AxelFooley/trackfolio/internal/modules/aggregation"
	aggregationhandlers "github.com/AxelFooley/trackfolio/internal/modules/aggregation/handlers"
	"github.com/AxelFooley/trackfolio/internal/modules/ledger"
	"github.com/AxelFooley/trackfolio/internal/modules/portfolio"
	portfoliohandlers "github.com/AxelFooley/trackfolio/internal/modules/portfolio/handlers"
	"github.com/AxelFooley/trackfolio/internal/modules/splits"
	"github.com/AxelFooley/trackfolio/internal/scheduler"
	"github.com/AxelFooley/trackfolio/internal/server"
	"github.com/AxelFooley/trackfolio/internal/services"
	"github.com/AxelFooley/trackfolio/pkg/logger"
)

func main() {
	// Load configuration first to get log level
	cfg, err := config.Load()
	if err != nil {
		fallbackLog := logger.New(logger.Config{Level: "info", Pretty: true})
		fallbackLog.Fatal().Err(err).Msg("Failed to load configuration")
	}

	log := logger.New(logger.Config{
		Level:  cfg.LogLevel,
		Pretty: cfg.DevMode,
	})

	log.Info().
		Str("data_dir", cfg.DataDir).
		Str("base_currency", cfg.BaseCurrency).
		Msg("Starting Trackfolio")

	// Open the three databases. The ledger gets the durable profile since it
	// is the audit trail everything else is derived from; client_data is a
	// rebuildable cache and runs with the fast profile.
	ledgerDB, err := database.New(database.Config{
		Path:    cfg.LedgerDBPath(),
		Profile: database.ProfileLedger,
		Name:    "ledger",
	})
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to open ledger database")
	}
	defer ledgerDB.Close()

	portfolioDB, err := database.New(database.Config{
		Path:    cfg.PortfolioDBPath(),
		Profile: database.ProfileStandard,
		Name:    "portfolio",
	})
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to open portfolio database")
	}
	defer portfolioDB.Close()

	// The client_data database is optional: if it cannot be opened the
	// caches run in unavailable mode and every read goes to the live source.
	var clientDataDB *database.DB
	clientDataDB, err = database.New(database.Config{
		Path:    cfg.ClientDataDBPath(),
		Profile: database.ProfileCache,
		Name:    "client_data",
	})
	if err != nil {
		log.Warn().Err(err).Msg("Client data cache unavailable, running without cache")
		clientDataDB = nil
	} else {
		defer clientDataDB.Close()
	}

	for _, db := range []*database.DB{ledgerDB, portfolioDB, clientDataDB} {
		if db == nil {
			continue
		}
		if err := db.Migrate(); err != nil {
			log.Fatal().Err(err).Str("database", db.Name()).Msg("Migration failed")
		}
	}

	// Repositories
	cacheRepo := clientdata.NewRepository(nil)
	if clientDataDB != nil {
		cacheRepo = clientdata.NewRepository(clientDataDB.Conn())
	}
	transactionRepo := ledger.NewTransactionRepository(ledgerDB.Conn(), log)
	positionRepo := portfolio.NewPositionRepository(portfolioDB.Conn(), log)
	splitRepo := splits.NewSplitRepository(portfolioDB.Conn(), log)

	// Services
	detector := splits.NewDetector(log)
	manager := portfolio.NewManager(transactionRepo, positionRepo, splitRepo, detector, log)
	dedupService := ledger.NewDedupService(transactionRepo, log)
	importService := ledger.NewImportService(dedupService, transactionRepo, manager, log)

	rateClient := exchangerate.NewClient(log)
	rateService := services.NewRateService(rateClient, cacheRepo, log)
	priceClient := prices.NewClient(cacheRepo, log)

	securitiesSource := aggregation.NewPositionSource(
		"securities", cfg.BaseCurrency,
		[]domain.AssetClass{domain.AssetClassStock, domain.AssetClassETF},
		positionRepo, priceClient, log,
	)
	cryptoSource := aggregation.NewPositionSource(
		"crypto", cfg.BaseCurrency,
		[]domain.AssetClass{domain.AssetClassCrypto},
		positionRepo, priceClient, log,
	)
	aggregator := aggregation.NewAggregator(
		[]aggregation.Source{securitiesSource, cryptoSource},
		rateService, cacheRepo, cfg.BaseCurrency, log,
	)

	// HTTP server
	portfolioHandlers := portfoliohandlers.NewHandler(
		positionRepo, manager, splitRepo, importService, aggregator, log,
	)
	aggregationHandlers := aggregationhandlers.NewHandler(aggregator, log)

	srv := server.New(server.Config{
		Log:                 log,
		LedgerDB:            ledgerDB,
		PortfolioDB:         portfolioDB,
		ClientDataDB:        clientDataDB,
		Config:              cfg,
		PortfolioHandlers:   portfolioHandlers,
		AggregationHandlers: aggregationHandlers,
	})

	go func() {
		if err := srv.Start(); err != nil && err != http.ErrServerClosed {
			log.Fatal().Err(err).Msg("HTTP server failed")
		}
	}()

	// Background jobs
	sched := scheduler.New(log)

	jobs := []struct {
		schedule string
		job      scheduler.Job
	}{
		{"0 */30 * * * *", scheduler.NewRecalculationJob(manager, aggregator, log)},
		{"0 15 */6 * * *", scheduler.NewSplitDetectionJob(manager, log)},
		{"0 5 * * * *", scheduler.NewFxSyncJob(rateService, positionRepo, cfg.BaseCurrency, log)},
		{"0 0 3 * * *", clientdata.NewCleanupJob(cacheRepo, log)},
	}
	for _, entry := range jobs {
		if err := sched.AddJob(entry.schedule, entry.job); err != nil {
			log.Fatal().Err(err).Str("job", entry.job.Name()).Msg("Failed to register job")
		}
	}
	sched.Start()

	// Wait for interrupt signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info().Msg("Shutting down...")

	sched.Stop()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("Server forced to shutdown")
	}

	log.Info().Msg("Server stopped")
}
