package main

import (
	"context"
	"log"
	"net/http"

	"github.com/gorilla/mux"
	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/quartzpay/refillgate/internal/api"
	"github.com/quartzpay/refillgate/internal/challenge"
	"github.com/quartzpay/refillgate/internal/config"
	"github.com/quartzpay/refillgate/internal/ledger"
	"github.com/quartzpay/refillgate/internal/pricing"
	"github.com/quartzpay/refillgate/internal/reconcile"
	"github.com/quartzpay/refillgate/internal/settle"
)

const (
	serviceName    = "refillgate"
	serviceVersion = "1.0.0"
)

func main() {
	if err := godotenv.Load(); err == nil {
		log.Println("loaded environment from .env")
	}

	logger, err := zap.NewProduction()
	if err != nil {
		log.Fatalf("failed to initialize logger: %v", err)
	}
	defer logger.Sync()
	zap.ReplaceGlobals(logger)

	cfg, err := config.Load()
	if err != nil {
		logger.Fatal("configuration error", zap.Error(err))
	}

	table := pricing.Default()
	if cfg.PricingFile != "" {
		if table, err = pricing.LoadFile(cfg.PricingFile); err != nil {
			logger.Fatal("pricing table error", zap.Error(err))
		}
	}

	node := ledger.NewNodeClient(cfg.NodeURL, cfg.NodeTimeout)
	chain := ledger.NewService(node, cfg.Network)

	journal, cleanup, err := newJournal(cfg)
	if err != nil {
		logger.Fatal("reconciliation journal error", zap.Error(err))
	}
	defer cleanup()

	var executor *settle.Executor
	if cfg.FundingKey != "" {
		key, err := ledger.ParseKey(cfg.FundingKey)
		if err != nil {
			logger.Fatal("funding key error", zap.Error(err))
		}
		fundingAddr := key.Address(cfg.Network)
		executor = settle.NewExecutor(chain, key, fundingAddr)
		logger.Info("refill delivery enabled", zap.String("funding_address", fundingAddr))
	} else {
		logger.Warn("no funding key configured; refill delivery disabled")
	}

	issuer := challenge.NewIssuer(cfg.PayToAddress, cfg.Network, cfg.ChallengeTTL)
	coord := settle.NewCoordinator(table, issuer, settle.NewVerifier(chain), executor, journal)
	handler := api.NewHandler(coord, table, serviceName, serviceVersion, cfg.Network)

	r := mux.NewRouter()
	r.Handle("/metrics", promhttp.Handler())
	r.Use(api.WithLogging)
	handler.Routes(r)

	logger.Info("server starting",
		zap.String("port", cfg.Port),
		zap.String("network", cfg.Network),
		zap.String("node", cfg.NodeURL),
		zap.Bool("refill_capable", coord.RefillCapable()))
	if err := http.ListenAndServe(":"+cfg.Port, r); err != nil {
		logger.Fatal("server exited", zap.Error(err))
	}
}

// newJournal picks the journal backend: postgres when DB_SOURCE is set,
// an append-only local file otherwise.
func newJournal(cfg *config.Config) (reconcile.Journal, func(), error) {
	if cfg.DBSource != "" {
		pg, err := reconcile.NewPGJournal(context.Background(), cfg.DBSource)
		if err != nil {
			return nil, nil, err
		}
		return pg, pg.Close, nil
	}
	fj, err := reconcile.NewFileJournal(cfg.JournalFile)
	if err != nil {
		return nil, nil, err
	}
	return fj, func() { fj.Close() }, nil
}
