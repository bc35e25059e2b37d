package main

import (
	"context"
	"fmt"
	"os"

	"github.com/gin-gonic/gin"

	"github.com/truthmarkets/integrity-engine/internal/api"
	"github.com/truthmarkets/integrity-engine/internal/cache"
	"github.com/truthmarkets/integrity-engine/internal/cascade"
	"github.com/truthmarkets/integrity-engine/internal/config"
	"github.com/truthmarkets/integrity-engine/internal/db"
	"github.com/truthmarkets/integrity-engine/internal/integrity"
	"github.com/truthmarkets/integrity-engine/internal/logging"
	"github.com/truthmarkets/integrity-engine/internal/metrics"
	"github.com/truthmarkets/integrity-engine/internal/stream"
	"github.com/truthmarkets/integrity-engine/pkg/models"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "FATAL: config: %v\n", err)
		os.Exit(1)
	}

	logger := logging.New(cfg.Logging)
	logger.Info().Msg("Starting TruthMarkets Integrity Engine (Microservice: truthscore-integrity)...")

	gin.SetMode(cfg.Server.Mode)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// ─── Persistence ────────────────────────────────────────────────────
	// The engine runs degraded without Postgres: detectors and the cascade
	// guard stay live, but aggregates, alerts, and follow edges do not
	// survive a restart.
	var store *db.PostgresStore
	if cfg.Database.URL != "" {
		store, err = db.Connect(ctx, cfg.Database.URL, logger)
		if err != nil {
			logger.Warn().Err(err).Msg("Failed to connect to PostgreSQL, continuing without persistence")
			store = nil
		} else {
			defer store.Close()
			if cfg.Database.AutoMigrate {
				if err := store.InitSchema(ctx); err != nil {
					logger.Warn().Err(err).Msg("DB schema init failed")
				}
			}
		}
	} else {
		logger.Warn().Msg("No database URL configured, running without persistence")
	}

	// Redis score cache is likewise optional.
	var scores *cache.ScoreCache
	if cfg.Redis.Addr != "" {
		scores, err = cache.New(ctx, cfg.Redis.Addr, cfg.Redis.Password, cfg.Redis.DB, cfg.Redis.ScoreTTL, logger)
		if err != nil {
			logger.Warn().Err(err).Msg("Failed to connect to Redis, scores computed per-request")
			scores = nil
		} else {
			defer scores.Close()
		}
	}

	reg := metrics.NewRegistry()

	// ─── WebSocket hub + alert fan-out ──────────────────────────────────
	wsHub := api.NewHub(logger)
	go wsHub.Run()

	var alertStore integrity.AlertStore
	if store != nil {
		alertStore = store
	}
	alerts := integrity.NewAlertManager(alertStore, api.BroadcastAlert(wsHub), logger)

	// ─── Engine core ────────────────────────────────────────────────────
	detector := integrity.NewDetector(integrity.ConfigFromThresholds(cfg.Thresholds))
	calculator := integrity.NewCalculator(integrity.ScoreConfigFromThresholds(cfg.Thresholds))

	scoreLookup := func(address string) (models.TruthScore, bool) {
		if store == nil {
			return models.TruthScore{}, false
		}
		agg, err := store.GetAggregate(context.Background(), address)
		if err != nil {
			return models.TruthScore{}, false
		}
		return calculator.ComputeScore(agg), true
	}

	var followRepo cascade.FollowRepository
	if store != nil {
		followRepo = store
	}
	guard := cascade.NewGuard(followRepo, scoreLookup, logger)
	if err := guard.Load(ctx); err != nil {
		logger.Warn().Err(err).Msg("Failed to hydrate follow graph, starting empty")
	}
	reg.FollowEdges.Set(float64(guard.ActiveEdgeCount()))

	var aggStore stream.AggregateStore
	if store != nil {
		aggStore = store
	}
	var invalidator stream.ScoreInvalidator
	if scores != nil {
		invalidator = scores
	}
	processor := stream.NewProcessor(detector, alerts, aggStore, invalidator, reg, 0, logger)

	// ─── HTTP surface ───────────────────────────────────────────────────
	r := api.SetupRouter(api.Deps{
		Store:         store,
		Calculator:    calculator,
		Guard:         guard,
		Scores:        scores,
		Processor:     processor,
		Alerts:        alerts,
		Metrics:       reg,
		Hub:           wsHub,
		OperatorToken: cfg.Server.OperatorToken,
		MinBets:       cfg.Thresholds.LeaderboardMinBets,
		RatePerMin:    cfg.Server.RatePerMinute,
		RateBurst:     cfg.Server.RateBurst,
		RateIdleTTL:   cfg.Server.RateIdleTTL,
		Logger:        logger,
	})

	addr := fmt.Sprintf(":%d", cfg.Server.Port)
	logger.Info().Str("addr", addr).Msg("Engine running (API Node: truthscore-integrity)")
	if err := r.Run(addr); err != nil {
		logger.Fatal().Err(err).Msg("Failed to start server")
	}
}
