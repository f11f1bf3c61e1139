package main

import (
	"context"
	"fmt"
	"os"

	"github.com/mavuno/demand-engine/internal/auth"
	"github.com/mavuno/demand-engine/internal/config"
	"github.com/mavuno/demand-engine/internal/coordinator"
	"github.com/mavuno/demand-engine/internal/db"
	"github.com/mavuno/demand-engine/internal/engine"
	"github.com/mavuno/demand-engine/internal/events"
	"github.com/mavuno/demand-engine/internal/export"
	httphandler "github.com/mavuno/demand-engine/internal/http"
	"github.com/mavuno/demand-engine/internal/http/middleware"
	"github.com/mavuno/demand-engine/internal/logger"
	"github.com/mavuno/demand-engine/internal/repository"
	"github.com/mavuno/demand-engine/internal/sweeper"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
		os.Exit(1)
	}

	log := logger.New(cfg.Environment)

	database, err := db.New(cfg, log)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to connect database")
	}

	poolRepo := repository.NewPoolRepository(database)
	auctionRepo := repository.NewAuctionRepository(database)

	clock := engine.SystemClock()
	poolEngine := engine.NewPoolEngine(poolRepo, clock, cfg.Engine)
	auctionEngine := engine.NewAuctionEngine(auctionRepo, clock, cfg.Engine)

	var publisher events.Publisher = events.NopPublisher{}
	if cfg.AMQP.URL != "" {
		rabbit, err := events.NewRabbitMQPublisher(cfg.AMQP.URL, cfg.AMQP.Exchange, log)
		if err != nil {
			log.Fatal().Err(err).Msg("failed to connect event broker")
		}
		defer rabbit.Close()
		publisher = rabbit
	} else {
		log.Warn().Msg("AMQP_URL not set, decision events will be dropped")
	}

	facade := coordinator.New(coordinator.Deps{
		Pools:      poolEngine,
		Auctions:   auctionEngine,
		Authorizer: auth.NewRoleAuthorizer(poolRepo, auctionRepo),
		Publisher:  publisher,
		Statements: export.NewStatementGenerator(),
		AwardNotes: export.NewAwardNoteGenerator(),
		Log:        log,
	})

	sweepCtx, cancelSweep := context.WithCancel(context.Background())
	defer cancelSweep()
	go sweeper.New(poolEngine, auctionEngine, cfg.Sweep.Interval, log).Run(sweepCtx)

	tokenParser := auth.NewParser(cfg.Auth.AccessSecret)
	handler := httphandler.NewHandler(facade, log)
	authMiddleware := middleware.Auth(tokenParser)
	router := httphandler.NewRouter(handler, authMiddleware, cfg.Environment)

	addr := fmt.Sprintf("%s:%d", cfg.HTTP.Host, cfg.HTTP.Port)
	log.Info().Str("addr", addr).Msg("starting demand engine")

	if err := router.Run(addr); err != nil {
		log.Error().Err(err).Msg("server stopped")
		os.Exit(1)
	}
}
