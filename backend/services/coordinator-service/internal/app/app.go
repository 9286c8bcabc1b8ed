package app

import (
	"context"
	"database/sql"
	"errors"
	"sync"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"chargehub/backend/libs/clock"
	libdb "chargehub/backend/libs/db"
	"chargehub/backend/libs/events"
	libredis "chargehub/backend/libs/redis"
	"chargehub/backend/services/coordinator-service/internal/config"
	"chargehub/backend/services/coordinator-service/internal/db"
	httpserver "chargehub/backend/services/coordinator-service/internal/http"
	"chargehub/backend/services/coordinator-service/internal/http/handlers"
	"chargehub/backend/services/coordinator-service/internal/http/middleware"
	redisstore "chargehub/backend/services/coordinator-service/internal/redis"
	"chargehub/backend/services/coordinator-service/internal/repository"
	"chargehub/backend/services/coordinator-service/internal/repository/memory"
	"chargehub/backend/services/coordinator-service/internal/scheduler"
	"chargehub/backend/services/coordinator-service/internal/service"
	"chargehub/backend/services/coordinator-service/internal/ws"
)

// App wires coordinator-service dependencies.
type App struct {
	server      *httpserver.Server
	sweeper     *scheduler.Sweeper
	hub         *ws.Hub
	publisher   *events.AsyncPublisher
	broker      *events.AMQPPublisher
	db          *sql.DB
	redisClient *redis.Client
	logger      *zap.Logger
}

type stores struct {
	reservations repository.ReservationStore
	sessions     repository.SessionStore
	telemetry    repository.TelemetryStore
	waitlist     repository.WaitlistStore
	tariffs      repository.TariffStore
	lookup       repository.Lookup
}

// New constructs the application graph.
func New(ctx context.Context, cfg *config.Config, logger *zap.Logger) (*App, error) {
	a := &App{logger: logger}

	st, err := a.openStores(ctx, cfg)
	if err != nil {
		return nil, err
	}

	var cache service.ActiveSessionCache
	if cfg.Redis.Addr != "" {
		client, err := libredis.NewRedisClient(ctx, cfg.Redis.Addr, cfg.Redis.Password, cfg.Redis.DB)
		if err != nil {
			a.Close()
			return nil, err
		}
		a.redisClient = client
		cache = redisstore.NewStore(client, cfg.ActiveSessionTTL())
	}

	var sinks events.Multi
	if cfg.AMQP.URL != "" {
		broker, err := events.NewAMQPPublisher(cfg.AMQP.URL)
		if err != nil {
			a.Close()
			return nil, err
		}
		a.broker = broker
		sinks = append(sinks, broker)
	}
	if cfg.WebSocket.Enabled {
		a.hub = ws.NewHub(cfg.WebSocket.PingInterval, logger)
		sinks = append(sinks, a.hub)
	}
	a.publisher = events.NewAsyncPublisher(sinks, cfg.Events.BufferSize, logger)

	clk := clock.System{}
	waitlistSvc := service.NewWaitlistService(st.waitlist, st.lookup, a.publisher, clk, cfg.Waitlist.SlotEstimate, logger)
	reservationsSvc := service.NewReservationsService(
		st.reservations,
		st.lookup,
		service.NewAvailabilityResolver(st.reservations, st.sessions),
		a.publisher,
		clk,
		service.ReservationOptions{
			RefundFullThreshold: cfg.Reservations.RefundFullThreshold,
			SweepBatchSize:      cfg.Sweep.BatchSize,
			Releases:            waitlistSvc,
		},
		logger,
	)
	sessionsSvc := service.NewSessionsService(service.SessionsDeps{
		Sessions:     st.sessions,
		Telemetry:    st.telemetry,
		Lookup:       st.lookup,
		Rates:        service.NewTariffService(st.tariffs, cfg.Billing.DefaultRatePerKWh, logger),
		Cache:        cache,
		Reservations: reservationsSvc,
		Publisher:    a.publisher,
		Clock:        clk,
		Logger:       logger,
	})
	a.sweeper = scheduler.NewSweeper(reservationsSvc, cfg.Sweep.Interval, logger)

	var pinger handlers.Pinger
	if a.db != nil {
		pinger = a.db
	}
	deps := httpserver.RouterDeps{
		Reservations: handlers.NewReservationsHandlers(reservationsSvc, logger),
		Sessions:     handlers.NewSessionsHandlers(sessionsSvc, logger),
		Waitlist:     handlers.NewWaitlistHandlers(waitlistSvc, logger),
		Health:       handlers.NewHealthHandler(pinger),
		Logger:       logger,
	}
	if a.hub != nil {
		deps.Events = ws.NewServer(a.hub, cfg.WebSocket.WriteTimeout, logger).HandleWS
	}
	router := httpserver.NewRouter(deps, middleware.AuthMiddleware(cfg.Auth.JWTSecret))
	a.server = httpserver.NewServer(cfg.HTTPAddress(), router, logger)

	return a, nil
}

func (a *App) openStores(ctx context.Context, cfg *config.Config) (stores, error) {
	if cfg.UseMemory() {
		a.logger.Warn("using in-memory store, data is lost on restart and references are not checked")
		mem := memory.New()
		// lookup stays nil: the memory store has no reference tables to check against.
		return stores{
			reservations: mem,
			sessions:     mem,
			telemetry:    mem,
			waitlist:     mem,
			tariffs:      mem,
		}, nil
	}

	sqlDB, err := db.NewPostgres(ctx, cfg.Database.DSN, libdb.PoolOptions{
		MaxOpenConns: cfg.Database.MaxOpenConns,
		MaxIdleConns: cfg.Database.MaxIdleConns,
		ConnLifetime: cfg.Database.ConnLifetime,
	})
	if err != nil {
		return stores{}, err
	}
	a.db = sqlDB
	if cfg.Database.Migrate {
		if err := db.Migrate(ctx, sqlDB); err != nil {
			a.Close()
			return stores{}, err
		}
	}
	return stores{
		reservations: repository.NewReservationRepository(sqlDB),
		sessions:     repository.NewSessionRepository(sqlDB),
		telemetry:    repository.NewTelemetryRepository(sqlDB),
		waitlist:     repository.NewWaitlistRepository(sqlDB),
		tariffs:      repository.NewTariffRepository(sqlDB),
		lookup:       repository.NewLookupRepository(sqlDB),
	}, nil
}

// Run starts background workers and serves HTTP until ctx is cancelled.
func (a *App) Run(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	var wg sync.WaitGroup
	start := func(fn func(context.Context)) {
		wg.Add(1)
		go func() {
			defer wg.Done()
			fn(ctx)
		}()
	}
	start(a.publisher.Run)
	start(a.sweeper.Start)
	if a.hub != nil {
		start(a.hub.Start)
	}

	err := a.server.Run(ctx)
	cancel()
	wg.Wait()
	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}

// Close releases resources.
func (a *App) Close() {
	if a.broker != nil {
		a.broker.Close()
	}
	if a.db != nil {
		if err := a.db.Close(); err != nil {
			a.logger.Warn("failed to close db", zap.Error(err))
		}
	}
	if a.redisClient != nil {
		if err := a.redisClient.Close(); err != nil {
			a.logger.Warn("failed to close redis", zap.Error(err))
		}
	}
}
