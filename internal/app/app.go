package app

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
	"google.golang.org/grpc"
	"google.golang.org/grpc/health"

	"github.com/lijuuu/StakedChallengeService/internal/config"
	"github.com/lijuuu/StakedChallengeService/internal/db"
	"github.com/lijuuu/StakedChallengeService/internal/handlers"
	"github.com/lijuuu/StakedChallengeService/internal/leaderboard"
	"github.com/lijuuu/StakedChallengeService/internal/ledger"
	"github.com/lijuuu/StakedChallengeService/internal/locker"
	"github.com/lijuuu/StakedChallengeService/internal/metrics"
	"github.com/lijuuu/StakedChallengeService/internal/repo"
	"github.com/lijuuu/StakedChallengeService/internal/service"
	"github.com/lijuuu/StakedChallengeService/internal/state"
	"github.com/lijuuu/StakedChallengeService/internal/wss"
	"github.com/lijuuu/StakedChallengeService/internal/wss/broadcasts"
)

const (
	rankingCacheTTL = time.Hour
	fanoutBuffer    = 1024
)

// App owns every long-lived collaborator of the service and their lifetimes.
type App struct {
	cfg config.Config
	log *zap.Logger

	registry    *prometheus.Registry
	coord       *service.Coordinator
	scheduler   *service.Scheduler
	subscribers *state.Registry
	fanout      *broadcasts.Broadcaster
	router      *gin.Engine
	grpcServer  *grpc.Server
	health      *health.Server

	closers []func() error
}

// New connects to the configured backends and wires the service together. Optional
// backends fall back to in-process implementations when their URL is empty.
func New(cfg config.Config, log *zap.Logger) (*App, error) {
	a := &App{cfg: cfg, log: log}
	ok := false
	defer func() {
		if !ok {
			_ = a.Close()
		}
	}()

	a.registry = prometheus.NewRegistry()
	a.registry.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	m := metrics.New(a.registry)

	gdb, err := db.InitDB(&cfg)
	if err != nil {
		return nil, err
	}
	if sqlDB, err := gdb.DB(); err == nil {
		a.closers = append(a.closers, sqlDB.Close)
	}
	store := repo.NewPSQLRepository(gdb)
	if err := store.AutoMigrate(); err != nil {
		return nil, fmt.Errorf("failed to migrate: %w", err)
	}

	var journal repo.Journal = repo.NewMemoryJournal()
	if cfg.MongoURL != "" {
		client, err := db.InitMongo(&cfg)
		if err != nil {
			return nil, err
		}
		a.closers = append(a.closers, func() error { return client.Disconnect(context.Background()) })
		mj := repo.NewMongoJournal(client, cfg.MongoDB)
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		err = mj.EnsureIndexes(ctx)
		cancel()
		if err != nil {
			return nil, err
		}
		journal = mj
	} else {
		log.Warn("MONGOURL not set, ledger journal kept in memory")
	}

	var (
		lock  locker.Locker = locker.NewLocal()
		cache service.RankingCache
	)
	if cfg.RedisURL != "" {
		rdb, err := db.NewRedisClient(&cfg)
		if err != nil {
			return nil, err
		}
		a.closers = append(a.closers, rdb.Close)
		lock = locker.NewRedis(rdb, cfg.LockTTL, log)
		cache = repo.NewRankingCache(rdb, rankingCacheTTL)
	} else {
		log.Warn("REDISURL not set, challenge locks are process local")
	}

	var base ledger.Client
	if cfg.LedgerURL != "" {
		hc, err := ledger.NewHTTPClient(cfg.LedgerURL, cfg.LedgerToken, cfg.LedgerTimeout)
		if err != nil {
			return nil, err
		}
		base = hc
	} else {
		log.Warn("LEDGERURL not set, using the in-memory ledger")
		base = ledger.NewMemory()
	}
	retry := ledger.DefaultRetryConfig()
	retry.Timeout = cfg.LedgerTimeout
	retry.MaxRetries = cfg.LedgerRetries
	ledgerClient := ledger.NewRetrying(base, retry, log, m)

	a.subscribers = state.NewRegistry()
	a.fanout = broadcasts.NewBroadcaster(a.subscribers, fanoutBuffer, log, m)

	a.coord = service.NewCoordinator(service.Deps{
		Store:         store,
		Ledger:        ledgerClient,
		Locker:        lock,
		Journal:       journal,
		Publisher:     a.fanout,
		Ranking:       leaderboard.NewEngine(cfg.PeriodLength, cfg.TasksPerPeriod, cfg.PointsPerTask),
		Cache:         cache,
		PlatformFeeBP: cfg.PlatformFeeBP,
		Log:           log,
		Metrics:       m,
	})
	a.scheduler = service.NewScheduler(a.coord, service.SchedulerConfig{
		Tick:              cfg.SchedulerTick,
		ReconcileInterval: cfg.ReconcileInterval,
		Concurrency:       cfg.TickConcurrency,
		AutoDistribute:    cfg.AutoDistribute,
		StopTimeout:       cfg.ShutdownTimeout,
	})

	ws := wss.NewServer(wss.NewDefaultDispatcher(log), a.subscribers, a.coord, log)
	a.router = handlers.NewRouter(handlers.NewChallengeHandler(a.coord, log), ws.Handle, a.registry, log)
	a.grpcServer, a.health = handlers.NewGRPCServer(log)

	ok = true
	return a, nil
}

func (a *App) Coordinator() *service.Coordinator { return a.coord }

func (a *App) Router() *gin.Engine { return a.router }

// Run serves HTTP and gRPC and runs the scheduler until ctx is done, then shuts
// everything down within the configured deadline.
func (a *App) Run(ctx context.Context) error {
	httpLis, err := net.Listen("tcp", ":"+a.cfg.ChallengeHTTPPort)
	if err != nil {
		return fmt.Errorf("failed to listen on http port: %w", err)
	}
	grpcLis, err := net.Listen("tcp", ":"+a.cfg.ChallengeGRPCPort)
	if err != nil {
		_ = httpLis.Close()
		return fmt.Errorf("failed to listen on grpc port: %w", err)
	}

	fanoutCtx, stopFanout := context.WithCancel(context.Background())
	fanoutDone := make(chan struct{})
	go func() {
		defer close(fanoutDone)
		a.fanout.Run(fanoutCtx)
	}()

	if err := a.scheduler.Start(); err != nil {
		stopFanout()
		_ = httpLis.Close()
		_ = grpcLis.Close()
		return err
	}

	httpSrv := &http.Server{Handler: a.router, ReadHeaderTimeout: 10 * time.Second}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		a.log.Info("http server listening", zap.String("addr", httpLis.Addr().String()))
		if err := httpSrv.Serve(httpLis); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		a.log.Info("grpc server listening", zap.String("addr", grpcLis.Addr().String()))
		if err := a.grpcServer.Serve(grpcLis); err != nil && !errors.Is(err, grpc.ErrServerStopped) {
			return fmt.Errorf("grpc server: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		a.log.Info("shutting down", zap.Duration("deadline", a.cfg.ShutdownTimeout))

		shutdownCtx, cancel := context.WithTimeout(context.Background(), a.cfg.ShutdownTimeout)
		defer cancel()

		a.health.Shutdown()
		if err := httpSrv.Shutdown(shutdownCtx); err != nil {
			a.log.Warn("http shutdown", zap.Error(err))
		}
		a.grpcServer.GracefulStop()
		if err := a.scheduler.Stop(shutdownCtx); err != nil {
			a.log.Warn("scheduler shutdown", zap.Error(err))
		}
		stopFanout()
		<-fanoutDone
		return nil
	})

	return g.Wait()
}

// Close releases backend connections.
func (a *App) Close() error {
	var errs []error
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](); err != nil {
			errs = append(errs, err)
		}
	}
	a.closers = nil
	return errors.Join(errs...)
}
