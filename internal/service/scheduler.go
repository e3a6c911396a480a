package service

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/go-co-op/gocron/v2"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/lijuuu/StakedChallengeService/internal/apperr"
	"github.com/lijuuu/StakedChallengeService/internal/model"
)

type SchedulerConfig struct {
	Tick              time.Duration
	ReconcileInterval time.Duration
	Concurrency       int
	AutoDistribute    bool
	StopTimeout       time.Duration
}

// TickReport summarizes one scheduler pass.
type TickReport struct {
	Checked      int
	Eliminations int
	Completed    int
	Distributed  int
	Failed       int
}

// Scheduler discovers due eliminations, completions and distributions on a fixed tick.
// Ticks never overlap; within a tick challenges are processed concurrently.
type Scheduler struct {
	coord *Coordinator
	cfg   SchedulerConfig
	log   *zap.Logger

	cron    gocron.Scheduler
	workCtx context.Context
	cancel  context.CancelFunc
}

func NewScheduler(coord *Coordinator, cfg SchedulerConfig) *Scheduler {
	if cfg.Concurrency <= 0 {
		cfg.Concurrency = 1
	}
	return &Scheduler{coord: coord, cfg: cfg, log: coord.log.Named("scheduler")}
}

// Start registers the tick and reconciliation jobs and starts running them.
func (s *Scheduler) Start() error {
	cron, err := gocron.NewScheduler(gocron.WithStopTimeout(s.cfg.StopTimeout))
	if err != nil {
		return err
	}
	s.workCtx, s.cancel = context.WithCancel(context.Background())

	_, err = cron.NewJob(
		gocron.DurationJob(s.cfg.Tick),
		gocron.NewTask(func() { s.Tick(s.workCtx) }),
		gocron.WithName("elimination-tick"),
		gocron.WithSingletonMode(gocron.LimitModeReschedule),
		gocron.WithStartAt(gocron.WithStartImmediately()),
	)
	if err != nil {
		s.cancel()
		return err
	}

	if s.cfg.ReconcileInterval > 0 {
		_, err = cron.NewJob(
			gocron.DurationJob(s.cfg.ReconcileInterval),
			gocron.NewTask(func() {
				if _, err := s.coord.Reconcile(s.workCtx); err != nil {
					s.log.Warn("reconciliation aborted", zap.Error(err))
				}
			}),
			gocron.WithName("reconcile"),
			gocron.WithSingletonMode(gocron.LimitModeReschedule),
		)
		if err != nil {
			s.cancel()
			return err
		}
	}

	s.cron = cron
	cron.Start()
	s.log.Info("scheduler started", zap.Duration("tick", s.cfg.Tick), zap.Duration("reconcile_interval", s.cfg.ReconcileInterval))
	return nil
}

// Stop waits for in-flight jobs to finish. When ctx expires first, their context is
// cancelled so pending ledger calls return and compensation can run.
func (s *Scheduler) Stop(ctx context.Context) error {
	if s.cron == nil {
		return nil
	}
	done := make(chan error, 1)
	go func() { done <- s.cron.Shutdown() }()

	select {
	case err := <-done:
		s.cancel()
		return err
	case <-ctx.Done():
		s.log.Warn("scheduler stop deadline reached, cancelling in-flight work")
		s.cancel()
		return <-done
	}
}

// Tick runs one pass over every active challenge and, with auto distribution on, every
// completed challenge that has not been paid out. Failures stay with their challenge.
func (s *Scheduler) Tick(ctx context.Context) TickReport {
	started := time.Now()
	defer func() { s.coord.metrics.SchedulerTick.Observe(time.Since(started).Seconds()) }()

	var (
		mu     sync.Mutex
		report TickReport
	)
	merge := func(r TickReport) {
		mu.Lock()
		defer mu.Unlock()
		report.Checked += r.Checked
		report.Eliminations += r.Eliminations
		report.Completed += r.Completed
		report.Distributed += r.Distributed
		report.Failed += r.Failed
	}

	active, err := s.coord.store.ListChallengesByStatus(ctx, model.StatusActive)
	if err != nil {
		s.log.Error("failed to list active challenges", zap.Error(err))
		return report
	}

	var g errgroup.Group
	g.SetLimit(s.cfg.Concurrency)
	for i := range active {
		ch := active[i]
		g.Go(func() error {
			merge(s.advance(ctx, &ch))
			return nil
		})
	}
	_ = g.Wait()

	if s.cfg.AutoDistribute {
		pending, err := s.coord.store.ListUndistributed(ctx)
		if err != nil {
			s.log.Error("failed to list undistributed challenges", zap.Error(err))
		}
		var dg errgroup.Group
		dg.SetLimit(s.cfg.Concurrency)
		for i := range pending {
			id := pending[i].ID
			dg.Go(func() error {
				merge(s.distribute(ctx, id))
				return nil
			})
		}
		_ = dg.Wait()
	}

	s.log.Info("scheduler tick finished",
		zap.Int("checked", report.Checked),
		zap.Int("eliminations", report.Eliminations),
		zap.Int("completed", report.Completed),
		zap.Int("distributed", report.Distributed),
		zap.Int("failed", report.Failed),
		zap.Duration("took", time.Since(started)))
	return report
}

// advance runs every due elimination of one challenge in week order, then completes it
// when its end time has passed.
func (s *Scheduler) advance(ctx context.Context, ch *model.Challenge) TickReport {
	r := TickReport{Checked: 1}
	engine := s.coord.ranking
	now := s.coord.now()

	due := engine.ExpectedWeek(ch.StartTime, now)
	if last := engine.ExpectedWeek(ch.StartTime, ch.EndTime); due > last {
		due = last
	}

	for week := ch.CurrentWeek + 1; week <= due; week++ {
		if ctx.Err() != nil {
			return r
		}
		res, err := s.coord.eliminateWeek(ctx, ch.ID, week)
		if apperr.IsStateConflict(err) {
			s.log.Debug("elimination not applicable", zap.String("challenge_id", ch.ID), zap.Int("week", week), zap.Error(err))
			break
		}
		if err != nil {
			r.Failed++
			s.log.Error("elimination failed", zap.String("challenge_id", ch.ID), zap.Int("week", week), zap.Error(err))
			return r
		}
		r.Eliminations++
		if res.StatusChanged {
			r.Completed++
			return r
		}
	}

	if now.Before(ch.EndTime) {
		return r
	}
	_, err := s.coord.CompleteChallenge(ctx, ch.ID)
	switch {
	case err == nil:
		r.Completed++
	case apperr.IsStateConflict(err):
	default:
		r.Failed++
		s.log.Error("completion failed", zap.String("challenge_id", ch.ID), zap.Error(err))
	}
	return r
}

func (s *Scheduler) distribute(ctx context.Context, challengeID string) TickReport {
	var r TickReport
	_, err := s.coord.DistributePool(ctx, challengeID)
	switch {
	case err == nil:
		r.Distributed++
	case apperr.IsStateConflict(err):
		s.log.Debug("distribution not applicable", zap.String("challenge_id", challengeID), zap.Error(err))
	case errors.Is(err, context.Canceled):
	default:
		r.Failed++
		s.log.Error("distribution failed", zap.String("challenge_id", challengeID), zap.Error(err))
	}
	return r
}
