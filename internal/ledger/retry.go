package ledger

import (
	"context"
	"time"

	"github.com/cenkalti/backoff/v4"
	"go.uber.org/zap"

	"github.com/lijuuu/StakedChallengeService/internal/metrics"
)

type RetryConfig struct {
	// Timeout bounds each attempt.
	Timeout time.Duration
	// MaxRetries is the number of resends after the first attempt.
	MaxRetries      int
	InitialInterval time.Duration
	MaxInterval     time.Duration
}

func DefaultRetryConfig() RetryConfig {
	return RetryConfig{
		Timeout:         15 * time.Second,
		MaxRetries:      3,
		InitialInterval: 200 * time.Millisecond,
		MaxInterval:     3 * time.Second,
	}
}

// Retrying bounds every call with a timeout and resends only failures the ledger never
// accepted. Reads are always resent.
type Retrying struct {
	next    Client
	cfg     RetryConfig
	log     *zap.Logger
	metrics *metrics.Metrics
}

func NewRetrying(next Client, cfg RetryConfig, log *zap.Logger, m *metrics.Metrics) *Retrying {
	return &Retrying{next: next, cfg: cfg, log: log.Named("ledger"), metrics: m}
}

func (r *Retrying) Deploy(ctx context.Context, req DeployRequest) (string, error) {
	var ref string
	err := r.call(ctx, "deploy", false, func(ctx context.Context) error {
		var err error
		ref, err = r.next.Deploy(ctx, req)
		return err
	})
	return ref, err
}

func (r *Retrying) Stake(ctx context.Context, ref, address string, amount int64) (TxRef, error) {
	return r.tx(ctx, "stake", func(ctx context.Context) (TxRef, error) {
		return r.next.Stake(ctx, ref, address, amount)
	})
}

func (r *Retrying) Release(ctx context.Context, ref, address string) (TxRef, error) {
	return r.tx(ctx, "release", func(ctx context.Context) (TxRef, error) {
		return r.next.Release(ctx, ref, address)
	})
}

func (r *Retrying) RecordTaskCompletion(ctx context.Context, ref, address, taskID string) (TxRef, error) {
	return r.tx(ctx, "record_task", func(ctx context.Context) (TxRef, error) {
		return r.next.RecordTaskCompletion(ctx, ref, address, taskID)
	})
}

func (r *Retrying) Eliminate(ctx context.Context, ref string, week int, address string) (TxRef, error) {
	return r.tx(ctx, "eliminate", func(ctx context.Context) (TxRef, error) {
		return r.next.Eliminate(ctx, ref, week, address)
	})
}

func (r *Retrying) Distribute(ctx context.Context, ref string, payouts []Payout) (TxRef, error) {
	return r.tx(ctx, "distribute", func(ctx context.Context) (TxRef, error) {
		return r.next.Distribute(ctx, ref, payouts)
	})
}

func (r *Retrying) AggregateStake(ctx context.Context, ref string) (int64, error) {
	var amount int64
	err := r.call(ctx, "aggregate_stake", true, func(ctx context.Context) error {
		var err error
		amount, err = r.next.AggregateStake(ctx, ref)
		return err
	})
	return amount, err
}

func (r *Retrying) tx(ctx context.Context, op string, fn func(context.Context) (TxRef, error)) (TxRef, error) {
	var tx TxRef
	err := r.call(ctx, op, false, func(ctx context.Context) error {
		var err error
		tx, err = fn(ctx)
		return err
	})
	return tx, err
}

func (r *Retrying) call(ctx context.Context, op string, idempotent bool, fn func(context.Context) error) error {
	started := time.Now()
	attempt := 0

	operation := func() error {
		attempt++
		attemptCtx, cancel := context.WithTimeout(ctx, r.cfg.Timeout)
		defer cancel()

		err := fn(attemptCtx)
		if err == nil {
			return nil
		}
		if ctx.Err() != nil {
			return backoff.Permanent(err)
		}
		if idempotent || Retryable(err) {
			return err
		}
		return backoff.Permanent(err)
	}

	b := backoff.NewExponentialBackOff()
	b.InitialInterval = r.cfg.InitialInterval
	b.MaxInterval = r.cfg.MaxInterval
	b.MaxElapsedTime = 0

	notify := func(err error, wait time.Duration) {
		r.log.Warn("ledger call failed, retrying",
			zap.String("op", op),
			zap.Int("attempt", attempt),
			zap.Duration("wait", wait),
			zap.Error(err))
	}

	err := backoff.RetryNotify(operation,
		backoff.WithContext(backoff.WithMaxRetries(b, uint64(r.cfg.MaxRetries)), ctx), notify)
	if err != nil {
		outcome := OutcomeOf(err).String()
		r.metrics.ObserveLedgerCall(op, outcome, started)
		r.log.Error("ledger call failed",
			zap.String("op", op),
			zap.Int("attempts", attempt),
			zap.String("outcome", outcome),
			zap.Error(err))
		return err
	}
	r.metrics.ObserveLedgerCall(op, "ok", started)
	return nil
}
