package janitor

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/natebag/MLG-BETA/internal/clock"
	"github.com/natebag/MLG-BETA/internal/config"
	obsmetrics "github.com/natebag/MLG-BETA/internal/observability/metrics"
	quotadomain "github.com/natebag/MLG-BETA/internal/quota/domain"
	"github.com/natebag/MLG-BETA/internal/ratelimit"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

const (
	JobQuotaStates = "quota_states"

	defaultInterval  = time.Hour
	defaultRetention = 30 * 24 * time.Hour
	jobTimeout       = 30 * time.Second
	lockKeyPrefix    = "janitor:lock:"
)

var ErrInvalidConfig = errors.New("invalid_janitor_config")

type Params struct {
	fx.In

	Config  config.Config
	Log     *zap.Logger
	Store   quotadomain.Store
	Clock   clock.Clock                `optional:"true"`
	Metrics *obsmetrics.JanitorMetrics `optional:"true"`
	Locker  *ratelimit.Locker          `optional:"true"`
}

// Janitor removes quota rows whose period ended long ago. Ledger entries are
// permanent and never touched.
type Janitor struct {
	log       *zap.Logger
	store     quotadomain.Store
	clock     clock.Clock
	metrics   *obsmetrics.JanitorMetrics
	locker    *ratelimit.Locker
	interval  time.Duration
	retention time.Duration
}

func New(p Params) (*Janitor, error) {
	if p.Store == nil || p.Log == nil {
		return nil, ErrInvalidConfig
	}
	clk := p.Clock
	if clk == nil {
		clk = clock.New()
	}
	interval := p.Config.Janitor.Interval
	if interval <= 0 {
		interval = defaultInterval
	}
	retention := defaultRetention
	if days := p.Config.Janitor.RetentionDays; days > 0 {
		retention = time.Duration(days) * 24 * time.Hour
	}
	return &Janitor{
		log:       p.Log.Named("janitor").With(zap.String("component", "janitor")),
		store:     p.Store,
		clock:     clk,
		metrics:   p.Metrics,
		locker:    p.Locker,
		interval:  interval,
		retention: retention,
	}, nil
}

// RunOnce sweeps every job once.
func (j *Janitor) RunOnce(ctx context.Context) error {
	return j.runJob(ctx, JobQuotaStates, j.sweepQuotaStates)
}

func (j *Janitor) RunForever(ctx context.Context) {
	ticker := time.NewTicker(j.interval)
	defer ticker.Stop()

	for {
		if err := j.RunOnce(ctx); err != nil {
			j.log.Warn("janitor run failed", zap.Error(err))
		}

		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

func (j *Janitor) runJob(parent context.Context, name string, fn func(ctx context.Context) (int64, error)) error {
	ctx, cancel := context.WithTimeout(parent, jobTimeout)
	defer cancel()

	log := j.log.With(zap.String("job", name))

	if j.locker != nil {
		token, ok, err := j.locker.TryLock(ctx, lockKeyPrefix+name, j.interval)
		if err != nil {
			log.Warn("janitor lock unavailable", zap.Error(err))
			return nil
		}
		if !ok {
			log.Debug("janitor job held by another instance")
			return nil
		}
		defer func() {
			if err := j.locker.Release(context.WithoutCancel(ctx), lockKeyPrefix+name, token); err != nil {
				log.Warn("janitor lock release failed", zap.Error(err))
			}
		}()
	}

	start := j.clock.Now()
	deleted, err := fn(ctx)
	j.metrics.ObserveRun(name, j.clock.Now().Sub(start), deleted)
	if err != nil {
		j.metrics.IncError(name, err)
		if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
			log.Warn("janitor job timed out", zap.Duration("timeout", jobTimeout), zap.Error(err))
			return nil
		}
		return fmt.Errorf("%s: %w", name, err)
	}

	if deleted > 0 {
		log.Info("janitor job finished", zap.Int64("deleted", deleted))
	}
	return nil
}

func (j *Janitor) sweepQuotaStates(ctx context.Context) (int64, error) {
	return j.Sweep(ctx, j.clock.Now())
}

// Sweep deletes quota rows whose period ended more than the retention window
// before now and returns how many were removed. A row inside its period is
// kept however long the period is.
func (j *Janitor) Sweep(ctx context.Context, now time.Time) (int64, error) {
	return j.store.DeleteStale(ctx, now.UTC().Add(-j.retention))
}
