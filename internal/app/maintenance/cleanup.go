package maintenance

import (
	"context"
	"time"

	"github.com/robfig/cron/v3"
	"go.uber.org/multierr"
	"go.uber.org/zap"

	"github.com/charlesng35/estatehub/pkg/logger"
)

const (
	defaultTokenSpec = "@hourly"
	defaultLockSpec  = "*/5 * * * *"
)

// AccountSweeper is the account housekeeping the cleaner schedules.
type AccountSweeper interface {
	PurgeExpiredResetTokens(ctx context.Context, now time.Time) (int, error)
	ReleaseExpiredLocks(ctx context.Context, now time.Time) (int, error)
}

// Cleaner runs periodic account housekeeping: purging expired password reset
// tokens and releasing lockouts that have ended.
type Cleaner struct {
	accounts AccountSweeper
	cron     *cron.Cron
	now      func() time.Time
	log      *zap.Logger

	tokenSchedule string
	lockSchedule  string
}

// Option customises the Cleaner.
type Option func(*Cleaner)

// WithCron injects a preconfigured cron instance, primarily for testing.
func WithCron(c *cron.Cron) Option {
	return func(cleaner *Cleaner) {
		if c != nil {
			cleaner.cron = c
		}
	}
}

// WithNow overrides the clock used for expiry comparisons.
func WithNow(now func() time.Time) Option {
	return func(cleaner *Cleaner) {
		if now != nil {
			cleaner.now = now
		}
	}
}

// WithTokenSchedule overrides the cron specification for reset token cleanup.
func WithTokenSchedule(spec string) Option {
	return func(cleaner *Cleaner) {
		if spec != "" {
			cleaner.tokenSchedule = spec
		}
	}
}

// WithLockSchedule overrides the cron specification for lockout release.
func WithLockSchedule(spec string) Option {
	return func(cleaner *Cleaner) {
		if spec != "" {
			cleaner.lockSchedule = spec
		}
	}
}

// WithLogger replaces the module logger.
func WithLogger(log *zap.Logger) Option {
	return func(cleaner *Cleaner) {
		if log != nil {
			cleaner.log = log
		}
	}
}

// NewCleaner constructs a Cleaner. A nil sweeper disables every job.
func NewCleaner(accounts AccountSweeper, opts ...Option) *Cleaner {
	cleaner := &Cleaner{
		accounts:      accounts,
		now:           time.Now,
		tokenSchedule: defaultTokenSpec,
		lockSchedule:  defaultLockSpec,
		log:           logger.WithModule("maintenance"),
	}
	for _, opt := range opts {
		opt(cleaner)
	}
	if cleaner.cron == nil {
		cleaner.cron = cron.New(cron.WithLogger(cron.DiscardLogger))
	}
	return cleaner
}

// Start registers the jobs and launches the scheduler.
func (c *Cleaner) Start() error {
	if c.accounts == nil {
		return nil
	}

	if _, err := c.cron.AddFunc(c.tokenSchedule, func() {
		c.purgeTokens(context.Background())
	}); err != nil {
		return err
	}
	if _, err := c.cron.AddFunc(c.lockSchedule, func() {
		c.releaseLocks(context.Background())
	}); err != nil {
		return err
	}

	c.cron.Start()
	return nil
}

// Stop halts the scheduler. The returned context is done once running jobs finish.
func (c *Cleaner) Stop() context.Context {
	if c.cron == nil {
		return context.Background()
	}
	return c.cron.Stop()
}

// RunOnce executes every job sequentially.
func (c *Cleaner) RunOnce(ctx context.Context) error {
	if c.accounts == nil {
		return nil
	}
	if ctx == nil {
		ctx = context.Background()
	}
	return multierr.Combine(c.purgeTokens(ctx), c.releaseLocks(ctx))
}

func (c *Cleaner) purgeTokens(ctx context.Context) error {
	n, err := c.accounts.PurgeExpiredResetTokens(ctx, c.now())
	if err != nil {
		c.log.Warn("reset token cleanup failed", zap.Error(err))
		return err
	}
	if n > 0 {
		c.log.Info("purged expired reset tokens", zap.Int("accounts", n))
	}
	return nil
}

func (c *Cleaner) releaseLocks(ctx context.Context) error {
	n, err := c.accounts.ReleaseExpiredLocks(ctx, c.now())
	if err != nil {
		c.log.Warn("lockout release failed", zap.Error(err))
		return err
	}
	if n > 0 {
		c.log.Info("released expired lockouts", zap.Int("accounts", n))
	}
	return nil
}
