// Package jobs runs package expiration outside the request path: on a cron
// schedule and after each login.
package jobs

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/ngoendcuong/HomeLengo-sub000/internal/packages"
	"github.com/robfig/cron/v3"
)

// Expirer is the part of packages.Service the jobs drive.
type Expirer interface {
	ProcessExpiredPackages(ctx context.Context) (packages.Result, error)
	ProcessExpiredPackageForUser(ctx context.Context, userID int64) (packages.Result, error)
}

// Scheduler runs the full expiration scan on a cron schedule. A tick that
// fires while the previous scan is still running is skipped.
type Scheduler struct {
	cron    *cron.Cron
	expirer Expirer
	timeout time.Duration
	log     *slog.Logger
}

func NewScheduler(expirer Expirer, schedule string, timeout time.Duration, log *slog.Logger) (*Scheduler, error) {
	log = log.With("component", "ExpirationJob")
	s := &Scheduler{expirer: expirer, timeout: timeout, log: log}

	cl := cronLogger{log}
	s.cron = cron.New(cron.WithLogger(cl), cron.WithChain(cron.Recover(cl), cron.SkipIfStillRunning(cl)))
	if _, err := s.cron.AddFunc(schedule, func() { s.RunOnce(context.Background()) }); err != nil {
		return nil, fmt.Errorf("invalid expiration schedule %q: %w", schedule, err)
	}
	return s, nil
}

func (s *Scheduler) Start() {
	s.cron.Start()
	s.log.Info("Expiration job scheduled", "next", s.cron.Entries()[0].Next)
}

// Stop stops the schedule and waits for a running scan, at most until ctx
// is done.
func (s *Scheduler) Stop(ctx context.Context) error {
	stopped := s.cron.Stop()
	select {
	case <-stopped.Done():
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// RunOnce performs one full scan. Errors are logged; the next tick retries.
func (s *Scheduler) RunOnce(ctx context.Context) {
	if s.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.timeout)
		defer cancel()
	}

	start := time.Now()
	result, err := s.expirer.ProcessExpiredPackages(ctx)
	if err != nil {
		s.log.Error("Expiration scan failed", "error", err, "expired", result.PackagesExpired)
		return
	}
	s.log.Info("Expiration scan finished",
		"expired", result.PackagesExpired,
		"demoted", result.UsersDemoted,
		"propertiesDeleted", result.PropertiesDeleted,
		"duration", time.Since(start))
}

// cronLogger routes robfig/cron's logging into slog.
type cronLogger struct {
	log *slog.Logger
}

func (l cronLogger) Info(msg string, keysAndValues ...interface{}) {
	l.log.Debug(msg, keysAndValues...)
}

func (l cronLogger) Error(err error, msg string, keysAndValues ...interface{}) {
	l.log.Error(msg, append([]interface{}{"error", err}, keysAndValues...)...)
}
