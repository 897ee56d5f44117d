package jobs

import (
	"context"
	"log/slog"
	"sync"
	"time"
)

// LoginChecks expires a user's packages shortly after they log in, without
// holding up the login response. The queue is bounded; when it is full the
// check is dropped and the hourly scan catches up.
type LoginChecks struct {
	queue   chan int64
	expirer Expirer
	timeout time.Duration
	log     *slog.Logger
	wg      sync.WaitGroup
}

func NewLoginChecks(expirer Expirer, size int, timeout time.Duration, log *slog.Logger) *LoginChecks {
	if size <= 0 {
		size = 1
	}
	return &LoginChecks{
		queue:   make(chan int64, size),
		expirer: expirer,
		timeout: timeout,
		log:     log.With("component", "LoginCheck"),
	}
}

// Start runs the single worker until ctx is done. Checks still queued at
// that point are dropped.
func (l *LoginChecks) Start(ctx context.Context) {
	l.wg.Add(1)
	go func() {
		defer l.wg.Done()
		for {
			select {
			case <-ctx.Done():
				return
			case userID := <-l.queue:
				l.check(ctx, userID)
			}
		}
	}()
}

// Wait blocks until the worker has exited.
func (l *LoginChecks) Wait() {
	l.wg.Wait()
}

// Enqueue never blocks. It reports whether the check was queued.
func (l *LoginChecks) Enqueue(userID int64) bool {
	select {
	case l.queue <- userID:
		return true
	default:
		l.log.Warn("Login check queue full, dropping", "userID", userID)
		return false
	}
}

func (l *LoginChecks) check(ctx context.Context, userID int64) {
	if l.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, l.timeout)
		defer cancel()
	}
	result, err := l.expirer.ProcessExpiredPackageForUser(ctx, userID)
	if err != nil {
		l.log.Error("Login package check failed", "userID", userID, "error", err)
		return
	}
	if result.PackagesExpired > 0 {
		l.log.Info("Expired packages on login", "userID", userID, "expired", result.PackagesExpired, "propertiesDeleted", result.PropertiesDeleted)
	}
}
