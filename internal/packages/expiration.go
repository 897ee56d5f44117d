// Package packages expires service packages and strips an expired user of
// their agent privileges and listings.
package packages

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/ngoendcuong/HomeLengo-sub000/internal/lock"
	"github.com/ngoendcuong/HomeLengo-sub000/internal/models"
)

const (
	expiredMessage = "Your service package has expired. Your listings were removed and your account was returned to the basic plan."
	expiredLink    = "/pricing"
)

// ObjectRemover deletes stored photo files. Implemented by media storage.
type ObjectRemover interface {
	Delete(ctx context.Context, key string) error
}

// Result summarizes one expiration pass.
type Result struct {
	PackagesExpired   int     `json:"packagesExpired"`
	UsersDemoted      int     `json:"usersDemoted"`
	PropertiesDeleted int     `json:"propertiesDeleted"`
	UserIDs           []int64 `json:"userIds"`
}

func (r *Result) add(o Result) {
	r.PackagesExpired += o.PackagesExpired
	r.UsersDemoted += o.UsersDemoted
	r.PropertiesDeleted += o.PropertiesDeleted
	r.UserIDs = append(r.UserIDs, o.UserIDs...)
}

// Options tune the expiration rules.
type Options struct {
	// BasicRole replaces every role of a demoted user.
	BasicRole string
	// GracePeriod delays expiration past end_date.
	GracePeriod time.Duration
}

// Service runs expiration passes. It is safe for concurrent use: work on
// one user is serialized through the Locker.
type Service struct {
	store   Store
	locker  lock.Locker
	objects ObjectRemover
	log     *slog.Logger
	opts    Options
	now     func() time.Time
}

// NewService builds the expiration service. objects may be nil, in which
// case photo files are left in storage.
func NewService(store Store, locker lock.Locker, objects ObjectRemover, log *slog.Logger, opts Options) *Service {
	if opts.BasicRole == "" {
		opts.BasicRole = models.RoleUser
	}
	return &Service{
		store:   store,
		locker:  locker,
		objects: objects,
		log:     log.With("component", "PackageExpiration"),
		opts:    opts,
		now:     time.Now,
	}
}

// ProcessExpiredPackages expires every package whose end date has passed.
func (s *Service) ProcessExpiredPackages(ctx context.Context) (Result, error) {
	return s.process(ctx, nil)
}

// ProcessExpiredPackageForUser runs the same pass restricted to one user.
func (s *Service) ProcessExpiredPackageForUser(ctx context.Context, userID int64) (Result, error) {
	return s.process(ctx, &userID)
}

func (s *Service) process(ctx context.Context, userID *int64) (Result, error) {
	result := Result{UserIDs: []int64{}}
	cutoff := s.now().Add(-s.opts.GracePeriod)

	expired, err := s.store.FindExpired(ctx, cutoff, userID)
	if err != nil {
		s.log.Error("Failed to find expired packages", "error", err)
		return result, err
	}
	if len(expired) == 0 {
		return result, nil
	}

	// Group by user, keeping the store's ordering.
	var order []int64
	byUser := make(map[int64][]int64)
	for _, p := range expired {
		if _, seen := byUser[p.UserID]; !seen {
			order = append(order, p.UserID)
		}
		byUser[p.UserID] = append(byUser[p.UserID], p.ID)
	}

	for _, uid := range order {
		r, err := s.expireUser(ctx, uid, byUser[uid], cutoff)
		if err != nil {
			s.log.Error("Failed to expire packages", "userID", uid, "error", err)
			return result, fmt.Errorf("failed to expire packages for user %d: %w", uid, err)
		}
		result.add(r)
	}

	if result.PackagesExpired > 0 {
		s.log.Info("Expired service packages",
			"packages", result.PackagesExpired,
			"users", result.UsersDemoted,
			"properties", result.PropertiesDeleted,
		)
	}
	return result, nil
}

// expireUser deactivates the given packages, demotes the user and deletes
// their listings in one transaction.
func (s *Service) expireUser(ctx context.Context, userID int64, packageIDs []int64, cutoff time.Time) (Result, error) {
	unlock, err := s.locker.Lock(ctx, lock.UserKey(userID))
	if err != nil {
		return Result{}, err
	}
	defer unlock()

	var r Result
	var photoKeys []string
	err = s.store.InTx(ctx, func(tx Tx) error {
		r = Result{}
		photoKeys = nil

		if err := tx.LockUser(ctx, userID); err != nil {
			return err
		}

		for _, id := range packageIDs {
			pkg, err := tx.ReloadPackage(ctx, id)
			if err != nil {
				if errors.Is(err, ErrPackageNotFound) {
					continue
				}
				return err
			}
			// A payment may have changed it since the scan.
			if !pkg.ExpiredAt(cutoff) {
				continue
			}
			if err := tx.DeactivatePackage(ctx, id); err != nil {
				return err
			}
			r.PackagesExpired++
		}
		if r.PackagesExpired == 0 {
			return nil
		}

		if err := tx.ReplaceRoles(ctx, userID, s.opts.BasicRole); err != nil {
			return err
		}
		r.UsersDemoted = 1
		r.UserIDs = []int64{userID}

		agentID, found, err := tx.AgentIDForUser(ctx, userID)
		if err != nil {
			return err
		}
		if found {
			ids, err := tx.PropertyIDsForAgent(ctx, agentID)
			if err != nil {
				return err
			}
			for _, pid := range ids {
				keys, err := tx.DeletePropertyCascade(ctx, pid)
				if err != nil {
					return err
				}
				photoKeys = append(photoKeys, keys...)
				r.PropertiesDeleted++
			}
		}

		return tx.Notify(ctx, userID, expiredMessage, expiredLink)
	})
	if err != nil {
		return Result{}, err
	}

	s.removeObjects(ctx, userID, photoKeys)
	return r, nil
}

func (s *Service) removeObjects(ctx context.Context, userID int64, keys []string) {
	if s.objects == nil {
		return
	}
	for _, key := range keys {
		if err := s.objects.Delete(ctx, key); err != nil {
			s.log.Warn("Failed to remove photo object", "userID", userID, "key", key, "error", err)
		}
	}
}
