// Package lock provides the run lock that keeps at most one run active per
// scheduled job identity.
package lock

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/ricesearch/search-relevance/internal/pkg/errors"
)

// Lease is a held lock. Token distinguishes this holder from later holders
// of the same key after expiry.
type Lease struct {
	Key       string
	Token     string
	ExpiresAt time.Time
}

// Service acquires and releases run locks.
type Service interface {
	// Acquire takes the lock for ttl. It fails with LOCK_ERROR if the key
	// is held by someone else.
	Acquire(ctx context.Context, key string, ttl time.Duration) (*Lease, error)

	// Release gives the lock back. Releasing a lease that already expired
	// and was taken by another holder fails with LOCK_ERROR.
	Release(ctx context.Context, lease *Lease) error
}

// With runs fn while holding key. The lease is released on every exit path,
// including a panic in fn. A release failure is returned when fn succeeded.
func With(ctx context.Context, svc Service, key string, ttl time.Duration, fn func(ctx context.Context) error) (err error) {
	lease, err := svc.Acquire(ctx, key, ttl)
	if err != nil {
		return err
	}

	defer func() {
		relErr := svc.Release(context.WithoutCancel(ctx), lease)
		if err == nil {
			err = relErr
		}
	}()

	return fn(ctx)
}

func newLease(key string, ttl time.Duration) *Lease {
	return &Lease{
		Key:       key,
		Token:     uuid.NewString(),
		ExpiresAt: time.Now().Add(ttl),
	}
}

func heldError(key string) error {
	return errors.LockError(fmt.Sprintf("lock %s is held by another run", key), nil).WithDetail("key", key)
}

// MemoryService is a process-local lock service.
type MemoryService struct {
	mu     sync.Mutex
	leases map[string]*Lease
	now    func() time.Time
}

// NewMemoryService creates an in-process lock service.
func NewMemoryService() *MemoryService {
	return &MemoryService{
		leases: make(map[string]*Lease),
		now:    time.Now,
	}
}

// Acquire implements Service.
func (s *MemoryService) Acquire(ctx context.Context, key string, ttl time.Duration) (*Lease, error) {
	if err := ctx.Err(); err != nil {
		return nil, errors.LockError("acquire canceled", err)
	}
	if ttl <= 0 {
		return nil, errors.ValidationError("lock ttl must be positive")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if cur, ok := s.leases[key]; ok && s.now().Before(cur.ExpiresAt) {
		return nil, heldError(key)
	}

	lease := newLease(key, ttl)
	lease.ExpiresAt = s.now().Add(ttl)
	s.leases[key] = lease
	return lease, nil
}

// Release implements Service.
func (s *MemoryService) Release(ctx context.Context, lease *Lease) error {
	if lease == nil {
		return errors.LockError("release of nil lease", nil)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	cur, ok := s.leases[lease.Key]
	if !ok || cur.Token != lease.Token {
		return errors.LockError(fmt.Sprintf("lock %s is no longer held by this run", lease.Key), nil).
			WithDetail("key", lease.Key)
	}
	delete(s.leases, lease.Key)
	return nil
}
