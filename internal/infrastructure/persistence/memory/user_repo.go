// Package memory implements an in-memory user repository. It backs the
// application-layer tests and the storeless development mode; production
// deployments use the postgres implementation.
package memory

import (
	"context"
	"sort"
	"sync"

	"github.com/idorecall/referral-service/internal/domain/user"
)

// UserRepository implements user.Repository in process memory.
// Safe for concurrent use.
type UserRepository struct {
	mu    sync.RWMutex
	byID  map[string]*user.User
	order []string // insertion order, acts as the store default ordering
}

// NewUserRepository creates an empty in-memory repository.
func NewUserRepository() *UserRepository {
	return &UserRepository{
		byID: make(map[string]*user.User),
	}
}

// Create creates a new user. Duplicate email detection happens under the
// same lock as the insert, mirroring the unique constraint the postgres
// implementation relies on.
func (r *UserRepository) Create(ctx context.Context, u *user.User) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	for _, existing := range r.byID {
		for _, have := range existing.Emails {
			for _, want := range u.Emails {
				if have.Address == want.Address {
					return user.ErrEmailTaken
				}
			}
		}
	}

	r.byID[u.ID] = u.Clone()
	r.order = append(r.order, u.ID)
	return nil
}

// GetByID returns a user by internal ID.
func (r *UserRepository) GetByID(ctx context.Context, id string) (*user.User, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	u, ok := r.byID[id]
	if !ok {
		return nil, user.ErrUserNotFound
	}
	return u.Clone(), nil
}

// GetByEmail returns a user owning the given email address.
func (r *UserRepository) GetByEmail(ctx context.Context, email string) (*user.User, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	for _, id := range r.order {
		for _, e := range r.byID[id].Emails {
			if e.Address == email {
				return r.byID[id].Clone(), nil
			}
		}
	}
	return nil, user.ErrUserNotFound
}

// GetByReferralCode returns the user owning the given code.
func (r *UserRepository) GetByReferralCode(ctx context.Context, code user.ReferralCode) (*user.User, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	for _, id := range r.order {
		if r.byID[id].ReferralCode == code {
			return r.byID[id].Clone(), nil
		}
	}
	return nil, user.ErrUserNotFound
}

// SetReferredBy records the referral link.
func (r *UserRepository) SetReferredBy(ctx context.Context, id, referrerID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	u, ok := r.byID[id]
	if !ok {
		return user.ErrUserNotFound
	}
	return u.LinkReferrer(referrerID)
}

// AddPoints atomically increments a user's points.
func (r *UserRepository) AddPoints(ctx context.Context, id string, delta user.Points) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	u, ok := r.byID[id]
	if !ok {
		return user.ErrUserNotFound
	}
	return u.AddPoints(delta)
}

// CodeExists reports whether a code is already assigned.
func (r *UserRepository) CodeExists(ctx context.Context, code user.ReferralCode) (bool, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	for _, u := range r.byID {
		if u.ReferralCode == code {
			return true, nil
		}
	}
	return false, nil
}

// ListBehind returns up to limit users with points strictly below the
// given total, highest first.
func (r *UserRepository) ListBehind(ctx context.Context, points user.Points, limit int) ([]*user.User, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var out []*user.User
	for _, id := range r.order {
		if r.byID[id].Points < points {
			out = append(out, r.byID[id].Clone())
		}
	}

	sort.SliceStable(out, func(i, j int) bool {
		return out[i].Points > out[j].Points
	})

	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

// ListAhead returns up to limit users with points at or above the given
// total, excluding excludeID, lowest first. Ties with the target total
// are included.
func (r *UserRepository) ListAhead(ctx context.Context, points user.Points, excludeID string, limit int) ([]*user.User, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var out []*user.User
	for _, id := range r.order {
		if id == excludeID {
			continue
		}
		if r.byID[id].Points >= points {
			out = append(out, r.byID[id].Clone())
		}
	}

	sort.SliceStable(out, func(i, j int) bool {
		return out[i].Points < out[j].Points
	})

	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

// Top returns the highest-scoring user, insertion order breaking ties.
func (r *UserRepository) Top(ctx context.Context) (*user.User, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var top *user.User
	for _, id := range r.order {
		if top == nil || r.byID[id].Points > top.Points {
			top = r.byID[id]
		}
	}

	if top == nil {
		return nil, user.ErrUserNotFound
	}
	return top.Clone(), nil
}

// Count returns the total number of users.
func (r *UserRepository) Count(ctx context.Context) (int, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.byID), nil
}

// Ensure interface is implemented
var _ user.Repository = (*UserRepository)(nil)
