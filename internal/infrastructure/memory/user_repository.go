// Package memory is an in-process credential store used for local runs
// (STORE_DRIVER=memory) and tests.
package memory

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/oksasatya/tourauth/internal/domain/entity"
	"github.com/oksasatya/tourauth/internal/domain/repository"
)

type UserRepository struct {
	mu      sync.RWMutex
	byID    map[string]*entity.User
	byEmail map[string]string
	now     func() time.Time
}

func NewUserRepository() *UserRepository {
	return &UserRepository{
		byID:    make(map[string]*entity.User),
		byEmail: make(map[string]string),
		now:     time.Now,
	}
}

func (r *UserRepository) Create(_ context.Context, u *entity.User) error {
	if err := repository.ValidateForSave(u, repository.SaveOptions{}); err != nil {
		return err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.byEmail[u.Email]; ok {
		return repository.ErrDuplicateEmail()
	}
	if u.ID == "" {
		u.ID = uuid.NewString()
	}
	now := r.now()
	u.CreatedAt, u.UpdatedAt = now, now
	cp := *u
	r.byID[u.ID] = &cp
	r.byEmail[u.Email] = u.ID
	return nil
}

func (r *UserRepository) FindByID(_ context.Context, id string, opts ...repository.LoadOption) (*entity.User, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	u, ok := r.byID[id]
	if !ok {
		return nil, repository.ErrUserNotFound()
	}
	return project(u, repository.ApplyLoadOptions(opts...)), nil
}

func (r *UserRepository) FindByEmail(_ context.Context, email string, opts ...repository.LoadOption) (*entity.User, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	id, ok := r.byEmail[entity.NormalizeEmail(email)]
	if !ok {
		return nil, repository.ErrUserNotFound()
	}
	return project(r.byID[id], repository.ApplyLoadOptions(opts...)), nil
}

func (r *UserRepository) FindByTokenHash(_ context.Context, field repository.TokenField, hash string) (*entity.User, error) {
	if hash == "" {
		return nil, repository.ErrUserNotFound()
	}
	r.mu.RLock()
	defer r.mu.RUnlock()
	for _, u := range r.byID {
		if tokenHash(u.State, field) == hash {
			return project(u, repository.LoadOptions{Secrets: true}), nil
		}
	}
	return nil, repository.ErrUserNotFound()
}

func (r *UserRepository) Save(_ context.Context, u *entity.User, opts repository.SaveOptions) error {
	if err := repository.ValidateForSave(u, opts); err != nil {
		return err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	cur, ok := r.byID[u.ID]
	if !ok {
		return repository.ErrUserNotFound()
	}
	if cur.Email != u.Email {
		if _, taken := r.byEmail[u.Email]; taken {
			return repository.ErrDuplicateEmail()
		}
		delete(r.byEmail, cur.Email)
		r.byEmail[u.Email] = u.ID
	}
	u.UpdatedAt = r.now()
	cp := *u
	r.byID[u.ID] = &cp
	return nil
}

func (r *UserRepository) IncrementLoginAttempts(_ context.Context, id string) (int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	u, ok := r.byID[id]
	if !ok {
		return 0, repository.ErrUserNotFound()
	}
	u.LoginAttempts++
	return u.LoginAttempts, nil
}

func (r *UserRepository) ResetLoginAttempts(_ context.Context, id string) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	u, ok := r.byID[id]
	if !ok {
		return false, repository.ErrUserNotFound()
	}
	if u.IsLocked() {
		return false, nil
	}
	u.LoginAttempts = 0
	u.UpdatedAt = r.now()
	return true, nil
}

func (r *UserRepository) Lock(_ context.Context, id string) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	u, ok := r.byID[id]
	if !ok {
		return false, repository.ErrUserNotFound()
	}
	if u.IsLocked() {
		return false, nil
	}
	u.State = entity.Locked{EmailConfirmed: u.ConfirmedEmail()}
	u.UpdatedAt = r.now()
	return true, nil
}

func (r *UserRepository) ClearExpiredResets(_ context.Context, now time.Time) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var n int64
	for _, u := range r.byID {
		if p, ok := u.State.(entity.PendingReset); ok && p.Expired(now) {
			u.State = entity.Active{}
			n++
		}
	}
	return n, nil
}

func tokenHash(s entity.AccountState, field repository.TokenField) string {
	switch st := s.(type) {
	case entity.PendingConfirmation:
		if field == repository.TokenConfirmEmail {
			return st.TokenHash
		}
	case entity.PendingReset:
		if field == repository.TokenPasswordReset {
			return st.TokenHash
		}
	case entity.Locked:
		if field == repository.TokenAccountUnlock {
			return st.UnlockTokenHash
		}
	}
	return ""
}

// project copies u, blanking secrets unless requested.
func project(u *entity.User, o repository.LoadOptions) *entity.User {
	cp := *u
	if o.Secrets {
		return &cp
	}
	cp.PasswordHash = ""
	cp.LoginAttempts = 0
	switch st := cp.State.(type) {
	case entity.PendingConfirmation:
		cp.State = entity.PendingConfirmation{}
	case entity.Locked:
		cp.State = entity.Locked{EmailConfirmed: st.EmailConfirmed}
	case entity.PendingReset:
		cp.State = entity.PendingReset{ExpiresAt: st.ExpiresAt}
	}
	return &cp
}

var _ repository.UserRepository = (*UserRepository)(nil)
