package repository

import (
	"context"
	"fmt"
	"sync"

	"codocs/internal/user/model"
	"codocs/pkg/apperror"
)

// MemoryRepository keeps users in process memory. Used for local runs and tests.
type MemoryRepository struct {
	mu    sync.RWMutex
	users map[string]model.User
}

func NewMemoryRepository() *MemoryRepository {
	return &MemoryRepository{users: make(map[string]model.User)}
}

func (r *MemoryRepository) Create(_ context.Context, u model.User) error {
	if err := u.Validate(); err != nil {
		return fmt.Errorf("user: %w", apperror.Invalid(err))
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.users[u.ID] = u
	return nil
}

func (r *MemoryRepository) FindByID(_ context.Context, id string) (*model.User, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	u, ok := r.users[id]
	if !ok {
		return nil, apperror.NotFound("user %s", id)
	}
	return &u, nil
}

func (r *MemoryRepository) FindByIDs(_ context.Context, ids []string) ([]model.User, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	users := make([]model.User, 0, len(ids))
	for _, id := range ids {
		if u, ok := r.users[id]; ok {
			users = append(users, u)
		}
	}
	return users, nil
}
