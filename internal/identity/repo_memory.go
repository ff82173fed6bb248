package identity

import (
	"context"
	"sort"
	"sync"
	"time"
)

// MemoryRepo is an in-memory Repository useful for tests.
// It is not intended for production use.
type MemoryRepo struct {
	mu     sync.Mutex
	nextID int64
	users  map[int64]User
}

func NewMemoryRepo() *MemoryRepo {
	return &MemoryRepo{nextID: 1, users: make(map[int64]User)}
}

func (r *MemoryRepo) Insert(ctx context.Context, u User) (User, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, existing := range r.users {
		if existing.Username == u.Username || existing.Email == u.Email {
			return User{}, ErrAlreadyExists
		}
	}
	u.ID = r.nextID
	r.nextID++
	if u.CreatedAt.IsZero() {
		u.CreatedAt = time.Now().UTC()
	}
	r.users[u.ID] = u
	return u, nil
}

func (r *MemoryRepo) GetByID(ctx context.Context, id int64) (User, bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	u, ok := r.users[id]
	return u, ok, nil
}

func (r *MemoryRepo) GetByUsername(ctx context.Context, username string) (User, bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, u := range r.users {
		if u.Username == username {
			return u, true, nil
		}
	}
	return User{}, false, nil
}

func (r *MemoryRepo) ListExcept(ctx context.Context, excludeID int64) ([]User, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []User
	for _, u := range r.users {
		if u.ID != excludeID {
			out = append(out, u)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Username < out[j].Username })
	return out, nil
}
