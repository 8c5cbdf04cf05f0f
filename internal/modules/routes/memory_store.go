// README: In-process route/user store with push snapshots; used for local runs and tests.
package routes

import (
	"cmp"
	"context"
	"slices"
	"sync"
	"time"

	"greenpool/internal/types"
)

type memoryWatcher struct {
	notify chan struct{}
	failed chan error
}

type MemoryStore struct {
	mu       sync.RWMutex
	routes   map[types.ID]Route
	users    map[types.ID]UserProfile
	watchers map[*memoryWatcher]struct{}
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		routes:   make(map[types.ID]Route),
		users:    make(map[types.ID]UserProfile),
		watchers: make(map[*memoryWatcher]struct{}),
	}
}

// PutRoute inserts or replaces a route and notifies watchers.
func (s *MemoryStore) PutRoute(r Route) error {
	if err := r.Validate(); err != nil {
		return err
	}
	s.mu.Lock()
	s.routes[r.ID] = r
	s.mu.Unlock()
	s.broadcast()
	return nil
}

func (s *MemoryStore) DeleteRoute(id types.ID) {
	s.mu.Lock()
	delete(s.routes, id)
	s.mu.Unlock()
	s.broadcast()
}

func (s *MemoryStore) SetStatus(id types.ID, status Status) error {
	s.mu.Lock()
	r, ok := s.routes[id]
	if !ok {
		s.mu.Unlock()
		return ErrNotFound
	}
	r.Status = status
	s.routes[id] = r
	s.mu.Unlock()
	s.broadcast()
	return nil
}

func (s *MemoryStore) PutUser(u UserProfile) {
	s.mu.Lock()
	s.users[u.UserID] = u
	s.mu.Unlock()
}

// Fail ends every open watch stream with err.
func (s *MemoryStore) Fail(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for w := range s.watchers {
		select {
		case w.failed <- err:
		default:
		}
	}
}

// Watchers returns the number of open watch streams.
func (s *MemoryStore) Watchers() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.watchers)
}

func (s *MemoryStore) ActiveRoutes(_ context.Context) (Snapshot, error) {
	return s.snapshot(), nil
}

func (s *MemoryStore) snapshot() Snapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]Route, 0, len(s.routes))
	for _, r := range s.routes {
		if r.IsActive() {
			out = append(out, r)
		}
	}
	slices.SortFunc(out, func(a, b Route) int { return cmp.Compare(a.ID, b.ID) })
	return Snapshot{Routes: out, ReadTime: time.Now()}
}

func (s *MemoryStore) Watch(ctx context.Context) <-chan Event {
	w := &memoryWatcher{
		notify: make(chan struct{}, 1),
		failed: make(chan error, 1),
	}
	w.notify <- struct{}{}

	s.mu.Lock()
	s.watchers[w] = struct{}{}
	s.mu.Unlock()

	out := make(chan Event)
	go func() {
		defer close(out)
		defer func() {
			s.mu.Lock()
			delete(s.watchers, w)
			s.mu.Unlock()
		}()
		for {
			select {
			case <-ctx.Done():
				return
			case err := <-w.failed:
				select {
				case out <- Event{Err: err}:
				case <-ctx.Done():
				}
				return
			case <-w.notify:
				select {
				case out <- Event{Snapshot: s.snapshot()}:
				case <-ctx.Done():
					return
				}
			}
		}
	}()
	return out
}

func (s *MemoryStore) broadcast() {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for w := range s.watchers {
		select {
		case w.notify <- struct{}{}:
		default:
		}
	}
}

func (s *MemoryStore) GetUsers(_ context.Context, ids []types.ID) (map[types.ID]UserProfile, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make(map[types.ID]UserProfile, len(ids))
	for _, id := range ids {
		if u, ok := s.users[id]; ok {
			out[id] = u
		}
	}
	return out, nil
}
