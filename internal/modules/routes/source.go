// README: Store-facing capabilities the matching core consumes (snapshot query, push stream, user lookup).
package routes

import (
	"context"
	"time"

	"greenpool/internal/types"
)

// Snapshot is an immutable view of the active routes at ReadTime.
// Consumers must not modify Routes.
type Snapshot struct {
	Routes   []Route
	ReadTime time.Time
}

// Event is one delivery on a watch stream: a snapshot, or the error that
// ended the stream. The channel is closed after an error event.
type Event struct {
	Snapshot Snapshot
	Err      error
}

// Source is the external route collection.
type Source interface {
	// ActiveRoutes returns the current snapshot of active routes.
	ActiveRoutes(ctx context.Context) (Snapshot, error)
	// Watch pushes a snapshot for the current state and again after every
	// change. Cancelling ctx releases the listener and closes the channel.
	Watch(ctx context.Context) <-chan Event
}

// Directory resolves user profiles by ID. Unknown IDs are absent from
// the result rather than an error.
type Directory interface {
	GetUsers(ctx context.Context, ids []types.ID) (map[types.ID]UserProfile, error)
}

// FindRoute returns the route with id in the snapshot.
func (s Snapshot) FindRoute(id types.ID) (Route, bool) {
	for _, r := range s.Routes {
		if r.ID == id {
			return r, true
		}
	}
	return Route{}, false
}

// OwnerIDs returns the distinct owners of the snapshot's routes, excluding skip.
func (s Snapshot) OwnerIDs(skip types.ID) []types.ID {
	seen := make(map[types.ID]struct{}, len(s.Routes))
	ids := make([]types.ID, 0, len(s.Routes))
	for _, r := range s.Routes {
		if r.OwnerUserID == skip {
			continue
		}
		if _, ok := seen[r.OwnerUserID]; ok {
			continue
		}
		seen[r.OwnerUserID] = struct{}{}
		ids = append(ids, r.OwnerUserID)
	}
	return ids
}
