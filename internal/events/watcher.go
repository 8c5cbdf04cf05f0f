// README: Keeps one match feed subscription per watched route and publishes its updates.
package events

import (
	"context"
	"errors"
	"sync"

	"go.uber.org/zap"

	"greenpool/internal/modules/matching"
	"greenpool/internal/types"
)

var ErrAlreadyWatching = errors.New("route already watched")

type updatePublisher interface {
	Publish(ctx context.Context, u matching.Update) error
}

// Watcher publishes feed updates for every watched route until it is
// unwatched, its feed fails, or the watcher is closed.
type Watcher struct {
	feed      *matching.Feed
	publisher updatePublisher
	logger    *zap.Logger

	ctx    context.Context
	cancel context.CancelFunc

	mu   sync.Mutex
	subs map[types.ID]*watch
	wg   sync.WaitGroup
}

// watch is one watched route. cancel aborts an in-flight publish.
type watch struct {
	sub    *matching.Subscription
	cancel context.CancelFunc
}

func (wt *watch) stop() {
	wt.cancel()
	wt.sub.Unsubscribe()
}

func NewWatcher(feed *matching.Feed, publisher updatePublisher, logger *zap.Logger) *Watcher {
	if logger == nil {
		logger = zap.NewNop()
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Watcher{
		feed:      feed,
		publisher: publisher,
		logger:    logger,
		ctx:       ctx,
		cancel:    cancel,
		subs:      make(map[types.ID]*watch),
	}
}

// Watch starts publishing matches for routeID.
func (w *Watcher) Watch(routeID types.ID) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if _, ok := w.subs[routeID]; ok {
		return ErrAlreadyWatching
	}
	if err := w.ctx.Err(); err != nil {
		return err
	}

	ctx, cancel := context.WithCancel(w.ctx)
	sub, err := w.feed.Subscribe(ctx, routeID, func(u matching.Update) {
		if err := w.publisher.Publish(ctx, u); err != nil {
			w.logger.Warn("publish failed", zap.String("route_id", string(routeID)), zap.Error(err))
		}
	})
	if err != nil {
		cancel()
		return err
	}
	wt := &watch{sub: sub, cancel: cancel}
	w.subs[routeID] = wt

	w.wg.Add(1)
	go func() {
		defer w.wg.Done()
		<-sub.Done()
		w.release(routeID, wt)
	}()
	return nil
}

// Unwatch stops publishing for routeID. It reports whether it was watched.
func (w *Watcher) Unwatch(routeID types.ID) bool {
	w.mu.Lock()
	wt, ok := w.subs[routeID]
	delete(w.subs, routeID)
	w.mu.Unlock()
	if ok {
		wt.stop()
	}
	return ok
}

// Watching returns the watched route IDs.
func (w *Watcher) Watching() []types.ID {
	w.mu.Lock()
	defer w.mu.Unlock()
	ids := make([]types.ID, 0, len(w.subs))
	for id := range w.subs {
		ids = append(ids, id)
	}
	return ids
}

// Close stops every watch and waits for them to finish.
func (w *Watcher) Close() {
	w.cancel()
	w.mu.Lock()
	subs := w.subs
	w.subs = make(map[types.ID]*watch)
	w.mu.Unlock()
	for _, wt := range subs {
		wt.stop()
	}
	w.wg.Wait()
}

// release drops a subscription that stopped on its own.
func (w *Watcher) release(routeID types.ID, wt *watch) {
	w.mu.Lock()
	if w.subs[routeID] == wt {
		delete(w.subs, routeID)
	}
	w.mu.Unlock()
	wt.stop()
	if err := wt.sub.Err(); err != nil && errors.Is(err, matching.ErrSubscriptionFailure) {
		w.logger.Warn("route watch ended", zap.String("route_id", string(routeID)), zap.Error(err))
	}
}
