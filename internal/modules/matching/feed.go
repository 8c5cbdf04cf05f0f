// README: Reactive match feed: one owned subscription per subject route, recomputed on every store change.
package matching

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"greenpool/internal/modules/impact"
	"greenpool/internal/modules/routes"
	"greenpool/internal/types"
)

// Feed turns route store changes into ranked match updates.
//
// Each subscription runs at most one pipeline at a time. Snapshots that
// arrive while a run is in flight are coalesced: only the newest waits, and
// it runs once the current run finishes. Updates are therefore delivered in
// snapshot order and a superseded snapshot is never delivered.
//
// These guarantees hold per Subscription, not per subject route: two
// subscriptions on the same route each run their own pipeline.
type Feed struct {
	source   routes.Source
	users    routes.Directory
	supplier impact.Supplier
	service  *Service
	logger   *zap.Logger
	now      func() time.Time
}

func NewFeed(source routes.Source, users routes.Directory, supplier impact.Supplier, service *Service, logger *zap.Logger) *Feed {
	if logger == nil {
		logger = zap.NewNop()
	}
	if service == nil {
		service = NewService(logger)
	}
	return &Feed{
		source:   source,
		users:    users,
		supplier: supplier,
		service:  service,
		logger:   logger,
		now:      time.Now,
	}
}

// Snapshot computes matches once over the store's current active routes.
// It returns routes.ErrNotFound when the subject is not an active route.
func (f *Feed) Snapshot(ctx context.Context, subjectID types.ID) ([]RouteMatch, error) {
	snap, err := f.source.ActiveRoutes(ctx)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrComputeFailed, err)
	}
	matches, found, err := f.compute(ctx, subjectID, snap)
	if err != nil {
		return nil, err
	}
	if !found {
		return nil, fmt.Errorf("%w: active route %s", routes.ErrNotFound, subjectID)
	}
	return matches, nil
}

// Subscribe starts watching matches for subjectID. onUpdate is called from a
// single goroutine, one update at a time. It must not call Unsubscribe.
func (f *Feed) Subscribe(ctx context.Context, subjectID types.ID, onUpdate func(Update)) (*Subscription, error) {
	if subjectID == "" {
		return nil, fmt.Errorf("%w: empty subject route id", routes.ErrInvalidRoute)
	}
	if onUpdate == nil {
		return nil, errors.New("matching: nil update callback")
	}

	ctx, cancel := context.WithCancel(ctx)
	sub := &Subscription{
		ID:        uuid.NewString(),
		SubjectID: subjectID,
		feed:      f,
		onUpdate:  onUpdate,
		cancel:    cancel,
		pending:   make(chan routes.Event, 1),
		pumpDone:  make(chan struct{}),
		done:      make(chan struct{}),
		state:     StateSubscribed,
	}
	sub.logger = f.logger.With(zap.String("subscription_id", sub.ID), zap.String("subject_route_id", string(subjectID)))

	events := f.source.Watch(ctx)
	go sub.pump(events)
	go sub.work(ctx)

	sub.logger.Info("match feed subscribed")
	return sub, nil
}

// compute runs the pipeline for subjectID over snap. found is false when
// the subject is not in the snapshot.
func (f *Feed) compute(ctx context.Context, subjectID types.ID, snap routes.Snapshot) (matches []RouteMatch, found bool, err error) {
	defer func() {
		if r := recover(); r != nil {
			matches, err = nil, fmt.Errorf("%w: panic: %v", ErrComputeFailed, r)
		}
	}()

	subject, ok := snap.FindRoute(subjectID)
	if !ok {
		return []RouteMatch{}, false, nil
	}

	start := time.Now()
	users, err := f.users.GetUsers(ctx, snap.OwnerIDs(subject.OwnerUserID))
	if err != nil {
		return nil, true, fmt.Errorf("%w: loading users: %v", ErrComputeFailed, err)
	}
	matches = f.service.FindMatches(subject, snap.Routes, users, LookupFrom(ctx, f.supplier))

	f.logger.Debug("matches computed",
		zap.String("subject_route_id", string(subjectID)),
		zap.Int("candidates", len(snap.Routes)),
		zap.Int("matches", len(matches)),
		zap.Float64("elapsed_ms", elapsedMs(start)))
	return matches, true, nil
}

// Subscription is a live match feed for one subject route.
type Subscription struct {
	ID        string
	SubjectID types.ID

	feed     *Feed
	onUpdate func(Update)
	cancel   context.CancelFunc
	logger   *zap.Logger

	// pending holds at most one snapshot waiting for the worker.
	pending  chan routes.Event
	pumpDone chan struct{}
	done     chan struct{}

	mu    sync.Mutex
	state State
	err   error
	once  sync.Once
}

func (s *Subscription) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Err returns the last failure, or nil.
func (s *Subscription) Err() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.err
}

// Done is closed once the subscription has stopped delivering updates.
func (s *Subscription) Done() <-chan struct{} {
	return s.done
}

// Unsubscribe releases the store listener and waits for the worker to
// stop. No update is delivered after it returns. It is safe to call more
// than once.
func (s *Subscription) Unsubscribe() {
	s.once.Do(func() {
		s.cancel()
		<-s.done
		<-s.pumpDone
		s.mu.Lock()
		s.state = StateIdle
		s.mu.Unlock()
		s.logger.Info("match feed unsubscribed")
	})
}

// pump moves store events into pending, replacing any snapshot the worker
// has not picked up yet.
func (s *Subscription) pump(events <-chan routes.Event) {
	defer close(s.pumpDone)
	defer close(s.pending)
	for ev := range events {
		select {
		case <-s.pending:
		default:
		}
		s.pending <- ev
	}
}

func (s *Subscription) work(ctx context.Context) {
	defer close(s.done)
	for ev := range s.pending {
		if ctx.Err() != nil {
			return
		}
		if ev.Err != nil {
			s.terminate(fmt.Errorf("%w: %v", ErrSubscriptionFailure, ev.Err))
			return
		}

		s.setState(StateComputing, nil)
		matches, _, err := s.feed.compute(ctx, s.SubjectID, ev.Snapshot)
		if ctx.Err() != nil {
			return
		}
		if err != nil {
			s.setState(StateError, err)
			s.logger.Warn("match computation failed", zap.Error(err))
			s.deliver(Update{SubjectRouteID: s.SubjectID, Err: err, At: s.feed.now()})
			continue
		}
		s.setState(StateSubscribed, nil)
		s.deliver(Update{SubjectRouteID: s.SubjectID, Matches: matches, At: s.feed.now()})
	}
	if ctx.Err() == nil {
		s.terminate(fmt.Errorf("%w: change stream closed", ErrSubscriptionFailure))
	}
}

// terminate records a stream failure, tells the consumer and releases the
// store listener.
func (s *Subscription) terminate(err error) {
	s.setState(StateError, err)
	s.logger.Error("match feed stopped", zap.Error(err))
	s.deliver(Update{SubjectRouteID: s.SubjectID, Err: err, At: s.feed.now()})
	s.cancel()
}

func (s *Subscription) setState(state State, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.state = state
	if err != nil {
		s.err = err
	}
}

func (s *Subscription) deliver(u Update) {
	s.onUpdate(u)
}
