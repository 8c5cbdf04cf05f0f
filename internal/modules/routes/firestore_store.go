// README: Firestore-backed route source (snapshot listener) and user directory.
package routes

import (
	"context"
	"errors"
	"fmt"

	"cloud.google.com/go/firestore"
	"go.uber.org/zap"
	"google.golang.org/api/iterator"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"greenpool/internal/types"
)

const (
	routesCollection = "routes"
	usersCollection  = "users"
)

// FirestoreStore reads the routes and users collections written by the
// web client. It never writes.
type FirestoreStore struct {
	client *firestore.Client
	logger *zap.Logger
}

func NewFirestoreStore(client *firestore.Client, logger *zap.Logger) *FirestoreStore {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &FirestoreStore{client: client, logger: logger}
}

// ---------------------------------------------------------------------------
// Document models
// ---------------------------------------------------------------------------

type firestoreLocation struct {
	Lat     float64 `firestore:"lat"`
	Lng     float64 `firestore:"lng"`
	Address string  `firestore:"address"`
	PlaceID string  `firestore:"placeId,omitempty"`
}

type firestorePreferences struct {
	MaxDetour         float64 `firestore:"maxDetour"`
	TransportMode     string  `firestore:"transportMode"`
	CarpoolPreference bool    `firestore:"carpoolPreference"`
}

type firestoreImpact struct {
	CarbonEmissions  float64 `firestore:"carbonEmissions"`
	FuelSavings      float64 `firestore:"fuelSavings"`
	CarbonOffset     float64 `firestore:"carbonOffset"`
	TrafficReduction float64 `firestore:"trafficReduction"`
}

// firestoreRoute mirrors a document in the routes collection. departureTime
// is epoch milliseconds; the JS client may store it as a double.
type firestoreRoute struct {
	UserID              string               `firestore:"userId"`
	Origin              firestoreLocation    `firestore:"origin"`
	Destination         firestoreLocation    `firestore:"destination"`
	DepartureTime       float64              `firestore:"departureTime"`
	Status              string               `firestore:"status"`
	Preferences         firestorePreferences `firestore:"preferences"`
	EnvironmentalImpact firestoreImpact      `firestore:"environmentalImpact"`
}

type firestoreSharing struct {
	ShareEmail           bool `firestore:"shareEmail"`
	SharePhone           bool `firestore:"sharePhone"`
	NotificationsEnabled bool `firestore:"notificationsEnabled"`
}

type firestoreUser struct {
	Email       string           `firestore:"email"`
	DisplayName string           `firestore:"displayName"`
	PhoneNumber string           `firestore:"phoneNumber,omitempty"`
	Preferences firestoreSharing `firestore:"preferences"`
}

func (l firestoreLocation) toLocation() (Location, error) {
	c, err := types.NewCoordinate(l.Lat, l.Lng)
	if err != nil {
		return Location{}, err
	}
	return Location{Coordinate: c, Address: l.Address, PlaceID: l.PlaceID}, nil
}

func routeFromDocument(id string, d firestoreRoute) (Route, error) {
	origin, err := d.Origin.toLocation()
	if err != nil {
		return Route{}, fmt.Errorf("route %s origin: %w", id, err)
	}
	dest, err := d.Destination.toLocation()
	if err != nil {
		return Route{}, fmt.Errorf("route %s destination: %w", id, err)
	}
	r := Route{
		ID:              types.ID(id),
		OwnerUserID:     types.ID(d.UserID),
		Origin:          origin,
		Destination:     dest,
		DepartureTimeMs: int64(d.DepartureTime),
		Status:          Status(d.Status),
		Preferences: Preferences{
			MaxDetourMinutes:  d.Preferences.MaxDetour,
			TransportMode:     TransportMode(d.Preferences.TransportMode),
			CarpoolPreference: d.Preferences.CarpoolPreference,
		},
		Impact: EnvironmentalImpact{
			CarbonEmissionsKg:       d.EnvironmentalImpact.CarbonEmissions,
			FuelSavingsLiters:       d.EnvironmentalImpact.FuelSavings,
			CarbonOffsetKg:          d.EnvironmentalImpact.CarbonOffset,
			TrafficReductionPercent: d.EnvironmentalImpact.TrafficReduction,
		},
	}
	if err := r.Validate(); err != nil {
		return Route{}, err
	}
	return r, nil
}

func userFromDocument(id string, d firestoreUser, hasSharing bool) UserProfile {
	u := UserProfile{
		UserID:      types.ID(id),
		Email:       d.Email,
		DisplayName: d.DisplayName,
		PhoneNumber: d.PhoneNumber,
	}
	if hasSharing {
		u.Sharing = &SharingPreferences{
			ShareEmail:           d.Preferences.ShareEmail,
			SharePhone:           d.Preferences.SharePhone,
			NotificationsEnabled: d.Preferences.NotificationsEnabled,
		}
	}
	return u
}

// ---------------------------------------------------------------------------
// Source
// ---------------------------------------------------------------------------

func (s *FirestoreStore) activeQuery() firestore.Query {
	return s.client.Collection(routesCollection).Where("status", "==", string(StatusActive))
}

// decodeRoutes drops documents that fail validation; a malformed record in
// the shared store must not block matching for everyone else.
func (s *FirestoreStore) decodeRoutes(docs []*firestore.DocumentSnapshot) []Route {
	out := make([]Route, 0, len(docs))
	for _, doc := range docs {
		var d firestoreRoute
		if err := doc.DataTo(&d); err != nil {
			s.logger.Warn("skipping undecodable route document", zap.String("route_id", doc.Ref.ID), zap.Error(err))
			continue
		}
		r, err := routeFromDocument(doc.Ref.ID, d)
		if err != nil {
			s.logger.Warn("skipping invalid route document", zap.String("route_id", doc.Ref.ID), zap.Error(err))
			continue
		}
		out = append(out, r)
	}
	return out
}

func (s *FirestoreStore) ActiveRoutes(ctx context.Context) (Snapshot, error) {
	docs, err := s.activeQuery().Documents(ctx).GetAll()
	if err != nil {
		return Snapshot{}, fmt.Errorf("querying active routes: %w", err)
	}
	var snap Snapshot
	snap.Routes = s.decodeRoutes(docs)
	if len(docs) > 0 {
		snap.ReadTime = docs[0].ReadTime
	}
	return snap, nil
}

func (s *FirestoreStore) Watch(ctx context.Context) <-chan Event {
	out := make(chan Event)
	go func() {
		defer close(out)

		it := s.activeQuery().Snapshots(ctx)
		defer it.Stop()

		send := func(ev Event) bool {
			select {
			case out <- ev:
				return true
			case <-ctx.Done():
				return false
			}
		}

		for {
			qs, err := it.Next()
			if err != nil {
				if ctx.Err() != nil || errors.Is(err, iterator.Done) || status.Code(err) == codes.Canceled {
					return
				}
				send(Event{Err: fmt.Errorf("listening to active routes: %w", err)})
				return
			}
			docs, err := qs.Documents.GetAll()
			if err != nil {
				send(Event{Err: fmt.Errorf("reading route snapshot: %w", err)})
				return
			}
			if !send(Event{Snapshot: Snapshot{Routes: s.decodeRoutes(docs), ReadTime: qs.ReadTime}}) {
				return
			}
		}
	}()
	return out
}

// ---------------------------------------------------------------------------
// Directory
// ---------------------------------------------------------------------------

func (s *FirestoreStore) GetUsers(ctx context.Context, ids []types.ID) (map[types.ID]UserProfile, error) {
	out := make(map[types.ID]UserProfile, len(ids))
	if len(ids) == 0 {
		return out, nil
	}
	refs := make([]*firestore.DocumentRef, len(ids))
	for i, id := range ids {
		refs[i] = s.client.Collection(usersCollection).Doc(string(id))
	}
	docs, err := s.client.GetAll(ctx, refs)
	if err != nil {
		return nil, fmt.Errorf("fetching users: %w", err)
	}
	for _, doc := range docs {
		if !doc.Exists() {
			continue
		}
		var d firestoreUser
		if err := doc.DataTo(&d); err != nil {
			s.logger.Warn("skipping undecodable user document", zap.String("user_id", doc.Ref.ID), zap.Error(err))
			continue
		}
		_, hasSharing := doc.Data()["preferences"]
		out[types.ID(doc.Ref.ID)] = userFromDocument(doc.Ref.ID, d, hasSharing)
	}
	return out, nil
}
