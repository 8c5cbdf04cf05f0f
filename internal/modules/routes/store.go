// README: Postgres-backed route source (LISTEN/NOTIFY) and user directory.
package routes

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"

	"greenpool/internal/types"
)

// NotifyChannel is the channel the routes trigger publishes on.
const NotifyChannel = "routes_changed"

// Schema creates the tables read by PostgresStore and the trigger that
// notifies listeners on every route change.
const Schema = `
CREATE TABLE IF NOT EXISTS users (
    user_id               TEXT PRIMARY KEY,
    email                 TEXT NOT NULL,
    display_name          TEXT NOT NULL,
    phone_number          TEXT,
    share_email           BOOLEAN,
    share_phone           BOOLEAN,
    notifications_enabled BOOLEAN
);

CREATE TABLE IF NOT EXISTS routes (
    id                 TEXT PRIMARY KEY,
    owner_user_id      TEXT NOT NULL,
    origin_lat         DOUBLE PRECISION NOT NULL,
    origin_lng         DOUBLE PRECISION NOT NULL,
    origin_address     TEXT NOT NULL DEFAULT '',
    origin_place_id    TEXT,
    dest_lat           DOUBLE PRECISION NOT NULL,
    dest_lng           DOUBLE PRECISION NOT NULL,
    dest_address       TEXT NOT NULL DEFAULT '',
    dest_place_id      TEXT,
    departure_time_ms  BIGINT NOT NULL,
    status             TEXT NOT NULL,
    max_detour_minutes DOUBLE PRECISION NOT NULL DEFAULT 0,
    transport_mode     TEXT NOT NULL DEFAULT 'driving',
    carpool_preference BOOLEAN NOT NULL DEFAULT FALSE,
    carbon_emissions_kg       DOUBLE PRECISION NOT NULL DEFAULT 0,
    fuel_savings_liters       DOUBLE PRECISION NOT NULL DEFAULT 0,
    carbon_offset_kg          DOUBLE PRECISION NOT NULL DEFAULT 0,
    traffic_reduction_percent DOUBLE PRECISION NOT NULL DEFAULT 0
);

CREATE INDEX IF NOT EXISTS routes_status_idx ON routes (status);

CREATE OR REPLACE FUNCTION notify_routes_changed() RETURNS trigger AS $$
BEGIN
    PERFORM pg_notify('routes_changed', COALESCE(NEW.id, OLD.id));
    RETURN NULL;
END;
$$ LANGUAGE plpgsql;

DROP TRIGGER IF EXISTS routes_changed ON routes;
CREATE TRIGGER routes_changed
    AFTER INSERT OR UPDATE OR DELETE ON routes
    FOR EACH ROW EXECUTE FUNCTION notify_routes_changed();
`

const routeColumns = `id, owner_user_id,
    origin_lat, origin_lng, origin_address, origin_place_id,
    dest_lat, dest_lng, dest_address, dest_place_id,
    departure_time_ms, status, max_detour_minutes, transport_mode, carpool_preference,
    carbon_emissions_kg, fuel_savings_liters, carbon_offset_kg, traffic_reduction_percent`

type PostgresStore struct {
	db     *pgxpool.Pool
	logger *zap.Logger
}

func NewPostgresStore(db *pgxpool.Pool, logger *zap.Logger) *PostgresStore {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &PostgresStore{db: db, logger: logger}
}

// Migrate applies Schema. It is idempotent.
func (s *PostgresStore) Migrate(ctx context.Context) error {
	if _, err := s.db.Exec(ctx, Schema); err != nil {
		return fmt.Errorf("applying routes schema: %w", err)
	}
	return nil
}

func scanRoute(row pgx.Row) (Route, error) {
	var (
		r                      Route
		originPlace, destPlace *string
		originLat, originLng   float64
		destLat, destLng       float64
		status, mode           string
	)
	err := row.Scan(
		&r.ID, &r.OwnerUserID,
		&originLat, &originLng, &r.Origin.Address, &originPlace,
		&destLat, &destLng, &r.Destination.Address, &destPlace,
		&r.DepartureTimeMs, &status, &r.Preferences.MaxDetourMinutes, &mode, &r.Preferences.CarpoolPreference,
		&r.Impact.CarbonEmissionsKg, &r.Impact.FuelSavingsLiters, &r.Impact.CarbonOffsetKg, &r.Impact.TrafficReductionPercent,
	)
	if err != nil {
		return Route{}, err
	}
	r.Status = Status(status)
	r.Preferences.TransportMode = TransportMode(mode)
	if r.Origin.Coordinate, err = types.NewCoordinate(originLat, originLng); err != nil {
		return Route{}, fmt.Errorf("route %s origin: %w", r.ID, err)
	}
	if r.Destination.Coordinate, err = types.NewCoordinate(destLat, destLng); err != nil {
		return Route{}, fmt.Errorf("route %s destination: %w", r.ID, err)
	}
	if originPlace != nil {
		r.Origin.PlaceID = *originPlace
	}
	if destPlace != nil {
		r.Destination.PlaceID = *destPlace
	}
	return r, r.Validate()
}

func (s *PostgresStore) ActiveRoutes(ctx context.Context) (Snapshot, error) {
	rows, err := s.db.Query(ctx, `SELECT `+routeColumns+` FROM routes WHERE status = $1 ORDER BY id`, string(StatusActive))
	if err != nil {
		return Snapshot{}, fmt.Errorf("querying active routes: %w", err)
	}
	defer rows.Close()

	snap := Snapshot{ReadTime: time.Now()}
	for rows.Next() {
		r, err := scanRoute(rows)
		if err != nil {
			s.logger.Warn("skipping invalid route row", zap.Error(err))
			continue
		}
		snap.Routes = append(snap.Routes, r)
	}
	if err := rows.Err(); err != nil {
		return Snapshot{}, fmt.Errorf("reading active routes: %w", err)
	}
	return snap, nil
}

// Watch holds one pooled connection in LISTEN for the lifetime of ctx.
func (s *PostgresStore) Watch(ctx context.Context) <-chan Event {
	out := make(chan Event)
	go func() {
		defer close(out)

		send := func(ev Event) bool {
			select {
			case out <- ev:
				return true
			case <-ctx.Done():
				return false
			}
		}

		conn, err := s.db.Acquire(ctx)
		if err != nil {
			if ctx.Err() == nil {
				send(Event{Err: fmt.Errorf("acquiring listen connection: %w", err)})
			}
			return
		}
		defer conn.Release()
		defer func() {
			unlistenCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
			defer cancel()
			_, _ = conn.Exec(unlistenCtx, "UNLISTEN "+NotifyChannel)
		}()

		if _, err := conn.Exec(ctx, "LISTEN "+NotifyChannel); err != nil {
			if ctx.Err() == nil {
				send(Event{Err: fmt.Errorf("listening on %s: %w", NotifyChannel, err)})
			}
			return
		}

		for {
			snap, err := s.ActiveRoutes(ctx)
			if err != nil {
				if ctx.Err() == nil {
					send(Event{Err: err})
				}
				return
			}
			if !send(Event{Snapshot: snap}) {
				return
			}
			if _, err := conn.Conn().WaitForNotification(ctx); err != nil {
				if ctx.Err() == nil {
					send(Event{Err: fmt.Errorf("waiting for route notification: %w", err)})
				}
				return
			}
		}
	}()
	return out
}

func (s *PostgresStore) GetUsers(ctx context.Context, ids []types.ID) (map[types.ID]UserProfile, error) {
	out := make(map[types.ID]UserProfile, len(ids))
	if len(ids) == 0 {
		return out, nil
	}
	keys := make([]string, len(ids))
	for i, id := range ids {
		keys[i] = string(id)
	}

	rows, err := s.db.Query(ctx, `SELECT user_id, email, display_name, phone_number,
        share_email, share_phone, notifications_enabled
        FROM users WHERE user_id = ANY($1)`, keys)
	if err != nil {
		return nil, fmt.Errorf("querying users: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var (
			u                      UserProfile
			phone                  *string
			shareEmail, sharePhone *bool
			notifications          *bool
		)
		if err := rows.Scan(&u.UserID, &u.Email, &u.DisplayName, &phone, &shareEmail, &sharePhone, &notifications); err != nil {
			return nil, fmt.Errorf("scanning user: %w", err)
		}
		if phone != nil {
			u.PhoneNumber = *phone
		}
		if shareEmail != nil || sharePhone != nil || notifications != nil {
			u.Sharing = &SharingPreferences{
				ShareEmail:           deref(shareEmail),
				SharePhone:           deref(sharePhone),
				NotificationsEnabled: deref(notifications),
			}
		}
		out[u.UserID] = u
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("reading users: %w", err)
	}
	return out, nil
}

func deref(b *bool) bool {
	return b != nil && *b
}
