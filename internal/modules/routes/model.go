// README: Route and user profile records read from the external store.
package routes

import (
	"errors"
	"fmt"
	"time"

	"greenpool/internal/types"
)

var (
	ErrNotFound     = errors.New("not found")
	ErrInvalidRoute = errors.New("invalid route")
)

type Status string

const (
	StatusActive    Status = "active"
	StatusCompleted Status = "completed"
	StatusCancelled Status = "cancelled"
)

type TransportMode string

const (
	ModeDriving   TransportMode = "driving"
	ModeTransit   TransportMode = "transit"
	ModeWalking   TransportMode = "walking"
	ModeBicycling TransportMode = "bicycling"
)

// Location is immutable once attached to a Route.
type Location struct {
	types.Coordinate
	Address string `json:"address"`
	PlaceID string `json:"placeId,omitempty"`
}

type Preferences struct {
	MaxDetourMinutes  float64       `json:"maxDetourMinutes"`
	TransportMode     TransportMode `json:"transportMode"`
	CarpoolPreference bool          `json:"carpoolPreference"`
}

type EnvironmentalImpact struct {
	CarbonEmissionsKg       float64 `json:"carbonEmissionsKg"`
	FuelSavingsLiters       float64 `json:"fuelSavingsLiters"`
	CarbonOffsetKg          float64 `json:"carbonOffsetKg"`
	TrafficReductionPercent float64 `json:"trafficReductionPercent"`
}

type Route struct {
	ID              types.ID            `json:"id"`
	OwnerUserID     types.ID            `json:"ownerUserId"`
	Origin          Location            `json:"origin"`
	Destination     Location            `json:"destination"`
	DepartureTimeMs int64               `json:"departureTimeMs"`
	Status          Status              `json:"status"`
	Preferences     Preferences         `json:"preferences"`
	Impact          EnvironmentalImpact `json:"impact"`
}

func (r Route) DepartureTime() time.Time {
	return time.UnixMilli(r.DepartureTimeMs)
}

func (r Route) IsActive() bool {
	return r.Status == StatusActive
}

// Validate checks the enumerations and coordinates of a route record.
func (r Route) Validate() error {
	if r.ID == "" {
		return fmt.Errorf("%w: missing id", ErrInvalidRoute)
	}
	if r.OwnerUserID == "" {
		return fmt.Errorf("%w: route %s has no owner", ErrInvalidRoute, r.ID)
	}
	switch r.Status {
	case StatusActive, StatusCompleted, StatusCancelled:
	default:
		return fmt.Errorf("%w: route %s has status %q", ErrInvalidRoute, r.ID, r.Status)
	}
	switch r.Preferences.TransportMode {
	case ModeDriving, ModeTransit, ModeWalking, ModeBicycling:
	default:
		return fmt.Errorf("%w: route %s has transport mode %q", ErrInvalidRoute, r.ID, r.Preferences.TransportMode)
	}
	if r.Preferences.MaxDetourMinutes < 0 {
		return fmt.Errorf("%w: route %s has negative max detour", ErrInvalidRoute, r.ID)
	}
	if err := r.Origin.Validate(); err != nil {
		return fmt.Errorf("route %s origin: %w", r.ID, err)
	}
	if err := r.Destination.Validate(); err != nil {
		return fmt.Errorf("route %s destination: %w", r.ID, err)
	}
	return nil
}

type SharingPreferences struct {
	ShareEmail           bool `json:"shareEmail"`
	SharePhone           bool `json:"sharePhone"`
	NotificationsEnabled bool `json:"notificationsEnabled"`
}

type UserProfile struct {
	UserID      types.ID            `json:"userId"`
	Email       string              `json:"email"`
	DisplayName string              `json:"displayName"`
	PhoneNumber string              `json:"phoneNumber,omitempty"`
	Sharing     *SharingPreferences `json:"preferences,omitempty"`
}

// Contact lists the channels a user agreed to share with matched travelers.
type Contact struct {
	Email string `json:"email,omitempty"`
	Phone string `json:"phone,omitempty"`
}

func (u UserProfile) Contact() Contact {
	var c Contact
	if u.Sharing == nil {
		return c
	}
	if u.Sharing.ShareEmail {
		c.Email = u.Email
	}
	if u.Sharing.SharePhone && u.PhoneNumber != "" {
		c.Phone = u.PhoneNumber
	}
	return c
}
