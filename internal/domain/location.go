package domain

import "github.com/google/uuid"

// LocationSource records how a Location's coordinates were obtained:
// supplied directly by the caller, or resolved through the upstream
// GeoProvider place-lookup.
type LocationSource string

const (
	LocationSourceCoordinates  LocationSource = "coordinates"
	LocationSourceGooglePlaces LocationSource = "google_places"
)

// Location is an immutable, write-once point of interest. Either the caller
// supplied raw coordinates, or the location was imported from the
// GeoProvider via an opaque place id and session token.
type Location struct {
	Token       uuid.UUID      `json:"token"`
	Coordinates Coordinates    `json:"coordinates"`
	Description string         `json:"description"`
	Source      LocationSource `json:"source"`
	PlaceID     string         `json:"place_id,omitempty"`
	SessionToken string        `json:"session_token,omitempty"`
}

// NewCoordinateLocation builds a Location from caller-supplied coordinates.
func NewCoordinateLocation(token uuid.UUID, coords Coordinates, description string) Location {
	return Location{
		Token:       token,
		Coordinates: coords,
		Description: description,
		Source:      LocationSourceCoordinates,
	}
}

// NewProviderLocation builds a Location resolved through the GeoProvider.
func NewProviderLocation(token uuid.UUID, coords Coordinates, description, placeID, sessionToken string) Location {
	return Location{
		Token:        token,
		Coordinates:  coords,
		Description:  description,
		Source:       LocationSourceGooglePlaces,
		PlaceID:      placeID,
		SessionToken: sessionToken,
	}
}
