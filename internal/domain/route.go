package domain

import "github.com/google/uuid"

// Route is immutable once created. DistanceM is authoritative for fare
// computation; Directions is an opaque blob handed back verbatim by the
// routing collaborator and never interpreted here.
type Route struct {
	Token       uuid.UUID `json:"token"`
	Origin      Location  `json:"origin"`
	Destination Location  `json:"destination"`
	Directions  []byte    `json:"directions,omitempty"`
	DistanceM   float64   `json:"distance_m"`
}

// Quote anchors a fare ceiling to a route at the moment of creation. A later
// dispatch MAY legally fail if driver supply has moved since the quote was
// computed; Quote does not guarantee supply, only a price.
type Quote struct {
	Token   uuid.UUID `json:"token"`
	Route   Route     `json:"route"`
	MaxFare float64   `json:"max_fare"`
}
