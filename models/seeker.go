package models

import "time"

// Location is a lat/lon pair in degrees.
type Location struct {
	Latitude  float64 `json:"latitude"`
	Longitude float64 `json:"longitude"`
}

// Valid reports whether the location lies within [-90,90]x[-180,180].
func (l Location) Valid() bool {
	return l.Latitude >= -90 && l.Latitude <= 90 &&
		l.Longitude >= -180 && l.Longitude <= 180
}

// Seeker is a user currently in the active matching pool. Location is
// stored at reduced precision.
type Seeker struct {
	UserID      string    `json:"userId"`
	Location    Location  `json:"location"`
	Geocell     string    `json:"geocell"`
	JoinedAt    time.Time `json:"joinedAt"`
	ExpiresAt   time.Time `json:"expiresAt"`
	DisplayHint string    `json:"displayHint,omitempty"`
}

// Expired reports whether the entry is no longer live at now.
func (s Seeker) Expired(now time.Time) bool {
	return !s.ExpiresAt.After(now)
}
