package model

// Offer holds the policy fields this engine reads. Offers are created and
// managed by the catalog service; the engine never writes them.
type Offer struct {
	ID              string  `json:"id"`
	VenueID         string  `json:"venue_id"`
	PerUserLimit    int     `json:"per_user_limit"`   // max RESERVED+REDEEMED claims per user, default 1
	CooldownMinutes int     `json:"cooldown_minutes"` // min gap since the user's last redemption, 0 = off
	GeofenceKm      float64 `json:"geofence_km"`      // 0 = geofence disabled
}

// Venue carries the coordinates used for geofence checks. Lat/Lng are
// pointers because venues without a pinned location disable the geofence.
type Venue struct {
	ID  string   `json:"id"`
	Lat *float64 `json:"lat"`
	Lng *float64 `json:"lng"`
}
