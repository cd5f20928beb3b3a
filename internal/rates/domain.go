package rates

import "time"

// RateEntry maps a person to their hourly billing rate. One active entry
// per person; edited by finance staff, read-only to the reconciler.
type RateEntry struct {
	ID          string    `json:"id"`
	PersonEmail string    `json:"personEmail"`
	PersonName  string    `json:"personName"`
	HourlyRate  float64   `json:"hourlyRate"`
	CreatedAt   time.Time `json:"createdAt"`
	UpdatedAt   time.Time `json:"updatedAt"`
}
