package handshake

import "time"

const (
	// LinkExpiry bounds the age of a code's embedded issuance time.
	LinkExpiry = 7 * 24 * time.Hour

	// StaleAfter is how long a committed lock survives before it is treated
	// as abandoned and may be superseded by another job.
	StaleAfter = 7 * 24 * time.Hour
)

// Context is the device's binding to one job, created by a successful
// validation and made durable by Commit.
type Context struct {
	JobID            string    `json:"job_id"`
	DeliveryContact  string    `json:"delivery_contact"`
	SecondaryContact string    `json:"secondary_contact,omitempty"`
	AccessCode       string    `json:"access_code"`
	Checksum         string    `json:"checksum"`
	CreatedAt        time.Time `json:"created_at"`
	IsValid          bool      `json:"is_valid"`
	IsLocked         bool      `json:"is_locked"`
}

// IsStale reports whether a lock taken at lockedAt has outlived window.
// A zero lockedAt is never stale.
func IsStale(now, lockedAt time.Time, window time.Duration) bool {
	if lockedAt.IsZero() {
		return false
	}
	return now.Sub(lockedAt) > window
}
