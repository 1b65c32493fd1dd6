package core

import "time"

// BucketState captures the persisted rate limit state of one bucket.
type BucketState struct {
	Limit     int        `json:"limit"`
	Remaining int        `json:"remaining"`
	ResetAt   time.Time  `json:"reset_at"`
	Bucket    string     `json:"bucket,omitempty"`
	Last429At *time.Time `json:"last_429_at,omitempty"`
	UpdatedAt time.Time  `json:"updated_at"`
}

// Exhausted reports whether the state still blocks dispatch at now.
func (s BucketState) Exhausted(now time.Time) bool {
	return s.Limit > 0 && s.Remaining <= 0 && now.Before(s.ResetAt)
}
