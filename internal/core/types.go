package core

import "time"

// BucketPhase identifies where a bucket sits in its rate limit lifecycle.
type BucketPhase string

const (
	// BucketFresh means no rate limit headers have been seen yet.
	BucketFresh BucketPhase = "fresh"
	// BucketKnown means limits are known and allowance remains.
	BucketKnown BucketPhase = "known"
	// BucketExhausted means the allowance is spent until the reset deadline.
	BucketExhausted BucketPhase = "exhausted"
)

// BucketSnapshot is a point-in-time view of a live bucket.
type BucketSnapshot struct {
	Key       string      `json:"key"`
	Method    string      `json:"method"`
	Template  string      `json:"template"`
	Major     string      `json:"major,omitempty"`
	Phase     BucketPhase `json:"phase"`
	Limit     int         `json:"limit"`
	Remaining int         `json:"remaining"`
	ResetAt   *time.Time  `json:"reset_at,omitempty"`
	InFlight  int         `json:"in_flight"`
	Queued    int         `json:"queued"`
}

// GlobalLockSnapshot is a point-in-time view of the cross-bucket lock.
type GlobalLockSnapshot struct {
	Locked   bool       `json:"locked"`
	ResumeAt *time.Time `json:"resume_at,omitempty"`
}
