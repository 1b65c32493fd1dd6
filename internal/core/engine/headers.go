package engine

import (
	"encoding/json"
	"errors"
	"math"
	"net/http"
	"strconv"
	"strings"
	"time"
)

// Rate limit response headers.
const (
	HeaderLimit      = "X-RateLimit-Limit"
	HeaderRemaining  = "X-RateLimit-Remaining"
	HeaderReset      = "X-RateLimit-Reset"
	HeaderResetAfter = "X-RateLimit-Reset-After"
	HeaderBucket     = "X-RateLimit-Bucket"
	HeaderGlobal     = "X-RateLimit-Global"
	HeaderScope      = "X-RateLimit-Scope"
	HeaderRetryAfter = "Retry-After"
)

// RateLimitInfo is the rate limit metadata parsed from one response.
type RateLimitInfo struct {
	// Known is set when limit, remaining and reset were all parsed.
	Known      bool
	Limit      int
	Remaining  int
	ResetAt    time.Time
	Bucket     string
	Global     bool
	Scope      string
	RetryAfter time.Duration

	// DecodeErr holds the first malformed header, if any.
	DecodeErr error
}

// ParseRateLimit reads rate limit headers. Malformed values are ignored and
// recorded on DecodeErr.
func ParseRateLimit(header http.Header, now time.Time) RateLimitInfo {
	info := RateLimitInfo{}
	if header == nil {
		return info
	}

	var (
		hasLimit, hasRemaining, hasReset bool
		decodeErr                        error
	)
	fail := func(name, value string, err error) {
		if decodeErr == nil {
			decodeErr = &DecodeError{Header: name, Value: value, Err: err}
		}
	}

	if value := strings.TrimSpace(header.Get(HeaderLimit)); value != "" {
		if n, err := strconv.Atoi(value); err == nil && n >= 0 {
			info.Limit, hasLimit = n, true
		} else {
			fail(HeaderLimit, value, orNegative(err))
		}
	}

	if value := strings.TrimSpace(header.Get(HeaderRemaining)); value != "" {
		if n, err := strconv.Atoi(value); err == nil && n >= 0 {
			info.Remaining, hasRemaining = n, true
		} else {
			fail(HeaderRemaining, value, orNegative(err))
		}
	}

	// Relative reset is immune to clock skew, so it wins over the absolute one.
	if value := strings.TrimSpace(header.Get(HeaderResetAfter)); value != "" {
		if d, err := parseSeconds(value); err == nil {
			info.ResetAt, hasReset = now.Add(d), true
		} else {
			fail(HeaderResetAfter, value, err)
		}
	}
	if value := strings.TrimSpace(header.Get(HeaderReset)); value != "" && !hasReset {
		if epoch, err := strconv.ParseFloat(value, 64); err == nil && epoch > 0 && !math.IsInf(epoch, 0) {
			sec, frac := math.Modf(epoch)
			info.ResetAt, hasReset = time.Unix(int64(sec), int64(frac*1e9)).UTC(), true
		} else {
			fail(HeaderReset, value, orNegative(err))
		}
	}

	info.Bucket = strings.TrimSpace(header.Get(HeaderBucket))
	info.Scope = strings.ToLower(strings.TrimSpace(header.Get(HeaderScope)))
	info.Global = strings.EqualFold(strings.TrimSpace(header.Get(HeaderGlobal)), "true") || info.Scope == "global"

	if retry, err := retryAfterHeader(header, now); err != nil {
		fail(HeaderRetryAfter, header.Get(HeaderRetryAfter), err)
	} else {
		info.RetryAfter = retry
	}

	info.Known = hasLimit && hasRemaining && hasReset
	info.DecodeErr = decodeErr
	return info
}

// rateLimitBody is the JSON payload sent with a 429.
type rateLimitBody struct {
	RetryAfter float64 `json:"retry_after"`
	Global     bool    `json:"global"`
}

// applyRateLimitBody folds the 429 payload into info. The body carries a
// fractional retry_after, so it wins over the whole-second header.
func applyRateLimitBody(info *RateLimitInfo, body []byte) {
	if len(body) == 0 {
		return
	}
	var payload rateLimitBody
	if err := json.Unmarshal(body, &payload); err != nil {
		return
	}
	if payload.RetryAfter > 0 {
		info.RetryAfter = secondsToDuration(payload.RetryAfter)
	}
	if payload.Global {
		info.Global = true
	}
}

func retryAfterHeader(header http.Header, now time.Time) (time.Duration, error) {
	retry := strings.TrimSpace(header.Get(HeaderRetryAfter))
	if retry == "" {
		return 0, nil
	}

	if d, err := parseSeconds(retry); err == nil {
		return d, nil
	}
	if parsed, err := http.ParseTime(retry); err == nil {
		if wait := parsed.Sub(now); wait > 0 {
			return wait, nil
		}
		return 0, nil
	}

	return 0, errors.New("neither seconds nor http date")
}

func parseSeconds(value string) (time.Duration, error) {
	seconds, err := strconv.ParseFloat(value, 64)
	if err != nil {
		return 0, err
	}
	if seconds < 0 || math.IsNaN(seconds) || math.IsInf(seconds, 0) {
		return 0, errors.New("out of range")
	}
	return secondsToDuration(seconds), nil
}

func secondsToDuration(seconds float64) time.Duration {
	return time.Duration(seconds * float64(time.Second))
}

func orNegative(err error) error {
	if err != nil {
		return err
	}
	return errors.New("out of range")
}
