package rit

import "time"

const (
	defaultBaseDelay = 1 * time.Second
	defaultMaxDelay  = 60 * time.Second
)

// backoff returns base * 2^retry, capped at ceiling. A negative retry counts as
// zero.
func backoff(retry int, base, ceiling time.Duration) time.Duration {
	if retry < 0 {
		retry = 0
	}
	// 2^30 seconds is far past any sensible cap.
	if retry > 30 {
		return ceiling
	}
	d := base * time.Duration(1<<retry)
	if d > ceiling || d <= 0 {
		return ceiling
	}
	return d
}
