package oauth

import (
	"fmt"
	"time"
)

const timeLayout = time.RFC3339

func parseTime(s string) (time.Time, error) {
	t, err := time.Parse(timeLayout, s)
	if err != nil {
		return time.Time{}, fmt.Errorf("parse expiry %q: %w", s, err)
	}
	return t, nil
}

// ComputeExpiry converts an expires_in duration in seconds to an absolute
// instant, defaulting to +60m when the provider omits it.
func ComputeExpiry(seconds int) time.Time {
	if seconds <= 0 {
		return time.Now().Add(60 * time.Minute)
	}
	return time.Now().Add(time.Duration(seconds) * time.Second)
}
