package credentials

import (
	"fmt"
	"strings"
	"time"

	"github.com/sosodev/duration"
)

// DefaultLifetime is the ISO-8601 lifetime used when none is configured.
const DefaultLifetime = "PT4H"

// ParseLifetime converts an ISO-8601 duration such as PT4H into a
// time.Duration. An empty string or "0" yields zero, meaning no expiry where
// the transition allows it.
func ParseLifetime(iso string) (time.Duration, error) {
	iso = strings.TrimSpace(iso)
	if iso == "" || iso == "0" {
		return 0, nil
	}

	d, err := duration.Parse(iso)
	if err != nil {
		return 0, fmt.Errorf("%w: %q: %v", ErrInvalidLifetime, iso, err)
	}

	if d.Negative {
		return 0, fmt.Errorf("%w: %q is negative", ErrInvalidLifetime, iso)
	}

	return d.ToTimeDuration(), nil
}

// FormatLifetime renders a duration as ISO-8601.
func FormatLifetime(d time.Duration) string {
	return duration.Format(d)
}
