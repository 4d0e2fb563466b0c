package frame

import (
	"time"
)

// Clock produces simulated timestamps localized to the configured timezone.
// The zero value uses UTC.
type Clock struct {
	loc *time.Location
}

// NewClock resolves the timezone by name. An unknown name falls back to UTC;
// the returned error tells the caller to log the fallback, it is never fatal.
func NewClock(timezone string) (*Clock, error) {
	loc, err := time.LoadLocation(timezone)
	if err != nil {
		return &Clock{loc: time.UTC}, err
	}
	return &Clock{loc: loc}, nil
}

func (c *Clock) location() *time.Location {
	if c == nil || c.loc == nil {
		return time.UTC
	}
	return c.loc
}

// NowMillis returns the current simulated timestamp in milliseconds.
func (c *Clock) NowMillis() int64 {
	return time.Now().In(c.location()).UnixMilli()
}

// FormatMillis renders a millisecond timestamp the way it is burned onto
// the primary view for visual verification.
func (c *Clock) FormatMillis(ms int64) string {
	return time.UnixMilli(ms).In(c.location()).Format("2006-01-02 15:04:05")
}
