package types

import (
	"fmt"
	"time"
)

// Interval is a half-open time slot [Start, End)
type Interval struct {
	Start time.Time `yaml:"start"`
	End   time.Time `yaml:"end"`
}

// NewInterval creates an interval from start to end
func NewInterval(start, end time.Time) Interval {
	return Interval{Start: start, End: end}
}

// IsEmpty reports whether the interval contains no instant
func (i Interval) IsEmpty() bool {
	return !i.End.After(i.Start)
}

// Duration returns the length of the interval
func (i Interval) Duration() time.Duration {
	if i.IsEmpty() {
		return 0
	}
	return i.End.Sub(i.Start)
}

// Overlaps reports whether both intervals share at least one instant
func (i Interval) Overlaps(other Interval) bool {
	if i.IsEmpty() || other.IsEmpty() {
		return false
	}
	return i.Start.Before(other.End) && other.Start.Before(i.End)
}

// Contains reports whether other lies entirely within i
func (i Interval) Contains(other Interval) bool {
	return !other.Start.Before(i.Start) && !other.End.After(i.End)
}

// ContainsTime reports whether t lies within [Start, End)
func (i Interval) ContainsTime(t time.Time) bool {
	return !t.Before(i.Start) && t.Before(i.End)
}

// Extend widens the interval by before and after
func (i Interval) Extend(before, after time.Duration) Interval {
	return Interval{Start: i.Start.Add(-before), End: i.End.Add(after)}
}

// ClipStart moves the start forward to t when the interval starts earlier
func (i Interval) ClipStart(t time.Time) Interval {
	if i.Start.Before(t) {
		return Interval{Start: t, End: i.End}
	}
	return i
}

// Equal reports whether both intervals denote the same instants
func (i Interval) Equal(other Interval) bool {
	return i.Start.Equal(other.Start) && i.End.Equal(other.End)
}

func (i Interval) String() string {
	return fmt.Sprintf("[%s, %s)", i.Start.Format(time.RFC3339), i.End.Format(time.RFC3339))
}
