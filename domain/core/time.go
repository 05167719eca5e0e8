package core

import (
	"database/sql/driver"
	"fmt"
	"time"
)

// Timestamp is a UTC instant at microsecond precision, the resolution of
// Postgres timestamptz, so stored fits read back with equal timestamps.
type Timestamp time.Time

// NewTimestamp normalizes t to UTC microseconds
func NewTimestamp(t time.Time) Timestamp {
	return Timestamp(t.UTC().Truncate(time.Microsecond))
}

// Now returns the current timestamp
func Now() Timestamp {
	return NewTimestamp(time.Now())
}

// Time returns the underlying time.Time
func (t Timestamp) Time() time.Time {
	return time.Time(t)
}

// IsZero checks if the timestamp is zero
func (t Timestamp) IsZero() bool {
	return time.Time(t).IsZero()
}

// After reports whether t is later than u
func (t Timestamp) After(u Timestamp) bool {
	return time.Time(t).After(time.Time(u))
}

func (t Timestamp) String() string { return t.Time().Format(time.RFC3339) }

func (t Timestamp) MarshalJSON() ([]byte, error) {
	return []byte(`"` + t.Time().Format(time.RFC3339Nano) + `"`), nil
}

func (t *Timestamp) UnmarshalJSON(data []byte) error {
	var tm time.Time
	if err := tm.UnmarshalJSON(data); err != nil {
		return err
	}
	*t = NewTimestamp(tm)
	return nil
}

// Value binds the timestamp as a SQL parameter
func (t Timestamp) Value() (driver.Value, error) {
	return t.Time(), nil
}

// Scan reads a timestamp column
func (t *Timestamp) Scan(src interface{}) error {
	switch v := src.(type) {
	case time.Time:
		*t = NewTimestamp(v)
	case nil:
		*t = Timestamp{}
	default:
		return fmt.Errorf("cannot scan %T into Timestamp", src)
	}
	return nil
}
