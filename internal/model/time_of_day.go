package model

import (
    "database/sql/driver"
    "fmt"
    "strconv"
    "strings"
    "time"
)

// TimeOfDay is a wall-clock time within a day expressed as minutes since
// midnight.  It is stored in MySQL TIME columns and travels over the API as
// "HH:MM".  The zero value is midnight.
type TimeOfDay int

// MinutesPerDay bounds valid TimeOfDay values; 24:00 is accepted as an end
// of day marker.
const MinutesPerDay = 24 * 60

// ParseTimeOfDay accepts "HH:MM" or "HH:MM:SS".  Seconds must be zero since
// slots are minute-aligned.
func ParseTimeOfDay(s string) (TimeOfDay, error) {
    parts := strings.Split(strings.TrimSpace(s), ":")
    if len(parts) < 2 || len(parts) > 3 {
        return 0, fmt.Errorf("invalid time of day %q", s)
    }
    h, err := strconv.Atoi(parts[0])
    if err != nil || h < 0 || h > 24 {
        return 0, fmt.Errorf("invalid hour in %q", s)
    }
    m, err := strconv.Atoi(parts[1])
    if err != nil || m < 0 || m > 59 {
        return 0, fmt.Errorf("invalid minute in %q", s)
    }
    if len(parts) == 3 {
        sec, err := strconv.Atoi(parts[2])
        if err != nil || sec != 0 {
            return 0, fmt.Errorf("invalid second in %q", s)
        }
    }
    t := TimeOfDay(h*60 + m)
    if t > MinutesPerDay {
        return 0, fmt.Errorf("time of day %q out of range", s)
    }
    return t, nil
}

// String renders the value as "HH:MM".
func (t TimeOfDay) String() string {
    return fmt.Sprintf("%02d:%02d", int(t)/60, int(t)%60)
}

// Duration returns the offset from midnight.
func (t TimeOfDay) Duration() time.Duration {
    return time.Duration(t) * time.Minute
}

// On returns the instant at which this time of day occurs on the given civil
// date in loc.
func (t TimeOfDay) On(date time.Time, loc *time.Location) time.Time {
    y, m, d := date.Date()
    return time.Date(y, m, d, 0, 0, 0, 0, loc).Add(t.Duration())
}

// Value implements driver.Valuer so TimeOfDay can be bound to TIME columns.
func (t TimeOfDay) Value() (driver.Value, error) {
    return fmt.Sprintf("%02d:%02d:00", int(t)/60, int(t)%60), nil
}

// Scan implements sql.Scanner for TIME columns, which the MySQL driver
// returns as []byte "HH:MM:SS".
func (t *TimeOfDay) Scan(src any) error {
    switch v := src.(type) {
    case []byte:
        return t.parseInto(string(v))
    case string:
        return t.parseInto(v)
    case time.Time:
        *t = TimeOfDay(v.Hour()*60 + v.Minute())
        return nil
    case nil:
        *t = 0
        return nil
    }
    return fmt.Errorf("cannot scan %T into TimeOfDay", src)
}

func (t *TimeOfDay) parseInto(s string) error {
    parsed, err := ParseTimeOfDay(s)
    if err != nil {
        return err
    }
    *t = parsed
    return nil
}

// MarshalJSON renders "HH:MM".
func (t TimeOfDay) MarshalJSON() ([]byte, error) {
    return []byte(strconv.Quote(t.String())), nil
}

// UnmarshalJSON accepts "HH:MM" or "HH:MM:SS".
func (t *TimeOfDay) UnmarshalJSON(b []byte) error {
    s, err := strconv.Unquote(string(b))
    if err != nil {
        return fmt.Errorf("time of day must be a string: %w", err)
    }
    return t.parseInto(s)
}

// DateLayout is the wire and SQL layout of civil dates.
const DateLayout = "2006-01-02"

// ParseDate parses a civil date ("YYYY-MM-DD") as midnight UTC.  Dates carry
// no zone; callers combine them with the venue location when an instant is
// needed.
func ParseDate(s string) (time.Time, error) {
    d, err := time.Parse(DateLayout, strings.TrimSpace(s))
    if err != nil {
        return time.Time{}, fmt.Errorf("invalid date %q: %w", s, err)
    }
    return d, nil
}
