package license

import (
	"bytes"
	"cmp"
	"encoding/json"
	"fmt"
	"time"
)

const dateLayout = "2006-01-02"

// Date is a calendar day with no time or zone component.
type Date struct {
	Year  int
	Month time.Month
	Day   int
}

// NewDate builds a Date. Out-of-range values are normalized the way
// time.Date normalizes them.
func NewDate(year int, month time.Month, day int) Date {
	return DateOf(time.Date(year, month, day, 0, 0, 0, 0, time.UTC))
}

// DateOf returns the calendar day of t in t's location.
func DateOf(t time.Time) Date {
	y, m, d := t.Date()
	return Date{Year: y, Month: m, Day: d}
}

// Time returns midnight UTC at the start of d.
func (d Date) Time() time.Time {
	return time.Date(d.Year, d.Month, d.Day, 0, 0, 0, 0, time.UTC)
}

// ParseDate parses an ISO-8601 calendar date (YYYY-MM-DD).
func ParseDate(s string) (Date, error) {
	t, err := time.Parse(dateLayout, s)
	if err != nil {
		return Date{}, fmt.Errorf("parse date %q: %w", s, err)
	}
	return DateOf(t), nil
}

// Compare returns -1, 0 or +1 depending on whether d is before, equal to or
// after other.
func (d Date) Compare(other Date) int {
	switch {
	case d.Year != other.Year:
		return cmp.Compare(d.Year, other.Year)
	case d.Month != other.Month:
		return cmp.Compare(int(d.Month), int(other.Month))
	default:
		return cmp.Compare(d.Day, other.Day)
	}
}

func (d Date) Before(other Date) bool { return d.Compare(other) < 0 }

func (d Date) After(other Date) bool { return d.Compare(other) > 0 }

// AddMonths adds n calendar months. When the target month is shorter, the
// day is clamped to its last day, so 2024-01-31 plus one month is 2024-02-29.
func (d Date) AddMonths(n int) Date {
	total := d.Year*12 + int(d.Month-1) + n
	year, month := total/12, time.Month(total%12+1)
	if total%12 < 0 {
		year, month = year-1, month+12
	}
	return Date{Year: year, Month: month, Day: min(d.Day, daysIn(year, month))}
}

func (d Date) String() string {
	return fmt.Sprintf("%04d-%02d-%02d", d.Year, int(d.Month), d.Day)
}

func (d Date) MarshalJSON() ([]byte, error) {
	return json.Marshal(d.String())
}

// UnmarshalJSON accepts "YYYY-MM-DD" as well as the [year, month, day] array
// some issuers emit.
func (d *Date) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if len(data) > 0 && data[0] == '[' {
		var parts []int
		if err := json.Unmarshal(data, &parts); err != nil {
			return fmt.Errorf("decode date array: %w", err)
		}
		if len(parts) != 3 {
			return fmt.Errorf("date array must have 3 elements, got %d", len(parts))
		}
		parsed := NewDate(parts[0], time.Month(parts[1]), parts[2])
		if parsed.Year != parts[0] || int(parsed.Month) != parts[1] || parsed.Day != parts[2] {
			return fmt.Errorf("invalid date %v", parts)
		}
		*d = parsed
		return nil
	}

	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return fmt.Errorf("decode date: %w", err)
	}
	parsed, err := ParseDate(s)
	if err != nil {
		return err
	}
	*d = parsed
	return nil
}

func daysIn(year int, month time.Month) int {
	return time.Date(year, month+1, 0, 0, 0, 0, 0, time.UTC).Day()
}
