package library

import (
	"database/sql"
	"fmt"
	"time"
)

// DateLayout is the on-disk format of every date column.
const DateLayout = "2006-01-02"

// civilDate drops the clock part and pins the date to UTC midnight so day
// arithmetic is unaffected by zones and DST.
func civilDate(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

func daysBetween(from, to time.Time) int {
	return int(civilDate(to).Sub(civilDate(from)).Hours() / 24)
}

func formatDate(t time.Time) string { return t.Format(DateLayout) }

// ParseDate parses a YYYY-MM-DD string into a civil date.
func ParseDate(s string) (time.Time, error) {
	t, err := time.Parse(DateLayout, s)
	if err != nil {
		return time.Time{}, fmt.Errorf("parse date %q: %w", s, err)
	}
	return t, nil
}

func parseNullDate(s sql.NullString) (*time.Time, error) {
	if !s.Valid || s.String == "" {
		return nil, nil
	}
	t, err := ParseDate(s.String)
	if err != nil {
		return nil, err
	}
	return &t, nil
}
