package inventory

import (
	"fmt"
	"time"
)

const (
	DateLayout  = "2006-01-02"
	MonthLayout = "2006-01"
)

// =============================================================================
// DATE - Calendar day, the granularity of the transaction log
// =============================================================================

type Date struct {
	Time time.Time
}

func NewDate(year int, month time.Month, day int) Date {
	return Date{Time: time.Date(year, month, day, 0, 0, 0, 0, time.UTC)}
}

// DateOf truncates t to its calendar day.
func DateOf(t time.Time) Date {
	return NewDate(t.Year(), t.Month(), t.Day())
}

func Today() Date { return DateOf(time.Now()) }

func ParseDate(s string) (Date, error) {
	t, err := time.Parse(DateLayout, s)
	if err != nil {
		return Date{}, &ValidationError{Field: "date", Message: fmt.Sprintf("invalid date %q (use YYYY-MM-DD)", s)}
	}
	return Date{Time: t}, nil
}

// MustDate parses s and panics on error. Intended for tests and literals.
func MustDate(s string) Date {
	d, err := ParseDate(s)
	if err != nil {
		panic(err)
	}
	return d
}

func (d Date) Before(o Date) bool        { return d.Time.Before(o.Time) }
func (d Date) After(o Date) bool         { return d.Time.After(o.Time) }
func (d Date) Equal(o Date) bool         { return d.Time.Equal(o.Time) }
func (d Date) BeforeOrEqual(o Date) bool { return !d.After(o) }
func (d Date) IsZero() bool              { return d.Time.IsZero() }
func (d Date) AddDays(n int) Date        { return Date{Time: d.Time.AddDate(0, 0, n)} }
func (d Date) Month() Month              { return Month(d.Time.Format(MonthLayout)) }

func (d Date) String() string {
	if d.IsZero() {
		return ""
	}
	return d.Time.Format(DateLayout)
}

// =============================================================================
// MONTH - "YYYY-MM", the closing and BOM version period
// =============================================================================

// Month values compare correctly as strings.
type Month string

func ParseMonth(s string) (Month, error) {
	t, err := time.Parse(MonthLayout, s)
	if err != nil {
		return "", &ValidationError{Field: "month", Message: fmt.Sprintf("invalid month %q (use YYYY-MM)", s)}
	}
	return Month(t.Format(MonthLayout)), nil
}

func MustMonth(s string) Month {
	m, err := ParseMonth(s)
	if err != nil {
		panic(err)
	}
	return m
}

func (m Month) start() time.Time {
	t, _ := time.Parse(MonthLayout, string(m))
	return t
}

func (m Month) FirstDay() Date     { return Date{Time: m.start()} }
func (m Month) LastDay() Date      { return Date{Time: m.start().AddDate(0, 1, -1)} }
func (m Month) Next() Month        { return Month(m.start().AddDate(0, 1, 0).Format(MonthLayout)) }
func (m Month) Prev() Month        { return Month(m.start().AddDate(0, -1, 0).Format(MonthLayout)) }
func (m Month) Before(o Month) bool { return m < o }
func (m Month) String() string     { return string(m) }
