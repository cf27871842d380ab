package core

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

// Quarter is a fiscal quarter, 1 to 4.
type Quarter int

const (
	Q1 Quarter = iota + 1
	Q2
	Q3
	Q4
)

// Valid reports whether q is one of Q1..Q4.
func (q Quarter) Valid() bool {
	return q >= Q1 && q <= Q4
}

func (q Quarter) String() string {
	return "Q" + strconv.Itoa(int(q))
}

// Period is a fiscal quarter of a given year. Periods are plain values and
// compare with == when both fields match.
type Period struct {
	Year    int     `json:"year"`
	Quarter Quarter `json:"quarter"`
}

// NewPeriod creates a validated Period.
func NewPeriod(year int, quarter int) (Period, error) {
	p := Period{Year: year, Quarter: Quarter(quarter)}
	if err := p.Validate(); err != nil {
		return Period{}, err
	}
	return p, nil
}

// PeriodOf returns the quarter containing t.
func PeriodOf(t time.Time) Period {
	return Period{Year: t.Year(), Quarter: Quarter((int(t.Month())-1)/3 + 1)}
}

// MustPeriod is NewPeriod for literals known to be valid.
func MustPeriod(year int, quarter int) Period {
	p, err := NewPeriod(year, quarter)
	if err != nil {
		panic(err)
	}
	return p
}

// ParsePeriod parses the Key form, e.g. "2025-Q3". A lowercase "q" is accepted.
func ParsePeriod(s string) (Period, error) {
	s = strings.ToUpper(strings.TrimSpace(s))
	yearPart, quarterPart, ok := strings.Cut(s, "-Q")
	if !ok {
		return Period{}, fmt.Errorf("%w: %q", ErrInvalidPeriod, s)
	}
	year, err := strconv.Atoi(yearPart)
	if err != nil {
		return Period{}, fmt.Errorf("%w: %q", ErrInvalidPeriod, s)
	}
	quarter, err := strconv.Atoi(quarterPart)
	if err != nil {
		return Period{}, fmt.Errorf("%w: %q", ErrInvalidPeriod, s)
	}
	return NewPeriod(year, quarter)
}

// Validate checks the year and quarter ranges.
func (p Period) Validate() error {
	if p.Year < 1900 || p.Year > 9999 {
		return fmt.Errorf("%w: year %d out of range", ErrInvalidPeriod, p.Year)
	}
	if !p.Quarter.Valid() {
		return fmt.Errorf("%w: quarter %d out of range", ErrInvalidPeriod, p.Quarter)
	}
	return nil
}

// Key is the storage key of the period, e.g. "2025-Q3".
func (p Period) Key() string {
	return fmt.Sprintf("%04d-%s", p.Year, p.Quarter)
}

func (p Period) String() string {
	return p.Key()
}

// Next returns the following quarter, wrapping Q4 into Q1 of the next year.
func (p Period) Next() Period {
	if p.Quarter == Q4 {
		return Period{Year: p.Year + 1, Quarter: Q1}
	}
	return Period{Year: p.Year, Quarter: p.Quarter + 1}
}

// Previous returns the preceding quarter, wrapping Q1 into Q4 of the previous year.
func (p Period) Previous() Period {
	if p.Quarter == Q1 {
		return Period{Year: p.Year - 1, Quarter: Q4}
	}
	return Period{Year: p.Year, Quarter: p.Quarter - 1}
}

// Compare returns -1, 0 or +1 depending on whether p is before, equal to or
// after o.
func (p Period) Compare(o Period) int {
	switch {
	case p.Year < o.Year:
		return -1
	case p.Year > o.Year:
		return 1
	case p.Quarter < o.Quarter:
		return -1
	case p.Quarter > o.Quarter:
		return 1
	}
	return 0
}

// Before reports whether p comes strictly before o.
func (p Period) Before(o Period) bool {
	return p.Compare(o) < 0
}

// FollowingInYear returns up to max periods after p, stopping at Q4 of the
// same year.
func (p Period) FollowingInYear(max int) []Period {
	var out []Period
	cur := p
	for len(out) < max && cur.Quarter < Q4 {
		cur = cur.Next()
		out = append(out, cur)
	}
	return out
}
