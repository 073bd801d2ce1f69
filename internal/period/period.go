// Package period describes the forecast horizons a user can select: a month,
// a quarter, a half-year or a whole year.
package period

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/dfvmonitor/energyforecast/internal/types"
)

// Kind is the granularity of a forecast horizon.
type Kind int

const (
	Monthly Kind = iota
	Quarterly
	HalfYear
	Yearly
)

func (k Kind) String() string {
	switch k {
	case Monthly:
		return "monthly"
	case Quarterly:
		return "quarterly"
	case HalfYear:
		return "semester"
	case Yearly:
		return "yearly"
	default:
		return fmt.Sprintf("kind(%d)", int(k))
	}
}

// Period is a forecast horizon. Index is the month (1-12), quarter (1-4) or
// half (1-2); it is ignored for Yearly.
type Period struct {
	Kind  Kind
	Index int
}

// Month, Quarter, Half and Year construct periods.
func Month(m time.Month) Period { return Period{Kind: Monthly, Index: int(m)} }
func Quarter(q int) Period      { return Period{Kind: Quarterly, Index: q} }
func Half(s int) Period         { return Period{Kind: HalfYear, Index: s} }
func Year() Period              { return Period{Kind: Yearly} }

// Validate checks that Index is in range for the kind.
func (p Period) Validate() error {
	var max int
	switch p.Kind {
	case Monthly:
		max = 12
	case Quarterly:
		max = 4
	case HalfYear:
		max = 2
	case Yearly:
		return nil
	default:
		return fmt.Errorf("unknown period kind %d", int(p.Kind))
	}
	if p.Index < 1 || p.Index > max {
		return fmt.Errorf("%s period index %d out of range 1-%d", p.Kind, p.Index, max)
	}
	return nil
}

// Months returns the first and last month of year covered by the period.
func (p Period) Months() (time.Month, time.Month) {
	switch p.Kind {
	case Monthly:
		return time.Month(p.Index), time.Month(p.Index)
	case Quarterly:
		first := time.Month((p.Index-1)*3 + 1)
		return first, first + 2
	case HalfYear:
		first := time.Month((p.Index-1)*6 + 1)
		return first, first + 5
	default:
		return time.January, time.December
	}
}

// Contains reports whether month m falls within the period.
func (p Period) Contains(m time.Month) bool {
	from, to := p.Months()
	return m >= from && m <= to
}

// Window returns the inclusive first and last calendar day of the period in year.
func (p Period) Window(year int) (time.Time, time.Time) {
	from, to := p.Months()
	start := time.Date(year, from, 1, 0, 0, 0, 0, time.UTC)
	end := time.Date(year, to, types.DaysIn(year, to), 0, 0, 0, 0, time.UTC)
	return start, end
}

// Days returns the number of days the period spans in year.
func (p Period) Days(year int) int {
	start, end := p.Window(year)
	return int(end.Sub(start).Hours()/24) + 1
}

// Label is a short human readable name: "05", "Q2", "S1" or the year.
func (p Period) Label(year int) string {
	switch p.Kind {
	case Monthly:
		return fmt.Sprintf("%02d", p.Index)
	case Quarterly:
		return fmt.Sprintf("Q%d", p.Index)
	case HalfYear:
		return fmt.Sprintf("S%d", p.Index)
	default:
		return strconv.Itoa(year)
	}
}

func (p Period) String() string {
	if p.Kind == Yearly {
		return p.Kind.String()
	}
	return fmt.Sprintf("%s:%d", p.Kind, p.Index)
}

// Parse reads a period from its kind name and index, as used in query
// parameters: ("monthly", "5"), ("quarterly", "2"), ("semester", "1"), ("yearly", "").
func Parse(kind, index string) (Period, error) {
	var p Period
	switch strings.ToLower(strings.TrimSpace(kind)) {
	case "monthly", "month", "havi":
		p.Kind = Monthly
	case "quarterly", "quarter", "negyedeves":
		p.Kind = Quarterly
	case "semester", "half", "halfyear", "feleves":
		p.Kind = HalfYear
	case "yearly", "year", "eves", "":
		return Year(), nil
	default:
		return Period{}, fmt.Errorf("unknown period kind %q", kind)
	}

	i, err := strconv.Atoi(strings.TrimSpace(index))
	if err != nil {
		return Period{}, fmt.Errorf("invalid %s period index %q", p.Kind, index)
	}
	p.Index = i

	if err := p.Validate(); err != nil {
		return Period{}, err
	}
	return p, nil
}
