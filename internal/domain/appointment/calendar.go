package appointment

import (
	"sort"
	"time"
)

// Day is one cell of a month grid.
type Day struct {
	Date         time.Time      `json:"date"`
	InMonth      bool           `json:"in_month"`
	Appointments []*Appointment `json:"appointments"`
}

// Grid is a month laid out as six weeks of seven days, starting on the
// configured first day of the week. Leading and trailing cells belong to the
// neighbouring months.
type Grid struct {
	Year      int          `json:"year"`
	Month     time.Month   `json:"month"`
	WeekStart time.Weekday `json:"week_start"`
	Weeks     [6][7]Day    `json:"weeks"`
}

// MonthGrid builds the grid for month in loc. Cell dates are local midnights.
func MonthGrid(year int, month time.Month, weekStart time.Weekday, loc *time.Location) *Grid {
	if loc == nil {
		loc = time.UTC
	}
	first := time.Date(year, month, 1, 0, 0, 0, 0, loc)
	lead := (int(first.Weekday()) - int(weekStart) + 7) % 7

	g := &Grid{Year: first.Year(), Month: first.Month(), WeekStart: weekStart}
	for i := 0; i < 42; i++ {
		// time.Date normalizes day overflow into the neighbouring months.
		d := time.Date(first.Year(), first.Month(), 1-lead+i, 0, 0, 0, 0, loc)
		g.Weeks[i/7][i%7] = Day{Date: d, InMonth: d.Month() == first.Month(), Appointments: []*Appointment{}}
	}
	return g
}

// Range returns the first instant of the grid and the first instant after it.
func (g *Grid) Range() (from, to time.Time) {
	first := g.Weeks[0][0].Date
	return first, time.Date(first.Year(), first.Month(), first.Day()+42, 0, 0, 0, 0, first.Location())
}

// Day returns the cell holding t, or nil when t is outside the grid.
func (g *Grid) Day(t time.Time) *Day {
	from, to := g.Range()
	t = t.In(from.Location())
	if t.Before(from) || !t.Before(to) {
		return nil
	}
	local := time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, from.Location())
	for w := range g.Weeks {
		for d := range g.Weeks[w] {
			if g.Weeks[w][d].Date.Equal(local) {
				return &g.Weeks[w][d]
			}
		}
	}
	return nil
}

// GroupByDay places each appointment on the cell of its local start date,
// ordered by start time. Appointments outside the grid are skipped.
func GroupByDay(g *Grid, appts []*Appointment) {
	sorted := make([]*Appointment, len(appts))
	copy(sorted, appts)
	sort.SliceStable(sorted, func(i, j int) bool { return sorted[i].Start.Before(sorted[j].Start) })

	for _, a := range sorted {
		if day := g.Day(a.Start); day != nil {
			day.Appointments = append(day.Appointments, a)
		}
	}
}
