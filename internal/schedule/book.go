// Package schedule owns the lifecycle of schedule days.
package schedule

import (
	"sort"

	"github.com/Dallionking/donna-assistant/internal/domain"
)

// Book is the state handle for one user's schedule days. It is passed
// explicitly into every Machine operation; nothing in this package keeps
// state of its own.
type Book struct {
	days    map[string]domain.ScheduleDay
	touched map[string]bool
}

func NewBook(days ...domain.ScheduleDay) *Book {
	b := &Book{days: map[string]domain.ScheduleDay{}, touched: map[string]bool{}}
	for _, d := range days {
		b.days[d.Date] = d.Clone()
	}
	return b
}

func (b *Book) Day(date string) (domain.ScheduleDay, bool) {
	d, ok := b.days[date]
	if !ok {
		return domain.ScheduleDay{}, false
	}
	return d.Clone(), true
}

// Days returns every day in date order.
func (b *Book) Days() []domain.ScheduleDay {
	out := make([]domain.ScheduleDay, 0, len(b.days))
	for _, d := range b.days {
		out = append(out, d.Clone())
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Date < out[j].Date })
	return out
}

func (b *Book) Active() (domain.ScheduleDay, bool) {
	return b.withStatus(domain.DayActive)
}

func (b *Book) Approved() (domain.ScheduleDay, bool) {
	return b.withStatus(domain.DayApproved)
}

func (b *Book) withStatus(status domain.DayStatus) (domain.ScheduleDay, bool) {
	for _, d := range b.Days() {
		if d.Status == status {
			return d, true
		}
	}
	return domain.ScheduleDay{}, false
}

// Touched lists the dates written since the book was created, in date order.
func (b *Book) Touched() []domain.ScheduleDay {
	var out []domain.ScheduleDay
	for _, d := range b.Days() {
		if b.touched[d.Date] {
			out = append(out, d)
		}
	}
	return out
}

// Mutate runs fn against a copy of the book and keeps the copy only when fn
// succeeds, so a failed operation leaves every day as it was.
func (b *Book) Mutate(fn func(*Book) error) error {
	next := b.clone()
	if err := fn(next); err != nil {
		return err
	}
	b.days, b.touched = next.days, next.touched
	return nil
}

func (b *Book) put(d domain.ScheduleDay) {
	d.Version++
	b.days[d.Date] = d
	b.touched[d.Date] = true
}

func (b *Book) clone() *Book {
	next := &Book{
		days:    make(map[string]domain.ScheduleDay, len(b.days)),
		touched: make(map[string]bool, len(b.touched)),
	}
	for k, d := range b.days {
		next.days[k] = d.Clone()
	}
	for k, v := range b.touched {
		next.touched[k] = v
	}
	return next
}
