// Package catalog supplies the bookable time slots for a calendar date.
package catalog

import (
	"errors"
	"fmt"
	"time"

	"salonfront/pkg/domain"
)

// ErrPastDate rejects dates strictly before the provider's current day.
var ErrPastDate = errors.New("date is in the past")

// Provider produces the ordered sequence of bookable slots for a date.
// The static template below can be swapped for a real availability query
// without touching the booking form.
type Provider interface {
	SlotsFor(date time.Time) ([]domain.TimeSlot, error)
}

// StaticProvider returns the same hourly template for every valid date.
type StaticProvider struct {
	startHour int // first slot, 24h clock
	endHour   int // last slot, inclusive

	now func() time.Time
}

// NewStaticProvider builds the daily template provider. Hours outside
// 0..23 or an empty range fall back to the 9:00-17:00 default.
func NewStaticProvider(startHour, endHour int) *StaticProvider {
	if startHour < 0 || startHour > 23 || endHour < startHour || endHour > 23 {
		startHour, endHour = 9, 17
	}
	return &StaticProvider{startHour: startHour, endHour: endHour, now: time.Now}
}

// WithClock overrides the provider's clock, for tests.
func (p *StaticProvider) WithClock(now func() time.Time) *StaticProvider {
	p.now = now
	return p
}

// SlotsFor returns the slot labels for the given date, recomputed on every
// call. Dates before the current day are rejected.
func (p *StaticProvider) SlotsFor(date time.Time) ([]domain.TimeSlot, error) {
	if DayOf(date).Before(DayOf(p.now())) {
		return nil, ErrPastDate
	}
	slots := make([]domain.TimeSlot, 0, p.endHour-p.startHour+1)
	for h := p.startHour; h <= p.endHour; h++ {
		slots = append(slots, domain.TimeSlot(hourLabel(h)))
	}
	return slots, nil
}

// DayOf truncates a time to its calendar date in the time's location.
func DayOf(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, t.Location())
}

// hourLabel formats an hour as the storefront's 12-hour display label,
// e.g. 9 -> "9:00 AM", 13 -> "1:00 PM".
func hourLabel(h int) string {
	suffix := "AM"
	display := h
	switch {
	case h == 0:
		display = 12
	case h == 12:
		suffix = "PM"
	case h > 12:
		display = h - 12
		suffix = "PM"
	}
	return fmt.Sprintf("%d:00 %s", display, suffix)
}
