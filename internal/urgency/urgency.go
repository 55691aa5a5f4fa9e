// Package urgency classifies a plant's watering state. It is the single place
// the due/overdue/snooze rules live; every surface calls Classify.
package urgency

import (
	"strings"
	"time"

	"plantcare/internal/models"
)

type Status string

const (
	StatusOK      Status = "ok"
	StatusDueSoon Status = "due_soon"
	StatusOverdue Status = "overdue"
	StatusSnoozed Status = "snoozed"
)

const DefaultSoonThresholdDays = 1

// State is the classification of one plant at one instant. DaysUntil is signed:
// negative means overdue. It is computed for snoozed plants too so callers can
// show what the state will be once the snooze lapses.
type State struct {
	Status          Status     `json:"status"`
	DaysUntil       int        `json:"days_until"`
	NextDue         time.Time  `json:"next_due"`
	SnoozedUntil    *time.Time `json:"snoozed_until,omitempty"`
	MissingCareDate bool       `json:"missing_care_date,omitempty"`
}

func (s State) DaysOverdue() int {
	if s.Status != StatusOverdue {
		return 0
	}
	return -s.DaysUntil
}

// NeedsWaterToday reports due today or already overdue. This is narrower than
// the DUE_SOON bucket, which also carries the day-ahead warning.
func (s State) NeedsWaterToday() bool {
	return (s.Status == StatusOverdue || s.Status == StatusDueSoon) && s.DaysUntil <= 0
}

type Input struct {
	LastCareDate  *time.Time
	FrequencyDays int
	SnoozedUntil  *time.Time
}

func InputFor(p models.Plant) Input {
	return Input{
		LastCareDate:  p.LastCareDate,
		FrequencyDays: p.WateringFrequencyDays,
		SnoozedUntil:  p.SnoozedUntil,
	}
}

type Classifier struct {
	SoonThresholdDays int
	// Location decides where calendar days start. Nil means time.Local.
	Location *time.Location
}

func NewClassifier(soonThresholdDays int, loc *time.Location) Classifier {
	if soonThresholdDays < 0 {
		soonThresholdDays = DefaultSoonThresholdDays
	}
	return Classifier{SoonThresholdDays: soonThresholdDays, Location: loc}
}

// Classify is total: bad or missing dates never produce an error.
func (c Classifier) Classify(in Input, now time.Time) State {
	loc := c.location()
	now = now.In(loc)

	last := now
	missing := true
	if in.LastCareDate != nil && !in.LastCareDate.IsZero() {
		last = in.LastCareDate.In(loc)
		missing = false
	}

	freq := in.FrequencyDays
	if freq < 1 {
		freq = 1
	}

	nextDue := StartOfDay(last).AddDate(0, 0, freq)
	daysUntil := DaysBetween(StartOfDay(now), nextDue)

	st := State{
		DaysUntil:       daysUntil,
		NextDue:         nextDue,
		MissingCareDate: missing,
	}

	if in.SnoozedUntil != nil && in.SnoozedUntil.After(now) {
		until := *in.SnoozedUntil
		st.Status = StatusSnoozed
		st.SnoozedUntil = &until
		return st
	}

	switch {
	case daysUntil < 0:
		st.Status = StatusOverdue
	case daysUntil <= c.SoonThresholdDays:
		st.Status = StatusDueSoon
	default:
		st.Status = StatusOK
	}
	return st
}

func (c Classifier) ClassifyPlant(p models.Plant, now time.Time) State {
	return c.Classify(InputFor(p), now)
}

func (c Classifier) location() *time.Location {
	if c.Location == nil {
		return time.Local
	}
	return c.Location
}

// StartOfDay truncates t to midnight in t's own location.
func StartOfDay(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, t.Location())
}

// DaysBetween counts calendar days from a to b using civil dates, so DST shifts
// do not turn a day into 23 or 25 hours.
func DaysBetween(a, b time.Time) int {
	ay, am, ad := a.Date()
	by, bm, bd := b.Date()
	ua := time.Date(ay, am, ad, 0, 0, 0, 0, time.UTC)
	ub := time.Date(by, bm, bd, 0, 0, 0, 0, time.UTC)
	return int(ub.Sub(ua).Hours() / 24)
}

var careDateLayouts = []string{
	time.RFC3339Nano,
	time.RFC3339,
	"2006-01-02T15:04:05",
	"2006-01-02 15:04:05",
	"2006-01-02",
}

// ParseCareDate returns nil for anything it cannot read. Callers pass the
// result straight to Classify, which falls back to now.
func ParseCareDate(raw string) *time.Time {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil
	}
	for _, layout := range careDateLayouts {
		if t, err := time.Parse(layout, raw); err == nil {
			return &t
		}
	}
	return nil
}
