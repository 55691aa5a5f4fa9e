package urgency

import (
	"sort"
	"time"

	"plantcare/internal/models"
)

const DefaultUpcomingWindowDays = 3

// UpcomingItem is a row of the "coming up" list.
type UpcomingItem struct {
	Plant models.Plant `json:"plant"`
	State State        `json:"state"`
}

// Upcoming lists plants due within the next windowDays days (0 = today),
// soonest first. It uses its own window, not the DUE_SOON threshold. Snoozed
// and overdue plants are left out.
func (c Classifier) Upcoming(plants []models.Plant, now time.Time, windowDays int) []UpcomingItem {
	if windowDays < 0 {
		windowDays = DefaultUpcomingWindowDays
	}
	items := make([]UpcomingItem, 0)
	for _, p := range plants {
		st := c.ClassifyPlant(p, now)
		if st.Status == StatusSnoozed || st.Status == StatusOverdue {
			continue
		}
		if st.DaysUntil > windowDays {
			continue
		}
		items = append(items, UpcomingItem{Plant: p, State: st})
	}
	sort.SliceStable(items, func(i, j int) bool {
		if items[i].State.DaysUntil != items[j].State.DaysUntil {
			return items[i].State.DaysUntil < items[j].State.DaysUntil
		}
		return items[i].Plant.ID < items[j].Plant.ID
	})
	return items
}
