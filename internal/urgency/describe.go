package urgency

import (
	"fmt"

	"plantcare/internal/models"
)

// Describe renders the reminder copy shared by device alerts and server
// notifications.
func Describe(p models.Plant, st State) (title, body string) {
	name := p.Name
	if name == "" {
		name = "Your plant"
	}
	where := ""
	if p.LocationName != "" {
		where = " in " + p.LocationName
	}

	if st.Status == StatusOverdue {
		return fmt.Sprintf("%s needs water", name),
			fmt.Sprintf("%s is %s overdue for watering%s.", name, dayCount(st.DaysOverdue()), where)
	}

	title = fmt.Sprintf("Time to water %s", name)
	switch {
	case st.DaysUntil <= 0:
		body = fmt.Sprintf("%s is due for watering today%s.", name, where)
	case st.DaysUntil == 1:
		body = fmt.Sprintf("%s is due for watering tomorrow%s.", name, where)
	default:
		body = fmt.Sprintf("%s is due for watering in %s%s.", name, dayCount(st.DaysUntil), where)
	}
	return title, body
}

func dayCount(n int) string {
	if n == 1 {
		return "1 day"
	}
	return fmt.Sprintf("%d days", n)
}
