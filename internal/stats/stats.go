// Package stats derives household care statistics from the activity feed.
// Nothing here is persisted; every call recomputes from the stores.
package stats

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"time"

	"plantcare/internal/models"
	"plantcare/internal/storage"
	"plantcare/internal/urgency"
)

// StreakPolicy says how many trailing empty days may precede today before a
// streak is reported as broken.
type StreakPolicy struct {
	GraceDays int
}

var (
	// GraceYesterday keeps yesterday's run alive until today is over.
	GraceYesterday = StreakPolicy{GraceDays: 1}
	// StrictToday reports 0 until someone logs care today.
	StrictToday = StreakPolicy{GraceDays: 0}
)

// Input is everything Compute needs. Activities should cover at least the
// current month and the streak window.
type Input struct {
	Plants     []models.Plant
	Activities []models.CareActivity
	Members    []models.Member
	Now        time.Time
	// Location groups activities into calendar days and months. Nil means UTC.
	Location   *time.Location
	Classifier urgency.Classifier
	Streak     StreakPolicy
}

func Compute(in Input) models.CareStats {
	loc := in.Location
	if loc == nil {
		loc = time.UTC
	}
	now := in.Now.In(loc)
	year, month, _ := now.Date()

	usernames := make(map[string]string, len(in.Members))
	for _, m := range in.Members {
		usernames[m.UserID] = m.Username
	}

	byType := make(map[string]int)
	byMember := make(map[string]int)
	activeDays := make(map[time.Time]struct{})
	monthly := 0
	for _, a := range in.Activities {
		at := a.PerformedAt.In(loc)
		activeDays[urgency.StartOfDay(at)] = struct{}{}

		y, m, _ := at.Date()
		if y != year || m != month {
			continue
		}
		monthly++
		byType[a.ActivityType]++
		byMember[a.UserID]++
	}

	needWater := 0
	for _, p := range in.Plants {
		if in.Classifier.ClassifyPlant(p, in.Now).NeedsWaterToday() {
			needWater++
		}
	}

	return models.CareStats{
		Streak:             streak(activeDays, urgency.StartOfDay(now), in.Streak),
		TotalPlants:        len(in.Plants),
		MonthlyTotal:       monthly,
		MonthlyByType:      typeCounts(byType),
		MonthlyByMember:    memberCounts(byMember, usernames),
		PlantsNeedingWater: needWater,
		GeneratedAt:        in.Now,
	}
}

// streak counts the run of consecutive active days ending at the most recent
// active day within the grace window.
func streak(active map[time.Time]struct{}, today time.Time, policy StreakPolicy) int {
	grace := policy.GraceDays
	if grace < 0 {
		grace = 0
	}

	day := today
	found := false
	for i := 0; i <= grace; i++ {
		if _, ok := active[day]; ok {
			found = true
			break
		}
		day = day.AddDate(0, 0, -1)
	}
	if !found {
		return 0
	}

	n := 0
	for {
		if _, ok := active[day]; !ok {
			return n
		}
		n++
		day = day.AddDate(0, 0, -1)
	}
}

func typeCounts(counts map[string]int) []models.TypeCount {
	out := make([]models.TypeCount, 0, len(counts))
	for t, c := range counts {
		out = append(out, models.TypeCount{ActivityType: t, Count: c})
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Count != out[j].Count {
			return out[i].Count > out[j].Count
		}
		return out[i].ActivityType < out[j].ActivityType
	})
	return out
}

func memberCounts(counts map[string]int, usernames map[string]string) []models.MemberCount {
	out := make([]models.MemberCount, 0, len(counts))
	for id, c := range counts {
		name := usernames[id]
		if name == "" {
			name = id
		}
		out = append(out, models.MemberCount{UserID: id, Username: name, Count: c})
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Count != out[j].Count {
			return out[i].Count > out[j].Count
		}
		return out[i].UserID < out[j].UserID
	})
	return out
}

// PlantLister is satisfied by the catalog repository and the plant store.
type PlantLister interface {
	List(ctx context.Context, householdID string) ([]models.Plant, error)
}

type Aggregator struct {
	plants     PlantLister
	activities storage.ActivityLog
	members    storage.MemberStore
	classifier urgency.Classifier
	location   *time.Location
	policy     StreakPolicy
	logger     *slog.Logger
	now        func() time.Time
}

func NewAggregator(plants PlantLister, activities storage.ActivityLog, members storage.MemberStore, classifier urgency.Classifier, loc *time.Location, policy StreakPolicy, logger *slog.Logger) *Aggregator {
	if logger == nil {
		logger = slog.Default()
	}
	if loc == nil {
		loc = time.UTC
	}
	return &Aggregator{
		plants:     plants,
		activities: activities,
		members:    members,
		classifier: classifier,
		location:   loc,
		policy:     policy,
		logger:     logger.With("module", "stats"),
		now:        time.Now,
	}
}

func (a *Aggregator) Stats(ctx context.Context, householdID string) (models.CareStats, error) {
	plants, err := a.plants.List(ctx, householdID)
	if err != nil {
		return models.CareStats{}, fmt.Errorf("failed to list plants: %w", err)
	}

	// the streak may reach back past the month start, so read the whole feed
	activities, err := a.activities.ListForHousehold(ctx, householdID, nil)
	if err != nil {
		return models.CareStats{}, fmt.Errorf("failed to list activities: %w", err)
	}

	members, err := a.members.ListMembers(ctx, householdID)
	if err != nil {
		// usernames are cosmetic; fall back to user ids
		a.logger.Warn("failed to list members", "household_id", householdID, "error", err)
		members = nil
	}

	st := Compute(Input{
		Plants:     plants,
		Activities: activities,
		Members:    members,
		Now:        a.now(),
		Location:   a.location,
		Classifier: a.classifier,
		Streak:     a.policy,
	})
	a.logger.Debug("computed stats", "household_id", householdID, "streak", st.Streak, "monthly_total", st.MonthlyTotal)
	return st, nil
}
