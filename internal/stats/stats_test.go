package stats

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"plantcare/internal/models"
	"plantcare/internal/storage"
	"plantcare/internal/urgency"
)

var now = time.Date(2024, 3, 15, 14, 0, 0, 0, time.UTC)

func activity(id, user, kind string, at time.Time) models.CareActivity {
	return models.CareActivity{ID: id, HouseholdID: "h1", PlantID: "p1", UserID: user, ActivityType: kind, PerformedAt: at}
}

func daysAgo(n int) time.Time {
	return now.AddDate(0, 0, -n).Add(-2 * time.Hour)
}

func streakFor(policy StreakPolicy, offsets ...int) int {
	acts := make([]models.CareActivity, 0, len(offsets))
	for i, off := range offsets {
		acts = append(acts, activity(fmt.Sprint(i), "u1", models.ActivityWatering, daysAgo(off)))
	}
	return Compute(Input{Activities: acts, Now: now, Streak: policy}).Streak
}

func TestStreak(t *testing.T) {
	tests := []struct {
		name    string
		policy  StreakPolicy
		offsets []int
		want    int
	}{
		{"three consecutive days through today", GraceYesterday, []int{0, 1, 2}, 3},
		{"gap after today", GraceYesterday, []int{0, 2}, 1},
		{"today empty but yesterday active", GraceYesterday, []int{1, 2}, 2},
		{"strict policy ignores yesterday", StrictToday, []int{1, 2}, 0},
		{"strict policy counts today", StrictToday, []int{0, 1}, 2},
		{"two empty days reset", GraceYesterday, []int{2, 3, 4}, 0},
		{"no activity", GraceYesterday, nil, 0},
		{"duplicates on one day count once", GraceYesterday, []int{0, 0, 0, 1}, 2},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, streakFor(tt.policy, tt.offsets...))
		})
	}
}

func TestCompute_MonthlyBreakdowns(t *testing.T) {
	acts := []models.CareActivity{
		activity("1", "bob", models.ActivityWatering, daysAgo(0)),
		activity("2", "alice", models.ActivityWatering, daysAgo(1)),
		activity("3", "alice", models.ActivityFertilize, daysAgo(2)),
		activity("4", "bob", models.ActivityRepot, daysAgo(3)),
		activity("5", "carol", models.ActivityRepot, daysAgo(4)),
		// previous month
		activity("6", "carol", models.ActivityWatering, time.Date(2024, 2, 29, 12, 0, 0, 0, time.UTC)),
	}
	members := []models.Member{
		{HouseholdID: "h1", UserID: "alice", Username: "Alice"},
		{HouseholdID: "h1", UserID: "bob", Username: "Bob"},
	}

	st := Compute(Input{Activities: acts, Members: members, Now: now, Streak: GraceYesterday})

	assert.Equal(t, 5, st.MonthlyTotal)
	assert.Equal(t, []models.TypeCount{
		{ActivityType: models.ActivityRepot, Count: 2},
		{ActivityType: models.ActivityWatering, Count: 2},
		{ActivityType: models.ActivityFertilize, Count: 1},
	}, st.MonthlyByType)
	assert.Equal(t, []models.MemberCount{
		{UserID: "alice", Username: "Alice", Count: 2},
		{UserID: "bob", Username: "Bob", Count: 2},
		{UserID: "carol", Username: "carol", Count: 1},
	}, st.MonthlyByMember)
	assert.Equal(t, 5, st.Streak)
	assert.Equal(t, now, st.GeneratedAt)
}

func TestCompute_ReferenceTimezoneDecidesMonth(t *testing.T) {
	// 23:30 UTC on Feb 29 is already March 1 in Tokyo.
	at := time.Date(2024, 2, 29, 23, 30, 0, 0, time.UTC)
	acts := []models.CareActivity{activity("1", "u1", models.ActivityWatering, at)}
	in := Input{Activities: acts, Now: time.Date(2024, 3, 1, 1, 0, 0, 0, time.UTC)}

	assert.Equal(t, 0, Compute(in).MonthlyTotal)

	in.Location = time.FixedZone("JST", 9*60*60)
	assert.Equal(t, 1, Compute(in).MonthlyTotal)
}

func TestCompute_PlantsNeedingWater(t *testing.T) {
	last := func(days int) *time.Time {
		d := now.AddDate(0, 0, -days)
		return &d
	}
	future := now.Add(48 * time.Hour)
	plants := []models.Plant{
		{ID: "overdue", LastCareDate: last(10), WateringFrequencyDays: 7},
		{ID: "today", LastCareDate: last(7), WateringFrequencyDays: 7},
		{ID: "tomorrow", LastCareDate: last(6), WateringFrequencyDays: 7},
		{ID: "fine", LastCareDate: last(1), WateringFrequencyDays: 7},
		{ID: "snoozed", LastCareDate: last(20), WateringFrequencyDays: 7, SnoozedUntil: &future},
	}
	st := Compute(Input{
		Plants:     plants,
		Now:        now,
		Classifier: urgency.NewClassifier(urgency.DefaultSoonThresholdDays, time.UTC),
	})
	assert.Equal(t, 5, st.TotalPlants)
	assert.Equal(t, 2, st.PlantsNeedingWater)
}

type failingMembers struct{ storage.MemberStore }

func (failingMembers) ListMembers(ctx context.Context, householdID string) ([]models.Member, error) {
	return nil, errors.New("down")
}

func TestAggregator_Stats(t *testing.T) {
	ctx := context.Background()
	mem := storage.NewMemoryStorage()
	last := now.AddDate(0, 0, -8)
	mem.PutPlant(models.Plant{ID: "p1", HouseholdID: "h1", Name: "Fern", LastCareDate: &last, WateringFrequencyDays: 7})
	mem.PutPlant(models.Plant{ID: "p2", HouseholdID: "h2", Name: "Cactus", LastCareDate: &last, WateringFrequencyDays: 30})
	mem.PutMember(models.Member{HouseholdID: "h1", UserID: "u1", Username: "Uma"})
	mem.AddActivity(activity("a1", "u1", models.ActivityWatering, daysAgo(1)))
	mem.AddActivity(models.CareActivity{ID: "a2", HouseholdID: "h2", PlantID: "p2", UserID: "u9", ActivityType: models.ActivityWatering, PerformedAt: daysAgo(0)})

	agg := NewAggregator(mem, mem, mem, urgency.NewClassifier(1, time.UTC), time.UTC, GraceYesterday, nil)
	agg.now = func() time.Time { return now }

	st, err := agg.Stats(ctx, "h1")
	require.NoError(t, err)
	assert.Equal(t, 1, st.TotalPlants)
	assert.Equal(t, 1, st.MonthlyTotal)
	assert.Equal(t, 1, st.Streak)
	assert.Equal(t, 1, st.PlantsNeedingWater)
	require.Len(t, st.MonthlyByMember, 1)
	assert.Equal(t, "Uma", st.MonthlyByMember[0].Username)

	agg.members = failingMembers{}
	st, err = agg.Stats(ctx, "h1")
	require.NoError(t, err)
	assert.Equal(t, "u1", st.MonthlyByMember[0].Username)
}
