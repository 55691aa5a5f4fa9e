package models

import "time"

type TypeCount struct {
	ActivityType string `json:"activity_type"`
	Count        int    `json:"count"`
}

type MemberCount struct {
	UserID   string `json:"user_id"`
	Username string `json:"username"`
	Count    int    `json:"count"`
}

type CareStats struct {
	Streak             int           `json:"streak"`
	TotalPlants        int           `json:"total_plants"`
	MonthlyTotal       int           `json:"monthly_total"`
	MonthlyByType      []TypeCount   `json:"monthly_by_type"`
	MonthlyByMember    []MemberCount `json:"monthly_by_member"`
	PlantsNeedingWater int           `json:"plants_needing_water"`
	GeneratedAt        time.Time     `json:"generated_at"`
}
