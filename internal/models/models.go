package models

import (
	"time"
)

// Plant is the slice of a plant record the engine reads. Only SnoozedUntil is
// ever written back.
type Plant struct {
	ID                    string     `json:"id" gorm:"primaryKey"`
	HouseholdID           string     `json:"household_id" gorm:"index;not null"`
	Name                  string     `json:"name" gorm:"not null"`
	LocationName          string     `json:"location_name,omitempty"`
	LastCareDate          *time.Time `json:"last_care_date,omitempty"`
	WateringFrequencyDays int        `json:"watering_frequency_days" gorm:"not null;default:7"`
	SnoozedUntil          *time.Time `json:"snoozed_until,omitempty"`
	CreatedAt             time.Time  `json:"created_at"`
	UpdatedAt             time.Time  `json:"updated_at"`
}

// CareActivity is append-only.
type CareActivity struct {
	ID           string    `json:"id" gorm:"primaryKey"`
	HouseholdID  string    `json:"household_id" gorm:"index;not null"`
	PlantID      string    `json:"plant_id" gorm:"index;not null"`
	UserID       string    `json:"user_id" gorm:"index;not null"`
	ActivityType string    `json:"activity_type" gorm:"not null"`
	PerformedAt  time.Time `json:"performed_at" gorm:"index;not null"`
}

const (
	ActivityWatering   = "watering"
	ActivityFertilize  = "fertilizing"
	ActivityRepot      = "repotting"
	ActivityHealthNote = "health_log"
)

type Member struct {
	HouseholdID string `json:"household_id" gorm:"primaryKey"`
	UserID      string `json:"user_id" gorm:"primaryKey"`
	Username    string `json:"username"`
}

func (Member) TableName() string { return "household_members" }
