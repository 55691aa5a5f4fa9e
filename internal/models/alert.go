package models

import "time"

// AlertTrigger is either a fixed moment or an immediate fire. Alerts never repeat.
type AlertTrigger struct {
	At        time.Time `json:"at"`
	Immediate bool      `json:"immediate"`
}

type Alert struct {
	ID          string       `json:"id"`
	HouseholdID string       `json:"household_id"`
	PlantID     string       `json:"plant_id"`
	Title       string       `json:"title"`
	Body        string       `json:"body"`
	Trigger     AlertTrigger `json:"trigger"`
	Urgent      bool         `json:"urgent"`
}
