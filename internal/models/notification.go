package models

import (
	"strings"
	"time"
)

type Channel string

const (
	ChannelPush  Channel = "push"
	ChannelEmail Channel = "email"
)

// NotificationLogEntry records one delivery attempt on one channel.
type NotificationLogEntry struct {
	ID      string    `json:"id" gorm:"primaryKey"`
	UserID  string    `json:"user_id" gorm:"index;not null"`
	PlantID *string   `json:"plant_id,omitempty" gorm:"index"`
	Title   string    `json:"title"`
	Message string    `json:"message"`
	Channel Channel   `json:"channel" gorm:"type:text;not null"`
	Success bool      `json:"success"`
	Error   string    `json:"error,omitempty"`
	SentAt  time.Time `json:"sent_at" gorm:"index;not null"`
}

type NotificationSettings struct {
	UserID           string `json:"user_id" gorm:"primaryKey"`
	Enabled          bool   `json:"enabled"`
	PushoverUserKey  string `json:"-"`
	PushoverAPIToken string `json:"-"`
	EmailEnabled     bool   `json:"email_enabled"`
	EmailAddress     string `json:"email_address,omitempty"`
	SMTPUsername     string `json:"-"`
	SMTPPassword     string `json:"-"`
}

func (s NotificationSettings) PushEligible() bool {
	return s.Enabled &&
		strings.TrimSpace(s.PushoverUserKey) != "" &&
		strings.TrimSpace(s.PushoverAPIToken) != ""
}

func (s NotificationSettings) EmailEligible() bool {
	return s.Enabled && s.EmailEnabled &&
		strings.TrimSpace(s.SMTPUsername) != "" &&
		strings.TrimSpace(s.SMTPPassword) != ""
}

// EmailRecipient falls back to the SMTP login when no address is set.
func (s NotificationSettings) EmailRecipient() string {
	if addr := strings.TrimSpace(s.EmailAddress); addr != "" {
		return addr
	}
	return strings.TrimSpace(s.SMTPUsername)
}

// DispatchJob is one reminder for one member, taken from a sweep snapshot.
type DispatchJob struct {
	HouseholdID string    `json:"household_id"`
	PlantID     string    `json:"plant_id"`
	PlantName   string    `json:"plant_name"`
	Location    string    `json:"location,omitempty"`
	UserID      string    `json:"user_id"`
	Status      string    `json:"status"`
	DaysUntil   int       `json:"days_until"`
	SnapshotAt  time.Time `json:"snapshot_at"`
}

type SnoozeRequest struct {
	Until *time.Time `json:"until,omitempty" validate:"required_without=Days"`
	Days  int        `json:"days,omitempty" validate:"omitempty,min=1,max=365"`
}
