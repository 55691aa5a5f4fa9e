package storage

import (
	"context"
	"errors"
	"time"

	"plantcare/internal/models"
)

var ErrNotFound = errors.New("not found")

// PlantStore is owned by the CRUD layer. The engine only writes SnoozedUntil.
type PlantStore interface {
	List(ctx context.Context, householdID string) ([]models.Plant, error)
	Get(ctx context.Context, id string) (*models.Plant, error)
	SetSnooze(ctx context.Context, id string, until *time.Time) error
	Households(ctx context.Context) ([]string, error)
}

type ActivityLog interface {
	ListForHousehold(ctx context.Context, householdID string, since *time.Time) ([]models.CareActivity, error)
}

// SettingsStore returns zero settings, not an error, for users who never saved any.
type SettingsStore interface {
	GetSettings(ctx context.Context, userID string) (models.NotificationSettings, error)
}

type DeliveryLog interface {
	Append(ctx context.Context, entry *models.NotificationLogEntry) error
	ListRecent(ctx context.Context, limit int) ([]models.NotificationLogEntry, error)
	ListRecentForUser(ctx context.Context, userID string, limit int) ([]models.NotificationLogEntry, error)
}

type MemberStore interface {
	ListMembers(ctx context.Context, householdID string) ([]models.Member, error)
	IsMember(ctx context.Context, householdID, userID string) (bool, error)
}

// Storage is everything the engine reads or appends to.
type Storage interface {
	PlantStore
	ActivityLog
	SettingsStore
	DeliveryLog
	MemberStore
}

const DefaultLogLimit = 50

func clampLimit(limit int) int {
	if limit <= 0 {
		return DefaultLogLimit
	}
	if limit > 500 {
		return 500
	}
	return limit
}
