package storage

import (
	"context"
	"errors"
	"fmt"
	"time"

	"gorm.io/driver/postgres"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"plantcare/internal/models"
)

// Connect opens the shared database. driver is "postgres" or "sqlite".
func Connect(driver, dsn string) (*gorm.DB, error) {
	var dialector gorm.Dialector
	switch driver {
	case "postgres", "":
		dialector = postgres.Open(dsn)
	case "sqlite":
		dialector = sqlite.Open(dsn)
	default:
		return nil, fmt.Errorf("unsupported database driver %q", driver)
	}

	gdb, err := gorm.Open(dialector, &gorm.Config{Logger: logger.Default.LogMode(logger.Warn)})
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	sqlDB, err := gdb.DB()
	if err != nil {
		return nil, err
	}
	if err := sqlDB.Ping(); err != nil {
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}
	return gdb, nil
}

// AutoMigrate creates the tables the engine touches. Only the delivery log is
// owned here; the rest mirror the CRUD layer's schema for local setups.
func AutoMigrate(gdb *gorm.DB) error {
	return gdb.AutoMigrate(
		&models.Plant{},
		&models.CareActivity{},
		&models.Member{},
		&models.NotificationSettings{},
		&models.NotificationLogEntry{},
	)
}

// MigrateDeliveryLog creates only the table the engine owns.
func MigrateDeliveryLog(gdb *gorm.DB) error {
	return gdb.AutoMigrate(&models.NotificationLogEntry{})
}

type GormStorage struct {
	db *gorm.DB
}

func NewGormStorage(db *gorm.DB) *GormStorage {
	return &GormStorage{db: db}
}

func (s *GormStorage) List(ctx context.Context, householdID string) ([]models.Plant, error) {
	var plants []models.Plant
	err := s.db.WithContext(ctx).
		Where("household_id = ?", householdID).
		Order("id ASC").
		Find(&plants).Error
	if err != nil {
		return nil, fmt.Errorf("failed to list plants: %w", err)
	}
	return plants, nil
}

func (s *GormStorage) Get(ctx context.Context, id string) (*models.Plant, error) {
	var plant models.Plant
	err := s.db.WithContext(ctx).First(&plant, "id = ?", id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get plant: %w", err)
	}
	return &plant, nil
}

func (s *GormStorage) SetSnooze(ctx context.Context, id string, until *time.Time) error {
	res := s.db.WithContext(ctx).
		Model(&models.Plant{}).
		Where("id = ?", id).
		Update("snoozed_until", until)
	if res.Error != nil {
		return fmt.Errorf("failed to set snooze: %w", res.Error)
	}
	if res.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *GormStorage) Households(ctx context.Context) ([]string, error) {
	var ids []string
	err := s.db.WithContext(ctx).
		Model(&models.Plant{}).
		Distinct().
		Order("household_id ASC").
		Pluck("household_id", &ids).Error
	if err != nil {
		return nil, fmt.Errorf("failed to list households: %w", err)
	}
	return ids, nil
}

func (s *GormStorage) ListForHousehold(ctx context.Context, householdID string, since *time.Time) ([]models.CareActivity, error) {
	q := s.db.WithContext(ctx).Where("household_id = ?", householdID)
	if since != nil {
		q = q.Where("performed_at >= ?", *since)
	}

	var activities []models.CareActivity
	if err := q.Order("performed_at ASC").Find(&activities).Error; err != nil {
		return nil, fmt.Errorf("failed to list activities: %w", err)
	}
	return activities, nil
}

func (s *GormStorage) GetSettings(ctx context.Context, userID string) (models.NotificationSettings, error) {
	var ns models.NotificationSettings
	err := s.db.WithContext(ctx).First(&ns, "user_id = ?", userID).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return models.NotificationSettings{UserID: userID}, nil
	}
	if err != nil {
		return models.NotificationSettings{}, fmt.Errorf("failed to get notification settings: %w", err)
	}
	return ns, nil
}

func (s *GormStorage) Append(ctx context.Context, entry *models.NotificationLogEntry) error {
	if err := s.db.WithContext(ctx).Create(entry).Error; err != nil {
		return fmt.Errorf("failed to append delivery log: %w", err)
	}
	return nil
}

func (s *GormStorage) ListRecent(ctx context.Context, limit int) ([]models.NotificationLogEntry, error) {
	return s.ListRecentForUser(ctx, "", limit)
}

func (s *GormStorage) ListRecentForUser(ctx context.Context, userID string, limit int) ([]models.NotificationLogEntry, error) {
	q := s.db.WithContext(ctx)
	if userID != "" {
		q = q.Where("user_id = ?", userID)
	}

	var entries []models.NotificationLogEntry
	err := q.Order("sent_at DESC").Limit(clampLimit(limit)).Find(&entries).Error
	if err != nil {
		return nil, fmt.Errorf("failed to list delivery log: %w", err)
	}
	return entries, nil
}

func (s *GormStorage) ListMembers(ctx context.Context, householdID string) ([]models.Member, error) {
	var members []models.Member
	err := s.db.WithContext(ctx).
		Where("household_id = ?", householdID).
		Order("user_id ASC").
		Find(&members).Error
	if err != nil {
		return nil, fmt.Errorf("failed to list members: %w", err)
	}
	return members, nil
}

func (s *GormStorage) IsMember(ctx context.Context, householdID, userID string) (bool, error) {
	var count int64
	err := s.db.WithContext(ctx).
		Model(&models.Member{}).
		Where("household_id = ? AND user_id = ?", householdID, userID).
		Count(&count).Error
	if err != nil {
		return false, fmt.Errorf("failed to check membership: %w", err)
	}
	return count > 0, nil
}
