package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
	"push-device-service/internal/model"
)

type deviceRecord struct {
	ID               string `gorm:"primaryKey;size:64"`
	UserID           string `gorm:"index:idx_devices_owner_kind;size:255;not null"`
	Kind             string `gorm:"index:idx_devices_owner_kind;size:16;not null"`
	Name             string `gorm:"size:255"`
	Model            string `gorm:"size:255"`
	PushID           string `gorm:"size:1024"`
	PublicKey        string `gorm:"type:text;not null"`
	RegistrationTime time.Time
	LastUsedTime     time.Time
}

func (deviceRecord) TableName() string { return "devices" }

type pendingRecord struct {
	DeviceID     string `gorm:"primaryKey;size:64"`
	UserID       string `gorm:"size:255;not null"`
	Username     string `gorm:"size:255"`
	TenantDomain string `gorm:"size:255"`
	Kind         string `gorm:"size:16;not null"`
	Challenge    string `gorm:"size:255;not null"`
	CreatedAt    time.Time
	ExpiresAt    time.Time `gorm:"index"`
}

func (pendingRecord) TableName() string { return "pending_registrations" }

// GormStore persists devices in PostgreSQL through gorm.
type GormStore struct {
	db *gorm.DB
}

func OpenPostgres(dsn string) (*GormStore, error) {
	db, err := gorm.Open(postgres.Open(dsn), &gorm.Config{
		TranslateError: true,
		Logger:         logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		return nil, fmt.Errorf("open postgres: %w", err)
	}
	return NewGorm(db)
}

// NewGorm migrates the schema on db and wraps it.
func NewGorm(db *gorm.DB) (*GormStore, error) {
	if err := db.AutoMigrate(&deviceRecord{}, &pendingRecord{}); err != nil {
		return nil, fmt.Errorf("migrate device tables: %w", err)
	}
	return &GormStore{db: db}, nil
}

func (s *GormStore) CreateDevice(ctx context.Context, device model.Device) error {
	rec := toDeviceRecord(device)
	err := s.db.WithContext(ctx).Create(&rec).Error
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return exists(device.ID)
	}
	return storageErr(err, "create device")
}

func (s *GormStore) GetDevice(ctx context.Context, deviceID string) (model.Device, error) {
	var rec deviceRecord
	err := s.db.WithContext(ctx).First(&rec, "id = ?", deviceID).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return model.Device{}, notFound(deviceID)
	}
	if err != nil {
		return model.Device{}, storageErr(err, "get device")
	}
	return rec.toModel(), nil
}

func (s *GormStore) ListDevices(ctx context.Context, userID string, kind model.DeviceKind) ([]model.Device, error) {
	var recs []deviceRecord
	err := s.db.WithContext(ctx).
		Where("user_id = ? AND kind = ?", userID, string(kind)).
		Order("registration_time, id").
		Find(&recs).Error
	if err != nil {
		return nil, storageErr(err, "list devices")
	}
	result := make([]model.Device, 0, len(recs))
	for _, rec := range recs {
		result = append(result, rec.toModel())
	}
	return result, nil
}

func (s *GormStore) UpdateDevice(ctx context.Context, deviceID string, update model.DeviceUpdate) (model.Device, error) {
	var updated model.Device
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var rec deviceRecord
		if err := tx.First(&rec, "id = ?", deviceID).Error; err != nil {
			return err
		}
		d := rec.toModel()
		applyUpdate(&d, update)
		next := toDeviceRecord(d)
		if err := tx.Save(&next).Error; err != nil {
			return err
		}
		updated = d
		return nil
	})
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return model.Device{}, notFound(deviceID)
	}
	if err != nil {
		return model.Device{}, storageErr(err, "update device")
	}
	return updated, nil
}

func (s *GormStore) DeleteDevice(ctx context.Context, deviceID string) error {
	res := s.db.WithContext(ctx).Delete(&deviceRecord{}, "id = ?", deviceID)
	if res.Error != nil {
		return storageErr(res.Error, "delete device")
	}
	if res.RowsAffected == 0 {
		return notFound(deviceID)
	}
	return nil
}

func (s *GormStore) SavePending(ctx context.Context, pending model.PendingRegistration) error {
	rec := toPendingRecord(pending)
	return storageErr(s.db.WithContext(ctx).Save(&rec).Error, "save pending registration")
}

func (s *GormStore) TakePending(ctx context.Context, deviceID string) (model.PendingRegistration, error) {
	var rec pendingRecord
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.First(&rec, "device_id = ?", deviceID).Error; err != nil {
			return err
		}
		res := tx.Delete(&pendingRecord{}, "device_id = ?", deviceID)
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			// consumed concurrently
			return gorm.ErrRecordNotFound
		}
		return nil
	})
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return model.PendingRegistration{}, pendingNotFound(deviceID)
	}
	if err != nil {
		return model.PendingRegistration{}, storageErr(err, "take pending registration")
	}
	return rec.toModel(), nil
}

func (s *GormStore) PurgeExpiredPending(ctx context.Context, now time.Time) (int, error) {
	res := s.db.WithContext(ctx).Delete(&pendingRecord{}, "expires_at <= ?", now)
	if res.Error != nil {
		return 0, storageErr(res.Error, "purge pending registrations")
	}
	return int(res.RowsAffected), nil
}

func (s *GormStore) Close() error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

func toDeviceRecord(d model.Device) deviceRecord {
	return deviceRecord{
		ID:               d.ID,
		UserID:           d.UserID,
		Kind:             string(d.Kind),
		Name:             d.Name,
		Model:            d.Model,
		PushID:           d.PushID,
		PublicKey:        d.PublicKey,
		RegistrationTime: d.RegistrationTime.UTC(),
		LastUsedTime:     d.LastUsedTime.UTC(),
	}
}

func (r deviceRecord) toModel() model.Device {
	return model.Device{
		ID:               r.ID,
		UserID:           r.UserID,
		Kind:             model.DeviceKind(r.Kind),
		Name:             r.Name,
		Model:            r.Model,
		PushID:           r.PushID,
		PublicKey:        r.PublicKey,
		RegistrationTime: r.RegistrationTime.UTC(),
		LastUsedTime:     r.LastUsedTime.UTC(),
	}
}

func toPendingRecord(p model.PendingRegistration) pendingRecord {
	return pendingRecord{
		DeviceID:     p.DeviceID,
		UserID:       p.UserID,
		Username:     p.Username,
		TenantDomain: p.TenantDomain,
		Kind:         string(p.Kind),
		Challenge:    p.Challenge,
		CreatedAt:    p.CreatedAt.UTC(),
		ExpiresAt:    p.ExpiresAt.UTC(),
	}
}

func (r pendingRecord) toModel() model.PendingRegistration {
	return model.PendingRegistration{
		DeviceID:     r.DeviceID,
		UserID:       r.UserID,
		Username:     r.Username,
		TenantDomain: r.TenantDomain,
		Kind:         model.DeviceKind(r.Kind),
		Challenge:    r.Challenge,
		CreatedAt:    r.CreatedAt.UTC(),
		ExpiresAt:    r.ExpiresAt.UTC(),
	}
}
