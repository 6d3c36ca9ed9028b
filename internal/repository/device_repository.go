package repository

import (
	"context"
	"errors"
	"time"

	"github.com/imoklv/imok/internal/domain"
	"github.com/imoklv/imok/internal/observability"

	"gorm.io/gorm"
)

var (
	ErrDeviceNotFound = errors.New("device not found")
	ErrTokenNotFound  = errors.New("validation token not found")
)

// PingOutcome reports the result of a ping attempt. When Accepted is
// false, WaitSeconds is how long the caller must back off.
type PingOutcome struct {
	Accepted    bool
	WaitSeconds int
}

type DeviceRepository interface {
	Create(d *domain.Device) error
	FindByHash(hash string) (*domain.Device, error)
	HasValidatedEmail(email string) (bool, error)
	RecordPing(hash, ip string, now time.Time, minInterval time.Duration) (PingOutcome, error)
	ConsumeValidationToken(token string, now time.Time) (*domain.Device, error)
	SetNotifications(hash string, enabled bool) error
	UpdateName(hash, name string) error
	Delete(hash string) error
	ListNotifiable(now time.Time, offlineAfter, cooldown time.Duration) ([]domain.Device, error)
	MarkNotified(hash string, now time.Time) error
	ListRecent(limit int) ([]domain.Device, error)
}

type GormDeviceRepository struct{ db *gorm.DB }

func NewDeviceRepository(db *gorm.DB) DeviceRepository { return &GormDeviceRepository{db: db} }

func (r *GormDeviceRepository) Create(d *domain.Device) error {
	err := r.db.Create(d).Error
	if err != nil {
		observability.RecordRepositoryOperation(context.Background(), "device", "create", "error")
		return err
	}
	observability.RecordRepositoryOperation(context.Background(), "device", "create", "success")
	return nil
}

func (r *GormDeviceRepository) FindByHash(hash string) (*domain.Device, error) {
	var d domain.Device
	err := r.db.Where("hash = ?", hash).First(&d).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			observability.RecordRepositoryOperation(context.Background(), "device", "find_by_hash", "not_found")
			return nil, ErrDeviceNotFound
		}
		observability.RecordRepositoryOperation(context.Background(), "device", "find_by_hash", "error")
		return nil, err
	}
	observability.RecordRepositoryOperation(context.Background(), "device", "find_by_hash", "success")
	return &d, nil
}

func (r *GormDeviceRepository) HasValidatedEmail(email string) (bool, error) {
	var count int64
	err := r.db.Model(&domain.Device{}).
		Where("email = ? AND email_validated = ?", email, true).
		Count(&count).Error
	if err != nil {
		observability.RecordRepositoryOperation(context.Background(), "device", "has_validated_email", "error")
		return false, err
	}
	observability.RecordRepositoryOperation(context.Background(), "device", "has_validated_email", "success")
	return count > 0, nil
}

// RecordPing accepts a ping only when the previous one is at least
// minInterval old. Accept is a single conditional UPDATE so two racing
// pings can never both pass the window check.
func (r *GormDeviceRepository) RecordPing(hash, ip string, now time.Time, minInterval time.Duration) (PingOutcome, error) {
	cutoff := now.Add(-minInterval)
	res := r.db.Model(&domain.Device{}).
		Where("hash = ? AND (last_ping IS NULL OR last_ping <= ?)", hash, cutoff).
		Updates(map[string]any{
			"last_ping":  now,
			"last_ip":    ip,
			"ping_count": gorm.Expr("ping_count + ?", 1),
		})
	if res.Error != nil {
		observability.RecordRepositoryOperation(context.Background(), "device", "record_ping", "error")
		return PingOutcome{}, res.Error
	}
	if res.RowsAffected > 0 {
		observability.RecordRepositoryOperation(context.Background(), "device", "record_ping", "success")
		return PingOutcome{Accepted: true}, nil
	}

	// Nothing matched: either the device is unknown or the window has
	// not elapsed. Re-read to tell the two apart.
	var d domain.Device
	err := r.db.Select("last_ping").Where("hash = ?", hash).First(&d).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			observability.RecordRepositoryOperation(context.Background(), "device", "record_ping", "not_found")
			return PingOutcome{}, ErrDeviceNotFound
		}
		observability.RecordRepositoryOperation(context.Background(), "device", "record_ping", "error")
		return PingOutcome{}, err
	}
	wait := int(minInterval.Seconds())
	if d.LastPing != nil {
		wait = int(minInterval.Seconds()) - int(now.Sub(*d.LastPing).Seconds())
	}
	if wait < 1 {
		wait = 1
	}
	observability.RecordRepositoryOperation(context.Background(), "device", "record_ping", "rate_limited")
	return PingOutcome{Accepted: false, WaitSeconds: wait}, nil
}

// ConsumeValidationToken marks the owning device validated and clears
// the token. The UPDATE is conditional on the token still being present,
// so a token can be consumed at most once even under concurrent clicks.
func (r *GormDeviceRepository) ConsumeValidationToken(token string, now time.Time) (*domain.Device, error) {
	var consumed *domain.Device
	err := r.db.Transaction(func(tx *gorm.DB) error {
		var d domain.Device
		err := tx.Where("validation_token = ?", token).First(&d).Error
		if err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return ErrTokenNotFound
			}
			return err
		}
		if d.ValidationExpires != nil && !d.ValidationExpires.After(now) {
			return ErrTokenNotFound
		}
		res := tx.Model(&domain.Device{}).
			Where("id = ? AND validation_token = ?", d.ID, token).
			Updates(map[string]any{
				"email_validated":    true,
				"validation_token":   nil,
				"validation_expires": nil,
			})
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return ErrTokenNotFound
		}
		d.EmailValidated = true
		d.ValidationToken = nil
		d.ValidationExpires = nil
		consumed = &d
		return nil
	})
	if err != nil {
		if errors.Is(err, ErrTokenNotFound) {
			observability.RecordRepositoryOperation(context.Background(), "device", "consume_validation_token", "not_found")
		} else {
			observability.RecordRepositoryOperation(context.Background(), "device", "consume_validation_token", "error")
		}
		return nil, err
	}
	observability.RecordRepositoryOperation(context.Background(), "device", "consume_validation_token", "success")
	return consumed, nil
}

// SetNotifications writes only when the stored value differs. Zero rows
// affected is not an error: the value already matched, or the hash is
// unknown, and both report success to the caller.
func (r *GormDeviceRepository) SetNotifications(hash string, enabled bool) error {
	err := r.db.Model(&domain.Device{}).
		Where("hash = ? AND email_notifications <> ?", hash, enabled).
		Update("email_notifications", enabled).Error
	if err != nil {
		observability.RecordRepositoryOperation(context.Background(), "device", "set_notifications", "error")
		return err
	}
	observability.RecordRepositoryOperation(context.Background(), "device", "set_notifications", "success")
	return nil
}

func (r *GormDeviceRepository) UpdateName(hash, name string) error {
	res := r.db.Model(&domain.Device{}).
		Where("hash = ?", hash).
		Update("device_name", name)
	if res.Error != nil {
		observability.RecordRepositoryOperation(context.Background(), "device", "update_name", "error")
		return res.Error
	}
	if res.RowsAffected == 0 {
		observability.RecordRepositoryOperation(context.Background(), "device", "update_name", "not_found")
		return ErrDeviceNotFound
	}
	observability.RecordRepositoryOperation(context.Background(), "device", "update_name", "success")
	return nil
}

func (r *GormDeviceRepository) Delete(hash string) error {
	res := r.db.Where("hash = ?", hash).Delete(&domain.Device{})
	if res.Error != nil {
		observability.RecordRepositoryOperation(context.Background(), "device", "delete", "error")
		return res.Error
	}
	if res.RowsAffected == 0 {
		observability.RecordRepositoryOperation(context.Background(), "device", "delete", "not_found")
		return ErrDeviceNotFound
	}
	observability.RecordRepositoryOperation(context.Background(), "device", "delete", "success")
	return nil
}

// ListNotifiable selects devices eligible for an offline alert: owner
// verified, notifications on, silent past the offline threshold, and
// outside the re-notification cooldown.
func (r *GormDeviceRepository) ListNotifiable(now time.Time, offlineAfter, cooldown time.Duration) ([]domain.Device, error) {
	offlineCutoff := now.Add(-offlineAfter)
	cooldownCutoff := now.Add(-cooldown)
	var devices []domain.Device
	err := r.db.
		Where("email_validated = ? AND email_notifications = ?", true, true).
		Where("last_ping IS NOT NULL AND last_ping < ?", offlineCutoff).
		Where("last_notification IS NULL OR last_notification < ?", cooldownCutoff).
		Order("last_ping ASC").
		Find(&devices).Error
	if err != nil {
		observability.RecordRepositoryOperation(context.Background(), "device", "list_notifiable", "error")
		return devices, err
	}
	observability.RecordRepositoryOperation(context.Background(), "device", "list_notifiable", "success")
	return devices, nil
}

func (r *GormDeviceRepository) MarkNotified(hash string, now time.Time) error {
	err := r.db.Model(&domain.Device{}).
		Where("hash = ?", hash).
		Update("last_notification", now).Error
	if err != nil {
		observability.RecordRepositoryOperation(context.Background(), "device", "mark_notified", "error")
		return err
	}
	observability.RecordRepositoryOperation(context.Background(), "device", "mark_notified", "success")
	return nil
}

func (r *GormDeviceRepository) ListRecent(limit int) ([]domain.Device, error) {
	if limit <= 0 {
		limit = 100
	}
	var devices []domain.Device
	err := r.db.
		Order("last_ping DESC NULLS LAST").
		Limit(limit).
		Find(&devices).Error
	if err != nil {
		observability.RecordRepositoryOperation(context.Background(), "device", "list_recent", "error")
		return devices, err
	}
	observability.RecordRepositoryOperation(context.Background(), "device", "list_recent", "success")
	return devices, nil
}
