package domain

import "time"

const (
	StatusOnline         = "Online"
	StatusOffline        = "Offline"
	StatusNeverConnected = "Never Connected"
)

// Device is a monitored endpoint. The Hash doubles as the bearer
// capability for every operation on the row, so it never expires and
// is only ever compared by exact value.
type Device struct {
	ID                 uint       `gorm:"primaryKey" json:"-"`
	Hash               string     `gorm:"size:64;uniqueIndex;not null" json:"hash"`
	Email              string     `gorm:"size:320;index;not null" json:"email"`
	EmailValidated     bool       `gorm:"not null;default:false" json:"email_validated"`
	ValidationToken    *string    `gorm:"size:64;uniqueIndex" json:"-"`
	ValidationExpires  *time.Time `json:"-"`
	EmailNotifications bool       `gorm:"not null;default:true" json:"email_notifications"`
	DeviceName         *string    `gorm:"size:128" json:"device_name"`
	LastPing           *time.Time `gorm:"index" json:"last_ping"`
	LastIP             *string    `gorm:"size:64" json:"last_ip"`
	PingCount          uint64     `gorm:"not null;default:0" json:"ping_count"`
	LastNotification   *time.Time `json:"last_notification,omitempty"`
	CreatedAt          time.Time  `json:"created"`
	UpdatedAt          time.Time  `json:"-"`
}

// DeviceView is the read-model returned by the status endpoint: the
// row plus the status derived at read time.
type DeviceView struct {
	Device
	Status string `json:"status"`
}

// DeriveStatus classifies a device from its last ping alone. Status is
// never stored; it is recomputed on every read so a silent device goes
// Offline without any write.
func DeriveStatus(lastPing *time.Time, now time.Time, offlineAfter time.Duration) string {
	if lastPing == nil {
		return StatusNeverConnected
	}
	if now.Sub(*lastPing) < offlineAfter {
		return StatusOnline
	}
	return StatusOffline
}

func (d Device) View(now time.Time, offlineAfter time.Duration) DeviceView {
	return DeviceView{Device: d, Status: DeriveStatus(d.LastPing, now, offlineAfter)}
}

// DisplayName falls back to a hash prefix when the owner never named
// the device, mirroring what the notification emails show.
func (d Device) DisplayName() string {
	if d.DeviceName != nil && *d.DeviceName != "" {
		return *d.DeviceName
	}
	if len(d.Hash) >= 8 {
		return "Device " + d.Hash[:8]
	}
	return "Device " + d.Hash
}
