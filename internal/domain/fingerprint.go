package domain

import "time"

// DeviceFingerprint is the device signature captured for one click event.
// It is written once on the click path and flipped to matched exactly once
// when it becomes the winning candidate of an attribution decision.
type DeviceFingerprint struct {
	ID               int64     `gorm:"primaryKey;column:id" json:"id"`
	LinkID           string    `gorm:"column:link_id;size:36;not null" json:"link_id"`
	FingerprintHash  string    `gorm:"column:fingerprint_hash;size:64;not null;index:idx_fingerprints_hash" json:"fingerprint_hash"`
	IPAddress        string    `gorm:"column:ip_address;size:45;not null;index:idx_fingerprints_ip_created,priority:1" json:"ip_address"`
	UserAgent        string    `gorm:"column:user_agent;type:text;not null" json:"user_agent"`
	DeviceModel      *string   `gorm:"column:device_model;size:100" json:"device_model,omitempty"`
	OSName           *string   `gorm:"column:os_name;size:50" json:"os_name,omitempty"`
	OSVersion        *string   `gorm:"column:os_version;size:50" json:"os_version,omitempty"`
	BrowserName      *string   `gorm:"column:browser_name;size:100" json:"browser_name,omitempty"`
	BrowserVersion   *string   `gorm:"column:browser_version;size:50" json:"browser_version,omitempty"`
	Language         *string   `gorm:"column:language;size:64" json:"language,omitempty"`
	Timezone         *string   `gorm:"column:timezone;size:50" json:"timezone,omitempty"`
	ScreenResolution *string   `gorm:"column:screen_resolution;size:50" json:"screen_resolution,omitempty"`
	CreatedAt        time.Time `gorm:"column:created_at;autoCreateTime;index:idx_fingerprints_created;index:idx_fingerprints_ip_created,priority:2" json:"created_at"`
	Matched          bool      `gorm:"column:matched;not null;default:false" json:"matched"`
}

// TableName returns the table name for GORM
func (DeviceFingerprint) TableName() string {
	return "device_fingerprints"
}
