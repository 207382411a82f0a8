package domain

import "time"

// AttributionMatch is the durable, immutable outcome linking a device to a
// link. device_id carries a unique index: at most one attribution per device.
type AttributionMatch struct {
	ID            int64     `gorm:"primaryKey;column:id" json:"id"`
	LinkID        string    `gorm:"column:link_id;size:36;not null;index:idx_matches_link_id" json:"link_id"`
	DeviceID      string    `gorm:"column:device_id;size:36;not null;uniqueIndex:idx_matches_device_id" json:"device_id"`
	FingerprintID int64     `gorm:"column:fingerprint_id;not null" json:"fingerprint_id"`
	MatchScore    float64   `gorm:"column:match_score;not null" json:"match_score"`
	MatchedAt     time.Time `gorm:"column:matched_at;autoCreateTime" json:"matched_at"`
	IPAddress     *string   `gorm:"column:ip_address;size:45" json:"ip_address,omitempty"`
	UserAgent     *string   `gorm:"column:user_agent;type:text" json:"user_agent,omitempty"`
	CustomData    *string   `gorm:"column:custom_data;type:text" json:"custom_data,omitempty"` // link payload snapshot at decision time
}

// TableName returns the table name for GORM
func (AttributionMatch) TableName() string {
	return "attribution_matches"
}
