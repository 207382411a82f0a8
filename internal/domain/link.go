package domain

import "time"

// Link represents a deferred deep link created by a campaign owner.
type Link struct {
	ID             int64      `gorm:"primaryKey;column:id" json:"id"`
	LinkID         string     `gorm:"column:link_id;size:36;not null;uniqueIndex:idx_links_link_id" json:"link_id"`
	TargetURL      string     `gorm:"column:target_url;size:2000;not null" json:"target_url"`
	CampaignName   *string    `gorm:"column:campaign_name;size:500" json:"campaign_name,omitempty"`
	CampaignSource *string    `gorm:"column:campaign_source;size:500" json:"campaign_source,omitempty"`
	CampaignMedium *string    `gorm:"column:campaign_medium;size:500" json:"campaign_medium,omitempty"`
	CustomData     *string    `gorm:"column:custom_data;type:text" json:"custom_data,omitempty"` // opaque JSON payload
	CreatedAt      time.Time  `gorm:"column:created_at;autoCreateTime" json:"created_at"`
	ExpiresAt      *time.Time `gorm:"column:expires_at" json:"expires_at,omitempty"`
	ClickCount     int64      `gorm:"column:click_count;not null;default:0" json:"click_count"`
	InstallCount   int64      `gorm:"column:install_count;not null;default:0" json:"install_count"`
	Active         bool       `gorm:"column:active;not null;default:true" json:"active"`
}

// TableName returns the table name for GORM
func (Link) TableName() string {
	return "deep_links"
}

// IsEligible reports whether the link may still receive clicks and attributions.
func (l *Link) IsEligible(now time.Time) bool {
	if !l.Active {
		return false
	}
	return l.ExpiresAt == nil || l.ExpiresAt.After(now)
}
