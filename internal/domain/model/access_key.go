package model

import "time"

type AccessKey struct {
	ID            string    `json:"id" gorm:"type:varchar(64);primaryKey"`
	Label         string    `json:"label" gorm:"type:varchar(255)"`
	BoundDeviceID *string   `json:"bound_device_id" gorm:"type:varchar(128);index"`
	CreatedAt     time.Time `json:"created_at" gorm:"not null;autoCreateTime;index"`
	ExpiresAt     time.Time `json:"expires_at" gorm:"not null;index"`
}

// 未使用（どの端末にも紐付いていない）かどうか。
func (k *AccessKey) IsUnbound() bool {
	return k.BoundDeviceID == nil
}

// nowの時点で期限切れかどうか。
func (k *AccessKey) IsExpired(now time.Time) bool {
	return now.After(k.ExpiresAt)
}
