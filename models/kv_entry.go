// models/kv_entry.go
package models

import "time"

// KVEntry backs the key-value persistence surface in postgres.
// Table name: reward_kv
type KVEntry struct {
	Key       string    `gorm:"primaryKey;type:varchar(255)" json:"key"`
	Value     string    `gorm:"type:text;not null" json:"value"`
	CreatedAt time.Time `json:"created_at" gorm:"autoCreateTime"`
	UpdatedAt time.Time `json:"updated_at" gorm:"autoUpdateTime"`
}

func (KVEntry) TableName() string { return "reward_kv" }
