package models

import (
	"time"

	"github.com/google/uuid"
)

// User is the canonical identity row. Identity itself is minted by the
// external auth provider; this table owns the authoritative token balance.
type User struct {
	ID           uuid.UUID `gorm:"type:uuid;primaryKey"`
	Email        string    `gorm:"type:text;not null;uniqueIndex"`
	Name         *string   `gorm:"column:name"`
	TokenBalance int       `gorm:"column:token_balance;not null;default:0;check:token_balance >= 0"`
	CreatedAt    time.Time `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt    time.Time `gorm:"column:updated_at;autoUpdateTime"`
}
