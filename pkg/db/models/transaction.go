package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/shapeai4-rgb/shapeai/pkg/enums"
)

// Transaction records one immutable token movement. TokenAmount is signed:
// positive for topup, negative for spend. Amount/Currency are populated only
// for top-ups backed by a real payment.
type Transaction struct {
	ID          uuid.UUID               `gorm:"column:id;type:uuid;primaryKey"`
	UserID      uuid.UUID               `gorm:"column:user_id;type:uuid;not null;index:idx_transactions_user_created,priority:1"`
	Action      enums.TransactionAction `gorm:"column:action;type:text;not null"`
	TokenAmount int                     `gorm:"column:token_amount;not null"`
	Amount      *decimal.Decimal        `gorm:"column:amount;type:numeric(12,2)"`
	Currency    *enums.Currency         `gorm:"column:currency;type:text"`
	Description string                  `gorm:"column:description;not null"`
	CreatedAt   time.Time               `gorm:"column:created_at;autoCreateTime;index:idx_transactions_user_created,priority:2,sort:desc"`
}
