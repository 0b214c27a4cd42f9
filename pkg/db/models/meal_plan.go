package models

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"github.com/lib/pq"

	"github.com/shapeai4-rgb/shapeai/pkg/enums"
)

// MealPlan stores one generated plan. Content holds the structured JSON the
// AI collaborator returned, verbatim.
type MealPlan struct {
	ID         uuid.UUID            `gorm:"type:uuid;primaryKey"`
	UserID     uuid.UUID            `gorm:"column:user_id;type:uuid;not null;index"`
	Title      string               `gorm:"column:title;not null"`
	Days       int                  `gorm:"column:days;not null"`
	KcalTarget int                  `gorm:"column:kcal_target;not null;default:0"`
	Status     enums.MealPlanStatus `gorm:"column:status;type:text;not null;default:'active'"`
	DietTags   pq.StringArray       `gorm:"column:diet_tags;type:text[]"`
	Content    json.RawMessage      `gorm:"column:content;type:jsonb;not null"`
	CreatedAt  time.Time            `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt  time.Time            `gorm:"column:updated_at;autoUpdateTime"`
}
