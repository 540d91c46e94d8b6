package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// Recipe holds quantities per BaseWeight of product. Edits only apply to batches
// planned afterwards.
type Recipe struct {
	ID         string             `gorm:"type:varchar(36);primaryKey" json:"id"`
	Name       string             `gorm:"not null" json:"name"`
	BaseWeight float64            `gorm:"not null" json:"base_weight"`
	BaseUnit   string             `gorm:"type:varchar(16);not null;default:g" json:"base_unit"`
	Lines      []RecipeIngredient `gorm:"foreignKey:RecipeID" json:"lines"`
	CreatedAt  time.Time          `json:"created_at"`
	UpdatedAt  time.Time          `json:"updated_at"`
}

func (r *Recipe) BeforeCreate(tx *gorm.DB) error {
	if r.ID == "" {
		r.ID = uuid.NewString()
	}
	return nil
}

type RecipeIngredient struct {
	ID           string    `gorm:"type:varchar(36);primaryKey" json:"id"`
	RecipeID     string    `gorm:"type:varchar(36);not null;index" json:"recipe_id"`
	MaterialID   string    `gorm:"type:varchar(36);not null;index" json:"material_id"`
	Material     *Material `gorm:"foreignKey:MaterialID" json:"material,omitempty"`
	Position     int       `gorm:"not null;default:0" json:"position"`
	Quantity     float64   `gorm:"not null" json:"quantity"`
	Unit         string    `gorm:"type:varchar(16);not null" json:"unit"`
	TolerancePct *float64  `json:"tolerance_pct,omitempty"`
	IsCritical   bool      `gorm:"not null;default:false" json:"is_critical"`
	// CureType names the curing agent ("cure_1", "prague powder #2", ...) on cure lines.
	CureType  string    `gorm:"type:varchar(64)" json:"cure_type,omitempty"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

func (ri *RecipeIngredient) BeforeCreate(tx *gorm.DB) error {
	if ri.ID == "" {
		ri.ID = uuid.NewString()
	}
	return nil
}
