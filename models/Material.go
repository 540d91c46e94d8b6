package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

const (
	CategoryBeef      = "beef"
	CategoryCure      = "cure"
	CategorySeasoning = "seasoning"
	CategoryMarinade  = "marinade"
	CategoryPackaging = "packaging"
	CategoryOther     = "other"
)

// Material is a purchasable substance. It is treated as immutable once a lot or
// recipe line references it.
type Material struct {
	ID        string    `gorm:"type:varchar(36);primaryKey" json:"id"`
	Name      string    `gorm:"not null" json:"name"`
	Category  string    `gorm:"type:varchar(32);not null;index" json:"category"`
	Unit      string    `gorm:"type:varchar(16);not null" json:"unit"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

func (m *Material) BeforeCreate(tx *gorm.DB) error {
	if m.ID == "" {
		m.ID = uuid.NewString()
	}
	return nil
}

// IsCure reports whether the material is dosed by ppm rather than by recipe weight.
func (m *Material) IsCure() bool {
	return m != nil && m.Category == CategoryCure
}

// IsBeef reports whether the material is the batch's raw meat input.
func (m *Material) IsBeef() bool {
	return m != nil && m.Category == CategoryBeef
}

type Supplier struct {
	ID        string    `gorm:"type:varchar(36);primaryKey" json:"id"`
	Name      string    `gorm:"not null" json:"name"`
	Contact   string    `json:"contact"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

func (s *Supplier) BeforeCreate(tx *gorm.DB) error {
	if s.ID == "" {
		s.ID = uuid.NewString()
	}
	return nil
}
