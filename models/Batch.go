package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

const (
	BatchStatusPlanned    = "planned"
	BatchStatusInProgress = "in_progress"
	BatchStatusCompleted  = "completed"
	BatchStatusReleased   = "released"
	BatchStatusCancelled  = "cancelled"
)

const (
	ReleaseStatusPending  = "pending"
	ReleaseStatusReleased = "released"
	ReleaseStatusRecalled = "recalled"
)

// Batch is one production run.
type Batch struct {
	ID                string    `gorm:"type:varchar(36);primaryKey" json:"id"`
	Code              string    `gorm:"not null;index" json:"code"`
	RecipeID          *string   `gorm:"type:varchar(36);index" json:"recipe_id,omitempty"`
	RawMaterialWeight float64   `gorm:"not null;default:0" json:"raw_material_weight"`
	RawMaterialUnit   string    `gorm:"type:varchar(16);not null;default:kg" json:"raw_material_unit"`
	ScalingFactor     *float64  `json:"scaling_factor,omitempty"`
	Status            string    `gorm:"type:varchar(16);not null;default:planned" json:"status"`
	ReleaseStatus     string    `gorm:"type:varchar(16);not null;default:pending" json:"release_status"`
	CreatedAt         time.Time `json:"created_at"`
	UpdatedAt         time.Time `json:"updated_at"`
}

func (b *Batch) BeforeCreate(tx *gorm.DB) error {
	if b.ID == "" {
		b.ID = uuid.NewString()
	}
	if b.Status == "" {
		b.Status = BatchStatusPlanned
	}
	if b.ReleaseStatus == "" {
		b.ReleaseStatus = ReleaseStatusPending
	}
	return nil
}

// BatchActual is a weighed amount recorded for a material during batch execution.
type BatchActual struct {
	ID         string    `gorm:"type:varchar(36);primaryKey" json:"id"`
	BatchID    string    `gorm:"type:varchar(36);not null;index" json:"batch_id"`
	MaterialID string    `gorm:"type:varchar(36);not null;index" json:"material_id"`
	Quantity   float64   `gorm:"not null" json:"quantity"`
	Unit       string    `gorm:"type:varchar(16);not null" json:"unit"`
	CreatedAt  time.Time `json:"created_at"`
}

func (a *BatchActual) BeforeCreate(tx *gorm.DB) error {
	if a.ID == "" {
		a.ID = uuid.NewString()
	}
	return nil
}

// Allocation records consumption of a lot by a batch (a.k.a. batch lot usage).
// Reversal soft-deletes the row so a failed reversal can be undone in place.
type Allocation struct {
	ID         string    `gorm:"type:varchar(36);primaryKey" json:"id"`
	BatchID    string    `gorm:"type:varchar(36);not null;index" json:"batch_id"`
	Batch      *Batch    `gorm:"foreignKey:BatchID" json:"batch,omitempty"`
	LotID      string    `gorm:"type:varchar(36);not null;index" json:"lot_id"`
	Lot        *Lot      `gorm:"foreignKey:LotID" json:"lot,omitempty"`
	MaterialID string    `gorm:"type:varchar(36);not null;index" json:"material_id"`
	Material   *Material `gorm:"foreignKey:MaterialID" json:"material,omitempty"`
	Quantity   float64   `gorm:"not null" json:"quantity"`
	Unit       string    `gorm:"type:varchar(16);not null" json:"unit"`
	// Version guards quantity edits and deletion the same way Lot.Version guards balances.
	Version   int64          `gorm:"not null;default:0" json:"version"`
	CreatedAt time.Time      `json:"created_at"`
	UpdatedAt time.Time      `json:"updated_at"`
	DeletedAt gorm.DeletedAt `gorm:"index" json:"-"`
}

func (a *Allocation) BeforeCreate(tx *gorm.DB) error {
	if a.ID == "" {
		a.ID = uuid.NewString()
	}
	return nil
}
