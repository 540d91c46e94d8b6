package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

const (
	LotStatusActive    = "active"
	LotStatusRecalled  = "recalled"
	LotStatusExhausted = "exhausted"
)

// Lot is a received, physically traceable quantity of one material. CurrentBalance
// is expressed in Unit and is only mutated by the ledger.
type Lot struct {
	ID               string     `gorm:"type:varchar(36);primaryKey" json:"id"`
	MaterialID       string     `gorm:"type:varchar(36);not null;index" json:"material_id"`
	Material         *Material  `gorm:"foreignKey:MaterialID" json:"material,omitempty"`
	LotNumber        string     `gorm:"not null;index" json:"lot_number"`
	InternalCode     string     `gorm:"index" json:"internal_code"`
	SupplierID       *string    `gorm:"type:varchar(36);index" json:"supplier_id,omitempty"`
	Supplier         *Supplier  `gorm:"foreignKey:SupplierID" json:"supplier,omitempty"`
	ReceivedAt       time.Time  `json:"received_at"`
	ExpiresAt        *time.Time `json:"expires_at,omitempty"`
	ReceivedQuantity float64    `gorm:"not null" json:"received_quantity"`
	CurrentBalance   float64    `gorm:"not null" json:"current_balance"`
	Unit             string     `gorm:"type:varchar(16);not null" json:"unit"`
	Status           string     `gorm:"type:varchar(16);not null;default:active;index" json:"status"`
	// Version is bumped on every balance or status write and guards compare-and-set updates.
	Version   int64     `gorm:"not null;default:0" json:"version"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

func (l *Lot) BeforeCreate(tx *gorm.DB) error {
	if l.ID == "" {
		l.ID = uuid.NewString()
	}
	if l.Status == "" {
		l.Status = LotStatusActive
	}
	return nil
}

const (
	LotEventConsume = "consume"
	LotEventAdjust  = "adjust"
	LotEventRestore = "restore"
	LotEventRecall  = "recall"
)

// LotEvent is the append-only audit record of a lot mutation. Delta is the change in
// consumption, so the lot balance moved by -Delta.
type LotEvent struct {
	ID               string    `gorm:"type:varchar(36);primaryKey" json:"id"`
	LotID            string    `gorm:"type:varchar(36);not null;index" json:"lot_id"`
	Type             string    `gorm:"type:varchar(16);not null" json:"type"`
	Delta            float64   `gorm:"not null" json:"delta"`
	ResultingBalance float64   `gorm:"not null" json:"resulting_balance"`
	Unit             string    `gorm:"type:varchar(16);not null" json:"unit"`
	BatchID          *string   `gorm:"type:varchar(36);index" json:"batch_id,omitempty"`
	AllocationID     *string   `gorm:"type:varchar(36);index" json:"allocation_id,omitempty"`
	Reason           string    `gorm:"type:text" json:"reason"`
	Digest           string    `gorm:"type:varchar(64)" json:"digest"`
	CreatedAt        time.Time `gorm:"index" json:"created_at"`
}

func (e *LotEvent) BeforeCreate(tx *gorm.DB) error {
	if e.ID == "" {
		e.ID = uuid.NewString()
	}
	return nil
}
