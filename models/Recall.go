package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

type Recall struct {
	ID        string        `gorm:"type:varchar(36);primaryKey" json:"id"`
	LotID     string        `gorm:"type:varchar(36);not null;index" json:"lot_id"`
	Reason    string        `gorm:"type:text" json:"reason"`
	Batches   []RecallBatch `gorm:"foreignKey:RecallID" json:"batches"`
	CreatedAt time.Time     `gorm:"index" json:"created_at"`
}

func (r *Recall) BeforeCreate(tx *gorm.DB) error {
	if r.ID == "" {
		r.ID = uuid.NewString()
	}
	return nil
}

// RecallBatch links a recall to an affected batch, keeping the release status the
// batch had before it was flagged.
type RecallBatch struct {
	ID                    string `gorm:"type:varchar(36);primaryKey" json:"id"`
	RecallID              string `gorm:"type:varchar(36);not null;index" json:"recall_id"`
	BatchID               string `gorm:"type:varchar(36);not null;index" json:"batch_id"`
	PreviousReleaseStatus string `gorm:"type:varchar(16)" json:"previous_release_status"`
}

func (rb *RecallBatch) BeforeCreate(tx *gorm.DB) error {
	if rb.ID == "" {
		rb.ID = uuid.NewString()
	}
	return nil
}

// Setting is a generic key-value entry, e.g. "cure.ppm_target".
type Setting struct {
	Key       string    `gorm:"type:varchar(128);primaryKey" json:"key"`
	Value     string    `gorm:"type:text;not null" json:"value"`
	UpdatedAt time.Time `json:"updated_at"`
}
