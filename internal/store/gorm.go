package store

import (
	"context"
	"errors"
	"fmt"

	"gorm.io/gorm"

	"smokehouse/models"
)

var _ Store = (*Gorm)(nil)

// Gorm implements Store on top of a gorm handle (Postgres in production, SQLite
// for the mock database and tests).
type Gorm struct {
	db *gorm.DB
}

// NewGorm wraps db. A nil handle yields a store whose calls fail with gorm.ErrInvalidDB.
func NewGorm(db *gorm.DB) *Gorm {
	return &Gorm{db: db}
}

func (s *Gorm) conn(ctx context.Context) (*gorm.DB, error) {
	if s == nil || s.db == nil {
		return nil, gorm.ErrInvalidDB
	}
	return s.db.WithContext(ctx), nil
}

func translate(err error) error {
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return ErrNotFound
	}
	return err
}

func (s *Gorm) GetLot(ctx context.Context, id string) (*models.Lot, error) {
	db, err := s.conn(ctx)
	if err != nil {
		return nil, err
	}
	var lot models.Lot
	if err := db.Preload("Material").Preload("Supplier").First(&lot, "id = ?", id).Error; err != nil {
		return nil, translate(err)
	}
	normalizeLot(&lot)
	return &lot, nil
}

func (s *Gorm) ListLots(ctx context.Context) ([]models.Lot, error) {
	db, err := s.conn(ctx)
	if err != nil {
		return nil, err
	}
	var lots []models.Lot
	if err := db.Preload("Material").Order("received_at asc, id asc").Find(&lots).Error; err != nil {
		return nil, err
	}
	for i := range lots {
		normalizeLot(&lots[i])
	}
	return lots, nil
}

func (s *Gorm) GetMaterial(ctx context.Context, id string) (*models.Material, error) {
	db, err := s.conn(ctx)
	if err != nil {
		return nil, err
	}
	var material models.Material
	if err := db.First(&material, "id = ?", id).Error; err != nil {
		return nil, translate(err)
	}
	return &material, nil
}

func (s *Gorm) GetBatch(ctx context.Context, id string) (*models.Batch, error) {
	db, err := s.conn(ctx)
	if err != nil {
		return nil, err
	}
	var batch models.Batch
	if err := db.First(&batch, "id = ?", id).Error; err != nil {
		return nil, translate(err)
	}
	return &batch, nil
}

func (s *Gorm) GetRecipe(ctx context.Context, id string) (*models.Recipe, error) {
	db, err := s.conn(ctx)
	if err != nil {
		return nil, err
	}
	var recipe models.Recipe
	err = db.
		Preload("Lines", func(tx *gorm.DB) *gorm.DB {
			return tx.Order("position asc, id asc")
		}).
		Preload("Lines.Material").
		First(&recipe, "id = ?", id).Error
	if err != nil {
		return nil, translate(err)
	}
	return &recipe, nil
}

func (s *Gorm) GetAllocation(ctx context.Context, id string) (*models.Allocation, error) {
	db, err := s.conn(ctx)
	if err != nil {
		return nil, err
	}
	var allocation models.Allocation
	if err := db.First(&allocation, "id = ?", id).Error; err != nil {
		return nil, translate(err)
	}
	return &allocation, nil
}

func (s *Gorm) ListAllocationsByBatch(ctx context.Context, batchID string) ([]models.Allocation, error) {
	db, err := s.conn(ctx)
	if err != nil {
		return nil, err
	}
	var allocations []models.Allocation
	err = db.
		Preload("Lot").
		Preload("Lot.Supplier").
		Preload("Material").
		Where("batch_id = ?", batchID).
		Order("created_at asc, id asc").
		Find(&allocations).Error
	if err != nil {
		return nil, err
	}
	for i := range allocations {
		normalizeAllocation(&allocations[i])
	}
	return allocations, nil
}

func (s *Gorm) ListAllocationsByLot(ctx context.Context, lotID string) ([]models.Allocation, error) {
	db, err := s.conn(ctx)
	if err != nil {
		return nil, err
	}
	var allocations []models.Allocation
	err = db.
		Preload("Batch").
		Where("lot_id = ?", lotID).
		Order("created_at asc, id asc").
		Find(&allocations).Error
	if err != nil {
		return nil, err
	}
	for i := range allocations {
		normalizeAllocation(&allocations[i])
	}
	return allocations, nil
}

func (s *Gorm) ListActuals(ctx context.Context, batchID string) ([]models.BatchActual, error) {
	db, err := s.conn(ctx)
	if err != nil {
		return nil, err
	}
	var actuals []models.BatchActual
	if err := db.Where("batch_id = ?", batchID).Order("created_at asc, id asc").Find(&actuals).Error; err != nil {
		return nil, err
	}
	return actuals, nil
}

func (s *Gorm) ListLotEvents(ctx context.Context, lotID string) ([]models.LotEvent, error) {
	db, err := s.conn(ctx)
	if err != nil {
		return nil, err
	}
	var events []models.LotEvent
	if err := db.Where("lot_id = ?", lotID).Order("created_at asc, id asc").Find(&events).Error; err != nil {
		return nil, err
	}
	return events, nil
}

func (s *Gorm) LatestRecall(ctx context.Context, lotID string) (*models.Recall, error) {
	db, err := s.conn(ctx)
	if err != nil {
		return nil, err
	}
	var recall models.Recall
	err = db.Preload("Batches").
		Where("lot_id = ?", lotID).
		Order("created_at desc, id desc").
		First(&recall).Error
	if err != nil {
		return nil, translate(err)
	}
	return &recall, nil
}

func (s *Gorm) GetSetting(ctx context.Context, key string) (string, error) {
	db, err := s.conn(ctx)
	if err != nil {
		return "", err
	}
	var setting models.Setting
	if err := db.First(&setting, "key = ?", key).Error; err != nil {
		return "", translate(err)
	}
	return setting.Value, nil
}

func (s *Gorm) CreateAllocation(ctx context.Context, allocation *models.Allocation) error {
	db, err := s.conn(ctx)
	if err != nil {
		return err
	}
	return db.Omit("Batch", "Lot", "Material").Create(allocation).Error
}

func (s *Gorm) UpdateAllocation(ctx context.Context, id string, version int64, quantity float64, unit string) error {
	db, err := s.conn(ctx)
	if err != nil {
		return err
	}
	res := db.Model(&models.Allocation{}).
		Where("id = ? AND version = ?", id, version).
		Updates(map[string]any{
			"quantity": quantity,
			"unit":     unit,
			"version":  gorm.Expr("version + 1"),
		})
	return s.conditional(ctx, res, &models.Allocation{}, id)
}

func (s *Gorm) DeleteAllocation(ctx context.Context, id string, version int64) error {
	db, err := s.conn(ctx)
	if err != nil {
		return err
	}
	res := db.Where("id = ? AND version = ?", id, version).Delete(&models.Allocation{})
	return s.conditional(ctx, res, &models.Allocation{}, id)
}

func (s *Gorm) RestoreAllocation(ctx context.Context, id string) error {
	db, err := s.conn(ctx)
	if err != nil {
		return err
	}
	res := db.Unscoped().Model(&models.Allocation{}).
		Where("id = ?", id).
		Update("deleted_at", nil)
	return affected(res)
}

func (s *Gorm) PurgeAllocation(ctx context.Context, id string) error {
	db, err := s.conn(ctx)
	if err != nil {
		return err
	}
	return affected(db.Unscoped().Where("id = ?", id).Delete(&models.Allocation{}))
}

func (s *Gorm) CreateLotEvent(ctx context.Context, event *models.LotEvent) error {
	db, err := s.conn(ctx)
	if err != nil {
		return err
	}
	return db.Create(event).Error
}

func (s *Gorm) DeleteLotEvent(ctx context.Context, id string) error {
	db, err := s.conn(ctx)
	if err != nil {
		return err
	}
	return affected(db.Where("id = ?", id).Delete(&models.LotEvent{}))
}

func (s *Gorm) UpdateLotBalance(ctx context.Context, id string, version int64, balance float64, status string) error {
	db, err := s.conn(ctx)
	if err != nil {
		return err
	}
	res := db.Model(&models.Lot{}).
		Where("id = ? AND version = ?", id, version).
		Updates(map[string]any{
			"current_balance": balance,
			"status":          status,
			"version":         gorm.Expr("version + 1"),
		})
	return s.conditional(ctx, res, &models.Lot{}, id)
}

func (s *Gorm) UpdateLotStatus(ctx context.Context, id string, version int64, status string) error {
	db, err := s.conn(ctx)
	if err != nil {
		return err
	}
	res := db.Model(&models.Lot{}).
		Where("id = ? AND version = ?", id, version).
		Updates(map[string]any{
			"status":  status,
			"version": gorm.Expr("version + 1"),
		})
	return s.conditional(ctx, res, &models.Lot{}, id)
}

func (s *Gorm) DeleteLotCascade(ctx context.Context, id string) error {
	db, err := s.conn(ctx)
	if err != nil {
		return err
	}
	return db.Transaction(func(tx *gorm.DB) error {
		var lot models.Lot
		if err := tx.First(&lot, "id = ?", id).Error; err != nil {
			return translate(err)
		}
		if err := tx.Unscoped().Where("lot_id = ?", id).Delete(&models.Allocation{}).Error; err != nil {
			return fmt.Errorf("delete allocations: %w", err)
		}
		if err := tx.Where("lot_id = ?", id).Delete(&models.LotEvent{}).Error; err != nil {
			return fmt.Errorf("delete lot events: %w", err)
		}
		recalls := tx.Model(&models.Recall{}).Select("id").Where("lot_id = ?", id)
		if err := tx.Where("recall_id IN (?)", recalls).Delete(&models.RecallBatch{}).Error; err != nil {
			return fmt.Errorf("delete recall batches: %w", err)
		}
		if err := tx.Where("lot_id = ?", id).Delete(&models.Recall{}).Error; err != nil {
			return fmt.Errorf("delete recalls: %w", err)
		}
		if err := tx.Delete(&lot).Error; err != nil {
			return fmt.Errorf("delete lot: %w", err)
		}
		return nil
	})
}

func (s *Gorm) CreateRecall(ctx context.Context, recall *models.Recall) error {
	db, err := s.conn(ctx)
	if err != nil {
		return err
	}
	return db.Create(recall).Error
}

func (s *Gorm) DeleteRecall(ctx context.Context, id string) error {
	db, err := s.conn(ctx)
	if err != nil {
		return err
	}
	if err := db.Where("recall_id = ?", id).Delete(&models.RecallBatch{}).Error; err != nil {
		return err
	}
	return affected(db.Where("id = ?", id).Delete(&models.Recall{}))
}

func (s *Gorm) SetBatchReleaseStatus(ctx context.Context, id string, status string) error {
	db, err := s.conn(ctx)
	if err != nil {
		return err
	}
	return affected(db.Model(&models.Batch{}).Where("id = ?", id).Update("release_status", status))
}

// UnflagBatchRecall puts a recalled batch back to status unless a recall other
// than recallID still lists it. Skipping the reset is not an error.
func (s *Gorm) UnflagBatchRecall(ctx context.Context, id, recallID, status string) error {
	db, err := s.conn(ctx)
	if err != nil {
		return err
	}
	others := db.Model(&models.RecallBatch{}).
		Select("1").
		Where("batch_id = ? AND recall_id <> ?", id, recallID)
	return db.Model(&models.Batch{}).
		Where("id = ? AND release_status = ?", id, models.ReleaseStatusRecalled).
		Where("NOT EXISTS (?)", others).
		Update("release_status", status).Error
}

func affected(res *gorm.DB) error {
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

// conditional distinguishes a missing row from a version mismatch when a
// compare-and-set update touched no rows.
func (s *Gorm) conditional(ctx context.Context, res *gorm.DB, model any, id string) error {
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected > 0 {
		return nil
	}
	var count int64
	if err := s.db.WithContext(ctx).Model(model).Where("id = ?", id).Count(&count).Error; err != nil {
		return err
	}
	if count == 0 {
		return ErrNotFound
	}
	return ErrStale
}

// normalizeLot drops empty joined records so callers only ever see nil or a
// populated pointer.
func normalizeLot(lot *models.Lot) {
	if lot.Supplier != nil && lot.Supplier.ID == "" {
		lot.Supplier = nil
	}
	if lot.Material != nil && lot.Material.ID == "" {
		lot.Material = nil
	}
}

func normalizeAllocation(allocation *models.Allocation) {
	if allocation.Lot != nil {
		if allocation.Lot.ID == "" {
			allocation.Lot = nil
		} else {
			normalizeLot(allocation.Lot)
		}
	}
	if allocation.Material != nil && allocation.Material.ID == "" {
		allocation.Material = nil
	}
	if allocation.Batch != nil && allocation.Batch.ID == "" {
		allocation.Batch = nil
	}
}
