// Package store is the data-access boundary of the ledger. It exposes per-entity
// reads and writes over a relational database and normalises joined records into a
// single optional pointer before they reach business logic.
package store

import (
	"context"
	"errors"

	"smokehouse/models"
)

var (
	// ErrNotFound is returned when the addressed record does not exist.
	ErrNotFound = errors.New("store: record not found")
	// ErrStale is returned when a conditional update finds the record changed
	// since it was read.
	ErrStale = errors.New("store: stale record version")
)

// Reader groups the read operations used by target resolution and traceability.
type Reader interface {
	GetLot(ctx context.Context, id string) (*models.Lot, error)
	ListLots(ctx context.Context) ([]models.Lot, error)
	GetMaterial(ctx context.Context, id string) (*models.Material, error)
	GetBatch(ctx context.Context, id string) (*models.Batch, error)
	GetRecipe(ctx context.Context, id string) (*models.Recipe, error)
	GetAllocation(ctx context.Context, id string) (*models.Allocation, error)
	ListAllocationsByBatch(ctx context.Context, batchID string) ([]models.Allocation, error)
	ListAllocationsByLot(ctx context.Context, lotID string) ([]models.Allocation, error)
	ListActuals(ctx context.Context, batchID string) ([]models.BatchActual, error)
	ListLotEvents(ctx context.Context, lotID string) ([]models.LotEvent, error)
	LatestRecall(ctx context.Context, lotID string) (*models.Recall, error)
	GetSetting(ctx context.Context, key string) (string, error)
}

// Store is the full command and query surface consumed by the ledger.
type Store interface {
	Reader

	CreateAllocation(ctx context.Context, allocation *models.Allocation) error
	// UpdateAllocation and DeleteAllocation apply only while the allocation is
	// still at version and return ErrStale otherwise. UpdateAllocation bumps the
	// version. DeleteAllocation soft-deletes; RestoreAllocation undoes it.
	UpdateAllocation(ctx context.Context, id string, version int64, quantity float64, unit string) error
	DeleteAllocation(ctx context.Context, id string, version int64) error
	RestoreAllocation(ctx context.Context, id string) error
	// PurgeAllocation removes the row permanently.
	PurgeAllocation(ctx context.Context, id string) error

	CreateLotEvent(ctx context.Context, event *models.LotEvent) error
	DeleteLotEvent(ctx context.Context, id string) error

	// UpdateLotBalance writes balance and status only if the lot is still at
	// version, bumping the version on success. A mismatch returns ErrStale.
	UpdateLotBalance(ctx context.Context, id string, version int64, balance float64, status string) error
	UpdateLotStatus(ctx context.Context, id string, version int64, status string) error
	// DeleteLotCascade removes a lot with its allocations, events and recalls.
	DeleteLotCascade(ctx context.Context, id string) error

	CreateRecall(ctx context.Context, recall *models.Recall) error
	DeleteRecall(ctx context.Context, id string) error
	SetBatchReleaseStatus(ctx context.Context, id string, status string) error
	// UnflagBatchRecall reverts a recalled batch to status only when no recall
	// other than recallID references it.
	UnflagBatchRecall(ctx context.Context, id, recallID, status string) error
}
