package mock

import (
	"context"
	"testing"

	"smokehouse/models"
)

func TestNewSeedsExpectedRecords(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	db, err := New(ctx)
	if err != nil {
		t.Fatalf("mock database initialization failed: %v", err)
	}

	var lots []models.Lot
	if err := db.WithContext(ctx).Find(&lots).Error; err != nil {
		t.Fatalf("query lots: %v", err)
	}
	if len(lots) == 0 {
		t.Fatal("expected seeded lots")
	}
	for _, lot := range lots {
		if lot.CurrentBalance != lot.ReceivedQuantity {
			t.Fatalf("lot %s balance = %v, want untouched %v", lot.ID, lot.CurrentBalance, lot.ReceivedQuantity)
		}
		if lot.Status != models.LotStatusActive {
			t.Fatalf("lot %s status = %q, want active", lot.ID, lot.Status)
		}
	}

	var recipe models.Recipe
	if err := db.WithContext(ctx).Preload("Lines").First(&recipe, "id = ?", RecipeClassicID).Error; err != nil {
		t.Fatalf("query recipe: %v", err)
	}
	if len(recipe.Lines) != 6 {
		t.Fatalf("recipe lines = %d, want 6", len(recipe.Lines))
	}

	var batch models.Batch
	if err := db.WithContext(ctx).First(&batch, "id = ?", BatchPlannedID).Error; err != nil {
		t.Fatalf("query batch: %v", err)
	}
	if batch.Status != models.BatchStatusPlanned || batch.ReleaseStatus != models.ReleaseStatusPending {
		t.Fatalf("batch defaults = %q/%q", batch.Status, batch.ReleaseStatus)
	}
}

func TestNewReturnsIsolatedDatabases(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	first, err := New(ctx)
	if err != nil {
		t.Fatalf("first New() error = %v", err)
	}
	if _, err := New(ctx); err != nil {
		t.Fatalf("second New() error = %v", err)
	}

	var count int64
	if err := first.WithContext(ctx).Model(&models.Material{}).Count(&count).Error; err != nil {
		t.Fatalf("count materials: %v", err)
	}
	if count != 8 {
		t.Fatalf("materials = %d, want 8", count)
	}
}
