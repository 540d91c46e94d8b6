package targets

import (
	"context"
	"errors"
	"testing"

	"smokehouse/internal/db/mock"
	"smokehouse/internal/store"
	"smokehouse/models"
)

func TestServiceResolveTargetsFromSeed(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	database, err := mock.New(ctx)
	if err != nil {
		t.Fatalf("mock.New() error = %v", err)
	}
	s := store.NewGorm(database)
	svc := NewService(s, StoreSettings{Store: s}, 0)

	batch, recipe, res, err := svc.ResolveTargets(ctx, mock.BatchInProgressID)
	if err != nil {
		t.Fatalf("ResolveTargets() error = %v", err)
	}
	if batch.ID != mock.BatchInProgressID || recipe == nil {
		t.Fatalf("batch/recipe = %v/%v", batch, recipe)
	}
	if res.ScaleFactor != 10 {
		t.Fatalf("ScaleFactor = %v, want 10", res.ScaleFactor)
	}
	if len(res.Targets) != 6 {
		t.Fatalf("Targets = %d, want 6", len(res.Targets))
	}
	// raw 10000 g + soy actual 610 mL + worcestershire 300 mL + sugar 400 g + pepper 80 g
	if !approx(res.BaseMassGrams, 11390) {
		t.Fatalf("BaseMassGrams = %v, want 11390", res.BaseMassGrams)
	}
	for _, tgt := range res.Targets {
		if tgt.MaterialID != mock.MaterialCureID {
			continue
		}
		if !approx(tgt.Target, 150*11390/62500.0) {
			t.Fatalf("cure target = %v", tgt.Target)
		}
		return
	}
	t.Fatal("cure target missing")
}

func TestServiceMissingRecipeYieldsEmptyTargets(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	database, err := mock.Open(ctx, t.Name())
	if err != nil {
		t.Fatalf("mock.Open() error = %v", err)
	}
	missing := "recipe-gone"
	batch := models.Batch{Code: "JRK-9", RecipeID: &missing, RawMaterialWeight: 3, RawMaterialUnit: "kg"}
	if err := database.Create(&batch).Error; err != nil {
		t.Fatalf("create batch: %v", err)
	}

	svc := NewService(store.NewGorm(database), nil, 0)
	_, recipe, res, err := svc.ResolveTargets(ctx, batch.ID)
	if err != nil {
		t.Fatalf("ResolveTargets() error = %v", err)
	}
	if recipe != nil || len(res.Targets) != 0 {
		t.Fatalf("recipe = %v, targets = %v, want none", recipe, res.Targets)
	}
}

func TestServiceUnknownBatch(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	database, err := mock.Open(ctx, t.Name())
	if err != nil {
		t.Fatalf("mock.Open() error = %v", err)
	}
	_, _, _, err = NewService(store.NewGorm(database), nil, 0).ResolveTargets(ctx, "nope")
	if !errors.Is(err, store.ErrNotFound) {
		t.Fatalf("err = %v, want store.ErrNotFound", err)
	}
}
