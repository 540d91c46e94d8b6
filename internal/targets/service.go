package targets

import (
	"context"
	"errors"
	"fmt"

	applog "smokehouse/internal/log"
	"smokehouse/internal/store"
	"smokehouse/models"
)

// Service loads the records a resolution needs through the store.
type Service struct {
	store    store.Reader
	settings SettingsSource
	epsilon  float64
}

func NewService(reader store.Reader, settings SettingsSource, epsilon float64) *Service {
	if settings == nil {
		settings = StaticSettings(DefaultCureSettings())
	}
	return &Service{store: reader, settings: settings, epsilon: epsilon}
}

// Snapshot is a batch together with the records its targets were resolved from.
type Snapshot struct {
	Batch       *models.Batch
	Recipe      *models.Recipe
	Allocations []models.Allocation
	Actuals     []models.BatchActual
	Result      Result
}

// ResolveTargets returns the ingredient targets of batchID. A batch without a
// resolvable recipe yields an empty target list.
func (s *Service) ResolveTargets(ctx context.Context, batchID string) (*models.Batch, *models.Recipe, Result, error) {
	snap, err := s.Snapshot(ctx, batchID)
	if err != nil {
		return nil, nil, Result{}, err
	}
	return snap.Batch, snap.Recipe, snap.Result, nil
}

// Snapshot loads batchID with its recipe, allocations and actuals and resolves
// its targets.
func (s *Service) Snapshot(ctx context.Context, batchID string) (*Snapshot, error) {
	batch, err := s.store.GetBatch(ctx, batchID)
	if err != nil {
		return nil, fmt.Errorf("load batch %s: %w", batchID, err)
	}

	var recipe *models.Recipe
	if batch.RecipeID != nil && *batch.RecipeID != "" {
		recipe, err = s.store.GetRecipe(ctx, *batch.RecipeID)
		switch {
		case errors.Is(err, store.ErrNotFound):
			applog.Warn(ctx, "batch recipe missing, resolving without targets", "batchID", batchID, "recipeID", *batch.RecipeID)
			recipe = nil
		case err != nil:
			return nil, fmt.Errorf("load recipe: %w", err)
		}
	}

	allocations, err := s.store.ListAllocationsByBatch(ctx, batchID)
	if err != nil {
		return nil, fmt.Errorf("list allocations: %w", err)
	}
	actuals, err := s.store.ListActuals(ctx, batchID)
	if err != nil {
		return nil, fmt.Errorf("list actuals: %w", err)
	}

	cure, err := s.settings.CureSettings(ctx)
	if err != nil {
		applog.Warn(ctx, "cure settings unavailable, using defaults", "error", err)
		cure = DefaultCureSettings()
	}

	result := Resolve(Input{
		Batch:       *batch,
		Recipe:      recipe,
		Allocations: allocations,
		Actuals:     actuals,
		Cure:        cure,
		Epsilon:     s.epsilon,
	})
	return &Snapshot{Batch: batch, Recipe: recipe, Allocations: allocations, Actuals: actuals, Result: result}, nil
}

// Epsilon is the tolerance applied when comparing used and target amounts.
func (s *Service) Epsilon() float64 {
	if !positive(s.epsilon) {
		return DefaultEpsilon
	}
	return s.epsilon
}
