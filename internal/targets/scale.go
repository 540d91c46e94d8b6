package targets

import (
	"math"

	"smokehouse/internal/units"
	"smokehouse/models"
)

// ScaleFactor returns the multiplier applied to recipe quantities for batch. An
// explicit positive override wins, then raw-material mass over recipe base mass,
// then 1.
func ScaleFactor(batch models.Batch, recipe *models.Recipe) float64 {
	if batch.ScalingFactor != nil && positive(*batch.ScalingFactor) {
		return *batch.ScalingFactor
	}
	if recipe == nil {
		return 1
	}
	base, ok := units.ToGrams(recipe.BaseWeight, recipe.BaseUnit)
	if !ok || !positive(base) {
		return 1
	}
	input, ok := units.ToGrams(batch.RawMaterialWeight, batch.RawMaterialUnit)
	if !ok || !positive(input) {
		return 1
	}
	return input / base
}

func positive(v float64) bool {
	return !math.IsNaN(v) && !math.IsInf(v, 0) && v > 0
}
