package targets

import (
	"math"
	"sort"

	"smokehouse/internal/units"
	"smokehouse/models"
)

// DefaultTolerancePct applies to recipe lines without an explicit tolerance.
const DefaultTolerancePct = 5.0

// DefaultEpsilon absorbs floating point noise in balance and tolerance checks.
const DefaultEpsilon = 1e-6

// IngredientTarget is the derived per-line view of a batch: what the recipe asks
// for, what has been allocated, and whether it is within tolerance.
type IngredientTarget struct {
	LineID          string   `json:"line_id"`
	MaterialID      string   `json:"material_id"`
	MaterialName    string   `json:"material_name"`
	Category        string   `json:"category"`
	Unit            string   `json:"unit"`
	RecipeQuantity  float64  `json:"recipe_quantity"`
	ScaledQuantity  float64  `json:"scaled_quantity"`
	Target          float64  `json:"target"`
	Used            float64  `json:"used"`
	Actual          *float64 `json:"actual,omitempty"`
	Remaining       float64  `json:"remaining"`
	TolerancePct    float64  `json:"tolerance_pct"`
	WithinTolerance bool     `json:"within_tolerance"`
	IsCritical      bool     `json:"is_critical"`
	IsCure          bool     `json:"is_cure"`
	CureType        string   `json:"cure_type,omitempty"`
	CurePpm         float64  `json:"cure_ppm,omitempty"`
	CureMin         float64  `json:"cure_min,omitempty"`
	CureMax         float64  `json:"cure_max,omitempty"`
	EffectivePpm    *float64 `json:"effective_ppm,omitempty"`
}

// Extra is a material allocated to a batch that no recipe line asks for.
type Extra struct {
	MaterialID   string  `json:"material_id"`
	MaterialName string  `json:"material_name"`
	Used         float64 `json:"used"`
	Unit         string  `json:"unit"`
}

// Input is everything Resolve needs; it performs no I/O.
type Input struct {
	Batch       models.Batch
	Recipe      *models.Recipe
	Allocations []models.Allocation
	Actuals     []models.BatchActual
	Cure        CureSettings
	Epsilon     float64
}

type Result struct {
	ScaleFactor   float64            `json:"scale_factor"`
	BaseMassGrams float64            `json:"base_mass_grams"`
	Cure          CureSettings       `json:"cure"`
	Targets       []IngredientTarget `json:"targets"`
	Extras        []Extra            `json:"extras"`
}

// Resolve computes the scaled targets of every recipe line for in.Batch. A nil
// recipe yields no targets; allocations are then all reported as extras.
func Resolve(in Input) Result {
	eps := in.Epsilon
	if !positive(eps) {
		eps = DefaultEpsilon
	}
	cure := in.Cure.withDefaults()
	factor := ScaleFactor(in.Batch, in.Recipe)

	byMaterial := make(map[string][]models.Allocation)
	for _, a := range in.Allocations {
		byMaterial[a.MaterialID] = append(byMaterial[a.MaterialID], a)
	}
	actuals := make(map[string][]models.BatchActual)
	for _, a := range in.Actuals {
		actuals[a.MaterialID] = append(actuals[a.MaterialID], a)
	}

	res := Result{ScaleFactor: factor, Cure: cure, Targets: []IngredientTarget{}, Extras: []Extra{}}
	lined := make(map[string]bool)

	if in.Recipe != nil {
		res.BaseMassGrams = baseMass(in.Batch, in.Recipe.Lines, factor, byMaterial, actuals)

		for _, line := range in.Recipe.Lines {
			lined[line.MaterialID] = true
			t := IngredientTarget{
				LineID:         line.ID,
				MaterialID:     line.MaterialID,
				Unit:           line.Unit,
				RecipeQuantity: line.Quantity,
				ScaledQuantity: line.Quantity * factor,
				IsCritical:     line.IsCritical,
				TolerancePct:   DefaultTolerancePct,
			}
			if line.Material != nil {
				t.MaterialName = line.Material.Name
				t.Category = line.Material.Category
			}
			if line.TolerancePct != nil && *line.TolerancePct >= 0 {
				t.TolerancePct = *line.TolerancePct
			}
			t.Target = t.ScaledQuantity

			if line.Material.IsCure() || line.CureType != "" {
				t.IsCure = true
				t.CureType = line.CureType
				if grams, ok := RequiredCureMass(res.BaseMassGrams, line.CureType, cure.PpmTarget); ok {
					t.CurePpm = cure.PpmTarget
					t.Target = units.Convert(grams, units.Gram, line.Unit)
					if lo, ok := RequiredCureMass(res.BaseMassGrams, line.CureType, cure.PpmMin); ok {
						t.CureMin = units.Convert(lo, units.Gram, line.Unit)
					}
					if hi, ok := RequiredCureMass(res.BaseMassGrams, line.CureType, cure.PpmMax); ok {
						t.CureMax = units.Convert(hi, units.Gram, line.Unit)
					}
				}
			}

			t.Used = sumAllocations(byMaterial[line.MaterialID], line.Unit)
			if recorded, ok := sumActuals(actuals[line.MaterialID], line.Unit); ok {
				t.Actual = &recorded
			}
			if t.IsCure && t.Used > 0 {
				if grams, ok := units.ToGrams(t.Used, line.Unit); ok {
					if ppm, ok := EffectivePpm(grams, res.BaseMassGrams, line.CureType); ok {
						t.EffectivePpm = &ppm
					}
				}
			}

			t.Remaining = t.Target - t.Used
			if t.Remaining <= eps {
				t.Remaining = 0
			}
			t.WithinTolerance = math.Abs(t.Used-t.Target) <= t.Target*t.TolerancePct/100+eps
			res.Targets = append(res.Targets, t)
		}
	}

	for materialID, allocs := range byMaterial {
		if lined[materialID] || len(allocs) == 0 {
			continue
		}
		unit := units.BaseUnit(allocs[0].Unit)
		extra := Extra{MaterialID: materialID, Unit: unit, Used: sumAllocations(allocs, unit)}
		for _, a := range allocs {
			if a.Material != nil {
				extra.MaterialName = a.Material.Name
				break
			}
		}
		res.Extras = append(res.Extras, extra)
	}
	sort.Slice(res.Extras, func(i, j int) bool {
		if res.Extras[i].MaterialName != res.Extras[j].MaterialName {
			return res.Extras[i].MaterialName < res.Extras[j].MaterialName
		}
		return res.Extras[i].MaterialID < res.Extras[j].MaterialID
	})

	return res
}

// baseMass is the product mass cure is dosed against: the raw material plus every
// non-cure, non-beef, non-count line at its best known amount.
func baseMass(batch models.Batch, lines []models.RecipeIngredient, factor float64, allocs map[string][]models.Allocation, actuals map[string][]models.BatchActual) float64 {
	total := 0.0
	if raw, ok := units.ToGrams(batch.RawMaterialWeight, batch.RawMaterialUnit); ok && raw > 0 {
		total += raw
	}
	for _, line := range lines {
		if line.Material.IsCure() || line.Material.IsBeef() || line.CureType != "" {
			continue
		}
		if units.FamilyOf(line.Unit) == units.FamilyCount {
			continue
		}
		amount := line.Quantity * factor
		if recorded, ok := sumActuals(actuals[line.MaterialID], line.Unit); ok {
			amount = recorded
		} else if len(allocs[line.MaterialID]) > 0 {
			amount = sumAllocations(allocs[line.MaterialID], line.Unit)
		}
		if grams, ok := units.ToGrams(amount, line.Unit); ok && grams > 0 {
			total += grams
		}
	}
	return total
}

func sumAllocations(allocs []models.Allocation, unit string) float64 {
	total := 0.0
	for _, a := range allocs {
		total += units.Convert(a.Quantity, a.Unit, unit)
	}
	return total
}

func sumActuals(actuals []models.BatchActual, unit string) (float64, bool) {
	if len(actuals) == 0 {
		return 0, false
	}
	total := 0.0
	for _, a := range actuals {
		total += units.Convert(a.Quantity, a.Unit, unit)
	}
	return total, true
}
