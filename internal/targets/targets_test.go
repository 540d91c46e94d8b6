package targets

import (
	"context"
	"errors"
	"math"
	"testing"

	"smokehouse/internal/store"
	"smokehouse/models"
)

func approx(a, b float64) bool {
	return math.Abs(a-b) < 1e-9
}

func floatPtr(v float64) *float64 { return &v }

func TestScaleFactor(t *testing.T) {
	t.Parallel()

	recipe := &models.Recipe{BaseWeight: 4000, BaseUnit: "g"}
	tests := []struct {
		name   string
		batch  models.Batch
		recipe *models.Recipe
		want   float64
	}{
		{"derived from masses", models.Batch{RawMaterialWeight: 10, RawMaterialUnit: "kg"}, recipe, 2.5},
		{"override wins", models.Batch{RawMaterialWeight: 10, RawMaterialUnit: "kg", ScalingFactor: floatPtr(3)}, recipe, 3},
		{"non-positive override ignored", models.Batch{RawMaterialWeight: 10, RawMaterialUnit: "kg", ScalingFactor: floatPtr(0)}, recipe, 2.5},
		{"nan override ignored", models.Batch{RawMaterialWeight: 10, RawMaterialUnit: "kg", ScalingFactor: floatPtr(math.NaN())}, recipe, 2.5},
		{"nil recipe", models.Batch{RawMaterialWeight: 10, RawMaterialUnit: "kg"}, nil, 1},
		{"zero base weight", models.Batch{RawMaterialWeight: 10, RawMaterialUnit: "kg"}, &models.Recipe{BaseWeight: 0, BaseUnit: "g"}, 1},
		{"count base unit", models.Batch{RawMaterialWeight: 10, RawMaterialUnit: "kg"}, &models.Recipe{BaseWeight: 4, BaseUnit: "units"}, 1},
		{"zero raw weight", models.Batch{RawMaterialUnit: "kg"}, recipe, 1},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			if got := ScaleFactor(tt.batch, tt.recipe); !approx(got, tt.want) {
				t.Fatalf("ScaleFactor() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestRequiredCureMass(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name     string
		base     float64
		cureType string
		ppm      float64
		want     float64
		wantOK   bool
	}{
		{"cure 1 at 150 ppm", 10000, "cure_1", 150, 24, true},
		{"alias resolves", 10000, "Prague Powder #1", 150, 24, true},
		{"cure 2", 5000, "pink curing salt #2", 120, 9.6, true},
		{"tender quick", 10000, "Tender Quick", 150, 300, true},
		{"zero base", 0, "cure_1", 150, 0, false},
		{"negative ppm", 10000, "cure_1", -1, 0, false},
		{"unknown cure", 10000, "celery powder", 150, 0, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			got, ok := RequiredCureMass(tt.base, tt.cureType, tt.ppm)
			if ok != tt.wantOK {
				t.Fatalf("RequiredCureMass() ok = %t, want %t", ok, tt.wantOK)
			}
			if !approx(got, tt.want) {
				t.Fatalf("RequiredCureMass() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestEffectivePpmInvertsRequiredMass(t *testing.T) {
	t.Parallel()

	grams, _ := RequiredCureMass(12500, CureOne, 156)
	ppm, ok := EffectivePpm(grams, 12500, CureOne)
	if !ok || !approx(ppm, 156) {
		t.Fatalf("EffectivePpm() = %v, %t, want 156", ppm, ok)
	}
}

func cureRecipe() *models.Recipe {
	return &models.Recipe{
		ID:         "rec",
		BaseWeight: 1000,
		BaseUnit:   "g",
		Lines: []models.RecipeIngredient{
			{ID: "l-beef", MaterialID: "beef", Material: &models.Material{ID: "beef", Name: "Beef", Category: models.CategoryBeef}, Quantity: 1000, Unit: "g"},
			{ID: "l-cure", MaterialID: "cure", Material: &models.Material{ID: "cure", Name: "Cure #1", Category: models.CategoryCure}, Quantity: 2.5, Unit: "g", CureType: "cure_1", IsCritical: true},
		},
	}
}

func TestResolveCureTargetUsesFormula(t *testing.T) {
	t.Parallel()

	res := Resolve(Input{
		Batch:  models.Batch{RawMaterialWeight: 10, RawMaterialUnit: "kg"},
		Recipe: cureRecipe(),
		Cure:   DefaultCureSettings(),
	})

	if !approx(res.BaseMassGrams, 10000) {
		t.Fatalf("BaseMassGrams = %v, want 10000 (beef line excluded)", res.BaseMassGrams)
	}
	cure := res.Targets[1]
	if !cure.IsCure || !approx(cure.Target, 24) {
		t.Fatalf("cure target = %v (IsCure=%t), want 24", cure.Target, cure.IsCure)
	}
	if !approx(cure.CureMin, 19.2) || !approx(cure.CureMax, 24.96) {
		t.Fatalf("cure band = [%v, %v], want [19.2, 24.96]", cure.CureMin, cure.CureMax)
	}
	if cure.ScaledQuantity != 25 {
		t.Fatalf("ScaledQuantity = %v, want recipe quantity times factor", cure.ScaledQuantity)
	}
	if cure.EffectivePpm != nil {
		t.Fatal("expected no effective ppm before any allocation")
	}
}

func TestResolveUsedRemainingAndTolerance(t *testing.T) {
	t.Parallel()

	recipe := &models.Recipe{
		BaseWeight: 1000,
		BaseUnit:   "g",
		Lines: []models.RecipeIngredient{
			{ID: "l-sugar", MaterialID: "sugar", Quantity: 40, Unit: "g"},
			{ID: "l-pepper", MaterialID: "pepper", Quantity: 8, Unit: "g", TolerancePct: floatPtr(10), IsCritical: true},
			{ID: "l-soy", MaterialID: "soy", Quantity: 60, Unit: "mL"},
			{ID: "l-cure", MaterialID: "cure", Material: &models.Material{Category: models.CategoryCure}, Quantity: 2.5, Unit: "g", CureType: "cure_1"},
			{ID: "l-pouch", MaterialID: "pouch", Quantity: 4, Unit: "units"},
		},
	}
	allocs := []models.Allocation{
		{MaterialID: "sugar", Quantity: 0.3, Unit: "kg"},
		{MaterialID: "sugar", Quantity: 100, Unit: "g"},
		{MaterialID: "pepper", Quantity: 85, Unit: "g"},
		{MaterialID: "cure", Quantity: 25.152, Unit: "g"},
		{MaterialID: "smoke", Material: &models.Material{Name: "Liquid smoke"}, Quantity: 0.05, Unit: "L"},
	}
	actuals := []models.BatchActual{{MaterialID: "soy", Quantity: 0.61, Unit: "L"}}

	res := Resolve(Input{
		Batch:       models.Batch{RawMaterialWeight: 10, RawMaterialUnit: "kg"},
		Recipe:      recipe,
		Allocations: allocs,
		Actuals:     actuals,
	})

	// raw 10000 + sugar allocated 400 + pepper allocated 85 + soy actual 610
	if !approx(res.BaseMassGrams, 11095) {
		t.Fatalf("BaseMassGrams = %v, want 11095", res.BaseMassGrams)
	}

	byLine := map[string]IngredientTarget{}
	for _, tgt := range res.Targets {
		byLine[tgt.LineID] = tgt
	}

	sugar := byLine["l-sugar"]
	if !approx(sugar.Used, 400) || sugar.Remaining != 0 || !sugar.WithinTolerance {
		t.Fatalf("sugar = %+v", sugar)
	}
	if sugar.TolerancePct != DefaultTolerancePct {
		t.Fatalf("sugar tolerance = %v, want default", sugar.TolerancePct)
	}

	pepper := byLine["l-pepper"]
	if !approx(pepper.Target, 80) || pepper.Remaining != 0 || !pepper.WithinTolerance {
		t.Fatalf("pepper = %+v, want within 10%% of 80", pepper)
	}

	soy := byLine["l-soy"]
	if soy.Actual == nil || !approx(*soy.Actual, 610) {
		t.Fatalf("soy actual = %v, want 610", soy.Actual)
	}
	if !approx(soy.Remaining, 600) || soy.WithinTolerance {
		t.Fatalf("soy = %+v, want nothing allocated", soy)
	}

	cure := byLine["l-cure"]
	wantCure := 150 * 11095 / 62500.0
	if !approx(cure.Target, wantCure) {
		t.Fatalf("cure target = %v, want %v", cure.Target, wantCure)
	}
	if cure.EffectivePpm == nil {
		t.Fatal("expected effective ppm for allocated cure")
	}

	if len(res.Extras) != 1 || res.Extras[0].MaterialName != "Liquid smoke" {
		t.Fatalf("Extras = %+v", res.Extras)
	}
	if !approx(res.Extras[0].Used, 50) || res.Extras[0].Unit != "mL" {
		t.Fatalf("extra usage = %v %s, want 50 mL", res.Extras[0].Used, res.Extras[0].Unit)
	}
}

func TestResolveWithoutRecipeReportsExtras(t *testing.T) {
	t.Parallel()

	res := Resolve(Input{
		Batch:       models.Batch{RawMaterialWeight: 5, RawMaterialUnit: "kg"},
		Allocations: []models.Allocation{{MaterialID: "salt", Quantity: 12, Unit: "g"}},
	})
	if len(res.Targets) != 0 {
		t.Fatalf("Targets = %v, want none", res.Targets)
	}
	if res.ScaleFactor != 1 {
		t.Fatalf("ScaleFactor = %v, want 1", res.ScaleFactor)
	}
	if len(res.Extras) != 1 || res.Extras[0].MaterialID != "salt" {
		t.Fatalf("Extras = %+v", res.Extras)
	}
}

func TestResolveUnknownCureFallsBackToScaledQuantity(t *testing.T) {
	t.Parallel()

	recipe := cureRecipe()
	recipe.Lines[1].CureType = "celery juice"
	res := Resolve(Input{
		Batch:  models.Batch{RawMaterialWeight: 10, RawMaterialUnit: "kg"},
		Recipe: recipe,
	})
	if got := res.Targets[1].Target; got != 25 {
		t.Fatalf("Target = %v, want scaled recipe quantity 25", got)
	}
}

type fakeSettings map[string]string

func (f fakeSettings) GetSetting(_ context.Context, key string) (string, error) {
	v, ok := f[key]
	if !ok {
		return "", store.ErrNotFound
	}
	return v, nil
}

type brokenSettings struct{}

func (brokenSettings) GetSetting(context.Context, string) (string, error) {
	return "", errors.New("db down")
}

func TestStoreSettings(t *testing.T) {
	t.Parallel()

	src := StoreSettings{
		Store:    fakeSettings{SettingPpmTarget: "140", SettingPpmMax: "not-a-number"},
		Fallback: CureSettings{PpmMin: 110},
	}
	got, err := src.CureSettings(context.Background())
	if err != nil {
		t.Fatalf("CureSettings() error = %v", err)
	}
	want := CureSettings{PpmMin: 110, PpmTarget: 140, PpmMax: 156}
	if got != want {
		t.Fatalf("CureSettings() = %+v, want %+v", got, want)
	}

	if _, err := (StoreSettings{Store: brokenSettings{}}).CureSettings(context.Background()); err == nil {
		t.Fatal("expected store error to propagate")
	}
}

func TestStaticSettingsAppliesDefaults(t *testing.T) {
	t.Parallel()

	got, _ := StaticSettings{PpmTarget: 130}.CureSettings(context.Background())
	if got.PpmTarget != 130 || got.PpmMin != 120 || got.PpmMax != 156 {
		t.Fatalf("CureSettings() = %+v", got)
	}
}
