package models

import "testing"

func TestMaterialCategoryHelpers(t *testing.T) {
	t.Parallel()

	cases := []struct {
		name     string
		material *Material
		wantCure bool
		wantBeef bool
	}{
		{"cure", &Material{Category: CategoryCure}, true, false},
		{"beef", &Material{Category: CategoryBeef}, false, true},
		{"seasoning", &Material{Category: CategorySeasoning}, false, false},
		{"nil", nil, false, false},
	}

	for _, tt := range cases {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			if got := tt.material.IsCure(); got != tt.wantCure {
				t.Fatalf("IsCure() = %t, want %t", got, tt.wantCure)
			}
			if got := tt.material.IsBeef(); got != tt.wantBeef {
				t.Fatalf("IsBeef() = %t, want %t", got, tt.wantBeef)
			}
		})
	}
}

func TestLotBeforeCreateDefaults(t *testing.T) {
	t.Parallel()

	lot := &Lot{}
	if err := lot.BeforeCreate(nil); err != nil {
		t.Fatalf("BeforeCreate returned error: %v", err)
	}
	if lot.ID == "" {
		t.Fatal("expected generated ID")
	}
	if lot.Status != LotStatusActive {
		t.Fatalf("Status = %q, want %q", lot.Status, LotStatusActive)
	}

	kept := &Lot{ID: "lot-1", Status: LotStatusRecalled}
	if err := kept.BeforeCreate(nil); err != nil {
		t.Fatalf("BeforeCreate returned error: %v", err)
	}
	if kept.ID != "lot-1" || kept.Status != LotStatusRecalled {
		t.Fatalf("BeforeCreate overwrote %+v", kept)
	}
}
