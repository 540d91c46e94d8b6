package mock

import (
	"context"
	"regexp"
	"time"

	"github.com/google/uuid"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"smokehouse/internal/db"
	applog "smokehouse/internal/log"
	"smokehouse/models"
)

// Identifiers of the seeded records.
const (
	SupplierMeatID  = "sup-prairie-ridge"
	SupplierSpiceID = "sup-harbor-spice"

	MaterialBeefID      = "mat-beef-eye-round"
	MaterialSoyID       = "mat-soy-sauce"
	MaterialWorcesterID = "mat-worcestershire"
	MaterialSugarID     = "mat-brown-sugar"
	MaterialPepperID    = "mat-black-pepper"
	MaterialCureID      = "mat-prague-powder-1"
	MaterialPouchID     = "mat-vacuum-pouch"
	MaterialSmokeID     = "mat-liquid-smoke"

	LotBeefID      = "lot-beef-2024-118"
	LotSoyID       = "lot-soy-2024-031"
	LotWorcesterID = "lot-worc-2024-007"
	LotSugarID     = "lot-sugar-2024-052"
	LotPepperID    = "lot-pepper-2024-019"
	LotCureID      = "lot-cure-2024-004"
	LotCureSpareID = "lot-cure-2024-011"
	LotPouchID     = "lot-pouch-2024-090"
	LotSmokeID     = "lot-smoke-2024-002"

	RecipeClassicID = "rec-classic-peppered"

	BatchInProgressID = "batch-jrk-0001"
	BatchPlannedID    = "batch-jrk-0002"
)

// New returns an in-memory sqlite database seeded with a representative smokehouse.
func New(ctx context.Context) (*gorm.DB, error) {
	applog.Debug(ctx, "initialising mock database")

	database, err := Open(ctx, "smokehouse-mock-"+uuid.NewString())
	if err != nil {
		return nil, err
	}

	if err := seed(ctx, database); err != nil {
		return nil, err
	}

	applog.Debug(ctx, "mock database ready")
	return database, nil
}

var unsafeName = regexp.MustCompile(`[^A-Za-z0-9_-]+`)

// Open returns an empty, migrated in-memory sqlite database. Handles opened with
// the same name share one database.
func Open(ctx context.Context, name string) (*gorm.DB, error) {
	dsn := "file:" + unsafeName.ReplaceAllString(name, "-") + "?mode=memory&cache=shared&_busy_timeout=5000"
	database, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger:                                   logger.Default.LogMode(logger.Silent),
		PrepareStmt:                              true,
		SkipDefaultTransaction:                   true,
		DisableForeignKeyConstraintWhenMigrating: true,
		NowFunc: func() time.Time {
			return time.Now().UTC()
		},
	})
	if err != nil {
		return nil, err
	}

	sqlDB, err := database.DB()
	if err != nil {
		return nil, err
	}
	// a single connection serialises writers; shared-cache sqlite rejects concurrent ones
	sqlDB.SetMaxOpenConns(1)

	if err := db.AutoMigrate(database.WithContext(ctx)); err != nil {
		return nil, err
	}
	return database, nil
}

func seed(ctx context.Context, database *gorm.DB) error {
	applog.Debug(ctx, "seeding mock database")
	tx := database.WithContext(ctx)

	received := time.Date(2024, time.March, 4, 7, 30, 0, 0, time.UTC)
	expires := received.AddDate(0, 6, 0)
	meatSupplier := SupplierMeatID
	spiceSupplier := SupplierSpiceID

	suppliers := []models.Supplier{
		{ID: SupplierMeatID, Name: "Prairie Ridge Meats", Contact: "orders@prairieridge.example"},
		{ID: SupplierSpiceID, Name: "Harbor Spice Co.", Contact: "+1 555 0142"},
	}
	if err := tx.Create(&suppliers).Error; err != nil {
		return err
	}

	materials := []models.Material{
		{ID: MaterialBeefID, Name: "Beef eye of round", Category: models.CategoryBeef, Unit: "kg"},
		{ID: MaterialSoyID, Name: "Soy sauce", Category: models.CategoryMarinade, Unit: "mL"},
		{ID: MaterialWorcesterID, Name: "Worcestershire sauce", Category: models.CategoryMarinade, Unit: "mL"},
		{ID: MaterialSugarID, Name: "Brown sugar", Category: models.CategorySeasoning, Unit: "g"},
		{ID: MaterialPepperID, Name: "Coarse black pepper", Category: models.CategorySeasoning, Unit: "g"},
		{ID: MaterialCureID, Name: "Prague Powder #1", Category: models.CategoryCure, Unit: "g"},
		{ID: MaterialPouchID, Name: "Vacuum pouch 250 g", Category: models.CategoryPackaging, Unit: "units"},
		{ID: MaterialSmokeID, Name: "Liquid smoke", Category: models.CategoryOther, Unit: "mL"},
	}
	if err := tx.Create(&materials).Error; err != nil {
		return err
	}

	lot := func(id, materialID, number string, supplier *string, qty float64, unit string) models.Lot {
		return models.Lot{
			ID:               id,
			MaterialID:       materialID,
			LotNumber:        number,
			InternalCode:     "IN-" + number,
			SupplierID:       supplier,
			ReceivedAt:       received,
			ExpiresAt:        &expires,
			ReceivedQuantity: qty,
			CurrentBalance:   qty,
			Unit:             unit,
		}
	}
	lots := []models.Lot{
		lot(LotBeefID, MaterialBeefID, "PR-24-118", &meatSupplier, 60, "kg"),
		lot(LotSoyID, MaterialSoyID, "HS-24-031", &spiceSupplier, 5, "L"),
		lot(LotWorcesterID, MaterialWorcesterID, "HS-24-007", &spiceSupplier, 2000, "mL"),
		lot(LotSugarID, MaterialSugarID, "HS-24-052", &spiceSupplier, 10, "kg"),
		lot(LotPepperID, MaterialPepperID, "HS-24-019", &spiceSupplier, 2000, "g"),
		lot(LotCureID, MaterialCureID, "HS-24-004", &spiceSupplier, 1000, "g"),
		lot(LotCureSpareID, MaterialCureID, "HS-24-011", &spiceSupplier, 500, "g"),
		lot(LotPouchID, MaterialPouchID, "PK-24-090", nil, 500, "units"),
		lot(LotSmokeID, MaterialSmokeID, "HS-24-002", &spiceSupplier, 1, "L"),
	}
	if err := tx.Create(&lots).Error; err != nil {
		return err
	}

	pepperTolerance := 10.0
	cureTolerance := 5.0
	recipe := models.Recipe{
		ID:         RecipeClassicID,
		Name:       "Classic Peppered Jerky",
		BaseWeight: 1000,
		BaseUnit:   "g",
		Lines: []models.RecipeIngredient{
			{MaterialID: MaterialSoyID, Position: 1, Quantity: 60, Unit: "mL"},
			{MaterialID: MaterialWorcesterID, Position: 2, Quantity: 30, Unit: "mL"},
			{MaterialID: MaterialSugarID, Position: 3, Quantity: 40, Unit: "g"},
			{MaterialID: MaterialPepperID, Position: 4, Quantity: 8, Unit: "g", TolerancePct: &pepperTolerance, IsCritical: true},
			{MaterialID: MaterialCureID, Position: 5, Quantity: 2.5, Unit: "g", TolerancePct: &cureTolerance, IsCritical: true, CureType: "Prague Powder #1"},
			{MaterialID: MaterialPouchID, Position: 6, Quantity: 4, Unit: "units"},
		},
	}
	if err := tx.Create(&recipe).Error; err != nil {
		return err
	}

	recipeID := RecipeClassicID
	batches := []models.Batch{
		{ID: BatchInProgressID, Code: "JRK-0001", RecipeID: &recipeID, RawMaterialWeight: 10, RawMaterialUnit: "kg", Status: models.BatchStatusInProgress},
		{ID: BatchPlannedID, Code: "JRK-0002", RecipeID: &recipeID, RawMaterialWeight: 4, RawMaterialUnit: "kg"},
	}
	if err := tx.Create(&batches).Error; err != nil {
		return err
	}

	actuals := []models.BatchActual{
		{BatchID: BatchInProgressID, MaterialID: MaterialSoyID, Quantity: 0.61, Unit: "L"},
	}
	if err := tx.Create(&actuals).Error; err != nil {
		return err
	}

	settings := []models.Setting{
		{Key: "cure.ppm_min", Value: "120"},
		{Key: "cure.ppm_target", Value: "150"},
		{Key: "cure.ppm_max", Value: "156"},
	}
	if err := tx.Create(&settings).Error; err != nil {
		return err
	}

	applog.Debug(ctx, "mock database seeded")
	return nil
}
