package targets

import (
	"context"
	"errors"
	"strconv"
	"strings"

	"smokehouse/internal/store"
)

const (
	CureOne         = "cure_1"
	CureTwo         = "cure_2"
	CureTenderQuick = "tender_quick"
)

// activePercent is the sodium nitrite share of each curing agent, in percent.
var activePercent = map[string]float64{
	CureOne:         6.25,
	CureTwo:         6.25,
	CureTenderQuick: 0.5,
}

var cureAliases = map[string]string{
	"cure_1":              CureOne,
	"cure 1":              CureOne,
	"cure #1":             CureOne,
	"cure1":               CureOne,
	"prague powder #1":    CureOne,
	"prague powder 1":     CureOne,
	"prague_powder_1":     CureOne,
	"pink curing salt #1": CureOne,
	"pink curing salt 1":  CureOne,
	"insta cure 1":        CureOne,
	"insta cure #1":       CureOne,
	"cure_2":              CureTwo,
	"cure 2":              CureTwo,
	"cure #2":             CureTwo,
	"cure2":               CureTwo,
	"prague powder #2":    CureTwo,
	"prague powder 2":     CureTwo,
	"prague_powder_2":     CureTwo,
	"pink curing salt #2": CureTwo,
	"pink curing salt 2":  CureTwo,
	"insta cure 2":        CureTwo,
	"insta cure #2":       CureTwo,
	"tender_quick":        CureTenderQuick,
	"tender quick":        CureTenderQuick,
	"tenderquick":         CureTenderQuick,
	"morton tender quick": CureTenderQuick,
}

// NormalizeCureType maps a free-form cure name onto a known key.
func NormalizeCureType(cureType string) (string, bool) {
	key, ok := cureAliases[strings.ToLower(strings.TrimSpace(cureType))]
	return key, ok
}

// ActiveFraction returns the nitrite fraction (0..1) of the named cure.
func ActiveFraction(cureType string) (float64, bool) {
	key, ok := NormalizeCureType(cureType)
	if !ok {
		return 0, false
	}
	return activePercent[key] / 100, true
}

// RequiredCureMass returns the grams of curing agent needed to reach ppm nitrite
// in baseGrams of product.
func RequiredCureMass(baseGrams float64, cureType string, ppm float64) (float64, bool) {
	if !positive(baseGrams) || !positive(ppm) {
		return 0, false
	}
	fraction, ok := ActiveFraction(cureType)
	if !ok {
		return 0, false
	}
	return ppm * baseGrams / (fraction * 1_000_000), true
}

// EffectivePpm is the inverse of RequiredCureMass for an amount actually used.
func EffectivePpm(cureGrams, baseGrams float64, cureType string) (float64, bool) {
	if !positive(baseGrams) || cureGrams < 0 {
		return 0, false
	}
	fraction, ok := ActiveFraction(cureType)
	if !ok {
		return 0, false
	}
	return cureGrams * fraction * 1_000_000 / baseGrams, true
}

// CureSettings is the nitrite band targets are dosed against.
type CureSettings struct {
	PpmMin    float64 `json:"ppm_min"`
	PpmTarget float64 `json:"ppm_target"`
	PpmMax    float64 `json:"ppm_max"`
}

func DefaultCureSettings() CureSettings {
	return CureSettings{PpmMin: 120, PpmTarget: 150, PpmMax: 156}
}

// withDefaults replaces unusable values with the defaults.
func (c CureSettings) withDefaults() CureSettings {
	def := DefaultCureSettings()
	if !positive(c.PpmMin) {
		c.PpmMin = def.PpmMin
	}
	if !positive(c.PpmTarget) {
		c.PpmTarget = def.PpmTarget
	}
	if !positive(c.PpmMax) {
		c.PpmMax = def.PpmMax
	}
	return c
}

// SettingsSource supplies cure settings once per resolution.
type SettingsSource interface {
	CureSettings(ctx context.Context) (CureSettings, error)
}

// StaticSettings serves a fixed configuration.
type StaticSettings CureSettings

func (s StaticSettings) CureSettings(context.Context) (CureSettings, error) {
	return CureSettings(s).withDefaults(), nil
}

const (
	SettingPpmMin    = "cure.ppm_min"
	SettingPpmTarget = "cure.ppm_target"
	SettingPpmMax    = "cure.ppm_max"
)

type settingGetter interface {
	GetSetting(ctx context.Context, key string) (string, error)
}

// StoreSettings reads the ppm band from the settings table, falling back to
// Fallback for keys that are missing or unparsable.
type StoreSettings struct {
	Store    settingGetter
	Fallback CureSettings
}

func (s StoreSettings) CureSettings(ctx context.Context) (CureSettings, error) {
	out := s.Fallback.withDefaults()
	if s.Store == nil {
		return out, nil
	}
	fields := []struct {
		key string
		dst *float64
	}{
		{SettingPpmMin, &out.PpmMin},
		{SettingPpmTarget, &out.PpmTarget},
		{SettingPpmMax, &out.PpmMax},
	}
	for _, f := range fields {
		raw, err := s.Store.GetSetting(ctx, f.key)
		if errors.Is(err, store.ErrNotFound) {
			continue
		}
		if err != nil {
			return out, err
		}
		if v, err := strconv.ParseFloat(strings.TrimSpace(raw), 64); err == nil && positive(v) {
			*f.dst = v
		}
	}
	return out, nil
}
