// Package units converts quantities between the mass, volume and count units used
// on lots, recipe lines and allocations.
//
// Convert is deliberately permissive: converting across families (mass to volume)
// or from an unknown unit returns the value unchanged. ConvertStrict reports the
// mismatch instead and is used when strict unit handling is enabled.
package units

import (
	"errors"
	"fmt"
	"strings"
)

const (
	Gram       = "g"
	Kilogram   = "kg"
	Milliliter = "mL"
	Liter      = "L"
	Count      = "units"
)

type Family string

const (
	FamilyUnknown Family = ""
	FamilyMass    Family = "mass"
	FamilyVolume  Family = "volume"
	FamilyCount   Family = "count"
)

// ErrIncompatible is returned by ConvertStrict when the units belong to different
// families or are not recognised.
var ErrIncompatible = errors.New("units: incompatible units")

type unitInfo struct {
	canonical string
	family    Family
	// factor converts one of this unit into the family base unit.
	factor float64
}

var known = map[string]unitInfo{
	"g":           {Gram, FamilyMass, 1},
	"gram":        {Gram, FamilyMass, 1},
	"grams":       {Gram, FamilyMass, 1},
	"gr":          {Gram, FamilyMass, 1},
	"kg":          {Kilogram, FamilyMass, 1000},
	"kgs":         {Kilogram, FamilyMass, 1000},
	"kilogram":    {Kilogram, FamilyMass, 1000},
	"kilograms":   {Kilogram, FamilyMass, 1000},
	"ml":          {Milliliter, FamilyVolume, 1},
	"milliliter":  {Milliliter, FamilyVolume, 1},
	"milliliters": {Milliliter, FamilyVolume, 1},
	"millilitre":  {Milliliter, FamilyVolume, 1},
	"millilitres": {Milliliter, FamilyVolume, 1},
	"l":           {Liter, FamilyVolume, 1000},
	"liter":       {Liter, FamilyVolume, 1000},
	"liters":      {Liter, FamilyVolume, 1000},
	"litre":       {Liter, FamilyVolume, 1000},
	"litres":      {Liter, FamilyVolume, 1000},
	"units":       {Count, FamilyCount, 1},
	"unit":        {Count, FamilyCount, 1},
	"count":       {Count, FamilyCount, 1},
	"pcs":         {Count, FamilyCount, 1},
	"pc":          {Count, FamilyCount, 1},
	"ea":          {Count, FamilyCount, 1},
}

func lookup(unit string) (unitInfo, bool) {
	info, ok := known[strings.ToLower(strings.TrimSpace(unit))]
	return info, ok
}

// Normalize returns the canonical spelling of unit, or the trimmed input when the
// unit is not recognised.
func Normalize(unit string) string {
	if info, ok := lookup(unit); ok {
		return info.canonical
	}
	return strings.TrimSpace(unit)
}

// FamilyOf reports the family of unit, FamilyUnknown when not recognised.
func FamilyOf(unit string) Family {
	if info, ok := lookup(unit); ok {
		return info.family
	}
	return FamilyUnknown
}

// Compatible reports whether a quantity in from can be expressed in to.
func Compatible(from, to string) bool {
	a, okA := lookup(from)
	b, okB := lookup(to)
	return okA && okB && a.family == b.family
}

// Convert maps value from one unit to another within the same family. Mismatched
// or unknown units are a no-op: the input value is returned unchanged.
func Convert(value float64, from, to string) float64 {
	converted, err := ConvertStrict(value, from, to)
	if err != nil {
		return value
	}
	return converted
}

// ConvertStrict is Convert without the permissive fallback.
func ConvertStrict(value float64, from, to string) (float64, error) {
	a, okA := lookup(from)
	b, okB := lookup(to)
	if !okA || !okB || a.family != b.family {
		return value, fmt.Errorf("%w: %q to %q", ErrIncompatible, from, to)
	}
	if a.factor == b.factor {
		return value, nil
	}
	return value * a.factor / b.factor, nil
}

// BaseUnit returns the smallest unit of the family: g, mL or units.
func BaseUnit(unit string) string {
	switch FamilyOf(unit) {
	case FamilyMass:
		return Gram
	case FamilyVolume:
		return Milliliter
	case FamilyCount:
		return Count
	default:
		return Normalize(unit)
	}
}

// ToBase converts value into the base unit of its family and returns both.
func ToBase(value float64, unit string) (float64, string) {
	base := BaseUnit(unit)
	return Convert(value, unit, base), base
}

// ToGrams converts a mass quantity to grams. Volume quantities are treated as
// grams, assuming a density of 1 g/mL. Count and unknown units report false.
func ToGrams(value float64, unit string) (float64, bool) {
	switch FamilyOf(unit) {
	case FamilyMass:
		return Convert(value, unit, Gram), true
	case FamilyVolume:
		return Convert(value, unit, Milliliter), true
	default:
		return 0, false
	}
}
