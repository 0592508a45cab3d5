// Package meal holds the vocabulary shared by the generation cache packages:
// the meal slot enum and the macro snapshot attached to every generated meal.
package meal

import (
	"errors"
	"fmt"
	"strings"
)

// ErrUnknownType is returned when a meal type is not one of the known slots.
var ErrUnknownType = errors.New("meal: unknown meal type")

// Type is a meal slot.
type Type string

const (
	Breakfast Type = "breakfast"
	Lunch     Type = "lunch"
	Dinner    Type = "dinner"
	Snack     Type = "snack"
)

// Types lists every valid meal type.
var Types = []Type{Breakfast, Lunch, Dinner, Snack}

// ParseType parses a meal type, ignoring case and surrounding whitespace.
func ParseType(s string) (Type, error) {
	t := Type(strings.ToLower(strings.TrimSpace(s)))
	if !t.Valid() {
		return "", fmt.Errorf("%w: %q", ErrUnknownType, s)
	}
	return t, nil
}

// Valid reports whether t is a known meal type.
func (t Type) Valid() bool {
	switch t {
	case Breakfast, Lunch, Dinner, Snack:
		return true
	}
	return false
}

func (t Type) String() string {
	return string(t)
}

// Macros is a macro-nutrient snapshot. All values are non-negative.
type Macros struct {
	Calories float64 `json:"calories"`
	ProteinG float64 `json:"protein_g"`
	CarbsG   float64 `json:"carbs_g"`
	FatG     float64 `json:"fat_g"`
}

// NonNegative reports whether every field is >= 0.
func (m Macros) NonNegative() bool {
	return m.Calories >= 0 && m.ProteinG >= 0 && m.CarbsG >= 0 && m.FatG >= 0
}
