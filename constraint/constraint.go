package constraint

import (
	"fmt"

	"github.com/jonwraymond/mealgen/meal"
)

// CarbBreakdown splits the carb target into the categories a directive can
// address.
type CarbBreakdown struct {
	StarchyG    float64 `json:"starchy_g"`
	AddedSugarG float64 `json:"added_sugar_g"`
	FibrousG    float64 `json:"fibrous_g"`
}

// CarbDirective holds optional caps and a floor for carb categories.
// A nil field means the directive does not address that category.
type CarbDirective struct {
	StarchyCapG    *float64 `json:"starchy_cap_g,omitempty"`
	AddedSugarCapG *float64 `json:"added_sugar_cap_g,omitempty"`
	FibrousFloorG  *float64 `json:"fibrous_floor_g,omitempty"`
}

// Profile is the stored dietary profile of a user.
type Profile struct {
	UserID     string         `json:"user_id"`
	Allergies  []string       `json:"allergies,omitempty"`
	AvoidTags  []string       `json:"avoid_tags,omitempty"`
	PreferTags []string       `json:"prefer_tags,omitempty"`
	Targets    meal.Macros    `json:"targets"`
	Carbs      CarbBreakdown  `json:"carbs"`
	Directive  *CarbDirective `json:"directive,omitempty"`
}

// ConstraintSet is the derived input to signature building and generation.
type ConstraintSet struct {
	Allergies  []string
	AvoidTags  []string
	PreferTags []string
	Targets    meal.Macros
	Carbs      CarbBreakdown
	Directive  *CarbDirective
}

// Default macro targets used when a user has no stored profile.
const (
	DefaultCalories = 2000
	DefaultProteinG = 120
	DefaultCarbsG   = 200
	DefaultFatG     = 67
)

// Default returns the constraint set used for users without a profile.
func Default() ConstraintSet {
	return ConstraintSet{
		Allergies:  []string{},
		AvoidTags:  []string{},
		PreferTags: []string{},
		Targets: meal.Macros{
			Calories: DefaultCalories,
			ProteinG: DefaultProteinG,
			CarbsG:   DefaultCarbsG,
			FatG:     DefaultFatG,
		},
	}
}

// Validate checks the non-negative invariants of a profile.
func (p *Profile) Validate() error {
	if !p.Targets.NonNegative() {
		return fmt.Errorf("%w: macro targets must be non-negative", ErrInvalidProfile)
	}
	c := p.Carbs
	if c.StarchyG < 0 || c.AddedSugarG < 0 || c.FibrousG < 0 {
		return fmt.Errorf("%w: carb breakdown must be non-negative", ErrInvalidProfile)
	}
	if d := p.Directive; d != nil {
		for name, v := range map[string]*float64{
			"starchy cap":     d.StarchyCapG,
			"added sugar cap": d.AddedSugarCapG,
			"fibrous floor":   d.FibrousFloorG,
		} {
			if v != nil && *v < 0 {
				return fmt.Errorf("%w: %s must be non-negative", ErrInvalidProfile, name)
			}
		}
	}
	return nil
}

// Apply clamps a carb breakdown to the directive.
// Caps are applied before the floor.
func (d *CarbDirective) Apply(c CarbBreakdown) CarbBreakdown {
	if d == nil {
		return c
	}
	if d.StarchyCapG != nil && c.StarchyG > *d.StarchyCapG {
		c.StarchyG = *d.StarchyCapG
	}
	if d.AddedSugarCapG != nil && c.AddedSugarG > *d.AddedSugarCapG {
		c.AddedSugarG = *d.AddedSugarCapG
	}
	if d.FibrousFloorG != nil && c.FibrousG < *d.FibrousFloorG {
		c.FibrousG = *d.FibrousFloorG
	}
	return c
}

func (d *CarbDirective) clone() *CarbDirective {
	if d == nil {
		return nil
	}
	out := &CarbDirective{}
	if d.StarchyCapG != nil {
		v := *d.StarchyCapG
		out.StarchyCapG = &v
	}
	if d.AddedSugarCapG != nil {
		v := *d.AddedSugarCapG
		out.AddedSugarCapG = &v
	}
	if d.FibrousFloorG != nil {
		v := *d.FibrousFloorG
		out.FibrousFloorG = &v
	}
	return out
}

func cloneStrings(s []string) []string {
	out := make([]string, len(s))
	copy(out, s)
	return out
}
