package constraint

import (
	"context"
	"errors"
	"fmt"
)

// ProfileStore loads stored dietary profiles.
//
// Contract:
// - Concurrency: implementations must be safe for concurrent use.
// - Errors: GetProfile returns an error matching ErrProfileNotFound when the
//   user has no profile.
type ProfileStore interface {
	GetProfile(ctx context.Context, userID string) (*Profile, error)
}

// Deriver builds ConstraintSets from stored profiles.
type Deriver struct {
	profiles ProfileStore
}

// NewDeriver creates a deriver reading from the given profile store.
func NewDeriver(profiles ProfileStore) *Deriver {
	return &Deriver{profiles: profiles}
}

// Derive returns the constraint set for a user with the carb directive applied.
func (d *Deriver) Derive(ctx context.Context, userID string) (ConstraintSet, error) {
	if userID == "" {
		return ConstraintSet{}, ErrEmptyUserID
	}

	p, err := d.profiles.GetProfile(ctx, userID)
	if err != nil {
		return ConstraintSet{}, err
	}
	if p == nil {
		return ConstraintSet{}, fmt.Errorf("%w: %s", ErrProfileNotFound, userID)
	}
	if err := p.Validate(); err != nil {
		return ConstraintSet{}, err
	}

	return ConstraintSet{
		Allergies:  cloneStrings(p.Allergies),
		AvoidTags:  cloneStrings(p.AvoidTags),
		PreferTags: cloneStrings(p.PreferTags),
		Targets:    p.Targets,
		Carbs:      p.Directive.Apply(p.Carbs),
		Directive:  p.Directive.clone(),
	}, nil
}

// DeriveOrDefault is Derive with a fallback to Default() for users without a
// profile. The boolean reports whether the fallback was used.
func (d *Deriver) DeriveOrDefault(ctx context.Context, userID string) (ConstraintSet, bool, error) {
	cs, err := d.Derive(ctx, userID)
	if errors.Is(err, ErrProfileNotFound) {
		return Default(), true, nil
	}
	if err != nil {
		return ConstraintSet{}, false, err
	}
	return cs, false, nil
}
