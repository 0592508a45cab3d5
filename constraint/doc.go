// Package constraint derives the normalized dietary constraints used both as
// generation input and as signature material.
//
// A ConstraintSet is recomputed from the user's stored profile on every
// request. Carb directives are applied by clamping: caps first, then the
// fibrous floor, so the floor can only raise a value.
//
// Users without a stored profile get Default() through DeriveOrDefault, which
// keeps the generation pipeline available for first-time users.
package constraint
