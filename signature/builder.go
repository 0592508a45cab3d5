package signature

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"strings"
	"unicode"
	"unicode/utf8"

	"github.com/jonwraymond/mealgen/constraint"
	"github.com/jonwraymond/mealgen/meal"
)

const (
	// FullDigestLength is the hex length of an untruncated SHA-256 digest.
	FullDigestLength = sha256.Size * 2

	// MinDigestLength keeps at least 128 bits of the digest.
	MinDigestLength = 32

	// ShortLength is the display prefix length used in logs.
	ShortLength = 16

	// canonicalVersion is bumped whenever the canonical layout changes, so old
	// entries stop matching instead of being misread.
	canonicalVersion = 1

	refreshSeparator = "|refresh:"
)

// Signature identifies a generation request.
type Signature struct {
	// Hash is the hex digest used as the lookup key.
	Hash string
	// Canonical is the payload the digest was computed from.
	Canonical string
}

// String returns the lookup key.
func (s Signature) String() string {
	return s.Hash
}

// Short returns a display prefix of the hash. Never use it as a key.
func (s Signature) Short() string {
	if len(s.Hash) <= ShortLength {
		return s.Hash
	}
	return s.Hash[:ShortLength]
}

// Refreshed derives the signature of an explicit force-refresh of s. The
// result never equals s, so the refreshed entry is stored alongside the
// original instead of replacing it.
func (s Signature) Refreshed(nonce string) Signature {
	canonical := s.Canonical + refreshSeparator + normalizeText(nonce)
	return Signature{
		Hash:      digest(canonical, len(s.Hash)),
		Canonical: canonical,
	}
}

// Options configures a Builder.
type Options struct {
	// DigestLength is the number of hex characters kept from the digest.
	// Zero or values above FullDigestLength keep the full digest; values
	// below MinDigestLength are raised to it.
	DigestLength int
}

// Builder builds signatures. It is stateless and safe for concurrent use.
type Builder struct {
	digestLength int
}

// NewBuilder creates a builder.
func NewBuilder(opts Options) *Builder {
	n := opts.DigestLength
	switch {
	case n <= 0 || n > FullDigestLength:
		n = FullDigestLength
	case n < MinDigestLength:
		n = MinDigestLength
	}
	return &Builder{digestLength: n}
}

// DigestLength returns the effective hex digest length.
func (b *Builder) DigestLength() int {
	return b.digestLength
}

type canonicalConstraints struct {
	Allergies      []string `json:"allergies"`
	Avoid          []string `json:"avoid"`
	Prefer         []string `json:"prefer"`
	Calories       int64    `json:"calories"`
	ProteinG       int64    `json:"protein_g"`
	CarbsG         int64    `json:"carbs_g"`
	FatG           int64    `json:"fat_g"`
	StarchyG       int64    `json:"starchy_g"`
	AddedSugarG    int64    `json:"added_sugar_g"`
	FibrousG       int64    `json:"fibrous_g"`
	StarchyCapG    *int64   `json:"starchy_cap_g"`
	AddedSugarCapG *int64   `json:"added_sugar_cap_g"`
	FibrousFloorG  *int64   `json:"fibrous_floor_g"`
}

type canonicalPayload struct {
	Version     int                  `json:"v"`
	MealType    string               `json:"meal_type"`
	Constraints canonicalConstraints `json:"constraints"`
	Params      json.RawMessage      `json:"params"`
}

// Build computes the signature for a constraint set, meal type and opaque
// request parameters. Params may be nil.
func (b *Builder) Build(cs constraint.ConstraintSet, mealType meal.Type, params map[string]any) (Signature, error) {
	mt, err := meal.ParseType(string(mealType))
	if err != nil {
		return Signature{}, err
	}

	cc, err := canonicalizeConstraints(cs)
	if err != nil {
		return Signature{}, err
	}

	normalized, err := normalizeValue(params)
	if err != nil {
		return Signature{}, err
	}
	if normalized == nil {
		normalized = map[string]any{}
	}
	rawParams, err := canonicalize(normalized)
	if err != nil {
		return Signature{}, fmt.Errorf("signature: failed to canonicalize params: %w", err)
	}

	payload, err := json.Marshal(canonicalPayload{
		Version:     canonicalVersion,
		MealType:    string(mt),
		Constraints: cc,
		Params:      rawParams,
	})
	if err != nil {
		return Signature{}, fmt.Errorf("signature: failed to encode payload: %w", err)
	}

	canonical := string(payload)
	return Signature{
		Hash:      digest(canonical, b.digestLength),
		Canonical: canonical,
	}, nil
}

func canonicalizeConstraints(cs constraint.ConstraintSet) (canonicalConstraints, error) {
	var (
		cc   canonicalConstraints
		errs []error
	)
	round := func(name string, v float64) int64 {
		n, err := roundWhole(v)
		if err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", name, err))
		}
		return n
	}
	roundPtr := func(name string, v *float64) *int64 {
		if v == nil {
			return nil
		}
		n := round(name, *v)
		return &n
	}

	cc.Allergies = normalizeSet(cs.Allergies)
	cc.Avoid = normalizeSet(cs.AvoidTags)
	cc.Prefer = normalizeSet(cs.PreferTags)
	cc.Calories = round("calories", cs.Targets.Calories)
	cc.ProteinG = round("protein_g", cs.Targets.ProteinG)
	cc.CarbsG = round("carbs_g", cs.Targets.CarbsG)
	cc.FatG = round("fat_g", cs.Targets.FatG)
	cc.StarchyG = round("starchy_g", cs.Carbs.StarchyG)
	cc.AddedSugarG = round("added_sugar_g", cs.Carbs.AddedSugarG)
	cc.FibrousG = round("fibrous_g", cs.Carbs.FibrousG)
	if d := cs.Directive; d != nil {
		cc.StarchyCapG = roundPtr("starchy_cap_g", d.StarchyCapG)
		cc.AddedSugarCapG = roundPtr("added_sugar_cap_g", d.AddedSugarCapG)
		cc.FibrousFloorG = roundPtr("fibrous_floor_g", d.FibrousFloorG)
	}

	if len(errs) > 0 {
		return canonicalConstraints{}, errs[0]
	}
	return cc, nil
}

func digest(canonical string, length int) string {
	sum := sha256.Sum256([]byte(canonical))
	return hex.EncodeToString(sum[:])[:length]
}

// normalizeText lower-cases s and collapses whitespace runs to a single
// space. Bytes that are not valid UTF-8 are written as \xNN and backslashes
// are doubled, so distinct raw inputs never share a canonical form.
func normalizeText(s string) string {
	s = strings.Join(strings.Fields(s), " ")

	var sb strings.Builder
	sb.Grow(len(s))
	for i := 0; i < len(s); {
		r, size := utf8.DecodeRuneInString(s[i:])
		switch {
		case r == utf8.RuneError && size == 1:
			fmt.Fprintf(&sb, `\x%02x`, s[i])
		case r == '\\':
			sb.WriteString(`\\`)
		default:
			sb.WriteRune(unicode.ToLower(r))
		}
		i += size
	}
	return sb.String()
}
