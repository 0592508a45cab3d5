package mealgen

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"golang.org/x/sync/singleflight"

	"github.com/jonwraymond/mealgen/budget"
	"github.com/jonwraymond/mealgen/constraint"
	"github.com/jonwraymond/mealgen/generation"
	"github.com/jonwraymond/mealgen/meal"
	"github.com/jonwraymond/mealgen/observe"
	"github.com/jonwraymond/mealgen/signature"
	"github.com/jonwraymond/mealgen/store"
)

// Request is a meal generation request.
type Request struct {
	UserID   string
	MealType meal.Type
	Params   map[string]any

	// RefreshNonce forces a new generation stored under a refreshed
	// signature. The original entry is left untouched.
	RefreshNonce string
}

// Result is the outcome of a successful request.
type Result struct {
	// Entry is a copy of the cache entry serving the request.
	Entry *store.Entry

	// Cached reports that the entry already existed and no generation
	// ran on behalf of this request.
	Cached bool

	// DefaultConstraints reports that the user had no profile and the
	// default constraint set was used.
	DefaultConstraints bool

	Signature signature.Signature
}

// Options configures a Service.
type Options struct {
	Profiles  constraint.ProfileStore
	Store     store.Store
	Guard     *budget.Guard
	Generator generation.Generator

	// Builder defaults to a full-digest signature builder.
	Builder *signature.Builder

	// Middleware defaults to observe.NopMiddleware().
	Middleware *observe.Middleware
}

// Service resolves generation requests.
//
// Contract:
//   - Concurrency: safe for concurrent use.
//   - Context: cancelling a caller's context abandons the wait only; a
//     generation already started completes and is cached.
//   - Errors: *budget.ExceededError on rejection, *GenerationError on
//     generator failure.
type Service struct {
	deriver   *constraint.Deriver
	builder   *signature.Builder
	store     store.Store
	guard     *budget.Guard
	generator generation.Generator
	mw        *observe.Middleware
	flights   singleflight.Group
}

// NewService creates a Service.
func NewService(opts Options) (*Service, error) {
	switch {
	case opts.Profiles == nil:
		return nil, fmt.Errorf("%w: profile store", ErrMissingDependency)
	case opts.Store == nil:
		return nil, fmt.Errorf("%w: cache store", ErrMissingDependency)
	case opts.Guard == nil:
		return nil, fmt.Errorf("%w: budget guard", ErrMissingDependency)
	case opts.Generator == nil:
		return nil, fmt.Errorf("%w: generator", ErrMissingDependency)
	}
	builder := opts.Builder
	if builder == nil {
		builder = signature.NewBuilder(signature.Options{})
	}
	mw := opts.Middleware
	if mw == nil {
		mw = observe.NopMiddleware()
	}
	return &Service{
		deriver:   constraint.NewDeriver(opts.Profiles),
		builder:   builder,
		store:     opts.Store,
		guard:     opts.Guard,
		generator: opts.Generator,
		mw:        mw,
	}, nil
}

// flight is the shared outcome of one signature's generation.
type flight struct {
	entry    *store.Entry
	existing bool
}

type flightInput struct {
	constraints constraint.ConstraintSet
	mealType    meal.Type
	params      map[string]any
	sig         signature.Signature
	meta        observe.RequestMeta
}

// Generate resolves req from the cache, generating on a miss.
func (s *Service) Generate(ctx context.Context, req Request) (result *Result, err error) {
	mt, err := meal.ParseType(string(req.MealType))
	if err != nil {
		return nil, err
	}

	cs, fallback, err := s.deriver.DeriveOrDefault(ctx, req.UserID)
	if err != nil {
		return nil, err
	}

	sig, err := s.builder.Build(cs, mt, req.Params)
	if err != nil {
		return nil, err
	}
	if req.RefreshNonce != "" {
		sig = sig.Refreshed(req.RefreshNonce)
	}

	meta := observe.RequestMeta{
		UserID:    req.UserID,
		MealType:  mt.String(),
		Signature: sig.Short(),
	}
	tracer := s.mw.Tracer()
	ctx, span := tracer.StartSpan(ctx, observe.SpanGenerate, meta)
	defer func() { tracer.EndSpan(span, err) }()

	entry, ok, err := s.store.Lookup(ctx, sig.Hash, mt)
	if err != nil {
		return nil, fmt.Errorf("mealgen: lookup: %w", err)
	}
	s.mw.Metrics().RecordLookup(ctx, meta, ok)
	if ok {
		s.mw.Logger().Debug(ctx, "cache hit", meta.LogFields()...)
		return &Result{Entry: entry, Cached: true, DefaultConstraints: fallback, Signature: sig}, nil
	}

	if err := s.guard.Admit(req.UserID); err != nil {
		s.reject(ctx, meta, err)
		return nil, err
	}

	in := flightInput{constraints: cs, mealType: mt, params: req.Params, sig: sig, meta: meta}
	flightCtx := context.WithoutCancel(ctx)
	ch := s.flights.DoChan(flightKey(sig.Hash, mt), func() (any, error) {
		return s.runFlight(flightCtx, in)
	})

	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case res := <-ch:
		if res.Err != nil {
			return nil, res.Err
		}
		f := res.Val.(*flight)
		return &Result{
			Entry:              f.entry.Clone(),
			Cached:             f.existing,
			DefaultConstraints: fallback,
			Signature:          sig,
		}, nil
	}
}

func (s *Service) reject(ctx context.Context, meta observe.RequestMeta, err error) {
	scope := "unknown"
	var exceeded *budget.ExceededError
	if errors.As(err, &exceeded) {
		scope = string(exceeded.Scope)
	}
	s.mw.Metrics().RecordRejection(ctx, meta, scope)
	s.mw.Logger().Warn(ctx, "generation rejected", append(meta.LogFields(), observe.F("budget.scope", scope))...)
}

// runFlight executes once per signature among concurrent callers. It runs on
// a context detached from any single caller.
func (s *Service) runFlight(ctx context.Context, in flightInput) (*flight, error) {
	// Another process or an earlier flight may have filled the entry.
	entry, ok, err := s.store.Lookup(ctx, in.sig.Hash, in.mealType)
	if err != nil {
		return nil, fmt.Errorf("mealgen: lookup: %w", err)
	}
	if ok {
		return &flight{entry: entry, existing: true}, nil
	}

	meta := in.meta
	meta.RunID = uuid.NewString()

	var out generation.Output
	err = s.mw.Run(ctx, meta, func(ctx context.Context) (err error) {
		// A panic here would escape the single-flight goroutine and end
		// the process.
		defer func() {
			if r := recover(); r != nil {
				err = generation.Recovered(r)
			}
		}()
		o, err := s.generator.Generate(ctx, generation.Request{
			Constraints: in.constraints,
			MealType:    in.mealType,
			Params:      in.params,
			RunID:       meta.RunID,
		})
		if err != nil {
			return err
		}
		out = o
		return nil
	})
	if err != nil {
		return nil, &GenerationError{Err: err}
	}

	entry, err = s.store.Insert(ctx, store.Record{
		Signature: in.sig,
		MealType:  in.mealType,
		Source:    store.SourceAI,
		Payload:   out.Payload,
		Macros:    out.Macros,
	})
	switch {
	case err == nil:
		return &flight{entry: entry}, nil
	case errors.Is(err, store.ErrDuplicateSignature):
		return s.resolveDuplicate(ctx, in, meta)
	case errors.Is(err, store.ErrInvalidRecord):
		return nil, &GenerationError{Err: err}
	default:
		return nil, fmt.Errorf("mealgen: insert: %w", err)
	}
}

// resolveDuplicate discards this flight's output in favour of the entry a
// concurrent writer stored first.
func (s *Service) resolveDuplicate(ctx context.Context, in flightInput, meta observe.RequestMeta) (*flight, error) {
	s.mw.Metrics().RecordDuplicate(ctx, meta)
	s.mw.Logger().Info(ctx, "discarding duplicate generation", meta.LogFields()...)

	entry, ok, err := s.store.Lookup(ctx, in.sig.Hash, in.mealType)
	if err != nil {
		return nil, fmt.Errorf("mealgen: lookup after duplicate: %w", err)
	}
	if !ok {
		return nil, fmt.Errorf("mealgen: entry %s missing after duplicate insert", in.sig.Short())
	}
	return &flight{entry: entry, existing: true}, nil
}

// SeedRequest pre-populates the cache with a curated meal.
type SeedRequest struct {
	UserID   string
	MealType meal.Type
	Params   map[string]any
	Payload  []byte
	Macros   meal.Macros
}

// Seed stores a curated entry under the signature req would resolve to. It
// neither consumes budget nor calls the generator. An existing entry yields
// store.ErrDuplicateSignature.
func (s *Service) Seed(ctx context.Context, req SeedRequest) (*store.Entry, error) {
	mt, err := meal.ParseType(string(req.MealType))
	if err != nil {
		return nil, err
	}
	cs, _, err := s.deriver.DeriveOrDefault(ctx, req.UserID)
	if err != nil {
		return nil, err
	}
	sig, err := s.builder.Build(cs, mt, req.Params)
	if err != nil {
		return nil, err
	}
	return s.store.Insert(ctx, store.Record{
		Signature: sig,
		MealType:  mt,
		Source:    store.SourceSeed,
		Payload:   req.Payload,
		Macros:    req.Macros,
	})
}

func flightKey(hash string, mealType meal.Type) string {
	return hash + "\x00" + string(mealType)
}
