package signature

import (
	"bytes"
	"encoding/json"
	"fmt"
	"math"
	"reflect"
	"sort"

	"github.com/cockroachdb/apd/v3"
)

// roundContext rounds half away from zero. The precision comfortably covers
// any realistic gram or calorie value.
var roundContext = func() *apd.Context {
	c := apd.BaseContext.WithPrecision(40)
	c.Rounding = apd.RoundHalfUp
	return c
}()

// roundWhole rounds f to the nearest whole unit using decimal arithmetic, so
// that values like 0.5 round the same way regardless of binary representation.
func roundWhole(f float64) (int64, error) {
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return 0, fmt.Errorf("%w: non-finite number", ErrUnsupportedParam)
	}

	var d, out apd.Decimal
	if _, err := d.SetFloat64(f); err != nil {
		return 0, fmt.Errorf("%w: %v", ErrUnsupportedParam, err)
	}
	if _, err := roundContext.Quantize(&out, &d, 0); err != nil {
		return 0, fmt.Errorf("%w: %v", ErrUnsupportedParam, err)
	}
	n, err := out.Int64()
	if err != nil {
		return 0, fmt.Errorf("%w: %v", ErrUnsupportedParam, err)
	}
	return n, nil
}

// normalizeSet lower-cases, trims, de-duplicates and sorts tokens. Empty
// tokens are dropped. The result is never nil.
func normalizeSet(in []string) []string {
	seen := make(map[string]struct{}, len(in))
	out := make([]string, 0, len(in))
	for _, s := range in {
		n := normalizeText(s)
		if n == "" {
			continue
		}
		if _, dup := seen[n]; dup {
			continue
		}
		seen[n] = struct{}{}
		out = append(out, n)
	}
	sort.Strings(out)
	return out
}

// normalizeValue rewrites an opaque parameter value into a tree of
// map[string]any, []any, []string, string, bool, int64, uint64 and nil.
// Lists made only of strings are treated as sets.
func normalizeValue(v any) (any, error) {
	switch val := v.(type) {
	case nil:
		return nil, nil
	case string:
		return normalizeText(val), nil
	case bool:
		return val, nil
	case float64:
		return roundWhole(val)
	case float32:
		return roundWhole(float64(val))
	case int:
		return int64(val), nil
	case int8:
		return int64(val), nil
	case int16:
		return int64(val), nil
	case int32:
		return int64(val), nil
	case int64:
		return val, nil
	case uint:
		return uint64(val), nil
	case uint8:
		return uint64(val), nil
	case uint16:
		return uint64(val), nil
	case uint32:
		return uint64(val), nil
	case uint64:
		return val, nil
	case json.Number:
		if n, err := val.Int64(); err == nil {
			return n, nil
		}
		f, err := val.Float64()
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrUnsupportedParam, err)
		}
		return roundWhole(f)
	case []string:
		return normalizeSet(val), nil
	case []any:
		return normalizeList(val)
	case map[string]any:
		return normalizeMap(val)
	case map[string]string:
		m := make(map[string]any, len(val))
		for k, s := range val {
			m[k] = s
		}
		return normalizeMap(m)
	}

	switch reflect.ValueOf(v).Kind() {
	case reflect.Func, reflect.Chan, reflect.UnsafePointer, reflect.Complex64, reflect.Complex128:
		return nil, fmt.Errorf("%w: %T", ErrUnsupportedParam, v)
	}

	// Structs and other composite values go through their JSON form.
	data, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("%w: %T: %v", ErrUnsupportedParam, v, err)
	}
	var generic any
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()
	if err := dec.Decode(&generic); err != nil {
		return nil, fmt.Errorf("%w: %T: %v", ErrUnsupportedParam, v, err)
	}
	return normalizeValue(generic)
}

func normalizeList(in []any) (any, error) {
	allStrings := len(in) > 0
	for _, e := range in {
		if _, ok := e.(string); !ok {
			allStrings = false
			break
		}
	}
	if allStrings {
		strs := make([]string, len(in))
		for i, e := range in {
			strs[i] = e.(string)
		}
		return normalizeSet(strs), nil
	}

	out := make([]any, len(in))
	for i, e := range in {
		n, err := normalizeValue(e)
		if err != nil {
			return nil, err
		}
		out[i] = n
	}
	return out, nil
}

func normalizeMap(in map[string]any) (map[string]any, error) {
	out := make(map[string]any, len(in))
	for k, v := range in {
		nk := normalizeText(k)
		if _, dup := out[nk]; dup {
			return nil, fmt.Errorf("%w: %q", ErrKeyCollision, nk)
		}
		nv, err := normalizeValue(v)
		if err != nil {
			return nil, fmt.Errorf("param %q: %w", nk, err)
		}
		out[nk] = nv
	}
	return out, nil
}
