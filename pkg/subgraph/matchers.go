package subgraph

import (
	"encoding/json"
	"fmt"
	"math"
	"reflect"
	"strings"

	"github.com/orneryd/ideagraph/pkg/storage"
)

// Matcher is the closed set of comparisons a vertex can apply to candidates.
type Matcher int

const (
	// MatchID accepts exactly one idea, by id.
	MatchID Matcher = iota + 1
	// MatchFiller accepts anything; it names an unconstrained slot.
	MatchFiller
	// MatchExact requires structural equality with the match data.
	MatchExact
	// MatchSimilar requires every key of the match data to be present
	// with an equal value.
	MatchSimilar
	// MatchSubstring requires a string (optionally at a dot path) to
	// contain the match value, ignoring case.
	MatchSubstring
)

var matcherNames = map[Matcher]string{
	MatchID:        "id",
	MatchFiller:    "filler",
	MatchExact:     "exact",
	MatchSimilar:   "similar",
	MatchSubstring: "substring",
}

// String returns the serialized name of the matcher.
func (m Matcher) String() string {
	if name, ok := matcherNames[m]; ok {
		return name
	}
	return fmt.Sprintf("Matcher(%d)", int(m))
}

// Valid reports whether m is one of the known matchers.
func (m Matcher) Valid() bool {
	_, ok := matcherNames[m]
	return ok
}

// ParseMatcher returns the matcher with the given serialized name.
func ParseMatcher(name string) (Matcher, error) {
	for m, n := range matcherNames {
		if n == name {
			return m, nil
		}
	}
	return 0, fmt.Errorf("%w: %q", ErrInvalidMatcher, name)
}

// Matches applies the matcher's predicate. For MatchID the candidate is the
// idea id; for every other matcher it is the idea's data.
func (m Matcher) Matches(candidate, spec any) bool {
	switch m {
	case MatchID:
		return MatchesID(candidate, spec)
	case MatchFiller:
		return Filler(candidate, spec)
	case MatchExact:
		return Exact(candidate, spec)
	case MatchSimilar:
		return Similar(candidate, spec)
	case MatchSubstring:
		return Substring(candidate, spec)
	default:
		return false
	}
}

// needsData reports whether the predicate looks at the candidate's data.
func (m Matcher) needsData() bool {
	return m == MatchExact || m == MatchSimilar || m == MatchSubstring
}

// MatchesID is true iff the candidate id equals want.
func MatchesID(candidate, want any) bool {
	c, ok := toIdeaID(candidate)
	if !ok {
		return false
	}
	w, ok := toIdeaID(want)
	return ok && c == w
}

// Filler always matches.
func Filler(any, any) bool { return true }

// Exact is structural deep equality.
func Exact(data, spec any) bool {
	return Equal(data, spec)
}

// Similar is true iff every key in spec is present in data with an equal
// value. A spec without keys matches anything. Non-map specs fall back to
// Exact. data is never modified.
func Similar(data, spec any) bool {
	s, ok := native(spec).(map[string]any)
	if !ok {
		return Equal(data, spec)
	}
	if len(s) == 0 {
		return true
	}
	d, ok := native(data).(map[string]any)
	if !ok {
		return false
	}
	for k, want := range s {
		got, present := d[k]
		if !present || !Equal(got, want) {
			return false
		}
	}
	return true
}

// SubstringSpec is the match data of a MatchSubstring vertex.
type SubstringSpec struct {
	Value string
	// Path is a dot-delimited path into the data; empty means the root.
	Path string
}

// Substring is true iff the string found at spec's path inside data
// contains spec's value, case-insensitively.
func Substring(data, spec any) bool {
	s, err := toSubstringSpec(spec)
	if err != nil {
		return false
	}
	target := native(data)
	if s.Path != "" {
		for _, part := range strings.Split(s.Path, ".") {
			m, ok := target.(map[string]any)
			if !ok {
				return false
			}
			if target, ok = m[part]; !ok {
				return false
			}
		}
	}
	str, ok := target.(string)
	if !ok {
		return false
	}
	return strings.Contains(strings.ToLower(str), strings.ToLower(s.Value))
}

// toSubstringSpec accepts a SubstringSpec or its map form.
func toSubstringSpec(v any) (SubstringSpec, error) {
	switch t := v.(type) {
	case SubstringSpec:
		return t, nil
	case *SubstringSpec:
		if t == nil {
			return SubstringSpec{}, ErrMissingData
		}
		return *t, nil
	case map[string]any:
		value, ok := t["value"].(string)
		if !ok {
			return SubstringSpec{}, fmt.Errorf("%w: substring matcher needs a string value", ErrMissingData)
		}
		spec := SubstringSpec{Value: value}
		if p, present := t["path"]; present && p != nil {
			path, ok := p.(string)
			if !ok {
				return SubstringSpec{}, fmt.Errorf("%w: substring path must be a string", ErrMissingData)
			}
			spec.Path = path
		}
		return spec, nil
	default:
		return SubstringSpec{}, fmt.Errorf("%w: substring matcher needs {value, path}", ErrMissingData)
	}
}

// normalizeSubstring returns the stored map form with a lower-cased value.
func normalizeSubstring(v any) (map[string]any, error) {
	s, err := toSubstringSpec(v)
	if err != nil {
		return nil, err
	}
	out := map[string]any{"value": strings.ToLower(s.Value)}
	if s.Path != "" {
		out["path"] = s.Path
	}
	return out, nil
}

// Equal is structural equality over JSON-like values. Numbers compare by
// value regardless of Go type, so data read back from a store (float64)
// equals data built in Go (int).
func Equal(a, b any) bool {
	a, b = native(a), native(b)
	switch at := a.(type) {
	case nil:
		return b == nil
	case float64:
		bf, ok := b.(float64)
		return ok && at == bf
	case string:
		bs, ok := b.(string)
		return ok && at == bs
	case bool:
		bb, ok := b.(bool)
		return ok && at == bb
	case map[string]any:
		bm, ok := b.(map[string]any)
		if !ok || len(at) != len(bm) {
			return false
		}
		for k, av := range at {
			bv, present := bm[k]
			if !present || !Equal(av, bv) {
				return false
			}
		}
		return true
	case []any:
		bs, ok := b.([]any)
		if !ok || len(at) != len(bs) {
			return false
		}
		for i := range at {
			if !Equal(at[i], bs[i]) {
				return false
			}
		}
		return true
	default:
		return reflect.DeepEqual(a, b)
	}
}

// native converts a value to its JSON-native representation without
// touching the original. Already-native values are returned as is.
func native(v any) any {
	switch t := v.(type) {
	case nil, string, bool, float64, map[string]any, []any:
		return v
	case storage.IdeaID:
		return string(t)
	case int:
		return float64(t)
	case int32:
		return float64(t)
	case int64:
		return float64(t)
	case uint:
		return float64(t)
	case uint32:
		return float64(t)
	case uint64:
		return float64(t)
	case float32:
		return float64(t)
	case json.Number:
		if f, err := t.Float64(); err == nil {
			return f
		}
		return t.String()
	}

	b, err := json.Marshal(v)
	if err != nil {
		return v
	}
	var out any
	if err := json.Unmarshal(b, &out); err != nil {
		return v
	}
	return out
}

// unitOf returns the "unit" field of a data map.
func unitOf(data any) (any, bool) {
	m, ok := native(data).(map[string]any)
	if !ok {
		return nil, false
	}
	u, ok := m["unit"]
	return u, ok
}

// unitsConflict is true iff both values define a unit and the units differ.
func unitsConflict(a, b any) bool {
	ua, okA := unitOf(a)
	ub, okB := unitOf(b)
	return okA && okB && !Equal(ua, ub)
}

// toIdeaID converts id-like values to an IdeaID.
func toIdeaID(v any) (storage.IdeaID, bool) {
	switch t := v.(type) {
	case storage.IdeaID:
		return t, t != ""
	case string:
		return storage.IdeaID(t), t != ""
	default:
		return "", false
	}
}

// toKey converts numeric values (including JSON float64) to a vertex or
// edge key.
func toKey(v any) (int, bool) {
	switch t := v.(type) {
	case int:
		return t, true
	case int64:
		return int(t), true
	case int32:
		return int(t), true
	case float64:
		if t != math.Trunc(t) || t < 0 {
			return 0, false
		}
		return int(t), true
	case json.Number:
		i, err := t.Int64()
		return int(i), err == nil
	default:
		return 0, false
	}
}
