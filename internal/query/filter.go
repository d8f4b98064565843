package query

import (
	"encoding/json"
	"fmt"
	"math"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/starford/lifelog/internal/apperr"
	"github.com/starford/lifelog/internal/schema"
)

// Op is a predicate operator.
type Op string

const (
	OpEq       Op = "eq"
	OpNe       Op = "ne"
	OpGt       Op = "gt"
	OpGte      Op = "gte"
	OpLt       Op = "lt"
	OpLte      Op = "lte"
	OpIn       Op = "in"
	OpContains Op = "contains"
	OpPrefix   Op = "prefix"
	OpIsNull   Op = "is_null"
	OpAny      Op = "any"
	OpAll      Op = "all"

	// opAnd groups several operator objects on one key. It only exists in
	// request form, never in a canonical tree.
	opAnd = "and"
)

// Reserved request keys.
const (
	KeyDateRange = "date_range"
)

var kindOps = map[schema.Kind][]Op{
	schema.KindString: {OpEq, OpNe, OpIn, OpContains, OpPrefix, OpIsNull},
	schema.KindEnum:   {OpEq, OpNe, OpIn, OpIsNull},
	schema.KindInt:    {OpEq, OpNe, OpGt, OpGte, OpLt, OpLte, OpIn, OpIsNull},
	schema.KindFloat:  {OpEq, OpNe, OpGt, OpGte, OpLt, OpLte, OpIn, OpIsNull},
	schema.KindBool:   {OpEq, OpNe, OpIsNull},
	schema.KindTime:   {OpEq, OpGt, OpGte, OpLt, OpLte, OpIsNull},
	schema.KindTags:   {OpAny, OpAll, OpIsNull},
}

func opAllowed(k schema.Kind, op Op) bool {
	for _, o := range kindOps[k] {
		if o == op {
			return true
		}
	}
	return false
}

// Predicate is one (field, operator, value) condition. Value holds a string,
// int64, float64, bool or UTC time.Time, or a sorted deduplicated []string,
// []int64 or []float64 for set operators.
type Predicate struct {
	Field string `json:"field"`
	Op    Op     `json:"op"`
	Value any    `json:"value"`
}

// Group holds the predicates that apply to one entity path.
type Group struct {
	Path       string      `json:"path"`
	Predicates []Predicate `json:"predicates"`
}

// Tree is the canonical filter tree: every predicate of every group must
// hold. Groups are ordered by path, predicates by field, operator and value.
type Tree struct {
	Entity string  `json:"entity"`
	Groups []Group `json:"groups"`
}

// Empty reports whether the tree constrains nothing.
func (t Tree) Empty() bool { return len(t.Groups) == 0 }

// Group returns the predicates for path.
func (t Tree) Group(path string) (Group, bool) {
	for _, g := range t.Groups {
		if g.Path == path {
			return g, true
		}
	}
	return Group{}, false
}

// Filters renders the tree back into request form. Normalizing the result
// yields an equal tree.
func (t Tree) Filters() map[string]any {
	out := make(map[string]any)
	for _, g := range t.Groups {
		byField := make(map[string][]Predicate)
		var fields []string
		for _, p := range g.Predicates {
			if _, seen := byField[p.Field]; !seen {
				fields = append(fields, p.Field)
			}
			byField[p.Field] = append(byField[p.Field], p)
		}
		for _, f := range fields {
			preds := byField[f]
			ops := make(map[string]any, len(preds))
			dup := false
			for _, p := range preds {
				if _, exists := ops[string(p.Op)]; exists {
					dup = true
				}
				ops[string(p.Op)] = renderValue(p.Value)
			}
			if dup {
				all := make([]any, len(preds))
				for i, p := range preds {
					all[i] = map[string]any{string(p.Op): renderValue(p.Value)}
				}
				out[g.Path+"."+f] = map[string]any{opAnd: all}
				continue
			}
			out[g.Path+"."+f] = ops
		}
	}
	return out
}

func renderValue(v any) any {
	if t, ok := v.(time.Time); ok {
		return t.UTC().Format(time.RFC3339Nano)
	}
	return v
}

// Normalizer turns request filters into canonical trees.
type Normalizer struct {
	now func() time.Time
}

// NewNormalizer returns a Normalizer resolving date shorthand against now.
func NewNormalizer(now func() time.Time) *Normalizer {
	if now == nil {
		now = time.Now
	}
	return &Normalizer{now: now}
}

// Normalize validates filters against entity and returns the canonical tree.
// Errors are *apperr.ValidationError naming the offending key.
func (n *Normalizer) Normalize(entity *schema.Entity, filters map[string]any) (Tree, error) {
	b := &treeBuilder{entity: entity, now: n.now(), groups: make(map[string][]Predicate)}

	keys := make([]string, 0, len(filters))
	for k := range filters {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	for _, key := range keys {
		if err := b.add(key, filters[key]); err != nil {
			return Tree{}, err
		}
	}
	return b.tree(), nil
}

// Canonicalize re-validates an existing tree. On a canonical tree it is a
// no-op.
func (n *Normalizer) Canonicalize(entity *schema.Entity, t Tree) (Tree, error) {
	return n.Normalize(entity, t.Filters())
}

type treeBuilder struct {
	entity *schema.Entity
	now    time.Time
	groups map[string][]Predicate
}

func (b *treeBuilder) add(key string, value any) error {
	if strings.TrimSpace(key) == KeyDateRange {
		return b.addDateRange(key, value)
	}

	path, field, err := b.entity.Resolve(key)
	if err != nil {
		return err
	}
	return b.addValue(key, path, field, value)
}

func (b *treeBuilder) addDateRange(key string, value any) error {
	root := b.entity.RootPath()
	field, ok := root.Field("start_time")
	if !ok {
		return apperr.Invalid(key, "not supported for entity %q", b.entity.Name)
	}

	var rng TimeRange
	switch v := value.(type) {
	case string:
		r, isRange, err := parseTimeValue(v, b.now)
		if err != nil {
			return apperr.Invalid(key, "%v", err)
		}
		if !isRange {
			return apperr.Invalid(key, "expected a date, interval or shorthand token, got a single instant")
		}
		rng = r
	case map[string]any:
		for k := range v {
			if k != "start" && k != "end" {
				return apperr.Invalid(key, "unexpected key %q, expected start and end", k)
			}
		}
		bound := func(name string, end bool) (*time.Time, error) {
			if v[name] == nil {
				return nil, nil
			}
			s, ok := v[name].(string)
			if !ok {
				return nil, apperr.Invalid(key+"."+name, "expected a date string")
			}
			t, err := parseBound(s, b.now, end)
			if err != nil {
				return nil, apperr.Invalid(key+"."+name, "%v", err)
			}
			t = t.UTC()
			return &t, nil
		}
		start, err := bound("start", false)
		if err != nil {
			return err
		}
		end, err := bound("end", true)
		if err != nil {
			return err
		}
		if start != nil && end != nil && !start.Before(*end) {
			return apperr.Invalid(key, "start must be before end")
		}
		if start != nil {
			b.put(root, Predicate{Field: field.Name, Op: OpGte, Value: *start})
		}
		if end != nil {
			b.put(root, Predicate{Field: field.Name, Op: OpLt, Value: *end})
		}
		return nil
	case nil:
		return nil
	default:
		return apperr.Invalid(key, "expected a string or {start, end} object")
	}

	b.put(root, Predicate{Field: field.Name, Op: OpGte, Value: rng.Start.UTC()})
	b.put(root, Predicate{Field: field.Name, Op: OpLt, Value: rng.End.UTC()})
	return nil
}

func (b *treeBuilder) addValue(key string, path *schema.Path, field *schema.Field, value any) error {
	if value == nil {
		return b.addOp(key, path, field, OpIsNull, true)
	}
	if ops, ok := value.(map[string]any); ok {
		names := make([]string, 0, len(ops))
		for k := range ops {
			names = append(names, k)
		}
		sort.Strings(names)
		for _, name := range names {
			if strings.ToLower(name) == opAnd {
				parts, ok := toList(ops[name])
				if !ok {
					return apperr.Invalid(key, "%q expects a list of operator objects", opAnd)
				}
				for _, part := range parts {
					obj, ok := part.(map[string]any)
					if !ok {
						return apperr.Invalid(key, "%q expects a list of operator objects", opAnd)
					}
					if err := b.addValue(key, path, field, obj); err != nil {
						return err
					}
				}
				continue
			}
			if err := b.addOp(key, path, field, Op(strings.ToLower(strings.TrimSpace(name))), ops[name]); err != nil {
				return err
			}
		}
		return nil
	}
	if _, ok := toList(value); ok {
		if field.Kind == schema.KindTags {
			return b.addOp(key, path, field, OpAny, value)
		}
		return b.addOp(key, path, field, OpIn, value)
	}
	if field.Kind == schema.KindTags {
		return b.addOp(key, path, field, OpAny, value)
	}
	return b.addOp(key, path, field, OpEq, value)
}

func (b *treeBuilder) addOp(key string, path *schema.Path, field *schema.Field, op Op, operand any) error {
	if field.Kind == schema.KindTags && (op == OpEq || op == OpIn) {
		op = OpAny
	}
	if !opAllowed(field.Kind, op) {
		return apperr.Invalid(key, "operator %q is not supported for %s field", op, field.Kind)
	}

	switch op {
	case OpIsNull:
		v, err := toBool(operand)
		if err != nil {
			return apperr.Invalid(key, "is_null expects true or false")
		}
		b.put(path, Predicate{Field: field.Name, Op: op, Value: v})
		return nil

	case OpIn, OpAny, OpAll:
		list, ok := toList(operand)
		if !ok {
			list = []any{operand}
		}
		set, err := b.convertSet(key, field, list)
		if err != nil {
			return err
		}
		if set == nil {
			return nil // empty set: no constraint
		}
		b.put(path, Predicate{Field: field.Name, Op: op, Value: set})
		return nil

	case OpContains, OpPrefix:
		s, ok := operand.(string)
		if !ok || s == "" {
			return apperr.Invalid(key, "%s expects a non-empty string", op)
		}
		b.put(path, Predicate{Field: field.Name, Op: op, Value: s})
		return nil
	}

	if field.Kind == schema.KindTime {
		return b.addTimeOp(key, path, field, op, operand)
	}

	v, err := convertScalar(field, operand)
	if err != nil {
		return apperr.Invalid(key, "%v", err)
	}
	b.put(path, Predicate{Field: field.Name, Op: op, Value: v})
	return nil
}

func (b *treeBuilder) addTimeOp(key string, path *schema.Path, field *schema.Field, op Op, operand any) error {
	var rng TimeRange
	isRange := false
	switch v := operand.(type) {
	case time.Time:
		rng.Start = v
	case string:
		r, ranged, err := parseTimeValue(v, b.now)
		if err != nil {
			return apperr.Invalid(key, "%v", err)
		}
		rng, isRange = r, ranged
	default:
		return apperr.Invalid(key, "expected a timestamp, date or shorthand token")
	}

	if !isRange {
		b.put(path, Predicate{Field: field.Name, Op: op, Value: rng.Start.UTC()})
		return nil
	}

	start, end := rng.Start.UTC(), rng.End.UTC()
	switch op {
	case OpEq:
		b.put(path, Predicate{Field: field.Name, Op: OpGte, Value: start})
		b.put(path, Predicate{Field: field.Name, Op: OpLt, Value: end})
	case OpGte:
		b.put(path, Predicate{Field: field.Name, Op: OpGte, Value: start})
	case OpGt:
		b.put(path, Predicate{Field: field.Name, Op: OpGte, Value: end})
	case OpLt:
		b.put(path, Predicate{Field: field.Name, Op: OpLt, Value: start})
	case OpLte:
		b.put(path, Predicate{Field: field.Name, Op: OpLt, Value: end})
	default:
		return apperr.Invalid(key, "operator %q cannot take a date range", op)
	}
	return nil
}

func (b *treeBuilder) convertSet(key string, field *schema.Field, list []any) (any, error) {
	if len(list) == 0 {
		return nil, nil
	}
	switch field.Kind {
	case schema.KindInt:
		out := make([]int64, 0, len(list))
		seen := make(map[int64]bool)
		for _, item := range list {
			v, err := toInt(item)
			if err != nil {
				return nil, apperr.Invalid(key, "%v", err)
			}
			if !seen[v] {
				seen[v] = true
				out = append(out, v)
			}
		}
		sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
		return out, nil
	case schema.KindFloat:
		out := make([]float64, 0, len(list))
		seen := make(map[float64]bool)
		for _, item := range list {
			v, err := toFloat(item)
			if err != nil {
				return nil, apperr.Invalid(key, "%v", err)
			}
			if !seen[v] {
				seen[v] = true
				out = append(out, v)
			}
		}
		sort.Float64s(out)
		return out, nil
	}

	out := make([]string, 0, len(list))
	seen := make(map[string]bool)
	for _, item := range list {
		var s string
		if field.Kind == schema.KindTags {
			str, ok := item.(string)
			if !ok {
				return nil, apperr.Invalid(key, "tags must be strings")
			}
			s = normalizeTag(str)
			if s == "" {
				continue
			}
		} else {
			v, err := convertScalar(field, item)
			if err != nil {
				return nil, apperr.Invalid(key, "%v", err)
			}
			s = v.(string)
		}
		if !seen[s] {
			seen[s] = true
			out = append(out, s)
		}
	}
	if len(out) == 0 {
		return nil, nil
	}
	sort.Strings(out)
	return out, nil
}

func (b *treeBuilder) put(path *schema.Path, p Predicate) {
	preds := b.groups[path.Name]
	k := predicateKey(p)
	for _, existing := range preds {
		if predicateKey(existing) == k {
			return
		}
	}
	b.groups[path.Name] = append(preds, p)
}

func (b *treeBuilder) tree() Tree {
	t := Tree{Entity: b.entity.Name}
	paths := make([]string, 0, len(b.groups))
	for p := range b.groups {
		paths = append(paths, p)
	}
	sort.Strings(paths)
	for _, p := range paths {
		preds := b.groups[p]
		sort.Slice(preds, func(i, j int) bool { return predicateKey(preds[i]) < predicateKey(preds[j]) })
		t.Groups = append(t.Groups, Group{Path: p, Predicates: preds})
	}
	return t
}

func predicateKey(p Predicate) string {
	return p.Field + "\x00" + string(p.Op) + "\x00" + valueKey(p.Value)
}

func valueKey(v any) string {
	switch x := v.(type) {
	case time.Time:
		return x.UTC().Format(time.RFC3339Nano)
	case float64:
		return strconv.FormatFloat(x, 'g', -1, 64)
	}
	return fmt.Sprint(v)
}

func normalizeTag(s string) string {
	return strings.ToLower(strings.TrimSpace(s))
}

func convertScalar(field *schema.Field, v any) (any, error) {
	switch field.Kind {
	case schema.KindString:
		s, ok := v.(string)
		if !ok {
			return nil, fmt.Errorf("expected a string, got %T", v)
		}
		return s, nil
	case schema.KindEnum:
		s, ok := v.(string)
		if !ok {
			return nil, fmt.Errorf("expected one of %s", strings.Join(field.Values, ", "))
		}
		s = strings.ToLower(strings.TrimSpace(s))
		if !field.Allows(s) {
			return nil, fmt.Errorf("invalid value %q, expected one of %s", s, strings.Join(field.Values, ", "))
		}
		return s, nil
	case schema.KindInt:
		return toInt(v)
	case schema.KindFloat:
		return toFloat(v)
	case schema.KindBool:
		return toBool(v)
	}
	return nil, fmt.Errorf("unsupported value for %s field", field.Kind)
}

func toList(v any) ([]any, bool) {
	switch x := v.(type) {
	case []any:
		return x, true
	case []string:
		out := make([]any, len(x))
		for i, s := range x {
			out[i] = s
		}
		return out, true
	case []int64:
		out := make([]any, len(x))
		for i, n := range x {
			out[i] = n
		}
		return out, true
	case []float64:
		out := make([]any, len(x))
		for i, n := range x {
			out[i] = n
		}
		return out, true
	case []int:
		out := make([]any, len(x))
		for i, n := range x {
			out[i] = n
		}
		return out, true
	}
	return nil, false
}

func toInt(v any) (int64, error) {
	switch x := v.(type) {
	case int:
		return int64(x), nil
	case int64:
		return x, nil
	case float64:
		if x != math.Trunc(x) || math.IsInf(x, 0) || math.Abs(x) > 1<<53 {
			return 0, fmt.Errorf("expected an integer, got %v", x)
		}
		return int64(x), nil
	case json.Number:
		return toInt(string(x))
	case string:
		n, err := strconv.ParseInt(strings.TrimSpace(x), 10, 64)
		if err != nil {
			return 0, fmt.Errorf("expected an integer, got %q", x)
		}
		return n, nil
	}
	return 0, fmt.Errorf("expected an integer, got %T", v)
}

func toFloat(v any) (float64, error) {
	switch x := v.(type) {
	case int:
		return float64(x), nil
	case int64:
		return float64(x), nil
	case float64:
		if math.IsNaN(x) || math.IsInf(x, 0) {
			return 0, fmt.Errorf("expected a finite number")
		}
		return x, nil
	case json.Number:
		return toFloat(string(x))
	case string:
		f, err := strconv.ParseFloat(strings.TrimSpace(x), 64)
		if err != nil || math.IsNaN(f) || math.IsInf(f, 0) {
			return 0, fmt.Errorf("expected a number, got %q", x)
		}
		return f, nil
	}
	return 0, fmt.Errorf("expected a number, got %T", v)
}

func toBool(v any) (bool, error) {
	switch x := v.(type) {
	case bool:
		return x, nil
	case string:
		return strconv.ParseBool(strings.TrimSpace(x))
	}
	return false, fmt.Errorf("expected a boolean, got %T", v)
}
