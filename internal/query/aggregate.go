package query

import (
	"context"
	"database/sql"
	"fmt"
	"strconv"
	"strings"

	"github.com/starford/lifelog/internal/apperr"
	"github.com/starford/lifelog/internal/schema"
	"github.com/starford/lifelog/internal/store"
)

// MetricFunc is an aggregate function.
type MetricFunc string

const (
	MetricCount MetricFunc = "count"
	MetricSum   MetricFunc = "sum"
	MetricAvg   MetricFunc = "avg"
	MetricMin   MetricFunc = "min"
	MetricMax   MetricFunc = "max"
)

// GroupKey is a resolved grouping term such as "category" or
// "start_time:month".
type GroupKey struct {
	Ref    string
	Path   *schema.Path
	Field  *schema.Field
	Bucket string
}

// Metric is a resolved metric term such as "count" or "sum:meal.calories".
type Metric struct {
	Ref   string
	Func  MetricFunc
	Path  *schema.Path
	Field *schema.Field
}

// AggregateRow maps group key and metric references to their values.
type AggregateRow map[string]any

// ParseGroupBy resolves grouping terms. Keys must live on the root or on a
// to-one path; a to-many key would count a root row once per related row.
func ParseGroupBy(entity *schema.Entity, terms []string) ([]GroupKey, error) {
	out := make([]GroupKey, 0, len(terms))
	seen := make(map[string]bool)
	for _, raw := range terms {
		ref := strings.TrimSpace(raw)
		if seen[ref] {
			return nil, apperr.Invalid(raw, "duplicate group key")
		}
		seen[ref] = true

		fieldRef, bucket, hasBucket := strings.Cut(ref, ":")
		path, field, err := entity.Resolve(fieldRef)
		if err != nil {
			return nil, reField(err, raw)
		}
		if path.Cardinality == schema.ToMany || field.Kind == schema.KindTags {
			return nil, apperr.Invalid(raw, "cannot group by a multi-valued field")
		}
		if hasBucket {
			bucket = strings.ToLower(strings.TrimSpace(bucket))
			if field.Kind != schema.KindTime {
				return nil, apperr.Invalid(raw, "date bucketing requires a time field")
			}
			if !validBucket(bucket) {
				return nil, apperr.Invalid(raw, "unknown bucket %q, expected one of %s", bucket, strings.Join(store.BucketUnits, ", "))
			}
		}
		out = append(out, GroupKey{Ref: ref, Path: path, Field: field, Bucket: bucket})
	}
	return out, nil
}

func validBucket(unit string) bool {
	for _, u := range store.BucketUnits {
		if u == unit {
			return true
		}
	}
	return false
}

// ParseMetrics resolves metric terms: "count", "count:field" and
// "sum|avg|min|max:field" over numeric fields.
func ParseMetrics(entity *schema.Entity, terms []string) ([]Metric, error) {
	if len(terms) == 0 {
		return nil, apperr.Invalid("metrics", "at least one metric is required")
	}
	out := make([]Metric, 0, len(terms))
	seen := make(map[string]bool)
	for _, raw := range terms {
		ref := strings.TrimSpace(raw)
		if seen[ref] {
			return nil, apperr.Invalid(raw, "duplicate metric")
		}
		seen[ref] = true

		fn, fieldRef, hasField := strings.Cut(ref, ":")
		m := Metric{Ref: ref, Func: MetricFunc(strings.ToLower(strings.TrimSpace(fn)))}
		switch m.Func {
		case MetricCount, MetricSum, MetricAvg, MetricMin, MetricMax:
		default:
			return nil, apperr.Invalid(raw, "unknown metric %q, expected count, sum, avg, min or max", fn)
		}
		if !hasField {
			if m.Func != MetricCount {
				return nil, apperr.Invalid(raw, "%s requires a field, e.g. %s:meal.calories", m.Func, m.Func)
			}
			out = append(out, m)
			continue
		}

		path, field, err := entity.Resolve(fieldRef)
		if err != nil {
			return nil, reField(err, raw)
		}
		if path.Cardinality == schema.ToMany || field.Kind == schema.KindTags {
			return nil, apperr.Invalid(raw, "cannot aggregate a multi-valued field")
		}
		if m.Func != MetricCount && !field.Kind.Numeric() {
			return nil, apperr.Invalid(raw, "%s requires a numeric field, %q is %s", m.Func, fieldRef, field.Kind)
		}
		m.Path, m.Field = path, field
		out = append(out, m)
	}
	return out, nil
}

// AggregateSpec is the non-filter part of an aggregate query.
type AggregateSpec struct {
	GroupBy        []GroupKey
	Metrics        []Metric
	OrderBy        []string
	IncludeDeleted bool
}

// CompileAggregate builds an aggregate plan. Filter joins are reused; group
// and metric paths not already joined are left-joined so that grouping never
// drops rows the filter admitted.
func (c *Compiler) CompileAggregate(entity *schema.Entity, t Tree, spec AggregateSpec) (*Plan, error) {
	b := c.newBuilder(entity, spec.IncludeDeleted)
	if err := b.filter(t); err != nil {
		return nil, err
	}

	var sel, groupCols []string
	named := make(map[string]string)
	for i, g := range spec.GroupBy {
		b.join(g.Path, LeftJoin)
		expr := g.Field.Qualified()
		if g.Bucket != "" {
			var err error
			expr, err = c.dialect.Bucket(expr, g.Bucket)
			if err != nil {
				return nil, apperr.Invalid(g.Ref, "%v", err)
			}
		}
		alias := "g" + strconv.Itoa(i)
		sel = append(sel, expr+" AS "+alias)
		groupCols = append(groupCols, alias)
		named[g.Ref] = alias
	}
	for i, m := range spec.Metrics {
		alias := "m" + strconv.Itoa(i)
		expr := "COUNT(*)"
		if m.Field != nil {
			b.join(m.Path, LeftJoin)
			expr = strings.ToUpper(string(m.Func)) + "(" + m.Field.Qualified() + ")"
		}
		sel = append(sel, expr+" AS "+alias)
		named[m.Ref] = alias
	}
	// n lets the executor drop the single all-NULL row an ungrouped
	// aggregate yields over an empty set.
	sel = append(sel, "COUNT(*) AS n")

	var orderTerms []string
	for _, raw := range spec.OrderBy {
		term := strings.TrimSpace(raw)
		dir := "ASC"
		if strings.HasPrefix(term, "-") {
			dir, term = "DESC", strings.TrimSpace(term[1:])
		} else if ref, d, found := strings.Cut(term, " "); found {
			switch strings.ToLower(strings.TrimSpace(d)) {
			case "asc":
			case "desc":
				dir = "DESC"
			default:
				return nil, apperr.Invalid(raw, "order direction must be asc or desc")
			}
			term = ref
		}
		alias, ok := named[term]
		if !ok {
			return nil, apperr.Invalid(raw, "order term must name a requested group key or metric")
		}
		orderTerms = append(orderTerms, alias+" "+dir)
	}
	for _, gc := range groupCols {
		orderTerms = append(orderTerms, gc+" ASC")
	}

	var sb strings.Builder
	sb.WriteString("SELECT " + strings.Join(sel, ", "))
	sb.WriteString(b.from())
	if len(groupCols) > 0 {
		sb.WriteString(" GROUP BY " + strings.Join(groupCols, ", "))
	}
	if len(orderTerms) > 0 {
		sb.WriteString(" ORDER BY " + strings.Join(orderTerms, ", "))
	}

	return &Plan{
		Kind:      AggregatePlan,
		Entity:    entity,
		Base:      entity.Table,
		Joins:     b.joins,
		SemiJoins: b.semi,
		SQL:       sb.String(),
		Args:      b.args,
		Groups:    spec.GroupBy,
		Metrics:   spec.Metrics,
	}, nil
}

// runAggregate executes an aggregate plan in a single statement.
func runAggregate(ctx context.Context, q querier, plan *Plan) ([]AggregateRow, error) {
	rows, err := q.QueryContext(ctx, plan.SQL, plan.Args...)
	if err != nil {
		return nil, apperr.Execution("aggregate", err)
	}
	defer rows.Close()

	width := len(plan.Groups) + len(plan.Metrics) + 1
	out := []AggregateRow{}
	for rows.Next() {
		vals := make([]any, width)
		ptrs := make([]any, width)
		for i := range vals {
			ptrs[i] = &vals[i]
		}
		if err := rows.Scan(ptrs...); err != nil {
			return nil, apperr.Execution("aggregate scan", err)
		}
		n, err := asInt(vals[width-1])
		if err != nil {
			return nil, apperr.Execution("aggregate scan", err)
		}
		if n == 0 {
			continue
		}

		row := make(AggregateRow, width-1)
		for i, g := range plan.Groups {
			v, err := groupValue(g, vals[i])
			if err != nil {
				return nil, apperr.Execution("aggregate scan", err)
			}
			row[g.Ref] = v
		}
		for i, m := range plan.Metrics {
			v, err := metricValue(m, vals[len(plan.Groups)+i])
			if err != nil {
				return nil, apperr.Execution("aggregate scan", err)
			}
			row[m.Ref] = v
		}
		out = append(out, row)
	}
	if err := rows.Err(); err != nil {
		return nil, apperr.Execution("aggregate", err)
	}
	return out, nil
}

func groupValue(g GroupKey, v any) (any, error) {
	if v == nil {
		return nil, nil
	}
	if g.Bucket != "" {
		return asString(v), nil
	}
	return convertColumn(g.Field, v)
}

func metricValue(m Metric, v any) (any, error) {
	if m.Func == MetricCount {
		return asInt(v)
	}
	if v == nil {
		return nil, nil
	}
	return asFloat(v)
}

// querier is satisfied by *sql.DB, *sql.Conn and *sql.Tx.
type querier interface {
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
}

func asString(v any) string {
	switch x := v.(type) {
	case string:
		return x
	case []byte:
		return string(x)
	}
	return fmt.Sprint(v)
}

func asInt(v any) (int64, error) {
	switch x := v.(type) {
	case nil:
		return 0, nil
	case int64:
		return x, nil
	case int:
		return int64(x), nil
	case float64:
		return int64(x), nil
	case []byte:
		return strconv.ParseInt(string(x), 10, 64)
	case string:
		return strconv.ParseInt(x, 10, 64)
	}
	return 0, fmt.Errorf("cannot read %T as integer", v)
}

func asFloat(v any) (float64, error) {
	switch x := v.(type) {
	case float64:
		return x, nil
	case float32:
		return float64(x), nil
	case int64:
		return float64(x), nil
	case int:
		return float64(x), nil
	case []byte:
		return strconv.ParseFloat(string(x), 64)
	case string:
		return strconv.ParseFloat(x, 64)
	}
	return 0, fmt.Errorf("cannot read %T as number", v)
}

func asBool(v any) (bool, error) {
	switch x := v.(type) {
	case bool:
		return x, nil
	case int64:
		return x != 0, nil
	case []byte:
		return strconv.ParseBool(string(x))
	case string:
		return strconv.ParseBool(x)
	}
	return false, fmt.Errorf("cannot read %T as boolean", v)
}

// convertColumn turns a scanned value into the Go type of the field's kind.
func convertColumn(f *schema.Field, v any) (any, error) {
	if v == nil {
		return nil, nil
	}
	switch f.Kind {
	case schema.KindInt:
		return asInt(v)
	case schema.KindFloat:
		return asFloat(v)
	case schema.KindBool:
		return asBool(v)
	case schema.KindTime:
		t, ok, err := store.ParseTime(v)
		if err != nil || !ok {
			return nil, err
		}
		return t, nil
	}
	return asString(v), nil
}
