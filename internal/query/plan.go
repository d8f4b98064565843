package query

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/starford/lifelog/internal/apperr"
	"github.com/starford/lifelog/internal/schema"
	"github.com/starford/lifelog/internal/store"
)

// PlanKind distinguishes row plans from aggregate plans.
type PlanKind int

const (
	RowPlan PlanKind = iota + 1
	AggregatePlan
)

// JoinType is the SQL join flavour of a planned join.
type JoinType string

const (
	InnerJoin JoinType = "INNER JOIN"
	LeftJoin  JoinType = "LEFT JOIN"
)

// PlannedJoin is one table joined into the base query.
type PlannedJoin struct {
	Path  string
	Type  JoinType
	Table string
	Alias string
	On    string
}

// Plan is an executable, parameterized query.
type Plan struct {
	Kind   PlanKind
	Entity *schema.Entity
	Base   string
	Joins  []PlannedJoin
	// SemiJoins names the to-many paths compiled into EXISTS subqueries.
	SemiJoins []string
	Limit     int
	Offset    int
	SQL       string
	Args      []any

	// Columns are the root fields selected by a row plan, in order.
	Columns []*schema.Field
	// Groups and Metrics describe the result columns of an aggregate plan.
	Groups  []GroupKey
	Metrics []Metric
}

// Compiler turns canonical trees into plans.
type Compiler struct {
	dialect store.Dialect
}

// NewCompiler returns a Compiler emitting SQL for dialect.
func NewCompiler(dialect store.Dialect) *Compiler {
	return &Compiler{dialect: dialect}
}

// RowSpec is the non-filter part of a row query.
type RowSpec struct {
	Limit          int
	Offset         int
	OrderBy        []OrderKey
	IncludeDeleted bool
}

// OrderKey is a resolved ordering term.
type OrderKey struct {
	Ref   string
	Path  *schema.Path
	Field *schema.Field
	Desc  bool
}

// ParseOrder resolves order terms of the forms "field", "-field" and
// "field asc|desc". Fields on to-many paths cannot order root rows.
func ParseOrder(entity *schema.Entity, terms []string) ([]OrderKey, error) {
	out := make([]OrderKey, 0, len(terms))
	for _, raw := range terms {
		term := strings.TrimSpace(raw)
		desc := false
		if strings.HasPrefix(term, "-") {
			desc = true
			term = strings.TrimSpace(term[1:])
		} else if ref, dir, found := strings.Cut(term, " "); found {
			switch strings.ToLower(strings.TrimSpace(dir)) {
			case "asc":
			case "desc":
				desc = true
			default:
				return nil, apperr.Invalid(raw, "order direction must be asc or desc")
			}
			term = ref
		}
		path, field, err := entity.Resolve(term)
		if err != nil {
			return nil, reField(err, raw)
		}
		if path.Cardinality == schema.ToMany || field.Kind == schema.KindTags {
			return nil, apperr.Invalid(raw, "cannot order by a multi-valued field")
		}
		out = append(out, OrderKey{Ref: term, Path: path, Field: field, Desc: desc})
	}
	return out, nil
}

// sqlBuilder accumulates clauses and arguments. Arguments must be bound in
// the textual order of their placeholders.
type sqlBuilder struct {
	c       *Compiler
	entity  *schema.Entity
	include bool
	joins   []PlannedJoin
	joined  map[string]bool
	semi    []string
	where   []string
	args    []any
}

func (c *Compiler) newBuilder(entity *schema.Entity, includeDeleted bool) *sqlBuilder {
	return &sqlBuilder{c: c, entity: entity, include: includeDeleted, joined: make(map[string]bool)}
}

func (b *sqlBuilder) bind(v any) string {
	if t, ok := v.(time.Time); ok {
		v = b.c.dialect.TimeArg(t)
	}
	b.args = append(b.args, v)
	return b.c.dialect.Placeholder(len(b.args))
}

func (b *sqlBuilder) guard(alias string) string {
	return "NOT " + alias + ".is_deleted"
}

// join adds the to-one path's join chain once. An inner request upgrades an
// earlier left join of the same path.
func (b *sqlBuilder) join(path *schema.Path, typ JoinType) {
	if path.Cardinality != schema.ToOne {
		return
	}
	if b.joined[path.Name] {
		if typ == InnerJoin {
			for i := range b.joins {
				if b.joins[i].Path == path.Name {
					b.joins[i].Type = InnerJoin
				}
			}
		}
		return
	}
	b.joined[path.Name] = true
	for _, j := range path.Joins {
		on := j.On
		if j.SoftDelete && !b.include {
			on += " AND " + b.guard(j.Alias)
		}
		b.joins = append(b.joins, PlannedJoin{Path: path.Name, Type: typ, Table: j.Table, Alias: j.Alias, On: on})
	}
}

// filter compiles the tree's predicates. Root and to-one groups become WHERE
// conditions over inner joins; to-many groups become EXISTS subqueries.
func (b *sqlBuilder) filter(t Tree) error {
	if b.entity.SoftDelete && !b.include {
		b.where = append(b.where, b.guard(b.entity.Alias))
	}
	for _, g := range t.Groups {
		path, ok := b.entity.Path(g.Path)
		if !ok {
			return apperr.Invalid(g.Path, "unknown entity path")
		}
		switch path.Cardinality {
		case schema.ToMany:
			cond, err := b.exists(path, g.Predicates)
			if err != nil {
				return err
			}
			b.where = append(b.where, cond)
			b.semi = append(b.semi, path.Name)
		default:
			b.join(path, InnerJoin)
			for _, p := range g.Predicates {
				cond, err := b.predicate(path, p)
				if err != nil {
					return err
				}
				b.where = append(b.where, cond)
			}
		}
	}
	return nil
}

func (b *sqlBuilder) exists(path *schema.Path, preds []Predicate) (string, error) {
	first := path.Joins[0]
	var sb strings.Builder
	sb.WriteString("EXISTS (SELECT 1 FROM ")
	sb.WriteString(first.Table + " " + first.Alias)
	conds := []string{first.On}
	if first.SoftDelete && !b.include {
		conds = append(conds, b.guard(first.Alias))
	}
	for _, j := range path.Joins[1:] {
		on := j.On
		if j.SoftDelete && !b.include {
			on += " AND " + b.guard(j.Alias)
		}
		sb.WriteString(" JOIN " + j.Table + " " + j.Alias + " ON " + on)
	}
	for _, p := range preds {
		cond, err := b.predicate(path, p)
		if err != nil {
			return "", err
		}
		conds = append(conds, cond)
	}
	sb.WriteString(" WHERE ")
	sb.WriteString(strings.Join(conds, " AND "))
	sb.WriteString(")")
	return sb.String(), nil
}

func (b *sqlBuilder) predicate(path *schema.Path, p Predicate) (string, error) {
	field, ok := path.Field(p.Field)
	if !ok {
		return "", apperr.Invalid(path.Name+"."+p.Field, "unknown field")
	}
	if field.Kind == schema.KindTags {
		return b.tagPredicate(field, p)
	}

	col := field.Qualified()
	switch p.Op {
	case OpEq:
		return col + " = " + b.bind(p.Value), nil
	case OpNe:
		return "(" + col + " IS NULL OR " + col + " <> " + b.bind(p.Value) + ")", nil
	case OpGt:
		return col + " > " + b.bind(p.Value), nil
	case OpGte:
		return col + " >= " + b.bind(p.Value), nil
	case OpLt:
		return col + " < " + b.bind(p.Value), nil
	case OpLte:
		return col + " <= " + b.bind(p.Value), nil
	case OpIn:
		return col + " IN (" + b.bindList(p.Value) + ")", nil
	case OpContains:
		return "LOWER(" + col + ") LIKE " + b.bind("%"+escapeLike(strings.ToLower(p.Value.(string)))+"%") + ` ESCAPE '\'`, nil
	case OpPrefix:
		return "LOWER(" + col + ") LIKE " + b.bind(escapeLike(strings.ToLower(p.Value.(string)))+"%") + ` ESCAPE '\'`, nil
	case OpIsNull:
		if p.Value.(bool) {
			return col + " IS NULL", nil
		}
		return col + " IS NOT NULL", nil
	}
	return "", apperr.Invalid(path.Name+"."+p.Field, "operator %q not supported", p.Op)
}

func (b *sqlBuilder) tagPredicate(field *schema.Field, p Predicate) (string, error) {
	set := field.Set
	from := set.Table + " " + set.Alias
	corr := set.Alias + "." + set.KeyColumn + " = " + b.entity.Alias + "." + b.entity.Key
	val := set.Alias + "." + set.ValueColumn

	switch p.Op {
	case OpAny:
		return "EXISTS (SELECT 1 FROM " + from + " WHERE " + corr + " AND " + val + " IN (" + b.bindList(p.Value) + "))", nil
	case OpAll:
		tags := p.Value.([]string)
		list := b.bindList(tags)
		return fmt.Sprintf("(SELECT COUNT(DISTINCT %s) FROM %s WHERE %s AND %s IN (%s)) = %d", val, from, corr, val, list, len(tags)), nil
	case OpIsNull:
		cond := "EXISTS (SELECT 1 FROM " + from + " WHERE " + corr + ")"
		if p.Value.(bool) {
			return "NOT " + cond, nil
		}
		return cond, nil
	}
	return "", apperr.Invalid(field.Name, "operator %q not supported for tags", p.Op)
}

func (b *sqlBuilder) bindList(v any) string {
	var ph []string
	switch x := v.(type) {
	case []string:
		for _, s := range x {
			ph = append(ph, b.bind(s))
		}
	case []int64:
		for _, n := range x {
			ph = append(ph, b.bind(n))
		}
	case []float64:
		for _, f := range x {
			ph = append(ph, b.bind(f))
		}
	}
	if len(ph) == 0 {
		return "NULL"
	}
	return strings.Join(ph, ", ")
}

func (b *sqlBuilder) from() string {
	var sb strings.Builder
	sb.WriteString(" FROM " + b.entity.Table + " " + b.entity.Alias)
	for _, j := range b.joins {
		sb.WriteString(" " + string(j.Type) + " " + j.Table + " " + j.Alias + " ON " + j.On)
	}
	if len(b.where) > 0 {
		sb.WriteString(" WHERE " + strings.Join(b.where, " AND "))
	}
	return sb.String()
}

// CompileRows builds a row plan over the entity's root fields. Hydration
// relationships never add joins; they are resolved by follow-up lookups.
func (c *Compiler) CompileRows(entity *schema.Entity, t Tree, spec RowSpec) (*Plan, error) {
	if spec.Limit < 0 {
		return nil, apperr.Invalid("limit", "must not be negative")
	}
	if spec.Offset < 0 {
		return nil, apperr.Invalid("offset", "must not be negative")
	}

	b := c.newBuilder(entity, spec.IncludeDeleted)
	if err := b.filter(t); err != nil {
		return nil, err
	}

	// Order keys only join what the filter has not already joined.
	order := spec.OrderBy
	if len(order) == 0 && entity.DefaultOrder != "" {
		f, _ := entity.RootPath().Field(entity.DefaultOrder)
		order = []OrderKey{{Ref: f.Name, Path: entity.RootPath(), Field: f, Desc: entity.DefaultDesc}}
	}
	var orderTerms []string
	keyOrdered := false
	for _, o := range order {
		b.join(o.Path, LeftJoin)
		term := o.Field.Qualified()
		if o.Desc {
			term += " DESC"
		} else {
			term += " ASC"
		}
		orderTerms = append(orderTerms, term)
		if o.Path.Cardinality == schema.Root && o.Field.Name == entity.Key {
			keyOrdered = true
		}
	}
	if !keyOrdered {
		orderTerms = append(orderTerms, entity.Alias+"."+entity.Key+" ASC")
	}

	var cols []*schema.Field
	var sel []string
	for _, f := range entity.RootPath().Fields {
		if f.Kind == schema.KindTags {
			continue
		}
		cols = append(cols, f)
		sel = append(sel, f.Qualified())
	}

	var sb strings.Builder
	sb.WriteString("SELECT " + strings.Join(sel, ", "))
	sb.WriteString(b.from())
	sb.WriteString(" ORDER BY " + strings.Join(orderTerms, ", "))
	sb.WriteString(" LIMIT " + b.bind(spec.Limit))
	if spec.Offset > 0 {
		sb.WriteString(" OFFSET " + b.bind(spec.Offset))
	}

	return &Plan{
		Kind:      RowPlan,
		Entity:    entity,
		Base:      entity.Table,
		Joins:     b.joins,
		SemiJoins: b.semi,
		Limit:     spec.Limit,
		Offset:    spec.Offset,
		SQL:       sb.String(),
		Args:      b.args,
		Columns:   cols,
	}, nil
}

// reField re-reports a validation error against the caller's original term.
func reField(err error, field string) error {
	var ve *apperr.ValidationError
	if errors.As(err, &ve) {
		return apperr.Invalid(field, "%s", ve.Message)
	}
	return err
}

func escapeLike(s string) string {
	r := strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)
	return r.Replace(s)
}
