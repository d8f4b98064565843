// Package schema describes the life-event data model: entities, their typed
// fields and the relationship paths reachable from each queryable root.
//
// A Model is built once at process start, validated, and never mutated
// afterwards. The query engine consults it for every field reference instead
// of trusting caller-provided names.
package schema

import (
	"fmt"
	"sort"
	"strings"

	"github.com/starford/lifelog/internal/apperr"
)

// Kind is the value type of a field.
type Kind int

const (
	KindString Kind = iota + 1
	KindEnum
	KindInt
	KindFloat
	KindBool
	KindTime
	KindTags
)

var kindNames = map[Kind]string{
	KindString: "string",
	KindEnum:   "enum",
	KindInt:    "int",
	KindFloat:  "float",
	KindBool:   "bool",
	KindTime:   "time",
	KindTags:   "tags",
}

func (k Kind) String() string {
	if n, ok := kindNames[k]; ok {
		return n
	}
	return fmt.Sprintf("kind(%d)", int(k))
}

// Numeric reports whether metrics such as sum and avg may be computed over k.
func (k Kind) Numeric() bool { return k == KindInt || k == KindFloat }

// Cardinality describes how many rows a path contributes per root row.
type Cardinality int

const (
	Root Cardinality = iota
	ToOne
	ToMany
)

func (c Cardinality) String() string {
	switch c {
	case Root:
		return "root"
	case ToOne:
		return "to_one"
	case ToMany:
		return "to_many"
	}
	return "unknown"
}

// SetSource locates the normalized table behind a KindTags field.
type SetSource struct {
	Table       string
	Alias       string
	KeyColumn   string
	ValueColumn string
}

// Field is a typed column descriptor.
type Field struct {
	Name   string
	Alias  string // table alias holding Column
	Column string
	Kind   Kind
	Values []string // allowed values for KindEnum
	Set    *SetSource
}

// Qualified returns alias.column.
func (f *Field) Qualified() string { return f.Alias + "." + f.Column }

// Allows reports whether v is an allowed enum value.
func (f *Field) Allows(v string) bool {
	for _, a := range f.Values {
		if a == v {
			return true
		}
	}
	return false
}

// Join is one table in a path's join chain. On references aliases that
// precede it in the chain, or the root alias for the first join.
type Join struct {
	Table      string
	Alias      string
	On         string
	SoftDelete bool
}

// Path is a named route from a root entity to a set of fields.
type Path struct {
	Name        string
	Cardinality Cardinality
	Joins       []Join
	Fields      []*Field

	byName map[string]*Field
}

// Field returns the named field on the path.
func (p *Path) Field(name string) (*Field, bool) {
	f, ok := p.byName[name]
	return f, ok
}

// Relation is a hydratable relationship of a root entity.
type Relation struct {
	Name        string
	Description string
}

// Entity is a queryable root.
type Entity struct {
	Name       string
	Table      string
	Alias      string
	Key        string
	SoftDelete bool
	// DefaultOrder is the field on the root path used when the caller gives
	// no explicit order. Desc selects descending order.
	DefaultOrder string
	DefaultDesc  bool

	paths     map[string]*Path
	pathOrder []string
	relations map[string]Relation
	relOrder  []string
}

// Path returns the named path. The root path carries the entity's own name.
func (e *Entity) Path(name string) (*Path, bool) {
	p, ok := e.paths[name]
	return p, ok
}

// RootPath returns the path of the entity's own fields.
func (e *Entity) RootPath() *Path { return e.paths[e.Name] }

// Paths returns every path in declaration order.
func (e *Entity) Paths() []*Path {
	out := make([]*Path, 0, len(e.pathOrder))
	for _, n := range e.pathOrder {
		out = append(out, e.paths[n])
	}
	return out
}

// Relation returns the named hydration relationship.
func (e *Entity) Relation(name string) (Relation, bool) {
	r, ok := e.relations[name]
	return r, ok
}

// Relations returns every hydration relationship in declaration order.
func (e *Entity) Relations() []Relation {
	out := make([]Relation, 0, len(e.relOrder))
	for _, n := range e.relOrder {
		out = append(out, e.relations[n])
	}
	return out
}

// Resolve maps a field reference to its path and field descriptor.
//
// A qualified reference ("participant.name") must name a known path and a
// field declared on it. An unqualified reference resolves to the root's field
// when the root declares it, otherwise to the single path that does; a name
// declared on several non-root paths is ambiguous.
func (e *Entity) Resolve(ref string) (*Path, *Field, error) {
	ref = strings.TrimSpace(ref)
	if ref == "" {
		return nil, nil, apperr.Invalid(ref, "empty field reference")
	}

	if pathName, fieldName, ok := strings.Cut(ref, "."); ok {
		p, found := e.paths[pathName]
		if !found {
			return nil, nil, apperr.Invalid(ref, "unknown entity path %q", pathName)
		}
		f, found := p.byName[fieldName]
		if !found {
			return nil, nil, apperr.Invalid(ref, "%q has no field %q", pathName, fieldName)
		}
		return p, f, nil
	}

	root := e.RootPath()
	if f, ok := root.byName[ref]; ok {
		return root, f, nil
	}

	var (
		matchPath  *Path
		matchField *Field
		candidates []string
	)
	for _, n := range e.pathOrder {
		p := e.paths[n]
		if f, ok := p.byName[ref]; ok {
			matchPath, matchField = p, f
			candidates = append(candidates, p.Name+"."+ref)
		}
	}
	switch len(candidates) {
	case 0:
		return nil, nil, apperr.Invalid(ref, "unknown field")
	case 1:
		return matchPath, matchField, nil
	default:
		return nil, nil, apperr.Invalid(ref, "ambiguous field, qualify it as one of: %s", strings.Join(candidates, ", "))
	}
}

// Model is the immutable set of queryable root entities.
type Model struct {
	entities map[string]*Entity
	order    []string
}

// Entity returns the named root entity.
func (m *Model) Entity(name string) (*Entity, bool) {
	e, ok := m.entities[strings.ToLower(strings.TrimSpace(name))]
	return e, ok
}

// Entities returns every root entity in declaration order.
func (m *Model) Entities() []*Entity {
	out := make([]*Entity, 0, len(m.order))
	for _, n := range m.order {
		out = append(out, m.entities[n])
	}
	return out
}

// Builder assembles a Model. It is only used while the process starts.
type Builder struct {
	model *Model
	errs  []string
}

// NewBuilder returns an empty Builder.
func NewBuilder() *Builder {
	return &Builder{model: &Model{entities: make(map[string]*Entity)}}
}

// Entity registers a root entity and returns it for path registration.
func (b *Builder) Entity(e *Entity) *Entity {
	if _, dup := b.model.entities[e.Name]; dup {
		b.errs = append(b.errs, fmt.Sprintf("duplicate entity %q", e.Name))
	}
	e.paths = make(map[string]*Path)
	e.relations = make(map[string]Relation)
	b.model.entities[e.Name] = e
	b.model.order = append(b.model.order, e.Name)
	return e
}

// Path registers a path on e.
func (b *Builder) Path(e *Entity, p *Path) {
	if _, dup := e.paths[p.Name]; dup {
		b.errs = append(b.errs, fmt.Sprintf("%s: duplicate path %q", e.Name, p.Name))
		return
	}
	p.byName = make(map[string]*Field, len(p.Fields))
	for _, f := range p.Fields {
		if _, dup := p.byName[f.Name]; dup {
			b.errs = append(b.errs, fmt.Sprintf("%s.%s: duplicate field %q", e.Name, p.Name, f.Name))
			continue
		}
		p.byName[f.Name] = f
	}
	e.paths[p.Name] = p
	e.pathOrder = append(e.pathOrder, p.Name)
}

// Relation registers a hydration relationship on e.
func (b *Builder) Relation(e *Entity, r Relation) {
	if _, dup := e.relations[r.Name]; dup {
		b.errs = append(b.errs, fmt.Sprintf("%s: duplicate relation %q", e.Name, r.Name))
		return
	}
	e.relations[r.Name] = r
	e.relOrder = append(e.relOrder, r.Name)
}

// Build validates and returns the model.
func (b *Builder) Build() (*Model, error) {
	for _, name := range b.model.order {
		b.validateEntity(b.model.entities[name])
	}
	if len(b.errs) > 0 {
		sort.Strings(b.errs)
		return nil, fmt.Errorf("schema: invalid model: %s", strings.Join(b.errs, "; "))
	}
	return b.model, nil
}

func (b *Builder) validateEntity(e *Entity) {
	root, ok := e.paths[e.Name]
	if !ok {
		b.errs = append(b.errs, fmt.Sprintf("%s: missing root path", e.Name))
		return
	}
	if root.Cardinality != Root || len(root.Joins) != 0 {
		b.errs = append(b.errs, fmt.Sprintf("%s: root path must have no joins", e.Name))
	}
	if _, ok := root.byName[e.Key]; !ok {
		b.errs = append(b.errs, fmt.Sprintf("%s: key %q is not a root field", e.Name, e.Key))
	}
	if e.DefaultOrder != "" {
		if _, ok := root.byName[e.DefaultOrder]; !ok {
			b.errs = append(b.errs, fmt.Sprintf("%s: default order %q is not a root field", e.Name, e.DefaultOrder))
		}
	}

	for _, pn := range e.pathOrder {
		p := e.paths[pn]
		if p.Cardinality != Root && len(p.Joins) == 0 {
			b.errs = append(b.errs, fmt.Sprintf("%s.%s: non-root path without joins", e.Name, pn))
		}
		aliases := map[string]bool{e.Alias: true}
		for _, j := range p.Joins {
			if j.Table == "" || j.Alias == "" || j.On == "" {
				b.errs = append(b.errs, fmt.Sprintf("%s.%s: incomplete join", e.Name, pn))
			}
			aliases[j.Alias] = true
		}
		for _, f := range p.Fields {
			if _, ok := kindNames[f.Kind]; !ok {
				b.errs = append(b.errs, fmt.Sprintf("%s.%s.%s: unknown kind", e.Name, pn, f.Name))
			}
			if f.Kind == KindEnum && len(f.Values) == 0 {
				b.errs = append(b.errs, fmt.Sprintf("%s.%s.%s: enum without values", e.Name, pn, f.Name))
			}
			if f.Kind == KindTags {
				if f.Set == nil {
					b.errs = append(b.errs, fmt.Sprintf("%s.%s.%s: tags field without set source", e.Name, pn, f.Name))
				}
				continue
			}
			if !aliases[f.Alias] {
				b.errs = append(b.errs, fmt.Sprintf("%s.%s.%s: alias %q not in join chain", e.Name, pn, f.Name, f.Alias))
			}
		}
	}
}
