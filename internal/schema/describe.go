package schema

// FieldInfo describes one filterable field.
type FieldInfo struct {
	Name   string   `json:"name"`
	Kind   string   `json:"kind"`
	Values []string `json:"values,omitempty"`
}

// PathInfo describes one entity path and its fields.
type PathInfo struct {
	Name        string      `json:"name"`
	Cardinality string      `json:"cardinality"`
	Fields      []FieldInfo `json:"fields"`
}

// EntityInfo describes a queryable root entity.
type EntityInfo struct {
	Name         string     `json:"name"`
	Key          string     `json:"key"`
	DefaultOrder string     `json:"default_order,omitempty"`
	Paths        []PathInfo `json:"paths"`
	Relations    []Relation `json:"relations"`
}

// Describe renders the model for clients that build queries against it.
func (m *Model) Describe() []EntityInfo {
	out := make([]EntityInfo, 0, len(m.order))
	for _, e := range m.Entities() {
		info := EntityInfo{Name: e.Name, Key: e.Key, Relations: e.Relations()}
		if e.DefaultOrder != "" {
			info.DefaultOrder = e.DefaultOrder
			if e.DefaultDesc {
				info.DefaultOrder = "-" + e.DefaultOrder
			}
		}
		for _, p := range e.Paths() {
			pi := PathInfo{Name: p.Name, Cardinality: p.Cardinality.String()}
			for _, f := range p.Fields {
				pi.Fields = append(pi.Fields, FieldInfo{Name: f.Name, Kind: f.Kind.String(), Values: f.Values})
			}
			info.Paths = append(info.Paths, pi)
		}
		out = append(out, info)
	}
	return out
}
