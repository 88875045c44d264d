package filter

import (
	"fmt"
	"strings"

	lru "github.com/hashicorp/golang-lru/v2"
)

// Direction is a sort direction.
type Direction string

const (
	Asc  Direction = "asc"
	Desc Direction = "desc"
)

// CustomField is a named field that is not a plain column. A calculated field
// has Expr and Type and can be filtered, sorted and projected. A virtual field
// lists QueryAttributes that are selected and handed to Transform after the
// query has run; it can only be projected.
type CustomField struct {
	Name            string
	Expr            Expr
	Type            ColumnType
	QueryAttributes []string
	Transform       func(row map[string]any) any
}

// Calculated reports whether the field is backed by a query expression.
func (f *CustomField) Calculated() bool { return f.Expr != nil }

// Association is one edge of the join graph reachable from a resource.
// Only Available tables may be referenced as "table.field" in filters; the
// others exist to link tables together (join tables, for example).
type Association struct {
	Table     string
	On        Expr
	Available bool
	Children  []Association
}

// TimezoneSource names the column holding an IANA zone for local time expressions.
type TimezoneSource struct {
	Table  string
	Column string
}

// Defaults are applied when a request omits sorting or filtering.
type Defaults struct {
	OrderBy   string
	Direction Direction
	Filter    *Hash
}

// Settings describes what a resource exposes to the filter language.
type Settings struct {
	Resource     string
	Table        *Table
	ValidFields  []string
	TextFields   []string
	RenderFields []string
	CustomFields []CustomField
	Associations []Association
	Defaults     Defaults
	Timezone     *TimezoneSource

	valid  map[string]struct{}
	custom map[string]*CustomField
}

// NewSettings validates s and returns a ready to use copy.
func NewSettings(s Settings) (*Settings, error) {
	if s.Table == nil || s.Table.Name == "" {
		return nil, fmt.Errorf("filter settings: table is required")
	}
	if s.Resource == "" {
		s.Resource = s.Table.Name
	}
	fail := func(format string, args ...any) (*Settings, error) {
		return nil, fmt.Errorf("filter settings %s: "+format, append([]any{s.Resource}, args...)...)
	}

	s.custom = make(map[string]*CustomField, len(s.CustomFields))
	for i := range s.CustomFields {
		cf := &s.CustomFields[i]
		if cf.Name == "" {
			return fail("custom field %d has no name", i)
		}
		if s.Table.Has(cf.Name) {
			return fail("custom field %s shadows a column", cf.Name)
		}
		if _, dup := s.custom[cf.Name]; dup {
			return fail("custom field %s is defined twice", cf.Name)
		}
		hasCalc := cf.Expr != nil || cf.Type != TypeUnknown
		hasVirtual := len(cf.QueryAttributes) > 0 || cf.Transform != nil
		switch {
		case hasCalc && hasVirtual:
			return fail("custom field %s must not set both an expression and query attributes", cf.Name)
		case !hasCalc && !hasVirtual:
			return fail("custom field %s must set either an expression or query attributes", cf.Name)
		case hasCalc && (cf.Expr == nil || cf.Type == TypeUnknown):
			return fail("custom field %s needs both an expression and a type", cf.Name)
		case hasVirtual && (len(cf.QueryAttributes) == 0 || cf.Transform == nil):
			return fail("custom field %s needs both query attributes and a transform", cf.Name)
		}
		for _, attr := range cf.QueryAttributes {
			if !s.Table.Has(attr) {
				return fail("custom field %s uses unknown column %s", cf.Name, attr)
			}
		}
		s.custom[cf.Name] = cf
	}

	s.valid = make(map[string]struct{}, len(s.ValidFields))
	for _, f := range s.ValidFields {
		if cf, ok := s.custom[f]; ok {
			if !cf.Calculated() {
				return fail("virtual field %s cannot be filtered", f)
			}
		} else if !s.Table.Has(f) {
			return fail("valid field %s is not a column", f)
		}
		s.valid[f] = struct{}{}
	}
	for _, f := range s.TextFields {
		if _, ok := s.valid[f]; !ok {
			return fail("text field %s is not a valid field", f)
		}
		if !s.typeOf(f).IsText() {
			return fail("text field %s is not textual", f)
		}
	}
	if len(s.RenderFields) == 0 {
		return fail("at least one render field is required")
	}
	for _, f := range s.RenderFields {
		if !s.Table.Has(f) && s.custom[f] == nil {
			return fail("render field %s is unknown", f)
		}
	}

	if s.Defaults.Direction == "" {
		s.Defaults.Direction = Asc
	}
	if s.Defaults.Direction != Asc && s.Defaults.Direction != Desc {
		return fail("default direction %s is invalid", s.Defaults.Direction)
	}
	if s.Defaults.OrderBy != "" && !s.IsValid(s.Defaults.OrderBy) {
		return fail("default order %s is not a valid field", s.Defaults.OrderBy)
	}
	if s.Timezone != nil && (s.Timezone.Table == "" || s.Timezone.Column == "") {
		return fail("timezone source needs a table and a column")
	}
	return &s, nil
}

// IsValid reports whether name may be filtered or sorted on.
func (s *Settings) IsValid(name string) bool {
	_, ok := s.valid[name]
	return ok
}

// Custom returns the custom field definition for name.
func (s *Settings) Custom(name string) (*CustomField, bool) {
	cf, ok := s.custom[name]
	return cf, ok
}

// Projectable reports whether name can appear in a projection.
func (s *Settings) Projectable(name string) bool {
	if _, ok := s.custom[name]; ok {
		return true
	}
	for _, f := range s.RenderFields {
		if f == name {
			return true
		}
	}
	return false
}

func (s *Settings) typeOf(name string) ColumnType {
	if cf, ok := s.custom[name]; ok {
		return cf.Type
	}
	return s.Table.TypeOf(name)
}

// expr returns the SQL expression for a filterable field.
func (s *Settings) expr(name string) Expr {
	if cf, ok := s.custom[name]; ok {
		return cf.Expr
	}
	return s.Table.Col(name)
}

// PrimaryKey is the column used to correlate association subqueries.
func (s *Settings) PrimaryKey() Column {
	return s.Table.Col("id")
}

// Registry holds the settings of every resource and resolves association paths.
type Registry struct {
	byResource map[string]*Settings
	byTable    map[string]*Settings
	order      []string
	paths      *lru.Cache[string, []Association]
}

// NewRegistry validates cross-resource references and builds the registry.
func NewRegistry(cacheSize int, all ...*Settings) (*Registry, error) {
	if cacheSize <= 0 {
		cacheSize = 128
	}
	cache, err := lru.New[string, []Association](cacheSize)
	if err != nil {
		return nil, fmt.Errorf("association cache: %w", err)
	}
	r := &Registry{
		byResource: make(map[string]*Settings, len(all)),
		byTable:    make(map[string]*Settings, len(all)),
		paths:      cache,
	}
	for _, s := range all {
		if _, dup := r.byResource[s.Resource]; dup {
			return nil, fmt.Errorf("filter registry: resource %s registered twice", s.Resource)
		}
		r.byResource[s.Resource] = s
		r.byTable[s.Table.Name] = s
		r.order = append(r.order, s.Resource)
	}
	for _, s := range all {
		if err := r.checkAssociations(s, s.Associations); err != nil {
			return nil, err
		}
		if s.Timezone != nil && s.Timezone.Table != s.Table.Name {
			if _, ok := r.findPath(s, s.Timezone.Table, false); !ok {
				return nil, fmt.Errorf("filter registry: %s cannot reach timezone table %s", s.Resource, s.Timezone.Table)
			}
		}
	}
	return r, nil
}

func (r *Registry) checkAssociations(s *Settings, assocs []Association) error {
	for _, a := range assocs {
		if a.Table == "" || a.On == nil {
			return fmt.Errorf("filter registry: %s has an association without table or join condition", s.Resource)
		}
		if a.Available {
			if _, ok := r.byTable[a.Table]; !ok {
				return fmt.Errorf("filter registry: %s exposes unregistered table %s", s.Resource, a.Table)
			}
		}
		if err := r.checkAssociations(s, a.Children); err != nil {
			return err
		}
	}
	return nil
}

// Resource returns the settings registered under name.
func (r *Registry) Resource(name string) (*Settings, bool) {
	s, ok := r.byResource[name]
	return s, ok
}

// ForTable returns the settings whose table is name.
func (r *Registry) ForTable(name string) (*Settings, bool) {
	s, ok := r.byTable[name]
	return s, ok
}

// Resources lists resource names in registration order.
func (r *Registry) Resources() []string {
	out := make([]string, len(r.order))
	copy(out, r.order)
	return out
}

// findPath walks the association tree depth first and returns the chain of
// joins leading from base to table.
func (r *Registry) findPath(base *Settings, table string, availableOnly bool) ([]Association, bool) {
	key := strings.Join([]string{base.Resource, table, fmt.Sprint(availableOnly)}, "|")
	if cached, ok := r.paths.Get(key); ok {
		return cached, cached != nil
	}
	var walk func(nodes []Association, trail []Association) []Association
	walk = func(nodes []Association, trail []Association) []Association {
		for _, node := range nodes {
			next := append(append([]Association{}, trail...), node)
			if node.Table == table && (node.Available || !availableOnly) {
				return next
			}
			if found := walk(node.Children, next); found != nil {
				return found
			}
		}
		return nil
	}
	path := walk(base.Associations, nil)
	r.paths.Add(key, path)
	return path, path != nil
}
