package filter

import (
	"encoding/json"
	"math"
	"strconv"
	"strings"
)

// Sorting is the resolved sort order of a query.
type Sorting struct {
	OrderBy   string    `json:"order_by,omitempty"`
	Direction Direction `json:"direction,omitempty"`
}

// Paging is the resolved page window. Total and MaxPage are filled in once
// the count query has run.
type Paging struct {
	Page          int   `json:"page,omitempty"`
	Items         int   `json:"items,omitempty"`
	Total         int64 `json:"total"`
	MaxPage       int   `json:"max_page,omitempty"`
	DisablePaging bool  `json:"disable_paging,omitempty"`
}

// Meta mirrors the effective request back to clients.
type Meta struct {
	Filter     any                 `json:"filter,omitempty"`
	Sorting    Sorting             `json:"sorting"`
	Paging     Paging              `json:"paging"`
	Projection map[string][]string `json:"projection"`
}

// Query is an assembled, not yet executed, filter query.
type Query struct {
	Settings *Settings
	Select   *Select
	Count    *Select
	Fields   []string
	Meta     Meta
}

// SQL renders the paged select.
func (q *Query) SQL() (string, []any) { return q.Select.SQL() }

// CountSQL renders the total count, ignoring sorting and paging.
func (q *Query) CountSQL() (string, []any) { return q.Count.SQL() }

// SetTotal records the row count and derives the last page.
func (q *Query) SetTotal(total int64) {
	q.Meta.Paging.Total = total
	if q.Meta.Paging.DisablePaging || q.Meta.Paging.Items == 0 {
		return
	}
	maxPage := int((total + int64(q.Meta.Paging.Items) - 1) / int64(q.Meta.Paging.Items))
	if maxPage < 1 {
		maxPage = 1
	}
	q.Meta.Paging.MaxPage = maxPage
}

// Render shapes raw rows into ordered objects holding the projected fields.
// Virtual fields are computed from their query attributes here.
func (q *Query) Render(rows []map[string]any) []*Hash {
	out := make([]*Hash, 0, len(rows))
	for _, row := range rows {
		for k, v := range row {
			if b, ok := v.([]byte); ok {
				row[k] = string(b)
			}
		}
		h := NewHash()
		for _, f := range q.Fields {
			if cf, ok := q.Settings.Custom(f); ok && !cf.Calculated() {
				h.Set(f, cf.Transform(row))
				continue
			}
			h.Set(f, row[f])
		}
		out = append(out, h)
	}
	return out
}

// Builder assembles queries against a registry.
type Builder struct {
	registry *Registry
	limits   Limits
}

// NewBuilder returns a Builder using limits for paging and value checks.
func NewBuilder(registry *Registry, limits Limits) *Builder {
	return &Builder{registry: registry, limits: limits.withDefaults()}
}

// Registry returns the registry the builder resolves resources against.
func (b *Builder) Registry() *Registry { return b.registry }

// Limits returns the effective limits.
func (b *Builder) Limits() Limits { return b.limits }

// Build assembles the query for resource. Scopes are trusted conditions that
// restrict the result further, such as a parent id from the URL.
func (b *Builder) Build(resource string, req *Request, scopes ...Expr) (*Query, error) {
	settings, ok := b.registry.Resource(resource)
	if !ok {
		return nil, argErr(resource, "unknown resource %s", resource)
	}
	if req == nil {
		req = &Request{}
	}

	fields, err := projection(settings, req.Projection)
	if err != nil {
		return nil, err
	}
	sorting, order, err := sortOrder(settings, req.Sorting)
	if err != nil {
		return nil, err
	}
	paging, err := pageWindow(req.Paging, b.limits)
	if err != nil {
		return nil, err
	}

	filter, err := MergeDefaults(settings.Defaults.Filter, req.Filter)
	if err != nil {
		return nil, err
	}
	if filter, err = b.registry.AddQSP(settings, filter, req.QSP); err != nil {
		return nil, err
	}
	conds, err := b.registry.Compile(settings, filter, b.limits)
	if err != nil {
		return nil, err
	}

	sel := &Select{From: settings.Table.Name, Items: selectItems(settings, fields)}
	sel.Where = append(sel.Where, scopes...)
	seen := map[string]struct{}{}
	for _, cond := range conds {
		applyTransforms(sel, seen, cond.Transforms)
		sel.Where = append(sel.Where, cond.Expr)
	}

	count := &Select{
		Items: []SelectItem{{Expr: Func{Name: "COUNT", Args: []Expr{Raw("*")}}, Alias: "count"}},
		From:  sel.From,
		Joins: append([]Join(nil), sel.Joins...),
		Where: append([]Expr(nil), sel.Where...),
	}

	if order != nil {
		sel.OrderBy = []OrderTerm{*order}
	}
	if !paging.DisablePaging {
		sel.Limit = paging.Items
		sel.Offset = (paging.Page - 1) * paging.Items
	}

	return &Query{
		Settings: settings,
		Select:   sel,
		Count:    count,
		Fields:   fields,
		Meta: Meta{
			Filter:     filter,
			Sorting:    sorting,
			Paging:     paging,
			Projection: map[string][]string{"include": fields},
		},
	}, nil
}

func projection(s *Settings, h *Hash) ([]string, error) {
	if h.Len() == 0 {
		return append([]string(nil), s.RenderFields...), nil
	}
	if h.Len() != 1 || !(h.Has("include") || h.Has("exclude")) {
		return nil, argErr(h, "projection must contain exactly one of include or exclude")
	}
	mode := h.Keys()[0]
	raw, _ := h.Get(mode)
	items, ok := raw.([]any)
	if !ok || len(items) == 0 {
		return nil, argErr(h, "projection %s must be a non-empty array", mode)
	}
	named := make(map[string]struct{}, len(items))
	names := make([]string, 0, len(items))
	for _, item := range items {
		name, ok := item.(string)
		if !ok {
			return nil, argErr(item, "projection fields must be strings")
		}
		if _, dup := named[name]; dup {
			return nil, argErr(item, "projection field %s is given more than once", name)
		}
		if !s.Projectable(name) {
			return nil, argErr(item, "%s cannot be projected for %s", name, s.Resource)
		}
		named[name] = struct{}{}
		names = append(names, name)
	}
	if mode == "include" {
		return names, nil
	}
	var out []string
	for _, f := range s.RenderFields {
		if _, excluded := named[f]; !excluded {
			out = append(out, f)
		}
	}
	if len(out) == 0 {
		return nil, argErr(h, "projection must leave at least one field")
	}
	return out, nil
}

func selectItems(s *Settings, fields []string) []SelectItem {
	var items []SelectItem
	selected := map[string]struct{}{}
	add := func(name string, expr Expr, alias string) {
		if _, ok := selected[name]; ok {
			return
		}
		selected[name] = struct{}{}
		items = append(items, SelectItem{Expr: expr, Alias: alias})
	}
	for _, f := range fields {
		cf, ok := s.Custom(f)
		switch {
		case !ok:
			add(f, s.Table.Col(f), "")
		case cf.Calculated():
			add(f, cf.Expr, f)
		default:
			for _, attr := range cf.QueryAttributes {
				add(attr, s.Table.Col(attr), "")
			}
		}
	}
	return items
}

func sortOrder(s *Settings, h *Hash) (Sorting, *OrderTerm, error) {
	sorting := Sorting{OrderBy: s.Defaults.OrderBy, Direction: s.Defaults.Direction}
	for _, k := range h.Keys() {
		v, _ := h.Get(k)
		switch k {
		case "order_by":
			name, ok := v.(string)
			if !ok || name == "" {
				return sorting, nil, argErr(h, "order_by must be a field name")
			}
			sorting.OrderBy = name
		case "direction":
			dir, ok := v.(string)
			if !ok {
				return sorting, nil, argErr(h, "direction must be asc or desc")
			}
			switch Direction(strings.ToLower(dir)) {
			case Asc:
				sorting.Direction = Asc
			case Desc:
				sorting.Direction = Desc
			default:
				return sorting, nil, argErr(h, "direction must be asc or desc")
			}
		default:
			return sorting, nil, argErr(h, "sorting only accepts order_by and direction")
		}
	}
	if sorting.OrderBy == "" {
		if !s.Table.Has("id") {
			return sorting, nil, nil
		}
		sorting.OrderBy = "id"
	}
	if sorting.OrderBy != "id" && !s.IsValid(sorting.OrderBy) {
		return sorting, nil, argErr(sorting.OrderBy, "cannot sort %s by %s", s.Resource, sorting.OrderBy)
	}
	return sorting, &OrderTerm{Expr: s.expr(sorting.OrderBy), Desc: sorting.Direction == Desc}, nil
}

func pageWindow(h *Hash, limits Limits) (Paging, error) {
	paging := Paging{Page: 1, Items: limits.DefaultItems}
	disabled := false
	if v, ok := h.Get("disable_paging"); ok {
		b, err := boolParam(v)
		if err != nil {
			return paging, argErr(h, "disable_paging must be a boolean")
		}
		disabled = b
	}
	page, hasPage := h.Get("page")
	items, hasItems := h.Get("items")
	for _, k := range h.Keys() {
		if k != "page" && k != "items" && k != "disable_paging" {
			return paging, argErr(h, "paging only accepts page, items and disable_paging")
		}
	}
	if disabled {
		if hasPage || hasItems {
			return paging, argErr(h, "disable_paging cannot be combined with page or items")
		}
		return Paging{DisablePaging: true}, nil
	}
	if hasPage {
		n, err := intParam(page)
		if err != nil || n < 1 {
			return paging, argErr(h, "page must be a positive integer")
		}
		paging.Page = n
	}
	if hasItems {
		n, err := intParam(items)
		if err != nil || n < 1 {
			return paging, argErr(h, "items must be a positive integer")
		}
		paging.Items = n
	}
	if paging.Items > limits.MaxItems {
		paging.Items = limits.MaxItems
	}
	if paging.Page-1 > math.MaxInt/paging.Items {
		return paging, argErr(h, "page %d is out of range", paging.Page)
	}
	return paging, nil
}

func intParam(v any) (int, error) {
	switch t := v.(type) {
	case json.Number:
		n, err := t.Int64()
		return int(n), err
	case string:
		return strconv.Atoi(strings.TrimSpace(t))
	case int:
		return t, nil
	case int64:
		return int(t), nil
	case float64:
		if t != float64(int(t)) {
			return 0, strconv.ErrSyntax
		}
		return int(t), nil
	}
	return 0, strconv.ErrSyntax
}

func boolParam(v any) (bool, error) {
	switch t := v.(type) {
	case bool:
		return t, nil
	case string:
		return strconv.ParseBool(strings.TrimSpace(t))
	}
	return false, strconv.ErrSyntax
}
