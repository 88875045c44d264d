package filter

// QSP is a filter supplied as a flat query string parameter.
type QSP struct {
	Field string
	Value string
}

// PartialMatchKey is the query parameter matched against every text field.
const PartialMatchKey = "partial_match"

type filterShape int

const (
	shapeEmpty filterShape = iota
	shapeFields
	shapeAnd
	shapeOrNot
	shapeArray
	shapeInvalid
)

func shapeOf(filter any) filterShape {
	switch f := filter.(type) {
	case nil:
		return shapeEmpty
	case []any:
		return shapeArray
	case *Hash:
		if f.Len() == 0 {
			return shapeEmpty
		}
		if and, ok := f.Get(combinatorAnd); ok {
			if _, isHash := and.(*Hash); isHash {
				return shapeAnd
			}
		}
		if f.Has(combinatorOr) || f.Has(combinatorNot) || f.Has(combinatorAnd) {
			return shapeOrNot
		}
		return shapeFields
	}
	return shapeInvalid
}

// qspFilter converts query string filters into one filter object. Equality
// filters become {field: {eq: value}}; a partial match becomes an or over
// the resource's text fields (or a single contains when there is only one).
func (r *Registry) qspFilter(base *Settings, params []QSP) (*Hash, error) {
	add := NewHash()
	for _, p := range params {
		if p.Field == PartialMatchKey {
			if len(base.TextFields) == 0 {
				return nil, argErr(p.Field, "%s does not support partial matching", base.Resource)
			}
			group := NewHash()
			for _, f := range base.TextFields {
				group.Set(f, HashOf("contains", p.Value))
			}
			if group.Len() == 1 {
				f := base.TextFields[0]
				v, _ := group.Get(f)
				add.Set(f, v)
				continue
			}
			add.Set(combinatorOr, group)
			continue
		}
		info, err := r.Resolve(base, p.Field)
		if err != nil {
			return nil, err
		}
		value, err := coerce(p.Value, info.Type)
		if err != nil {
			return nil, err
		}
		if add.Has(p.Field) {
			return nil, argErr(p.Field, "query string filter %s given twice", p.Field)
		}
		add.Set(p.Field, HashOf("eq", value))
	}
	return add, nil
}

// AddQSP folds query string filters into filter. The shape of filter decides
// where they go: an empty filter takes them as is, a plain object or one
// with or/not takes them as extra top level keys, an object whose and is an
// object takes them inside that and, an array gets them appended. When any
// key collides the two filters are wrapped as {and: [filter, additions]}.
func (r *Registry) AddQSP(base *Settings, filter any, params []QSP) (any, error) {
	if len(params) == 0 {
		return filter, nil
	}
	add, err := r.qspFilter(base, params)
	if err != nil {
		return nil, err
	}

	switch shapeOf(filter) {
	case shapeEmpty:
		return add, nil
	case shapeArray:
		return append(append([]any{}, filter.([]any)...), add), nil
	case shapeAnd:
		merged := filter.(*Hash).Clone()
		and, _ := merged.Get(combinatorAnd)
		if mergeDisjoint(and.(*Hash), add) {
			return merged, nil
		}
		return wrapAnd(filter, add), nil
	case shapeFields, shapeOrNot:
		merged := filter.(*Hash).Clone()
		if mergeDisjoint(merged, add) {
			return merged, nil
		}
		return wrapAnd(filter, add), nil
	}
	return nil, argErr(filter, "filter must be an object or an array")
}

// mergeDisjoint copies add into dst when no key collides.
func mergeDisjoint(dst, add *Hash) bool {
	for _, k := range add.Keys() {
		if dst.Has(k) {
			return false
		}
	}
	for _, k := range add.Keys() {
		v, _ := add.Get(k)
		dst.Set(k, v)
	}
	return true
}

func wrapAnd(filter any, add *Hash) *Hash {
	return HashOf(combinatorAnd, []any{cloneValue(filter), add})
}
