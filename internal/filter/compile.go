package filter

const (
	combinatorAnd = "and"
	combinatorOr  = "or"
	combinatorNot = "not"
)

func isCombinator(key string) bool {
	return key == combinatorAnd || key == combinatorOr || key == combinatorNot
}

type compiler struct {
	registry *Registry
	base     *Settings
	limits   Limits
}

// Compile turns a filter tree into conditions for base. The conditions are
// implicitly joined with AND. A nil filter yields no conditions.
func (r *Registry) Compile(base *Settings, filter any, limits Limits) ([]Condition, error) {
	c := &compiler{registry: r, base: base, limits: limits.withDefaults()}
	return c.compileRoot(filter)
}

func (c *compiler) compileRoot(filter any) ([]Condition, error) {
	switch f := filter.(type) {
	case nil:
		return nil, nil
	case *Hash:
		return c.compileHash(f, nil)
	case []any:
		// A bare array is shorthand for and.
		if len(f) == 0 {
			return nil, argErr(f, "filter array must not be empty")
		}
		conds, err := c.compileList(f, nil)
		if err != nil {
			return nil, err
		}
		return []Condition{fold(conds, combinatorAnd)}, nil
	default:
		return nil, argErr(filter, "filter must be an object or an array")
	}
}

// compileHash compiles every entry of h. With a nil field the keys are
// combinators or field names; inside a field they are combinators or
// operators.
func (c *compiler) compileHash(h *Hash, field *FieldInfo) ([]Condition, error) {
	if h.Len() == 0 {
		return nil, argErr(h, "filter hash must not be empty")
	}
	var out []Condition
	err := h.Each(func(key string, value any) error {
		var (
			conds []Condition
			err   error
		)
		switch {
		case isCombinator(key):
			conds, err = c.compileCombinator(key, value, field)
		case field == nil:
			conds, err = c.compileField(key, value)
		default:
			var cond Condition
			cond, err = c.compileOperator(*field, key, value)
			conds = []Condition{cond}
		}
		if err != nil {
			return err
		}
		out = append(out, conds...)
		return nil
	})
	return out, err
}

func (c *compiler) compileList(items []any, field *FieldInfo) ([]Condition, error) {
	var out []Condition
	for _, item := range items {
		h, ok := item.(*Hash)
		if !ok {
			return nil, argErr(item, "combinator entries must be objects")
		}
		conds, err := c.compileHash(h, field)
		if err != nil {
			return nil, err
		}
		out = append(out, conds...)
	}
	return out, nil
}

func (c *compiler) compileCombinator(key string, value any, field *FieldInfo) ([]Condition, error) {
	var (
		conds []Condition
		err   error
	)
	switch v := value.(type) {
	case *Hash:
		conds, err = c.compileHash(v, field)
	case []any:
		conds, err = c.compileList(v, field)
	default:
		return nil, argErr(value, "%s must be given an object or an array", key)
	}
	if err != nil {
		return nil, err
	}

	switch key {
	case combinatorNot:
		if len(conds) == 0 {
			return nil, argErr(value, "not must contain at least one condition")
		}
		negated := make([]Condition, len(conds))
		for i, cond := range conds {
			negated[i] = Condition{Expr: Not{Inner: cond.Expr}, Transforms: cond.Transforms}
		}
		return negated, nil
	default:
		if len(conds) < 2 {
			return nil, argErr(value, "%s must contain at least two conditions", key)
		}
		return []Condition{fold(conds, key)}, nil
	}
}

// fold combines conditions pairwise from the left.
func fold(conds []Condition, combinator string) Condition {
	acc := conds[0]
	for _, next := range conds[1:] {
		var expr Expr
		if combinator == combinatorOr {
			expr = Or{Left: acc.Expr, Right: next.Expr}
		} else {
			expr = And{Left: acc.Expr, Right: next.Expr}
		}
		acc = Condition{Expr: expr, Transforms: mergeTransforms(acc.Transforms, next.Transforms)}
	}
	return acc
}

func (c *compiler) compileField(name string, value any) ([]Condition, error) {
	info, err := c.registry.Resolve(c.base, name)
	if err != nil {
		return nil, err
	}
	h, ok := value.(*Hash)
	if !ok {
		return nil, argErr(value, "the filter for %s must be an object of operators", name)
	}
	conds, err := c.compileHash(h, &info)
	if err != nil {
		return nil, err
	}
	if !info.Foreign() {
		return conds, nil
	}
	return []Condition{c.lift(info, fold(conds, combinatorAnd))}, nil
}

func (c *compiler) compileOperator(field FieldInfo, key string, value any) (Condition, error) {
	op, ok := ParseOperator(key)
	if !ok {
		return Condition{}, argErr(key, "unrecognised operator %s", key)
	}
	target := fieldTarget{name: field.Name, expr: field.Expr, typ: field.Type}
	target, value, transforms, err := c.applyExpressions(target, value)
	if err != nil {
		return Condition{}, err
	}
	expr, err := buildCondition(op, target, value, c.limits)
	if err != nil {
		return Condition{}, err
	}
	return Condition{Expr: expr, Transforms: transforms}, nil
}

// lift moves a condition on an associated table into a subquery on the base
// table so that to-many joins cannot duplicate base rows:
//
//	base.id IN (SELECT base.id FROM base JOIN ... WHERE cond)
func (c *compiler) lift(info FieldInfo, cond Condition) Condition {
	pk := c.base.PrimaryKey()
	sub := &Select{
		Items: []SelectItem{{Expr: pk}},
		From:  c.base.Table.Name,
	}
	for _, assoc := range info.Path {
		sub.AddJoin(Join{Kind: InnerJoin, Table: assoc.Table, On: assoc.On})
	}
	applyTransforms(sub, map[string]struct{}{}, cond.Transforms)
	sub.Where = append(sub.Where, cond.Expr)
	return Condition{Expr: InSubquery{Left: pk, Query: sub}}
}
