package filter

import (
	"regexp"
	"strings"
)

// Transform prepares the enclosing query for a condition, usually by adding
// a join. Key identifies the transform so it is applied once per query.
type Transform struct {
	Key   string
	Apply func(q *Select)
}

// Condition is a compiled predicate plus the transforms that must be applied
// to the query before the predicate is attached to it.
type Condition struct {
	Expr       Expr
	Transforms []Transform
}

func applyTransforms(q *Select, seen map[string]struct{}, transforms []Transform) {
	for _, t := range transforms {
		if _, ok := seen[t.Key]; ok {
			continue
		}
		seen[t.Key] = struct{}{}
		t.Apply(q)
	}
}

func mergeTransforms(sets ...[]Transform) []Transform {
	var out []Transform
	seen := map[string]struct{}{}
	for _, set := range sets {
		for _, t := range set {
			if _, ok := seen[t.Key]; ok {
				continue
			}
			seen[t.Key] = struct{}{}
			out = append(out, t)
		}
	}
	return out
}

// expression rewrites a field reference before an operator is applied.
type expression struct {
	inputs []ColumnType
	output ColumnType
	apply  func(c *compiler, target fieldTarget) (Expr, []Transform, error)
	value  func(target fieldTarget, v any) (any, error)
}

var expressions = map[string]expression{
	"local_tz": {
		inputs: []ColumnType{TypeDateTime},
		output: TypeDateTime,
		apply: func(c *compiler, target fieldTarget) (Expr, []Transform, error) {
			zone, transforms, err := c.timezoneColumn()
			if err != nil {
				return nil, nil, err
			}
			return AtTimeZone{Inner: target.expr, Zone: zone}, transforms, nil
		},
	},
	"local_offset": {
		inputs: []ColumnType{TypeDateTime},
		output: TypeDateTime,
		apply: func(c *compiler, target fieldTarget) (Expr, []Transform, error) {
			zone, transforms, err := c.timezoneColumn()
			if err != nil {
				return nil, nil, err
			}
			transforms = append(transforms, Transform{
				Key: "join:pg_timezone_names",
				Apply: func(q *Select) {
					q.AddJoin(Join{
						Kind:  LeftJoin,
						Table: "pg_timezone_names",
						On:    Binary{Op: OpSQLEq, Left: Column{Table: "pg_timezone_names", Name: "name"}, Right: zone},
					})
				},
			})
			expr := Binary{
				Op:    OpSQLPlus,
				Left:  AtTimeZone{Inner: target.expr, Zone: Raw("'UTC'")},
				Right: Func{Name: "COALESCE", Args: []Expr{Column{Table: "pg_timezone_names", Name: "utc_offset"}, Raw("INTERVAL '0'")}},
			}
			return Group{Inner: expr}, transforms, nil
		},
	},
	"time_of_day": {
		inputs: []ColumnType{TypeDateTime, TypeTime},
		output: TypeTime,
		apply: func(_ *compiler, target fieldTarget) (Expr, []Transform, error) {
			return Cast{Inner: target.expr, Type: "time"}, nil, nil
		},
		value: timeOfDayValue,
	},
}

var timeOfDayPattern = regexp.MustCompile(`^([01]\d|2[0-3]):[0-5]\d(:[0-5]\d(\.\d+)?)?$`)

// timeOfDayValue checks every time string inside v. Interval strings are
// checked bound by bound.
func timeOfDayValue(target fieldTarget, v any) (any, error) {
	switch t := v.(type) {
	case nil:
		return nil, nil
	case string:
		if m := intervalPattern.FindStringSubmatch(strings.TrimSpace(t)); m != nil {
			for _, bound := range []string{m[2], m[3]} {
				if _, err := timeOfDayValue(target, strings.TrimSpace(bound)); err != nil {
					return nil, err
				}
			}
			return t, nil
		}
		if !timeOfDayPattern.MatchString(t) {
			return nil, argErr(t, "%s must be a time of day formatted as HH:MM or HH:MM:SS", target.name)
		}
		return t, nil
	case []any:
		out := make([]any, len(t))
		for i, item := range t {
			conv, err := timeOfDayValue(target, item)
			if err != nil {
				return nil, err
			}
			out[i] = conv
		}
		return out, nil
	case *Hash:
		out := NewHash()
		err := t.Each(func(k string, item any) error {
			conv, err := timeOfDayValue(target, item)
			if err != nil {
				return err
			}
			out.Set(k, conv)
			return nil
		})
		return out, err
	default:
		return nil, argErr(v, "%s must be a time of day string", target.name)
	}
}

// applyExpressions unwraps {expressions: [...], value: ...}. Plain values are
// returned unchanged.
func (c *compiler) applyExpressions(target fieldTarget, value any) (fieldTarget, any, []Transform, error) {
	h, ok := value.(*Hash)
	if !ok || !h.Has("expressions") {
		return target, value, nil, nil
	}
	for _, k := range h.Keys() {
		if k != "expressions" && k != "value" {
			return target, nil, nil, argErr(value, "unexpected key %s in expression object", k)
		}
	}
	inner, ok := h.Get("value")
	if !ok {
		return target, nil, nil, argErr(value, "expression object for %s is missing a value", target.name)
	}
	rawNames, _ := h.Get("expressions")
	names, ok := rawNames.([]any)
	if !ok || len(names) == 0 {
		return target, nil, nil, argErr(value, "expressions for %s must be a non-empty array", target.name)
	}

	var transforms []Transform
	for _, raw := range names {
		name, ok := raw.(string)
		if !ok {
			return target, nil, nil, argErr(raw, "expression names must be strings")
		}
		exp, ok := expressions[name]
		if !ok {
			return target, nil, nil, argErr(name, "unknown expression %s", name)
		}
		if !acceptsType(exp.inputs, target.typ) {
			return target, nil, nil, argErr(name, "expression %s cannot be applied to %s of type %s", name, target.name, target.typ)
		}
		expr, extra, err := exp.apply(c, target)
		if err != nil {
			return target, nil, nil, err
		}
		if exp.value != nil {
			if inner, err = exp.value(target, inner); err != nil {
				return target, nil, nil, err
			}
		}
		target = fieldTarget{name: target.name, expr: expr, typ: exp.output}
		transforms = mergeTransforms(transforms, extra)
	}
	return target, inner, transforms, nil
}

func acceptsType(types []ColumnType, t ColumnType) bool {
	for _, candidate := range types {
		if candidate == t {
			return true
		}
	}
	return false
}

// timezoneColumn returns the column holding the base resource's time zone
// and the joins needed to reach it.
func (c *compiler) timezoneColumn() (Expr, []Transform, error) {
	tz := c.base.Timezone
	if tz == nil {
		return nil, nil, argErr(c.base.Resource, "%s does not support local time expressions", c.base.Resource)
	}
	col := Column{Table: tz.Table, Name: tz.Column}
	if tz.Table == c.base.Table.Name {
		return col, nil, nil
	}
	path, ok := c.registry.findPath(c.base, tz.Table, false)
	if !ok {
		return nil, nil, argErr(c.base.Resource, "%s cannot reach time zone table %s", c.base.Resource, tz.Table)
	}
	transforms := make([]Transform, 0, len(path))
	for _, assoc := range path {
		assoc := assoc
		transforms = append(transforms, Transform{
			Key: "join:" + assoc.Table,
			Apply: func(q *Select) {
				q.AddJoin(Join{Kind: LeftJoin, Table: assoc.Table, On: assoc.On})
			},
		})
	}
	return col, transforms, nil
}
