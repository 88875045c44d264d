package filter

import (
	"regexp"
	"strings"
)

// Operator is a comparison applied to a field.
type Operator int

const (
	OpEq Operator = iota + 1
	OpNotEq
	OpLt
	OpNotLt
	OpGt
	OpNotGt
	OpLtEq
	OpNotLtEq
	OpGtEq
	OpNotGtEq
	OpRange
	OpNotRange
	OpIn
	OpNotIn
	OpContains
	OpNotContains
	OpStartsWith
	OpNotStartsWith
	OpEndsWith
	OpNotEndsWith
	OpRegex
	OpNotRegex
)

var operatorAliases = map[string]Operator{
	"eq":                        OpEq,
	"equal":                     OpEq,
	"not_eq":                    OpNotEq,
	"not_equal":                 OpNotEq,
	"lt":                        OpLt,
	"less_than":                 OpLt,
	"not_lt":                    OpNotLt,
	"not_less_than":             OpNotLt,
	"gt":                        OpGt,
	"greater_than":              OpGt,
	"not_gt":                    OpNotGt,
	"not_greater_than":          OpNotGt,
	"lteq":                      OpLtEq,
	"less_than_or_equal":        OpLtEq,
	"not_lteq":                  OpNotLtEq,
	"not_less_than_or_equal":    OpNotLtEq,
	"gteq":                      OpGtEq,
	"greater_than_or_equal":     OpGtEq,
	"not_gteq":                  OpNotGtEq,
	"not_greater_than_or_equal": OpNotGtEq,
	"range":                     OpRange,
	"in_range":                  OpRange,
	"not_range":                 OpNotRange,
	"not_in_range":              OpNotRange,
	"in":                        OpIn,
	"not_in":                    OpNotIn,
	"contains":                  OpContains,
	"not_contains":              OpNotContains,
	"starts_with":               OpStartsWith,
	"not_starts_with":           OpNotStartsWith,
	"ends_with":                 OpEndsWith,
	"not_ends_with":             OpNotEndsWith,
	"regex":                     OpRegex,
	"regex_match":               OpRegex,
	"matches":                   OpRegex,
	"not_regex":                 OpNotRegex,
	"not_regex_match":           OpNotRegex,
	"does_not_match":            OpNotRegex,
}

var operatorNames = map[Operator]string{
	OpEq: "eq", OpNotEq: "not_eq",
	OpLt: "lt", OpNotLt: "not_lt",
	OpGt: "gt", OpNotGt: "not_gt",
	OpLtEq: "lteq", OpNotLtEq: "not_lteq",
	OpGtEq: "gteq", OpNotGtEq: "not_gteq",
	OpRange: "range", OpNotRange: "not_range",
	OpIn: "in", OpNotIn: "not_in",
	OpContains: "contains", OpNotContains: "not_contains",
	OpStartsWith: "starts_with", OpNotStartsWith: "not_starts_with",
	OpEndsWith: "ends_with", OpNotEndsWith: "not_ends_with",
	OpRegex: "regex", OpNotRegex: "not_regex",
}

// ParseOperator maps a request key (including aliases) to an Operator.
func ParseOperator(name string) (Operator, bool) {
	op, ok := operatorAliases[name]
	return op, ok
}

func (o Operator) String() string {
	if name, ok := operatorNames[o]; ok {
		return name
	}
	return "unknown"
}

// fieldTarget is the left hand side of a comparison after any expressions
// have been applied.
type fieldTarget struct {
	name string
	expr Expr
	typ  ColumnType
}

var intervalPattern = regexp.MustCompile(`^(\[|\()(.*),(.*)(\)|\])$`)

// buildCondition dispatches on op. Every Operator constant has a case.
func buildCondition(op Operator, target fieldTarget, value any, limits Limits) (Expr, error) {
	switch op {
	case OpEq, OpNotEq:
		if err := validateScalar(target, value); err != nil {
			return nil, err
		}
		if err := checkType(value, target.typ); err != nil {
			return nil, err
		}
		if value == nil {
			return IsNull{Inner: target.expr, Negate: op == OpNotEq}, nil
		}
		sqlOp := OpSQLEq
		if op == OpNotEq {
			sqlOp = OpSQLNotEq
		}
		return Binary{Op: sqlOp, Left: target.expr, Right: Param{Value: paramValue(value)}}, nil

	case OpLt, OpNotLt, OpGt, OpNotGt, OpLtEq, OpNotLtEq, OpGtEq, OpNotGtEq:
		if err := validateScalar(target, value); err != nil {
			return nil, err
		}
		if value == nil {
			return nil, argErr(value, "%s cannot compare %s with null", op, target.name)
		}
		if err := checkType(value, target.typ); err != nil {
			return nil, err
		}
		var sqlOp BinaryOp
		negate := false
		switch op {
		case OpLt, OpNotLt:
			sqlOp, negate = OpSQLLt, op == OpNotLt
		case OpGt, OpNotGt:
			sqlOp, negate = OpSQLGt, op == OpNotGt
		case OpLtEq, OpNotLtEq:
			sqlOp, negate = OpSQLLtEq, op == OpNotLtEq
		default:
			sqlOp, negate = OpSQLGtEq, op == OpNotGtEq
		}
		cond := Expr(Binary{Op: sqlOp, Left: target.expr, Right: Param{Value: paramValue(value)}})
		if negate {
			cond = Not{Inner: cond}
		}
		return cond, nil

	case OpIn, OpNotIn:
		items, err := validateArray(target, value, limits)
		if err != nil {
			return nil, err
		}
		values := make([]Expr, len(items))
		for i, item := range items {
			if err := checkType(item, target.typ); err != nil {
				return nil, err
			}
			values[i] = Param{Value: paramValue(item)}
		}
		return In{Left: target.expr, Values: values, Negate: op == OpNotIn}, nil

	case OpRange, OpNotRange:
		cond, err := rangeCondition(target, value)
		if err != nil {
			return nil, err
		}
		if op == OpNotRange {
			return Not{Inner: cond}, nil
		}
		return cond, nil

	case OpContains, OpNotContains:
		if target.typ == TypeArray {
			return arrayContains(target, value, op == OpNotContains, limits)
		}
		return likeCondition(target, value, op == OpNotContains, func(s string) string { return "%" + s + "%" })

	case OpStartsWith, OpNotStartsWith:
		return likeCondition(target, value, op == OpNotStartsWith, func(s string) string { return s + "%" })

	case OpEndsWith, OpNotEndsWith:
		return likeCondition(target, value, op == OpNotEndsWith, func(s string) string { return "%" + s })

	case OpRegex, OpNotRegex:
		if !target.typ.IsText() {
			return nil, argErr(target.name, "%s can only be used on text fields", op)
		}
		if err := validateScalar(target, value); err != nil {
			return nil, err
		}
		pattern, err := stringValue(target, value)
		if err != nil {
			return nil, err
		}
		if _, err := regexp.Compile(pattern); err != nil {
			return nil, argErr(value, "%s is not a valid regular expression", pattern)
		}
		cond := Expr(Binary{Op: OpSQLRegex, Left: target.expr, Right: Param{Value: pattern}})
		if op == OpNotRegex {
			cond = Not{Inner: cond}
		}
		return cond, nil
	}
	return nil, argErr(op.String(), "unsupported operator %s", op)
}

func likeCondition(target fieldTarget, value any, negate bool, wrap func(string) string) (Expr, error) {
	if !target.typ.IsText() {
		return nil, argErr(target.name, "%s is not a text field", target.name)
	}
	if err := validateScalar(target, value); err != nil {
		return nil, err
	}
	if value == nil {
		return nil, argErr(value, "the value for %s must not be null", target.name)
	}
	s, err := stringValue(target, value)
	if err != nil {
		return nil, err
	}
	cond := Expr(Binary{Op: OpSQLILike, Left: target.expr, Right: Param{Value: wrap(escapeLike(s))}})
	if negate {
		cond = Not{Inner: cond}
	}
	return cond, nil
}

func arrayContains(target fieldTarget, value any, negate bool, limits Limits) (Expr, error) {
	if kindOf(value) != kindArray {
		if err := validateScalar(target, value); err != nil {
			return nil, err
		}
		value = []any{value}
	}
	items, err := validateArray(target, value, limits)
	if err != nil {
		return nil, err
	}
	elems := make([]Expr, len(items))
	for i, item := range items {
		elems[i] = Param{Value: paramValue(item)}
	}
	cond := Expr(Binary{Op: OpSQLContains, Left: target.expr, Right: ArrayOf{Items: elems}})
	if negate {
		cond = Not{Inner: cond}
	}
	return cond, nil
}

// rangeCondition accepts {from, to} (inclusive lower, exclusive upper) or
// {interval: "[a,b)"} using brackets for inclusive and parens for exclusive
// bounds.
func rangeCondition(target fieldTarget, value any) (Expr, error) {
	h, ok := value.(*Hash)
	if !ok {
		return nil, argErr(value, "range for %s must be an object with from and to, or interval", target.name)
	}
	for _, k := range h.Keys() {
		if k != "from" && k != "to" && k != "interval" {
			return nil, argErr(value, "range for %s has unknown key %s", target.name, k)
		}
	}
	from, hasFrom := h.Get("from")
	to, hasTo := h.Get("to")
	interval, hasInterval := h.Get("interval")

	var lower, upper any
	lowerInclusive, upperInclusive := true, false
	switch {
	case hasInterval && (hasFrom || hasTo):
		return nil, argErr(value, "range for %s cannot combine from/to with interval", target.name)
	case hasInterval:
		raw, ok := interval.(string)
		if !ok {
			return nil, argErr(value, "interval for %s must be a string", target.name)
		}
		m := intervalPattern.FindStringSubmatch(strings.TrimSpace(raw))
		if m == nil {
			return nil, argErr(raw, "interval for %s must look like [from,to)", target.name)
		}
		if strings.TrimSpace(m[2]) == "" || strings.TrimSpace(m[3]) == "" {
			return nil, argErr(raw, "interval for %s needs both bounds", target.name)
		}
		var err error
		if lower, err = coerce(m[2], target.typ); err != nil {
			return nil, err
		}
		if upper, err = coerce(m[3], target.typ); err != nil {
			return nil, err
		}
		lowerInclusive = m[1] == "["
		upperInclusive = m[4] == "]"
	case hasFrom && hasTo:
		for _, bound := range []any{from, to} {
			if err := validateScalar(target, bound); err != nil {
				return nil, err
			}
			if bound == nil || kindOf(bound) == kindHash {
				return nil, argErr(value, "range bounds for %s must be scalar values", target.name)
			}
		}
		var err error
		if lower, err = coerce(from, target.typ); err != nil {
			return nil, err
		}
		if upper, err = coerce(to, target.typ); err != nil {
			return nil, err
		}
	default:
		return nil, argErr(value, "range for %s requires both from and to", target.name)
	}

	lowerOp, upperOp := OpSQLGt, OpSQLLt
	if lowerInclusive {
		lowerOp = OpSQLGtEq
	}
	if upperInclusive {
		upperOp = OpSQLLtEq
	}
	return And{
		Left:  Binary{Op: lowerOp, Left: target.expr, Right: Param{Value: paramValue(lower)}},
		Right: Binary{Op: upperOp, Left: target.expr, Right: Param{Value: paramValue(upper)}},
	}, nil
}
