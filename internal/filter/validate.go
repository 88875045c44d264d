package filter

import (
	"encoding/json"
	"strconv"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"
)

// Limits bound the size of values a client may submit.
type Limits struct {
	DefaultItems    int
	MaxItems        int
	MaxArrayItems   int
	MaxStringLength int
}

func (l Limits) withDefaults() Limits {
	if l.DefaultItems <= 0 {
		l.DefaultItems = 25
	}
	if l.MaxItems <= 0 {
		l.MaxItems = 500
	}
	if l.MaxArrayItems <= 0 {
		l.MaxArrayItems = 1000
	}
	if l.MaxStringLength <= 0 {
		l.MaxStringLength = 120
	}
	return l
}

type valueKind int

const (
	kindOther valueKind = iota
	kindNil
	kindBool
	kindNumber
	kindString
	kindArray
	kindHash
)

func (k valueKind) String() string {
	switch k {
	case kindNil:
		return "null"
	case kindBool:
		return "boolean"
	case kindNumber:
		return "number"
	case kindString:
		return "string"
	case kindArray:
		return "array"
	case kindHash:
		return "object"
	default:
		return "unsupported"
	}
}

func kindOf(v any) valueKind {
	switch v.(type) {
	case nil:
		return kindNil
	case bool:
		return kindBool
	case json.Number, int, int8, int16, int32, int64, uint, uint8, uint16, uint32, uint64, float32, float64:
		return kindNumber
	case string:
		return kindString
	case []any:
		return kindArray
	case *Hash:
		return kindHash
	default:
		return kindOther
	}
}

// validateScalar accepts nil, booleans, numbers and strings. Objects are only
// accepted when the target column holds JSON.
func validateScalar(target fieldTarget, value any) error {
	switch kindOf(value) {
	case kindNil, kindBool, kindNumber, kindString:
		return nil
	case kindHash:
		if target.typ == TypeJSON {
			return nil
		}
		return argErr(value, "the value for %s must not be an object", target.name)
	case kindArray:
		return argErr(value, "the value for %s must not be an array", target.name)
	default:
		return argErr(value, "the value for %s has an unsupported type", target.name)
	}
}

// validateArray checks that items is a bounded, non-empty list of scalars
// that all share one type.
func validateArray(target fieldTarget, value any, limits Limits) ([]any, error) {
	items, ok := value.([]any)
	if !ok {
		return nil, argErr(value, "the value for %s must be an array", target.name)
	}
	if len(items) == 0 {
		return nil, argErr(value, "the array for %s must contain at least one item", target.name)
	}
	if len(items) > limits.MaxArrayItems {
		return nil, argErr(nil, "the array for %s must not contain more than %d items", target.name, limits.MaxArrayItems)
	}
	first := kindOf(items[0])
	for _, item := range items {
		kind := kindOf(item)
		switch kind {
		case kindArray, kindHash, kindOther:
			return nil, argErr(item, "the array for %s must only contain scalar values", target.name)
		}
		if kind != first {
			return nil, argErr(value, "the array for %s must contain items of a single type, found %s and %s", target.name, first, kind)
		}
		if s, ok := item.(string); ok && utf8.RuneCountInString(s) > limits.MaxStringLength {
			return nil, argErr(nil, "the array for %s contains a string longer than %d characters", target.name, limits.MaxStringLength)
		}
	}
	return items, nil
}

var dateTimeLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04:05.999999999",
	"2006-01-02 15:04:05.999999999Z07:00",
	"2006-01-02 15:04:05.999999999",
	"2006-01-02",
}

func parseDateTime(s string) bool {
	for _, layout := range dateTimeLayouts {
		if _, err := time.Parse(layout, s); err == nil {
			return true
		}
	}
	return false
}

// checkType rejects scalars the database could not read as a value of typ.
// Nil, objects and arrays are left to the structural checks.
func checkType(value any, typ ColumnType) error {
	kind := kindOf(value)
	if kind != kindBool && kind != kindNumber && kind != kindString {
		return nil
	}
	text := strings.TrimSpace(scalarText(value))
	switch {
	case typ.IsNumeric():
		if kind == kindBool {
			return argErr(value, "%t is not a number", value)
		}
		if typ == TypeInteger {
			if _, err := strconv.ParseInt(text, 10, 64); err != nil {
				return argErr(value, "%q is not an integer", text)
			}
			return nil
		}
		if _, err := strconv.ParseFloat(text, 64); err != nil {
			return argErr(value, "%q is not a number", text)
		}
	case typ == TypeBoolean:
		if _, err := strconv.ParseBool(text); err != nil || kind == kindNumber {
			return argErr(value, "%q is not a boolean", text)
		}
	case typ == TypeDateTime, typ == TypeDate:
		if kind != kindString || !parseDateTime(text) {
			return argErr(value, "%q is not a valid %s", text, typ)
		}
	case typ == TypeTime:
		if kind != kindString || !timeOfDayPattern.MatchString(text) {
			return argErr(value, "%q is not a valid time of day", text)
		}
	case typ == TypeUUID:
		if _, err := uuid.Parse(text); err != nil || kind != kindString {
			return argErr(value, "%q is not a valid uuid", text)
		}
	}
	return nil
}

func scalarText(v any) string {
	switch t := v.(type) {
	case string:
		return t
	case json.Number:
		return t.String()
	case bool:
		return strconv.FormatBool(t)
	default:
		return jsonString(v)
	}
}

// coerce converts textual input (query string values, interval bounds) into
// the type of the target column.
func coerce(value any, typ ColumnType) (any, error) {
	if err := checkType(value, typ); err != nil {
		return nil, err
	}
	s, ok := value.(string)
	if !ok {
		return value, nil
	}
	trimmed := strings.TrimSpace(s)
	switch {
	case typ.IsNumeric():
		return json.Number(trimmed), nil
	case typ == TypeBoolean:
		b, _ := strconv.ParseBool(trimmed)
		return b, nil
	default:
		return trimmed, nil
	}
}

// paramValue prepares a validated value for the database driver.
func paramValue(v any) any {
	switch t := v.(type) {
	case json.Number:
		if i, err := t.Int64(); err == nil {
			return i
		}
		if f, err := t.Float64(); err == nil {
			return f
		}
		return t.String()
	case *Hash:
		data, err := t.MarshalJSON()
		if err != nil {
			return nil
		}
		return string(data)
	default:
		return v
	}
}

func stringValue(target fieldTarget, value any) (string, error) {
	switch t := value.(type) {
	case string:
		return t, nil
	case json.Number:
		return t.String(), nil
	case bool:
		return strconv.FormatBool(t), nil
	}
	if kindOf(value) == kindNumber {
		return strings.TrimSpace(jsonString(value)), nil
	}
	return "", argErr(value, "the value for %s must be a string", target.name)
}

func jsonString(v any) string {
	data, err := json.Marshal(v)
	if err != nil {
		return ""
	}
	return string(data)
}

var likeEscaper = strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)

// escapeLike neutralises LIKE wildcards so user text only matches literally.
func escapeLike(s string) string {
	return likeEscaper.Replace(s)
}
