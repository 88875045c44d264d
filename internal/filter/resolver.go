package filter

import "strings"

// FieldInfo is a field reference resolved against the registry.
type FieldInfo struct {
	Name     string
	Settings *Settings
	Table    *Table
	Column   string
	Type     ColumnType
	Expr     Expr
	Custom   *CustomField
	Path     []Association
}

// Foreign reports whether the field lives on an associated table.
func (f FieldInfo) Foreign() bool { return len(f.Path) > 0 }

// Resolve turns "field" or "table.field" into a FieldInfo. Dotted names must
// name a table that is reachable and available from base, and the field must
// be whitelisted by that table's own settings.
func (r *Registry) Resolve(base *Settings, name string) (FieldInfo, error) {
	parts := strings.Split(name, ".")
	switch {
	case len(parts) == 1:
		return lookupField(base, name, nil)
	case len(parts) == 2 && parts[0] != "" && parts[1] != "":
		if parts[0] == base.Table.Name {
			return lookupField(base, parts[1], nil)
		}
		path, ok := r.findPath(base, parts[0], true)
		if !ok {
			return FieldInfo{}, argErr(name, "%s is not an allowed association of %s", parts[0], base.Resource)
		}
		target, ok := r.ForTable(parts[0])
		if !ok {
			return FieldInfo{}, argErr(name, "%s is not an allowed association of %s", parts[0], base.Resource)
		}
		info, err := lookupField(target, parts[1], path)
		if err != nil {
			return FieldInfo{}, err
		}
		info.Name = name
		return info, nil
	default:
		return FieldInfo{}, argErr(name, "field name %s is malformed", name)
	}
}

func lookupField(s *Settings, field string, path []Association) (FieldInfo, error) {
	if !s.IsValid(field) {
		return FieldInfo{}, argErr(field, "unrecognised field %s for %s", field, s.Resource)
	}
	info := FieldInfo{
		Name:     field,
		Settings: s,
		Table:    s.Table,
		Column:   field,
		Type:     s.typeOf(field),
		Expr:     s.expr(field),
		Path:     path,
	}
	if cf, ok := s.Custom(field); ok {
		info.Custom = cf
	}
	return info, nil
}
