package filter

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func eqCols(a, b Column) Expr { return Binary{Op: OpSQLEq, Left: a, Right: b} }

func testRegistry(t *testing.T) *Registry {
	t.Helper()

	recordings := NewTable("audio_recordings", map[string]ColumnType{
		"id":                TypeInteger,
		"uuid":              TypeUUID,
		"site_id":           TypeInteger,
		"recorded_date":     TypeDateTime,
		"duration_seconds":  TypeDecimal,
		"sample_rate_hertz": TypeInteger,
		"media_type":        TypeString,
		"notes":             TypeText,
		"labels":            TypeArray,
		"metadata":          TypeJSON,
	})
	sites := NewTable("sites", map[string]ColumnType{
		"id":        TypeInteger,
		"name":      TypeString,
		"tzinfo_tz": TypeString,
	})
	projectsSites := NewTable("projects_sites", map[string]ColumnType{
		"project_id": TypeInteger,
		"site_id":    TypeInteger,
	})
	projects := NewTable("projects", map[string]ColumnType{
		"id":   TypeInteger,
		"name": TypeString,
	})

	recordingSettings, err := NewSettings(Settings{
		Resource: "audio_recordings",
		Table:    recordings,
		ValidFields: []string{
			"id", "uuid", "site_id", "recorded_date", "duration_seconds", "sample_rate_hertz",
			"media_type", "notes", "labels", "metadata", "recorded_end_date",
		},
		TextFields:   []string{"media_type", "notes"},
		RenderFields: []string{"id", "uuid", "site_id", "recorded_date", "duration_seconds", "media_type"},
		CustomFields: []CustomField{
			{
				Name: "recorded_end_date",
				Expr: Group{Inner: Binary{
					Op:   OpSQLPlus,
					Left: recordings.Col("recorded_date"),
					Right: Binary{
						Op:    OpSQLTimes,
						Left:  recordings.Col("duration_seconds"),
						Right: Raw("INTERVAL '1 second'"),
					},
				}},
				Type: TypeDateTime,
			},
			{
				Name:            "canonical_file_name",
				QueryAttributes: []string{"uuid", "media_type"},
				Transform: func(row map[string]any) any {
					return row["uuid"].(string) + "." + row["media_type"].(string)
				},
			},
		},
		Associations: []Association{
			{
				Table:     "sites",
				On:        eqCols(recordings.Col("site_id"), sites.Col("id")),
				Available: true,
				Children: []Association{
					{
						Table: "projects_sites",
						On:    eqCols(sites.Col("id"), projectsSites.Col("site_id")),
						Children: []Association{
							{
								Table:     "projects",
								On:        eqCols(projectsSites.Col("project_id"), projects.Col("id")),
								Available: true,
							},
						},
					},
				},
			},
		},
		Defaults: Defaults{OrderBy: "recorded_date", Direction: Desc},
		Timezone: &TimezoneSource{Table: "sites", Column: "tzinfo_tz"},
	})
	require.NoError(t, err)

	siteSettings, err := NewSettings(Settings{
		Table:        sites,
		ValidFields:  []string{"id", "name", "tzinfo_tz"},
		TextFields:   []string{"name"},
		RenderFields: []string{"id", "name"},
		Defaults:     Defaults{OrderBy: "name"},
	})
	require.NoError(t, err)

	projectSettings, err := NewSettings(Settings{
		Table:        projects,
		ValidFields:  []string{"id", "name"},
		RenderFields: []string{"id", "name"},
	})
	require.NoError(t, err)

	registry, err := NewRegistry(16, recordingSettings, siteSettings, projectSettings)
	require.NoError(t, err)
	return registry
}

func mustDecode(t *testing.T, js string) any {
	t.Helper()
	v, err := Decode([]byte(js))
	require.NoError(t, err)
	return v
}

// compileSQL compiles a filter for audio_recordings and renders the
// conditions joined with AND.
func compileSQL(t *testing.T, js string) (string, []any, error) {
	t.Helper()
	registry := testRegistry(t)
	base, _ := registry.Resource("audio_recordings")
	conds, err := registry.Compile(base, mustDecode(t, js), Limits{})
	if err != nil {
		return "", nil, err
	}
	require.NotEmpty(t, conds)
	expr := conds[0].Expr
	for _, c := range conds[1:] {
		expr = And{Left: expr, Right: c.Expr}
	}
	sql, args := Render(expr)
	return sql, args, nil
}
