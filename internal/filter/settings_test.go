package filter

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewSettingsCustomFieldRules(t *testing.T) {
	table := NewTable("things", map[string]ColumnType{"id": TypeInteger, "name": TypeString})
	transform := func(map[string]any) any { return nil }

	cases := map[string]CustomField{
		"both":              {Name: "x", Expr: Raw("1"), Type: TypeInteger, QueryAttributes: []string{"id"}, Transform: transform},
		"neither":           {Name: "x"},
		"expr without type": {Name: "x", Expr: Raw("1")},
		"attrs without fn":  {Name: "x", QueryAttributes: []string{"id"}},
		"unknown attribute": {Name: "x", QueryAttributes: []string{"missing"}, Transform: transform},
		"shadows column":    {Name: "name", Expr: Raw("1"), Type: TypeInteger},
	}
	for name, cf := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := NewSettings(Settings{Table: table, RenderFields: []string{"id"}, CustomFields: []CustomField{cf}})
			require.Error(t, err)
		})
	}

	s, err := NewSettings(Settings{
		Table:        table,
		ValidFields:  []string{"id", "double"},
		RenderFields: []string{"id"},
		CustomFields: []CustomField{{Name: "double", Expr: Raw("2"), Type: TypeInteger}},
	})
	require.NoError(t, err)
	assert.Equal(t, "things", s.Resource)
	assert.Equal(t, Asc, s.Defaults.Direction)
	assert.True(t, s.IsValid("double"))
	assert.True(t, s.Projectable("double"))
}

func TestNewSettingsFieldLists(t *testing.T) {
	table := NewTable("things", map[string]ColumnType{"id": TypeInteger, "name": TypeString})
	bad := []Settings{
		{Table: table, ValidFields: []string{"nope"}, RenderFields: []string{"id"}},
		{Table: table, ValidFields: []string{"id"}, TextFields: []string{"name"}, RenderFields: []string{"id"}},
		{Table: table, ValidFields: []string{"id"}, TextFields: []string{"id"}, RenderFields: []string{"id"}},
		{Table: table, ValidFields: []string{"id"}},
		{Table: table, ValidFields: []string{"id"}, RenderFields: []string{"id"}, Defaults: Defaults{OrderBy: "name"}},
		{Table: table, RenderFields: []string{"id"}, Defaults: Defaults{Direction: "up"}},
		{RenderFields: []string{"id"}},
	}
	for i, s := range bad {
		_, err := NewSettings(s)
		assert.Error(t, err, "case %d", i)
	}
}

func TestRegistryRejectsUnregisteredAssociation(t *testing.T) {
	table := NewTable("things", map[string]ColumnType{"id": TypeInteger})
	s, err := NewSettings(Settings{
		Table:        table,
		RenderFields: []string{"id"},
		Associations: []Association{{Table: "others", On: Raw("true"), Available: true}},
	})
	require.NoError(t, err)
	_, err = NewRegistry(0, s)
	require.Error(t, err)
}

func TestResolve(t *testing.T) {
	registry := testRegistry(t)
	base, _ := registry.Resource("audio_recordings")

	info, err := registry.Resolve(base, "audio_recordings.duration_seconds")
	require.NoError(t, err)
	assert.False(t, info.Foreign())
	assert.Equal(t, TypeDecimal, info.Type)

	info, err = registry.Resolve(base, "projects.name")
	require.NoError(t, err)
	require.True(t, info.Foreign())
	require.Len(t, info.Path, 3)
	assert.Equal(t, "projects", info.Path[2].Table)
	assert.Equal(t, "projects.name", info.Name)

	// repeated lookups come from the path cache
	again, err := registry.Resolve(base, "projects.name")
	require.NoError(t, err)
	assert.Equal(t, info.Path, again.Path)

	_, err = registry.Resolve(base, "sites.secret")
	requireArgumentError(t, err)
	_, err = registry.Resolve(base, "projects_sites.site_id")
	requireArgumentError(t, err)
	_, err = registry.Resolve(base, ".name")
	requireArgumentError(t, err)
}
