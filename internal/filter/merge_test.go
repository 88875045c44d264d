package filter

import (
	"encoding/base64"
	"encoding/json"
	"net/url"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func jsonOf(t *testing.T, v any) string {
	t.Helper()
	data, err := json.Marshal(v)
	require.NoError(t, err)
	return string(data)
}

func TestMergeDefaultsKnockout(t *testing.T) {
	defaults := HashOf("a", 1, "b", 2)
	merged, err := MergeDefaults(defaults, mustDecode(t, `[{"a": null}]`))
	require.NoError(t, err)
	assert.JSONEq(t, `{"b": 2}`, jsonOf(t, merged))

	// the defaults are never modified
	assert.Equal(t, 2, defaults.Len())
}

func TestMergeDefaultsArrayMode(t *testing.T) {
	merged, err := MergeDefaults(HashOf("a", 1), mustDecode(t, `[{"b": {"eq": 2}}, {"c": {"eq": 3}, "b": null}]`))
	require.NoError(t, err)
	assert.Equal(t, `[{"a":1},{"c":{"eq":3}}]`, jsonOf(t, merged))

	merged, err = MergeDefaults(HashOf("a", 1), mustDecode(t, `[{"a": null}]`))
	require.NoError(t, err)
	assert.Nil(t, merged)

	_, err = MergeDefaults(nil, mustDecode(t, `[1]`))
	requireArgumentError(t, err)
}

func TestMergeDefaultsDeepMerge(t *testing.T) {
	defaults := HashOf("a", HashOf("gt", 1), "b", HashOf("eq", 2))
	merged, err := MergeDefaults(defaults, mustDecode(t, `{"a": {"lt": 5}, "b": null, "c": {"eq": null}}`))
	require.NoError(t, err)
	assert.Equal(t, `{"a":{"gt":1,"lt":5},"c":{"eq":null}}`, jsonOf(t, merged))

	merged, err = MergeDefaults(nil, nil)
	require.NoError(t, err)
	assert.Nil(t, merged)
}

func TestAddQSPShapes(t *testing.T) {
	registry := testRegistry(t)
	base, _ := registry.Resource("audio_recordings")
	single := []QSP{{Field: "site_id", Value: "3"}}

	cases := []struct {
		name   string
		filter string
		params []QSP
		want   string
	}{
		{"empty single", ``, single, `{"site_id":{"eq":3}}`},
		{"empty multiple", ``, []QSP{{Field: "site_id", Value: "3"}, {Field: "media_type", Value: "wav"}},
			`{"site_id":{"eq":3},"media_type":{"eq":"wav"}}`},
		{"fields disjoint", `{"notes": {"eq": "x"}}`, single, `{"notes":{"eq":"x"},"site_id":{"eq":3}}`},
		{"fields collide", `{"site_id": {"gt": 1}}`, single,
			`{"and":[{"site_id":{"gt":1}},{"site_id":{"eq":3}}]}`},
		{"and disjoint", `{"and": {"notes": {"eq": "x"}, "uuid": {"eq": "9b2f6c1e-4d3a-4e8b-a1c7-2f5d8e0b3a64"}}}`, single,
			`{"and":{"notes":{"eq":"x"},"uuid":{"eq":"9b2f6c1e-4d3a-4e8b-a1c7-2f5d8e0b3a64"},"site_id":{"eq":3}}}`},
		{"and collide", `{"and": {"site_id": {"eq": 1}, "uuid": {"eq": "9b2f6c1e-4d3a-4e8b-a1c7-2f5d8e0b3a64"}}}`, single,
			`{"and":[{"and":{"site_id":{"eq":1},"uuid":{"eq":"9b2f6c1e-4d3a-4e8b-a1c7-2f5d8e0b3a64"}}},{"site_id":{"eq":3}}]}`},
		{"and array", `{"and": [{"notes": {"eq": "x"}}, {"uuid": {"eq": "9b2f6c1e-4d3a-4e8b-a1c7-2f5d8e0b3a64"}}]}`, single,
			`{"and":[{"notes":{"eq":"x"}},{"uuid":{"eq":"9b2f6c1e-4d3a-4e8b-a1c7-2f5d8e0b3a64"}}],"site_id":{"eq":3}}`},
		{"or", `{"or": {"notes": {"eq": "x"}, "uuid": {"eq": "9b2f6c1e-4d3a-4e8b-a1c7-2f5d8e0b3a64"}}}`, single,
			`{"or":{"notes":{"eq":"x"},"uuid":{"eq":"9b2f6c1e-4d3a-4e8b-a1c7-2f5d8e0b3a64"}},"site_id":{"eq":3}}`},
		{"or with partial match", `{"or": {"notes": {"eq": "x"}, "uuid": {"eq": "9b2f6c1e-4d3a-4e8b-a1c7-2f5d8e0b3a64"}}}`, []QSP{{Field: PartialMatchKey, Value: "owl"}},
			`{"and":[{"or":{"notes":{"eq":"x"},"uuid":{"eq":"9b2f6c1e-4d3a-4e8b-a1c7-2f5d8e0b3a64"}}},{"or":{"media_type":{"contains":"owl"},"notes":{"contains":"owl"}}}]}`},
		{"not", `{"not": {"notes": {"eq": "x"}}}`, single, `{"not":{"notes":{"eq":"x"}},"site_id":{"eq":3}}`},
		{"array", `[{"notes": {"eq": "x"}}]`, single, `[{"notes":{"eq":"x"}},{"site_id":{"eq":3}}]`},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			var filter any
			if tc.filter != "" {
				filter = mustDecode(t, tc.filter)
			}
			out, err := registry.AddQSP(base, filter, tc.params)
			require.NoError(t, err)
			assert.Equal(t, tc.want, jsonOf(t, out))

			// every merged filter must still compile
			_, err = registry.Compile(base, out, Limits{})
			require.NoError(t, err)
		})
	}
}

func TestAddQSPErrors(t *testing.T) {
	registry := testRegistry(t)
	base, _ := registry.Resource("audio_recordings")

	_, err := registry.AddQSP(base, nil, []QSP{{Field: "secret", Value: "1"}})
	requireArgumentError(t, err)

	_, err = registry.AddQSP(base, nil, []QSP{{Field: "site_id", Value: "three"}})
	requireArgumentError(t, err)

	projects, _ := registry.Resource("projects")
	_, err = registry.AddQSP(projects, nil, []QSP{{Field: PartialMatchKey, Value: "x"}})
	requireArgumentError(t, err)

	sites, _ := registry.Resource("sites")
	out, err := registry.AddQSP(sites, nil, []QSP{{Field: PartialMatchKey, Value: "reef"}})
	require.NoError(t, err)
	assert.Equal(t, `{"name":{"contains":"reef"}}`, jsonOf(t, out))
}

func TestParseRequest(t *testing.T) {
	encoded := base64.RawURLEncoding.EncodeToString([]byte(`{"site_id": {"eq": 9}}`))
	query := url.Values{
		"filter_encoded":       {encoded},
		"filter_media_type":    {"wav"},
		"filter_partial_match": {"owl"},
		"page":                 {"2"},
		"direction":            {"desc"},
	}
	req, err := ParseRequest([]byte(`{"filter": {"site_id": {"eq": 1}}, "paging": {"items": 5}}`), query)
	require.NoError(t, err)

	assert.Equal(t, `{"site_id":{"eq":9}}`, jsonOf(t, req.Filter))
	assert.Equal(t, `{"items":5,"page":"2"}`, jsonOf(t, req.Paging))
	assert.Equal(t, `{"direction":"desc"}`, jsonOf(t, req.Sorting))
	assert.Equal(t, []QSP{{Field: "media_type", Value: "wav"}, {Field: "partial_match", Value: "owl"}}, req.QSP)
}

func TestParseRequestErrors(t *testing.T) {
	_, err := ParseRequest([]byte(`[1, 2]`), nil)
	requireArgumentError(t, err)

	_, err = ParseRequest([]byte(`{"filter":`), nil)
	requireArgumentError(t, err)

	_, err = ParseRequest(nil, url.Values{"filter_encoded": {"***"}})
	requireArgumentError(t, err)

	_, err = ParseRequest(nil, url.Values{"filter_site_id": {"1", "2"}})
	requireArgumentError(t, err)
}

func TestHashKeepsOrder(t *testing.T) {
	v := mustDecode(t, `{"z": 1, "a": {"y": [1, {"b": 2, "a": 3}], "x": null}}`)
	h := v.(*Hash)
	assert.Equal(t, []string{"z", "a"}, h.Keys())
	assert.Equal(t, `{"z":1,"a":{"y":[1,{"b":2,"a":3}],"x":null}}`, jsonOf(t, h))

	clone := h.Clone()
	clone.Delete("z")
	assert.Equal(t, 2, h.Len())
	assert.Equal(t, 1, clone.Len())

	_, err := Decode([]byte(`{"a": 1} {"b": 2}`))
	assert.Error(t, err)
}
