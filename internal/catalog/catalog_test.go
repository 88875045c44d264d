package catalog

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/acoustic-workbench-api/internal/filter"
)

func TestNewRegistryRegistersEveryResource(t *testing.T) {
	registry, err := NewRegistry(32)
	require.NoError(t, err)
	assert.Equal(t, []string{Projects, Sites, AudioRecordings, AudioEvents, Tags, Harvests, HarvestItems}, registry.Resources())
}

func TestRecordingsFilterByTagText(t *testing.T) {
	registry, err := NewRegistry(32)
	require.NoError(t, err)

	body := []byte(`{"filter": {"tags.text": {"eq": "Koala"}, "sites.name": {"starts_with": "Bowra"}}}`)
	req, err := filter.ParseRequest(body, nil)
	require.NoError(t, err)

	q, err := filter.NewBuilder(registry, filter.Limits{}).Build(AudioRecordings, req)
	require.NoError(t, err)
	sql, args := q.SQL()

	assert.Contains(t, sql, `INNER JOIN "audio_events" ON "audio_recordings"."id" = "audio_events"."audio_recording_id" `+
		`INNER JOIN "taggings" ON "audio_events"."id" = "taggings"."audio_event_id" `+
		`INNER JOIN "tags" ON "taggings"."tag_id" = "tags"."id" WHERE "tags"."text" = $1`)
	assert.Contains(t, sql, `WHERE "sites"."name" ILIKE $2)`)
	assert.Equal(t, []any{"Koala", "Bowra%"}, args)
}

func TestHarvestItemsScopedQuery(t *testing.T) {
	registry, err := NewRegistry(32)
	require.NoError(t, err)

	req, err := filter.ParseRequest(nil, map[string][]string{"filter_status": {"failed"}})
	require.NoError(t, err)
	scope := filter.Binary{Op: filter.OpSQLEq, Left: filter.Column{Table: "harvest_items", Name: "harvest_id"}, Right: filter.Param{Value: int64(12)}}
	q, err := filter.NewBuilder(registry, filter.Limits{}).Build(HarvestItems, req, scope)
	require.NoError(t, err)

	sql, args := q.SQL()
	assert.Contains(t, sql, `WHERE "harvest_items"."harvest_id" = $1 AND "harvest_items"."status" = $2 ORDER BY "harvest_items"."path" ASC`)
	assert.Equal(t, []any{int64(12), "failed"}, args)
}

func TestCanonicalFileNameVirtualField(t *testing.T) {
	recorded := time.Date(2021, 3, 4, 5, 6, 0, 0, time.UTC)
	name := canonicalFileName(map[string]any{
		"uuid":               "ABCDEF12-0000-0000-0000-000000000000",
		"recorded_date":      recorded,
		"media_type":         "audio/x-flac",
		"original_file_name": "whatever.flac",
	})
	assert.Equal(t, "abcdef12-0000-0000-0000-000000000000_210304-0506.flac", name)
	assert.Nil(t, canonicalFileName(map[string]any{}))
}
