package harvest

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/acoustic-workbench-api/internal/models"
)

func TestMatchMappingMostSpecificWins(t *testing.T) {
	one, two := int64(1), int64(2)
	mappings := []models.HarvestMapping{
		{Path: "/a", SiteID: &one, Recursive: false},
		{Path: "/a/b/c", SiteID: &two, Recursive: false},
	}

	m := MatchMapping(mappings, "a/b/c/file.ogg")
	require.NotNil(t, m)
	assert.Equal(t, "/a/b/c", m.Path)
}

func TestMatchMapping(t *testing.T) {
	site := int64(1)
	mappings := []models.HarvestMapping{
		{Path: "", SiteID: &site, Recursive: false},
		{Path: "deck", SiteID: &site, Recursive: true},
		{Path: "deck/night/", SiteID: &site, Recursive: false},
		{Path: "other", SiteID: &site, Recursive: false},
	}

	tests := []struct {
		path string
		want string
	}{
		{"file.wav", ""},
		{"deck/file.wav", "deck"},
		{"deck/day/file.wav", "deck"},
		{"deck/night/file.wav", "deck/night/"},
		{"deck/night/late/file.wav", "deck"},
		{"other/file.wav", "other"},
		{"other/nested/file.wav", "none"},
		{"\\deck\\day\\file.wav", "deck"},
	}
	for _, tc := range tests {
		t.Run(tc.path, func(t *testing.T) {
			m := MatchMapping(mappings, tc.path)
			if tc.want == "none" {
				assert.Nil(t, m)
				return
			}
			require.NotNil(t, m)
			assert.Equal(t, tc.want, m.Path)
		})
	}
}
