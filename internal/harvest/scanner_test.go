package harvest

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/acoustic-workbench-api/internal/models"
)

func writeFile(t *testing.T, path, content string) {
	t.Helper()
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
}

func TestScannerWalksUploads(t *testing.T) {
	root := t.TempDir()
	writeWAV(t, filepath.Join(root, "20200101T000000Z.wav"), 11, 1)
	writeWAV(t, filepath.Join(root, "deck", "20200102_000000.wav"), 11, 2)
	writeWAV(t, filepath.Join(root, "deck", "night", "20200103_000000.wav"), 11, 3)
	writeWAV(t, filepath.Join(root, ".trash", "20200104_000000.wav"), 11, 4)
	writeWAV(t, filepath.Join(root, "System Volume Information", "20200105_000000.wav"), 11, 5)
	writeFile(t, filepath.Join(root, "Thumbs.db"), "x")
	writeFile(t, filepath.Join(root, "deck", "upload.wav.filepart"), "x")
	writeFile(t, filepath.Join(root, "deck", ".DS_Store"), "x")
	writeFile(t, filepath.Join(root, "notes.txt"), "hello")
	writeFile(t, filepath.Join(root, "broken.wav"), "not audio")
	writeFile(t, filepath.Join(root, "deck", "harvest.yml"), "site_id: 5\nutc_offset: \"+10:00\"\nmetadata:\n  deployment: one\n")
	writeFile(t, filepath.Join(root, "deck", "night", "harvest.yml"), "uploader_id: 9\nmetadata:\n  mic: two\n")

	override := int64(6)
	scanner := NewScanner(NewAudioFileInfo("", nil), nil, ScannerConfig{
		AllowedExtensions: []string{"wav", ".FLAC"},
		Concurrency:       2,
	}, nil)
	result, err := scanner.Scan(context.Background(), root, []models.HarvestMapping{
		{Path: "deck/night", SiteID: &override},
	})
	require.NoError(t, err)

	paths := make([]string, len(result.Candidates))
	for i, c := range result.Candidates {
		paths[i] = c.Path
		assert.Len(t, c.Fingerprint, 16)
	}
	assert.Equal(t, []string{"20200101T000000Z.wav", "deck/20200102_000000.wav", "deck/night/20200103_000000.wav"}, paths)

	warned := map[string]bool{}
	for _, w := range result.Warnings {
		warned[w.Path] = true
	}
	assert.Equal(t, map[string]bool{"broken.wav": true, "notes.txt": true}, warned)

	top := result.Candidates[0].Info
	assert.Nil(t, top.SiteID)
	require.NotNil(t, top.RecordedDate)

	deck := result.Candidates[1].Info
	assert.Equal(t, int64(5), *deck.SiteID)
	assert.Equal(t, "+10:00", *deck.UTCOffset)
	require.NotNil(t, deck.RecordedDate)
	assert.Equal(t, map[string]any{"deployment": "one"}, deck.Metadata)

	night := result.Candidates[2].Info
	assert.Equal(t, int64(6), *night.SiteID)
	assert.Equal(t, int64(9), *night.UploaderID)
	assert.Equal(t, map[string]any{"deployment": "one", "mic": "two"}, night.Metadata)
}

func TestScannerReportsInvalidSidecar(t *testing.T) {
	root := t.TempDir()
	writeFile(t, filepath.Join(root, "harvest.yml"), "site_id: -1\n")
	writeFile(t, filepath.Join(root, "sub", "harvest.yml"), "utc_offset: \"+99\"\n")
	writeFile(t, filepath.Join(root, "typo", "harvest.yml"), "sight_id: 1\n")

	result, err := NewScanner(NewAudioFileInfo("", nil), nil, ScannerConfig{}, nil).Scan(context.Background(), root, nil)
	require.NoError(t, err)
	assert.Empty(t, result.Candidates)
	require.Len(t, result.Warnings, 3)
	for _, w := range result.Warnings {
		assert.Contains(t, w.Message, CodeInvalidSidecar)
	}
}

func TestScanMissingRoot(t *testing.T) {
	_, err := NewScanner(NewAudioFileInfo("", nil), nil, ScannerConfig{}, nil).Scan(context.Background(), filepath.Join(t.TempDir(), "nope"), nil)
	require.Error(t, err)
}

func TestDirectoryConfigMerge(t *testing.T) {
	site, other := int64(1), int64(2)
	parent := &DirectoryConfig{SiteID: &site, Metadata: map[string]any{"a": 1}}
	child := &DirectoryConfig{SiteID: &other, Metadata: map[string]any{"b": 2}}

	merged := parent.Merge(child)
	assert.Equal(t, int64(2), *merged.SiteID)
	assert.Equal(t, map[string]any{"a": 1, "b": 2}, merged.Metadata)
	assert.Equal(t, map[string]any{"a": 1}, parent.Metadata)

	var none *DirectoryConfig
	assert.Nil(t, none.Merge(nil))
	assert.Equal(t, int64(1), *none.Merge(parent).SiteID)
}
