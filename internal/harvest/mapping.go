package harvest

import (
	"path"
	"strings"

	"github.com/noah-isme/acoustic-workbench-api/internal/models"
)

// MatchMapping finds the mapping that applies to a file path relative to the
// harvest root. Recursive mappings cover every descendant directory, the
// others only their immediate children. The longest matching mapping path
// wins; between equal paths the first one listed is kept.
func MatchMapping(mappings []models.HarvestMapping, relPath string) *models.HarvestMapping {
	dir := normalizeDir(path.Dir(normalizeRel(relPath)))

	var best *models.HarvestMapping
	bestLen := -1
	for i := range mappings {
		m := &mappings[i]
		prefix := m.NormalizedPath()
		if !mappingCovers(prefix, dir, m.Recursive) {
			continue
		}
		if len(prefix) > bestLen {
			best = m
			bestLen = len(prefix)
		}
	}
	return best
}

func mappingCovers(prefix, dir string, recursive bool) bool {
	if prefix == dir {
		return true
	}
	if !recursive {
		return false
	}
	return prefix == "" || strings.HasPrefix(dir, prefix+"/")
}

func normalizeRel(p string) string {
	return strings.TrimPrefix(path.Clean("/"+strings.ReplaceAll(p, "\\", "/")), "/")
}

func normalizeDir(dir string) string {
	if dir == "." || dir == "/" {
		return ""
	}
	return dir
}
