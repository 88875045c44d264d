package harvest

import (
	"path"
	"path/filepath"
	"strings"

	"github.com/go-playground/validator/v10"

	"github.com/noah-isme/acoustic-workbench-api/internal/models"
)

// Hints are the per-file values supplied by sidecars and harvest mappings
// rather than read from the file.
type Hints struct {
	ProjectID  *int64
	SiteID     *int64
	UploaderID *int64
	UTCOffset  *string
	Metadata   map[string]any
}

// ResolveHints combines the effective sidecar config with the matching
// mapping. Mappings are edited during metadata review so they take
// precedence.
func ResolveHints(cfg *DirectoryConfig, mapping *models.HarvestMapping) Hints {
	var h Hints
	if cfg != nil {
		h.ProjectID = cfg.ProjectID
		h.SiteID = cfg.SiteID
		h.UploaderID = cfg.UploaderID
		h.UTCOffset = cfg.UTCOffset
		h.Metadata = cfg.Metadata
	}
	if mapping != nil {
		if mapping.SiteID != nil {
			h.SiteID = mapping.SiteID
		}
		if mapping.UTCOffset != nil {
			h.UTCOffset = mapping.UTCOffset
		}
	}
	return h
}

// Apply copies the hints onto info. An offset found in the file name is kept.
func (h Hints) Apply(info *models.FileInfo) {
	info.ProjectID = h.ProjectID
	info.SiteID = h.SiteID
	info.UploaderID = h.UploaderID
	info.Metadata = h.Metadata
	if info.UTCOffset == nil {
		info.UTCOffset = h.UTCOffset
	}
}

// ResolveDirectoryConfig merges every sidecar from root down to the
// directory holding rel.
func ResolveDirectoryConfig(v *validator.Validate, root, rel, name string) (*DirectoryConfig, error) {
	dir := normalizeDir(path.Dir(normalizeRel(rel)))

	cfg, err := LoadDirectoryConfig(v, root, name)
	if err != nil {
		return nil, err
	}
	if dir == "" {
		return cfg, nil
	}
	current := root
	for _, part := range strings.Split(dir, "/") {
		current = filepath.Join(current, part)
		child, err := LoadDirectoryConfig(v, current, name)
		if err != nil {
			return nil, err
		}
		cfg = cfg.Merge(child)
	}
	return cfg, nil
}
