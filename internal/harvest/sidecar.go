package harvest

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"
)

// DirectoryConfig is the sidecar file a directory may carry. Values apply to
// the directory and everything below it unless a deeper sidecar overrides
// them.
type DirectoryConfig struct {
	ProjectID  *int64         `yaml:"project_id" validate:"omitempty,gt=0"`
	SiteID     *int64         `yaml:"site_id" validate:"omitempty,gt=0"`
	UploaderID *int64         `yaml:"uploader_id" validate:"omitempty,gt=0"`
	UTCOffset  *string        `yaml:"utc_offset" validate:"omitempty,utc_offset"`
	Metadata   map[string]any `yaml:"metadata"`
}

// LoadDirectoryConfig reads name from dir. A missing file yields (nil, nil).
func LoadDirectoryConfig(v *validator.Validate, dir, name string) (*DirectoryConfig, error) {
	data, err := os.ReadFile(filepath.Join(dir, name))
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, nil
		}
		return nil, fmt.Errorf("read sidecar: %w", err)
	}

	var cfg DirectoryConfig
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(&cfg); err != nil && !errors.Is(err, io.EOF) {
		return nil, domainError(CodeInvalidSidecar, fmt.Sprintf("%s in %s is not valid yaml", name, dir), err)
	}
	if err := v.Struct(&cfg); err != nil {
		return nil, domainError(CodeInvalidSidecar, fmt.Sprintf("%s in %s has invalid values", name, dir), err)
	}
	return &cfg, nil
}

// Merge overlays child on top of c and returns a new config. Metadata maps
// are merged key by key.
func (c *DirectoryConfig) Merge(child *DirectoryConfig) *DirectoryConfig {
	if c == nil && child == nil {
		return nil
	}
	out := &DirectoryConfig{}
	if c != nil {
		*out = *c
		out.Metadata = copyMetadata(c.Metadata)
	}
	if child == nil {
		return out
	}
	if child.ProjectID != nil {
		out.ProjectID = child.ProjectID
	}
	if child.SiteID != nil {
		out.SiteID = child.SiteID
	}
	if child.UploaderID != nil {
		out.UploaderID = child.UploaderID
	}
	if child.UTCOffset != nil {
		out.UTCOffset = child.UTCOffset
	}
	if len(child.Metadata) > 0 {
		if out.Metadata == nil {
			out.Metadata = make(map[string]any, len(child.Metadata))
		}
		for k, v := range child.Metadata {
			out.Metadata[k] = v
		}
	}
	return out
}

func copyMetadata(in map[string]any) map[string]any {
	if in == nil {
		return nil
	}
	out := make(map[string]any, len(in))
	for k, v := range in {
		out[k] = v
	}
	return out
}
