package harvest

import (
	"context"
	"fmt"
	"io/fs"
	"path/filepath"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/zeebo/xxh3"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/noah-isme/acoustic-workbench-api/internal/models"
)

var (
	skippedDirs  = map[string]struct{}{"system volume information": {}, "$recycle.bin": {}}
	skippedFiles = map[string]struct{}{"thumbs.db": {}, "desktop.ini": {}}
	partialExts  = []string{".filepart", ".partial"}
)

// Candidate is a file found by a scan, ready to become a harvest item.
type Candidate struct {
	Path        string
	Fingerprint string
	Info        *models.FileInfo
}

// Warning explains why a file was left out of a scan.
type Warning struct {
	Path    string `json:"path"`
	Message string `json:"message"`
}

// ScanResult lists candidates in walk order.
type ScanResult struct {
	Candidates []Candidate
	Warnings   []Warning
}

// ScannerConfig tunes a Scanner.
type ScannerConfig struct {
	SidecarFilename   string
	AllowedExtensions []string
	Concurrency       int
}

// Scanner walks an upload directory and gathers metadata for every audio
// file in it.
type Scanner struct {
	reader   FileInfoReader
	validate *validator.Validate
	cfg      ScannerConfig
	allowed  map[string]struct{}
	logger   *zap.Logger
}

// NewScanner constructs a Scanner.
func NewScanner(reader FileInfoReader, validate *validator.Validate, cfg ScannerConfig, logger *zap.Logger) *Scanner {
	if logger == nil {
		logger = zap.NewNop()
	}
	if validate == nil {
		validate = NewStructValidator()
	}
	if cfg.Concurrency <= 0 {
		cfg.Concurrency = 1
	}
	if cfg.SidecarFilename == "" {
		cfg.SidecarFilename = "harvest.yml"
	}
	allowed := make(map[string]struct{}, len(cfg.AllowedExtensions))
	for _, ext := range cfg.AllowedExtensions {
		allowed[strings.TrimPrefix(strings.ToLower(ext), ".")] = struct{}{}
	}
	return &Scanner{reader: reader, validate: validate, cfg: cfg, allowed: allowed, logger: logger}
}

// Allowed reports whether ext (with or without the dot) may be harvested.
func (s *Scanner) Allowed(ext string) bool {
	_, ok := s.allowed[strings.TrimPrefix(strings.ToLower(ext), ".")]
	return ok
}

type pendingFile struct {
	abs   string
	rel   string
	hints Hints
}

// Scan walks root. Unreadable or unsuitable files become warnings; only a
// failure to walk root itself or a cancelled context is an error.
func (s *Scanner) Scan(ctx context.Context, root string, mappings []models.HarvestMapping) (*ScanResult, error) {
	result := &ScanResult{}
	configs := map[string]*DirectoryConfig{}
	var pending []pendingFile

	err := filepath.WalkDir(root, func(p string, d fs.DirEntry, walkErr error) error {
		if err := ctx.Err(); err != nil {
			return err
		}
		if walkErr != nil {
			if p == root {
				return walkErr
			}
			result.Warnings = append(result.Warnings, Warning{Path: s.rel(root, p), Message: walkErr.Error()})
			if d != nil && d.IsDir() {
				return filepath.SkipDir
			}
			return nil
		}

		name := d.Name()
		if d.IsDir() {
			if p != root && skipDir(name) {
				return filepath.SkipDir
			}
			own, err := LoadDirectoryConfig(s.validate, p, s.cfg.SidecarFilename)
			if err != nil {
				result.Warnings = append(result.Warnings, Warning{Path: s.rel(root, p), Message: err.Error()})
			}
			configs[p] = configs[filepath.Dir(p)].Merge(own)
			return nil
		}

		if skipFile(name) || name == s.cfg.SidecarFilename {
			return nil
		}
		rel := s.rel(root, p)
		if !s.Allowed(filepath.Ext(name)) {
			result.Warnings = append(result.Warnings, Warning{Path: rel, Message: "file extension is not an allowed audio format"})
			return nil
		}
		pending = append(pending, pendingFile{
			abs:   p,
			rel:   rel,
			hints: ResolveHints(configs[filepath.Dir(p)], MatchMapping(mappings, rel)),
		})
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("scan %s: %w", root, err)
	}

	candidates := make([]*Candidate, len(pending))
	warnings := make([]*Warning, len(pending))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.cfg.Concurrency)
	for i, f := range pending {
		g.Go(func() error {
			c, w, err := s.inspect(gctx, f)
			if err != nil {
				return err
			}
			candidates[i], warnings[i] = c, w
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, fmt.Errorf("scan %s: %w", root, err)
	}

	for i := range pending {
		if candidates[i] != nil {
			result.Candidates = append(result.Candidates, *candidates[i])
		}
		if warnings[i] != nil {
			result.Warnings = append(result.Warnings, *warnings[i])
		}
	}
	s.logger.Sugar().Infow("scan finished", "root", root, "candidates", len(result.Candidates), "warnings", len(result.Warnings))
	return result, nil
}

func (s *Scanner) inspect(ctx context.Context, f pendingFile) (*Candidate, *Warning, error) {
	warn := func(err error) (*Candidate, *Warning, error) {
		return nil, &Warning{Path: f.rel, Message: err.Error()}, nil
	}

	basic, err := s.reader.Basic(f.abs)
	if err != nil {
		return warn(err)
	}
	advanced, err := s.reader.Advanced(f.abs, f.hints.UTCOffset)
	if err != nil {
		return warn(err)
	}
	audio, err := s.reader.AudioInfo(ctx, f.abs)
	if err != nil {
		if ctx.Err() != nil {
			return nil, nil, ctx.Err()
		}
		return warn(err)
	}

	info := FileInfoFrom(basic, advanced, audio)
	f.hints.Apply(info)
	return &Candidate{
		Path:        f.rel,
		Fingerprint: Fingerprint(f.rel, basic.DataLengthBytes, basic.ModifiedTime),
		Info:        info,
	}, nil, nil
}

func (s *Scanner) rel(root, p string) string {
	rel, err := filepath.Rel(root, p)
	if err != nil {
		return filepath.ToSlash(p)
	}
	return filepath.ToSlash(rel)
}

// Fingerprint identifies a version of a file without reading it, so a
// rescan can tell whether an upload changed.
func Fingerprint(rel string, size int64, modified time.Time) string {
	return fmt.Sprintf("%016x", xxh3.HashString(fmt.Sprintf("%s|%d|%d", rel, size, modified.UnixNano())))
}

func skipDir(name string) bool {
	if strings.HasPrefix(name, ".") {
		return true
	}
	_, ok := skippedDirs[strings.ToLower(name)]
	return ok
}

func skipFile(name string) bool {
	if strings.HasPrefix(name, ".") {
		return true
	}
	if _, ok := skippedFiles[strings.ToLower(name)]; ok {
		return true
	}
	lower := strings.ToLower(name)
	for _, ext := range partialExts {
		if strings.HasSuffix(lower, ext) {
			return true
		}
	}
	return false
}
