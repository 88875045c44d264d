package harvest

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/noah-isme/acoustic-workbench-api/internal/models"
)

// Validation codes, in pipeline order.
const (
	CodeFileMissing               = "file_missing"
	CodeNotAFile                  = "not_a_file"
	CodeFileEmpty                 = "file_empty"
	CodeInvalidExtension          = "invalid_extension"
	CodeMissingDate               = "missing_date"
	CodeAmbiguousDate             = "ambiguous_date"
	CodeFutureDate                = "future_date"
	CodeMissingDuration           = "missing_duration"
	CodeTooShort                  = "too_short"
	CodeInvalidChannels           = "invalid_channel_count"
	CodeInvalidSampleRate         = "invalid_sample_rate"
	CodeInvalidBitRate            = "invalid_bit_rate"
	CodeInvalidMediaType          = "invalid_media_type"
	CodeDuplicateFile             = "duplicate_file"
	CodeDuplicateFileInHarvest    = "duplicate_file_in_harvest"
	CodeUploaderNotFound          = "uploader_not_found"
	CodeMissingSite               = "missing_site"
	CodeSiteNotFound              = "site_not_found"
	CodeSiteNotInProject          = "site_not_in_project"
	CodeOverlappingFiles          = "overlapping_files"
	CodeOverlappingFilesInHarvest = "overlapping_files_in_harvest"
)

// ValidationConfig holds the thresholds checks compare against.
type ValidationConfig struct {
	AllowedExtensions  []string
	MinDurationSeconds float64
	MaxOverlapSeconds  float64
	MaxOverlaps        int
}

// Subject is the item being validated. Info is nil until metadata has been
// extracted.
type Subject struct {
	Item    *models.HarvestItem
	Harvest *models.Harvest
	AbsPath string
	Info    *models.FileInfo
}

type check func(ctx context.Context, s *Subject) (*models.ValidationResult, error)

// Validator runs the ordered validation pipeline. The first not_fixable
// result stops it.
type Validator struct {
	cfg        ValidationConfig
	allowed    map[string]struct{}
	items      ItemStore
	recordings RecordingStore
	sites      SiteStore
	users      UserStore
	now        func() time.Time
}

// NewValidator constructs a Validator.
func NewValidator(cfg ValidationConfig, items ItemStore, recordings RecordingStore, sites SiteStore, users UserStore) *Validator {
	allowed := make(map[string]struct{}, len(cfg.AllowedExtensions))
	for _, ext := range cfg.AllowedExtensions {
		allowed[strings.TrimPrefix(strings.ToLower(ext), ".")] = struct{}{}
	}
	return &Validator{
		cfg:        cfg,
		allowed:    allowed,
		items:      items,
		recordings: recordings,
		sites:      sites,
		users:      users,
		now:        time.Now,
	}
}

// Simple runs the checks that need nothing but the filesystem.
func (v *Validator) Simple(ctx context.Context, s *Subject) ([]models.ValidationResult, error) {
	return run(ctx, s, []check{v.fileExists, v.isFile, v.notEmpty, v.validExtension})
}

// Metadata runs the checks that need extracted file info and the database.
func (v *Validator) Metadata(ctx context.Context, s *Subject) ([]models.ValidationResult, error) {
	if s.Info == nil {
		return nil, errors.New("metadata validation requires file info")
	}
	return run(ctx, s, []check{
		v.hasDate,
		v.unambiguousDate,
		v.notFuture,
		v.hasDuration,
		v.minimumDuration,
		v.channels,
		v.sampleRate,
		v.bitRate,
		v.mediaType,
		v.notDuplicate,
		v.notDuplicateInHarvest,
		v.uploader,
		v.site,
		v.noOverlap,
		v.noOverlapInHarvest,
	})
}

func run(ctx context.Context, s *Subject, checks []check) ([]models.ValidationResult, error) {
	var results []models.ValidationResult
	for _, c := range checks {
		r, err := c(ctx, s)
		if err != nil {
			return results, err
		}
		if r == nil {
			continue
		}
		results = append(results, *r)
		if r.Status == models.ValidationNotFixable {
			break
		}
	}
	return results, nil
}

func notFixable(code, format string, args ...any) *models.ValidationResult {
	return &models.ValidationResult{Code: code, Status: models.ValidationNotFixable, Message: fmt.Sprintf(format, args...)}
}

func fixable(code, format string, args ...any) *models.ValidationResult {
	return &models.ValidationResult{Code: code, Status: models.ValidationFixable, Message: fmt.Sprintf(format, args...)}
}

func (v *Validator) fileExists(_ context.Context, s *Subject) (*models.ValidationResult, error) {
	if _, err := os.Stat(s.AbsPath); err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return notFixable(CodeFileMissing, "file %s does not exist", s.Item.Path), nil
		}
		return nil, fmt.Errorf("stat %s: %w", s.AbsPath, err)
	}
	return nil, nil
}

func (v *Validator) isFile(_ context.Context, s *Subject) (*models.ValidationResult, error) {
	stat, err := os.Stat(s.AbsPath)
	if err != nil {
		return nil, fmt.Errorf("stat %s: %w", s.AbsPath, err)
	}
	if !stat.Mode().IsRegular() {
		return notFixable(CodeNotAFile, "%s is not a file", s.Item.Path), nil
	}
	return nil, nil
}

func (v *Validator) notEmpty(_ context.Context, s *Subject) (*models.ValidationResult, error) {
	stat, err := os.Stat(s.AbsPath)
	if err != nil {
		return nil, fmt.Errorf("stat %s: %w", s.AbsPath, err)
	}
	if stat.Size() == 0 {
		return notFixable(CodeFileEmpty, "file is empty"), nil
	}
	return nil, nil
}

func (v *Validator) validExtension(_ context.Context, s *Subject) (*models.ValidationResult, error) {
	ext := extensionOf(s.AbsPath)
	if _, ok := v.allowed[ext]; !ok {
		return notFixable(CodeInvalidExtension, "extension %q is not an allowed audio format", ext), nil
	}
	return nil, nil
}

func (v *Validator) hasDate(_ context.Context, s *Subject) (*models.ValidationResult, error) {
	if s.Info.RecordedDate == nil && s.Info.DateStamp == "" {
		return notFixable(CodeMissingDate, "no recorded date could be found in the file name"), nil
	}
	return nil, nil
}

func (v *Validator) unambiguousDate(_ context.Context, s *Subject) (*models.ValidationResult, error) {
	if s.Info.RecordedDate == nil {
		return notFixable(CodeAmbiguousDate, "recorded date %s has no utc offset; add one to a mapping or sidecar", s.Info.DateStamp), nil
	}
	return nil, nil
}

func (v *Validator) notFuture(_ context.Context, s *Subject) (*models.ValidationResult, error) {
	if s.Info.RecordedDate.After(v.now()) {
		return notFixable(CodeFutureDate, "recorded date %s is in the future", s.Info.RecordedDate.Format(time.RFC3339)), nil
	}
	return nil, nil
}

func (v *Validator) hasDuration(_ context.Context, s *Subject) (*models.ValidationResult, error) {
	if s.Info.DurationSeconds <= 0 {
		return notFixable(CodeMissingDuration, "duration could not be determined"), nil
	}
	return nil, nil
}

func (v *Validator) minimumDuration(_ context.Context, s *Subject) (*models.ValidationResult, error) {
	if s.Info.DurationSeconds < v.cfg.MinDurationSeconds {
		return notFixable(CodeTooShort, "duration %.3fs is shorter than the minimum of %.0fs", s.Info.DurationSeconds, v.cfg.MinDurationSeconds), nil
	}
	return nil, nil
}

func (v *Validator) channels(_ context.Context, s *Subject) (*models.ValidationResult, error) {
	if s.Info.Channels < 1 {
		return notFixable(CodeInvalidChannels, "channel count %d is not valid", s.Info.Channels), nil
	}
	return nil, nil
}

func (v *Validator) sampleRate(_ context.Context, s *Subject) (*models.ValidationResult, error) {
	if s.Info.SampleRateHertz <= 0 {
		return notFixable(CodeInvalidSampleRate, "sample rate %d is not valid", s.Info.SampleRateHertz), nil
	}
	return nil, nil
}

func (v *Validator) bitRate(_ context.Context, s *Subject) (*models.ValidationResult, error) {
	if s.Info.BitRateBPS <= 0 {
		return notFixable(CodeInvalidBitRate, "bit rate %d is not valid", s.Info.BitRateBPS), nil
	}
	return nil, nil
}

func (v *Validator) mediaType(_ context.Context, s *Subject) (*models.ValidationResult, error) {
	if models.ExtensionForMediaType(s.Info.MediaType) == "" {
		return notFixable(CodeInvalidMediaType, "media type %q is not supported", s.Info.MediaType), nil
	}
	return nil, nil
}

func (v *Validator) notDuplicate(ctx context.Context, s *Subject) (*models.ValidationResult, error) {
	if s.Info.FileHash == "" {
		return nil, nil
	}
	existing, err := v.recordings.FindByHash(ctx, s.Info.FileHash)
	if err != nil {
		return nil, fmt.Errorf("find recordings by hash: %w", err)
	}
	if len(existing) == 0 {
		return nil, nil
	}
	ids := make([]string, len(existing))
	for i, r := range existing {
		ids[i] = fmt.Sprint(r.ID)
	}
	return notFixable(CodeDuplicateFile, "file has already been harvested as audio recording %s", strings.Join(ids, ", ")), nil
}

func (v *Validator) notDuplicateInHarvest(ctx context.Context, s *Subject) (*models.ValidationResult, error) {
	if s.Info.FileHash == "" {
		return nil, nil
	}
	others, err := v.items.DuplicatesInHarvest(ctx, s.Harvest.ID, s.Item.ID, s.Info.FileHash)
	if err != nil {
		return nil, fmt.Errorf("find duplicate items: %w", err)
	}
	if len(others) == 0 {
		return nil, nil
	}
	paths := make([]string, len(others))
	for i, o := range others {
		paths[i] = o.Path
	}
	return notFixable(CodeDuplicateFileInHarvest, "file is a duplicate of %s in this harvest", strings.Join(paths, ", ")), nil
}

func (v *Validator) uploader(ctx context.Context, s *Subject) (*models.ValidationResult, error) {
	if s.Info.UploaderID == nil {
		return notFixable(CodeUploaderNotFound, "no uploader is set"), nil
	}
	if _, err := v.users.GetUser(ctx, *s.Info.UploaderID); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return notFixable(CodeUploaderNotFound, "uploader %d does not exist", *s.Info.UploaderID), nil
		}
		return nil, fmt.Errorf("get uploader: %w", err)
	}
	return nil, nil
}

func (v *Validator) site(ctx context.Context, s *Subject) (*models.ValidationResult, error) {
	if s.Info.SiteID == nil {
		return notFixable(CodeMissingSite, "no site is mapped to this file; add a mapping for its directory"), nil
	}
	site, err := v.sites.GetSite(ctx, *s.Info.SiteID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return notFixable(CodeSiteNotFound, "site %d does not exist", *s.Info.SiteID), nil
		}
		return nil, fmt.Errorf("get site: %w", err)
	}
	for _, pid := range site.ProjectIDs {
		if pid == s.Harvest.ProjectID {
			return nil, nil
		}
	}
	return notFixable(CodeSiteNotInProject, "site %d is not part of project %d", site.ID, s.Harvest.ProjectID), nil
}

func (v *Validator) noOverlap(ctx context.Context, s *Subject) (*models.ValidationResult, error) {
	start, end := span(s.Info.RecordedDate, s.Info.DurationSeconds)
	existing, err := v.recordings.FindOverlapping(ctx, *s.Info.SiteID, start, end)
	if err != nil {
		return nil, fmt.Errorf("find overlapping recordings: %w", err)
	}
	if len(existing) == 0 {
		return nil, nil
	}
	if len(existing) > v.cfg.MaxOverlaps {
		return notFixable(CodeOverlappingFiles, "file overlaps %d existing recordings, more than the %d that can be fixed", len(existing), v.cfg.MaxOverlaps), nil
	}
	largest := 0.0
	for _, r := range existing {
		if r.RecordedDate.Equal(start) {
			return notFixable(CodeOverlappingFiles, "file starts at the same time as audio recording %d", r.ID), nil
		}
		amount := overlapSeconds(start, end, r.RecordedDate, r.RecordedEndDate())
		if amount > v.cfg.MaxOverlapSeconds {
			return notFixable(CodeOverlappingFiles, "file overlaps audio recording %d by %.3fs, more than the %.0fs that can be fixed", r.ID, amount, v.cfg.MaxOverlapSeconds), nil
		}
		if amount > largest {
			largest = amount
		}
	}
	return fixable(CodeOverlappingFiles, "file overlaps %d existing recordings by at most %.3fs and will be trimmed", len(existing), largest), nil
}

func (v *Validator) noOverlapInHarvest(ctx context.Context, s *Subject) (*models.ValidationResult, error) {
	start, end := span(s.Info.RecordedDate, s.Info.DurationSeconds)
	others, err := v.items.OverlapsInHarvest(ctx, s.Harvest.ID, s.Item.ID, *s.Info.SiteID, start, end)
	if err != nil {
		return nil, fmt.Errorf("find overlapping items: %w", err)
	}
	if len(others) == 0 {
		return nil, nil
	}
	if len(others) > v.cfg.MaxOverlaps {
		return notFixable(CodeOverlappingFilesInHarvest, "file overlaps %d other files in this harvest, more than the %d that can be fixed", len(others), v.cfg.MaxOverlaps), nil
	}
	for _, o := range others {
		fi := o.Info.FileInfo
		if fi == nil || fi.RecordedDate == nil {
			continue
		}
		otherStart, otherEnd := span(fi.RecordedDate, fi.DurationSeconds)
		if otherStart.Equal(start) {
			return notFixable(CodeOverlappingFilesInHarvest, "file starts at the same time as %s", o.Path), nil
		}
		if amount := overlapSeconds(start, end, otherStart, otherEnd); amount > v.cfg.MaxOverlapSeconds {
			return notFixable(CodeOverlappingFilesInHarvest, "file overlaps %s by %.3fs, more than the %.0fs that can be fixed", o.Path, amount, v.cfg.MaxOverlapSeconds), nil
		}
	}
	return fixable(CodeOverlappingFilesInHarvest, "file overlaps %d other files in this harvest and will be trimmed when harvested", len(others)), nil
}

func span(start *time.Time, seconds float64) (time.Time, time.Time) {
	return *start, start.Add(time.Duration(seconds * float64(time.Second)))
}

func overlapSeconds(aStart, aEnd, bStart, bEnd time.Time) float64 {
	start := aStart
	if bStart.After(start) {
		start = bStart
	}
	end := aEnd
	if bEnd.Before(end) {
		end = bEnd
	}
	if !end.After(start) {
		return 0
	}
	return end.Sub(start).Seconds()
}
