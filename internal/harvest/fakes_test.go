package harvest

import (
	"context"
	"database/sql"
	"errors"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"testing"
	"time"

	"github.com/go-audio/audio"
	"github.com/go-audio/wav"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/acoustic-workbench-api/internal/models"
	"github.com/noah-isme/acoustic-workbench-api/pkg/storage"
)

type fakeItems struct {
	mu        sync.Mutex
	harvests  map[int64]*models.Harvest
	items     map[int64]*models.HarvestItem
	updateErr error
}

func newFakeItems() *fakeItems {
	return &fakeItems{harvests: map[int64]*models.Harvest{}, items: map[int64]*models.HarvestItem{}}
}

func (f *fakeItems) GetHarvest(_ context.Context, id int64) (*models.Harvest, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	h, ok := f.harvests[id]
	if !ok {
		return nil, sql.ErrNoRows
	}
	cp := *h
	return &cp, nil
}

func (f *fakeItems) GetItem(_ context.Context, id int64) (*models.HarvestItem, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	item, ok := f.items[id]
	if !ok {
		return nil, sql.ErrNoRows
	}
	cp := *item
	return &cp, nil
}

func (f *fakeItems) UpdateItem(_ context.Context, item *models.HarvestItem) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.updateErr != nil {
		return f.updateErr
	}
	cp := *item
	f.items[item.ID] = &cp
	return nil
}

func (f *fakeItems) sorted(harvestID, beforeID int64) []models.HarvestItem {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []models.HarvestItem
	for _, item := range f.items {
		if item.HarvestID == harvestID && item.ID < beforeID && item.Info.FileInfo != nil {
			out = append(out, *item)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

func (f *fakeItems) DuplicatesInHarvest(_ context.Context, harvestID, beforeID int64, hash string) ([]models.HarvestItem, error) {
	var out []models.HarvestItem
	for _, item := range f.sorted(harvestID, beforeID) {
		if item.Info.FileInfo.FileHash == hash {
			out = append(out, item)
		}
	}
	return out, nil
}

func (f *fakeItems) OverlapsInHarvest(_ context.Context, harvestID, beforeID, siteID int64, start, end time.Time) ([]models.HarvestItem, error) {
	var out []models.HarvestItem
	for _, item := range f.sorted(harvestID, beforeID) {
		fi := item.Info.FileInfo
		if fi.SiteID == nil || *fi.SiteID != siteID || fi.RecordedDate == nil {
			continue
		}
		s, e := span(fi.RecordedDate, fi.DurationSeconds)
		if s.Before(end) && e.After(start) {
			out = append(out, item)
		}
	}
	return out, nil
}

type fakeRecordings struct {
	mu         sync.Mutex
	items      *fakeItems
	recordings []models.AudioRecording
	hashErr    error
}

func (f *fakeRecordings) GetRecording(_ context.Context, id int64) (*models.AudioRecording, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, r := range f.recordings {
		if r.ID == id {
			cp := r
			return &cp, nil
		}
	}
	return nil, sql.ErrNoRows
}

func (f *fakeRecordings) FindByHash(_ context.Context, hash string) ([]models.AudioRecording, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.hashErr != nil {
		return nil, f.hashErr
	}
	var out []models.AudioRecording
	for _, r := range f.recordings {
		if r.FileHash == hash {
			out = append(out, r)
		}
	}
	return out, nil
}

func (f *fakeRecordings) FindOverlapping(_ context.Context, siteID int64, start, end time.Time) ([]models.AudioRecording, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []models.AudioRecording
	for _, r := range f.recordings {
		if r.SiteID == siteID && r.RecordedDate.Before(end) && r.RecordedEndDate().After(start) {
			out = append(out, r)
		}
	}
	return out, nil
}

func (f *fakeRecordings) CreateHarvested(ctx context.Context, rec *models.AudioRecording, adjustments []DurationAdjustment, item *models.HarvestItem) error {
	f.mu.Lock()
	rec.ID = int64(len(f.recordings) + 100)
	for _, adj := range adjustments {
		for i := range f.recordings {
			if f.recordings[i].ID == adj.RecordingID {
				f.recordings[i].DurationSeconds = adj.DurationSeconds
			}
		}
	}
	f.recordings = append(f.recordings, *rec)
	f.mu.Unlock()

	id := rec.ID
	item.AudioRecordingID = &id
	return f.items.UpdateItem(ctx, item)
}

type fakeSites map[int64]*models.Site

func (f fakeSites) GetSite(_ context.Context, id int64) (*models.Site, error) {
	s, ok := f[id]
	if !ok {
		return nil, sql.ErrNoRows
	}
	return s, nil
}

type fakeUsers map[int64]*models.User

func (f fakeUsers) GetUser(_ context.Context, id int64) (*models.User, error) {
	u, ok := f[id]
	if !ok {
		return nil, sql.ErrNoRows
	}
	return u, nil
}

type fakeScheduler struct {
	mu    sync.Mutex
	calls map[int64]time.Duration
}

func (f *fakeScheduler) ScheduleDelete(_ context.Context, itemID int64, after time.Duration) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.calls == nil {
		f.calls = map[int64]time.Duration{}
	}
	f.calls[itemID] = after
	return nil
}

type countingReader struct {
	FileInfoReader
	audioCalls int
}

func (c *countingReader) AudioInfo(ctx context.Context, path string) (*AudioInfo, error) {
	c.audioCalls++
	return c.FileInfoReader.AudioInfo(ctx, path)
}

type recordingObserver struct {
	items       []models.HarvestItemStatus
	validations []models.ValidationResult
}

func (o *recordingObserver) ObserveItem(s models.HarvestItemStatus) { o.items = append(o.items, s) }
func (o *recordingObserver) ObserveValidation(r models.ValidationResult) {
	o.validations = append(o.validations, r)
}

// writeWAV writes a mono 16 bit wav of the given length. seed varies the
// content so hashes differ between files.
func writeWAV(t *testing.T, path string, seconds float64, seed int) {
	t.Helper()
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	file, err := os.Create(path)
	require.NoError(t, err)
	defer file.Close()

	const rate = 2000
	samples := make([]int, int(seconds*rate))
	for i := range samples {
		samples[i] = (i*seed + seed) % 1000
	}
	enc := wav.NewEncoder(file, rate, 16, 1, 1)
	require.NoError(t, enc.Write(&audio.IntBuffer{Data: samples, Format: &audio.Format{SampleRate: rate, NumChannels: 1}}))
	require.NoError(t, enc.Close())
}

type harness struct {
	t          *testing.T
	uploadDir  string
	items      *fakeItems
	recordings *fakeRecordings
	reader     *countingReader
	files      *storage.LocalStorage
	scheduler  *fakeScheduler
	observer   *recordingObserver
	harvester  *Harvester
	harvest    *models.Harvest
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	uploadDir := t.TempDir()
	files, err := storage.NewLocalStorage(t.TempDir())
	require.NoError(t, err)

	items := newFakeItems()
	recordings := &fakeRecordings{items: items}
	site := int64(7)
	harvest := &models.Harvest{
		ID:         1,
		ProjectID:  3,
		CreatorID:  9,
		Status:     models.HarvestStatusProcessing,
		UploadPath: "harvest_1",
		Mappings: models.HarvestMappings{
			{Path: "", SiteID: &site, UTCOffset: strPtr("+10:00"), Recursive: true},
		},
	}
	items.harvests[harvest.ID] = harvest

	h := &harness{
		t:          t,
		uploadDir:  uploadDir,
		items:      items,
		recordings: recordings,
		reader:     &countingReader{FileInfoReader: NewAudioFileInfo("", nil)},
		files:      files,
		scheduler:  &fakeScheduler{},
		observer:   &recordingObserver{},
		harvest:    harvest,
	}
	validator := NewValidator(ValidationConfig{
		AllowedExtensions:  []string{"wav", "flac", "ogg"},
		MinDurationSeconds: 10,
		MaxOverlapSeconds:  10,
		MaxOverlaps:        2,
	}, items, recordings,
		fakeSites{7: {ID: 7, Name: "Bowra", ProjectIDs: []int64{3}}, 8: {ID: 8, Name: "Elsewhere", ProjectIDs: []int64{4}}},
		fakeUsers{9: {ID: 9, UserName: "harvester"}})
	validator.now = func() time.Time { return time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC) }

	h.harvester = NewHarvester(HarvesterConfig{UploadDir: uploadDir, DeleteAfter: 48 * time.Hour}, HarvesterDeps{
		Items:      items,
		Recordings: recordings,
		Reader:     h.reader,
		Validator:  validator,
		Files:      files,
		Scheduler:  h.scheduler,
		Observer:   h.observer,
	})
	h.harvester.newUUID = func() string { return "ABCDEF00-1111-2222-3333-444455556666" }
	return h
}

// addItem registers an item whose file lives at rel under the harvest root.
func (h *harness) addItem(id int64, rel string) {
	h.items.items[id] = &models.HarvestItem{ID: id, HarvestID: h.harvest.ID, Path: rel, Status: models.HarvestItemStatusNew}
}

func (h *harness) abs(rel string) string {
	return filepath.Join(h.uploadDir, "harvest_1", filepath.FromSlash(rel))
}

func (h *harness) item(id int64) *models.HarvestItem {
	item, err := h.items.GetItem(context.Background(), id)
	require.NoError(h.t, err)
	return item
}

func strPtr(s string) *string { return &s }

func codes(results []models.ValidationResult) []string {
	out := make([]string, len(results))
	for i, r := range results {
		out[i] = r.Code
	}
	return out
}

var errBoom = errors.New("boom")
