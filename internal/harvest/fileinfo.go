package harvest

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/go-audio/wav"
	"github.com/tphakala/flac"
	"go.uber.org/zap"

	"github.com/noah-isme/acoustic-workbench-api/internal/models"
)

// HashPrefix marks the algorithm used for file_hash values.
const HashPrefix = "SHA256::"

// BasicInfo is what the filesystem alone can tell about a file.
type BasicInfo struct {
	FileName        string
	Extension       string
	DataLengthBytes int64
	ModifiedTime    time.Time
}

// AdvancedInfo is derived from the file name and the applicable utc offset.
type AdvancedInfo struct {
	RecordedDate *time.Time
	DateStamp    string
	UTCOffset    *string
}

// AudioInfo is read from the audio stream itself.
type AudioInfo struct {
	MediaType       string
	DurationSeconds float64
	SampleRateHertz int
	Channels        int
	BitRateBPS      int
	BitDepth        int
	FileHash        string
}

// FileInfoReader gathers metadata for a file under harvest.
type FileInfoReader interface {
	Basic(path string) (*BasicInfo, error)
	Advanced(path string, utcOffset *string) (*AdvancedInfo, error)
	AudioInfo(ctx context.Context, path string) (*AudioInfo, error)
}

// AudioFileInfo reads wav and flac headers natively and falls back to
// ffprobe for everything else when a binary is configured.
type AudioFileInfo struct {
	ffprobe string
	logger  *zap.Logger
}

// NewAudioFileInfo builds a reader. An empty ffprobe path disables the
// fallback.
func NewAudioFileInfo(ffprobe string, logger *zap.Logger) *AudioFileInfo {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &AudioFileInfo{ffprobe: ffprobe, logger: logger}
}

// Basic stats the file.
func (r *AudioFileInfo) Basic(path string) (*BasicInfo, error) {
	stat, err := os.Stat(path)
	if err != nil {
		return nil, fmt.Errorf("stat %s: %w", path, err)
	}
	if !stat.Mode().IsRegular() {
		return nil, domainError(CodeMetadata, fmt.Sprintf("%s is not a regular file", path), nil)
	}
	name := filepath.Base(path)
	return &BasicInfo{
		FileName:        name,
		Extension:       extensionOf(name),
		DataLengthBytes: stat.Size(),
		ModifiedTime:    stat.ModTime().UTC(),
	}, nil
}

// Advanced parses the recorded date from the file name. A stamp without an
// offset is only resolved when utcOffset is given.
func (r *AudioFileInfo) Advanced(path string, utcOffset *string) (*AdvancedInfo, error) {
	return ParseRecordedDate(filepath.Base(path), utcOffset)
}

// AudioInfo decodes the stream header and hashes the content.
func (r *AudioFileInfo) AudioInfo(ctx context.Context, path string) (*AudioInfo, error) {
	var (
		info *AudioInfo
		err  error
	)
	switch ext := extensionOf(path); ext {
	case "wav":
		info, err = readWAV(path)
	case "flac":
		info, err = readFLAC(path)
	default:
		if r.ffprobe == "" {
			return nil, domainError(CodeUnsupportedFormat, fmt.Sprintf("no reader for .%s files", ext), nil)
		}
		info, err = probe(ctx, r.ffprobe, path)
	}
	if err != nil {
		return nil, err
	}

	hash, err := HashFile(path)
	if err != nil {
		return nil, err
	}
	info.FileHash = hash
	r.logger.Sugar().Debugw("read audio info", "path", path, "media_type", info.MediaType, "duration", info.DurationSeconds)
	return info, nil
}

func readWAV(path string) (*AudioInfo, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", path, err)
	}
	defer file.Close() //nolint:errcheck

	decoder := wav.NewDecoder(file)
	decoder.ReadInfo()
	if !decoder.IsValidFile() {
		return nil, domainError(CodeMetadata, "invalid wav file", decoder.Err())
	}
	duration, err := decoder.Duration()
	if err != nil {
		return nil, domainError(CodeMetadata, "could not read wav duration", err)
	}

	return &AudioInfo{
		MediaType:       "audio/wav",
		DurationSeconds: duration.Seconds(),
		SampleRateHertz: int(decoder.SampleRate),
		Channels:        int(decoder.NumChans),
		BitDepth:        int(decoder.BitDepth),
		BitRateBPS:      int(decoder.SampleRate) * int(decoder.BitDepth) * int(decoder.NumChans),
	}, nil
}

func readFLAC(path string) (*AudioInfo, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", path, err)
	}
	defer file.Close() //nolint:errcheck

	decoder, err := flac.NewDecoder(file)
	if err != nil {
		return nil, domainError(CodeMetadata, "invalid flac file", err)
	}
	if decoder.SampleRate <= 0 {
		return nil, domainError(CodeMetadata, "flac stream has no sample rate", nil)
	}

	info := &AudioInfo{
		MediaType:       "audio/x-flac",
		SampleRateHertz: decoder.SampleRate,
		Channels:        decoder.NChannels,
		BitDepth:        decoder.BitsPerSample,
		DurationSeconds: float64(decoder.TotalSamples) / float64(decoder.SampleRate),
	}
	if stat, err := file.Stat(); err == nil && info.DurationSeconds > 0 {
		info.BitRateBPS = int(float64(stat.Size()*8) / info.DurationSeconds)
	}
	return info, nil
}

// HashFile returns the SHA256 content hash in file_hash form.
func HashFile(path string) (string, error) {
	file, err := os.Open(path)
	if err != nil {
		return "", fmt.Errorf("open %s: %w", path, err)
	}
	defer file.Close() //nolint:errcheck

	h := sha256.New()
	if _, err := io.Copy(h, file); err != nil {
		return "", fmt.Errorf("hash %s: %w", path, err)
	}
	return HashPrefix + hex.EncodeToString(h.Sum(nil)), nil
}

func extensionOf(name string) string {
	return strings.TrimPrefix(strings.ToLower(filepath.Ext(name)), ".")
}

// FileInfoFrom assembles the persisted file_info from the reader results.
func FileInfoFrom(basic *BasicInfo, advanced *AdvancedInfo, audio *AudioInfo) *models.FileInfo {
	info := &models.FileInfo{}
	if basic != nil {
		info.FileName = basic.FileName
		info.OriginalFileName = basic.FileName
		info.Extension = basic.Extension
		info.DataLengthBytes = basic.DataLengthBytes
		info.ModifiedTime = basic.ModifiedTime
	}
	if advanced != nil {
		info.RecordedDate = advanced.RecordedDate
		info.DateStamp = advanced.DateStamp
		info.UTCOffset = advanced.UTCOffset
	}
	if audio != nil {
		info.MediaType = audio.MediaType
		info.DurationSeconds = audio.DurationSeconds
		info.SampleRateHertz = audio.SampleRateHertz
		info.Channels = audio.Channels
		info.BitRateBPS = audio.BitRateBPS
		info.BitDepth = audio.BitDepth
		info.FileHash = audio.FileHash
	}
	return info
}
