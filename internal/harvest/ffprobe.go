package harvest

import (
	"bytes"
	"context"
	"fmt"
	"os/exec"
	"strconv"
	"strings"
	"time"

	"github.com/noah-isme/acoustic-workbench-api/internal/models"
)

const probeTimeout = 30 * time.Second

func probe(ctx context.Context, binary, path string) (*AudioInfo, error) {
	ctx, cancel := context.WithTimeout(ctx, probeTimeout)
	defer cancel()

	cmd := exec.CommandContext(ctx, binary, //nolint:gosec // binary comes from configuration, args are fixed
		"-v", "error",
		"-select_streams", "a:0",
		"-show_entries", "stream=codec_name,sample_rate,channels:format=duration,bit_rate",
		"-of", "csv=p=0",
		path)

	var out, stderr bytes.Buffer
	cmd.Stdout = &out
	cmd.Stderr = &stderr
	if err := cmd.Run(); err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, domainError(CodeMetadata, "ffprobe could not read file", fmt.Errorf("%w: %s", err, strings.TrimSpace(stderr.String())))
	}

	info := parseProbeOutput(out.String())
	if info.SampleRateHertz == 0 && info.DurationSeconds == 0 {
		return nil, domainError(CodeMetadata, "ffprobe returned no audio stream", nil)
	}
	if mt, ok := models.MediaTypeForExtension(extensionOf(path)); ok {
		info.MediaType = mt
	}
	return info, nil
}

// parseProbeOutput reads the two csv lines ffprobe prints: the stream line
// (codec,sample_rate,channels) and the format line (duration,bit_rate).
func parseProbeOutput(output string) *AudioInfo {
	info := &AudioInfo{}
	for _, line := range strings.Split(strings.TrimSpace(output), "\n") {
		fields := strings.Split(strings.TrimSpace(line), ",")
		switch {
		case len(fields) >= 3:
			if rate, err := strconv.Atoi(fields[1]); err == nil {
				info.SampleRateHertz = rate
			}
			if channels, err := strconv.Atoi(fields[2]); err == nil {
				info.Channels = channels
			}
		case len(fields) == 2:
			if d, err := strconv.ParseFloat(fields[0], 64); err == nil {
				info.DurationSeconds = d
			}
			if br, err := strconv.Atoi(fields[1]); err == nil {
				info.BitRateBPS = br
			}
		}
	}
	return info
}
