// Package ffmpeg drives ffmpeg and ffprobe subprocesses: probing source
// metadata and encoding renditions with line-parsed progress reporting.
package ffmpeg

import (
	"context"
	"log/slog"
	"time"

	"github.com/mediaspool/transcoded/internal/models"
)

// ProgressFunc receives encode progress. Percent is 0-100 for normal
// progress; -1 signals an encode failure with message carrying the cause.
type ProgressFunc func(percent int, message string)

// Driver abstracts the media toolchain so the job manager can be tested
// without spawning processes.
type Driver interface {
	// Probe extracts metadata from a source video.
	Probe(ctx context.Context, path string) (models.VideoMetadata, error)

	// Encode transcodes input into output for one format. durationSeconds is
	// the probed source duration used to scale progress; progress may be nil.
	Encode(ctx context.Context, input, output string, format models.VideoFormat, options models.TranscodeOptions, durationSeconds float64, progress ProgressFunc) error
}

// Client is the subprocess-backed Driver.
type Client struct {
	prober  *Prober
	encoder *Encoder
}

var _ Driver = (*Client)(nil)

// NewClient creates a Driver using the given ffmpeg and ffprobe binaries.
func NewClient(ffmpegPath, ffprobePath string, probeTimeout time.Duration, logger *slog.Logger) *Client {
	return &Client{
		prober:  NewProber(ffprobePath).WithTimeout(probeTimeout),
		encoder: NewEncoder(ffmpegPath, logger),
	}
}

// Probe implements Driver.
func (c *Client) Probe(ctx context.Context, path string) (models.VideoMetadata, error) {
	result, err := c.prober.Probe(ctx, path)
	if err != nil {
		return models.VideoMetadata{}, err
	}
	return result.Metadata(), nil
}

// Encode implements Driver.
func (c *Client) Encode(ctx context.Context, input, output string, format models.VideoFormat, options models.TranscodeOptions, durationSeconds float64, progress ProgressFunc) error {
	return c.encoder.Encode(ctx, input, output, format, options, durationSeconds, progress)
}
