package ffmpeg

import (
	"context"
	"encoding/json"
	"fmt"
	"os/exec"
	"strconv"
	"strings"
	"time"

	"github.com/mediaspool/transcoded/internal/models"
)

// ProbeResult contains the parsed ffprobe output.
type ProbeResult struct {
	Format  ProbeFormat   `json:"format"`
	Streams []ProbeStream `json:"streams"`
}

// ProbeFormat contains container format information.
type ProbeFormat struct {
	Filename   string `json:"filename"`
	NumStreams int    `json:"nb_streams"`
	FormatName string `json:"format_name"`
	StartTime  string `json:"start_time"`
	Duration   string `json:"duration"`
	Size       string `json:"size"`
	BitRate    string `json:"bit_rate"`
}

// ProbeStream contains stream information.
type ProbeStream struct {
	Index         int    `json:"index"`
	CodecName     string `json:"codec_name"`
	CodecType     string `json:"codec_type"` // video, audio, subtitle, data
	Width         int    `json:"width,omitempty"`
	Height        int    `json:"height,omitempty"`
	PixFmt        string `json:"pix_fmt,omitempty"`
	SampleRate    string `json:"sample_rate,omitempty"`
	Channels      int    `json:"channels,omitempty"`
	RFrameRate    string `json:"r_frame_rate,omitempty"`
	AvgFrameRate  string `json:"avg_frame_rate,omitempty"`
	Duration      string `json:"duration,omitempty"`
	BitRate       string `json:"bit_rate,omitempty"`
	ChannelLayout string `json:"channel_layout,omitempty"`
}

// Prober handles ffprobe operations.
type Prober struct {
	ffprobePath string
	timeout     time.Duration
}

// NewProber creates a new source prober.
func NewProber(ffprobePath string) *Prober {
	return &Prober{
		ffprobePath: ffprobePath,
		timeout:     30 * time.Second,
	}
}

// WithTimeout sets the probe timeout.
func (p *Prober) WithTimeout(timeout time.Duration) *Prober {
	if timeout > 0 {
		p.timeout = timeout
	}
	return p
}

// Probe runs ffprobe against path and returns the parsed result.
func (p *Prober) Probe(ctx context.Context, path string) (*ProbeResult, error) {
	ctx, cancel := context.WithTimeout(ctx, p.timeout)
	defer cancel()

	args := []string{
		"-v", "quiet",
		"-print_format", "json",
		"-show_format",
		"-show_streams",
		path,
	}

	cmd := exec.CommandContext(ctx, p.ffprobePath, args...)
	output, err := cmd.Output()
	if err != nil {
		if ctx.Err() == context.DeadlineExceeded {
			return nil, fmt.Errorf("probe timeout after %v", p.timeout)
		}
		return nil, fmt.Errorf("ffprobe failed: %w", err)
	}

	var result ProbeResult
	if err := json.Unmarshal(output, &result); err != nil {
		return nil, fmt.Errorf("parsing ffprobe output: %w", err)
	}

	return &result, nil
}

// GetVideoStream returns the first video stream from the probe result.
func (r *ProbeResult) GetVideoStream() *ProbeStream {
	for i := range r.Streams {
		if r.Streams[i].CodecType == "video" {
			return &r.Streams[i]
		}
	}
	return nil
}

// GetAudioStream returns the first audio stream from the probe result.
func (r *ProbeResult) GetAudioStream() *ProbeStream {
	for i := range r.Streams {
		if r.Streams[i].CodecType == "audio" {
			return &r.Streams[i]
		}
	}
	return nil
}

// DurationSeconds returns the container duration in seconds.
func (r *ProbeResult) DurationSeconds() float64 {
	if r.Format.Duration == "" {
		return 0
	}
	dur, err := strconv.ParseFloat(r.Format.Duration, 64)
	if err != nil {
		return 0
	}
	return dur
}

// BitrateKbps returns the overall bitrate in kilobits per second.
func (r *ProbeResult) BitrateKbps() int {
	if r.Format.BitRate == "" {
		return 0
	}
	br, err := strconv.Atoi(r.Format.BitRate)
	if err != nil {
		return 0
	}
	return br / 1000
}

// Metadata condenses the probe result into the domain metadata record.
func (r *ProbeResult) Metadata() models.VideoMetadata {
	md := models.VideoMetadata{
		DurationSeconds: r.DurationSeconds(),
		BitrateKbps:     r.BitrateKbps(),
	}
	if vs := r.GetVideoStream(); vs != nil {
		md.Width = vs.Width
		md.Height = vs.Height
		md.VideoCodec = vs.CodecName
	}
	if as := r.GetAudioStream(); as != nil {
		md.AudioCodec = as.CodecName
	}
	return md
}

// Framerate returns the stream framerate, preferring the average rate.
func (s *ProbeStream) Framerate() float64 {
	if s.AvgFrameRate != "" {
		if fr := parseFramerate(s.AvgFrameRate); fr > 0 {
			return fr
		}
	}
	if s.RFrameRate != "" {
		return parseFramerate(s.RFrameRate)
	}
	return 0
}

// parseFramerate parses a framerate string like "30000/1001" or "25/1".
func parseFramerate(fr string) float64 {
	parts := strings.Split(fr, "/")
	if len(parts) != 2 {
		if f, err := strconv.ParseFloat(fr, 64); err == nil {
			return f
		}
		return 0
	}

	num, err1 := strconv.ParseFloat(parts[0], 64)
	den, err2 := strconv.ParseFloat(parts[1], 64)
	if err1 != nil || err2 != nil || den == 0 {
		return 0
	}

	return num / den
}
