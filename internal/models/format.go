package models

import (
	"fmt"
	"sort"
)

// VideoFormat is one target rendition of a transcode job.
type VideoFormat struct {
	Name        string `json:"name"`
	Width       int    `json:"width"`
	Height      int    `json:"height"`
	VideoCodec  string `json:"video_codec"`
	BitrateKbps int    `json:"bitrate_kbps"`
}

// Resolution returns the WxH string ffmpeg expects for -s.
func (f VideoFormat) Resolution() string {
	return fmt.Sprintf("%dx%d", f.Width, f.Height)
}

// standardFormats are the predefined renditions selectable by name.
var standardFormats = map[string]VideoFormat{
	"1080p": {Name: "1080p", Width: 1920, Height: 1080, VideoCodec: "libx264", BitrateKbps: 5000},
	"720p":  {Name: "720p", Width: 1280, Height: 720, VideoCodec: "libx264", BitrateKbps: 2500},
	"480p":  {Name: "480p", Width: 854, Height: 480, VideoCodec: "libx264", BitrateKbps: 1000},
	"360p":  {Name: "360p", Width: 640, Height: 360, VideoCodec: "libx264", BitrateKbps: 750},
}

// StandardFormat returns the predefined format for name.
func StandardFormat(name string) (VideoFormat, error) {
	f, ok := standardFormats[name]
	if !ok {
		return VideoFormat{}, fmt.Errorf("%w: %s", ErrUnknownFormat, name)
	}
	return f, nil
}

// StandardFormatNames returns the known format names in a stable order.
func StandardFormatNames() []string {
	names := make([]string, 0, len(standardFormats))
	for name := range standardFormats {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// ExpandStandardFormats resolves a list of format names, preserving order.
// One unknown name fails the whole expansion.
func ExpandStandardFormats(names []string) ([]VideoFormat, error) {
	formats := make([]VideoFormat, 0, len(names))
	for _, name := range names {
		f, err := StandardFormat(name)
		if err != nil {
			return nil, err
		}
		formats = append(formats, f)
	}
	return formats, nil
}

// ResolveFormat turns one requested rendition into a concrete format.
// A spec carrying only a name resolves through the standard map; a fully
// specified tuple passes through unchanged, so callers may request arbitrary
// renditions. A partial tuple is rejected.
func ResolveFormat(spec VideoFormat) (VideoFormat, error) {
	if spec.Width > 0 && spec.Height > 0 && spec.VideoCodec != "" {
		if spec.Name == "" {
			spec.Name = spec.Resolution()
		}
		return spec, nil
	}
	if spec.Width != 0 || spec.Height != 0 || spec.VideoCodec != "" || spec.BitrateKbps != 0 {
		return VideoFormat{}, fmt.Errorf("%w: %q needs width, height and video codec", ErrInvalidFormat, spec.Name)
	}
	return StandardFormat(spec.Name)
}

// ResolveFormats resolves a list of requested renditions, preserving order.
// One bad spec fails the whole resolution.
func ResolveFormats(specs []VideoFormat) ([]VideoFormat, error) {
	formats := make([]VideoFormat, 0, len(specs))
	for _, spec := range specs {
		f, err := ResolveFormat(spec)
		if err != nil {
			return nil, err
		}
		formats = append(formats, f)
	}
	return formats, nil
}

// TranscodeOptions are the optional encode knobs shared by every format of a job.
type TranscodeOptions struct {
	AudioCodec       string `json:"audio_codec,omitempty"`
	AudioBitrateKbps int    `json:"audio_bitrate_kbps,omitempty"`
	FrameRate        string `json:"frame_rate,omitempty"`
	TwoPass          bool   `json:"two_pass,omitempty"`
	CRF              int    `json:"crf,omitempty"`
}

// VideoMetadata is the probed description of a source video.
type VideoMetadata struct {
	Width           int     `json:"width"`
	Height          int     `json:"height"`
	DurationSeconds float64 `json:"duration_seconds"`
	BitrateKbps     int     `json:"bitrate_kbps"`
	VideoCodec      string  `json:"video_codec"`
	AudioCodec      string  `json:"audio_codec"`
}

// OutputFile describes one produced rendition on disk.
type OutputFile struct {
	Format          string  `json:"format"`
	Location        string  `json:"location"`
	SizeBytes       int64   `json:"size_bytes"`
	DurationSeconds float64 `json:"duration_seconds"`
	BitrateKbps     int     `json:"bitrate_kbps"`
}
