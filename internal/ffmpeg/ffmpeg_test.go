package ffmpeg

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mediaspool/transcoded/internal/models"
)

func TestBuildArgsDefaults(t *testing.T) {
	format := models.VideoFormat{Name: "720p", Width: 1280, Height: 720, VideoCodec: "libx264", BitrateKbps: 2500}

	args := BuildArgs("in.mp4", "out.mp4", format, models.TranscodeOptions{})

	assert.Equal(t, []string{
		"-i", "in.mp4",
		"-c:v", "libx264",
		"-s", "1280x720",
		"-b:v", "2500k",
		"-c:a", "aac",
		"-b:a", "128k",
		"-y", "out.mp4",
	}, args)
}

func TestBuildArgsAllOptions(t *testing.T) {
	format := models.VideoFormat{Name: "1080p", Width: 1920, Height: 1080, VideoCodec: "libx265", BitrateKbps: 5000}
	options := models.TranscodeOptions{
		AudioCodec:       "libopus",
		AudioBitrateKbps: 192,
		FrameRate:        "30",
		TwoPass:          true,
		CRF:              23,
	}

	args := BuildArgs("in.mkv", "out.mkv", format, options)

	assert.Equal(t, []string{
		"-i", "in.mkv",
		"-c:v", "libx265",
		"-s", "1920x1080",
		"-b:v", "5000k",
		"-pass", "1",
		"-crf", "23",
		"-r", "30",
		"-c:a", "libopus",
		"-b:a", "192k",
		"-y", "out.mkv",
	}, args)
}

func TestBuildArgsNoBitrate(t *testing.T) {
	format := models.VideoFormat{Name: "raw", Width: 640, Height: 360, VideoCodec: "libx264"}

	args := BuildArgs("in.mp4", "out.mp4", format, models.TranscodeOptions{})

	assert.NotContains(t, args, "-b:v")
}

func TestBuildArgsAudioCodecWithoutBitrate(t *testing.T) {
	format := models.VideoFormat{Name: "480p", Width: 854, Height: 480, VideoCodec: "libx264", BitrateKbps: 1000}

	args := BuildArgs("in.mp4", "out.mp4", format, models.TranscodeOptions{AudioCodec: "copy"})

	joined := strings.Join(args, " ")
	assert.Contains(t, joined, "-c:a copy")
	assert.NotContains(t, joined, "-b:a")
}

func TestBuildArgsOutputLast(t *testing.T) {
	format := models.VideoFormat{Name: "360p", Width: 640, Height: 360, VideoCodec: "libx264", BitrateKbps: 750}

	args := BuildArgs("in.mp4", "out.mp4", format, models.TranscodeOptions{})

	require.GreaterOrEqual(t, len(args), 2)
	assert.Equal(t, "-y", args[len(args)-2])
	assert.Equal(t, "out.mp4", args[len(args)-1])
}

func TestParseProgress(t *testing.T) {
	encoder := NewEncoder("/usr/bin/ffmpeg", nil)

	output := strings.Join([]string{
		"frame=  100 fps= 30 q=28.0 size=     512kB time=00:00:10.05 bitrate= 418.1kbits/s speed=1.01x",
		"frame=  300 fps= 30 q=28.0 size=    1536kB time=00:00:30.12 bitrate= 417.9kbits/s speed=1.00x",
		"frame=  600 fps= 30 q=28.0 size=    3072kB time=00:01:00.00 bitrate= 418.0kbits/s speed=1.00x",
	}, "\r")

	var percents []int
	var messages []string
	encoder.parseProgress(strings.NewReader(output), "720p", 120, func(percent int, message string) {
		percents = append(percents, percent)
		messages = append(messages, message)
	})

	// 10s, 30s, and 60s of a 120s source.
	assert.Equal(t, []int{8, 25, 50}, percents)
	for _, msg := range messages {
		assert.Equal(t, "Transcoding 720p", msg)
	}
}

func TestParseProgressClampsOvershoot(t *testing.T) {
	encoder := NewEncoder("/usr/bin/ffmpeg", nil)

	output := "frame=  900 fps= 30 q=28.0 size= 4608kB time=00:02:30.00 bitrate= 418.0kbits/s\n"

	var percents []int
	encoder.parseProgress(strings.NewReader(output), "720p", 120, func(percent int, _ string) {
		percents = append(percents, percent)
	})

	assert.Equal(t, []int{100}, percents)
}

func TestParseProgressUnknownDuration(t *testing.T) {
	encoder := NewEncoder("/usr/bin/ffmpeg", nil)

	output := "frame=  100 fps= 30 time=00:00:10.00 bitrate= 418.1kbits/s\n"

	called := false
	encoder.parseProgress(strings.NewReader(output), "720p", 0, func(int, string) {
		called = true
	})

	assert.False(t, called)
}

func TestParseProgressReturnsLastLine(t *testing.T) {
	encoder := NewEncoder("/usr/bin/ffmpeg", nil)

	output := "some banner line\nError opening output file: permission denied\n"

	last := encoder.parseProgress(strings.NewReader(output), "720p", 60, nil)
	assert.Equal(t, "Error opening output file: permission denied", last)
}

func TestEncodeReadsProgressFromStdout(t *testing.T) {
	// A stand-in binary emitting a stats line on stdout rather than stderr;
	// the merged pipe must still feed the progress scanner.
	dir := t.TempDir()
	script := filepath.Join(dir, "fake-ffmpeg")
	require.NoError(t, os.WriteFile(script, []byte("#!/bin/sh\nprintf 'frame=  900 fps= 30 time=00:00:30.00 bitrate= 418.0kbits/s\\r'\nexit 0\n"), 0o755))

	encoder := NewEncoder(script, nil)
	format := models.VideoFormat{Name: "720p", Width: 1280, Height: 720, VideoCodec: "libx264"}

	var percents []int
	var messages []string
	err := encoder.Encode(context.Background(), "in.mp4", filepath.Join(dir, "out.mp4"), format, models.TranscodeOptions{}, 60, func(percent int, message string) {
		percents = append(percents, percent)
		messages = append(messages, message)
	})
	require.NoError(t, err)
	assert.Equal(t, []int{50}, percents)
	assert.Equal(t, []string{"Transcoding 720p"}, messages)
}

func TestProbeResultMetadata(t *testing.T) {
	raw := `{
		"format": {
			"filename": "movie.mp4",
			"nb_streams": 2,
			"format_name": "mov,mp4,m4a,3gp,3g2,mj2",
			"duration": "754.292000",
			"size": "471859200",
			"bit_rate": "5004800"
		},
		"streams": [
			{"index": 0, "codec_name": "h264", "codec_type": "video", "width": 1920, "height": 1080, "avg_frame_rate": "30000/1001"},
			{"index": 1, "codec_name": "aac", "codec_type": "audio", "sample_rate": "48000", "channels": 2}
		]
	}`

	var result ProbeResult
	require.NoError(t, json.Unmarshal([]byte(raw), &result))

	md := result.Metadata()
	assert.Equal(t, 1920, md.Width)
	assert.Equal(t, 1080, md.Height)
	assert.InDelta(t, 754.292, md.DurationSeconds, 0.001)
	assert.Equal(t, 5004, md.BitrateKbps)
	assert.Equal(t, "h264", md.VideoCodec)
	assert.Equal(t, "aac", md.AudioCodec)
}

func TestProbeResultMetadataAudioOnly(t *testing.T) {
	result := ProbeResult{
		Format: ProbeFormat{Duration: "180.0"},
		Streams: []ProbeStream{
			{Index: 0, CodecType: "audio", CodecName: "mp3"},
		},
	}

	md := result.Metadata()
	assert.Zero(t, md.Width)
	assert.Zero(t, md.Height)
	assert.Empty(t, md.VideoCodec)
	assert.Equal(t, "mp3", md.AudioCodec)
	assert.InDelta(t, 180.0, md.DurationSeconds, 0.001)
}

func TestProbeResultStreamAccessors(t *testing.T) {
	result := ProbeResult{
		Streams: []ProbeStream{
			{Index: 0, CodecType: "audio", CodecName: "aac"},
			{Index: 1, CodecType: "video", CodecName: "h264"},
			{Index: 2, CodecType: "subtitle", CodecName: "subrip"},
		},
	}

	video := result.GetVideoStream()
	require.NotNil(t, video)
	assert.Equal(t, "h264", video.CodecName)

	audio := result.GetAudioStream()
	require.NotNil(t, audio)
	assert.Equal(t, "aac", audio.CodecName)
}

func TestParseFramerate(t *testing.T) {
	tests := []struct {
		input    string
		expected float64
	}{
		{"30/1", 30.0},
		{"25/1", 25.0},
		{"30000/1001", 29.97002997002997},
		{"60", 60.0},
		{"invalid", 0},
		{"0/0", 0},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			result := parseFramerate(tt.input)
			if tt.expected == 0 {
				assert.Equal(t, float64(0), result)
			} else {
				assert.InDelta(t, tt.expected, result, 0.001)
			}
		})
	}
}

func TestScanStatsLines(t *testing.T) {
	r := strings.NewReader("line one\rline two\nline three")

	var lines []string
	scanner := newStatsScanner(r)
	for scanner.Scan() {
		lines = append(lines, scanner.Text())
	}

	assert.Equal(t, []string{"line one", "line two", "line three"}, lines)
}
