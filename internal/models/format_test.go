package models

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStandardFormat(t *testing.T) {
	tests := []struct {
		name    string
		width   int
		height  int
		bitrate int
	}{
		{"1080p", 1920, 1080, 5000},
		{"720p", 1280, 720, 2500},
		{"480p", 854, 480, 1000},
		{"360p", 640, 360, 750},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f, err := StandardFormat(tt.name)
			require.NoError(t, err)
			assert.Equal(t, tt.name, f.Name)
			assert.Equal(t, tt.width, f.Width)
			assert.Equal(t, tt.height, f.Height)
			assert.Equal(t, "libx264", f.VideoCodec)
			assert.Equal(t, tt.bitrate, f.BitrateKbps)
		})
	}
}

func TestStandardFormatUnknown(t *testing.T) {
	_, err := StandardFormat("999p")
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrUnknownFormat)
}

func TestExpandStandardFormats(t *testing.T) {
	formats, err := ExpandStandardFormats([]string{"1080p", "360p"})
	require.NoError(t, err)
	require.Len(t, formats, 2)
	assert.Equal(t, "1080p", formats[0].Name)
	assert.Equal(t, "360p", formats[1].Name)
}

func TestExpandStandardFormatsFailsWhole(t *testing.T) {
	formats, err := ExpandStandardFormats([]string{"720p", "999p"})
	assert.ErrorIs(t, err, ErrUnknownFormat)
	assert.Nil(t, formats)
}

func TestResolveFormatNameOnly(t *testing.T) {
	f, err := ResolveFormat(VideoFormat{Name: "720p"})
	require.NoError(t, err)
	assert.Equal(t, VideoFormat{Name: "720p", Width: 1280, Height: 720, VideoCodec: "libx264", BitrateKbps: 2500}, f)
}

func TestResolveFormatCustomTuplePassesThrough(t *testing.T) {
	custom := VideoFormat{Name: "mobile", Width: 426, Height: 240, VideoCodec: "libx265", BitrateKbps: 250}
	f, err := ResolveFormat(custom)
	require.NoError(t, err)
	assert.Equal(t, custom, f)
}

func TestResolveFormatUnnamedTupleGetsResolutionName(t *testing.T) {
	f, err := ResolveFormat(VideoFormat{Width: 1920, Height: 800, VideoCodec: "libx264"})
	require.NoError(t, err)
	assert.Equal(t, "1920x800", f.Name)
}

func TestResolveFormatPartialTuple(t *testing.T) {
	_, err := ResolveFormat(VideoFormat{Name: "half", Width: 640})
	assert.ErrorIs(t, err, ErrInvalidFormat)

	_, err = ResolveFormat(VideoFormat{Name: "720p", BitrateKbps: 2500})
	assert.ErrorIs(t, err, ErrInvalidFormat)
}

func TestResolveFormatsFailsWhole(t *testing.T) {
	formats, err := ResolveFormats([]VideoFormat{
		{Name: "720p"},
		{Name: "999p"},
	})
	assert.ErrorIs(t, err, ErrUnknownFormat)
	assert.Nil(t, formats)
}

func TestStandardFormatNamesMatchMap(t *testing.T) {
	for _, name := range StandardFormatNames() {
		_, err := StandardFormat(name)
		assert.NoError(t, err)
	}
}
