package ffmpeg

import (
	"bufio"
	"bytes"
	"context"
	"fmt"
	"io"
	"log/slog"
	"os/exec"
	"regexp"
	"strconv"
	"sync"
	"time"

	"github.com/mediaspool/transcoded/internal/models"
)

// timeRe matches the out_time field of ffmpeg's progress lines.
var timeRe = regexp.MustCompile(`time=(\d+):(\d+):(\d+).(\d+)`)

// Encoder runs ffmpeg encodes and parses progress from its output.
type Encoder struct {
	ffmpegPath string
	logger     *slog.Logger
}

// NewEncoder creates an encoder using the given ffmpeg binary.
func NewEncoder(ffmpegPath string, logger *slog.Logger) *Encoder {
	if logger == nil {
		logger = slog.Default()
	}
	return &Encoder{ffmpegPath: ffmpegPath, logger: logger}
}

// BuildArgs assembles the ffmpeg argument list for one rendition.
// Argument order matters to ffmpeg: input first, then video settings,
// then audio settings, then overwrite and the output path.
func BuildArgs(input, output string, format models.VideoFormat, options models.TranscodeOptions) []string {
	args := []string{
		"-i", input,
		"-c:v", format.VideoCodec,
		"-s", format.Resolution(),
	}

	if format.BitrateKbps > 0 {
		args = append(args, "-b:v", fmt.Sprintf("%dk", format.BitrateKbps))
	}
	if options.TwoPass {
		args = append(args, "-pass", "1")
	}
	if options.CRF > 0 {
		args = append(args, "-crf", strconv.Itoa(options.CRF))
	}
	if options.FrameRate != "" {
		args = append(args, "-r", options.FrameRate)
	}

	if options.AudioCodec != "" {
		args = append(args, "-c:a", options.AudioCodec)
		if options.AudioBitrateKbps > 0 {
			args = append(args, "-b:a", fmt.Sprintf("%dk", options.AudioBitrateKbps))
		}
	} else {
		args = append(args, "-c:a", "aac", "-b:a", "128k")
	}

	args = append(args, "-y", output)
	return args
}

// Encode transcodes input into output for one format, reporting progress as
// ffmpeg emits time= lines. A failed encode reports (-1, cause) before
// returning the error.
func (e *Encoder) Encode(ctx context.Context, input, output string, format models.VideoFormat, options models.TranscodeOptions, durationSeconds float64, progress ProgressFunc) error {
	args := BuildArgs(input, output, format, options)

	cmd := exec.CommandContext(ctx, e.ffmpegPath, args...)

	// ffmpeg writes stats to stderr; stdout is merged into the same pipe so
	// the progress scanner sees everything the process prints.
	combined, err := cmd.StderrPipe()
	if err != nil {
		return fmt.Errorf("getting stderr pipe: %w", err)
	}
	cmd.Stdout = cmd.Stderr

	started := time.Now()
	if err := cmd.Start(); err != nil {
		msg := fmt.Sprintf("starting ffmpeg: %v", err)
		if progress != nil {
			progress(-1, msg)
		}
		return fmt.Errorf("starting ffmpeg: %w", err)
	}

	monitor := NewProcessMonitor(cmd.Process.Pid)
	monitor.Start()

	var wg sync.WaitGroup
	var lastLine string
	wg.Add(1)
	go func() {
		defer wg.Done()
		lastLine = e.parseProgress(combined, format.Name, durationSeconds, progress)
	}()

	waitErr := cmd.Wait()
	wg.Wait()
	stats := monitor.Stats()
	monitor.Stop()

	if waitErr != nil {
		msg := fmt.Sprintf("ffmpeg exited: %v", waitErr)
		if lastLine != "" {
			msg = fmt.Sprintf("%s (%s)", msg, lastLine)
		}
		if progress != nil {
			progress(-1, msg)
		}
		return fmt.Errorf("encoding %s: %w", format.Name, waitErr)
	}

	e.logger.Debug("encode finished",
		slog.String("format", format.Name),
		slog.String("output", output),
		slog.Duration("elapsed", time.Since(started)),
		slog.Float64("cpu_percent", stats.CPUPercent),
		slog.Float64("memory_rss_mb", stats.MemoryRSSMB),
	)
	return nil
}

// parseProgress scans ffmpeg output and reports scaled percentages.
// Returns the last non-empty line seen for error reporting.
func (e *Encoder) parseProgress(r io.Reader, formatName string, durationSeconds float64, progress ProgressFunc) string {
	scanner := newStatsScanner(r)

	var lastLine string
	for scanner.Scan() {
		line := scanner.Text()
		if line != "" {
			lastLine = line
		}

		matches := timeRe.FindStringSubmatch(line)
		if len(matches) <= 4 || durationSeconds <= 0 || progress == nil {
			continue
		}

		hours, _ := strconv.Atoi(matches[1])
		mins, _ := strconv.Atoi(matches[2])
		secs, _ := strconv.Atoi(matches[3])
		current := float64(hours*3600 + mins*60 + secs)

		percent := int(100 * current / durationSeconds)
		if percent > 100 {
			percent = 100
		}
		if percent < 0 {
			percent = 0
		}
		progress(percent, "Transcoding "+formatName)
	}
	return lastLine
}

// newStatsScanner returns a scanner that splits ffmpeg output into lines.
func newStatsScanner(r io.Reader) *bufio.Scanner {
	scanner := bufio.NewScanner(r)
	scanner.Split(scanStatsLines)
	return scanner
}

// scanStatsLines splits on both \n and \r so ffmpeg's in-place stats
// updates (carriage-return terminated) surface as individual lines.
func scanStatsLines(data []byte, atEOF bool) (advance int, token []byte, err error) {
	if atEOF && len(data) == 0 {
		return 0, nil, nil
	}
	if i := bytes.IndexAny(data, "\r\n"); i >= 0 {
		return i + 1, data[:i], nil
	}
	if atEOF {
		return len(data), data, nil
	}
	return 0, nil, nil
}
