// Package mediafile はIVF/Oggファイルをローカルトラックに実時間で流し込みます。
package mediafile

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/pion/webrtc/v4/pkg/media"
	"github.com/pion/webrtc/v4/pkg/media/ivfreader"
	"github.com/pion/webrtc/v4/pkg/media/oggreader"
)

// ErrUnknownFormat the file extension is neither .ivf nor .ogg
var ErrUnknownFormat = errors.New("unknown media file format")

const (
	oggPageDuration = 20 * time.Millisecond
	opusSampleRate  = 48000
)

// SampleWriter はサンプルを受け取るトラックです。
type SampleWriter interface {
	WriteSample(sample media.Sample) error
}

// Play はファイルのサンプルを w に書き込みます。ファイル末尾に達するとnilを返します。
func Play(ctx context.Context, path string, w SampleWriter) error {
	f, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("failed to open media file: %w", err)
	}
	defer f.Close()

	switch strings.ToLower(filepath.Ext(path)) {
	case ".ivf":
		return playIVF(ctx, f, w)
	case ".ogg", ".opus":
		return playOgg(ctx, f, w)
	default:
		return fmt.Errorf("%w: %s", ErrUnknownFormat, path)
	}
}

func playIVF(ctx context.Context, r io.Reader, w SampleWriter) error {
	reader, header, err := ivfreader.NewWith(r)
	if err != nil {
		return fmt.Errorf("failed to read ivf header: %w", err)
	}

	if header.TimebaseDenominator == 0 || header.TimebaseNumerator == 0 {
		return fmt.Errorf("invalid ivf timebase: %d/%d", header.TimebaseNumerator, header.TimebaseDenominator)
	}

	frameDuration := time.Duration(float64(header.TimebaseNumerator) / float64(header.TimebaseDenominator) * float64(time.Second))

	ticker := time.NewTicker(frameDuration)
	defer ticker.Stop()

	for {
		if err := ctx.Err(); err != nil {
			return err
		}

		frame, _, err := reader.ParseNextFrame()
		if errors.Is(err, io.EOF) {
			return nil
		}
		if err != nil {
			return fmt.Errorf("failed to read ivf frame: %w", err)
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}

		if err := w.WriteSample(media.Sample{Data: frame, Duration: frameDuration}); err != nil {
			return err
		}
	}
}

func playOgg(ctx context.Context, r io.Reader, w SampleWriter) error {
	reader, _, err := oggreader.NewWith(r)
	if err != nil {
		return fmt.Errorf("failed to read ogg header: %w", err)
	}

	ticker := time.NewTicker(oggPageDuration)
	defer ticker.Stop()

	var lastGranule uint64
	for {
		if err := ctx.Err(); err != nil {
			return err
		}

		page, header, err := reader.ParseNextPage()
		if errors.Is(err, io.EOF) {
			return nil
		}
		if err != nil {
			return fmt.Errorf("failed to read ogg page: %w", err)
		}

		// グラニュール位置の差分がページ内のサンプル数
		samples := header.GranulePosition - lastGranule
		lastGranule = header.GranulePosition
		duration := time.Duration(float64(samples) / opusSampleRate * float64(time.Second))

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}

		if err := w.WriteSample(media.Sample{Data: page, Duration: duration}); err != nil {
			return err
		}
	}
}
