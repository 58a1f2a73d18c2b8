package mediafile

import (
	"bytes"
	"context"
	"encoding/binary"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/pion/webrtc/v4/pkg/media"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recordingWriter struct {
	samples []media.Sample
	err     error
}

func (w *recordingWriter) WriteSample(sample media.Sample) error {
	if w.err != nil {
		return w.err
	}
	w.samples = append(w.samples, sample)
	return nil
}

// writeIVF は1msのタイムベースを持つIVFファイルを作成します。
func writeIVF(t *testing.T, frames ...[]byte) string {
	t.Helper()

	var buf bytes.Buffer
	header := make([]byte, 32)
	copy(header[0:4], "DKIF")
	binary.LittleEndian.PutUint16(header[4:6], 0)
	binary.LittleEndian.PutUint16(header[6:8], 32)
	copy(header[8:12], "VP80")
	binary.LittleEndian.PutUint16(header[12:14], 640)
	binary.LittleEndian.PutUint16(header[14:16], 480)
	binary.LittleEndian.PutUint32(header[16:20], 1000)
	binary.LittleEndian.PutUint32(header[20:24], 1)
	binary.LittleEndian.PutUint32(header[24:28], uint32(len(frames)))
	buf.Write(header)

	for i, frame := range frames {
		frameHeader := make([]byte, 12)
		binary.LittleEndian.PutUint32(frameHeader[0:4], uint32(len(frame)))
		binary.LittleEndian.PutUint64(frameHeader[4:12], uint64(i))
		buf.Write(frameHeader)
		buf.Write(frame)
	}

	path := filepath.Join(t.TempDir(), "camera.ivf")
	require.NoError(t, os.WriteFile(path, buf.Bytes(), 0o644))
	return path
}

func TestPlay_IVF(t *testing.T) {
	t.Run("全フレームを書き込む", func(t *testing.T) {
		path := writeIVF(t, []byte{0x01}, []byte{0x02, 0x03}, []byte{0x04})
		w := &recordingWriter{}

		require.NoError(t, Play(context.Background(), path, w))

		require.Len(t, w.samples, 3)
		assert.Equal(t, []byte{0x02, 0x03}, w.samples[1].Data)
		assert.Equal(t, time.Millisecond, w.samples[0].Duration)
	})

	t.Run("書き込みエラーで止まる", func(t *testing.T) {
		path := writeIVF(t, []byte{0x01}, []byte{0x02})
		errStopped := errors.New("stopped")
		w := &recordingWriter{err: errStopped}

		assert.ErrorIs(t, Play(context.Background(), path, w), errStopped)
	})

	t.Run("キャンセルされたら止まる", func(t *testing.T) {
		path := writeIVF(t, []byte{0x01})
		ctx, cancel := context.WithCancel(context.Background())
		cancel()

		err := Play(ctx, path, &recordingWriter{})

		assert.ErrorIs(t, err, context.Canceled)
	})
}

func TestPlay_Errors(t *testing.T) {
	t.Run("未知の拡張子", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "camera.mp4")
		require.NoError(t, os.WriteFile(path, []byte("x"), 0o644))

		assert.ErrorIs(t, Play(context.Background(), path, &recordingWriter{}), ErrUnknownFormat)
	})

	t.Run("存在しないファイル", func(t *testing.T) {
		err := Play(context.Background(), filepath.Join(t.TempDir(), "missing.ivf"), &recordingWriter{})

		assert.ErrorIs(t, err, os.ErrNotExist)
	})

	t.Run("壊れたIVFヘッダー", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "broken.ivf")
		require.NoError(t, os.WriteFile(path, []byte("not an ivf file at all, definitely"), 0o644))

		assert.Error(t, Play(context.Background(), path, &recordingWriter{}))
	})
}
