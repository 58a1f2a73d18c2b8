package rtc

import (
	"testing"
	"time"

	"github.com/HMasataka/meeting/pkg/meeting"
	"github.com/pion/webrtc/v4/pkg/media"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestTrack(t *testing.T, source TrackSource) *LocalTrack {
	t.Helper()

	track, err := newLocalTrack(codecVP8.capability(), "track-1", localStreamID, meeting.MediaKindVideo, source)
	require.NoError(t, err)
	return track
}

func TestLocalTrack(t *testing.T) {
	t.Run("作成直後は有効", func(t *testing.T) {
		track := newTestTrack(t, TrackSourceCamera)

		assert.Equal(t, "track-1", track.TrackID())
		assert.Equal(t, meeting.MediaKindVideo, track.Kind())
		assert.Equal(t, TrackSourceCamera, track.Source())
		assert.True(t, track.Enabled())
		assert.Equal(t, TrackInfo{TrackID: "track-1", Kind: meeting.MediaKindVideo, Source: TrackSourceCamera}, track.info())
	})

	t.Run("無効化中のサンプルは破棄される", func(t *testing.T) {
		track := newTestTrack(t, TrackSourceCamera)
		require.NoError(t, track.SetEnabled(false))

		err := track.WriteSample(media.Sample{Data: []byte{0x00}, Duration: time.Millisecond})

		assert.NoError(t, err)
		assert.False(t, track.Enabled())
	})

	t.Run("停止後の書き込みはエラー", func(t *testing.T) {
		track := newTestTrack(t, TrackSourceCamera)
		track.Stop()

		err := track.WriteSample(media.Sample{Data: []byte{0x00}, Duration: time.Millisecond})

		assert.ErrorIs(t, err, ErrTrackStopped)
	})

	t.Run("クローズ後は有効化できない", func(t *testing.T) {
		track := newTestTrack(t, TrackSourceCamera)
		require.NoError(t, track.Close())

		assert.ErrorIs(t, track.SetEnabled(true), ErrTrackStopped)
	})

	t.Run("Endは一度だけ通知する", func(t *testing.T) {
		track := newTestTrack(t, TrackSourceScreen)
		calls := 0
		track.OnEnded(func() { calls++ })

		track.End()
		track.End()

		assert.Equal(t, 1, calls)
		assert.ErrorIs(t, track.WriteSample(media.Sample{Data: []byte{0x00}}), ErrTrackStopped)
	})

	t.Run("クローズ後のEndは通知しない", func(t *testing.T) {
		track := newTestTrack(t, TrackSourceScreen)
		calls := 0
		track.OnEnded(func() { calls++ })
		require.NoError(t, track.Close())

		track.End()

		assert.Zero(t, calls)
	})

	t.Run("nilで通知を解除できる", func(t *testing.T) {
		track := newTestTrack(t, TrackSourceScreen)
		calls := 0
		track.OnEnded(func() { calls++ })
		track.OnEnded(nil)

		track.End()

		assert.Zero(t, calls)
	})
}
