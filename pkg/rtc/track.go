package rtc

import (
	"errors"
	"fmt"
	"sync"

	"github.com/HMasataka/meeting/pkg/meeting"
	"github.com/pion/webrtc/v4"
	"github.com/pion/webrtc/v4/pkg/media"
)

var (
	// ErrTrackStopped the local track no longer accepts samples
	ErrTrackStopped = errors.New("local track stopped")
	// ErrForeignTrack the track was not created by this engine
	ErrForeignTrack = errors.New("track was not created by this engine")
)

// LocalTrack はサンプルを書き込んで送出するローカルトラックです。
// 無効化中に書き込まれたサンプルは破棄されます。
type LocalTrack struct {
	track  *webrtc.TrackLocalStaticSample
	kind   meeting.MediaKind
	source TrackSource

	mu      sync.RWMutex
	enabled bool
	stopped bool
	closed  bool
	onEnded func()
}

var (
	_ meeting.LocalTrack  = (*LocalTrack)(nil)
	_ meeting.ScreenTrack = (*LocalTrack)(nil)
)

func newLocalTrack(capability webrtc.RTPCodecCapability, id, streamID string, kind meeting.MediaKind, source TrackSource) (*LocalTrack, error) {
	track, err := webrtc.NewTrackLocalStaticSample(capability, id, streamID)
	if err != nil {
		return nil, fmt.Errorf("failed to create %s track: %w", source, err)
	}

	return &LocalTrack{
		track:   track,
		kind:    kind,
		source:  source,
		enabled: true,
	}, nil
}

func (t *LocalTrack) TrackID() string {
	return t.track.ID()
}

func (t *LocalTrack) Kind() meeting.MediaKind {
	return t.kind
}

func (t *LocalTrack) Source() TrackSource {
	return t.source
}

func (t *LocalTrack) info() TrackInfo {
	return TrackInfo{TrackID: t.TrackID(), Kind: t.kind, Source: t.source}
}

func (t *LocalTrack) SetEnabled(enabled bool) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.closed {
		return ErrTrackStopped
	}
	t.enabled = enabled
	return nil
}

func (t *LocalTrack) Enabled() bool {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.enabled
}

// WriteSample はサンプルを送出します。無効化中は何もせずnilを返します。
func (t *LocalTrack) WriteSample(sample media.Sample) error {
	t.mu.RLock()
	enabled, stopped := t.enabled, t.stopped
	t.mu.RUnlock()

	if stopped {
		return ErrTrackStopped
	}
	if !enabled {
		return nil
	}

	return t.track.WriteSample(sample)
}

// Stop はサンプルの受け付けを止めます。
func (t *LocalTrack) Stop() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.stopped = true
}

func (t *LocalTrack) Close() error {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.stopped = true
	t.closed = true
	t.onEnded = nil
	return nil
}

// OnEnded はキャプチャが外部から終了されたときに呼ばれる関数を登録します。nilで解除します。
func (t *LocalTrack) OnEnded(f func()) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.onEnded = f
}

// End はキャプチャ元 (OSの「共有を停止」など) がトラックを終了させたことを通知します。
func (t *LocalTrack) End() {
	t.mu.Lock()
	if t.stopped {
		t.mu.Unlock()
		return
	}
	t.stopped = true
	f := t.onEnded
	t.mu.Unlock()

	if f != nil {
		f()
	}
}
