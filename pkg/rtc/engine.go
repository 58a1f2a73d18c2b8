package rtc

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"

	"github.com/HMasataka/meeting/pkg/meeting"
	"github.com/pion/webrtc/v4"
)

// ErrDeviceNotFound the capture device is absent or access was denied
var ErrDeviceNotFound = errors.New("capture device not found")

const localStreamID = "local"

// MediaSources はこのプロセスで利用できるキャプチャ元です。
type MediaSources struct {
	Camera     bool
	Microphone bool
	Screen     bool
}

// Engine はpion/webrtcによる meeting.Engine の実装です。
type Engine struct {
	cfg     Config
	sources MediaSources
	codec   videoCodec
	api     *webrtc.API
	seq     atomic.Uint64
}

var _ meeting.Engine = (*Engine)(nil)

func NewEngine(cfg Config, sources MediaSources) (*Engine, error) {
	codec, err := parseVideoCodec(cfg.VideoCodec)
	if err != nil {
		return nil, err
	}

	m, registry, err := newMediaEngine()
	if err != nil {
		return nil, err
	}

	api := webrtc.NewAPI(
		webrtc.WithMediaEngine(m),
		webrtc.WithInterceptorRegistry(registry),
		webrtc.WithSettingEngine(cfg.settingEngine()),
	)

	return &Engine{
		cfg:     cfg,
		sources: sources,
		codec:   codec,
		api:     api,
	}, nil
}

func (e *Engine) CreateClient(cc meeting.ClientConfig) (meeting.Client, error) {
	if cc.Mode != "" && cc.Mode != meeting.ModeRTC {
		return nil, fmt.Errorf("%w: %s", ErrUnsupportedMode, cc.Mode)
	}
	if cc.Codec != "" && cc.Codec != e.codec.toMeeting() {
		return nil, fmt.Errorf("%w: client wants %s, engine sends %s", ErrUnsupportedCodec, cc.Codec, e.codec)
	}

	return newClient(e), nil
}

func (e *Engine) nextID(prefix string) string {
	return fmt.Sprintf("%s-%d", prefix, e.seq.Add(1))
}

func (e *Engine) CreateMicrophoneAudioTrack(ctx context.Context) (meeting.LocalTrack, error) {
	if !e.sources.Microphone {
		return nil, fmt.Errorf("%w: microphone", ErrDeviceNotFound)
	}

	track, err := newLocalTrack(opusCapability(), e.nextID("microphone"), localStreamID, meeting.MediaKindAudio, TrackSourceMicrophone)
	if err != nil {
		return nil, err
	}
	return track, nil
}

func (e *Engine) CreateCameraVideoTrack(ctx context.Context) (meeting.LocalTrack, error) {
	if !e.sources.Camera {
		return nil, fmt.Errorf("%w: camera", ErrDeviceNotFound)
	}

	track, err := newLocalTrack(e.codec.capability(), e.nextID("camera"), localStreamID, meeting.MediaKindVideo, TrackSourceCamera)
	if err != nil {
		return nil, err
	}
	return track, nil
}

// CreateScreenVideoTrack は画面共有トラックを作成します。opts.WithAudio は現在無視されます。
func (e *Engine) CreateScreenVideoTrack(ctx context.Context, opts meeting.ScreenTrackOptions) (meeting.ScreenTrack, error) {
	if !e.sources.Screen {
		return nil, fmt.Errorf("%w: screen", ErrDeviceNotFound)
	}

	track, err := newLocalTrack(e.codec.capability(), e.nextID("screen"), localStreamID, meeting.MediaKindVideo, TrackSourceScreen)
	if err != nil {
		return nil, err
	}
	return track, nil
}
