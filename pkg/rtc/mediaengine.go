package rtc

import (
	"errors"
	"fmt"

	"github.com/HMasataka/meeting/pkg/meeting"
	"github.com/pion/interceptor"
	"github.com/pion/sdp/v3"
	"github.com/pion/webrtc/v4"
)

var (
	// ErrUnsupportedCodec the requested video codec is not registered
	ErrUnsupportedCodec = errors.New("unsupported video codec")
	// ErrUnsupportedMode only the rtc client mode is implemented
	ErrUnsupportedMode = errors.New("unsupported client mode")
)

type videoCodec string

const (
	codecVP8  videoCodec = "vp8"
	codecH264 videoCodec = "h264"
)

func parseVideoCodec(s string) (videoCodec, error) {
	switch videoCodec(s) {
	case "", codecVP8:
		return codecVP8, nil
	case codecH264:
		return codecH264, nil
	default:
		return "", fmt.Errorf("%w: %q", ErrUnsupportedCodec, s)
	}
}

func (c videoCodec) toMeeting() meeting.Codec {
	if c == codecH264 {
		return meeting.CodecH264
	}
	return meeting.CodecVP8
}

func (c videoCodec) capability() webrtc.RTPCodecCapability {
	videoRTCPFeedback := []webrtc.RTCPFeedback{
		{Type: webrtc.TypeRTCPFBGoogREMB},
		{Type: webrtc.TypeRTCPFBCCM, Parameter: "fir"},
		{Type: webrtc.TypeRTCPFBNACK},
		{Type: webrtc.TypeRTCPFBNACK, Parameter: "pli"},
	}

	if c == codecH264 {
		return webrtc.RTPCodecCapability{
			MimeType:     webrtc.MimeTypeH264,
			ClockRate:    90000,
			SDPFmtpLine:  "level-asymmetry-allowed=1;packetization-mode=1;profile-level-id=42e01f",
			RTCPFeedback: videoRTCPFeedback,
		}
	}

	return webrtc.RTPCodecCapability{
		MimeType:     webrtc.MimeTypeVP8,
		ClockRate:    90000,
		RTCPFeedback: videoRTCPFeedback,
	}
}

func opusCapability() webrtc.RTPCodecCapability {
	return webrtc.RTPCodecCapability{
		MimeType:    webrtc.MimeTypeOpus,
		ClockRate:   48000,
		Channels:    2,
		SDPFmtpLine: "minptime=10;useinbandfec=1",
	}
}

// newMediaEngine はOpusと映像コーデック、音量ヘッダー拡張を登録したMediaEngineを作成します。
func newMediaEngine() (*webrtc.MediaEngine, *interceptor.Registry, error) {
	m := &webrtc.MediaEngine{}

	if err := m.RegisterCodec(webrtc.RTPCodecParameters{
		RTPCodecCapability: opusCapability(),
		PayloadType:        111,
	}, webrtc.RTPCodecTypeAudio); err != nil {
		return nil, nil, fmt.Errorf("failed to register Opus codec: %w", err)
	}

	for _, codec := range []struct {
		capability  webrtc.RTPCodecCapability
		payloadType webrtc.PayloadType
	}{
		{codecVP8.capability(), 96},
		{codecH264.capability(), 125},
	} {
		if err := m.RegisterCodec(webrtc.RTPCodecParameters{
			RTPCodecCapability: codec.capability,
			PayloadType:        codec.payloadType,
		}, webrtc.RTPCodecTypeVideo); err != nil {
			return nil, nil, fmt.Errorf("failed to register %s codec: %w", codec.capability.MimeType, err)
		}
	}

	if err := m.RegisterHeaderExtension(webrtc.RTPHeaderExtensionCapability{URI: sdp.AudioLevelURI}, webrtc.RTPCodecTypeAudio); err != nil {
		return nil, nil, fmt.Errorf("failed to register audio level extension: %w", err)
	}

	registry := &interceptor.Registry{}
	if err := webrtc.RegisterDefaultInterceptors(m, registry); err != nil {
		return nil, nil, fmt.Errorf("failed to register interceptors: %w", err)
	}

	return m, registry, nil
}
