package meeting

import "context"

// MediaKind は購読・公開するメディアの種類です。
type MediaKind string

const (
	MediaKindAudio MediaKind = "audio"
	MediaKindVideo MediaKind = "video"
)

// TrackSource はエンジンが明示的に示すビデオトラックの発生源です。
type TrackSource int

const (
	TrackSourceUnknown TrackSource = iota
	TrackSourceCamera
	TrackSourceScreen
)

// ConnectionState はトランスポート接続の状態です。
type ConnectionState string

const (
	ConnectionStateConnecting    ConnectionState = "connecting"
	ConnectionStateConnected     ConnectionState = "connected"
	ConnectionStateReconnecting  ConnectionState = "reconnecting"
	ConnectionStateDisconnecting ConnectionState = "disconnecting"
	ConnectionStateDisconnected  ConnectionState = "disconnected"
)

type ClientMode string

const (
	ModeRTC  ClientMode = "rtc"
	ModeLive ClientMode = "live"
)

type Codec string

const (
	CodecVP8  Codec = "vp8"
	CodecH264 Codec = "h264"
)

type ClientConfig struct {
	Mode  ClientMode
	Codec Codec
}

// VolumeLevel は音量インジケータが報告する参加者ごとの音量 (0-100) です。
type VolumeLevel struct {
	UID   string
	Level int
}

// ScreenTrackOptions は画面共有トラックの作成オプションです。
type ScreenTrackOptions struct {
	Width     int  `toml:"width"`
	Height    int  `toml:"height"`
	FrameRate int  `toml:"framerate"`
	WithAudio bool `toml:"with_audio"`
}

// Engine はリアルタイム通信エンジンの能力セットです。
// セッションコアはこのインターフェースだけを通してメディアを扱います。
type Engine interface {
	CreateClient(cfg ClientConfig) (Client, error)
	CreateMicrophoneAudioTrack(ctx context.Context) (LocalTrack, error)
	CreateCameraVideoTrack(ctx context.Context) (LocalTrack, error)
	CreateScreenVideoTrack(ctx context.Context, opts ScreenTrackOptions) (ScreenTrack, error)
}

// Client はチャネルへの参加とトラックの公開・購読を行うクライアントです。
// イベントハンドラはJoinの前に登録されなければなりません。
type Client interface {
	Join(ctx context.Context, appID, channel, token, uid string) error
	Leave(ctx context.Context) error
	Publish(ctx context.Context, tracks ...LocalTrack) error
	Unpublish(ctx context.Context, tracks ...LocalTrack) error
	Subscribe(ctx context.Context, user RemoteUser, kind MediaKind) error
	EnableAudioVolumeIndicator()
	// SetEventHandler はイベントハンドラを登録します。nilで全て解除します。
	SetEventHandler(h EventHandler)
}

// EventHandler はクライアントが発火するイベントを受け取ります。
type EventHandler interface {
	OnUserPublished(user RemoteUser, kind MediaKind)
	OnUserUnpublished(user RemoteUser, kind MediaKind)
	OnUserLeft(user RemoteUser, reason string)
	OnVolumeIndicator(levels []VolumeLevel)
	OnConnectionStateChange(cur, prev ConnectionState, reason string)
	OnTokenPrivilegeWillExpire()
	OnTokenPrivilegeDidExpire()
}

// LocalTrack はローカル参加者が所有するトラックです。
type LocalTrack interface {
	TrackID() string
	Kind() MediaKind
	SetEnabled(enabled bool) error
	Stop()
	Close() error
}

// ScreenTrack はOSの「共有を停止」操作で終了しうる画面共有トラックです。
type ScreenTrack interface {
	LocalTrack
	OnEnded(f func())
}

// RemoteUser はリモート参加者のエンジン側ハンドルです。
type RemoteUser interface {
	UID() string
	// VideoTrack は現在エンジンが公開しているビデオトラックを返します。無ければnil。
	VideoTrack() RemoteTrack
	AudioTrack() RemoteTrack
}

// RemoteTrack はリモート参加者のトラックです。
type RemoteTrack interface {
	TrackID() string
	Kind() MediaKind
	Source() TrackSource
	// ContentHint はブラウザのcontentHint相当の値 ("motion", "detail", "text") です。
	ContentHint() string
	Label() string
	Play() error
	Stop()
}
