package meeting

import "time"

const (
	defaultJoinTimeout      = 15000
	defaultSubscribeTimeout = 10000
	defaultChangeDebounce   = 50
	defaultVolumeThreshold  = 10
)

// Config はセッションコアの設定です。時間はミリ秒で指定します。
type Config struct {
	JoinTimeout      int                `toml:"jointimeout"`
	SubscribeTimeout int                `toml:"subscribetimeout"`
	ChangeDebounce   int                `toml:"changedebounce"`
	VolumeThreshold  int                `toml:"volumethreshold"`
	StartWithVideo   bool               `toml:"startwithvideo"`
	StartWithAudio   bool               `toml:"startwithaudio"`
	Screen           ScreenTrackOptions `toml:"screen"`
}

func DefaultConfig() Config {
	return Config{
		JoinTimeout:      defaultJoinTimeout,
		SubscribeTimeout: defaultSubscribeTimeout,
		ChangeDebounce:   defaultChangeDebounce,
		VolumeThreshold:  defaultVolumeThreshold,
		StartWithVideo:   true,
		StartWithAudio:   true,
		Screen: ScreenTrackOptions{
			Width:     1920,
			Height:    1080,
			FrameRate: 15,
		},
	}
}

// normalize は未設定の値を既定値で埋めます。ChangeDebounceの負値は同期通知を意味します。
func (c Config) normalize() Config {
	if c.JoinTimeout <= 0 {
		c.JoinTimeout = defaultJoinTimeout
	}
	if c.SubscribeTimeout <= 0 {
		c.SubscribeTimeout = defaultSubscribeTimeout
	}
	if c.ChangeDebounce < 0 {
		c.ChangeDebounce = 0
	}
	if c.VolumeThreshold < 0 {
		c.VolumeThreshold = 0
	}
	return c
}

func (c Config) joinTimeout() time.Duration {
	return time.Duration(c.JoinTimeout) * time.Millisecond
}

func (c Config) subscribeTimeout() time.Duration {
	return time.Duration(c.SubscribeTimeout) * time.Millisecond
}

func (c Config) changeDebounce() time.Duration {
	return time.Duration(c.ChangeDebounce) * time.Millisecond
}
