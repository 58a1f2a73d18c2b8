package rtc

import (
	"time"

	"github.com/pion/ice/v4"
	"github.com/pion/webrtc/v4"
)

const (
	defaultVolumeInterval      = 200
	defaultAudioLevelThreshold = 127
	defaultHandshakeTimeout    = 10000
)

type Config struct {
	SignalURL           string               `toml:"signalurl"`
	ICEServers          []ICEServerConfig    `toml:"iceserver"`
	MDNS                bool                 `toml:"mdns"`
	Timeouts            WebRTCTimeoutsConfig `toml:"timeouts"`
	VideoCodec          string               `toml:"videocodec"`
	VolumeInterval      int                  `toml:"volumeinterval"`
	AudioLevelThreshold uint8                `toml:"audiolevelthreshold"`
	HandshakeTimeout    int                  `toml:"handshaketimeout"`
	SDPDumpDir          string               `toml:"sdpdumpdir"`
}

type ICEServerConfig struct {
	URLs       []string `toml:"urls"`
	Username   string   `toml:"username"`
	Credential string   `toml:"credential"`
}

type WebRTCTimeoutsConfig struct {
	ICEDisconnectedTimeout int `toml:"disconnected"`
	ICEFailedTimeout       int `toml:"failed"`
	ICEKeepaliveInterval   int `toml:"keepalive"`
}

func DefaultConfig() Config {
	return Config{
		SignalURL: "ws://localhost:7000/ws",
		ICEServers: []ICEServerConfig{
			{URLs: []string{"stun:stun.l.google.com:19302"}},
		},
		VideoCodec:          string(codecVP8),
		VolumeInterval:      defaultVolumeInterval,
		AudioLevelThreshold: defaultAudioLevelThreshold,
		HandshakeTimeout:    defaultHandshakeTimeout,
	}
}

func (c Config) volumeInterval() time.Duration {
	if c.VolumeInterval <= 0 {
		return defaultVolumeInterval * time.Millisecond
	}
	return time.Duration(c.VolumeInterval) * time.Millisecond
}

func (c Config) handshakeTimeout() time.Duration {
	if c.HandshakeTimeout <= 0 {
		return defaultHandshakeTimeout * time.Millisecond
	}
	return time.Duration(c.HandshakeTimeout) * time.Millisecond
}

func (c Config) configuration() webrtc.Configuration {
	iceServers := make([]webrtc.ICEServer, 0, len(c.ICEServers))
	for _, s := range c.ICEServers {
		iceServers = append(iceServers, webrtc.ICEServer{
			URLs:       s.URLs,
			Username:   s.Username,
			Credential: s.Credential,
		})
	}

	return webrtc.Configuration{
		ICEServers:   iceServers,
		SDPSemantics: webrtc.SDPSemanticsUnifiedPlan,
	}
}

func (c Config) settingEngine() webrtc.SettingEngine {
	se := webrtc.SettingEngine{}

	if c.Timeouts.ICEDisconnectedTimeout != 0 ||
		c.Timeouts.ICEFailedTimeout != 0 ||
		c.Timeouts.ICEKeepaliveInterval != 0 {
		se.SetICETimeouts(
			time.Duration(c.Timeouts.ICEDisconnectedTimeout)*time.Second,
			time.Duration(c.Timeouts.ICEFailedTimeout)*time.Second,
			time.Duration(c.Timeouts.ICEKeepaliveInterval)*time.Second,
		)
	}

	if !c.MDNS {
		se.SetICEMulticastDNSMode(ice.MulticastDNSModeDisabled)
	}

	return se
}
