package rtc

import (
	"testing"
	"time"

	"github.com/pelletier/go-toml/v2"
	"github.com/pion/webrtc/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()

	assert.Equal(t, "vp8", cfg.VideoCodec)
	assert.Equal(t, 200*time.Millisecond, cfg.volumeInterval())
	assert.Equal(t, 10*time.Second, cfg.handshakeTimeout())
	assert.Equal(t, uint8(127), cfg.AudioLevelThreshold)
	require.Len(t, cfg.ICEServers, 1)
}

func TestConfig_Durations(t *testing.T) {
	t.Run("0以下は既定値", func(t *testing.T) {
		cfg := Config{VolumeInterval: -1}

		assert.Equal(t, 200*time.Millisecond, cfg.volumeInterval())
		assert.Equal(t, 10*time.Second, cfg.handshakeTimeout())
	})

	t.Run("ミリ秒で指定する", func(t *testing.T) {
		cfg := Config{VolumeInterval: 500, HandshakeTimeout: 3000}

		assert.Equal(t, 500*time.Millisecond, cfg.volumeInterval())
		assert.Equal(t, 3*time.Second, cfg.handshakeTimeout())
	})
}

func TestConfig_Configuration(t *testing.T) {
	cfg := Config{
		ICEServers: []ICEServerConfig{
			{URLs: []string{"stun:stun.example.com:3478"}},
			{URLs: []string{"turn:turn.example.com:3478"}, Username: "user", Credential: "pass"},
		},
	}

	c := cfg.configuration()

	assert.Equal(t, webrtc.SDPSemanticsUnifiedPlan, c.SDPSemantics)
	require.Len(t, c.ICEServers, 2)
	assert.Equal(t, []string{"turn:turn.example.com:3478"}, c.ICEServers[1].URLs)
	assert.Equal(t, "user", c.ICEServers[1].Username)
	assert.Equal(t, "pass", c.ICEServers[1].Credential)
}

func TestConfig_TOML(t *testing.T) {
	src := `
signalurl = "wss://sfu.example.com/ws"
mdns = true
videocodec = "h264"
volumeinterval = 300
audiolevelthreshold = 60
sdpdumpdir = "/tmp/sdp"

[[iceserver]]
urls = ["stun:stun.example.com:3478"]

[timeouts]
disconnected = 5
failed = 25
keepalive = 2
`

	cfg := DefaultConfig()
	require.NoError(t, toml.Unmarshal([]byte(src), &cfg))

	assert.Equal(t, "wss://sfu.example.com/ws", cfg.SignalURL)
	assert.True(t, cfg.MDNS)
	assert.Equal(t, "h264", cfg.VideoCodec)
	assert.Equal(t, 300*time.Millisecond, cfg.volumeInterval())
	assert.Equal(t, uint8(60), cfg.AudioLevelThreshold)
	assert.Equal(t, "/tmp/sdp", cfg.SDPDumpDir)
	assert.Equal(t, 25, cfg.Timeouts.ICEFailedTimeout)
	require.Len(t, cfg.ICEServers, 1)

	_, err := NewEngine(cfg, MediaSources{})
	assert.NoError(t, err)
}
