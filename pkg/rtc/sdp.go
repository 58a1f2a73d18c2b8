package rtc

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/pion/sdp/v3"
	"github.com/pion/webrtc/v4"
	"github.com/samber/lo"
)

var sdpDirections = []string{"sendrecv", "sendonly", "recvonly", "inactive"}

type mediaSummary struct {
	Kind      string
	MID       string
	Direction string
	Formats   []string
}

// summarizeSDP はSDPのメディアセクションを要約します。
func summarizeSDP(sd webrtc.SessionDescription) ([]mediaSummary, error) {
	parsed, err := sd.Unmarshal()
	if err != nil {
		return nil, err
	}

	return lo.Map(parsed.MediaDescriptions, func(md *sdp.MediaDescription, _ int) mediaSummary {
		mid, _ := md.Attribute(sdp.AttrKeyMID)
		direction, _ := lo.Find(sdpDirections, func(d string) bool {
			_, ok := md.Attribute(d)
			return ok
		})

		return mediaSummary{
			Kind:      md.MediaName.Media,
			MID:       mid,
			Direction: direction,
			Formats:   md.MediaName.Formats,
		}
	}), nil
}

// logSDP はネゴシエーションしたSDPの要約をデバッグログに出力し、
// dumpDir が設定されていればSDP全体をファイルに保存します。
func logSDP(label string, sd webrtc.SessionDescription, dumpDir string) {
	medias, err := summarizeSDP(sd)
	if err != nil {
		slog.Debug("failed to parse sdp", "label", label, "error", err)
	}

	for _, m := range medias {
		slog.Debug("sdp media",
			slog.String("label", label),
			slog.String("type", sd.Type.String()),
			slog.String("kind", m.Kind),
			slog.String("mid", m.MID),
			slog.String("direction", m.Direction),
			slog.Any("formats", m.Formats))
	}

	if dumpDir == "" {
		return
	}

	if err := os.MkdirAll(dumpDir, 0o755); err != nil {
		slog.Error("failed to create sdp dump dir", "error", err, "dir", dumpDir)
		return
	}

	sanitized := strings.Map(func(r rune) rune {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9':
			return r
		case r == '-' || r == '_' || r == '.':
			return r
		default:
			return '-'
		}
	}, label)

	ts := time.Now().Format("20060102-150405.000")
	path := filepath.Join(dumpDir, fmt.Sprintf("%s_%s_%s.sdp", ts, sanitized, strings.ToLower(sd.Type.String())))

	if err := os.WriteFile(path, []byte(sd.SDP), 0o644); err != nil {
		slog.Error("failed to write sdp dump", "error", err, "path", path)
		return
	}

	slog.Info("SDP dump saved", slog.String("path", path), slog.String("label", label))
}
