package rtc

import (
	"errors"
	"io"
	"log/slog"
	"slices"
	"sync"

	"github.com/HMasataka/meeting/pkg/meeting"
	"github.com/pion/rtp"
	"github.com/pion/sdp/v3"
	"github.com/pion/webrtc/v4"
	"github.com/samber/lo"
)

// RemoteTrack は購読したリモート参加者のトラックです。
type RemoteTrack struct {
	id       string
	uid      string
	kind     meeting.MediaKind
	source   meeting.TrackSource
	track    *webrtc.TrackRemote
	ssrc     webrtc.SSRC
	observer *AudioObserver
	extID    uint8

	mu      sync.Mutex
	playing bool
	muted   bool
}

var _ meeting.RemoteTrack = (*RemoteTrack)(nil)

func newRemoteTrack(uid string, track *webrtc.TrackRemote, receiver *webrtc.RTPReceiver, source meeting.TrackSource, observer *AudioObserver) *RemoteTrack {
	kind := meeting.MediaKindVideo
	if track.Kind() == webrtc.RTPCodecTypeAudio {
		kind = meeting.MediaKindAudio
	}

	return &RemoteTrack{
		id:       track.ID(),
		uid:      uid,
		kind:     kind,
		source:   source,
		track:    track,
		ssrc:     track.SSRC(),
		observer: observer,
		extID:    audioLevelExtensionID(receiver),
	}
}

func audioLevelExtensionID(receiver *webrtc.RTPReceiver) uint8 {
	if receiver == nil {
		return 0
	}

	ext, ok := lo.Find(receiver.GetParameters().HeaderExtensions, func(ext webrtc.RTPHeaderExtensionParameter) bool {
		return ext.URI == sdp.AudioLevelURI
	})
	if !ok {
		return 0
	}
	return uint8(ext.ID)
}

func (t *RemoteTrack) TrackID() string { return t.id }
func (t *RemoteTrack) Kind() meeting.MediaKind { return t.kind }
func (t *RemoteTrack) Source() meeting.TrackSource { return t.source }
func (t *RemoteTrack) ContentHint() string { return "" }
func (t *RemoteTrack) Label() string { return t.id }
func (t *RemoteTrack) SSRC() webrtc.SSRC { return t.ssrc }

// Play はRTPの受信を開始します。音声トラックは音量ヘッダー拡張を音量集計に渡します。
func (t *RemoteTrack) Play() error {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.muted = false
	if t.playing {
		return nil
	}
	t.playing = true

	go t.readLoop()
	return nil
}

// Stop は受信したパケットの処理を止めます。トラック自体はSFUが取り下げるまで読み捨てます。
func (t *RemoteTrack) Stop() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.muted = true
}

func (t *RemoteTrack) isMuted() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.muted
}

func (t *RemoteTrack) readLoop() {
	for {
		pkt, _, err := t.track.ReadRTP()
		if err != nil {
			if !errors.Is(err, io.EOF) {
				slog.Debug("remote track read finished", "uid", t.uid, "track", t.id, "error", err)
			}
			return
		}

		if t.kind != meeting.MediaKindAudio || t.extID == 0 || t.observer == nil || t.isMuted() {
			continue
		}

		t.observeLevel(pkt)
	}
}

func (t *RemoteTrack) observeLevel(pkt *rtp.Packet) {
	raw := pkt.GetExtension(t.extID)
	if raw == nil {
		return
	}

	var ext rtp.AudioLevelExtension
	if err := ext.Unmarshal(raw); err != nil {
		return
	}
	t.observer.observe(t.uid, ext.Level)
}

// RemoteUser はリモート参加者の購読済みトラックを保持します。
// ビデオは複数 (カメラと画面共有) 持ちうるため、VideoTrack は直近に扱ったものを返します。
type RemoteUser struct {
	uid string

	mu       sync.RWMutex
	videos   map[string]*RemoteTrack
	current  *RemoteTrack
	audio    *RemoteTrack
	expected map[meeting.MediaKind][]string
}

var _ meeting.RemoteUser = (*RemoteUser)(nil)

func newRemoteUser(uid string) *RemoteUser {
	return &RemoteUser{
		uid:      uid,
		videos:   make(map[string]*RemoteTrack),
		expected: make(map[meeting.MediaKind][]string),
	}
}

func (u *RemoteUser) UID() string {
	return u.uid
}

func (u *RemoteUser) VideoTrack() meeting.RemoteTrack {
	u.mu.RLock()
	defer u.mu.RUnlock()

	if u.current == nil {
		return nil
	}
	return u.current
}

func (u *RemoteUser) AudioTrack() meeting.RemoteTrack {
	u.mu.RLock()
	defer u.mu.RUnlock()

	if u.audio == nil {
		return nil
	}
	return u.audio
}

// expect は公開通知で知らされたトラックIDを種別ごとに到着順で積みます。
// 公開イベントと購読は1対1で順に処理されるため、購読は先頭から取り出します。
func (u *RemoteUser) expect(kind meeting.MediaKind, trackID string) {
	u.mu.Lock()
	defer u.mu.Unlock()

	if slices.Contains(u.expected[kind], trackID) {
		return
	}
	u.expected[kind] = append(u.expected[kind], trackID)
}

// takeExpected は購読すべき次のトラックIDを取り出します。無ければ空文字です。
func (u *RemoteUser) takeExpected(kind meeting.MediaKind) string {
	u.mu.Lock()
	defer u.mu.Unlock()

	queue := u.expected[kind]
	if len(queue) == 0 {
		return ""
	}

	next := queue[0]
	if len(queue) == 1 {
		delete(u.expected, kind)
	} else {
		u.expected[kind] = queue[1:]
	}
	return next
}

func (u *RemoteUser) forgetLocked(kind meeting.MediaKind, trackID string) {
	queue := slices.DeleteFunc(u.expected[kind], func(id string) bool { return id == trackID })
	if len(queue) == 0 {
		delete(u.expected, kind)
		return
	}
	u.expected[kind] = queue
}

func (u *RemoteUser) hasTrack(trackID string) bool {
	u.mu.RLock()
	defer u.mu.RUnlock()

	if _, ok := u.videos[trackID]; ok {
		return true
	}
	return u.audio != nil && u.audio.TrackID() == trackID
}

func (u *RemoteUser) setTrack(t *RemoteTrack) {
	u.mu.Lock()
	defer u.mu.Unlock()

	if t.kind == meeting.MediaKindAudio {
		u.audio = t
		return
	}

	u.videos[t.TrackID()] = t
	if u.current == nil {
		u.current = t
	}
}

// focusVideo は指定したビデオトラックを現在のトラックにします。
func (u *RemoteUser) focusVideo(trackID string) {
	u.mu.Lock()
	defer u.mu.Unlock()

	if t, ok := u.videos[trackID]; ok {
		u.current = t
	}
}

// removeTrack はトラックを外します。購読前に取り下げられたIDは待ち行列からも消します。
func (u *RemoteUser) removeTrack(kind meeting.MediaKind, trackID string) *RemoteTrack {
	u.mu.Lock()
	defer u.mu.Unlock()

	u.forgetLocked(kind, trackID)

	if kind == meeting.MediaKindAudio {
		removed := u.audio
		u.audio = nil
		return removed
	}

	removed, ok := u.videos[trackID]
	if !ok {
		return nil
	}
	delete(u.videos, trackID)

	if u.current == removed {
		u.current = nil
		for _, t := range u.videos {
			u.current = t
			break
		}
	}
	return removed
}

func (u *RemoteUser) stopAll() {
	u.mu.Lock()
	defer u.mu.Unlock()

	for _, t := range u.videos {
		t.Stop()
	}
	if u.audio != nil {
		u.audio.Stop()
	}
}
