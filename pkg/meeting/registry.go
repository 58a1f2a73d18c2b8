package meeting

import (
	"slices"
	"strings"

	"github.com/samber/lo"
)

// ParticipantMediaState はリモート参加者1人分のメディアとメタデータです。
type ParticipantMediaState struct {
	UID       string
	Name      string
	Role      string
	IsTeacher bool

	CameraTrack RemoteTrack
	ScreenTrack RemoteTrack
	AudioTrack  RemoteTrack

	IsScreenSharing bool
	HasVideo        bool
	HasAudio        bool
}

// DisplayName は名簿に名前が無い参加者にも表示名を返します。
func (p ParticipantMediaState) DisplayName() string {
	if p.Name != "" {
		return p.Name
	}
	return "User " + p.UID
}

func (p *ParticipantMediaState) refresh() {
	p.IsScreenSharing = p.ScreenTrack != nil
	p.HasVideo = p.CameraTrack != nil || p.ScreenTrack != nil
	p.HasAudio = p.AudioTrack != nil
}

// VideoSlot はビデオトラックの格納先です。
type VideoSlot int

const (
	VideoSlotNone VideoSlot = iota
	VideoSlotCamera
	VideoSlotScreen
)

// Registry はリモート参加者の状態をUIDで保持します。
// 更新系メソッドは元の値を変更せず新しいRegistryを返すため、
// スナップショットとして共有しても安全です。
type Registry struct {
	entries map[string]ParticipantMediaState
}

func NewRegistry() Registry {
	return Registry{entries: make(map[string]ParticipantMediaState)}
}

func (r Registry) Get(uid string) (ParticipantMediaState, bool) {
	p, ok := r.entries[uid]
	return p, ok
}

func (r Registry) Len() int {
	return len(r.entries)
}

// UIDs は参加者のUIDを昇順で返します。
func (r Registry) UIDs() []string {
	uids := lo.Keys(r.entries)
	slices.Sort(uids)
	return uids
}

// All は参加者をUID昇順で返します。
func (r Registry) All() []ParticipantMediaState {
	return lo.Map(r.UIDs(), func(uid string, _ int) ParticipantMediaState {
		return r.entries[uid]
	})
}

func (r Registry) clone() Registry {
	entries := make(map[string]ParticipantMediaState, len(r.entries)+1)
	for k, v := range r.entries {
		entries[k] = v
	}
	return Registry{entries: entries}
}

// upsert は既存のエントリを保ったまま f で更新します。未登録なら作成します。
func (r Registry) upsert(uid string, f func(p *ParticipantMediaState)) Registry {
	next := r.clone()
	p, ok := next.entries[uid]
	if !ok {
		p = ParticipantMediaState{UID: uid}
	}
	f(&p)
	p.refresh()
	next.entries[uid] = p
	return next
}

// seed は名簿のメタデータを反映します。トラックには触れません。
func (r Registry) seed(roster []RosterEntry, localUID string) Registry {
	next := r
	for _, entry := range roster {
		if entry.UID == "" || entry.UID == localUID {
			continue
		}
		next = next.upsert(entry.UID, func(p *ParticipantMediaState) {
			p.Name = entry.Name
			p.Role = entry.Role
			p.IsTeacher = entry.IsTeacher
		})
	}
	return next
}

func (r Registry) publishVideo(uid string, track RemoteTrack) (Registry, VideoSlot) {
	slot := VideoSlotCamera
	if IsScreenTrack(track) {
		slot = VideoSlotScreen
	}

	next := r.upsert(uid, func(p *ParticipantMediaState) {
		if slot == VideoSlotScreen {
			p.ScreenTrack = track
		} else {
			p.CameraTrack = track
		}
	})
	return next, slot
}

// unpublishVideo はどちらのビデオトラックが終了したかを判別して該当スロットだけを空にします。
// currentTrackID はイベント時点でエンジンが報告したトラックIDで、空文字なら報告なしです。
func (r Registry) unpublishVideo(uid, currentTrackID string) (Registry, VideoSlot) {
	p, ok := r.entries[uid]
	if !ok {
		return r, VideoSlotNone
	}

	slot := disambiguateVideo(p, currentTrackID)
	if slot == VideoSlotNone {
		return r, VideoSlotNone
	}

	next := r.upsert(uid, func(p *ParticipantMediaState) {
		if slot == VideoSlotScreen {
			p.ScreenTrack = nil
		} else {
			p.CameraTrack = nil
		}
	})
	return next, slot
}

func disambiguateVideo(p ParticipantMediaState, currentTrackID string) VideoSlot {
	if currentTrackID != "" {
		if p.ScreenTrack != nil && p.ScreenTrack.TrackID() == currentTrackID {
			return VideoSlotScreen
		}
		if p.CameraTrack != nil && p.CameraTrack.TrackID() == currentTrackID {
			return VideoSlotCamera
		}
	}

	switch {
	case p.ScreenTrack != nil:
		return VideoSlotScreen
	case p.CameraTrack != nil:
		return VideoSlotCamera
	default:
		return VideoSlotNone
	}
}

func (r Registry) publishAudio(uid string, track RemoteTrack) Registry {
	return r.upsert(uid, func(p *ParticipantMediaState) {
		p.AudioTrack = track
	})
}

func (r Registry) unpublishAudio(uid string) Registry {
	if _, ok := r.entries[uid]; !ok {
		return r
	}
	return r.upsert(uid, func(p *ParticipantMediaState) {
		p.AudioTrack = nil
	})
}

func (r Registry) remove(uid string) Registry {
	if _, ok := r.entries[uid]; !ok {
		return r
	}
	next := r.clone()
	delete(next.entries, uid)
	return next
}

var screenLabelMarkers = []string{"screen", "display", "window", "monitor"}

// IsScreenTrack はトラックが画面共有かどうかを判定します。
// 明示的なソース、contentHint、ラベルの順に調べ、最初に判定できたものを採用します。
func IsScreenTrack(track RemoteTrack) bool {
	if track == nil {
		return false
	}

	switch track.Source() {
	case TrackSourceScreen:
		return true
	case TrackSourceCamera:
		return false
	}

	switch track.ContentHint() {
	case "detail", "text":
		return true
	case "motion":
		return false
	}

	label := strings.ToLower(track.Label())
	return lo.SomeBy(screenLabelMarkers, func(marker string) bool {
		return strings.Contains(label, marker)
	})
}

// loudestSpeaker は閾値を超える最大音量の参加者を返します。
func loudestSpeaker(levels []VolumeLevel, threshold int) (string, bool) {
	audible := lo.Filter(levels, func(l VolumeLevel, _ int) bool {
		return l.Level > threshold && l.UID != ""
	})
	if len(audible) == 0 {
		return "", false
	}

	loudest := lo.MaxBy(audible, func(a, b VolumeLevel) bool {
		return a.Level > b.Level
	})
	return loudest.UID, true
}
