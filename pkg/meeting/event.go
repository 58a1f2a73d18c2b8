package meeting

// Event はセッション状態に適用されるトランスポートイベントです。
type Event interface {
	eventName() string
}

type RosterLoaded struct {
	Roster []RosterEntry
}

type VideoPublished struct {
	UID   string
	Track RemoteTrack
}

// VideoUnpublished はどのビデオトラックが止まったかを含みません。
// CurrentTrackIDはイベント時点でエンジンが報告していたトラックIDです。
type VideoUnpublished struct {
	UID            string
	CurrentTrackID string
}

type AudioPublished struct {
	UID   string
	Track RemoteTrack
}

type AudioUnpublished struct {
	UID string
}

type ParticipantLeft struct {
	UID    string
	Reason string
}

type VolumeTick struct {
	Levels []VolumeLevel
}

type ConnectionStateChanged struct {
	Current  ConnectionState
	Previous ConnectionState
	Reason   string
}

type TokenWillExpire struct{}

type TokenDidExpire struct{}

func (RosterLoaded) eventName() string           { return "roster-loaded" }
func (VideoPublished) eventName() string         { return "video-published" }
func (VideoUnpublished) eventName() string       { return "video-unpublished" }
func (AudioPublished) eventName() string         { return "audio-published" }
func (AudioUnpublished) eventName() string       { return "audio-unpublished" }
func (ParticipantLeft) eventName() string        { return "participant-left" }
func (VolumeTick) eventName() string             { return "volume-indicator" }
func (ConnectionStateChanged) eventName() string { return "connection-state-change" }
func (TokenWillExpire) eventName() string        { return "token-privilege-will-expire" }
func (TokenDidExpire) eventName() string         { return "token-privilege-did-expire" }

// reduce はイベントを1つ適用した新しい状態を返します。
// 入力のstateは変更しません。MainVideoは常に最後に再計算されます。
func reduce(state State, ev Event, cfg Config) State {
	next := state

	switch e := ev.(type) {
	case RosterLoaded:
		next.Participants = state.Participants.seed(e.Roster, state.LocalUID)

	case VideoPublished:
		if e.UID == "" || e.Track == nil {
			return state
		}
		var slot VideoSlot
		next.Participants, slot = state.Participants.publishVideo(e.UID, e.Track)
		if slot == VideoSlotScreen {
			next.ActiveScreenShareUID = e.UID
		}

	case VideoUnpublished:
		var slot VideoSlot
		next.Participants, slot = state.Participants.unpublishVideo(e.UID, e.CurrentTrackID)
		if slot == VideoSlotScreen && state.ActiveScreenShareUID == e.UID {
			next.ActiveScreenShareUID = ""
		}

	case AudioPublished:
		if e.UID == "" || e.Track == nil {
			return state
		}
		next.Participants = state.Participants.publishAudio(e.UID, e.Track)

	case AudioUnpublished:
		next.Participants = state.Participants.unpublishAudio(e.UID)

	case ParticipantLeft:
		next.Participants = state.Participants.remove(e.UID)
		if state.ActiveScreenShareUID == e.UID {
			next.ActiveScreenShareUID = ""
		}
		if state.ActiveSpeaker == e.UID {
			next.ActiveSpeaker = ""
		}

	case VolumeTick:
		if uid, ok := loudestSpeaker(e.Levels, cfg.VolumeThreshold); ok {
			next.ActiveSpeaker = uid
		}

	default:
		// 接続状態やトークンのイベントは状態を変えない
		return state
	}

	next.MainVideo = next.selectMainVideo()
	return next
}
