package meeting

// MainVideoKind はメインビデオとして選ばれた映像の種類です。
type MainVideoKind int

const (
	MainVideoNone MainVideoKind = iota
	MainVideoLocal
	MainVideoLocalScreen
	MainVideoRemote
)

func (k MainVideoKind) String() string {
	switch k {
	case MainVideoLocal:
		return "local"
	case MainVideoLocalScreen:
		return "local-screen"
	case MainVideoRemote:
		return "remote"
	default:
		return "none"
	}
}

// MainVideo は画面上で主として表示する単一の映像です。
// KindがMainVideoRemoteのときだけUIDが意味を持ちます。
type MainVideo struct {
	Kind MainVideoKind
	UID  string
}

func NoMainVideo() MainVideo { return MainVideo{Kind: MainVideoNone} }

func LocalCamera() MainVideo { return MainVideo{Kind: MainVideoLocal} }

func LocalScreen() MainVideo { return MainVideo{Kind: MainVideoLocalScreen} }

func RemoteVideo(uid string) MainVideo { return MainVideo{Kind: MainVideoRemote, UID: uid} }

func (m MainVideo) String() string {
	if m.Kind == MainVideoRemote {
		return m.UID
	}
	return m.Kind.String()
}

// SelectMainVideo はセッション状態からメインビデオを決定します。
// 優先順位: ローカル画面共有 > リモート画面共有 > (視聴専用なら)話者 > ローカル以外の話者 > ローカルカメラ
func SelectMainVideo(localUID string, isLocalScreenSharing bool, activeScreenShareUID, activeSpeaker string, isViewOnly bool) MainVideo {
	if isLocalScreenSharing {
		return LocalScreen()
	}

	if activeScreenShareUID != "" {
		return RemoteVideo(activeScreenShareUID)
	}

	if isViewOnly || localUID == "" {
		if activeSpeaker == "" {
			return NoMainVideo()
		}
		return RemoteVideo(activeSpeaker)
	}

	if activeSpeaker != "" && activeSpeaker != localUID {
		return RemoteVideo(activeSpeaker)
	}

	return LocalCamera()
}
