package meeting

import (
	"sync"

	"github.com/bep/debounce"
)

// JoinState は参加処理の状態機械です。
// idle -> connecting -> ready、または connecting -> error と遷移します。
type JoinState int

const (
	JoinStateIdle JoinState = iota
	JoinStateConnecting
	JoinStateReady
	JoinStateError
)

func (s JoinState) String() string {
	switch s {
	case JoinStateConnecting:
		return "connecting"
	case JoinStateReady:
		return "ready"
	case JoinStateError:
		return "error"
	default:
		return "idle"
	}
}

// State は進行中の通話1つ分のセッション状態です。
type State struct {
	MeetingID    string
	MeetingTitle string

	JoinState JoinState
	Joined    bool
	LastError error

	IsViewOnly bool
	LocalUID   string

	VideoEnabled    bool
	AudioEnabled    bool
	IsScreenSharing bool

	ActiveScreenShareUID string
	ActiveSpeaker        string
	MainVideo            MainVideo

	ParticipantCount int
	Participants     Registry
}

// initialState はプロセス起動時および退出後の状態を返します。
func initialState(cfg Config) State {
	return State{
		JoinState:    JoinStateIdle,
		VideoEnabled: cfg.StartWithVideo,
		AudioEnabled: cfg.StartWithAudio,
		MainVideo:    NoMainVideo(),
		Participants: NewRegistry(),
	}
}

// selectMainVideo は状態からメインビデオを導出します。
func (s State) selectMainVideo() MainVideo {
	return SelectMainVideo(s.LocalUID, s.IsScreenSharing, s.ActiveScreenShareUID, s.ActiveSpeaker, s.IsViewOnly)
}

// Session はMeetingSessionの唯一の保持者です。
// 全ての更新はcommitを通り、最後にメインビデオが再計算されます。
type Session struct {
	mu    sync.RWMutex
	cfg   Config
	state State

	onChange  func(State)
	debounced func(func())
}

func NewSession(cfg Config) *Session {
	cfg = cfg.normalize()
	s := &Session{
		cfg:   cfg,
		state: initialState(cfg),
	}
	if cfg.ChangeDebounce > 0 {
		s.debounced = debounce.New(cfg.changeDebounce())
	}
	return s
}

// Snapshot は現在の状態のコピーを返します。
func (s *Session) Snapshot() State {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.state
}

// OnChange は状態が変化したときに呼ばれる関数を登録します。
// ChangeDebounceが設定されている場合、連続した変更はまとめて通知されます。
func (s *Session) OnChange(f func(State)) {
	s.mu.Lock()
	s.onChange = f
	s.mu.Unlock()
}

// SetParticipantCount は外部から与えられる参加者数を設定します。
func (s *Session) SetParticipantCount(n int) {
	s.commit(func(st *State) {
		st.ParticipantCount = n
	})
}

// commit は f で状態を更新し、メインビデオを再計算します。
func (s *Session) commit(f func(st *State)) State {
	s.mu.Lock()
	next := s.state
	f(&next)
	next.MainVideo = next.selectMainVideo()
	s.state = next
	onChange := s.onChange
	s.mu.Unlock()

	s.notify(onChange)
	return next
}

// apply はイベントをreducerに通して状態を更新します。
func (s *Session) apply(ev Event) State {
	next, notify := s.applyDeferred(ev)
	notify()
	return next
}

// applyDeferred は状態を更新し、変更通知を呼び出し側のタイミングに委ねます。
func (s *Session) applyDeferred(ev Event) (State, func()) {
	s.mu.Lock()
	next := reduce(s.state, ev, s.cfg)
	s.state = next
	onChange := s.onChange
	s.mu.Unlock()

	return next, func() { s.notify(onChange) }
}

// reset は状態を初期状態に戻します。
func (s *Session) reset() {
	s.commit(func(st *State) {
		*st = initialState(s.cfg)
	})
}

func (s *Session) notify(onChange func(State)) {
	if onChange == nil {
		return
	}

	if s.debounced == nil {
		onChange(s.Snapshot())
		return
	}

	s.debounced(func() {
		s.mu.RLock()
		f := s.onChange
		s.mu.RUnlock()
		if f != nil {
			f(s.Snapshot())
		}
	})
}
