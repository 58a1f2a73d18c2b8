package meeting

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/gammazero/deque"
)

// DispatchHooks はディスパッチャが状態遷移以外の副作用を委ねる先です。
type DispatchHooks struct {
	// OnError はエラーを呼び出し元へ通知します。
	OnError func(error)
	// OnTokenExpired はトークン失効時にトランスポートから退出させます。
	OnTokenExpired func()
}

type queuedEvent struct {
	generation uint64
	client     Client
	event      Event
	barrier    chan struct{}
}

// remotePublished は購読前の公開通知です。購読が済むまで状態には反映しません。
type remotePublished struct {
	user RemoteUser
	kind MediaKind
}

func (remotePublished) eventName() string { return "user-published" }

// Dispatcher はトランスポートのイベントをキューに積み、
// 単一のゴルーチンで到着順に1つずつセッションへ適用します。
// Participantsを書き換えるのはこのループだけです。
type Dispatcher struct {
	session *Session
	cfg     Config

	mu         sync.Mutex
	cond       *sync.Cond
	queue      deque.Deque[queuedEvent]
	client     Client
	hooks      DispatchHooks
	generation uint64
	closed     bool
	done       chan struct{}
}

func NewDispatcher(session *Session, cfg Config) *Dispatcher {
	d := &Dispatcher{
		session: session,
		cfg:     cfg.normalize(),
		done:    make(chan struct{}),
	}
	d.cond = sync.NewCond(&d.mu)

	go d.run()

	return d
}

// Bind はクライアントにイベントハンドラを登録します。Joinより前に呼ぶ必要があります。
func (d *Dispatcher) Bind(client Client, hooks DispatchHooks) {
	d.mu.Lock()
	d.generation++
	d.client = client
	d.hooks = hooks
	gen := d.generation
	d.mu.Unlock()

	client.SetEventHandler(&boundHandler{dispatcher: d, generation: gen, client: client})
}

// Unbind はハンドラを解除し、未処理のイベントを破棄します。
func (d *Dispatcher) Unbind() {
	d.mu.Lock()
	client := d.client
	d.generation++
	d.client = nil
	d.hooks = DispatchHooks{}
	d.dropPendingLocked()
	d.mu.Unlock()

	if client != nil {
		client.SetEventHandler(nil)
	}
}

// Seed は名簿をレジストリに反映します。
func (d *Dispatcher) Seed(roster []RosterEntry) {
	d.mu.Lock()
	gen := d.generation
	d.mu.Unlock()

	d.enqueue(queuedEvent{generation: gen, event: RosterLoaded{Roster: roster}})
}

// Flush はこれまでに積まれたイベントが全て処理されるまで待ちます。
func (d *Dispatcher) Flush(ctx context.Context) error {
	barrier := make(chan struct{})
	if !d.enqueue(queuedEvent{barrier: barrier}) {
		return nil
	}

	select {
	case <-barrier:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Close はイベントループを停止します。
func (d *Dispatcher) Close() {
	d.mu.Lock()
	if d.closed {
		d.mu.Unlock()
		return
	}
	d.closed = true
	d.dropPendingLocked()
	d.cond.Broadcast()
	d.mu.Unlock()

	<-d.done
}

func (d *Dispatcher) enqueue(item queuedEvent) bool {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.closed {
		return false
	}

	d.queue.PushBack(item)
	d.cond.Signal()
	return true
}

func (d *Dispatcher) dropPendingLocked() {
	for d.queue.Len() > 0 {
		item := d.queue.PopFront()
		if item.barrier != nil {
			close(item.barrier)
		}
	}
}

func (d *Dispatcher) run() {
	defer close(d.done)

	for {
		d.mu.Lock()
		for d.queue.Len() == 0 && !d.closed {
			d.cond.Wait()
		}
		if d.closed {
			d.mu.Unlock()
			return
		}
		item := d.queue.PopFront()
		current := item.generation == d.generation
		hooks := d.hooks
		d.mu.Unlock()

		if item.barrier != nil {
			close(item.barrier)
			continue
		}

		if !current {
			slog.Debug("dropped stale transport event", "event", item.event.eventName())
			continue
		}

		d.handle(item, hooks)
	}
}

// applyCurrent はBindが変わっていなければイベントを適用します。
// 購読の待ち中にUnbindされた場合、古いクライアントのトラックは登録しません。
func (d *Dispatcher) applyCurrent(generation uint64, ev Event) {
	d.mu.Lock()
	if generation != d.generation {
		d.mu.Unlock()
		return
	}
	_, notify := d.session.applyDeferred(ev)
	d.mu.Unlock()

	notify()
}

func (d *Dispatcher) handle(item queuedEvent, hooks DispatchHooks) {
	switch ev := item.event.(type) {
	case remotePublished:
		d.handlePublished(item.generation, item.client, ev)

	case ConnectionStateChanged:
		slog.Info("connection state changed",
			slog.String("current", string(ev.Current)),
			slog.String("previous", string(ev.Previous)),
			slog.String("reason", ev.Reason))
		if ev.Current == ConnectionStateDisconnected {
			d.report(hooks, fmt.Errorf("%w: %s", ErrConnectionLost, ev.Reason))
		}

	case TokenWillExpire:
		d.report(hooks, ErrTokenWillExpire)

	case TokenDidExpire:
		if hooks.OnTokenExpired != nil {
			hooks.OnTokenExpired()
		}
		d.report(hooks, ErrTokenExpired)

	default:
		d.applyCurrent(item.generation, ev)
	}
}

// handlePublished は購読してからトラックをレジストリに登録します。
// 購読せずに公開イベントだけを記録しても再生可能なメディアは得られません。
func (d *Dispatcher) handlePublished(generation uint64, client Client, ev remotePublished) {
	uid := ev.user.UID()

	ctx, cancel := context.WithTimeout(context.Background(), d.cfg.subscribeTimeout())
	defer cancel()

	if err := client.Subscribe(ctx, ev.user, ev.kind); err != nil {
		slog.Warn("failed to subscribe remote track", "uid", uid, "kind", ev.kind, "error", err)
		return
	}

	switch ev.kind {
	case MediaKindVideo:
		track := ev.user.VideoTrack()
		if track == nil {
			slog.Warn("subscribed video track not available", "uid", uid)
			return
		}
		d.applyCurrent(generation, VideoPublished{UID: uid, Track: track})

	case MediaKindAudio:
		track := ev.user.AudioTrack()
		if track == nil {
			slog.Warn("subscribed audio track not available", "uid", uid)
			return
		}
		if err := track.Play(); err != nil {
			slog.Warn("failed to play remote audio", "uid", uid, "error", err)
		}
		d.applyCurrent(generation, AudioPublished{UID: uid, Track: track})
	}
}

func (d *Dispatcher) report(hooks DispatchHooks, err error) {
	d.session.commit(func(st *State) {
		st.LastError = err
	})
	if hooks.OnError != nil {
		hooks.OnError(err)
	}
}

// boundHandler は特定のBindに紐づくEventHandlerです。
type boundHandler struct {
	dispatcher *Dispatcher
	generation uint64
	client     Client
}

var _ EventHandler = (*boundHandler)(nil)

func (h *boundHandler) push(item queuedEvent) {
	item.generation = h.generation
	item.client = h.client
	h.dispatcher.enqueue(item)
}

func (h *boundHandler) OnUserPublished(user RemoteUser, kind MediaKind) {
	if user == nil {
		return
	}
	h.push(queuedEvent{event: remotePublished{user: user, kind: kind}})
}

func (h *boundHandler) OnUserUnpublished(user RemoteUser, kind MediaKind) {
	if user == nil {
		return
	}

	switch kind {
	case MediaKindVideo:
		// イベント後にエンジンがトラックを外すため、ここで現在のIDを控えておく
		var current string
		if track := user.VideoTrack(); track != nil {
			current = track.TrackID()
		}
		h.push(queuedEvent{event: VideoUnpublished{UID: user.UID(), CurrentTrackID: current}})
	case MediaKindAudio:
		h.push(queuedEvent{event: AudioUnpublished{UID: user.UID()}})
	}
}

func (h *boundHandler) OnUserLeft(user RemoteUser, reason string) {
	if user == nil {
		return
	}
	h.push(queuedEvent{event: ParticipantLeft{UID: user.UID(), Reason: reason}})
}

func (h *boundHandler) OnVolumeIndicator(levels []VolumeLevel) {
	copied := make([]VolumeLevel, len(levels))
	copy(copied, levels)
	h.push(queuedEvent{event: VolumeTick{Levels: copied}})
}

func (h *boundHandler) OnConnectionStateChange(cur, prev ConnectionState, reason string) {
	h.push(queuedEvent{event: ConnectionStateChanged{Current: cur, Previous: prev, Reason: reason}})
}

func (h *boundHandler) OnTokenPrivilegeWillExpire() {
	h.push(queuedEvent{event: TokenWillExpire{}})
}

func (h *boundHandler) OnTokenPrivilegeDidExpire() {
	h.push(queuedEvent{event: TokenDidExpire{}})
}
