package meeting

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/HMasataka/logging"
	"github.com/samber/lo"
)

const transportLeaveTimeout = 10 * time.Second

// Credentials はシグナリングサービスが発行した参加情報です。
type Credentials struct {
	AppID        string
	Channel      string
	Token        string
	UID          string
	MeetingID    string
	MeetingTitle string
	ViewOnly     bool
}

// Controller はセッションの参加・退出・終了を管理します。
type Controller struct {
	engine     Engine
	signaling  Signaling
	cfg        Config
	session    *Session
	dispatcher *Dispatcher
	tracks     *TrackManager

	mu     sync.Mutex
	client Client
}

func NewController(engine Engine, signaling Signaling, cfg Config) *Controller {
	cfg = cfg.normalize()
	session := NewSession(cfg)

	return &Controller{
		engine:     engine,
		signaling:  signaling,
		cfg:        cfg,
		session:    session,
		dispatcher: NewDispatcher(session, cfg),
		tracks:     NewTrackManager(engine, session, cfg),
	}
}

func (c *Controller) Session() *Session {
	return c.session
}

func (c *Controller) Tracks() *TrackManager {
	return c.tracks
}

// Join は会議に参加します。
// 参加処理の失敗は onError と戻り値の両方で通知し、ローカルメディアの失敗は onError だけで通知します。
func (c *Controller) Join(ctx context.Context, cred Credentials, onError func(error)) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if st := c.session.Snapshot(); st.JoinState == JoinStateConnecting || st.JoinState == JoinStateReady {
		return ErrAlreadyJoined
	}
	if onError == nil {
		onError = func(error) {}
	}

	ctx = logging.WithValue(ctx, "meeting_id", cred.MeetingID)
	ctx = logging.WithValue(ctx, "uid", cred.UID)

	c.session.commit(func(st *State) {
		st.JoinState = JoinStateConnecting
		st.Joined = false
		st.LastError = nil
	})

	client, err := c.engine.CreateClient(ClientConfig{Mode: ModeRTC, Codec: CodecVP8})
	if err != nil {
		return c.failJoin(nil, fmt.Errorf("%w: create client: %w", ErrJoinFailed, err), onError)
	}

	// ハンドシェイクより前に登録しないとイベントを取りこぼす
	c.dispatcher.Bind(client, DispatchHooks{
		OnError: onError,
		OnTokenExpired: func() {
			leaveTransport(client)
		},
	})

	if err := c.handshake(ctx, client, cred); err != nil {
		return c.failJoin(client, err, onError)
	}

	roster, err := c.signaling.Roster(ctx, cred.MeetingID)
	if err != nil {
		return c.failJoin(client, fmt.Errorf("%w: %w", ErrRosterUnavailable, err), onError)
	}

	c.dispatcher.Seed(lo.Reject(roster, func(entry RosterEntry, _ int) bool {
		return entry.UID == cred.UID
	}))
	if err := c.dispatcher.Flush(ctx); err != nil {
		return c.failJoin(client, fmt.Errorf("%w: %w", ErrJoinFailed, err), onError)
	}

	c.client = client
	c.session.commit(func(st *State) {
		st.JoinState = JoinStateReady
		st.Joined = true
		st.LocalUID = cred.UID
		st.IsViewOnly = cred.ViewOnly
		st.MeetingID = cred.MeetingID
		st.MeetingTitle = cred.MeetingTitle
	})

	slog.InfoContext(ctx, "meeting joined",
		slog.String("channel", cred.Channel),
		slog.Bool("view_only", cred.ViewOnly))

	client.EnableAudioVolumeIndicator()
	c.tracks.Attach(client)

	if cred.ViewOnly {
		return nil
	}

	if err := c.tracks.CreateAndPublishLocalTracks(ctx); err != nil {
		err = fmt.Errorf("%w: %w", ErrLocalMediaUnavailable, err)
		slog.WarnContext(ctx, "joined without local media", "error", err)
		c.session.commit(func(st *State) {
			st.LastError = err
		})
		onError(err)
	}

	return nil
}

// handshake はクライアントの参加をJoinTimeoutと競わせます。
func (c *Controller) handshake(ctx context.Context, client Client, cred Credentials) error {
	joinCtx, cancel := context.WithTimeout(ctx, c.cfg.joinTimeout())
	defer cancel()

	done := make(chan error, 1)
	go func() {
		done <- client.Join(joinCtx, cred.AppID, cred.Channel, cred.Token, cred.UID)
	}()

	select {
	case err := <-done:
		if err != nil {
			return fmt.Errorf("%w: %w", ErrJoinFailed, err)
		}
		return nil
	case <-joinCtx.Done():
		if errors.Is(joinCtx.Err(), context.DeadlineExceeded) {
			return fmt.Errorf("%w after %s", ErrJoinTimeout, c.cfg.joinTimeout())
		}
		return fmt.Errorf("%w: %w", ErrJoinFailed, joinCtx.Err())
	}
}

// failJoin は作りかけのクライアントを破棄し、セッションをerrorにします。
func (c *Controller) failJoin(client Client, err error, onError func(error)) error {
	if client != nil {
		c.dispatcher.Unbind()
		leaveTransport(client)
	}

	c.session.commit(func(st *State) {
		*st = initialState(c.cfg)
		st.JoinState = JoinStateError
		st.LastError = err
	})

	slog.Error("failed to join meeting", "error", err)
	onError(err)
	return err
}

// Leave は会議から退出し、シグナリングサービスに通知します。
// meetingID が空なら参加中の会議IDを使います。
func (c *Controller) Leave(ctx context.Context, meetingID string) error {
	return c.teardown(ctx, meetingID, c.signaling.Leave)
}

// End は全員の会議を終了します。
func (c *Controller) End(ctx context.Context, meetingID string) error {
	return c.teardown(ctx, meetingID, c.signaling.End)
}

// teardown はトラックの解放、ハンドラの解除、トランスポートからの退出を順に行ってから
// シグナリングへ通知し、状態を初期化します。各手順は失敗しても次へ進みます。
func (c *Controller) teardown(ctx context.Context, meetingID string, notify func(context.Context, string) error) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if meetingID == "" {
		meetingID = c.session.Snapshot().MeetingID
	}

	c.releaseLocked(ctx)

	var err error
	if notify != nil && meetingID != "" {
		if nerr := notify(ctx, meetingID); nerr != nil {
			err = fmt.Errorf("notify signaling: %w", nerr)
			slog.Warn("failed to notify signaling", "meeting_id", meetingID, "error", nerr)
		}
	}

	c.session.reset()
	return err
}

func (c *Controller) releaseLocked(ctx context.Context) {
	if err := c.tracks.Release(ctx); err != nil {
		slog.Warn("failed to release local tracks", "error", err)
	}

	c.dispatcher.Unbind()

	if c.client != nil {
		if err := c.client.Leave(ctx); err != nil {
			slog.Warn("failed to leave transport session", "error", err)
		}
		c.client = nil
	}
}

func (c *Controller) ToggleVideo(ctx context.Context) error {
	return c.tracks.ToggleVideo(ctx)
}

func (c *Controller) ToggleAudio() error {
	return c.tracks.ToggleAudio()
}

func (c *Controller) StartScreenShare(ctx context.Context) error {
	return c.tracks.StartScreenShare(ctx)
}

func (c *Controller) StopScreenShare(ctx context.Context) error {
	return c.tracks.StopScreenShare(ctx)
}

// Close はシグナリングに通知せずにローカルの資源を解放し、イベントループを止めます。
func (c *Controller) Close(ctx context.Context) {
	c.mu.Lock()
	c.releaseLocked(ctx)
	c.mu.Unlock()

	c.dispatcher.Close()
	c.session.reset()
}

func leaveTransport(client Client) {
	ctx, cancel := context.WithTimeout(context.Background(), transportLeaveTimeout)
	defer cancel()

	if err := client.Leave(ctx); err != nil {
		slog.Debug("failed to leave transport session", "error", err)
	}
}
