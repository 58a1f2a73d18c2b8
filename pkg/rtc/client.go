package rtc

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/HMasataka/meeting/pkg/meeting"
	"github.com/gammazero/workerpool"
	"github.com/gorilla/websocket"
	"github.com/pion/rtcp"
	"github.com/pion/webrtc/v4"
	"github.com/sourcegraph/jsonrpc2"
	wsjsonrpc2 "github.com/sourcegraph/jsonrpc2/websocket"
)

var (
	// ErrAlreadyConnected Join was called on a client that is already in a channel
	ErrAlreadyConnected = errors.New("client already connected")
	// ErrNotConnected the client has not joined a channel
	ErrNotConnected = errors.New("client not connected")
	// ErrNoAnswer the SFU replied without an SDP answer
	ErrNoAnswer = errors.New("sfu returned no answer")
	// ErrUnknownUser the user is not present in the channel
	ErrUnknownUser = errors.New("unknown remote user")
	// ErrClientClosed Leave has already released the client
	ErrClientClosed = errors.New("client closed")
)

const bootstrapChannelLabel = "meeting"

// Client はSFUとJSON-RPC over WebSocketでシグナリングする meeting.Client の実装です。
// 送信用 (publisher) と受信用 (subscriber) の2本のPeerConnectionを持ちます。
type Client struct {
	engine *Engine
	cfg    Config

	mu         sync.Mutex
	handler    meeting.EventHandler
	conn       *jsonrpc2.Conn
	publisher  *peerConnection
	subscriber *peerConnection
	channel    string
	uid        string
	state      meeting.ConnectionState
	leaving    bool
	closed     bool
	users      map[string]*RemoteUser
	sources    map[string]TrackSource
	senders    map[string]*webrtc.RTPSender
	waiters    map[string][]chan struct{}
	observer   *AudioObserver
	stopVolume context.CancelFunc

	// negotiation はpublisher側の再ネゴシエーションを直列化します。
	negotiation sync.Mutex

	// poolMu は停止したワーカーへの投入を防ぎます。
	poolMu       sync.RWMutex
	poolsStopped bool
	events       *workerpool.WorkerPool
	signals      *workerpool.WorkerPool

	requestKeyframe func(sub *peerConnection, ssrc webrtc.SSRC) error
}

var _ meeting.Client = (*Client)(nil)

func newClient(engine *Engine) *Client {
	return &Client{
		engine:   engine,
		cfg:      engine.cfg,
		state:    meeting.ConnectionStateDisconnected,
		users:    make(map[string]*RemoteUser),
		sources:  make(map[string]TrackSource),
		senders:  make(map[string]*webrtc.RTPSender),
		waiters:  make(map[string][]chan struct{}),
		observer: NewAudioObserver(engine.cfg.AudioLevelThreshold),
		events:   workerpool.New(1),
		signals:  workerpool.New(1),

		requestKeyframe: writePLI,
	}
}

func writePLI(sub *peerConnection, ssrc webrtc.SSRC) error {
	return sub.pc.WriteRTCP([]rtcp.Packet{&rtcp.PictureLossIndication{MediaSSRC: uint32(ssrc)}})
}

// submit はワーカーにタスクを渡します。停止後のタスクは捨てます。
func (c *Client) submit(pool *workerpool.WorkerPool, task func()) {
	c.poolMu.RLock()
	defer c.poolMu.RUnlock()

	if c.poolsStopped {
		return
	}
	pool.Submit(task)
}

// stopPools は積まれたタスクを実行し終えてからワーカーを止めます。
func (c *Client) stopPools() {
	c.poolMu.Lock()
	if c.poolsStopped {
		c.poolMu.Unlock()
		return
	}
	c.poolsStopped = true
	c.poolMu.Unlock()

	c.signals.StopWait()
	c.events.StopWait()
}

func (c *Client) SetEventHandler(h meeting.EventHandler) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.handler = h
}

// emit はイベントを発生順にハンドラへ届けます。
func (c *Client) emit(f func(h meeting.EventHandler)) {
	c.submit(c.events, func() {
		c.mu.Lock()
		h := c.handler
		c.mu.Unlock()

		if h != nil {
			f(h)
		}
	})
}

func (c *Client) setState(next meeting.ConnectionState, reason string) {
	c.mu.Lock()
	prev := c.state
	if prev == next {
		c.mu.Unlock()
		return
	}
	c.state = next
	leaving := c.leaving
	c.mu.Unlock()

	if leaving {
		return
	}

	slog.Debug("connection state changed", "prev", prev, "cur", next, "reason", reason)
	c.emit(func(h meeting.EventHandler) {
		h.OnConnectionStateChange(next, prev, reason)
	})
}

// Join はSFUに接続し、publisher側のネゴシエーションを完了させます。
func (c *Client) Join(ctx context.Context, appID, channel, token, uid string) error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return ErrClientClosed
	}
	if c.conn != nil {
		c.mu.Unlock()
		return ErrAlreadyConnected
	}
	c.leaving = false
	c.mu.Unlock()

	c.setState(meeting.ConnectionStateConnecting, "")

	ws, _, err := websocket.DefaultDialer.DialContext(ctx, c.cfg.SignalURL, nil)
	if err != nil {
		c.setState(meeting.ConnectionStateDisconnected, "dial failed")
		return fmt.Errorf("failed to dial signaling server: %w", err)
	}

	conn := jsonrpc2.NewConn(context.Background(), wsjsonrpc2.NewObjectStream(ws), c)

	pub, err := newPeerConnection(c.engine.api, c.cfg.configuration(), ConnectionTypePublisher)
	if err != nil {
		_ = conn.Close()
		c.setState(meeting.ConnectionStateDisconnected, "peer connection failed")
		return err
	}

	sub, err := newPeerConnection(c.engine.api, c.cfg.configuration(), ConnectionTypeSubscriber)
	if err != nil {
		_ = pub.Close()
		_ = conn.Close()
		c.setState(meeting.ConnectionStateDisconnected, "peer connection failed")
		return err
	}

	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		_ = sub.Close()
		_ = pub.Close()
		_ = conn.Close()
		return ErrClientClosed
	}
	c.conn = conn
	c.publisher = pub
	c.subscriber = sub
	c.channel = channel
	c.uid = uid
	c.mu.Unlock()

	pub.pc.OnICECandidate(c.onICECandidate(conn, ConnectionTypePublisher))
	sub.pc.OnICECandidate(c.onICECandidate(conn, ConnectionTypeSubscriber))
	pub.pc.OnConnectionStateChange(c.onPublisherStateChange)
	sub.pc.OnTrack(c.onTrack)

	if err := c.handshake(ctx, conn, pub, JoinRequest{
		AppID:     appID,
		SessionID: channel,
		UserID:    uid,
		Token:     token,
	}); err != nil {
		c.closeTransport()
		c.setState(meeting.ConnectionStateDisconnected, "join failed")
		return err
	}

	go c.watch(conn)

	return nil
}

func (c *Client) handshake(ctx context.Context, conn *jsonrpc2.Conn, pub *peerConnection, req JoinRequest) error {
	// メディアを公開する前でもICEを確立できるようにデータチャネルを作る
	if _, err := pub.pc.CreateDataChannel(bootstrapChannelLabel, nil); err != nil {
		return fmt.Errorf("failed to create data channel: %w", err)
	}

	offer, err := pub.CreateOffer()
	if err != nil {
		return err
	}
	logSDP("join-offer", offer, c.cfg.SDPDumpDir)

	req.Offer = offer

	var res JoinResponse
	if err := conn.Call(ctx, MethodJoin, req, &res); err != nil {
		return fmt.Errorf("join rejected: %w", err)
	}
	if res.Answer == nil {
		return ErrNoAnswer
	}
	logSDP("join-answer", *res.Answer, c.cfg.SDPDumpDir)

	return pub.SetRemoteDescription(*res.Answer)
}

// watch はシグナリング接続が予期せず切れたことを検出します。
func (c *Client) watch(conn *jsonrpc2.Conn) {
	<-conn.DisconnectNotify()

	c.mu.Lock()
	current := c.conn == conn
	c.mu.Unlock()

	if current {
		c.setState(meeting.ConnectionStateDisconnected, "signaling connection closed")
	}
}

func (c *Client) onPublisherStateChange(s webrtc.PeerConnectionState) {
	switch s {
	case webrtc.PeerConnectionStateConnecting:
		c.setState(meeting.ConnectionStateConnecting, "")
	case webrtc.PeerConnectionStateConnected:
		c.setState(meeting.ConnectionStateConnected, "")
	case webrtc.PeerConnectionStateDisconnected:
		c.setState(meeting.ConnectionStateReconnecting, "ice disconnected")
	case webrtc.PeerConnectionStateFailed:
		c.setState(meeting.ConnectionStateDisconnected, "ice failed")
	case webrtc.PeerConnectionStateClosed:
		c.setState(meeting.ConnectionStateDisconnected, "peer connection closed")
	}
}

func (c *Client) onICECandidate(conn *jsonrpc2.Conn, target ConnectionType) func(*webrtc.ICECandidate) {
	return func(candidate *webrtc.ICECandidate) {
		if candidate == nil {
			return
		}

		req := CandidateRequest{ConnectionType: target, Candidate: candidate.ToJSON()}
		if err := conn.Notify(context.Background(), MethodCandidate, req); err != nil {
			slog.Debug("failed to send candidate", "target", target, "error", err)
		}
	}
}

// Handle はSFUからの通知を処理します。
// ネゴシエーションはSFUへの呼び出しを伴うため読み込みループの外で直列に実行します。
func (c *Client) Handle(ctx context.Context, conn *jsonrpc2.Conn, request *jsonrpc2.Request) {
	switch request.Method {
	case NotifyOffer:
		var args OfferRequest
		if !c.decode(ctx, conn, request, &args) {
			return
		}
		c.submit(c.signals, func() { c.handleOffer(conn, args.Offer) })
	case NotifyCandidate:
		var args CandidateRequest
		if !c.decode(ctx, conn, request, &args) {
			return
		}
		c.submit(c.signals, func() { c.handleCandidate(args) })
	case NotifyPublished:
		var args PublishedNotification
		if !c.decode(ctx, conn, request, &args) {
			return
		}
		c.handlePublished(args)
	case NotifyUnpublished:
		var args UnpublishedNotification
		if !c.decode(ctx, conn, request, &args) {
			return
		}
		c.handleUnpublished(args)
	case NotifyLeft:
		var args LeftNotification
		if !c.decode(ctx, conn, request, &args) {
			return
		}
		c.handleLeft(args)
	case NotifyTokenWillExpire:
		c.emit(func(h meeting.EventHandler) { h.OnTokenPrivilegeWillExpire() })
	case NotifyTokenDidExpire:
		c.emit(func(h meeting.EventHandler) { h.OnTokenPrivilegeDidExpire() })
	default:
		slog.Warn("unknown method", "method", request.Method)
		if !request.Notif {
			err := &jsonrpc2.Error{Code: jsonrpc2.CodeMethodNotFound, Message: request.Method}
			if replyErr := conn.ReplyWithError(ctx, request.ID, err); replyErr != nil {
				slog.Error("failed to send error reply", "error", replyErr)
			}
		}
	}
}

func (c *Client) decode(ctx context.Context, conn *jsonrpc2.Conn, request *jsonrpc2.Request, v any) bool {
	if request.Params != nil {
		if err := json.Unmarshal(*request.Params, v); err == nil {
			return true
		}
	}

	slog.Warn("invalid params", "method", request.Method)
	if !request.Notif {
		err := &jsonrpc2.Error{Code: jsonrpc2.CodeInvalidParams, Message: "Invalid params"}
		if replyErr := conn.ReplyWithError(ctx, request.ID, err); replyErr != nil {
			slog.Error("failed to send error reply", "error", replyErr)
		}
	}
	return false
}

func (c *Client) handleOffer(conn *jsonrpc2.Conn, offer webrtc.SessionDescription) {
	c.mu.Lock()
	sub := c.subscriber
	c.mu.Unlock()

	if sub == nil {
		slog.Warn("subscriber not ready for offer")
		return
	}

	logSDP("subscriber-offer", offer, c.cfg.SDPDumpDir)

	if err := sub.SetRemoteDescription(offer); err != nil {
		slog.Error("failed to apply subscriber offer", "error", err)
		return
	}

	answer, err := sub.CreateAnswer()
	if err != nil {
		slog.Error("failed to answer subscriber offer", "error", err)
		return
	}
	logSDP("subscriber-answer", answer, c.cfg.SDPDumpDir)

	ctx, cancel := context.WithTimeout(context.Background(), c.cfg.handshakeTimeout())
	defer cancel()

	var ack json.RawMessage
	if err := conn.Call(ctx, MethodAnswer, AnswerRequest{Answer: answer}, &ack); err != nil {
		slog.Error("failed to send subscriber answer", "error", err)
	}
}

func (c *Client) handleCandidate(args CandidateRequest) {
	c.mu.Lock()
	pc := c.publisher
	if args.ConnectionType == ConnectionTypeSubscriber {
		pc = c.subscriber
	}
	c.mu.Unlock()

	if pc == nil {
		return
	}

	if err := pc.AddICECandidate(args.Candidate); err != nil {
		slog.Warn("failed to add candidate", "target", args.ConnectionType, "error", err)
	}
}

func (c *Client) userLocked(uid string) *RemoteUser {
	u, ok := c.users[uid]
	if !ok {
		u = newRemoteUser(uid)
		c.users[uid] = u
	}
	return u
}

func (c *Client) lookupUser(uid string) *RemoteUser {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.users[uid]
}

func (c *Client) handlePublished(args PublishedNotification) {
	c.mu.Lock()
	c.sources[args.TrackID] = args.Source
	user := c.userLocked(args.UserID)
	c.mu.Unlock()

	user.expect(args.Kind, args.TrackID)

	c.emit(func(h meeting.EventHandler) {
		h.OnUserPublished(user, args.Kind)
	})
}

// handleUnpublished は取り下げられたトラックを現在のトラックとして見せた状態で通知し、
// ハンドラが戻った後に取り除きます。
func (c *Client) handleUnpublished(args UnpublishedNotification) {
	c.submit(c.events, func() {
		user := c.lookupUser(args.UserID)
		if user == nil {
			return
		}

		if args.Kind == meeting.MediaKindVideo {
			user.focusVideo(args.TrackID)
		}

		c.mu.Lock()
		h := c.handler
		c.mu.Unlock()
		if h != nil {
			h.OnUserUnpublished(user, args.Kind)
		}

		if removed := user.removeTrack(args.Kind, args.TrackID); removed != nil {
			removed.Stop()
		}
		if args.Kind == meeting.MediaKindAudio {
			c.observer.removeStream(args.UserID)
		}

		c.mu.Lock()
		delete(c.sources, args.TrackID)
		c.mu.Unlock()
	})
}

func (c *Client) handleLeft(args LeftNotification) {
	c.submit(c.events, func() {
		c.mu.Lock()
		user, ok := c.users[args.UserID]
		delete(c.users, args.UserID)
		h := c.handler
		c.mu.Unlock()

		if !ok {
			user = newRemoteUser(args.UserID)
		}

		if h != nil {
			h.OnUserLeft(user, args.Reason)
		}

		user.stopAll()
		c.observer.removeStream(args.UserID)
	})
}

func (c *Client) onTrack(track *webrtc.TrackRemote, receiver *webrtc.RTPReceiver) {
	c.mu.Lock()
	source := c.sources[track.ID()]
	c.mu.Unlock()

	c.addRemoteTrack(newRemoteTrack(track.StreamID(), track, receiver, source.toMeeting(), c.observer))
}

// addRemoteTrack はトラックを参加者に登録し、その到着を待っている購読を起こします。
func (c *Client) addRemoteTrack(remote *RemoteTrack) {
	c.mu.Lock()
	user := c.userLocked(remote.uid)
	c.mu.Unlock()

	user.setTrack(remote)

	if remote.kind == meeting.MediaKindAudio {
		c.observer.addStream(remote.uid)
	}

	slog.Debug("remote track arrived", "uid", remote.uid, "track", remote.id, "kind", remote.kind)

	c.mu.Lock()
	waiters := c.waiters[remote.id]
	delete(c.waiters, remote.id)
	c.mu.Unlock()

	for _, ch := range waiters {
		close(ch)
	}
}

// waitTrack は指定したトラックが届くと閉じられるチャネルを返します。
func (c *Client) waitTrack(user *RemoteUser, trackID string) <-chan struct{} {
	ch := make(chan struct{})

	c.mu.Lock()
	defer c.mu.Unlock()

	if trackID == "" || user.hasTrack(trackID) {
		close(ch)
		return ch
	}

	c.waiters[trackID] = append(c.waiters[trackID], ch)
	return ch
}

func (c *Client) connected() (*jsonrpc2.Conn, *peerConnection, *peerConnection, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.conn == nil {
		return nil, nil, nil, ErrNotConnected
	}
	return c.conn, c.publisher, c.subscriber, nil
}

// Subscribe はリモート参加者のトラックを購読し、トラックが届くまで待ちます。
func (c *Client) Subscribe(ctx context.Context, user meeting.RemoteUser, kind meeting.MediaKind) error {
	conn, _, sub, err := c.connected()
	if err != nil {
		return err
	}

	remote := c.lookupUser(user.UID())
	if remote == nil {
		return fmt.Errorf("%w: %s", ErrUnknownUser, user.UID())
	}

	trackID := remote.takeExpected(kind)
	arrived := c.waitTrack(remote, trackID)

	var ack json.RawMessage
	if err := conn.Call(ctx, MethodSubscribe, SubscribeRequest{UserID: remote.UID(), Kind: kind}, &ack); err != nil {
		return fmt.Errorf("failed to subscribe %s of %s: %w", kind, remote.UID(), err)
	}

	select {
	case <-arrived:
	case <-ctx.Done():
		return ctx.Err()
	}

	if _, _, _, err := c.connected(); err != nil {
		return err
	}

	if kind != meeting.MediaKindVideo {
		return nil
	}

	remote.focusVideo(trackID)

	if track, ok := remote.VideoTrack().(*RemoteTrack); ok {
		if err := c.requestKeyframe(sub, track.SSRC()); err != nil {
			slog.Debug("failed to request keyframe", "uid", remote.UID(), "error", err)
		}
	}

	return nil
}

func asLocalTracks(tracks []meeting.LocalTrack) ([]*LocalTrack, error) {
	locals := make([]*LocalTrack, 0, len(tracks))
	for _, t := range tracks {
		local, ok := t.(*LocalTrack)
		if !ok {
			return nil, fmt.Errorf("%w: %s", ErrForeignTrack, t.TrackID())
		}
		locals = append(locals, local)
	}
	return locals, nil
}

// Publish はトラックをpublisherに追加して再ネゴシエーションし、SFUに公開を知らせます。
func (c *Client) Publish(ctx context.Context, tracks ...meeting.LocalTrack) error {
	locals, err := asLocalTracks(tracks)
	if err != nil {
		return err
	}

	c.negotiation.Lock()
	defer c.negotiation.Unlock()

	conn, pub, _, err := c.connected()
	if err != nil {
		return err
	}

	infos := make([]TrackInfo, 0, len(locals))
	for _, t := range locals {
		c.mu.Lock()
		_, published := c.senders[t.TrackID()]
		c.mu.Unlock()
		if published {
			continue
		}

		sender, err := pub.pc.AddTrack(t.track)
		if err != nil {
			return fmt.Errorf("failed to add track %s: %w", t.TrackID(), err)
		}
		go drainRTCP(sender)

		c.mu.Lock()
		c.senders[t.TrackID()] = sender
		c.mu.Unlock()

		infos = append(infos, t.info())
	}

	if len(infos) == 0 {
		return nil
	}

	if err := c.renegotiate(ctx, conn, pub); err != nil {
		return err
	}

	var ack json.RawMessage
	if err := conn.Call(ctx, MethodPublish, PublishRequest{Tracks: infos}, &ack); err != nil {
		return fmt.Errorf("failed to publish: %w", err)
	}
	return nil
}

// Unpublish はトラックをpublisherから外して再ネゴシエーションします。
func (c *Client) Unpublish(ctx context.Context, tracks ...meeting.LocalTrack) error {
	c.negotiation.Lock()
	defer c.negotiation.Unlock()

	conn, pub, _, err := c.connected()
	if err != nil {
		return err
	}

	ids := make([]string, 0, len(tracks))
	for _, t := range tracks {
		c.mu.Lock()
		sender, ok := c.senders[t.TrackID()]
		delete(c.senders, t.TrackID())
		c.mu.Unlock()
		if !ok {
			continue
		}

		if err := pub.pc.RemoveTrack(sender); err != nil {
			return fmt.Errorf("failed to remove track %s: %w", t.TrackID(), err)
		}
		ids = append(ids, t.TrackID())
	}

	if len(ids) == 0 {
		return nil
	}

	if err := c.renegotiate(ctx, conn, pub); err != nil {
		return err
	}

	var ack json.RawMessage
	if err := conn.Call(ctx, MethodUnpublish, UnpublishRequest{TrackIDs: ids}, &ack); err != nil {
		return fmt.Errorf("failed to unpublish: %w", err)
	}
	return nil
}

func (c *Client) renegotiate(ctx context.Context, conn *jsonrpc2.Conn, pub *peerConnection) error {
	offer, err := pub.CreateOffer()
	if err != nil {
		return err
	}
	logSDP("publisher-offer", offer, c.cfg.SDPDumpDir)

	var res OfferResponse
	if err := conn.Call(ctx, MethodOffer, OfferRequest{Offer: offer}, &res); err != nil {
		return fmt.Errorf("failed to renegotiate: %w", err)
	}
	if res.Answer == nil {
		return ErrNoAnswer
	}
	logSDP("publisher-answer", *res.Answer, c.cfg.SDPDumpDir)

	return pub.SetRemoteDescription(*res.Answer)
}

func drainRTCP(sender *webrtc.RTPSender) {
	buf := make([]byte, 1500)
	for {
		if _, _, err := sender.Read(buf); err != nil {
			return
		}
	}
}

// EnableAudioVolumeIndicator は一定間隔で参加者ごとの音量を通知し始めます。
func (c *Client) EnableAudioVolumeIndicator() {
	c.mu.Lock()
	if c.closed || c.stopVolume != nil {
		c.mu.Unlock()
		return
	}
	ctx, cancel := context.WithCancel(context.Background())
	c.stopVolume = cancel
	c.mu.Unlock()

	go func() {
		ticker := time.NewTicker(c.cfg.volumeInterval())
		defer ticker.Stop()

		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				levels := c.observer.Levels()
				if len(levels) == 0 {
					continue
				}
				c.emit(func(h meeting.EventHandler) { h.OnVolumeIndicator(levels) })
			}
		}
	}()
}

// Leave はSFUに退出を知らせて接続を閉じ、クライアントを解放します。
// 退出による切断はイベントとして通知しません。Leave後のクライアントは再利用できません。
func (c *Client) Leave(ctx context.Context) error {
	c.mu.Lock()
	conn := c.conn
	req := LeaveRequest{SessionID: c.channel, UserID: c.uid}
	c.leaving = true
	c.closed = true
	if c.stopVolume != nil {
		c.stopVolume()
		c.stopVolume = nil
	}
	c.mu.Unlock()

	var errs []error
	if conn != nil {
		if err := conn.Notify(ctx, MethodLeave, req); err != nil {
			errs = append(errs, fmt.Errorf("failed to notify leave: %w", err))
		}
		errs = append(errs, c.closeTransport())
	}

	c.stopPools()

	return errors.Join(errs...)
}

func (c *Client) closeTransport() error {
	c.mu.Lock()
	conn, pub, sub := c.conn, c.publisher, c.subscriber
	c.conn, c.publisher, c.subscriber = nil, nil, nil
	users := c.users
	c.users = make(map[string]*RemoteUser)
	c.sources = make(map[string]TrackSource)
	c.senders = make(map[string]*webrtc.RTPSender)
	for _, ws := range c.waiters {
		for _, ch := range ws {
			close(ch)
		}
	}
	c.waiters = make(map[string][]chan struct{})
	if c.stopVolume != nil {
		c.stopVolume()
		c.stopVolume = nil
	}
	c.state = meeting.ConnectionStateDisconnected
	c.mu.Unlock()

	for uid, user := range users {
		user.stopAll()
		c.observer.removeStream(uid)
	}

	var errs []error
	if pub != nil {
		errs = append(errs, pub.Close())
	}
	if sub != nil {
		errs = append(errs, sub.Close())
	}
	if conn != nil {
		errs = append(errs, conn.Close())
	}
	return errors.Join(errs...)
}
