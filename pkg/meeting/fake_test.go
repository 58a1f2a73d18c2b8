package meeting

import (
	"context"
	"errors"
	"slices"
	"sync"

	"github.com/samber/lo"
)

var ErrFake = errors.New("fake failure")

type FakeRemoteTrack struct {
	ID        string
	MediaKind MediaKind
	Src       TrackSource
	Hint      string
	Name      string

	mu    sync.Mutex
	plays int
}

func (t *FakeRemoteTrack) TrackID() string      { return t.ID }
func (t *FakeRemoteTrack) Kind() MediaKind      { return t.MediaKind }
func (t *FakeRemoteTrack) Source() TrackSource  { return t.Src }
func (t *FakeRemoteTrack) ContentHint() string  { return t.Hint }
func (t *FakeRemoteTrack) Label() string        { return t.Name }
func (t *FakeRemoteTrack) Stop()                {}
func (t *FakeRemoteTrack) Play() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.plays++
	return nil
}

func (t *FakeRemoteTrack) Plays() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.plays
}

func CameraOf(id string) *FakeRemoteTrack {
	return &FakeRemoteTrack{ID: id, MediaKind: MediaKindVideo, Src: TrackSourceCamera, Name: "camera"}
}

func ScreenOf(id string) *FakeRemoteTrack {
	return &FakeRemoteTrack{ID: id, MediaKind: MediaKindVideo, Src: TrackSourceScreen, Name: "screen"}
}

func MicOf(id string) *FakeRemoteTrack {
	return &FakeRemoteTrack{ID: id, MediaKind: MediaKindAudio, Name: "microphone"}
}

type FakeRemoteUser struct {
	ID string

	mu    sync.Mutex
	video RemoteTrack
	audio RemoteTrack
}

func NewFakeRemoteUser(uid string) *FakeRemoteUser {
	return &FakeRemoteUser{ID: uid}
}

func (u *FakeRemoteUser) UID() string { return u.ID }

func (u *FakeRemoteUser) VideoTrack() RemoteTrack {
	u.mu.Lock()
	defer u.mu.Unlock()
	return u.video
}

func (u *FakeRemoteUser) AudioTrack() RemoteTrack {
	u.mu.Lock()
	defer u.mu.Unlock()
	return u.audio
}

func (u *FakeRemoteUser) SetVideo(track RemoteTrack) {
	u.mu.Lock()
	u.video = track
	u.mu.Unlock()
}

func (u *FakeRemoteUser) SetAudio(track RemoteTrack) {
	u.mu.Lock()
	u.audio = track
	u.mu.Unlock()
}

type FakeLocalTrack struct {
	ID        string
	MediaKind MediaKind
	CloseErr  error

	mu      sync.Mutex
	enabled bool
	stopped bool
	closed  bool
}

func NewFakeLocalTrack(id string, kind MediaKind) *FakeLocalTrack {
	return &FakeLocalTrack{ID: id, MediaKind: kind, enabled: true}
}

func (t *FakeLocalTrack) TrackID() string { return t.ID }
func (t *FakeLocalTrack) Kind() MediaKind { return t.MediaKind }

func (t *FakeLocalTrack) SetEnabled(enabled bool) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.enabled = enabled
	return nil
}

func (t *FakeLocalTrack) Stop() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.stopped = true
}

func (t *FakeLocalTrack) Close() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.closed = true
	return t.CloseErr
}

func (t *FakeLocalTrack) Enabled() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.enabled
}

func (t *FakeLocalTrack) Closed() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.stopped && t.closed
}

type FakeScreenTrack struct {
	*FakeLocalTrack

	endMu   sync.Mutex
	onEnded func()
}

func (t *FakeScreenTrack) OnEnded(f func()) {
	t.endMu.Lock()
	t.onEnded = f
	t.endMu.Unlock()
}

// End はOSの「共有を停止」操作を模します。
func (t *FakeScreenTrack) End() {
	t.endMu.Lock()
	f := t.onEnded
	t.endMu.Unlock()
	if f != nil {
		f()
	}
}

type FakeClient struct {
	JoinFunc      func(ctx context.Context) error
	SubscribeFunc func(ctx context.Context, user RemoteUser, kind MediaKind) error
	PublishErr    error
	LeaveErr      error

	mu            sync.Mutex
	handler       EventHandler
	calls         []string
	published     map[string]LocalTrack
	leaves        int
	volumeEnabled bool
}

func NewFakeClient() *FakeClient {
	return &FakeClient{published: make(map[string]LocalTrack)}
}

func (c *FakeClient) record(call string) {
	c.mu.Lock()
	c.calls = append(c.calls, call)
	c.mu.Unlock()
}

func (c *FakeClient) Join(ctx context.Context, appID, channel, token, uid string) error {
	c.record("join")
	if c.JoinFunc != nil {
		return c.JoinFunc(ctx)
	}
	return nil
}

func (c *FakeClient) Leave(ctx context.Context) error {
	c.record("leave")
	c.mu.Lock()
	defer c.mu.Unlock()
	c.leaves++
	return c.LeaveErr
}

func (c *FakeClient) Publish(ctx context.Context, tracks ...LocalTrack) error {
	c.record("publish")
	if c.PublishErr != nil {
		return c.PublishErr
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, track := range tracks {
		c.published[track.TrackID()] = track
	}
	return nil
}

func (c *FakeClient) Unpublish(ctx context.Context, tracks ...LocalTrack) error {
	c.record("unpublish")
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, track := range tracks {
		delete(c.published, track.TrackID())
	}
	return nil
}

func (c *FakeClient) Subscribe(ctx context.Context, user RemoteUser, kind MediaKind) error {
	if c.SubscribeFunc != nil {
		return c.SubscribeFunc(ctx, user, kind)
	}
	return nil
}

func (c *FakeClient) EnableAudioVolumeIndicator() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.volumeEnabled = true
}

func (c *FakeClient) SetEventHandler(h EventHandler) {
	if h == nil {
		c.record("detach")
	} else {
		c.record("attach")
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.handler = h
}

func (c *FakeClient) Handler() EventHandler {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.handler
}

func (c *FakeClient) Calls() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return slices.Clone(c.calls)
}

func (c *FakeClient) Published() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	ids := lo.Keys(c.published)
	slices.Sort(ids)
	return ids
}

func (c *FakeClient) Leaves() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.leaves
}

func (c *FakeClient) VolumeEnabled() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.volumeEnabled
}

type FakeEngine struct {
	Client    *FakeClient
	ClientErr error
	MicErr    error
	CameraErr error
	ScreenErr error

	mu      sync.Mutex
	mic     *FakeLocalTrack
	camera  *FakeLocalTrack
	screens []*FakeScreenTrack
}

func NewFakeEngine() *FakeEngine {
	return &FakeEngine{Client: NewFakeClient()}
}

func (e *FakeEngine) CreateClient(cfg ClientConfig) (Client, error) {
	if e.ClientErr != nil {
		return nil, e.ClientErr
	}
	return e.Client, nil
}

func (e *FakeEngine) CreateMicrophoneAudioTrack(ctx context.Context) (LocalTrack, error) {
	if e.MicErr != nil {
		return nil, e.MicErr
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	e.mic = NewFakeLocalTrack("local-mic", MediaKindAudio)
	return e.mic, nil
}

func (e *FakeEngine) CreateCameraVideoTrack(ctx context.Context) (LocalTrack, error) {
	if e.CameraErr != nil {
		return nil, e.CameraErr
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	e.camera = NewFakeLocalTrack("local-camera", MediaKindVideo)
	return e.camera, nil
}

func (e *FakeEngine) CreateScreenVideoTrack(ctx context.Context, opts ScreenTrackOptions) (ScreenTrack, error) {
	if e.ScreenErr != nil {
		return nil, e.ScreenErr
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	screen := &FakeScreenTrack{FakeLocalTrack: NewFakeLocalTrack("local-screen", MediaKindVideo)}
	e.screens = append(e.screens, screen)
	return screen, nil
}

func (e *FakeEngine) Mic() *FakeLocalTrack {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.mic
}

func (e *FakeEngine) Camera() *FakeLocalTrack {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.camera
}

func (e *FakeEngine) Screens() []*FakeScreenTrack {
	e.mu.Lock()
	defer e.mu.Unlock()
	return slices.Clone(e.screens)
}
