package meeting

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"
)

const screenEndedTimeout = 10 * time.Second

// TrackManager はローカル参加者のカメラ・マイク・画面共有トラックを所有します。
// これらのトラックを停止・解放するのはTrackManagerだけです。
type TrackManager struct {
	engine  Engine
	session *Session
	cfg     Config

	mu              sync.Mutex
	client          Client
	camera          LocalTrack
	microphone      LocalTrack
	screen          ScreenTrack
	cameraPublished bool
}

func NewTrackManager(engine Engine, session *Session, cfg Config) *TrackManager {
	return &TrackManager{
		engine:  engine,
		session: session,
		cfg:     cfg.normalize(),
	}
}

// Attach は公開先のクライアントを設定します。
func (m *TrackManager) Attach(client Client) {
	m.mu.Lock()
	m.client = client
	m.mu.Unlock()
}

func (m *TrackManager) CameraTrack() LocalTrack {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.camera
}

func (m *TrackManager) MicrophoneTrack() LocalTrack {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.microphone
}

func (m *TrackManager) ScreenTrack() ScreenTrack {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.screen
}

// CreateAndPublishLocalTracks はマイクとカメラのトラックを作成してまとめて公開します。
// 失敗した場合は作成済みのトラックを取り下げて解放し、何も保持しません。
func (m *TrackManager) CreateAndPublishLocalTracks(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.client == nil {
		return ErrNotJoined
	}

	st := m.session.Snapshot()

	mic, err := m.engine.CreateMicrophoneAudioTrack(ctx)
	if err != nil {
		return fmt.Errorf("create microphone track: %w", err)
	}

	camera, err := m.engine.CreateCameraVideoTrack(ctx)
	if err != nil {
		closeLocalTrack(mic)
		return fmt.Errorf("create camera track: %w", err)
	}

	if err := mic.SetEnabled(st.AudioEnabled); err != nil {
		slog.Warn("failed to apply microphone state", "error", err)
	}
	if err := camera.SetEnabled(st.VideoEnabled); err != nil {
		slog.Warn("failed to apply camera state", "error", err)
	}

	if err := m.client.Publish(ctx, mic, camera); err != nil {
		if uerr := m.client.Unpublish(context.WithoutCancel(ctx), mic, camera); uerr != nil {
			slog.Debug("unpublish after failed publish", "error", uerr)
		}
		closeLocalTrack(mic)
		closeLocalTrack(camera)
		return fmt.Errorf("publish local tracks: %w", err)
	}

	m.microphone = mic
	m.camera = camera
	m.cameraPublished = true

	slog.Info("local tracks published", "camera", camera.TrackID(), "microphone", mic.TrackID())
	return nil
}

// ToggleVideo はカメラの有効フラグを反転します。
// 画面共有中はカメラを取り下げているため、フラグだけを変えます。
func (m *TrackManager) ToggleVideo(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	st := m.session.commit(func(st *State) {
		st.VideoEnabled = !st.VideoEnabled
	})

	if m.camera == nil || st.IsScreenSharing {
		return nil
	}

	if err := m.camera.SetEnabled(st.VideoEnabled); err != nil {
		return fmt.Errorf("set camera enabled: %w", err)
	}

	if st.VideoEnabled && !m.cameraPublished && m.client != nil {
		if err := m.client.Publish(ctx, m.camera); err != nil {
			return fmt.Errorf("republish camera: %w", err)
		}
		m.cameraPublished = true
	}

	return nil
}

// ToggleAudio はマイクの有効フラグを反転します。
func (m *TrackManager) ToggleAudio() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	st := m.session.commit(func(st *State) {
		st.AudioEnabled = !st.AudioEnabled
	})

	if m.microphone == nil {
		return nil
	}

	if err := m.microphone.SetEnabled(st.AudioEnabled); err != nil {
		return fmt.Errorf("set microphone enabled: %w", err)
	}
	return nil
}

// StartScreenShare はカメラを取り下げて画面共有トラックを公開します。
// 共有中または視聴専用の場合は何もしません。
func (m *TrackManager) StartScreenShare(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	st := m.session.Snapshot()
	if st.IsScreenSharing || m.screen != nil || st.IsViewOnly {
		return nil
	}
	if m.client == nil || !st.Joined {
		return ErrNotJoined
	}

	cameraWasPublished := m.cameraPublished
	if m.camera != nil && m.cameraPublished {
		if err := m.client.Unpublish(ctx, m.camera); err != nil {
			return fmt.Errorf("%w: unpublish camera: %w", ErrScreenShareFailed, err)
		}
		m.cameraPublished = false
	}

	screen, err := m.engine.CreateScreenVideoTrack(ctx, m.cfg.Screen)
	if err != nil {
		m.restoreCamera(ctx, cameraWasPublished)
		return fmt.Errorf("%w: %w", ErrScreenShareFailed, err)
	}

	if err := m.client.Publish(ctx, screen); err != nil {
		closeLocalTrack(screen)
		m.restoreCamera(ctx, cameraWasPublished)
		return fmt.Errorf("%w: %w", ErrScreenShareFailed, err)
	}

	m.screen = screen
	screen.OnEnded(func() {
		go m.handleScreenEnded(screen)
	})

	m.session.commit(func(st *State) {
		st.IsScreenSharing = true
	})

	slog.Info("screen share started", "track", screen.TrackID())
	return nil
}

// StopScreenShare は画面共有を終了し、有効ならカメラを再公開します。
func (m *TrackManager) StopScreenShare(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	return m.stopScreenShareLocked(ctx)
}

// handleScreenEnded はOS側の「共有を停止」で呼ばれます。
func (m *TrackManager) handleScreenEnded(screen ScreenTrack) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.screen != screen {
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), screenEndedTimeout)
	defer cancel()

	if err := m.stopScreenShareLocked(ctx); err != nil {
		slog.Warn("screen share teardown failed", "error", err)
	}
}

func (m *TrackManager) stopScreenShareLocked(ctx context.Context) error {
	screen := m.screen
	if screen == nil {
		return nil
	}
	screen.OnEnded(nil)

	var errs []error
	if m.client != nil {
		if err := m.client.Unpublish(ctx, screen); err != nil {
			errs = append(errs, fmt.Errorf("unpublish screen: %w", err))
		}
	}
	screen.Stop()
	if err := screen.Close(); err != nil {
		errs = append(errs, fmt.Errorf("close screen: %w", err))
	}
	m.screen = nil

	st := m.session.Snapshot()
	if m.camera != nil {
		if err := m.camera.SetEnabled(st.VideoEnabled); err != nil {
			errs = append(errs, fmt.Errorf("set camera enabled: %w", err))
		}
	}
	m.restoreCamera(ctx, st.VideoEnabled)

	m.session.commit(func(st *State) {
		st.IsScreenSharing = false
	})

	slog.Info("screen share stopped", "track", screen.TrackID())
	return errors.Join(errs...)
}

// restoreCamera は取り下げていたカメラを必要に応じて再公開します。
func (m *TrackManager) restoreCamera(ctx context.Context, republish bool) {
	if !republish || m.camera == nil || m.cameraPublished || m.client == nil {
		return
	}

	if err := m.client.Publish(ctx, m.camera); err != nil {
		slog.Warn("failed to republish camera", "error", err)
		return
	}
	m.cameraPublished = true
}

// Release は全てのローカルトラックを停止・解放します。
// 存在しないトラックは無視し、1つの失敗で残りの解放を止めません。
func (m *TrackManager) Release(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	var errs []error

	if screen := m.screen; screen != nil {
		screen.OnEnded(nil)
		if m.client != nil {
			if err := m.client.Unpublish(ctx, screen); err != nil {
				errs = append(errs, fmt.Errorf("unpublish screen: %w", err))
			}
		}
		if err := stopAndClose(screen); err != nil {
			errs = append(errs, fmt.Errorf("close screen: %w", err))
		}
	}

	if m.camera != nil {
		if err := stopAndClose(m.camera); err != nil {
			errs = append(errs, fmt.Errorf("close camera: %w", err))
		}
	}

	if m.microphone != nil {
		if err := stopAndClose(m.microphone); err != nil {
			errs = append(errs, fmt.Errorf("close microphone: %w", err))
		}
	}

	m.screen = nil
	m.camera = nil
	m.microphone = nil
	m.cameraPublished = false
	m.client = nil

	return errors.Join(errs...)
}

func stopAndClose(track LocalTrack) error {
	track.Stop()
	return track.Close()
}

func closeLocalTrack(track LocalTrack) {
	if err := stopAndClose(track); err != nil {
		slog.Debug("failed to close local track", "track", track.TrackID(), "error", err)
	}
}
