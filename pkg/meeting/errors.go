package meeting

import "errors"

var (
	// ErrAlreadyJoined join is called while a session is connecting or ready
	ErrAlreadyJoined = errors.New("meeting session already joined")
	// ErrJoinTimeout the join handshake did not complete in time
	ErrJoinTimeout = errors.New("join handshake timed out")
	// ErrJoinFailed the transport client could not be created or joined
	ErrJoinFailed = errors.New("failed to join meeting")
	// ErrRosterUnavailable the participant roster could not be fetched
	ErrRosterUnavailable = errors.New("failed to fetch participant roster")
	// ErrLocalMediaUnavailable camera or microphone could not be acquired; viewing only
	ErrLocalMediaUnavailable = errors.New("local media unavailable, joined in view mode")
	// ErrConnectionLost the transport connection was disconnected
	ErrConnectionLost = errors.New("connection lost")
	// ErrTokenWillExpire the join token is about to expire
	ErrTokenWillExpire = errors.New("token will expire soon")
	// ErrTokenExpired the join token expired and the transport session was left
	ErrTokenExpired = errors.New("token expired, please rejoin")
	// ErrNotJoined the operation requires a joined session
	ErrNotJoined = errors.New("meeting session not joined")
	// ErrScreenShareFailed screen capture or publish failed
	ErrScreenShareFailed = errors.New("failed to start screen share")
)

// IsFatal は err が参加試行を失敗させる種類のエラーかどうかを返します。
func IsFatal(err error) bool {
	return errors.Is(err, ErrJoinTimeout) ||
		errors.Is(err, ErrJoinFailed) ||
		errors.Is(err, ErrRosterUnavailable)
}
