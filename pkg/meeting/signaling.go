package meeting

import "context"

// RosterEntry は会議に登録された参加者の表示用メタデータです。
type RosterEntry struct {
	UID       string
	Name      string
	Role      string
	IsTeacher bool
}

// Signaling はバックエンドのシグナリングサービスです。
//
//go:generate mockgen -source signaling.go -destination mock/signaling.go
type Signaling interface {
	Roster(ctx context.Context, meetingID string) ([]RosterEntry, error)
	Leave(ctx context.Context, meetingID string) error
	End(ctx context.Context, meetingID string) error
}
