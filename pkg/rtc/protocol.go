package rtc

import (
	"github.com/HMasataka/meeting/pkg/meeting"
	"github.com/pion/webrtc/v4"
)

// クライアントからSFUへのJSON-RPCメソッド
const (
	MethodJoin      = "join"
	MethodOffer     = "offer"
	MethodAnswer    = "answer"
	MethodCandidate = "candidate"
	MethodPublish   = "publish"
	MethodUnpublish = "unpublish"
	MethodSubscribe = "subscribe"
	MethodLeave     = "leave"
)

// SFUからクライアントへの通知
const (
	NotifyOffer           = "offer"
	NotifyCandidate       = "candidate"
	NotifyPublished       = "published"
	NotifyUnpublished     = "unpublished"
	NotifyLeft            = "left"
	NotifyTokenWillExpire = "tokenWillExpire"
	NotifyTokenDidExpire  = "tokenDidExpire"
)

type JoinRequest struct {
	AppID     string                    `json:"app_id"`
	SessionID string                    `json:"session_id"`
	UserID    string                    `json:"user_id"`
	Token     string                    `json:"token"`
	Offer     webrtc.SessionDescription `json:"offer"`
}

type JoinResponse struct {
	Answer *webrtc.SessionDescription `json:"answer"`
}

type OfferRequest struct {
	Offer webrtc.SessionDescription `json:"offer"`
}

type OfferResponse struct {
	Answer *webrtc.SessionDescription `json:"answer"`
}

type AnswerRequest struct {
	Answer webrtc.SessionDescription `json:"answer"`
}

type ConnectionType string

const (
	ConnectionTypePublisher  ConnectionType = "publisher"
	ConnectionTypeSubscriber ConnectionType = "subscriber"
)

type CandidateRequest struct {
	ConnectionType ConnectionType          `json:"connection_type"`
	Candidate      webrtc.ICECandidateInit `json:"candidate"`
}

// TrackSource はワイヤ上のトラック発生源です。
type TrackSource string

const (
	TrackSourceCamera     TrackSource = "camera"
	TrackSourceMicrophone TrackSource = "microphone"
	TrackSourceScreen     TrackSource = "screen"
)

func (s TrackSource) toMeeting() meeting.TrackSource {
	switch s {
	case TrackSourceCamera:
		return meeting.TrackSourceCamera
	case TrackSourceScreen:
		return meeting.TrackSourceScreen
	default:
		return meeting.TrackSourceUnknown
	}
}

type TrackInfo struct {
	TrackID string            `json:"track_id"`
	Kind    meeting.MediaKind `json:"kind"`
	Source  TrackSource       `json:"source"`
}

type PublishRequest struct {
	Tracks []TrackInfo `json:"tracks"`
}

type UnpublishRequest struct {
	TrackIDs []string `json:"track_ids"`
}

type SubscribeRequest struct {
	UserID string            `json:"user_id"`
	Kind   meeting.MediaKind `json:"kind"`
}

type LeaveRequest struct {
	SessionID string `json:"session_id"`
	UserID    string `json:"user_id"`
}

// PublishedNotification は他の参加者がトラックを公開したことを知らせます。
type PublishedNotification struct {
	UserID string `json:"user_id"`
	TrackInfo
}

type UnpublishedNotification struct {
	UserID  string            `json:"user_id"`
	TrackID string            `json:"track_id"`
	Kind    meeting.MediaKind `json:"kind"`
}

type LeftNotification struct {
	UserID string `json:"user_id"`
	Reason string `json:"reason"`
}
