package ports

import "context"

// CaptureRequest describes the media a broadcaster wants to publish.
// Offer is the broadcaster's session description; an empty offer means the
// client could not open its camera or microphone.
type CaptureRequest struct {
	Video bool   `json:"video"`
	Audio bool   `json:"audio"`
	Offer string `json:"sdp"`
}

type CaptureHandle interface {
	ID() string
	// Answer is the session description returned to the broadcaster.
	Answer() string
}

type CaptureDevice interface {
	Acquire(ctx context.Context, req CaptureRequest) (CaptureHandle, error)
	Release(handle CaptureHandle) error
}

// ICECandidateAdder is implemented by capture handles that accept trickled
// ICE candidates from the broadcaster.
type ICECandidateAdder interface {
	AddICECandidate(candidate string) error
}
