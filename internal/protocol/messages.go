// Package protocol defines the bus subjects and message shapes exchanged
// with the dialogue service and the renderer-facing state feed.
package protocol

import "time"

// Dialogue event types, matching the counseling service envelope.
const (
	EventTranscript = "transcript"
	EventResponse   = "response"
	EventAudio      = "audio"
	EventEmotion    = "emotion"
	EventStatus     = "status"
	EventError      = "error"
)

// Status texts carried by EventStatus.
const (
	StatusConnected = "connected"
	StatusThinking  = "thinking"
	StatusListening = "listening"
	StatusIdle      = "idle"
)

// DialogueEvent is one message from the dialogue service to the avatar
// session. Audio events carry base64 16-bit PCM mono 16 kHz; emotion events
// carry a discrete label and an intensity in [0,1].
type DialogueEvent struct {
	Type      string  `json:"type"`
	Text      string  `json:"text,omitempty"`
	Emotion   string  `json:"emotion,omitempty"`
	Intensity float64 `json:"intensity,omitempty"`
	AudioData string  `json:"audio_data,omitempty"`
	IsFinal   bool    `json:"is_final,omitempty"`
}

// StateUpdate announces an avatar-side phase change on the bus.
type StateUpdate struct {
	SessionID string    `json:"session_id"`
	Phase     string    `json:"phase"`
	Timestamp time.Time `json:"timestamp"`
}

const (
	subjectDialoguePrefix = "avatar.dialogue."
	subjectStatePrefix    = "avatar.state."
)

// DialogueSubject returns the per-session dialogue intake subject.
func DialogueSubject(sessionID string) string {
	return subjectDialoguePrefix + sessionID
}

// StateSubject returns the per-session state announcement subject.
func StateSubject(sessionID string) string {
	return subjectStatePrefix + sessionID
}
