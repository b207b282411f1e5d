package protocol

import (
	"encoding/json"
	"testing"
)

// The envelope must decode the dialogue service's wire shape unchanged.
func TestDialogueEventDecodesServiceEnvelope(t *testing.T) {
	raw := `{"type":"emotion","emotion":"empathetic","intensity":0.7,"is_final":false}`
	var evt DialogueEvent
	if err := json.Unmarshal([]byte(raw), &evt); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if evt.Type != EventEmotion {
		t.Fatalf("expected emotion event, got %q", evt.Type)
	}
	if evt.Emotion != "empathetic" || evt.Intensity != 0.7 {
		t.Fatalf("unexpected payload: %+v", evt)
	}

	raw = `{"type":"audio","audio_data":"AAAA","is_final":true}`
	if err := json.Unmarshal([]byte(raw), &evt); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if evt.Type != EventAudio || evt.AudioData != "AAAA" || !evt.IsFinal {
		t.Fatalf("unexpected audio payload: %+v", evt)
	}
}

func TestSubjectsArePerSession(t *testing.T) {
	if got := DialogueSubject("abc"); got != "avatar.dialogue.abc" {
		t.Fatalf("unexpected dialogue subject %q", got)
	}
	if got := StateSubject("abc"); got != "avatar.state.abc" {
		t.Fatalf("unexpected state subject %q", got)
	}
}
