// Package realtime speaks the speech-AI endpoint's JSON event protocol and
// owns the outbound WebSocket connection to it.
package realtime

import (
	"encoding/base64"
	"encoding/json"
	"strings"
)

// Wire event types. Outbound events are the only shapes this bridge produces;
// inbound events outside this set decode to EventOther and are ignored.
const (
	TypeSessionUpdate    = "session.update"
	TypeInputAudioAppend = "input_audio_buffer.append"
	TypeAudioDelta       = "response.audio.delta"
	TypeTranscriptDelta  = "response.audio_transcript.delta"
	TypeError            = "error"
)

// EventKind is the closed set of inbound events the session dispatches on.
type EventKind int

const (
	EventOther EventKind = iota
	EventAudioDelta
	EventTranscriptDelta
	EventError
)

func (k EventKind) String() string {
	switch k {
	case EventAudioDelta:
		return "audio_delta"
	case EventTranscriptDelta:
		return "transcript_delta"
	case EventError:
		return "error"
	default:
		return "other"
	}
}

// Event is one decoded inbound event. Payload is set for EventAudioDelta,
// Text for EventTranscriptDelta, Raw for EventError and EventOther.
type Event struct {
	Kind    EventKind
	Type    string
	Payload []byte
	Text    string
	Raw     []byte
}

// SessionConfig is the session.update body sent once after connect.
type SessionConfig struct {
	Modalities        []string `json:"modalities"`
	Instructions      string   `json:"instructions"`
	Voice             string   `json:"voice,omitempty"`
	ToolChoice        string   `json:"tool_choice"`
	InputAudioFormat  string   `json:"input_audio_format"`
	OutputAudioFormat string   `json:"output_audio_format"`
}

type sessionUpdateEvent struct {
	Type    string        `json:"type"`
	Session SessionConfig `json:"session"`
}

type inputAudioAppendEvent struct {
	Type  string `json:"type"`
	Audio string `json:"audio"`
}

type wireEvent struct {
	Type  string `json:"type"`
	Delta string `json:"delta"`
}

// MarshalSessionUpdate builds the initial session.update event. Modality list,
// tool choice, and the pcm16 audio formats are fixed by the endpoint contract;
// instructions and voice come from configuration.
func MarshalSessionUpdate(instructions, voice string) ([]byte, error) {
	return json.Marshal(sessionUpdateEvent{
		Type: TypeSessionUpdate,
		Session: SessionConfig{
			Modalities:        []string{"text", "audio"},
			Instructions:      instructions,
			Voice:             voice,
			ToolChoice:        "auto",
			InputAudioFormat:  "pcm16",
			OutputAudioFormat: "pcm16",
		},
	})
}

// MarshalInputAudioAppend builds an input_audio_buffer.append event carrying
// raw PCM16 as base64.
func MarshalInputAudioAppend(pcm []byte) ([]byte, error) {
	return json.Marshal(inputAudioAppendEvent{
		Type:  TypeInputAudioAppend,
		Audio: base64.StdEncoding.EncodeToString(pcm),
	})
}

// ParseEvent decodes one inbound event. It is total: malformed JSON, unknown
// types, and undecodable audio all map to EventOther so the receive loop never
// dies on a bad frame.
func ParseEvent(data []byte) Event {
	var ev wireEvent
	if err := json.Unmarshal(data, &ev); err != nil {
		return Event{Kind: EventOther, Raw: data}
	}

	typ := strings.TrimSpace(ev.Type)
	switch typ {
	case TypeAudioDelta:
		payload, err := decodeBase64(ev.Delta)
		if err != nil {
			return Event{Kind: EventOther, Type: typ, Raw: data}
		}
		return Event{Kind: EventAudioDelta, Type: typ, Payload: payload}
	case TypeTranscriptDelta:
		return Event{Kind: EventTranscriptDelta, Type: typ, Text: ev.Delta}
	case TypeError:
		return Event{Kind: EventError, Type: typ, Raw: data}
	default:
		return Event{Kind: EventOther, Type: typ, Raw: data}
	}
}

func decodeBase64(s string) ([]byte, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil, nil
	}
	if b, err := base64.StdEncoding.DecodeString(s); err == nil {
		return b, nil
	}
	return base64.RawStdEncoding.DecodeString(s)
}
