// Package telephony implements the media-streaming wire protocol spoken by the
// telephony platform over its call WebSocket. The envelope schema (field names
// and nesting included) is a fixed external contract.
package telephony

import (
	"encoding/base64"
	"encoding/json"
	"strings"
)

// Kind discriminates telephony envelopes.
type Kind string

const (
	KindAudioData Kind = "AudioData"
	KindStopAudio Kind = "StopAudio"
	KindKeepAlive Kind = "KeepAlive"

	// KindOther covers malformed frames and kinds this bridge does not handle.
	// They are logged and dropped, never fatal.
	KindOther Kind = "Other"
)

// Envelope is the decoded form of one telephony media frame.
//
// Payload is only meaningful for AudioData. Raw carries the original bytes for
// Other so callers can log what they dropped.
type Envelope struct {
	Kind    Kind
	Payload []byte
	Raw     []byte
}

// Silent reports whether the envelope is an AudioData frame with an empty
// decoded payload. Silent frames carry no samples and must not be forwarded
// upstream.
func (e Envelope) Silent() bool {
	return e.Kind == KindAudioData && len(e.Payload) == 0
}

type wireEnvelope struct {
	Kind      string         `json:"kind"`
	AudioData *wireAudioData `json:"audioData,omitempty"`
}

type wireAudioData struct {
	Data string `json:"data"`
}

// Parse decodes one telephony frame. It is total: malformed JSON, an unknown
// kind, or undecodable audio all map to Other rather than an error.
func Parse(data []byte) Envelope {
	var env wireEnvelope
	if err := json.Unmarshal(data, &env); err != nil {
		return Envelope{Kind: KindOther, Raw: data}
	}

	switch Kind(strings.TrimSpace(env.Kind)) {
	case KindAudioData:
		if env.AudioData == nil {
			return Envelope{Kind: KindOther, Raw: data}
		}
		payload, err := decodeBase64(env.AudioData.Data)
		if err != nil {
			return Envelope{Kind: KindOther, Raw: data}
		}
		return Envelope{Kind: KindAudioData, Payload: payload}
	case KindStopAudio:
		return Envelope{Kind: KindStopAudio}
	case KindKeepAlive:
		return Envelope{Kind: KindKeepAlive}
	default:
		return Envelope{Kind: KindOther, Raw: data}
	}
}

// MarshalAudioData encodes raw PCM16 into an outbound AudioData envelope.
func MarshalAudioData(payload []byte) ([]byte, error) {
	return json.Marshal(wireEnvelope{
		Kind:      string(KindAudioData),
		AudioData: &wireAudioData{Data: base64.StdEncoding.EncodeToString(payload)},
	})
}

// MarshalStopAudio encodes the outbound StopAudio control envelope.
func MarshalStopAudio() ([]byte, error) {
	return json.Marshal(wireEnvelope{Kind: string(KindStopAudio)})
}

func decodeBase64(s string) ([]byte, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil, nil
	}
	if b, err := base64.StdEncoding.DecodeString(s); err == nil {
		return b, nil
	}
	// Some senders omit padding.
	return base64.RawStdEncoding.DecodeString(s)
}
