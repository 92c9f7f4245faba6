// Package audio re-chunks and paces PCM16 audio for the telephony leg.
package audio

import (
	"context"
	"time"
)

const (
	// SampleRate is the PCM16 sample rate both legs speak.
	SampleRate = 24000

	// FrameBytes is one 20 ms telephony frame: 24000 Hz * 0.020 s * 2 bytes.
	FrameBytes = 960

	// PaceInterval is the delay after each emitted frame. It is slightly
	// under the 20 ms of audio a frame carries, so playback buffers fill
	// faster than real time without flooding the carrier.
	PaceInterval = 18 * time.Millisecond
)

// SplitFrames cuts payload into FrameBytes-sized frames. The last frame keeps
// whatever remainder is left; an empty payload yields no frames. Frames alias
// the input slice.
func SplitFrames(payload []byte) [][]byte {
	if len(payload) == 0 {
		return nil
	}
	frames := make([][]byte, 0, (len(payload)+FrameBytes-1)/FrameBytes)
	for len(payload) > FrameBytes {
		frames = append(frames, payload[:FrameBytes])
		payload = payload[FrameBytes:]
	}
	return append(frames, payload)
}

// Pacer emits audio payloads frame by frame with a fixed inter-frame delay.
// The zero value uses PaceInterval.
type Pacer struct {
	Interval time.Duration
}

// Pace splits payload and feeds each frame to emit, sleeping after every
// frame, the last one included, so back-to-back bursts stay evenly spaced.
// It stops early when ctx is cancelled or emit fails.
func (p *Pacer) Pace(ctx context.Context, payload []byte, emit func([]byte) error) error {
	interval := p.Interval
	if interval <= 0 {
		interval = PaceInterval
	}
	timer := time.NewTimer(interval)
	defer timer.Stop()

	for _, frame := range SplitFrames(payload) {
		if err := ctx.Err(); err != nil {
			return err
		}
		if err := emit(frame); err != nil {
			return err
		}
		if !timer.Stop() {
			select {
			case <-timer.C:
			default:
			}
		}
		timer.Reset(interval)
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-timer.C:
		}
	}
	return nil
}
