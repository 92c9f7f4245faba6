package audio

import (
	"bytes"
	"context"
	"errors"
	"testing"
	"time"
)

func TestSplitFrames(t *testing.T) {
	cases := []struct {
		name string
		size int
		want []int
	}{
		{"empty", 0, nil},
		{"under one frame", 100, []int{100}},
		{"exactly one frame", 960, []int{960}},
		{"frame plus remainder", 1000, []int{960, 40}},
		{"two frames and remainder", 2500, []int{960, 960, 580}},
		{"exact multiple", 2880, []int{960, 960, 960}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			payload := make([]byte, tc.size)
			for i := range payload {
				payload[i] = byte(i)
			}
			frames := SplitFrames(payload)
			if len(frames) != len(tc.want) {
				t.Fatalf("frames=%d, want %d", len(frames), len(tc.want))
			}
			var joined []byte
			for i, frame := range frames {
				if len(frame) != tc.want[i] {
					t.Fatalf("frame[%d] len=%d, want %d", i, len(frame), tc.want[i])
				}
				joined = append(joined, frame...)
			}
			if !bytes.Equal(joined, payload) {
				t.Fatal("frames do not reassemble into the payload")
			}
		})
	}
}

func TestPacerSpacesFrames(t *testing.T) {
	payload := make([]byte, 2500)
	p := &Pacer{Interval: 5 * time.Millisecond}

	var stamps []time.Time
	err := p.Pace(context.Background(), payload, func(frame []byte) error {
		stamps = append(stamps, time.Now())
		return nil
	})
	if err != nil {
		t.Fatalf("Pace: %v", err)
	}
	if len(stamps) != 3 {
		t.Fatalf("emitted %d frames, want 3", len(stamps))
	}
	for i := 1; i < len(stamps); i++ {
		if gap := stamps[i].Sub(stamps[i-1]); gap < 5*time.Millisecond {
			t.Fatalf("gap[%d]=%v, want >= 5ms", i, gap)
		}
	}
}

func TestPacerZeroValueUsesDefaultInterval(t *testing.T) {
	var p Pacer

	var stamps []time.Time
	start := time.Now()
	err := p.Pace(context.Background(), make([]byte, 960*2), func([]byte) error {
		stamps = append(stamps, time.Now())
		return nil
	})
	if err != nil {
		t.Fatalf("Pace: %v", err)
	}
	if len(stamps) != 2 {
		t.Fatalf("emitted %d frames, want 2", len(stamps))
	}
	if gap := stamps[1].Sub(stamps[0]); gap < PaceInterval {
		t.Fatalf("gap=%v, want >= %v", gap, PaceInterval)
	}
	if elapsed := time.Since(start); elapsed < 2*PaceInterval {
		t.Fatalf("elapsed=%v, want >= %v", elapsed, 2*PaceInterval)
	}
}

func TestPacerDelaysAfterLastFrame(t *testing.T) {
	p := &Pacer{Interval: 20 * time.Millisecond}
	start := time.Now()
	if err := p.Pace(context.Background(), make([]byte, 100), func([]byte) error { return nil }); err != nil {
		t.Fatalf("Pace: %v", err)
	}
	if elapsed := time.Since(start); elapsed < 20*time.Millisecond {
		t.Fatalf("elapsed=%v, want >= 20ms after the final frame", elapsed)
	}
}

func TestPacerCancelAbortsBurst(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	p := &Pacer{Interval: 50 * time.Millisecond}

	emitted := 0
	err := p.Pace(ctx, make([]byte, 960*10), func([]byte) error {
		emitted++
		if emitted == 2 {
			cancel()
		}
		return nil
	})
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("err=%v, want context.Canceled", err)
	}
	if emitted != 2 {
		t.Fatalf("emitted=%d, want 2", emitted)
	}
}

func TestPacerEmitErrorStops(t *testing.T) {
	wantErr := errors.New("write failed")
	p := &Pacer{Interval: time.Millisecond}

	emitted := 0
	err := p.Pace(context.Background(), make([]byte, 960*4), func([]byte) error {
		emitted++
		if emitted == 2 {
			return wantErr
		}
		return nil
	})
	if !errors.Is(err, wantErr) {
		t.Fatalf("err=%v, want %v", err, wantErr)
	}
	if emitted != 2 {
		t.Fatalf("emitted=%d, want 2", emitted)
	}
}

func TestPacerEmptyPayload(t *testing.T) {
	p := &Pacer{}
	called := false
	if err := p.Pace(context.Background(), nil, func([]byte) error {
		called = true
		return nil
	}); err != nil {
		t.Fatalf("Pace: %v", err)
	}
	if called {
		t.Fatal("emit called for empty payload")
	}
}
