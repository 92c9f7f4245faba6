// Package session runs one call: a duplex relay between a telephony
// WebSocket and a realtime speech endpoint.
package session

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/voxbridge/voxbridge/pkg/bridge/audio"
	"github.com/voxbridge/voxbridge/pkg/bridge/realtime"
	"github.com/voxbridge/voxbridge/pkg/bridge/telephony"
)

// State is the call lifecycle. Transitions only move forward.
type State int32

const (
	StateConnecting State = iota
	StateStreaming
	StateClosing
	StateClosed
)

func (s State) String() string {
	switch s {
	case StateConnecting:
		return "connecting"
	case StateStreaming:
		return "streaming"
	case StateClosing:
		return "closing"
	case StateClosed:
		return "closed"
	default:
		return "unknown"
	}
}

// TelephonyConn is the subset of *websocket.Conn the session uses on the
// telephony side.
type TelephonyConn interface {
	ReadMessage() (int, []byte, error)
	WriteMessage(messageType int, data []byte) error
	WriteControl(messageType int, data []byte, deadline time.Time) error
	SetWriteDeadline(t time.Time) error
	SetReadDeadline(t time.Time) error
	SetReadLimit(limit int64)
	SetPongHandler(h func(string) error)
	Close() error
}

// RealtimeLeg is the outbound speech-AI connection.
type RealtimeLeg interface {
	SendAudio(ctx context.Context, pcm []byte) error
	Events() <-chan realtime.Event
	Close() error
}

// DialFunc opens the realtime leg for a call.
type DialFunc func(ctx context.Context) (RealtimeLeg, error)

type Config struct {
	WriteTimeout    time.Duration
	ReadTimeout     time.Duration
	PingInterval    time.Duration
	MaxMessageBytes int64
	PaceInterval    time.Duration
}

type Dependencies struct {
	Conn      TelephonyConn
	Dial      DialFunc
	Logger    *slog.Logger
	SessionID string
	Config    Config
}

// CallSession bridges one accepted telephony socket to one realtime
// connection. Create with New, drive with Run.
type CallSession struct {
	conn   TelephonyConn
	dial   DialFunc
	logger *slog.Logger
	id     string
	cfg    Config
	pacer  audio.Pacer

	mu     sync.Mutex
	ctx    context.Context
	cancel context.CancelFunc
	rt     RealtimeLeg

	writeMu   sync.Mutex
	state     atomic.Int32
	closeOnce sync.Once
}

func New(deps Dependencies) (*CallSession, error) {
	if deps.Conn == nil {
		return nil, fmt.Errorf("telephony connection is required")
	}
	if deps.Dial == nil {
		return nil, fmt.Errorf("realtime dialer is required")
	}
	if deps.Logger == nil {
		deps.Logger = slog.Default()
	}
	if deps.SessionID == "" {
		deps.SessionID = uuid.NewString()
	}
	if deps.Config.WriteTimeout <= 0 {
		deps.Config.WriteTimeout = 5 * time.Second
	}
	if deps.Config.ReadTimeout <= 0 {
		deps.Config.ReadTimeout = 60 * time.Second
	}
	if deps.Config.PingInterval <= 0 {
		deps.Config.PingInterval = 15 * time.Second
	}
	if deps.Config.MaxMessageBytes <= 0 {
		deps.Config.MaxMessageBytes = 1 << 20
	}
	return &CallSession{
		conn:   deps.Conn,
		dial:   deps.Dial,
		logger: deps.Logger.With("session_id", deps.SessionID),
		id:     deps.SessionID,
		cfg:    deps.Config,
		pacer:  audio.Pacer{Interval: deps.Config.PaceInterval},
	}, nil
}

func (s *CallSession) ID() string { return s.id }

func (s *CallSession) State() State { return State(s.state.Load()) }

// Run drives the call until either leg ends or ctx is cancelled. It always
// returns with both legs joined and the session in StateClosed.
func (s *CallSession) Run(ctx context.Context) error {
	runCtx, cancel := context.WithCancel(ctx)
	s.mu.Lock()
	s.ctx, s.cancel = runCtx, cancel
	s.mu.Unlock()
	defer cancel()
	defer s.state.Store(int32(StateClosed))

	rt, err := s.dial(runCtx)
	if err != nil {
		s.beginClose()
		return fmt.Errorf("realtime dial: %w", err)
	}
	s.mu.Lock()
	s.rt = rt
	s.mu.Unlock()

	if !s.transition(StateConnecting, StateStreaming) {
		// Closed while dialing.
		s.beginClose()
		return nil
	}
	s.logger.Info("call streaming")

	s.conn.SetReadLimit(s.cfg.MaxMessageBytes)
	_ = s.conn.SetReadDeadline(time.Now().Add(s.cfg.ReadTimeout))
	s.conn.SetPongHandler(func(string) error {
		return s.conn.SetReadDeadline(time.Now().Add(s.cfg.ReadTimeout))
	})
	go s.pingLoop(runCtx)

	errs := make(chan error, 2)
	go func() { errs <- s.runTelephonyLeg(runCtx, rt) }()
	go func() { errs <- s.runRealtimeLeg(runCtx, rt) }()

	first := <-errs
	s.beginClose()
	<-errs

	if first != nil {
		s.logger.Warn("call ended with error", "error", first)
	} else {
		s.logger.Info("call ended")
	}
	return first
}

// Close tears the call down from outside, e.g. at shutdown. Safe to call at
// any point, any number of times.
func (s *CallSession) Close() {
	s.beginClose()
}

func (s *CallSession) runTelephonyLeg(ctx context.Context, rt RealtimeLeg) error {
	for {
		_, data, err := s.conn.ReadMessage()
		if err != nil {
			if s.State() >= StateClosing || isExpectedClose(err) {
				return nil
			}
			return fmt.Errorf("telephony read: %w", err)
		}
		_ = s.conn.SetReadDeadline(time.Now().Add(s.cfg.ReadTimeout))

		env := telephony.Parse(data)
		switch env.Kind {
		case telephony.KindAudioData:
			if env.Silent() {
				s.logger.Debug("dropping silent audio frame")
				continue
			}
			if err := rt.SendAudio(ctx, env.Payload); err != nil {
				return fmt.Errorf("forward caller audio: %w", err)
			}
		case telephony.KindStopAudio:
			s.logger.Debug("telephony stop received")
			return nil
		case telephony.KindKeepAlive:
			// Liveness only.
		default:
			s.logger.Debug("ignoring telephony envelope", "kind", string(env.Kind))
		}
	}
}

func (s *CallSession) runRealtimeLeg(ctx context.Context, rt RealtimeLeg) error {
	for {
		select {
		case <-ctx.Done():
			return nil
		case ev, ok := <-rt.Events():
			if !ok {
				if s.State() >= StateClosing {
					return nil
				}
				return errors.New("realtime stream ended")
			}
			switch ev.Kind {
			case realtime.EventAudioDelta:
				if err := s.pacer.Pace(ctx, ev.Payload, s.sendAudioFrame); err != nil {
					if errors.Is(err, context.Canceled) {
						return nil
					}
					return fmt.Errorf("pace assistant audio: %w", err)
				}
			case realtime.EventTranscriptDelta:
				s.logger.Debug("assistant transcript delta", "text", ev.Text)
			case realtime.EventError:
				s.logger.Warn("realtime error event", "payload", string(ev.Raw))
			}
		}
	}
}

// sendAudioFrame writes one paced frame back to the caller. After close it is
// a no-op so an in-flight burst drains without error noise.
func (s *CallSession) sendAudioFrame(frame []byte) error {
	if s.State() >= StateClosing {
		return nil
	}
	data, err := telephony.MarshalAudioData(frame)
	if err != nil {
		return err
	}
	return s.writeMessage(data)
}

func (s *CallSession) writeMessage(data []byte) error {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()
	_ = s.conn.SetWriteDeadline(time.Now().Add(s.cfg.WriteTimeout))
	return s.conn.WriteMessage(websocket.TextMessage, data)
}

func (s *CallSession) pingLoop(ctx context.Context) {
	ticker := time.NewTicker(s.cfg.PingInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := s.conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(s.cfg.WriteTimeout)); err != nil {
				return
			}
		}
	}
}

func (s *CallSession) beginClose() {
	s.closeOnce.Do(func() {
		s.transition(StateConnecting, StateClosing)
		s.transition(StateStreaming, StateClosing)

		s.mu.Lock()
		cancel, rt := s.cancel, s.rt
		s.mu.Unlock()
		if cancel != nil {
			cancel()
		}

		// Best effort: tell the carrier to drop buffered playback.
		if stop, err := telephony.MarshalStopAudio(); err == nil {
			s.writeMu.Lock()
			_ = s.conn.SetWriteDeadline(time.Now().Add(time.Second))
			_ = s.conn.WriteMessage(websocket.TextMessage, stop)
			s.writeMu.Unlock()
		}

		if rt != nil {
			_ = rt.Close()
		}
		_ = s.conn.Close()
	})
}

func (s *CallSession) transition(from, to State) bool {
	return s.state.CompareAndSwap(int32(from), int32(to))
}

func isExpectedClose(err error) bool {
	if err == nil {
		return false
	}
	if websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway, websocket.CloseNoStatusReceived) {
		return true
	}
	msg := err.Error()
	return strings.Contains(msg, "use of closed network connection") ||
		strings.Contains(msg, "websocket: close sent")
}
