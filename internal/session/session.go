// Package session binds one avatar to one dialogue stream: it subscribes to
// the session's dialogue subject, feeds audio to the player, and runs the
// animation frame loop against whatever rig is currently attached.
package session

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/nats-io/nats.go"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/metric"

	"github.com/mienlabs/mien-core/internal/audio"
	"github.com/mienlabs/mien-core/internal/bus"
	"github.com/mienlabs/mien-core/internal/config"
	"github.com/mienlabs/mien-core/internal/engine"
	"github.com/mienlabs/mien-core/internal/eventstore"
	"github.com/mienlabs/mien-core/internal/protocol"
	"github.com/mienlabs/mien-core/internal/rig"
)

// Session owns the player, the engine, and the dialogue subscription for one
// avatar. Dialogue callbacks only stash signals under the signal mutex; the
// frame loop goroutine is the sole caller into the engine.
type Session struct {
	id     string
	cfg    config.Config
	log    *slog.Logger
	bus    *bus.Client
	store  *eventstore.Store
	player *audio.Player

	// lifeMu serializes AttachRig, DetachRig, and Close. The frame loop never
	// takes it, so stopping a loop while holding it cannot deadlock, and two
	// near-simultaneous renderer attaches cannot both start a loop.
	lifeMu   sync.Mutex
	closed   bool
	sub      *nats.Subscription
	eng      *engine.Engine
	loopStop context.CancelFunc
	loopDone chan struct{}

	// mu guards the signals exchanged between dialogue callbacks and the
	// frame loop.
	mu         sync.Mutex
	emotion    engine.Emotion
	intensity  float64
	emotionSet bool
	thinking   bool
	listening  bool
	lastPhase  engine.Phase

	wg sync.WaitGroup

	meter          metric.Meter
	frameDuration  metric.Float64Histogram
	framesTotal    metric.Int64Counter
	droppedChunks  metric.Int64Counter
	audioScheduled metric.Float64Counter
}

// New creates the session, records it in the event store, and subscribes to
// its dialogue subject. The engine is built later, when a rig attaches.
func New(ctx context.Context, cfg config.Config, busClient *bus.Client, store *eventstore.Store, player *audio.Player, log *slog.Logger) (*Session, error) {
	id := cfg.Session.ID
	if id == "" {
		id = uuid.NewString()
	}

	s := &Session{
		id:        id,
		cfg:       cfg,
		log:       log.With(slog.String("component", "session"), slog.String("session_id", id)),
		bus:       busClient,
		store:     store,
		player:    player,
		lastPhase: engine.PhaseIdle,
		meter:     otel.Meter("github.com/mienlabs/mien-core/runtime"),
	}
	s.initMetrics()

	if err := store.AppendSession(ctx, id, cfg.Session.Profile); err != nil {
		s.log.Warn("failed to record session", slog.String("error", err.Error()))
	}

	sub, err := busClient.Conn().Subscribe(protocol.DialogueSubject(id), s.handleDialogue)
	if err != nil {
		return nil, fmt.Errorf("subscribe dialogue subject: %w", err)
	}
	s.sub = sub

	s.log.Info("session started", slog.String("subject", protocol.DialogueSubject(id)))
	return s, nil
}

// initMetrics creates each instrument independently; a failed instrument
// stays nil and its recording sites skip it, the rest keep reporting.
func (s *Session) initMetrics() {
	warn := func(name string, err error) {
		if err != nil {
			s.log.Warn("failed to initialize metric",
				slog.String("metric", name), slog.String("error", err.Error()))
		}
	}
	var err error
	s.frameDuration, err = s.meter.Float64Histogram("mien_session_frame_duration_seconds",
		metric.WithDescription("Wall time spent per animation frame"))
	warn("mien_session_frame_duration_seconds", err)
	s.framesTotal, err = s.meter.Int64Counter("mien_session_frames_total",
		metric.WithDescription("Animation frames run"))
	warn("mien_session_frames_total", err)
	s.droppedChunks, err = s.meter.Int64Counter("mien_session_dropped_audio_chunks_total",
		metric.WithDescription("Audio chunks discarded due to decode failures"))
	warn("mien_session_dropped_audio_chunks_total", err)
	s.audioScheduled, err = s.meter.Float64Counter("mien_session_audio_scheduled_seconds_total",
		metric.WithDescription("Speech audio scheduled for playback"))
	warn("mien_session_audio_scheduled_seconds_total", err)
}

// recordFrameMetrics tolerates partially initialized instruments.
func (s *Session) recordFrameMetrics(ctx context.Context, frameStart time.Time) {
	if s.frameDuration != nil {
		s.frameDuration.Record(ctx, time.Since(frameStart).Seconds())
	}
	if s.framesTotal != nil {
		s.framesTotal.Add(ctx, 1)
	}
}

// ID reports the session identifier.
func (s *Session) ID() string { return s.id }

// Healthy reports whether the dialogue subscription is live.
func (s *Session) Healthy() bool {
	s.lifeMu.Lock()
	defer s.lifeMu.Unlock()
	return !s.closed && s.sub != nil && s.sub.IsValid()
}

// AttachRig builds a fresh engine on the given rig and starts the frame
// loop. Any previous engine is disposed first; engines never survive a rig
// swap, and at most one frame loop runs per session.
func (s *Session) AttachRig(r rig.Rig) error {
	s.lifeMu.Lock()
	defer s.lifeMu.Unlock()
	if s.closed {
		return fmt.Errorf("session %s closed", s.id)
	}
	s.stopLoopLocked()

	eng, err := engine.New(r, s.player, engine.Config{
		BreathScale:  s.cfg.Engine.BreathScale,
		FidgetScale:  s.cfg.Engine.FidgetScale,
		SpeakingDamp: s.cfg.Engine.SpeakingDamp,
		Seed:         s.cfg.Engine.Seed,
	}, s.log)
	if err != nil {
		return err
	}
	s.mu.Lock()
	if s.emotionSet {
		eng.SetEmotion(s.emotion, s.intensity)
	}
	s.mu.Unlock()
	s.eng = eng

	ctx, cancel := context.WithCancel(context.Background())
	s.loopStop = cancel
	s.loopDone = make(chan struct{})
	s.wg.Add(1)
	go s.runFrameLoop(ctx, eng, s.loopDone)

	s.log.Info("rig attached, frame loop running",
		slog.Int("frame_rate", s.cfg.Engine.FrameRate))
	return nil
}

// DetachRig stops the frame loop and disposes the engine. Safe when no rig
// is attached.
func (s *Session) DetachRig() {
	s.lifeMu.Lock()
	defer s.lifeMu.Unlock()
	s.stopLoopLocked()
	s.log.Info("rig detached")
}

// stopLoopLocked cancels the loop and waits for it to dispose the engine.
// Callers hold lifeMu; the loop only takes the signal mutex, so waiting here
// is safe.
func (s *Session) stopLoopLocked() {
	if s.loopStop == nil {
		return
	}
	s.loopStop()
	<-s.loopDone
	s.loopStop = nil
	s.loopDone = nil
	s.eng = nil
}

func (s *Session) runFrameLoop(ctx context.Context, eng *engine.Engine, done chan struct{}) {
	defer s.wg.Done()
	defer close(done)
	defer eng.Dispose()

	interval := time.Second / time.Duration(s.cfg.Engine.FrameRate)
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	start := time.Now()
	last := start

	for {
		select {
		case <-ctx.Done():
			return
		case now := <-ticker.C:
			dt := now.Sub(last).Seconds()
			last = now
			if dt <= 0 {
				continue
			}

			frameStart := time.Now()
			s.stepFrame(eng, dt, now.Sub(start).Seconds())
			s.recordFrameMetrics(ctx, frameStart)
		}
	}
}

// stepFrame drains pending dialogue signals, derives the conversation phase,
// and runs one engine update.
func (s *Session) stepFrame(eng *engine.Engine, dt, elapsed float64) {
	s.mu.Lock()
	if s.emotionSet {
		eng.SetEmotion(s.emotion, s.intensity)
		s.emotionSet = false
	}
	thinking := s.thinking
	listening := s.listening
	s.mu.Unlock()

	phase := engine.PhaseIdle
	switch {
	case s.player.IsAudible():
		phase = engine.PhaseSpeaking
	case thinking:
		phase = engine.PhaseThinking
	case listening:
		phase = engine.PhaseListening
	}
	eng.SetConversationPhase(phase)

	s.mu.Lock()
	changed := phase != s.lastPhase
	s.lastPhase = phase
	s.mu.Unlock()
	if changed {
		s.publishState(phase)
	}

	eng.Update(dt, elapsed)
}

func (s *Session) publishState(phase engine.Phase) {
	update := protocol.StateUpdate{
		SessionID: s.id,
		Phase:     phase.String(),
		Timestamp: time.Now().UTC(),
	}
	payload, err := json.Marshal(update)
	if err != nil {
		return
	}
	if err := s.bus.Conn().Publish(protocol.StateSubject(s.id), payload); err != nil {
		s.log.Warn("failed to publish state update", slog.String("error", err.Error()))
	}
}

// handleDialogue runs on the NATS callback goroutine. It must never touch
// the engine directly; it stashes signals for the frame loop and feeds the
// player, which is safe for concurrent use.
func (s *Session) handleDialogue(msg *nats.Msg) {
	var evt protocol.DialogueEvent
	if err := json.Unmarshal(msg.Data, &evt); err != nil {
		s.log.Warn("malformed dialogue event", slog.String("error", err.Error()))
		return
	}

	ctx := context.Background()
	switch evt.Type {
	case protocol.EventAudio:
		before := s.player.ScheduledTotal()
		if err := s.player.EnqueueBase64(evt.AudioData); err != nil {
			s.log.Warn("dropping undecodable audio chunk", slog.String("error", err.Error()))
			if s.droppedChunks != nil {
				s.droppedChunks.Add(ctx, 1)
			}
			return
		}
		if s.audioScheduled != nil {
			s.audioScheduled.Add(ctx, (s.player.ScheduledTotal() - before).Seconds())
		}

	case protocol.EventEmotion:
		em, known := engine.ParseEmotion(evt.Emotion)
		if !known {
			s.log.Debug("unknown emotion label, using neutral", slog.String("emotion", evt.Emotion))
		}
		s.mu.Lock()
		s.emotion = em
		s.intensity = evt.Intensity
		s.emotionSet = true
		s.mu.Unlock()
		s.record(ctx, eventstore.Record{Type: evt.Type, Emotion: evt.Emotion, Intensity: evt.Intensity})

	case protocol.EventStatus:
		s.mu.Lock()
		switch evt.Text {
		case protocol.StatusThinking:
			s.thinking = true
			s.listening = false
		case protocol.StatusConnected, protocol.StatusListening:
			s.thinking = false
			s.listening = true
		case protocol.StatusIdle:
			s.thinking = false
			s.listening = false
		}
		s.mu.Unlock()

	case protocol.EventTranscript:
		s.record(ctx, eventstore.Record{Type: evt.Type, Text: evt.Text})

	case protocol.EventResponse:
		s.record(ctx, eventstore.Record{Type: evt.Type, Text: evt.Text})
		if evt.IsFinal {
			s.mu.Lock()
			s.thinking = false
			s.mu.Unlock()
		}

	case protocol.EventError:
		s.log.Warn("dialogue service error", slog.String("text", evt.Text))
		s.player.Stop()
		s.mu.Lock()
		s.thinking = false
		s.mu.Unlock()

	default:
		s.log.Debug("ignoring unknown dialogue event", slog.String("type", evt.Type))
	}
}

func (s *Session) record(ctx context.Context, rec eventstore.Record) {
	rec.SessionID = s.id
	if err := s.store.AppendRecord(ctx, rec); err != nil {
		s.log.Warn("failed to record dialogue event",
			slog.String("type", rec.Type), slog.String("error", err.Error()))
	}
}

// Close drains the subscription, stops the frame loop, and disposes the
// player. Idempotent.
func (s *Session) Close() {
	s.lifeMu.Lock()
	if s.closed {
		s.lifeMu.Unlock()
		return
	}
	s.closed = true
	if s.sub != nil {
		_ = s.sub.Drain()
		s.sub = nil
	}
	s.stopLoopLocked()
	s.lifeMu.Unlock()

	s.wg.Wait()
	s.player.Dispose()
	s.log.Info("session closed")
}
