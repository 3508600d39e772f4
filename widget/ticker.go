package widget

import (
	"context"
	"log/slog"
	"time"

	"github.com/onnwee/stream-hub/event"
)

// RunTicker advances the timer once per second while it is running. Countdown
// reaching zero stops the timer and emits one distinguished timer-finished
// signal; the tick itself goes through the same apply path as any other
// update so sessions fold it like a normal delta.
func (s *Store) RunTicker(ctx context.Context) {
	ticker := time.NewTicker(time.Second)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.tick()
		}
	}
}

func (s *Store) tick() {
	s.emitMu.Lock()
	defer s.emitMu.Unlock()

	s.mu.Lock()
	timer, _ := s.doc["timer"].(map[string]any)
	running, _ := timer["isRunning"].(bool)
	if timer == nil || !running {
		s.mu.Unlock()
		return
	}
	remaining, _ := timer["remaining"].(float64)
	mode, _ := timer["mode"].(string)

	var payload map[string]any
	finished := false
	switch {
	case mode == "countup":
		payload = map[string]any{"remaining": remaining + 1}
	case remaining-1 > 0:
		payload = map[string]any{"remaining": remaining - 1}
	default:
		// Countdown finished: stop in the same delta that zeroes the clock,
		// then signal once.
		payload = map[string]any{"remaining": float64(0), "isRunning": false}
		finished = true
	}
	delta, changed, err := s.applyLocked(ActionTimerUpdate, payload)
	s.mu.Unlock()

	if err != nil {
		s.logger.Warn("timer tick failed", slog.Any("err", err))
		return
	}
	if changed {
		s.emitDelta(delta)
	}
	if finished && s.emit != nil {
		s.emit.Publish(event.MustEnvelope(event.TypeTimerFinished, map[string]any{
			"finishedAt": time.Now().UTC().Format(time.RFC3339),
		}))
	}
}
