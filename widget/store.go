// Package widget owns the shared overlay document: one composite JSON state
// mutated through typed partial-update actions, persisted with debounced
// writes, and broadcast to sessions as fold-composable deltas.
package widget

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"math"
	"os"
	"sync"
	"time"

	"github.com/onnwee/stream-hub/event"
	"github.com/onnwee/stream-hub/persist"
	"github.com/onnwee/stream-hub/telemetry"
)

// RecentEventsCap bounds the recentEvents list.
const RecentEventsCap = 50

// Action types and the sub-document each one targets.
const (
	ActionGlobalUpdate         = "global-update"
	ActionCounterUpdate        = "counter-update"
	ActionTimerUpdate          = "timer-update"
	ActionSocialUpdate         = "social-update"
	ActionProgressUpdate       = "progress-update"
	ActionGoalsUpdate          = "goals-update"
	ActionWheelUpdate          = "wheel-update"
	ActionHighlightUpdate      = "highlight-update"
	ActionActivityConfigUpdate = "activity-config-update"
	ActionActivityAdd          = "activity-add"
)

var actionTargets = map[string]string{
	ActionGlobalUpdate:         "global",
	ActionCounterUpdate:        "counter",
	ActionTimerUpdate:          "timer",
	ActionSocialUpdate:         "social",
	ActionProgressUpdate:       "progress",
	ActionGoalsUpdate:          "goals",
	ActionWheelUpdate:          "wheel",
	ActionHighlightUpdate:      "highlight",
	ActionActivityConfigUpdate: "activityConfig",
}

// Emitter receives the delta and signal envelopes the store produces. The hub
// implements it.
type Emitter interface {
	Publish(env event.Envelope)
}

// Store is the single writer of the widget document. All mutation goes
// through Apply; deltas are emitted in apply order under emitMu so sessions
// can fold them deterministically. The emitter is only ever called with mu
// released: the hub snapshots this store under its own lock, so publishing
// while holding the document lock would wedge subscribes against applies.
// Lock order is emitMu, then mu, then the hub's.
type Store struct {
	emitMu sync.Mutex // orders mutate+publish pairs
	mu     sync.Mutex // guards doc
	doc    map[string]any
	emit   Emitter
	saver  *persist.Coalescer
	path   string
	logger *slog.Logger
}

// NewStore loads the document from path, merging stored sub-documents over
// defaults, and wires the debounced persister. A missing file is not an
// error; the document starts from defaults.
func NewStore(path string, debounce time.Duration, emit Emitter) (*Store, error) {
	s := &Store{
		doc:    defaultDocument(),
		emit:   emit,
		path:   path,
		logger: slog.Default().With(slog.String("component", "widget")),
	}
	var stored map[string]any
	if err := persist.ReadJSON(path, &stored); err != nil {
		if !os.IsNotExist(err) {
			return nil, fmt.Errorf("load widget state: %w", err)
		}
	}
	for key, val := range stored {
		s.doc[key] = val
	}
	s.saver = persist.NewCoalescer(debounce, s.save)
	return s, nil
}

// Run services debounced persistence until ctx ends, flushing once on the way
// out.
func (s *Store) Run(ctx context.Context) {
	s.saver.Run(ctx)
}

// Snapshot returns a deep copy of the current document.
func (s *Store) Snapshot() map[string]any {
	s.mu.Lock()
	defer s.mu.Unlock()
	return copyMap(s.doc)
}

// Apply merges payload into the sub-document named by actionType and emits
// the matching delta. Invalid actions mutate nothing and emit nothing. The
// emitted payload is exactly the applied one, which is what makes replaying
// deltas onto a snapshot reproduce the document.
func (s *Store) Apply(actionType string, payload map[string]any) (event.WidgetDelta, error) {
	s.emitMu.Lock()
	defer s.emitMu.Unlock()

	s.mu.Lock()
	delta, changed, err := s.applyLocked(actionType, payload)
	s.mu.Unlock()
	if err != nil {
		return event.WidgetDelta{}, err
	}
	if changed {
		s.emitDelta(delta)
	}
	return delta, nil
}

// applyLocked mutates the document and reports whether a delta should be
// emitted. Callers hold s.mu; nothing here may call out.
func (s *Store) applyLocked(actionType string, payload map[string]any) (event.WidgetDelta, bool, error) {
	if actionType == ActionActivityAdd {
		return s.addActivityLocked(payload)
	}

	target, ok := actionTargets[actionType]
	if !ok {
		return event.WidgetDelta{}, false, fmt.Errorf("unknown action type %q", actionType)
	}
	if payload == nil {
		return event.WidgetDelta{}, false, fmt.Errorf("%s: empty payload", actionType)
	}
	sub, _ := s.doc[target].(map[string]any)
	if sub == nil {
		sub = map[string]any{}
	}
	if err := s.validate(actionType, sub, payload); err != nil {
		return event.WidgetDelta{}, false, err
	}

	// Shallow merge: keys present in payload overwrite, everything else is
	// preserved. wheel.winner only changes when the payload names it, which
	// the merge gives us for free.
	for k, v := range payload {
		sub[k] = v
	}
	s.doc[target] = sub

	return event.WidgetDelta{ActionType: actionType, Payload: payload}, true, nil
}

func (s *Store) validate(actionType string, sub, payload map[string]any) error {
	switch actionType {
	case ActionCounterUpdate:
		if v, ok := payload["count"]; ok {
			f, isNum := v.(float64)
			if !isNum || f != math.Trunc(f) {
				return fmt.Errorf("counter-update: count must be an integer, got %v", v)
			}
		}
	case ActionTimerUpdate:
		for _, key := range []string{"remaining", "duration"} {
			if v, ok := payload[key]; ok {
				f, isNum := v.(float64)
				if !isNum || f < 0 {
					return fmt.Errorf("timer-update: %s must be a non-negative number, got %v", key, v)
				}
			}
		}
	case ActionWheelUpdate:
		if spinning, _ := payload["isSpinning"].(bool); spinning {
			segments := sub["segments"]
			if v, ok := payload["segments"]; ok {
				segments = v
			}
			if list, _ := segments.([]any); len(list) == 0 {
				return fmt.Errorf("wheel-update: cannot spin with no segments")
			}
		}
	}
	return nil
}

func (s *Store) addActivityLocked(payload map[string]any) (event.WidgetDelta, bool, error) {
	id, _ := payload["id"].(string)
	if id == "" {
		return event.WidgetDelta{}, false, fmt.Errorf("activity-add: missing id")
	}
	delta := event.WidgetDelta{ActionType: ActionActivityAdd, Payload: payload}
	existing, _ := s.doc["recentEvents"].([]any)
	for _, e := range existing {
		if m, ok := e.(map[string]any); ok {
			if eid, _ := m["id"].(string); eid == id {
				// Duplicate publish of the same event; idempotent.
				return delta, false, nil
			}
		}
	}
	next := make([]any, 0, len(existing)+1)
	next = append(next, payload)
	next = append(next, existing...)
	if len(next) > RecentEventsCap {
		next = next[:RecentEventsCap]
	}
	s.doc["recentEvents"] = next

	return delta, true, nil
}

// emitDelta schedules persistence and publishes the delta. Callers hold
// emitMu but not mu, so publish order matches apply order without the hub
// ever being entered under the document lock.
func (s *Store) emitDelta(delta event.WidgetDelta) {
	telemetry.IncWidgetAction(delta.ActionType)
	if s.saver != nil {
		s.saver.Request()
	}
	if s.emit != nil {
		s.emit.Publish(event.MustEnvelope(event.TypeWidgetEvent, delta))
	}
}

// AddActivity feeds a published activity event into recentEvents. Wired as
// the hub's activity hook.
func (s *Store) AddActivity(ev event.ActivityEvent) {
	raw, err := json.Marshal(ev)
	if err != nil {
		return
	}
	var m map[string]any
	if err := json.Unmarshal(raw, &m); err != nil {
		return
	}
	if _, err := s.Apply(ActionActivityAdd, m); err != nil {
		s.logger.Warn("activity not recorded", slog.Any("err", err))
	}
}

func (s *Store) save() error {
	state := s.Snapshot()
	if err := persist.WriteJSONAtomic(s.path, state); err != nil {
		telemetry.IncWidgetSaveFailed()
		return fmt.Errorf("persist widget state: %w", err)
	}
	return nil
}

func copyMap(src map[string]any) map[string]any {
	out := make(map[string]any, len(src))
	for k, v := range src {
		out[k] = copyValue(v)
	}
	return out
}

func copyValue(v any) any {
	switch t := v.(type) {
	case map[string]any:
		return copyMap(t)
	case []any:
		out := make([]any, len(t))
		for i, e := range t {
			out[i] = copyValue(e)
		}
		return out
	default:
		return v
	}
}
