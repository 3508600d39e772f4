package connector

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v5"

	"github.com/onnwee/stream-hub/event"
	"github.com/onnwee/stream-hub/oauth"
	"github.com/onnwee/stream-hub/telemetry"
)

// CredentialRefresher is the slice of the credential manager the supervisor
// needs. *oauth.Manager satisfies it.
type CredentialRefresher interface {
	Refresh(ctx context.Context, platform event.Platform) (oauth.Credential, error)
}

const rateLimitFloor = 30 * time.Second

type runner struct {
	conn    Connector
	state   State
	lastErr string
	cancel  context.CancelFunc
	notify  chan struct{} // kicked by NotifyCredential, buffered 1
}

// Supervisor keeps one runner goroutine per registered connector and drives
// the Disconnected/Connecting/Connected/Reconnecting state machine around
// each of them.
type Supervisor struct {
	mu      sync.Mutex
	creds   CredentialRefresher
	runners map[event.Platform]*runner
	wg      sync.WaitGroup
}

func NewSupervisor(creds CredentialRefresher) *Supervisor {
	return &Supervisor{
		creds:   creds,
		runners: make(map[event.Platform]*runner),
	}
}

// Add registers a connector. Must be called before Start.
func (s *Supervisor) Add(conn Connector) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.runners[conn.Platform()] = &runner{
		conn:   conn,
		state:  StateDisconnected,
		notify: make(chan struct{}, 1),
	}
}

// Start launches a supervising goroutine per registered connector. The
// goroutines exit when ctx is cancelled; Wait blocks until they have.
func (s *Supervisor) Start(ctx context.Context) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, r := range s.runners {
		s.wg.Add(1)
		go func(r *runner) {
			defer s.wg.Done()
			s.supervise(ctx, r)
		}(r)
	}
}

// Wait blocks until all runner goroutines have exited.
func (s *Supervisor) Wait() {
	s.wg.Wait()
}

// NotifyCredential wakes a platform parked in Disconnected after a completed
// interactive auth, and restarts a live connection so it picks up the new
// token. The old connection is cancelled and fully drained before the next
// attempt starts.
func (s *Supervisor) NotifyCredential(platform event.Platform) {
	s.mu.Lock()
	r, ok := s.runners[platform]
	if !ok {
		s.mu.Unlock()
		return
	}
	select {
	case r.notify <- struct{}{}:
	default:
	}
	cancel := r.cancel
	s.mu.Unlock()
	if cancel != nil {
		cancel()
	}
}

// States returns a snapshot of every platform's connection status.
func (s *Supervisor) States() []Status {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]Status, 0, len(s.runners))
	for p, r := range s.runners {
		st := Status{
			Platform:  p,
			State:     r.state,
			Connected: r.state == StateConnected,
			LastError: r.lastErr,
		}
		if id := r.conn.Identity(); id != nil {
			st.Username = id.DisplayName
			if st.Username == "" {
				st.Username = id.Username
			}
			st.AvatarURL = id.AvatarURL
		}
		out = append(out, st)
	}
	return out
}

// Status returns one platform's status.
func (s *Supervisor) Status(platform event.Platform) (Status, bool) {
	for _, st := range s.States() {
		if st.Platform == platform {
			return st, true
		}
	}
	return Status{}, false
}

// Sender returns the platform's outbound sender if it is connected and
// send-capable.
func (s *Supervisor) Sender(platform event.Platform) (Sender, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	r, ok := s.runners[platform]
	if !ok || r.state != StateConnected {
		return nil, false
	}
	snd, ok := r.conn.(Sender)
	return snd, ok
}

// Identity returns the connected account for a platform, or nil.
func (s *Supervisor) Identity(platform event.Platform) *Identity {
	s.mu.Lock()
	defer s.mu.Unlock()
	r, ok := s.runners[platform]
	if !ok {
		return nil
	}
	return r.conn.Identity()
}

// Platforms lists registered platforms.
func (s *Supervisor) Platforms() []event.Platform {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]event.Platform, 0, len(s.runners))
	for p := range s.runners {
		out = append(out, p)
	}
	return out
}

func (s *Supervisor) setState(r *runner, st State, errMsg string) {
	s.mu.Lock()
	r.state = st
	r.lastErr = errMsg
	s.mu.Unlock()
	telemetry.SetConnected(string(r.conn.Platform()), st == StateConnected)
}

func (s *Supervisor) supervise(ctx context.Context, r *runner) {
	platform := r.conn.Platform()
	logger := slog.Default().With(slog.String("component", "supervisor"), slog.String("platform", string(platform)))
	bo := backoff.NewExponentialBackOff()
	bo.InitialInterval = time.Second
	bo.MaxInterval = time.Minute

	for {
		if ctx.Err() != nil {
			s.setState(r, StateDisconnected, "")
			return
		}

		s.setState(r, StateConnecting, "")
		cctx, cancel := context.WithCancel(ctx)
		s.mu.Lock()
		r.cancel = cancel
		s.mu.Unlock()

		err := r.conn.Run(cctx, func() {
			s.setState(r, StateConnected, "")
			bo.Reset()
			logger.Info("connected")
		})
		cancel()
		s.mu.Lock()
		r.cancel = nil
		s.mu.Unlock()

		if ctx.Err() != nil {
			s.setState(r, StateDisconnected, "")
			return
		}
		if err == nil {
			// Connection ended cleanly (credential restart or stream over);
			// reconnect promptly.
			bo.Reset()
			continue
		}

		class := Classify(err)
		logger.Warn("connection lost", slog.Any("err", err), slog.String("class", class.String()))

		switch class {
		case ErrorClassAuth:
			if _, rerr := s.creds.Refresh(ctx, platform); rerr != nil {
				logger.Warn("credential refresh failed, waiting for re-auth", slog.Any("err", rerr))
				telemetry.IncRefresh(string(platform), "error")
				s.setState(r, StateDisconnected, "needs re-auth: "+err.Error())
				if !s.park(ctx, r) {
					return
				}
				bo.Reset()
				continue
			}
			telemetry.IncRefresh(string(platform), "ok")
			bo.Reset()
			continue
		case ErrorClassFatal:
			logger.Error("fatal connection error, not retrying", slog.Any("err", err))
			s.setState(r, StateDisconnected, err.Error())
			if !s.park(ctx, r) {
				return
			}
			bo.Reset()
			continue
		default:
			wait := bo.NextBackOff()
			if class == ErrorClassRateLimit && wait < rateLimitFloor {
				wait = rateLimitFloor
			}
			s.setState(r, StateReconnecting, err.Error())
			telemetry.IncReconnect(string(platform))
			logger.Info("reconnecting", slog.Duration("in", wait))
			select {
			case <-ctx.Done():
				s.setState(r, StateDisconnected, "")
				return
			case <-r.notify:
				bo.Reset()
			case <-time.After(wait):
			}
		}
	}
}

// park blocks a Disconnected runner until a new credential arrives or the
// context ends. Returns false on context end.
func (s *Supervisor) park(ctx context.Context, r *runner) bool {
	select {
	case <-ctx.Done():
		return false
	case <-r.notify:
		return true
	}
}
