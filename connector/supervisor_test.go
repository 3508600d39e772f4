package connector

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/onnwee/stream-hub/event"
	"github.com/onnwee/stream-hub/oauth"
)

type fakeRefresher struct {
	mu    sync.Mutex
	calls int
	err   error
}

func (f *fakeRefresher) Refresh(ctx context.Context, platform event.Platform) (oauth.Credential, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	if f.err != nil {
		return oauth.Credential{}, f.err
	}
	return oauth.Credential{AccessToken: "fresh"}, nil
}

func (f *fakeRefresher) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

// fakeConnector runs a scripted sequence of connection attempts.
type fakeConnector struct {
	platform event.Platform
	// errs is consumed one per Run call; after the script runs out the
	// connector blocks until cancelled.
	errs     []error
	connects atomic.Int32
	runs     atomic.Int32
}

func (f *fakeConnector) Platform() event.Platform { return f.platform }
func (f *fakeConnector) Identity() *Identity {
	return &Identity{Username: "acct", DisplayName: "Acct"}
}

func (f *fakeConnector) Run(ctx context.Context, ready func()) error {
	n := int(f.runs.Add(1)) - 1
	if n < len(f.errs) {
		if f.errs[n] == nil {
			ready()
			f.connects.Add(1)
			<-ctx.Done()
			return nil
		}
		return f.errs[n]
	}
	ready()
	f.connects.Add(1)
	<-ctx.Done()
	return nil
}

func waitFor(t *testing.T, timeout time.Duration, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatal("condition not reached in time")
}

func TestSupervisorConnects(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	conn := &fakeConnector{platform: event.Twitch}
	sup := NewSupervisor(&fakeRefresher{})
	sup.Add(conn)
	sup.Start(ctx)

	waitFor(t, 2*time.Second, func() bool {
		st, ok := sup.Status(event.Twitch)
		return ok && st.Connected
	})
	st, _ := sup.Status(event.Twitch)
	if st.Username != "Acct" {
		t.Errorf("Username = %q, want Acct", st.Username)
	}

	cancel()
	sup.Wait()
	st, _ = sup.Status(event.Twitch)
	if st.State != StateDisconnected {
		t.Errorf("state after shutdown = %v", st.State)
	}
}

func TestSupervisorAuthErrorRefreshesOnce(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	refresher := &fakeRefresher{}
	conn := &fakeConnector{
		platform: event.Twitch,
		errs:     []error{errors.New("401 unauthorized")},
	}
	sup := NewSupervisor(refresher)
	sup.Add(conn)
	sup.Start(ctx)

	waitFor(t, 2*time.Second, func() bool { return conn.connects.Load() >= 1 })
	if got := refresher.callCount(); got != 1 {
		t.Errorf("refresh calls = %d, want 1", got)
	}
}

func TestSupervisorParksUntilNotify(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	refresher := &fakeRefresher{err: oauth.ErrAuthRequired}
	conn := &fakeConnector{
		platform: event.Kick,
		errs:     []error{errors.New("401 unauthorized")},
	}
	sup := NewSupervisor(refresher)
	sup.Add(conn)
	sup.Start(ctx)

	waitFor(t, 2*time.Second, func() bool {
		st, ok := sup.Status(event.Kick)
		return ok && st.State == StateDisconnected && st.LastError != ""
	})
	// No retries while parked.
	time.Sleep(50 * time.Millisecond)
	if got := conn.runs.Load(); got != 1 {
		t.Errorf("runs while parked = %d, want 1", got)
	}

	refresher.mu.Lock()
	refresher.err = nil
	refresher.mu.Unlock()
	sup.NotifyCredential(event.Kick)

	waitFor(t, 2*time.Second, func() bool { return conn.connects.Load() >= 1 })
}

func TestSupervisorReconnectsOnTransient(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	conn := &fakeConnector{
		platform: event.TikTok,
		errs:     []error{errors.New("connection reset by peer")},
	}
	sup := NewSupervisor(&fakeRefresher{})
	sup.Add(conn)
	sup.Start(ctx)

	waitFor(t, 5*time.Second, func() bool { return conn.connects.Load() >= 1 })
	if got := conn.runs.Load(); got < 2 {
		t.Errorf("runs = %d, want >= 2", got)
	}
}

func TestSupervisorNotifyRestartsLiveConnection(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	conn := &fakeConnector{platform: event.Twitch}
	sup := NewSupervisor(&fakeRefresher{})
	sup.Add(conn)
	sup.Start(ctx)

	waitFor(t, 2*time.Second, func() bool { return conn.connects.Load() >= 1 })
	sup.NotifyCredential(event.Twitch)
	// The live connection is torn down and a replacement established.
	waitFor(t, 2*time.Second, func() bool { return conn.connects.Load() >= 2 })
}

func TestSupervisorSender(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	conn := &fakeConnector{platform: event.TikTok}
	sup := NewSupervisor(&fakeRefresher{})
	sup.Add(conn)

	if _, ok := sup.Sender(event.TikTok); ok {
		t.Error("Sender before connect should be unavailable")
	}
	sup.Start(ctx)
	waitFor(t, 2*time.Second, func() bool { return conn.connects.Load() >= 1 })
	// fakeConnector does not implement Sender.
	if _, ok := sup.Sender(event.TikTok); ok {
		t.Error("non-sender connector must not be returned")
	}
	if _, ok := sup.Sender(event.YouTube); ok {
		t.Error("unregistered platform must not be returned")
	}
}
