// Package router dispatches outbound chat to the connected platforms and
// synthesizes the sender's local echo.
package router

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"

	"github.com/onnwee/stream-hub/connector"
	"github.com/onnwee/stream-hub/event"
	"github.com/onnwee/stream-hub/telemetry"
)

// TargetAll fans a send out to every connected send-capable platform.
const TargetAll = "all"

// Registry is the slice of the supervisor the router needs: who is connected,
// who can send, and as whom.
type Registry interface {
	Sender(platform event.Platform) (connector.Sender, bool)
	Identity(platform event.Platform) *connector.Identity
	Platforms() []event.Platform
}

// Publisher receives the synthesized echo. The hub implements it.
type Publisher interface {
	PublishMessage(msg event.Message)
}

// Outcome is the per-platform result of one delivery attempt.
type Outcome struct {
	Platform event.Platform `json:"platform"`
	Err      error          `json:"-"`
}

// OK reports whether the attempt succeeded.
func (o Outcome) OK() bool { return o.Err == nil }

type Router struct {
	reg    Registry
	pub    Publisher
	logger *slog.Logger
}

func New(reg Registry, pub Publisher) *Router {
	return &Router{
		reg:    reg,
		pub:    pub,
		logger: slog.Default().With(slog.String("component", "router")),
	}
}

// Route delivers text to the target platform, or to every connected
// send-capable platform when target is "all". Each attempt is independent; one
// platform's failure never blocks another's attempt. If at least one attempt
// was issued, exactly one echo Message is synthesized and published, because
// most platforms do not loop self-sent messages back on their own stream.
func (r *Router) Route(ctx context.Context, target, text string) ([]Outcome, error) {
	if text == "" {
		return nil, errors.New("empty message text")
	}

	var targets []event.Platform
	if target == TargetAll {
		targets = r.reg.Platforms()
		sort.Slice(targets, func(i, j int) bool { return targets[i] < targets[j] })
	} else {
		p := event.Platform(target)
		if !p.Valid() {
			return nil, fmt.Errorf("unknown platform %q", target)
		}
		targets = []event.Platform{p}
	}

	var (
		outcomes  []Outcome
		attempted []event.Platform
	)
	for _, p := range targets {
		snd, ok := r.reg.Sender(p)
		if !ok {
			// Not connected or read-only; "all" just skips it, a named target
			// reports the miss.
			if target != TargetAll {
				outcomes = append(outcomes, Outcome{Platform: p, Err: fmt.Errorf("platform %s cannot send", p)})
			}
			continue
		}
		attempted = append(attempted, p)
		var err error
		telemetry.TimeFunc(telemetry.SendDuration, func() {
			err = snd.Send(ctx, text)
		})
		telemetry.IncSend(string(p), err == nil)
		if err != nil {
			r.logger.Warn("send failed", slog.String("platform", string(p)), slog.Any("err", err))
		}
		outcomes = append(outcomes, Outcome{Platform: p, Err: err})
	}

	// One echo per route call, no matter how many platforms were hit or how
	// many of them failed.
	if len(attempted) > 0 {
		r.pub.PublishMessage(r.echo(attempted[0], text))
	}
	return outcomes, nil
}

// echo builds the local echo under the connected account's display name for
// the first attempted platform, falling back to "me".
func (r *Router) echo(first event.Platform, text string) event.Message {
	user := "me"
	avatar := ""
	if id := r.reg.Identity(first); id != nil {
		if id.DisplayName != "" {
			user = id.DisplayName
		} else if id.Username != "" {
			user = id.Username
		}
		avatar = id.AvatarURL
	}
	return event.NewMessage(first, user, text, "", avatar, nil)
}
