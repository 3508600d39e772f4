// Command stream-hub is the main entrypoint for the chat aggregation service.
// It:
//   - Loads configuration and initializes structured logging.
//   - Loads widget state and OAuth credentials from the data directory.
//   - Starts a connector per configured platform under a reconnecting
//     supervisor, plus background OAuth token refreshers.
//   - Exposes the HTTP server: the consumer websocket, OAuth flows,
//     /healthz, /status, and /metrics.
//
// Shutdown is graceful on SIGINT/SIGTERM.
package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	_ "net/http/pprof" //nolint:gosec // G108: pprof endpoints enabled only when ENABLE_PPROF=1
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"github.com/onnwee/stream-hub/config"
	"github.com/onnwee/stream-hub/connector"
	"github.com/onnwee/stream-hub/crypto"
	"github.com/onnwee/stream-hub/event"
	"github.com/onnwee/stream-hub/hub"
	"github.com/onnwee/stream-hub/kickapi"
	"github.com/onnwee/stream-hub/oauth"
	"github.com/onnwee/stream-hub/router"
	"github.com/onnwee/stream-hub/server"
	"github.com/onnwee/stream-hub/telemetry"
	"github.com/onnwee/stream-hub/twitchapi"
	"github.com/onnwee/stream-hub/widget"
	"github.com/onnwee/stream-hub/youtubeapi"
)

// hubEmitter breaks the construction cycle between the widget store (which
// emits deltas to the hub) and the hub (which snapshots the store).
type hubEmitter struct{ hub *hub.Hub }

func (e *hubEmitter) Publish(env event.Envelope) {
	if e.hub != nil {
		e.hub.Publish(env)
	}
}

func main() {
	// Load .env file if present (local dev convenience only; production relies on real env)
	_ = godotenv.Load(".env")

	// Configure logging (level + format). Defaults: level=info, format=text.
	lvl := slog.LevelInfo
	switch strings.ToLower(os.Getenv("LOG_LEVEL")) {
	case "debug":
		lvl = slog.LevelDebug
	case "warn":
		lvl = slog.LevelWarn
	case "error":
		lvl = slog.LevelError
	case "info", "":
		// keep default
	default:
		tmp := slog.New(slog.NewTextHandler(os.Stdout, nil))
		tmp.Warn("unknown LOG_LEVEL, using info", slog.String("value", os.Getenv("LOG_LEVEL")))
	}
	format := strings.ToLower(os.Getenv("LOG_FORMAT")) // text | json
	var handler slog.Handler
	switch format {
	case "json":
		handler = slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: lvl})
	default:
		handler = slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: lvl})
	}
	slog.SetDefault(slog.New(handler))
	slog.Info("logger initialized", slog.String("level", lvl.String()), slog.String("format", map[bool]string{true: "json", false: "text"}[format == "json"]))

	// Config
	cfg, err := config.Load()
	if err != nil {
		slog.Error("config load failed", slog.Any("err", err))
		os.Exit(1)
	}
	if err := os.MkdirAll(cfg.DataDir, 0o750); err != nil {
		slog.Error("data dir create failed", slog.Any("err", err))
		os.Exit(1)
	}

	// Metrics / telemetry init
	telemetry.Init()

	// Initialize OpenTelemetry tracing (optional; requires OTEL_EXPORTER_OTLP_ENDPOINT)
	shutdown, err := telemetry.InitTracing("stream-hub", "1.0.0")
	if err != nil {
		slog.Error("tracing initialization failed", slog.Any("err", err))
		os.Exit(1)
	}
	defer shutdown()

	// Credential store, encrypted at rest when ENCRYPTION_KEY is set.
	var enc crypto.Encryptor
	if key := os.Getenv("ENCRYPTION_KEY"); key != "" {
		enc, err = crypto.NewAESEncryptor(key)
		if err != nil {
			slog.Error("invalid ENCRYPTION_KEY", slog.Any("err", err))
			os.Exit(1)
		}
		slog.Info("credential encryption enabled")
	} else {
		slog.Warn("ENCRYPTION_KEY not set - credentials stored in plaintext")
	}
	creds, err := oauth.NewManager(oauth.NewFileStore(cfg.CredentialFile, enc))
	if err != nil {
		slog.Error("credential store load failed", slog.Any("err", err))
		os.Exit(1)
	}

	// Widget store and hub reference each other; the emitter shim breaks the cycle.
	emitter := &hubEmitter{}
	widgets, err := widget.NewStore(cfg.WidgetFile, cfg.PersistDebounce, emitter)
	if err != nil {
		slog.Error("widget store load failed", slog.Any("err", err))
		os.Exit(1)
	}
	h := hub.New(cfg.HistorySize, cfg.SessionQueue, widgets)
	emitter.hub = h
	h.SetActivityHook(widgets.AddActivity)

	// Root context with graceful shutdown
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	go widgets.Run(ctx)
	go widgets.RunTicker(ctx)

	// Provider-specific refresh grants
	creds.RegisterRefresher(event.Twitch, func(rctx context.Context, refreshToken string) (oauth.Credential, error) {
		res, err := twitchapi.RefreshToken(rctx, cfg.TwitchClientID, cfg.TwitchClientSecret, refreshToken)
		if err != nil {
			if errors.Is(err, twitchapi.ErrRejected) {
				return oauth.Credential{}, fmt.Errorf("%w: %v", oauth.ErrAuthRequired, err)
			}
			return oauth.Credential{}, err
		}
		return oauth.Credential{
			AccessToken:  res.AccessToken,
			RefreshToken: res.RefreshToken,
			Expiry:       oauth.ComputeExpiry(res.ExpiresIn),
		}, nil
	})
	creds.RegisterRefresher(event.Kick, func(rctx context.Context, refreshToken string) (oauth.Credential, error) {
		res, err := kickapi.RefreshToken(rctx, cfg.KickClientID, cfg.KickClientSecret, refreshToken)
		if err != nil {
			if errors.Is(err, kickapi.ErrRejected) {
				return oauth.Credential{}, fmt.Errorf("%w: %v", oauth.ErrAuthRequired, err)
			}
			return oauth.Credential{}, err
		}
		return oauth.Credential{
			AccessToken:  res.AccessToken,
			RefreshToken: res.RefreshToken,
			Expiry:       oauth.ComputeExpiry(res.ExpiresIn),
		}, nil
	})

	var yts *youtubeapi.Service
	if cfg.YouTubeEnabled() {
		yts = youtubeapi.New(cfg.YTClientID, cfg.YTClientSecret, cfg.YTRedirectURI, cfg.YTScopes)
		creds.RegisterRefresher(event.YouTube, yts.Refresh)
	}

	// Connectors
	sup := connector.NewSupervisor(creds)
	if cfg.TwitchEnabled() {
		sup.Add(connector.NewTwitchConnector(cfg.TwitchClientID, cfg.TwitchChannel, creds, h))
		creds.StartAutoRefresh(ctx, event.Twitch, 5*time.Minute, 15*time.Minute)
	}
	if cfg.KickEnabled() {
		sup.Add(connector.NewKickConnector(cfg.KickChannel, cfg.KickChatroomID, creds, h))
		creds.StartAutoRefresh(ctx, event.Kick, 5*time.Minute, 15*time.Minute)
	}
	if yts != nil {
		sup.Add(connector.NewYouTubeConnector(yts, creds, h))
		creds.StartAutoRefresh(ctx, event.YouTube, 10*time.Minute, 20*time.Minute)
	}
	if cfg.TikTokEnabled() {
		sup.Add(connector.NewTikTokConnector(cfg.TikTokBridgeURL, cfg.TikTokUsername, h))
	}
	slog.Info("starting connectors", slog.Int("count", len(sup.Platforms())))
	sup.Start(ctx)

	rt := router.New(sup, h)

	// Enable pprof profiling endpoints in debug mode (ENABLE_PPROF=1)
	if os.Getenv("ENABLE_PPROF") == "1" {
		pprofAddr := os.Getenv("PPROF_ADDR")
		if pprofAddr == "" {
			pprofAddr = "localhost:6060"
		}
		go func() {
			slog.Info("pprof profiling enabled", slog.String("addr", pprofAddr))
			srv := &http.Server{
				Addr:              pprofAddr,
				Handler:           nil, // default mux exposes /debug/pprof
				ReadHeaderTimeout: 5 * time.Second,
				ReadTimeout:       10 * time.Second,
				WriteTimeout:      10 * time.Second,
				IdleTimeout:       60 * time.Second,
			}
			if err := srv.ListenAndServe(); err != nil {
				slog.Error("pprof server error", slog.Any("err", err))
			}
		}()
	}

	// HTTP server
	handlers := server.NewHandlers(cfg, h, widgets, rt, sup, creds, yts)
	go func() {
		if err := server.Start(ctx, handlers, cfg.HTTPAddr); err != nil {
			slog.Error("http server exited with error", slog.Any("err", err))
		}
	}()

	// Block until shutdown signal
	<-ctx.Done()
	slog.Info("shutting down")
	sup.Wait()
}
