// Package telemetry provides Prometheus metrics and correlation-id aware logging helpers.
package telemetry

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	once sync.Once

	// Counters
	MessagesReceived    *prometheus.CounterVec // by platform
	ActivityEvents      *prometheus.CounterVec // by platform, type
	MessagesDropped     *prometheus.CounterVec // malformed inbound payloads, by platform
	SendsSucceeded      *prometheus.CounterVec // outbound sends, by platform
	SendsFailed         *prometheus.CounterVec
	Reconnects          *prometheus.CounterVec
	CredentialRefreshes *prometheus.CounterVec // by platform, result
	WidgetActions       *prometheus.CounterVec // by actionType
	WidgetSavesFailed   prometheus.Counter
	SessionsEvicted     prometheus.Counter

	// Histograms (seconds)
	SendDuration prometheus.Observer

	// Gauges
	SessionsGauge  prometheus.Gauge
	ConnectedGauge *prometheus.GaugeVec // 1=connected,0=not, by platform
)

// Init registers metrics (idempotent).
func Init() {
	once.Do(func() {
		MessagesReceived = promauto.NewCounterVec(prometheus.CounterOpts{Name: "hub_messages_received_total", Help: "Chat messages received from platforms"}, []string{"platform"})
		ActivityEvents = promauto.NewCounterVec(prometheus.CounterOpts{Name: "hub_activity_events_total", Help: "Community/monetization events received"}, []string{"platform", "type"})
		MessagesDropped = promauto.NewCounterVec(prometheus.CounterOpts{Name: "hub_messages_dropped_total", Help: "Malformed platform payloads dropped during normalization"}, []string{"platform"})
		SendsSucceeded = promauto.NewCounterVec(prometheus.CounterOpts{Name: "hub_sends_succeeded_total", Help: "Outbound chat sends that succeeded"}, []string{"platform"})
		SendsFailed = promauto.NewCounterVec(prometheus.CounterOpts{Name: "hub_sends_failed_total", Help: "Outbound chat sends that failed"}, []string{"platform"})
		Reconnects = promauto.NewCounterVec(prometheus.CounterOpts{Name: "hub_connector_reconnects_total", Help: "Connector reconnect attempts"}, []string{"platform"})
		CredentialRefreshes = promauto.NewCounterVec(prometheus.CounterOpts{Name: "hub_credential_refreshes_total", Help: "OAuth token refresh attempts"}, []string{"platform", "result"})
		WidgetActions = promauto.NewCounterVec(prometheus.CounterOpts{Name: "hub_widget_actions_total", Help: "Widget state actions applied"}, []string{"action"})
		WidgetSavesFailed = promauto.NewCounter(prometheus.CounterOpts{Name: "hub_widget_saves_failed_total", Help: "Widget document writes that failed"})
		SessionsEvicted = promauto.NewCounter(prometheus.CounterOpts{Name: "hub_sessions_evicted_total", Help: "Consumer sessions dropped for not keeping up"})
		SendDuration = promauto.NewHistogram(prometheus.HistogramOpts{Name: "hub_send_duration_seconds", Help: "Outbound send duration seconds", Buckets: prometheus.DefBuckets})
		SessionsGauge = promauto.NewGauge(prometheus.GaugeOpts{Name: "hub_sessions", Help: "Currently subscribed consumer sessions"})
		ConnectedGauge = promauto.NewGaugeVec(prometheus.GaugeOpts{Name: "hub_connector_connected", Help: "Connector connected=1 disconnected=0"}, []string{"platform"})
	})
}

// SetConnected records a connector's up/down state.
func SetConnected(platform string, up bool) {
	if ConnectedGauge == nil {
		return
	}
	if up {
		ConnectedGauge.WithLabelValues(platform).Set(1)
	} else {
		ConnectedGauge.WithLabelValues(platform).Set(0)
	}
}

// IncMessage counts one inbound chat message.
func IncMessage(platform string) {
	if MessagesReceived != nil {
		MessagesReceived.WithLabelValues(platform).Inc()
	}
}

// IncActivity counts one inbound community/monetization event.
func IncActivity(platform, typ string) {
	if ActivityEvents != nil {
		ActivityEvents.WithLabelValues(platform, typ).Inc()
	}
}

// IncDropped counts one malformed payload dropped during normalization.
func IncDropped(platform string) {
	if MessagesDropped != nil {
		MessagesDropped.WithLabelValues(platform).Inc()
	}
}

// IncSend counts one outbound send attempt by result.
func IncSend(platform string, ok bool) {
	if ok {
		if SendsSucceeded != nil {
			SendsSucceeded.WithLabelValues(platform).Inc()
		}
	} else if SendsFailed != nil {
		SendsFailed.WithLabelValues(platform).Inc()
	}
}

// IncReconnect counts one connector reconnect attempt.
func IncReconnect(platform string) {
	if Reconnects != nil {
		Reconnects.WithLabelValues(platform).Inc()
	}
}

// IncRefresh counts one credential refresh attempt by result.
func IncRefresh(platform, result string) {
	if CredentialRefreshes != nil {
		CredentialRefreshes.WithLabelValues(platform, result).Inc()
	}
}

// IncWidgetAction counts one applied widget action.
func IncWidgetAction(action string) {
	if WidgetActions != nil {
		WidgetActions.WithLabelValues(action).Inc()
	}
}

// IncWidgetSaveFailed counts one failed widget document write.
func IncWidgetSaveFailed() {
	if WidgetSavesFailed != nil {
		WidgetSavesFailed.Inc()
	}
}

// IncSessionEvicted counts one slow consumer drop.
func IncSessionEvicted() {
	if SessionsEvicted != nil {
		SessionsEvicted.Inc()
	}
}

// AddSessions adjusts the live session gauge.
func AddSessions(delta int) {
	if SessionsGauge != nil {
		SessionsGauge.Add(float64(delta))
	}
}

// TimeFunc measures the duration of fn and records in observer if non-nil.
func TimeFunc(obs prometheus.Observer, fn func()) time.Duration {
	start := time.Now()
	fn()
	d := time.Since(start)
	if obs != nil {
		obs.Observe(d.Seconds())
	}
	return d
}

// Correlation ID helpers ----------------------------------------------------
type corrKeyType struct{}

var corrKey corrKeyType

// WithCorrelation returns a new context embedding correlation id (if absent) and the id.
func WithCorrelation(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, corrKey, id)
}

// GetCorrelation returns correlation id or empty string.
func GetCorrelation(ctx context.Context) string {
	v := ctx.Value(corrKey)
	if s, ok := v.(string); ok {
		return s
	}
	return ""
}

// LoggerWithCorr returns a logger with corr attribute if present.
func LoggerWithCorr(ctx context.Context) *slog.Logger {
	if id := GetCorrelation(ctx); id != "" {
		return slog.Default().With(slog.String("corr", id))
	}
	return slog.Default()
}
