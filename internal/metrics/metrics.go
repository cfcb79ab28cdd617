package metrics

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"sync"
	"time"

	goredis "github.com/go-redis/redis/v8"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds all Prometheus metrics for the trading engine.
type Metrics struct {
	QuotesTotal   prometheus.Counter
	BarsTotal     prometheus.Counter
	DroppedBars   prometheus.Counter
	FeedErrors    prometheus.Counter
	WSReconnects  prometheus.Counter
	ReadingsTotal prometheus.Counter
	RSIValue      prometheus.Gauge

	IntentsTotal       prometheus.Counter
	OrdersSubmitted    prometheus.Counter
	OrdersRejected     prometheus.Counter
	RateLimitedIntents prometheus.Counter

	// ConfirmUnknown is 1 while an order outcome is unresolved.
	ConfirmUnknown prometheus.Gauge
	// DrawdownHalted is 1 after the drawdown guard tripped.
	DrawdownHalted prometheus.Gauge

	SinkDrops prometheus.Counter

	DecisionCycleDur prometheus.Histogram
}

// NewMetrics registers and returns all Prometheus metrics.
func NewMetrics() *Metrics {
	m := &Metrics{
		QuotesTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "engine_quotes_total",
			Help: "Total quotes received from the venue stream",
		}),
		BarsTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "engine_bars_total",
			Help: "Total completed OHLC bars consumed",
		}),
		DroppedBars: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "engine_dropped_bars_total",
			Help: "Bars dropped because the decision queue was full",
		}),
		FeedErrors: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "engine_feed_errors_total",
			Help: "Malformed or unparseable stream payloads dropped",
		}),
		WSReconnects: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "engine_ws_reconnects_total",
			Help: "Total stream reconnection attempts",
		}),
		ReadingsTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "engine_indicator_readings_total",
			Help: "Total indicator readings produced",
		}),
		RSIValue: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "engine_rsi_value",
			Help: "Most recent RSI reading",
		}),
		IntentsTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "engine_intents_total",
			Help: "Trading intents produced by the state machine",
		}),
		OrdersSubmitted: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "engine_orders_submitted_total",
			Help: "Orders successfully submitted to the venue",
		}),
		OrdersRejected: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "engine_orders_rejected_total",
			Help: "Orders rejected by the venue or failed confirmation",
		}),
		RateLimitedIntents: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "engine_rate_limited_intents_total",
			Help: "Intents dropped by the local inter-trade interval guard",
		}),
		ConfirmUnknown: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "engine_confirmation_unknown",
			Help: "1 while an order outcome is unresolved and trading is latched",
		}),
		DrawdownHalted: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "engine_drawdown_halted",
			Help: "1 after the drawdown guard forced a trading halt",
		}),
		SinkDrops: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "engine_sink_drops_total",
			Help: "Broadcast events dropped by the event sink",
		}),
		DecisionCycleDur: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "engine_decision_cycle_duration_seconds",
			Help:    "Decision cycle latency per completed bar",
			Buckets: []float64{0.0001, 0.001, 0.01, 0.1, 0.5, 1, 2, 5},
		}),
	}

	prometheus.MustRegister(
		m.QuotesTotal,
		m.BarsTotal,
		m.DroppedBars,
		m.FeedErrors,
		m.WSReconnects,
		m.ReadingsTotal,
		m.RSIValue,
		m.IntentsTotal,
		m.OrdersSubmitted,
		m.OrdersRejected,
		m.RateLimitedIntents,
		m.ConfirmUnknown,
		m.DrawdownHalted,
		m.SinkDrops,
		m.DecisionCycleDur,
	)

	return m
}

// HealthStatus represents engine health for the /healthz endpoint.
type HealthStatus struct {
	mu sync.RWMutex

	StreamConnected bool      `json:"stream_connected"`
	SessionOK       bool      `json:"session_ok"`
	LastQuoteTime   time.Time `json:"last_quote_time"`
	RedisConnected  bool      `json:"redis_connected"`
	RedisLatencyMs  float64   `json:"redis_latency_ms"`
	LastCheckAt     time.Time `json:"last_check_at"`
	StartedAt       time.Time `json:"started_at"`
}

// NewHealthStatus returns a default health status.
func NewHealthStatus() *HealthStatus {
	return &HealthStatus{
		StartedAt: time.Now(),
	}
}

func (h *HealthStatus) SetStreamConnected(v bool) {
	h.mu.Lock()
	h.StreamConnected = v
	h.mu.Unlock()
}

func (h *HealthStatus) SetSessionOK(v bool) {
	h.mu.Lock()
	h.SessionOK = v
	h.mu.Unlock()
}

func (h *HealthStatus) SetLastQuoteTime(t time.Time) {
	h.mu.Lock()
	h.LastQuoteTime = t
	h.mu.Unlock()
}

// CheckRedis pings Redis and records latency + connectivity.
func (h *HealthStatus) CheckRedis(ctx context.Context, rdb *goredis.Client) {
	start := time.Now()
	err := rdb.Ping(ctx).Err()
	latency := time.Since(start)

	h.mu.Lock()
	h.RedisConnected = err == nil
	h.RedisLatencyMs = float64(latency.Microseconds()) / 1000.0
	h.LastCheckAt = time.Now()
	h.mu.Unlock()
}

// StartLivenessChecker runs periodic dependency checks.
func (h *HealthStatus) StartLivenessChecker(ctx context.Context, rdb *goredis.Client, interval time.Duration) {
	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				if rdb != nil {
					probeCtx, cancel := context.WithTimeout(ctx, 3*time.Second)
					h.CheckRedis(probeCtx, rdb)
					cancel()
				}
			}
		}
	}()
}

// ServeHTTP handles the /healthz endpoint.
func (h *HealthStatus) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	h.mu.RLock()
	defer h.mu.RUnlock()

	overallStatus := "healthy"
	httpCode := http.StatusOK
	if !h.StreamConnected || !h.SessionOK {
		overallStatus = "degraded"
		httpCode = http.StatusServiceUnavailable
	}

	quoteAge := ""
	if !h.LastQuoteTime.IsZero() {
		quoteAge = time.Since(h.LastQuoteTime).Round(time.Millisecond).String()
	}

	status := struct {
		Status          string  `json:"status"`
		Uptime          string  `json:"uptime"`
		StreamConnected bool    `json:"stream_connected"`
		SessionOK       bool    `json:"session_ok"`
		LastQuoteTime   string  `json:"last_quote_time"`
		QuoteAge        string  `json:"quote_age"`
		RedisConnected  bool    `json:"redis_connected"`
		RedisLatencyMs  float64 `json:"redis_latency_ms"`
		LastCheckAt     string  `json:"last_check_at"`
	}{
		Status:          overallStatus,
		Uptime:          time.Since(h.StartedAt).Round(time.Second).String(),
		StreamConnected: h.StreamConnected,
		SessionOK:       h.SessionOK,
		LastQuoteTime:   h.LastQuoteTime.Format(time.RFC3339),
		QuoteAge:        quoteAge,
		RedisConnected:  h.RedisConnected,
		RedisLatencyMs:  h.RedisLatencyMs,
		LastCheckAt:     h.LastCheckAt.Format(time.RFC3339),
	}

	w.Header().Set("Content-Type", "application/json")
	if httpCode != http.StatusOK {
		w.WriteHeader(httpCode)
	}
	json.NewEncoder(w).Encode(status)
}

// Server runs an HTTP server exposing /metrics and /healthz.
type Server struct {
	health *HealthStatus
	addr   string
	srv    *http.Server
}

// NewServer creates a metrics and health server.
func NewServer(addr string, health *HealthStatus) *Server {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	mux.HandleFunc("/healthz", health.ServeHTTP)

	return &Server{
		health: health,
		addr:   addr,
		srv: &http.Server{
			Addr:    addr,
			Handler: mux,
		},
	}
}

// Start launches the HTTP server in a goroutine.
func (s *Server) Start() {
	go func() {
		slog.Info("metrics server listening", slog.String("addr", s.addr))
		if err := s.srv.ListenAndServe(); err != http.ErrServerClosed {
			slog.Error("metrics server error", slog.Any("error", err))
		}
	}()
}

// Stop gracefully shuts down the metrics server.
func (s *Server) Stop(ctx context.Context) {
	s.srv.Shutdown(ctx)
}
