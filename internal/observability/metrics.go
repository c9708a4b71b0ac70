package observability

import (
	"context"
	"io"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/yungbote/ielts-tutor-backend/internal/platform/logger"
)

type Metrics struct {
	apiRequests *CounterVec
	apiLatency  *HistogramVec
	apiInflight *Gauge
	apiReqError *Counter

	aiRequests   *CounterVec
	aiLatency    *HistogramVec
	keyRotations *CounterVec
	vocabCache   *CounterVec
	ttsRequests  *CounterVec

	voiceEvents    *CounterVec
	voiceSessions  *Gauge
	replication    *CounterVec
	sseBusLag      *HistogramVec
	redisUp        *Gauge
	redisPing      *Gauge
	scrapeInterval time.Duration
}

type Config struct {
	Enabled        bool
	ScrapeInterval time.Duration
}

var (
	initOnce sync.Once
	instance *Metrics
)

func Current() *Metrics {
	return instance
}

// Init installs the process-wide registry. It is a no-op when metrics are disabled, and
// every method on a nil *Metrics is safe to call.
func Init(log *logger.Logger, cfg Config) *Metrics {
	if !cfg.Enabled {
		return nil
	}
	initOnce.Do(func() {
		instance = newMetrics(cfg)
		if log != nil {
			log.Info("Observability metrics enabled")
		}
	})
	return instance
}

func newMetrics(cfg Config) *Metrics {
	interval := cfg.ScrapeInterval
	if interval <= 0 {
		interval = 10 * time.Second
	}
	return &Metrics{
		apiRequests: NewCounterVec("ielts_api_requests_total", "Total API requests by method/route/status.", []string{"method", "route", "status"}),
		apiLatency: NewHistogramVec(
			"ielts_api_request_duration_seconds",
			"API request latency in seconds by method/route/status.",
			[]string{"method", "route", "status"},
			[]float64{0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2, 5, 10, 30},
		),
		apiInflight: NewGauge("ielts_api_inflight_requests", "In-flight API requests."),
		apiReqError: NewCounter("ielts_api_requests_error_total", "Total API requests with 5xx status."),
		aiRequests:  NewCounterVec("ielts_ai_requests_total", "AI gateway calls by engine/operation/status.", []string{"engine", "operation", "status"}),
		aiLatency: NewHistogramVec(
			"ielts_ai_request_duration_seconds",
			"AI gateway call latency in seconds by engine/operation.",
			[]string{"engine", "operation"},
			[]float64{0.1, 0.25, 0.5, 1, 2, 5, 10, 20, 40},
		),
		keyRotations:  NewCounterVec("ielts_ai_key_rotations_total", "Credential rotations after quota errors by engine.", []string{"engine"}),
		vocabCache:    NewCounterVec("ielts_vocab_cache_total", "Vocabulary analysis cache lookups by result.", []string{"result"}),
		ttsRequests:   NewCounterVec("ielts_tts_requests_total", "Text-to-speech proxy calls by status.", []string{"status"}),
		voiceEvents:   NewCounterVec("ielts_voice_events_total", "Conversation session events by kind.", []string{"kind"}),
		voiceSessions: NewGauge("ielts_voice_sessions_open", "Open conversation sessions."),
		replication:   NewCounterVec("ielts_replication_total", "Snapshot replication attempts by sink/status.", []string{"sink", "status"}),
		sseBusLag: NewHistogramVec(
			"ielts_sse_bus_lag_seconds",
			"Delay between publishing an SSE message and receiving it from the Redis bus.",
			nil,
			[]float64{0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1},
		),
		redisUp:       NewGauge("ielts_redis_up", "Redis reachability (1 up, 0 down)."),
		redisPing:     NewGauge("ielts_redis_ping_seconds", "Last Redis ping latency in seconds."),

		scrapeInterval: interval,
	}
}

func (m *Metrics) StartServer(ctx context.Context, log *logger.Logger, addr string) {
	if m == nil {
		return
	}
	addr = strings.TrimSpace(addr)
	if addr == "" {
		return
	}
	srv := &http.Server{
		Addr:              addr,
		Handler:           http.HandlerFunc(m.WriteHTTP),
		ReadHeaderTimeout: 5 * time.Second,
	}
	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		_ = srv.Shutdown(shutdownCtx)
		cancel()
	}()
	go func() {
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			if log != nil {
				log.Error("metrics server failed", "error", err, "addr", addr)
			}
		}
	}()
}

func (m *Metrics) WriteHTTP(w http.ResponseWriter, r *http.Request) {
	if m == nil {
		w.WriteHeader(http.StatusServiceUnavailable)
		return
	}
	w.Header().Set("Content-Type", "text/plain; version=0.0.4")
	_ = m.WritePrometheus(w)
}

func (m *Metrics) WritePrometheus(w io.Writer) error {
	if m == nil {
		return nil
	}
	families := []interface{ WritePrometheus(io.Writer) error }{
		m.apiRequests, m.apiLatency, m.apiInflight, m.apiReqError,
		m.aiRequests, m.aiLatency, m.keyRotations, m.vocabCache, m.ttsRequests,
		m.voiceEvents, m.voiceSessions, m.replication, m.sseBusLag, m.redisUp, m.redisPing,
	}
	for _, f := range families {
		if err := f.WritePrometheus(w); err != nil {
			return err
		}
	}
	return nil
}

func (m *Metrics) ObserveAPI(method, route, status string, dur time.Duration) {
	if m == nil {
		return
	}
	method = orDefault(method, "UNKNOWN")
	route = orDefault(route, "unknown")
	status = orDefault(status, "0")
	m.apiRequests.Inc(method, route, status)
	m.apiLatency.Observe(dur.Seconds(), method, route, status)
	if isServerErrorStatus(status) {
		m.apiReqError.Inc()
	}
}

func (m *Metrics) ApiInflightInc() {
	if m == nil {
		return
	}
	m.apiInflight.Inc()
}

func (m *Metrics) ApiInflightDec() {
	if m == nil {
		return
	}
	m.apiInflight.Dec()
}

func (m *Metrics) ObserveAIRequest(engine, operation, status string, dur time.Duration) {
	if m == nil {
		return
	}
	engine = orDefault(engine, "unknown")
	operation = orDefault(operation, "unknown")
	m.aiRequests.Inc(engine, operation, orDefault(status, "unknown"))
	if dur > 0 {
		m.aiLatency.Observe(dur.Seconds(), engine, operation)
	}
}

func (m *Metrics) IncKeyRotation(engine string) {
	if m == nil {
		return
	}
	m.keyRotations.Inc(orDefault(engine, "unknown"))
}

func (m *Metrics) ObserveVocabCache(hit bool) {
	if m == nil {
		return
	}
	if hit {
		m.vocabCache.Inc("hit")
		return
	}
	m.vocabCache.Inc("miss")
}

func (m *Metrics) IncTTS(status string) {
	if m == nil {
		return
	}
	m.ttsRequests.Inc(orDefault(status, "unknown"))
}

func (m *Metrics) IncVoiceEvent(kind string) {
	if m == nil {
		return
	}
	m.voiceEvents.Inc(orDefault(kind, "unknown"))
}

func (m *Metrics) VoiceSessionOpened() {
	if m == nil {
		return
	}
	m.voiceSessions.Inc()
}

func (m *Metrics) VoiceSessionClosed() {
	if m == nil {
		return
	}
	m.voiceSessions.Dec()
}

func (m *Metrics) IncReplication(sink, status string) {
	if m == nil {
		return
	}
	m.replication.Inc(orDefault(sink, "unknown"), orDefault(status, "unknown"))
}

func (m *Metrics) ObserveSSEBusLag(d time.Duration) {
	if m == nil || d < 0 {
		return
	}
	m.sseBusLag.Observe(d.Seconds())
}

func (m *Metrics) StartRedisCollector(ctx context.Context, log *logger.Logger, addr string) {
	if m == nil {
		return
	}
	addr = strings.TrimSpace(addr)
	if addr == "" {
		return
	}
	rdb := redis.NewClient(&redis.Options{Addr: addr})
	go func() {
		ticker := time.NewTicker(m.scrapeInterval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				_ = rdb.Close()
				return
			case <-ticker.C:
				start := time.Now()
				if err := rdb.Ping(ctx).Err(); err != nil {
					m.redisUp.Set(0)
					if log != nil {
						log.Warn("metrics: redis ping failed", "error", err)
					}
					continue
				}
				m.redisUp.Set(1)
				m.redisPing.Set(time.Since(start).Seconds())
			}
		}
	}()
}

func orDefault(v, def string) string {
	v = strings.TrimSpace(v)
	if v == "" {
		return def
	}
	return v
}

func isServerErrorStatus(status string) bool {
	status = strings.TrimSpace(status)
	if len(status) < 3 {
		return false
	}
	return status[0] == '5'
}
