package observability

import (
	"database/sql"
	"fmt"
	"io"
	"net/http"
	"os"
	"sort"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"cbtexam/internal/auth"

	"github.com/go-chi/chi/v5/middleware"
	"github.com/rs/zerolog"
)

type key struct {
	Method string
	Path   string
	Status int
}

type stat struct {
	Count     int64
	LatencyMS float64
}

type Collector struct {
	db  *sql.DB
	log zerolog.Logger

	mu           sync.RWMutex
	requestStats map[key]stat
	startedAt    time.Time

	attemptsStarted   atomic.Int64
	attemptsResumed   atomic.Int64
	attemptsSubmitted atomic.Int64
}

func NewCollector(db *sql.DB, logger zerolog.Logger) *Collector {
	return &Collector{
		db:           db,
		log:          logger,
		requestStats: make(map[key]stat),
		startedAt:    time.Now(),
	}
}

// NewLogger builds the process logger. Development gets console output.
func NewLogger(env, level string) zerolog.Logger {
	lvl, err := zerolog.ParseLevel(strings.ToLower(strings.TrimSpace(level)))
	if err != nil || lvl == zerolog.NoLevel {
		lvl = zerolog.InfoLevel
	}
	var out io.Writer = os.Stdout
	if env == "development" {
		out = zerolog.ConsoleWriter{Out: os.Stdout, TimeFormat: time.RFC3339}
	}
	return zerolog.New(out).Level(lvl).With().Timestamp().Str("service", "cbtexam").Logger()
}

func (c *Collector) AttemptStarted(resumed bool) {
	if resumed {
		c.attemptsResumed.Add(1)
		return
	}
	c.attemptsStarted.Add(1)
}

func (c *Collector) AttemptSubmitted() {
	c.attemptsSubmitted.Add(1)
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(code int) {
	r.status = code
	r.ResponseWriter.WriteHeader(code)
}

func (c *Collector) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(rec, r)

		latencyMS := float64(time.Since(start).Microseconds()) / 1000.0
		path := normalizedPath(r.URL.Path)

		c.mu.Lock()
		k := key{Method: r.Method, Path: path, Status: rec.status}
		s := c.requestStats[k]
		s.Count++
		s.LatencyMS += latencyMS
		c.requestStats[k] = s
		c.mu.Unlock()

		userID := int64(0)
		if u, ok := auth.CurrentUser(r.Context()); ok {
			userID = u.ID
		}

		ev := c.log.Info()
		if rec.status >= http.StatusInternalServerError {
			ev = c.log.Error()
		}
		ev.Str("request_id", middleware.GetReqID(r.Context())).
			Int64("user_id", userID).
			Int64("exam_id", extractExamID(r.URL.Path)).
			Str("method", r.Method).
			Str("path", path).
			Int("status", rec.status).
			Float64("latency_ms", latencyMS).
			Str("remote_ip", strings.TrimSpace(r.RemoteAddr)).
			Msg("http request")
	})
}

func (c *Collector) MetricsHandler(w http.ResponseWriter, r *http.Request) {
	c.mu.RLock()
	statsCopy := make(map[key]stat, len(c.requestStats))
	for k, v := range c.requestStats {
		statsCopy[k] = v
	}
	startedAt := c.startedAt
	c.mu.RUnlock()

	keys := make([]key, 0, len(statsCopy))
	for k := range statsCopy {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool {
		if keys[i].Method != keys[j].Method {
			return keys[i].Method < keys[j].Method
		}
		if keys[i].Path != keys[j].Path {
			return keys[i].Path < keys[j].Path
		}
		return keys[i].Status < keys[j].Status
	})

	var sb strings.Builder
	sb.WriteString("# cbtexam observability metrics\n")
	sb.WriteString("# TYPE cbtexam_uptime_seconds gauge\n")
	sb.WriteString(fmt.Sprintf("cbtexam_uptime_seconds %.0f\n", time.Since(startedAt).Seconds()))

	sb.WriteString("# TYPE cbtexam_attempts_total counter\n")
	sb.WriteString(fmt.Sprintf("cbtexam_attempts_total{event=\"started\"} %d\n", c.attemptsStarted.Load()))
	sb.WriteString(fmt.Sprintf("cbtexam_attempts_total{event=\"resumed\"} %d\n", c.attemptsResumed.Load()))
	sb.WriteString(fmt.Sprintf("cbtexam_attempts_total{event=\"submitted\"} %d\n", c.attemptsSubmitted.Load()))

	sb.WriteString("# TYPE cbtexam_http_requests_total counter\n")
	sb.WriteString("# TYPE cbtexam_http_request_latency_ms_sum counter\n")
	sb.WriteString("# TYPE cbtexam_http_request_latency_ms_avg gauge\n")
	for _, k := range keys {
		s := statsCopy[k]
		labels := fmt.Sprintf("method=\"%s\",path=\"%s\",status=\"%d\"", k.Method, k.Path, k.Status)
		sb.WriteString(fmt.Sprintf("cbtexam_http_requests_total{%s} %d\n", labels, s.Count))
		sb.WriteString(fmt.Sprintf("cbtexam_http_request_latency_ms_sum{%s} %.3f\n", labels, s.LatencyMS))
		avg := 0.0
		if s.Count > 0 {
			avg = s.LatencyMS / float64(s.Count)
		}
		sb.WriteString(fmt.Sprintf("cbtexam_http_request_latency_ms_avg{%s} %.3f\n", labels, avg))
	}

	if c.db != nil {
		dbs := c.db.Stats()
		sb.WriteString("# TYPE cbtexam_db_open_connections gauge\n")
		sb.WriteString(fmt.Sprintf("cbtexam_db_open_connections %d\n", dbs.OpenConnections))
		sb.WriteString("# TYPE cbtexam_db_in_use_connections gauge\n")
		sb.WriteString(fmt.Sprintf("cbtexam_db_in_use_connections %d\n", dbs.InUse))
		sb.WriteString("# TYPE cbtexam_db_wait_count counter\n")
		sb.WriteString(fmt.Sprintf("cbtexam_db_wait_count %d\n", dbs.WaitCount))
	}

	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte(sb.String()))
}

func normalizedPath(path string) string {
	if path == "" {
		return "/"
	}
	parts := strings.Split(path, "/")
	for i, p := range parts {
		if p == "" {
			continue
		}
		if _, err := strconv.ParseInt(p, 10, 64); err == nil {
			parts[i] = "{id}"
		}
	}
	return strings.Join(parts, "/")
}

// extractExamID finds the id following "exams" or "leaderboard" in a path.
func extractExamID(path string) int64 {
	parts := strings.Split(strings.Trim(path, "/"), "/")
	for i := 0; i < len(parts)-1; i++ {
		if parts[i] == "exams" || parts[i] == "leaderboard" {
			if id, err := strconv.ParseInt(parts[i+1], 10, 64); err == nil {
				return id
			}
		}
	}
	return 0
}
