package http

import (
	"net"
	"net/http"
	"slices"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/jonboulle/clockwork"
	"golang.org/x/time/rate"
)

// retryAfterSeconds is sent with 429 responses.
const retryAfterSeconds = 60

// responseRecorder captures the status code and stamps X-Process-Time just
// before the header is written.
type responseRecorder struct {
	http.ResponseWriter
	start       time.Time
	status      int
	wroteHeader bool
}

func (r *responseRecorder) WriteHeader(code int) {
	if r.wroteHeader {
		return
	}
	r.wroteHeader = true
	r.status = code
	r.Header().Set("X-Process-Time", strconv.FormatFloat(time.Since(r.start).Seconds(), 'f', 6, 64))
	r.ResponseWriter.WriteHeader(code)
}

func (r *responseRecorder) Write(b []byte) (int, error) {
	if !r.wroteHeader {
		r.WriteHeader(http.StatusOK)
	}
	return r.ResponseWriter.Write(b)
}

func (r *responseRecorder) Unwrap() http.ResponseWriter { return r.ResponseWriter }

// instrument logs every request, records HTTP metrics and sets
// X-Process-Time (seconds) on the response.
func (s *Server) instrument(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		rec := &responseRecorder{ResponseWriter: w, start: time.Now(), status: http.StatusOK}

		next.ServeHTTP(rec, r)

		elapsed := time.Since(rec.start)
		route := r.Pattern
		if route == "" {
			route = "unmatched"
		}
		s.deps.Metrics.HTTPRequests.WithLabelValues(route, strconv.Itoa(rec.status)).Inc()
		s.deps.Metrics.HTTPDuration.WithLabelValues(route).Observe(elapsed.Seconds())

		s.logger.Info("http request",
			"method", r.Method,
			"path", r.URL.Path,
			"status", rec.status,
			"duration", elapsed,
			"client", clientKey(r),
		)
	})
}

// cors answers preflight requests and sets Access-Control headers for
// allowed origins.
func cors(allowed []string, next http.Handler) http.Handler {
	anyOrigin := slices.Contains(allowed, "*")
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		origin := r.Header.Get("Origin")
		if origin != "" && (anyOrigin || slices.Contains(allowed, origin)) {
			h := w.Header()
			if anyOrigin {
				h.Set("Access-Control-Allow-Origin", "*")
			} else {
				h.Set("Access-Control-Allow-Origin", origin)
				h.Add("Vary", "Origin")
			}
			h.Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
			h.Set("Access-Control-Allow-Headers", "Content-Type, Authorization")
			h.Set("Access-Control-Expose-Headers", "X-Process-Time, Retry-After")
		}
		if r.Method == http.MethodOptions && r.Header.Get("Access-Control-Request-Method") != "" {
			w.WriteHeader(http.StatusNoContent)
			return
		}
		next.ServeHTTP(w, r)
	})
}

// clientLimiter hands out one token bucket per client address.
type clientLimiter struct {
	limit   rate.Limit
	burst   int
	clock   clockwork.Clock
	idleTTL time.Duration

	mu      sync.Mutex
	clients map[string]*clientBucket
	swept   time.Time
}

type clientBucket struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// newClientLimiter returns nil when perMinute is not positive.
func newClientLimiter(perMinute int, clock clockwork.Clock) *clientLimiter {
	if perMinute <= 0 {
		return nil
	}
	return &clientLimiter{
		limit:   rate.Limit(float64(perMinute) / 60),
		burst:   perMinute,
		clock:   clock,
		idleTTL: 10 * time.Minute,
		clients: make(map[string]*clientBucket),
	}
}

func (l *clientLimiter) allow(key string) bool {
	now := l.clock.Now()

	l.mu.Lock()
	defer l.mu.Unlock()

	if now.Sub(l.swept) > l.idleTTL {
		for k, b := range l.clients {
			if now.Sub(b.lastSeen) > l.idleTTL {
				delete(l.clients, k)
			}
		}
		l.swept = now
	}

	b, ok := l.clients[key]
	if !ok {
		b = &clientBucket{limiter: rate.NewLimiter(l.limit, l.burst)}
		l.clients[key] = b
	}
	b.lastSeen = now
	return b.limiter.AllowN(now, 1)
}

func (s *Server) rateLimit(l *clientLimiter, next http.Handler) http.Handler {
	if l == nil {
		return next
	}
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !l.allow(clientKey(r)) {
			s.deps.Metrics.RateLimitedReqs.Inc()
			w.Header().Set("Retry-After", strconv.Itoa(retryAfterSeconds))
			s.writeError(w, http.StatusTooManyRequests, "rate_limited", "rate limit exceeded, retry later")
			return
		}
		next.ServeHTTP(w, r)
	})
}

// clientKey identifies the caller by the first X-Forwarded-For hop or the
// remote address.
func clientKey(r *http.Request) string {
	if fwd := r.Header.Get("X-Forwarded-For"); fwd != "" {
		first, _, _ := strings.Cut(fwd, ",")
		return strings.TrimSpace(first)
	}
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
