package api

import (
	"net"
	"net/http"
	"strings"
	"sync"

	"golang.org/x/time/rate"

	"ingestd/pkg/config"
	"ingestd/pkg/logger"
)

type limiterPool struct {
	mu  sync.Mutex
	m   map[string]*rate.Limiter
	cfg config.RateLimit
}

func (p *limiterPool) get(key string) *rate.Limiter {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.m == nil {
		p.m = make(map[string]*rate.Limiter)
	}
	if l, ok := p.m[key]; ok {
		return l
	}
	rps := p.cfg.RPS
	if rps <= 0 {
		rps = 5
	}
	burst := p.cfg.Burst
	if burst <= 0 {
		burst = 10
	}
	l := rate.NewLimiter(rate.Limit(rps), burst)
	p.m[key] = l
	return l
}

func (p *limiterPool) Allow(key string) bool {
	return p.get(key).Allow()
}

// open paths skip both the token check and the limiter so probes and
// scrapers keep working when the operator token rotates.
func isOpenPath(path string) bool {
	return path == "/healthz" || path == "/readyz" || path == "/metrics" ||
		strings.HasPrefix(path, "/docs/")
}

func remoteKey(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}

// Middleware enforces the operator bearer token (when configured) and
// rate-limits the mutating surface per remote address.
func Middleware(token string, rl config.RateLimit) func(http.Handler) http.Handler {
	pool := &limiterPool{cfg: rl}
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			// log request (redacts sensitive headers)
			logger.LogRequest(r)

			if isOpenPath(r.URL.Path) {
				next.ServeHTTP(w, r)
				return
			}
			if !pool.Allow(remoteKey(r)) {
				logger.Warn("rate_limited", "remote", r.RemoteAddr, "path", r.URL.Path)
				JSONError(w, http.StatusTooManyRequests, "rate limit exceeded")
				return
			}
			if token != "" {
				got := strings.TrimSpace(r.Header.Get("Authorization"))
				if !strings.HasPrefix(got, "Bearer ") || strings.TrimPrefix(got, "Bearer ") != token {
					logger.Warn("unauthorized_request", "remote", r.RemoteAddr, "path", r.URL.Path)
					JSONError(w, http.StatusUnauthorized, "missing or invalid token")
					return
				}
			}
			next.ServeHTTP(w, r)
		})
	}
}
