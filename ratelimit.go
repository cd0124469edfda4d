/*
Copyright © 2026 Seednode <seednode@seedno.de>
*/

package main

import (
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/julienschmidt/httprouter"
	"github.com/patrickmn/go-cache"
	"golang.org/x/time/rate"
)

const (
	limiterExpiry  = 10 * time.Minute
	limiterCleanup = 5 * time.Minute
)

// limiter hands out one token bucket per client address. Idle buckets expire
// from the cache.
type limiter struct {
	mu      sync.Mutex
	buckets *cache.Cache
	limit   rate.Limit
	burst   int
}

// newLimiter returns nil when perSecond is zero, which disables limiting.
func newLimiter(perSecond float64, burst int) *limiter {
	if perSecond <= 0 {
		return nil
	}

	return &limiter{
		buckets: cache.New(limiterExpiry, limiterCleanup),
		limit:   rate.Limit(perSecond),
		burst:   burst,
	}
}

func (l *limiter) allow(client string) bool {
	if l == nil {
		return true
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	var bucket *rate.Limiter
	if v, ok := l.buckets.Get(client); ok {
		bucket = v.(*rate.Limiter)
	} else {
		bucket = rate.NewLimiter(l.limit, l.burst)
	}
	l.buckets.Set(client, bucket, cache.DefaultExpiration)

	return bucket.Allow()
}

// clientHost names the client a bucket belongs to. Forwarded address headers
// are only honoured when the server sits behind a trusted proxy.
func clientHost(cfg *Config, r *http.Request) string {
	addr := r.RemoteAddr
	if cfg.trustProxy {
		addr = realIP(r)
	}
	if host, _, err := net.SplitHostPort(addr); err == nil {
		return host
	}
	return addr
}

func rateLimited(cfg *Config, l *limiter, h httprouter.Handle) httprouter.Handle {
	return func(w http.ResponseWriter, r *http.Request, p httprouter.Params) {
		if !l.allow(clientHost(cfg, r)) {
			logf(cfg, "LIMIT: %s %s from %s", r.Method, r.URL.Path, realIP(r))

			w.Header().Set("Retry-After", "1")
			writeJSON(cfg, w, http.StatusTooManyRequests, errorBody{
				Error:    "Too many requests, slow down.",
				Category: "remote",
			})
			return
		}

		h(w, r, p)
	}
}
