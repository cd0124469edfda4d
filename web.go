/*
Copyright © 2026 Seednode <seednode@seedno.de>
*/

package main

import (
	"context"
	"crypto/rand"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/julienschmidt/httprouter"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"

	"github.com/Seednode/yardbox/internal/feed"
	"github.com/Seednode/yardbox/internal/store"
	"github.com/Seednode/yardbox/internal/telemetry"
	"github.com/Seednode/yardbox/internal/token"
)

const (
	logDate string        = `2006-01-02T15:04:05.000-07:00`
	timeout time.Duration = 10 * time.Second
)

func securityHeaders(cfg *Config, w http.ResponseWriter) {
	w.Header().Set("Cross-Origin-Embedder-Policy", "require-corp")
	w.Header().Set("Cross-Origin-Opener-Policy", "same-origin")
	w.Header().Set("Cross-Origin-Resource-Policy", "same-site")
	w.Header().Set("Permissions-Policy", "geolocation=(), midi=(), sync-xhr=(), microphone=(), camera=(), magnetometer=(), gyroscope=(), fullscreen=(), payment=()")
	w.Header().Set("Referrer-Policy", "strict-origin-when-cross-origin")
	w.Header().Set("X-Content-Type-Options", "nosniff")
	w.Header().Set("Content-Security-Policy", "default-src 'self'")

	if cfg.scheme() == "https" {
		w.Header().Set("Strict-Transport-Security", "max-age=31536000; includeSubDomains; preload")
	}
}

func realIP(r *http.Request) string {
	host, port, _ := net.SplitHostPort(r.RemoteAddr)
	if ip := r.Header.Get("CF-Connecting-IP"); ip != "" {
		if net.ParseIP(ip) != nil {
			host = ip
		}
	} else if ip := r.Header.Get("X-Real-IP"); ip != "" {
		if net.ParseIP(ip) != nil {
			host = ip
		}
	}
	if net.ParseIP(host) != nil && strings.Contains(host, ":") {
		host = "[" + host + "]"
	}
	if port != "" {
		return host + ":" + port
	}
	return host
}

func serveVersion(cfg *Config, errs chan<- error) httprouter.Handle {
	return func(w http.ResponseWriter, r *http.Request, p httprouter.Params) {
		startTime := time.Now()

		w.Header().Set("Content-Type", "text/plain; charset=utf-8")
		securityHeaders(cfg, w)
		w.WriteHeader(http.StatusOK)

		written, err := w.Write([]byte("yardbox v" + releaseVersion + "\n"))
		if err != nil {
			errs <- err

			return
		}

		logf(cfg, "SERVE: Version page (%s) to %s in %s",
			humanize.Bytes(uint64(written)),
			realIP(r),
			time.Since(startTime).Round(time.Microsecond),
		)
	}
}

// statusRecorder captures the response code for the request metrics.
type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (s *statusRecorder) WriteHeader(code int) {
	s.status = code
	s.ResponseWriter.WriteHeader(code)
}

// server holds everything the HTTP handlers share.
type server struct {
	cfg     *Config
	store   *store.Store
	hub     *feed.Hub
	mirror  *feed.MQTTSink
	issuer  *token.Issuer
	metrics *telemetry.Metrics
	limiter *limiter
	errs    chan error
}

func newLogger(cfg *Config) *slog.Logger {
	if !cfg.verbose {
		return slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelDebug}))
}

func tokenSecret(cfg *Config) ([]byte, error) {
	if cfg.tokenSecret != "" {
		return []byte(cfg.tokenSecret), nil
	}

	secret := make([]byte, 32)
	if _, err := rand.Read(secret); err != nil {
		return nil, fmt.Errorf("generate token secret: %w", err)
	}
	logf(cfg, "START: No --token-secret given, sessions will not survive a restart")

	return secret, nil
}

func newServer(cfg *Config) (*server, error) {
	cfg.prefix = strings.TrimSuffix(cfg.prefix, "/")

	registry := prometheus.NewRegistry()
	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	metrics, err := telemetry.NewMetrics(registry)
	if err != nil {
		return nil, err
	}

	logger := newLogger(cfg)

	s := &server{
		cfg:     cfg,
		metrics: metrics,
		limiter: newLimiter(cfg.rateLimit, cfg.rateBurst),
		errs:    make(chan error, 64),
	}

	hubOpts := []feed.Option{feed.WithLogger(logger), feed.WithMetrics(metrics)}
	if cfg.mqttBroker != "" {
		client, err := feed.DialMQTT(cfg.mqttBroker, cfg.mqttClientID)
		if err != nil {
			return nil, err
		}
		s.mirror = feed.NewMQTTSink(client, cfg.mqttTopic, metrics)
		hubOpts = append(hubOpts, feed.WithSink(s.mirror))

		logf(cfg, "START: Mirroring change events to %s under %q", cfg.mqttBroker, cfg.mqttTopic)
	}
	s.hub = feed.NewHub(hubOpts...)

	s.store, err = store.Open(cfg.dbPath,
		store.WithPublisher(s.hub),
		store.WithLogger(logger),
		store.WithMetrics(metrics),
	)
	if err != nil {
		s.close()
		return nil, err
	}

	secret, err := tokenSecret(cfg)
	if err != nil {
		s.close()
		return nil, err
	}
	s.issuer, err = token.NewIssuer(secret, cfg.tokenTTL)
	if err != nil {
		s.close()
		return nil, err
	}

	return s, nil
}

func (s *server) close() {
	if s.hub != nil {
		s.hub.Close()
	}
	if s.mirror != nil {
		s.mirror.Close()
	}
	if s.store != nil {
		_ = s.store.Close()
	}
}

// instrument counts requests to route by response code.
func (s *server) instrument(route string, h httprouter.Handle) httprouter.Handle {
	return func(w http.ResponseWriter, r *http.Request, p httprouter.Params) {
		startTime := time.Now()

		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		h(rec, r, p)
		s.metrics.Request(route, rec.status)

		logf(s.cfg, "API: %s %s (%d) for %s in %s",
			r.Method,
			r.URL.Path,
			rec.status,
			realIP(r),
			time.Since(startTime).Round(time.Microsecond),
		)
	}
}

// write wraps a mutating endpoint with rate limiting and metrics.
func (s *server) write(route string, h httprouter.Handle) httprouter.Handle {
	return s.instrument(route, rateLimited(s.cfg, s.limiter, h))
}

func (s *server) routes() *httprouter.Router {
	cfg := s.cfg
	mux := httprouter.New()

	mux.PanicHandler = func(w http.ResponseWriter, r *http.Request, i any) {
		logf(cfg, "ERROR: Panic serving %s: %v", r.URL.Path, i)

		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		securityHeaders(cfg, w)
		w.WriteHeader(http.StatusInternalServerError)

		io.WriteString(w, newPage("Server Error", "An error has occurred. Please try again."))
	}

	mux.GET(cfg.prefix+"/", serveHomePage(cfg))

	mux.GET(cfg.prefix+"/healthz", serveHealthCheck(cfg, s.errs))

	mux.GET(cfg.prefix+"/robots.txt", serveRobots(cfg, s.errs))

	mux.GET(cfg.prefix+"/version", serveVersion(cfg, s.errs))

	registerMetricsHandler(cfg, mux, s.metrics.Registry())

	if cfg.profile {
		registerProfileHandlers(cfg, mux)
	}

	s.registerAPI(mux)

	registerInvite(cfg, mux)

	return mux
}

// drainErrors logs handler write failures until ctx is done.
func (s *server) drainErrors(ctx context.Context) {
	for {
		select {
		case err := <-s.errs:
			logf(s.cfg, "ERROR: %v", err)
		case <-ctx.Done():
			return
		}
	}
}

func ServePage(ctx context.Context, cfg *Config, args []string) error {
	var err error

	timeZone := os.Getenv("TZ")
	if timeZone != "" {
		time.Local, err = time.LoadLocation(timeZone)
		if err != nil {
			return err
		}
	}

	logf(cfg, "START: yardbox v%s", releaseVersion)

	s, err := newServer(cfg)
	if err != nil {
		return err
	}
	defer s.close()

	srv := &http.Server{
		Addr:              net.JoinHostPort(cfg.bind, strconv.Itoa(cfg.port)),
		Handler:           s.routes(),
		IdleTimeout:       10 * time.Minute,
		ReadTimeout:       timeout,
		ReadHeaderTimeout: timeout,
		WriteTimeout:      timeout,
	}

	go s.drainErrors(ctx)

	go func() {
		var err error
		if cfg.tlsKey != "" && cfg.tlsCert != "" {
			logf(cfg, "SERVE: Listening on %s://%s%s/", cfg.scheme(), srv.Addr, cfg.prefix)
			err = srv.ListenAndServeTLS(cfg.tlsCert, cfg.tlsKey)
		} else {
			logf(cfg, "SERVE: Listening on %s://%s%s/", cfg.scheme(), srv.Addr, cfg.prefix)
			err = srv.ListenAndServe()
		}
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			fmt.Printf("%s | ERROR: %v\n", time.Now().Format(logDate), err)
		}
	}()

	<-ctx.Done()
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	_ = srv.Shutdown(shutdownCtx)

	logf(cfg, "STOP: yardbox v%s", releaseVersion)

	return nil
}
