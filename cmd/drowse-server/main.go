// Package main implements the drowse web service: per-channel stage
// predictions in, combined sleep summary out.
package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"runtime"
	"strings"
	"sync"
	"syscall"
	"time"

	json "github.com/goccy/go-json"

	"github.com/drowse-dev/drowse/pkg/drowse"
	"github.com/drowse-dev/drowse/pkg/stage"
)

var (
	port    = flag.String("port", "8080", "Port for web server (or set PORT)")
	verbose = flag.Bool("verbose", false, "Enable verbose logging")
	version = flag.Bool("version", false, "Show version")
)

const maxRequestBytes = 1 << 20

type rateLimiter struct {
	requests map[string][]time.Time
	mu       sync.Mutex
}

func newRateLimiter() *rateLimiter {
	return &rateLimiter{
		requests: make(map[string][]time.Time),
	}
}

func (rl *rateLimiter) allow(ip string) bool {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	now := time.Now()
	cutoff := now.Add(-time.Minute)

	var valid []time.Time
	for _, t := range rl.requests[ip] {
		if t.After(cutoff) {
			valid = append(valid, t)
		}
	}

	// Rate limit: 60 requests per minute per IP
	if len(valid) >= 60 {
		rl.requests[ip] = valid
		return false
	}

	rl.requests[ip] = append(valid, now)
	return true
}

func main() {
	flag.Parse()

	if *version {
		fmt.Println("drowse Server v1.2.0")
		return
	}

	level := slog.LevelInfo
	if *verbose {
		level = slog.LevelDebug
	}
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))

	if envPort := os.Getenv("PORT"); envPort != "" {
		*port = envPort
	}

	logger.Info("Server configuration", "port", *port, "verbose", *verbose)

	server := &server{
		limiter: newRateLimiter(),
		logger:  logger,
	}

	mux := http.NewServeMux()
	mux.HandleFunc("GET /healthz", server.handleHealth)
	mux.HandleFunc("POST /v1/check", server.handleCheck)

	srv := &http.Server{
		Addr:              ":" + *port,
		Handler:           server.wrap(mux),
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       120 * time.Second,
	}

	go func() {
		logger.Info("Server starting", "port", *port)
		if err := srv.ListenAndServe(); err != http.ErrServerClosed {
			logger.Error("Server failed", "error", err)
			os.Exit(1)
		}
	}()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	<-sigChan

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		logger.Error("Shutdown failed", "error", err)
	}
	logger.Info("Server stopped")
}

type server struct {
	limiter *rateLimiter
	logger  *slog.Logger
}

func (s *server) wrap(handler http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requestID := fmt.Sprintf("%d-%d", time.Now().Unix(), time.Now().Nanosecond())
		w.Header().Set("X-Request-ID", requestID)

		defer func() {
			if err := recover(); err != nil {
				const size = 64 << 10
				buf := make([]byte, size)
				buf = buf[:runtime.Stack(buf, false)]

				s.logger.Error("PANIC: Request handler crashed",
					"error", err,
					"path", r.URL.Path,
					"method", r.Method,
					"request_id", requestID,
					"stack", string(buf))
				http.Error(w, "Internal server error", http.StatusInternalServerError)
			}
		}()

		w.Header().Set("X-Frame-Options", "DENY")
		w.Header().Set("X-Content-Type-Options", "nosniff")
		w.Header().Set("Referrer-Policy", "strict-origin-when-cross-origin")
		w.Header().Set("Cache-Control", "no-store, no-cache, must-revalidate, private")

		clientIP := strings.Split(r.RemoteAddr, ":")[0]
		if !s.limiter.allow(clientIP) {
			s.logger.Warn("rate limit exceeded", "client_ip", clientIP)
			http.Error(w, "Too many requests", http.StatusTooManyRequests)
			return
		}

		handler.ServeHTTP(w, r)
	})
}

func (*server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	w.WriteHeader(http.StatusOK)
	if _, err := w.Write([]byte("ok")); err != nil {
		return
	}
}

// checkRequest carries pre-computed per-channel predictions; the server
// never talks to the classifier itself.
type checkRequest struct {
	Predictions   map[string][]string `json:"predictions"`
	KeepN1        bool                `json:"keep_n1"`
	SpecifyStages bool                `json:"specify_stages"`
}

func (s *server) handleCheck(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, maxRequestBytes)

	var req checkRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "Invalid JSON body: "+err.Error(), http.StatusBadRequest)
		return
	}

	predictions := make(map[string][]stage.Stage, len(req.Predictions))
	for channel, codes := range req.Predictions {
		seq, err := stage.ParseSequence(codes)
		if err != nil {
			http.Error(w, fmt.Sprintf("channel %q: %v", channel, err), http.StatusBadRequest)
			return
		}
		predictions[channel] = seq
	}

	opts := []drowse.Option{drowse.WithNoCache()}
	if req.KeepN1 {
		opts = append(opts, drowse.WithKeepN1())
	}
	if req.SpecifyStages {
		opts = append(opts, drowse.WithStageDescriptions())
	}
	checker := drowse.NewWithLogger(s.logger, opts...)

	result, err := checker.CheckPredictions(predictions)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	s.logger.Debug("check served",
		"channels", len(predictions),
		"epochs", len(result.Combined),
		"sleep_percentage", result.SleepPercentage)

	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(result); err != nil {
		s.logger.Error("encoding response failed", "error", err)
	}
}
