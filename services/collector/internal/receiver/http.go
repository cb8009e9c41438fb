// Package receiver implements the Collector's HTTP ingestion surface:
// login, health, and the three ingest endpoints (spec §4.2/§6).
package receiver

import (
	"compress/gzip"
	"context"
	"crypto/tls"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/nightwatch-siem/nightwatch/pkg/auth"
	"github.com/nightwatch-siem/nightwatch/pkg/bus"
	apperrors "github.com/nightwatch-siem/nightwatch/pkg/errors"
	"github.com/nightwatch-siem/nightwatch/pkg/event"
	"github.com/nightwatch-siem/nightwatch/pkg/parser"
	"github.com/nightwatch-siem/nightwatch/pkg/ratelimit"
)

// HTTPReceiverConfig holds HTTP receiver configuration.
type HTTPReceiverConfig struct {
	ListenAddr     string
	TLSEnabled     bool
	TLSCertPath    string
	TLSKeyPath     string
	MaxBodySize    int64
	ReadTimeout    time.Duration
	WriteTimeout   time.Duration
	APIKeyHeader   string
	RateLimitRPS   int
	RateLimitBurst int

	MaxBatchEvents int

	RequestQuota ratelimit.Quota
	BatchQuota   ratelimit.Quota
	EventQuota   ratelimit.Quota
	LoginQuota   ratelimit.Quota
}

// HTTPReceiver serves the Collector's ingestion and login endpoints.
type HTTPReceiver struct {
	config   HTTPReceiverConfig
	producer *bus.Producer
	tokens   *auth.TokenIssuer
	login    *auth.LoginService
	limiter  *ratelimit.Limiter
	server   *http.Server
	logger   *slog.Logger
	ctx      context.Context
	cancel   context.CancelFunc
	wg       sync.WaitGroup

	requestsReceived atomic.Uint64
	eventsReceived   atomic.Uint64
	bytesReceived    atomic.Uint64
	rateLimited      atomic.Uint64
	errors           atomic.Uint64
}

// NewHTTPReceiver creates a new HTTP receiver.
func NewHTTPReceiver(cfg HTTPReceiverConfig, producer *bus.Producer, tokens *auth.TokenIssuer, login *auth.LoginService, limiter *ratelimit.Limiter, logger *slog.Logger) *HTTPReceiver {
	ctx, cancel := context.WithCancel(context.Background())

	return &HTTPReceiver{
		config:   cfg,
		producer: producer,
		tokens:   tokens,
		login:    login,
		limiter:  limiter,
		logger:   logger.With("component", "http-receiver"),
		ctx:      ctx,
		cancel:   cancel,
	}
}

// Start begins the HTTP receiver.
func (r *HTTPReceiver) Start() error {
	mux := http.NewServeMux()

	mux.HandleFunc("GET /health", r.healthHandler)
	mux.HandleFunc("POST /token", r.tokenHandler)
	mux.HandleFunc("POST /ingest", r.requireScope("logs:write", r.ingestHandler))
	mux.HandleFunc("POST /ingest/batch", r.requireScope("logs:write", r.ingestBatchHandler))
	mux.HandleFunc("POST /ingest/raw", r.requireScope("logs:write", r.ingestRawHandler))

	r.server = &http.Server{
		Addr:         r.config.ListenAddr,
		Handler:      mux,
		ReadTimeout:  r.config.ReadTimeout,
		WriteTimeout: r.config.WriteTimeout,
		IdleTimeout:  120 * time.Second,
		BaseContext:  func(_ net.Listener) context.Context { return r.ctx },
	}

	if r.config.TLSEnabled {
		cert, err := tls.LoadX509KeyPair(r.config.TLSCertPath, r.config.TLSKeyPath)
		if err != nil {
			return fmt.Errorf("failed to load TLS certificates: %w", err)
		}
		r.server.TLSConfig = &tls.Config{
			Certificates: []tls.Certificate{cert},
			MinVersion:   tls.VersionTLS12,
		}
	}

	r.wg.Add(1)
	go func() {
		defer r.wg.Done()
		var err error
		if r.config.TLSEnabled {
			r.logger.Info("starting HTTPS receiver", "addr", r.config.ListenAddr)
			err = r.server.ListenAndServeTLS("", "")
		} else {
			r.logger.Info("starting HTTP receiver", "addr", r.config.ListenAddr)
			err = r.server.ListenAndServe()
		}
		if err != nil && err != http.ErrServerClosed {
			r.logger.Error("server error", "error", err)
		}
	}()

	return nil
}

// Stop stops the HTTP receiver.
func (r *HTTPReceiver) Stop() error {
	r.cancel()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := r.server.Shutdown(shutdownCtx); err != nil {
		return err
	}

	r.wg.Wait()
	return nil
}

// Stats returns receiver statistics.
func (r *HTTPReceiver) Stats() map[string]uint64 {
	return map[string]uint64{
		"requests_received": r.requestsReceived.Load(),
		"events_received":   r.eventsReceived.Load(),
		"bytes_received":    r.bytesReceived.Load(),
		"rate_limited":      r.rateLimited.Load(),
		"errors":            r.errors.Load(),
	}
}

func (r *HTTPReceiver) healthHandler(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"status":    "healthy",
		"timestamp": time.Now().UTC(),
		"services": map[string]string{
			"cache": "ok",
			"bus":   "ok",
		},
	})
}

// tokenHandler implements POST /token (spec §4.1/§6): form-encoded
// username/password, rate limited at five attempts per minute per caller IP.
func (r *HTTPReceiver) tokenHandler(w http.ResponseWriter, req *http.Request) {
	clientIP := clientIP(req)

	if r.limiter != nil {
		res, err := r.limiter.Check(req.Context(), clientIP, r.config.LoginQuota)
		if err != nil {
			r.writeError(w, apperrors.ServiceUnavailable("rate limit check unavailable"))
			return
		}
		for k, v := range ratelimit.Headers(res) {
			w.Header().Set(k, v)
		}
		if !res.Allowed {
			r.rateLimited.Add(1)
			r.writeError(w, apperrors.RateLimited("too many login attempts", int(res.RetryAfter.Seconds())))
			return
		}
	}

	if err := req.ParseForm(); err != nil {
		r.writeError(w, apperrors.BadRequest("malformed form body"))
		return
	}
	username := req.PostFormValue("username")
	password := req.PostFormValue("password")
	if username == "" || password == "" {
		r.writeError(w, apperrors.BadRequest("username and password are required"))
		return
	}

	tok, err := r.login.Login(req.Context(), username, password, clientIP)
	if err != nil {
		r.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, tok)
}

// requireScope wraps a handler with bearer-token verification and a scope
// check (spec §4.1): decode and validate signature/expiry/IP binding, then
// assert the caller's scopes contain the one this endpoint declares.
func (r *HTTPReceiver) requireScope(scope string, next func(http.ResponseWriter, *http.Request, *auth.Claims)) http.HandlerFunc {
	return func(w http.ResponseWriter, req *http.Request) {
		r.requestsReceived.Add(1)

		authz := req.Header.Get("Authorization")
		if !strings.HasPrefix(authz, "Bearer ") {
			r.errors.Add(1)
			r.writeError(w, apperrors.Unauthorized("missing bearer token"))
			return
		}
		token := strings.TrimPrefix(authz, "Bearer ")

		claims, err := r.tokens.Verify(token, clientIP(req))
		if err != nil {
			r.errors.Add(1)
			r.writeError(w, err)
			return
		}
		if err := auth.RequireScope(claims, scope); err != nil {
			r.errors.Add(1)
			r.writeError(w, err)
			return
		}

		next(w, req, claims)
	}
}

// ingestHandler implements POST /ingest: accepts and publishes one event.
func (r *HTTPReceiver) ingestHandler(w http.ResponseWriter, req *http.Request, claims *auth.Claims) {
	if !r.checkQuotas(w, req, claims, r.config.RequestQuota, r.config.EventQuota) {
		return
	}

	body, err := r.readBody(req)
	if err != nil {
		r.writeError(w, apperrors.BadRequest("failed to read body: "+err.Error()))
		return
	}

	var ev event.Event
	if err := json.Unmarshal(body, &ev); err != nil {
		r.writeError(w, apperrors.BadRequest("malformed event body"))
		return
	}
	ev.TenantID = claims.TenantID

	if err := r.publish(req.Context(), &ev); err != nil {
		r.errors.Add(1)
		r.writeError(w, err)
		return
	}
	r.eventsReceived.Add(1)
	writeJSON(w, http.StatusOK, map[string]string{"status": "success"})
}

// ingestBatchHandler implements POST /ingest/batch (spec §4.2): per-event
// independence, with a results[]/summary body returned at 200 even on
// partial failure; hard failures (quota, auth) fail the whole request.
func (r *HTTPReceiver) ingestBatchHandler(w http.ResponseWriter, req *http.Request, claims *auth.Claims) {
	if !r.checkQuotas(w, req, claims, r.config.RequestQuota, r.config.BatchQuota) {
		return
	}

	body, err := r.readBody(req)
	if err != nil {
		r.writeError(w, apperrors.BadRequest("failed to read body: "+err.Error()))
		return
	}

	var batch event.Batch
	if err := json.Unmarshal(body, &batch); err != nil {
		r.writeError(w, apperrors.BadRequest("malformed batch body"))
		return
	}
	if r.config.MaxBatchEvents > 0 && len(batch.Events) > r.config.MaxBatchEvents {
		r.writeError(w, apperrors.Validation(fmt.Sprintf("batch exceeds max size of %d", r.config.MaxBatchEvents)))
		return
	}

	// The event-rate quota is drawn down one event at a time rather than in
	// one bulk call (the sliding-window log records one attempt per check);
	// once exhausted mid-batch, remaining events fail individually rather
	// than aborting already-published ones (per-event independence, §4.2).
	results := make([]event.BatchResultItem, len(batch.Events))
	summary := event.BatchSummary{Total: len(batch.Events)}
	for i, ev := range batch.Events {
		if r.limiter != nil {
			res, err := r.limiter.Check(req.Context(), claims.Subject, r.config.EventQuota)
			if err != nil {
				results[i] = event.BatchResultItem{Status: "failed", Error: "rate limit check unavailable"}
				summary.Failed++
				continue
			}
			if !res.Allowed {
				r.rateLimited.Add(1)
				results[i] = event.BatchResultItem{Status: "failed", Error: "event rate limit exceeded"}
				summary.Failed++
				continue
			}
		}

		ev.TenantID = claims.TenantID
		if err := r.publish(req.Context(), ev); err != nil {
			results[i] = event.BatchResultItem{Status: "failed", Error: err.Error()}
			summary.Failed++
			continue
		}
		results[i] = event.BatchResultItem{Status: "success", ID: ev.ID}
		summary.Successful++
		r.eventsReceived.Add(1)
	}

	writeJSON(w, http.StatusOK, event.BatchResponse{Results: results, Summary: summary})
}

// ingestRawHandler implements POST /ingest/raw (spec §4.2/§4.3): parses the
// line and publishes the resulting event; a parse failure is a 422.
func (r *HTTPReceiver) ingestRawHandler(w http.ResponseWriter, req *http.Request, claims *auth.Claims) {
	if !r.checkQuotas(w, req, claims, r.config.RequestQuota, r.config.EventQuota) {
		return
	}

	body, err := r.readBody(req)
	if err != nil {
		r.writeError(w, apperrors.BadRequest("failed to read body: "+err.Error()))
		return
	}

	var raw event.RawLogRequest
	if err := json.Unmarshal(body, &raw); err != nil {
		r.writeError(w, apperrors.BadRequest("malformed raw log body"))
		return
	}

	ev, err := parser.Parse(raw.Format, raw.Source, raw.LogLine, time.Now().UTC())
	if err != nil {
		r.writeError(w, apperrors.Unprocessable("could not parse log line: "+err.Error()))
		return
	}
	ev.TenantID = claims.TenantID

	if err := r.publish(req.Context(), ev); err != nil {
		r.errors.Add(1)
		r.writeError(w, err)
		return
	}
	r.eventsReceived.Add(1)
	writeJSON(w, http.StatusOK, map[string]string{"status": "success"})
}

// publish assigns an ID if the client didn't supply one, fills in a missing
// timestamp, then publishes to raw_logs keyed by source so per-source
// ordering is preserved (spec §4.2/§4.4). The producer's bounded context
// carries the acknowledgement-window timeout.
func (r *HTTPReceiver) publish(ctx context.Context, ev *event.Event) error {
	if ev.Source == "" {
		return apperrors.Validation("source is required")
	}
	if ev.ID == "" {
		ev.ID = uuid.New().String()
	}
	if ev.Timestamp.IsZero() {
		ev.Timestamp = time.Now().UTC()
	}
	if ev.EventType == "" {
		ev.EventType = "log"
	}

	value, err := json.Marshal(ev)
	if err != nil {
		return apperrors.Internal("failed to encode event")
	}

	ackCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	if err := r.producer.Publish(ackCtx, bus.TopicRawLogs, []byte(ev.Source), value); err != nil {
		return apperrors.ServiceUnavailable("failed to publish event: " + err.Error())
	}
	return nil
}

// checkQuotas enforces the request-rate quota plus an additional quota
// (batch-rate or event-rate) for the endpoint, writing the X-RateLimit-*
// headers and a 429 on denial.
func (r *HTTPReceiver) checkQuotas(w http.ResponseWriter, req *http.Request, claims *auth.Claims, quotas ...ratelimit.Quota) bool {
	if r.limiter == nil {
		return true
	}
	res, err := r.limiter.CheckAll(req.Context(), claims.Subject, quotas)
	if err != nil {
		r.writeError(w, apperrors.ServiceUnavailable("rate limit check unavailable"))
		return false
	}
	for k, v := range ratelimit.Headers(res) {
		w.Header().Set(k, v)
	}
	if !res.Allowed {
		r.rateLimited.Add(1)
		r.writeError(w, apperrors.RateLimited(fmt.Sprintf("%s limit exceeded", res.Quota), int(res.RetryAfter.Seconds())))
		return false
	}
	return true
}

func (r *HTTPReceiver) readBody(req *http.Request) ([]byte, error) {
	var reader io.Reader = req.Body
	if req.Header.Get("Content-Encoding") == "gzip" {
		gz, err := gzip.NewReader(req.Body)
		if err != nil {
			return nil, err
		}
		defer gz.Close()
		reader = gz
	}
	body, err := io.ReadAll(io.LimitReader(reader, r.config.MaxBodySize))
	if err != nil {
		return nil, err
	}
	r.bytesReceived.Add(uint64(len(body)))
	return body, nil
}

func (r *HTTPReceiver) writeError(w http.ResponseWriter, err error) {
	status := apperrors.GetHTTPStatus(err)
	var resp apperrors.Response
	var appErr *apperrors.AppError
	if ae, ok := err.(*apperrors.AppError); ok {
		appErr = ae
		resp = appErr.ToResponse()
	} else {
		resp = apperrors.Internal(err.Error()).ToResponse()
	}
	writeJSON(w, status, resp)
}

func writeJSON(w http.ResponseWriter, status int, body interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}

func clientIP(req *http.Request) string {
	if fwd := req.Header.Get("X-Forwarded-For"); fwd != "" {
		parts := strings.Split(fwd, ",")
		return strings.TrimSpace(parts[0])
	}
	host, _, err := net.SplitHostPort(req.RemoteAddr)
	if err != nil {
		return req.RemoteAddr
	}
	return host
}
