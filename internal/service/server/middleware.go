package server

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"iou_ledger/internal/fault"
	"iou_ledger/internal/utils/log"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

const (
	headerRequestID = "X-Request-ID"
	headerSession   = "X-Session-ID"
)

type ctxKey int

const sessionUserKey ctxKey = iota

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(status int) {
	r.status = status
	r.ResponseWriter.WriteHeader(status)
}

func (s *HttpServer) logRequests(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := r.Header.Get(headerRequestID)
		if id == "" {
			id = uuid.NewString()
		}
		w.Header().Set(headerRequestID, id)

		// websocket upgrades need the raw writer for hijacking
		if r.URL.Path == "/ws" {
			log.Info("websocket request", zap.String("request_id", id), zap.String("user", r.URL.Query().Get("username")))
			next.ServeHTTP(w, r)
			return
		}

		start := time.Now()
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(rec, r)

		log.Info("request",
			zap.String("request_id", id),
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
			zap.Int("status", rec.status),
			zap.Duration("elapsed", time.Since(start)),
		)
	})
}

func (s *HttpServer) rateLimit(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if s.limiter != nil && !s.limiter.Allow() {
			writeJSON(w, http.StatusTooManyRequests, errorBody{
				Status:    "error",
				Kind:      "rate_limited",
				Error:     "too many requests",
				Retryable: true,
			})
			return
		}
		next.ServeHTTP(w, r)
	})
}

// requireSession rejects requests without a live X-Session-ID when sessions
// are enforced, and records the session's user on the context.
func (s *HttpServer) requireSession(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !s.opts.RequireSession {
			next.ServeHTTP(w, r)
			return
		}

		username, err := s.svc.Auth.Session(r.Context(), r.Header.Get(headerSession))
		if err != nil {
			writeError(w, r, err)
			return
		}
		next.ServeHTTP(w, r.WithContext(context.WithValue(r.Context(), sessionUserKey, username)))
	})
}

func sessionUser(r *http.Request) (string, bool) {
	username, ok := r.Context().Value(sessionUserKey).(string)
	return username, ok
}

// actingAs fails when a session is in force and belongs to someone other
// than username.
func actingAs(r *http.Request, username string) error {
	owner, ok := sessionUser(r)
	if !ok || owner == username {
		return nil
	}
	return fmt.Errorf("session belongs to %q: %w", owner, fault.ErrUnauthorized)
}

// actingAsKey is actingAs for requests that name their user by public key.
func (s *HttpServer) actingAsKey(r *http.Request, pubkey string) error {
	owner, ok := sessionUser(r)
	if !ok {
		return nil
	}
	u, err := s.svc.Directory.GetByPubkey(r.Context(), pubkey)
	if err != nil {
		return err
	}
	if u.Username != owner {
		return fmt.Errorf("session belongs to %q: %w", owner, fault.ErrUnauthorized)
	}
	return nil
}
