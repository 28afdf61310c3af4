package httpadapter

import (
	"context"
	"log/slog"
	"math"
	"net"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5/middleware"
	"github.com/google/uuid"
	"golang.org/x/time/rate"
)

const requestIDHeader = "X-Request-Id"

type requestIDContextKey struct{}

func requestIDFromContext(ctx context.Context) string {
	if ctx == nil {
		return ""
	}
	requestID, _ := ctx.Value(requestIDContextKey{}).(string)
	return requestID
}

func requestIDMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requestID := strings.TrimSpace(r.Header.Get(requestIDHeader))
		if requestID == "" {
			requestID = uuid.NewString()
		}

		ctx := context.WithValue(r.Context(), requestIDContextKey{}, requestID)
		r = r.WithContext(ctx)
		w.Header().Set(requestIDHeader, requestID)

		next.ServeHTTP(w, r)
	})
}

func accessLogMiddleware(logger *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)

			next.ServeHTTP(ww, r)

			status := ww.Status()
			if status == 0 {
				status = http.StatusOK
			}

			remoteAddr := r.RemoteAddr
			if host, _, err := net.SplitHostPort(r.RemoteAddr); err == nil {
				remoteAddr = host
			}

			logAttrs := []any{
				"request_id", requestIDFromContext(r.Context()),
				"method", r.Method,
				"path", r.URL.Path,
				"status", status,
				"duration_ms", float64(time.Since(start).Microseconds()) / 1000.0,
				"bytes", ww.BytesWritten(),
				"remote_addr", remoteAddr,
				"user_agent", r.UserAgent(),
			}

			switch {
			case status >= 500:
				logger.Error("http_request", logAttrs...)
			case status >= 400:
				logger.Warn("http_request", logAttrs...)
			default:
				logger.Info("http_request", logAttrs...)
			}
		})
	}
}

// rejectFunc is told why traffic control turned a request away.
type rejectFunc func(reason string)

// rateLimitMiddleware applies a process-wide token bucket. A non-positive rps
// disables it.
func rateLimitMiddleware(next http.Handler, rps float64, burst int, onReject rejectFunc) http.Handler {
	if rps <= 0 {
		return next
	}
	if burst <= 0 {
		burst = int(math.Max(1, math.Ceil(rps)))
	}
	limiter := rate.NewLimiter(rate.Limit(rps), burst)

	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		reservation := limiter.Reserve()
		if !reservation.OK() {
			reject(w, r, http.StatusTooManyRequests, "rate limit exceeded", time.Second, "rate_limited", onReject)
			return
		}
		if delay := reservation.Delay(); delay > 0 {
			reservation.Cancel()
			reject(w, r, http.StatusTooManyRequests, "rate limit exceeded", delay, "rate_limited", onReject)
			return
		}
		next.ServeHTTP(w, r)
	})
}

// backpressureMiddleware bounds in-flight requests. A request waits up to
// wait for a slot and is turned away with 503 when none frees up.
func backpressureMiddleware(next http.Handler, maxInFlight int, wait time.Duration, onReject rejectFunc) http.Handler {
	if maxInFlight <= 0 {
		return next
	}
	slots := make(chan struct{}, maxInFlight)

	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case slots <- struct{}{}:
		default:
			timer := time.NewTimer(wait)
			defer timer.Stop()
			select {
			case slots <- struct{}{}:
			case <-timer.C:
				reject(w, r, http.StatusServiceUnavailable, "server is overloaded, retry later", wait, "overloaded", onReject)
				return
			case <-r.Context().Done():
				return
			}
		}
		defer func() { <-slots }()
		next.ServeHTTP(w, r)
	})
}

func reject(w http.ResponseWriter, r *http.Request, status int, message string, retryAfter time.Duration, reason string, onReject rejectFunc) {
	if onReject != nil {
		onReject(reason)
	}
	seconds := int(math.Ceil(retryAfter.Seconds()))
	if seconds < 1 {
		seconds = 1
	}
	w.Header().Set("Retry-After", strconv.Itoa(seconds))
	writeJSON(w, status, errorResponse{Error: message, RequestID: requestIDFromContext(r.Context())})
}
