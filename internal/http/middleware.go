package http

import (
	"bytes"
	"context"
	"net"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/propagation"

	"github.com/robertarktes/seatcheckout/internal/idempotency"
	"github.com/robertarktes/seatcheckout/internal/observability"
	"github.com/robertarktes/seatcheckout/internal/rateLimit"
)

type loggerKey struct{}

var fallbackLogger = observability.NopLogger()

func loggerFrom(ctx context.Context) observability.Logger {
	if l, ok := ctx.Value(loggerKey{}).(observability.Logger); ok {
		return l
	}
	return fallbackLogger
}

func RequestIDMiddleware(next http.Handler) http.Handler {
	return middleware.RequestID(next)
}

func LoggerMiddleware(logger observability.Logger) func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			reqID := middleware.GetReqID(r.Context())
			entry := logger.WithField("request_id", reqID)
			ctx := context.WithValue(r.Context(), loggerKey{}, entry)

			start := time.Now()
			ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
			next.ServeHTTP(ww, r.WithContext(ctx))
			entry.WithField("status", ww.Status()).
				WithField("duration_ms", time.Since(start).Milliseconds()).
				Debug(r.Method + " " + r.URL.Path)
		})
	}
}

func MetricsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)

		route := "unmatched"
		if rctx := chi.RouteContext(r.Context()); rctx != nil && rctx.RoutePattern() != "" {
			route = rctx.RoutePattern()
		}
		status := ww.Status()
		if status == 0 {
			status = http.StatusOK
		}
		observability.RequestsTotal.WithLabelValues(route, strconv.Itoa(status), r.Method).Inc()
	})
}

func TracingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ctx := otel.GetTextMapPropagator().Extract(r.Context(), propagation.HeaderCarrier(r.Header))
		tracer := otel.Tracer("http")
		ctx, span := tracer.Start(ctx, r.Method+" "+r.URL.Path)
		defer span.End()

		span.SetAttributes(
			attribute.String("http.method", r.Method),
			attribute.String("http.url", r.URL.String()),
		)

		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// RateLimitMiddleware limits by buyer when authenticated and by client IP
// otherwise. A nil limiter disables limiting.
func RateLimitMiddleware(rl *rateLimit.RateLimiter) func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		if rl == nil {
			return next
		}
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			key := "ip:" + clientIP(r)
			if p, ok := PrincipalFrom(r.Context()); ok {
				key = "user:" + p.UserID
			}
			if !rl.Allow(r.Context(), key) {
				writeJSON(w, http.StatusTooManyRequests, errorResponse{Error: "rate limit exceeded"})
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

func clientIP(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}

const minIdempotencyKeyLen = 16

// IdempotencyMiddleware replays the stored response for a repeated
// Idempotency-Key. Only successful responses are stored, so a failed attempt
// can be retried with the same key.
func IdempotencyMiddleware(idemp *idempotency.Idempotency) func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			key := r.Header.Get("Idempotency-Key")
			if key == "" {
				writeJSON(w, http.StatusBadRequest, errorResponse{Error: "missing Idempotency-Key"})
				return
			}
			if len(key) < minIdempotencyKeyLen {
				writeJSON(w, http.StatusBadRequest, errorResponse{Error: "invalid Idempotency-Key"})
				return
			}
			p, _ := PrincipalFrom(r.Context())
			ctx := r.Context()

			// The stored response is read under the key lock so a request that
			// finished while this one waited is replayed, not run again.
			if err := idemp.Begin(ctx, p.UserID, key); err != nil {
				writeError(w, r, err)
				return
			}
			defer func() {
				if err := idemp.End(context.WithoutCancel(ctx), p.UserID, key); err != nil {
					loggerFrom(ctx).Warn("release idempotency key: ", err)
				}
			}()

			existing, err := idemp.Get(ctx, p.UserID, key)
			if err != nil {
				writeError(w, r, err)
				return
			}
			if existing != nil {
				w.Header().Set("Content-Type", "application/json")
				w.Header().Set("Idempotent-Replayed", "true")
				w.WriteHeader(existing.Status)
				_, _ = w.Write(existing.Result)
				return
			}

			var body bytes.Buffer
			ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
			ww.Tee(&body)
			next.ServeHTTP(ww, r)

			if ww.Status() >= 200 && ww.Status() < 300 {
				resp := idempotency.Response{Status: ww.Status(), Result: body.Bytes()}
				if err := idemp.Set(context.WithoutCancel(ctx), p.UserID, key, resp); err != nil {
					loggerFrom(ctx).Warn("store idempotent response: ", err)
				}
			}
		})
	}
}
