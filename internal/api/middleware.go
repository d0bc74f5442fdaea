package api

import (
	"log/slog"
	"net/http"
	"runtime/debug"
	"strconv"
	"time"

	"github.com/google/uuid"

	"github.com/shaiso/AgentFlow/internal/telemetry"
)

// RequestIDHeader — заголовок корреляции запроса.
const RequestIDHeader = "X-Request-ID"

// Middleware — обёртка http.Handler.
type Middleware func(http.Handler) http.Handler

// Chain собирает middleware так, что первый в списке оказывается внешним.
func Chain(mws ...Middleware) Middleware {
	return func(h http.Handler) http.Handler {
		for i := len(mws) - 1; i >= 0; i-- {
			h = mws[i](h)
		}
		return h
	}
}

// Logging присваивает запросу request_id, кладёт логгер с ним в контекст,
// пишет строку access-лога и увеличивает agentflow_http_requests_total.
func Logging(logger *slog.Logger) Middleware {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			requestID := r.Header.Get(RequestIDHeader)
			if requestID == "" {
				requestID = uuid.NewString()
			}
			w.Header().Set(RequestIDHeader, requestID)

			reqLogger := logger.With("request_id", requestID)
			rec := &statusRecorder{ResponseWriter: w}
			began := time.Now()

			next.ServeHTTP(rec, r.WithContext(telemetry.WithLogger(r.Context(), reqLogger)))

			code := rec.code()
			telemetry.HTTPRequests.WithLabelValues(r.Method, routeOf(r), strconv.Itoa(code)).Inc()
			reqLogger.Info("http request",
				"method", r.Method,
				"path", r.URL.Path,
				"status", code,
				"duration_ms", time.Since(began).Milliseconds(),
			)
		})
	}
}

// Recovery отвечает 500 INTERNAL_ERROR, если обработчик запаниковал.
func Recovery(logger *slog.Logger) Middleware {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			defer func() {
				p := recover()
				if p == nil {
					return
				}
				logger.Error("handler panic",
					"panic", p,
					"path", r.URL.Path,
					"stack", string(debug.Stack()),
				)
				Error(w, http.StatusInternalServerError, ErrCodeInternalError, "internal server error")
			}()

			next.ServeHTTP(w, r)
		})
	}
}

// routeOf возвращает шаблон маршрута ServeMux, чтобы метка не зависела от ID.
func routeOf(r *http.Request) string {
	if r.Pattern != "" {
		return r.Pattern
	}
	return "unmatched"
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (s *statusRecorder) WriteHeader(code int) {
	if s.status == 0 {
		s.status = code
	}
	s.ResponseWriter.WriteHeader(code)
}

func (s *statusRecorder) Write(b []byte) (int, error) {
	if s.status == 0 {
		s.status = http.StatusOK
	}
	return s.ResponseWriter.Write(b)
}

func (s *statusRecorder) code() int {
	if s.status == 0 {
		return http.StatusOK
	}
	return s.status
}
