// Copyright (c) 2025 Daniel Kuo.
// Source-available; no permission granted to use, copy, modify, or distribute. See LICENSE.

package middleware

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"reflect"
	"strings"
	"time"

	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/go-chi/httprate"
	"github.com/go-playground/validator/v10"

	"github.com/danielhkuo/poll-rooms/models"
)

// A single validator instance is used, because it caches struct parsing.
var validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New()
	v.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name := strings.SplitN(fld.Tag.Get("json"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		return name
	})
	return v
}

// WithLogging wraps a handler with request logging
func WithLogging(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := chimw.NewWrapResponseWriter(w, r.ProtoMajor)

		slog.Info("request started",
			"method", r.Method,
			"path", r.URL.Path,
			"remote", r.RemoteAddr,
		)

		next.ServeHTTP(ww, r)

		slog.Info("request completed",
			"method", r.Method,
			"path", r.URL.Path,
			"status", ww.Status(),
			"duration_ms", time.Since(start).Milliseconds(),
		)
	})
}

// JSONResponse writes a JSON response
func JSONResponse(w http.ResponseWriter, statusCode int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	err := json.NewEncoder(w).Encode(data)
	if err != nil {
		slog.Error("failed to encode JSON response", "error", err)
	}
}

// SuccessResponse writes data wrapped in the success envelope
func SuccessResponse(w http.ResponseWriter, statusCode int, message string, data interface{}) {
	JSONResponse(w, statusCode, models.Envelope{
		Status:  models.StatusSuccess,
		Message: message,
		Data:    data,
	})
}

// ErrorResponse writes a JSON error response
func ErrorResponse(w http.ResponseWriter, statusCode int, code, message string) {
	JSONResponse(w, statusCode, models.ErrorResponse{
		Error:   http.StatusText(statusCode),
		Message: message,
		Code:    code,
	})
}

// ParseJSONBody parses the request body into the given struct
func ParseJSONBody(r *http.Request, v interface{}) error {
	defer r.Body.Close()
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		return err
	}
	return nil
}

// ValidationErrorResponse writes a 400 listing the offending fields.
func ValidationErrorResponse(w http.ResponseWriter, message string, fields []models.FieldError) {
	JSONResponse(w, http.StatusBadRequest, models.ErrorResponse{
		Error:   http.StatusText(http.StatusBadRequest),
		Message: message,
		Code:    models.CodeValidation,
		Errors:  fields,
	})
}

// ReadJSON decodes and validates the request body. On failure it writes a
// 400 response listing the offending fields and returns false.
func ReadJSON(w http.ResponseWriter, r *http.Request, v interface{}) bool {
	if err := ParseJSONBody(r, v); err != nil {
		ErrorResponse(w, http.StatusBadRequest, models.CodeValidation, "Invalid JSON")
		return false
	}

	err := validate.Struct(v)
	var validationErrors validator.ValidationErrors
	if errors.As(err, &validationErrors) {
		fields := make([]models.FieldError, 0, len(validationErrors))
		for _, ve := range validationErrors {
			fields = append(fields, models.FieldError{
				Field:  ve.Field(),
				Detail: fmt.Sprintf("validation failed for tag %q", ve.Tag()),
			})
		}
		ValidationErrorResponse(w, "Validation failed", fields)
		return false
	}
	if err != nil {
		slog.Error("request validation", "error", err)
		ErrorResponse(w, http.StatusInternalServerError, models.CodeInternal, "Internal error")
		return false
	}
	return true
}

// CORS allows cross-origin requests from the frontend. Credentials are
// allowed so the voter cookie travels with vote requests.
func CORS(allowedOrigins []string) func(http.Handler) http.Handler {
	if len(allowedOrigins) == 0 {
		allowedOrigins = []string{"*"}
	}
	return cors.Handler(cors.Options{
		AllowedOrigins:   allowedOrigins,
		AllowedMethods:   []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders:   []string{"Content-Type", "Authorization", "X-Voter-Token"},
		AllowCredentials: true,
		MaxAge:           300,
	})
}

// RateLimitByIP limits requests per client IP. A limit of zero disables it.
func RateLimitByIP(limit int, window time.Duration) func(http.Handler) http.Handler {
	if limit <= 0 || window <= 0 {
		return func(next http.Handler) http.Handler { return next }
	}
	return httprate.Limit(
		limit,
		window,
		httprate.WithKeyFuncs(func(r *http.Request) (string, error) {
			return GetClientIP(r), nil
		}),
		httprate.WithLimitHandler(func(w http.ResponseWriter, r *http.Request) {
			slog.Warn("rate limit exceeded", "path", r.URL.Path, "ip", GetClientIP(r))
			ErrorResponse(w, http.StatusTooManyRequests, models.CodeRateLimited, "Too many requests, slow down.")
		}),
	)
}

// GetClientIP returns the transport peer address without its port.
// Forwarding headers are ignored here; when the server runs behind a trusted
// proxy, TrustProxyHeaders rewrites RemoteAddr before this is called.
func GetClientIP(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		host = r.RemoteAddr
	}
	if ip := net.ParseIP(host); ip != nil {
		return ip.String()
	}
	return host
}

// TrustProxyHeaders sets RemoteAddr from True-Client-IP, X-Real-IP or
// X-Forwarded-For when enabled, and is a no-op otherwise. Only enable it
// behind a proxy that overwrites those headers.
func TrustProxyHeaders(enabled bool) func(http.Handler) http.Handler {
	if !enabled {
		return func(next http.Handler) http.Handler { return next }
	}
	return chimw.RealIP
}
