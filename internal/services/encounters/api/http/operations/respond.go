package operations

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"runtime/debug"

	apperrors "github.com/louisbranch/opsroom/internal/platform/errors"
	"github.com/louisbranch/opsroom/internal/platform/errors/i18n"
	"github.com/louisbranch/opsroom/internal/platform/requestctx"
)

const maxBodyBytes = 1 << 20

type errorBody struct {
	Error errorDetail `json:"error"`
}

type errorDetail struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

func writeJSON(w http.ResponseWriter, status int, payload any) error {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	return json.NewEncoder(w).Encode(payload)
}

// writeError renders err as a localized JSON error body.
func (h *Handler) writeError(w http.ResponseWriter, r *http.Request, err error) {
	status := apperrors.HTTPStatus(err)
	code := apperrors.CodeOf(err)
	if status >= http.StatusInternalServerError {
		h.logger.ErrorContext(r.Context(), "request failed",
			slog.String("method", r.Method),
			slog.String("path", r.URL.Path),
			slog.String("code", string(code)),
			slog.Any("err", err),
		)
	}
	locale := requestctx.LocaleFromContext(r.Context())
	body := errorBody{Error: errorDetail{Code: string(code), Message: apperrors.Localize(err, locale)}}
	if writeErr := writeJSON(w, status, body); writeErr != nil {
		h.logger.WarnContext(r.Context(), "write error response", slog.Any("err", writeErr))
	}
}

func (h *Handler) respond(w http.ResponseWriter, r *http.Request, status int, payload any) {
	if err := writeJSON(w, status, payload); err != nil {
		h.logger.WarnContext(r.Context(), "write response", slog.Any("err", err))
	}
}

// decodeJSON reads one JSON object from the request body.
func decodeJSON(w http.ResponseWriter, r *http.Request, target any) error {
	decoder := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	decoder.DisallowUnknownFields()
	if err := decoder.Decode(target); err != nil {
		reason := "request body must be valid JSON"
		var maxErr *http.MaxBytesError
		if errors.As(err, &maxErr) {
			reason = "request body is too large"
		} else if errors.Is(err, io.EOF) {
			reason = "request body is required"
		}
		return apperrors.WithMetadata(apperrors.CodeInvalidArgument, reason, map[string]string{"Reason": reason})
	}
	if decoder.More() {
		reason := "request body must hold a single JSON object"
		return apperrors.WithMetadata(apperrors.CodeInvalidArgument, reason, map[string]string{"Reason": reason})
	}
	return nil
}

// withLocale negotiates the response locale from Accept-Language.
func withLocale(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		locale := i18n.MatchLocale(r.Header.Get("Accept-Language"))
		next.ServeHTTP(w, r.WithContext(requestctx.WithLocale(r.Context(), locale)))
	})
}

// recoverPanic converts handler panics into 500 responses.
func (h *Handler) recoverPanic(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		defer func() {
			if recovered := recover(); recovered != nil {
				h.logger.ErrorContext(r.Context(), "panic recovered",
					slog.String("method", r.Method),
					slog.String("path", r.URL.Path),
					slog.Any("panic", recovered),
					slog.String("stack", string(debug.Stack())),
				)
				h.writeError(w, r, fmt.Errorf("panic: %v", recovered))
			}
		}()
		next.ServeHTTP(w, r)
	})
}
