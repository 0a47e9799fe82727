package api

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"

	"github.com/rewired-gh/oceanoracle/internal/logger"
	"github.com/rewired-gh/oceanoracle/internal/models"
)

const maxBodyBytes = 1 << 20

type errorBody struct {
	Kind    string `json:"kind"`
	Message string `json:"message"`
}

type errorEnvelope struct {
	Error errorBody `json:"error"`
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		logger.Warn("Failed to write response: %v", err)
	}
}

// statusFor maps an error kind to an HTTP status
func statusFor(kind string) int {
	switch kind {
	case models.KindUnknownRegion, models.KindInvalidRequest:
		return http.StatusBadRequest
	case models.KindNotReady, models.KindCleared:
		return http.StatusConflict
	case models.KindTimeout:
		return http.StatusGatewayTimeout
	case models.KindChatUnavailable:
		return http.StatusServiceUnavailable
	case models.KindFetch:
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

// writeError writes the error envelope. Errors without a kind are logged and
// reported with a generic message.
func writeError(w http.ResponseWriter, r *http.Request, err error) {
	kind := models.KindOf(err)
	message := err.Error()

	var kinded models.Kinded
	if !errors.As(err, &kinded) {
		logger.Error("%s %s failed: %v", r.Method, r.URL.Path, err)
		message = "internal server error"
	} else if status := statusFor(kind); status >= http.StatusInternalServerError {
		logger.Error("%s %s failed: %v", r.Method, r.URL.Path, err)
	}

	writeJSON(w, statusFor(kind), errorEnvelope{Error: errorBody{Kind: kind, Message: message}})
}

// decode reads a JSON request body into v
func decode(r *http.Request, v interface{}) error {
	body := io.LimitReader(r.Body, maxBodyBytes)
	if err := json.NewDecoder(body).Decode(v); err != nil {
		if errors.Is(err, io.EOF) {
			return &models.ValidationError{Field: "body", Message: "request body is required"}
		}
		return &models.ValidationError{Field: "body", Message: "malformed JSON: " + err.Error()}
	}
	return nil
}
