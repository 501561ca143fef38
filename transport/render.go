package transport

import (
	"encoding/json"
	"net/http"

	goerrors "github.com/goliatone/go-errors"
)

type ErrorEnvelope struct {
	Error ErrorBody `json:"error"`
}

type ErrorBody struct {
	Code     string         `json:"code"`
	Message  string         `json:"message"`
	Metadata map[string]any `json:"metadata,omitempty"`
}

// RenderError converts any error into a status code and JSON envelope.
// Errors that already carry a go-errors envelope keep their code and text
// code, so business failures from a requester are not relabelled.
func RenderError(err error) (int, ErrorEnvelope) {
	var rich *goerrors.Error
	if !goerrors.As(err, &rich) {
		rich = transportWrapError(err, goerrors.CategoryInternal, "transport: request failed", http.StatusInternalServerError, nil)
	}
	status := rich.Code
	if status < 400 || status > 599 {
		status = categoryStatus(rich.Category)
	}
	code := rich.TextCode
	if code == "" {
		code = transportTextCode(rich.Category)
	}
	return status, ErrorEnvelope{Error: ErrorBody{
		Code:     code,
		Message:  rich.Message,
		Metadata: rich.Metadata,
	}}
}

func categoryStatus(category goerrors.Category) int {
	switch category {
	case goerrors.CategoryBadInput, goerrors.CategoryValidation:
		return http.StatusBadRequest
	case goerrors.CategoryNotFound:
		return http.StatusNotFound
	case goerrors.CategoryConflict:
		return http.StatusConflict
	case goerrors.CategoryOperation:
		return http.StatusUnprocessableEntity
	default:
		return http.StatusInternalServerError
	}
}

func (a *Adapter) writeError(w http.ResponseWriter, r *http.Request, route Route, err error) {
	status, envelope := RenderError(err)
	fields := []any{
		"route", route.Name,
		"method", r.Method,
		"status", status,
		"code", envelope.Error.Code,
		"error", err.Error(),
	}
	logger := a.logger.WithContext(r.Context())
	if status >= http.StatusInternalServerError {
		logger.Error("route request failed", fields...)
	} else {
		logger.Warn("route request rejected", fields...)
	}
	writeJSON(w, status, envelope)
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}
