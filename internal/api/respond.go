package api

import (
	"encoding/json"
	"net/http"

	"go.uber.org/zap"

	"jobtracker/internal/errors"
)

type errorBody struct {
	Type    errors.ErrorType  `json:"type"`
	Message string            `json:"message"`
	Fields  map[string]string `json:"fields,omitempty"`
}

// StatusCode maps a domain error to the HTTP status reported for it.
func StatusCode(err error) int {
	switch errors.TypeOf(err) {
	case errors.ErrTypeValidation:
		return http.StatusBadRequest
	case errors.ErrTypeAuthRequired, errors.ErrTypeUnauthorized:
		return http.StatusUnauthorized
	case errors.ErrTypeNotFound:
		return http.StatusNotFound
	case errors.ErrTypeConflict:
		return http.StatusConflict
	case errors.ErrTypeFetch, errors.ErrTypeWrite:
		return http.StatusBadGateway
	case errors.ErrTypeUnavailable:
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func (s *Server) writeError(w http.ResponseWriter, r *http.Request, err error) {
	status := StatusCode(err)
	body := errorBody{
		Type:    errors.TypeOf(err),
		Message: errors.MessageOf(err),
		Fields:  errors.FieldsOf(err),
	}
	if body.Type == "" {
		body.Type = errors.ErrTypeInternal
		body.Message = "internal error"
	}
	if status >= http.StatusInternalServerError {
		s.logger.Error("Request failed",
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
			zap.Error(err))
	}
	writeJSON(w, status, map[string]errorBody{"error": body})
}

func decodeJSON(r *http.Request, v any) error {
	defer r.Body.Close()
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		return errors.Validation("invalid JSON body", map[string]string{"body": err.Error()})
	}
	return nil
}
