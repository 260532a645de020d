package api

import (
	"encoding/json"
	"net/http"
)

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}

func writeRawJSON(w http.ResponseWriter, code int, body []byte) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_, _ = w.Write(body)
	_, _ = w.Write([]byte("\n"))
}

// writeErr writes a generic body for status. Error detail belongs in logs.
func writeErr(w http.ResponseWriter, code int) {
	apiErr := toAPIError(code)
	writeJSON(w, code, map[string]any{
		"error": map[string]any{
			"code":    apiErr.Code,
			"message": apiErr.Message,
		},
	})
}

type apiError struct {
	Code    string
	Message string
}

func toAPIError(status int) apiError {
	switch status {
	case http.StatusBadRequest:
		return apiError{Code: "CC-API-4001", Message: "Invalid request. Check inputs and retry."}
	case http.StatusUnauthorized:
		return apiError{Code: "CC-API-4010", Message: "Missing or invalid credentials."}
	case http.StatusNotFound:
		return apiError{Code: "CC-API-4004", Message: "Requested resource was not found."}
	case http.StatusMethodNotAllowed:
		return apiError{Code: "CC-API-4005", Message: "This endpoint does not support the requested method."}
	case http.StatusConflict:
		return apiError{Code: "CC-API-4009", Message: "Operation conflicts with current state. Retry after checking status."}
	case http.StatusUnprocessableEntity:
		return apiError{Code: "CC-API-4022", Message: "The submitted configuration is invalid."}
	case http.StatusServiceUnavailable:
		return apiError{Code: "CC-API-5030", Message: "A backend is temporarily unavailable. Retry shortly."}
	}
	if status >= 500 {
		return apiError{Code: "CC-API-5000", Message: "Internal server error. Please retry or check service logs."}
	}
	return apiError{Code: "CC-API-4000", Message: "Request failed."}
}
