package api

import (
	"encoding/json"
	"net/http"

	"pidrive-backend/internal/fault"
	"pidrive-backend/internal/models"
)

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

// writeError renders the failure as the JSON error envelope with the
// taxonomy code, mapped onto an HTTP status.
func writeError(w http.ResponseWriter, err error) {
	code := fault.CodeOf(err)
	name := string(code)
	if name == "" {
		name = "INTERNAL"
	}
	writeJSON(w, statusFor(code), models.ErrorResponse{
		Error:   name,
		Message: err.Error(),
	})
}

func writeBadRequest(w http.ResponseWriter, message string) {
	writeJSON(w, http.StatusBadRequest, models.ErrorResponse{
		Error:   "BAD_REQUEST",
		Message: message,
	})
}

func statusFor(code fault.Code) int {
	switch code {
	case fault.CodeAuthentication:
		return http.StatusUnauthorized
	case fault.CodeConnection:
		return http.StatusBadGateway
	case fault.CodePathEscape, fault.CodeInvalidName:
		return http.StatusBadRequest
	case fault.CodeNotFound, fault.CodeSourceUnavailable:
		return http.StatusNotFound
	case fault.CodeNameConflict:
		return http.StatusConflict
	case fault.CodeQuotaExceeded:
		return http.StatusRequestEntityTooLarge
	default:
		return http.StatusInternalServerError
	}
}
