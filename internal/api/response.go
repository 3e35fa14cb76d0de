// internal/api/response.go
package api

import (
	"encoding/json"
	"net/http"

	apperrors "league-notifications/internal/common/errors"
)

func writeJSON(w http.ResponseWriter, status int, body interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if body != nil {
		_ = json.NewEncoder(w).Encode(body)
	}
}

// writeError renders err as its StandardError with a status derived from the code.
func writeError(w http.ResponseWriter, err error) {
	stdErr := apperrors.Normalize(err)
	writeJSON(w, statusFor(stdErr.Code), map[string]interface{}{"error": stdErr})
}

func writeBadRequest(w http.ResponseWriter, message string) {
	writeJSON(w, http.StatusBadRequest, map[string]interface{}{
		"error": map[string]string{"code": "BAD_REQUEST", "message": message},
	})
}

func statusFor(code apperrors.ErrorCode) int {
	switch code {
	case apperrors.ErrCodeInvalidPreferences,
		apperrors.ErrCodeInvalidBroadcast,
		apperrors.ErrCodeInvalidFilter,
		apperrors.ErrCodeInvalidEventPayload:
		return http.StatusBadRequest
	case apperrors.ErrCodeBroadcastPartialFailure:
		return http.StatusMultiStatus
	case apperrors.ErrCodeSubscriptionTimeout:
		return http.StatusGatewayTimeout
	case apperrors.ErrCodePreferencesLookupFailed,
		apperrors.ErrCodePreferencesUpdateFailed,
		apperrors.ErrCodeRepositoryOperationFailed,
		apperrors.ErrCodeNotificationInsertFailed:
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

func decodeBody(r *http.Request, dst interface{}) error {
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	return dec.Decode(dst)
}
