package httpx

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/getsentry/sentry-go"

	"github.com/nadajinny/GROO/internal/apperror"
)

const MaxJSONBodyBytes = 1 << 20

type Envelope struct {
	Success bool           `json:"success"`
	Data    any            `json:"data"`
	Message string         `json:"message,omitempty"`
	Code    *apperror.Code `json:"code"`
}

func WriteJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}

func WriteData(w http.ResponseWriter, status int, data any) {
	WriteJSON(w, status, Envelope{Success: true, Data: data})
}

// WriteError renders err as a failure envelope. Unclassified errors are
// reported to Sentry and surface as INTERNAL_SERVER_ERROR.
func WriteError(w http.ResponseWriter, err error) {
	appErr, ok := apperror.From(err)
	if !ok || appErr.Code == apperror.CodeInternal {
		sentry.CaptureException(err)
		appErr = apperror.ErrInternal
	}
	if appErr.Code == apperror.CodeUnauthorized {
		w.Header().Set("WWW-Authenticate", "Bearer")
	}

	code := appErr.Code
	WriteJSON(w, appErr.Status, Envelope{
		Success: false,
		Data:    nil,
		Message: appErr.Message,
		Code:    &code,
	})
}

// DecodeJSON reads a bounded JSON body into dst, rejecting unknown fields.
func DecodeJSON(w http.ResponseWriter, r *http.Request, dst any) error {
	r.Body = http.MaxBytesReader(w, r.Body, MaxJSONBodyBytes)

	decoder := json.NewDecoder(r.Body)
	decoder.DisallowUnknownFields()
	if err := decoder.Decode(dst); err != nil {
		var maxErr *http.MaxBytesError
		if errors.As(err, &maxErr) {
			return apperror.Validation("request body is too large")
		}
		return apperror.Validation("invalid json body")
	}

	return nil
}
