package httpx

import (
	"net/http"

	"github.com/goccy/go-json"
)

// JSON sends a JSON response with the given status code. It does not apply
// security headers; use Finisher.JSON for client-facing responses.
func JSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}

// DecodeJSON decodes JSON request body into the target struct, rejecting
// unknown fields and bodies larger than maxBytes.
func DecodeJSON(w http.ResponseWriter, r *http.Request, target any, maxBytes int64) error {
	if maxBytes <= 0 {
		maxBytes = 1 << 20
	}
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBytes))
	dec.DisallowUnknownFields()
	return dec.Decode(target)
}
