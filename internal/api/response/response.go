package response

import (
	"encoding/json"
	"net/http"

	"device-relay/internal/apperr"
)

// Envelope is the common shape of every JSON body the relay returns.
type Envelope map[string]any

// JSON writes v with the given status.
func JSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// OK writes a success envelope merged with fields.
func OK(w http.ResponseWriter, status int, message string, fields Envelope) {
	body := Envelope{"success": true}
	if message != "" {
		body["message"] = message
	}
	for k, v := range fields {
		body[k] = v
	}
	JSON(w, status, body)
}

// Error maps err to a status and writes a failure envelope with its code.
func Error(w http.ResponseWriter, err error) {
	JSON(w, apperr.HTTPStatus(err), Envelope{
		"success": false,
		"message": apperr.PublicMessage(err),
		"code":    apperr.CodeOf(err),
	})
}

// DecodeJSON decodes a request body into dst.
func DecodeJSON(r *http.Request, dst any) error {
	defer r.Body.Close()
	dec := json.NewDecoder(http.MaxBytesReader(nil, r.Body, 1<<20))
	if err := dec.Decode(dst); err != nil {
		return ErrInvalidJSON
	}
	return nil
}

// ErrInvalidJSON is returned for malformed request bodies.
var ErrInvalidJSON = apperr.New(apperr.KindValidation, "INVALID_JSON", "invalid json")
