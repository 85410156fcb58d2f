package httpx

import (
	"encoding/json"
	"net/http"
)

// errorBody is the payload of every non-2xx response.
type errorBody struct {
	Error string `json:"error"`
}

// fallbackBody is sent when a payload cannot be encoded.
var fallbackBody = []byte(`{"error":"internal server error"}` + "\n")

// writeJSON encodes payload before touching the response so an encoding
// failure still produces a well-formed 500.
func writeJSON(w http.ResponseWriter, status int, payload any) {
	body, err := json.Marshal(payload)
	if err != nil {
		status, body = http.StatusInternalServerError, fallbackBody
	} else {
		body = append(body, '\n')
	}
	h := w.Header()
	h.Set("Content-Type", "application/json")
	h.Set("Cache-Control", "no-store")
	w.WriteHeader(status)
	_, _ = w.Write(body)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, errorBody{Error: msg})
}
