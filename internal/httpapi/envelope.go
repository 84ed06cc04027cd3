package httpapi

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/shortlyhq/shortly/internal/apierr"
)

// envelope is the JSON response shape used by every endpoint (§6).
type envelope struct {
	Success bool        `json:"success"`
	Message string      `json:"message,omitempty"`
	Status  int         `json:"status"`
	Time    string      `json:"time"`
	Data    interface{} `json:"data,omitempty"`
}

func writeJSON(w http.ResponseWriter, status int, env envelope) {
	env.Status = status
	env.Time = time.Now().Format(time.RFC3339)
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(env)
}

func writeOK(w http.ResponseWriter, data interface{}) {
	writeJSON(w, http.StatusOK, envelope{Success: true, Status: http.StatusOK, Data: data})
}

func writeOKMessage(w http.ResponseWriter, message string, data interface{}) {
	writeJSON(w, http.StatusOK, envelope{Success: true, Message: message, Data: data})
}

// writeError translates any error into the API-facing envelope, defaulting
// to Internal for anything that isn't an *apierr.Error so store/internal
// details never leak to the client.
func writeError(w http.ResponseWriter, err error) {
	aerr := apierr.As(err)
	status := apierr.HTTPStatus(aerr)
	writeJSON(w, status, envelope{Success: false, Message: aerr.Message})
}
