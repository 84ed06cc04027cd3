package httpapi

import (
	"encoding/json"
	"net/http"

	"github.com/gorilla/mux"

	"github.com/shortlyhq/shortly/internal/apierr"
	"github.com/shortlyhq/shortly/internal/urlsvc"
)

type shortenRequest struct {
	URL   string `json:"url" validate:"required"`
	Alias string `json:"alias,omitempty" validate:"omitempty,max=64"`
}

func shortenHandler(svc *urlsvc.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req shortenRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeError(w, apierr.BadRequestf("malformed request body"))
			return
		}
		if err := validateStruct(req); err != nil {
			writeError(w, err)
			return
		}
		result, err := svc.Shorten(r.Context(), req.URL, req.Alias)
		if err != nil {
			writeError(w, err)
			return
		}
		writeOK(w, result)
	}
}

func redirectHandler(svc *urlsvc.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		code := mux.Vars(r)["id"]
		target, err := svc.Redirect(r.Context(), code)
		if err != nil {
			writeError(w, err)
			return
		}
		w.Header().Set("Location", target)
		w.WriteHeader(http.StatusPermanentRedirect)
	}
}

func healthCheckHandler(w http.ResponseWriter, r *http.Request) {
	writeOKMessage(w, "ok", nil)
}
