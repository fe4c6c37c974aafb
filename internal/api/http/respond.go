package http

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"

	"github.com/mind-engage/mindengage-lessons/internal/apperr"
	"github.com/mind-engage/mindengage-lessons/internal/logger"
)

const maxBody = 1 << 20

var errBadJSON = errors.New("bad json")

type errorBody struct {
	Error   string `json:"error"`
	Message string `json:"message"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// writeError maps err onto a status and a stable error code. Internal errors
// are logged and their text withheld.
func writeError(w http.ResponseWriter, r *http.Request, log *logger.Logger, err error) {
	if errors.Is(err, errBadJSON) {
		writeJSON(w, http.StatusBadRequest, errorBody{Error: "bad_request", Message: err.Error()})
		return
	}
	ae := apperr.Classify(err)
	msg := err.Error()
	if ae.Status >= http.StatusInternalServerError {
		log.Error("request failed", "method", r.Method, "path", r.URL.Path, "error", err)
		msg = http.StatusText(ae.Status)
	}
	writeJSON(w, ae.Status, errorBody{Error: ae.Code, Message: msg})
}

func decodeJSON(w http.ResponseWriter, r *http.Request, v any) error {
	r.Body = http.MaxBytesReader(w, r.Body, maxBody)
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		return fmt.Errorf("%w: %v", errBadJSON, err)
	}
	return nil
}
