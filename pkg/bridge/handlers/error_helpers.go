package handlers

import (
	"encoding/json"
	"net/http"

	"github.com/voxbridge/voxbridge/pkg/bridge/mw"
)

type errorBody struct {
	Message   string `json:"message"`
	RequestID string `json:"request_id,omitempty"`
}

type errorEnvelope struct {
	Error errorBody `json:"error"`
}

func writeJSONError(w http.ResponseWriter, r *http.Request, status int, message string) {
	reqID, _ := mw.RequestIDFrom(r.Context())
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(errorEnvelope{Error: errorBody{
		Message:   message,
		RequestID: reqID,
	}})
}

type NotFoundHandler struct{}

func (h NotFoundHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	writeJSONError(w, r, http.StatusNotFound, "not found")
}
