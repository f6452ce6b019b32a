package response

import (
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5/middleware"
)

// APIResponse is the envelope every endpoint returns. RequestID echoes the
// id the router middleware assigned, so a client-side report can be matched
// to the server logs for the same request.
type APIResponse struct {
	Status    string      `json:"status"`
	RequestID string      `json:"request_id,omitempty"`
	Message   string      `json:"message,omitempty"`
	Data      interface{} `json:"data,omitempty"`
}

func JSON(w http.ResponseWriter, r *http.Request, status int, data interface{}) {
	write(w, status, APIResponse{
		Status:    "success",
		RequestID: middleware.GetReqID(r.Context()),
		Data:      data,
	})
}

func Error(w http.ResponseWriter, r *http.Request, status int, msg string) {
	write(w, status, APIResponse{
		Status:    "error",
		RequestID: middleware.GetReqID(r.Context()),
		Message:   msg,
	})
}

func write(w http.ResponseWriter, status int, resp APIResponse) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(resp)
}
