package handlers

import (
	"encoding/json"
	"net/http"
)

// InstanceCounter reports how many application instances are live.
type InstanceCounter interface {
	Len() int
}

// HealthHandler responds with service health information.
type HealthHandler struct {
	Instances InstanceCounter
}

// Handle implements GET /healthz.
func (h HealthHandler) Handle(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}

	payload := map[string]any{
		"status": "ok",
	}
	if h.Instances != nil {
		payload["instances"] = h.Instances.Len()
	}

	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(payload)
}
