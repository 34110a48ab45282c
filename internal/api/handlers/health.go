package handlers

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/jmoiron/sqlx"

	"conduit/internal/engine/jobs"
)

type HealthHandler struct {
	db    *sqlx.DB
	queue *jobs.Queue
}

func NewHealthHandler(db *sqlx.DB, queue *jobs.Queue) *HealthHandler {
	return &HealthHandler{db: db, queue: queue}
}

func (h *HealthHandler) Check(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
	defer cancel()

	checks := make(map[string]string)

	if err := h.db.PingContext(ctx); err != nil {
		checks["database"] = "unhealthy: " + err.Error()
	} else {
		checks["database"] = "healthy"
	}

	var queue map[string]int
	if counts, err := h.queue.CountByStatus(ctx); err != nil {
		checks["queue"] = "unhealthy: " + err.Error()
	} else {
		checks["queue"] = "healthy"
		queue = make(map[string]int, len(counts))
		for status, n := range counts {
			queue[string(status)] = n
		}
	}

	status := "healthy"
	for _, check := range checks {
		if len(check) >= 9 && check[:9] == "unhealthy" {
			status = "degraded"
			break
		}
	}

	response := struct {
		Status    string            `json:"status"`
		Timestamp int64             `json:"timestamp"`
		Checks    map[string]string `json:"checks"`
		Jobs      map[string]int    `json:"jobs,omitempty"`
	}{
		Status:    status,
		Timestamp: time.Now().Unix(),
		Checks:    checks,
		Jobs:      queue,
	}

	statusCode := http.StatusOK
	if status == "degraded" {
		statusCode = http.StatusServiceUnavailable
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	json.NewEncoder(w).Encode(response)
}
