package handlers

import (
	"errors"
	"net/http"

	"github.com/hibiken/asynq"
	"github.com/redis/go-redis/v9"
	"gorm.io/gorm"
)

// QueueInspector reports queue depth; *asynq.Inspector satisfies it.
type QueueInspector interface {
	GetQueueInfo(queue string) (*asynq.QueueInfo, error)
}

type HealthHandler struct {
	db        *gorm.DB
	redis     *redis.Client
	inspector QueueInspector
	queues    []string
}

func NewHealthHandler(db *gorm.DB, redis *redis.Client, inspector QueueInspector, queues ...string) *HealthHandler {
	return &HealthHandler{db: db, redis: redis, inspector: inspector, queues: queues}
}

type HealthResponse struct {
	Status   string                `json:"status"`
	Services map[string]string     `json:"services"`
	Queues   map[string]QueueStats `json:"queues,omitempty"`
}

type QueueStats struct {
	Pending   int `json:"pending"`
	Active    int `json:"active"`
	Retry     int `json:"retry"`
	Archived  int `json:"archived"`
	Processed int `json:"processed_today"`
	Failed    int `json:"failed_today"`
}

func (h *HealthHandler) Health(w http.ResponseWriter, r *http.Request) {
	services := make(map[string]string)
	status := "healthy"

	sqlDB, err := h.db.DB()
	if err != nil || sqlDB.PingContext(r.Context()) != nil {
		services["database"] = "unhealthy"
		status = "unhealthy"
	} else {
		services["database"] = "healthy"
	}

	if h.redis != nil {
		if err := h.redis.Ping(r.Context()).Err(); err != nil {
			services["redis"] = "unhealthy"
			status = "unhealthy"
		} else {
			services["redis"] = "healthy"
		}
	}

	var queues map[string]QueueStats
	if h.inspector != nil {
		queues = make(map[string]QueueStats, len(h.queues))
		services["queue"] = "healthy"
		for _, q := range h.queues {
			info, err := h.inspector.GetQueueInfo(q)
			if errors.Is(err, asynq.ErrQueueNotFound) {
				queues[q] = QueueStats{}
				continue
			}
			if err != nil {
				services["queue"] = "unhealthy"
				status = "unhealthy"
				break
			}
			queues[q] = QueueStats{
				Pending:   info.Pending,
				Active:    info.Active,
				Retry:     info.Retry,
				Archived:  info.Archived,
				Processed: info.Processed,
				Failed:    info.Failed,
			}
		}
	}

	statusCode := http.StatusOK
	if status == "unhealthy" {
		statusCode = http.StatusServiceUnavailable
	}

	writeJSON(w, statusCode, HealthResponse{
		Status:   status,
		Services: services,
		Queues:   queues,
	})
}

func (h *HealthHandler) Ready(w http.ResponseWriter, _ *http.Request) {
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ok"))
}
