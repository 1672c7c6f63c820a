package handler

import (
	"context"
	"time"

	"github.com/gofiber/fiber/v2"
)

// CheckFunc reports whether one dependency is reachable.
type CheckFunc func(ctx context.Context) error

// HealthHandler 헬스체크 핸들러
type HealthHandler struct {
	database CheckFunc
	redis    CheckFunc
	timeout  time.Duration
}

// NewHealthHandler HealthHandler 생성. redis may be nil when presence
// mirroring is disabled.
func NewHealthHandler(database, redis CheckFunc) *HealthHandler {
	return &HealthHandler{database: database, redis: redis, timeout: 2 * time.Second}
}

// ComponentCheck 컴포넌트 상태
type ComponentCheck struct {
	Status  string `json:"status"`
	Latency string `json:"latency,omitempty"`
	Error   string `json:"error,omitempty"`
}

// HealthResponse 헬스체크 응답
type HealthResponse struct {
	Status    string                    `json:"status"`
	Timestamp string                    `json:"timestamp"`
	Checks    map[string]ComponentCheck `json:"checks"`
}

func (h *HealthHandler) run(ctx context.Context, check CheckFunc) (time.Duration, error) {
	ctx, cancel := context.WithTimeout(ctx, h.timeout)
	defer cancel()
	start := time.Now()
	err := check(ctx)
	return time.Since(start), err
}

// Check 전체 상태 확인 (DB + Redis)
//
// A database failure makes the relay unhealthy; a Redis failure only
// degrades it, since presence falls back to the local roster.
func (h *HealthHandler) Check(c *fiber.Ctx) error {
	response := HealthResponse{
		Status:    "healthy",
		Timestamp: time.Now().Format(time.RFC3339),
		Checks:    make(map[string]ComponentCheck),
	}

	if latency, err := h.run(c.UserContext(), h.database); err != nil {
		response.Status = "unhealthy"
		response.Checks["database"] = ComponentCheck{
			Status: "unhealthy",
			Error:  "database ping failed",
		}
	} else {
		response.Checks["database"] = ComponentCheck{
			Status:  "healthy",
			Latency: latency.String(),
		}
	}

	if h.redis == nil {
		response.Checks["redis"] = ComponentCheck{Status: "not_configured"}
	} else if latency, err := h.run(c.UserContext(), h.redis); err != nil {
		if response.Status == "healthy" {
			response.Status = "degraded"
		}
		response.Checks["redis"] = ComponentCheck{
			Status: "degraded",
			Error:  "redis unreachable",
		}
	} else {
		response.Checks["redis"] = ComponentCheck{
			Status:  "healthy",
			Latency: latency.String(),
		}
	}

	statusCode := fiber.StatusOK
	if response.Status == "unhealthy" {
		statusCode = fiber.StatusServiceUnavailable
	}

	return c.Status(statusCode).JSON(response)
}

// Liveness K8s liveness probe용 (단순 체크)
func (h *HealthHandler) Liveness(c *fiber.Ctx) error {
	return c.SendString("OK")
}

// Readiness K8s readiness probe용 (DB 연결 체크)
func (h *HealthHandler) Readiness(c *fiber.Ctx) error {
	if _, err := h.run(c.UserContext(), h.database); err != nil {
		return c.Status(fiber.StatusServiceUnavailable).SendString("NOT READY")
	}
	return c.SendString("READY")
}
