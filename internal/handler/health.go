package handler

import (
	"context"
	"database/sql"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/redis/go-redis/v9"
)

// HealthHandler answers load balancer probes.
type HealthHandler struct {
	DB    *sql.DB
	Redis *redis.Client // optional
}

// Live always answers 200 "ok" while the process serves requests.
func Live(c echo.Context) error {
	return c.String(http.StatusOK, "ok")
}

// Ready pings the database and, when configured, Redis.  Redis being down
// is reported but does not fail readiness: the engine works without it.
func (h *HealthHandler) Ready(c echo.Context) error {
	ctx, cancel := context.WithTimeout(c.Request().Context(), 2*time.Second)
	defer cancel()
	body := echo.Map{"database": "ok"}
	if err := h.DB.PingContext(ctx); err != nil {
		body["database"] = err.Error()
		return c.JSON(http.StatusServiceUnavailable, body)
	}
	if h.Redis != nil {
		body["redis"] = "ok"
		if err := h.Redis.Ping(ctx).Err(); err != nil {
			body["redis"] = err.Error()
		}
	}
	return c.JSON(http.StatusOK, body)
}
