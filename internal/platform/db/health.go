package db

import (
	"context"
	"net/http"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/labstack/echo/v4"
)

// PoolHealth is the pool section of the database health response.
type PoolHealth struct {
	TotalConns    int32  `json:"total_conns"`
	IdleConns     int32  `json:"idle_conns"`
	AcquiredConns int32  `json:"acquired_conns"`
	MaxConns      int32  `json:"max_conns"`
	AcquireCount  int64  `json:"acquire_count"`
	WaitDuration  string `json:"wait_duration"`
}

const pingTimeout = 5 * time.Second

// HealthHandler reports database reachability with a bounded ping plus a
// snapshot of the pool counters. Coordinators watch this endpoint when the
// intake pipeline stalls.
func HealthHandler(pool *pgxpool.Pool) echo.HandlerFunc {
	return func(c echo.Context) error {
		ctx, cancel := context.WithTimeout(c.Request().Context(), pingTimeout)
		defer cancel()

		start := time.Now()
		pingErr := pool.Ping(ctx)
		latency := time.Since(start)

		stat := pool.Stat()
		health := PoolHealth{
			TotalConns:    stat.TotalConns(),
			IdleConns:     stat.IdleConns(),
			AcquiredConns: stat.AcquiredConns(),
			MaxConns:      stat.MaxConns(),
			AcquireCount:  stat.AcquireCount(),
			WaitDuration:  stat.AcquireDuration().String(),
		}

		code, body := healthResponse(health, pingErr, latency)
		return c.JSON(code, body)
	}
}

// healthResponse assembles the status code and body for a ping outcome.
func healthResponse(health PoolHealth, pingErr error, latency time.Duration) (int, map[string]interface{}) {
	body := map[string]interface{}{
		"status":     "healthy",
		"latency_ms": latency.Milliseconds(),
		"pool":       health,
	}
	if pingErr != nil {
		body["status"] = "unhealthy"
		body["error"] = pingErr.Error()
		return http.StatusServiceUnavailable, body
	}
	return http.StatusOK, body
}
