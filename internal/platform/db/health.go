package db

import (
	"context"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
)

// Health reports connectivity and pool utilization for the health endpoint.
type Health struct {
	Status       string `json:"status"`
	TotalConns   int32  `json:"total_conns"`
	IdleConns    int32  `json:"idle_conns"`
	AcquiredConns int32 `json:"acquired_conns"`
}

// CheckHealth pings the database with a short deadline.
func CheckHealth(ctx context.Context, pool *pgxpool.Pool) Health {
	ctx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()

	stat := pool.Stat()
	h := Health{
		Status:        "ok",
		TotalConns:    stat.TotalConns(),
		IdleConns:     stat.IdleConns(),
		AcquiredConns: stat.AcquiredConns(),
	}
	if err := pool.Ping(ctx); err != nil {
		h.Status = "unavailable"
	}
	return h
}
