package handlers

import (
	"context"
	"net/http"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"subrender/internal/httpkit"
)

const checkTimeout = 5 * time.Second

// Health reports liveness; ?deep=true also checks dependencies.
func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	health := map[string]any{
		"status":         "ok",
		"service":        "subrender-api",
		"uptime_seconds": int64(time.Since(h.started).Seconds()),
	}

	if r.URL.Query().Get("deep") == "true" {
		checks := h.deepHealthCheck(ctx)
		health["checks"] = checks

		for _, check := range checks {
			if check["status"] == "error" {
				health["status"] = "degraded"
				h.log.FromContext(ctx).Warn("health check degraded", "checks", checks)
				break
			}
		}
	}

	httpkit.WriteJSON(w, http.StatusOK, health)
}

func (h *Handler) deepHealthCheck(ctx context.Context) map[string]map[string]any {
	return map[string]map[string]any{
		"postgres": h.checkPostgres(ctx),
		"redis":    h.checkRedis(ctx),
		"queue":    h.checkQueue(ctx),
		"bundle":   h.checkBundle(),
		"storage":  h.checkStorage(),
	}
}

func (h *Handler) checkPostgres(ctx context.Context) map[string]any {
	if h.pool == nil {
		return map[string]any{"status": "disabled"}
	}

	start := time.Now()
	result := map[string]any{"status": "ok"}

	checkCtx, cancel := context.WithTimeout(ctx, checkTimeout)
	defer cancel()

	if err := h.pool.Ping(checkCtx); err != nil {
		result["status"] = "error"
		result["error"] = err.Error()
	} else {
		stats := h.pool.Stat()
		result["total_conns"] = stats.TotalConns()
		result["idle_conns"] = stats.IdleConns()
		result["acquired_conns"] = stats.AcquiredConns()
		result["ledger"] = ledgerState(checkCtx, h.pool)
	}

	result["latency_ms"] = time.Since(start).Milliseconds()
	return result
}

func ledgerState(ctx context.Context, pool *pgxpool.Pool) string {
	var one int
	err := pool.QueryRow(ctx, "SELECT 1 FROM renders LIMIT 1").Scan(&one)
	switch {
	case err == nil, httpkit.IsNoRows(err):
		return "ready"
	case httpkit.IsUndefinedTable(err):
		return "missing"
	default:
		return "unknown"
	}
}

func (h *Handler) checkRedis(ctx context.Context) map[string]any {
	if h.rdb == nil {
		return map[string]any{"status": "disabled"}
	}

	start := time.Now()
	result := map[string]any{"status": "ok"}

	checkCtx, cancel := context.WithTimeout(ctx, checkTimeout)
	defer cancel()

	if err := h.rdb.Ping(checkCtx).Err(); err != nil {
		result["status"] = "error"
		result["error"] = err.Error()
	}

	result["latency_ms"] = time.Since(start).Milliseconds()
	return result
}

func (h *Handler) checkQueue(ctx context.Context) map[string]any {
	q, ok := h.queue.(QueueInspector)
	if !ok {
		return map[string]any{"status": "disabled"}
	}

	checkCtx, cancel := context.WithTimeout(ctx, checkTimeout)
	defer cancel()

	depth, err := q.Len(checkCtx)
	if err != nil {
		return map[string]any{"status": "error", "error": err.Error()}
	}
	return map[string]any{"status": "ok", "depth": depth}
}

// checkBundle never fails the check: an unbuilt bundle is rebuilt on demand.
func (h *Handler) checkBundle() map[string]any {
	if h.runner == nil {
		return map[string]any{"status": "disabled"}
	}
	st := h.runner.Bundles().Status()
	result := map[string]any{
		"status": "ok",
		"state":  st.State,
		"builds": st.Builds,
	}
	if st.BuiltAt != nil {
		result["built_at"] = st.BuiltAt
	}
	if st.LastError != "" {
		result["last_error"] = st.LastError
	}
	return result
}

func (h *Handler) checkStorage() map[string]any {
	if h.sp == nil {
		return map[string]any{"status": "ok", "provider": "none"}
	}
	return map[string]any{"status": "ok", "provider": h.sp.Provider()}
}
