package http

import (
	"context"
	stdhttp "net/http"
	"time"

	"github.com/rs/zerolog"
)

const healthCheckTimeout = 2 * time.Second

// HealthCheck reports whether a dependency such as the store is reachable.
type HealthCheck func(ctx context.Context) error

// HealthHandler reports liveness, and readiness of the store when check is set.
func HealthHandler(check HealthCheck, logger zerolog.Logger) stdhttp.HandlerFunc {
	return func(w stdhttp.ResponseWriter, r *stdhttp.Request) {
		if check != nil {
			ctx, cancel := context.WithTimeout(r.Context(), healthCheckTimeout)
			defer cancel()
			if err := check(ctx); err != nil {
				logger.Warn().Err(err).Msg("health check failed")
				writeError(w, stdhttp.StatusServiceUnavailable, codeStoreUnavailable, "store unavailable")
				return
			}
		}
		w.Header().Set("Content-Type", "text/plain; charset=utf-8")
		w.WriteHeader(stdhttp.StatusOK)
		_, _ = w.Write([]byte("ok"))
	}
}
