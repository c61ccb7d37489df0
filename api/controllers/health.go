package controllers

import (
	"context"
	"net/http"
	"time"

	"go.uber.org/multierr"

	"github.com/angelmondragon/popcatch-backend/api/responses"
	"github.com/angelmondragon/popcatch-backend/pkg/config"
	pkgerrors "github.com/angelmondragon/popcatch-backend/pkg/errors"
	"github.com/angelmondragon/popcatch-backend/pkg/logger"
)

const readyTimeout = 2 * time.Second

// Pinger is satisfied by the database and redis clients.
type Pinger interface {
	Ping(context.Context) error
}

func HealthLive(cfg *config.Config) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("X-Popcatch-Env", cfg.App.Env)
		responses.WriteSuccess(w, map[string]string{"status": "live"})
	}
}

// HealthReady pings every dependency and reports 503 when any is down.
func HealthReady(cfg *config.Config, logg *logger.Logger, deps map[string]Pinger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("X-Popcatch-Env", cfg.App.Env)

		ctx, cancel := context.WithTimeout(r.Context(), readyTimeout)
		defer cancel()

		checks := make(map[string]string, len(deps))
		var errs error
		for name, dep := range deps {
			if dep == nil {
				continue
			}
			if err := dep.Ping(ctx); err != nil {
				checks[name] = "down"
				errs = multierr.Append(errs, pkgerrors.Wrap(pkgerrors.CodeDependency, err, name+" unavailable"))
				continue
			}
			checks[name] = "ok"
		}

		if errs != nil {
			err := pkgerrors.Wrap(pkgerrors.CodeDependency, errs, "dependencies unavailable").
				WithDetails(map[string]any{"checks": checks})
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		responses.WriteSuccess(w, map[string]any{"status": "ready", "checks": checks})
	}
}
