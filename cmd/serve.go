package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/MASanner/findbottomlessmimosas-com/internal/auth"
	"github.com/MASanner/findbottomlessmimosas-com/internal/metrics"
	"github.com/MASanner/findbottomlessmimosas-com/internal/model"
	"github.com/MASanner/findbottomlessmimosas-com/internal/pipeline"
)

// cronSecretHeader carries the run credential on trigger requests.
const cronSecretHeader = "x-cron-secret"

var servePort int

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the run trigger server",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		cities, err := loadCities("", nil)
		if err != nil {
			return err
		}

		reg := prometheus.NewRegistry()
		reg.MustRegister(
			collectors.NewGoCollector(),
			collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		)

		env, err := initRunEnv(ctx, "serve", auth.NewSecret(cfg.Server.CronSecret), cities, metrics.New(reg))
		if err != nil {
			return err
		}
		defer env.Close()

		var admin *auth.Authorizer
		if cfg.Server.AdminToken != "" {
			admin = auth.NewSecret(cfg.Server.AdminToken)
		}

		port := servePort
		if port == 0 {
			port = cfg.Server.Port
		}

		srv := &http.Server{
			Addr:              fmt.Sprintf(":%d", port),
			Handler:           buildRouter(env.Orchestrator, cfg.Server.CronSecret, admin, cfg.Server.AllowedOrigins, reg),
			ReadHeaderTimeout: 10 * time.Second,
		}

		// Graceful shutdown
		go func() {
			<-ctx.Done()
			zap.L().Info("shutting down server")
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
			defer cancel()
			srv.Shutdown(shutdownCtx) //nolint:errcheck
		}()

		zap.L().Info("starting server", zap.Int("port", port))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			return eris.Wrap(err, "server listen")
		}

		return nil
	},
}

// buildRouter mounts the trigger routes. The admin route is only mounted
// when admin is non-nil; it runs a scrape with the server's own secret.
func buildRouter(orch *pipeline.Orchestrator, cronSecret string, admin *auth.Authorizer, origins []string, gatherer prometheus.Gatherer) http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)

	r.Get("/health", func(w http.ResponseWriter, _ *http.Request) {
		writeJSONResponse(w, http.StatusOK, map[string]string{"status": "ok"})
	})
	r.Method(http.MethodGet, "/metrics", promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{}))

	r.Route("/api/scrape-mimosas", func(r chi.Router) {
		r.Post("/", triggerHandler(func(ctx context.Context, r *http.Request) (*model.RunStats, error) {
			return orch.Run(ctx, r.Header.Get(cronSecretHeader))
		}))
		r.Post("/reprocess", triggerHandler(func(ctx context.Context, r *http.Request) (*model.RunStats, error) {
			return orch.Replay(ctx, r.Header.Get(cronSecretHeader))
		}))
	})

	if admin != nil {
		r.Group(func(r chi.Router) {
			r.Use(cors.Handler(cors.Options{
				AllowedOrigins: origins,
				AllowedMethods: []string{http.MethodPost, http.MethodOptions},
				AllowedHeaders: []string{"Authorization", "Content-Type"},
				MaxAge:         300,
			}))
			r.Post("/api/admin/scrape", triggerHandler(func(ctx context.Context, r *http.Request) (*model.RunStats, error) {
				if err := admin.Authorize(bearerToken(r)); err != nil {
					return nil, err
				}
				return orch.Run(ctx, cronSecret)
			}))
		})
	}

	return r
}

// triggerHandler runs a batch and writes its stats. The run is detached from
// the request so a dropped connection does not cancel it.
func triggerHandler(run func(context.Context, *http.Request) (*model.RunStats, error)) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		stats, err := run(context.WithoutCancel(r.Context()), r)
		switch {
		case errors.Is(err, auth.ErrUnauthorized):
			writeJSONResponse(w, http.StatusUnauthorized, map[string]string{"error": "Unauthorized"})
		case err != nil:
			zap.L().Error("trigger run failed", zap.String("path", r.URL.Path), zap.Error(err))
			writeJSONResponse(w, http.StatusInternalServerError, map[string]string{"error": runFailedMessage(err)})
		default:
			writeJSONResponse(w, http.StatusOK, stats)
		}
	}
}

// runFailedMessage is the client-facing text for a failed run. Detail stays
// in the server log.
func runFailedMessage(err error) string {
	if errors.Is(err, pipeline.ErrNotConfigured) {
		return "Not configured"
	}
	return "Run failed"
}

func bearerToken(r *http.Request) string {
	token, ok := strings.CutPrefix(r.Header.Get("Authorization"), "Bearer ")
	if !ok {
		return ""
	}
	return strings.TrimSpace(token)
}

func writeJSONResponse(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v) //nolint:errcheck
}

func init() {
	serveCmd.Flags().IntVar(&servePort, "port", 0, "server port (default from config)")
	rootCmd.AddCommand(serveCmd)
}
