package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/sells-group/change-monitor/internal/model"
	"github.com/sells-group/change-monitor/internal/monitoring"
	"github.com/sells-group/change-monitor/internal/store"
)

var servePort int

// passTrigger starts monitoring passes. *monitoring.Checker satisfies it.
type passTrigger interface {
	Start(ctx context.Context, targets []model.MonitorTarget, done func([]*model.Run, error)) error
	Busy() bool
}

// apiStore is the read side of the store exposed over HTTP.
type apiStore interface {
	store.RunLog
	GetLatest(ctx context.Context, url string) (*model.Snapshot, error)
}

type api struct {
	ctx     context.Context
	passes  passTrigger
	store   apiStore
	targets []model.MonitorTarget
	// done receives the outcome of each async pass. Tests use it.
	done chan error
}

func newRouter(a *api) http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: []string{"*"},
		AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodOptions},
		AllowedHeaders: []string{"Content-Type"},
		MaxAge:         300,
	}))

	r.Get("/health", a.health)
	r.Post("/runs", a.startRun)
	r.Get("/runs", a.listRuns)
	r.Get("/snapshots/latest", a.latestSnapshot)
	return r
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

func (a *api) health(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"status":  "ok",
		"targets": len(a.targets),
		"busy":    a.passes.Busy(),
	})
}

func (a *api) startRun(w http.ResponseWriter, r *http.Request) {
	var req struct {
		EntityID string `json:"entity_id"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil && !errors.Is(err, io.EOF) {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	tgts := model.FilterTargets(a.targets, req.EntityID)
	if len(tgts) == 0 {
		writeError(w, http.StatusNotFound, "no matching targets")
		return
	}
	err := a.passes.Start(a.ctx, tgts, func(runs []*model.Run, err error) {
		if err != nil {
			zap.L().Error("api: pass failed", zap.String("entity", req.EntityID), zap.Error(err))
		} else {
			zap.L().Info("api: pass complete", zap.String("entity", req.EntityID), zap.Int("runs", len(runs)))
		}
		if a.done != nil {
			a.done <- err
		}
	})
	if errors.Is(err, monitoring.ErrPassInProgress) {
		writeError(w, http.StatusConflict, "a pass is already running")
		return
	}
	if err != nil {
		zap.L().Error("api: start pass", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "start pass failed")
		return
	}

	writeJSON(w, http.StatusAccepted, map[string]any{
		"status":  "accepted",
		"targets": len(tgts),
	})
}

func (a *api) listRuns(w http.ResponseWriter, r *http.Request) {
	filter := store.RunFilter{EntityID: r.URL.Query().Get("entity")}
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 0 {
			writeError(w, http.StatusBadRequest, "limit must be a non-negative integer")
			return
		}
		filter.Limit = n
	}

	runs, err := a.store.ListRuns(r.Context(), filter)
	if err != nil {
		zap.L().Error("api: list runs", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "list runs failed")
		return
	}
	if runs == nil {
		runs = []model.Run{}
	}
	writeJSON(w, http.StatusOK, runs)
}

func (a *api) latestSnapshot(w http.ResponseWriter, r *http.Request) {
	url := r.URL.Query().Get("url")
	if url == "" {
		writeError(w, http.StatusBadRequest, "url is required")
		return
	}

	snap, err := a.store.GetLatest(r.Context(), url)
	if err != nil {
		zap.L().Error("api: get latest snapshot", zap.String("url", url), zap.Error(err))
		writeError(w, http.StatusInternalServerError, "snapshot lookup failed")
		return
	}
	if snap == nil {
		writeError(w, http.StatusNotFound, "no snapshot for url")
		return
	}
	writeJSON(w, http.StatusOK, snap)
}

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the HTTP API",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		env, err := initMonitor(ctx, cfg)
		if err != nil {
			return err
		}
		defer env.Close()

		port := servePort
		if port == 0 {
			port = cfg.Server.Port
		}

		srv := &http.Server{
			Addr: fmt.Sprintf(":%d", port),
			Handler: newRouter(&api{
				ctx:     ctx,
				passes:  env.Checker,
				store:   env.Store,
				targets: env.Targets,
			}),
			ReadHeaderTimeout: 10 * time.Second,
		}

		// Graceful shutdown
		go func() {
			<-ctx.Done()
			zap.L().Info("shutting down server")
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
			defer cancel()
			_ = srv.Shutdown(shutdownCtx)
		}()

		zap.L().Info("starting server", zap.Int("port", port))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return eris.Wrap(err, "server listen")
		}

		return nil
	},
}

var _ passTrigger = (*monitoring.Checker)(nil)

func init() {
	serveCmd.Flags().IntVar(&servePort, "port", 0, "server port (default from config)")
	rootCmd.AddCommand(serveCmd)
}
