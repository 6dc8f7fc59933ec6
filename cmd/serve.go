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
	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/sells-group/worklog-cli/internal/model"
	"github.com/sells-group/worklog-cli/internal/pipeline"
	"github.com/sells-group/worklog-cli/internal/store"
)

const maxBodyBytes = 1 << 20

var servePort int

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the HTTP API for report submission",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		env, err := initPipeline(ctx, "serve")
		if err != nil {
			return err
		}
		defer env.Close()

		timeout := time.Duration(cfg.Server.RequestTimeout) * time.Second
		router := buildRouter(env.Service, env.Store, cfg.Server.CORSOrigins, timeout)
		return startServer(ctx, router, resolvePort(servePort, cfg.Server.Port))
	},
}

// reportService is the part of the pipeline the API exposes.
type reportService interface {
	SubmitWorkReport(ctx context.Context, raw, submitterID string) (*model.RegistrationResult, error)
	Resume(ctx context.Context, id, choice string, additional map[string]string) (*model.RegistrationResult, error)
}

type workLogGetter interface {
	GetWorkLog(ctx context.Context, logID string) (*model.WorkLog, error)
}

type submitRequest struct {
	SubmitterID string `json:"submitter_id"`
	Message     string `json:"message"`
}

type resumeRequest struct {
	Choice     string            `json:"choice"`
	Additional map[string]string `json:"additional"`
}

type api struct {
	svc  reportService
	logs workLogGetter
}

// buildRouter mounts the health check and the v1 routes. The request
// timeout applies to v1 only.
func buildRouter(svc reportService, logs workLogGetter, origins []string, timeout time.Duration) http.Handler {
	a := &api{svc: svc, logs: logs}

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	if len(origins) > 0 {
		r.Use(cors.Handler(cors.Options{
			AllowedOrigins: origins,
			AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodOptions},
			AllowedHeaders: []string{"Accept", "Content-Type", "X-Request-Id"},
			MaxAge:         300,
		}))
	}

	r.Get("/health", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})

	r.Route("/v1", func(r chi.Router) {
		if timeout > 0 {
			r.Use(middleware.Timeout(timeout))
		}
		r.Post("/reports", a.submit)
		r.Post("/confirmations/{id}", a.resume)
		r.Get("/worklogs/{id}", a.getWorkLog)
	})
	return r
}

func (a *api) submit(w http.ResponseWriter, r *http.Request) {
	var req submitRequest
	if !decodeBody(w, r, &req) {
		return
	}
	if strings.TrimSpace(req.SubmitterID) == "" {
		writeError(w, http.StatusBadRequest, "submitter_id is required")
		return
	}

	res, err := a.svc.SubmitWorkReport(r.Context(), req.Message, req.SubmitterID)
	if err != nil {
		a.fail(w, r, err)
		return
	}
	writeJSON(w, resultStatus(res), res)
}

func (a *api) resume(w http.ResponseWriter, r *http.Request) {
	var req resumeRequest
	if !decodeBody(w, r, &req) {
		return
	}
	if strings.TrimSpace(req.Choice) == "" {
		writeError(w, http.StatusBadRequest, "choice is required")
		return
	}

	res, err := a.svc.Resume(r.Context(), chi.URLParam(r, "id"), req.Choice, req.Additional)
	if err != nil {
		a.fail(w, r, err)
		return
	}
	writeJSON(w, resultStatus(res), res)
}

func (a *api) getWorkLog(w http.ResponseWriter, r *http.Request) {
	l, err := a.logs.GetWorkLog(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		a.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, l)
}

// fail maps err to a status. A caller that went away gets nothing.
func (a *api) fail(w http.ResponseWriter, r *http.Request, err error) {
	status := statusFor(err)
	if errors.Is(err, context.Canceled) {
		zap.L().Info("request cancelled by client",
			zap.String("request_id", middleware.GetReqID(r.Context())),
			zap.String("path", r.URL.Path),
		)
		return
	}
	if status >= http.StatusInternalServerError {
		zap.L().Error("request failed",
			zap.String("request_id", middleware.GetReqID(r.Context())),
			zap.String("path", r.URL.Path),
			zap.Error(err),
		)
	}
	writeError(w, status, err.Error())
}

func statusFor(err error) int {
	switch {
	case errors.Is(err, pipeline.ErrInvalidSubmission), errors.Is(err, pipeline.ErrUnknownChoice):
		return http.StatusBadRequest
	case errors.Is(err, store.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, context.DeadlineExceeded):
		return http.StatusGatewayTimeout
	default:
		return http.StatusInternalServerError
	}
}

// resultStatus is 201 for a registered record and 202 when the submitter
// still has to answer.
func resultStatus(res *model.RegistrationResult) int {
	if res.Success {
		return http.StatusCreated
	}
	return http.StatusAccepted
}

func decodeBody(w http.ResponseWriter, r *http.Request, dst any) bool {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return false
	}
	return true
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

// resolvePort prefers the flag over the configured port.
func resolvePort(flagPort, cfgPort int) int {
	if flagPort != 0 {
		return flagPort
	}
	return cfgPort
}

// startServer serves h on port until ctx is cancelled, then shuts down
// gracefully.
func startServer(ctx context.Context, h http.Handler, port int) error {
	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", port),
		Handler:           h,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		zap.L().Info("starting server", zap.Int("port", port))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		if err != nil {
			return eris.Wrap(err, "server listen")
		}
		return nil
	case <-ctx.Done():
	}

	zap.L().Info("shutting down server")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return eris.Wrap(err, "server shutdown")
	}
	return <-errCh
}

func init() {
	serveCmd.Flags().IntVar(&servePort, "port", 0, "server port (default from config)")
	rootCmd.AddCommand(serveCmd)
}
