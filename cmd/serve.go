package main

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"os/signal"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/sells-group/catalyst-cli/internal/metrics"
	"github.com/sells-group/catalyst-cli/internal/model"
	"github.com/sells-group/catalyst-cli/internal/monitoring"
	"github.com/sells-group/catalyst-cli/internal/store"
)

var servePort int

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Serve the catalyst registry over a read-only HTTP API",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		st, err := openReadStore(ctx, cfg)
		if err != nil {
			return err
		}
		defer st.Close() //nolint:errcheck

		port := servePort
		if port == 0 {
			port = cfg.Server.Port
		}

		if cfg.Monitoring.WebhookURL != "" {
			checker := monitoring.NewChecker(
				monitoring.NewCollector(st),
				monitoring.NewAlerter(cfg.Monitoring),
				cfg.Monitoring,
			)
			go checker.Run(ctx)
		}

		srv := &http.Server{
			Addr:              fmt.Sprintf(":%d", port),
			Handler:           newRouter(st, metrics.New()),
			ReadHeaderTimeout: 10 * time.Second,
		}

		// Graceful shutdown
		go func() {
			<-ctx.Done()
			zap.L().Info("shutting down server")
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
			defer cancel()
			_ = srv.Shutdown(shutdownCtx)
		}()

		zap.L().Info("starting server", zap.Int("port", port))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			return eris.Wrap(err, "server listen")
		}

		return nil
	},
}

// apiStore is the read side of the registry the API serves.
type apiStore interface {
	GetCatalyst(ctx context.Context, catalystID string) (*model.CatalystMaster, error)
	ListCatalysts(ctx context.Context, filter store.CatalystFilter) ([]model.CatalystMaster, error)
	Versions(ctx context.Context, catalystID string) ([]model.CatalystVersion, error)
	ListRuns(ctx context.Context, filter store.RunFilter) ([]model.Run, error)
}

func newRouter(st apiStore, m *metrics.Metrics) http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: []string{"*"},
		AllowedMethods: []string{http.MethodGet, http.MethodOptions},
		AllowedHeaders: []string{"Accept", "Content-Type"},
		MaxAge:         300,
	}))

	r.Get("/health", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})
	r.Handle("/metrics", m.Handler())

	r.Route("/api", func(r chi.Router) {
		r.Get("/catalysts", func(w http.ResponseWriter, req *http.Request) {
			q := req.URL.Query()
			filter := store.CatalystFilter{
				Tic:   strings.ToUpper(q.Get("tic")),
				State: model.LifecycleState(q.Get("state")),
			}
			if t := q.Get("type"); t != "" {
				ct, err := model.ParseCatalystType(t)
				if err != nil {
					writeError(w, http.StatusBadRequest, err.Error())
					return
				}
				filter.CatalystType = ct
			}
			var err error
			if filter.Limit, err = intParam(q.Get("limit")); err != nil {
				writeError(w, http.StatusBadRequest, "limit must be a non-negative integer")
				return
			}
			if filter.Offset, err = intParam(q.Get("offset")); err != nil {
				writeError(w, http.StatusBadRequest, "offset must be a non-negative integer")
				return
			}

			masters, err := st.ListCatalysts(req.Context(), filter)
			if err != nil {
				serverError(w, req, err)
				return
			}
			if masters == nil {
				masters = []model.CatalystMaster{}
			}
			writeJSON(w, http.StatusOK, masters)
		})

		r.Get("/catalysts/{id}", func(w http.ResponseWriter, req *http.Request) {
			m, err := st.GetCatalyst(req.Context(), chi.URLParam(req, "id"))
			if err != nil {
				serverError(w, req, err)
				return
			}
			if m == nil {
				writeError(w, http.StatusNotFound, "catalyst not found")
				return
			}
			writeJSON(w, http.StatusOK, m)
		})

		r.Get("/catalysts/{id}/versions", func(w http.ResponseWriter, req *http.Request) {
			versions, err := st.Versions(req.Context(), chi.URLParam(req, "id"))
			if err != nil {
				serverError(w, req, err)
				return
			}
			if len(versions) == 0 {
				writeError(w, http.StatusNotFound, "catalyst not found")
				return
			}
			writeJSON(w, http.StatusOK, versions)
		})

		r.Get("/runs", func(w http.ResponseWriter, req *http.Request) {
			limit, err := intParam(req.URL.Query().Get("limit"))
			if err != nil {
				writeError(w, http.StatusBadRequest, "limit must be a non-negative integer")
				return
			}
			runs, err := st.ListRuns(req.Context(), store.RunFilter{
				Status: model.RunStatus(req.URL.Query().Get("status")),
				Limit:  limit,
			})
			if err != nil {
				serverError(w, req, err)
				return
			}
			if runs == nil {
				runs = []model.Run{}
			}
			writeJSON(w, http.StatusOK, runs)
		})
	})

	return r
}

func intParam(s string) (int, error) {
	if s == "" {
		return 0, nil
	}
	n, err := strconv.Atoi(s)
	if err != nil || n < 0 {
		return 0, eris.Errorf("invalid integer %q", s)
	}
	return n, nil
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

func serverError(w http.ResponseWriter, req *http.Request, err error) {
	zap.L().Error("api request failed",
		zap.String("path", req.URL.Path),
		zap.String("request_id", middleware.GetReqID(req.Context())),
		zap.Error(err),
	)
	writeError(w, http.StatusInternalServerError, "internal error")
}

func init() {
	serveCmd.Flags().IntVar(&servePort, "port", 0, "server port (default from config)")
	rootCmd.AddCommand(serveCmd)
}
