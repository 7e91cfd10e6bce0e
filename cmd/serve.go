package main

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/cors"
	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/andes-analytics/lme-etl/internal/db"
	"github.com/andes-analytics/lme-etl/internal/etl"
	"github.com/andes-analytics/lme-etl/internal/query"
)

var servePort int

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the extraction trigger and read API server",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		env, err := initEnv(ctx)
		if err != nil {
			return err
		}
		defer env.Close()

		qs := query.NewService(env.Dest, cfg.Query.SQLDir)
		r := buildRouter(env.Service, qs)

		port := servePort
		if port == 0 {
			port = cfg.Server.Port
		}

		srv := &http.Server{
			Addr:    fmt.Sprintf(":%d", port),
			Handler: r,
		}

		// Graceful shutdown
		go func() {
			<-ctx.Done()
			zap.L().Info("shutting down server")
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
			defer cancel()
			srv.Shutdown(shutdownCtx)
		}()

		zap.L().Info("starting server", zap.Int("port", port))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			return eris.Wrap(err, "server listen")
		}

		return nil
	},
}

// buildRouter assembles the HTTP surface: the extraction trigger, task status
// polling, and the read API over the tables the pipeline populates.
func buildRouter(svc *etl.Service, qs *query.Service) *chi.Mux {
	r := chi.NewRouter()
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: []string{"*"},
		AllowedMethods: []string{http.MethodGet, http.MethodPost},
		AllowedHeaders: []string{"Content-Type"},
	}))

	r.Get("/health", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})

	r.Post("/api/etl/extraccion", func(w http.ResponseWriter, r *http.Request) {
		var req etl.Request
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeError(w, http.StatusBadRequest, "invalid request body")
			return
		}
		doc, err := svc.Start(r.Context(), req)
		if err != nil {
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}
		writeJSON(w, http.StatusAccepted, doc)
	})

	r.Get("/api/etl/status/{taskID}", func(w http.ResponseWriter, r *http.Request) {
		doc, err := svc.Status(r.Context(), chi.URLParam(r, "taskID"))
		if err != nil {
			writeError(w, http.StatusInternalServerError, err.Error())
			return
		}
		if doc == nil {
			writeError(w, http.StatusNotFound, "unknown task")
			return
		}
		writeJSON(w, http.StatusOK, doc)
	})

	r.Get("/api/licencias/folio/{folio}", func(w http.ResponseWriter, r *http.Request) {
		lic, err := qs.ByFolio(r.Context(), chi.URLParam(r, "folio"))
		if err != nil {
			writeError(w, http.StatusInternalServerError, err.Error())
			return
		}
		if lic == nil {
			writeError(w, http.StatusNotFound, "folio not found")
			return
		}
		writeJSON(w, http.StatusOK, lic)
	})

	r.Get("/api/licencias/fundamento/{folio}", listHandler(func(r *http.Request) ([]map[string]any, error) {
		return qs.FundamentoIndicator(r.Context(), chi.URLParam(r, "folio"))
	}))

	r.Get("/api/licencias/medico/{rut}", listHandler(func(r *http.Request) ([]map[string]any, error) {
		start, end := dateRange(r)
		return qs.ByDoctor(r.Context(), chi.URLParam(r, "rut"), start, end)
	}))

	r.Get("/api/licencias/trabajador/{rut}", listHandler(func(r *http.Request) ([]map[string]any, error) {
		start, end := dateRange(r)
		return qs.ByWorker(r.Context(), chi.URLParam(r, "rut"), start, end)
	}))

	r.Get("/api/licencias/diagnostico/{codigo}", listHandler(func(r *http.Request) ([]map[string]any, error) {
		return qs.ByDiagnosis(r.Context(), chi.URLParam(r, "codigo"),
			r.URL.Query().Get("fecha_inicio"), r.URL.Query().Get("fecha_fin"))
	}))

	r.Get("/api/licencias/pronunciamiento/{codigo}", listHandler(func(r *http.Request) ([]map[string]any, error) {
		start, end := dateRange(r)
		return qs.ByPronouncementDiagnosis(r.Context(), chi.URLParam(r, "codigo"), start, end)
	}))

	r.Get("/api/licencias/region", listHandler(func(r *http.Request) ([]map[string]any, error) {
		return qs.ByRegion(r.Context(), r.URL.Query().Get("comuna_reposo"),
			r.URL.Query().Get("fecha_inicio"), r.URL.Query().Get("fecha_fin"))
	}))

	r.Get("/api/licencias/sin-fundamento", listHandler(func(r *http.Request) ([]map[string]any, error) {
		return qs.WithoutGrounds(r.Context(),
			r.URL.Query().Get("fecha_inicio"), r.URL.Query().Get("fecha_fin"))
	}))

	r.Get("/api/licencias/totales", listHandler(func(r *http.Request) ([]map[string]any, error) {
		return qs.TotalsByDoctor(r.Context(), r.URL.Query().Get("folio"),
			r.URL.Query().Get("fecha_inicio"), r.URL.Query().Get("fecha_fin"))
	}))

	return r
}

// dateRange reads the fecha_inicio/fecha_fin query parameters, filling an
// absent start with 1900-01-01 and an absent end with today. Only the
// per-person and pronouncement listings default; the remaining listings
// require an explicit range.
func dateRange(r *http.Request) (string, string) {
	start := r.URL.Query().Get("fecha_inicio")
	if start == "" {
		start = "1900-01-01"
	}
	end := r.URL.Query().Get("fecha_fin")
	if end == "" {
		end = time.Now().Format("2006-01-02")
	}
	return start, end
}

// listHandler wraps a query returning a row list. Bad date parameters come
// back as 400s; empty results are an empty JSON array, not a 404.
func listHandler(fn func(r *http.Request) ([]map[string]any, error)) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		results, err := fn(r)
		if err != nil {
			status := http.StatusInternalServerError
			if eris.Is(err, query.ErrInvalidDate) {
				status = http.StatusBadRequest
			}
			writeError(w, status, err.Error())
			return
		}
		if results == nil {
			results = []map[string]any{}
		}
		writeJSON(w, http.StatusOK, results)
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

func init() {
	serveCmd.Flags().IntVar(&servePort, "port", 0, "server port (default from config)")
	rootCmd.AddCommand(serveCmd)
}

// env bundles the wired pipeline collaborators for a command's lifetime.
type env struct {
	Source  db.Pool
	Dest    db.Pool
	Status  etl.StatusStore
	Service *etl.Service

	closers []func()
}

func (e *env) Close() {
	for i := len(e.closers) - 1; i >= 0; i-- {
		e.closers[i]()
	}
}

// initEnv connects both databases, picks the status store backend, and
// assembles the extraction service.
func initEnv(ctx context.Context) (*env, error) {
	source, err := db.Connect(ctx, cfg.Source.DatabaseURL)
	if err != nil {
		return nil, eris.Wrap(err, "connect source database")
	}

	dest, err := db.Connect(ctx, cfg.Dest.DatabaseURL)
	if err != nil {
		source.Close()
		return nil, eris.Wrap(err, "connect destination database")
	}

	e := &env{Source: source, Dest: dest}
	e.closers = append(e.closers, source.Close, dest.Close)

	if cfg.ETL.StatusDB != "" {
		store, err := etl.NewSQLiteStatusStore(cfg.ETL.StatusDB)
		if err != nil {
			e.Close()
			return nil, err
		}
		e.Status = store
		e.closers = append(e.closers, func() { store.Close() })
	} else {
		e.Status = etl.NewMemoryStatusStore()
	}

	notifier := etl.NewScoringNotifier(cfg.Scoring.URL,
		etl.WithScoringTimeout(time.Duration(cfg.Scoring.TimeoutSecs)*time.Second),
		etl.WithScoringAttempts(cfg.Scoring.MaxAttempts),
	)

	e.Service = etl.NewService(e.Status, source, dest, notifier, etl.ServiceConfig{
		PageSize:          cfg.ETL.PageSize,
		AuditDir:          cfg.ETL.AuditDir,
		SourceRatePerSec:  cfg.ETL.SourceRatePerSec,
		MaxConcurrentRuns: cfg.ETL.MaxConcurrentRuns,
	})
	e.closers = append(e.closers, e.Service.Close)

	return e, nil
}
