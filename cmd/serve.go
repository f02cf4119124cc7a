package main

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"os/signal"
	"strconv"
	"syscall"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/trialscope/sitescope/internal/cluster"
	"github.com/trialscope/sitescope/internal/metrics"
	"github.com/trialscope/sitescope/internal/model"
	"github.com/trialscope/sitescope/internal/recommend"
	"github.com/trialscope/sitescope/internal/store"
)

var servePort int

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the site evaluation JSON API",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		st, err := initStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close()

		port := servePort
		if port == 0 {
			port = cfg.Server.Port
		}

		srv := &http.Server{
			Addr:    fmt.Sprintf(":%d", port),
			Handler: newRouter(st),
		}

		go func() {
			<-ctx.Done()
			zap.L().Info("shutting down server")
			srv.Shutdown(context.Background())
		}()

		zap.L().Info("starting server", zap.Int("port", port))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			return eris.Wrap(err, "server listen")
		}

		return nil
	},
}

func newRouter(st store.Store) http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: []string{"*"},
		AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodOptions},
		AllowedHeaders: []string{"Accept", "Content-Type"},
	}))

	r.Get("/health", func(w http.ResponseWriter, req *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})

	r.Get("/api/sites", func(w http.ResponseWriter, req *http.Request) {
		filter := store.SiteFilter{Country: req.URL.Query().Get("country")}
		if raw := req.URL.Query().Get("limit"); raw != "" {
			limit, err := strconv.Atoi(raw)
			if err != nil || limit < 1 {
				writeError(w, http.StatusBadRequest, "limit must be a positive integer")
				return
			}
			filter.Limit = limit
		}

		sites, err := st.ListSites(req.Context(), filter)
		if err != nil {
			zap.L().Error("list sites failed", zap.Error(err))
			writeError(w, http.StatusInternalServerError, "failed to list sites")
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"count": len(sites), "sites": sites})
	})

	r.Get("/api/sites/{name}/narrative", func(w http.ResponseWriter, req *http.Request) {
		name := chi.URLParam(req, "name")
		site, err := st.GetSite(req.Context(), name, req.URL.Query().Get("country"))
		if err != nil {
			zap.L().Error("get site failed", zap.String("site", name), zap.Error(err))
			writeError(w, http.StatusInternalServerError, "failed to load site")
			return
		}
		if site == nil {
			writeError(w, http.StatusNotFound, "site not found")
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{
			"site":      site.Name,
			"country":   site.Country,
			"narrative": site.Narrative,
		})
	})

	r.Get("/api/clusters", func(w http.ResponseWriter, req *http.Request) {
		sites, err := st.ListSites(req.Context(), store.SiteFilter{})
		if err != nil {
			zap.L().Error("list sites failed", zap.Error(err))
			writeError(w, http.StatusInternalServerError, "failed to list sites")
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"clusters": cluster.Summarize(sites)})
	})

	r.Post("/api/recommend", func(w http.ResponseWriter, req *http.Request) {
		var body struct {
			Condition    string `json:"condition"`
			Phase        string `json:"phase"`
			Intervention string `json:"intervention"`
			Country      string `json:"country"`
			Limit        int    `json:"limit"`
		}
		if err := json.NewDecoder(req.Body).Decode(&body); err != nil {
			writeError(w, http.StatusBadRequest, "invalid request body")
			return
		}
		if body.Condition == "" {
			writeError(w, http.StatusBadRequest, "condition is required")
			return
		}

		sites, err := st.ListSites(req.Context(), store.SiteFilter{})
		if err != nil {
			zap.L().Error("list sites failed", zap.Error(err))
			writeError(w, http.StatusInternalServerError, "failed to list sites")
			return
		}

		engine := metrics.New(cfg.MetricsConfig())
		rec := recommend.New(engine, cfg.RecommenderConfig(body.Country, body.Limit))
		recs := rec.Recommend(sites, model.MatchQuery{
			Condition:    body.Condition,
			Phase:        body.Phase,
			Intervention: body.Intervention,
			Country:      body.Country,
		})
		writeJSON(w, http.StatusOK, map[string]any{"count": len(recs), "recommendations": recs})
	})

	return r
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(body)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

func init() {
	serveCmd.Flags().IntVar(&servePort, "port", 0, "server port (default from config)")
	rootCmd.AddCommand(serveCmd)
}
