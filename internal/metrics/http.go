package metrics

import (
	"context"
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/JFenderson/BandHub-sub007/internal/domain"
)

// JobLister is the store inspection surface the admin endpoints read.
type JobLister interface {
	ListByState(ctx context.Context, queue string, state domain.State, limit int) ([]*domain.Job, error)
}

// Router serves the admin-facing JSON endpoints and the prometheus
// scrape endpoint.
func Router(r *Reporter, jobs JobLister, gatherer prometheus.Gatherer, log *zap.Logger) http.Handler {
	rtr := chi.NewRouter()

	rtr.Get("/healthz", func(w http.ResponseWriter, req *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})

	rtr.Get("/v1/metrics/priority", func(w http.ResponseWriter, req *http.Request) {
		dist, err := r.PriorityDistribution(req.Context())
		if err != nil {
			log.Error("priority distribution failed", zap.Error(err))
			http.Error(w, "distribution unavailable", http.StatusInternalServerError)
			return
		}
		writeJSON(w, dist)
	})

	rtr.Get("/v1/metrics/priority/summary", func(w http.ResponseWriter, req *http.Request) {
		m, err := r.PriorityMetrics(req.Context())
		if err != nil {
			log.Error("priority metrics failed", zap.Error(err))
			http.Error(w, "metrics unavailable", http.StatusInternalServerError)
			return
		}
		writeJSON(w, m)
	})

	rtr.Get("/v1/queues/{queue}/jobs", func(w http.ResponseWriter, req *http.Request) {
		state := domain.State(req.URL.Query().Get("state"))
		if state == "" {
			state = domain.StateWaiting
		}
		limit, _ := strconv.Atoi(req.URL.Query().Get("limit"))
		list, err := jobs.ListByState(req.Context(), chi.URLParam(req, "queue"), state, limit)
		if err != nil {
			log.Error("list jobs failed", zap.Error(err))
			http.Error(w, "listing unavailable", http.StatusInternalServerError)
			return
		}
		writeJSON(w, list)
	})

	rtr.Method(http.MethodGet, "/metrics", promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{}))
	return rtr
}

func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(v)
}
