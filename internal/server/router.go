package server

import (
	"context"
	"net/http"
	"time"

	"smokehouse/internal/handlers"
	applog "smokehouse/internal/log"
)

type route struct {
	pattern string
	handler http.HandlerFunc
}

func newRouter(metrics http.Handler) http.Handler {
	mux := http.NewServeMux()
	applog.Debug(context.Background(), "registering http routes")
	mux.HandleFunc("/healthz", handlers.Health)
	applog.Debug(context.Background(), "route registered", "path", "/healthz")
	if metrics != nil {
		mux.Handle("GET /metrics", metrics)
		applog.Debug(context.Background(), "route registered", "path", "/metrics")
	}

	routes := []route{
		{"POST /api/allocations", handlers.CreateAllocation},
		{"PUT /api/allocations/{id}", handlers.UpdateAllocation},
		{"DELETE /api/allocations/{id}", handlers.DeleteAllocation},
		{"POST /api/lots/{id}/recall", handlers.RecallLot},
		{"GET /api/lots/{id}/impact", handlers.LotImpact},
		{"GET /api/lots/{id}/reconciliation", handlers.LotReconciliation},
		{"DELETE /api/lots/{id}", handlers.DeleteLot},
		{"GET /api/batches/{id}/targets", handlers.BatchTargets},
		{"GET /api/batches/{id}/trace", handlers.BatchTrace},
		{"GET /api/batches/{id}/release-readiness", handlers.ReleaseReadiness},
	}
	for _, rt := range routes {
		mux.HandleFunc(rt.pattern, rt.handler)
		applog.Debug(context.Background(), "route registered", "path", rt.pattern)
	}
	return mux
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(status int) {
	r.status = status
	r.ResponseWriter.WriteHeader(status)
}

func logRequests(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(rec, r)
		applog.Debug(r.Context(), "http request served",
			"method", r.Method,
			"path", r.URL.Path,
			"status", rec.status,
			"duration", time.Since(start).String(),
		)
	})
}
