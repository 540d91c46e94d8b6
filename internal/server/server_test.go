package server

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"smokehouse/internal/db/mock"
	"smokehouse/internal/handlers"
	"smokehouse/internal/ledger"
	"smokehouse/internal/metrics"
	"smokehouse/internal/store"
	"smokehouse/internal/targets"
	"smokehouse/internal/trace"
)

func TestNewServesLedgerRoutes(t *testing.T) {
	ctx := context.Background()
	db, err := mock.New(ctx)
	if err != nil {
		t.Fatalf("mock.New() error = %v", err)
	}
	t.Cleanup(func() {
		if sqlDB, err := db.DB(); err == nil {
			sqlDB.Close()
		}
	})

	recorder := metrics.New()
	s := store.NewGorm(db)
	l, err := ledger.New(s, ledger.Config{Observer: recorder})
	if err != nil {
		t.Fatalf("ledger.New() error = %v", err)
	}
	svc := targets.NewService(s, targets.StoreSettings{Store: s}, 0)

	srv, err := New(Config{
		Addr:      ":8080",
		Database:  db,
		Ledger:    l,
		Targets:   svc,
		Assembler: trace.NewAssembler(s, svc),
		Metrics:   recorder.Handler(),
	})
	if err != nil {
		t.Fatalf("New() returned error: %v", err)
	}
	t.Cleanup(func() {
		handlers.Configure(handlers.Dependencies{})
	})

	if srv.httpServer.Addr != ":8080" {
		t.Fatalf("expected server addr :8080, got %q", srv.httpServer.Addr)
	}

	body := `{"batch_id":"` + mock.BatchInProgressID + `","lot_id":"` + mock.LotPepperID + `","quantity":80,"unit":"g"}`
	rr := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rr, httptest.NewRequest(http.MethodPost, "/api/allocations", strings.NewReader(body)))
	if rr.Code != http.StatusCreated {
		t.Fatalf("POST /api/allocations = %d: %s", rr.Code, rr.Body.String())
	}
	var created ledger.AllocationResult
	if err := json.Unmarshal(rr.Body.Bytes(), &created); err != nil {
		t.Fatalf("failed to decode allocation: %v", err)
	}

	rr = httptest.NewRecorder()
	srv.Handler().ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/api/lots/"+mock.LotPepperID+"/impact", nil))
	if rr.Code != http.StatusOK {
		t.Fatalf("GET impact = %d", rr.Code)
	}

	rr = httptest.NewRecorder()
	srv.Handler().ServeHTTP(rr, httptest.NewRequest(http.MethodDelete, "/api/allocations/"+created.AllocationID, nil))
	if rr.Code != http.StatusOK {
		t.Fatalf("DELETE allocation = %d: %s", rr.Code, rr.Body.String())
	}

	rr = httptest.NewRecorder()
	srv.Handler().ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	if rr.Code != http.StatusOK {
		t.Fatalf("GET /metrics = %d", rr.Code)
	}
	out, _ := io.ReadAll(rr.Body)
	if !strings.Contains(string(out), `smokehouse_ledger_operations_total{op="allocate",outcome="success"} 1`) {
		t.Fatalf("metrics output missing allocate counter:\n%s", out)
	}
}

func TestServerHandler(t *testing.T) {
	cfg := Config{Addr: ":9090"}
	srv, err := New(cfg)
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	t.Cleanup(func() {
		handlers.Configure(handlers.Dependencies{})
	})

	handler := srv.Handler()
	if handler == nil {
		t.Fatal("expected non-nil handler")
	}

	rr := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
	handler.ServeHTTP(rr, req)
	if rr.Code != http.StatusOK {
		t.Fatalf("expected /healthz to return 200, got %d", rr.Code)
	}

	rr = httptest.NewRecorder()
	handler.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/api/batches/b1/targets", nil))
	if rr.Code != http.StatusServiceUnavailable {
		t.Fatalf("expected unconfigured targets to return 503, got %d", rr.Code)
	}
}
