// Command reconcile audits every lot balance and event digest and writes the
// results as CSV. It exits non-zero when any lot is inconsistent.
package main

import (
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"

	"github.com/joho/godotenv"
	"gorm.io/gorm"

	"smokehouse/internal/config"
	"smokehouse/internal/db"
	"smokehouse/internal/db/mock"
	"smokehouse/internal/ledger"
	applog "smokehouse/internal/log"
	"smokehouse/internal/store"
)

var errInconsistent = errors.New("inconsistent lots found")

var reportHeader = []string{
	"lot_id", "lot_number", "material_id", "status", "unit",
	"received", "balance", "allocated", "expected", "drift",
	"allocations", "events", "invalid_digests", "consistent",
}

func main() {
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		fmt.Fprintf(os.Stderr, "read .env: %v\n", err)
	}

	outPath := ""
	if len(os.Args) > 1 {
		outPath = os.Args[1]
	}

	if err := run(context.Background(), outPath); err != nil {
		fmt.Fprintf(os.Stderr, "reconcile failed: %v\n", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, outPath string) error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	if err := applog.SetLevel(cfg.Logging.Level); err != nil {
		return err
	}

	database, err := openDatabase(ctx, cfg.Database)
	if err != nil {
		return fmt.Errorf("open database: %w", err)
	}

	l, err := ledger.New(store.NewGorm(database), ledger.Config{
		Epsilon:  cfg.Ledger.Epsilon,
		AuditKey: []byte(cfg.Ledger.AuditKey),
	})
	if err != nil {
		return err
	}

	var out io.Writer = os.Stdout
	if strings.TrimSpace(outPath) != "" {
		f, err := os.Create(outPath)
		if err != nil {
			return fmt.Errorf("create report: %w", err)
		}
		defer f.Close()
		out = f
	}

	bad, err := writeReport(ctx, l, out)
	if err != nil {
		return err
	}
	if bad > 0 {
		return fmt.Errorf("%w: %d", errInconsistent, bad)
	}
	return nil
}

func openDatabase(ctx context.Context, cfg config.DatabaseConfig) (*gorm.DB, error) {
	if cfg.UseMock {
		return mock.New(ctx)
	}
	database, err := db.Initialize(cfg)
	if err != nil {
		return nil, err
	}
	if err := db.AutoMigrate(database); err != nil {
		return nil, fmt.Errorf("auto migrate: %w", err)
	}
	return database, nil
}

// writeReport writes one CSV row per lot and returns how many were inconsistent.
func writeReport(ctx context.Context, l *ledger.Ledger, w io.Writer) (int, error) {
	results, err := l.ReconcileAll(ctx)
	if err != nil {
		return 0, fmt.Errorf("reconcile lots: %w", err)
	}

	cw := csv.NewWriter(w)
	if err := cw.Write(reportHeader); err != nil {
		return 0, err
	}
	bad := 0
	for _, r := range results {
		if !r.Consistent() {
			bad++
			applog.Warn(ctx, "lot is inconsistent", "lotID", r.LotID, "drift", r.Drift, "invalidDigests", len(r.InvalidDigests))
		}
		if err := cw.Write(reportRow(r)); err != nil {
			return bad, err
		}
	}
	cw.Flush()
	if err := cw.Error(); err != nil {
		return bad, fmt.Errorf("write report: %w", err)
	}
	applog.Info(ctx, "reconciliation complete", "lots", len(results), "inconsistent", bad)
	return bad, nil
}

func reportRow(r ledger.Reconciliation) []string {
	return []string{
		r.LotID,
		r.LotNumber,
		r.MaterialID,
		r.Status,
		r.Unit,
		formatFloat(r.ReceivedQuantity),
		formatFloat(r.CurrentBalance),
		formatFloat(r.Allocated),
		formatFloat(r.Expected),
		formatFloat(r.Drift),
		strconv.Itoa(r.Allocations),
		strconv.Itoa(r.Events),
		strings.Join(r.InvalidDigests, ";"),
		strconv.FormatBool(r.Consistent()),
	}
}

func formatFloat(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}
