// Package ledger owns lot balances. Every write is a compare-and-set against the
// lot version, executed as a saga so that a failure midway is rolled back, and
// recorded as a sealed lot event.
package ledger

import (
	"context"
	"errors"
	"fmt"
	"math"
	"time"

	"github.com/google/uuid"

	"smokehouse/internal/lock"
	applog "smokehouse/internal/log"
	"smokehouse/internal/notify"
	"smokehouse/internal/saga"
	"smokehouse/internal/store"
	"smokehouse/internal/units"
	"smokehouse/models"
)

const (
	DefaultEpsilon    = 1e-6
	DefaultMaxRetries = 3

	creditAttempts = 8
)

// Observer receives operation outcomes; metrics.Recorder implements it.
type Observer interface {
	Observe(ctx context.Context, op string, success bool, d time.Duration)
	Compensation(ctx context.Context, op string, complete bool)
}

type noopObserver struct{}

func (noopObserver) Observe(context.Context, string, bool, time.Duration) {}
func (noopObserver) Compensation(context.Context, string, bool)           {}

// Config tunes a Ledger. Zero values fall back to the defaults; Locker, Observer
// and Notifier are optional.
type Config struct {
	Epsilon    float64
	MaxRetries int
	AuditKey   []byte
	// StrictUnits rejects quantities whose unit cannot be converted into the
	// lot's unit instead of taking them at face value.
	StrictUnits bool
	Locker      lock.Locker
	Observer    Observer
	Notifier    notify.Publisher
	Now         func() time.Time
}

// Ledger applies allocations, adjustments, reversals and recalls to lots.
type Ledger struct {
	store    store.Store
	cfg      Config
	audit    auditor
	observer Observer
	notifier notify.Publisher
}

// New returns a Ledger over s. The audit key may be empty and is at most 64 bytes.
func New(s store.Store, cfg Config) (*Ledger, error) {
	if s == nil {
		return nil, errors.New("ledger: store is required")
	}
	if !(cfg.Epsilon > 0) {
		cfg.Epsilon = DefaultEpsilon
	}
	if cfg.MaxRetries < 0 {
		cfg.MaxRetries = DefaultMaxRetries
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	audit, err := newAuditor(cfg.AuditKey)
	if err != nil {
		return nil, err
	}
	l := &Ledger{store: s, cfg: cfg, audit: audit, observer: cfg.Observer, notifier: cfg.Notifier}
	if l.observer == nil {
		l.observer = noopObserver{}
	}
	if l.notifier == nil {
		l.notifier = notify.Noop{}
	}
	return l, nil
}

// Epsilon is the tolerance applied to balance comparisons.
func (l *Ledger) Epsilon() float64 {
	return l.cfg.Epsilon
}

func (l *Ledger) now() time.Time {
	// storage keeps microseconds; digests must survive the round trip
	return l.cfg.Now().UTC().Truncate(time.Microsecond)
}

// exec wraps one public operation with the per-lot lock and metrics.
func (l *Ledger) exec(ctx context.Context, op, lotID string, fn func(context.Context) error) error {
	start := time.Now()
	err := l.withLock(ctx, lotID, fn)
	l.observer.Observe(ctx, op, err == nil, time.Since(start))

	var failure *saga.Failure
	if errors.As(err, &failure) {
		applog.Error(ctx, "ledger write failed midway",
			"op", op,
			"lotID", lotID,
			"step", failure.Step,
			"compensated", failure.Compensated(),
			"error", failure.Cause,
		)
	}
	return err
}

func (l *Ledger) withLock(ctx context.Context, lotID string, fn func(context.Context) error) error {
	if l.cfg.Locker == nil {
		return fn(ctx)
	}
	release, err := l.cfg.Locker.Acquire(ctx, "lot:"+lotID)
	if err != nil {
		return fmt.Errorf("%w: lot %s is locked: %v", ErrConcurrentModification, lotID, err)
	}
	defer release()
	return fn(ctx)
}

// retry re-runs attempt while it fails on a stale lot version and any partial
// work was rolled back.
func (l *Ledger) retry(ctx context.Context, op, lotID string, attempt func() error) error {
	for i := 0; ; i++ {
		err := attempt()
		if err == nil {
			return nil
		}

		var failure *saga.Failure
		if errors.As(err, &failure) {
			l.observer.Compensation(ctx, op, failure.Compensated())
			if !failure.Compensated() {
				return err
			}
		}
		if !errors.Is(err, store.ErrStale) {
			return err
		}
		if i >= l.cfg.MaxRetries {
			return fmt.Errorf("%w: lot %s changed during %s after %d attempts", ErrConcurrentModification, lotID, op, i+1)
		}
		if ctxErr := ctx.Err(); ctxErr != nil {
			return ctxErr
		}
		applog.Debug(ctx, "lot version conflict, retrying", "op", op, "lotID", lotID, "attempt", i+1)
	}
}

func (l *Ledger) undoHook(op string) saga.Hook {
	return func(ctx context.Context, step string, err error) {
		if err != nil {
			applog.Error(ctx, "ledger compensation failed", "op", op, "step", step, "error", err)
			return
		}
		applog.Debug(ctx, "ledger step compensated", "op", op, "step", step)
	}
}

func (l *Ledger) loadLot(ctx context.Context, id string) (*models.Lot, error) {
	lot, err := l.store.GetLot(ctx, id)
	if errors.Is(err, store.ErrNotFound) {
		return nil, fmt.Errorf("%w: lot %s", ErrNotFound, id)
	}
	if err != nil {
		return nil, fmt.Errorf("load lot %s: %w", id, err)
	}
	return lot, nil
}

func (l *Ledger) loadAllocation(ctx context.Context, id string) (*models.Allocation, error) {
	allocation, err := l.store.GetAllocation(ctx, id)
	if errors.Is(err, store.ErrNotFound) {
		return nil, fmt.Errorf("%w: allocation %s", ErrNotFound, id)
	}
	if err != nil {
		return nil, fmt.Errorf("load allocation %s: %w", id, err)
	}
	return allocation, nil
}

// toLotUnit expresses quantity in the lot's unit. An empty unit means the lot unit.
func (l *Ledger) toLotUnit(quantity float64, unit, lotUnit string) (float64, error) {
	if unit == "" || units.Normalize(unit) == units.Normalize(lotUnit) {
		return quantity, nil
	}
	if l.cfg.StrictUnits {
		converted, err := units.ConvertStrict(quantity, unit, lotUnit)
		if err != nil {
			return 0, fmt.Errorf("%w: %w", ErrInvalidQuantity, err)
		}
		return converted, nil
	}
	return units.Convert(quantity, unit, lotUnit), nil
}

// credit adds amount to the lot's current balance, re-reading the lot whenever
// its version moved underneath. It backs returns of stock and the undo of a
// debit, which must land on the latest balance rather than an earlier read.
func (l *Ledger) credit(ctx context.Context, lotID string, amount float64) (float64, string, error) {
	for i := 0; ; i++ {
		lot, err := l.loadLot(ctx, lotID)
		if err != nil {
			return 0, "", err
		}
		balance, status := l.settle(lot, lot.CurrentBalance+amount)
		err = l.store.UpdateLotBalance(ctx, lot.ID, lot.Version, balance, status)
		if err == nil {
			return balance, status, nil
		}
		if !errors.Is(err, store.ErrStale) || i+1 >= creditAttempts {
			return 0, "", err
		}
	}
}

// settle clamps float noise around zero and derives the lot status for balance.
func (l *Ledger) settle(lot *models.Lot, balance float64) (float64, string) {
	if math.Abs(balance) <= l.cfg.Epsilon {
		balance = 0
	}
	status := lot.Status
	switch {
	case status == models.LotStatusRecalled:
	case balance <= l.cfg.Epsilon:
		status = models.LotStatusExhausted
	default:
		status = models.LotStatusActive
	}
	return balance, status
}

func (l *Ledger) newEvent(lot *models.Lot, kind string, delta, balance float64, batchID, allocationID, reason string) *models.LotEvent {
	e := &models.LotEvent{
		ID:               uuid.NewString(),
		LotID:            lot.ID,
		Type:             kind,
		Delta:            delta,
		ResultingBalance: balance,
		Unit:             lot.Unit,
		Reason:           reason,
		CreatedAt:        l.now(),
	}
	if batchID != "" {
		e.BatchID = &batchID
	}
	if allocationID != "" {
		e.AllocationID = &allocationID
	}
	l.audit.seal(e)
	return e
}

func validQuantity(q float64) bool {
	return !math.IsNaN(q) && !math.IsInf(q, 0) && q > 0
}
